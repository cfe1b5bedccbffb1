package workflow

import (
	"sync"
	"testing"

	"bitbucket.org/multycomm/collection_backend/reconcile"
)

// NOTE: These tests are intentionally DB-free. They validate the intended
// allocation semantics: per-tenant serialization makes PREFIX_<n> assignment
// gapless and collision-free under concurrent creation. Full DB integration
// tests need a MySQL environment (GET_LOCK + sequence row).

type fakeAllocator struct {
	mu          sync.Mutex
	muByTenant  map[string]*sync.Mutex
	maxByTenant map[string]string
}

func newFakeAllocator() *fakeAllocator {
	return &fakeAllocator{
		muByTenant:  map[string]*sync.Mutex{},
		maxByTenant: map[string]string{},
	}
}

func (a *fakeAllocator) allocate(t *testing.T, tenantId, prefix string) string {
	// Serialize per tenant (workflow AcquireTenantRecordLock).
	a.mu.Lock()
	tm := a.muByTenant[tenantId]
	if tm == nil {
		tm = &sync.Mutex{}
		a.muByTenant[tenantId] = tm
	}
	a.mu.Unlock()

	tm.Lock()
	defer tm.Unlock()

	next, err := reconcile.NextIdentifier(prefix, a.maxByTenant[tenantId])
	if err != nil {
		t.Fatalf("NextIdentifier: %v", err)
	}
	a.maxByTenant[tenantId] = next
	return next
}

func TestAllocation_ConcurrentCreates_NoCollisions(t *testing.T) {
	a := newFakeAllocator()

	const workers = 50
	ids := make(chan string, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- a.allocate(t, "tenant-1", "DF")
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		if seen[id] {
			t.Fatalf("identifier %q allocated twice", id)
		}
		seen[id] = true
	}
	if len(seen) != workers {
		t.Fatalf("expected %d distinct identifiers, got %d", workers, len(seen))
	}
	if !seen["DF_1"] || !seen["DF_50"] {
		t.Fatalf("allocation not gapless: missing DF_1 or DF_50 in %v", seen)
	}
}

func TestAllocation_TenantsAreIndependent(t *testing.T) {
	a := newFakeAllocator()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.allocate(t, "tenant-1", "DF")
			a.allocate(t, "tenant-2", "FF")
		}()
	}
	wg.Wait()

	if a.maxByTenant["tenant-1"] != "DF_20" {
		t.Fatalf("tenant-1 max = %q, want DF_20", a.maxByTenant["tenant-1"])
	}
	if a.maxByTenant["tenant-2"] != "FF_20" {
		t.Fatalf("tenant-2 max = %q, want FF_20", a.maxByTenant["tenant-2"])
	}
}
