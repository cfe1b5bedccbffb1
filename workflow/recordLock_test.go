package workflow

import "testing"

func TestTenantLockName(t *testing.T) {
	// The lock name keys GET_LOCK per tenant; two tenants must never share one.
	a := tenantLockName("tenant-a")
	b := tenantLockName("tenant-b")
	if a == b {
		t.Fatalf("lock names must differ per tenant: %q vs %q", a, b)
	}
	if a != "records:tenant-a" {
		t.Fatalf("unexpected lock name %q", a)
	}
}
