package config

import (
	"context"
	"testing"

	"bitbucket.org/multycomm/collection_backend/appctx"
)

func TestShouldBypassTenantScope(t *testing.T) {
	if shouldBypassTenantScope(context.Background()) {
		t.Fatalf("empty context must not bypass tenant scoping")
	}

	// An authenticated request context, super admin included, never bypasses.
	ctx := appctx.Set(context.Background(), appctx.ContextKeyTenantId, "tenant-a")
	ctx = appctx.Set(ctx, appctx.ContextKeyRole, "A")
	if shouldBypassTenantScope(ctx) {
		t.Fatalf("request context must not bypass tenant scoping")
	}
	if got := tenantIdFromContext(ctx); got != "tenant-a" {
		t.Fatalf("tenantIdFromContext = %q, want tenant-a", got)
	}

	skip := appctx.Set(context.Background(), appctx.ContextKeySkipTenantScope, true)
	if !shouldBypassTenantScope(skip) {
		t.Fatalf("SkipTenantScope flag must bypass tenant scoping")
	}
}
