package workflow

import (
	"fmt"

	"gorm.io/gorm"
)

func tenantLockName(tenantId string) string {
	return fmt.Sprintf("records:%s", tenantId)
}

// AcquireTenantRecordLock serializes record mutation per tenant across
// instances using MySQL advisory locks. Identifier allocation and duplicate
// resolution both read-then-write, so they run under this lock.
// NOTE: GET_LOCK and RELEASE_LOCK are connection-scoped. Callers must pin one
// connection with db.Connection and acquire, run the transaction, and release
// all on that handle; releasing on the pool hits a different connection and
// leaks the lock.
func AcquireTenantRecordLock(conn *gorm.DB, tenantId string) error {
	var ok int
	if err := conn.Raw("SELECT GET_LOCK(?, 30)", tenantLockName(tenantId)).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire record lock for tenant_id=%s", tenantId)
	}
	return nil
}

func ReleaseTenantRecordLock(conn *gorm.DB, tenantId string) {
	var _ok int
	_ = conn.Raw("SELECT RELEASE_LOCK(?)", tenantLockName(tenantId)).Scan(&_ok).Error
}
