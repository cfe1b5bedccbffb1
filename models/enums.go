package models

import (
	"context"

	"bitbucket.org/multycomm/collection_backend/utils"
	"gorm.io/gorm"
)

// UserRole scopes what a session can see and mutate.
type UserRole string

const (
	// RoleSuperAdmin sees every record of the tenant.
	RoleSuperAdmin UserRole = "A"
	// RoleDepartmentAdmin sees the records of their department.
	RoleDepartmentAdmin UserRole = "D"
	// RoleAgent sees only the records assigned to them.
	RoleAgent UserRole = "G"
)

// RecordEventAction is the action carried on an outbox event.
type RecordEventAction string

const (
	RecordEventActionCreate RecordEventAction = "C"
	RecordEventActionUpdate RecordEventAction = "U"
	RecordEventActionDelete RecordEventAction = "D"
	RecordEventActionBulk   RecordEventAction = "B"
)

// scopeByRole narrows a customer-record query to what the session's role may
// see. Tenant scoping itself is handled by the tenant guard plugin.
func scopeByRole(ctx context.Context, dbCtx *gorm.DB) *gorm.DB {
	role, _ := utils.GetRoleFromContext(ctx)
	switch UserRole(role) {
	case RoleAgent:
		userName, _ := utils.GetUserNameFromContext(ctx)
		return dbCtx.Where("agent_name = ?", userName)
	case RoleDepartmentAdmin:
		departmentId, ok := utils.GetDepartmentIdFromContext(ctx)
		if ok && departmentId > 0 {
			return dbCtx.Where("department_id = ?", departmentId)
		}
		return dbCtx
	default:
		return dbCtx
	}
}
