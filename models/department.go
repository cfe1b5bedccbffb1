package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/multycomm/collection_backend/config"
	"bitbucket.org/multycomm/collection_backend/utils"
)

type Department struct {
	ID        int       `gorm:"primary_key" json:"id"`
	TenantId  string    `gorm:"index;not null" json:"tenant_id"`
	Name      string    `gorm:"index;size:100;not null" json:"name" binding:"required"`
	Mobile    string    `gorm:"size:20" json:"mobile"`
	Address   string    `gorm:"type:text" json:"address"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// RecordAssignment is the append-only log of record-to-agent moves. The
// current owner lives on the record itself; this table keeps the trail.
type RecordAssignment struct {
	ID           int       `gorm:"primary_key" json:"id"`
	TenantId     string    `gorm:"size:64;index;not null" json:"tenant_id"`
	RecordId     int       `gorm:"index;not null" json:"record_id"`
	UserId       int       `gorm:"index" json:"user_id"`
	DepartmentId *int      `gorm:"index" json:"department_id"`
	AssignedBy   string    `gorm:"size:100;not null" json:"assigned_by"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type NewDepartment struct {
	Name    string `json:"name" binding:"required"`
	Mobile  string `json:"mobile"`
	Address string `json:"address"`
}

// validate input for both create & update. (id = 0 for create)

func (input *NewDepartment) validate(ctx context.Context, tenantId string, id int) error {
	if id > 0 {
		if err := utils.ValidateResourceId[Department](ctx, tenantId, id); err != nil {
			return err
		}
	}
	if err := utils.ValidateUnique[Department](ctx, tenantId, "name", input.Name, id); err != nil {
		return err
	}
	return nil
}

func CreateDepartment(ctx context.Context, input *NewDepartment) (*Department, error) {

	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, errors.New("tenant id is required")
	}

	if err := input.validate(ctx, tenantId, 0); err != nil {
		return nil, err
	}

	department := Department{
		TenantId: tenantId,
		Name:     input.Name,
		Mobile:   input.Mobile,
		Address:  input.Address,
		IsActive: utils.NewTrue(),
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Create(&department).Error
	if err != nil {
		return nil, err
	}

	return &department, nil
}

func UpdateDepartment(ctx context.Context, id int, input *NewDepartment) (*Department, error) {

	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, errors.New("tenant id is required")
	}

	if err := input.validate(ctx, tenantId, id); err != nil {
		return nil, err
	}

	department, err := utils.FetchModel[Department](ctx, tenantId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(&department).Updates(map[string]interface{}{
		"Name":    input.Name,
		"Mobile":  input.Mobile,
		"Address": input.Address,
	}).Error
	if err != nil {
		return nil, err
	}

	return department, nil
}

func DeleteDepartment(ctx context.Context, id int) (*Department, error) {

	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, errors.New("tenant id is required")
	}

	result, err := utils.FetchModel[Department](ctx, tenantId, id)
	if err != nil {
		return nil, err
	}

	// a department with records or users keeps its row
	db := config.GetDB()
	var count int64
	if err := db.WithContext(ctx).Model(&CustomerRecord{}).
		Where("department_id = ?", id).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("department has records")
	}
	if err := db.WithContext(ctx).Model(&User{}).
		Where("department_id = ?", id).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("department has users")
	}

	err = db.WithContext(ctx).Delete(&result).Error
	if err != nil {
		return nil, err
	}

	return result, nil
}

func GetDepartment(ctx context.Context, id int) (*Department, error) {

	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, errors.New("tenant id is required")
	}

	return utils.FetchModel[Department](ctx, tenantId, id)
}

func GetDepartments(ctx context.Context, name *string) ([]*Department, error) {
	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, errors.New("tenant id is required")
	}

	db := config.GetDB()
	var results []*Department

	dbCtx := db.WithContext(ctx).Where("tenant_id = ?", tenantId)
	if name != nil && len(*name) > 0 {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%")
	}
	err := dbCtx.Order("name").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
