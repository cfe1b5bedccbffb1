package workflow

import (
	"context"
	"errors"
	"fmt"

	"bitbucket.org/multycomm/collection_backend/config"
	"bitbucket.org/multycomm/collection_backend/models"
	"bitbucket.org/multycomm/collection_backend/reconcile"
	"bitbucket.org/multycomm/collection_backend/utils"
	"gorm.io/gorm"
)

// Identifier prefixes. DF records come in through the digital funnel,
// FF records through field collection.
const (
	PrefixDigital = "DF"
	PrefixField   = "FF"
)

var ErrDuplicateConflict = errors.New("duplicate conflict")

// RecordMutationResult reports what a create/resolve actually did. Skipped
// and Deferred are mutually exclusive with Record being set.
type RecordMutationResult struct {
	Record   *models.CustomerRecord    `json:"record,omitempty"`
	Report   reconcile.DuplicateReport `json:"report"`
	Skipped  bool                      `json:"skipped"`
	Deferred bool                      `json:"deferred"`
	Changes  []reconcile.FieldChange   `json:"changes,omitempty"`
}

func newValidator() *reconcile.Validator {
	v := reconcile.NewValidator(config.GetLogger())
	v.Strict = config.StrictEnumValidation()
	return v
}

// CreateRecord validates and inserts a single record under the given policy.
// Policy decides what happens when identity fields collide with an existing
// record: skip drops the candidate, append suffixes the colliding values,
// replace swaps the existing record out, prompt defers to the caller.
func CreateRecord(ctx context.Context, prefix string, raw map[string]string, rawPolicy string) (*RecordMutationResult, error) {
	logger := config.GetLogger()

	policy, err := reconcile.ParsePolicy(rawPolicy)
	if err != nil {
		return nil, err
	}
	if prefix != PrefixDigital && prefix != PrefixField {
		return nil, fmt.Errorf("unknown identifier prefix %q", prefix)
	}

	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, errors.New("tenant id is required")
	}

	normalized, errs := newValidator().ValidateNew(raw)
	if errs.HasBlocking() {
		return nil, errs
	}

	// GET_LOCK is connection-scoped, so the lock, the transaction and the
	// release all run on one pinned connection. The lock outlives the commit;
	// detection on another instance never races an uncommitted insert.
	db := config.GetDB()
	var result *RecordMutationResult
	err = db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		if err := AcquireTenantRecordLock(conn, tenantId); err != nil {
			config.LogError(logger, "RecordWorkflow.go", "CreateRecord", "AcquireTenantRecordLock", tenantId, err)
			return err
		}
		defer ReleaseTenantRecordLock(conn, tenantId)

		tx := conn.Begin()
		defer func() {
			if r := recover(); r != nil {
				tx.Rollback()
				panic(r)
			}
		}()

		res, err := createRecordInTx(ctx, tx, tenantId, prefix, normalized, policy)
		if err != nil {
			tx.Rollback()
			return err
		}
		if res.Skipped || res.Deferred {
			tx.Rollback()
			result = res
			return nil
		}
		if err := tx.Commit().Error; err != nil {
			config.LogError(logger, "RecordWorkflow.go", "CreateRecord", "Commit", prefix, err)
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// createRecordInTx runs detection, resolution and the insert inside the
// caller's transaction. Returns with Skipped/Deferred set when the policy
// says nothing should be written.
func createRecordInTx(ctx context.Context, tx *gorm.DB, tenantId string, prefix string, normalized map[string]*string, policy reconcile.Policy) (*RecordMutationResult, error) {
	logger := config.GetLogger()
	store := models.NewRecordStore(tx)

	report, err := reconcile.NewDetector(store).Detect(ctx, normalized, 0)
	if err != nil {
		config.LogError(logger, "RecordWorkflow.go", "createRecordInTx", "Detect", tenantId, err)
		return nil, err
	}

	candidate := normalized
	externalId := ""

	if !report.Empty() {
		plan, err := reconcile.NewResolver(store).Resolve(ctx, policy, normalized, report)
		if err != nil {
			return nil, err
		}
		switch plan.Action {
		case reconcile.ActionNone:
			return &RecordMutationResult{Report: report, Skipped: true}, nil
		case reconcile.ActionDefer:
			return &RecordMutationResult{Report: report, Deferred: true}, nil
		case reconcile.ActionInsertModified:
			candidate = plan.Candidate
		case reconcile.ActionReplaceInsert:
			candidate = plan.Candidate
			externalId = plan.ReuseExternalId
			for _, deleteId := range plan.DeleteRecordIds {
				if err := deleteRecordRows(ctx, tx, deleteId); err != nil {
					config.LogError(logger, "RecordWorkflow.go", "createRecordInTx", "DeleteReplaced", deleteId, err)
					return nil, err
				}
			}
		}
	}

	if externalId == "" {
		externalId, err = models.AllocateExternalId(ctx, tx, tenantId, prefix)
		if err != nil {
			config.LogError(logger, "RecordWorkflow.go", "createRecordInTx", "AllocateExternalId", prefix, err)
			return nil, err
		}
	}

	record := models.CustomerRecord{
		TenantId:   tenantId,
		ExternalId: externalId,
	}
	if err := record.ApplyFields(candidate); err != nil {
		return nil, err
	}
	if err := tx.Create(&record).Error; err != nil {
		config.LogError(logger, "RecordWorkflow.go", "createRecordInTx", "CreateRecord", externalId, err)
		return nil, err
	}

	if err := models.EnqueueRecordEvent(tx, models.RecordEventActionCreate, record.ID, record.ExternalId, nil, record); err != nil {
		config.LogError(logger, "RecordWorkflow.go", "createRecordInTx", "EnqueueRecordEvent", record.ID, err)
		return nil, err
	}

	return &RecordMutationResult{Record: &record, Report: report}, nil
}

// CheckDuplicates validates the submitted fields and reports identity
// collisions without writing anything.
func CheckDuplicates(ctx context.Context, raw map[string]string, excludeId int) (reconcile.DuplicateReport, error) {
	normalized, errs := newValidator().Validate(raw)
	if errs.HasBlocking() {
		return reconcile.DuplicateReport{}, errs
	}

	db := config.GetDB()
	store := models.NewRecordStore(db.WithContext(ctx))
	return reconcile.NewDetector(store).Detect(ctx, normalized, excludeId)
}

// ResolveDuplicate applies the caller's chosen policy to a candidate that was
// previously deferred by prompt.
func ResolveDuplicate(ctx context.Context, prefix string, raw map[string]string, rawPolicy string) (*RecordMutationResult, error) {
	return CreateRecord(ctx, prefix, raw, rawPolicy)
}

// UpdateRecord re-validates submitted fields, re-runs duplicate detection
// excluding the record itself, applies the change and writes one change-log
// row per modified field, all in one transaction.
func UpdateRecord(ctx context.Context, id int, raw map[string]string) (*RecordMutationResult, error) {
	logger := config.GetLogger()

	actor, ok := utils.GetUsernameFromContext(ctx)
	if !ok || actor == "" {
		return nil, reconcile.ErrMissingActor
	}

	normalized, errs := newValidator().Validate(raw)
	if errs.HasBlocking() {
		return nil, errs
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	var record models.CustomerRecord
	if err := tx.First(&record, id).Error; err != nil {
		tx.Rollback()
		return nil, utils.ErrorRecordNotFound
	}

	before := record.Snapshot()

	store := models.NewRecordStore(tx)
	report, err := reconcile.NewDetector(store).Detect(ctx, normalized, record.ID)
	if err != nil {
		tx.Rollback()
		config.LogError(logger, "RecordWorkflow.go", "UpdateRecord", "Detect", id, err)
		return nil, err
	}
	if !report.Empty() {
		tx.Rollback()
		return &RecordMutationResult{Report: report, Deferred: true}, fmt.Errorf("%w: %s", ErrDuplicateConflict, report.Describe())
	}

	if err := record.ApplyFields(normalized); err != nil {
		tx.Rollback()
		return nil, err
	}

	recorder := reconcile.NewRecorder(store)
	changes, err := recorder.RecordChanges(ctx, record.ID, record.ExternalId, before, record.Snapshot(), actor)
	if err != nil {
		tx.Rollback()
		config.LogError(logger, "RecordWorkflow.go", "UpdateRecord", "RecordChanges", id, err)
		return nil, err
	}

	if err := tx.Save(&record).Error; err != nil {
		tx.Rollback()
		config.LogError(logger, "RecordWorkflow.go", "UpdateRecord", "Save", id, err)
		return nil, err
	}

	if len(changes) > 0 {
		if err := models.EnqueueRecordEvent(tx, models.RecordEventActionUpdate, record.ID, record.ExternalId, before, record); err != nil {
			tx.Rollback()
			config.LogError(logger, "RecordWorkflow.go", "UpdateRecord", "EnqueueRecordEvent", id, err)
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		config.LogError(logger, "RecordWorkflow.go", "UpdateRecord", "Commit", id, err)
		return nil, err
	}
	return &RecordMutationResult{Record: &record, Changes: changes}, nil
}

// DeleteRecord removes the record together with its change log and
// assignment trail.
func DeleteRecord(ctx context.Context, id int) (*models.CustomerRecord, error) {
	logger := config.GetLogger()

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	var record models.CustomerRecord
	if err := tx.First(&record, id).Error; err != nil {
		tx.Rollback()
		return nil, utils.ErrorRecordNotFound
	}

	if err := deleteRecordRows(ctx, tx, record.ID); err != nil {
		tx.Rollback()
		config.LogError(logger, "RecordWorkflow.go", "DeleteRecord", "deleteRecordRows", id, err)
		return nil, err
	}

	if err := models.EnqueueRecordEvent(tx, models.RecordEventActionDelete, record.ID, record.ExternalId, record, nil); err != nil {
		tx.Rollback()
		config.LogError(logger, "RecordWorkflow.go", "DeleteRecord", "EnqueueRecordEvent", id, err)
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		config.LogError(logger, "RecordWorkflow.go", "DeleteRecord", "Commit", id, err)
		return nil, err
	}
	return &record, nil
}

// deleteRecordRows drops a record plus its cascading rows (change log,
// assignment trail) inside the caller's transaction.
func deleteRecordRows(ctx context.Context, tx *gorm.DB, recordId int) error {
	if err := tx.Where("record_id = ?", recordId).Delete(&models.RecordChange{}).Error; err != nil {
		return err
	}
	if err := tx.Where("record_id = ?", recordId).Delete(&models.RecordAssignment{}).Error; err != nil {
		return err
	}
	return tx.Delete(&models.CustomerRecord{}, recordId).Error
}

// FetchHistory returns the change log of one record, newest first.
func FetchHistory(ctx context.Context, recordId int) ([]*models.RecordChange, error) {
	return models.GetRecordChanges(ctx, recordId)
}

// AssignRecord moves a record to an agent (and optionally a department),
// appending to both the assignment trail and the field change log.
func AssignRecord(ctx context.Context, recordId int, userId int, departmentId *int) (*models.CustomerRecord, error) {
	logger := config.GetLogger()

	actor, ok := utils.GetUsernameFromContext(ctx)
	if !ok || actor == "" {
		return nil, reconcile.ErrMissingActor
	}
	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, errors.New("tenant id is required")
	}

	db := config.GetDB()

	var user models.User
	if err := db.WithContext(ctx).First(&user, userId).Error; err != nil {
		return nil, errors.New("assignee not found")
	}

	tx := db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	var record models.CustomerRecord
	if err := tx.First(&record, recordId).Error; err != nil {
		tx.Rollback()
		return nil, utils.ErrorRecordNotFound
	}

	before := record.Snapshot()
	record.AgentName = &user.Name
	if departmentId != nil {
		record.DepartmentId = departmentId
	} else {
		record.DepartmentId = user.DepartmentId
	}

	store := models.NewRecordStore(tx)
	if _, err := reconcile.NewRecorder(store).RecordChanges(ctx, record.ID, record.ExternalId, before, record.Snapshot(), actor); err != nil {
		tx.Rollback()
		config.LogError(logger, "RecordWorkflow.go", "AssignRecord", "RecordChanges", recordId, err)
		return nil, err
	}

	if err := tx.Save(&record).Error; err != nil {
		tx.Rollback()
		config.LogError(logger, "RecordWorkflow.go", "AssignRecord", "Save", recordId, err)
		return nil, err
	}

	assignment := models.RecordAssignment{
		TenantId:     tenantId,
		RecordId:     record.ID,
		UserId:       user.ID,
		DepartmentId: record.DepartmentId,
		AssignedBy:   actor,
	}
	if err := tx.Create(&assignment).Error; err != nil {
		tx.Rollback()
		config.LogError(logger, "RecordWorkflow.go", "AssignRecord", "CreateAssignment", recordId, err)
		return nil, err
	}

	if err := models.EnqueueRecordEvent(tx, models.RecordEventActionUpdate, record.ID, record.ExternalId, before, record); err != nil {
		tx.Rollback()
		config.LogError(logger, "RecordWorkflow.go", "AssignRecord", "EnqueueRecordEvent", recordId, err)
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		config.LogError(logger, "RecordWorkflow.go", "AssignRecord", "Commit", recordId, err)
		return nil, err
	}
	return &record, nil
}

// PatchRecordField updates a single allow-listed field. Anything outside the
// rule table is rejected rather than silently written.
func PatchRecordField(ctx context.Context, id int, field string, value string) (*RecordMutationResult, error) {
	if _, ok := reconcile.RuleFor(reconcile.DefaultRules(), field); !ok {
		return nil, fmt.Errorf("field %q is not patchable", field)
	}
	return UpdateRecord(ctx, id, map[string]string{field: value})
}
