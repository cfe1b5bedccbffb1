package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/multycomm/collection_backend/config"
	"bitbucket.org/multycomm/collection_backend/models"
	"bitbucket.org/multycomm/collection_backend/reconcile"
	"bitbucket.org/multycomm/collection_backend/utils"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

var ErrUploadNotFound = errors.New("upload not found or expired")

// StagedRow is one spreadsheet row after validation and duplicate detection.
type StagedRow struct {
	Index  int                       `json:"index"`
	Fields map[string]*string        `json:"fields"`
	Report reconcile.DuplicateReport `json:"report"`
	Errors []string                  `json:"errors,omitempty"`
}

// UploadStaging is the Redis-held payload between StageUpload and
// ConfirmUpload. It expires on its own; an unconfirmed upload needs no
// cleanup.
type UploadStaging struct {
	Id        string      `json:"id"`
	TenantId  string      `json:"tenant_id"`
	Prefix    string      `json:"prefix"`
	Rows      []StagedRow `json:"rows"`
	CreatedAt time.Time   `json:"created_at"`
}

// UploadSummary is what StageUpload reports back to the caller.
type UploadSummary struct {
	UploadId   string      `json:"upload_id"`
	Total      int         `json:"total"`
	Staged     int         `json:"staged"`
	Duplicates []StagedRow `json:"duplicates,omitempty"`
	Rejected   []StagedRow `json:"rejected,omitempty"`
}

// ConfirmResult reports what a confirmed upload committed.
type ConfirmResult struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

func uploadTTL() time.Duration {
	minutes, err := strconv.Atoi(os.Getenv("UPLOAD_TTL_MINUTES"))
	if err != nil || minutes <= 0 {
		minutes = 30
	}
	return time.Duration(minutes) * time.Minute
}

func confirmTimeout() time.Duration {
	seconds, err := strconv.Atoi(os.Getenv("CONFIRM_TIMEOUT_SECONDS"))
	if err != nil || seconds <= 0 {
		seconds = 60
	}
	return time.Duration(seconds) * time.Second
}

// normalizeHeader maps a spreadsheet column header onto a rule-table field
// name: trimmed, lower case, spaces to underscores.
func normalizeHeader(header string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(header)), " ", "_")
}

// ParseUploadWorkbook reads the first sheet of an .xlsx stream into raw field
// maps keyed by normalized header. Columns that do not map onto a known field
// are dropped.
func ParseUploadWorkbook(reader io.Reader) ([]map[string]string, error) {
	f, err := excelize.OpenReader(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("unable to read sheet: %v", err)
	}
	if len(rows) < 2 {
		return nil, errors.New("workbook has no data rows")
	}

	rules := reconcile.DefaultRules()
	headers := make([]string, len(rows[0]))
	for i, header := range rows[0] {
		field := normalizeHeader(header)
		if _, ok := reconcile.RuleFor(rules, field); ok {
			headers[i] = field
		}
	}

	out := make([]map[string]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		fields := make(map[string]string)
		for i, cell := range row {
			if i >= len(headers) || headers[i] == "" {
				continue
			}
			if strings.TrimSpace(cell) == "" {
				continue
			}
			fields[headers[i]] = cell
		}
		out = append(out, fields)
	}
	return out, nil
}

// StageUpload validates and duplicate-checks every row, stages the clean
// payload in Redis under a fresh upload id and reports per-row findings.
// Nothing is written to the database.
func StageUpload(ctx context.Context, prefix string, reader io.Reader) (*UploadSummary, error) {
	logger := config.GetLogger()

	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, errors.New("tenant id is required")
	}
	if prefix != PrefixDigital && prefix != PrefixField {
		return nil, fmt.Errorf("unknown identifier prefix %q", prefix)
	}

	rawRows, err := ParseUploadWorkbook(reader)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	store := models.NewRecordStore(db.WithContext(ctx))
	detector := reconcile.NewDetector(store)
	validator := newValidator()
	identityFields := reconcile.IdentityFields(reconcile.DefaultRules())

	staging := UploadStaging{
		Id:        uuid.New().String(),
		TenantId:  tenantId,
		Prefix:    prefix,
		CreatedAt: time.Now().UTC(),
	}
	summary := UploadSummary{UploadId: staging.Id, Total: len(rawRows)}

	// identity values already staged earlier in this batch
	batchSeen := map[string]int{}

	for index, raw := range rawRows {
		staged := StagedRow{Index: index + 2} // 1-based, after the header row

		normalized, errs := validator.ValidateNew(raw)
		if errs.HasBlocking() {
			for _, fieldErr := range errs {
				staged.Errors = append(staged.Errors, fieldErr.Error())
			}
			summary.Rejected = append(summary.Rejected, staged)
			continue
		}
		staged.Fields = normalized

		report, err := detector.Detect(ctx, normalized, 0)
		if err != nil {
			config.LogError(logger, "UploadWorkflow.go", "StageUpload", "Detect", staged.Index, err)
			return nil, err
		}

		// also collide against earlier rows of the same file
		for _, field := range identityFields {
			value := normalized[field]
			if value == nil || strings.TrimSpace(*value) == "" {
				continue
			}
			key := field + "=" + *value
			if prevRow, seen := batchSeen[key]; seen {
				report.Hits = append(report.Hits, reconcile.DuplicateHit{
					Field:            field,
					Value:            *value,
					ConflictRecordId: 0,
					ConflictExternal: fmt.Sprintf("row %d", prevRow),
				})
			} else {
				batchSeen[key] = staged.Index
			}
		}

		staged.Report = report
		if !report.Empty() {
			summary.Duplicates = append(summary.Duplicates, staged)
		}
		staging.Rows = append(staging.Rows, staged)
		summary.Staged++
	}

	if err := config.SetRedisObject("Upload:"+staging.Id, &staging, uploadTTL()); err != nil {
		config.LogError(logger, "UploadWorkflow.go", "StageUpload", "SetRedisObject", staging.Id, err)
		return nil, err
	}

	return &summary, nil
}

// GetStagedUpload fetches a staged upload for preview and pushes its expiry
// out by a fresh TTL.
func GetStagedUpload(ctx context.Context, uploadId string) (*UploadStaging, error) {
	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, errors.New("tenant id is required")
	}

	var staging UploadStaging
	exists, err := config.GetRedisObject("Upload:"+uploadId, &staging)
	if err != nil {
		return nil, err
	}
	if !exists || staging.TenantId != tenantId {
		return nil, ErrUploadNotFound
	}

	_ = config.RefreshRedisExpiry("Upload:"+uploadId, uploadTTL())
	return &staging, nil
}

// ConfirmUpload commits a staged upload in one all-or-nothing transaction
// under the given duplicate policy. Prompt is not a valid bulk policy; a
// deferred row aborts the whole batch. On success the staging key is removed
// and a single bulk outbox event is enqueued.
func ConfirmUpload(ctx context.Context, uploadId string, rawPolicy string) (*ConfirmResult, error) {
	logger := config.GetLogger()

	policy, err := reconcile.ParsePolicy(rawPolicy)
	if err != nil {
		return nil, err
	}

	staging, err := GetStagedUpload(ctx, uploadId)
	if err != nil {
		return nil, err
	}

	// One confirm per upload id at a time; a concurrent retry would double
	// every row.
	confirmLock, err := utils.ObtainTenantLock(ctx, uploadId, "ConfirmUpload", confirmTimeout())
	if err != nil {
		config.LogError(logger, "UploadWorkflow.go", "ConfirmUpload", "ObtainTenantLock", uploadId, err)
		return nil, err
	}
	defer func() {
		_ = confirmLock.Release(context.Background())
	}()

	ctx, cancel := context.WithTimeout(ctx, confirmTimeout())
	defer cancel()

	// One pinned connection for the advisory lock and the batch transaction;
	// RELEASE_LOCK on any other connection is a silent no-op.
	db := config.GetDB()
	result := ConfirmResult{}
	err = db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		if err := AcquireTenantRecordLock(conn, staging.TenantId); err != nil {
			config.LogError(logger, "UploadWorkflow.go", "ConfirmUpload", "AcquireTenantRecordLock", staging.TenantId, err)
			return err
		}
		defer ReleaseTenantRecordLock(conn, staging.TenantId)

		tx := conn.Begin()
		defer func() {
			if r := recover(); r != nil {
				tx.Rollback()
				panic(r)
			}
		}()

		recordIds := make([]int, 0, len(staging.Rows))
		for _, staged := range staging.Rows {
			rowResult, err := createRecordInTx(ctx, tx, staging.TenantId, staging.Prefix, staged.Fields, policy)
			if err != nil {
				tx.Rollback()
				config.LogError(logger, "UploadWorkflow.go", "ConfirmUpload", "createRecordInTx", staged.Index, err)
				return fmt.Errorf("row %d: %w", staged.Index, err)
			}
			if rowResult.Deferred {
				tx.Rollback()
				return fmt.Errorf("row %d: %w: %s", staged.Index, ErrDuplicateConflict, rowResult.Report.Describe())
			}
			if rowResult.Skipped {
				result.Skipped++
				continue
			}
			result.Created++
			recordIds = append(recordIds, rowResult.Record.ID)
		}

		if result.Created > 0 {
			if err := models.EnqueueRecordEvent(tx, models.RecordEventActionBulk, 0, uploadId, nil, recordIds); err != nil {
				tx.Rollback()
				config.LogError(logger, "UploadWorkflow.go", "ConfirmUpload", "EnqueueRecordEvent", uploadId, err)
				return err
			}
		}

		if err := tx.Commit().Error; err != nil {
			config.LogError(logger, "UploadWorkflow.go", "ConfirmUpload", "Commit", uploadId, err)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	_ = config.RemoveRedisKey("Upload:" + uploadId)
	return &result, nil
}
