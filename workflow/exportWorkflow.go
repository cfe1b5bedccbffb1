package workflow

import (
	"bytes"
	"context"

	"bitbucket.org/multycomm/collection_backend/config"
	"bitbucket.org/multycomm/collection_backend/models"
	"bitbucket.org/multycomm/collection_backend/reconcile"
	"github.com/xuri/excelize/v2"
)

// ExportRecords writes the records visible to the actor (after role scoping
// and the given filter) into an .xlsx workbook. Column order follows the
// field registry so an export can be re-imported through StageUpload.
func ExportRecords(ctx context.Context, filter models.RecordFilter) (*bytes.Buffer, error) {
	logger := config.GetLogger()

	records, err := models.GetCustomerRecords(ctx, filter)
	if err != nil {
		return nil, err
	}

	rules := reconcile.DefaultRules()
	fields := reconcile.TrackedFields(rules)

	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	cell, _ := excelize.CoordinatesToCellName(1, 1)
	if err := f.SetSheetRow(sheet, cell, &[]interface{}{"unique_id"}); err != nil {
		return nil, err
	}
	for i, field := range fields {
		cell, _ := excelize.CoordinatesToCellName(i+2, 1)
		if err := f.SetCellValue(sheet, cell, field); err != nil {
			return nil, err
		}
	}

	for rowIdx, record := range records {
		snapshot := record.Snapshot()
		cell, _ := excelize.CoordinatesToCellName(1, rowIdx+2)
		if err := f.SetCellValue(sheet, cell, record.ExternalId); err != nil {
			return nil, err
		}
		for colIdx, field := range fields {
			value := snapshot[field]
			if value == nil {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(colIdx+2, rowIdx+2)
			if err := f.SetCellValue(sheet, cell, *value); err != nil {
				return nil, err
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		config.LogError(logger, "workflow", "ExportRecords", "write workbook", nil, err)
		return nil, err
	}
	return buf, nil
}
