package workflow

import (
	"bytes"
	"testing"

	"github.com/xuri/excelize/v2"
)

func buildWorkbook(t *testing.T, rows [][]string) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for rowIdx, row := range rows {
		for colIdx, cell := range row {
			name, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+1)
			if err != nil {
				t.Fatalf("CoordinatesToCellName: %v", err)
			}
			if err := f.SetCellValue(sheet, name, cell); err != nil {
				t.Fatalf("SetCellValue: %v", err)
			}
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}
	return buf
}

func TestParseUploadWorkbook_HeaderMapping(t *testing.T) {
	buf := buildWorkbook(t, [][]string{
		{"Name", "Mobile", "Loan Card No", "Unknown Column", "Comment"},
		{"Asha Rao", "9876543210", "LC-1001", "ignored", "call back tomorrow"},
		{"Vikram Shah", "9123456789", "", "ignored", ""},
	})

	rows, err := ParseUploadWorkbook(buf)
	if err != nil {
		t.Fatalf("ParseUploadWorkbook: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 data rows, got %d", len(rows))
	}

	first := rows[0]
	if first["name"] != "Asha Rao" {
		t.Fatalf("name = %q, want Asha Rao", first["name"])
	}
	if first["loan_card_no"] != "LC-1001" {
		t.Fatalf("loan_card_no = %q, want LC-1001", first["loan_card_no"])
	}
	if _, ok := first["unknown_column"]; ok {
		t.Fatalf("unmapped column leaked into row: %v", first)
	}

	// empty cells are left out entirely, not staged as empty strings
	second := rows[1]
	if _, ok := second["loan_card_no"]; ok {
		t.Fatalf("empty cell should be absent, got %v", second)
	}
}

func TestParseUploadWorkbook_NoDataRows(t *testing.T) {
	buf := buildWorkbook(t, [][]string{{"Name", "Mobile"}})
	if _, err := ParseUploadWorkbook(buf); err == nil {
		t.Fatal("expected error for header-only workbook")
	}
}

func TestNormalizeHeader(t *testing.T) {
	cases := map[string]string{
		"Name":           "name",
		" Loan Card No ": "loan_card_no",
		"REF MOBILE":     "ref_mobile",
		"scheduled_at":   "scheduled_at",
	}
	for in, want := range cases {
		if got := normalizeHeader(in); got != want {
			t.Fatalf("normalizeHeader(%q) = %q, want %q", in, got, want)
		}
	}
}
