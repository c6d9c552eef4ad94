package stuffing

import (
	"bytes"
	"testing"

	"github.com/xuri/excelize/v2"

	"stuffinglist/sheetio"
)

// gridOf builds an in-memory grid from A1-style cell values.
func gridOf(t *testing.T, cells map[string]string) *sheetio.Grid {
	t.Helper()
	var rows [][]string
	for axis, v := range cells {
		col, row, err := excelize.CellNameToCoordinates(axis)
		if err != nil {
			t.Fatal(err)
		}
		for len(rows) < row {
			rows = append(rows, nil)
		}
		for len(rows[row-1]) < col {
			rows[row-1] = append(rows[row-1], "")
		}
		rows[row-1][col-1] = v
	}
	return sheetio.NewGrid("test", rows)
}

// workbookOf writes a single-sheet xlsx into memory.
func workbookOf(t *testing.T, sheet string, cells map[string]string) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		t.Fatal(err)
	}
	for axis, v := range cells {
		if err := f.SetCellValue(sheet, axis, v); err != nil {
			t.Fatal(err)
		}
	}
	buf := &bytes.Buffer{}
	if _, err := f.WriteTo(buf); err != nil {
		t.Fatal(err)
	}
	return buf
}

// siCells is a marker-complete SI sheet with three item rows under the "Item" header.
func siCells() map[string]string {
	return map[string]string{
		"C3": "CONTAINER", "E3": "1*40HQ",
		"I4": "INVOICE", "J4": "INV-001",
		"C5": " SHIPPING MARK ", "E5": "ACME",
		"I6": "SHIP TO", "J6": "USA",

		"E10": "Item", "F10": "QTY CTN", "G10": "COLOR", "H10": "PO", "I10": "ORDER NO", "J10": "SKU",

		"E11": `FR873/21"`, "F11": "10", "G11": "黑色 Black", "H11": "PO-1", "I11": "SO-1",
		"E12": `FR873/25"`, "F12": "5", "G12": "139#黑色 Black 1067", "H12": "PO-2", "I12": "SO-1", "J12": "SKU-2",
		"E13": "FQ832/21", "F13": "abc", "G13": "Red", "H13": "Dok No: 1", "I13": "SO-2",
	}
}
