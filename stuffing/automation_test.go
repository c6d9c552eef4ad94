package stuffing

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"stuffinglist/domain"
)

func indexCells() map[string]string {
	return map[string]string{
		"B1": "Material", "C1": "Model", "H1": "SO", "O1": "Color", "P1": "Key",
		"B2": "MAT-2", "C2": `FR873/25"`, "F2": "Black", "H2": "SO-1", "O2": "黑色", "P2": "Black",
	}
}

func TestRunAutomationEndToEnd(t *testing.T) {
	si := workbookOf(t, SISheetName, siCells())
	idx := workbookOf(t, IndexSheetName, indexCells())

	seed := domain.NewSeedForm()
	res, err := RunAutomation(context.Background(), seed, si, idx)
	if err != nil {
		t.Fatal(err)
	}
	if n := res.Notices(); len(n) != 0 {
		t.Fatalf("notices=%v siErr=%v indexErr=%v", n, res.SIErr, res.IndexErr)
	}
	form := res.Form
	if len(form.Items) != 3 {
		t.Fatalf("items=%d", len(form.Items))
	}
	if form.InvFlowNo != "INV-001" || form.ContainerQty != "1*40HQ" || form.Customer != "ACME TO USA" {
		t.Fatalf("header not applied: %+v", form)
	}

	if got := form.Items[1]; got.MaterialNo != "MAT-2" || got.Description != "黑色 SKU-2" {
		t.Fatalf("item 2 not reconciled: %+v", got)
	}
	if got := form.Items[0]; got.MaterialNo != "" || got.Description != "黑色 Black" {
		t.Fatalf("item 1 changed: %+v", got)
	}
	if got := form.Items[2]; got.MaterialNo != "" || got.Description != "Red" {
		t.Fatalf("item 3 changed: %+v", got)
	}
	if form.PoNo != "SO-1/SO-2" {
		t.Fatalf("poNo=%q", form.PoNo)
	}
	if form.Remark != "PO-1/PO-2" {
		t.Fatalf("remark=%q", form.Remark)
	}
	if res.Reconciliation.Matched != 1 || res.Reconciliation.Unmatched != 2 {
		t.Fatalf("stats=%+v", res.Reconciliation)
	}

	// the caller's form is untouched
	if seed.InvFlowNo != "INV-E2500619" || len(seed.Items) != 6 {
		t.Fatalf("seed mutated: %+v", seed)
	}
}

func TestRunAutomationNoInput(t *testing.T) {
	if _, err := RunAutomation(context.Background(), nil, nil, nil); !errors.Is(err, ErrNoInput) {
		t.Fatalf("err=%v", err)
	}
}

func TestRunAutomationBadSIKeepsIndexPhase(t *testing.T) {
	form := &domain.ShipmentForm{Items: []domain.LineItem{
		{ID: "1", NameAndSpec: `FR873/25"`, Description: "Black", UliPO: "SO-1", CustomerPO: "P"},
	}}
	res, err := RunAutomation(context.Background(), form, strings.NewReader("not a workbook"), workbookOf(t, IndexSheetName, indexCells()))
	if err != nil {
		t.Fatal(err)
	}
	if res.SIErr == nil || res.IndexErr != nil {
		t.Fatalf("siErr=%v indexErr=%v", res.SIErr, res.IndexErr)
	}
	if n := res.Notices(); len(n) != 1 || n[0] != NoticeSIFailed {
		t.Fatalf("notices=%v", n)
	}
	if res.Form.Items[0].MaterialNo != "MAT-2" {
		t.Fatalf("index phase did not run: %+v", res.Form.Items[0])
	}
	if res.Form.PoNo != "SO-1" || res.Form.Remark != "P" {
		t.Fatalf("aggregate did not run: %+v", res.Form)
	}
}

func TestRunAutomationIndexSkippedWithoutItems(t *testing.T) {
	res, err := RunAutomation(context.Background(), &domain.ShipmentForm{PoNo: "keep"}, nil, strings.NewReader("garbage"))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IndexSkipped || res.IndexErr != nil {
		t.Fatalf("skipped=%v err=%v", res.IndexSkipped, res.IndexErr)
	}
	if res.Form.PoNo != "keep" {
		t.Fatalf("poNo=%q", res.Form.PoNo)
	}
}

func TestRunAutomationBadIndex(t *testing.T) {
	res, err := RunAutomation(context.Background(), nil, workbookOf(t, SISheetName, siCells()), strings.NewReader("garbage"))
	if err != nil {
		t.Fatal(err)
	}
	if res.SIErr != nil || res.IndexErr == nil {
		t.Fatalf("siErr=%v indexErr=%v", res.SIErr, res.IndexErr)
	}
	if n := res.Notices(); len(n) != 1 || n[0] != NoticeIndexFailed {
		t.Fatalf("notices=%v", n)
	}
	if len(res.Form.Items) != 3 {
		t.Fatalf("si result lost: %d items", len(res.Form.Items))
	}
}

// An SI sheet as exported from accounting tools: numeric carton counts with a thousands
// format and a CONTAINER label merged across B:C.
func TestRunAutomationFormattedNumbersAndMergedLabels(t *testing.T) {
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), SISheetName); err != nil {
		t.Fatal(err)
	}
	cells := map[string]interface{}{
		"B3": "CONTAINER", "E3": "1*40HQ",
		"E10": "Item", "F10": "QTY CTN", "I10": "ORDER NO",
		"E11": "FQ832/21", "F11": 1200, "I11": "SO-1",
	}
	for axis, v := range cells {
		if err := f.SetCellValue(SISheetName, axis, v); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.MergeCell(SISheetName, "B3", "C3"); err != nil {
		t.Fatal(err)
	}
	thousands, err := f.NewStyle(&excelize.Style{NumFmt: 3})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.SetCellStyle(SISheetName, "F11", "F11", thousands); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()

	res, err := RunAutomation(context.Background(), domain.NewSeedForm(), &buf, nil)
	if err != nil || res.SIErr != nil {
		t.Fatalf("err=%v siErr=%v", err, res.SIErr)
	}
	if res.Form.ContainerQty != "1*40HQ" {
		t.Fatalf("merged CONTAINER label missed, containerQty=%q", res.Form.ContainerQty)
	}
	if got := res.Form.Items[0].TotalCtnQty; got != "1200" {
		t.Fatalf("totalCtnQty=%q", got)
	}
	if n := TotalCartons(res.Form.Items); n != 1200 {
		t.Fatalf("TotalCartons=%d", n)
	}
	if msg, _ := CUFTReport(res.Form.Items); msg != "Total Calculated CUFT: 2496.00" {
		t.Fatalf("cuft=%q", msg)
	}
}
