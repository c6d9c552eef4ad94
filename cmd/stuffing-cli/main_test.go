package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"stuffinglist/domain"
	"stuffinglist/stuffing"
)

func writeSI(t *testing.T, path string) {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName(f.GetSheetName(0), stuffing.SISheetName); err != nil {
		t.Fatal(err)
	}
	cells := map[string]string{
		"I4": "INVOICE", "J4": "INV-9",
		"E10": "Item", "F10": "QTY CTN", "I10": "ORDER NO",
		"E11": "FQ832/21", "F11": "10", "I11": "SO-9",
	}
	for axis, v := range cells {
		if err := f.SetCellValue(stuffing.SISheetName, axis, v); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCommand(&out)
	root.SetArgs(args)
	root.SetErr(&out)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestImportCommand(t *testing.T) {
	dir := t.TempDir()
	si := filepath.Join(dir, "si.xlsx")
	writeSI(t, si)
	outPath := filepath.Join(dir, "out", stuffing.ExportFileName)
	formOut := filepath.Join(dir, "form.json")

	out, err := run(t, "import", "--si", si, "--out", outPath, "--form-out", formOut)
	if err != nil {
		t.Fatalf("err=%v out=%s", err, out)
	}
	if !strings.Contains(out, "Total Calculated CUFT: 20.80") || !strings.Contains(out, "items=1") {
		t.Fatalf("out=%s", out)
	}
	if _, err := os.Stat(outPath); err != nil {
		t.Fatalf("export missing: %v", err)
	}

	b, err := os.ReadFile(formOut)
	if err != nil {
		t.Fatal(err)
	}
	var form domain.ShipmentForm
	if err := json.Unmarshal(b, &form); err != nil {
		t.Fatal(err)
	}
	if form.InvFlowNo != "INV-9" || form.PoNo != "SO-9" {
		t.Fatalf("form=%+v", form)
	}

	out, err = run(t, "cuft", "--form", formOut)
	if err != nil || strings.TrimSpace(out) != "Total Calculated CUFT: 20.80" {
		t.Fatalf("cuft out=%q err=%v", out, err)
	}
}

func TestImportCommandNeedsInput(t *testing.T) {
	if _, err := run(t, "import"); err == nil {
		t.Fatalf("expected error without input files")
	}
}

func TestImportCommandReportsBadFile(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.xlsx")
	if err := os.WriteFile(bad, []byte("nope"), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := run(t, "import", "--si", bad, "--out", filepath.Join(dir, "o.xlsx"))
	if err == nil || !strings.Contains(out, stuffing.NoticeSIFailed) {
		t.Fatalf("err=%v out=%s", err, out)
	}
}

func TestRunFlushesTelemetryOnFailure(t *testing.T) {
	var out bytes.Buffer
	root := newRootCommand(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"import"})

	flushed := false
	code := execute(root, func(ctx context.Context) error {
		flushed = true
		return errors.New("collector unreachable")
	})
	if code != 1 || !flushed {
		t.Fatalf("code=%d flushed=%v", code, flushed)
	}

	root = newRootCommand(&out)
	root.SetArgs([]string{"cuft"})
	if code := execute(root, nil); code != 0 {
		t.Fatalf("cuft code=%d", code)
	}
}
