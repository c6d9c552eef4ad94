package stuffing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"stuffinglist/domain"
	"stuffinglist/obs"
	"stuffinglist/sheetio"
)

const (
	// SISheetName carries a trailing space in the shipment-instruction workbooks.
	SISheetName    = "SI "
	IndexSheetName = "Sheet1"
)

var ErrNoInput = errors.New("请至少上传 SI 文件或 Index 文件")

// Generic notices surfaced to the user when a phase is abandoned.
const (
	NoticeSIFailed    = "Error processing SI File. Check format."
	NoticeIndexFailed = "Error processing Index File."
)

// Result of one import run. Form is always set, even when a phase failed: whatever the
// successful phases produced is kept.
type Result struct {
	Form *domain.ShipmentForm

	SIErr    error
	IndexErr error

	ItemsImported  int
	ItemsReplaced  bool
	IndexRecords   int
	Reconciliation ReconcileStats
	IndexSkipped   bool
}

// Notices lists the user-facing failure messages, one per failed phase.
func (r *Result) Notices() []string {
	if r == nil {
		return nil
	}
	var out []string
	if r.SIErr != nil {
		out = append(out, NoticeSIFailed)
	}
	if r.IndexErr != nil {
		out = append(out, NoticeIndexFailed)
	}
	return out
}

// RunAutomation imports the SI workbook into a copy of form, reconciles the items against
// the index workbook, then recomputes the PO/remark aggregates. Either reader may be nil,
// but not both.
//
// The SI file is read completely before the index file is opened. A failure in one phase
// does not undo the other, and aggregation always runs on whatever items are current.
func RunAutomation(ctx context.Context, form *domain.ShipmentForm, si, index io.Reader) (*Result, error) {
	if si == nil && index == nil {
		return nil, ErrNoInput
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if form == nil {
		form = domain.NewSeedForm()
	}
	start := time.Now()
	ctx, span := obs.StartSpan(ctx, "stuffing", "stuffing.RunAutomation",
		attribute.Bool("input.si", si != nil),
		attribute.Bool("input.index", index != nil),
	)
	defer span.End()

	res := &Result{Form: form.Clone()}
	defer func() { obs.RecordImport(start, res.SIErr != nil || res.IndexErr != nil, nil) }()

	if si != nil {
		res.SIErr = runSIPhase(ctx, res, si)
	}

	if index != nil {
		if len(res.Form.Items) == 0 {
			res.IndexSkipped = true
		} else {
			res.IndexErr = runIndexPhase(ctx, res, index)
		}
	}

	Aggregate(res.Form)
	slog.InfoContext(ctx, "import aggregate",
		"phase", "aggregate",
		"items", len(res.Form.Items),
		"poNo", res.Form.PoNo,
		"remark", res.Form.Remark,
	)
	return res, nil
}

func runSIPhase(ctx context.Context, res *Result, r io.Reader) (err error) {
	_, span := obs.StartSpan(ctx, "stuffing", "stuffing.si")
	defer func() {
		if err != nil {
			slog.WarnContext(ctx, "import si phase failed", "phase", "si", "err", err)
		}
		obs.EndSpan(span, err)
	}()

	g, err := readGridSafe(r, SISheetName)
	if err != nil {
		return fmt.Errorf("读取 SI 文件失败: %w", err)
	}
	hdr := ExtractHeader(g)
	hdr.Apply(res.Form)

	items, ok := ExtractItems(g, hdr.Brand)
	if ok {
		res.Form.Items = items
		res.ItemsReplaced = true
		res.ItemsImported = len(items)
	}
	span.SetAttributes(
		attribute.String("si.sheet", g.Sheet),
		attribute.Int("si.items", res.ItemsImported),
	)
	slog.InfoContext(ctx, "import si phase",
		"phase", "si",
		"sheet", g.Sheet,
		"itemTable", ok,
		"items", res.ItemsImported,
	)
	return nil
}

func runIndexPhase(ctx context.Context, res *Result, r io.Reader) (err error) {
	_, span := obs.StartSpan(ctx, "stuffing", "stuffing.index")
	defer func() {
		if err != nil {
			slog.WarnContext(ctx, "import index phase failed", "phase", "index", "err", err)
		}
		obs.EndSpan(span, err)
	}()

	g, err := readGridSafe(r, IndexSheetName)
	if err != nil {
		return fmt.Errorf("读取 Index 文件失败: %w", err)
	}
	records := LoadReferenceIndex(g)
	items, st := Reconcile(res.Form.Items, records)
	res.Form.Items = items
	res.IndexRecords = len(records)
	res.Reconciliation = st
	obs.RecordReconcile(st.Matched, st.Unmatched)

	span.SetAttributes(
		attribute.Int("index.records", len(records)),
		attribute.Int("index.matched", st.Matched),
	)
	slog.InfoContext(ctx, "import index phase",
		"phase", "index",
		"sheet", g.Sheet,
		"records", len(records),
		"matched", st.Matched,
		"unmatched", st.Unmatched,
	)
	return nil
}

// readGridSafe turns a panic inside the workbook parser into a phase error.
func readGridSafe(r io.Reader, sheet string) (g *sheetio.Grid, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return sheetio.ReadGrid(r, sheet)
}
