package stuffing

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"stuffinglist/domain"
)

const (
	ExportSheetName = "Stuffing List"
	ExportFileName  = "Stuffing_List.xlsx"

	companyName  = "PT. UNIVERSAL LUGGAGE INDONESIA"
	formTitle    = "FORM STUFFING LIST\n装  箱  單"
	firstItemRow = 15
	lastPadRow   = 22
	footerRow    = 23
)

var columnWidths = []struct {
	col   string
	width float64
}{
	{"A", 2}, {"B", 25}, {"C", 25}, {"D", 10}, {"E", 10}, {"F", 40}, {"G", 15}, {"H", 15}, {"I", 15},
}

var itemCols = []string{"B", "C", "D", "E", "F", "G", "H", "I"}

type exportStyles struct {
	logo, title        int
	label              int
	valueFilled, value int
	boxed, remark      int
	header             int
	itemFilled, item   int
	plain              int
}

func thinBorder() []excelize.Border {
	return []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
	}
}

func newExportStyles(f *excelize.File) (*exportStyles, error) {
	center := &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true}
	yellow := excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"FFFF00"}}
	white := excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"FFFFFF"}}

	type styleDef struct {
		dst *int
		s   *excelize.Style
	}
	st := &exportStyles{}
	var defs []styleDef
	add := func(dst *int, s *excelize.Style) { defs = append(defs, styleDef{dst, s}) }

	add(&st.logo, &excelize.Style{Font: &excelize.Font{Bold: true, Size: 14, Color: "000000"}, Alignment: center, Border: thinBorder()})
	add(&st.title, &excelize.Style{Font: &excelize.Font{Bold: true, Size: 16}, Alignment: center, Border: thinBorder()})
	add(&st.label, &excelize.Style{Alignment: &excelize.Alignment{Horizontal: "right", Vertical: "center", WrapText: true}, Border: thinBorder()})
	add(&st.valueFilled, &excelize.Style{Font: &excelize.Font{Bold: true}, Alignment: center, Border: thinBorder(), Fill: yellow})
	add(&st.value, &excelize.Style{Font: &excelize.Font{Bold: true}, Alignment: center, Border: thinBorder(), Fill: white})
	add(&st.boxed, &excelize.Style{Alignment: center, Border: thinBorder()})
	add(&st.remark, &excelize.Style{Font: &excelize.Font{Bold: true, Size: 24}, Alignment: center, Border: thinBorder(), Fill: yellow})
	add(&st.header, &excelize.Style{Font: &excelize.Font{Bold: true, Size: 9}, Alignment: center, Border: thinBorder()})
	add(&st.itemFilled, &excelize.Style{Alignment: center, Border: thinBorder(), Fill: yellow})
	add(&st.item, &excelize.Style{Alignment: center, Border: thinBorder()})
	add(&st.plain, &excelize.Style{Border: thinBorder()})

	for _, d := range defs {
		id, err := f.NewStyle(d.s)
		if err != nil {
			return nil, err
		}
		*d.dst = id
	}
	return st, nil
}

// sheetWriter collects the first error so the layout code reads top to bottom.
type sheetWriter struct {
	f     *excelize.File
	sheet string
	err   error
}

func (w *sheetWriter) set(axis string, v interface{}) {
	if w.err == nil {
		w.err = w.f.SetCellValue(w.sheet, axis, v)
	}
}

func (w *sheetWriter) style(from, to string, id int) {
	if w.err == nil {
		w.err = w.f.SetCellStyle(w.sheet, from, to, id)
	}
}

func (w *sheetWriter) merge(from, to string) {
	if w.err == nil {
		w.err = w.f.MergeCell(w.sheet, from, to)
	}
}

func (w *sheetWriter) height(row int, h float64) {
	if w.err == nil {
		w.err = w.f.SetRowHeight(w.sheet, row, h)
	}
}

func at(col string, row int) string { return fmt.Sprintf("%s%d", col, row) }

// BuildStuffingList lays the form out on the paper-template grid: header block in rows
// 1-11, item table header in 12-13, container row 14, items from 15 (padded to row 22),
// then totals, signatures and the document footer.
func BuildStuffingList(form *domain.ShipmentForm) (*excelize.File, error) {
	if form == nil {
		return nil, errors.New("表单为空")
	}
	f := excelize.NewFile()
	def := f.GetSheetName(0)
	if def == "" {
		def = "Sheet1"
	}
	if err := f.SetSheetName(def, ExportSheetName); err != nil {
		_ = f.Close()
		return nil, err
	}
	st, err := newExportStyles(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	w := &sheetWriter{f: f, sheet: ExportSheetName}

	for _, c := range columnWidths {
		if w.err == nil {
			w.err = f.SetColWidth(ExportSheetName, c.col, c.col, c.width)
		}
	}

	w.merge("B1", "D2")
	w.set("B1", companyName)
	w.style("B1", "D2", st.logo)
	w.merge("E1", "I2")
	w.set("E1", formTitle)
	w.style("E1", "I2", st.title)

	info := []struct {
		label string
		value string
	}{
		{"發票流水號 (INV FLOW No)", form.InvFlowNo},
		{"訂單號碼 (PO.NO)", form.PoNo},
		{"客戶 (Customer)", form.Customer},
		{"出貨日期 (Shipping date)", form.ShippingDate},
		{"船名 (Vessel name)", form.VesselName},
		{"櫃數 (Container Qty)", form.ContainerQty},
		{"货 柜 号(Container NO)", form.ContainerNo},
		{"出货单编号 (Delivery note No)", form.DeliveryNoteNo},
		{"嘜頭 (Mark)", form.Mark},
	}
	for i, row := range info {
		r := 3 + i
		w.set(at("B", r), row.label)
		w.style(at("B", r), at("B", r), st.label)
		w.merge(at("C", r), at("D", r))
		w.set(at("C", r), row.value)
		valueStyle := st.value
		if row.value != "" {
			valueStyle = st.valueFilled
		}
		w.style(at("C", r), at("D", r), valueStyle)
	}

	w.merge("E3", "I3")
	w.set("E3", "備註說明\nREMARK")
	w.style("E3", "I3", st.boxed)
	w.merge("E4", "I4")
	w.style("E4", "I4", st.plain)
	w.merge("E5", "I11")
	w.set("E5", form.Remark)
	w.style("E5", "I11", st.remark)

	w.height(12, 20)
	w.height(13, 20)
	headerTop := []string{"料  号", "品名/规格", "每箱数量", "箱数合计", "每箱包含的要点及颜色", "客戶PO", "工廠", "品牌"}
	headerBottom := []string{"Material No", "(Name and spec)", "PCS/CTN", "Total Ctn Qty",
		"main point &color for each ctn\n(务必要写清楚 be detailed)", "Customer PO", "ULI PO", "Brand"}
	for i, col := range itemCols {
		w.set(at(col, 12), headerTop[i])
		w.set(at(col, 13), headerBottom[i])
	}
	for _, col := range []string{"B", "C", "F", "G", "H", "I"} {
		w.merge(at(col, 12), at(col, 13))
	}
	w.style("B12", "I13", st.header)

	w.set("B14", form.ContainerSizeInfo)
	w.style("B14", "B14", st.itemFilled)
	w.style("C14", "I14", st.plain)

	row := firstItemRow
	for _, it := range form.Items {
		vals := []string{it.MaterialNo, it.NameAndSpec, it.PcsPerCtn, it.TotalCtnQty, it.Description, it.CustomerPO, it.UliPO, it.Brand}
		for i, col := range itemCols {
			w.set(at(col, row), vals[i])
		}
		w.style(at("B", row), at("I", row), st.itemFilled)
		row++
	}
	for ; row <= lastPadRow; row++ {
		w.style(at("B", row), at("I", row), st.item)
	}

	// Up to eight items the footer sits on row 23 like the paper form; longer lists push it down.
	foot := footerRow
	if row > foot {
		foot = row
	}
	w.set(at("B", foot), "合   計 TOTAL")
	w.merge(at("B", foot), at("D", foot))
	w.style(at("B", foot), at("D", foot), st.item)
	w.set(at("E", foot), TotalCartons(form.Items))
	w.style(at("E", foot), at("E", foot), st.itemFilled)
	w.style(at("F", foot), at("I", foot), st.plain)

	signatures := [][3]string{
		{"生管主管 (Production control)：", "生管填表 (production fill in)：", "業務確認(Business Unit)："},
		{"資材主管 (Warehouse manage)：", "成品倉 (finished goods warehouse)：", "貨櫃檢驗確認 (Container examine)："},
	}
	for i, sig := range signatures {
		r := foot + 1 + i
		w.merge(at("B", r), at("D", r))
		w.set(at("B", r), sig[0])
		w.merge(at("E", r), at("F", r))
		w.set(at("E", r), sig[1])
		w.merge(at("G", r), at("I", r))
		w.set(at("G", r), sig[2])
	}

	doc := foot + 3
	w.set(at("C", doc), "Usia Penyimpanan : 1 tahun (保存年限：一年)")
	w.merge(at("G", doc), at("H", doc))
	w.set(at("G", doc), "Dok No : Form - PPIC - 03")

	if w.err != nil {
		_ = f.Close()
		return nil, w.err
	}
	return f, nil
}

// WriteStuffingList renders the form as xlsx into dst.
func WriteStuffingList(form *domain.ShipmentForm, dst io.Writer) error {
	f, err := BuildStuffingList(form)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	if _, err := f.WriteTo(dst); err != nil {
		return fmt.Errorf("写入导出文件失败: %w", err)
	}
	return nil
}

// ExportStuffingListFile writes the export to outPath, creating its directory.
func ExportStuffingListFile(form *domain.ShipmentForm, outPath string) error {
	if outPath == "" {
		return errors.New("输出路径为空")
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}
	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("创建导出文件失败: %w", err)
	}
	defer out.Close()
	return WriteStuffingList(form, out)
}
