package sheetio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	ErrNoSheet      = errors.New("工作簿中没有工作表")
	ErrLegacyFormat = errors.New("不支持 .xls 旧格式，请另存为 .xlsx 后再上传")
)

// Grid is a single worksheet held in memory and addressed by 1-based (row, column),
// the way spreadsheet users name cells. Cells outside the used range read as "".
type Grid struct {
	Sheet string
	rows  [][]string
}

func NewGrid(sheet string, rows [][]string) *Grid {
	return &Grid{Sheet: sheet, rows: rows}
}

// Cell returns the formatted text of (row, col). It never fails.
func (g *Grid) Cell(row, col int) string {
	if g == nil || row < 1 || col < 1 || row > len(g.rows) {
		return ""
	}
	r := g.rows[row-1]
	if col > len(r) {
		return ""
	}
	return r[col-1]
}

// RowCount is the last used row number.
func (g *Grid) RowCount() int {
	if g == nil {
		return 0
	}
	return len(g.rows)
}

// Row returns the cells of a row, left to right starting at column 1.
func (g *Grid) Row(row int) []string {
	if g == nil || row < 1 || row > len(g.rows) {
		return nil
	}
	return g.rows[row-1]
}

// RowEmpty reports whether every cell in the row is blank.
func (g *Grid) RowEmpty(row int) bool {
	for _, v := range g.Row(row) {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// ReadGridFile opens path and reads the preferred sheet (or the first one).
func ReadGridFile(path, preferredSheet string) (*Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadGrid(f, preferredSheet)
}

// ReadGrid reads an xlsx/xlsm workbook and materializes one sheet: preferredSheet when a
// sheet with exactly that name exists, otherwise the first sheet in workbook order.
func ReadGrid(r io.Reader, preferredSheet string) (*Grid, error) {
	if r == nil {
		return nil, errors.New("输入为空")
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("读取上传内容失败: %w", err)
	}
	if isOLE2(b) {
		return nil, ErrLegacyFormat
	}
	f, err := excelize.OpenReader(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("解析工作簿失败: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheet := pickSheet(f.GetSheetList(), preferredSheet)
	if sheet == "" {
		return nil, ErrNoSheet
	}

	rowsIter, err := f.Rows(sheet)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rowsIter.Close() }()

	var rows [][]string
	// The iterator yields gap rows as empty slices, so rows[i] is always row i+1.
	for rowsIter.Next() {
		// Raw values: a 1200 carton count formatted "#,##0" must not come back as "1,200".
		cols, err := rowsIter.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, err
		}
		rows = append(rows, cols)
	}

	merges, err := f.GetMergeCells(sheet)
	if err != nil {
		return nil, fmt.Errorf("读取合并单元格失败: %w", err)
	}
	for _, mc := range merges {
		rows = spreadMerge(rows, mc.GetStartAxis(), mc.GetEndAxis())
	}

	lastUse := 0
	for i, cols := range rows {
		if len(cols) > 0 {
			lastUse = i + 1
		}
	}
	return &Grid{Sheet: sheet, rows: rows[:lastUse]}, nil
}

// spreadMerge copies the top-left value of a merged range into every cell it covers, so a
// label merged across B:C is found in either column.
func spreadMerge(rows [][]string, from, to string) [][]string {
	c1, r1, err := excelize.CellNameToCoordinates(from)
	if err != nil {
		return rows
	}
	c2, r2, err := excelize.CellNameToCoordinates(to)
	if err != nil {
		return rows
	}
	if r1 > len(rows) || c1 > len(rows[r1-1]) {
		return rows
	}
	v := rows[r1-1][c1-1]
	if v == "" {
		return rows
	}
	for len(rows) < r2 {
		rows = append(rows, nil)
	}
	for r := r1; r <= r2; r++ {
		for len(rows[r-1]) < c2 {
			rows[r-1] = append(rows[r-1], "")
		}
		for c := c1; c <= c2; c++ {
			rows[r-1][c-1] = v
		}
	}
	return rows
}

func pickSheet(sheets []string, preferred string) string {
	if len(sheets) == 0 {
		return ""
	}
	if preferred != "" {
		for _, s := range sheets {
			if s == preferred {
				return s
			}
		}
	}
	return sheets[0]
}

var ole2Magic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// isOLE2 sniffs legacy BIFF workbooks (.xls), including mislabeled .xlsx uploads.
func isOLE2(b []byte) bool {
	return len(b) >= len(ole2Magic) && bytes.Equal(b[:len(ole2Magic)], ole2Magic)
}
