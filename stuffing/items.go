package stuffing

import (
	"strings"

	"stuffinglist/domain"
	"stuffinglist/sheetio"
)

// SI item table column names, matched exactly (case-sensitive) against the header row.
const (
	ColItem           = "Item"
	ColQtyCtn         = "QTY CTN"
	ColColor          = "COLOR"
	ColPO             = "PO"
	ColOrderNo        = "ORDER NO"
	ColSKU            = "SKU"
	ColProductVariant = "PRODUCT_VARIANT"

	itemMarkerCol  = 5
	defaultPcsText = "1 PCS"
)

// FindItemHeaderRow returns the last row whose column E is exactly "Item", or 0.
func FindItemHeaderRow(g *sheetio.Grid) int {
	header := 0
	for row := 1; row <= g.RowCount(); row++ {
		if g.Cell(row, itemMarkerCol) == ColItem {
			header = row
		}
	}
	return header
}

// HeaderColumns maps header cell text to its column. Scanning left to right, a duplicated
// name keeps its rightmost column.
func HeaderColumns(g *sheetio.Grid, row int) map[string]int {
	cols := make(map[string]int)
	for i, v := range g.Row(row) {
		if v == "" {
			continue
		}
		cols[v] = i + 1
	}
	return cols
}

// ExtractItems reads draft line items below the "Item" header row. ok is false when the
// sheet has no such row; callers then keep their existing item list.
//
// Reading stops at the first row whose Item cell is blank, so a blank row inside the table
// truncates the rest. That matches how SI sheets are laid out and is intentionally kept.
func ExtractItems(g *sheetio.Grid, brand string) (items []domain.LineItem, ok bool) {
	headerRow := FindItemHeaderRow(g)
	if headerRow == 0 {
		return nil, false
	}
	cols := HeaderColumns(g, headerRow)
	cell := func(row int, name string) string {
		c, found := cols[name]
		if !found {
			return ""
		}
		return g.Cell(row, c)
	}

	items = make([]domain.LineItem, 0)
	for row := headerRow + 1; ; row++ {
		name := cell(row, ColItem)
		if strings.TrimSpace(name) == "" {
			break
		}
		sku := cell(row, ColSKU)
		if sku == "" {
			sku = cell(row, ColProductVariant)
		}
		items = append(items, domain.LineItem{
			ID:          domain.NewItemID(),
			NameAndSpec: name,
			PcsPerCtn:   defaultPcsText,
			TotalCtnQty: cell(row, ColQtyCtn),
			Description: cell(row, ColColor),
			CustomerPO:  cell(row, ColPO),
			UliPO:       cell(row, ColOrderNo),
			Brand:       brand,
			SKU:         strings.TrimSpace(sku),
		})
	}
	return items, true
}
