package stuffing

import (
	"strings"

	"stuffinglist/domain"
	"stuffinglist/sheetio"
)

// Index sheet columns (B, C, F, H, O, P).
const (
	idxColMaterialNo    = 2
	idxColModel         = 3
	idxColColorRaw      = 6
	idxColSO            = 8
	idxColColorMandarin = 15
	idxColColorKey      = 16
)

// LoadReferenceIndex reads every row after the header into reference records, in sheet
// order. Blank rows are skipped; missing cells become "".
func LoadReferenceIndex(g *sheetio.Grid) []domain.ReferenceRecord {
	out := make([]domain.ReferenceRecord, 0, g.RowCount())
	for row := 2; row <= g.RowCount(); row++ {
		if g.RowEmpty(row) {
			continue
		}
		out = append(out, domain.ReferenceRecord{
			MaterialNo:    strings.TrimSpace(g.Cell(row, idxColMaterialNo)),
			Model:         strings.TrimSpace(stripQuotes(g.Cell(row, idxColModel))),
			ColorRaw:      strings.TrimSpace(g.Cell(row, idxColColorRaw)),
			SO:            strings.TrimSpace(g.Cell(row, idxColSO)),
			ColorMandarin: strings.TrimSpace(g.Cell(row, idxColColorMandarin)),
			ColorKey:      strings.ToLower(strings.TrimSpace(g.Cell(row, idxColColorKey))),
		})
	}
	return out
}
