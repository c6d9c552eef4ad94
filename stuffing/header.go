package stuffing

import (
	"strings"

	"stuffinglist/domain"
	"stuffinglist/sheetio"
)

// SI marker cells. Labels sit in column C (3) or I (9); values one/two columns to the right.
const (
	markerContainer    = "CONTAINER"
	markerInvoice      = "INVOICE"
	markerShippingMark = "SHIPPING MARK"
	markerShipTo       = "SHIP TO"

	colLeftLabel  = 3
	colLeftValue  = 5
	colRightLabel = 9
	colRightValue = 10
)

// SIHeader is what the header scan captured from the SI sheet.
type SIHeader struct {
	ContainerQty    string
	HasContainerQty bool
	InvFlowNo       string
	HasInvFlowNo    bool
	Brand           string
	Destination     string
}

// ExtractHeader scans every row once for marker cells. A marker seen more than once keeps
// the last value. Missing markers are not an error.
func ExtractHeader(g *sheetio.Grid) SIHeader {
	var h SIHeader
	for row := 1; row <= g.RowCount(); row++ {
		left := strings.TrimSpace(g.Cell(row, colLeftLabel))
		right := strings.TrimSpace(g.Cell(row, colRightLabel))

		if left == markerContainer {
			h.ContainerQty = g.Cell(row, colLeftValue)
			h.HasContainerQty = true
		}
		if right == markerInvoice {
			h.InvFlowNo = g.Cell(row, colRightValue)
			h.HasInvFlowNo = true
		}
		if left == markerShippingMark {
			h.Brand = g.Cell(row, colLeftValue)
		}
		if right == markerShipTo {
			h.Destination = g.Cell(row, colRightValue)
		}
	}
	return h
}

// Customer renders "{brand} TO {destination}"; ok is false when both sides are empty.
func (h SIHeader) Customer() (string, bool) {
	if h.Brand == "" && h.Destination == "" {
		return "", false
	}
	return h.Brand + " TO " + h.Destination, true
}

// Apply writes the captured header fields into the form, leaving absent ones untouched.
func (h SIHeader) Apply(form *domain.ShipmentForm) {
	if form == nil {
		return
	}
	if h.HasContainerQty {
		form.ContainerQty = h.ContainerQty
	}
	if h.HasInvFlowNo {
		form.InvFlowNo = h.InvFlowNo
	}
	if c, ok := h.Customer(); ok {
		form.Customer = c
	}
}
