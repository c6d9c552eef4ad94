package stuffing

import (
	"strings"

	"stuffinglist/domain"
)

const (
	aggregateSep     = "/"
	excludedPOMarker = "dok no"
)

// distinctJoin keeps first-seen order.
func distinctJoin(values []string) string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return strings.Join(out, aggregateSep)
}

// ShippingOrderAggregate joins the distinct non-empty SO numbers; ok is false when none.
func ShippingOrderAggregate(items []domain.LineItem) (string, bool) {
	vals := make([]string, 0, len(items))
	for _, it := range items {
		if it.UliPO != "" {
			vals = append(vals, it.UliPO)
		}
	}
	if len(vals) == 0 {
		return "", false
	}
	return distinctJoin(vals), true
}

// CustomerPOAggregate joins the distinct trimmed customer POs, skipping document-number
// cells ("Dok No ...") that leak into the PO column of some SI sheets.
func CustomerPOAggregate(items []domain.LineItem) (string, bool) {
	vals := make([]string, 0, len(items))
	for _, it := range items {
		v := strings.TrimSpace(it.CustomerPO)
		if v == "" || strings.Contains(strings.ToLower(v), excludedPOMarker) {
			continue
		}
		vals = append(vals, v)
	}
	if len(vals) == 0 {
		return "", false
	}
	return distinctJoin(vals), true
}

// Aggregate recomputes poNo and remark from the current items. Each field is left alone
// when its aggregate is empty. Running it twice gives the same result.
func Aggregate(form *domain.ShipmentForm) {
	if form == nil {
		return
	}
	if so, ok := ShippingOrderAggregate(form.Items); ok {
		form.PoNo = so
	}
	if po, ok := CustomerPOAggregate(form.Items); ok {
		form.Remark = po
	}
}
