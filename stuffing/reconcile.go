package stuffing

import (
	"strings"

	"stuffinglist/domain"
)

type preparedRecord struct {
	rec      *domain.ReferenceRecord
	model    string
	colorKey string // whitespace removed
}

// Reconciler matches draft items against index records. Record order is significant:
// the first record satisfying every predicate wins, later ones are never considered.
type Reconciler struct {
	records []preparedRecord
}

func NewReconciler(records []domain.ReferenceRecord) *Reconciler {
	prepared := make([]preparedRecord, 0, len(records))
	for i := range records {
		r := &records[i]
		prepared = append(prepared, preparedRecord{
			rec:      r,
			model:    modelKey(r.Model),
			colorKey: removeSpaces(r.ColorKey),
		})
	}
	return &Reconciler{records: prepared}
}

// Match returns the first record whose SO equals the item's SO, whose model key equals the
// item's model key, and whose non-empty color key is contained in the item's color text.
func (rc *Reconciler) Match(item domain.LineItem) (*domain.ReferenceRecord, bool) {
	if rc == nil {
		return nil, false
	}
	so := strings.TrimSpace(item.UliPO)
	model := modelKey(item.NameAndSpec)
	color := removeSpaces(strings.ToLower(strings.TrimSpace(item.Description)))

	for _, p := range rc.records {
		if p.rec.SO != so || p.model != model {
			continue
		}
		if p.colorKey == "" || !strings.Contains(color, p.colorKey) {
			continue
		}
		return p.rec, true
	}
	return nil, false
}

// Apply returns the item enriched from rec: description becomes the localized color name
// (followed by the SKU when there is one) and the material number is copied.
func Apply(item domain.LineItem, rec *domain.ReferenceRecord) domain.LineItem {
	if rec == nil {
		return item
	}
	desc := rec.ColorMandarin
	if item.SKU != "" {
		desc = rec.ColorMandarin + " " + item.SKU
	}
	item.Description = desc
	item.MaterialNo = rec.MaterialNo
	return item
}

// ReconcileStats counts outcomes of one reconciliation pass.
type ReconcileStats struct {
	Matched   int `json:"matched"`
	Unmatched int `json:"unmatched"`
}

// Reconcile enriches every item independently. Unmatched items are returned unchanged.
func Reconcile(items []domain.LineItem, records []domain.ReferenceRecord) ([]domain.LineItem, ReconcileStats) {
	rc := NewReconciler(records)
	out := make([]domain.LineItem, len(items))
	var st ReconcileStats
	for i, it := range items {
		if rec, ok := rc.Match(it); ok {
			out[i] = Apply(it, rec)
			st.Matched++
			continue
		}
		out[i] = it
		st.Unmatched++
	}
	return out, st
}
