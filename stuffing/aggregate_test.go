package stuffing

import (
	"testing"

	"stuffinglist/domain"
)

func itemsWithSO(so ...string) []domain.LineItem {
	out := make([]domain.LineItem, 0, len(so))
	for _, s := range so {
		out = append(out, domain.LineItem{UliPO: s})
	}
	return out
}

func TestShippingOrderAggregateDistinctInOrder(t *testing.T) {
	got, ok := ShippingOrderAggregate(itemsWithSO("A", "B", "", "A", "C"))
	if !ok || got != "A/B/C" {
		t.Fatalf("got=%q ok=%v", got, ok)
	}
}

func TestCustomerPOAggregateExcludesDocNumbers(t *testing.T) {
	items := []domain.LineItem{
		{CustomerPO: " 410185 "},
		{CustomerPO: "Dok No: 12345"},
		{CustomerPO: "DOK NO 7"},
		{CustomerPO: "410185"},
		{CustomerPO: "410186"},
	}
	got, ok := CustomerPOAggregate(items)
	if !ok || got != "410185/410186" {
		t.Fatalf("got=%q ok=%v", got, ok)
	}
	if _, ok := CustomerPOAggregate([]domain.LineItem{{CustomerPO: "dok no 1"}}); ok {
		t.Fatalf("expected empty aggregate")
	}
}

func TestAggregateIdempotent(t *testing.T) {
	form := &domain.ShipmentForm{Items: []domain.LineItem{
		{UliPO: "SO-1", CustomerPO: "P1"},
		{UliPO: "SO-2", CustomerPO: "P2"},
		{UliPO: "SO-1", CustomerPO: "P1"},
	}}
	Aggregate(form)
	po, remark := form.PoNo, form.Remark
	Aggregate(form)
	if form.PoNo != po || form.Remark != remark {
		t.Fatalf("second run changed result: %q/%q vs %q/%q", form.PoNo, form.Remark, po, remark)
	}
	if po != "SO-1/SO-2" || remark != "P1/P2" {
		t.Fatalf("poNo=%q remark=%q", po, remark)
	}
}

func TestAggregateKeepsFieldsWhenEmpty(t *testing.T) {
	form := &domain.ShipmentForm{PoNo: "manual", Remark: "manual", Items: []domain.LineItem{{}}}
	Aggregate(form)
	if form.PoNo != "manual" || form.Remark != "manual" {
		t.Fatalf("fields overwritten: %+v", form)
	}
}
