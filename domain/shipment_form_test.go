package domain

import "testing"

func TestNewSeedForm(t *testing.T) {
	f := NewSeedForm()
	if f.InvFlowNo != "INV-E2500619" {
		t.Fatalf("InvFlowNo=%q", f.InvFlowNo)
	}
	if len(f.Items) != 6 {
		t.Fatalf("len(Items)=%d want=6", len(f.Items))
	}
	wantQty := []string{"156", "782", "122", "", "", ""}
	for i, it := range f.Items {
		if it.TotalCtnQty != wantQty[i] {
			t.Fatalf("item %d qty=%q want=%q", i, it.TotalCtnQty, wantQty[i])
		}
	}
}

func TestCloneDetachesItems(t *testing.T) {
	f := NewSeedForm()
	cp := f.Clone()
	cp.Items[0].MaterialNo = "changed"
	cp.Customer = "other"
	if f.Items[0].MaterialNo == "changed" || f.Customer == "other" {
		t.Fatalf("clone shares state with original")
	}
	var nilForm *ShipmentForm
	if nilForm.Clone() != nil {
		t.Fatalf("nil clone should be nil")
	}
}

func TestSetField(t *testing.T) {
	f := &ShipmentForm{}
	if !f.SetField("vesselName", "EVER GIVEN") || f.VesselName != "EVER GIVEN" {
		t.Fatalf("vesselName not set: %q", f.VesselName)
	}
	if f.SetField("items", "x") {
		t.Fatalf("items must not be settable as a field")
	}

	it := &LineItem{}
	if !it.SetField("uliPo", "SO-1") || it.UliPO != "SO-1" {
		t.Fatalf("uliPo not set: %q", it.UliPO)
	}
	if it.SetField("sku", "X") || it.SetField("id", "9") {
		t.Fatalf("sku/id must not be editable")
	}
}

func TestNewItemID(t *testing.T) {
	a, b := NewItemID(), NewItemID()
	if len(a) != 12 || a == b {
		t.Fatalf("ids %q %q", a, b)
	}
}
