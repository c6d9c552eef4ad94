package domain

import (
	"strings"

	"github.com/google/uuid"
)

// LineItem is one shipped material line of the stuffing list.
type LineItem struct {
	ID          string `json:"id"`
	MaterialNo  string `json:"materialNo"`
	NameAndSpec string `json:"nameAndSpec"`
	PcsPerCtn   string `json:"pcsPerCtn"`
	TotalCtnQty string `json:"totalCtnQty"`
	// Description holds the raw SI color until reconciliation, then the matched color name.
	Description string `json:"description"`
	CustomerPO  string `json:"customerPo"`
	// UliPO is the factory shipping-order number (SO), the join key against the index file.
	UliPO string `json:"uliPo"`
	Brand string `json:"brand"`
	// SKU is import-only scratch data; it is never exported.
	SKU string `json:"sku,omitempty"`
}

// ShipmentForm is the mutable session document ("Stuffing List").
type ShipmentForm struct {
	InvFlowNo         string     `json:"invFlowNo"`
	PoNo              string     `json:"poNo"`
	Customer          string     `json:"customer"`
	ShippingDate      string     `json:"shippingDate"`
	VesselName        string     `json:"vesselName"`
	ContainerQty      string     `json:"containerQty"`
	ContainerNo       string     `json:"containerNo"`
	DeliveryNoteNo    string     `json:"deliveryNoteNo"`
	Mark              string     `json:"mark"`
	Remark            string     `json:"remark"`
	ContainerSizeInfo string     `json:"containerSizeInfo"`
	Items             []LineItem `json:"items"`
}

// ReferenceRecord is one data row of the index spreadsheet.
type ReferenceRecord struct {
	MaterialNo    string
	Model         string
	ColorRaw      string
	SO            string
	ColorMandarin string
	// ColorKey is the lower-cased, trimmed normalized color (index column P).
	ColorKey string
}

func NewItemID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Clone returns a deep copy; Items is never shared between copies.
func (f *ShipmentForm) Clone() *ShipmentForm {
	if f == nil {
		return nil
	}
	cp := *f
	cp.Items = append([]LineItem(nil), f.Items...)
	return &cp
}

// NewSeedForm returns the default document a session starts with.
func NewSeedForm() *ShipmentForm {
	sample := func(id, materialNo, desc string, qty string) LineItem {
		return LineItem{
			ID:          id,
			MaterialNo:  materialNo,
			NameAndSpec: `FR873/21"`,
			PcsPerCtn:   "1 PCS",
			TotalCtnQty: qty,
			Description: desc,
			CustomerPO:  "410185",
			UliPO:       "YOE-25090040",
			Brand:       "TIMBUK2",
		}
	}
	return &ShipmentForm{
		InvFlowNo:         "INV-E2500619",
		PoNo:              "YOE-25090040/YOE-25090041",
		Customer:          "TIMBUK2 TO USA",
		ContainerQty:      "5*40HQ+1*20GP",
		Remark:            "410185",
		ContainerSizeInfo: `1.1*40HQ(2300")`,
		Items: []LineItem{
			sample("1", "CFR873021U47US11", "U47#暗橄榄 Dark Olive/Moss 1067-70-1268", "156"),
			sample("2", "CFR873021139US11", "139#黑色 Black 1067-70-1310", "782"),
			sample("3", "CFR873021U45US11", "U45#芒果黄 Mango/Marigold 1067-70-1312", "122"),
			{ID: "4"},
			{ID: "5"},
			{ID: "6"},
		},
	}
}

// SetField assigns a header field by its JSON name. Unknown names report false.
func (f *ShipmentForm) SetField(name, value string) bool {
	switch name {
	case "invFlowNo":
		f.InvFlowNo = value
	case "poNo":
		f.PoNo = value
	case "customer":
		f.Customer = value
	case "shippingDate":
		f.ShippingDate = value
	case "vesselName":
		f.VesselName = value
	case "containerQty":
		f.ContainerQty = value
	case "containerNo":
		f.ContainerNo = value
	case "deliveryNoteNo":
		f.DeliveryNoteNo = value
	case "mark":
		f.Mark = value
	case "remark":
		f.Remark = value
	case "containerSizeInfo":
		f.ContainerSizeInfo = value
	default:
		return false
	}
	return true
}

// SetField assigns an editable item field by its JSON name. id and sku are not editable.
func (it *LineItem) SetField(name, value string) bool {
	switch name {
	case "materialNo":
		it.MaterialNo = value
	case "nameAndSpec":
		it.NameAndSpec = value
	case "pcsPerCtn":
		it.PcsPerCtn = value
	case "totalCtnQty":
		it.TotalCtnQty = value
	case "description":
		it.Description = value
	case "customerPo":
		it.CustomerPO = value
	case "uliPo":
		it.UliPO = value
	case "brand":
		it.Brand = value
	default:
		return false
	}
	return true
}
