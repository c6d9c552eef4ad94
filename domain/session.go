package domain

import "time"

// Operation classes gated by a per-session busy flag.
type Operation string

const (
	OperationImport Operation = "import"
	OperationExport Operation = "export"
	OperationReset  Operation = "reset"
)

type Session struct {
	ID        string        `json:"sessionId"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
	Form      *ShipmentForm `json:"form"`

	// ExportOSSKey is the last archived export (bucket is configured separately).
	ExportOSSKey string `json:"-"`
}

// ActivityEntry is one journal line for a session.
type ActivityEntry struct {
	ID     string    `json:"id"`
	Op     Operation `json:"op"`
	At     time.Time `json:"at"`
	Detail string    `json:"detail,omitempty"`
}
