package model

import (
	"time"
)

// DealStatus is the approval state of a deal-desk record.
type DealStatus string

const (
	DealDraft    DealStatus = "draft"
	DealPending  DealStatus = "pending"
	DealApproved DealStatus = "approved"
	DealRejected DealStatus = "rejected"
)

// DealDeskRecord is the quoting-side sibling of Contract: same BOM
// line shape minus the technical columns, with a tamper hash sealed at
// creation and re-sealed at approval. Editing an approved record
// demotes it back to draft instead of silently overwriting the
// baseline.
type DealDeskRecord struct {
	ID             string         `json:"id"`
	ProjectID      string         `json:"project_id"`
	InquiryClient  string         `json:"inquiry_client"`
	InquiryContact string         `json:"inquiry_contact,omitempty"`
	Status         DealStatus     `json:"status"`
	BOMItems       []*BOMLineItem `json:"bom_items"`
	TotalAmount    float64        `json:"total_amount"`
	TamperHash     string         `json:"tamper_hash,omitempty"`
	// DiffSummary carries tamper findings and advisory conflict
	// deltas against the last approved baseline for the same inquiry.
	DiffSummary  string     `json:"diff_summary,omitempty"`
	SubmittedBy  string     `json:"submitted_by,omitempty"`
	ApprovedBy   string     `json:"approved_by,omitempty"`
	ApprovedAt   *time.Time `json:"approved_at,omitempty"`
	RejectReason string     `json:"reject_reason,omitempty"`
	Version      int        `json:"version"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// InquiryKey identifies the commercial entity a quote belongs to;
// conflict detection compares against the last approved record with
// the same key.
func (d *DealDeskRecord) InquiryKey() string {
	return d.ProjectID + "/" + d.InquiryClient
}

// Clone returns a deep copy, see Contract.Clone.
func (d *DealDeskRecord) Clone() *DealDeskRecord {
	cp := *d
	cp.BOMItems = CloneLines(d.BOMItems)
	if d.ApprovedAt != nil {
		at := *d.ApprovedAt
		cp.ApprovedAt = &at
	}
	return &cp
}

// TotalFromLines recomputes the quote total from sales quantities.
func (d *DealDeskRecord) TotalFromLines() float64 {
	var total float64
	for _, b := range d.BOMItems {
		total += float64(b.SalesQty) * b.UnitPrice
	}
	return total
}
