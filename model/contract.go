package model

import (
	"time"
)

// Stage is the position of a contract in the approval pipeline.
// A contract only moves forward through the fixed sequence, except for
// the single-step VP rejection (vp_approval -> sales_pricing).
type Stage string

const (
	StageSalesInit    Stage = "sales_init"    // sales rep drafts the BOM
	StageTechReview   Stage = "tech_review"   // tech sets tech_qty, flags over-allocation
	StageSalesPricing Stage = "sales_pricing" // sales sets final_qty/unit_price + terms
	StageVPApproval   Stage = "vp_approval"   // executive approve/reject
	StageApproved     Stage = "approved"      // final, awaiting dispatch
	StageCommission   Stage = "commission"    // terminal, commission settlement
)

// StageOrder returns the position of a stage in the pipeline, starting
// at 1. Unknown stages return 0.
func StageOrder(s Stage) int {
	switch s {
	case StageSalesInit:
		return 1
	case StageTechReview:
		return 2
	case StageSalesPricing:
		return 3
	case StageVPApproval:
		return 4
	case StageApproved:
		return 5
	case StageCommission:
		return 6
	}
	return 0
}

// Role constants. Roles are resolved by the auth layer; the pipeline
// only consumes the resulting string.
const (
	RoleSales   = "sales"
	RoleTech    = "tech"
	RoleVP      = "vp"
	RoleFinance = "finance"
	RoleAdmin   = "admin"
)

// Commission formula selectors (per contract, not per line).
const (
	FormulaMargin = "margin" // (unit_price - base_price) * final_qty * ratio
	FormulaGross  = "gross"  // unit_price * final_qty * ratio
)

// DefaultCommissionRatio is applied to a line when finance does not
// supply one at settlement.
const DefaultCommissionRatio = 0.10

// BOMLineItem is one line of a contract's bill of materials. The four
// quantity columns record successive narrowing by different actors;
// AIExtractedQty is the audit baseline and is never edited after
// creation.
type BOMLineItem struct {
	ID              string  `json:"id"`
	ProductModel    string  `json:"product_model"`
	AIExtractedQty  int     `json:"ai_extracted_qty"`
	SalesQty        int     `json:"sales_qty"`
	TechQty         int     `json:"tech_qty"`
	FinalQty        int     `json:"final_qty"`
	UnitPrice       float64 `json:"unit_price"`
	BasePrice       float64 `json:"base_price"`
	CommissionRatio float64 `json:"commission_ratio"`
	OverallocNote   string  `json:"overalloc_note,omitempty"`
	Remark          string  `json:"remark,omitempty"`
}

// Overallocated reports whether tech required more than sales budgeted.
func (b *BOMLineItem) Overallocated() bool {
	return b.TechQty > b.SalesQty
}

// Subtotal returns the display subtotal for the line. Only the value
// computed from FinalQty is authoritative for financial totals; before
// pricing it falls back to the best-known quantity.
func (b *BOMLineItem) Subtotal(priced bool) float64 {
	if priced {
		return float64(b.FinalQty) * b.UnitPrice
	}
	qty := b.SalesQty
	if b.TechQty > 0 {
		qty = b.TechQty
	}
	return float64(qty) * b.UnitPrice
}

// CommercialTerms is filled in at sales_pricing. The four payment
// ratios must sum to exactly 100.
type CommercialTerms struct {
	PayMethod       string `json:"pay_method"`
	DeliveryTime    string `json:"delivery_time"`
	WarrantyPeriod  string `json:"warranty_period"`
	RatioAdvance    int    `json:"ratio_advance"`
	RatioDelivery   int    `json:"ratio_delivery"`
	RatioAccept     int    `json:"ratio_accept"`
	RatioWarranty   int    `json:"ratio_warranty"`
	DeliveryAddress string `json:"delivery_address"`
	ReceiverContact string `json:"receiver_contact"`
}

// RatioSum returns the sum of the four payment ratios.
func (t *CommercialTerms) RatioSum() int {
	return t.RatioAdvance + t.RatioDelivery + t.RatioAccept + t.RatioWarranty
}

// CommissionTerms records the settlement inputs and result.
type CommissionTerms struct {
	Formula         string  `json:"formula,omitempty"`
	FreightCost     float64 `json:"freight_cost"`
	TotalCommission float64 `json:"total_commission"`
}

// Contract is the aggregate root of the approval pipeline. It is never
// hard-deleted; a VP rejection moves it one stage back for correction.
type Contract struct {
	ID         string          `json:"id"`
	ProjectID  string          `json:"project_id"`
	Stage      Stage           `json:"stage"`
	BOMItems   []*BOMLineItem  `json:"bom_items"`
	Terms      CommercialTerms `json:"terms"`
	Commission CommissionTerms `json:"commission"`
	// CommissionWarning surfaces a raw negative settlement result;
	// the persisted total is floored at zero.
	CommissionWarning string `json:"commission_warning,omitempty"`
	// BOMSnapshotHash is empty until the first submission boundary.
	BOMSnapshotHash string    `json:"bom_snapshot_hash,omitempty"`
	Version         int       `json:"version"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Priced reports whether the contract has passed sales_pricing, i.e.
// FinalQty/UnitPrice are authoritative.
func (c *Contract) Priced() bool {
	return StageOrder(c.Stage) >= StageOrder(StageVPApproval)
}

// FindLine returns the BOM line with the given id, or nil.
func (c *Contract) FindLine(id string) *BOMLineItem {
	for _, b := range c.BOMItems {
		if b.ID == id {
			return b
		}
	}
	return nil
}

// Clone returns a deep copy. Transitions mutate a clone so that a
// rejected transition leaves the persisted aggregate untouched.
func (c *Contract) Clone() *Contract {
	cp := *c
	cp.BOMItems = CloneLines(c.BOMItems)
	return &cp
}

// CloneLines deep-copies a BOM line list.
func CloneLines(items []*BOMLineItem) []*BOMLineItem {
	out := make([]*BOMLineItem, len(items))
	for i, b := range items {
		line := *b
		out[i] = &line
	}
	return out
}
