package service

import (
	"context"
	"fmt"
	"time"

	"github.com/AnTengye/dealpipe/backend/model"
	"github.com/AnTengye/dealpipe/backend/pkg/logger"
	"github.com/google/uuid"
)

// DealDeskEngine runs the quoting approval variant of the pipeline:
// draft -> pending -> approved/rejected, with a tamper hash sealed at
// creation and approval, and advisory conflict detection against the
// last approved baseline for the same inquiry.
type DealDeskEngine struct {
	store *DealDeskStore
}

func NewDealDeskEngine(store *DealDeskStore) *DealDeskEngine {
	return &DealDeskEngine{store: store}
}

// CreateDealRequest starts a quote in draft.
type CreateDealRequest struct {
	ProjectID      string              `json:"project_id" binding:"required"`
	InquiryClient  string              `json:"inquiry_client" binding:"required"`
	InquiryContact string              `json:"inquiry_contact"`
	BOMItems       []CreateLineRequest `json:"bom_items" binding:"required"`
}

// UpdateBOMRequest replaces the draft BOM wholesale.
type UpdateBOMRequest struct {
	ExpectedVersion int                 `json:"expected_version"`
	BOMItems        []CreateLineRequest `json:"bom_items" binding:"required"`
}

// VerifyRequest carries a client-held copy of the BOM to check against
// the stored tamper hash.
type VerifyRequest struct {
	BOMItems []CreateLineRequest `json:"bom_items" binding:"required"`
}

// VerifyResponse is the integrity check result.
type VerifyResponse struct {
	Valid       bool   `json:"valid"`
	DiffSummary string `json:"diff_summary,omitempty"`
}

// Create stores a draft quote and seals its tamper hash.
func (e *DealDeskEngine) Create(ctx context.Context, actor Actor, req *CreateDealRequest) (*model.DealDeskRecord, error) {
	if err := Authorize(actor, model.RoleSales); err != nil {
		return nil, err
	}
	if len(req.BOMItems) == 0 {
		return nil, &model.ValidationError{Msg: "BOM is empty, at least one line is required"}
	}

	now := time.Now()
	deal := &model.DealDeskRecord{
		ID:             uuid.New().String(),
		ProjectID:      req.ProjectID,
		InquiryClient:  req.InquiryClient,
		InquiryContact: req.InquiryContact,
		Status:         model.DealDraft,
		SubmittedBy:    actor.Username,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	deal.BOMItems = linesFromInput(req.BOMItems)
	deal.TotalAmount = deal.TotalFromLines()
	deal.TamperHash = ComputeQuoteHash(deal.BOMItems)
	e.store.Save(deal)

	logger.Info(ctx, "deal-desk record created",
		"deal_id", deal.ID,
		"project_id", deal.ProjectID,
		"client", deal.InquiryClient,
	)
	return e.store.Get(deal.ID), nil
}

// Get returns the full record.
func (e *DealDeskEngine) Get(id string) (*model.DealDeskRecord, error) {
	d := e.store.Get(id)
	if d == nil {
		return nil, &model.NotFoundError{Kind: "deal-desk record", ID: id}
	}
	return d, nil
}

// List returns all records.
func (e *DealDeskEngine) List() []*model.DealDeskRecord {
	return e.store.List()
}

// UpdateBOM replaces the BOM of a draft or rejected quote. A pending
// quote is locked. Editing an approved quote is allowed but demotes it
// back to draft with the demotion recorded in the diff summary, so the
// green light is never silently kept.
func (e *DealDeskEngine) UpdateBOM(ctx context.Context, actor Actor, dealID string, req *UpdateBOMRequest) (*model.DealDeskRecord, error) {
	if err := Authorize(actor, model.RoleSales); err != nil {
		return nil, err
	}
	if len(req.BOMItems) == 0 {
		return nil, &model.ValidationError{Msg: "BOM is empty, at least one line is required"}
	}
	return e.store.Update(dealID, func(d *model.DealDeskRecord) error {
		if req.ExpectedVersion > 0 && req.ExpectedVersion != d.Version {
			return &model.StateConflictError{
				Expected: fmt.Sprintf("version %d", req.ExpectedVersion),
				Actual:   fmt.Sprintf("version %d", d.Version),
			}
		}
		switch d.Status {
		case model.DealPending:
			return &model.StateConflictError{Expected: "draft or rejected", Actual: string(d.Status)}
		case model.DealApproved:
			d.Status = model.DealDraft
			d.DiffSummary = "approved quote was edited and has been demoted to draft for re-approval"
			d.ApprovedAt = nil
			d.ApprovedBy = ""
			logger.Warn(ctx, "approved quote edited, demoted to draft",
				"deal_id", d.ID, "actor", actor.Username)
		}

		d.BOMItems = linesFromInput(req.BOMItems)
		d.TotalAmount = d.TotalFromLines()
		d.TamperHash = ComputeQuoteHash(d.BOMItems)
		return nil
	})
}

// Submit moves draft/rejected -> pending. The stored tamper hash is
// verified first; a mismatch records the diff, demotes the record to
// draft and fails with an IntegrityError. Divergence from the last
// approved quote for the same inquiry is recorded as an advisory diff
// summary for the approver; it never blocks the submission.
func (e *DealDeskEngine) Submit(ctx context.Context, actor Actor, dealID string, expectedVersion int) (*model.DealDeskRecord, error) {
	if err := Authorize(actor, model.RoleSales); err != nil {
		return nil, err
	}

	var integrityErr *model.IntegrityError
	updated, err := e.store.Update(dealID, func(d *model.DealDeskRecord) error {
		if expectedVersion > 0 && expectedVersion != d.Version {
			return &model.StateConflictError{
				Expected: fmt.Sprintf("version %d", expectedVersion),
				Actual:   fmt.Sprintf("version %d", d.Version),
			}
		}
		if d.Status != model.DealDraft && d.Status != model.DealRejected {
			return &model.StateConflictError{Expected: "draft or rejected", Actual: string(d.Status)}
		}
		if len(d.BOMItems) == 0 {
			return &model.ValidationError{Msg: "BOM is empty, cannot submit for approval"}
		}

		if d.TamperHash != "" {
			if ok, summary := VerifyQuoteHash(d.BOMItems, d.TamperHash); !ok {
				// Record the finding and demote; the mutation is kept
				// even though the submission itself fails.
				d.DiffSummary = summary
				d.Status = model.DealDraft
				integrityErr = &model.IntegrityError{Summary: summary}
				return nil
			}
		}

		d.DiffSummary = ""
		if baseline := e.store.lastApprovedForInquiryLocked(d.InquiryKey(), d.ID); baseline != nil {
			d.DiffSummary = DetectConflicts(baseline.BOMItems, d.BOMItems)
		}

		d.TotalAmount = d.TotalFromLines()
		d.TamperHash = ComputeQuoteHash(d.BOMItems)
		d.Status = model.DealPending
		d.SubmittedBy = actor.Username
		return nil
	})
	if err != nil {
		return nil, err
	}
	if integrityErr != nil {
		logger.Warn(ctx, "quote submission blocked by integrity check",
			"deal_id", dealID, "summary", integrityErr.Summary)
		return nil, integrityErr
	}
	if updated.DiffSummary != "" {
		logger.Info(ctx, "quote submitted with baseline divergence",
			"deal_id", dealID, "diff", updated.DiffSummary)
	}
	return updated, nil
}

// Approve moves pending -> approved and re-seals the tamper hash. Any
// diff summary stays attached so the approver's decision is on record
// as informed.
func (e *DealDeskEngine) Approve(ctx context.Context, actor Actor, dealID string, expectedVersion int) (*model.DealDeskRecord, error) {
	if err := Authorize(actor, model.RoleVP); err != nil {
		return nil, err
	}
	return e.store.Update(dealID, func(d *model.DealDeskRecord) error {
		if expectedVersion > 0 && expectedVersion != d.Version {
			return &model.StateConflictError{
				Expected: fmt.Sprintf("version %d", expectedVersion),
				Actual:   fmt.Sprintf("version %d", d.Version),
			}
		}
		if d.Status != model.DealPending {
			return &model.StateConflictError{Expected: string(model.DealPending), Actual: string(d.Status)}
		}
		now := time.Now()
		d.TamperHash = ComputeQuoteHash(d.BOMItems)
		d.Status = model.DealApproved
		d.ApprovedBy = actor.Username
		d.ApprovedAt = &now
		d.RejectReason = ""
		return nil
	})
}

// Reject moves pending -> rejected. A reason is required.
func (e *DealDeskEngine) Reject(ctx context.Context, actor Actor, dealID, reason string, expectedVersion int) (*model.DealDeskRecord, error) {
	if err := Authorize(actor, model.RoleVP); err != nil {
		return nil, err
	}
	if reason == "" {
		return nil, &model.ValidationError{Msg: "a rejection reason is required"}
	}
	return e.store.Update(dealID, func(d *model.DealDeskRecord) error {
		if expectedVersion > 0 && expectedVersion != d.Version {
			return &model.StateConflictError{
				Expected: fmt.Sprintf("version %d", expectedVersion),
				Actual:   fmt.Sprintf("version %d", d.Version),
			}
		}
		if d.Status != model.DealPending {
			return &model.StateConflictError{Expected: string(model.DealPending), Actual: string(d.Status)}
		}
		d.Status = model.DealRejected
		d.RejectReason = reason
		d.ApprovedBy = actor.Username
		return nil
	})
}

// Verify checks a client-held BOM copy against the stored tamper hash.
// A tampered approved record is demoted to draft on the spot.
func (e *DealDeskEngine) Verify(ctx context.Context, actor Actor, dealID string, req *VerifyRequest) (*VerifyResponse, error) {
	deal := e.store.Get(dealID)
	if deal == nil {
		return nil, &model.NotFoundError{Kind: "deal-desk record", ID: dealID}
	}
	if deal.TamperHash == "" {
		return &VerifyResponse{Valid: true, DiffSummary: "no baseline hash sealed yet"}, nil
	}

	lines := linesFromInput(req.BOMItems)
	ok, summary := VerifyQuoteHash(lines, deal.TamperHash)
	if ok {
		return &VerifyResponse{Valid: true}, nil
	}

	if changes := SummarizeChanges(deal.BOMItems, lines); changes != "" {
		summary = changes
	}
	if deal.Status == model.DealApproved {
		_, err := e.store.Update(dealID, func(d *model.DealDeskRecord) error {
			d.Status = model.DealDraft
			d.DiffSummary = summary
			d.ApprovedAt = nil
			return nil
		})
		if err != nil {
			return nil, err
		}
		logger.Warn(ctx, "approved quote failed verification, demoted to draft",
			"deal_id", dealID, "summary", summary)
	}
	return nil, &model.IntegrityError{Summary: summary}
}

// linesFromInput builds BOM lines from request input, assigning fresh
// line ids.
func linesFromInput(items []CreateLineRequest) []*model.BOMLineItem {
	lines := make([]*model.BOMLineItem, 0, len(items))
	for _, item := range items {
		lines = append(lines, &model.BOMLineItem{
			ID:              uuid.New().String(),
			ProductModel:    item.ProductModel,
			AIExtractedQty:  item.AIExtractedQty,
			SalesQty:        item.SalesQty,
			UnitPrice:       item.UnitPrice,
			CommissionRatio: model.DefaultCommissionRatio,
			Remark:          item.Remark,
		})
	}
	return lines
}
