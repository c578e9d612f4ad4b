package service

import (
	"context"
	"fmt"
	"time"

	"github.com/AnTengye/dealpipe/backend/model"
	"github.com/AnTengye/dealpipe/backend/pkg/logger"
	"github.com/google/uuid"
)

// ContractPipeline is the six-stage approval state machine. Every
// transition runs the same guard order: resolve role, authorize,
// validate stage + business rules, mutate, refresh the snapshot hash,
// persist. A transition whose declared source stage does not match the
// persisted stage fails with a StateConflictError instead of coercing.
type ContractPipeline struct {
	store *ContractStore
}

func NewContractPipeline(store *ContractStore) *ContractPipeline {
	return &ContractPipeline{store: store}
}

// CreateContractRequest starts a contract in sales_init.
type CreateContractRequest struct {
	ProjectID string              `json:"project_id" binding:"required"`
	BOMItems  []CreateLineRequest `json:"bom_items" binding:"required"`
}

type CreateLineRequest struct {
	ProductModel   string  `json:"product_model" binding:"required"`
	AIExtractedQty int     `json:"ai_extracted_qty"`
	SalesQty       int     `json:"sales_qty" binding:"required"`
	UnitPrice      float64 `json:"unit_price"`
	Remark         string  `json:"remark"`
}

// TechReviewRequest carries per-line tech quantities. Any line where
// tech_qty exceeds sales_qty must explain the over-allocation.
type TechReviewRequest struct {
	ExpectedVersion int                   `json:"expected_version"`
	Items           []TechReviewLineInput `json:"items" binding:"required"`
}

type TechReviewLineInput struct {
	BOMItemID     string `json:"bom_item_id" binding:"required"`
	TechQty       int    `json:"tech_qty"`
	OverallocNote string `json:"overalloc_note"`
}

// SubmitPricingRequest carries final quantities, prices and the
// commercial terms.
type SubmitPricingRequest struct {
	// Items may be empty on resubmission after a rejection; the
	// retained line values then carry over unchanged.
	ExpectedVersion int                   `json:"expected_version"`
	Items           []PricingLineInput    `json:"items"`
	Terms           model.CommercialTerms `json:"terms" binding:"required"`
}

type PricingLineInput struct {
	BOMItemID string  `json:"bom_item_id" binding:"required"`
	FinalQty  int     `json:"final_qty"`
	UnitPrice float64 `json:"unit_price"`
}

// CalculateCommissionRequest carries the settlement inputs. Invoking
// it repeatedly with the same inputs persists the same total.
type CalculateCommissionRequest struct {
	Formula     string                `json:"formula" binding:"required"`
	FreightCost float64               `json:"freight_cost"`
	Items       []CommissionLineInput `json:"items" binding:"required"`
}

type CommissionLineInput struct {
	BOMItemID       string  `json:"bom_item_id" binding:"required"`
	BasePrice       float64 `json:"base_price"`
	CommissionRatio float64 `json:"commission_ratio"`
}

// Create starts a new contract in sales_init with the initial BOM.
// The AI-extracted quantity is recorded once and kept as the audit
// baseline; tech and final quantities start at the sales quantity.
func (p *ContractPipeline) Create(ctx context.Context, actor Actor, req *CreateContractRequest) (*model.Contract, error) {
	if err := Authorize(actor, model.RoleSales); err != nil {
		return nil, err
	}
	if len(req.BOMItems) == 0 {
		return nil, &model.ValidationError{Msg: "BOM is empty, at least one line is required"}
	}
	for _, item := range req.BOMItems {
		if item.SalesQty <= 0 {
			return nil, &model.ValidationError{Msg: fmt.Sprintf("line %q: sales_qty must be positive", item.ProductModel)}
		}
	}

	now := time.Now()
	contract := &model.Contract{
		ID:        uuid.New().String(),
		ProjectID: req.ProjectID,
		Stage:     model.StageSalesInit,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, item := range req.BOMItems {
		contract.BOMItems = append(contract.BOMItems, &model.BOMLineItem{
			ID:              uuid.New().String(),
			ProductModel:    item.ProductModel,
			AIExtractedQty:  item.AIExtractedQty,
			SalesQty:        item.SalesQty,
			TechQty:         item.SalesQty, // starts at the sales quantity
			FinalQty:        item.SalesQty,
			UnitPrice:       item.UnitPrice,
			CommissionRatio: model.DefaultCommissionRatio,
			Remark:          item.Remark,
		})
	}
	p.store.Save(contract)

	logger.Info(ctx, "contract created",
		"contract_id", contract.ID,
		"project_id", contract.ProjectID,
		"lines", len(contract.BOMItems),
	)
	return p.store.Get(contract.ID), nil
}

// Get returns the full aggregate.
func (p *ContractPipeline) Get(id string) (*model.Contract, error) {
	c := p.store.Get(id)
	if c == nil {
		return nil, &model.NotFoundError{Kind: "contract", ID: id}
	}
	return c, nil
}

// List returns all contracts, optionally filtered by project.
func (p *ContractPipeline) List(projectID string) []*model.Contract {
	if projectID != "" {
		return p.store.GetByProject(projectID)
	}
	return p.store.List()
}

// SubmitToTech moves sales_init -> tech_review.
func (p *ContractPipeline) SubmitToTech(ctx context.Context, actor Actor, contractID string, expectedVersion int) (*model.Contract, error) {
	if err := Authorize(actor, model.RoleSales); err != nil {
		return nil, err
	}
	return p.transition(ctx, actor, contractID, "submit_to_tech", func(c *model.Contract) error {
		if err := requireStage(c, model.StageSalesInit); err != nil {
			return err
		}
		if err := requireVersion(c, expectedVersion); err != nil {
			return err
		}
		if len(c.BOMItems) == 0 {
			return &model.ValidationError{Msg: "BOM is empty, cannot submit for technical review"}
		}
		c.Stage = model.StageTechReview
		c.BOMSnapshotHash = ComputeSnapshotHash(c.BOMItems, c.Terms)
		return nil
	})
}

// TechReview records tech quantities and moves tech_review ->
// sales_pricing. An escalated line (tech_qty > sales_qty) without an
// over-allocation note rejects the whole transition.
func (p *ContractPipeline) TechReview(ctx context.Context, actor Actor, contractID string, req *TechReviewRequest) (*model.Contract, error) {
	if err := Authorize(actor, model.RoleTech); err != nil {
		return nil, err
	}
	return p.transition(ctx, actor, contractID, "tech_review_complete", func(c *model.Contract) error {
		if err := requireStage(c, model.StageTechReview); err != nil {
			return err
		}
		if err := requireVersion(c, req.ExpectedVersion); err != nil {
			return err
		}
		for _, item := range req.Items {
			line := c.FindLine(item.BOMItemID)
			if line == nil {
				return &model.ValidationError{Msg: fmt.Sprintf("BOM line %s does not belong to this contract", item.BOMItemID)}
			}
			if item.TechQty <= 0 {
				return &model.ValidationError{Msg: fmt.Sprintf("line %q: tech_qty must be positive", line.ProductModel)}
			}
			if item.TechQty > line.SalesQty && item.OverallocNote == "" {
				return &model.ValidationError{Msg: fmt.Sprintf(
					"line %q: tech quantity %d exceeds sales quantity %d, an over-allocation note is required",
					line.ProductModel, item.TechQty, line.SalesQty)}
			}
			line.TechQty = item.TechQty
			line.OverallocNote = item.OverallocNote
		}
		c.Stage = model.StageSalesPricing
		c.BOMSnapshotHash = ComputeSnapshotHash(c.BOMItems, c.Terms)
		return nil
	})
}

// SubmitPricing records final quantities, prices and commercial terms
// and moves sales_pricing -> vp_approval. The four payment ratios must
// sum to exactly 100 and delivery time/address/receiver contact must
// be set.
func (p *ContractPipeline) SubmitPricing(ctx context.Context, actor Actor, contractID string, req *SubmitPricingRequest) (*model.Contract, error) {
	if err := Authorize(actor, model.RoleSales); err != nil {
		return nil, err
	}
	return p.transition(ctx, actor, contractID, "submit_pricing", func(c *model.Contract) error {
		if err := requireStage(c, model.StageSalesPricing); err != nil {
			return err
		}
		if err := requireVersion(c, req.ExpectedVersion); err != nil {
			return err
		}
		if err := validateTerms(&req.Terms); err != nil {
			return err
		}
		for _, item := range req.Items {
			line := c.FindLine(item.BOMItemID)
			if line == nil {
				return &model.ValidationError{Msg: fmt.Sprintf("BOM line %s does not belong to this contract", item.BOMItemID)}
			}
			if item.FinalQty <= 0 {
				return &model.ValidationError{Msg: fmt.Sprintf("line %q: final_qty must be positive", line.ProductModel)}
			}
			if item.UnitPrice <= 0 {
				return &model.ValidationError{Msg: fmt.Sprintf("line %q: unit_price must be positive", line.ProductModel)}
			}
			line.FinalQty = item.FinalQty
			line.UnitPrice = item.UnitPrice
		}
		c.Terms = req.Terms
		c.Stage = model.StageVPApproval
		c.BOMSnapshotHash = ComputeSnapshotHash(c.BOMItems, c.Terms)
		return nil
	})
}

// Approve moves vp_approval -> approved and seals the snapshot hash.
func (p *ContractPipeline) Approve(ctx context.Context, actor Actor, contractID string, expectedVersion int) (*model.Contract, error) {
	if err := Authorize(actor, model.RoleVP); err != nil {
		return nil, err
	}
	return p.transition(ctx, actor, contractID, "approve", func(c *model.Contract) error {
		if err := requireStage(c, model.StageVPApproval); err != nil {
			return err
		}
		if err := requireVersion(c, expectedVersion); err != nil {
			return err
		}
		c.Stage = model.StageApproved
		c.BOMSnapshotHash = ComputeSnapshotHash(c.BOMItems, c.Terms)
		return nil
	})
}

// Reject moves vp_approval one step back to sales_pricing. BOM and
// terms are retained as the starting point for correction.
func (p *ContractPipeline) Reject(ctx context.Context, actor Actor, contractID string, expectedVersion int) (*model.Contract, error) {
	if err := Authorize(actor, model.RoleVP); err != nil {
		return nil, err
	}
	return p.transition(ctx, actor, contractID, "reject", func(c *model.Contract) error {
		if err := requireStage(c, model.StageVPApproval); err != nil {
			return err
		}
		if err := requireVersion(c, expectedVersion); err != nil {
			return err
		}
		c.Stage = model.StageSalesPricing
		return nil
	})
}

// Dispatch moves approved -> commission. The sealed snapshot must
// still match the BOM; from here on no BOM edits are permitted.
func (p *ContractPipeline) Dispatch(ctx context.Context, actor Actor, contractID string, expectedVersion int) (*model.Contract, error) {
	if err := Authorize(actor, model.RoleFinance); err != nil {
		return nil, err
	}
	return p.transition(ctx, actor, contractID, "dispatch", func(c *model.Contract) error {
		if err := requireStage(c, model.StageApproved); err != nil {
			return err
		}
		if err := requireVersion(c, expectedVersion); err != nil {
			return err
		}
		if c.BOMSnapshotHash != "" {
			if current := ComputeSnapshotHash(c.BOMItems, c.Terms); current != c.BOMSnapshotHash {
				return &model.IntegrityError{Summary: fmt.Sprintf(
					"BOM changed after approval: sealed %s... current %s...",
					shortHash(c.BOMSnapshotHash), shortHash(current))}
			}
		}
		c.Stage = model.StageCommission
		return nil
	})
}

// CalculateCommission records settlement inputs and persists the
// total. Terminal: the stage does not advance, and recomputation with
// identical inputs is idempotent. A raw negative total is floored at
// zero and surfaced via CommissionWarning.
func (p *ContractPipeline) CalculateCommission(ctx context.Context, actor Actor, contractID string, req *CalculateCommissionRequest) (*model.Contract, error) {
	if err := Authorize(actor, model.RoleFinance, model.RoleVP); err != nil {
		return nil, err
	}
	if req.Formula != model.FormulaMargin && req.Formula != model.FormulaGross {
		return nil, &model.ValidationError{Msg: fmt.Sprintf("unknown commission formula %q", req.Formula)}
	}
	if req.FreightCost < 0 {
		return nil, &model.ValidationError{Msg: "freight_cost cannot be negative"}
	}
	return p.transition(ctx, actor, contractID, "calculate", func(c *model.Contract) error {
		if err := requireStage(c, model.StageCommission); err != nil {
			return err
		}
		for _, item := range req.Items {
			line := c.FindLine(item.BOMItemID)
			if line == nil {
				return &model.ValidationError{Msg: fmt.Sprintf("BOM line %s does not belong to this contract", item.BOMItemID)}
			}
			if item.CommissionRatio < 0 || item.CommissionRatio > 1 {
				return &model.ValidationError{Msg: fmt.Sprintf("line %q: commission_ratio must be between 0 and 1", line.ProductModel)}
			}
			line.BasePrice = item.BasePrice
			if item.CommissionRatio > 0 {
				line.CommissionRatio = item.CommissionRatio
			}
		}

		total := TotalCommission(req.Formula, c.BOMItems, req.FreightCost)
		c.Commission.Formula = req.Formula
		c.Commission.FreightCost = req.FreightCost
		if total < 0 {
			// Floor at zero but keep the raw figure visible.
			c.Commission.TotalCommission = 0
			c.CommissionWarning = fmt.Sprintf("commission total is negative (%.2f) and was floored at zero", total)
		} else {
			c.Commission.TotalCommission = total
			c.CommissionWarning = ""
		}
		return nil
	})
}

// transition runs fn through the store's serialized update and logs
// the outcome. Rejected transitions leave the persisted state
// untouched.
func (p *ContractPipeline) transition(ctx context.Context, actor Actor, contractID, name string, fn func(*model.Contract) error) (*model.Contract, error) {
	updated, err := p.store.Update(contractID, fn)
	if err != nil {
		logger.Warn(ctx, "transition rejected",
			"transition", name,
			"contract_id", contractID,
			"actor", actor.Username,
			"role", actor.Role,
			"error", err.Error(),
		)
		return nil, err
	}
	logger.Info(ctx, "transition applied",
		"transition", name,
		"contract_id", contractID,
		"stage", string(updated.Stage),
		"actor", actor.Username,
	)
	return updated, nil
}

func requireStage(c *model.Contract, expected model.Stage) error {
	if c.Stage != expected {
		return &model.StateConflictError{Expected: string(expected), Actual: string(c.Stage)}
	}
	return nil
}

// requireVersion enforces the optimistic concurrency check when the
// caller supplied an expected version (0 skips it).
func requireVersion(c *model.Contract, expected int) error {
	if expected > 0 && expected != c.Version {
		return &model.StateConflictError{
			Expected: fmt.Sprintf("version %d", expected),
			Actual:   fmt.Sprintf("version %d", c.Version),
		}
	}
	return nil
}

func validateTerms(t *model.CommercialTerms) error {
	if sum := t.RatioSum(); sum != 100 {
		return &model.ValidationError{Msg: fmt.Sprintf("payment ratios must sum to 100, got %d", sum)}
	}
	if t.DeliveryTime == "" {
		return &model.ValidationError{Msg: "delivery_time is required"}
	}
	if t.DeliveryAddress == "" {
		return &model.ValidationError{Msg: "delivery_address is required"}
	}
	if t.ReceiverContact == "" {
		return &model.ValidationError{Msg: "receiver_contact is required"}
	}
	if t.RatioAdvance < 0 || t.RatioDelivery < 0 || t.RatioAccept < 0 || t.RatioWarranty < 0 {
		return &model.ValidationError{Msg: "payment ratios cannot be negative"}
	}
	return nil
}
