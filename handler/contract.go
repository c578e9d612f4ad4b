package handler

import (
	"net/http"

	"github.com/AnTengye/dealpipe/backend/middleware"
	"github.com/AnTengye/dealpipe/backend/model"
	"github.com/AnTengye/dealpipe/backend/service"
	"github.com/gin-gonic/gin"
)

// ContractHandler exposes the approval pipeline over HTTP. Each
// transition has its own endpoint and request type; the handler only
// binds the body, resolves the actor and maps errors to status codes.
// All authority lives in the service layer.
type ContractHandler struct {
	pipeline *service.ContractPipeline
}

func NewContractHandler(pipeline *service.ContractPipeline) *ContractHandler {
	return &ContractHandler{pipeline: pipeline}
}

// actorFrom builds the pipeline actor from the auth context.
func actorFrom(c *gin.Context) service.Actor {
	return service.Actor{
		Username: middleware.GetUsername(c),
		Role:     middleware.GetRole(c),
	}
}

// respondErr maps domain errors to their HTTP status.
func respondErr(c *gin.Context, err error) {
	c.JSON(model.HTTPStatus(err), gin.H{"error": err.Error()})
}

// versionRequest is the body shape for transitions that carry no
// payload beyond the optimistic concurrency check.
type versionRequest struct {
	ExpectedVersion int `json:"expected_version"`
}

// Create handles POST /contracts
func (h *ContractHandler) Create(c *gin.Context) {
	var req service.CreateContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	contract, err := h.pipeline.Create(c.Request.Context(), actorFrom(c), &req)
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusCreated, contract)
}

// List handles GET /contracts
func (h *ContractHandler) List(c *gin.Context) {
	contracts := h.pipeline.List(c.Query("project_id"))

	result := make([]gin.H, len(contracts))
	for i, contract := range contracts {
		result[i] = gin.H{
			"id":         contract.ID,
			"project_id": contract.ProjectID,
			"stage":      contract.Stage,
			"lines":      len(contract.BOMItems),
			"version":    contract.Version,
			"created_at": contract.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			"updated_at": contract.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
	}

	c.JSON(http.StatusOK, gin.H{"contracts": result})
}

// Get handles GET /contracts/:id. Returns the full aggregate: stage,
// BOM lines with all four quantity columns, terms, snapshot hash and
// commission total.
func (h *ContractHandler) Get(c *gin.Context) {
	contract, err := h.pipeline.Get(c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, contract)
}

// SubmitToTech handles POST /contracts/:id/submit-to-tech
func (h *ContractHandler) SubmitToTech(c *gin.Context) {
	var req versionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}
	}

	contract, err := h.pipeline.SubmitToTech(c.Request.Context(), actorFrom(c), c.Param("id"), req.ExpectedVersion)
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, contract)
}

// TechReview handles POST /contracts/:id/tech-review
func (h *ContractHandler) TechReview(c *gin.Context) {
	var req service.TechReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	contract, err := h.pipeline.TechReview(c.Request.Context(), actorFrom(c), c.Param("id"), &req)
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, contract)
}

// SubmitPricing handles POST /contracts/:id/submit-pricing
func (h *ContractHandler) SubmitPricing(c *gin.Context) {
	var req service.SubmitPricingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	contract, err := h.pipeline.SubmitPricing(c.Request.Context(), actorFrom(c), c.Param("id"), &req)
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, contract)
}

// Approve handles POST /contracts/:id/approve
func (h *ContractHandler) Approve(c *gin.Context) {
	var req versionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}
	}

	contract, err := h.pipeline.Approve(c.Request.Context(), actorFrom(c), c.Param("id"), req.ExpectedVersion)
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, contract)
}

// Reject handles POST /contracts/:id/reject
func (h *ContractHandler) Reject(c *gin.Context) {
	var req versionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}
	}

	contract, err := h.pipeline.Reject(c.Request.Context(), actorFrom(c), c.Param("id"), req.ExpectedVersion)
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, contract)
}

// Dispatch handles POST /contracts/:id/dispatch
func (h *ContractHandler) Dispatch(c *gin.Context) {
	var req versionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}
	}

	contract, err := h.pipeline.Dispatch(c.Request.Context(), actorFrom(c), c.Param("id"), req.ExpectedVersion)
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, contract)
}

// CalculateCommission handles POST /contracts/:id/calculate-commission
func (h *ContractHandler) CalculateCommission(c *gin.Context) {
	var req service.CalculateCommissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	contract, err := h.pipeline.CalculateCommission(c.Request.Context(), actorFrom(c), c.Param("id"), &req)
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, contract)
}
