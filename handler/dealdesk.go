package handler

import (
	"net/http"

	"github.com/AnTengye/dealpipe/backend/service"
	"github.com/gin-gonic/gin"
)

// DealDeskHandler exposes the quoting approval variant.
type DealDeskHandler struct {
	engine *service.DealDeskEngine
}

func NewDealDeskHandler(engine *service.DealDeskEngine) *DealDeskHandler {
	return &DealDeskHandler{engine: engine}
}

// Create handles POST /dealdesk
func (h *DealDeskHandler) Create(c *gin.Context) {
	var req service.CreateDealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	deal, err := h.engine.Create(c.Request.Context(), actorFrom(c), &req)
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusCreated, deal)
}

// List handles GET /dealdesk
func (h *DealDeskHandler) List(c *gin.Context) {
	deals := h.engine.List()

	result := make([]gin.H, len(deals))
	for i, deal := range deals {
		result[i] = gin.H{
			"id":             deal.ID,
			"project_id":     deal.ProjectID,
			"inquiry_client": deal.InquiryClient,
			"status":         deal.Status,
			"total_amount":   deal.TotalAmount,
			"diff_summary":   deal.DiffSummary,
			"version":        deal.Version,
			"created_at":     deal.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			"updated_at":     deal.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
	}

	c.JSON(http.StatusOK, gin.H{"deals": result})
}

// Get handles GET /dealdesk/:id
func (h *DealDeskHandler) Get(c *gin.Context) {
	deal, err := h.engine.Get(c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, deal)
}

// UpdateBOM handles PATCH /dealdesk/:id/bom
func (h *DealDeskHandler) UpdateBOM(c *gin.Context) {
	var req service.UpdateBOMRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	deal, err := h.engine.UpdateBOM(c.Request.Context(), actorFrom(c), c.Param("id"), &req)
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, deal)
}

// Submit handles POST /dealdesk/:id/submit
func (h *DealDeskHandler) Submit(c *gin.Context) {
	var req versionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}
	}

	deal, err := h.engine.Submit(c.Request.Context(), actorFrom(c), c.Param("id"), req.ExpectedVersion)
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, deal)
}

// Approve handles POST /dealdesk/:id/approve
func (h *DealDeskHandler) Approve(c *gin.Context) {
	var req versionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}
	}

	deal, err := h.engine.Approve(c.Request.Context(), actorFrom(c), c.Param("id"), req.ExpectedVersion)
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, deal)
}

type rejectRequest struct {
	Reason          string `json:"reason" binding:"required"`
	ExpectedVersion int    `json:"expected_version"`
}

// Reject handles POST /dealdesk/:id/reject
func (h *DealDeskHandler) Reject(c *gin.Context) {
	var req rejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	deal, err := h.engine.Reject(c.Request.Context(), actorFrom(c), c.Param("id"), req.Reason, req.ExpectedVersion)
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, deal)
}

// Verify handles POST /dealdesk/:id/verify
func (h *DealDeskHandler) Verify(c *gin.Context) {
	var req service.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	result, err := h.engine.Verify(c.Request.Context(), actorFrom(c), c.Param("id"), &req)
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
