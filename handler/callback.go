package handler

import (
	"encoding/json"
	"net/http"

	"github.com/AnTengye/dealpipe/backend/model"
	"github.com/AnTengye/dealpipe/backend/service"
	"github.com/gin-gonic/gin"
)

type CallbackHandler struct {
	extractService *service.ExtractService
	store          *service.IntakeStore
}

func NewCallbackHandler(extractSvc *service.ExtractService) *CallbackHandler {
	return &CallbackHandler{
		extractService: extractSvc,
		store:          service.GetIntakeStore(),
	}
}

type CallbackRequest struct {
	Checksum string `json:"checksum"`
	Content  string `json:"content"`
}

type CallbackContent struct {
	TaskID   string                `json:"task_id"`
	DataID   string                `json:"data_id"`
	State    string                `json:"state"`
	Items    []model.ExtractedLine `json:"items"`
	ErrorMsg string                `json:"err_msg"`
}

// HandleCallback receives the extraction service callback
func (h *CallbackHandler) HandleCallback(c *gin.Context) {
	var req CallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	// Parse content
	var content CallbackContent
	if err := json.Unmarshal([]byte(req.Content), &content); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid content format"})
		return
	}

	// Find intake task by DataID (which is our task ID)
	task := h.store.Get(content.DataID)
	if task == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Intake task not found"})
		return
	}

	// Verify checksum before trusting the payload
	if !h.extractService.VerifyCallback(req.Checksum, req.Content, content.DataID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Invalid callback checksum"})
		return
	}

	switch content.State {
	case "done":
		h.store.UpdateItems(task.ID, content.Items)
	case "failed":
		h.store.UpdateStatus(task.ID, model.IntakeFailed, content.ErrorMsg)
	}

	c.JSON(http.StatusOK, gin.H{"message": "Callback received"})
}
