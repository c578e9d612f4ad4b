package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/AnTengye/dealpipe/backend/middleware"
	"github.com/AnTengye/dealpipe/backend/model"
	"github.com/AnTengye/dealpipe/backend/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// IntakeHandler accepts BOM source document uploads, hands them to the
// extraction service and serves the extracted lines back so a draft
// contract or quote can be pre-filled with ai_extracted_qty baselines.
// The whole flow is asynchronous and never gates a pipeline
// transition.
type IntakeHandler struct {
	minioService   *service.MinioService
	extractService *service.ExtractService
	store          *service.IntakeStore
}

func NewIntakeHandler(minioSvc *service.MinioService, extractSvc *service.ExtractService) *IntakeHandler {
	return &IntakeHandler{
		minioService:   minioSvc,
		extractService: extractSvc,
		store:          service.GetIntakeStore(),
	}
}

// Upload handles BOM document upload
func (h *IntakeHandler) Upload(c *gin.Context) {
	projectID := c.PostForm("project_id")
	if projectID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "project_id is required"})
		return
	}

	// Get file from form
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file provided"})
		return
	}
	defer file.Close()

	// Validate file type - PDF and XLSX allowed
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext != ".pdf" && ext != ".xlsx" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only PDF and XLSX files are allowed"})
		return
	}

	var expectedContentType string
	if ext == ".pdf" {
		expectedContentType = "application/pdf"
	} else {
		expectedContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = expectedContentType
	} else if ext == ".pdf" && !strings.Contains(contentType, "pdf") {
		// Try to detect from file header for PDF
		buffer := make([]byte, 512)
		_, err := file.Read(buffer)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file"})
			return
		}
		file.Seek(0, io.SeekStart) // Reset file pointer

		detectedType := http.DetectContentType(buffer)
		if !strings.Contains(detectedType, "pdf") && detectedType != "application/octet-stream" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid file type"})
			return
		}
		contentType = "application/pdf"
	} else if ext == ".xlsx" {
		contentType = expectedContentType
	}

	// Generate unique ID and object name
	taskID := uuid.New().String()
	objectName := fmt.Sprintf("%s/%s/%s", projectID, taskID, header.Filename)

	// Upload to MINIO
	err = h.minioService.UploadFile(c.Request.Context(), objectName, file, header.Size, contentType)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to upload file: " + err.Error()})
		return
	}

	// Get presigned URL for the extraction service
	docURL, err := h.minioService.GetPresignedURL(c.Request.Context(), objectName)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate URL: " + err.Error()})
		return
	}

	// Create intake record
	task := &model.IntakeTask{
		ID:         taskID,
		Filename:   header.Filename,
		ProjectID:  projectID,
		UploadedBy: middleware.GetUsername(c),
		DocURL:     docURL,
		Status:     model.IntakePending,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	h.store.Save(task)

	// Call the extraction service off the request path
	go h.processExtractTask(task, docURL)

	c.JSON(http.StatusOK, gin.H{
		"id":       taskID,
		"filename": header.Filename,
		"status":   model.IntakePending,
	})
}

// processExtractTask handles the extraction task asynchronously
func (h *IntakeHandler) processExtractTask(task *model.IntakeTask, docURL string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	h.store.UpdateStatus(task.ID, model.IntakeProcessing, "")

	resp, err := h.extractService.CreateTask(ctx, docURL, task.ID)
	if err != nil {
		h.store.UpdateStatus(task.ID, model.IntakeFailed, err.Error())
		return
	}

	task.ExtractTaskID = resp.Data.TaskID
	h.store.Save(task)

	// Poll for result (if no callback configured)
	h.pollTaskResult(ctx, task)
}

// pollTaskResult polls for task completion
func (h *IntakeHandler) pollTaskResult(ctx context.Context, task *model.IntakeTask) {
	maxAttempts := 60 // 5 minutes with 5 second intervals
	for i := 0; i < maxAttempts; i++ {
		select {
		case <-ctx.Done():
			h.store.UpdateStatus(task.ID, model.IntakeFailed, "extraction timed out")
			return
		case <-time.After(5 * time.Second):
		}

		status, err := h.extractService.GetTaskStatus(ctx, task.ExtractTaskID)
		if err != nil {
			continue
		}

		switch status.Data.State {
		case "done":
			h.store.UpdateItems(task.ID, status.Data.Items)
			return
		case "failed":
			h.store.UpdateStatus(task.ID, model.IntakeFailed, status.Data.ErrorMsg)
			return
		}
	}

	h.store.UpdateStatus(task.ID, model.IntakeFailed, "Task polling timeout")
}

// GetStatus handles GET /intake/:id. Returns the task status and,
// once completed, the extracted lines.
func (h *IntakeHandler) GetStatus(c *gin.Context) {
	task := h.store.Get(c.Param("id"))
	if task == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Intake task not found"})
		return
	}

	c.JSON(http.StatusOK, task)
}
