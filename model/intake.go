package model

import (
	"time"
)

// IntakeTask tracks an uploaded BOM source document through the
// external extraction service. The result pre-fills ai_extracted_qty
// baselines; the task is opaque to the approval pipeline and never
// gates a transition.
type IntakeTask struct {
	ID            string          `json:"id"`
	Filename      string          `json:"filename"`
	ProjectID     string          `json:"project_id"`
	UploadedBy    string          `json:"uploaded_by"`
	DocURL        string          `json:"doc_url"`
	Status        string          `json:"status"` // pending, processing, completed, failed
	ExtractTaskID string          `json:"extract_task_id,omitempty"`
	Items         []ExtractedLine `json:"items,omitempty"`
	ErrorMsg      string          `json:"error_msg,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// ExtractedLine is one BOM row as read by the extraction service.
type ExtractedLine struct {
	ProductModel string  `json:"product_model"`
	Quantity     int     `json:"quantity"`
	UnitPrice    float64 `json:"unit_price"`
	Remark       string  `json:"remark,omitempty"`
}

// IntakeTask status constants
const (
	IntakePending    = "pending"
	IntakeProcessing = "processing"
	IntakeCompleted  = "completed"
	IntakeFailed     = "failed"
)
