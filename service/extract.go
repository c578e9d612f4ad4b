package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/AnTengye/dealpipe/backend/config"
	"github.com/AnTengye/dealpipe/backend/model"
)

// ExtractService talks to the external BOM-extraction service. The
// contract is opaque: a document URL in, a task id back, and later a
// list of extracted lines. Calls are timeout-bounded and cancellable;
// the approval pipeline never waits on them.
type ExtractService struct {
	config     *config.ExtractConfig
	httpClient *http.Client
}

// ExtractTaskRequest represents the request to create an extraction task
type ExtractTaskRequest struct {
	URL      string `json:"url"`
	Callback string `json:"callback,omitempty"`
	Seed     string `json:"seed,omitempty"`
	DataID   string `json:"data_id,omitempty"`
}

// ExtractTaskResponse represents the response from task creation
type ExtractTaskResponse struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
	Data    struct {
		TaskID string `json:"task_id"`
	} `json:"data"`
}

// ExtractTaskStatusResponse represents the task status query response
type ExtractTaskStatusResponse struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
	Data    struct {
		TaskID   string                `json:"task_id"`
		DataID   string                `json:"data_id"`
		State    string                `json:"state"` // pending, running, done, failed
		Items    []model.ExtractedLine `json:"items,omitempty"`
		ErrorMsg string                `json:"err_msg,omitempty"`
	} `json:"data"`
}

// ExtractCallbackPayload represents the callback payload from the
// extraction service.
type ExtractCallbackPayload struct {
	Checksum string `json:"checksum"`
	Content  string `json:"content"`
}

func NewExtractService(cfg *config.ExtractConfig) *ExtractService {
	return &ExtractService{
		config: cfg,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

// CreateTask creates a new extraction task for the given document URL.
func (s *ExtractService) CreateTask(ctx context.Context, docURL, dataID string) (*ExtractTaskResponse, error) {
	reqBody := ExtractTaskRequest{
		URL:    docURL,
		DataID: dataID,
	}

	if s.config.CallbackURL != "" {
		reqBody.Callback = s.config.CallbackURL
		reqBody.Seed = s.config.Seed
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.config.APIURL+"/extract/task", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.config.APIToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "*/*")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var result ExtractTaskResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w, body: %s", err, string(body))
	}

	if result.Code != 0 {
		return nil, fmt.Errorf("extraction API error: %s", result.Message)
	}

	return &result, nil
}

// GetTaskStatus queries the status of a task
func (s *ExtractService) GetTaskStatus(ctx context.Context, taskID string) (*ExtractTaskStatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("%s/extract/task/%s", s.config.APIURL, taskID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.config.APIToken)
	req.Header.Set("Accept", "*/*")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var result ExtractTaskStatusResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if result.Code != 0 {
		return nil, fmt.Errorf("extraction API error: %s", result.Message)
	}

	return &result, nil
}

// VerifyCallback verifies the callback checksum.
// Checksum = SHA256(uid + seed + content)
func (s *ExtractService) VerifyCallback(checksum, content string, uid string) bool {
	data := uid + s.config.Seed + content
	hash := sha256.Sum256([]byte(data))
	expected := hex.EncodeToString(hash[:])
	return checksum == expected
}

// ParseExtractedLines decodes the callback content into BOM lines.
func ParseExtractedLines(content string) ([]model.ExtractedLine, error) {
	var payload struct {
		Items []model.ExtractedLine `json:"items"`
	}
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, fmt.Errorf("failed to parse extracted lines: %w", err)
	}
	return payload.Items, nil
}
