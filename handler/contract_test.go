package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AnTengye/dealpipe/backend/model"
	"github.com/AnTengye/dealpipe/backend/service"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// asRole simulates the auth middleware for a fixed identity.
func asRole(username, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("username", username)
		c.Set("role", role)
		c.Next()
	}
}

// contractRouter wires the contract endpoints behind a fixed identity.
// The identity can be switched per request via the X-Test-Role header.
func contractRouter(h *ContractHandler) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		role := c.GetHeader("X-Test-Role")
		if role == "" {
			role = model.RoleSales
		}
		c.Set("username", "tester")
		c.Set("role", role)
		c.Next()
	})
	r.POST("/contracts", h.Create)
	r.GET("/contracts", h.List)
	r.GET("/contracts/:id", h.Get)
	r.POST("/contracts/:id/submit-to-tech", h.SubmitToTech)
	r.POST("/contracts/:id/tech-review", h.TechReview)
	r.POST("/contracts/:id/submit-pricing", h.SubmitPricing)
	r.POST("/contracts/:id/approve", h.Approve)
	r.POST("/contracts/:id/reject", h.Reject)
	r.POST("/contracts/:id/dispatch", h.Dispatch)
	r.POST("/contracts/:id/calculate-commission", h.CalculateCommission)
	return r
}

func newContractHandler() *ContractHandler {
	return NewContractHandler(service.NewContractPipeline(service.NewContractStore(100)))
}

func doJSON(t *testing.T, r *gin.Engine, method, path, role string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		req.Header.Set("X-Test-Role", role)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func createContractHTTP(t *testing.T, r *gin.Engine) map[string]any {
	t.Helper()
	w := doJSON(t, r, http.MethodPost, "/contracts", model.RoleSales, gin.H{
		"project_id": "proj-1",
		"bom_items": []gin.H{
			{"product_model": "XGN15-12", "ai_extracted_qty": 10, "sales_qty": 10, "unit_price": 15000},
		},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var contract map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &contract); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	return contract
}

func TestCreateContract(t *testing.T) {
	r := contractRouter(newContractHandler())
	contract := createContractHTTP(t, r)

	if contract["stage"] != "sales_init" {
		t.Errorf("Expected sales_init, got %v", contract["stage"])
	}
	items := contract["bom_items"].([]any)
	if len(items) != 1 {
		t.Fatalf("Expected 1 BOM line, got %d", len(items))
	}
	line := items[0].(map[string]any)
	if line["tech_qty"].(float64) != 10 || line["final_qty"].(float64) != 10 {
		t.Error("tech_qty and final_qty must start at the sales quantity")
	}
}

func TestCreateContractBadRequest(t *testing.T) {
	r := contractRouter(newContractHandler())
	w := doJSON(t, r, http.MethodPost, "/contracts", model.RoleSales, gin.H{"project_id": "proj-1"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing bom_items, got %d", w.Code)
	}
}

func TestGetContractNotFound(t *testing.T) {
	r := contractRouter(newContractHandler())
	w := doJSON(t, r, http.MethodGet, "/contracts/nope", "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestListContracts(t *testing.T) {
	r := contractRouter(newContractHandler())
	createContractHTTP(t, r)
	createContractHTTP(t, r)

	w := doJSON(t, r, http.MethodGet, "/contracts", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var resp struct {
		Contracts []map[string]any `json:"contracts"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if len(resp.Contracts) != 2 {
		t.Errorf("Expected 2 contracts, got %d", len(resp.Contracts))
	}
}

func TestTransitionStatusCodes(t *testing.T) {
	r := contractRouter(newContractHandler())
	contract := createContractHTTP(t, r)
	id := contract["id"].(string)

	// Wrong role: 403
	w := doJSON(t, r, http.MethodPost, "/contracts/"+id+"/submit-to-tech", model.RoleTech, nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for wrong role, got %d: %s", w.Code, w.Body.String())
	}

	// Right role: 200
	w = doJSON(t, r, http.MethodPost, "/contracts/"+id+"/submit-to-tech", model.RoleSales, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// Repeating the same transition: 409
	w = doJSON(t, r, http.MethodPost, "/contracts/"+id+"/submit-to-tech", model.RoleSales, nil)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 for a stale transition, got %d: %s", w.Code, w.Body.String())
	}
}

func TestTechReviewValidationStatus(t *testing.T) {
	r := contractRouter(newContractHandler())
	contract := createContractHTTP(t, r)
	id := contract["id"].(string)
	lineID := contract["bom_items"].([]any)[0].(map[string]any)["id"].(string)

	doJSON(t, r, http.MethodPost, "/contracts/"+id+"/submit-to-tech", model.RoleSales, nil)

	// Over-allocation without a note: 422
	w := doJSON(t, r, http.MethodPost, "/contracts/"+id+"/tech-review", model.RoleTech, gin.H{
		"items": []gin.H{{"bom_item_id": lineID, "tech_qty": 12}},
	})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422, got %d: %s", w.Code, w.Body.String())
	}

	// With the note: 200
	w = doJSON(t, r, http.MethodPost, "/contracts/"+id+"/tech-review", model.RoleTech, gin.H{
		"items": []gin.H{{"bom_item_id": lineID, "tech_qty": 12, "overalloc_note": "spare cabinet requested"}},
	})
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestVersionConflictStatus(t *testing.T) {
	r := contractRouter(newContractHandler())
	contract := createContractHTTP(t, r)
	id := contract["id"].(string)

	w := doJSON(t, r, http.MethodPost, "/contracts/"+id+"/submit-to-tech", model.RoleSales,
		gin.H{"expected_version": 42})
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 for a version mismatch, got %d: %s", w.Code, w.Body.String())
	}
}

func TestFullPipelineOverHTTP(t *testing.T) {
	r := contractRouter(newContractHandler())
	contract := createContractHTTP(t, r)
	id := contract["id"].(string)
	lineID := contract["bom_items"].([]any)[0].(map[string]any)["id"].(string)

	steps := []struct {
		path string
		role string
		body any
	}{
		{"/submit-to-tech", model.RoleSales, nil},
		{"/tech-review", model.RoleTech, gin.H{
			"items": []gin.H{{"bom_item_id": lineID, "tech_qty": 12, "overalloc_note": "spare cabinet"}},
		}},
		{"/submit-pricing", model.RoleSales, gin.H{
			"items": []gin.H{{"bom_item_id": lineID, "final_qty": 12, "unit_price": 14500}},
			"terms": gin.H{
				"pay_method":       "bank transfer",
				"delivery_time":    "45 days",
				"warranty_period":  "12 months",
				"ratio_advance":    30,
				"ratio_delivery":   30,
				"ratio_accept":     30,
				"ratio_warranty":   10,
				"delivery_address": "12 Industrial Park Rd",
				"receiver_contact": "J. Chen 555-0101",
			},
		}},
		{"/approve", model.RoleVP, nil},
		{"/dispatch", model.RoleFinance, nil},
		{"/calculate-commission", model.RoleFinance, gin.H{
			"formula":      "margin",
			"freight_cost": 2000,
			"items":        []gin.H{{"bom_item_id": lineID, "base_price": 11000, "commission_ratio": 0.1}},
		}},
	}

	var last map[string]any
	for _, step := range steps {
		w := doJSON(t, r, http.MethodPost, "/contracts/"+id+step.path, step.role, step.body)
		if w.Code != http.StatusOK {
			t.Fatalf("Step %s: expected 200, got %d: %s", step.path, w.Code, w.Body.String())
		}
		last = nil
		if err := json.Unmarshal(w.Body.Bytes(), &last); err != nil {
			t.Fatalf("Step %s: failed to parse response: %v", step.path, err)
		}
	}

	if last["stage"] != "commission" {
		t.Errorf("Expected commission, got %v", last["stage"])
	}
	commission := last["commission"].(map[string]any)
	if got := commission["total_commission"].(float64); got != 2200 {
		t.Errorf("Expected total commission 2200, got %v", got)
	}
}

func TestCalculateCommissionBadFormula(t *testing.T) {
	r := contractRouter(newContractHandler())
	contract := createContractHTTP(t, r)
	id := contract["id"].(string)

	w := doJSON(t, r, http.MethodPost, fmt.Sprintf("/contracts/%s/calculate-commission", id), model.RoleFinance, gin.H{
		"formula": "net",
		"items":   []gin.H{{"bom_item_id": "x"}},
	})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422 for unknown formula, got %d: %s", w.Code, w.Body.String())
	}
}
