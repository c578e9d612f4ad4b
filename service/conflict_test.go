package service

import (
	"strings"
	"testing"

	"github.com/AnTengye/dealpipe/backend/model"
)

func TestDetectConflictsNoChange(t *testing.T) {
	if got := DetectConflicts(sampleLines(), sampleLines()); got != "" {
		t.Errorf("Identical BOMs must produce no conflicts, got %q", got)
	}
}

func TestDetectConflictsDeltas(t *testing.T) {
	baseline := []*model.BOMLineItem{
		{ProductModel: "XGN15-12", SalesQty: 10, UnitPrice: 15000},
		{ProductModel: "KYN28-12", SalesQty: 4, UnitPrice: 42000},
	}
	current := []*model.BOMLineItem{
		{ProductModel: "XGN15-12", SalesQty: 8, UnitPrice: 14000},
		{ProductModel: "ZW32-12", SalesQty: 2, UnitPrice: 8000},
	}

	got := DetectConflicts(baseline, current)
	if !strings.HasPrefix(got, "differs from approved baseline: ") {
		t.Fatalf("Unexpected prefix in %q", got)
	}
	for _, want := range []string{
		"XGN15-12: qty 10 -> 8",
		"XGN15-12: price 15000.00 -> 14000.00",
		"ZW32-12: new line (qty 2 @ 8000.00)",
		"KYN28-12: line removed",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("Expected %q in %q", want, got)
		}
	}
}

func TestDetectConflictsBounded(t *testing.T) {
	var baseline, current []*model.BOMLineItem
	models := []string{"A", "B", "C", "D", "E", "F", "G", "H"}
	for _, m := range models {
		baseline = append(baseline, &model.BOMLineItem{ProductModel: m, SalesQty: 1, UnitPrice: 100})
		current = append(current, &model.BOMLineItem{ProductModel: m, SalesQty: 2, UnitPrice: 100})
	}

	got := DetectConflicts(baseline, current)
	if !strings.Contains(got, "; and 3 more") {
		t.Errorf("Expected overflow marker for 8 deltas, got %q", got)
	}
	if count := strings.Count(got, "qty 1 -> 2"); count != maxConflictLines {
		t.Errorf("Expected %d listed deltas, got %d in %q", maxConflictLines, count, got)
	}
}
