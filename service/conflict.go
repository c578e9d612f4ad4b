package service

import (
	"fmt"

	"github.com/AnTengye/dealpipe/backend/model"
)

// Conflict detector (deal-desk): compares a fresh submission against
// the last approved baseline for the same inquiry and reports material
// quantity/price divergence. Advisory only, never blocks a transition;
// the approver reads the summary at review time.

// maxConflictLines bounds the textual delta list.
const maxConflictLines = 5

// DetectConflicts returns a bounded, human-readable list of per-line
// deltas between baseline and current, or "" when they agree. Lines
// are matched by product model.
func DetectConflicts(baseline, current []*model.BOMLineItem) string {
	base := make(map[string]*model.BOMLineItem, len(baseline))
	for _, b := range baseline {
		base[b.ProductModel] = b
	}

	var deltas []string
	seen := make(map[string]bool, len(current))
	for _, b := range current {
		seen[b.ProductModel] = true
		prev, ok := base[b.ProductModel]
		if !ok {
			deltas = append(deltas, fmt.Sprintf("%s: new line (qty %d @ %.2f)", b.ProductModel, b.SalesQty, b.UnitPrice))
			continue
		}
		if prev.SalesQty != b.SalesQty {
			deltas = append(deltas, fmt.Sprintf("%s: qty %d -> %d", b.ProductModel, prev.SalesQty, b.SalesQty))
		}
		if prev.UnitPrice != b.UnitPrice {
			deltas = append(deltas, fmt.Sprintf("%s: price %.2f -> %.2f", b.ProductModel, prev.UnitPrice, b.UnitPrice))
		}
	}
	for _, prev := range baseline {
		if !seen[prev.ProductModel] {
			deltas = append(deltas, fmt.Sprintf("%s: line removed", prev.ProductModel))
		}
	}

	if len(deltas) == 0 {
		return ""
	}

	overflow := 0
	if len(deltas) > maxConflictLines {
		overflow = len(deltas) - maxConflictLines
		deltas = deltas[:maxConflictLines]
	}

	summary := "differs from approved baseline: " + deltas[0]
	for _, d := range deltas[1:] {
		summary += "; " + d
	}
	if overflow > 0 {
		summary += fmt.Sprintf("; and %d more", overflow)
	}
	return summary
}
