package service

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/AnTengye/dealpipe/backend/model"
)

// Snapshot guard: deterministic SHA-256 fingerprint over the committed
// BOM plus commercial terms, recomputed at every submission boundary.
// The hash is a tamper indicator, never a secret.

// snapshotLine fixes the field set and order that participate in the
// contract hash: product model, all four quantities, unit price.
type snapshotLine struct {
	ID        string  `json:"id"`
	Model     string  `json:"model"`
	AIQty     int     `json:"ai_qty"`
	SalesQty  int     `json:"sales_qty"`
	TechQty   int     `json:"tech_qty"`
	FinalQty  int     `json:"final_qty"`
	UnitPrice float64 `json:"unit_price"`
}

type snapshotPayload struct {
	Lines []snapshotLine        `json:"lines"`
	Terms model.CommercialTerms `json:"terms"`
}

// ComputeSnapshotHash hashes the ordered, normalized BOM (lines sorted
// by stable id) together with the commercial terms.
func ComputeSnapshotHash(items []*model.BOMLineItem, terms model.CommercialTerms) string {
	lines := make([]snapshotLine, 0, len(items))
	for _, b := range items {
		lines = append(lines, snapshotLine{
			ID:        b.ID,
			Model:     b.ProductModel,
			AIQty:     b.AIExtractedQty,
			SalesQty:  b.SalesQty,
			TechQty:   b.TechQty,
			FinalQty:  b.FinalQty,
			UnitPrice: b.UnitPrice,
		})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ID < lines[j].ID })

	payload, _ := json.Marshal(snapshotPayload{Lines: lines, Terms: terms})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// quoteLine is the reduced serialization used for deal-desk tamper
// hashes: quotes carry no technical columns.
type quoteLine struct {
	Model    string  `json:"model"`
	SalesQty int     `json:"qty"`
	Price    float64 `json:"price"`
}

// ComputeQuoteHash hashes a deal-desk BOM (model, sales quantity, unit
// price, sorted by model).
func ComputeQuoteHash(items []*model.BOMLineItem) string {
	lines := make([]quoteLine, 0, len(items))
	for _, b := range items {
		lines = append(lines, quoteLine{
			Model:    b.ProductModel,
			SalesQty: b.SalesQty,
			Price:    b.UnitPrice,
		})
	}
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].Model != lines[j].Model {
			return lines[i].Model < lines[j].Model
		}
		return lines[i].SalesQty < lines[j].SalesQty
	})

	payload, _ := json.Marshal(lines)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// VerifyQuoteHash checks the current deal-desk BOM against a stored
// tamper hash. On mismatch it returns a short summary naming both
// digests.
func VerifyQuoteHash(items []*model.BOMLineItem, storedHash string) (bool, string) {
	current := ComputeQuoteHash(items)
	if current == storedHash {
		return true, ""
	}
	return false, fmt.Sprintf("quote data changed since last seal: stored %s... current %s...",
		shortHash(storedHash), shortHash(current))
}

// SummarizeChanges produces the human-readable change summary used
// when a resubmission disagrees with an accepted baseline, e.g.
// "quantity changed on 2 lines, price changed on 1 line".
func SummarizeChanges(baseline, current []*model.BOMLineItem) string {
	base := make(map[string]*model.BOMLineItem, len(baseline))
	for _, b := range baseline {
		base[b.ProductModel] = b
	}

	var qtyChanged, priceChanged, added int
	seen := make(map[string]bool, len(current))
	for _, b := range current {
		seen[b.ProductModel] = true
		prev, ok := base[b.ProductModel]
		if !ok {
			added++
			continue
		}
		if prev.SalesQty != b.SalesQty {
			qtyChanged++
		}
		if prev.UnitPrice != b.UnitPrice {
			priceChanged++
		}
	}
	var removed int
	for m := range base {
		if !seen[m] {
			removed++
		}
	}

	var parts []string
	if qtyChanged > 0 {
		parts = append(parts, fmt.Sprintf("quantity changed on %d %s", qtyChanged, plural(qtyChanged, "line")))
	}
	if priceChanged > 0 {
		parts = append(parts, fmt.Sprintf("price changed on %d %s", priceChanged, plural(priceChanged, "line")))
	}
	if added > 0 {
		parts = append(parts, fmt.Sprintf("%d %s added", added, plural(added, "line")))
	}
	if removed > 0 {
		parts = append(parts, fmt.Sprintf("%d %s removed", removed, plural(removed, "line")))
	}
	if len(parts) == 0 {
		return ""
	}
	summary := parts[0]
	for _, p := range parts[1:] {
		summary += ", " + p
	}
	return summary
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
