package service

import (
	"strings"
	"testing"

	"github.com/AnTengye/dealpipe/backend/model"
)

func sampleLines() []*model.BOMLineItem {
	return []*model.BOMLineItem{
		{ID: "b", ProductModel: "KYN28-12", AIExtractedQty: 4, SalesQty: 4, TechQty: 4, FinalQty: 4, UnitPrice: 42000},
		{ID: "a", ProductModel: "XGN15-12", AIExtractedQty: 10, SalesQty: 10, TechQty: 12, FinalQty: 12, UnitPrice: 14500},
	}
}

func TestComputeSnapshotHashDeterministic(t *testing.T) {
	terms := model.CommercialTerms{DeliveryTime: "45 days", RatioAdvance: 100}

	h1 := ComputeSnapshotHash(sampleLines(), terms)
	h2 := ComputeSnapshotHash(sampleLines(), terms)
	if h1 != h2 {
		t.Errorf("Hash not deterministic: %s vs %s", h1, h2)
	}
	if len(h1) != 64 {
		t.Errorf("Expected 64 hex chars, got %d", len(h1))
	}
}

func TestComputeSnapshotHashOrderIndependent(t *testing.T) {
	terms := model.CommercialTerms{}
	lines := sampleLines()
	reversed := []*model.BOMLineItem{lines[1], lines[0]}

	if ComputeSnapshotHash(lines, terms) != ComputeSnapshotHash(reversed, terms) {
		t.Error("Hash must not depend on line order")
	}
}

func TestComputeSnapshotHashFieldSensitivity(t *testing.T) {
	terms := model.CommercialTerms{DeliveryTime: "45 days"}
	base := ComputeSnapshotHash(sampleLines(), terms)

	mutations := []struct {
		name   string
		mutate func(items []*model.BOMLineItem, terms *model.CommercialTerms)
	}{
		{"final_qty", func(items []*model.BOMLineItem, _ *model.CommercialTerms) { items[0].FinalQty++ }},
		{"tech_qty", func(items []*model.BOMLineItem, _ *model.CommercialTerms) { items[0].TechQty++ }},
		{"sales_qty", func(items []*model.BOMLineItem, _ *model.CommercialTerms) { items[0].SalesQty++ }},
		{"unit_price", func(items []*model.BOMLineItem, _ *model.CommercialTerms) { items[0].UnitPrice += 1 }},
		{"product_model", func(items []*model.BOMLineItem, _ *model.CommercialTerms) { items[0].ProductModel = "other" }},
		{"terms", func(_ []*model.BOMLineItem, tm *model.CommercialTerms) { tm.DeliveryTime = "60 days" }},
	}

	for _, tc := range mutations {
		t.Run(tc.name, func(t *testing.T) {
			items := sampleLines()
			tm := terms
			tc.mutate(items, &tm)
			if ComputeSnapshotHash(items, tm) == base {
				t.Errorf("Changing %s must change the hash", tc.name)
			}
		})
	}
}

func TestSnapshotHashIgnoresNonCommittedFields(t *testing.T) {
	terms := model.CommercialTerms{}
	base := ComputeSnapshotHash(sampleLines(), terms)

	items := sampleLines()
	items[0].Remark = "updated remark"
	items[0].BasePrice = 12000
	items[0].CommissionRatio = 0.2
	if ComputeSnapshotHash(items, terms) != base {
		t.Error("Remark and settlement inputs must not affect the snapshot hash")
	}
}

func TestQuoteHash(t *testing.T) {
	lines := sampleLines()
	h := ComputeQuoteHash(lines)

	ok, summary := VerifyQuoteHash(sampleLines(), h)
	if !ok {
		t.Fatalf("Faithful copy failed verification: %s", summary)
	}

	altered := sampleLines()
	altered[0].UnitPrice = 40000
	ok, summary = VerifyQuoteHash(altered, h)
	if ok {
		t.Fatal("Altered copy must fail verification")
	}
	if !strings.Contains(summary, "quote data changed") {
		t.Errorf("Unexpected summary %q", summary)
	}

	// Quotes ignore the technical columns
	techEdit := sampleLines()
	techEdit[1].TechQty = 99
	techEdit[1].FinalQty = 99
	if ok, _ := VerifyQuoteHash(techEdit, h); !ok {
		t.Error("Quote hash must only cover model, sales quantity and price")
	}
}

func TestSummarizeChanges(t *testing.T) {
	baseline := sampleLines()

	current := sampleLines()
	current[0].SalesQty = 6
	current[1].UnitPrice = 14000
	current = append(current, &model.BOMLineItem{ProductModel: "ZW32-12", SalesQty: 2, UnitPrice: 8000})

	got := SummarizeChanges(baseline, current)
	want := "quantity changed on 1 line, price changed on 1 line, 1 line added"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}

	if got := SummarizeChanges(baseline, sampleLines()); got != "" {
		t.Errorf("Identical BOMs must produce an empty summary, got %q", got)
	}

	removedOnly := SummarizeChanges(baseline, baseline[:1])
	if removedOnly != "1 line removed" {
		t.Errorf("Expected %q, got %q", "1 line removed", removedOnly)
	}
}
