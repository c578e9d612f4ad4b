package service

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/AnTengye/dealpipe/backend/model"
)

func newContractFixture(id string) *model.Contract {
	return &model.Contract{
		ID:        id,
		ProjectID: "proj-1",
		Stage:     model.StageSalesInit,
		BOMItems: []*model.BOMLineItem{
			{ID: id + "-l1", ProductModel: "XGN15-12", SalesQty: 10, TechQty: 10, FinalQty: 10, UnitPrice: 15000},
		},
		CreatedAt: time.Now(),
	}
}

func TestContractStoreGetReturnsCopy(t *testing.T) {
	store := NewContractStore(0)
	store.Save(newContractFixture("c1"))

	got := store.Get("c1")
	got.Stage = model.StageApproved
	got.BOMItems[0].SalesQty = 999

	again := store.Get("c1")
	if again.Stage != model.StageSalesInit || again.BOMItems[0].SalesQty != 10 {
		t.Error("Mutating a returned contract must not affect the stored one")
	}
}

func TestContractStoreGetMissing(t *testing.T) {
	store := NewContractStore(0)
	if got := store.Get("nope"); got != nil {
		t.Errorf("Expected nil for missing id, got %v", got)
	}
}

func TestContractStoreUpdateAtomic(t *testing.T) {
	store := NewContractStore(0)
	store.Save(newContractFixture("c1"))

	_, err := store.Update("c1", func(c *model.Contract) error {
		c.Stage = model.StageApproved
		c.BOMItems[0].SalesQty = 999
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("Expected error to propagate")
	}

	after := store.Get("c1")
	if after.Stage != model.StageSalesInit || after.BOMItems[0].SalesQty != 10 {
		t.Error("A failed update must not persist partial mutations")
	}
	if after.Version != 0 {
		t.Errorf("Version must not be bumped on failure, got %d", after.Version)
	}
}

func TestContractStoreUpdateBumpsVersion(t *testing.T) {
	store := NewContractStore(0)
	store.Save(newContractFixture("c1"))

	updated, err := store.Update("c1", func(c *model.Contract) error {
		c.Stage = model.StageTechReview
		return nil
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Version != 1 {
		t.Errorf("Expected version 1, got %d", updated.Version)
	}
	if updated.Stage != model.StageTechReview {
		t.Errorf("Expected tech_review, got %s", updated.Stage)
	}
}

func TestContractStoreUpdateMissing(t *testing.T) {
	store := NewContractStore(0)
	_, err := store.Update("nope", func(c *model.Contract) error { return nil })
	var notFound *model.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("Expected NotFoundError, got %v", err)
	}
}

func TestContractStoreConcurrentUpdates(t *testing.T) {
	store := NewContractStore(0)
	store.Save(newContractFixture("c1"))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Update("c1", func(c *model.Contract) error {
				c.BOMItems[0].SalesQty++
				return nil
			})
		}()
	}
	wg.Wait()

	after := store.Get("c1")
	if after.BOMItems[0].SalesQty != 30 {
		t.Errorf("Expected 30 after 20 serialized increments, got %d", after.BOMItems[0].SalesQty)
	}
	if after.Version != 20 {
		t.Errorf("Expected version 20, got %d", after.Version)
	}
}

func TestContractStoreCleanup(t *testing.T) {
	store := NewContractStore(3)

	base := time.Now()
	for i := 0; i < 5; i++ {
		c := newContractFixture(fmt.Sprintf("c%d", i))
		c.CreatedAt = base.Add(time.Duration(i) * time.Second)
		store.Save(c)
	}

	if got := store.Count(); got != 3 {
		t.Fatalf("Expected 3 contracts after cleanup, got %d", got)
	}
	// Oldest two are gone, newest three remain
	for _, id := range []string{"c0", "c1"} {
		if store.Get(id) != nil {
			t.Errorf("Expected %s to be cleaned up", id)
		}
	}
	for _, id := range []string{"c2", "c3", "c4"} {
		if store.Get(id) == nil {
			t.Errorf("Expected %s to survive cleanup", id)
		}
	}
}

func TestContractStoreGetByProject(t *testing.T) {
	store := NewContractStore(0)
	a := newContractFixture("c1")
	b := newContractFixture("c2")
	b.ProjectID = "proj-2"
	store.Save(a)
	store.Save(b)

	got := store.GetByProject("proj-1")
	if len(got) != 1 || got[0].ID != "c1" {
		t.Errorf("Expected only c1 for proj-1, got %v", got)
	}
}

func TestDealDeskStoreLastApprovedForInquiry(t *testing.T) {
	store := NewDealDeskStore(0)

	early := time.Now().Add(-time.Hour)
	late := time.Now()
	mk := func(id string, client string, status model.DealStatus, at *time.Time) *model.DealDeskRecord {
		return &model.DealDeskRecord{
			ID:            id,
			ProjectID:     "proj-1",
			InquiryClient: client,
			Status:        status,
			ApprovedAt:    at,
			CreatedAt:     time.Now(),
		}
	}
	store.Save(mk("d1", "Acme", model.DealApproved, &early))
	store.Save(mk("d2", "Acme", model.DealApproved, &late))
	store.Save(mk("d3", "Acme", model.DealPending, nil))
	store.Save(mk("d4", "Other", model.DealApproved, &late))

	got := store.LastApprovedForInquiry("proj-1/Acme", "")
	if got == nil || got.ID != "d2" {
		t.Fatalf("Expected d2 as the latest approved record, got %v", got)
	}

	// Excluding the latest falls back to the earlier one
	got = store.LastApprovedForInquiry("proj-1/Acme", "d2")
	if got == nil || got.ID != "d1" {
		t.Fatalf("Expected d1 when excluding d2, got %v", got)
	}

	if got := store.LastApprovedForInquiry("proj-1/Nobody", ""); got != nil {
		t.Errorf("Expected nil for unknown inquiry, got %v", got)
	}
}

func TestIntakeStore(t *testing.T) {
	store := NewIntakeStore()
	store.Save(&model.IntakeTask{ID: "t1", ProjectID: "proj-1", Status: model.IntakePending})

	store.UpdateStatus("t1", model.IntakeProcessing, "")
	if got := store.Get("t1"); got.Status != model.IntakeProcessing {
		t.Errorf("Expected processing, got %s", got.Status)
	}

	store.UpdateItems("t1", []model.ExtractedLine{{ProductModel: "XGN15-12", Quantity: 10}})
	got := store.Get("t1")
	if got.Status != model.IntakeCompleted {
		t.Errorf("Expected completed, got %s", got.Status)
	}
	if len(got.Items) != 1 || got.Items[0].ProductModel != "XGN15-12" {
		t.Errorf("Expected extracted items recorded, got %v", got.Items)
	}

	store.UpdateStatus("t1", model.IntakeFailed, "parser error")
	if got := store.Get("t1"); got.ErrorMsg != "parser error" {
		t.Errorf("Expected error message recorded, got %q", got.ErrorMsg)
	}
}
