package service

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/AnTengye/dealpipe/backend/config"
	"github.com/AnTengye/dealpipe/backend/model"
)

// In-memory stores for the pipeline aggregates. Each aggregate is a
// single unit of mutual exclusion: Update runs the mutation under the
// write lock, so two concurrent transitions against the same record
// are serialized and the loser sees the new state.
// In production, this should be replaced with a database.

// ContractStore holds contract aggregates.
type ContractStore struct {
	contracts    map[string]*model.Contract
	mu           sync.RWMutex
	maxContracts int // Maximum contracts to keep, 0 = unlimited
}

// DealDeskStore holds deal-desk quote records.
type DealDeskStore struct {
	deals    map[string]*model.DealDeskRecord
	mu       sync.RWMutex
	maxDeals int
}

// IntakeStore holds extraction intake tasks.
type IntakeStore struct {
	tasks map[string]*model.IntakeTask
	mu    sync.RWMutex
}

var (
	globalContracts *ContractStore
	globalDeals     *DealDeskStore
	globalIntake    *IntakeStore
	storeOnce       sync.Once
)

// NewContractStore creates a contract store bounded to maxContracts
// entries (0 = unlimited).
func NewContractStore(maxContracts int) *ContractStore {
	if maxContracts < 0 {
		maxContracts = 0
	}
	return &ContractStore{
		contracts:    make(map[string]*model.Contract),
		maxContracts: maxContracts,
	}
}

// NewDealDeskStore creates a deal-desk store bounded to maxDeals
// entries (0 = unlimited).
func NewDealDeskStore(maxDeals int) *DealDeskStore {
	if maxDeals < 0 {
		maxDeals = 0
	}
	return &DealDeskStore{
		deals:    make(map[string]*model.DealDeskRecord),
		maxDeals: maxDeals,
	}
}

// NewIntakeStore creates an intake task store.
func NewIntakeStore() *IntakeStore {
	return &IntakeStore{tasks: make(map[string]*model.IntakeTask)}
}

// InitStores initializes the global stores with configuration.
func InitStores(cfg *config.StoreConfig) {
	storeOnce.Do(func() {
		globalContracts = NewContractStore(cfg.MaxContracts)
		globalDeals = NewDealDeskStore(cfg.MaxDeals)
		globalIntake = NewIntakeStore()
		slog.Info("stores initialized",
			"max_contracts", globalContracts.maxContracts,
			"max_deals", globalDeals.maxDeals,
		)
	})
}

// GetContractStore returns the global contract store.
func GetContractStore() *ContractStore {
	if globalContracts == nil {
		globalContracts = NewContractStore(100)
	}
	return globalContracts
}

// GetDealDeskStore returns the global deal-desk store.
func GetDealDeskStore() *DealDeskStore {
	if globalDeals == nil {
		globalDeals = NewDealDeskStore(100)
	}
	return globalDeals
}

// GetIntakeStore returns the global intake store.
func GetIntakeStore() *IntakeStore {
	if globalIntake == nil {
		globalIntake = NewIntakeStore()
	}
	return globalIntake
}

// ContractStore methods

func (s *ContractStore) Save(contract *model.Contract) {
	s.mu.Lock()
	defer s.mu.Unlock()

	contract.UpdatedAt = time.Now()
	s.contracts[contract.ID] = contract

	s.cleanupIfNeeded()
}

// Get returns a deep copy of the contract, or nil.
func (s *ContractStore) Get(id string) *model.Contract {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.contracts[id]; ok {
		return c.Clone()
	}
	return nil
}

// GetByProject returns copies of all contracts for a project.
func (s *ContractStore) GetByProject(projectID string) []*model.Contract {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*model.Contract
	for _, c := range s.contracts {
		if c.ProjectID == projectID {
			result = append(result, c.Clone())
		}
	}
	return result
}

// List returns copies of all contracts.
func (s *ContractStore) List() []*model.Contract {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*model.Contract, 0, len(s.contracts))
	for _, c := range s.contracts {
		result = append(result, c.Clone())
	}
	return result
}

// Update applies fn to a clone of the stored contract under the write
// lock. If fn returns an error nothing is persisted; otherwise the
// clone replaces the original with its version bumped. This gives
// transitions all-or-nothing semantics on top of serialization.
func (s *ContractStore) Update(id string, fn func(*model.Contract) error) (*model.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.contracts[id]
	if !ok {
		return nil, &model.NotFoundError{Kind: "contract", ID: id}
	}

	next := stored.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}

	next.Version = stored.Version + 1
	next.UpdatedAt = time.Now()
	s.contracts[id] = next
	return next.Clone(), nil
}

// cleanupIfNeeded removes oldest contracts if store exceeds maxContracts
// Must be called with lock held
func (s *ContractStore) cleanupIfNeeded() {
	if s.maxContracts <= 0 {
		return // Unlimited
	}

	if len(s.contracts) <= s.maxContracts {
		return
	}

	contracts := make([]*model.Contract, 0, len(s.contracts))
	for _, c := range s.contracts {
		contracts = append(contracts, c)
	}
	sort.Slice(contracts, func(i, j int) bool {
		return contracts[i].CreatedAt.Before(contracts[j].CreatedAt)
	})

	removeCount := len(s.contracts) - s.maxContracts
	for i := 0; i < removeCount; i++ {
		slog.Info("auto-cleaning old contract",
			"contract_id", contracts[i].ID,
			"created_at", contracts[i].CreatedAt,
		)
		delete(s.contracts, contracts[i].ID)
	}
}

// Count returns the number of contracts in the store.
func (s *ContractStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.contracts)
}

// DealDeskStore methods

func (s *DealDeskStore) Save(deal *model.DealDeskRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deal.UpdatedAt = time.Now()
	s.deals[deal.ID] = deal

	s.cleanupIfNeeded()
}

// Get returns a deep copy of the record, or nil.
func (s *DealDeskStore) Get(id string) *model.DealDeskRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if d, ok := s.deals[id]; ok {
		return d.Clone()
	}
	return nil
}

// List returns copies of all records.
func (s *DealDeskStore) List() []*model.DealDeskRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*model.DealDeskRecord, 0, len(s.deals))
	for _, d := range s.deals {
		result = append(result, d.Clone())
	}
	return result
}

// LastApprovedForInquiry returns a copy of the most recently approved
// record sharing the inquiry key, excluding excludeID. Used by the
// conflict detector.
func (s *DealDeskStore) LastApprovedForInquiry(key, excludeID string) *model.DealDeskRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastApprovedForInquiryLocked(key, excludeID)
}

// lastApprovedForInquiryLocked is the unlocked variant for use inside
// Update closures, where the write lock is already held.
func (s *DealDeskStore) lastApprovedForInquiryLocked(key, excludeID string) *model.DealDeskRecord {
	var latest *model.DealDeskRecord
	for _, d := range s.deals {
		if d.ID == excludeID || d.Status != model.DealApproved || d.InquiryKey() != key {
			continue
		}
		if d.ApprovedAt == nil {
			continue
		}
		if latest == nil || d.ApprovedAt.After(*latest.ApprovedAt) {
			latest = d
		}
	}
	if latest == nil {
		return nil
	}
	return latest.Clone()
}

// Update mirrors ContractStore.Update for deal-desk records.
func (s *DealDeskStore) Update(id string, fn func(*model.DealDeskRecord) error) (*model.DealDeskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.deals[id]
	if !ok {
		return nil, &model.NotFoundError{Kind: "deal-desk record", ID: id}
	}

	next := stored.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}

	next.Version = stored.Version + 1
	next.UpdatedAt = time.Now()
	s.deals[id] = next
	return next.Clone(), nil
}

// cleanupIfNeeded removes oldest records if store exceeds maxDeals.
// Must be called with lock held
func (s *DealDeskStore) cleanupIfNeeded() {
	if s.maxDeals <= 0 {
		return
	}
	if len(s.deals) <= s.maxDeals {
		return
	}

	deals := make([]*model.DealDeskRecord, 0, len(s.deals))
	for _, d := range s.deals {
		deals = append(deals, d)
	}
	sort.Slice(deals, func(i, j int) bool {
		return deals[i].CreatedAt.Before(deals[j].CreatedAt)
	})

	removeCount := len(s.deals) - s.maxDeals
	for i := 0; i < removeCount; i++ {
		slog.Info("auto-cleaning old deal-desk record",
			"deal_id", deals[i].ID,
			"created_at", deals[i].CreatedAt,
		)
		delete(s.deals, deals[i].ID)
	}
}

// Count returns the number of records in the store.
func (s *DealDeskStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.deals)
}

// IntakeStore methods

func (s *IntakeStore) Save(task *model.IntakeTask) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task.UpdatedAt = time.Now()
	s.tasks[task.ID] = task
}

func (s *IntakeStore) Get(id string) *model.IntakeTask {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tasks[id]
}

func (s *IntakeStore) UpdateStatus(id, status, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[id]; ok {
		t.Status = status
		t.ErrorMsg = errMsg
		t.UpdatedAt = time.Now()
	}
}

func (s *IntakeStore) UpdateItems(id string, items []model.ExtractedLine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[id]; ok {
		t.Items = items
		t.Status = model.IntakeCompleted
		t.UpdatedAt = time.Now()
	}
}
