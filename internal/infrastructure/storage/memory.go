package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"billscan/internal/domain"
	"billscan/internal/ports"
)

// MemoryRepository is an in-memory Repository with the same invariants as
// the Postgres implementation. Used by tests and DSN-less local runs.
type MemoryRepository struct {
	mu       sync.RWMutex
	bills    map[string]domain.Bill
	amends   map[string]domain.Amendment
	analyses map[statusKey]domain.Analysis
	statuses map[statusKey]domain.ProcessingStatus
	clock    func() time.Time
}

type statusKey struct {
	targetID string
	kind     domain.TargetKind
}

var _ ports.Repository = (*MemoryRepository)(nil)

// NewMemoryRepository builds an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		bills:    map[string]domain.Bill{},
		amends:   map[string]domain.Amendment{},
		analyses: map[statusKey]domain.Analysis{},
		statuses: map[statusKey]domain.ProcessingStatus{},
		clock:    time.Now,
	}
}

// WithClock sets the time source, for tests.
func (r *MemoryRepository) WithClock(clock func() time.Time) *MemoryRepository {
	r.clock = clock
	return r
}

// UpsertBill inserts or updates a bill by its natural key. Empty incoming
// detail fields keep the stored value, matching the Postgres upsert.
func (r *MemoryRepository) UpsertBill(_ context.Context, bill *domain.Bill) (*domain.Bill, error) {
	if !bill.Key.Valid() {
		return nil, fmt.Errorf("incomplete bill key %+v", bill.Key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock().UTC()
	stored := *bill
	if existing, ok := r.bills[bill.Key.TargetID()]; ok {
		stored.CreatedAt = existing.CreatedAt
		if stored.Description == "" {
			stored.Description = existing.Description
		}
		if stored.OriginChamber == "" {
			stored.OriginChamber = existing.OriginChamber
		}
		if stored.IntroducedDate == "" {
			stored.IntroducedDate = existing.IntroducedDate
		}
		if len(stored.Actions) == 0 {
			stored.Actions = existing.Actions
		}
		if stored.Text == "" {
			stored.Text = existing.Text
		}
	} else {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	r.bills[bill.Key.TargetID()] = stored
	return &stored, nil
}

// UpsertAmendment inserts or updates an amendment; a non-empty BillID must
// reference a stored bill.
func (r *MemoryRepository) UpsertAmendment(_ context.Context, amendment *domain.Amendment) (*domain.Amendment, error) {
	if !amendment.Key.Valid() {
		return nil, fmt.Errorf("incomplete amendment key %+v", amendment.Key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if amendment.BillID != "" {
		if _, ok := r.bills[amendment.BillID]; !ok {
			return nil, fmt.Errorf("bill %q: %w", amendment.BillID, domain.ErrTargetNotFound)
		}
	}

	now := r.clock().UTC()
	stored := *amendment
	if existing, ok := r.amends[amendment.Key.TargetID()]; ok {
		stored.CreatedAt = existing.CreatedAt
		if stored.BillID == "" {
			stored.BillID = existing.BillID
		}
		if stored.Description == "" {
			stored.Description = existing.Description
		}
		if stored.Purpose == "" {
			stored.Purpose = existing.Purpose
		}
		if stored.Chamber == "" {
			stored.Chamber = existing.Chamber
		}
		if stored.SubmittedDate == "" {
			stored.SubmittedDate = existing.SubmittedDate
		}
	} else {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	r.amends[amendment.Key.TargetID()] = stored
	return &stored, nil
}

// UpsertAnalysis replaces the analysis for (TargetID, TargetKind) after the
// existence check against the kind-specific table.
func (r *MemoryRepository) UpsertAnalysis(_ context.Context, analysis *domain.Analysis) error {
	if !analysis.TargetKind.Valid() {
		return fmt.Errorf("unknown target kind %q", analysis.TargetKind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireTargetLocked(analysis.TargetID, analysis.TargetKind); err != nil {
		return err
	}

	// A replaced analysis is a new analysis: CreatedAt refreshes so the
	// staleness check sees the regeneration time.
	now := r.clock().UTC()
	key := statusKey{analysis.TargetID, analysis.TargetKind}
	stored := *analysis
	stored.CreatedAt = now
	stored.UpdatedAt = now

	r.analyses[key] = stored
	return nil
}

// UpsertProcessingStatus overwrites the status row for a target.
func (r *MemoryRepository) UpsertProcessingStatus(_ context.Context, status *domain.ProcessingStatus) error {
	if !status.TargetKind.Valid() {
		return fmt.Errorf("unknown target kind %q", status.TargetKind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireTargetLocked(status.TargetID, status.TargetKind); err != nil {
		return err
	}

	r.statuses[statusKey{status.TargetID, status.TargetKind}] = *status
	return nil
}

// GetAnalysis returns the stored analysis for a target or nil.
func (r *MemoryRepository) GetAnalysis(_ context.Context, targetID string, kind domain.TargetKind) (*domain.Analysis, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if analysis, ok := r.analyses[statusKey{targetID, kind}]; ok {
		return &analysis, nil
	}
	return nil, nil
}

// ListProcessingErrors returns every status row with status=error.
func (r *MemoryRepository) ListProcessingErrors(_ context.Context) ([]domain.ProcessingStatus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var statuses []domain.ProcessingStatus
	for _, status := range r.statuses {
		if status.Status == domain.StatusError {
			statuses = append(statuses, status)
		}
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].LastProcessed.After(statuses[j].LastProcessed)
	})
	return statuses, nil
}

// GetBillBundle returns a bill joined with its analysis and amendments.
func (r *MemoryRepository) GetBillBundle(_ context.Context, key domain.BillKey) (*domain.BillBundle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bill, ok := r.bills[key.TargetID()]
	if !ok {
		return nil, fmt.Errorf("bill %s: %w", key, domain.ErrNotFound)
	}

	bundle := &domain.BillBundle{Bill: bill}
	if analysis, ok := r.analyses[statusKey{key.TargetID(), domain.TargetBill}]; ok {
		copied := analysis
		bundle.Analysis = &copied
	}
	for _, amendment := range r.amends {
		if amendment.BillID == key.TargetID() {
			bundle.Amendments = append(bundle.Amendments, amendment)
		}
	}
	sort.Slice(bundle.Amendments, func(i, j int) bool {
		return bundle.Amendments[i].Key.TargetID() < bundle.Amendments[j].Key.TargetID()
	})
	return bundle, nil
}

// GetAmendmentBundle returns an amendment joined with its analysis.
func (r *MemoryRepository) GetAmendmentBundle(_ context.Context, key domain.AmendmentKey) (*domain.AmendmentBundle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	amendment, ok := r.amends[key.TargetID()]
	if !ok {
		return nil, fmt.Errorf("amendment %s: %w", key, domain.ErrNotFound)
	}

	bundle := &domain.AmendmentBundle{Amendment: amendment}
	if analysis, ok := r.analyses[statusKey{key.TargetID(), domain.TargetAmendment}]; ok {
		copied := analysis
		bundle.Analysis = &copied
	}
	return bundle, nil
}

// ListRecentAnalyses returns the most recently updated analyses joined with
// their targets' summary fields.
func (r *MemoryRepository) ListRecentAnalyses(_ context.Context, limit int) ([]domain.RecentAnalysis, error) {
	if limit <= 0 {
		limit = 10
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	recent := make([]domain.RecentAnalysis, 0, len(r.analyses))
	for key, analysis := range r.analyses {
		entry := domain.RecentAnalysis{Analysis: analysis}
		switch key.kind {
		case domain.TargetBill:
			if bill, ok := r.bills[key.targetID]; ok {
				entry.TargetTitle = bill.Title
				entry.TargetURL = bill.URL
			}
		case domain.TargetAmendment:
			if amendment, ok := r.amends[key.targetID]; ok {
				entry.TargetTitle = amendment.Description
				entry.TargetURL = amendment.URL
			}
		}
		recent = append(recent, entry)
	}

	sort.Slice(recent, func(i, j int) bool {
		return recent[i].Analysis.UpdatedAt.After(recent[j].Analysis.UpdatedAt)
	})
	if len(recent) > limit {
		recent = recent[:limit]
	}
	return recent, nil
}

func (r *MemoryRepository) requireTargetLocked(targetID string, kind domain.TargetKind) error {
	switch kind {
	case domain.TargetBill:
		if _, ok := r.bills[targetID]; !ok {
			return fmt.Errorf("bill %q: %w", targetID, domain.ErrTargetNotFound)
		}
	case domain.TargetAmendment:
		if _, ok := r.amends[targetID]; !ok {
			return fmt.Errorf("amendment %q: %w", targetID, domain.ErrTargetNotFound)
		}
	}
	return nil
}
