package ports

import (
	"context"
	"time"

	"billscan/internal/domain"
)

// LegislativeSource pulls bills and amendments from the remote data source.
// All operations are read-only and idempotent on the remote system.
type LegislativeSource interface {
	// ListRecentBills returns at most limit summaries updated since the
	// given time. An empty list is valid and distinct from an error.
	ListRecentBills(ctx context.Context, congress int, since time.Time, limit int) ([]domain.BillSummary, error)

	// GetBillDetail fetches one bill; a missing bill yields
	// domain.ErrNotFound.
	GetBillDetail(ctx context.Context, key domain.BillKey) (*domain.Bill, error)

	// ListAmendments fetches the amendments of one bill. A missing parent
	// yields domain.ErrNotFound, not an empty list.
	ListAmendments(ctx context.Context, key domain.BillKey) ([]domain.AmendmentSummary, error)

	// GetAmendmentDetail fetches one amendment; a missing amendment yields
	// domain.ErrNotFound.
	GetAmendmentDetail(ctx context.Context, key domain.AmendmentKey) (*domain.Amendment, error)
}

// Enricher turns legislative text into a structured analysis. No
// persistence side effects; schema mismatch is a permanent failure.
type Enricher interface {
	GenerateAnalysis(ctx context.Context, text, contextText string) (*domain.AnalysisContent, error)
}

// Repository persists bills, amendments, analyses, and processing status.
// Every operation is idempotent under repeated identical input.
type Repository interface {
	// UpsertBill writes a bill keyed by its natural composite key and
	// returns the stored row including its storage identifier.
	UpsertBill(ctx context.Context, bill *domain.Bill) (*domain.Bill, error)

	// UpsertAmendment writes an amendment; the parent bill id must resolve.
	UpsertAmendment(ctx context.Context, amendment *domain.Amendment) (*domain.Amendment, error)

	// UpsertAnalysis replaces the analysis for (TargetID, TargetKind).
	// Fails with domain.ErrTargetNotFound when no row with TargetID exists
	// for the given kind.
	UpsertAnalysis(ctx context.Context, analysis *domain.Analysis) error

	// UpsertProcessingStatus overwrites the status row for
	// (TargetID, TargetKind), with the same existence precondition as
	// UpsertAnalysis.
	UpsertProcessingStatus(ctx context.Context, status *domain.ProcessingStatus) error

	// GetAnalysis returns the stored analysis for a target or nil when
	// none exists.
	GetAnalysis(ctx context.Context, targetID string, kind domain.TargetKind) (*domain.Analysis, error)

	// ListProcessingErrors returns all status rows with status=error.
	ListProcessingErrors(ctx context.Context) ([]domain.ProcessingStatus, error)

	// GetBillBundle returns a bill joined with its analysis and amendments,
	// or domain.ErrNotFound.
	GetBillBundle(ctx context.Context, key domain.BillKey) (*domain.BillBundle, error)

	// GetAmendmentBundle returns an amendment joined with its analysis, or
	// domain.ErrNotFound.
	GetAmendmentBundle(ctx context.Context, key domain.AmendmentKey) (*domain.AmendmentBundle, error)

	// ListRecentAnalyses returns the most recent analyses joined with their
	// targets' summary fields.
	ListRecentAnalyses(ctx context.Context, limit int) ([]domain.RecentAnalysis, error)
}
