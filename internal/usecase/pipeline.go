package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"billscan/internal/domain"
	"billscan/internal/metrics"
	"billscan/internal/ports"
	"billscan/internal/staleness"
)

// Config defines the cadence and scope of the ingestion cycle.
type Config struct {
	Congress      int
	ListLimit     int
	Lookback      time.Duration
	Interval      time.Duration
	ErrorInterval time.Duration
	ItemPause     time.Duration
}

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Source     ports.LegislativeSource
	Enricher   ports.Enricher
	Repository ports.Repository
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	Now        func() time.Time
}

// Pipeline runs the ingestion cycle: list recent bills, then per bill
// fetch detail, check staleness, enrich, persist, and record status, with
// the bill's amendments processed the same way after the bill itself.
// Exactly one Pipeline instance runs per target congress; items are
// processed strictly sequentially in source order.
type Pipeline struct {
	cfg     Config
	source  ports.LegislativeSource
	enrich  ports.Enricher
	repo    ports.Repository
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// itemOutcome is the explicit per-item result consumed by the cycle loop;
// failure handling is a branch, not an unwind.
type itemOutcome int

const (
	outcomeProcessed itemOutcome = iota
	outcomeSkipped
	outcomeFailed
)

func (o itemOutcome) String() string {
	switch o {
	case outcomeProcessed:
		return "processed"
	case outcomeSkipped:
		return "skipped"
	default:
		return "error"
	}
}

// NewPipeline constructs the orchestration component.
func NewPipeline(cfg Config, deps PipelineDeps) *Pipeline {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		cfg:     cfg,
		source:  deps.Source,
		enrich:  deps.Enricher,
		repo:    deps.Repository,
		metrics: deps.Metrics,
		logger:  logger,
		now:     now,
	}
}

// Run executes cycles until ctx is cancelled, sleeping the steady-state
// interval between cycles and a shortened interval after a cycle-level
// failure. Cancellation during any sleep returns promptly; Run never
// surfaces per-item errors.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("ingestion worker started",
		"congress", p.cfg.Congress, "interval", p.cfg.Interval)

	for {
		err := p.RunCycle(ctx)
		if ctx.Err() != nil {
			p.logger.Info("ingestion worker stopped")
			return nil
		}

		wait := p.cfg.Interval
		if err != nil {
			p.logger.Error("ingestion cycle failed", "error", err)
			wait = p.cfg.ErrorInterval
		}
		if !p.sleep(ctx, wait) {
			p.logger.Info("ingestion worker stopped")
			return nil
		}
	}
}

// RunCycle performs one full pass. Only the initial listing failure is a
// cycle-level error; every per-item failure is absorbed at the item
// boundary and recorded as that target's processing status.
func (p *Pipeline) RunCycle(ctx context.Context) error {
	start := p.now()
	since := start.Add(-p.cfg.Lookback)

	bills, err := p.source.ListRecentBills(ctx, p.cfg.Congress, since, p.cfg.ListLimit)
	if err != nil {
		return fmt.Errorf("list recent bills: %w", err)
	}
	p.logger.Info("cycle listing complete", "bills", len(bills))

	for i, summary := range bills {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if i > 0 && !p.sleep(ctx, p.cfg.ItemPause) {
			return ctx.Err()
		}

		detail, outcome := p.processBill(ctx, summary)
		p.record("bill", outcome)

		// Amendments are scoped to their parent's cycle slot; a failed
		// detail fetch leaves no parent context to process them against.
		if detail != nil {
			p.processAmendments(ctx, detail)
		}
	}

	if p.metrics != nil {
		p.metrics.ObserveCycle(start)
	}
	p.logger.Info("cycle complete", "duration", p.now().Sub(start))
	return nil
}

// processBill runs the per-item sequence for one bill and returns the
// fetched detail (nil when unavailable) alongside the explicit outcome.
func (p *Pipeline) processBill(ctx context.Context, summary domain.BillSummary) (*domain.Bill, itemOutcome) {
	logger := p.logger.With("bill", summary.Key.String())

	// Skeleton upsert first so status rows for this target always have a
	// parent, whatever step fails later.
	if _, err := p.repo.UpsertBill(ctx, &domain.Bill{
		Key:          summary.Key,
		Title:        summary.Title,
		LatestAction: summary.LatestAction,
		UpdateDate:   summary.UpdateDate,
		URL:          summary.URL,
	}); err != nil {
		logger.Error("persist bill summary", "error", err)
		return nil, outcomeFailed
	}
	targetID := summary.Key.TargetID()

	detail, err := p.source.GetBillDetail(ctx, summary.Key)
	if err != nil {
		p.recordError(ctx, targetID, domain.TargetBill, fmt.Errorf("fetch detail: %w", err))
		return nil, outcomeFailed
	}

	verdict := p.evaluate(ctx, targetID, domain.TargetBill, detail.UpdateDate, logger)
	if !verdict.Stale {
		if _, err := p.repo.UpsertBill(ctx, detail); err != nil {
			logger.Error("refresh bill detail", "error", err)
		}
		logger.Debug("analysis current, skipping enrichment")
		return detail, outcomeSkipped
	}

	content, err := p.enrich.GenerateAnalysis(ctx, detail.EnrichmentSource(), "")
	if err != nil {
		if p.metrics != nil {
			p.metrics.RecordEnrichmentFailure()
		}
		p.recordError(ctx, targetID, domain.TargetBill, fmt.Errorf("generate analysis: %w", err))
		return detail, outcomeFailed
	}

	if _, err := p.repo.UpsertBill(ctx, detail); err != nil {
		p.recordError(ctx, targetID, domain.TargetBill, fmt.Errorf("persist bill: %w", err))
		return detail, outcomeFailed
	}
	if err := p.repo.UpsertAnalysis(ctx, &domain.Analysis{
		TargetID:   targetID,
		TargetKind: domain.TargetBill,
		Content:    *content,
	}); err != nil {
		p.recordError(ctx, targetID, domain.TargetBill, fmt.Errorf("persist analysis: %w", err))
		return detail, outcomeFailed
	}

	p.recordCompleted(ctx, targetID, domain.TargetBill)
	logger.Info("bill enriched", "reason", verdict.Reason)
	return detail, outcomeProcessed
}

// processAmendments runs the identical sub-item sequence for each amendment
// of one bill, in source order, after the bill's own processing.
func (p *Pipeline) processAmendments(ctx context.Context, bill *domain.Bill) {
	logger := p.logger.With("bill", bill.Key.String())

	summaries, err := p.source.ListAmendments(ctx, bill.Key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			logger.Warn("bill vanished before amendment listing")
		} else {
			logger.Error("list amendments", "error", err)
		}
		return
	}

	for _, summary := range summaries {
		if ctx.Err() != nil {
			return
		}
		outcome := p.processAmendment(ctx, bill, summary)
		p.record("amendment", outcome)
	}
}

func (p *Pipeline) processAmendment(ctx context.Context, bill *domain.Bill, summary domain.AmendmentSummary) itemOutcome {
	logger := p.logger.With("amendment", summary.Key.String())

	if _, err := p.repo.UpsertAmendment(ctx, &domain.Amendment{
		Key:          summary.Key,
		BillID:       bill.Key.TargetID(),
		Description:  summary.Description,
		LatestAction: summary.LatestAction,
		UpdateDate:   summary.UpdateDate,
		URL:          summary.URL,
	}); err != nil {
		logger.Error("persist amendment summary", "error", err)
		return outcomeFailed
	}
	targetID := summary.Key.TargetID()

	detail, err := p.source.GetAmendmentDetail(ctx, summary.Key)
	if err != nil {
		p.recordError(ctx, targetID, domain.TargetAmendment, fmt.Errorf("fetch detail: %w", err))
		return outcomeFailed
	}
	detail.BillID = bill.Key.TargetID()

	verdict := p.evaluate(ctx, targetID, domain.TargetAmendment, detail.UpdateDate, logger)
	if !verdict.Stale {
		if _, err := p.repo.UpsertAmendment(ctx, detail); err != nil {
			logger.Error("refresh amendment detail", "error", err)
		}
		logger.Debug("analysis current, skipping enrichment")
		return outcomeSkipped
	}

	content, err := p.enrich.GenerateAnalysis(ctx, detail.EnrichmentSource(), bill.EnrichmentSource())
	if err != nil {
		if p.metrics != nil {
			p.metrics.RecordEnrichmentFailure()
		}
		p.recordError(ctx, targetID, domain.TargetAmendment, fmt.Errorf("generate analysis: %w", err))
		return outcomeFailed
	}

	if _, err := p.repo.UpsertAmendment(ctx, detail); err != nil {
		p.recordError(ctx, targetID, domain.TargetAmendment, fmt.Errorf("persist amendment: %w", err))
		return outcomeFailed
	}
	if err := p.repo.UpsertAnalysis(ctx, &domain.Analysis{
		TargetID:   targetID,
		TargetKind: domain.TargetAmendment,
		Content:    *content,
	}); err != nil {
		p.recordError(ctx, targetID, domain.TargetAmendment, fmt.Errorf("persist analysis: %w", err))
		return outcomeFailed
	}

	p.recordCompleted(ctx, targetID, domain.TargetAmendment)
	logger.Info("amendment enriched", "reason", verdict.Reason)
	return outcomeProcessed
}

// evaluate looks up the stored analysis for a target and compares it with
// the source's update timestamp. A bad timestamp is a data-quality signal,
// logged here, and still means reprocessing.
func (p *Pipeline) evaluate(ctx context.Context, targetID string, kind domain.TargetKind, sourceUpdated string, logger *slog.Logger) staleness.Verdict {
	existing, err := p.repo.GetAnalysis(ctx, targetID, kind)
	if err != nil {
		logger.Error("load stored analysis", "error", err)
		return staleness.Verdict{Stale: true, Reason: staleness.ReasonNoAnalysis}
	}

	analysisCreated := ""
	if existing != nil {
		analysisCreated = existing.CreatedAt.UTC().Format(time.RFC3339)
	}

	verdict := staleness.Evaluate(sourceUpdated, analysisCreated)
	if verdict.Reason == staleness.ReasonBadTimestamp {
		logger.Warn("unparseable timestamp, reprocessing",
			"sourceUpdated", sourceUpdated, "analysisCreated", analysisCreated)
	}
	return verdict
}

func (p *Pipeline) recordCompleted(ctx context.Context, targetID string, kind domain.TargetKind) {
	now := p.now().UTC()
	if err := p.repo.UpsertProcessingStatus(ctx, &domain.ProcessingStatus{
		TargetID:      targetID,
		TargetKind:    kind,
		Status:        domain.StatusCompleted,
		LastChecked:   now,
		LastProcessed: now,
	}); err != nil {
		p.logger.Error("record completed status", "target", targetID, "error", err)
	}
}

func (p *Pipeline) recordError(ctx context.Context, targetID string, kind domain.TargetKind, cause error) {
	p.logger.Error("item failed", "target", targetID, "kind", kind, "error", cause)

	now := p.now().UTC()
	if err := p.repo.UpsertProcessingStatus(ctx, &domain.ProcessingStatus{
		TargetID:      targetID,
		TargetKind:    kind,
		Status:        domain.StatusError,
		LastChecked:   now,
		LastProcessed: now,
		ErrorMessage:  cause.Error(),
	}); err != nil {
		p.logger.Error("record error status", "target", targetID, "error", err)
	}
}

func (p *Pipeline) record(kind string, outcome itemOutcome) {
	if p.metrics != nil {
		p.metrics.RecordItem(kind, outcome.String())
	}
}

// sleep waits d or until cancellation; false means the wait was cancelled.
func (p *Pipeline) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
