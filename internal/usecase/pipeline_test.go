package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billscan/internal/domain"
	"billscan/internal/infrastructure/storage"
	"billscan/internal/staleness"
)

type fakeSource struct {
	mu sync.Mutex

	bills        []domain.BillSummary
	details      map[string]*domain.Bill
	amendments   map[string][]domain.AmendmentSummary
	amendDetails map[string]*domain.Amendment

	listErr    error
	detailErrs map[string]error
	listCalls  int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		details:      map[string]*domain.Bill{},
		amendments:   map[string][]domain.AmendmentSummary{},
		amendDetails: map[string]*domain.Amendment{},
		detailErrs:   map[string]error{},
	}
}

func (s *fakeSource) addBill(bill domain.Bill) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bills = append(s.bills, domain.BillSummary{
		Key:          bill.Key,
		Title:        bill.Title,
		LatestAction: bill.LatestAction,
		UpdateDate:   bill.UpdateDate,
		URL:          bill.URL,
	})
	copied := bill
	s.details[bill.Key.TargetID()] = &copied
}

func (s *fakeSource) addAmendment(billKey domain.BillKey, amendment domain.Amendment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.amendments[billKey.TargetID()] = append(s.amendments[billKey.TargetID()], domain.AmendmentSummary{
		Key:          amendment.Key,
		Description:  amendment.Description,
		LatestAction: amendment.LatestAction,
		UpdateDate:   amendment.UpdateDate,
		URL:          amendment.URL,
	})
	copied := amendment
	s.amendDetails[amendment.Key.TargetID()] = &copied
}

func (s *fakeSource) setUpdateDate(key domain.BillKey, updated string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.bills {
		if s.bills[i].Key == key {
			s.bills[i].UpdateDate = updated
		}
	}
	s.details[key.TargetID()].UpdateDate = updated
}

func (s *fakeSource) ListRecentBills(context.Context, int, time.Time, int) ([]domain.BillSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]domain.BillSummary(nil), s.bills...), nil
}

func (s *fakeSource) listCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCalls
}

func (s *fakeSource) GetBillDetail(_ context.Context, key domain.BillKey) (*domain.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.detailErrs[key.TargetID()]; err != nil {
		return nil, err
	}
	detail, ok := s.details[key.TargetID()]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *detail
	return &copied, nil
}

func (s *fakeSource) ListAmendments(_ context.Context, key domain.BillKey) ([]domain.AmendmentSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.AmendmentSummary(nil), s.amendments[key.TargetID()]...), nil
}

func (s *fakeSource) GetAmendmentDetail(_ context.Context, key domain.AmendmentKey) (*domain.Amendment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	detail, ok := s.amendDetails[key.TargetID()]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *detail
	return &copied, nil
}

type enrichCall struct {
	text    string
	context string
}

type fakeEnricher struct {
	mu    sync.Mutex
	calls []enrichCall
	err   error
}

func (e *fakeEnricher) GenerateAnalysis(_ context.Context, text, contextText string) (*domain.AnalysisContent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, enrichCall{text: text, context: contextText})
	if e.err != nil {
		return nil, e.err
	}
	return &domain.AnalysisContent{
		Summary:                  "analysis of: " + text,
		Perspective:              "p",
		KeyPoints:                []string{"k1"},
		EstimatedCostImpact:      "c",
		GovernmentGrowthAnalysis: "g",
		MarketImpactAnalysis:     "m",
		LibertyImpactAnalysis:    "l",
	}, nil
}

func (e *fakeEnricher) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type pipelineFixture struct {
	source   *fakeSource
	enricher *fakeEnricher
	repo     *storage.MemoryRepository
	pipeline *Pipeline
	now      time.Time
}

func newFixture(t *testing.T, cfg Config) *pipelineFixture {
	t.Helper()

	f := &pipelineFixture{
		source:   newFakeSource(),
		enricher: &fakeEnricher{},
		now:      time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC),
	}
	f.repo = storage.NewMemoryRepository().WithClock(func() time.Time { return f.now })

	if cfg.Congress == 0 {
		cfg.Congress = 118
	}
	if cfg.ListLimit == 0 {
		cfg.ListLimit = 50
	}
	f.pipeline = NewPipeline(cfg, PipelineDeps{
		Source:     f.source,
		Enricher:   f.enricher,
		Repository: f.repo,
		Logger:     testLogger(),
		Now:        func() time.Time { return f.now },
	})
	return f
}

func fixtureBill(number int) domain.Bill {
	return domain.Bill{
		Key:            domain.BillKey{Congress: 118, BillType: "HR", BillNumber: number},
		Title:          "Widget Act",
		Description:    "Regulates widgets",
		OriginChamber:  "House",
		IntroducedDate: "2024-05-01",
		LatestAction:   domain.LatestAction{Date: "2024-06-10", Text: "Passed House"},
		UpdateDate:     "2024-06-14T00:00:00Z",
		URL:            "https://example.test/hr1",
		Text:           "Be it enacted, widgets shall be regulated.",
	}
}

func TestRunCycleProcessesBillAndAmendments(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	bill := fixtureBill(1)
	f.source.addBill(bill)
	f.source.addAmendment(bill.Key, domain.Amendment{
		Key:           domain.AmendmentKey{Congress: 118, AmendmentType: "HAMDT", AmendmentNumber: 55},
		Description:   "Strikes section 2",
		Purpose:       "Narrow the mandate",
		Chamber:       "House",
		SubmittedDate: "2024-06-08",
		UpdateDate:    "2024-06-14T00:00:00Z",
	})

	ctx := context.Background()
	require.NoError(t, f.pipeline.RunCycle(ctx))
	assert.Equal(t, 2, f.enricher.callCount())

	billAnalysis, err := f.repo.GetAnalysis(ctx, bill.Key.TargetID(), domain.TargetBill)
	require.NoError(t, err)
	require.NotNil(t, billAnalysis)
	assert.Equal(t, "analysis of: "+bill.Text, billAnalysis.Content.Summary)

	amdtID := "118-hamdt-55"
	amdtAnalysis, err := f.repo.GetAnalysis(ctx, amdtID, domain.TargetAmendment)
	require.NoError(t, err)
	require.NotNil(t, amdtAnalysis)

	// The amendment prompt carries its parent bill's text as context.
	require.Len(t, f.enricher.calls, 2)
	assert.Equal(t, bill.Text, f.enricher.calls[1].context)

	bundle, err := f.repo.GetBillBundle(ctx, bill.Key)
	require.NoError(t, err)
	assert.Equal(t, "Regulates widgets", bundle.Bill.Description)
	require.Len(t, bundle.Amendments, 1)
	assert.Equal(t, bill.Key.TargetID(), bundle.Amendments[0].BillID)

	errs, err := f.repo.ListProcessingErrors(ctx)
	require.NoError(t, err)
	assert.Empty(t, errs)
}

func TestRunCycleSkipsCurrentAnalysis(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	bill := fixtureBill(1)
	f.source.addBill(bill)

	ctx := context.Background()
	require.NoError(t, f.pipeline.RunCycle(ctx))
	require.Equal(t, 1, f.enricher.callCount())

	// Nothing changed upstream: the stored analysis is newer than the
	// source's update date, so the second cycle must not enrich again.
	f.now = f.now.Add(time.Hour)
	require.NoError(t, f.pipeline.RunCycle(ctx))
	assert.Equal(t, 1, f.enricher.callCount())
}

func TestRunCycleReprocessesOnNewerSource(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	bill := fixtureBill(1)
	f.source.addBill(bill)

	ctx := context.Background()
	require.NoError(t, f.pipeline.RunCycle(ctx))
	require.Equal(t, 1, f.enricher.callCount())

	// Source publishes an update after the stored analysis was created.
	f.now = f.now.Add(2 * time.Hour)
	f.source.setUpdateDate(bill.Key, f.now.Add(-time.Hour).Format(time.RFC3339))
	require.NoError(t, f.pipeline.RunCycle(ctx))
	assert.Equal(t, 2, f.enricher.callCount())

	// The regenerated analysis is newer than the source again, so a third
	// cycle with nothing new upstream goes back to skipping.
	require.NoError(t, f.pipeline.RunCycle(ctx))
	assert.Equal(t, 2, f.enricher.callCount())
}

func TestRunCycleAbsorbsItemFailures(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	bill1, bill2, bill3 := fixtureBill(1), fixtureBill(2), fixtureBill(3)
	f.source.addBill(bill1)
	f.source.addBill(bill2)
	f.source.addBill(bill3)
	f.source.detailErrs[bill2.Key.TargetID()] = errors.New("source unavailable")

	ctx := context.Background()
	require.NoError(t, f.pipeline.RunCycle(ctx), "item failures must not fail the cycle")
	assert.Equal(t, 2, f.enricher.callCount())

	errs, err := f.repo.ListProcessingErrors(ctx)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, bill2.Key.TargetID(), errs[0].TargetID)
	assert.Contains(t, errs[0].ErrorMessage, "fetch detail")

	for _, key := range []domain.BillKey{bill1.Key, bill3.Key} {
		analysis, err := f.repo.GetAnalysis(ctx, key.TargetID(), domain.TargetBill)
		require.NoError(t, err)
		assert.NotNil(t, analysis, "bill %s must still be processed", key)
	}
}

func TestRunCycleEnrichmentFailureRecordsError(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	bill := fixtureBill(1)
	f.source.addBill(bill)
	f.enricher.err = errors.New("model overloaded")

	ctx := context.Background()
	require.NoError(t, f.pipeline.RunCycle(ctx))

	errs, err := f.repo.ListProcessingErrors(ctx)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, domain.StatusError, errs[0].Status)
	assert.Contains(t, errs[0].ErrorMessage, "generate analysis")

	// The skeleton upsert ran before the failure, so the bill row exists.
	bundle, err := f.repo.GetBillBundle(ctx, bill.Key)
	require.NoError(t, err)
	assert.Equal(t, "Widget Act", bundle.Bill.Title)
	assert.Nil(t, bundle.Analysis)
}

func TestRunCycleListingFailureIsFatal(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	f.source.listErr = errors.New("congress API down")

	err := f.pipeline.RunCycle(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list recent bills")
}

func TestRunCycleSkipsAmendmentsOfFailedBill(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	bill := fixtureBill(1)
	f.source.addBill(bill)
	f.source.addAmendment(bill.Key, domain.Amendment{
		Key:         domain.AmendmentKey{Congress: 118, AmendmentType: "HAMDT", AmendmentNumber: 55},
		Description: "Strikes section 2",
		UpdateDate:  "2024-06-14T00:00:00Z",
	})
	f.source.detailErrs[bill.Key.TargetID()] = errors.New("source unavailable")

	ctx := context.Background()
	require.NoError(t, f.pipeline.RunCycle(ctx))
	assert.Equal(t, 0, f.enricher.callCount())

	analysis, err := f.repo.GetAnalysis(ctx, "118-hamdt-55", domain.TargetAmendment)
	require.NoError(t, err)
	assert.Nil(t, analysis, "amendments of a failed bill must not be processed")
}

func TestRunReturnsNilOnCancellation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{Interval: time.Hour, ErrorInterval: time.Hour})
	f.source.addBill(fixtureBill(1))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- f.pipeline.Run(ctx)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestRunRetriesAfterCycleFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{Interval: time.Hour, ErrorInterval: 10 * time.Millisecond})
	f.source.listErr = errors.New("congress API down")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	require.NoError(t, f.pipeline.Run(ctx))
	// The shortened error interval let multiple cycles run before cancel.
	assert.Greater(t, f.source.listCallCount(), 1)
}

func TestEvaluateBadTimestampForcesReprocessing(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	bill := fixtureBill(1)
	bill.UpdateDate = "not-a-timestamp"
	f.source.addBill(bill)

	ctx := context.Background()
	require.NoError(t, f.pipeline.RunCycle(ctx))
	require.Equal(t, 1, f.enricher.callCount())

	// Still unparseable next cycle: keeps reprocessing rather than skipping.
	f.now = f.now.Add(time.Hour)
	require.NoError(t, f.pipeline.RunCycle(ctx))
	assert.Equal(t, 2, f.enricher.callCount())

	verdict := staleness.Evaluate(bill.UpdateDate, f.now.Format(time.RFC3339))
	assert.Equal(t, staleness.ReasonBadTimestamp, verdict.Reason)
}

func TestItemOutcomeStrings(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "processed", outcomeProcessed.String())
	assert.Equal(t, "skipped", outcomeSkipped.String())
	assert.Equal(t, "error", outcomeFailed.String())
}
