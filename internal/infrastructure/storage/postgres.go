package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"billscan/internal/domain"
	"billscan/internal/ports"
	"billscan/internal/retry"
)

// PostgresRepository persists bills, amendments, analyses, and processing
// status in Postgres. Every write is a single atomic conflict-resolving
// statement; no multi-statement transactions are held. Statements go
// through the retry policy: driver and network failures retry, referential
// failures do not.
type PostgresRepository struct {
	db      *sql.DB
	builder sq.StatementBuilderType
	retry   retry.Config
}

var _ ports.Repository = (*PostgresRepository)(nil)

// NewPostgresRepository wires a sql.DB implementation.
func NewPostgresRepository(db *sql.DB, retryCfg retry.Config) *PostgresRepository {
	return &PostgresRepository{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		retry:   retryCfg,
	}
}

// UpsertBill writes a bill keyed by its deterministic id. Fields absent
// from listing summaries keep their stored value when the incoming value
// is empty, so a skeleton upsert never erases an earlier detail upsert.
func (r *PostgresRepository) UpsertBill(ctx context.Context, bill *domain.Bill) (*domain.Bill, error) {
	if !bill.Key.Valid() {
		return nil, retry.Permanent(fmt.Errorf("incomplete bill key %+v", bill.Key))
	}

	query, args, err := r.builder.
		Insert("bills").
		Columns("id", "congress", "bill_type", "bill_number", "title", "description",
			"origin_chamber", "introduced_date", "latest_action_date", "latest_action_text",
			"update_date", "url", "actions", "full_text").
		Values(bill.Key.TargetID(), bill.Key.Congress, bill.Key.BillType, bill.Key.BillNumber,
			bill.Title, bill.Description, bill.OriginChamber, bill.IntroducedDate,
			bill.LatestAction.Date, bill.LatestAction.Text, bill.UpdateDate, bill.URL,
			pq.StringArray(bill.Actions), bill.Text).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = COALESCE(NULLIF(EXCLUDED.description, ''), bills.description),
			origin_chamber = COALESCE(NULLIF(EXCLUDED.origin_chamber, ''), bills.origin_chamber),
			introduced_date = COALESCE(NULLIF(EXCLUDED.introduced_date, ''), bills.introduced_date),
			latest_action_date = EXCLUDED.latest_action_date,
			latest_action_text = EXCLUDED.latest_action_text,
			update_date = EXCLUDED.update_date,
			url = EXCLUDED.url,
			actions = CASE WHEN cardinality(EXCLUDED.actions) > 0 THEN EXCLUDED.actions ELSE bills.actions END,
			full_text = COALESCE(NULLIF(EXCLUDED.full_text, ''), bills.full_text),
			updated_at = NOW()
		RETURNING created_at, updated_at`).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build bill upsert: %w", err)
	}

	stored := *bill
	err = retry.Do(ctx, r.retry, func(ctx context.Context) error {
		return r.db.QueryRowContext(ctx, query, args...).Scan(&stored.CreatedAt, &stored.UpdatedAt)
	})
	if err != nil {
		return nil, fmt.Errorf("upsert bill %s: %w", bill.Key, err)
	}
	return &stored, nil
}

// UpsertAmendment writes an amendment; a non-empty BillID must reference a
// stored bill.
func (r *PostgresRepository) UpsertAmendment(ctx context.Context, amendment *domain.Amendment) (*domain.Amendment, error) {
	if !amendment.Key.Valid() {
		return nil, retry.Permanent(fmt.Errorf("incomplete amendment key %+v", amendment.Key))
	}

	var billID any
	if amendment.BillID != "" {
		billID = amendment.BillID
	}

	query, args, err := r.builder.
		Insert("amendments").
		Columns("id", "bill_id", "congress", "amendment_type", "amendment_number",
			"description", "purpose", "chamber", "submitted_date",
			"latest_action_date", "latest_action_text", "update_date", "url").
		Values(amendment.Key.TargetID(), billID, amendment.Key.Congress,
			amendment.Key.AmendmentType, amendment.Key.AmendmentNumber,
			amendment.Description, amendment.Purpose, amendment.Chamber, amendment.SubmittedDate,
			amendment.LatestAction.Date, amendment.LatestAction.Text, amendment.UpdateDate, amendment.URL).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			bill_id = COALESCE(EXCLUDED.bill_id, amendments.bill_id),
			description = COALESCE(NULLIF(EXCLUDED.description, ''), amendments.description),
			purpose = COALESCE(NULLIF(EXCLUDED.purpose, ''), amendments.purpose),
			chamber = COALESCE(NULLIF(EXCLUDED.chamber, ''), amendments.chamber),
			submitted_date = COALESCE(NULLIF(EXCLUDED.submitted_date, ''), amendments.submitted_date),
			latest_action_date = EXCLUDED.latest_action_date,
			latest_action_text = EXCLUDED.latest_action_text,
			update_date = EXCLUDED.update_date,
			url = EXCLUDED.url,
			updated_at = NOW()
		RETURNING created_at, updated_at`).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build amendment upsert: %w", err)
	}

	stored := *amendment
	err = retry.Do(ctx, r.retry, func(ctx context.Context) error {
		scanErr := r.db.QueryRowContext(ctx, query, args...).Scan(&stored.CreatedAt, &stored.UpdatedAt)
		if isForeignKeyViolation(scanErr) {
			return retry.Permanent(fmt.Errorf("bill %q: %w", amendment.BillID, domain.ErrTargetNotFound))
		}
		return scanErr
	})
	if err != nil {
		return nil, fmt.Errorf("upsert amendment %s: %w", amendment.Key, err)
	}
	return &stored, nil
}

// UpsertAnalysis replaces the analysis for (target_id, target_kind) after
// verifying the target row exists in the kind-specific table. A replaced
// analysis is a new analysis: its creation time refreshes so the staleness
// check sees the regeneration, not the first-ever write.
func (r *PostgresRepository) UpsertAnalysis(ctx context.Context, analysis *domain.Analysis) error {
	if !analysis.TargetKind.Valid() {
		return retry.Permanent(fmt.Errorf("unknown target kind %q", analysis.TargetKind))
	}

	keyPoints, err := json.Marshal(analysis.Content.KeyPoints)
	if err != nil {
		return retry.Permanent(fmt.Errorf("marshal key points: %w", err))
	}

	query, args, err := r.builder.
		Insert("analyses").
		Columns("target_id", "target_kind", "summary", "perspective", "key_points",
			"estimated_cost_impact", "government_growth_analysis",
			"market_impact_analysis", "liberty_impact_analysis").
		Values(analysis.TargetID, string(analysis.TargetKind),
			analysis.Content.Summary, analysis.Content.Perspective, keyPoints,
			analysis.Content.EstimatedCostImpact, analysis.Content.GovernmentGrowthAnalysis,
			analysis.Content.MarketImpactAnalysis, analysis.Content.LibertyImpactAnalysis).
		Suffix(`ON CONFLICT (target_id, target_kind) DO UPDATE SET
			summary = EXCLUDED.summary,
			perspective = EXCLUDED.perspective,
			key_points = EXCLUDED.key_points,
			estimated_cost_impact = EXCLUDED.estimated_cost_impact,
			government_growth_analysis = EXCLUDED.government_growth_analysis,
			market_impact_analysis = EXCLUDED.market_impact_analysis,
			liberty_impact_analysis = EXCLUDED.liberty_impact_analysis,
			created_at = NOW(),
			updated_at = NOW()`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build analysis upsert: %w", err)
	}

	err = retry.Do(ctx, r.retry, func(ctx context.Context) error {
		if checkErr := r.requireTarget(ctx, analysis.TargetID, analysis.TargetKind); checkErr != nil {
			return checkErr
		}
		_, execErr := r.db.ExecContext(ctx, query, args...)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("upsert analysis %s/%s: %w", analysis.TargetKind, analysis.TargetID, err)
	}
	return nil
}

// UpsertProcessingStatus overwrites the status row for a target, with the
// same existence precondition as UpsertAnalysis.
func (r *PostgresRepository) UpsertProcessingStatus(ctx context.Context, status *domain.ProcessingStatus) error {
	if !status.TargetKind.Valid() {
		return retry.Permanent(fmt.Errorf("unknown target kind %q", status.TargetKind))
	}

	query, args, err := r.builder.
		Insert("processing_status").
		Columns("target_id", "target_kind", "status", "last_checked", "last_processed", "error_message").
		Values(status.TargetID, string(status.TargetKind), string(status.Status),
			status.LastChecked, status.LastProcessed, status.ErrorMessage).
		Suffix(`ON CONFLICT (target_id, target_kind) DO UPDATE SET
			status = EXCLUDED.status,
			last_checked = EXCLUDED.last_checked,
			last_processed = EXCLUDED.last_processed,
			error_message = EXCLUDED.error_message,
			updated_at = NOW()`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build status upsert: %w", err)
	}

	err = retry.Do(ctx, r.retry, func(ctx context.Context) error {
		if checkErr := r.requireTarget(ctx, status.TargetID, status.TargetKind); checkErr != nil {
			return checkErr
		}
		_, execErr := r.db.ExecContext(ctx, query, args...)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("upsert status %s/%s: %w", status.TargetKind, status.TargetID, err)
	}
	return nil
}

// GetAnalysis returns the stored analysis for a target, or nil when none
// exists.
func (r *PostgresRepository) GetAnalysis(ctx context.Context, targetID string, kind domain.TargetKind) (*domain.Analysis, error) {
	query, args, err := r.builder.
		Select(analysisColumns...).
		From("analyses").
		Where(sq.Eq{"target_id": targetID, "target_kind": string(kind)}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build analysis select: %w", err)
	}

	var analysis *domain.Analysis
	err = retry.Do(ctx, r.retry, func(ctx context.Context) error {
		scanned, scanErr := scanAnalysis(r.db.QueryRowContext(ctx, query, args...))
		if errors.Is(scanErr, sql.ErrNoRows) {
			analysis = nil
			return nil
		}
		if scanErr != nil {
			return scanErr
		}
		analysis = scanned
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get analysis %s/%s: %w", kind, targetID, err)
	}
	return analysis, nil
}

// ListProcessingErrors returns every status row with status=error.
func (r *PostgresRepository) ListProcessingErrors(ctx context.Context) ([]domain.ProcessingStatus, error) {
	query, args, err := r.builder.
		Select("target_id", "target_kind", "status", "last_checked", "last_processed", "error_message").
		From("processing_status").
		Where(sq.Eq{"status": string(domain.StatusError)}).
		OrderBy("last_processed DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build errors select: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list processing errors: %w", err)
	}
	defer rows.Close()

	var statuses []domain.ProcessingStatus
	for rows.Next() {
		var status domain.ProcessingStatus
		var kind, state string
		if err := rows.Scan(&status.TargetID, &kind, &state,
			&status.LastChecked, &status.LastProcessed, &status.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scan status: %w", err)
		}
		status.TargetKind = domain.TargetKind(kind)
		status.Status = domain.Status(state)
		statuses = append(statuses, status)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return statuses, nil
}

// requireTarget verifies the (targetID, kind) parent row exists. The check
// and the dependent write are not atomic against concurrent writers; the
// pipeline runs a single ingestion worker per collection.
func (r *PostgresRepository) requireTarget(ctx context.Context, targetID string, kind domain.TargetKind) error {
	table := "bills"
	if kind == domain.TargetAmendment {
		table = "amendments"
	}

	var one int
	err := r.db.QueryRowContext(ctx, fmt.Sprintf("SELECT 1 FROM %s WHERE id = $1", table), targetID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return retry.Permanent(fmt.Errorf("%s %q: %w", kind, targetID, domain.ErrTargetNotFound))
	}
	if err != nil {
		return fmt.Errorf("check %s existence: %w", kind, err)
	}
	return nil
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}
