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
)

// Read surface consumed by the request-serving layer.

var analysisColumns = []string{
	"target_id", "target_kind", "summary", "perspective", "key_points",
	"estimated_cost_impact", "government_growth_analysis",
	"market_impact_analysis", "liberty_impact_analysis", "created_at", "updated_at",
}

var billColumns = []string{
	"congress", "bill_type", "bill_number", "title", "description",
	"origin_chamber", "introduced_date", "latest_action_date", "latest_action_text",
	"update_date", "url", "actions", "full_text", "created_at", "updated_at",
}

var amendmentColumns = []string{
	"bill_id", "congress", "amendment_type", "amendment_number",
	"description", "purpose", "chamber", "submitted_date",
	"latest_action_date", "latest_action_text", "update_date", "url",
	"created_at", "updated_at",
}

// GetBillBundle returns a bill joined with its current analysis and
// amendments, or domain.ErrNotFound.
func (r *PostgresRepository) GetBillBundle(ctx context.Context, key domain.BillKey) (*domain.BillBundle, error) {
	query, args, err := r.builder.
		Select(billColumns...).
		From("bills").
		Where(sq.Eq{"id": key.TargetID()}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build bill select: %w", err)
	}

	bill, err := scanBill(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("bill %s: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get bill %s: %w", key, err)
	}

	analysis, err := r.GetAnalysis(ctx, key.TargetID(), domain.TargetBill)
	if err != nil {
		return nil, err
	}

	amendments, err := r.listAmendmentsOf(ctx, key.TargetID())
	if err != nil {
		return nil, fmt.Errorf("list amendments of %s: %w", key, err)
	}

	return &domain.BillBundle{Bill: *bill, Analysis: analysis, Amendments: amendments}, nil
}

// GetAmendmentBundle returns an amendment joined with its current analysis,
// or domain.ErrNotFound.
func (r *PostgresRepository) GetAmendmentBundle(ctx context.Context, key domain.AmendmentKey) (*domain.AmendmentBundle, error) {
	query, args, err := r.builder.
		Select(amendmentColumns...).
		From("amendments").
		Where(sq.Eq{"id": key.TargetID()}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build amendment select: %w", err)
	}

	amendment, err := scanAmendment(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("amendment %s: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get amendment %s: %w", key, err)
	}

	analysis, err := r.GetAnalysis(ctx, key.TargetID(), domain.TargetAmendment)
	if err != nil {
		return nil, err
	}

	return &domain.AmendmentBundle{Amendment: *amendment, Analysis: analysis}, nil
}

// ListRecentAnalyses returns the most recently updated analyses joined with
// their targets' summary fields.
func (r *PostgresRepository) ListRecentAnalyses(ctx context.Context, limit int) ([]domain.RecentAnalysis, error) {
	if limit <= 0 {
		limit = 10
	}

	columns := make([]string, 0, len(analysisColumns)+2)
	for _, col := range analysisColumns {
		columns = append(columns, "a."+col)
	}
	columns = append(columns,
		"COALESCE(b.title, am.description, '') AS target_title",
		"COALESCE(b.url, am.url, '') AS target_url")

	query, args, err := r.builder.
		Select(columns...).
		From("analyses a").
		LeftJoin("bills b ON a.target_kind = 'bill' AND b.id = a.target_id").
		LeftJoin("amendments am ON a.target_kind = 'amendment' AND am.id = a.target_id").
		OrderBy("a.updated_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build recent analyses select: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list recent analyses: %w", err)
	}
	defer rows.Close()

	var recent []domain.RecentAnalysis
	for rows.Next() {
		var entry domain.RecentAnalysis
		var kind string
		var keyPoints []byte
		if err := rows.Scan(&entry.Analysis.TargetID, &kind,
			&entry.Analysis.Content.Summary, &entry.Analysis.Content.Perspective, &keyPoints,
			&entry.Analysis.Content.EstimatedCostImpact, &entry.Analysis.Content.GovernmentGrowthAnalysis,
			&entry.Analysis.Content.MarketImpactAnalysis, &entry.Analysis.Content.LibertyImpactAnalysis,
			&entry.Analysis.CreatedAt, &entry.Analysis.UpdatedAt,
			&entry.TargetTitle, &entry.TargetURL); err != nil {
			return nil, fmt.Errorf("scan recent analysis: %w", err)
		}
		entry.Analysis.TargetKind = domain.TargetKind(kind)
		if err := unmarshalKeyPoints(keyPoints, &entry.Analysis.Content.KeyPoints); err != nil {
			return nil, err
		}
		recent = append(recent, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return recent, nil
}

func (r *PostgresRepository) listAmendmentsOf(ctx context.Context, billID string) ([]domain.Amendment, error) {
	query, args, err := r.builder.
		Select(append([]string{"congress", "amendment_type", "amendment_number"}, amendmentColumns[4:]...)...).
		From("amendments").
		Where(sq.Eq{"bill_id": billID}).
		OrderBy("amendment_type", "amendment_number").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build amendments select: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var amendments []domain.Amendment
	for rows.Next() {
		var amendment domain.Amendment
		if err := rows.Scan(&amendment.Key.Congress, &amendment.Key.AmendmentType, &amendment.Key.AmendmentNumber,
			&amendment.Description, &amendment.Purpose, &amendment.Chamber, &amendment.SubmittedDate,
			&amendment.LatestAction.Date, &amendment.LatestAction.Text, &amendment.UpdateDate, &amendment.URL,
			&amendment.CreatedAt, &amendment.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan amendment: %w", err)
		}
		amendment.BillID = billID
		amendments = append(amendments, amendment)
	}
	return amendments, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBill(row rowScanner) (*domain.Bill, error) {
	var bill domain.Bill
	var actions pq.StringArray
	err := row.Scan(&bill.Key.Congress, &bill.Key.BillType, &bill.Key.BillNumber,
		&bill.Title, &bill.Description, &bill.OriginChamber, &bill.IntroducedDate,
		&bill.LatestAction.Date, &bill.LatestAction.Text, &bill.UpdateDate, &bill.URL,
		&actions, &bill.Text, &bill.CreatedAt, &bill.UpdatedAt)
	if err != nil {
		return nil, err
	}
	bill.Actions = []string(actions)
	return &bill, nil
}

func scanAmendment(row rowScanner) (*domain.Amendment, error) {
	var amendment domain.Amendment
	var billID sql.NullString
	err := row.Scan(&billID, &amendment.Key.Congress, &amendment.Key.AmendmentType, &amendment.Key.AmendmentNumber,
		&amendment.Description, &amendment.Purpose, &amendment.Chamber, &amendment.SubmittedDate,
		&amendment.LatestAction.Date, &amendment.LatestAction.Text, &amendment.UpdateDate, &amendment.URL,
		&amendment.CreatedAt, &amendment.UpdatedAt)
	if err != nil {
		return nil, err
	}
	amendment.BillID = billID.String
	return &amendment, nil
}

func scanAnalysis(row rowScanner) (*domain.Analysis, error) {
	var analysis domain.Analysis
	var kind string
	var keyPoints []byte
	err := row.Scan(&analysis.TargetID, &kind,
		&analysis.Content.Summary, &analysis.Content.Perspective, &keyPoints,
		&analysis.Content.EstimatedCostImpact, &analysis.Content.GovernmentGrowthAnalysis,
		&analysis.Content.MarketImpactAnalysis, &analysis.Content.LibertyImpactAnalysis,
		&analysis.CreatedAt, &analysis.UpdatedAt)
	if err != nil {
		return nil, err
	}
	analysis.TargetKind = domain.TargetKind(kind)
	if err := unmarshalKeyPoints(keyPoints, &analysis.Content.KeyPoints); err != nil {
		return nil, err
	}
	return &analysis, nil
}

func unmarshalKeyPoints(raw []byte, into *[]string) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("decode key points: %w", err)
	}
	return nil
}
