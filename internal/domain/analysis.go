package domain

import "time"

// TargetKind tags the parent table of a polymorphic child record.
type TargetKind string

const (
	TargetBill      TargetKind = "bill"
	TargetAmendment TargetKind = "amendment"
)

// Valid reports whether the kind is one of the two known parent kinds.
func (k TargetKind) Valid() bool {
	return k == TargetBill || k == TargetAmendment
}

// AnalysisContent is the fixed schema returned by the enrichment service.
type AnalysisContent struct {
	Summary                  string   `json:"summary"`
	Perspective              string   `json:"perspective"`
	KeyPoints                []string `json:"key_points"`
	EstimatedCostImpact      string   `json:"estimated_cost_impact"`
	GovernmentGrowthAnalysis string   `json:"government_growth_analysis"`
	MarketImpactAnalysis     string   `json:"market_impact_analysis"`
	LibertyImpactAnalysis    string   `json:"liberty_impact_analysis"`
}

// Analysis is a derived record attached to exactly one bill or amendment.
// At most one Analysis exists per (TargetID, TargetKind); re-enrichment
// replaces it.
type Analysis struct {
	TargetID   string
	TargetKind TargetKind
	Content    AnalysisContent
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Status enumerates processing milestones for a target.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// ProcessingStatus records the outcome of the latest processing attempt for
// a target. One row per (TargetID, TargetKind); overwritten on every
// attempt, never deleted by the pipeline.
type ProcessingStatus struct {
	TargetID      string
	TargetKind    TargetKind
	Status        Status
	LastChecked   time.Time
	LastProcessed time.Time
	ErrorMessage  string
}

// RecentAnalysis joins an Analysis with summary fields of its target, for
// the read-serving "N most recent" query.
type RecentAnalysis struct {
	Analysis    Analysis
	TargetTitle string
	TargetURL   string
}

// BillBundle is a bill joined with its current analysis and amendments.
type BillBundle struct {
	Bill       Bill
	Analysis   *Analysis
	Amendments []Amendment
}

// AmendmentBundle is an amendment joined with its current analysis.
type AmendmentBundle struct {
	Amendment Amendment
	Analysis  *Analysis
}
