package api

import (
	"time"

	"billscan/internal/domain"
)

// Wire shapes of the read API. Kept separate from domain types so storage
// changes never leak into the exposed contract.

type BillPayload struct {
	ID               string             `json:"id"`
	Congress         int                `json:"congress"`
	BillType         string             `json:"billType"`
	BillNumber       int                `json:"billNumber"`
	Title            string             `json:"title"`
	Description      string             `json:"description,omitempty"`
	OriginChamber    string             `json:"originChamber,omitempty"`
	IntroducedDate   string             `json:"introducedDate,omitempty"`
	LatestActionDate string             `json:"latestActionDate,omitempty"`
	LatestActionText string             `json:"latestActionText,omitempty"`
	UpdateDate       string             `json:"updateDate,omitempty"`
	URL              string             `json:"url,omitempty"`
	Analysis         *AnalysisPayload   `json:"analysis,omitempty"`
	Amendments       []AmendmentPayload `json:"amendments"`
}

type AmendmentPayload struct {
	ID               string           `json:"id"`
	BillID           string           `json:"billId,omitempty"`
	Congress         int              `json:"congress"`
	AmendmentType    string           `json:"amendmentType"`
	AmendmentNumber  int              `json:"amendmentNumber"`
	Description      string           `json:"description,omitempty"`
	Purpose          string           `json:"purpose,omitempty"`
	Chamber          string           `json:"chamber,omitempty"`
	SubmittedDate    string           `json:"submittedDate,omitempty"`
	LatestActionDate string           `json:"latestActionDate,omitempty"`
	LatestActionText string           `json:"latestActionText,omitempty"`
	UpdateDate       string           `json:"updateDate,omitempty"`
	URL              string           `json:"url,omitempty"`
	Analysis         *AnalysisPayload `json:"analysis,omitempty"`
}

type AnalysisPayload struct {
	TargetID                 string    `json:"targetId"`
	TargetKind               string    `json:"targetKind"`
	Summary                  string    `json:"summary"`
	Perspective              string    `json:"perspective"`
	KeyPoints                []string  `json:"keyPoints"`
	EstimatedCostImpact      string    `json:"estimatedCostImpact"`
	GovernmentGrowthAnalysis string    `json:"governmentGrowthAnalysis"`
	MarketImpactAnalysis     string    `json:"marketImpactAnalysis"`
	LibertyImpactAnalysis    string    `json:"libertyImpactAnalysis"`
	CreatedAt                time.Time `json:"createdAt"`
	UpdatedAt                time.Time `json:"updatedAt"`
}

type RecentAnalysisPayload struct {
	Analysis    AnalysisPayload `json:"analysis"`
	TargetTitle string          `json:"targetTitle"`
	TargetURL   string          `json:"targetUrl,omitempty"`
}

type StatusPayload struct {
	TargetID      string    `json:"targetId"`
	TargetKind    string    `json:"targetKind"`
	Status        string    `json:"status"`
	LastChecked   time.Time `json:"lastChecked"`
	LastProcessed time.Time `json:"lastProcessed"`
	ErrorMessage  string    `json:"errorMessage,omitempty"`
}

func billResponse(bundle *domain.BillBundle) BillPayload {
	payload := BillPayload{
		ID:               bundle.Bill.Key.TargetID(),
		Congress:         bundle.Bill.Key.Congress,
		BillType:         bundle.Bill.Key.BillType,
		BillNumber:       bundle.Bill.Key.BillNumber,
		Title:            bundle.Bill.Title,
		Description:      bundle.Bill.Description,
		OriginChamber:    bundle.Bill.OriginChamber,
		IntroducedDate:   bundle.Bill.IntroducedDate,
		LatestActionDate: bundle.Bill.LatestAction.Date,
		LatestActionText: bundle.Bill.LatestAction.Text,
		UpdateDate:       bundle.Bill.UpdateDate,
		URL:              bundle.Bill.URL,
		Analysis:         analysisResponse(bundle.Analysis),
		Amendments:       make([]AmendmentPayload, 0, len(bundle.Amendments)),
	}
	for _, amendment := range bundle.Amendments {
		payload.Amendments = append(payload.Amendments, amendmentPayload(amendment, nil))
	}
	return payload
}

func amendmentResponse(bundle *domain.AmendmentBundle) AmendmentPayload {
	return amendmentPayload(bundle.Amendment, bundle.Analysis)
}

func amendmentPayload(amendment domain.Amendment, analysis *domain.Analysis) AmendmentPayload {
	return AmendmentPayload{
		ID:               amendment.Key.TargetID(),
		BillID:           amendment.BillID,
		Congress:         amendment.Key.Congress,
		AmendmentType:    amendment.Key.AmendmentType,
		AmendmentNumber:  amendment.Key.AmendmentNumber,
		Description:      amendment.Description,
		Purpose:          amendment.Purpose,
		Chamber:          amendment.Chamber,
		SubmittedDate:    amendment.SubmittedDate,
		LatestActionDate: amendment.LatestAction.Date,
		LatestActionText: amendment.LatestAction.Text,
		UpdateDate:       amendment.UpdateDate,
		URL:              amendment.URL,
		Analysis:         analysisResponse(analysis),
	}
}

func analysisResponse(analysis *domain.Analysis) *AnalysisPayload {
	if analysis == nil {
		return nil
	}
	keyPoints := analysis.Content.KeyPoints
	if keyPoints == nil {
		keyPoints = []string{}
	}
	return &AnalysisPayload{
		TargetID:                 analysis.TargetID,
		TargetKind:               string(analysis.TargetKind),
		Summary:                  analysis.Content.Summary,
		Perspective:              analysis.Content.Perspective,
		KeyPoints:                keyPoints,
		EstimatedCostImpact:      analysis.Content.EstimatedCostImpact,
		GovernmentGrowthAnalysis: analysis.Content.GovernmentGrowthAnalysis,
		MarketImpactAnalysis:     analysis.Content.MarketImpactAnalysis,
		LibertyImpactAnalysis:    analysis.Content.LibertyImpactAnalysis,
		CreatedAt:                analysis.CreatedAt,
		UpdatedAt:                analysis.UpdatedAt,
	}
}

func recentResponse(recent []domain.RecentAnalysis) []RecentAnalysisPayload {
	payload := make([]RecentAnalysisPayload, 0, len(recent))
	for _, entry := range recent {
		payload = append(payload, RecentAnalysisPayload{
			Analysis:    *analysisResponse(&entry.Analysis),
			TargetTitle: entry.TargetTitle,
			TargetURL:   entry.TargetURL,
		})
	}
	return payload
}

func errorsResponse(statuses []domain.ProcessingStatus) []StatusPayload {
	payload := make([]StatusPayload, 0, len(statuses))
	for _, status := range statuses {
		payload = append(payload, StatusPayload{
			TargetID:      status.TargetID,
			TargetKind:    string(status.TargetKind),
			Status:        string(status.Status),
			LastChecked:   status.LastChecked,
			LastProcessed: status.LastProcessed,
			ErrorMessage:  status.ErrorMessage,
		})
	}
	return payload
}
