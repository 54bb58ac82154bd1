package domain

import (
	"fmt"
	"strings"
	"time"
)

// BillKey is the natural composite key of a bill. All three parts are
// required and immutable once assigned.
type BillKey struct {
	Congress   int
	BillType   string
	BillNumber int
}

// TargetID derives the deterministic storage identifier, e.g. "118-hr-9775".
func (k BillKey) TargetID() string {
	return fmt.Sprintf("%d-%s-%d", k.Congress, strings.ToLower(k.BillType), k.BillNumber)
}

func (k BillKey) String() string {
	return k.TargetID()
}

// Valid reports whether all key parts are present.
func (k BillKey) Valid() bool {
	return k.Congress > 0 && k.BillType != "" && k.BillNumber > 0
}

// AmendmentKey is the natural composite key of an amendment.
type AmendmentKey struct {
	Congress        int
	AmendmentType   string
	AmendmentNumber int
}

// TargetID derives the deterministic storage identifier, e.g. "118-hamdt-173".
func (k AmendmentKey) TargetID() string {
	return fmt.Sprintf("%d-%s-%d", k.Congress, strings.ToLower(k.AmendmentType), k.AmendmentNumber)
}

func (k AmendmentKey) String() string {
	return k.TargetID()
}

// Valid reports whether all key parts are present.
func (k AmendmentKey) Valid() bool {
	return k.Congress > 0 && k.AmendmentType != "" && k.AmendmentNumber > 0
}

// LatestAction captures the most recent recorded action on a bill or
// amendment, as reported by the source.
type LatestAction struct {
	Date string
	Text string
}

// Bill is the top-level ingested entity.
type Bill struct {
	Key            BillKey
	Title          string
	Description    string
	OriginChamber  string
	IntroducedDate string
	LatestAction   LatestAction
	UpdateDate     string // source-supplied, kept verbatim for staleness checks
	URL            string
	Actions        []string
	Text           string // full text when a formatted version exists, else empty
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// BillSummary is the listing-level view returned by the source before a
// detail fetch.
type BillSummary struct {
	Key          BillKey
	Title        string
	LatestAction LatestAction
	UpdateDate   string
	URL          string
}

// Amendment is a child entity scoped to one bill.
type Amendment struct {
	Key           AmendmentKey
	BillID        string // storage id of the owning bill; empty until the parent is persisted
	Description   string
	Purpose       string
	Chamber       string
	SubmittedDate string
	LatestAction  LatestAction
	UpdateDate    string
	URL           string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AmendmentSummary is the listing-level view of an amendment.
type AmendmentSummary struct {
	Key          AmendmentKey
	Description  string
	LatestAction LatestAction
	UpdateDate   string
	URL          string
}

// EnrichmentSource collects the text handed to the enrichment service for a
// bill: the full text when available, otherwise descriptive fields.
func (b *Bill) EnrichmentSource() string {
	if b.Text != "" {
		return b.Text
	}
	var sb strings.Builder
	sb.WriteString("Title: " + b.Title)
	if b.Description != "" {
		sb.WriteString("\n\nDescription: " + b.Description)
	}
	if b.LatestAction.Text != "" {
		sb.WriteString("\n\nLatest action: " + b.LatestAction.Text)
	}
	return sb.String()
}

// EnrichmentSource collects the text handed to the enrichment service for an
// amendment.
func (a *Amendment) EnrichmentSource() string {
	var sb strings.Builder
	if a.Purpose != "" {
		sb.WriteString("Purpose: " + a.Purpose)
	}
	if a.Description != "" {
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("Description: " + a.Description)
	}
	if a.LatestAction.Text != "" {
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("Latest action: " + a.LatestAction.Text)
	}
	return sb.String()
}
