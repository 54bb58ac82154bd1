// Package staleness decides whether a stored analysis still reflects the
// source's last reported update to its target.
package staleness

import (
	"strings"
	"time"
)

// Reason explains a verdict, so callers can log data-quality signals
// separately from ordinary reprocessing decisions.
type Reason string

const (
	// ReasonNoAnalysis: nothing stored yet for this target.
	ReasonNoAnalysis Reason = "no_analysis"
	// ReasonSourceNewer: the source updated the target after the stored
	// analysis was created.
	ReasonSourceNewer Reason = "source_newer"
	// ReasonCurrent: the stored analysis is at least as new as the source.
	ReasonCurrent Reason = "current"
	// ReasonBadTimestamp: a timestamp could not be parsed; treated as stale
	// but distinguishable for data-quality logging.
	ReasonBadTimestamp Reason = "bad_timestamp"
)

// Verdict is the outcome of a staleness evaluation.
type Verdict struct {
	Stale  bool
	Reason Reason
}

// Layouts accepted from the source, tried in order. Timestamps without an
// explicit offset are taken as already being UTC, never reinterpreted.
var layouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Evaluate compares the source's update timestamp against the creation
// timestamp of the stored analysis. It never fails: malformed input yields
// a stale verdict with ReasonBadTimestamp, an absent analysis timestamp
// yields ReasonNoAnalysis.
func Evaluate(sourceUpdated, analysisCreated string) Verdict {
	if strings.TrimSpace(analysisCreated) == "" {
		return Verdict{Stale: true, Reason: ReasonNoAnalysis}
	}

	created, ok := parse(analysisCreated)
	if !ok {
		return Verdict{Stale: true, Reason: ReasonBadTimestamp}
	}

	updated, ok := parse(sourceUpdated)
	if !ok {
		return Verdict{Stale: true, Reason: ReasonBadTimestamp}
	}

	if updated.After(created) {
		return Verdict{Stale: true, Reason: ReasonSourceNewer}
	}
	return Verdict{Stale: false, Reason: ReasonCurrent}
}

func parse(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if ts, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}
