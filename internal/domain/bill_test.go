package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBillKeyTargetID(t *testing.T) {
	t.Parallel()

	key := BillKey{Congress: 118, BillType: "HR", BillNumber: 9775}
	assert.Equal(t, "118-hr-9775", key.TargetID())
	assert.Equal(t, key.TargetID(), key.String())

	// Kind casing never produces a second identity for the same bill.
	lower := BillKey{Congress: 118, BillType: "hr", BillNumber: 9775}
	assert.Equal(t, key.TargetID(), lower.TargetID())
}

func TestAmendmentKeyTargetID(t *testing.T) {
	t.Parallel()

	key := AmendmentKey{Congress: 118, AmendmentType: "HAMDT", AmendmentNumber: 173}
	assert.Equal(t, "118-hamdt-173", key.TargetID())
}

func TestKeyValid(t *testing.T) {
	t.Parallel()

	assert.True(t, BillKey{Congress: 118, BillType: "s", BillNumber: 1}.Valid())
	assert.False(t, BillKey{BillType: "s", BillNumber: 1}.Valid())
	assert.False(t, BillKey{Congress: 118, BillNumber: 1}.Valid())
	assert.False(t, BillKey{Congress: 118, BillType: "s"}.Valid())

	assert.True(t, AmendmentKey{Congress: 118, AmendmentType: "samdt", AmendmentNumber: 2}.Valid())
	assert.False(t, AmendmentKey{Congress: 118, AmendmentType: "samdt"}.Valid())
}

func TestBillEnrichmentSource(t *testing.T) {
	t.Parallel()

	bill := &Bill{
		Title:        "Widget Act",
		Description:  "Regulates widgets",
		LatestAction: LatestAction{Text: "Passed House"},
		Text:         "Be it enacted",
	}
	assert.Equal(t, "Be it enacted", bill.EnrichmentSource())

	bill.Text = ""
	source := bill.EnrichmentSource()
	assert.Contains(t, source, "Title: Widget Act")
	assert.Contains(t, source, "Description: Regulates widgets")
	assert.Contains(t, source, "Latest action: Passed House")
}

func TestAmendmentEnrichmentSource(t *testing.T) {
	t.Parallel()

	amendment := &Amendment{
		Purpose:     "Narrow the mandate",
		Description: "Strikes section 2",
	}
	source := amendment.EnrichmentSource()
	assert.Contains(t, source, "Purpose: Narrow the mandate")
	assert.Contains(t, source, "Description: Strikes section 2")

	empty := &Amendment{}
	assert.Empty(t, empty.EnrichmentSource())
}

func TestTargetKindValid(t *testing.T) {
	t.Parallel()

	assert.True(t, TargetBill.Valid())
	assert.True(t, TargetAmendment.Valid())
	assert.False(t, TargetKind("resolution").Valid())
	assert.False(t, TargetKind("").Valid())
}
