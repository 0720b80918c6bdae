package extractor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IrishJohn1973/tenderned-scraper/pkg/models"
)

func strPtr(s string) *string       { return &s }
func floatPtr(f float64) *float64   { return &f }
func datePtr(s string) *time.Time   { d, _ := time.Parse("2006-01-02", s); return &d }

func TestIdentityKeyPrefersKVK(t *testing.T) {
	a := models.SourceAward{
		SupplierName: strPtr("Acme B.V."),
		KVKNumber:    strPtr("12.34.56.78"),
	}
	assert.Equal(t, "kvk:12345678", IdentityKey(a))
}

func TestIdentityKeyFallsBackToName(t *testing.T) {
	a := models.SourceAward{SupplierName: strPtr("Acme B.V.")}
	assert.Equal(t, "name:acme", IdentityKey(a))

	// A KVK that normalizes to nothing does not shadow the name.
	a.KVKNumber = strPtr("onbekend")
	assert.Equal(t, "name:acme", IdentityKey(a))
}

func TestIdentityKeyEmpty(t *testing.T) {
	assert.Equal(t, "", IdentityKey(models.SourceAward{}))
	assert.Equal(t, "", IdentityKey(models.SourceAward{SupplierName: strPtr("  . ")}))
}

func TestGroupByIdentity(t *testing.T) {
	awards := []models.SourceAward{
		{SourceID: "a1", SupplierName: strPtr("Acme B.V.")},
		{SourceID: "a2", SupplierName: strPtr("ACME BV")},
		{SourceID: "a3", SupplierName: strPtr("Other Co"), KVKNumber: strPtr("12345678")},
		{SourceID: "a4"},
	}

	groups, unidentified := GroupByIdentity(awards)

	require.Len(t, groups, 2)
	assert.Len(t, groups["name:acme"], 2)
	assert.Len(t, groups["kvk:12345678"], 1)
	require.Len(t, unidentified, 1)
	assert.Equal(t, "a4", unidentified[0].SourceID)
}

func TestBuildAggregateStatistics(t *testing.T) {
	awards := []models.SourceAward{
		{
			SourceID:     "a1",
			SupplierName: strPtr("Acme B.V."),
			AwardValue:   floatPtr(100),
			AwardDate:    datePtr("2024-01-10"),
			BuyerName:    strPtr("Gemeente Utrecht"),
			CPVCodes:     []string{"45000000", "45210000"},
		},
		{
			SourceID:     "a2",
			SupplierName: strPtr("Acme BV"),
			AwardValue:   floatPtr(200),
			AwardDate:    datePtr("2024-03-05"),
			BuyerName:    strPtr("Rijkswaterstaat"),
			CPVCodes:     []string{"45210000", "71000000"},
		},
		{
			SourceID:     "a3",
			SupplierName: strPtr("Acme B.V."),
			AwardDate:    datePtr("2024-02-01"),
		},
	}

	agg := BuildAggregate("name:acme", awards)

	assert.Equal(t, "name:acme", agg.IdentityKey)
	assert.Equal(t, "Acme B.V.", agg.CanonicalName)
	assert.Equal(t, "acme", agg.NormalizedName)

	assert.Equal(t, 3, agg.TotalAwardsWon)
	assert.Equal(t, 300.0, agg.TotalContractValue)
	// The unvalued award does not dilute the value statistics.
	assert.Equal(t, 2, agg.ValuedAwardCount)
	require.NotNil(t, agg.LargestContractValue)
	assert.Equal(t, 200.0, *agg.LargestContractValue)

	require.NotNil(t, agg.FirstAwardDate)
	require.NotNil(t, agg.LastAwardDate)
	assert.Equal(t, "2024-01-10", agg.FirstAwardDate.Format("2006-01-02"))
	assert.Equal(t, "2024-03-05", agg.LastAwardDate.Format("2006-01-02"))

	assert.ElementsMatch(t, []string{"Acme B.V.", "Acme BV"}, []string(agg.NameVariants))
	assert.Equal(t, []string{"45000000", "45210000", "71000000"}, []string(agg.CPVCodesWon))
	assert.ElementsMatch(t, []string{"Gemeente Utrecht", "Rijkswaterstaat"}, []string(agg.FrequentBuyers))
	assert.Equal(t, []string{"a1", "a2", "a3"}, []string(agg.AwardSourceIDs))
}

func TestBuildAggregateOrderIndependent(t *testing.T) {
	awards := []models.SourceAward{
		{SourceID: "a2", SupplierName: strPtr("Acme BV"), AwardDate: datePtr("2024-03-05"), SupplierEmail: strPtr("late@acme.nl")},
		{SourceID: "a1", SupplierName: strPtr("Acme B.V."), AwardDate: datePtr("2024-01-10"), SupplierEmail: strPtr("first@acme.nl")},
	}
	reversed := []models.SourceAward{awards[1], awards[0]}

	agg1 := BuildAggregate("name:acme", awards)
	agg2 := BuildAggregate("name:acme", reversed)

	// Canonical name and preferred contact come from the earliest award
	// regardless of input order.
	assert.Equal(t, "Acme B.V.", agg1.CanonicalName)
	assert.Equal(t, agg1.CanonicalName, agg2.CanonicalName)
	require.NotNil(t, agg1.PrimaryEmail)
	assert.Equal(t, "first@acme.nl", *agg1.PrimaryEmail)
	assert.Equal(t, *agg1.PrimaryEmail, *agg2.PrimaryEmail)
}

func TestBuildAggregateUndatedAwardsSortLast(t *testing.T) {
	awards := []models.SourceAward{
		{SourceID: "z9", SupplierName: strPtr("Acme Oud")},
		{SourceID: "a1", SupplierName: strPtr("Acme Nieuw"), AwardDate: datePtr("2024-06-01")},
	}

	agg := BuildAggregate("name:acme", awards)
	assert.Equal(t, "Acme Nieuw", agg.CanonicalName)
}

func TestBuildAggregateSkipsDummyContacts(t *testing.T) {
	awards := []models.SourceAward{
		{
			SourceID:      "a1",
			SupplierName:  strPtr("Acme"),
			AwardDate:     datePtr("2024-01-01"),
			SupplierEmail: strPtr("noreply@tenderned.nl"),
			EmailIsDummy:  true,
			SupplierPhone: strPtr("0000000000"),
			PhoneIsDummy:  true,
		},
		{
			SourceID:      "a2",
			SupplierName:  strPtr("Acme"),
			AwardDate:     datePtr("2024-02-01"),
			SupplierEmail: strPtr("sales@acme.nl"),
		},
	}

	agg := BuildAggregate("name:acme", awards)

	require.NotNil(t, agg.PrimaryEmail)
	assert.Equal(t, "sales@acme.nl", *agg.PrimaryEmail)
	assert.Nil(t, agg.PrimaryPhone)
	assert.True(t, agg.ContactVerified)
	assert.False(t, agg.NeedsEnrichment)
}

func TestBuildAggregateNeedsEnrichment(t *testing.T) {
	// No usable contacts but a registry number: enrichable.
	withKVK := BuildAggregate("kvk:12345678", []models.SourceAward{
		{
			SourceID:     "a1",
			SupplierName: strPtr("Acme"),
			KVKNumber:    strPtr("12345678"),
			EmailIsDummy: true,
			SupplierEmail: strPtr("noreply@tenderned.nl"),
		},
	})
	assert.True(t, withKVK.NeedsEnrichment)
	assert.False(t, withKVK.ContactVerified)

	// No contacts and no registry number: nothing to enrich from.
	nameOnly := BuildAggregate("name:acme", []models.SourceAward{
		{SourceID: "a1", SupplierName: strPtr("Acme")},
	})
	assert.False(t, nameOnly.NeedsEnrichment)
}

func TestBuildAggregateSMEAnyRow(t *testing.T) {
	agg := BuildAggregate("name:acme", []models.SourceAward{
		{SourceID: "a1", SupplierName: strPtr("Acme"), IsSME: false},
		{SourceID: "a2", SupplierName: strPtr("Acme"), IsSME: true},
		{SourceID: "a3", SupplierName: strPtr("Acme"), IsSME: false},
	})
	assert.True(t, agg.IsSME)
}
