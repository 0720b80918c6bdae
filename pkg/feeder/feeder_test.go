package feeder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IrishJohn1973/tenderned-scraper/pkg/models"
)

func strPtr(s string) *string { return &s }

func TestToMasterAwardSuppressesDummyContacts(t *testing.T) {
	a := models.SourceAward{
		Source:        "tenderned",
		SourceID:      "a1",
		Title:         "Renovatie kantoorpand",
		SupplierName:  strPtr("Acme B.V."),
		SupplierEmail: strPtr("noreply@tenderned.nl"),
		EmailIsDummy:  true,
		SupplierPhone: strPtr("0101234567"),
		PhoneIsDummy:  false,
	}

	m := toMasterAward(a)

	assert.Nil(t, m.SupplierEmail)
	require.NotNil(t, m.SupplierPhone)
	assert.Equal(t, "0101234567", *m.SupplierPhone)
}

func TestToMasterAwardRegistryNumber(t *testing.T) {
	withKVK := toMasterAward(models.SourceAward{SourceID: "a1", KVKNumber: strPtr("12345678")})
	require.NotNil(t, withKVK.RegistryNumber)
	assert.Equal(t, "12345678", *withKVK.RegistryNumber)

	// An empty KVK string is not an identity.
	blank := toMasterAward(models.SourceAward{SourceID: "a2", KVKNumber: strPtr("")})
	assert.Nil(t, blank.RegistryNumber)

	none := toMasterAward(models.SourceAward{SourceID: "a3"})
	assert.Nil(t, none.RegistryNumber)
}

func TestToMasterTenderCarriesDescriptiveFields(t *testing.T) {
	published := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	src := models.SourceTender{
		Source:       "tenderned",
		SourceID:     "t1",
		Title:        "Levering schoolmeubilair",
		BuyerName:    strPtr("Gemeente Breda"),
		BuyerCountry: "NL",
		CPVCodes:     []string{"39160000"},
		PublishedAt:  &published,
	}

	m := toMasterTender(src)

	assert.Equal(t, "tenderned", m.Source)
	assert.Equal(t, "t1", m.SourceID)
	assert.Equal(t, "Levering schoolmeubilair", m.Title)
	assert.Equal(t, []string{"39160000"}, []string(m.CPVCodes))
	require.NotNil(t, m.PublishedAt)
	assert.True(t, m.PublishedAt.Equal(published))
}
