package models

import (
	"time"

	"github.com/lib/pq"

	"github.com/IrishJohn1973/tenderned-scraper/pkg/database"
)

// SourceAward is one raw contract-award observation, one row per
// (source, source_id). Supplier contact fields each carry an is_dummy flag
// set by the ingestion layer: a dummy value is a placeholder the source
// injects when real data is withheld and must never be treated as real
// contact data.
//
// The two fed flags belong to independent pipelines: fed_to_master tracks
// projection into master_awards, fed_to_organizations tracks consumption by
// the organization extractor. They must not be conflated.
type SourceAward struct {
	ID              int64   `json:"id" db:"id"`
	Source          string  `json:"source" db:"source"`
	SourceID        string  `json:"source_id" db:"source_id"`
	TenderReference *string `json:"tender_reference,omitempty" db:"tender_reference"`

	Title            string  `json:"title" db:"title"`
	ShortDescription *string `json:"short_description,omitempty" db:"short_description"`
	BuyerName        *string `json:"buyer_name,omitempty" db:"buyer_name"`
	BuyerCountry     string  `json:"buyer_country" db:"buyer_country"`

	CPVCodes          pq.StringArray `json:"cpv_codes,omitempty" db:"cpv_codes"`
	CPVPrimary        *string        `json:"cpv_primary,omitempty" db:"cpv_primary"`
	ProcurementMethod *string        `json:"procurement_method,omitempty" db:"procurement_method"`

	SupplierName      *string        `json:"supplier_name,omitempty" db:"supplier_name"`
	KVKNumber         *string        `json:"kvk_number,omitempty" db:"kvk_number"`
	VATNumber         *string        `json:"vat_number,omitempty" db:"vat_number"`
	IsConsortium      bool           `json:"is_consortium" db:"is_consortium"`
	ConsortiumMembers pq.StringArray `json:"consortium_members,omitempty" db:"consortium_members"`
	IsSME             bool           `json:"is_sme" db:"is_sme"`
	SupplierCity      *string        `json:"supplier_city,omitempty" db:"supplier_city"`

	SupplierEmail   *string `json:"supplier_email,omitempty" db:"supplier_email"`
	EmailIsDummy    bool    `json:"email_is_dummy" db:"email_is_dummy"`
	SupplierPhone   *string `json:"supplier_phone,omitempty" db:"supplier_phone"`
	PhoneIsDummy    bool    `json:"phone_is_dummy" db:"phone_is_dummy"`
	SupplierWebsite *string `json:"supplier_website,omitempty" db:"supplier_website"`
	WebsiteIsDummy  bool    `json:"website_is_dummy" db:"website_is_dummy"`

	AwardValue     *float64   `json:"award_value,omitempty" db:"award_value"`
	EstimatedValue *float64   `json:"estimated_value,omitempty" db:"estimated_value"`
	ValueVariance  *float64   `json:"value_variance,omitempty" db:"value_variance"`
	BidderCount    *int       `json:"bidder_count,omitempty" db:"bidder_count"`
	AwardDate      *time.Time `json:"award_date,omitempty" db:"award_date"`
	AwardCriteria  *string    `json:"award_criteria,omitempty" db:"award_criteria"`

	IsAboveThreshold bool    `json:"is_above_threshold" db:"is_above_threshold"`
	TEDNumber        *string `json:"ted_number,omitempty" db:"ted_number"`
	DetailURL        *string `json:"detail_url,omitempty" db:"detail_url"`

	SourceMetadata database.JSONB[map[string]any] `json:"source_metadata" db:"source_metadata"`

	FetchedAt time.Time `json:"fetched_at" db:"fetched_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	FedToMaster          bool       `json:"fed_to_master" db:"fed_to_master"`
	FedToMasterAt        *time.Time `json:"fed_to_master_at,omitempty" db:"fed_to_master_at"`
	FedToOrganizations   bool       `json:"fed_to_organizations" db:"fed_to_organizations"`
	FedToOrganizationsAt *time.Time `json:"fed_to_organizations_at,omitempty" db:"fed_to_organizations_at"`
}

// Email returns the supplier email unless it is dummy-flagged.
func (a *SourceAward) Email() *string {
	if a.EmailIsDummy {
		return nil
	}
	return a.SupplierEmail
}

// Phone returns the supplier phone unless it is dummy-flagged.
func (a *SourceAward) Phone() *string {
	if a.PhoneIsDummy {
		return nil
	}
	return a.SupplierPhone
}

// Website returns the supplier website unless it is dummy-flagged.
func (a *SourceAward) Website() *string {
	if a.WebsiteIsDummy {
		return nil
	}
	return a.SupplierWebsite
}
