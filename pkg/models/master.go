package models

import (
	"time"

	"github.com/lib/pq"
)

// MasterTender is the cross-source canonical tender entity, keyed by
// (source, source_id). All mapped fields follow the overwrite policy:
// a re-projection represents the latest known truth.
type MasterTender struct {
	ID                string         `json:"id" db:"id"`
	Source            string         `json:"source" db:"source"`
	SourceID          string         `json:"source_id" db:"source_id"`
	Title             string         `json:"title" db:"title"`
	ShortDescription  *string        `json:"short_description,omitempty" db:"short_description"`
	BuyerName         *string        `json:"buyer_name,omitempty" db:"buyer_name"`
	BuyerCountry      string         `json:"buyer_country" db:"buyer_country"`
	CPVCodes          pq.StringArray `json:"cpv_codes,omitempty" db:"cpv_codes"`
	CPVPrimary        *string        `json:"cpv_primary,omitempty" db:"cpv_primary"`
	NoticeType        *string        `json:"notice_type,omitempty" db:"notice_type"`
	ProcurementMethod *string        `json:"procurement_method,omitempty" db:"procurement_method"`
	Status            *string        `json:"status,omitempty" db:"status"`
	PublishedAt       *time.Time     `json:"published_at,omitempty" db:"published_at"`
	Deadline          *time.Time     `json:"deadline,omitempty" db:"deadline"`
	EstimatedValueMax *float64       `json:"estimated_value_max,omitempty" db:"estimated_value_max"`
	IsAboveThreshold  bool           `json:"is_above_threshold" db:"is_above_threshold"`
	DetailURL         *string        `json:"detail_url,omitempty" db:"detail_url"`
	CreatedAt         time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at" db:"updated_at"`
}

// MasterAward is the cross-source canonical award entity, keyed by
// (source, source_id). Contact fields are dummy-filtered before projection
// and follow the coalesce-keep-existing policy: once a genuine value is
// known it is never blanked by a later null.
type MasterAward struct {
	ID                string         `json:"id" db:"id"`
	Source            string         `json:"source" db:"source"`
	SourceID          string         `json:"source_id" db:"source_id"`
	Title             string         `json:"title" db:"title"`
	ShortDescription  *string        `json:"short_description,omitempty" db:"short_description"`
	BuyerName         *string        `json:"buyer_name,omitempty" db:"buyer_name"`
	BuyerCountry      string         `json:"buyer_country" db:"buyer_country"`
	CPVCodes          pq.StringArray `json:"cpv_codes,omitempty" db:"cpv_codes"`
	SupplierName      *string        `json:"supplier_name,omitempty" db:"supplier_name"`
	RegistryNumber    *string        `json:"registry_number,omitempty" db:"registry_number"`
	SupplierEmail     *string        `json:"supplier_email,omitempty" db:"supplier_email"`
	SupplierPhone     *string        `json:"supplier_phone,omitempty" db:"supplier_phone"`
	AwardValue        *float64       `json:"award_value,omitempty" db:"award_value"`
	AwardDate         *time.Time     `json:"award_date,omitempty" db:"award_date"`
	BidderCount       *int           `json:"bidder_count,omitempty" db:"bidder_count"`
	IsAboveThreshold  bool           `json:"is_above_threshold" db:"is_above_threshold"`
	DetailURL         *string        `json:"detail_url,omitempty" db:"detail_url"`
	CreatedAt         time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at" db:"updated_at"`
}

// MatchMethod records which resolution path matched a source aggregate to a
// master organization.
const (
	MatchMethodRegistryID     = "registry_id"
	MatchMethodNormalizedName = "normalized_name"
)

// MasterOrganization is the cross-source canonical supplier entity.
// Resolution prefers the registry number; the normalized name is the
// fallback key and carries the uniqueness constraint. Accumulating fields
// (totals, counts) add on merge; date extremes combine; contact fields
// coalesce-keep-existing.
type MasterOrganization struct {
	ID             string  `json:"id" db:"id"`
	NormalizedName string  `json:"normalized_name" db:"normalized_name"`
	CanonicalName  string  `json:"canonical_name" db:"canonical_name"`
	RegistryNumber *string `json:"registry_number,omitempty" db:"registry_number"`
	VATNumber      *string `json:"vat_number,omitempty" db:"vat_number"`

	NameVariants pq.StringArray `json:"name_variants,omitempty" db:"name_variants"`

	PrimaryEmail *string `json:"primary_email,omitempty" db:"primary_email"`
	PrimaryPhone *string `json:"primary_phone,omitempty" db:"primary_phone"`
	Website      *string `json:"website,omitempty" db:"website"`

	CPVCodesWon pq.StringArray `json:"cpv_codes_won,omitempty" db:"cpv_codes_won"`
	IsSME       bool           `json:"is_sme" db:"is_sme"`

	TotalAwardsWon       int      `json:"total_awards_won" db:"total_awards_won"`
	TotalContractValue   float64  `json:"total_contract_value" db:"total_contract_value"`
	ValuedAwardCount     int      `json:"valued_award_count" db:"valued_award_count"`
	LargestContractValue *float64 `json:"largest_contract_value,omitempty" db:"largest_contract_value"`

	FirstAwardDate *time.Time `json:"first_award_date,omitempty" db:"first_award_date"`
	LastAwardDate  *time.Time `json:"last_award_date,omitempty" db:"last_award_date"`

	FrequentBuyers pq.StringArray `json:"frequent_buyers,omitempty" db:"frequent_buyers"`

	MatchMethod string `json:"match_method" db:"match_method"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
