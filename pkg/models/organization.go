package models

import (
	"time"

	"github.com/lib/pq"
)

// OrganizationAggregate is one deduplicated supplier identity, accumulated
// across award observations. The identity key is the KVK registry number
// when known, else the normalized supplier name — never a pair of both: a
// record with a registry id always lands in the registry-id bucket even if
// its name differs from prior observations under that id.
//
// Running statistics only ever accumulate; a repeated extraction run must
// not change them (enforced by the fed_to_organizations cursor and the
// award_source_ids ledger). The fed_* columns record how much of each
// accumulating statistic has already been projected into the master record,
// so re-projection after further growth applies only the delta.
type OrganizationAggregate struct {
	ID          int64  `json:"id" db:"id"`
	IdentityKey string `json:"identity_key" db:"identity_key"`

	KVKNumber      *string        `json:"kvk_number,omitempty" db:"kvk_number"`
	VATNumber      *string        `json:"vat_number,omitempty" db:"vat_number"`
	CanonicalName  string         `json:"canonical_name" db:"canonical_name"`
	NormalizedName string         `json:"normalized_name" db:"normalized_name"`
	NameVariants   pq.StringArray `json:"name_variants,omitempty" db:"name_variants"`

	PrimaryEmail    *string `json:"primary_email,omitempty" db:"primary_email"`
	PrimaryPhone    *string `json:"primary_phone,omitempty" db:"primary_phone"`
	Website         *string `json:"website,omitempty" db:"website"`
	ContactVerified bool    `json:"contact_verified" db:"contact_verified"`

	CPVCodesWon pq.StringArray `json:"cpv_codes_won,omitempty" db:"cpv_codes_won"`
	IsSME       bool           `json:"is_sme" db:"is_sme"`

	TotalAwardsWon        int      `json:"total_awards_won" db:"total_awards_won"`
	TotalContractValue    float64  `json:"total_contract_value" db:"total_contract_value"`
	ValuedAwardCount      int      `json:"valued_award_count" db:"valued_award_count"`
	LargestContractValue  *float64 `json:"largest_contract_value,omitempty" db:"largest_contract_value"`

	FirstAwardDate *time.Time `json:"first_award_date,omitempty" db:"first_award_date"`
	LastAwardDate  *time.Time `json:"last_award_date,omitempty" db:"last_award_date"`

	FrequentBuyers pq.StringArray `json:"frequent_buyers,omitempty" db:"frequent_buyers"`

	NeedsEnrichment bool `json:"needs_enrichment" db:"needs_enrichment"`

	AwardSourceIDs pq.StringArray `json:"award_source_ids,omitempty" db:"award_source_ids"`

	MasterOrgID *string `json:"master_org_id,omitempty" db:"master_org_id"`

	FedToMaster      bool       `json:"fed_to_master" db:"fed_to_master"`
	FedToMasterAt    *time.Time `json:"fed_to_master_at,omitempty" db:"fed_to_master_at"`
	FedAwardsCount   int        `json:"-" db:"fed_awards_count"`
	FedContractValue float64    `json:"-" db:"fed_contract_value"`
	FedValuedCount   int        `json:"-" db:"fed_valued_count"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// AverageContractValue is derived, never stored: sum over awards that carry
// a value, divided by the count of those awards. Null-valued awards are
// excluded.
func (o *OrganizationAggregate) AverageContractValue() float64 {
	if o.ValuedAwardCount == 0 {
		return 0
	}
	return o.TotalContractValue / float64(o.ValuedAwardCount)
}

// BuyerCount is derived from the frequent_buyers set.
func (o *OrganizationAggregate) BuyerCount() int {
	return len(o.FrequentBuyers)
}

// OrganizationView is the read-side shape with derived fields materialized.
type OrganizationView struct {
	OrganizationAggregate
	AverageContractValue float64 `json:"average_contract_value"`
	BuyerCount           int     `json:"buyer_count"`
}

// NewOrganizationView materializes the derived fields for API responses.
func NewOrganizationView(agg OrganizationAggregate) OrganizationView {
	return OrganizationView{
		OrganizationAggregate: agg,
		AverageContractValue:  agg.AverageContractValue(),
		BuyerCount:            agg.BuyerCount(),
	}
}

// OrganizationListResponse is the response for listing organization aggregates.
type OrganizationListResponse struct {
	Items      []OrganizationView `json:"items"`
	TotalCount int                `json:"total_count"`
	Page       int                `json:"page"`
	PageSize   int                `json:"page_size"`
}
