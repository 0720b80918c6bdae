package models

import (
	"time"

	"github.com/lib/pq"

	"github.com/IrishJohn1973/tenderned-scraper/pkg/database"
)

// SourceTender is one raw tender notice observation, one row per
// (source, source_id). Created by ingestion, updated in place on re-scrape.
type SourceTender struct {
	ID               int64          `json:"id" db:"id"`
	Source           string         `json:"source" db:"source"`
	SourceID         string         `json:"source_id" db:"source_id"`
	Reference        *string        `json:"reference,omitempty" db:"reference"`
	Title            string         `json:"title" db:"title"`
	ShortDescription *string        `json:"short_description,omitempty" db:"short_description"`
	BuyerName        *string        `json:"buyer_name,omitempty" db:"buyer_name"`
	BuyerCountry     string         `json:"buyer_country" db:"buyer_country"`
	CPVCodes         pq.StringArray `json:"cpv_codes,omitempty" db:"cpv_codes"`
	CPVPrimary       *string        `json:"cpv_primary,omitempty" db:"cpv_primary"`
	NUTSCodes        pq.StringArray `json:"nuts_codes,omitempty" db:"nuts_codes"`
	NoticeType       *string        `json:"notice_type,omitempty" db:"notice_type"`
	ProcurementMethod *string       `json:"procurement_method,omitempty" db:"procurement_method"`
	ContractType     *string        `json:"contract_type,omitempty" db:"contract_type"`
	Status           *string        `json:"status,omitempty" db:"status"`

	PublishedAt   *time.Time `json:"published_at,omitempty" db:"published_at"`
	Deadline      *time.Time `json:"deadline,omitempty" db:"deadline"`
	ContractStart *time.Time `json:"contract_start,omitempty" db:"contract_start"`
	ContractEnd   *time.Time `json:"contract_end,omitempty" db:"contract_end"`

	EstimatedValueMin *float64 `json:"estimated_value_min,omitempty" db:"estimated_value_min"`
	EstimatedValueMax *float64 `json:"estimated_value_max,omitempty" db:"estimated_value_max"`

	IsAboveThreshold bool `json:"is_above_threshold" db:"is_above_threshold"`
	IsDigital        bool `json:"is_digital" db:"is_digital"`

	TEDNumber *string `json:"ted_number,omitempty" db:"ted_number"`
	DetailURL *string `json:"detail_url,omitempty" db:"detail_url"`

	SourceMetadata database.JSONB[map[string]any] `json:"source_metadata" db:"source_metadata"`

	FetchedAt time.Time `json:"fetched_at" db:"fetched_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	FedToMaster   bool       `json:"fed_to_master" db:"fed_to_master"`
	FedToMasterAt *time.Time `json:"fed_to_master_at,omitempty" db:"fed_to_master_at"`
}
