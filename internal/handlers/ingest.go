package handlers

import (
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/lib/pq"

	"github.com/IrishJohn1973/tenderned-scraper/internal/repositories/award"
	"github.com/IrishJohn1973/tenderned-scraper/internal/repositories/tender"
	"github.com/IrishJohn1973/tenderned-scraper/pkg/database"
	"github.com/IrishJohn1973/tenderned-scraper/pkg/metrics"
	"github.com/IrishJohn1973/tenderned-scraper/pkg/models"
	"github.com/IrishJohn1973/tenderned-scraper/pkg/tracing"
	"github.com/IrishJohn1973/tenderned-scraper/pkg/validate"
)

// IngestHandler accepts source rows from the scraper
type IngestHandler struct {
	tenderRepo *tender.Repository
	awardRepo  *award.Repository
	logger     ectologger.Logger
}

// NewIngestHandler creates a new ingest handler
func NewIngestHandler(tenderRepo *tender.Repository, awardRepo *award.Repository, logger ectologger.Logger) *IngestHandler {
	return &IngestHandler{
		tenderRepo: tenderRepo,
		awardRepo:  awardRepo,
		logger:     logger,
	}
}

// IngestTenderRequest is one tender notice observation from the scraper
type IngestTenderRequest struct {
	Source            string         `json:"source"`
	SourceID          string         `json:"source_id" validate:"required"`
	Reference         *string        `json:"reference"`
	Title             string         `json:"title" validate:"required"`
	ShortDescription  *string        `json:"short_description"`
	BuyerName         *string        `json:"buyer_name"`
	BuyerCountry      string         `json:"buyer_country"`
	CPVCodes          []string       `json:"cpv_codes"`
	CPVPrimary        *string        `json:"cpv_primary"`
	NUTSCodes         []string       `json:"nuts_codes"`
	NoticeType        *string        `json:"notice_type"`
	ProcurementMethod *string        `json:"procurement_method"`
	ContractType      *string        `json:"contract_type"`
	Status            *string        `json:"status"`
	PublishedAt       *time.Time     `json:"published_at"`
	Deadline          *time.Time     `json:"deadline"`
	ContractStart     *time.Time     `json:"contract_start"`
	ContractEnd       *time.Time     `json:"contract_end"`
	EstimatedValueMin *float64       `json:"estimated_value_min"`
	EstimatedValueMax *float64       `json:"estimated_value_max"`
	IsAboveThreshold  bool           `json:"is_above_threshold"`
	IsDigital         bool           `json:"is_digital"`
	TEDNumber         *string        `json:"ted_number"`
	DetailURL         *string        `json:"detail_url"`
	SourceMetadata    map[string]any `json:"source_metadata"`
}

func (r IngestTenderRequest) toModel() models.SourceTender {
	source := r.Source
	if source == "" {
		source = "tenderned"
	}
	country := r.BuyerCountry
	if country == "" {
		country = "NL"
	}
	return models.SourceTender{
		Source:            source,
		SourceID:          r.SourceID,
		Reference:         r.Reference,
		Title:             r.Title,
		ShortDescription:  r.ShortDescription,
		BuyerName:         r.BuyerName,
		BuyerCountry:      country,
		CPVCodes:          pq.StringArray(r.CPVCodes),
		CPVPrimary:        r.CPVPrimary,
		NUTSCodes:         pq.StringArray(r.NUTSCodes),
		NoticeType:        r.NoticeType,
		ProcurementMethod: r.ProcurementMethod,
		ContractType:      r.ContractType,
		Status:            r.Status,
		PublishedAt:       r.PublishedAt,
		Deadline:          r.Deadline,
		ContractStart:     r.ContractStart,
		ContractEnd:       r.ContractEnd,
		EstimatedValueMin: r.EstimatedValueMin,
		EstimatedValueMax: r.EstimatedValueMax,
		IsAboveThreshold:  r.IsAboveThreshold,
		IsDigital:         r.IsDigital,
		TEDNumber:         r.TEDNumber,
		DetailURL:         r.DetailURL,
		SourceMetadata:    database.NewJSONB(r.SourceMetadata),
	}
}

// IngestAwardRequest is one award notice observation from the scraper. The
// scraper is responsible for flagging placeholder contact values it detects.
type IngestAwardRequest struct {
	Source            string         `json:"source"`
	SourceID          string         `json:"source_id" validate:"required"`
	TenderReference   *string        `json:"tender_reference"`
	Title             string         `json:"title" validate:"required"`
	ShortDescription  *string        `json:"short_description"`
	BuyerName         *string        `json:"buyer_name"`
	BuyerCountry      string         `json:"buyer_country"`
	CPVCodes          []string       `json:"cpv_codes"`
	CPVPrimary        *string        `json:"cpv_primary"`
	ProcurementMethod *string        `json:"procurement_method"`
	SupplierName      *string        `json:"supplier_name"`
	KVKNumber         *string        `json:"kvk_number"`
	VATNumber         *string        `json:"vat_number"`
	IsConsortium      bool           `json:"is_consortium"`
	ConsortiumMembers []string       `json:"consortium_members"`
	IsSME             bool           `json:"is_sme"`
	SupplierCity      *string        `json:"supplier_city"`
	SupplierEmail     *string        `json:"supplier_email"`
	EmailIsDummy      bool           `json:"email_is_dummy"`
	SupplierPhone     *string        `json:"supplier_phone"`
	PhoneIsDummy      bool           `json:"phone_is_dummy"`
	SupplierWebsite   *string        `json:"supplier_website"`
	WebsiteIsDummy    bool           `json:"website_is_dummy"`
	AwardValue        *float64       `json:"award_value"`
	EstimatedValue    *float64       `json:"estimated_value"`
	ValueVariance     *float64       `json:"value_variance"`
	BidderCount       *int           `json:"bidder_count"`
	AwardDate         *time.Time     `json:"award_date"`
	AwardCriteria     *string        `json:"award_criteria"`
	IsAboveThreshold  bool           `json:"is_above_threshold"`
	TEDNumber         *string        `json:"ted_number"`
	DetailURL         *string        `json:"detail_url"`
	SourceMetadata    map[string]any `json:"source_metadata"`
}

func (r IngestAwardRequest) toModel() models.SourceAward {
	source := r.Source
	if source == "" {
		source = "tenderned"
	}
	country := r.BuyerCountry
	if country == "" {
		country = "NL"
	}
	return models.SourceAward{
		Source:            source,
		SourceID:          r.SourceID,
		TenderReference:   r.TenderReference,
		Title:             r.Title,
		ShortDescription:  r.ShortDescription,
		BuyerName:         r.BuyerName,
		BuyerCountry:      country,
		CPVCodes:          pq.StringArray(r.CPVCodes),
		CPVPrimary:        r.CPVPrimary,
		ProcurementMethod: r.ProcurementMethod,
		SupplierName:      r.SupplierName,
		KVKNumber:         r.KVKNumber,
		VATNumber:         r.VATNumber,
		IsConsortium:      r.IsConsortium,
		ConsortiumMembers: pq.StringArray(r.ConsortiumMembers),
		IsSME:             r.IsSME,
		SupplierCity:      r.SupplierCity,
		SupplierEmail:     r.SupplierEmail,
		EmailIsDummy:      r.EmailIsDummy,
		SupplierPhone:     r.SupplierPhone,
		PhoneIsDummy:      r.PhoneIsDummy,
		SupplierWebsite:   r.SupplierWebsite,
		WebsiteIsDummy:    r.WebsiteIsDummy,
		AwardValue:        r.AwardValue,
		EstimatedValue:    r.EstimatedValue,
		ValueVariance:     r.ValueVariance,
		BidderCount:       r.BidderCount,
		AwardDate:         r.AwardDate,
		AwardCriteria:     r.AwardCriteria,
		IsAboveThreshold:  r.IsAboveThreshold,
		TEDNumber:         r.TEDNumber,
		DetailURL:         r.DetailURL,
		SourceMetadata:    database.NewJSONB(r.SourceMetadata),
	}
}

// IngestResponse reports how many rows an ingest call wrote
type IngestResponse struct {
	Upserted int `json:"upserted"`
}

// IngestTenders upserts a batch of tender observations
// POST /api/v1/ingest/tenders
func (h *IngestHandler) IngestTenders(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "handlers.IngestHandler.IngestTenders")
	defer span.End()

	var reqs []IngestTenderRequest
	if err := c.Bind(&reqs); err != nil {
		return BadRequest("invalid request body")
	}
	if len(reqs) == 0 {
		return BadRequest("empty batch")
	}

	for _, req := range reqs {
		if err := validate.Struct(req); err != nil {
			return BadRequest(err.Error())
		}
	}

	for _, req := range reqs {
		if _, err := h.tenderRepo.Upsert(ctx, req.toModel()); err != nil {
			return err
		}
	}

	metrics.IngestedRowsTotal.WithLabelValues("tenders").Add(float64(len(reqs)))
	h.logger.WithContext(ctx).WithFields(map[string]any{"count": len(reqs)}).Info("Ingested tenders")

	return CreatedResponse(c, IngestResponse{Upserted: len(reqs)})
}

// IngestAwards upserts a batch of award observations
// POST /api/v1/ingest/awards
func (h *IngestHandler) IngestAwards(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "handlers.IngestHandler.IngestAwards")
	defer span.End()

	var reqs []IngestAwardRequest
	if err := c.Bind(&reqs); err != nil {
		return BadRequest("invalid request body")
	}
	if len(reqs) == 0 {
		return BadRequest("empty batch")
	}

	for _, req := range reqs {
		if err := validate.Struct(req); err != nil {
			return BadRequest(err.Error())
		}
	}

	for _, req := range reqs {
		if _, err := h.awardRepo.Upsert(ctx, req.toModel()); err != nil {
			return err
		}
	}

	metrics.IngestedRowsTotal.WithLabelValues("awards").Add(float64(len(reqs)))
	h.logger.WithContext(ctx).WithFields(map[string]any{"count": len(reqs)}).Info("Ingested awards")

	return CreatedResponse(c, IngestResponse{Upserted: len(reqs)})
}
