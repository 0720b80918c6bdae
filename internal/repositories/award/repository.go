package award

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/lib/pq"

	"github.com/IrishJohn1973/tenderned-scraper/pkg/database"
	"github.com/IrishJohn1973/tenderned-scraper/pkg/models"
	"github.com/IrishJohn1973/tenderned-scraper/pkg/tracing"
)

// Repository handles source award persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new source award repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Upsert creates or updates a source award keyed on (source, source_id).
// A revision resets fed_to_master so the master merge re-projects the row,
// but never resets fed_to_organizations: an award contributes to an
// organization aggregate exactly once, and accumulation has no inverse.
// Each dummy flag moves only together with its contact value: a revision
// carrying no value keeps both the stored value and the stored flag.
func (r *Repository) Upsert(ctx context.Context, a models.SourceAward) (*models.SourceAward, error) {
	ctx, span := tracing.StartSpan(ctx, "award.Repository.Upsert")
	defer span.End()

	now := time.Now().UTC()

	query := `
		INSERT INTO tenderned_awards (
			source, source_id, tender_reference, title, short_description,
			buyer_name, buyer_country, cpv_codes, cpv_primary, procurement_method,
			supplier_name, kvk_number, vat_number, is_consortium, consortium_members,
			is_sme, supplier_city,
			supplier_email, email_is_dummy, supplier_phone, phone_is_dummy,
			supplier_website, website_is_dummy,
			award_value, estimated_value, value_variance, bidder_count, award_date,
			award_criteria, is_above_threshold, ted_number, detail_url,
			source_metadata, fetched_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
			$21, $22, $23, $24, $25, $26, $27, $28, $29, $30,
			$31, $32, $33, $34, $35, $36
		)
		ON CONFLICT (source, source_id) DO UPDATE SET
			tender_reference = EXCLUDED.tender_reference,
			title = EXCLUDED.title,
			short_description = EXCLUDED.short_description,
			buyer_name = EXCLUDED.buyer_name,
			buyer_country = EXCLUDED.buyer_country,
			cpv_codes = EXCLUDED.cpv_codes,
			cpv_primary = EXCLUDED.cpv_primary,
			procurement_method = EXCLUDED.procurement_method,
			supplier_name = COALESCE(EXCLUDED.supplier_name, tenderned_awards.supplier_name),
			kvk_number = COALESCE(EXCLUDED.kvk_number, tenderned_awards.kvk_number),
			vat_number = COALESCE(EXCLUDED.vat_number, tenderned_awards.vat_number),
			is_consortium = EXCLUDED.is_consortium,
			consortium_members = EXCLUDED.consortium_members,
			is_sme = EXCLUDED.is_sme,
			supplier_city = COALESCE(EXCLUDED.supplier_city, tenderned_awards.supplier_city),
			supplier_email = COALESCE(EXCLUDED.supplier_email, tenderned_awards.supplier_email),
			email_is_dummy = CASE WHEN EXCLUDED.supplier_email IS NULL THEN tenderned_awards.email_is_dummy ELSE EXCLUDED.email_is_dummy END,
			supplier_phone = COALESCE(EXCLUDED.supplier_phone, tenderned_awards.supplier_phone),
			phone_is_dummy = CASE WHEN EXCLUDED.supplier_phone IS NULL THEN tenderned_awards.phone_is_dummy ELSE EXCLUDED.phone_is_dummy END,
			supplier_website = COALESCE(EXCLUDED.supplier_website, tenderned_awards.supplier_website),
			website_is_dummy = CASE WHEN EXCLUDED.supplier_website IS NULL THEN tenderned_awards.website_is_dummy ELSE EXCLUDED.website_is_dummy END,
			award_value = COALESCE(EXCLUDED.award_value, tenderned_awards.award_value),
			estimated_value = COALESCE(EXCLUDED.estimated_value, tenderned_awards.estimated_value),
			value_variance = COALESCE(EXCLUDED.value_variance, tenderned_awards.value_variance),
			bidder_count = COALESCE(EXCLUDED.bidder_count, tenderned_awards.bidder_count),
			award_date = COALESCE(EXCLUDED.award_date, tenderned_awards.award_date),
			award_criteria = COALESCE(EXCLUDED.award_criteria, tenderned_awards.award_criteria),
			is_above_threshold = EXCLUDED.is_above_threshold,
			ted_number = COALESCE(EXCLUDED.ted_number, tenderned_awards.ted_number),
			detail_url = COALESCE(EXCLUDED.detail_url, tenderned_awards.detail_url),
			source_metadata = EXCLUDED.source_metadata,
			fetched_at = EXCLUDED.fetched_at,
			updated_at = EXCLUDED.updated_at,
			fed_to_master = FALSE,
			fed_to_master_at = NULL
		RETURNING *
	`

	var saved models.SourceAward
	err := r.db.GetContext(ctx, &saved, query,
		a.Source, a.SourceID, a.TenderReference, a.Title, a.ShortDescription,
		a.BuyerName, a.BuyerCountry, a.CPVCodes, a.CPVPrimary, a.ProcurementMethod,
		a.SupplierName, a.KVKNumber, a.VATNumber, a.IsConsortium, a.ConsortiumMembers,
		a.IsSME, a.SupplierCity,
		a.SupplierEmail, a.EmailIsDummy, a.SupplierPhone, a.PhoneIsDummy,
		a.SupplierWebsite, a.WebsiteIsDummy,
		a.AwardValue, a.EstimatedValue, a.ValueVariance, a.BidderCount, a.AwardDate,
		a.AwardCriteria, a.IsAboveThreshold, a.TEDNumber, a.DetailURL,
		a.SourceMetadata, now, now, now,
	)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"source": a.Source, "source_id": a.SourceID}).Error("Failed to upsert award")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert award")
	}

	return &saved, nil
}

// ListUnextracted returns awards that have a supplier and have not yet been
// folded into an organization aggregate. Rows are locked for the duration of
// the extraction transaction.
func (r *Repository) ListUnextracted(ctx context.Context, tx database.Tx, limit int) ([]models.SourceAward, error) {
	ctx, span := tracing.StartSpan(ctx, "award.Repository.ListUnextracted")
	defer span.End()

	query := `
		SELECT *
		FROM tenderned_awards
		WHERE fed_to_organizations = FALSE
		  AND supplier_name IS NOT NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`

	var awards []models.SourceAward
	if err := tx.SelectContext(ctx, &awards, query, limit); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list unextracted awards")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list unextracted awards")
	}
	return awards, nil
}

// MarkExtracted flips fed_to_organizations for the given row ids inside the
// extraction transaction. Keyed on id so only the rows read in this pass are
// affected; source_id alone is not unique across sources.
func (r *Repository) MarkExtracted(ctx context.Context, tx database.Tx, ids []int64) error {
	ctx, span := tracing.StartSpan(ctx, "award.Repository.MarkExtracted")
	defer span.End()

	if len(ids) == 0 {
		return nil
	}

	query := `
		UPDATE tenderned_awards
		SET fed_to_organizations = TRUE, fed_to_organizations_at = $1
		WHERE id = ANY($2)
	`
	if _, err := tx.ExecContext(ctx, query, time.Now().UTC(), pq.Int64Array(ids)); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"count": len(ids)}).Error("Failed to mark awards as extracted")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark awards as extracted")
	}
	return nil
}

// ListUnfedToMaster returns unmerged awards inside the caller's transaction.
func (r *Repository) ListUnfedToMaster(ctx context.Context, tx database.Tx, limit int) ([]models.SourceAward, error) {
	ctx, span := tracing.StartSpan(ctx, "award.Repository.ListUnfedToMaster")
	defer span.End()

	query := `
		SELECT *
		FROM tenderned_awards
		WHERE fed_to_master = FALSE
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`

	var awards []models.SourceAward
	if err := tx.SelectContext(ctx, &awards, query, limit); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list unmerged awards")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list unmerged awards")
	}
	return awards, nil
}

// MarkFedToMaster flips fed_to_master for the given row ids.
func (r *Repository) MarkFedToMaster(ctx context.Context, tx database.Tx, ids []int64) error {
	ctx, span := tracing.StartSpan(ctx, "award.Repository.MarkFedToMaster")
	defer span.End()

	if len(ids) == 0 {
		return nil
	}

	query := `
		UPDATE tenderned_awards
		SET fed_to_master = TRUE, fed_to_master_at = $1
		WHERE id = ANY($2)
	`
	if _, err := tx.ExecContext(ctx, query, time.Now().UTC(), pq.Int64Array(ids)); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"count": len(ids)}).Error("Failed to mark awards as merged")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark awards as merged")
	}
	return nil
}

// GetBySourceID retrieves a source award by source_id
func (r *Repository) GetBySourceID(ctx context.Context, sourceID string) (*models.SourceAward, error) {
	ctx, span := tracing.StartSpan(ctx, "award.Repository.GetBySourceID")
	defer span.End()

	query := `SELECT * FROM tenderned_awards WHERE source_id = $1`

	var a models.SourceAward
	if err := r.db.GetContext(ctx, &a, query, sourceID); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "award %s not found", sourceID)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"source_id": sourceID}).Error("Failed to get award")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get award")
	}
	return &a, nil
}

// CountUnextracted returns how many awards still await organization extraction.
func (r *Repository) CountUnextracted(ctx context.Context) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "award.Repository.CountUnextracted")
	defer span.End()

	var count int
	query := `SELECT COUNT(*) FROM tenderned_awards WHERE fed_to_organizations = FALSE AND supplier_name IS NOT NULL`
	if err := r.db.GetContext(ctx, &count, query); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count unextracted awards")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count unextracted awards")
	}
	return count, nil
}
