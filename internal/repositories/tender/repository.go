package tender

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

// Repository handles source tender persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new source tender repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Upsert creates or updates a source tender keyed on (source, source_id).
// A re-scrape of an already-merged notice resets fed_to_master so the next
// merge run picks up the revision.
func (r *Repository) Upsert(ctx context.Context, t models.SourceTender) (*models.SourceTender, error) {
	ctx, span := tracing.StartSpan(ctx, "tender.Repository.Upsert")
	defer span.End()

	now := time.Now().UTC()

	query := `
		INSERT INTO tenderned_tenders (
			source, source_id, reference, title, short_description,
			buyer_name, buyer_country, cpv_codes, cpv_primary, nuts_codes,
			notice_type, procurement_method, contract_type, status,
			published_at, deadline, contract_start, contract_end,
			estimated_value_min, estimated_value_max,
			is_above_threshold, is_digital, ted_number, detail_url,
			source_metadata, fetched_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
			$21, $22, $23, $24, $25, $26, $27, $28
		)
		ON CONFLICT (source, source_id) DO UPDATE SET
			reference = EXCLUDED.reference,
			title = EXCLUDED.title,
			short_description = EXCLUDED.short_description,
			buyer_name = EXCLUDED.buyer_name,
			buyer_country = EXCLUDED.buyer_country,
			cpv_codes = EXCLUDED.cpv_codes,
			cpv_primary = EXCLUDED.cpv_primary,
			nuts_codes = EXCLUDED.nuts_codes,
			notice_type = EXCLUDED.notice_type,
			procurement_method = EXCLUDED.procurement_method,
			contract_type = EXCLUDED.contract_type,
			status = EXCLUDED.status,
			published_at = EXCLUDED.published_at,
			deadline = EXCLUDED.deadline,
			contract_start = EXCLUDED.contract_start,
			contract_end = EXCLUDED.contract_end,
			estimated_value_min = EXCLUDED.estimated_value_min,
			estimated_value_max = EXCLUDED.estimated_value_max,
			is_above_threshold = EXCLUDED.is_above_threshold,
			is_digital = EXCLUDED.is_digital,
			ted_number = EXCLUDED.ted_number,
			detail_url = EXCLUDED.detail_url,
			source_metadata = EXCLUDED.source_metadata,
			fetched_at = EXCLUDED.fetched_at,
			updated_at = EXCLUDED.updated_at,
			fed_to_master = FALSE,
			fed_to_master_at = NULL
		RETURNING *
	`

	var saved models.SourceTender
	err := r.db.GetContext(ctx, &saved, query,
		t.Source, t.SourceID, t.Reference, t.Title, t.ShortDescription,
		t.BuyerName, t.BuyerCountry, t.CPVCodes, t.CPVPrimary, t.NUTSCodes,
		t.NoticeType, t.ProcurementMethod, t.ContractType, t.Status,
		t.PublishedAt, t.Deadline, t.ContractStart, t.ContractEnd,
		t.EstimatedValueMin, t.EstimatedValueMax,
		t.IsAboveThreshold, t.IsDigital, t.TEDNumber, t.DetailURL,
		t.SourceMetadata, now, now, now,
	)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"source": t.Source, "source_id": t.SourceID}).Error("Failed to upsert tender")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert tender")
	}

	return &saved, nil
}

// ListUnfedToMaster returns unmerged tenders inside the caller's transaction,
// locking the rows so concurrent merge runs cannot pick up the same batch.
func (r *Repository) ListUnfedToMaster(ctx context.Context, tx database.Tx, limit int) ([]models.SourceTender, error) {
	ctx, span := tracing.StartSpan(ctx, "tender.Repository.ListUnfedToMaster")
	defer span.End()

	query := `
		SELECT *
		FROM tenderned_tenders
		WHERE fed_to_master = FALSE
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`

	var tenders []models.SourceTender
	if err := tx.SelectContext(ctx, &tenders, query, limit); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list unmerged tenders")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list unmerged tenders")
	}
	return tenders, nil
}

// MarkFedToMaster flips fed_to_master for the given row ids. Must run in
// the same transaction that read the batch. Keyed on id so only the rows
// read in this pass are affected; source_id alone is not unique across
// sources.
func (r *Repository) MarkFedToMaster(ctx context.Context, tx database.Tx, ids []int64) error {
	ctx, span := tracing.StartSpan(ctx, "tender.Repository.MarkFedToMaster")
	defer span.End()

	if len(ids) == 0 {
		return nil
	}

	query := `
		UPDATE tenderned_tenders
		SET fed_to_master = TRUE, fed_to_master_at = $1
		WHERE id = ANY($2)
	`
	if _, err := tx.ExecContext(ctx, query, time.Now().UTC(), pq.Int64Array(ids)); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"count": len(ids)}).Error("Failed to mark tenders as merged")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark tenders as merged")
	}
	return nil
}

// GetBySourceID retrieves a source tender by source_id
func (r *Repository) GetBySourceID(ctx context.Context, sourceID string) (*models.SourceTender, error) {
	ctx, span := tracing.StartSpan(ctx, "tender.Repository.GetBySourceID")
	defer span.End()

	query := `SELECT * FROM tenderned_tenders WHERE source_id = $1`

	var t models.SourceTender
	if err := r.db.GetContext(ctx, &t, query, sourceID); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "tender %s not found", sourceID)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"source_id": sourceID}).Error("Failed to get tender")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get tender")
	}
	return &t, nil
}

// CountUnfed returns how many tenders still await a merge run.
func (r *Repository) CountUnfed(ctx context.Context) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "tender.Repository.CountUnfed")
	defer span.End()

	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM tenderned_tenders WHERE fed_to_master = FALSE`); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count unmerged tenders")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count unmerged tenders")
	}
	return count, nil
}
