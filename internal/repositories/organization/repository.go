package organization

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/IrishJohn1973/tenderned-scraper/pkg/database"
	"github.com/IrishJohn1973/tenderned-scraper/pkg/models"
	"github.com/IrishJohn1973/tenderned-scraper/pkg/tracing"
)

// Repository handles organization aggregate persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new organization aggregate repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// AdditiveUpsert folds a per-batch aggregate into the stored row for the same
// identity key. Counts and sums add, extremes take GREATEST/LEAST, arrays
// union, and contact fields keep the first non-null value ever seen. The row
// is flagged unfed so the next master merge projects the new deltas.
//
// The incoming aggregate must only contain awards that have not contributed
// before; callers guard this with the fed_to_organizations flag on awards.
func (r *Repository) AdditiveUpsert(ctx context.Context, tx database.Tx, agg models.OrganizationAggregate) (*models.OrganizationAggregate, error) {
	ctx, span := tracing.StartSpan(ctx, "organization.Repository.AdditiveUpsert")
	defer span.End()

	now := time.Now().UTC()

	query := `
		INSERT INTO tenderned_organizations (
			identity_key, kvk_number, vat_number, canonical_name, normalized_name,
			name_variants, primary_email, primary_phone, website, contact_verified,
			cpv_codes_won, is_sme,
			total_awards_won, total_contract_value, valued_award_count,
			largest_contract_value, first_award_date, last_award_date,
			frequent_buyers, needs_enrichment, award_source_ids,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
			$21, $22, $23
		)
		ON CONFLICT (identity_key) DO UPDATE SET
			kvk_number = COALESCE(tenderned_organizations.kvk_number, EXCLUDED.kvk_number),
			vat_number = COALESCE(tenderned_organizations.vat_number, EXCLUDED.vat_number),
			name_variants = ARRAY(
				SELECT DISTINCT v FROM unnest(tenderned_organizations.name_variants || EXCLUDED.name_variants) AS v ORDER BY v
			),
			primary_email = COALESCE(tenderned_organizations.primary_email, EXCLUDED.primary_email),
			primary_phone = COALESCE(tenderned_organizations.primary_phone, EXCLUDED.primary_phone),
			website = COALESCE(tenderned_organizations.website, EXCLUDED.website),
			contact_verified = tenderned_organizations.contact_verified OR EXCLUDED.contact_verified,
			cpv_codes_won = ARRAY(
				SELECT DISTINCT v FROM unnest(tenderned_organizations.cpv_codes_won || EXCLUDED.cpv_codes_won) AS v ORDER BY v
			),
			is_sme = tenderned_organizations.is_sme OR EXCLUDED.is_sme,
			total_awards_won = tenderned_organizations.total_awards_won + EXCLUDED.total_awards_won,
			total_contract_value = tenderned_organizations.total_contract_value + EXCLUDED.total_contract_value,
			valued_award_count = tenderned_organizations.valued_award_count + EXCLUDED.valued_award_count,
			largest_contract_value = GREATEST(tenderned_organizations.largest_contract_value, EXCLUDED.largest_contract_value),
			first_award_date = LEAST(tenderned_organizations.first_award_date, EXCLUDED.first_award_date),
			last_award_date = GREATEST(tenderned_organizations.last_award_date, EXCLUDED.last_award_date),
			frequent_buyers = ARRAY(
				SELECT DISTINCT v FROM unnest(tenderned_organizations.frequent_buyers || EXCLUDED.frequent_buyers) AS v ORDER BY v
			),
			needs_enrichment = COALESCE(tenderned_organizations.primary_email, EXCLUDED.primary_email) IS NULL
				AND COALESCE(tenderned_organizations.primary_phone, EXCLUDED.primary_phone) IS NULL
				AND COALESCE(tenderned_organizations.website, EXCLUDED.website) IS NULL
				AND COALESCE(tenderned_organizations.kvk_number, EXCLUDED.kvk_number) IS NOT NULL,
			award_source_ids = ARRAY(
				SELECT DISTINCT v FROM unnest(tenderned_organizations.award_source_ids || EXCLUDED.award_source_ids) AS v ORDER BY v
			),
			updated_at = EXCLUDED.updated_at,
			fed_to_master = FALSE
		RETURNING *
	`

	var saved models.OrganizationAggregate
	err := tx.GetContext(ctx, &saved, query,
		agg.IdentityKey, agg.KVKNumber, agg.VATNumber, agg.CanonicalName, agg.NormalizedName,
		agg.NameVariants, agg.PrimaryEmail, agg.PrimaryPhone, agg.Website, agg.ContactVerified,
		agg.CPVCodesWon, agg.IsSME,
		agg.TotalAwardsWon, agg.TotalContractValue, agg.ValuedAwardCount,
		agg.LargestContractValue, agg.FirstAwardDate, agg.LastAwardDate,
		agg.FrequentBuyers, agg.NeedsEnrichment, agg.AwardSourceIDs,
		now, now,
	)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"identity_key": agg.IdentityKey}).Error("Failed to upsert organization aggregate")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert organization aggregate")
	}

	return &saved, nil
}

// ListUnfedToMaster returns aggregates whose stats moved since their last
// master projection, locked for the duration of the merge transaction.
func (r *Repository) ListUnfedToMaster(ctx context.Context, tx database.Tx, limit int) ([]models.OrganizationAggregate, error) {
	ctx, span := tracing.StartSpan(ctx, "organization.Repository.ListUnfedToMaster")
	defer span.End()

	query := `
		SELECT *
		FROM tenderned_organizations
		WHERE fed_to_master = FALSE
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`

	var orgs []models.OrganizationAggregate
	if err := tx.SelectContext(ctx, &orgs, query, limit); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list unmerged organization aggregates")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list unmerged organization aggregates")
	}
	return orgs, nil
}

// MarkFedToMaster records a successful master projection: it pins the master
// org id and snapshots the totals that were projected, so the next merge only
// sends the difference. Must run in the transaction that applied the deltas.
func (r *Repository) MarkFedToMaster(ctx context.Context, tx database.Tx, identityKey, masterOrgID string) error {
	ctx, span := tracing.StartSpan(ctx, "organization.Repository.MarkFedToMaster")
	defer span.End()

	query := `
		UPDATE tenderned_organizations
		SET fed_to_master = TRUE,
			fed_to_master_at = $1,
			master_org_id = $2,
			fed_awards_count = total_awards_won,
			fed_contract_value = total_contract_value,
			fed_valued_count = valued_award_count
		WHERE identity_key = $3
	`
	if _, err := tx.ExecContext(ctx, query, time.Now().UTC(), masterOrgID, identityKey); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"identity_key": identityKey, "master_org_id": masterOrgID}).Error("Failed to mark organization aggregate as merged")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark organization aggregate as merged")
	}
	return nil
}

// Get retrieves an organization aggregate by identity key
func (r *Repository) Get(ctx context.Context, identityKey string) (*models.OrganizationAggregate, error) {
	ctx, span := tracing.StartSpan(ctx, "organization.Repository.Get")
	defer span.End()

	query := `SELECT * FROM tenderned_organizations WHERE identity_key = $1`

	var org models.OrganizationAggregate
	if err := r.db.GetContext(ctx, &org, query, identityKey); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "organization %s not found", identityKey)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"identity_key": identityKey}).Error("Failed to get organization aggregate")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get organization aggregate")
	}
	return &org, nil
}

// List retrieves organization aggregates with filtering and pagination
func (r *Repository) List(ctx context.Context, needsEnrichment *bool, page, pageSize int) (*models.OrganizationListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "organization.Repository.List")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	countSb := database.NewSelectBuilder()
	countSb.Select("COUNT(*)")
	countSb.From("tenderned_organizations")
	if needsEnrichment != nil {
		countSb.Where(countSb.Equal("needs_enrichment", *needsEnrichment))
	}

	countQuery, countArgs := countSb.Build()
	var totalCount int
	if err := r.db.GetContext(ctx, &totalCount, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count organization aggregates")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count organization aggregates")
	}

	sb := database.NewSelectBuilder()
	sb.Select("*")
	sb.From("tenderned_organizations")
	if needsEnrichment != nil {
		sb.Where(sb.Equal("needs_enrichment", *needsEnrichment))
	}
	sb.OrderBy("total_contract_value DESC", "id")
	sb.Limit(pageSize).Offset(offset)

	query, args := sb.Build()
	var orgs []models.OrganizationAggregate
	if err := r.db.SelectContext(ctx, &orgs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"page": page, "page_size": pageSize}).Error("Failed to list organization aggregates")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list organization aggregates")
	}

	items := make([]models.OrganizationView, 0, len(orgs))
	for _, org := range orgs {
		items = append(items, models.NewOrganizationView(org))
	}

	return &models.OrganizationListResponse{
		Items:      items,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}
