package master

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/IrishJohn1973/tenderned-scraper/pkg/database"
	"github.com/IrishJohn1973/tenderned-scraper/pkg/models"
	"github.com/IrishJohn1973/tenderned-scraper/pkg/tracing"
)

// ErrIdentityConflict is returned when a source aggregate matches a master
// organization by name but the two carry different registry numbers. Such
// rows are rejected rather than merged: two registry numbers mean two legal
// entities regardless of how similar the names are.
var ErrIdentityConflict = errors.New("organization identity conflict")

// OrganizationDelta is the portion of an aggregate's stats that has not been
// projected to master yet. Counts and sums are differences since the last
// projection; the remaining aggregate fields are idempotent and merge whole.
type OrganizationDelta struct {
	Awards        int
	ContractValue float64
	ValuedAwards  int
}

// Repository handles master table persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new master repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// IsUniqueViolation reports whether err is a Postgres unique constraint error.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// UpsertTender projects a source tender into master_tenders. The master copy
// mirrors the latest source revision, so every field overwrites.
func (r *Repository) UpsertTender(ctx context.Context, tx database.Tx, t models.MasterTender) error {
	ctx, span := tracing.StartSpan(ctx, "master.Repository.UpsertTender")
	defer span.End()

	now := time.Now().UTC()

	query := `
		INSERT INTO master_tenders (
			source, source_id, title, short_description, buyer_name, buyer_country,
			cpv_codes, cpv_primary, notice_type, procurement_method, status,
			published_at, deadline, estimated_value_max, is_above_threshold,
			detail_url, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18
		)
		ON CONFLICT (source, source_id) DO UPDATE SET
			title = EXCLUDED.title,
			short_description = EXCLUDED.short_description,
			buyer_name = EXCLUDED.buyer_name,
			buyer_country = EXCLUDED.buyer_country,
			cpv_codes = EXCLUDED.cpv_codes,
			cpv_primary = EXCLUDED.cpv_primary,
			notice_type = EXCLUDED.notice_type,
			procurement_method = EXCLUDED.procurement_method,
			status = EXCLUDED.status,
			published_at = EXCLUDED.published_at,
			deadline = EXCLUDED.deadline,
			estimated_value_max = EXCLUDED.estimated_value_max,
			is_above_threshold = EXCLUDED.is_above_threshold,
			detail_url = EXCLUDED.detail_url,
			updated_at = EXCLUDED.updated_at
	`

	_, err := tx.ExecContext(ctx, query,
		t.Source, t.SourceID, t.Title, t.ShortDescription, t.BuyerName, t.BuyerCountry,
		t.CPVCodes, t.CPVPrimary, t.NoticeType, t.ProcurementMethod, t.Status,
		t.PublishedAt, t.Deadline, t.EstimatedValueMax, t.IsAboveThreshold,
		t.DetailURL, now, now,
	)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"source": t.Source, "source_id": t.SourceID}).Error("Failed to upsert master tender")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert master tender")
	}
	return nil
}

// UpsertAward projects a source award into master_awards. Descriptive fields
// overwrite; contact and economic fields keep the first non-null value so a
// later partial revision cannot blank data already merged.
func (r *Repository) UpsertAward(ctx context.Context, tx database.Tx, a models.MasterAward) error {
	ctx, span := tracing.StartSpan(ctx, "master.Repository.UpsertAward")
	defer span.End()

	now := time.Now().UTC()

	query := `
		INSERT INTO master_awards (
			source, source_id, title, short_description, buyer_name, buyer_country,
			cpv_codes, supplier_name, registry_number, supplier_email, supplier_phone,
			award_value, award_date, bidder_count, is_above_threshold, detail_url,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18
		)
		ON CONFLICT (source, source_id) DO UPDATE SET
			title = EXCLUDED.title,
			short_description = EXCLUDED.short_description,
			buyer_name = EXCLUDED.buyer_name,
			buyer_country = EXCLUDED.buyer_country,
			cpv_codes = EXCLUDED.cpv_codes,
			supplier_name = COALESCE(master_awards.supplier_name, EXCLUDED.supplier_name),
			registry_number = COALESCE(master_awards.registry_number, EXCLUDED.registry_number),
			supplier_email = COALESCE(master_awards.supplier_email, EXCLUDED.supplier_email),
			supplier_phone = COALESCE(master_awards.supplier_phone, EXCLUDED.supplier_phone),
			award_value = COALESCE(master_awards.award_value, EXCLUDED.award_value),
			award_date = COALESCE(master_awards.award_date, EXCLUDED.award_date),
			bidder_count = COALESCE(master_awards.bidder_count, EXCLUDED.bidder_count),
			is_above_threshold = EXCLUDED.is_above_threshold,
			detail_url = EXCLUDED.detail_url,
			updated_at = EXCLUDED.updated_at
	`

	_, err := tx.ExecContext(ctx, query,
		a.Source, a.SourceID, a.Title, a.ShortDescription, a.BuyerName, a.BuyerCountry,
		a.CPVCodes, a.SupplierName, a.RegistryNumber, a.SupplierEmail, a.SupplierPhone,
		a.AwardValue, a.AwardDate, a.BidderCount, a.IsAboveThreshold, a.DetailURL,
		now, now,
	)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"source": a.Source, "source_id": a.SourceID}).Error("Failed to upsert master award")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert master award")
	}
	return nil
}

// ResolveAndMergeOrganization finds or creates the master organization for a
// source aggregate and applies the outstanding stat delta. Resolution prefers
// the registry number; the normalized name is only a fallback, and a name
// match that carries a different registry number fails with
// ErrIdentityConflict.
//
// Returns the master organization id and the match method used.
func (r *Repository) ResolveAndMergeOrganization(ctx context.Context, tx database.Tx, agg models.OrganizationAggregate, delta OrganizationDelta) (string, string, error) {
	ctx, span := tracing.StartSpan(ctx, "master.Repository.ResolveAndMergeOrganization")
	defer span.End()

	if agg.KVKNumber != nil {
		id, err := r.lockByRegistryNumber(ctx, tx, *agg.KVKNumber)
		if err != nil {
			return "", "", err
		}
		if id != "" {
			if err := r.applyDelta(ctx, tx, id, agg, delta); err != nil {
				return "", "", err
			}
			return id, models.MatchMethodRegistryID, nil
		}
	}

	id, registryNumber, err := r.lockByNormalizedName(ctx, tx, agg.NormalizedName)
	if err != nil {
		return "", "", err
	}
	if id != "" {
		if agg.KVKNumber != nil && registryNumber != nil && *registryNumber != *agg.KVKNumber {
			return "", "", errors.Wrapf(ErrIdentityConflict,
				"aggregate %s has registry number %s but master %s has %s",
				agg.IdentityKey, *agg.KVKNumber, id, *registryNumber)
		}
		if err := r.applyDelta(ctx, tx, id, agg, delta); err != nil {
			return "", "", err
		}
		return id, models.MatchMethodNormalizedName, nil
	}

	return r.insert(ctx, tx, agg, delta)
}

func (r *Repository) lockByRegistryNumber(ctx context.Context, tx database.Tx, registryNumber string) (string, error) {
	var id string
	err := tx.GetContext(ctx, &id, `SELECT id FROM master_organizations WHERE registry_number = $1 FOR UPDATE`, registryNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"registry_number": registryNumber}).Error("Failed to look up master organization by registry number")
		return "", httperror.NewHTTPError(http.StatusInternalServerError, "failed to look up master organization")
	}
	return id, nil
}

func (r *Repository) lockByNormalizedName(ctx context.Context, tx database.Tx, normalizedName string) (string, *string, error) {
	var row struct {
		ID             string  `db:"id"`
		RegistryNumber *string `db:"registry_number"`
	}
	err := tx.GetContext(ctx, &row, `SELECT id, registry_number FROM master_organizations WHERE normalized_name = $1 FOR UPDATE`, normalizedName)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, nil
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"normalized_name": normalizedName}).Error("Failed to look up master organization by normalized name")
		return "", nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to look up master organization")
	}
	return row.ID, row.RegistryNumber, nil
}

func (r *Repository) applyDelta(ctx context.Context, tx database.Tx, id string, agg models.OrganizationAggregate, delta OrganizationDelta) error {
	query := `
		UPDATE master_organizations SET
			registry_number = COALESCE(registry_number, $1),
			vat_number = COALESCE(vat_number, $2),
			name_variants = ARRAY(
				SELECT DISTINCT v FROM unnest(name_variants || $3::text[]) AS v ORDER BY v
			),
			primary_email = COALESCE(primary_email, $4),
			primary_phone = COALESCE(primary_phone, $5),
			website = COALESCE(website, $6),
			cpv_codes_won = ARRAY(
				SELECT DISTINCT v FROM unnest(cpv_codes_won || $7::text[]) AS v ORDER BY v
			),
			is_sme = is_sme OR $8,
			total_awards_won = total_awards_won + $9,
			total_contract_value = total_contract_value + $10,
			valued_award_count = valued_award_count + $11,
			largest_contract_value = GREATEST(largest_contract_value, $12),
			first_award_date = LEAST(first_award_date, $13),
			last_award_date = GREATEST(last_award_date, $14),
			frequent_buyers = ARRAY(
				SELECT DISTINCT v FROM unnest(frequent_buyers || $15::text[]) AS v ORDER BY v
			),
			updated_at = $16
		WHERE id = $17
	`
	_, err := tx.ExecContext(ctx, query,
		agg.KVKNumber, agg.VATNumber, agg.NameVariants,
		agg.PrimaryEmail, agg.PrimaryPhone, agg.Website,
		agg.CPVCodesWon, agg.IsSME,
		delta.Awards, delta.ContractValue, delta.ValuedAwards,
		agg.LargestContractValue, agg.FirstAwardDate, agg.LastAwardDate,
		agg.FrequentBuyers, time.Now().UTC(), id,
	)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"master_org_id": id, "identity_key": agg.IdentityKey}).Error("Failed to merge organization aggregate into master")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to merge organization into master")
	}
	return nil
}

func (r *Repository) insert(ctx context.Context, tx database.Tx, agg models.OrganizationAggregate, delta OrganizationDelta) (string, string, error) {
	matchMethod := models.MatchMethodNormalizedName
	if agg.KVKNumber != nil {
		matchMethod = models.MatchMethodRegistryID
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO master_organizations (
			normalized_name, canonical_name, registry_number, vat_number, name_variants,
			primary_email, primary_phone, website, cpv_codes_won, is_sme,
			total_awards_won, total_contract_value, valued_award_count,
			largest_contract_value, first_award_date, last_award_date,
			frequent_buyers, match_method, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20
		)
		RETURNING id
	`

	var id string
	err := tx.GetContext(ctx, &id, query,
		agg.NormalizedName, agg.CanonicalName, agg.KVKNumber, agg.VATNumber, agg.NameVariants,
		agg.PrimaryEmail, agg.PrimaryPhone, agg.Website, agg.CPVCodesWon, agg.IsSME,
		delta.Awards, delta.ContractValue, delta.ValuedAwards,
		agg.LargestContractValue, agg.FirstAwardDate, agg.LastAwardDate,
		agg.FrequentBuyers, matchMethod, now, now,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return "", "", errors.Wrapf(ErrIdentityConflict, "insert of %s raced a concurrent merge", agg.IdentityKey)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"identity_key": agg.IdentityKey}).Error("Failed to insert master organization")
		return "", "", httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert master organization")
	}
	return id, matchMethod, nil
}

// GetOrganization retrieves a master organization by id
func (r *Repository) GetOrganization(ctx context.Context, id string) (*models.MasterOrganization, error) {
	ctx, span := tracing.StartSpan(ctx, "master.Repository.GetOrganization")
	defer span.End()

	var org models.MasterOrganization
	if err := r.db.GetContext(ctx, &org, `SELECT * FROM master_organizations WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "master organization %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to get master organization")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get master organization")
	}
	return &org, nil
}
