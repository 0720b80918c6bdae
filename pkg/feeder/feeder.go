package feeder

import (
	"context"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"

	"github.com/IrishJohn1973/tenderned-scraper/internal/repositories/award"
	"github.com/IrishJohn1973/tenderned-scraper/internal/repositories/master"
	"github.com/IrishJohn1973/tenderned-scraper/internal/repositories/organization"
	"github.com/IrishJohn1973/tenderned-scraper/internal/repositories/tender"
	"github.com/IrishJohn1973/tenderned-scraper/pkg/database"
	"github.com/IrishJohn1973/tenderned-scraper/pkg/events"
	"github.com/IrishJohn1973/tenderned-scraper/pkg/models"
	"github.com/IrishJohn1973/tenderned-scraper/pkg/tracing"
)

type mergedOrg struct {
	identityKey string
	masterOrgID string
	matchMethod string
}

// Service projects source rows into the master schema. Each projection is a
// single atomic unit of work: the unprocessed read, the master writes and the
// fed_to_master flips commit together. Rejected rows stay unflagged so a
// corrected re-ingest retries them.
type Service struct {
	db         database.DB
	tenderRepo *tender.Repository
	awardRepo  *award.Repository
	orgRepo    *organization.Repository
	masterRepo *master.Repository
	emitter    events.Emitter
	logger     ectologger.Logger
	batchSize  int
}

func NewService(
	db database.DB,
	tenderRepo *tender.Repository,
	awardRepo *award.Repository,
	orgRepo *organization.Repository,
	masterRepo *master.Repository,
	emitter events.Emitter,
	logger ectologger.Logger,
	batchSize int,
) *Service {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Service{
		db:         db,
		tenderRepo: tenderRepo,
		awardRepo:  awardRepo,
		orgRepo:    orgRepo,
		masterRepo: masterRepo,
		emitter:    emitter,
		logger:     logger,
		batchSize:  batchSize,
	}
}

// MergeTenders projects unprocessed source tenders into master_tenders.
func (s *Service) MergeTenders(ctx context.Context) (*models.MergeOutcome, error) {
	ctx, span := tracing.StartSpan(ctx, "feeder.Service.MergeTenders")
	defer span.End()

	ctx, tx, err := database.GetTx(ctx, s.logger, s.db, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	tenders, err := s.tenderRepo.ListUnfedToMaster(ctx, tx, s.batchSize)
	if err != nil {
		return nil, err
	}

	outcome := &models.MergeOutcome{}
	var fed []int64
	for _, t := range tenders {
		if strings.TrimSpace(t.Title) == "" {
			outcome.Rejected = append(outcome.Rejected, t.SourceID)
			continue
		}
		if err := s.masterRepo.UpsertTender(ctx, tx, toMasterTender(t)); err != nil {
			return nil, err
		}
		fed = append(fed, t.ID)
	}

	if err := s.tenderRepo.MarkFedToMaster(ctx, tx, fed); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	outcome.Fed = len(fed)
	s.logMergeOutcome(ctx, "tenders", outcome)
	return outcome, nil
}

// MergeAwards projects unprocessed source awards into master_awards. Dummy
// contact values are projected as null so they can never populate a master
// contact field.
func (s *Service) MergeAwards(ctx context.Context) (*models.MergeOutcome, error) {
	ctx, span := tracing.StartSpan(ctx, "feeder.Service.MergeAwards")
	defer span.End()

	ctx, tx, err := database.GetTx(ctx, s.logger, s.db, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	awards, err := s.awardRepo.ListUnfedToMaster(ctx, tx, s.batchSize)
	if err != nil {
		return nil, err
	}

	outcome := &models.MergeOutcome{}
	var fed []int64
	for _, a := range awards {
		if strings.TrimSpace(a.Title) == "" {
			outcome.Rejected = append(outcome.Rejected, a.SourceID)
			continue
		}
		if err := s.masterRepo.UpsertAward(ctx, tx, toMasterAward(a)); err != nil {
			return nil, err
		}
		fed = append(fed, a.ID)
	}

	if err := s.awardRepo.MarkFedToMaster(ctx, tx, fed); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	outcome.Fed = len(fed)
	s.logMergeOutcome(ctx, "awards", outcome)
	return outcome, nil
}

// MergeOrganizations projects unfed organization aggregates into
// master_organizations. Only the stat movement since the last projection is
// applied, so re-merging an aggregate never double-counts. A row that hits an
// identity conflict is rolled back to its savepoint and reported, without
// aborting the rest of the batch.
func (s *Service) MergeOrganizations(ctx context.Context) (*models.MergeOutcome, error) {
	ctx, span := tracing.StartSpan(ctx, "feeder.Service.MergeOrganizations")
	defer span.End()

	ctx, tx, err := database.GetTx(ctx, s.logger, s.db, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	orgs, err := s.orgRepo.ListUnfedToMaster(ctx, tx, s.batchSize)
	if err != nil {
		return nil, err
	}

	outcome := &models.MergeOutcome{}
	var merged []mergedOrg
	for _, agg := range orgs {
		if strings.TrimSpace(agg.CanonicalName) == "" {
			outcome.Rejected = append(outcome.Rejected, agg.IdentityKey)
			continue
		}

		delta := master.OrganizationDelta{
			Awards:        agg.TotalAwardsWon - agg.FedAwardsCount,
			ContractValue: agg.TotalContractValue - agg.FedContractValue,
			ValuedAwards:  agg.ValuedAwardCount - agg.FedValuedCount,
		}

		if _, err := tx.ExecContext(ctx, "SAVEPOINT org_row"); err != nil {
			return nil, err
		}

		masterID, matchMethod, err := s.masterRepo.ResolveAndMergeOrganization(ctx, tx, agg, delta)
		if err != nil {
			if !errors.Is(err, master.ErrIdentityConflict) {
				return nil, err
			}
			if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT org_row"); rbErr != nil {
				return nil, rbErr
			}
			s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"identity_key": agg.IdentityKey}).Warn("Rejected organization aggregate")
			outcome.Rejected = append(outcome.Rejected, agg.IdentityKey)
			continue
		}

		if err := s.orgRepo.MarkFedToMaster(ctx, tx, agg.IdentityKey, masterID); err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT org_row"); err != nil {
			return nil, err
		}

		merged = append(merged, mergedOrg{
			identityKey: agg.IdentityKey,
			masterOrgID: masterID,
			matchMethod: matchMethod,
		})
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	for _, m := range merged {
		s.emitter.OrganizationMerged(ctx, m.identityKey, m.masterOrgID, m.matchMethod)
	}

	outcome.Fed = len(merged)
	s.logMergeOutcome(ctx, "organizations", outcome)
	return outcome, nil
}

// MergeAll runs the full projection sequence: tenders, then awards, then
// organizations. Each stage is drained completely before the next starts, so
// the organization merge never runs against awards that are still in flight.
// Running it again with nothing new to process yields zero counts.
func (s *Service) MergeAll(ctx context.Context) (*models.FeedResult, error) {
	ctx, span := tracing.StartSpan(ctx, "feeder.Service.MergeAll")
	defer span.End()

	result := &models.FeedResult{}

	if err := s.drain(ctx, s.MergeTenders, &result.Tenders); err != nil {
		return nil, err
	}
	if err := s.drain(ctx, s.MergeAwards, &result.Awards); err != nil {
		return nil, err
	}
	if err := s.drain(ctx, s.MergeOrganizations, &result.Organizations); err != nil {
		return nil, err
	}

	s.emitter.FeedCompleted(ctx, *result)

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"tenders":       result.Tenders.Fed,
		"awards":        result.Awards.Fed,
		"organizations": result.Organizations.Fed,
	}).Info("Feed run completed")

	return result, nil
}

// drain runs one projection until a batch comes back empty. Rejected ids can
// repeat across batches when a row stays unflagged; the set is deduplicated.
func (s *Service) drain(ctx context.Context, merge func(context.Context) (*models.MergeOutcome, error), total *models.MergeOutcome) error {
	seen := make(map[string]struct{})
	for {
		outcome, err := merge(ctx)
		if err != nil {
			return err
		}
		total.Fed += outcome.Fed
		for _, id := range outcome.Rejected {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			total.Rejected = append(total.Rejected, id)
		}
		if outcome.Fed == 0 {
			return nil
		}
	}
}

func (s *Service) logMergeOutcome(ctx context.Context, kind string, outcome *models.MergeOutcome) {
	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"kind":     kind,
		"fed":      outcome.Fed,
		"rejected": len(outcome.Rejected),
	})
	if len(outcome.Rejected) > 0 {
		log.WithFields(map[string]any{"rejected_ids": outcome.Rejected}).Warn("Projection completed with rejections")
		return
	}
	log.Info("Projection completed")
}

func toMasterTender(t models.SourceTender) models.MasterTender {
	return models.MasterTender{
		Source:            t.Source,
		SourceID:          t.SourceID,
		Title:             t.Title,
		ShortDescription:  t.ShortDescription,
		BuyerName:         t.BuyerName,
		BuyerCountry:      t.BuyerCountry,
		CPVCodes:          t.CPVCodes,
		CPVPrimary:        t.CPVPrimary,
		NoticeType:        t.NoticeType,
		ProcurementMethod: t.ProcurementMethod,
		Status:            t.Status,
		PublishedAt:       t.PublishedAt,
		Deadline:          t.Deadline,
		EstimatedValueMax: t.EstimatedValueMax,
		IsAboveThreshold:  t.IsAboveThreshold,
		DetailURL:         t.DetailURL,
	}
}

func toMasterAward(a models.SourceAward) models.MasterAward {
	var registryNumber *string
	if a.KVKNumber != nil && *a.KVKNumber != "" {
		registryNumber = a.KVKNumber
	}
	return models.MasterAward{
		Source:           a.Source,
		SourceID:         a.SourceID,
		Title:            a.Title,
		ShortDescription: a.ShortDescription,
		BuyerName:        a.BuyerName,
		BuyerCountry:     a.BuyerCountry,
		CPVCodes:         a.CPVCodes,
		SupplierName:     a.SupplierName,
		RegistryNumber:   registryNumber,
		SupplierEmail:    a.Email(),
		SupplierPhone:    a.Phone(),
		AwardValue:       a.AwardValue,
		AwardDate:        a.AwardDate,
		BidderCount:      a.BidderCount,
		IsAboveThreshold: a.IsAboveThreshold,
		DetailURL:        a.DetailURL,
	}
}
