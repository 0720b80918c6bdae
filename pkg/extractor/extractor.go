package extractor

import (
	"context"
	"sort"

	"github.com/Gobusters/ectologger"

	"github.com/IrishJohn1973/tenderned-scraper/internal/repositories/award"
	"github.com/IrishJohn1973/tenderned-scraper/internal/repositories/organization"
	"github.com/IrishJohn1973/tenderned-scraper/pkg/database"
	"github.com/IrishJohn1973/tenderned-scraper/pkg/models"
	"github.com/IrishJohn1973/tenderned-scraper/pkg/tracing"
)

// Service turns unprocessed award rows into organization aggregates. Each
// Extract call is one atomic unit of work: the award read, the aggregate
// upserts and the fed_to_organizations flips commit together or not at all.
type Service struct {
	db        database.DB
	awardRepo *award.Repository
	orgRepo   *organization.Repository
	logger    ectologger.Logger
	batchSize int
}

func NewService(db database.DB, awardRepo *award.Repository, orgRepo *organization.Repository, logger ectologger.Logger, batchSize int) *Service {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Service{
		db:        db,
		awardRepo: awardRepo,
		orgRepo:   orgRepo,
		logger:    logger,
		batchSize: batchSize,
	}
}

// Extract groups the unprocessed awards by supplier identity and folds each
// group into its stored aggregate. Consumed awards are flagged in the same
// transaction, so exactly the rows that were read get marked.
func (s *Service) Extract(ctx context.Context) (*models.ExtractResult, error) {
	ctx, span := tracing.StartSpan(ctx, "extractor.Service.Extract")
	defer span.End()

	log := s.logger.WithContext(ctx)

	ctx, tx, err := database.GetTx(ctx, s.logger, s.db, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	awards, err := s.awardRepo.ListUnextracted(ctx, tx, s.batchSize)
	if err != nil {
		return nil, err
	}
	if len(awards) == 0 {
		return &models.ExtractResult{}, nil
	}

	groups, unidentified := GroupByIdentity(awards)

	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	consumed := make([]int64, 0, len(awards))
	for _, key := range keys {
		agg := BuildAggregate(key, groups[key])
		if _, err := s.orgRepo.AdditiveUpsert(ctx, tx, agg); err != nil {
			return nil, err
		}
		for _, a := range groups[key] {
			consumed = append(consumed, a.ID)
		}
	}

	// Awards whose supplier never normalizes to an identity carry nothing to
	// aggregate, but their flag still flips: there is no information left to
	// incorporate on a retry.
	for _, a := range unidentified {
		consumed = append(consumed, a.ID)
	}

	if err := s.awardRepo.MarkExtracted(ctx, tx, consumed); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.WithFields(map[string]any{
		"organizations":   len(keys),
		"awards_consumed": len(consumed),
	}).Info("Extracted organization aggregates")

	return &models.ExtractResult{
		Organizations:  len(keys),
		AwardsConsumed: len(consumed),
	}, nil
}

// ExtractAll runs Extract until the backlog is empty, one transaction per
// batch. The orchestrated feed uses this so the projection stages never run
// against awards that are still waiting to be extracted.
func (s *Service) ExtractAll(ctx context.Context) (*models.ExtractResult, error) {
	ctx, span := tracing.StartSpan(ctx, "extractor.Service.ExtractAll")
	defer span.End()

	total := &models.ExtractResult{}
	for {
		result, err := s.Extract(ctx)
		if err != nil {
			return nil, err
		}
		if result.AwardsConsumed == 0 {
			return total, nil
		}
		total.Organizations += result.Organizations
		total.AwardsConsumed += result.AwardsConsumed
	}
}
