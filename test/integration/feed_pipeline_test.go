package integration

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IrishJohn1973/tenderned-scraper/internal/repositories/award"
	"github.com/IrishJohn1973/tenderned-scraper/internal/repositories/master"
	"github.com/IrishJohn1973/tenderned-scraper/internal/repositories/organization"
	"github.com/IrishJohn1973/tenderned-scraper/internal/repositories/tender"
	"github.com/IrishJohn1973/tenderned-scraper/pkg/database"
	"github.com/IrishJohn1973/tenderned-scraper/pkg/events"
	"github.com/IrishJohn1973/tenderned-scraper/pkg/extractor"
	"github.com/IrishJohn1973/tenderned-scraper/pkg/feeder"
	"github.com/IrishJohn1973/tenderned-scraper/pkg/models"
)

type testEnv struct {
	db         database.DB
	raw        *sqlx.DB
	tenderRepo *tender.Repository
	awardRepo  *award.Repository
	orgRepo    *organization.Repository
	masterRepo *master.Repository
	extractor  *extractor.Service
	feeder     *feeder.Service
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		getEnv("VALAN_DB_HOST", "localhost"),
		getEnv("VALAN_DB_PORT", "5432"),
		getEnv("VALAN_DB_USER", "postgres"),
		getEnv("VALAN_DB_PASSWORD", "postgres"),
		getEnv("VALAN_DB_NAME", "valan_test"),
	)

	raw, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		t.Skipf("PostgreSQL not available: %v", err)
	}
	t.Cleanup(func() { raw.Close() })

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

	driver, err := migratepg.WithInstance(raw.DB, &migratepg.Config{})
	require.NoError(t, err)
	require.NoError(t, database.NewMigrationService(logger, "../../db/pg").Migrate("valan_test", driver))

	_, err = raw.Exec(`TRUNCATE tenderned_tenders, tenderned_awards, tenderned_organizations,
		master_tenders, master_awards, master_organizations RESTART IDENTITY`)
	require.NoError(t, err)

	db := database.NewDatabaseInstance(raw, logger)
	tenderRepo := tender.NewRepository(db, logger)
	awardRepo := award.NewRepository(db, logger)
	orgRepo := organization.NewRepository(db, logger)
	masterRepo := master.NewRepository(db, logger)

	return &testEnv{
		db:         db,
		raw:        raw,
		tenderRepo: tenderRepo,
		awardRepo:  awardRepo,
		orgRepo:    orgRepo,
		masterRepo: masterRepo,
		extractor:  extractor.NewService(db, awardRepo, orgRepo, logger, 100),
		feeder:     feeder.NewService(db, tenderRepo, awardRepo, orgRepo, masterRepo, events.NewNoopEmitter(), logger, 100),
	}
}

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }

func testAward(sourceID, supplier string, value *float64) models.SourceAward {
	d := time.Date(2024, 4, 15, 0, 0, 0, 0, time.UTC)
	return models.SourceAward{
		Source:       "tenderned",
		SourceID:     sourceID,
		Title:        "Testopdracht " + sourceID,
		BuyerCountry: "NL",
		SupplierName: strPtr(supplier),
		AwardValue:   value,
		AwardDate:    &d,
		FetchedAt:    time.Now().UTC(),
	}
}

func TestExtractAndMergePipeline(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a1 := testAward("award-1", "Acme B.V.", floatPtr(1000))
	a1.SupplierEmail = strPtr("sales@acme.nl")
	a2 := testAward("award-2", "ACME BV", floatPtr(2500))
	_, err := env.awardRepo.Upsert(ctx, a1)
	require.NoError(t, err)
	_, err = env.awardRepo.Upsert(ctx, a2)
	require.NoError(t, err)

	extractResult, err := env.extractor.Extract(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, extractResult.Organizations)
	assert.Equal(t, 2, extractResult.AwardsConsumed)

	org, err := env.orgRepo.Get(ctx, "name:acme")
	require.NoError(t, err)
	assert.Equal(t, "Acme B.V.", org.CanonicalName)
	assert.Equal(t, 2, org.TotalAwardsWon)
	assert.Equal(t, 3500.0, org.TotalContractValue)
	assert.Equal(t, 2, org.ValuedAwardCount)
	require.NotNil(t, org.PrimaryEmail)
	assert.Equal(t, "sales@acme.nl", *org.PrimaryEmail)
	assert.ElementsMatch(t, []string{"ACME BV", "Acme B.V."}, []string(org.NameVariants))

	result, err := env.feeder.MergeAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Awards.Fed)
	assert.Equal(t, 1, result.Organizations.Fed)

	org, err = env.orgRepo.Get(ctx, "name:acme")
	require.NoError(t, err)
	require.NotNil(t, org.MasterOrgID)
	assert.True(t, org.FedToMaster)

	masterOrg, err := env.masterRepo.GetOrganization(ctx, *org.MasterOrgID)
	require.NoError(t, err)
	assert.Equal(t, "acme", masterOrg.NormalizedName)
	assert.Equal(t, 2, masterOrg.TotalAwardsWon)
	assert.Equal(t, 3500.0, masterOrg.TotalContractValue)
	assert.Equal(t, models.MatchMethodNormalizedName, masterOrg.MatchMethod)

	// A second run with nothing new feeds nothing and changes no totals.
	rerun, err := env.feeder.MergeAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, rerun.Awards.Fed)
	assert.Equal(t, 0, rerun.Organizations.Fed)

	masterOrg, err = env.masterRepo.GetOrganization(ctx, *org.MasterOrgID)
	require.NoError(t, err)
	assert.Equal(t, 2, masterOrg.TotalAwardsWon)
	assert.Equal(t, 3500.0, masterOrg.TotalContractValue)
}

func TestIncrementalMergeAppliesOnlyDelta(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.awardRepo.Upsert(ctx, testAward("award-1", "Bouwbedrijf Jansen", floatPtr(500)))
	require.NoError(t, err)
	_, err = env.extractor.Extract(ctx)
	require.NoError(t, err)
	_, err = env.feeder.MergeAll(ctx)
	require.NoError(t, err)

	// A later batch brings one more award for the same supplier.
	_, err = env.awardRepo.Upsert(ctx, testAward("award-2", "Bouwbedrijf Jansen B.V.", floatPtr(700)))
	require.NoError(t, err)
	_, err = env.extractor.Extract(ctx)
	require.NoError(t, err)
	_, err = env.feeder.MergeAll(ctx)
	require.NoError(t, err)

	org, err := env.orgRepo.Get(ctx, "name:bouwbedrijf jansen")
	require.NoError(t, err)
	assert.Equal(t, 2, org.TotalAwardsWon)
	assert.Equal(t, 1200.0, org.TotalContractValue)

	require.NotNil(t, org.MasterOrgID)
	masterOrg, err := env.masterRepo.GetOrganization(ctx, *org.MasterOrgID)
	require.NoError(t, err)
	assert.Equal(t, 2, masterOrg.TotalAwardsWon)
	assert.Equal(t, 1200.0, masterOrg.TotalContractValue)
	assert.Equal(t, 2, masterOrg.ValuedAwardCount)
}

func TestRegistryNumberUnifiesDifferentNames(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a1 := testAward("award-1", "Acme Groep", floatPtr(100))
	a1.KVKNumber = strPtr("12345678")
	a2 := testAward("award-2", "Acme Holding", floatPtr(200))
	a2.KVKNumber = strPtr("12.34.56.78")
	_, err := env.awardRepo.Upsert(ctx, a1)
	require.NoError(t, err)
	_, err = env.awardRepo.Upsert(ctx, a2)
	require.NoError(t, err)

	extractResult, err := env.extractor.Extract(ctx)
	require.NoError(t, err)
	// Both awards share the registry number, so one identity.
	assert.Equal(t, 1, extractResult.Organizations)

	org, err := env.orgRepo.Get(ctx, "kvk:12345678")
	require.NoError(t, err)
	assert.Equal(t, 2, org.TotalAwardsWon)

	_, err = env.feeder.MergeAll(ctx)
	require.NoError(t, err)

	org, err = env.orgRepo.Get(ctx, "kvk:12345678")
	require.NoError(t, err)
	require.NotNil(t, org.MasterOrgID)
	masterOrg, err := env.masterRepo.GetOrganization(ctx, *org.MasterOrgID)
	require.NoError(t, err)
	require.NotNil(t, masterOrg.RegistryNumber)
	assert.Equal(t, "12345678", *masterOrg.RegistryNumber)
	assert.Equal(t, models.MatchMethodRegistryID, masterOrg.MatchMethod)
}

func TestContactCoalesceKeepsExisting(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a1 := testAward("award-1", "Acme", nil)
	a1.SupplierEmail = strPtr("first@acme.nl")
	_, err := env.awardRepo.Upsert(ctx, a1)
	require.NoError(t, err)
	_, err = env.extractor.Extract(ctx)
	require.NoError(t, err)

	// A later batch has no contact data; the stored contact survives.
	_, err = env.awardRepo.Upsert(ctx, testAward("award-2", "Acme", floatPtr(50)))
	require.NoError(t, err)
	_, err = env.extractor.Extract(ctx)
	require.NoError(t, err)

	org, err := env.orgRepo.Get(ctx, "name:acme")
	require.NoError(t, err)
	require.NotNil(t, org.PrimaryEmail)
	assert.Equal(t, "first@acme.nl", *org.PrimaryEmail)
	assert.Equal(t, 2, org.TotalAwardsWon)
}

func TestIdentityConflictRejectsRowAndContinues(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Seed a master organization under the name "acme" with one registry
	// number via the normal pipeline.
	a1 := testAward("award-1", "Acme B.V.", floatPtr(100))
	a1.KVKNumber = strPtr("11111111")
	_, err := env.awardRepo.Upsert(ctx, a1)
	require.NoError(t, err)
	_, err = env.extractor.Extract(ctx)
	require.NoError(t, err)
	_, err = env.feeder.MergeAll(ctx)
	require.NoError(t, err)

	// A name-only identity for the same normalized name, plus an unrelated
	// healthy identity. The conflicting row must not block the healthy one.
	conflicting := testAward("award-2", "Acme", floatPtr(200))
	conflicting.KVKNumber = strPtr("22222222")
	_, err = env.awardRepo.Upsert(ctx, conflicting)
	require.NoError(t, err)
	_, err = env.awardRepo.Upsert(ctx, testAward("award-3", "Gezond Bedrijf", floatPtr(300)))
	require.NoError(t, err)
	_, err = env.extractor.Extract(ctx)
	require.NoError(t, err)

	outcome, err := env.feeder.MergeOrganizations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Fed)
	assert.Contains(t, outcome.Rejected, "kvk:22222222")

	healthy, err := env.orgRepo.Get(ctx, "name:gezond bedrijf")
	require.NoError(t, err)
	assert.NotNil(t, healthy.MasterOrgID)
	assert.True(t, healthy.FedToMaster)

	rejected, err := env.orgRepo.Get(ctx, "kvk:22222222")
	require.NoError(t, err)
	assert.Nil(t, rejected.MasterOrgID)
	assert.False(t, rejected.FedToMaster)
}

func TestTenderMergeRejectsMissingTitle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.tenderRepo.Upsert(ctx, models.SourceTender{
		Source:       "tenderned",
		SourceID:     "tender-1",
		Title:        "Aanbesteding wegonderhoud",
		BuyerCountry: "NL",
		FetchedAt:    time.Now().UTC(),
	})
	require.NoError(t, err)
	_, err = env.tenderRepo.Upsert(ctx, models.SourceTender{
		Source:       "tenderned",
		SourceID:     "tender-2",
		Title:        "   ",
		BuyerCountry: "NL",
		FetchedAt:    time.Now().UTC(),
	})
	require.NoError(t, err)

	outcome, err := env.feeder.MergeTenders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Fed)
	assert.Equal(t, []string{"tender-2"}, outcome.Rejected)

	fed, err := env.tenderRepo.GetBySourceID(ctx, "tender-1")
	require.NoError(t, err)
	assert.True(t, fed.FedToMaster)

	held, err := env.tenderRepo.GetBySourceID(ctx, "tender-2")
	require.NoError(t, err)
	assert.False(t, held.FedToMaster)
}

func TestReingestedAwardRefedsMasterNotOrganizations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.awardRepo.Upsert(ctx, testAward("award-1", "Acme", floatPtr(100)))
	require.NoError(t, err)
	_, err = env.extractor.Extract(ctx)
	require.NoError(t, err)
	_, err = env.feeder.MergeAll(ctx)
	require.NoError(t, err)

	// A revised notice for the same award arrives.
	revised := testAward("award-1", "Acme", floatPtr(100))
	revised.BidderCount = intPtr(4)
	_, err = env.awardRepo.Upsert(ctx, revised)
	require.NoError(t, err)

	stored, err := env.awardRepo.GetBySourceID(ctx, "award-1")
	require.NoError(t, err)
	assert.False(t, stored.FedToMaster)
	// Already-consumed organization statistics are never re-extracted.
	assert.True(t, stored.FedToOrganizations)

	extractResult, err := env.extractor.Extract(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, extractResult.AwardsConsumed)

	result, err := env.feeder.MergeAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Awards.Fed)

	org, err := env.orgRepo.Get(ctx, "name:acme")
	require.NoError(t, err)
	assert.Equal(t, 1, org.TotalAwardsWon)
}

func intPtr(i int) *int { return &i }

func TestExtractFlipsOnlyReadRows(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Two sources share a source_id. The "other" row has no supplier yet, so
	// the extractor never reads it; its flag must stay down.
	_, err := env.awardRepo.Upsert(ctx, models.SourceAward{
		Source:       "other",
		SourceID:     "award-1",
		Title:        "Zelfde nummer, andere bron",
		BuyerCountry: "NL",
		FetchedAt:    time.Now().UTC(),
	})
	require.NoError(t, err)
	_, err = env.awardRepo.Upsert(ctx, testAward("award-1", "Acme", floatPtr(100)))
	require.NoError(t, err)

	extractResult, err := env.extractor.Extract(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, extractResult.AwardsConsumed)

	var fed bool
	require.NoError(t, env.raw.Get(&fed,
		`SELECT fed_to_organizations FROM tenderned_awards WHERE source = 'tenderned' AND source_id = 'award-1'`))
	assert.True(t, fed)
	require.NoError(t, env.raw.Get(&fed,
		`SELECT fed_to_organizations FROM tenderned_awards WHERE source = 'other' AND source_id = 'award-1'`))
	assert.False(t, fed)

	// Once the other source's supplier arrives, its contribution still lands.
	revised := testAward("award-1", "Ander Bedrijf", floatPtr(50))
	revised.Source = "other"
	_, err = env.awardRepo.Upsert(ctx, revised)
	require.NoError(t, err)

	extractResult, err = env.extractor.Extract(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, extractResult.AwardsConsumed)

	org, err := env.orgRepo.Get(ctx, "name:ander bedrijf")
	require.NoError(t, err)
	assert.Equal(t, 1, org.TotalAwardsWon)
}

func TestTenderMarkScopedToReadRows(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.tenderRepo.Upsert(ctx, models.SourceTender{
		Source:       "tenderned",
		SourceID:     "t1",
		Title:        "Aanbesteding straatverlichting",
		BuyerCountry: "NL",
		FetchedAt:    time.Now().UTC(),
	})
	require.NoError(t, err)
	_, err = env.tenderRepo.Upsert(ctx, models.SourceTender{
		Source:       "other",
		SourceID:     "t1",
		Title:        "  ",
		BuyerCountry: "NL",
		FetchedAt:    time.Now().UTC(),
	})
	require.NoError(t, err)

	outcome, err := env.feeder.MergeTenders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Fed)
	assert.Equal(t, []string{"t1"}, outcome.Rejected)

	// Only the projected row is flagged; the rejected one from the other
	// source stays queued for retry.
	var fed bool
	require.NoError(t, env.raw.Get(&fed,
		`SELECT fed_to_master FROM tenderned_tenders WHERE source = 'tenderned' AND source_id = 't1'`))
	assert.True(t, fed)
	require.NoError(t, env.raw.Get(&fed,
		`SELECT fed_to_master FROM tenderned_tenders WHERE source = 'other' AND source_id = 't1'`))
	assert.False(t, fed)
}

func TestRevisionWithoutContactKeepsDummyFlag(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a1 := testAward("award-1", "Acme", nil)
	a1.SupplierEmail = strPtr("noreply@tenderned.nl")
	a1.EmailIsDummy = true
	_, err := env.awardRepo.Upsert(ctx, a1)
	require.NoError(t, err)

	// A revision with no email must not relabel the stored placeholder.
	revision := testAward("award-1", "Acme", floatPtr(100))
	_, err = env.awardRepo.Upsert(ctx, revision)
	require.NoError(t, err)

	stored, err := env.awardRepo.GetBySourceID(ctx, "award-1")
	require.NoError(t, err)
	require.NotNil(t, stored.SupplierEmail)
	assert.Equal(t, "noreply@tenderned.nl", *stored.SupplierEmail)
	assert.True(t, stored.EmailIsDummy)
	assert.Nil(t, stored.Email())

	_, err = env.extractor.Extract(ctx)
	require.NoError(t, err)
	org, err := env.orgRepo.Get(ctx, "name:acme")
	require.NoError(t, err)
	assert.Nil(t, org.PrimaryEmail)

	// A revision that does carry an email moves value and flag together.
	second := testAward("award-1", "Acme", nil)
	second.SupplierEmail = strPtr("sales@acme.nl")
	_, err = env.awardRepo.Upsert(ctx, second)
	require.NoError(t, err)

	stored, err = env.awardRepo.GetBySourceID(ctx, "award-1")
	require.NoError(t, err)
	require.NotNil(t, stored.Email())
	assert.Equal(t, "sales@acme.nl", *stored.Email())
	assert.False(t, stored.EmailIsDummy)
}

func TestExtractAllDrainsBacklog(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	smallBatches := extractor.NewService(env.db, env.awardRepo, env.orgRepo, logger, 1)

	_, err := env.awardRepo.Upsert(ctx, testAward("award-1", "Acme", floatPtr(100)))
	require.NoError(t, err)
	_, err = env.awardRepo.Upsert(ctx, testAward("award-2", "Acme", floatPtr(200)))
	require.NoError(t, err)
	_, err = env.awardRepo.Upsert(ctx, testAward("award-3", "Bouwbedrijf Jansen", nil))
	require.NoError(t, err)

	result, err := smallBatches.ExtractAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, result.AwardsConsumed)

	remaining, err := env.awardRepo.CountUnextracted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	org, err := env.orgRepo.Get(ctx, "name:acme")
	require.NoError(t, err)
	assert.Equal(t, 2, org.TotalAwardsWon)
}

func TestMasterSMEFlagNeverReverts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	smeAward := testAward("award-1", "Acme B.V.", floatPtr(100))
	smeAward.KVKNumber = strPtr("12345678")
	smeAward.IsSME = true
	_, err := env.awardRepo.Upsert(ctx, smeAward)
	require.NoError(t, err)
	_, err = env.extractor.Extract(ctx)
	require.NoError(t, err)
	_, err = env.feeder.MergeAll(ctx)
	require.NoError(t, err)

	// A name-only aggregate without the SME marker resolves to the same
	// master row by normalized name; the marker must survive the merge.
	plainAward := testAward("award-2", "Acme", floatPtr(200))
	_, err = env.awardRepo.Upsert(ctx, plainAward)
	require.NoError(t, err)
	_, err = env.extractor.Extract(ctx)
	require.NoError(t, err)
	_, err = env.feeder.MergeAll(ctx)
	require.NoError(t, err)

	org, err := env.orgRepo.Get(ctx, "kvk:12345678")
	require.NoError(t, err)
	require.NotNil(t, org.MasterOrgID)

	masterOrg, err := env.masterRepo.GetOrganization(ctx, *org.MasterOrgID)
	require.NoError(t, err)
	assert.True(t, masterOrg.IsSME)
	assert.Equal(t, 2, masterOrg.TotalAwardsWon)
	assert.Equal(t, 300.0, masterOrg.TotalContractValue)
}
