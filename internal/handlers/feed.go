package handlers

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/IrishJohn1973/tenderned-scraper/pkg/models"
	"github.com/IrishJohn1973/tenderned-scraper/pkg/redis"
	"github.com/IrishJohn1973/tenderned-scraper/pkg/scheduler"
	"github.com/IrishJohn1973/tenderned-scraper/pkg/tracing"
)

// FeedHandler exposes the extraction and projection operations. All calls go
// through the runner's locks; a 409 means another run currently holds the
// lock and nothing was done.
type FeedHandler struct {
	runner *scheduler.Runner
	logger ectologger.Logger
}

// NewFeedHandler creates a new feed handler
func NewFeedHandler(runner *scheduler.Runner, logger ectologger.Logger) *FeedHandler {
	return &FeedHandler{
		runner: runner,
		logger: logger,
	}
}

// ExtractOrganizations runs one organization extraction pass
// POST /api/v1/organizations/extract
func (h *FeedHandler) ExtractOrganizations(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "handlers.FeedHandler.ExtractOrganizations")
	defer span.End()

	result, err := h.runner.ExtractOrganizations(ctx)
	if err != nil {
		return mapLockError(err)
	}
	return SuccessResponse(c, result)
}

// FeedAll runs extraction followed by the full projection sequence
// POST /api/v1/feed/run
func (h *FeedHandler) FeedAll(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "handlers.FeedHandler.FeedAll")
	defer span.End()

	result, err := h.runner.FeedAll(ctx)
	if err != nil {
		return mapLockError(err)
	}
	return SuccessResponse(c, result)
}

// MergeTenders runs one tender projection pass
// POST /api/v1/feed/tenders
func (h *FeedHandler) MergeTenders(c echo.Context) error {
	return h.mergeOne(c, "handlers.FeedHandler.MergeTenders", h.runner.MergeTenders)
}

// MergeAwards runs one award projection pass
// POST /api/v1/feed/awards
func (h *FeedHandler) MergeAwards(c echo.Context) error {
	return h.mergeOne(c, "handlers.FeedHandler.MergeAwards", h.runner.MergeAwards)
}

// MergeOrganizations runs one organization projection pass
// POST /api/v1/feed/organizations
func (h *FeedHandler) MergeOrganizations(c echo.Context) error {
	return h.mergeOne(c, "handlers.FeedHandler.MergeOrganizations", h.runner.MergeOrganizations)
}

func (h *FeedHandler) mergeOne(c echo.Context, spanName string, merge func(ctx context.Context) (*models.MergeOutcome, error)) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), spanName)
	defer span.End()

	outcome, err := merge(ctx)
	if err != nil {
		return mapLockError(err)
	}
	return SuccessResponse(c, outcome)
}

func mapLockError(err error) error {
	if errors.Is(err, redis.ErrLockNotAcquired) {
		return Conflict("another feed run is in progress")
	}
	return err
}
