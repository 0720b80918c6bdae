package handlers

import (
	"strconv"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/IrishJohn1973/tenderned-scraper/internal/repositories/master"
	"github.com/IrishJohn1973/tenderned-scraper/internal/repositories/organization"
	"github.com/IrishJohn1973/tenderned-scraper/pkg/models"
	"github.com/IrishJohn1973/tenderned-scraper/pkg/tracing"
)

// OrganizationHandler serves the extracted organization aggregates
type OrganizationHandler struct {
	orgRepo    *organization.Repository
	masterRepo *master.Repository
	logger     ectologger.Logger
}

// NewOrganizationHandler creates a new organization handler
func NewOrganizationHandler(orgRepo *organization.Repository, masterRepo *master.Repository, logger ectologger.Logger) *OrganizationHandler {
	return &OrganizationHandler{
		orgRepo:    orgRepo,
		masterRepo: masterRepo,
		logger:     logger,
	}
}

// List returns organization aggregates ordered by total contract value
// GET /api/v1/organizations
func (h *OrganizationHandler) List(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "handlers.OrganizationHandler.List")
	defer span.End()

	var needsEnrichment *bool
	if ne := c.QueryParam("needs_enrichment"); ne != "" {
		parsed, err := strconv.ParseBool(ne)
		if err != nil {
			return BadRequest("invalid needs_enrichment: must be a boolean")
		}
		needsEnrichment = &parsed
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))

	resp, err := h.orgRepo.List(ctx, needsEnrichment, page, pageSize)
	if err != nil {
		return err
	}
	return SuccessResponse(c, resp)
}

// Get returns one organization aggregate by identity key
// GET /api/v1/organizations/:identity_key
func (h *OrganizationHandler) Get(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "handlers.OrganizationHandler.Get")
	defer span.End()

	identityKey := c.Param("identity_key")
	if identityKey == "" {
		return BadRequest("missing identity_key")
	}

	org, err := h.orgRepo.Get(ctx, identityKey)
	if err != nil {
		return err
	}
	return SuccessResponse(c, models.NewOrganizationView(*org))
}

// GetMaster returns the master organization an aggregate resolved to
// GET /api/v1/organizations/:identity_key/master
func (h *OrganizationHandler) GetMaster(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "handlers.OrganizationHandler.GetMaster")
	defer span.End()

	identityKey := c.Param("identity_key")
	if identityKey == "" {
		return BadRequest("missing identity_key")
	}

	org, err := h.orgRepo.Get(ctx, identityKey)
	if err != nil {
		return err
	}
	if org.MasterOrgID == nil {
		return BadRequest("organization has not been merged to master yet")
	}

	masterOrg, err := h.masterRepo.GetOrganization(ctx, *org.MasterOrgID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, masterOrg)
}
