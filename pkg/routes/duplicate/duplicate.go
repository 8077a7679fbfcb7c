package duplicate

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/biximilien/Radiant-Sands/config"
	"github.com/biximilien/Radiant-Sands/pkg/grouping"
	"github.com/biximilien/Radiant-Sands/pkg/models"
	"github.com/biximilien/Radiant-Sands/pkg/squash"
	"github.com/biximilien/Radiant-Sands/pkg/tracing"
)

var validate = validator.New()

const defaultCandidateLimit = 500

// Register registers duplicate detection and consolidation routes
func Register(g *echo.Group) {
	g.GET("/:kind", FindGroups)
	g.GET("/:kind/strategies", ListStrategies)
	g.POST("/:kind/squash", Squash)
}

// FindGroups runs one grouping pass over master records of the given kind
// and returns the candidate duplicate groups. Nothing is persisted; each
// request recomputes the groups from current data.
func FindGroups(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "duplicate_handler.FindGroups")
	defer span.End()

	kind, err := models.ParseRecordKind(c.Param("kind"))
	if err != nil {
		return err
	}

	strategy, err := grouping.ParseStrategy(kind, c.QueryParam("type"))
	if err != nil {
		return err
	}

	limit := defaultCandidateLimit
	if cfgCtx, cfg, cfgErr := ectoinject.GetContext[*config.Config](ctx); cfgErr == nil {
		ctx = cfgCtx
		if cfg.DuplicateCandidateLimit > 0 {
			limit = cfg.DuplicateCandidateLimit
		}
	}
	if v := c.QueryParam("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 1 {
			return httperror.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
	}

	ctx, grouper, err := ectoinject.GetContext[*grouping.Grouper](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get grouper")
	}

	result, err := grouper.FindGroups(ctx, kind, strategy, limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// ListStrategies returns the grouping strategies available for a record kind
func ListStrategies(c echo.Context) error {
	_, span := tracing.StartSpan(c.Request().Context(), "duplicate_handler.ListStrategies")
	defer span.End()

	kind, err := models.ParseRecordKind(c.Param("kind"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"kind":       kind,
		"strategies": grouping.StrategiesFor(kind),
	})
}

// Squash consolidates a batch of duplicates into a master record
func Squash(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "duplicate_handler.Squash")
	defer span.End()

	kind, err := models.ParseRecordKind(c.Param("kind"))
	if err != nil {
		return err
	}

	var req models.SquashRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	ctx, engine, err := ectoinject.GetContext[*squash.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get squash engine")
	}

	result, err := engine.Squash(ctx, kind, req.MasterID, req.DuplicateIDs)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}
