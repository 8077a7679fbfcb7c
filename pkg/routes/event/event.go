package event

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/biximilien/Radiant-Sands/config"
	"github.com/biximilien/Radiant-Sands/internal/repositories/event"
	"github.com/biximilien/Radiant-Sands/internal/repositories/tagging"
	"github.com/biximilien/Radiant-Sands/pkg/appcontext"
	"github.com/biximilien/Radiant-Sands/pkg/events"
	"github.com/biximilien/Radiant-Sands/pkg/models"
	"github.com/biximilien/Radiant-Sands/pkg/saver"
	"github.com/biximilien/Radiant-Sands/pkg/search"
	"github.com/biximilien/Radiant-Sands/pkg/tracing"
)

var validate = validator.New()

const defaultWindowMonths = 3

// Register registers event routes
func Register(g *echo.Group) {
	g.GET("", List)
	g.POST("", Create)
	g.GET("/search", Search)
	g.GET("/:id", Get)
	g.PUT("/:id", Update)
	g.DELETE("/:id", Delete)
	g.POST("/:id/clone", CloneEvent)
	g.GET("/:id/tags", ListTags)
	g.POST("/:id/tags", AddTag)
	g.DELETE("/:id/tags/:tag", RemoveTag)
}

// List returns master events within a date range, defaulting to everything
// upcoming
func List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "event_handler.List")
	defer span.End()

	q := models.EventListQuery{Order: c.QueryParam("order")}
	if v := c.QueryParam("start_date"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return httperror.NewHTTPError(http.StatusBadRequest, "start_date must be YYYY-MM-DD")
		}
		q.StartDate = t
	} else {
		q.StartDate = time.Now().UTC().Truncate(24 * time.Hour)
	}
	if v := c.QueryParam("end_date"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return httperror.NewHTTPError(http.StatusBadRequest, "end_date must be YYYY-MM-DD")
		}
		// the end date is inclusive
		q.EndDate = t.AddDate(0, 0, 1)
	} else {
		months := defaultWindowMonths
		if cfgCtx, cfg, cfgErr := ectoinject.GetContext[*config.Config](ctx); cfgErr == nil {
			ctx = cfgCtx
			if cfg.EventWindowMonths > 0 {
				months = cfg.EventWindowMonths
			}
		}
		q.EndDate = q.StartDate.AddDate(0, months, 0)
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	ctx, repo, err := ectoinject.GetContext[*event.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	items, err := repo.List(ctx, q, limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.EventListResponse{
		Items:      items,
		TotalCount: len(items),
	})
}

// Create saves a new event through the saver
func Create(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "event_handler.Create")
	defer span.End()

	var req models.CreateEventRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx, s, err := ectoinject.GetContext[*saver.Saver](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get saver")
	}

	result, err := s.SaveNew(ctx, actorFrom(ctx), &req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, models.EventResponse{Event: *result.Event, HasNewVenue: result.NewVenue})
}

// Get returns a single event. Requests for a squashed duplicate resolve to
// its master so old permalinks keep working.
func Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "event_handler.Get")
	defer span.End()

	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*event.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	result, redirected, err := repo.GetMaster(ctx, id)
	if err != nil {
		return err
	}

	resp := models.EventResponse{Event: *result}
	if redirected {
		resp.RedirectedFrom = id
	}
	return c.JSON(http.StatusOK, resp)
}

// Search returns non-duplicate events matching the query
func Search(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "event_handler.Search")
	defer span.End()

	ctx, facade, err := ectoinject.GetContext[*search.Facade](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get search facade")
	}

	items, err := facade.SearchEvents(ctx, c.QueryParam("q"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.EventListResponse{
		Items:      items,
		TotalCount: len(items),
	})
}

// Update applies a full update to an event through the saver
func Update(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "event_handler.Update")
	defer span.End()

	id := c.Param("id")

	var req models.CreateEventRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx, s, err := ectoinject.GetContext[*saver.Saver](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get saver")
	}

	result, err := s.SaveExisting(ctx, actorFrom(ctx), id, &req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.EventResponse{Event: *result.Event, HasNewVenue: result.NewVenue})
}

// Delete soft deletes an event
func Delete(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "event_handler.Delete")
	defer span.End()

	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*event.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	if err := repo.SoftDelete(ctx, id); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

// CloneEvent copies an event's descriptive attributes into a fresh event.
// The clone is persisted immediately and returned for further editing.
func CloneEvent(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "event_handler.CloneEvent")
	defer span.End()

	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*event.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	source, _, err := repo.GetMaster(ctx, id)
	if err != nil {
		return err
	}

	clone := saver.Clone(source)
	actor := actorFrom(ctx)
	if actor.OrganizationID != "" {
		clone.OrganizationID = &actor.OrganizationID
	}

	created, err := repo.Create(ctx, clone)
	if err != nil {
		return err
	}

	if ctx, emitter, err := ectoinject.GetContext[*events.Emitter](ctx); err == nil {
		emitter.EmitEventCloned(ctx, created, source.ID)
	}

	return c.JSON(http.StatusCreated, models.EventResponse{Event: *created})
}

// ListTags returns the tags attached to an event
func ListTags(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "event_handler.ListTags")
	defer span.End()

	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*tagging.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	taggings, err := repo.ListForRecord(ctx, models.RecordKindEvent, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, taggings)
}

// AddTag attaches a tag to an event
func AddTag(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "event_handler.AddTag")
	defer span.End()

	id := c.Param("id")

	var req models.CreateTaggingRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	ctx, repo, err := ectoinject.GetContext[*tagging.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	created, err := repo.Create(ctx, models.RecordKindEvent, id, req.Tag)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, created)
}

// RemoveTag detaches a tag from an event
func RemoveTag(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "event_handler.RemoveTag")
	defer span.End()

	id := c.Param("id")
	tag := c.Param("tag")

	ctx, repo, err := ectoinject.GetContext[*tagging.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	if err := repo.Delete(ctx, models.RecordKindEvent, id, tag); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

func actorFrom(ctx context.Context) saver.Actor {
	return saver.Actor{
		UserID:         appcontext.GetUserID(ctx),
		OrganizationID: appcontext.GetOrganizationID(ctx),
		Admin:          appcontext.GetAdmin(ctx),
	}
}
