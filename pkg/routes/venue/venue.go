package venue

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	eventrepo "github.com/biximilien/Radiant-Sands/internal/repositories/event"
	"github.com/biximilien/Radiant-Sands/internal/repositories/tagging"
	"github.com/biximilien/Radiant-Sands/internal/repositories/venue"
	"github.com/biximilien/Radiant-Sands/pkg/events"
	"github.com/biximilien/Radiant-Sands/pkg/models"
	"github.com/biximilien/Radiant-Sands/pkg/search"
	"github.com/biximilien/Radiant-Sands/pkg/tracing"
)

var validate = validator.New()

// Register registers venue routes
func Register(g *echo.Group) {
	g.GET("", List)
	g.POST("", Create)
	g.GET("/search", Search)
	g.GET("/:id", Get)
	g.PUT("/:id", Update)
	g.DELETE("/:id", Delete)
	g.GET("/:id/events", ListEvents)
	g.GET("/:id/tags", ListTags)
	g.POST("/:id/tags", AddTag)
	g.DELETE("/:id/tags/:tag", RemoveTag)
}

// List returns master venues
func List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "venue_handler.List")
	defer span.End()

	includeClosed := c.QueryParam("include_closed") == "true"
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	ctx, repo, err := ectoinject.GetContext[*venue.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	venues, err := repo.List(ctx, includeClosed, limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.VenueListResponse{
		Items:      venues,
		TotalCount: len(venues),
	})
}

// Create creates a new venue
func Create(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "venue_handler.Create")
	defer span.End()

	var req models.CreateVenueRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	ctx, repo, err := ectoinject.GetContext[*venue.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	created, err := repo.Create(ctx, &models.Venue{
		Name:          req.Name,
		Description:   req.Description,
		Address:       req.Address,
		StreetAddress: req.StreetAddress,
		Locality:      req.Locality,
		Region:        req.Region,
		PostalCode:    req.PostalCode,
		Country:       req.Country,
		Email:         req.Email,
		Telephone:     req.Telephone,
		URL:           req.URL,
		Latitude:      req.Latitude,
		Longitude:     req.Longitude,
		WiFi:          req.WiFi,
		Closed:        req.Closed,
		AccessNotes:   req.AccessNotes,
	})
	if err != nil {
		return err
	}

	if ctx, emitter, err := ectoinject.GetContext[*events.Emitter](ctx); err == nil {
		emitter.EmitVenueCreated(ctx, created)
	}

	return c.JSON(http.StatusCreated, models.VenueResponse{Venue: *created})
}

// Get returns a single venue. Requests for a squashed duplicate resolve to
// its master so old permalinks keep working.
func Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "venue_handler.Get")
	defer span.End()

	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*venue.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	result, redirected, err := repo.GetMaster(ctx, id)
	if err != nil {
		return err
	}

	resp := models.VenueResponse{Venue: *result}
	if redirected {
		resp.RedirectedFrom = id
	}
	return c.JSON(http.StatusOK, resp)
}

// Search returns non-duplicate venues matching the query
func Search(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "venue_handler.Search")
	defer span.End()

	ctx, facade, err := ectoinject.GetContext[*search.Facade](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get search facade")
	}

	venues, err := facade.SearchVenues(ctx, c.QueryParam("q"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.VenueListResponse{
		Items:      venues,
		TotalCount: len(venues),
	})
}

// Update applies a partial update to a venue
func Update(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "venue_handler.Update")
	defer span.End()

	id := c.Param("id")

	var req models.UpdateVenueRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	ctx, repo, err := ectoinject.GetContext[*venue.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	updated, err := repo.Update(ctx, id, &req)
	if err != nil {
		return err
	}

	if ctx, emitter, err := ectoinject.GetContext[*events.Emitter](ctx); err == nil {
		emitter.EmitVenueUpdated(ctx, updated)
	}

	return c.JSON(http.StatusOK, models.VenueResponse{Venue: *updated})
}

// Delete soft deletes a venue without events
func Delete(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "venue_handler.Delete")
	defer span.End()

	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*venue.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	if err := repo.SoftDelete(ctx, id); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

// ListEvents returns the master events held at a venue
func ListEvents(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "venue_handler.ListEvents")
	defer span.End()

	id := c.Param("id")
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	ctx, venues, err := ectoinject.GetContext[*venue.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	// resolve duplicates so a squashed venue's URL shows the master's events
	master, _, err := venues.GetMaster(ctx, id)
	if err != nil {
		return err
	}

	ctx, eventsRepo, err := ectoinject.GetContext[*eventrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	items, err := eventsRepo.ListByVenue(ctx, master.ID, limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.EventListResponse{
		Items:      items,
		TotalCount: len(items),
	})
}

// ListTags returns the tags attached to a venue
func ListTags(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "venue_handler.ListTags")
	defer span.End()

	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*tagging.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	taggings, err := repo.ListForRecord(ctx, models.RecordKindVenue, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, taggings)
}

// AddTag attaches a tag to a venue
func AddTag(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "venue_handler.AddTag")
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

	created, err := repo.Create(ctx, models.RecordKindVenue, id, req.Tag)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, created)
}

// RemoveTag detaches a tag from a venue
func RemoveTag(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "venue_handler.RemoveTag")
	defer span.End()

	id := c.Param("id")
	tag := c.Param("tag")

	ctx, repo, err := ectoinject.GetContext[*tagging.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	if err := repo.Delete(ctx, models.RecordKindVenue, id, tag); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}
