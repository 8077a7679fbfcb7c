package search

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/biximilien/Radiant-Sands/pkg/models"
	searchpkg "github.com/biximilien/Radiant-Sands/pkg/search"
	"github.com/biximilien/Radiant-Sands/pkg/tracing"
)

// SearchResponse bundles matches across both record kinds
type SearchResponse struct {
	Query  string         `json:"query"`
	Events []models.Event `json:"events"`
	Venues []models.Venue `json:"venues"`
}

// Register registers the combined search route
func Register(g *echo.Group) {
	g.GET("", Search)
}

// Search finds non-duplicate venues and events matching the query
func Search(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "search_handler.Search")
	defer span.End()

	q := c.QueryParam("q")

	ctx, facade, err := ectoinject.GetContext[*searchpkg.Facade](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get search facade")
	}

	events, err := facade.SearchEvents(ctx, q)
	if err != nil {
		return err
	}

	venues, err := facade.SearchVenues(ctx, q)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, SearchResponse{
		Query:  q,
		Events: events,
		Venues: venues,
	})
}
