// Package search fronts record search with duplicate filtering: squashed
// records never appear in a result set.
package search

import (
	"context"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/biximilien/Radiant-Sands/pkg/models"
	"github.com/biximilien/Radiant-Sands/pkg/tracing"
)

// VenueSearcher finds venues matching a free-text query
type VenueSearcher interface {
	SearchByName(ctx context.Context, q string, limit int) ([]models.Venue, error)
}

// EventSearcher finds events matching a free-text query
type EventSearcher interface {
	SearchByTitle(ctx context.Context, q string, limit int) ([]models.Event, error)
}

// Facade runs searches against the underlying engines and strips squashed
// records from every result set
type Facade struct {
	logger ectologger.Logger
	venues VenueSearcher
	events EventSearcher
	limit  int
}

// NewFacade creates a search facade with the given default result limit
func NewFacade(logger ectologger.Logger, venues VenueSearcher, events EventSearcher, limit int) *Facade {
	if limit <= 0 {
		limit = 50
	}
	return &Facade{
		logger: logger,
		venues: venues,
		events: events,
		limit:  limit,
	}
}

// SearchEvents finds non-duplicate events matching the query
func (f *Facade) SearchEvents(ctx context.Context, q string) ([]models.Event, error) {
	ctx, span := tracing.StartSpan(ctx, "search.Facade.SearchEvents")
	defer span.End()

	q = strings.TrimSpace(q)
	if q == "" {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "search query must not be blank")
	}

	// over-fetch so filtering duplicates still fills the page
	raw, err := f.events.SearchByTitle(ctx, q, f.limit*2)
	if err != nil {
		return nil, err
	}

	results := make([]models.Event, 0, len(raw))
	for _, e := range raw {
		if e.IsDuplicate() {
			continue
		}
		results = append(results, e)
		if len(results) == f.limit {
			break
		}
	}

	f.logger.WithContext(ctx).WithFields(map[string]any{
		"query":   q,
		"matched": len(raw),
		"results": len(results),
	}).Debug("Event search complete")

	return results, nil
}

// SearchVenues finds non-duplicate venues matching the query
func (f *Facade) SearchVenues(ctx context.Context, q string) ([]models.Venue, error) {
	ctx, span := tracing.StartSpan(ctx, "search.Facade.SearchVenues")
	defer span.End()

	q = strings.TrimSpace(q)
	if q == "" {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "search query must not be blank")
	}

	raw, err := f.venues.SearchByName(ctx, q, f.limit*2)
	if err != nil {
		return nil, err
	}

	results := make([]models.Venue, 0, len(raw))
	for _, v := range raw {
		if v.IsDuplicate() {
			continue
		}
		results = append(results, v)
		if len(results) == f.limit {
			break
		}
	}

	return results, nil
}
