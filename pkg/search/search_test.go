package search

import (
	"context"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/biximilien/Radiant-Sands/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVenueSearcher struct {
	venues []models.Venue
	err    error
}

func (f *fakeVenueSearcher) SearchByName(_ context.Context, _ string, _ int) ([]models.Venue, error) {
	return f.venues, f.err
}

type fakeEventSearcher struct {
	events []models.Event
	err    error
}

func (f *fakeEventSearcher) SearchByTitle(_ context.Context, _ string, _ int) ([]models.Event, error) {
	return f.events, f.err
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestSearchEventsFiltersDuplicates(t *testing.T) {
	masterID := "e1"
	events := &fakeEventSearcher{events: []models.Event{
		{ID: "e1", Title: "Tech Meetup"},
		{ID: "e2", Title: "Tech Meetup (dup)", DuplicateOfID: &masterID},
		{ID: "e3", Title: "Tech Talk"},
	}}

	f := NewFacade(testLogger(), &fakeVenueSearcher{}, events, 50)

	results, err := f.SearchEvents(context.Background(), "tech")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "e1", results[0].ID)
	assert.Equal(t, "e3", results[1].ID)
}

func TestSearchEventsBlankQuery(t *testing.T) {
	f := NewFacade(testLogger(), &fakeVenueSearcher{}, &fakeEventSearcher{}, 50)

	_, err := f.SearchEvents(context.Background(), "   ")
	require.Error(t, err)
	assert.Equal(t, 400, httperror.GetStatusCode(err))
}

func TestSearchEventsRespectsLimit(t *testing.T) {
	events := &fakeEventSearcher{}
	for i := 0; i < 10; i++ {
		events.events = append(events.events, models.Event{ID: "e", Title: "Show"})
	}

	f := NewFacade(testLogger(), &fakeVenueSearcher{}, events, 3)

	results, err := f.SearchEvents(context.Background(), "show")
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestSearchVenuesFiltersDuplicates(t *testing.T) {
	masterID := "v1"
	venues := &fakeVenueSearcher{venues: []models.Venue{
		{ID: "v1", Name: "Crystal Ballroom"},
		{ID: "v2", Name: "crystal ballroom", DuplicateOfID: &masterID},
	}}

	f := NewFacade(testLogger(), venues, &fakeEventSearcher{}, 50)

	results, err := f.SearchVenues(context.Background(), "crystal")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "v1", results[0].ID)
}

func TestSearchVenuesError(t *testing.T) {
	venues := &fakeVenueSearcher{err: assert.AnError}
	f := NewFacade(testLogger(), venues, &fakeEventSearcher{}, 50)

	_, err := f.SearchVenues(context.Background(), "anything")
	assert.Error(t, err)
}
