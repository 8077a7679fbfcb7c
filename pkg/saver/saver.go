// Package saver orchestrates event persistence: validation, venue
// resolution, and best-effort geocoding of newly created venues.
package saver

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"

	"github.com/biximilien/Radiant-Sands/pkg/database"
	"github.com/biximilien/Radiant-Sands/pkg/models"
	"github.com/biximilien/Radiant-Sands/pkg/tracing"
)

// Actor identifies who is performing a save
type Actor struct {
	UserID         string
	OrganizationID string
	Admin          bool
}

// VenueStore is the venue persistence surface the saver needs
type VenueStore interface {
	Get(ctx context.Context, id string) (*models.Venue, error)
	GetMaster(ctx context.Context, id string) (*models.Venue, bool, error)
	GetByExactName(ctx context.Context, name string) (*models.Venue, error)
	Create(ctx context.Context, venue *models.Venue) (*models.Venue, error)
	Update(ctx context.Context, id string, req *models.UpdateVenueRequest) (*models.Venue, error)
}

// EventStore is the event persistence surface the saver needs
type EventStore interface {
	Get(ctx context.Context, id string) (*models.Event, error)
	GetMaster(ctx context.Context, id string) (*models.Event, bool, error)
	Create(ctx context.Context, event *models.Event) (*models.Event, error)
	Update(ctx context.Context, event *models.Event) (*models.Event, error)
}

// Emitter publishes lifecycle notifications after a save
type Emitter interface {
	EmitEventSaved(ctx context.Context, event *models.Event, isNew bool)
	EmitVenueCreated(ctx context.Context, venue *models.Venue)
}

// SaveResult is the outcome of a save. NewVenue reports whether resolving
// the request's venue name created a venue as a side effect.
type SaveResult struct {
	Event    *models.Event
	NewVenue bool
}

// Saver validates and persists events, resolving their venue association.
// Venue resolution and the event write share one transaction, so a failed
// event write never strands a freshly created venue.
type Saver struct {
	logger   ectologger.Logger
	db       database.DB
	venues   VenueStore
	events   EventStore
	geocoder Geocoder
	emitter  Emitter
	validate *validator.Validate
}

// NewSaver creates a Saver
func NewSaver(logger ectologger.Logger, db database.DB, venues VenueStore, events EventStore, geocoder Geocoder, emitter Emitter) *Saver {
	if geocoder == nil {
		geocoder = NoopGeocoder{}
	}
	return &Saver{
		logger:   logger,
		db:       db,
		venues:   venues,
		events:   events,
		geocoder: geocoder,
		emitter:  emitter,
		validate: validator.New(),
	}
}

// SaveNew validates the request, resolves or creates its venue, and persists
// a new event
func (s *Saver) SaveNew(ctx context.Context, actor Actor, req *models.CreateEventRequest) (*SaveResult, error) {
	ctx, span := tracing.StartSpan(ctx, "saver.Saver.SaveNew")
	defer span.End()

	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	ctxTx, tx, err := s.db.GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctxTx)

	venueID, newVenue, err := s.resolveVenue(ctxTx, req)
	if err != nil {
		return nil, err
	}

	event := &models.Event{
		Title:        strings.TrimSpace(req.Title),
		Description:  req.Description,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		URL:          req.URL,
		VenueID:      venueID,
		VenueDetails: req.VenueDetails,
	}
	if actor.OrganizationID != "" {
		event.OrganizationID = &actor.OrganizationID
	}

	created, err := s.events.Create(ctxTx, event)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctxTx); err != nil {
		return nil, err
	}

	s.afterVenueCreated(ctx, newVenue)
	if s.emitter != nil {
		s.emitter.EmitEventSaved(ctx, created, true)
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"event_id":  created.ID,
		"user_id":   actor.UserID,
		"new_venue": newVenue != nil,
	}).Info("Saved new event")

	return &SaveResult{Event: created, NewVenue: newVenue != nil}, nil
}

// SaveExisting validates the request and applies it to an existing event.
// A duplicate event resolves to its master first, so edits always land on
// the surviving record.
func (s *Saver) SaveExisting(ctx context.Context, actor Actor, id string, req *models.CreateEventRequest) (*SaveResult, error) {
	ctx, span := tracing.StartSpan(ctx, "saver.Saver.SaveExisting")
	defer span.End()

	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	ctxTx, tx, err := s.db.GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctxTx)

	event, _, err := s.events.GetMaster(ctxTx, id)
	if err != nil {
		return nil, err
	}
	if event.Locked && !actor.Admin {
		return nil, httperror.NewHTTPError(http.StatusUnprocessableEntity, "event is locked and cannot be modified")
	}

	venueID, newVenue, err := s.resolveVenue(ctxTx, req)
	if err != nil {
		return nil, err
	}

	event.Title = strings.TrimSpace(req.Title)
	event.Description = req.Description
	event.StartTime = req.StartTime
	event.EndTime = req.EndTime
	event.URL = req.URL
	event.VenueID = venueID
	event.VenueDetails = req.VenueDetails

	updated, err := s.events.Update(ctxTx, event)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctxTx); err != nil {
		return nil, err
	}

	s.afterVenueCreated(ctx, newVenue)
	if s.emitter != nil {
		s.emitter.EmitEventSaved(ctx, updated, false)
	}

	return &SaveResult{Event: updated, NewVenue: newVenue != nil}, nil
}

// resolveVenue turns the request's venue association into a venue id.
// An explicit id must exist and resolves through any duplicate pointer.
// A venue name is matched against master venues by exact name; a miss
// creates a fresh venue, returned so the caller can finish it up once the
// surrounding transaction commits.
func (s *Saver) resolveVenue(ctx context.Context, req *models.CreateEventRequest) (*string, *models.Venue, error) {
	ctx, span := tracing.StartSpan(ctx, "saver.Saver.resolveVenue")
	defer span.End()

	if req.VenueID != nil && *req.VenueID != "" {
		master, _, err := s.venues.GetMaster(ctx, *req.VenueID)
		if err != nil {
			return nil, nil, err
		}
		return &master.ID, nil, nil
	}

	if req.VenueName == nil || strings.TrimSpace(*req.VenueName) == "" {
		return nil, nil, nil
	}
	name := strings.TrimSpace(*req.VenueName)

	existing, err := s.venues.GetByExactName(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	if existing != nil {
		return &existing.ID, nil, nil
	}

	created, err := s.venues.Create(ctx, &models.Venue{Name: name})
	if err != nil {
		return nil, nil, err
	}

	return &created.ID, created, nil
}

// afterVenueCreated runs the post-commit side effects of a venue created
// during a save: best-effort geocoding and the created notification
func (s *Saver) afterVenueCreated(ctx context.Context, venue *models.Venue) {
	if venue == nil {
		return
	}

	s.geocodeVenue(ctx, venue)

	if s.emitter != nil {
		s.emitter.EmitVenueCreated(ctx, venue)
	}
}

// geocodeVenue fills in coordinates for a venue that has an address but no
// location. Failures are logged and ignored; a save never fails because the
// geocoder is down.
func (s *Saver) geocodeVenue(ctx context.Context, venue *models.Venue) {
	if _, _, ok := venue.Location(); ok {
		return
	}
	address := venue.GeocodeAddress()
	if address == "" {
		return
	}

	lat, lng, err := s.geocoder.Geocode(ctx, address)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"venue_id": venue.ID,
		}).Warn("Geocoding failed")
		return
	}

	if _, err := s.venues.Update(ctx, venue.ID, &models.UpdateVenueRequest{
		Latitude:  &lat,
		Longitude: &lng,
	}); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"venue_id": venue.ID,
		}).Warn("Failed to store geocoded location")
	}
}

// validateRequest maps the first validation failure to a 422 with a
// field-level message
func (s *Saver) validateRequest(req *models.CreateEventRequest) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}

	if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
		first := errs[0]
		return httperror.NewHTTPError(http.StatusUnprocessableEntity,
			fmt.Sprintf("%s failed validation on '%s'", strings.ToLower(first.Field()), first.Tag()))
	}

	return httperror.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
}
