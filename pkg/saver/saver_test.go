package saver

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/biximilien/Radiant-Sands/pkg/database"
	"github.com/biximilien/Radiant-Sands/pkg/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTx struct {
	database.Tx
	committed  bool
	rolledBack bool
}

func (t *fakeTx) IsOpen() bool { return !t.committed && !t.rolledBack }

func (t *fakeTx) Commit(_ context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(_ context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

type fakeDB struct {
	database.DB
	tx *fakeTx
}

func (f *fakeDB) GetTx(ctx context.Context, _ *sql.TxOptions) (context.Context, database.Tx, error) {
	f.tx = &fakeTx{}
	return ctx, f.tx, nil
}

type fakeVenueStore struct {
	byID    map[string]*models.Venue
	byName  map[string]*models.Venue
	created []*models.Venue
	updates map[string]*models.UpdateVenueRequest
	nextID  int
	getErr  error
}

func newFakeVenueStore() *fakeVenueStore {
	return &fakeVenueStore{
		byID:    map[string]*models.Venue{},
		byName:  map[string]*models.Venue{},
		updates: map[string]*models.UpdateVenueRequest{},
	}
}

func (f *fakeVenueStore) add(v *models.Venue) {
	f.byID[v.ID] = v
	f.byName[v.Name] = v
}

func (f *fakeVenueStore) Get(_ context.Context, id string) (*models.Venue, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	v, ok := f.byID[id]
	if !ok {
		return nil, httperror.NewHTTPError(404, "venue not found")
	}
	return v, nil
}

func (f *fakeVenueStore) GetMaster(ctx context.Context, id string) (*models.Venue, bool, error) {
	v, err := f.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if v.IsDuplicate() {
		master, err := f.Get(ctx, *v.DuplicateOfID)
		return master, true, err
	}
	return v, false, nil
}

func (f *fakeVenueStore) GetByExactName(_ context.Context, name string) (*models.Venue, error) {
	return f.byName[name], nil
}

func (f *fakeVenueStore) Create(_ context.Context, venue *models.Venue) (*models.Venue, error) {
	f.nextID++
	venue.ID = "v" + string(rune('0'+f.nextID))
	f.add(venue)
	f.created = append(f.created, venue)
	return venue, nil
}

func (f *fakeVenueStore) Update(_ context.Context, id string, req *models.UpdateVenueRequest) (*models.Venue, error) {
	f.updates[id] = req
	return f.byID[id], nil
}

type fakeEventStore struct {
	byID      map[string]*models.Event
	created   []*models.Event
	updated   []*models.Event
	createErr error
}

func newFakeEventStore() *fakeEventStore {
	return &fakeEventStore{byID: map[string]*models.Event{}}
}

func (f *fakeEventStore) Get(_ context.Context, id string) (*models.Event, error) {
	e, ok := f.byID[id]
	if !ok {
		return nil, httperror.NewHTTPError(404, "event not found")
	}
	return e, nil
}

func (f *fakeEventStore) GetMaster(ctx context.Context, id string) (*models.Event, bool, error) {
	e, err := f.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if e.IsDuplicate() {
		master, err := f.Get(ctx, *e.DuplicateOfID)
		return master, true, err
	}
	return e, false, nil
}

func (f *fakeEventStore) Create(_ context.Context, event *models.Event) (*models.Event, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	event.ID = "e1"
	f.byID[event.ID] = event
	f.created = append(f.created, event)
	return event, nil
}

func (f *fakeEventStore) Update(_ context.Context, event *models.Event) (*models.Event, error) {
	f.byID[event.ID] = event
	f.updated = append(f.updated, event)
	return event, nil
}

type fakeGeocoder struct {
	lat, lng float64
	err      error
	calls    []string
}

func (g *fakeGeocoder) Geocode(_ context.Context, address string) (float64, float64, error) {
	g.calls = append(g.calls, address)
	return g.lat, g.lng, g.err
}

type recordingEmitter struct {
	savedEvents   []*models.Event
	createdVenues []*models.Venue
}

func (e *recordingEmitter) EmitEventSaved(_ context.Context, event *models.Event, _ bool) {
	e.savedEvents = append(e.savedEvents, event)
}

func (e *recordingEmitter) EmitVenueCreated(_ context.Context, venue *models.Venue) {
	e.createdVenues = append(e.createdVenues, venue)
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func strPtr(s string) *string { return &s }

func validRequest() *models.CreateEventRequest {
	return &models.CreateEventRequest{
		Title:     "Tech Meetup",
		StartTime: time.Date(2026, 9, 10, 18, 0, 0, 0, time.UTC),
	}
}

func TestSaveNew(t *testing.T) {
	venues := newFakeVenueStore()
	events := newFakeEventStore()
	emitter := &recordingEmitter{}
	s := NewSaver(testLogger(), &fakeDB{},venues, events, nil, emitter)

	actor := Actor{UserID: "u1", OrganizationID: "org1"}
	res, err := s.SaveNew(context.Background(), actor, validRequest())
	require.NoError(t, err)

	saved := res.Event
	assert.Equal(t, "Tech Meetup", saved.Title)
	require.NotNil(t, saved.OrganizationID)
	assert.Equal(t, "org1", *saved.OrganizationID)
	assert.Nil(t, saved.VenueID)
	assert.False(t, res.NewVenue)
	assert.Len(t, emitter.savedEvents, 1)
}

func TestSaveNewValidationFailure(t *testing.T) {
	s := NewSaver(testLogger(), &fakeDB{},newFakeVenueStore(), newFakeEventStore(), nil, nil)

	req := validRequest()
	req.Title = ""

	_, err := s.SaveNew(context.Background(), Actor{}, req)
	require.Error(t, err)
	assert.Equal(t, 422, httperror.GetStatusCode(err))
	assert.Contains(t, err.Error(), "title")
}

func TestSaveNewWithExistingVenueID(t *testing.T) {
	venues := newFakeVenueStore()
	venues.add(&models.Venue{ID: "v9", Name: "Crystal Ballroom"})

	s := NewSaver(testLogger(), &fakeDB{},venues, newFakeEventStore(), nil, nil)

	req := validRequest()
	req.VenueID = strPtr("v9")

	res, err := s.SaveNew(context.Background(), Actor{}, req)
	require.NoError(t, err)
	require.NotNil(t, res.Event.VenueID)
	assert.Equal(t, "v9", *res.Event.VenueID)
	assert.False(t, res.NewVenue)
	assert.Empty(t, venues.created)
}

func TestSaveNewVenueIDResolvesDuplicate(t *testing.T) {
	venues := newFakeVenueStore()
	masterID := "v1"
	venues.add(&models.Venue{ID: "v1", Name: "Crystal Ballroom"})
	venues.add(&models.Venue{ID: "v2", Name: "crystal ballroom", DuplicateOfID: &masterID})

	s := NewSaver(testLogger(), &fakeDB{},venues, newFakeEventStore(), nil, nil)

	req := validRequest()
	req.VenueID = strPtr("v2")

	res, err := s.SaveNew(context.Background(), Actor{}, req)
	require.NoError(t, err)
	require.NotNil(t, res.Event.VenueID)
	assert.Equal(t, "v1", *res.Event.VenueID)
}

func TestSaveNewWithNewVenueName(t *testing.T) {
	venues := newFakeVenueStore()
	events := newFakeEventStore()
	emitter := &recordingEmitter{}
	s := NewSaver(testLogger(), &fakeDB{},venues, events, nil, emitter)

	req := validRequest()
	req.VenueName = strPtr("Brand New Spot")

	res, err := s.SaveNew(context.Background(), Actor{}, req)
	require.NoError(t, err)

	require.Len(t, venues.created, 1)
	assert.Equal(t, "Brand New Spot", venues.created[0].Name)
	require.NotNil(t, res.Event.VenueID)
	assert.Equal(t, venues.created[0].ID, *res.Event.VenueID)
	assert.True(t, res.NewVenue)
	assert.Len(t, emitter.createdVenues, 1)
}

func TestSaveNewWithKnownVenueName(t *testing.T) {
	venues := newFakeVenueStore()
	venues.add(&models.Venue{ID: "v9", Name: "Crystal Ballroom"})

	s := NewSaver(testLogger(), &fakeDB{},venues, newFakeEventStore(), nil, nil)

	req := validRequest()
	req.VenueName = strPtr("Crystal Ballroom")

	res, err := s.SaveNew(context.Background(), Actor{}, req)
	require.NoError(t, err)
	require.NotNil(t, res.Event.VenueID)
	assert.Equal(t, "v9", *res.Event.VenueID)
	assert.False(t, res.NewVenue)
	assert.Empty(t, venues.created)
}

func TestSaveNewGeocodesCreatedVenue(t *testing.T) {
	venues := newFakeVenueStore()
	geocoder := &fakeGeocoder{lat: 45.52, lng: -122.68}
	s := NewSaver(testLogger(), &fakeDB{},venues, newFakeEventStore(), geocoder, nil)

	req := validRequest()
	req.VenueName = strPtr("New Spot")

	// a venue created by name has no address, so geocoding is skipped
	_, err := s.SaveNew(context.Background(), Actor{}, req)
	require.NoError(t, err)
	assert.Empty(t, geocoder.calls)
}

func TestSaveNewGeocoderFailureDoesNotFailSave(t *testing.T) {
	venues := newFakeVenueStore()
	geocoder := &fakeGeocoder{err: errors.New("service down")}
	s := NewSaver(testLogger(), &fakeDB{},venues, newFakeEventStore(), geocoder, nil)

	req := validRequest()
	req.VenueName = strPtr("New Spot")

	_, err := s.SaveNew(context.Background(), Actor{}, req)
	require.NoError(t, err)
}

func TestSaveNewCommitsTransaction(t *testing.T) {
	db := &fakeDB{}
	s := NewSaver(testLogger(), db, newFakeVenueStore(), newFakeEventStore(), nil, nil)

	_, err := s.SaveNew(context.Background(), Actor{}, validRequest())
	require.NoError(t, err)
	require.NotNil(t, db.tx)
	assert.True(t, db.tx.committed)
}

func TestSaveNewEventFailureRollsBackVenue(t *testing.T) {
	db := &fakeDB{}
	venues := newFakeVenueStore()
	events := newFakeEventStore()
	events.createErr = errors.New("insert failed")
	emitter := &recordingEmitter{}
	s := NewSaver(testLogger(), db, venues, events, nil, emitter)

	req := validRequest()
	req.VenueName = strPtr("Brand New Spot")

	_, err := s.SaveNew(context.Background(), Actor{}, req)
	require.Error(t, err)

	// the venue write shares the event's transaction, so nothing survives
	// the failed insert and no notifications go out
	require.NotNil(t, db.tx)
	assert.True(t, db.tx.rolledBack)
	assert.False(t, db.tx.committed)
	assert.Empty(t, emitter.createdVenues)
	assert.Empty(t, emitter.savedEvents)
}

func TestSaveExisting(t *testing.T) {
	events := newFakeEventStore()
	events.byID["e1"] = &models.Event{ID: "e1", Title: "Old Title", StartTime: time.Now()}

	s := NewSaver(testLogger(), &fakeDB{},newFakeVenueStore(), events, nil, nil)

	req := validRequest()
	req.Title = "New Title"

	res, err := s.SaveExisting(context.Background(), Actor{}, "e1", req)
	require.NoError(t, err)
	assert.Equal(t, "New Title", res.Event.Title)
	assert.False(t, res.NewVenue)
	assert.Len(t, events.updated, 1)
}

func TestSaveExistingResolvesDuplicateToMaster(t *testing.T) {
	events := newFakeEventStore()
	masterID := "e1"
	events.byID["e1"] = &models.Event{ID: "e1", Title: "Master", StartTime: time.Now()}
	events.byID["e2"] = &models.Event{ID: "e2", Title: "Dup", StartTime: time.Now(), DuplicateOfID: &masterID}

	s := NewSaver(testLogger(), &fakeDB{},newFakeVenueStore(), events, nil, nil)

	res, err := s.SaveExisting(context.Background(), Actor{}, "e2", validRequest())
	require.NoError(t, err)
	assert.Equal(t, "e1", res.Event.ID)
}

func TestSaveExistingLocked(t *testing.T) {
	events := newFakeEventStore()
	events.byID["e1"] = &models.Event{ID: "e1", Title: "Locked", StartTime: time.Now(), Locked: true}

	s := NewSaver(testLogger(), &fakeDB{},newFakeVenueStore(), events, nil, nil)

	_, err := s.SaveExisting(context.Background(), Actor{}, "e1", validRequest())
	require.Error(t, err)
	assert.Equal(t, 422, httperror.GetStatusCode(err))

	// admins can edit locked events
	_, err = s.SaveExisting(context.Background(), Actor{Admin: true}, "e1", validRequest())
	assert.NoError(t, err)
}

func TestClone(t *testing.T) {
	endTime := time.Date(2026, 9, 10, 22, 0, 0, 0, time.UTC)
	dupOf := "other"
	source := &models.Event{
		ID:            "e1",
		Title:         "Tech Meetup",
		Description:   strPtr("monthly"),
		StartTime:     time.Date(2026, 9, 10, 18, 0, 0, 0, time.UTC),
		EndTime:       &endTime,
		URL:           strPtr("https://example.com"),
		VenueID:       strPtr("v1"),
		VenueDetails:  strPtr("back room"),
		DuplicateOfID: &dupOf,
		Locked:        true,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}

	clone := Clone(source)

	assert.Empty(t, clone.ID)
	assert.Equal(t, source.Title, clone.Title)
	assert.Equal(t, *source.Description, *clone.Description)
	assert.Equal(t, source.StartTime, clone.StartTime)
	assert.Equal(t, *source.EndTime, *clone.EndTime)
	assert.Equal(t, *source.VenueID, *clone.VenueID)
	assert.Nil(t, clone.DuplicateOfID)
	assert.False(t, clone.Locked)
	assert.True(t, clone.CreatedAt.IsZero())

	// deep copy: mutating the clone's pointers leaves the source untouched
	*clone.Description = "changed"
	assert.Equal(t, "monthly", *source.Description)
}
