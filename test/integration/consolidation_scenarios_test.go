package integration

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biximilien/Radiant-Sands/pkg/database"
	"github.com/biximilien/Radiant-Sands/pkg/grouping"
	"github.com/biximilien/Radiant-Sands/pkg/models"
	"github.com/biximilien/Radiant-Sands/pkg/search"
	"github.com/biximilien/Radiant-Sands/pkg/squash"
)

type memTx struct {
	database.Tx
	committed  bool
	rolledBack bool
}

func (t *memTx) IsOpen() bool { return !t.committed && !t.rolledBack }

func (t *memTx) Commit(_ context.Context) error {
	t.committed = true
	return nil
}

func (t *memTx) Rollback(_ context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

type memDB struct {
	database.DB
	tx *memTx
}

func (db *memDB) GetTx(ctx context.Context, _ *sql.TxOptions) (context.Context, database.Tx, error) {
	db.tx = &memTx{}
	return ctx, db.tx, nil
}

// memStore is an in-memory venue or event world observing both the grouping
// and the consolidation surfaces, so a full detect-then-squash pass can run
// without Postgres.
type memStore struct {
	kind models.RecordKind
	db   *memDB

	records    map[string]*models.Record
	order      []string
	dependents map[string]int
}

func newMemStore(kind models.RecordKind) *memStore {
	return &memStore{
		kind:       kind,
		db:         &memDB{},
		records:    map[string]*models.Record{},
		dependents: map[string]int{},
	}
}

func (s *memStore) add(id, title string, fields map[string]string, dependents int) {
	if fields == nil {
		fields = map[string]string{}
	}
	s.records[id] = &models.Record{
		ID:     id,
		Kind:   s.kind,
		Title:  title,
		Fields: fields,
	}
	s.order = append(s.order, id)
	s.dependents[id] = dependents
}

func (s *memStore) Kind() models.RecordKind { return s.kind }
func (s *memStore) DB() database.DB         { return s.db }

func (s *memStore) ListMasterCandidates(_ context.Context, _ models.RecordKind, limit int) ([]models.GroupCandidate, error) {
	out := make([]models.GroupCandidate, 0, len(s.order))
	for _, id := range s.order {
		r := s.records[id]
		if r.IsDuplicate() {
			continue
		}
		out = append(out, models.GroupCandidate{
			ID:     r.ID,
			Kind:   r.Kind,
			Title:  r.Title,
			Fields: r.Fields,
		})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *memStore) LockRecords(_ context.Context, ids []string) ([]models.Record, error) {
	found := make([]models.Record, 0, len(ids))
	for _, id := range ids {
		if r, ok := s.records[id]; ok {
			found = append(found, *r)
		}
	}
	return found, nil
}

func (s *memStore) FindDuplicatePointers(_ context.Context, ids []string) (map[string][]string, error) {
	out := map[string][]string{}
	for _, id := range ids {
		for _, r := range s.records {
			if r.DuplicateOfID != nil && *r.DuplicateOfID == id {
				out[id] = append(out[id], r.ID)
			}
		}
	}
	return out, nil
}

func (s *memStore) RepointDependents(_ context.Context, masterID string, duplicateIDs []string) (map[string]int, error) {
	moved := 0
	for _, id := range duplicateIDs {
		moved += s.dependents[id]
		s.dependents[id] = 0
	}
	s.dependents[masterID] += moved
	return map[string]int{"taggings": moved}, nil
}

func (s *memStore) MarkDuplicates(_ context.Context, masterID string, duplicateIDs []string) error {
	for _, id := range duplicateIDs {
		master := masterID
		s.records[id].DuplicateOfID = &master
	}
	return nil
}

func (s *memStore) UpdateFields(_ context.Context, id string, fields map[string]string) error {
	for k, v := range fields {
		s.records[id].Fields[k] = v
	}
	return nil
}

// SearchByName implements the venue search surface over the same records
func (s *memStore) SearchByName(_ context.Context, q string, limit int) ([]models.Venue, error) {
	out := make([]models.Venue, 0, len(s.order))
	for _, id := range s.order {
		r := s.records[id]
		v := models.Venue{ID: r.ID, Name: r.Title, DuplicateOfID: r.DuplicateOfID}
		out = append(out, v)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *memStore) SearchByTitle(_ context.Context, q string, limit int) ([]models.Event, error) {
	out := make([]models.Event, 0, len(s.order))
	for _, id := range s.order {
		r := s.records[id]
		out = append(out, models.Event{ID: r.ID, Title: r.Title, DuplicateOfID: r.DuplicateOfID})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type captureEmitter struct {
	results []*models.SquashResult
}

func (e *captureEmitter) EmitRecordSquashed(_ context.Context, result *models.SquashResult) {
	e.results = append(e.results, result)
}

// TestVenueConsolidationLifecycle runs the full pipeline: a grouping pass
// detects duplicate venues, a squash collapses them, and they disappear
// from subsequent grouping passes and search results.
func TestVenueConsolidationLifecycle(t *testing.T) {
	ctx := context.Background()
	logger := testLogger()

	venues := newMemStore(models.RecordKindVenue)
	venues.add("v-master", "The Blue Door Cafe", map[string]string{"address": ""}, 2)
	venues.add("v-dup", "Blue Door Cafe", map[string]string{"address": "42 Harbor St"}, 3)
	venues.add("v-other", "Red Rooster Hall", nil, 0)

	events := newMemStore(models.RecordKindEvent)

	grouper := grouping.NewGrouper(venues, events, logger)
	emitter := &captureEmitter{}
	engine := squash.NewEngine(logger, emitter, venues, events)
	facade := search.NewFacade(logger, venues, events, 10)

	// detection pass: leading article is ignored, so both cafes share a key
	result, err := grouper.FindGroups(ctx, models.RecordKindVenue, grouping.StrategyTitle, 100)
	require.NoError(t, err)
	require.Len(t, result.Groups, 1)
	group := result.Groups[0]
	require.Len(t, group.Members, 2)
	assert.Equal(t, "v-master", group.Members[0].ID)
	assert.Equal(t, "v-dup", group.Members[1].ID)

	// consolidate the group into its first member
	squashResult, err := engine.Squash(ctx, models.RecordKindVenue, group.Members[0].ID, []string{group.Members[1].ID})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"taggings": 3}, squashResult.RepointedByType)
	assert.Equal(t, []string{"address"}, squashResult.BackfilledFields)
	assert.True(t, venues.db.tx.committed)

	// the duplicate now points at the master and its dependents moved over
	require.NotNil(t, venues.records["v-dup"].DuplicateOfID)
	assert.Equal(t, "v-master", *venues.records["v-dup"].DuplicateOfID)
	assert.Equal(t, 5, venues.dependents["v-master"])
	assert.Equal(t, "42 Harbor St", venues.records["v-master"].Fields["address"])

	// a second detection pass finds nothing left to merge
	result, err = grouper.FindGroups(ctx, models.RecordKindVenue, grouping.StrategyTitle, 100)
	require.NoError(t, err)
	assert.Empty(t, result.Groups)

	// search no longer surfaces the squashed record
	found, err := facade.SearchVenues(ctx, "blue door")
	require.NoError(t, err)
	ids := make([]string, len(found))
	for i, v := range found {
		ids[i] = v.ID
	}
	assert.Contains(t, ids, "v-master")
	assert.NotContains(t, ids, "v-dup")

	require.Len(t, emitter.results, 1)
	assert.Equal(t, "v-master", emitter.results[0].MasterID)
}

// TestEventConsolidationWithChainFlattening squashes a batch where one
// duplicate already points at another batch member.
func TestEventConsolidationWithChainFlattening(t *testing.T) {
	ctx := context.Background()
	logger := testLogger()

	start := time.Date(2026, 10, 3, 20, 0, 0, 0, time.UTC).Format(time.RFC3339)

	venues := newMemStore(models.RecordKindVenue)
	events := newMemStore(models.RecordKindEvent)
	events.add("e-master", "Harvest Festival", map[string]string{"start_time": start}, 0)
	events.add("e-dup1", "harvest festival", map[string]string{"start_time": start}, 1)
	events.add("e-dup2", "The Harvest Festival", map[string]string{"start_time": start}, 1)

	// e-dup2 was previously squashed into e-dup1
	prior := "e-dup1"
	events.records["e-dup2"].DuplicateOfID = &prior

	grouper := grouping.NewGrouper(venues, events, logger)
	emitter := &captureEmitter{}
	engine := squash.NewEngine(logger, emitter, venues, events)

	result, err := grouper.FindGroups(ctx, models.RecordKindEvent, grouping.StrategyTitleTime, 100)
	require.NoError(t, err)
	require.Len(t, result.Groups, 1)
	require.Len(t, result.Groups[0].Members, 2)

	squashResult, err := engine.Squash(ctx, models.RecordKindEvent, "e-master", []string{"e-dup1", "e-dup2"})
	require.NoError(t, err)
	assert.Equal(t, 1, squashResult.FlattenedChains)

	// both duplicates end up pointing directly at the master
	assert.Equal(t, "e-master", *events.records["e-dup1"].DuplicateOfID)
	assert.Equal(t, "e-master", *events.records["e-dup2"].DuplicateOfID)

	// re-running the same squash is a no-op
	again, err := engine.Squash(ctx, models.RecordKindEvent, "e-master", []string{"e-dup1", "e-dup2"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"e-dup1", "e-dup2"}, again.AlreadySquashed)
	assert.Empty(t, again.RepointedByType)
	require.Len(t, emitter.results, 1)
}

// TestSquashRejectsCrossBatchChain verifies a duplicate that is itself a
// master of an outside record cannot be squashed.
func TestSquashRejectsCrossBatchChain(t *testing.T) {
	ctx := context.Background()

	venues := newMemStore(models.RecordKindVenue)
	events := newMemStore(models.RecordKindEvent)
	venues.add("v-a", "Alpha Hall", nil, 0)
	venues.add("v-b", "Alpha Hall", nil, 0)
	venues.add("v-c", "Alpha Hall Annex", nil, 0)

	// v-c points at v-b, and v-c is not part of the batch
	target := "v-b"
	venues.records["v-c"].DuplicateOfID = &target

	engine := squash.NewEngine(testLogger(), &captureEmitter{}, venues, events)

	_, err := engine.Squash(ctx, models.RecordKindVenue, "v-a", []string{"v-b"})
	require.Error(t, err)
	assert.Nil(t, venues.records["v-b"].DuplicateOfID)
	assert.True(t, venues.db.tx.rolledBack)
}
