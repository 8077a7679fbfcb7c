// Package event persists events and implements the event side of duplicate
// consolidation.
package event

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/biximilien/Radiant-Sands/pkg/database"
	"github.com/biximilien/Radiant-Sands/pkg/models"
	"github.com/biximilien/Radiant-Sands/pkg/tracing"
)

var eventColumns = []string{
	"id", "title", "description", "start_time", "end_time", "url",
	"venue_id", "venue_details", "organization_id",
	"duplicate_of_id", "locked", "created_at", "updated_at", "deleted_at",
}

// columns the squash backfill is allowed to write
var backfillableColumns = map[string]bool{
	"description":   true,
	"url":           true,
	"venue_id":      true,
	"venue_details": true,
	"end_time":      true,
}

// Repository handles event persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new event repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// DB exposes the underlying database handle for transactional operations.
func (r *Repository) DB() database.DB {
	return r.db
}

// Kind identifies the record kind this repository manages
func (r *Repository) Kind() models.RecordKind {
	return models.RecordKindEvent
}

// Create creates a new event
func (r *Repository) Create(ctx context.Context, event *models.Event) (*models.Event, error) {
	ctx, span := tracing.StartSpan(ctx, "event.Repository.Create")
	defer span.End()

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	event.CreatedAt = time.Now().UTC()
	event.UpdatedAt = event.CreatedAt

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("events")
	sb.Cols("id", "title", "description", "start_time", "end_time", "url",
		"venue_id", "venue_details", "organization_id",
		"duplicate_of_id", "locked", "created_at", "updated_at")
	sb.Values(event.ID, event.Title, event.Description, event.StartTime, event.EndTime, event.URL,
		event.VenueID, event.VenueDetails, event.OrganizationID,
		event.DuplicateOfID, event.Locked, event.CreatedAt, event.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create event")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create event")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": event.ID}).Info("Created event")
	return event, nil
}

// Get retrieves an event by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.Event, error) {
	ctx, span := tracing.StartSpan(ctx, "event.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(eventColumns...)
	sb.From("events")
	sb.Where(
		sb.Equal("id", id),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var event models.Event
	if err := r.db.GetContext(ctx, &event, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("event %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get event")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get event")
	}

	return &event, nil
}

// GetMaster resolves an event, following a duplicate pointer to its master.
// The second return value is true when the id referred to a duplicate.
func (r *Repository) GetMaster(ctx context.Context, id string) (*models.Event, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "event.Repository.GetMaster")
	defer span.End()

	event, err := r.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if !event.IsDuplicate() {
		return event, false, nil
	}

	master, err := r.Get(ctx, *event.DuplicateOfID)
	if err != nil {
		return nil, false, err
	}
	return master, true, nil
}

// List retrieves master events within the date range, soonest first by
// default
func (r *Repository) List(ctx context.Context, q models.EventListQuery, limit int) ([]models.Event, error) {
	ctx, span := tracing.StartSpan(ctx, "event.Repository.List")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(eventColumns...)
	sb.From("events")
	sb.Where(
		sb.IsNull("duplicate_of_id"),
		sb.IsNull("deleted_at"),
	)
	if !q.StartDate.IsZero() {
		sb.Where(sb.GreaterEqualThan("start_time", q.StartDate))
	}
	if !q.EndDate.IsZero() {
		sb.Where(sb.LessThan("start_time", q.EndDate))
	}

	order := "start_time ASC"
	if q.Order == "newest" {
		order = "start_time DESC"
	}
	sb.OrderBy(order)
	if limit > 0 {
		sb.Limit(limit)
	}

	query, args := sb.Build()
	var events []models.Event
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list events")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list events")
	}

	return events, nil
}

// ListByVenue retrieves master events attached to a venue
func (r *Repository) ListByVenue(ctx context.Context, venueID string, limit int) ([]models.Event, error) {
	ctx, span := tracing.StartSpan(ctx, "event.Repository.ListByVenue")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(eventColumns...)
	sb.From("events")
	sb.Where(
		sb.Equal("venue_id", venueID),
		sb.IsNull("duplicate_of_id"),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("start_time ASC")
	if limit > 0 {
		sb.Limit(limit)
	}

	query, args := sb.Build()
	var events []models.Event
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list events by venue")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list events by venue")
	}

	return events, nil
}

// SearchByTitle finds events whose title or description matches the query,
// duplicates included; the search facade filters those out
func (r *Repository) SearchByTitle(ctx context.Context, q string, limit int) ([]models.Event, error) {
	ctx, span := tracing.StartSpan(ctx, "event.Repository.SearchByTitle")
	defer span.End()

	pattern := "%" + q + "%"

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(eventColumns...)
	sb.From("events")
	sb.Where(
		sb.Or(
			sb.ILike("title", pattern),
			sb.ILike("description", pattern),
		),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("start_time DESC")
	if limit > 0 {
		sb.Limit(limit)
	}

	query, args := sb.Build()
	var events []models.Event
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to search events")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to search events")
	}

	return events, nil
}

// Update overwrites an event's descriptive attributes
func (r *Repository) Update(ctx context.Context, event *models.Event) (*models.Event, error) {
	ctx, span := tracing.StartSpan(ctx, "event.Repository.Update")
	defer span.End()

	event.UpdatedAt = time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("events")
	sb.Set(
		sb.Assign("title", event.Title),
		sb.Assign("description", event.Description),
		sb.Assign("start_time", event.StartTime),
		sb.Assign("end_time", event.EndTime),
		sb.Assign("url", event.URL),
		sb.Assign("venue_id", event.VenueID),
		sb.Assign("venue_details", event.VenueDetails),
		sb.Assign("updated_at", event.UpdatedAt),
	)
	sb.Where(
		sb.Equal("id", event.ID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update event")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update event")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("event %s not found", event.ID))
	}

	return r.Get(ctx, event.ID)
}

// SoftDelete marks an event as deleted
func (r *Repository) SoftDelete(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "event.Repository.SoftDelete")
	defer span.End()

	event, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if event.Locked {
		return httperror.NewHTTPError(http.StatusUnprocessableEntity, "event is locked and cannot be deleted")
	}

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("events")
	sb.Set(sb.Assign("deleted_at", now))
	sb.Where(
		sb.Equal("id", id),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete event")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete event")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("event %s not found", id))
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id}).Info("Soft deleted event")
	return nil
}

// ListMasterCandidates returns master events with their dependent counts for
// duplicate grouping
func (r *Repository) ListMasterCandidates(ctx context.Context, _ models.RecordKind, limit int) ([]models.GroupCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "event.Repository.ListMasterCandidates")
	defer span.End()

	query := `
		SELECT
			e.id,
			e.title,
			e.start_time,
			e.url,
			e.created_at,
			COUNT(t.id) AS tagging_count
		FROM events e
		LEFT JOIN taggings t ON t.taggable_type = 'event' AND t.taggable_id = e.id
		WHERE e.duplicate_of_id IS NULL
		  AND e.deleted_at IS NULL
		GROUP BY e.id
		ORDER BY e.created_at ASC
		LIMIT $1
	`

	var rows []struct {
		ID           string    `db:"id"`
		Title        string    `db:"title"`
		StartTime    time.Time `db:"start_time"`
		URL          *string   `db:"url"`
		CreatedAt    time.Time `db:"created_at"`
		TaggingCount int       `db:"tagging_count"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list event grouping candidates")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list event candidates")
	}

	candidates := make([]models.GroupCandidate, 0, len(rows))
	for _, row := range rows {
		url := ""
		if row.URL != nil {
			url = *row.URL
		}
		candidates = append(candidates, models.GroupCandidate{
			ID:           row.ID,
			Kind:         models.RecordKindEvent,
			Title:        row.Title,
			TaggingCount: row.TaggingCount,
			CreatedAt:    row.CreatedAt,
			Fields: map[string]string{
				"start_time": row.StartTime.UTC().Format(time.RFC3339),
				"url":        url,
			},
		})
	}

	return candidates, nil
}

// LockRecords loads the given events and takes row locks on them. Ids are
// expected in sorted order; a row already locked elsewhere surfaces as a
// conflict instead of blocking.
func (r *Repository) LockRecords(ctx context.Context, ids []string) ([]models.Record, error) {
	ctx, span := tracing.StartSpan(ctx, "event.Repository.LockRecords")
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}

	sb := database.NewSelectBuilder()
	sb.Select(eventColumns...)
	sb.From("events")
	sb.Where(
		sb.In("id", sqlbuilder.Flatten(ids)...),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("id ASC")
	sb.ForUpdateNoWait()

	query, args := sb.Build()
	var events []models.Event
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		if database.IsLockNotAvailable(err) {
			return nil, httperror.NewHTTPError(http.StatusConflict, "another consolidation holds a lock on one of these events")
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to lock events")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to lock events")
	}

	records := make([]models.Record, 0, len(events))
	for i := range events {
		records = append(records, events[i].AsRecord())
	}
	return records, nil
}

// FindDuplicatePointers returns, for each given event, the ids of events
// whose duplicate_of_id references it
func (r *Repository) FindDuplicatePointers(ctx context.Context, ids []string) (map[string][]string, error) {
	ctx, span := tracing.StartSpan(ctx, "event.Repository.FindDuplicatePointers")
	defer span.End()

	if len(ids) == 0 {
		return map[string][]string{}, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "duplicate_of_id")
	sb.From("events")
	sb.Where(
		sb.In("duplicate_of_id", sqlbuilder.Flatten(ids)...),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var rows []struct {
		ID            string  `db:"id"`
		DuplicateOfID *string `db:"duplicate_of_id"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to find event duplicate pointers")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find event duplicate pointers")
	}

	out := map[string][]string{}
	for _, row := range rows {
		if row.DuplicateOfID == nil {
			continue
		}
		out[*row.DuplicateOfID] = append(out[*row.DuplicateOfID], row.ID)
	}
	return out, nil
}

// RepointDependents moves taggings from the duplicate events to the master,
// returning counts per dependent type
func (r *Repository) RepointDependents(ctx context.Context, masterID string, duplicateIDs []string) (map[string]int, error) {
	ctx, span := tracing.StartSpan(ctx, "event.Repository.RepointDependents")
	defer span.End()

	// Drop taggings the master already carries before moving the rest, so
	// the update cannot trip the (tag, taggable_type, taggable_id) unique
	// index when a duplicate shares a tag with the master.
	sub := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sub.Select("tag")
	sub.From("taggings")
	sub.Where(
		sub.Equal("taggable_type", string(models.RecordKindEvent)),
		sub.Equal("taggable_id", masterID),
	)

	cb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	cb.DeleteFrom("taggings")
	cb.Where(
		cb.Equal("taggable_type", string(models.RecordKindEvent)),
		cb.In("taggable_id", sqlbuilder.Flatten(duplicateIDs)...),
		cb.In("tag", cb.Var(sub)),
	)

	query, args := cb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to drop duplicated taggings")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to re-point taggings")
	}

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("taggings")
	sb.Set(sb.Assign("taggable_id", masterID))
	sb.Where(
		sb.Equal("taggable_type", string(models.RecordKindEvent)),
		sb.In("taggable_id", sqlbuilder.Flatten(duplicateIDs)...),
	)

	query, args = sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to re-point taggings")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to re-point taggings")
	}

	moved, _ := result.RowsAffected()
	return map[string]int{"taggings": int(moved)}, nil
}

// MarkDuplicates sets duplicate_of_id on the given events to the master
func (r *Repository) MarkDuplicates(ctx context.Context, masterID string, duplicateIDs []string) error {
	ctx, span := tracing.StartSpan(ctx, "event.Repository.MarkDuplicates")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("events")
	sb.Set(
		sb.Assign("duplicate_of_id", masterID),
		sb.Assign("updated_at", time.Now().UTC()),
	)
	sb.Where(sb.In("id", sqlbuilder.Flatten(duplicateIDs)...))

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to mark events as duplicates")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark events as duplicates")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"master_id":  masterID,
		"duplicates": duplicateIDs,
	}).Info("Marked events as duplicates")
	return nil
}

// UpdateFields writes backfilled field values onto an event. Field names are
// checked against the backfillable column set.
func (r *Repository) UpdateFields(ctx context.Context, id string, fields map[string]string) error {
	ctx, span := tracing.StartSpan(ctx, "event.Repository.UpdateFields")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("events")

	assignments := []string{sb.Assign("updated_at", time.Now().UTC())}
	for field, value := range fields {
		if !backfillableColumns[field] {
			continue
		}
		assignments = append(assignments, sb.Assign(field, value))
	}
	if len(assignments) == 1 {
		return nil
	}

	sb.Set(assignments...)
	sb.Where(
		sb.Equal("id", id),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to backfill event fields")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to backfill event fields")
	}

	return nil
}
