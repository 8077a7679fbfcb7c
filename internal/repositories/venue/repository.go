// Package venue persists venues and implements the venue side of duplicate
// consolidation.
package venue

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

var venueColumns = []string{
	"id", "name", "description", "address", "street_address", "locality",
	"region", "postal_code", "country", "email", "telephone", "url",
	"latitude", "longitude", "wifi", "closed", "access_notes",
	"duplicate_of_id", "locked", "created_at", "updated_at", "deleted_at",
}

// columns the squash backfill is allowed to write
var backfillableColumns = map[string]bool{
	"description":    true,
	"address":        true,
	"street_address": true,
	"locality":       true,
	"region":         true,
	"postal_code":    true,
	"country":        true,
	"email":          true,
	"telephone":      true,
	"url":            true,
	"latitude":       true,
	"longitude":      true,
	"access_notes":   true,
}

// Repository handles venue persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new venue repository
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
	return models.RecordKindVenue
}

// Create creates a new venue
func (r *Repository) Create(ctx context.Context, venue *models.Venue) (*models.Venue, error) {
	ctx, span := tracing.StartSpan(ctx, "venue.Repository.Create")
	defer span.End()

	if venue.ID == "" {
		venue.ID = uuid.New().String()
	}
	venue.CreatedAt = time.Now().UTC()
	venue.UpdatedAt = venue.CreatedAt

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("venues")
	sb.Cols("id", "name", "description", "address", "street_address", "locality",
		"region", "postal_code", "country", "email", "telephone", "url",
		"latitude", "longitude", "wifi", "closed", "access_notes",
		"duplicate_of_id", "locked", "created_at", "updated_at")
	sb.Values(venue.ID, venue.Name, venue.Description, venue.Address, venue.StreetAddress, venue.Locality,
		venue.Region, venue.PostalCode, venue.Country, venue.Email, venue.Telephone, venue.URL,
		venue.Latitude, venue.Longitude, venue.WiFi, venue.Closed, venue.AccessNotes,
		venue.DuplicateOfID, venue.Locked, venue.CreatedAt, venue.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create venue")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create venue")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": venue.ID}).Info("Created venue")
	return venue, nil
}

// Get retrieves a venue by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.Venue, error) {
	ctx, span := tracing.StartSpan(ctx, "venue.Repository.Get")
	defer span.End()

	sb := selectVenues()
	sb.Where(
		sb.Equal("venues.id", id),
		sb.IsNull("venues.deleted_at"),
	)

	query, args := sb.Build()
	var venue models.Venue
	if err := r.db.GetContext(ctx, &venue, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("venue %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get venue")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get venue")
	}

	return &venue, nil
}

// GetMaster resolves a venue, following a duplicate pointer to its master.
// The second return value is true when the id referred to a duplicate.
func (r *Repository) GetMaster(ctx context.Context, id string) (*models.Venue, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "venue.Repository.GetMaster")
	defer span.End()

	venue, err := r.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if !venue.IsDuplicate() {
		return venue, false, nil
	}

	master, err := r.Get(ctx, *venue.DuplicateOfID)
	if err != nil {
		return nil, false, err
	}
	return master, true, nil
}

// GetByExactName finds a master venue by exact name, returning nil when none
// matches
func (r *Repository) GetByExactName(ctx context.Context, name string) (*models.Venue, error) {
	ctx, span := tracing.StartSpan(ctx, "venue.Repository.GetByExactName")
	defer span.End()

	sb := selectVenues()
	sb.Where(
		sb.Equal("venues.name", name),
		sb.IsNull("venues.duplicate_of_id"),
		sb.IsNull("venues.deleted_at"),
	)
	sb.OrderBy("venues.created_at ASC")
	sb.Limit(1)

	query, args := sb.Build()
	var venues []models.Venue
	if err := r.db.SelectContext(ctx, &venues, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to find venue by name")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find venue by name")
	}
	if len(venues) == 0 {
		return nil, nil
	}
	return &venues[0], nil
}

// List retrieves master venues ordered by name
func (r *Repository) List(ctx context.Context, includeClosed bool, limit int) ([]models.Venue, error) {
	ctx, span := tracing.StartSpan(ctx, "venue.Repository.List")
	defer span.End()

	sb := selectVenues()
	sb.Where(
		sb.IsNull("venues.duplicate_of_id"),
		sb.IsNull("venues.deleted_at"),
	)
	if !includeClosed {
		sb.Where(sb.Equal("venues.closed", false))
	}
	sb.OrderBy("venues.name ASC")
	if limit > 0 {
		sb.Limit(limit)
	}

	query, args := sb.Build()
	var venues []models.Venue
	if err := r.db.SelectContext(ctx, &venues, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list venues")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list venues")
	}

	return venues, nil
}

// SearchByName finds master venues whose name or description matches the
// query
func (r *Repository) SearchByName(ctx context.Context, q string, limit int) ([]models.Venue, error) {
	ctx, span := tracing.StartSpan(ctx, "venue.Repository.SearchByName")
	defer span.End()

	pattern := "%" + q + "%"

	sb := selectVenues()
	sb.Where(
		sb.Or(
			sb.ILike("venues.name", pattern),
			sb.ILike("venues.description", pattern),
			sb.ILike("venues.address", pattern),
		),
		sb.IsNull("venues.deleted_at"),
	)
	sb.OrderBy("venues.name ASC")
	if limit > 0 {
		sb.Limit(limit)
	}

	query, args := sb.Build()
	var venues []models.Venue
	if err := r.db.SelectContext(ctx, &venues, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to search venues")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to search venues")
	}

	return venues, nil
}

// Update applies the non-nil fields of the request to a venue
func (r *Repository) Update(ctx context.Context, id string, req *models.UpdateVenueRequest) (*models.Venue, error) {
	ctx, span := tracing.StartSpan(ctx, "venue.Repository.Update")
	defer span.End()

	current, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Locked {
		return nil, httperror.NewHTTPError(http.StatusUnprocessableEntity, "venue is locked and cannot be modified")
	}

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("venues")

	assignments := []string{sb.Assign("updated_at", now)}
	if req.Name != nil {
		assignments = append(assignments, sb.Assign("name", *req.Name))
	}
	if req.Description != nil {
		assignments = append(assignments, sb.Assign("description", *req.Description))
	}
	if req.Address != nil {
		assignments = append(assignments, sb.Assign("address", *req.Address))
	}
	if req.StreetAddress != nil {
		assignments = append(assignments, sb.Assign("street_address", *req.StreetAddress))
	}
	if req.Locality != nil {
		assignments = append(assignments, sb.Assign("locality", *req.Locality))
	}
	if req.Region != nil {
		assignments = append(assignments, sb.Assign("region", *req.Region))
	}
	if req.PostalCode != nil {
		assignments = append(assignments, sb.Assign("postal_code", *req.PostalCode))
	}
	if req.Country != nil {
		assignments = append(assignments, sb.Assign("country", *req.Country))
	}
	if req.Email != nil {
		assignments = append(assignments, sb.Assign("email", *req.Email))
	}
	if req.Telephone != nil {
		assignments = append(assignments, sb.Assign("telephone", *req.Telephone))
	}
	if req.URL != nil {
		assignments = append(assignments, sb.Assign("url", *req.URL))
	}
	if req.Latitude != nil {
		assignments = append(assignments, sb.Assign("latitude", *req.Latitude))
	}
	if req.Longitude != nil {
		assignments = append(assignments, sb.Assign("longitude", *req.Longitude))
	}
	if req.WiFi != nil {
		assignments = append(assignments, sb.Assign("wifi", *req.WiFi))
	}
	if req.Closed != nil {
		assignments = append(assignments, sb.Assign("closed", *req.Closed))
	}
	if req.AccessNotes != nil {
		assignments = append(assignments, sb.Assign("access_notes", *req.AccessNotes))
	}

	sb.Set(assignments...)
	sb.Where(
		sb.Equal("id", id),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update venue")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update venue")
	}

	return r.Get(ctx, id)
}

// SoftDelete marks a venue as deleted. Venues with events cannot be deleted;
// squash them into another venue instead.
func (r *Repository) SoftDelete(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "venue.Repository.SoftDelete")
	defer span.End()

	venue, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if venue.Locked {
		return httperror.NewHTTPError(http.StatusUnprocessableEntity, "venue is locked and cannot be deleted")
	}
	if venue.EventCount > 0 {
		return httperror.NewHTTPError(http.StatusUnprocessableEntity, "venue has events and cannot be deleted")
	}

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("venues")
	sb.Set(sb.Assign("deleted_at", now))
	sb.Where(
		sb.Equal("id", id),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete venue")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete venue")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("venue %s not found", id))
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id}).Info("Soft deleted venue")
	return nil
}

// ListMasterCandidates returns master venues with their dependent counts for
// duplicate grouping
func (r *Repository) ListMasterCandidates(ctx context.Context, _ models.RecordKind, limit int) ([]models.GroupCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "venue.Repository.ListMasterCandidates")
	defer span.End()

	query := `
		SELECT
			v.id,
			v.name AS title,
			v.created_at,
			COUNT(DISTINCT e.id) AS event_count,
			COUNT(DISTINCT t.id) AS tagging_count
		FROM venues v
		LEFT JOIN events e ON e.venue_id = v.id AND e.deleted_at IS NULL
		LEFT JOIN taggings t ON t.taggable_type = 'venue' AND t.taggable_id = v.id
		WHERE v.duplicate_of_id IS NULL
		  AND v.deleted_at IS NULL
		GROUP BY v.id
		ORDER BY v.created_at ASC
		LIMIT $1
	`

	var rows []candidateRow
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list venue grouping candidates")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list venue candidates")
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}

	fieldsByID, err := r.loadCandidateFields(ctx, ids)
	if err != nil {
		return nil, err
	}

	candidates := make([]models.GroupCandidate, 0, len(rows))
	for _, row := range rows {
		candidates = append(candidates, models.GroupCandidate{
			ID:           row.ID,
			Kind:         models.RecordKindVenue,
			Title:        row.Title,
			EventCount:   row.EventCount,
			TaggingCount: row.TaggingCount,
			CreatedAt:    row.CreatedAt,
			Fields:       fieldsByID[row.ID],
		})
	}

	return candidates, nil
}

type candidateRow struct {
	ID           string    `db:"id"`
	Title        string    `db:"title"`
	EventCount   int       `db:"event_count"`
	TaggingCount int       `db:"tagging_count"`
	CreatedAt    time.Time `db:"created_at"`
}

// loadCandidateFields fetches the groupable field values for the candidates
func (r *Repository) loadCandidateFields(ctx context.Context, ids []string) (map[string]map[string]string, error) {
	if len(ids) == 0 {
		return map[string]map[string]string{}, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "address", "street_address", "locality", "region", "postal_code", "country", "email", "telephone", "url")
	sb.From("venues")
	sb.Where(sb.In("id", sqlbuilder.Flatten(ids)...))

	query, args := sb.Build()

	var rows []struct {
		ID            string  `db:"id"`
		Address       *string `db:"address"`
		StreetAddress *string `db:"street_address"`
		Locality      *string `db:"locality"`
		Region        *string `db:"region"`
		PostalCode    *string `db:"postal_code"`
		Country       *string `db:"country"`
		Email         *string `db:"email"`
		Telephone     *string `db:"telephone"`
		URL           *string `db:"url"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to load venue candidate fields")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to load venue candidate fields")
	}

	out := make(map[string]map[string]string, len(rows))
	for _, row := range rows {
		address := strVal(row.Address)
		if address == "" {
			v := models.Venue{
				StreetAddress: row.StreetAddress,
				Locality:      row.Locality,
				Region:        row.Region,
				PostalCode:    row.PostalCode,
				Country:       row.Country,
			}
			address = v.FullAddress()
		}
		out[row.ID] = map[string]string{
			"address":   address,
			"email":     strVal(row.Email),
			"telephone": strVal(row.Telephone),
			"url":       strVal(row.URL),
		}
	}
	return out, nil
}

// LockRecords loads the given venues and takes row locks on them. Ids are
// expected in sorted order; a row already locked elsewhere surfaces as a
// conflict instead of blocking.
func (r *Repository) LockRecords(ctx context.Context, ids []string) ([]models.Record, error) {
	ctx, span := tracing.StartSpan(ctx, "venue.Repository.LockRecords")
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}

	sb := database.NewSelectBuilder()
	sb.Select(venueColumns...)
	sb.From("venues")
	sb.Where(
		sb.In("id", sqlbuilder.Flatten(ids)...),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("id ASC")
	sb.ForUpdateNoWait()

	query, args := sb.Build()
	var venues []models.Venue
	if err := r.db.SelectContext(ctx, &venues, query, args...); err != nil {
		if database.IsLockNotAvailable(err) {
			return nil, httperror.NewHTTPError(http.StatusConflict, "another consolidation holds a lock on one of these venues")
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to lock venues")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to lock venues")
	}

	records := make([]models.Record, 0, len(venues))
	for i := range venues {
		records = append(records, venues[i].AsRecord())
	}
	return records, nil
}

// FindDuplicatePointers returns, for each given venue, the ids of venues
// whose duplicate_of_id references it
func (r *Repository) FindDuplicatePointers(ctx context.Context, ids []string) (map[string][]string, error) {
	ctx, span := tracing.StartSpan(ctx, "venue.Repository.FindDuplicatePointers")
	defer span.End()

	if len(ids) == 0 {
		return map[string][]string{}, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "duplicate_of_id")
	sb.From("venues")
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
		r.logger.WithContext(ctx).WithError(err).Error("Failed to find venue duplicate pointers")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find venue duplicate pointers")
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

// RepointDependents moves events and taggings from the duplicate venues to
// the master, returning counts per dependent type
func (r *Repository) RepointDependents(ctx context.Context, masterID string, duplicateIDs []string) (map[string]int, error) {
	ctx, span := tracing.StartSpan(ctx, "venue.Repository.RepointDependents")
	defer span.End()

	counts := map[string]int{}

	eb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	eb.Update("events")
	eb.Set(
		eb.Assign("venue_id", masterID),
		eb.Assign("updated_at", time.Now().UTC()),
	)
	eb.Where(eb.In("venue_id", sqlbuilder.Flatten(duplicateIDs)...))

	query, args := eb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to re-point events")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to re-point events")
	}
	moved, _ := result.RowsAffected()
	counts["events"] = int(moved)

	// Drop taggings the master already carries before moving the rest, so
	// the update cannot trip the (tag, taggable_type, taggable_id) unique
	// index when a duplicate shares a tag with the master.
	sub := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sub.Select("tag")
	sub.From("taggings")
	sub.Where(
		sub.Equal("taggable_type", string(models.RecordKindVenue)),
		sub.Equal("taggable_id", masterID),
	)

	cb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	cb.DeleteFrom("taggings")
	cb.Where(
		cb.Equal("taggable_type", string(models.RecordKindVenue)),
		cb.In("taggable_id", sqlbuilder.Flatten(duplicateIDs)...),
		cb.In("tag", cb.Var(sub)),
	)

	query, args = cb.Build()
	if _, err = r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to drop duplicated taggings")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to re-point taggings")
	}

	tb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	tb.Update("taggings")
	tb.Set(tb.Assign("taggable_id", masterID))
	tb.Where(
		tb.Equal("taggable_type", string(models.RecordKindVenue)),
		tb.In("taggable_id", sqlbuilder.Flatten(duplicateIDs)...),
	)

	query, args = tb.Build()
	result, err = r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to re-point taggings")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to re-point taggings")
	}
	moved, _ = result.RowsAffected()
	counts["taggings"] = int(moved)

	return counts, nil
}

// MarkDuplicates sets duplicate_of_id on the given venues to the master
func (r *Repository) MarkDuplicates(ctx context.Context, masterID string, duplicateIDs []string) error {
	ctx, span := tracing.StartSpan(ctx, "venue.Repository.MarkDuplicates")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("venues")
	sb.Set(
		sb.Assign("duplicate_of_id", masterID),
		sb.Assign("updated_at", time.Now().UTC()),
	)
	sb.Where(sb.In("id", sqlbuilder.Flatten(duplicateIDs)...))

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to mark venues as duplicates")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark venues as duplicates")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"master_id":  masterID,
		"duplicates": duplicateIDs,
	}).Info("Marked venues as duplicates")
	return nil
}

// UpdateFields writes backfilled field values onto a venue. Field names are
// checked against the backfillable column set.
func (r *Repository) UpdateFields(ctx context.Context, id string, fields map[string]string) error {
	ctx, span := tracing.StartSpan(ctx, "venue.Repository.UpdateFields")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("venues")

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
		r.logger.WithContext(ctx).WithError(err).Error("Failed to backfill venue fields")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to backfill venue fields")
	}

	return nil
}

// selectVenues builds the base venue query with the live-event count joined
// in
func selectVenues() *sqlbuilder.SelectBuilder {
	cols := make([]string, 0, len(venueColumns)+1)
	for _, c := range venueColumns {
		cols = append(cols, "venues."+c)
	}
	cols = append(cols, "COUNT(events.id) AS event_count")

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(cols...)
	sb.From("venues")
	sb.JoinWithOption(sqlbuilder.LeftJoin, "events",
		"events.venue_id = venues.id",
		"events.deleted_at IS NULL",
	)
	sb.GroupBy("venues.id")
	return sb
}

func strVal(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
