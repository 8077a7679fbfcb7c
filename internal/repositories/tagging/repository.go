// Package tagging persists tags attached to venues and events.
package tagging

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/biximilien/Radiant-Sands/pkg/database"
	"github.com/biximilien/Radiant-Sands/pkg/models"
	"github.com/biximilien/Radiant-Sands/pkg/tracing"
)

// Repository handles tagging persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new tagging repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create attaches a tag to a record. Re-tagging with the same tag is a no-op.
func (r *Repository) Create(ctx context.Context, kind models.RecordKind, recordID string, tag string) (*models.Tagging, error) {
	ctx, span := tracing.StartSpan(ctx, "tagging.Repository.Create")
	defer span.End()

	tag = strings.ToLower(strings.TrimSpace(tag))
	if tag == "" {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "tag must not be blank")
	}

	tagging := &models.Tagging{
		ID:           uuid.New().String(),
		Tag:          tag,
		TaggableType: string(kind),
		TaggableID:   recordID,
		CreatedAt:    time.Now().UTC(),
	}

	sb := database.NewInsertBuilder()
	sb.InsertInto("taggings")
	sb.Cols("id", "tag", "taggable_type", "taggable_id", "created_at")
	sb.Values(tagging.ID, tagging.Tag, tagging.TaggableType, tagging.TaggableID, tagging.CreatedAt)
	sb.OnConflictDoNothing()

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create tagging")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create tagging")
	}

	return tagging, nil
}

// ListForRecord retrieves the tags attached to a record
func (r *Repository) ListForRecord(ctx context.Context, kind models.RecordKind, recordID string) ([]models.Tagging, error) {
	ctx, span := tracing.StartSpan(ctx, "tagging.Repository.ListForRecord")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tag", "taggable_type", "taggable_id", "created_at")
	sb.From("taggings")
	sb.Where(
		sb.Equal("taggable_type", string(kind)),
		sb.Equal("taggable_id", recordID),
	)
	sb.OrderBy("tag ASC")

	query, args := sb.Build()
	var taggings []models.Tagging
	if err := r.db.SelectContext(ctx, &taggings, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list taggings")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list taggings")
	}

	return taggings, nil
}

// Delete removes a tag from a record
func (r *Repository) Delete(ctx context.Context, kind models.RecordKind, recordID string, tag string) error {
	ctx, span := tracing.StartSpan(ctx, "tagging.Repository.Delete")
	defer span.End()

	tag = strings.ToLower(strings.TrimSpace(tag))

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom("taggings")
	sb.Where(
		sb.Equal("taggable_type", string(kind)),
		sb.Equal("taggable_id", recordID),
		sb.Equal("tag", tag),
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete tagging")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete tagging")
	}

	return nil
}

// CountForRecords returns the number of tags per record id
func (r *Repository) CountForRecords(ctx context.Context, kind models.RecordKind, recordIDs []string) (map[string]int, error) {
	ctx, span := tracing.StartSpan(ctx, "tagging.Repository.CountForRecords")
	defer span.End()

	if len(recordIDs) == 0 {
		return map[string]int{}, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("taggable_id", "COUNT(*) AS tag_count")
	sb.From("taggings")
	sb.Where(
		sb.Equal("taggable_type", string(kind)),
		sb.In("taggable_id", sqlbuilder.Flatten(recordIDs)...),
	)
	sb.GroupBy("taggable_id")

	query, args := sb.Build()
	var rows []struct {
		TaggableID string `db:"taggable_id"`
		TagCount   int    `db:"tag_count"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count taggings")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count taggings")
	}

	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.TaggableID] = row.TagCount
	}
	return out, nil
}
