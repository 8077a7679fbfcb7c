package models

import "time"

// Tagging attaches a free-form tag to a venue or event. Taggings follow
// their parent when duplicates are squashed.
type Tagging struct {
	ID           string    `json:"id" db:"id"`
	Tag          string    `json:"tag" db:"tag"`
	TaggableType string    `json:"taggable_type" db:"taggable_type"`
	TaggableID   string    `json:"taggable_id" db:"taggable_id"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// CreateTaggingRequest is the request for tagging a record.
type CreateTaggingRequest struct {
	Tag string `json:"tag" validate:"required"`
}
