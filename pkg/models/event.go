package models

import (
	"time"
)

// Event is a listed happening, optionally attached to a venue. An event
// with duplicate_of_id set has been squashed into another event.
type Event struct {
	ID             string     `json:"id" db:"id"`
	Title          string     `json:"title" db:"title"`
	Description    *string    `json:"description,omitempty" db:"description"`
	StartTime      time.Time  `json:"start_time" db:"start_time"`
	EndTime        *time.Time `json:"end_time,omitempty" db:"end_time"`
	URL            *string    `json:"url,omitempty" db:"url"`
	VenueID        *string    `json:"venue_id,omitempty" db:"venue_id"`
	VenueDetails   *string    `json:"venue_details,omitempty" db:"venue_details"`
	OrganizationID *string    `json:"organization_id,omitempty" db:"organization_id"`
	DuplicateOfID  *string    `json:"duplicate_of_id,omitempty" db:"duplicate_of_id"`
	Locked         bool       `json:"locked" db:"locked"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// IsDuplicate reports whether this event has been squashed into a master.
func (e *Event) IsDuplicate() bool {
	return e.DuplicateOfID != nil && *e.DuplicateOfID != ""
}

// AsRecord projects the event into the identity-level view used by the
// duplicate grouper and squash engine.
func (e *Event) AsRecord() Record {
	fields := map[string]string{
		"description":   deref(e.Description),
		"url":           deref(e.URL),
		"venue_id":      deref(e.VenueID),
		"venue_details": deref(e.VenueDetails),
	}
	if e.EndTime != nil {
		fields["end_time"] = e.EndTime.UTC().Format(time.RFC3339)
	} else {
		fields["end_time"] = ""
	}

	return Record{
		ID:            e.ID,
		Kind:          RecordKindEvent,
		Title:         e.Title,
		DuplicateOfID: e.DuplicateOfID,
		Locked:        e.Locked,
		Fields:        fields,
		CreatedAt:     e.CreatedAt,
	}
}

// CreateEventRequest is the request for creating or updating an event.
// VenueID attaches an existing venue; VenueName instead looks a venue up
// by name and creates one when no master matches.
type CreateEventRequest struct {
	Title        string     `json:"title" validate:"required"`
	Description  *string    `json:"description,omitempty"`
	StartTime    time.Time  `json:"start_time" validate:"required"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	URL          *string    `json:"url,omitempty" validate:"omitempty,url"`
	VenueID      *string    `json:"venue_id,omitempty"`
	VenueName    *string    `json:"venue_name,omitempty"`
	VenueDetails *string    `json:"venue_details,omitempty"`
}

// EventListQuery holds index filters. Zero-value means the default
// future window.
type EventListQuery struct {
	StartDate time.Time
	EndDate   time.Time
	Order     string
}

// EventResponse wraps a single event. RedirectedFrom is set when the
// requested id belonged to a squashed duplicate and the master is returned
// in its place. HasNewVenue reports that saving the event created its venue.
type EventResponse struct {
	Event          Event  `json:"event"`
	RedirectedFrom string `json:"redirected_from,omitempty"`
	HasNewVenue    bool   `json:"has_new_venue,omitempty"`
}

// EventListResponse is the response for listing events.
type EventListResponse struct {
	Items      []Event `json:"items"`
	TotalCount int     `json:"total_count"`
}
