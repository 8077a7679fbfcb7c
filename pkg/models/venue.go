package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Venue is a place events are held. A venue with duplicate_of_id set has
// been squashed into another venue and is retained only as a redirect
// target.
type Venue struct {
	ID            string     `json:"id" db:"id"`
	Name          string     `json:"name" db:"name"`
	Description   *string    `json:"description,omitempty" db:"description"`
	Address       *string    `json:"address,omitempty" db:"address"`
	StreetAddress *string    `json:"street_address,omitempty" db:"street_address"`
	Locality      *string    `json:"locality,omitempty" db:"locality"`
	Region        *string    `json:"region,omitempty" db:"region"`
	PostalCode    *string    `json:"postal_code,omitempty" db:"postal_code"`
	Country       *string    `json:"country,omitempty" db:"country"`
	Email         *string    `json:"email,omitempty" db:"email"`
	Telephone     *string    `json:"telephone,omitempty" db:"telephone"`
	URL           *string    `json:"url,omitempty" db:"url"`
	Latitude      *float64   `json:"latitude,omitempty" db:"latitude"`
	Longitude     *float64   `json:"longitude,omitempty" db:"longitude"`
	WiFi          bool       `json:"wifi" db:"wifi"`
	Closed        bool       `json:"closed" db:"closed"`
	AccessNotes   *string    `json:"access_notes,omitempty" db:"access_notes"`
	DuplicateOfID *string    `json:"duplicate_of_id,omitempty" db:"duplicate_of_id"`
	Locked        bool       `json:"locked" db:"locked"`
	EventCount    int        `json:"event_count" db:"event_count"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// IsDuplicate reports whether this venue has been squashed into a master.
func (v *Venue) IsDuplicate() bool {
	return v.DuplicateOfID != nil && *v.DuplicateOfID != ""
}

// HasFullAddress reports whether any structured address component is set.
func (v *Venue) HasFullAddress() bool {
	for _, part := range []*string{v.StreetAddress, v.Locality, v.Region, v.PostalCode, v.Country} {
		if part != nil && strings.TrimSpace(*part) != "" {
			return true
		}
	}
	return false
}

// FullAddress renders the structured address as a single line.
func (v *Venue) FullAddress() string {
	if !v.HasFullAddress() {
		return ""
	}
	str := func(p *string) string {
		if p == nil {
			return ""
		}
		return strings.TrimSpace(*p)
	}
	return strings.TrimSpace(fmt.Sprintf("%s, %s %s %s %s",
		str(v.StreetAddress), str(v.Locality), str(v.Region), str(v.PostalCode), str(v.Country)))
}

// GeocodeAddress returns the best address string for the geocoding
// collaborator: the structured address when present, the free-form one
// otherwise.
func (v *Venue) GeocodeAddress() string {
	if addr := v.FullAddress(); addr != "" {
		return addr
	}
	if v.Address != nil {
		return strings.TrimSpace(*v.Address)
	}
	return ""
}

// Location returns the venue's coordinates when both are set.
func (v *Venue) Location() (float64, float64, bool) {
	if v.Latitude == nil || v.Longitude == nil {
		return 0, 0, false
	}
	return *v.Latitude, *v.Longitude, true
}

// AsRecord projects the venue into the identity-level view used by the
// duplicate grouper and squash engine.
func (v *Venue) AsRecord() Record {
	fields := map[string]string{
		"description":    deref(v.Description),
		"address":        deref(v.Address),
		"street_address": deref(v.StreetAddress),
		"locality":       deref(v.Locality),
		"region":         deref(v.Region),
		"postal_code":    deref(v.PostalCode),
		"country":        deref(v.Country),
		"email":          deref(v.Email),
		"telephone":      deref(v.Telephone),
		"url":            deref(v.URL),
		"access_notes":   deref(v.AccessNotes),
	}
	if v.Latitude != nil {
		fields["latitude"] = strconv.FormatFloat(*v.Latitude, 'f', -1, 64)
	} else {
		fields["latitude"] = ""
	}
	if v.Longitude != nil {
		fields["longitude"] = strconv.FormatFloat(*v.Longitude, 'f', -1, 64)
	} else {
		fields["longitude"] = ""
	}

	return Record{
		ID:            v.ID,
		Kind:          RecordKindVenue,
		Title:         v.Name,
		DuplicateOfID: v.DuplicateOfID,
		Locked:        v.Locked,
		Fields:        fields,
		CreatedAt:     v.CreatedAt,
	}
}

// CreateVenueRequest is the request for creating a venue.
type CreateVenueRequest struct {
	Name          string   `json:"name" validate:"required"`
	Description   *string  `json:"description,omitempty"`
	Address       *string  `json:"address,omitempty"`
	StreetAddress *string  `json:"street_address,omitempty"`
	Locality      *string  `json:"locality,omitempty"`
	Region        *string  `json:"region,omitempty"`
	PostalCode    *string  `json:"postal_code,omitempty"`
	Country       *string  `json:"country,omitempty"`
	Email         *string  `json:"email,omitempty" validate:"omitempty,email"`
	Telephone     *string  `json:"telephone,omitempty"`
	URL           *string  `json:"url,omitempty" validate:"omitempty,url"`
	Latitude      *float64 `json:"latitude,omitempty" validate:"omitempty,gte=-90,lte=90"`
	Longitude     *float64 `json:"longitude,omitempty" validate:"omitempty,gte=-180,lte=180"`
	WiFi          bool     `json:"wifi"`
	Closed        bool     `json:"closed"`
	AccessNotes   *string  `json:"access_notes,omitempty"`
}

// UpdateVenueRequest is the request for updating a venue. Nil fields keep
// their current values.
type UpdateVenueRequest struct {
	Name          *string  `json:"name,omitempty"`
	Description   *string  `json:"description,omitempty"`
	Address       *string  `json:"address,omitempty"`
	StreetAddress *string  `json:"street_address,omitempty"`
	Locality      *string  `json:"locality,omitempty"`
	Region        *string  `json:"region,omitempty"`
	PostalCode    *string  `json:"postal_code,omitempty"`
	Country       *string  `json:"country,omitempty"`
	Email         *string  `json:"email,omitempty" validate:"omitempty,email"`
	Telephone     *string  `json:"telephone,omitempty"`
	URL           *string  `json:"url,omitempty" validate:"omitempty,url"`
	Latitude      *float64 `json:"latitude,omitempty" validate:"omitempty,gte=-90,lte=90"`
	Longitude     *float64 `json:"longitude,omitempty" validate:"omitempty,gte=-180,lte=180"`
	WiFi          *bool    `json:"wifi,omitempty"`
	Closed        *bool    `json:"closed,omitempty"`
	AccessNotes   *string  `json:"access_notes,omitempty"`
}

// VenueResponse wraps a single venue. RedirectedFrom is set when the
// requested id belonged to a squashed duplicate and the master is returned
// in its place.
type VenueResponse struct {
	Venue          Venue  `json:"venue"`
	RedirectedFrom string `json:"redirected_from,omitempty"`
}

// VenueListResponse is the response for listing venues.
type VenueListResponse struct {
	Items      []Venue `json:"items"`
	TotalCount int     `json:"total_count"`
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
