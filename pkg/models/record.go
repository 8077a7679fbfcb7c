package models

import (
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
)

// RecordKind identifies which listing table a duplicate operation targets.
type RecordKind string

const (
	RecordKindVenue RecordKind = "venue"
	RecordKindEvent RecordKind = "event"
)

// ParseRecordKind rejects unknown kinds at the boundary.
func ParseRecordKind(s string) (RecordKind, error) {
	switch RecordKind(s) {
	case RecordKindVenue:
		return RecordKindVenue, nil
	case RecordKindEvent:
		return RecordKindEvent, nil
	default:
		return "", httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown record kind %q", s)
	}
}

// Record is the identity-level view of a venue or event used by the
// duplicate machinery. Fields holds the backfillable columns as plain
// strings so chain and backfill decisions operate on identifiers and
// values, not live rows.
type Record struct {
	ID            string
	Kind          RecordKind
	Title         string
	DuplicateOfID *string
	Locked        bool
	Fields        map[string]string
	CreatedAt     time.Time
}

// IsDuplicate reports whether the record has been squashed into a master.
func (r *Record) IsDuplicate() bool {
	return r.DuplicateOfID != nil && *r.DuplicateOfID != ""
}
