package models

import "time"

// GroupCandidate is one master record inside a grouping pass. Fields holds
// the raw values the grouping key is computed from; the dependent counts
// let the operator UI show the cost of a merge without extra queries.
type GroupCandidate struct {
	ID           string            `json:"id" db:"id"`
	Kind         RecordKind        `json:"kind" db:"-"`
	Title        string            `json:"title" db:"title"`
	EventCount   int               `json:"event_count" db:"event_count"`
	TaggingCount int               `json:"tagging_count" db:"tagging_count"`
	CreatedAt    time.Time         `json:"created_at" db:"created_at"`
	Fields       map[string]string `json:"-" db:"-"`
}

// DuplicateGroup is a set of master candidates sharing a grouping key.
// Members keep their candidate-list order so repeated passes present the
// same merge target.
type DuplicateGroup struct {
	Key     string           `json:"key"`
	Members []GroupCandidate `json:"members"`
}

// GroupingResult is the ephemeral output of one grouping pass. It is never
// persisted; every request recomputes it.
type GroupingResult struct {
	Kind        RecordKind       `json:"kind"`
	Strategy    string           `json:"strategy"`
	Groups      []DuplicateGroup `json:"groups"`
	Ungroupable []GroupCandidate `json:"ungroupable,omitempty"`
}

// SquashRequest asks the consolidation engine to merge duplicates into a
// master.
type SquashRequest struct {
	MasterID     string   `json:"master_id" validate:"required"`
	DuplicateIDs []string `json:"duplicate_ids" validate:"required,min=1,dive,required"`
}

// SquashResult reports what a squash operation changed.
type SquashResult struct {
	Kind             RecordKind     `json:"kind"`
	MasterID         string         `json:"master_id"`
	DuplicateIDs     []string       `json:"duplicate_ids"`
	AlreadySquashed  []string       `json:"already_squashed,omitempty"`
	RepointedByType  map[string]int `json:"repointed_by_type"`
	FlattenedChains  int            `json:"flattened_chains,omitempty"`
	BackfilledFields []string       `json:"backfilled_fields,omitempty"`
}
