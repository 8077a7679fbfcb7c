// Package squash implements duplicate consolidation: re-parenting dependents,
// marking duplicates, flattening chains, and backfilling master fields.
package squash

import (
	"net/http"
	"sort"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/biximilien/Radiant-Sands/pkg/models"
)

// Plan is the validated, fully-resolved set of mutations a squash will apply.
// Building a plan never touches the store; all inputs are plain records and
// identifier maps so the chain and backfill logic is testable in isolation.
type Plan struct {
	Kind            models.RecordKind
	MasterID        string
	DuplicateIDs    []string // duplicates to mark, in request order
	AlreadySquashed []string // duplicates already pointing at the master, skipped
	FlattenedChains int      // batch members whose pointer was re-aimed from another duplicate to the master
	Backfill        map[string]string
	BackfilledFields []string
}

// IsNoop reports whether the plan leaves the store unchanged
func (p *Plan) IsNoop() bool {
	return len(p.DuplicateIDs) == 0 && len(p.Backfill) == 0
}

// BuildPlan validates a squash request and computes the mutations to apply.
//
// master must be a non-duplicate record. Each duplicate must be of the same
// kind as master, must not equal master, and must not be locked. A duplicate
// already pointing at the master is skipped (idempotence). A duplicate
// pointing at another batch member has its pointer flattened to the master.
// A duplicate pointing outside the batch, or pointed at by a record outside
// the batch, would leave a two-level chain and fails the whole operation.
//
// outsidePointers maps each duplicate id to the ids of records outside the
// batch whose duplicate_of references it.
func BuildPlan(master models.Record, duplicates []models.Record, outsidePointers map[string][]string) (*Plan, error) {
	if master.IsDuplicate() {
		return nil, httperror.NewHTTPErrorf(http.StatusUnprocessableEntity, "record '%s' is already marked as a duplicate and cannot be a master", master.ID)
	}

	batch := make(map[string]bool, len(duplicates))
	for _, d := range duplicates {
		batch[d.ID] = true
	}

	plan := &Plan{
		Kind:            master.Kind,
		MasterID:        master.ID,
		DuplicateIDs:    []string{},
		AlreadySquashed: []string{},
		Backfill:        map[string]string{},
	}

	for _, d := range duplicates {
		if d.ID == master.ID {
			return nil, httperror.NewHTTPError(http.StatusUnprocessableEntity, "a record cannot be squashed into itself")
		}
		if d.Kind != master.Kind {
			return nil, httperror.NewHTTPErrorf(http.StatusUnprocessableEntity, "record '%s' is a %s, not a %s", d.ID, d.Kind, master.Kind)
		}
		if d.Locked {
			return nil, httperror.NewHTTPErrorf(http.StatusUnprocessableEntity, "record '%s' is locked and cannot be squashed", d.ID)
		}

		if d.DuplicateOfID != nil {
			switch {
			case *d.DuplicateOfID == master.ID:
				plan.AlreadySquashed = append(plan.AlreadySquashed, d.ID)
				continue
			case batch[*d.DuplicateOfID]:
				plan.FlattenedChains++
			default:
				return nil, httperror.NewHTTPErrorf(http.StatusUnprocessableEntity, "squashing record '%s' would create a duplicate chain: it already points at '%s'", d.ID, *d.DuplicateOfID)
			}
		}

		if len(outsidePointers[d.ID]) > 0 {
			return nil, httperror.NewHTTPErrorf(http.StatusUnprocessableEntity, "squashing record '%s' would create a duplicate chain: %d record(s) outside this batch point at it", d.ID, len(outsidePointers[d.ID]))
		}

		plan.DuplicateIDs = append(plan.DuplicateIDs, d.ID)
	}

	if !master.Locked {
		plan.Backfill, plan.BackfilledFields = backfillFields(master, duplicates)
	}

	return plan, nil
}

// backfillFields fills the master's blank fields from the first duplicate in
// request order that carries a non-blank value. The master's own non-blank
// values always win.
func backfillFields(master models.Record, duplicates []models.Record) (map[string]string, []string) {
	backfill := map[string]string{}
	var fields []string

	for _, d := range duplicates {
		for field, value := range d.Fields {
			if value == "" {
				continue
			}
			if master.Fields[field] != "" {
				continue
			}
			if _, claimed := backfill[field]; claimed {
				continue
			}
			// never copy a pointer into another batch member as a field value
			if field == "duplicate_of_id" {
				continue
			}
			backfill[field] = value
			fields = append(fields, field)
		}
	}

	sort.Strings(fields)

	return backfill, fields
}
