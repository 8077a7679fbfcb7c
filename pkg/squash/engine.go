package squash

import (
	"context"
	"database/sql"
	"net/http"
	"sort"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/biximilien/Radiant-Sands/pkg/database"
	"github.com/biximilien/Radiant-Sands/pkg/models"
	"github.com/biximilien/Radiant-Sands/pkg/tracing"
)

// Store is the persistence surface a squash needs for one record kind.
// Each method participates in the transaction carried on the context.
type Store interface {
	// Kind identifies the record kind this store manages
	Kind() models.RecordKind

	// DB exposes the underlying database for transaction control
	DB() database.DB

	// LockRecords loads the records with the given ids and takes row locks on
	// them. Ids must be locked in sorted order so concurrent squashes sharing
	// ids deadlock-free either wait or fail fast with a conflict.
	LockRecords(ctx context.Context, ids []string) ([]models.Record, error)

	// FindDuplicatePointers returns, for each given id, the ids of records
	// whose duplicate_of references it
	FindDuplicatePointers(ctx context.Context, ids []string) (map[string][]string, error)

	// RepointDependents moves every dependent entity's foreign key from the
	// duplicate ids to the master, returning counts per dependent type
	RepointDependents(ctx context.Context, masterID string, duplicateIDs []string) (map[string]int, error)

	// MarkDuplicates sets duplicate_of on the given records to the master
	MarkDuplicates(ctx context.Context, masterID string, duplicateIDs []string) error

	// UpdateFields writes the given field values onto the record
	UpdateFields(ctx context.Context, id string, fields map[string]string) error
}

// Emitter publishes a notification after a squash has committed
type Emitter interface {
	EmitRecordSquashed(ctx context.Context, result *models.SquashResult)
}

// Engine executes squash operations atomically
type Engine struct {
	logger  ectologger.Logger
	stores  map[models.RecordKind]Store
	emitter Emitter
}

// NewEngine creates a squash engine over the given per-kind stores
func NewEngine(logger ectologger.Logger, emitter Emitter, stores ...Store) *Engine {
	byKind := make(map[models.RecordKind]Store, len(stores))
	for _, s := range stores {
		byKind[s.Kind()] = s
	}
	return &Engine{
		logger:  logger,
		stores:  byKind,
		emitter: emitter,
	}
}

// Squash consolidates the duplicate records into the master within a single
// transaction: dependents are re-pointed, duplicates are marked, chains are
// flattened, and the master's blank fields are backfilled. Re-running with
// the same arguments is a no-op returning the same result.
func (e *Engine) Squash(ctx context.Context, kind models.RecordKind, masterID string, duplicateIDs []string) (*models.SquashResult, error) {
	ctx, span := tracing.StartSpan(ctx, "squash.Engine.Squash")
	defer span.End()

	store, ok := e.stores[kind]
	if !ok {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown record kind '%s'", kind)
	}

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"kind":            kind,
		"master_id":       masterID,
		"duplicate_count": len(duplicateIDs),
	})

	ctxTx, tx, err := store.DB().GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctxTx)

	plan, err := e.buildPlan(ctxTx, store, masterID, duplicateIDs)
	if err != nil {
		return nil, err
	}

	result := &models.SquashResult{
		Kind:             kind,
		MasterID:         plan.MasterID,
		DuplicateIDs:     plan.DuplicateIDs,
		AlreadySquashed:  plan.AlreadySquashed,
		RepointedByType:  map[string]int{},
		FlattenedChains:  plan.FlattenedChains,
		BackfilledFields: plan.BackfilledFields,
	}

	if plan.IsNoop() {
		log.Info("squash is a no-op, all duplicates already squashed")
		return result, nil
	}

	if len(plan.DuplicateIDs) > 0 {
		repointed, err := store.RepointDependents(ctxTx, plan.MasterID, plan.DuplicateIDs)
		if err != nil {
			return nil, err
		}
		result.RepointedByType = repointed

		if err := store.MarkDuplicates(ctxTx, plan.MasterID, plan.DuplicateIDs); err != nil {
			return nil, err
		}
	}

	if len(plan.Backfill) > 0 {
		if err := store.UpdateFields(ctxTx, plan.MasterID, plan.Backfill); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctxTx); err != nil {
		return nil, err
	}

	log.WithFields(map[string]any{
		"repointed":        result.RepointedByType,
		"flattened_chains": result.FlattenedChains,
		"backfilled":       result.BackfilledFields,
	}).Info("squash complete")

	if e.emitter != nil {
		e.emitter.EmitRecordSquashed(ctx, result)
	}

	return result, nil
}

// buildPlan locks the affected rows, loads their current state, and validates
// the request into a Plan
func (e *Engine) buildPlan(ctx context.Context, store Store, masterID string, duplicateIDs []string) (*Plan, error) {
	ctx, span := tracing.StartSpan(ctx, "squash.Engine.buildPlan")
	defer span.End()

	allIDs := make([]string, 0, len(duplicateIDs)+1)
	allIDs = append(allIDs, masterID)
	allIDs = append(allIDs, duplicateIDs...)
	sort.Strings(allIDs)

	locked, err := store.LockRecords(ctx, allIDs)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]models.Record, len(locked))
	for _, r := range locked {
		byID[r.ID] = r
	}

	master, ok := byID[masterID]
	if !ok {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "master record '%s' not found", masterID)
	}

	duplicates := make([]models.Record, 0, len(duplicateIDs))
	seen := make(map[string]bool, len(duplicateIDs))
	for _, id := range duplicateIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		d, ok := byID[id]
		if !ok {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "duplicate record '%s' not found", id)
		}
		duplicates = append(duplicates, d)
	}

	batchIDs := make([]string, 0, len(duplicates))
	for _, d := range duplicates {
		batchIDs = append(batchIDs, d.ID)
	}

	pointers, err := store.FindDuplicatePointers(ctx, batchIDs)
	if err != nil {
		return nil, err
	}

	outside := make(map[string][]string, len(pointers))
	inBatch := func(id string) bool { return seen[id] }
	for dupID, pointerIDs := range pointers {
		for _, p := range pointerIDs {
			if !inBatch(p) && p != masterID {
				outside[dupID] = append(outside[dupID], p)
			}
		}
	}

	return BuildPlan(master, duplicates, outside)
}
