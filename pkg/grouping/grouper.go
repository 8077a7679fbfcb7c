package grouping

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/biximilien/Radiant-Sands/pkg/models"
	"github.com/biximilien/Radiant-Sands/pkg/tracing"
)

// CandidateLister provides the master records eligible for grouping.
// Records already marked as duplicates of another record are excluded
// at the source.
type CandidateLister interface {
	ListMasterCandidates(ctx context.Context, kind models.RecordKind, limit int) ([]models.GroupCandidate, error)
}

// Grouper buckets candidate records into duplicate groups by grouping key
type Grouper struct {
	venues CandidateLister
	events CandidateLister
	logger ectologger.Logger
}

// NewGrouper creates a Grouper backed by per-kind candidate sources
func NewGrouper(venues, events CandidateLister, logger ectologger.Logger) *Grouper {
	return &Grouper{
		venues: venues,
		events: events,
		logger: logger,
	}
}

// FindGroups lists grouping candidates for the kind and buckets them under
// the strategy's grouping key. Groups preserve candidate insertion order,
// singleton buckets are discarded, and unkeyable candidates are reported
// separately.
func (g *Grouper) FindGroups(ctx context.Context, kind models.RecordKind, strategy Strategy, limit int) (*models.GroupingResult, error) {
	ctx, span := tracing.StartSpan(ctx, "Grouper.FindGroups")
	defer span.End()

	lister := g.listerFor(kind)
	candidates, err := lister.ListMasterCandidates(ctx, kind, limit)
	if err != nil {
		g.logger.WithContext(ctx).WithError(err).Error("failed to list grouping candidates")
		return nil, err
	}

	result := &models.GroupingResult{
		Kind:     kind,
		Strategy: string(strategy),
		Groups:   []models.DuplicateGroup{},
	}

	buckets := make(map[string][]models.GroupCandidate)
	order := make([]string, 0)

	for _, candidate := range candidates {
		key := KeyFor(strategy, candidate)
		if key == "" {
			result.Ungroupable = append(result.Ungroupable, candidate)
			continue
		}

		if _, seen := buckets[key]; !seen {
			order = append(order, key)
		}
		buckets[key] = append(buckets[key], candidate)
	}

	for _, key := range order {
		members := buckets[key]
		if len(members) < 2 {
			continue
		}
		result.Groups = append(result.Groups, models.DuplicateGroup{
			Key:     key,
			Members: members,
		})
	}

	g.logger.WithContext(ctx).WithFields(map[string]any{
		"kind":        kind,
		"strategy":    strategy,
		"candidates":  len(candidates),
		"groups":      len(result.Groups),
		"ungroupable": len(result.Ungroupable),
	}).Info("grouping complete")

	return result, nil
}

func (g *Grouper) listerFor(kind models.RecordKind) CandidateLister {
	if kind == models.RecordKindEvent {
		return g.events
	}
	return g.venues
}
