// Package events handles event emission for listing record lifecycle changes
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"
	"github.com/biximilien/Radiant-Sands/pkg/fingerprint"
	"github.com/biximilien/Radiant-Sands/pkg/kafka"
	"github.com/biximilien/Radiant-Sands/pkg/models"
	"github.com/biximilien/Radiant-Sands/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Emitter publishes record lifecycle notifications. Emission is best-effort:
// a failed publish is logged but never fails the operation that triggered it.
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitVenueCreated emits a venue created event
func (e *Emitter) EmitVenueCreated(ctx context.Context, venue *models.Venue) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitVenueCreated")
	defer span.End()

	data, _ := json.Marshal(venue)

	e.publish(ctx, &kafka.RecordEvent{
		EventType:  "venue.created",
		RecordID:   venue.ID,
		RecordKind: string(models.RecordKindVenue),
		Data:       data,
	})
}

// EmitVenueUpdated emits a venue updated event
func (e *Emitter) EmitVenueUpdated(ctx context.Context, venue *models.Venue) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitVenueUpdated")
	defer span.End()

	data, _ := json.Marshal(venue)

	e.publish(ctx, &kafka.RecordEvent{
		EventType:  "venue.updated",
		RecordID:   venue.ID,
		RecordKind: string(models.RecordKindVenue),
		Data:       data,
	})
}

// EmitEventSaved emits a saved event for a new or updated event record
func (e *Emitter) EmitEventSaved(ctx context.Context, event *models.Event, isNew bool) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitEventSaved")
	defer span.End()

	eventType := "event.updated"
	if isNew {
		eventType = "event.created"
	}

	data, _ := json.Marshal(event)

	e.publish(ctx, &kafka.RecordEvent{
		EventType:      eventType,
		RecordID:       event.ID,
		RecordKind:     string(models.RecordKindEvent),
		OrganizationID: deref(event.OrganizationID),
		Data:           data,
	})
}

// EmitEventCloned emits an event cloned notification
func (e *Emitter) EmitEventCloned(ctx context.Context, clone *models.Event, sourceID string) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitEventCloned")
	defer span.End()

	payload := map[string]any{
		"schema_version": SchemaVersion,
		"source_id":      sourceID,
	}
	data, _ := json.Marshal(payload)

	e.publish(ctx, &kafka.RecordEvent{
		EventType:  "event.cloned",
		RecordID:   clone.ID,
		RecordKind: string(models.RecordKindEvent),
		Data:       data,
	})
}

// EmitRecordSquashed emits a consolidation event describing the squash outcome
func (e *Emitter) EmitRecordSquashed(ctx context.Context, result *models.SquashResult) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitRecordSquashed")
	defer span.End()

	payload := map[string]any{
		"schema_version":    SchemaVersion,
		"repointed_by_type": result.RepointedByType,
		"flattened_chains":  result.FlattenedChains,
		"backfilled_fields": result.BackfilledFields,
		"already_squashed":  result.AlreadySquashed,
	}
	data, _ := json.Marshal(payload)

	e.publish(ctx, &kafka.RecordEvent{
		EventType:    "record.squashed",
		RecordID:     result.MasterID,
		RecordKind:   string(result.Kind),
		DuplicateIDs: result.DuplicateIDs,
		Data:         data,
	})
}

func (e *Emitter) publish(ctx context.Context, event *kafka.RecordEvent) {
	if e.producer == nil {
		return
	}
	if len(event.Data) > 0 {
		// consumers use the digest to drop replays
		if digest, err := fingerprint.FromJSON(event.Data); err == nil {
			event.PayloadFingerprint = digest
		}
	}
	if err := e.producer.PublishRecordEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"event_type": event.EventType,
			"record_id":  event.RecordID,
		}).Error("Failed to emit record event")
	}
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
