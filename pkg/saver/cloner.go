package saver

import (
	"time"

	"github.com/biximilien/Radiant-Sands/pkg/models"
)

// Clone copies an event's descriptive attributes into a fresh, unsaved
// event. Identity, timestamps, lock state, and the duplicate relationship
// are not carried over: a clone is always an independent master record the
// caller can edit before persisting.
func Clone(source *models.Event) *models.Event {
	clone := &models.Event{
		Title:        source.Title,
		StartTime:    source.StartTime,
		Description:  copyString(source.Description),
		EndTime:      copyTime(source.EndTime),
		URL:          copyString(source.URL),
		VenueID:      copyString(source.VenueID),
		VenueDetails: copyString(source.VenueDetails),
	}
	return clone
}

func copyString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
