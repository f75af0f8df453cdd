package maintenance

import (
	"sort"
	"sync"

	"github.com/montanaflynn/stats"

	"github.com/fleetops/fleet-maintenance/internal/models"
)

// ComponentWildcard matches every component of an equipment when passed to
// MTBF or MTTR, for equipment-level reliability.
const ComponentWildcard = ""

// FailureLog is the append-only history of failure events, kept separate
// from the scheduling state and consumed only for reliability metrics.
type FailureLog struct {
	mu      sync.Mutex
	clock   Clock
	entries []models.FailureEvent
}

// NewFailureLog creates an empty failure log stamping entries with the
// given clock.
func NewFailureLog(clock Clock) *FailureLog {
	return &FailureLog{clock: clock}
}

// LogFailure appends a failure event stamped with the current time. Names
// are not validated against the fleet.
func (l *FailureLog) LogFailure(equipmentID, componentName, description string, repairTimeHours float64) models.FailureEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	event := models.FailureEvent{
		Timestamp:       l.clock.Now(),
		EquipmentID:     equipmentID,
		ComponentName:   componentName,
		Description:     description,
		RepairTimeHours: repairTimeHours,
	}
	l.entries = append(l.entries, event)
	return event
}

// RestoreEvent appends a persisted event during state load.
func (l *FailureLog) RestoreEvent(event models.FailureEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, event)
}

// Events returns a copy of the full failure history in insertion order.
func (l *FailureLog) Events() []models.FailureEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.FailureEvent(nil), l.entries...)
}

func (l *FailureLog) matching(equipmentID, componentName string) []models.FailureEvent {
	var out []models.FailureEvent
	for _, e := range l.entries {
		if e.EquipmentID != equipmentID {
			continue
		}
		if componentName != ComponentWildcard && e.ComponentName != componentName {
			continue
		}
		out = append(out, e)
	}
	return out
}

// MTBF computes the mean time between failures in hours for a component on
// an equipment, or across all its components when componentName is the
// wildcard. The second return value is false with fewer than two matching
// events.
func (l *FailureLog) MTBF(equipmentID, componentName string) (float64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	events := l.matching(equipmentID, componentName)
	if len(events) < 2 {
		return 0, false
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Timestamp.Before(events[j].Timestamp) })
	deltas := make([]float64, 0, len(events)-1)
	for i := 1; i < len(events); i++ {
		deltas = append(deltas, events[i].Timestamp.Sub(events[i-1].Timestamp).Hours())
	}
	mean, err := stats.Mean(deltas)
	if err != nil {
		return 0, false
	}
	return mean, true
}

// MTTR computes the mean repair time in hours across matching events. The
// second return value is false when no event matches.
func (l *FailureLog) MTTR(equipmentID, componentName string) (float64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	events := l.matching(equipmentID, componentName)
	if len(events) == 0 {
		return 0, false
	}
	repairs := make([]float64, 0, len(events))
	for _, e := range events {
		repairs = append(repairs, e.RepairTimeHours)
	}
	mean, err := stats.Mean(repairs)
	if err != nil {
		return 0, false
	}
	return mean, true
}
