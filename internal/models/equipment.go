package models

import (
	"errors"
	"time"
)

// ErrNegativeDelta is returned when a usage-counter update would move a
// monotonic counter backward.
var ErrNegativeDelta = errors.New("usage counter delta must be non-negative")

// EquipmentStatus represents the operational state of a fleet unit.
type EquipmentStatus string

const (
	StatusOperational    EquipmentStatus = "operational"
	StatusPendingRequest EquipmentStatus = "pending_request"
	StatusInMaintenance  EquipmentStatus = "in_maintenance"
)

// IsValidEquipmentStatus checks if an equipment status is valid
func IsValidEquipmentStatus(s EquipmentStatus) bool {
	switch s {
	case StatusOperational, StatusPendingRequest, StatusInMaintenance:
		return true
	default:
		return false
	}
}

// EligibleForScheduling reports whether equipment in this status should be
// evaluated by the due-maintenance scan. Units already flagged for or
// undergoing maintenance are not re-evaluated.
func (s EquipmentStatus) EligibleForScheduling() bool {
	switch s {
	case StatusOperational:
		return true
	case StatusPendingRequest, StatusInMaintenance:
		return false
	default:
		return false
	}
}

// Equipment represents a single fleet unit with its cumulative usage
// counters and the service history of its registered components.
type Equipment struct {
	ID          string                      `bson:"_id" json:"id"`
	Description string                      `bson:"description" json:"description"`
	Horometer   float64                     `bson:"horometer" json:"horometer"`
	Odometer    float64                     `bson:"odometer" json:"odometer"`
	Status      EquipmentStatus             `bson:"status" json:"status"`
	Components  map[string]*ComponentRecord `bson:"components" json:"components"`
}

// NewEquipment creates an operational fleet unit with zeroed counters.
func NewEquipment(id, description string) *Equipment {
	return &Equipment{
		ID:          id,
		Description: description,
		Status:      StatusOperational,
		Components:  make(map[string]*ComponentRecord),
	}
}

// RegisterComponent attaches a component to this equipment with its service
// baseline set to the current readings. Registering a name again replaces
// the previous record.
func (e *Equipment) RegisterComponent(c Component, serviceDate time.Time) *ComponentRecord {
	rec := &ComponentRecord{
		Component:        c,
		LastServiceDate:  serviceDate,
		LastServiceHours: e.Horometer,
		LastServiceKm:    e.Odometer,
	}
	e.Components[c.Name] = rec
	return rec
}

// RestoreComponent reinstates a component record with its persisted service
// history, used when loading state from the store.
func (e *Equipment) RestoreComponent(rec ComponentRecord) {
	copied := rec
	e.Components[rec.Component.Name] = &copied
}

// Clone returns a deep copy of the equipment, component records included,
// so callers can read it without holding the owning collection's lock.
func (e *Equipment) Clone() *Equipment {
	copied := *e
	copied.Components = make(map[string]*ComponentRecord, len(e.Components))
	for name, rec := range e.Components {
		r := *rec
		copied.Components[name] = &r
	}
	return &copied
}

// AddHours advances the horometer by a non-negative number of running hours.
func (e *Equipment) AddHours(delta float64) error {
	if delta < 0 {
		return ErrNegativeDelta
	}
	e.Horometer += delta
	return nil
}

// AddKilometers advances the odometer by a non-negative distance.
func (e *Equipment) AddKilometers(delta float64) error {
	if delta < 0 {
		return ErrNegativeDelta
	}
	e.Odometer += delta
	return nil
}
