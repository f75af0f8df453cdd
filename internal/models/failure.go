package models

import "time"

// FailureEvent is one entry in the append-only failure history. Equipment
// and component names are not validated against the fleet: failures are
// reported as free text from the field.
type FailureEvent struct {
	Timestamp       time.Time `bson:"timestamp" json:"timestamp"`
	EquipmentID     string    `bson:"equipment_id" json:"equipment_id"`
	ComponentName   string    `bson:"component_name" json:"component_name"`
	Description     string    `bson:"description" json:"description"`
	RepairTimeHours float64   `bson:"repair_time_hours" json:"repair_time_hours"`
}
