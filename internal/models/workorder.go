package models

import "time"

// OrderStatus represents the lifecycle state of a work order.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderInProgress OrderStatus = "in_progress"
	OrderCompleted  OrderStatus = "completed"
)

// IsValidOrderStatus checks if an order status is valid
func IsValidOrderStatus(s OrderStatus) bool {
	switch s {
	case OrderPending, OrderInProgress, OrderCompleted:
		return true
	default:
		return false
	}
}

// WorkOrder is a unit of scheduled or ad-hoc maintenance work. Orders are
// never deleted, only transitioned through pending, in_progress and
// completed. MaterialsUsed is always non-nil so consumers never need to
// guard against a missing field.
type WorkOrder struct {
	ID             string      `bson:"_id" json:"id"`
	EquipmentID    string      `bson:"equipment_id" json:"equipment_id"`
	ComponentName  string      `bson:"component_name" json:"component_name"`
	DueDate        time.Time   `bson:"due_date" json:"due_date"`
	Reason         string      `bson:"reason" json:"reason"`
	Classification Criticality `bson:"classification,omitempty" json:"classification,omitempty"`
	Status         OrderStatus `bson:"status" json:"status"`
	CreatedAt      time.Time   `bson:"created_at" json:"created_at"`
	StartTime      *time.Time  `bson:"start_time,omitempty" json:"start_time,omitempty"`
	CompletedAt    *time.Time  `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
	MaterialsUsed  []string    `bson:"materials_used" json:"materials_used"`
}

// Clone returns a deep copy of the work order so callers can read it
// without holding the owning collection's lock.
func (o *WorkOrder) Clone() *WorkOrder {
	copied := *o
	if o.StartTime != nil {
		t := *o.StartTime
		copied.StartTime = &t
	}
	if o.CompletedAt != nil {
		t := *o.CompletedAt
		copied.CompletedAt = &t
	}
	copied.MaterialsUsed = make([]string, len(o.MaterialsUsed))
	copy(copied.MaterialsUsed, o.MaterialsUsed)
	return &copied
}

// RequestStatus represents the state of an operations work request.
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestProcessed RequestStatus = "processed"
)

// WorkRequest is a maintenance request reported by operations before triage.
// The component name is free text: requests may describe parts that have no
// registered ComponentRecord.
type WorkRequest struct {
	ID               string        `bson:"_id" json:"id"`
	EquipmentID      string        `bson:"equipment_id" json:"equipment_id"`
	ComponentName    string        `bson:"component_name" json:"component_name"`
	Classification   Criticality   `bson:"classification" json:"classification"`
	Comments         string        `bson:"comments" json:"comments"`
	HorometerReading float64       `bson:"horometer_reading" json:"horometer_reading"`
	ReportDate       time.Time     `bson:"report_date" json:"report_date"`
	Status           RequestStatus `bson:"status" json:"status"`
	CreatedAt        time.Time     `bson:"created_at" json:"created_at"`
}

// Clone returns a copy of the work request.
func (r *WorkRequest) Clone() *WorkRequest {
	copied := *r
	return &copied
}
