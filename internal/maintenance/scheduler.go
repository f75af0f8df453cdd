package maintenance

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/fleetops/fleet-maintenance/internal/models"
)

var (
	// ErrEquipmentNotFound is returned when an operation targets an
	// equipment id that is not registered in the fleet.
	ErrEquipmentNotFound = errors.New("equipment not found")
	// ErrDuplicateEquipment is returned when registering an id twice.
	ErrDuplicateEquipment = errors.New("equipment already registered")
	// ErrOrderNotFound is returned when a lifecycle operation references an
	// unknown work order id.
	ErrOrderNotFound = errors.New("work order not found")
	// ErrRequestNotFound is returned when processing an unknown request id.
	ErrRequestNotFound = errors.New("work request not found")
	// ErrDuplicatePending is returned when creating an order would violate
	// the one-pending-order-per-component invariant.
	ErrDuplicatePending = errors.New("pending work order already exists for this equipment and component")
	// ErrInvalidCriticality is returned for a criticality outside the
	// closed high/medium/low set.
	ErrInvalidCriticality = errors.New("invalid criticality")
)

// Scheduler owns the fleet registry, the work-order collection and the
// request queue. It detects due maintenance, enforces the pending-order
// dedup invariant, and rebaselines component records on completion. All
// entry points hold the scheduler mutex: every one of them is a
// read-modify-write over the shared collections.
type Scheduler struct {
	mu       sync.Mutex
	fleet    map[string]*models.Equipment
	orders   []*models.WorkOrder
	requests []*models.WorkRequest
	clock    Clock
	ids      IDGenerator
}

// NewScheduler creates a scheduler with an empty fleet. The clock and id
// generator are injected so tests can fix time and identifiers.
func NewScheduler(clock Clock, ids IDGenerator) *Scheduler {
	return &Scheduler{
		fleet: make(map[string]*models.Equipment),
		clock: clock,
		ids:   ids,
	}
}

// RegisterEquipment adds a new fleet unit.
func (s *Scheduler) RegisterEquipment(id, description string) (*models.Equipment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.fleet[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateEquipment, id)
	}
	eq := models.NewEquipment(id, description)
	s.fleet[id] = eq
	log.WithFields(log.Fields{"equipment_id": id}).Info("Registered equipment")
	return eq.Clone(), nil
}

// RestoreEquipment reinstates a persisted fleet unit during state load,
// replacing any unit with the same id.
func (s *Scheduler) RestoreEquipment(eq *models.Equipment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fleet[eq.ID] = eq
}

// Equipment returns a deep copy of the fleet unit with the given id.
// Queries never hand out live state: the copies are safe to read and encode
// while other goroutines mutate the fleet under the scheduler mutex.
func (s *Scheduler) Equipment(id string) (*models.Equipment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	eq, ok := s.fleet[id]
	if !ok {
		return nil, false
	}
	return eq.Clone(), true
}

// Fleet returns a deep-copied snapshot of every registered fleet unit.
func (s *Scheduler) Fleet() []*models.Equipment {
	s.mu.Lock()
	defer s.mu.Unlock()
	units := make([]*models.Equipment, 0, len(s.fleet))
	for _, eq := range s.fleet {
		units = append(units, eq.Clone())
	}
	return units
}

// RegisterComponent attaches a component to an equipment with the service
// baseline anchored at the current readings and date.
func (s *Scheduler) RegisterComponent(equipmentID string, component models.Component) error {
	if !models.IsValidCriticality(component.Criticality) {
		return fmt.Errorf("%w: %q", ErrInvalidCriticality, component.Criticality)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	eq, ok := s.fleet[equipmentID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEquipmentNotFound, equipmentID)
	}
	eq.RegisterComponent(component, s.clock.Now())
	log.WithFields(log.Fields{
		"equipment_id": equipmentID,
		"component":    component.Name,
	}).Info("Registered component")
	return nil
}

// AddUsage advances an equipment's horometer and odometer by non-negative
// deltas from telemetry or checklist input.
func (s *Scheduler) AddUsage(equipmentID string, hoursDelta, kmDelta float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	eq, ok := s.fleet[equipmentID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEquipmentNotFound, equipmentID)
	}
	if err := eq.AddHours(hoursDelta); err != nil {
		return err
	}
	if err := eq.AddKilometers(kmDelta); err != nil {
		return err
	}
	return nil
}

// hasPendingLocked reports whether a pending order already exists for the
// (equipment, component) pair. Callers must hold the mutex.
func (s *Scheduler) hasPendingLocked(equipmentID, componentName string) bool {
	for _, order := range s.orders {
		if order.EquipmentID == equipmentID && order.ComponentName == componentName && order.Status == models.OrderPending {
			return true
		}
	}
	return false
}

func (s *Scheduler) newOrderLocked(equipmentID, componentName string, dueDate time.Time, reason string, classification models.Criticality) *models.WorkOrder {
	order := &models.WorkOrder{
		ID:             s.ids.NewID(),
		EquipmentID:    equipmentID,
		ComponentName:  componentName,
		DueDate:        dueDate,
		Reason:         reason,
		Classification: classification,
		Status:         models.OrderPending,
		CreatedAt:      s.clock.Now(),
		MaterialsUsed:  []string{},
	}
	s.orders = append(s.orders, order)
	return order
}

// CheckDueMaintenance scans every eligible fleet unit's component records
// and creates a pending work order for each newly due condition. Equipment
// already in maintenance or with a pending request is skipped, as is any
// (equipment, component) pair that already has a pending order. The return
// value is only the orders created by this invocation, so a repeat call on
// unchanged state returns an empty slice.
func (s *Scheduler) CheckDueMaintenance(referenceDate time.Time) []*models.WorkOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	var created []*models.WorkOrder
	for _, eq := range s.fleet {
		if !eq.Status.EligibleForScheduling() {
			continue
		}
		for _, rec := range eq.Components {
			due, reason := rec.IsDue(referenceDate, eq.Horometer, eq.Odometer)
			if !due {
				continue
			}
			if s.hasPendingLocked(eq.ID, rec.Component.Name) {
				continue
			}
			order := s.newOrderLocked(eq.ID, rec.Component.Name, referenceDate, reason, rec.Component.Criticality)
			created = append(created, order.Clone())
			log.WithFields(log.Fields{
				"order_id":     order.ID,
				"equipment_id": eq.ID,
				"component":    rec.Component.Name,
				"reason":       reason,
			}).Info("Scheduled maintenance order")
		}
	}
	return created
}

// CreateManualOrder creates an ad-hoc order outside due detection. It
// shares the pending dedup space and completion path with scheduled orders
// and flags the equipment as in maintenance.
func (s *Scheduler) CreateManualOrder(equipmentID, componentName string, classification models.Criticality, dueDate time.Time, reason string) (*models.WorkOrder, error) {
	if !models.IsValidCriticality(classification) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCriticality, classification)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	eq, ok := s.fleet[equipmentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEquipmentNotFound, equipmentID)
	}
	if s.hasPendingLocked(equipmentID, componentName) {
		return nil, ErrDuplicatePending
	}
	if reason == "" {
		reason = "manually scheduled maintenance"
	}
	order := s.newOrderLocked(equipmentID, componentName, dueDate, reason, classification)
	eq.Status = models.StatusInMaintenance
	log.WithFields(log.Fields{
		"order_id":     order.ID,
		"equipment_id": equipmentID,
		"component":    componentName,
	}).Info("Created manual order")
	return order.Clone(), nil
}

// SubmitRequest records a maintenance request from operations and takes the
// equipment out of the operational pool until it is triaged.
func (s *Scheduler) SubmitRequest(equipmentID, componentName string, classification models.Criticality, comments string, horometerReading float64, reportDate time.Time) (*models.WorkRequest, error) {
	if !models.IsValidCriticality(classification) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCriticality, classification)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	eq, ok := s.fleet[equipmentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEquipmentNotFound, equipmentID)
	}
	req := &models.WorkRequest{
		ID:               s.ids.NewID(),
		EquipmentID:      equipmentID,
		ComponentName:    componentName,
		Classification:   classification,
		Comments:         comments,
		HorometerReading: horometerReading,
		ReportDate:       reportDate,
		Status:           models.RequestPending,
		CreatedAt:        s.clock.Now(),
	}
	s.requests = append(s.requests, req)
	if eq.Status == models.StatusOperational {
		eq.Status = models.StatusPendingRequest
	}
	log.WithFields(log.Fields{
		"request_id":   req.ID,
		"equipment_id": equipmentID,
		"component":    componentName,
	}).Info("Submitted work request")
	return req.Clone(), nil
}

// ProcessRequest triages a pending request: reclassifies it, schedules a
// work order with the assigned due date, and moves the equipment into
// maintenance. The request is marked processed and never triaged again.
func (s *Scheduler) ProcessRequest(requestID string, classification models.Criticality, dueDate time.Time) (*models.WorkOrder, error) {
	if !models.IsValidCriticality(classification) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCriticality, classification)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var req *models.WorkRequest
	for _, r := range s.requests {
		if r.ID == requestID && r.Status == models.RequestPending {
			req = r
			break
		}
	}
	if req == nil {
		return nil, fmt.Errorf("%w: %s", ErrRequestNotFound, requestID)
	}
	if s.hasPendingLocked(req.EquipmentID, req.ComponentName) {
		return nil, ErrDuplicatePending
	}
	reason := fmt.Sprintf("operations request: %s", req.Comments)
	order := s.newOrderLocked(req.EquipmentID, req.ComponentName, dueDate, reason, classification)
	req.Status = models.RequestProcessed
	req.Classification = classification
	if eq, ok := s.fleet[req.EquipmentID]; ok {
		eq.Status = models.StatusInMaintenance
	}
	log.WithFields(log.Fields{
		"request_id": requestID,
		"order_id":   order.ID,
	}).Info("Processed work request")
	return order.Clone(), nil
}

// StartOrder moves a pending order into progress at the given time.
func (s *Scheduler) StartOrder(orderID string, startTime time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order := s.orderLocked(orderID)
	if order == nil {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	if err := transitionOrder(order, EventStart); err != nil {
		return err
	}
	order.StartTime = &startTime
	return nil
}

// CompleteOrder finalizes a work order: it records the completion time and
// materials used, rebaselines the component record to the equipment's
// readings at this moment, and returns the equipment to the operational
// pool. Counter usage accrued while the order was pending therefore counts
// toward the next interval. An order whose component name has no record on
// the equipment completes without rebaselining.
func (s *Scheduler) CompleteOrder(orderID string, completedAt time.Time, materialsUsed []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order := s.orderLocked(orderID)
	if order == nil {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	if err := transitionOrder(order, EventComplete); err != nil {
		return err
	}
	order.CompletedAt = &completedAt
	if len(materialsUsed) > 0 {
		order.MaterialsUsed = append(order.MaterialsUsed, materialsUsed...)
	}

	eq, ok := s.fleet[order.EquipmentID]
	if !ok {
		log.WithFields(log.Fields{
			"order_id":     orderID,
			"equipment_id": order.EquipmentID,
		}).Warn("Completed order for unknown equipment; no rebaseline")
		return nil
	}
	if rec, ok := eq.Components[order.ComponentName]; ok {
		rec.Rebaseline(completedAt, eq.Horometer, eq.Odometer)
	} else {
		log.WithFields(log.Fields{
			"order_id":     orderID,
			"equipment_id": order.EquipmentID,
			"component":    order.ComponentName,
		}).Warn("Completed order for unregistered component; no rebaseline")
	}
	eq.Status = models.StatusOperational
	log.WithFields(log.Fields{
		"order_id":     orderID,
		"equipment_id": order.EquipmentID,
	}).Info("Completed maintenance order")
	return nil
}

func (s *Scheduler) orderLocked(orderID string) *models.WorkOrder {
	for _, order := range s.orders {
		if order.ID == orderID {
			return order
		}
	}
	return nil
}

// Order returns a deep copy of the work order with the given id.
func (s *Scheduler) Order(orderID string) (*models.WorkOrder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order := s.orderLocked(orderID)
	if order == nil {
		return nil, false
	}
	return order.Clone(), true
}

// Orders returns a deep-copied snapshot of every work order in creation
// order, completed included.
func (s *Scheduler) Orders() []*models.WorkOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.WorkOrder, 0, len(s.orders))
	for _, order := range s.orders {
		out = append(out, order.Clone())
	}
	return out
}

// RestoreOrder reinstates a persisted order during state load.
func (s *Scheduler) RestoreOrder(order *models.WorkOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if order.MaterialsUsed == nil {
		order.MaterialsUsed = []string{}
	}
	s.orders = append(s.orders, order)
}

// PendingOrders lists deep copies of pending orders, optionally narrowed to
// one equipment and to orders due on or before a horizon date.
func (s *Scheduler) PendingOrders(equipmentID string, dueBefore *time.Time) []*models.WorkOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.WorkOrder
	for _, order := range s.orders {
		if order.Status != models.OrderPending {
			continue
		}
		if equipmentID != "" && order.EquipmentID != equipmentID {
			continue
		}
		if dueBefore != nil && order.DueDate.After(*dueBefore) {
			continue
		}
		out = append(out, order.Clone())
	}
	return out
}

// Requests returns a deep-copied snapshot of every work request in
// submission order.
func (s *Scheduler) Requests() []*models.WorkRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.WorkRequest, 0, len(s.requests))
	for _, req := range s.requests {
		out = append(out, req.Clone())
	}
	return out
}

// RestoreRequest reinstates a persisted request during state load.
func (s *Scheduler) RestoreRequest(req *models.WorkRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
}

// DueStatus describes one component's due evaluation for a fleet unit.
type DueStatus struct {
	ComponentName string `json:"component_name"`
	Due           bool   `json:"due"`
	Reason        string `json:"reason,omitempty"`
}

// ComponentDueStatus evaluates every component of one equipment against the
// reference date without creating orders.
func (s *Scheduler) ComponentDueStatus(equipmentID string, referenceDate time.Time) ([]DueStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	eq, ok := s.fleet[equipmentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEquipmentNotFound, equipmentID)
	}
	statuses := make([]DueStatus, 0, len(eq.Components))
	for _, rec := range eq.Components {
		due, reason := rec.IsDue(referenceDate, eq.Horometer, eq.Odometer)
		statuses = append(statuses, DueStatus{ComponentName: rec.Component.Name, Due: due, Reason: reason})
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].ComponentName < statuses[j].ComponentName })
	return statuses, nil
}
