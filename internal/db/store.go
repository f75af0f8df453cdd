package db

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/fleetops/fleet-maintenance/internal/maintenance"
	"github.com/fleetops/fleet-maintenance/internal/models"
)

// Collection names for the persisted state collections.
const (
	CollEquipment = "equipment"
	CollInventory = "inventory"
	CollOrders    = "work_orders"
	CollRequests  = "work_requests"
	CollFailures  = "failures"
)

// Snapshot is the full engine state handed to and restored from the store.
type Snapshot struct {
	Equipment []*models.Equipment
	Parts     []maintenance.PartStatus
	Orders    []*models.WorkOrder
	Requests  []*models.WorkRequest
	Failures  []models.FailureEvent
}

// StateStore persists and restores the engine state. Callers invoke Save
// synchronously after a mutation (write-through); a Save failure must not
// roll back the in-memory mutation.
type StateStore interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context) (*Snapshot, error)
}

// Persisted document shapes. Dates and timestamps are stored as ISO-8601
// strings to match the on-disk contract of the state document.

type componentDoc struct {
	Name             string   `bson:"name"`
	Criticality      string   `bson:"criticality"`
	HoursInterval    *float64 `bson:"hours_interval,omitempty"`
	KmInterval       *float64 `bson:"km_interval,omitempty"`
	DaysInterval     *int     `bson:"days_interval,omitempty"`
	LastServiceDate  string   `bson:"last_service_date"`
	LastServiceHours float64  `bson:"last_service_hours"`
	LastServiceKm    float64  `bson:"last_service_km"`
}

type equipmentDoc struct {
	ID          string         `bson:"_id"`
	Description string         `bson:"description"`
	Horometer   float64        `bson:"horometer"`
	Odometer    float64        `bson:"odometer"`
	Status      string         `bson:"status"`
	Components  []componentDoc `bson:"components"`
}

type partDoc struct {
	Name           string   `bson:"_id"`
	Stock          int      `bson:"stock"`
	Minimum        int      `bson:"min_stock"`
	FitsComponents []string `bson:"fits_components"`
}

type workOrderDoc struct {
	ID             string   `bson:"_id"`
	EquipmentID    string   `bson:"equipment_id"`
	ComponentName  string   `bson:"component_name"`
	DueDate        string   `bson:"due_date"`
	Reason         string   `bson:"reason"`
	Classification string   `bson:"classification,omitempty"`
	Status         string   `bson:"status"`
	CreatedAt      string   `bson:"created_at"`
	StartTime      *string  `bson:"start_time,omitempty"`
	CompletedAt    *string  `bson:"completed_at,omitempty"`
	MaterialsUsed  []string `bson:"materials_used"`
}

type workRequestDoc struct {
	ID               string  `bson:"_id"`
	EquipmentID      string  `bson:"equipment_id"`
	ComponentName    string  `bson:"component_name"`
	Classification   string  `bson:"classification"`
	Comments         string  `bson:"comments"`
	HorometerReading float64 `bson:"horometer_reading"`
	ReportDate       string  `bson:"report_date"`
	Status           string  `bson:"status"`
	CreatedAt        string  `bson:"created_at"`
}

type failureDoc struct {
	Timestamp       string  `bson:"timestamp"`
	EquipmentID     string  `bson:"equipment_id"`
	ComponentName   string  `bson:"component_name"`
	Description     string  `bson:"description"`
	RepairTimeHours float64 `bson:"repair_time_hours"`
}

func formatTime(t time.Time) string { return t.Format(time.RFC3339Nano) }

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func parseTime(s string) (time.Time, error) { return time.Parse(time.RFC3339Nano, s) }

func parseTimePtr(s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	t, err := parseTime(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func encodeEquipment(eq *models.Equipment) equipmentDoc {
	doc := equipmentDoc{
		ID:          eq.ID,
		Description: eq.Description,
		Horometer:   eq.Horometer,
		Odometer:    eq.Odometer,
		Status:      string(eq.Status),
		Components:  []componentDoc{},
	}
	for _, rec := range eq.Components {
		doc.Components = append(doc.Components, componentDoc{
			Name:             rec.Component.Name,
			Criticality:      string(rec.Component.Criticality),
			HoursInterval:    rec.Component.HoursInterval,
			KmInterval:       rec.Component.KmInterval,
			DaysInterval:     rec.Component.DaysInterval,
			LastServiceDate:  formatTime(rec.LastServiceDate),
			LastServiceHours: rec.LastServiceHours,
			LastServiceKm:    rec.LastServiceKm,
		})
	}
	return doc
}

// decodeEquipment rebuilds a fleet unit. Component records with an
// unparsable last-service date are skipped so one bad record does not take
// the whole unit down.
func decodeEquipment(doc equipmentDoc) *models.Equipment {
	eq := models.NewEquipment(doc.ID, doc.Description)
	eq.Horometer = doc.Horometer
	eq.Odometer = doc.Odometer
	status := models.EquipmentStatus(doc.Status)
	if models.IsValidEquipmentStatus(status) {
		eq.Status = status
	}
	for _, c := range doc.Components {
		serviceDate, err := parseTime(c.LastServiceDate)
		if err != nil {
			log.WithFields(log.Fields{
				"equipment_id": doc.ID,
				"component":    c.Name,
			}).Warn("Skipping component record with unparsable last-service date")
			continue
		}
		eq.RestoreComponent(models.ComponentRecord{
			Component: models.Component{
				Name:          c.Name,
				Criticality:   models.Criticality(c.Criticality),
				HoursInterval: c.HoursInterval,
				KmInterval:    c.KmInterval,
				DaysInterval:  c.DaysInterval,
			},
			LastServiceDate:  serviceDate,
			LastServiceHours: c.LastServiceHours,
			LastServiceKm:    c.LastServiceKm,
		})
	}
	return eq
}

func encodeOrder(order *models.WorkOrder) workOrderDoc {
	materials := order.MaterialsUsed
	if materials == nil {
		materials = []string{}
	}
	return workOrderDoc{
		ID:             order.ID,
		EquipmentID:    order.EquipmentID,
		ComponentName:  order.ComponentName,
		DueDate:        formatTime(order.DueDate),
		Reason:         order.Reason,
		Classification: string(order.Classification),
		Status:         string(order.Status),
		CreatedAt:      formatTime(order.CreatedAt),
		StartTime:      formatTimePtr(order.StartTime),
		CompletedAt:    formatTimePtr(order.CompletedAt),
		MaterialsUsed:  materials,
	}
}

func decodeOrder(doc workOrderDoc) (*models.WorkOrder, error) {
	dueDate, err := parseTime(doc.DueDate)
	if err != nil {
		return nil, err
	}
	createdAt, err := parseTime(doc.CreatedAt)
	if err != nil {
		return nil, err
	}
	startTime, err := parseTimePtr(doc.StartTime)
	if err != nil {
		return nil, err
	}
	completedAt, err := parseTimePtr(doc.CompletedAt)
	if err != nil {
		return nil, err
	}
	materials := doc.MaterialsUsed
	if materials == nil {
		materials = []string{}
	}
	return &models.WorkOrder{
		ID:             doc.ID,
		EquipmentID:    doc.EquipmentID,
		ComponentName:  doc.ComponentName,
		DueDate:        dueDate,
		Reason:         doc.Reason,
		Classification: models.Criticality(doc.Classification),
		Status:         models.OrderStatus(doc.Status),
		CreatedAt:      createdAt,
		StartTime:      startTime,
		CompletedAt:    completedAt,
		MaterialsUsed:  materials,
	}, nil
}

func encodeRequest(req *models.WorkRequest) workRequestDoc {
	return workRequestDoc{
		ID:               req.ID,
		EquipmentID:      req.EquipmentID,
		ComponentName:    req.ComponentName,
		Classification:   string(req.Classification),
		Comments:         req.Comments,
		HorometerReading: req.HorometerReading,
		ReportDate:       formatTime(req.ReportDate),
		Status:           string(req.Status),
		CreatedAt:        formatTime(req.CreatedAt),
	}
}

func decodeRequest(doc workRequestDoc) (*models.WorkRequest, error) {
	reportDate, err := parseTime(doc.ReportDate)
	if err != nil {
		return nil, err
	}
	createdAt, err := parseTime(doc.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &models.WorkRequest{
		ID:               doc.ID,
		EquipmentID:      doc.EquipmentID,
		ComponentName:    doc.ComponentName,
		Classification:   models.Criticality(doc.Classification),
		Comments:         doc.Comments,
		HorometerReading: doc.HorometerReading,
		ReportDate:       reportDate,
		Status:           models.RequestStatus(doc.Status),
		CreatedAt:        createdAt,
	}, nil
}

func encodeFailure(event models.FailureEvent) failureDoc {
	return failureDoc{
		Timestamp:       formatTime(event.Timestamp),
		EquipmentID:     event.EquipmentID,
		ComponentName:   event.ComponentName,
		Description:     event.Description,
		RepairTimeHours: event.RepairTimeHours,
	}
}

func decodeFailure(doc failureDoc) (models.FailureEvent, error) {
	ts, err := parseTime(doc.Timestamp)
	if err != nil {
		return models.FailureEvent{}, err
	}
	return models.FailureEvent{
		Timestamp:       ts,
		EquipmentID:     doc.EquipmentID,
		ComponentName:   doc.ComponentName,
		Description:     doc.Description,
		RepairTimeHours: doc.RepairTimeHours,
	}, nil
}

// MongoStateStore persists the engine state into one MongoDB database,
// one collection per top-level state collection.
type MongoStateStore struct {
	Database *mongo.Database
}

// NewMongoStateStore creates a store over the given database.
func NewMongoStateStore(database *mongo.Database) *MongoStateStore {
	return &MongoStateStore{Database: database}
}

func replaceAll[T any](ctx context.Context, coll *mongo.Collection, docs []T) error {
	if _, err := coll.DeleteMany(ctx, bson.M{}); err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}
	payload := make([]interface{}, 0, len(docs))
	for _, d := range docs {
		payload = append(payload, d)
	}
	_, err := coll.InsertMany(ctx, payload)
	return err
}

// Save replaces every state collection with the snapshot contents.
func (s *MongoStateStore) Save(ctx context.Context, snap Snapshot) error {
	equipment := make([]equipmentDoc, 0, len(snap.Equipment))
	for _, eq := range snap.Equipment {
		equipment = append(equipment, encodeEquipment(eq))
	}
	if err := replaceAll(ctx, s.Database.Collection(CollEquipment), equipment); err != nil {
		return err
	}

	parts := make([]partDoc, 0, len(snap.Parts))
	for _, p := range snap.Parts {
		parts = append(parts, partDoc{Name: p.Name, Stock: p.Stock, Minimum: p.Minimum, FitsComponents: p.FitsComponents})
	}
	if err := replaceAll(ctx, s.Database.Collection(CollInventory), parts); err != nil {
		return err
	}

	orders := make([]workOrderDoc, 0, len(snap.Orders))
	for _, o := range snap.Orders {
		orders = append(orders, encodeOrder(o))
	}
	if err := replaceAll(ctx, s.Database.Collection(CollOrders), orders); err != nil {
		return err
	}

	requests := make([]workRequestDoc, 0, len(snap.Requests))
	for _, r := range snap.Requests {
		requests = append(requests, encodeRequest(r))
	}
	if err := replaceAll(ctx, s.Database.Collection(CollRequests), requests); err != nil {
		return err
	}

	failures := make([]failureDoc, 0, len(snap.Failures))
	for _, f := range snap.Failures {
		failures = append(failures, encodeFailure(f))
	}
	return replaceAll(ctx, s.Database.Collection(CollFailures), failures)
}

func loadAll[T any](ctx context.Context, coll *mongo.Collection) ([]T, error) {
	cursor, err := coll.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var docs []T
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// Load restores a snapshot from the state collections. Records that fail
// to decode are skipped with a warning, preserving partial availability of
// the fleet data.
func (s *MongoStateStore) Load(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}

	equipmentDocs, err := loadAll[equipmentDoc](ctx, s.Database.Collection(CollEquipment))
	if err != nil {
		return nil, err
	}
	for _, doc := range equipmentDocs {
		snap.Equipment = append(snap.Equipment, decodeEquipment(doc))
	}

	partDocs, err := loadAll[partDoc](ctx, s.Database.Collection(CollInventory))
	if err != nil {
		return nil, err
	}
	for _, doc := range partDocs {
		snap.Parts = append(snap.Parts, maintenance.PartStatus{
			Name:           doc.Name,
			Stock:          doc.Stock,
			Minimum:        doc.Minimum,
			FitsComponents: doc.FitsComponents,
		})
	}

	orderDocs, err := loadAll[workOrderDoc](ctx, s.Database.Collection(CollOrders))
	if err != nil {
		return nil, err
	}
	for _, doc := range orderDocs {
		order, err := decodeOrder(doc)
		if err != nil {
			log.WithFields(log.Fields{"order_id": doc.ID}).Warn("Skipping work order with unparsable dates")
			continue
		}
		snap.Orders = append(snap.Orders, order)
	}

	requestDocs, err := loadAll[workRequestDoc](ctx, s.Database.Collection(CollRequests))
	if err != nil {
		return nil, err
	}
	for _, doc := range requestDocs {
		req, err := decodeRequest(doc)
		if err != nil {
			log.WithFields(log.Fields{"request_id": doc.ID}).Warn("Skipping work request with unparsable dates")
			continue
		}
		snap.Requests = append(snap.Requests, req)
	}

	failureDocs, err := loadAll[failureDoc](ctx, s.Database.Collection(CollFailures))
	if err != nil {
		return nil, err
	}
	for _, doc := range failureDocs {
		event, err := decodeFailure(doc)
		if err != nil {
			log.WithFields(log.Fields{"equipment_id": doc.EquipmentID}).Warn("Skipping failure event with unparsable timestamp")
			continue
		}
		snap.Failures = append(snap.Failures, event)
	}

	return snap, nil
}
