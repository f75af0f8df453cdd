package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/looplab/fsm"
	log "github.com/sirupsen/logrus"

	"github.com/fleetops/fleet-maintenance/internal/db"
	"github.com/fleetops/fleet-maintenance/internal/maintenance"
	"github.com/fleetops/fleet-maintenance/internal/models"
)

// MaintenanceHandler exposes the maintenance engine over HTTP. Every
// mutating endpoint writes the full state through to the store after the
// in-memory mutation; store failures are logged and swallowed, never rolled
// back into the engine.
type MaintenanceHandler struct {
	scheduler *maintenance.Scheduler
	inventory *maintenance.Inventory
	failures  *maintenance.FailureLog
	store     db.StateStore
	clock     maintenance.Clock
}

// NewMaintenanceHandler creates a handler over the engine collaborators.
// The store may be nil, disabling persistence.
func NewMaintenanceHandler(scheduler *maintenance.Scheduler, inventory *maintenance.Inventory, failures *maintenance.FailureLog, store db.StateStore, clock maintenance.Clock) *MaintenanceHandler {
	return &MaintenanceHandler{
		scheduler: scheduler,
		inventory: inventory,
		failures:  failures,
		store:     store,
		clock:     clock,
	}
}

// Routes builds the API router.
func (h *MaintenanceHandler) Routes() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/equipment", h.RegisterEquipment).Methods(http.MethodPost)
	api.HandleFunc("/equipment", h.ListEquipment).Methods(http.MethodGet)
	api.HandleFunc("/equipment/{id}", h.GetEquipment).Methods(http.MethodGet)
	api.HandleFunc("/equipment/{id}/components", h.RegisterComponent).Methods(http.MethodPost)
	api.HandleFunc("/equipment/{id}/usage", h.AddUsage).Methods(http.MethodPost)
	api.HandleFunc("/equipment/{id}/due", h.ComponentDueStatus).Methods(http.MethodGet)
	api.HandleFunc("/fleet/summary", h.FleetSummary).Methods(http.MethodGet)

	api.HandleFunc("/maintenance/check", h.CheckDueMaintenance).Methods(http.MethodPost)
	api.HandleFunc("/orders", h.CreateManualOrder).Methods(http.MethodPost)
	api.HandleFunc("/orders", h.ListPendingOrders).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}", h.GetOrder).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}/start", h.StartOrder).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}/complete", h.CompleteOrder).Methods(http.MethodPost)

	api.HandleFunc("/requests", h.SubmitRequest).Methods(http.MethodPost)
	api.HandleFunc("/requests", h.ListRequests).Methods(http.MethodGet)
	api.HandleFunc("/requests/{id}/process", h.ProcessRequest).Methods(http.MethodPost)

	api.HandleFunc("/inventory/parts", h.AddPart).Methods(http.MethodPost)
	api.HandleFunc("/inventory/parts", h.ListParts).Methods(http.MethodGet)
	api.HandleFunc("/inventory/parts/{name}/reserve", h.ReservePart).Methods(http.MethodPost)
	api.HandleFunc("/inventory/parts/{name}/adjust", h.AdjustStock).Methods(http.MethodPost)
	api.HandleFunc("/inventory/parts/{name}", h.GetStock).Methods(http.MethodGet)
	api.HandleFunc("/inventory/low-stock", h.LowStock).Methods(http.MethodGet)
	api.HandleFunc("/components/{name}/parts", h.PartsForComponent).Methods(http.MethodGet)

	api.HandleFunc("/failures", h.LogFailure).Methods(http.MethodPost)
	api.HandleFunc("/failures", h.ListFailures).Methods(http.MethodGet)
	api.HandleFunc("/metrics/reliability", h.Reliability).Methods(http.MethodGet)

	return r
}

func (h *MaintenanceHandler) persist(r *http.Request) {
	if h.store == nil {
		return
	}
	snap := db.Snapshot{
		Equipment: h.scheduler.Fleet(),
		Parts:     h.inventory.Parts(),
		Orders:    h.scheduler.Orders(),
		Requests:  h.scheduler.Requests(),
		Failures:  h.failures.Events(),
	}
	if err := h.store.Save(r.Context(), snap); err != nil {
		log.WithError(err).Warn("Failed to persist maintenance state")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

// decodeOptionalBody decodes the body when one is present. ContentLength is
// -1 for chunked requests, so only a known-empty body skips decoding.
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.ContentLength == 0 {
		return true
	}
	return decodeBody(w, r, v)
}

func statusFromError(err error) int {
	var invalidEvent fsm.InvalidEventError
	switch {
	case errors.Is(err, maintenance.ErrEquipmentNotFound),
		errors.Is(err, maintenance.ErrOrderNotFound),
		errors.Is(err, maintenance.ErrRequestNotFound):
		return http.StatusNotFound
	case errors.Is(err, maintenance.ErrDuplicatePending),
		errors.Is(err, maintenance.ErrDuplicateEquipment),
		errors.As(err, &invalidEvent):
		return http.StatusConflict
	case errors.Is(err, maintenance.ErrInvalidCriticality),
		errors.Is(err, models.ErrNegativeDelta):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// parseDate accepts RFC3339 timestamps or plain dates; an empty value
// falls back to the handler clock.
func (h *MaintenanceHandler) parseDate(value string) (time.Time, error) {
	if value == "" {
		return h.clock.Now(), nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", value)
}

// RegisterEquipment adds a fleet unit.
func (h *MaintenanceHandler) RegisterEquipment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID          string `json:"id"`
		Description string `json:"description"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ID == "" {
		http.Error(w, "Equipment id is required", http.StatusBadRequest)
		return
	}
	eq, err := h.scheduler.RegisterEquipment(req.ID, req.Description)
	if err != nil {
		http.Error(w, err.Error(), statusFromError(err))
		return
	}
	h.persist(r)
	writeJSON(w, http.StatusCreated, eq)
}

// ListEquipment returns the whole fleet.
func (h *MaintenanceHandler) ListEquipment(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.scheduler.Fleet())
}

// GetEquipment returns one fleet unit.
func (h *MaintenanceHandler) GetEquipment(w http.ResponseWriter, r *http.Request) {
	eq, ok := h.scheduler.Equipment(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "Equipment not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, eq)
}

// RegisterComponent attaches a component to a fleet unit.
func (h *MaintenanceHandler) RegisterComponent(w http.ResponseWriter, r *http.Request) {
	var req models.Component
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		http.Error(w, "Component name is required", http.StatusBadRequest)
		return
	}
	if err := h.scheduler.RegisterComponent(mux.Vars(r)["id"], req); err != nil {
		http.Error(w, err.Error(), statusFromError(err))
		return
	}
	h.persist(r)
	w.WriteHeader(http.StatusCreated)
}

// AddUsage advances a fleet unit's usage counters.
func (h *MaintenanceHandler) AddUsage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		HoursDelta float64 `json:"hours_delta"`
		KmDelta    float64 `json:"km_delta"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.scheduler.AddUsage(mux.Vars(r)["id"], req.HoursDelta, req.KmDelta); err != nil {
		http.Error(w, err.Error(), statusFromError(err))
		return
	}
	h.persist(r)
	w.WriteHeader(http.StatusOK)
}

// ComponentDueStatus evaluates due detection for one unit without creating
// orders.
func (h *MaintenanceHandler) ComponentDueStatus(w http.ResponseWriter, r *http.Request) {
	referenceDate, err := h.parseDate(r.URL.Query().Get("reference_date"))
	if err != nil {
		http.Error(w, "Invalid reference_date", http.StatusBadRequest)
		return
	}
	statuses, err := h.scheduler.ComponentDueStatus(mux.Vars(r)["id"], referenceDate)
	if err != nil {
		http.Error(w, err.Error(), statusFromError(err))
		return
	}
	writeJSON(w, http.StatusOK, statuses)
}

// FleetSummaryResponse aggregates fleet counts for dashboards.
type FleetSummaryResponse struct {
	Total         int `json:"total"`
	Operational   int `json:"operational"`
	DueSoon       int `json:"due_soon"`
	InMaintenance int `json:"in_maintenance"`
}

// FleetSummary derives fleet-level counts from the core entities. A unit
// with an untriaged request is not counted as operational even before its
// status flips.
func (h *MaintenanceHandler) FleetSummary(w http.ResponseWriter, r *http.Request) {
	horizonDays := 7
	if v := r.URL.Query().Get("horizon_days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			http.Error(w, "Invalid horizon_days", http.StatusBadRequest)
			return
		}
		horizonDays = parsed
	}

	pendingRequestIDs := make(map[string]bool)
	for _, req := range h.scheduler.Requests() {
		if req.Status == models.RequestPending {
			pendingRequestIDs[req.EquipmentID] = true
		}
	}

	summary := FleetSummaryResponse{}
	for _, eq := range h.scheduler.Fleet() {
		summary.Total++
		if eq.Status == models.StatusOperational && !pendingRequestIDs[eq.ID] {
			summary.Operational++
		}
		if eq.Status == models.StatusInMaintenance {
			summary.InMaintenance++
		}
	}

	horizon := h.clock.Now().AddDate(0, 0, horizonDays)
	summary.DueSoon = len(h.scheduler.PendingOrders("", &horizon))
	writeJSON(w, http.StatusOK, summary)
}

// CheckDueMaintenance runs the due scan and returns only the orders created
// by this invocation.
func (h *MaintenanceHandler) CheckDueMaintenance(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ReferenceDate string `json:"reference_date"`
	}
	if !decodeOptionalBody(w, r, &req) {
		return
	}
	referenceDate, err := h.parseDate(req.ReferenceDate)
	if err != nil {
		http.Error(w, "Invalid reference_date", http.StatusBadRequest)
		return
	}
	created := h.scheduler.CheckDueMaintenance(referenceDate)
	if len(created) > 0 {
		h.persist(r)
	}
	if created == nil {
		created = []*models.WorkOrder{}
	}
	writeJSON(w, http.StatusOK, created)
}

// CreateManualOrder creates an ad-hoc work order.
func (h *MaintenanceHandler) CreateManualOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EquipmentID    string             `json:"equipment_id"`
		ComponentName  string             `json:"component_name"`
		Classification models.Criticality `json:"classification"`
		DueDate        string             `json:"due_date"`
		Reason         string             `json:"reason"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	dueDate, err := h.parseDate(req.DueDate)
	if err != nil {
		http.Error(w, "Invalid due_date", http.StatusBadRequest)
		return
	}
	order, err := h.scheduler.CreateManualOrder(req.EquipmentID, req.ComponentName, req.Classification, dueDate, req.Reason)
	if err != nil {
		http.Error(w, err.Error(), statusFromError(err))
		return
	}
	h.persist(r)
	writeJSON(w, http.StatusCreated, order)
}

// ListPendingOrders lists pending orders filtered by equipment and horizon.
func (h *MaintenanceHandler) ListPendingOrders(w http.ResponseWriter, r *http.Request) {
	var dueBefore *time.Time
	if v := r.URL.Query().Get("due_within_days"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days < 0 {
			http.Error(w, "Invalid due_within_days", http.StatusBadRequest)
			return
		}
		horizon := h.clock.Now().AddDate(0, 0, days)
		dueBefore = &horizon
	}
	orders := h.scheduler.PendingOrders(r.URL.Query().Get("equipment_id"), dueBefore)
	if orders == nil {
		orders = []*models.WorkOrder{}
	}
	writeJSON(w, http.StatusOK, orders)
}

// GetOrder returns one work order.
func (h *MaintenanceHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := h.scheduler.Order(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "Work order not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// StartOrder moves an order into progress.
func (h *MaintenanceHandler) StartOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StartTime string `json:"start_time"`
	}
	if !decodeOptionalBody(w, r, &req) {
		return
	}
	startTime, err := h.parseDate(req.StartTime)
	if err != nil {
		http.Error(w, "Invalid start_time", http.StatusBadRequest)
		return
	}
	if err := h.scheduler.StartOrder(mux.Vars(r)["id"], startTime); err != nil {
		http.Error(w, err.Error(), statusFromError(err))
		return
	}
	h.persist(r)
	w.WriteHeader(http.StatusOK)
}

// CompleteOrder finalizes an order with its materials.
func (h *MaintenanceHandler) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CompletedAt   string   `json:"completed_at"`
		MaterialsUsed []string `json:"materials_used"`
	}
	if !decodeOptionalBody(w, r, &req) {
		return
	}
	completedAt, err := h.parseDate(req.CompletedAt)
	if err != nil {
		http.Error(w, "Invalid completed_at", http.StatusBadRequest)
		return
	}
	if err := h.scheduler.CompleteOrder(mux.Vars(r)["id"], completedAt, req.MaterialsUsed); err != nil {
		http.Error(w, err.Error(), statusFromError(err))
		return
	}
	h.persist(r)
	w.WriteHeader(http.StatusOK)
}

// SubmitRequest records an operations maintenance request.
func (h *MaintenanceHandler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EquipmentID      string             `json:"equipment_id"`
		ComponentName    string             `json:"component_name"`
		Classification   models.Criticality `json:"classification"`
		Comments         string             `json:"comments"`
		HorometerReading float64            `json:"horometer_reading"`
		ReportDate       string             `json:"report_date"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	reportDate, err := h.parseDate(req.ReportDate)
	if err != nil {
		http.Error(w, "Invalid report_date", http.StatusBadRequest)
		return
	}
	request, err := h.scheduler.SubmitRequest(req.EquipmentID, req.ComponentName, req.Classification, req.Comments, req.HorometerReading, reportDate)
	if err != nil {
		http.Error(w, err.Error(), statusFromError(err))
		return
	}
	h.persist(r)
	writeJSON(w, http.StatusCreated, request)
}

// ListRequests returns every work request.
func (h *MaintenanceHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	requests := h.scheduler.Requests()
	if requests == nil {
		requests = []*models.WorkRequest{}
	}
	writeJSON(w, http.StatusOK, requests)
}

// ProcessRequest triages a request into a work order. The reported failure
// enters the failure history with zero repair time; the repair duration is
// captured later when the order completes.
func (h *MaintenanceHandler) ProcessRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Classification models.Criticality `json:"classification"`
		DueDate        string             `json:"due_date"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	dueDate, err := h.parseDate(req.DueDate)
	if err != nil {
		http.Error(w, "Invalid due_date", http.StatusBadRequest)
		return
	}
	order, err := h.scheduler.ProcessRequest(mux.Vars(r)["id"], req.Classification, dueDate)
	if err != nil {
		http.Error(w, err.Error(), statusFromError(err))
		return
	}
	h.failures.LogFailure(order.EquipmentID, order.ComponentName, order.Reason, 0)
	h.persist(r)
	writeJSON(w, http.StatusCreated, order)
}

// AddPart registers a spare part.
func (h *MaintenanceHandler) AddPart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name           string   `json:"name"`
		Stock          int      `json:"stock"`
		Minimum        int      `json:"minimum"`
		FitsComponents []string `json:"fits_components"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		http.Error(w, "Part name is required", http.StatusBadRequest)
		return
	}
	h.inventory.AddPart(req.Name, req.Stock, req.Minimum, req.FitsComponents)
	h.persist(r)
	w.WriteHeader(http.StatusCreated)
}

// ListParts returns the inventory snapshot.
func (h *MaintenanceHandler) ListParts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.inventory.Parts())
}

// ReservePart attempts an atomic stock reservation. Insufficient stock is
// an expected outcome reported in the body, not an internal error.
func (h *MaintenanceHandler) ReservePart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quantity int `json:"quantity"`
	}
	if !decodeOptionalBody(w, r, &req) {
		return
	}
	if req.Quantity <= 0 {
		req.Quantity = 1
	}
	name := mux.Vars(r)["name"]
	reserved := h.inventory.ReservePart(name, req.Quantity)
	if reserved {
		h.persist(r)
	}
	status := http.StatusOK
	if !reserved {
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]interface{}{
		"reserved": reserved,
		"stock":    h.inventory.GetStock(name),
	})
}

// AdjustStock restocks or corrects a part's quantity.
func (h *MaintenanceHandler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Delta int `json:"delta"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	name := mux.Vars(r)["name"]
	if !h.inventory.AdjustStock(name, req.Delta) {
		http.Error(w, "Unknown part or adjustment below zero", http.StatusConflict)
		return
	}
	h.persist(r)
	writeJSON(w, http.StatusOK, map[string]int{"stock": h.inventory.GetStock(name)})
}

// GetStock returns the current stock for a part, 0 when unknown.
func (h *MaintenanceHandler) GetStock(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	writeJSON(w, http.StatusOK, map[string]int{"stock": h.inventory.GetStock(name)})
}

// LowStock lists parts at or below their minimum level.
func (h *MaintenanceHandler) LowStock(w http.ResponseWriter, r *http.Request) {
	alerts := h.inventory.LowStockAlerts()
	if alerts == nil {
		alerts = []string{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

// PartsForComponent lists the parts fitting a component.
func (h *MaintenanceHandler) PartsForComponent(w http.ResponseWriter, r *http.Request) {
	parts := h.inventory.PartsForComponent(mux.Vars(r)["name"])
	if parts == nil {
		parts = []string{}
	}
	writeJSON(w, http.StatusOK, parts)
}

// LogFailure appends a failure event.
func (h *MaintenanceHandler) LogFailure(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EquipmentID     string  `json:"equipment_id"`
		ComponentName   string  `json:"component_name"`
		Description     string  `json:"description"`
		RepairTimeHours float64 `json:"repair_time_hours"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	event := h.failures.LogFailure(req.EquipmentID, req.ComponentName, req.Description, req.RepairTimeHours)
	h.persist(r)
	writeJSON(w, http.StatusCreated, event)
}

// ListFailures returns the failure history.
func (h *MaintenanceHandler) ListFailures(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.failures.Events())
}

// ReliabilityResponse carries MTBF/MTTR; a metric below its minimum sample
// count is null.
type ReliabilityResponse struct {
	EquipmentID   string   `json:"equipment_id"`
	ComponentName string   `json:"component_name,omitempty"`
	MTBFHours     *float64 `json:"mtbf_hours"`
	MTTRHours     *float64 `json:"mttr_hours"`
}

// Reliability computes MTBF/MTTR for one component or, with component_name
// omitted, aggregated across the equipment.
func (h *MaintenanceHandler) Reliability(w http.ResponseWriter, r *http.Request) {
	equipmentID := r.URL.Query().Get("equipment_id")
	if equipmentID == "" {
		http.Error(w, "equipment_id is required", http.StatusBadRequest)
		return
	}
	componentName := r.URL.Query().Get("component_name")
	resp := ReliabilityResponse{EquipmentID: equipmentID, ComponentName: componentName}
	if mtbf, ok := h.failures.MTBF(equipmentID, componentName); ok {
		resp.MTBFHours = &mtbf
	}
	if mttr, ok := h.failures.MTTR(equipmentID, componentName); ok {
		resp.MTTRHours = &mttr
	}
	writeJSON(w, http.StatusOK, resp)
}
