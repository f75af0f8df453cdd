package maintenance

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetops/fleet-maintenance/internal/models"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type seqIDs struct{ n int }

func (g *seqIDs) NewID() string {
	g.n++
	return fmt.Sprintf("id-%d", g.n)
}

func float64Ptr(v float64) *float64 { return &v }

func newTestScheduler(t *testing.T) (*Scheduler, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)}
	return NewScheduler(clock, &seqIDs{}), clock
}

func registerTruck(t *testing.T, s *Scheduler, id string, hoursInterval float64) {
	t.Helper()
	_, err := s.RegisterEquipment(id, "Kalmar tractor")
	require.NoError(t, err)
	require.NoError(t, s.RegisterComponent(id, models.Component{
		Name:          "suspension",
		Criticality:   models.CriticalityHigh,
		HoursInterval: float64Ptr(hoursInterval),
	}))
}

func TestScheduler_RegisterEquipment_Duplicate(t *testing.T) {
	s, _ := newTestScheduler(t)
	_, err := s.RegisterEquipment("TR-001", "tractor")
	require.NoError(t, err)
	_, err = s.RegisterEquipment("TR-001", "another tractor")
	assert.ErrorIs(t, err, ErrDuplicateEquipment)
}

func TestScheduler_RegisterComponent_Errors(t *testing.T) {
	s, _ := newTestScheduler(t)
	err := s.RegisterComponent("missing", models.Component{Name: "brakes", Criticality: models.CriticalityHigh})
	assert.ErrorIs(t, err, ErrEquipmentNotFound)

	_, err = s.RegisterEquipment("TR-001", "tractor")
	require.NoError(t, err)
	err = s.RegisterComponent("TR-001", models.Component{Name: "brakes", Criticality: "severe"})
	assert.ErrorIs(t, err, ErrInvalidCriticality)
}

func TestScheduler_CheckDueMaintenance_Idempotent(t *testing.T) {
	s, clock := newTestScheduler(t)
	registerTruck(t, s, "TR-001", 500)
	require.NoError(t, s.AddUsage("TR-001", 550, 0))

	created := s.CheckDueMaintenance(clock.Now())
	require.Len(t, created, 1)
	order := created[0]
	assert.Equal(t, "TR-001", order.EquipmentID)
	assert.Equal(t, "suspension", order.ComponentName)
	assert.Equal(t, models.OrderPending, order.Status)
	assert.Contains(t, order.Reason, "550")
	assert.Contains(t, order.Reason, "500")

	// A second scan on unchanged state creates nothing and leaves exactly
	// one pending order for the pair.
	again := s.CheckDueMaintenance(clock.Now())
	assert.Empty(t, again)
	assert.Len(t, s.PendingOrders("TR-001", nil), 1)
}

func TestScheduler_CheckDueMaintenance_SkipsIneligibleEquipment(t *testing.T) {
	s, clock := newTestScheduler(t)
	registerTruck(t, s, "TR-001", 500)
	require.NoError(t, s.AddUsage("TR-001", 550, 0))

	// An untriaged request takes the unit out of the scan.
	req, err := s.SubmitRequest("TR-001", "wipers", models.CriticalityLow, "blades worn through", 550, clock.Now())
	require.NoError(t, err)
	assert.Empty(t, s.CheckDueMaintenance(clock.Now()))

	// Triage moves it to in_maintenance; still skipped.
	order, err := s.ProcessRequest(req.ID, models.CriticalityLow, clock.Now())
	require.NoError(t, err)
	assert.Empty(t, s.CheckDueMaintenance(clock.Now()))

	// Completion returns the unit to the operational pool.
	require.NoError(t, s.CompleteOrder(order.ID, clock.Now(), nil))
	assert.Len(t, s.CheckDueMaintenance(clock.Now()), 1)
}

func TestScheduler_CompleteOrder_RebaselinesAtCompletionReadings(t *testing.T) {
	s, clock := newTestScheduler(t)
	registerTruck(t, s, "TR-001", 500)
	require.NoError(t, s.AddUsage("TR-001", 550, 1000))

	created := s.CheckDueMaintenance(clock.Now())
	require.Len(t, created, 1)

	// Usage keeps accruing while the order sits pending; the rebaseline
	// must anchor to the readings at completion, not at detection.
	require.NoError(t, s.AddUsage("TR-001", 30, 200))
	completedAt := clock.Now().Add(48 * time.Hour)
	require.NoError(t, s.CompleteOrder(created[0].ID, completedAt, []string{"front shock absorber"}))

	eq, ok := s.Equipment("TR-001")
	require.True(t, ok)
	rec := eq.Components["suspension"]
	assert.Equal(t, 580.0, rec.LastServiceHours)
	assert.Equal(t, 1200.0, rec.LastServiceKm)
	assert.Equal(t, completedAt, rec.LastServiceDate)
	assert.Equal(t, models.StatusOperational, eq.Status)

	order, ok := s.Order(created[0].ID)
	require.True(t, ok)
	assert.Equal(t, models.OrderCompleted, order.Status)
	require.NotNil(t, order.CompletedAt)
	assert.Equal(t, completedAt, *order.CompletedAt)
	assert.Equal(t, []string{"front shock absorber"}, order.MaterialsUsed)
}

func TestScheduler_EndToEnd(t *testing.T) {
	s, clock := newTestScheduler(t)
	registerTruck(t, s, "TR-001", 500)

	// Nothing due at zero usage.
	assert.Empty(t, s.CheckDueMaintenance(clock.Now()))

	require.NoError(t, s.AddUsage("TR-001", 550, 0))
	created := s.CheckDueMaintenance(clock.Now())
	require.Len(t, created, 1)
	assert.Contains(t, created[0].Reason, "550")
	assert.Contains(t, created[0].Reason, "500")

	require.NoError(t, s.CompleteOrder(created[0].ID, clock.Now(), nil))
	eq, _ := s.Equipment("TR-001")
	assert.Equal(t, 550.0, eq.Components["suspension"].LastServiceHours)

	// No further accrual: the next scan finds nothing due.
	assert.Empty(t, s.CheckDueMaintenance(clock.Now()))
}

func TestScheduler_CompleteOrder_NotFound(t *testing.T) {
	s, clock := newTestScheduler(t)
	err := s.CompleteOrder("no-such-order", clock.Now(), nil)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestScheduler_CompleteOrder_Twice(t *testing.T) {
	s, clock := newTestScheduler(t)
	registerTruck(t, s, "TR-001", 500)
	require.NoError(t, s.AddUsage("TR-001", 550, 0))
	created := s.CheckDueMaintenance(clock.Now())
	require.Len(t, created, 1)

	require.NoError(t, s.CompleteOrder(created[0].ID, clock.Now(), nil))
	// Completed is terminal.
	assert.Error(t, s.CompleteOrder(created[0].ID, clock.Now(), nil))
	assert.Error(t, s.StartOrder(created[0].ID, clock.Now()))
}

func TestScheduler_StartOrder(t *testing.T) {
	s, clock := newTestScheduler(t)
	registerTruck(t, s, "TR-001", 500)
	require.NoError(t, s.AddUsage("TR-001", 500, 0))
	created := s.CheckDueMaintenance(clock.Now())
	require.Len(t, created, 1)

	startAt := clock.Now().Add(2 * time.Hour)
	require.NoError(t, s.StartOrder(created[0].ID, startAt))
	order, _ := s.Order(created[0].ID)
	assert.Equal(t, models.OrderInProgress, order.Status)
	require.NotNil(t, order.StartTime)
	assert.Equal(t, startAt, *order.StartTime)

	// Starting twice is an invalid transition.
	assert.Error(t, s.StartOrder(created[0].ID, startAt))

	// An in-progress order still completes normally.
	require.NoError(t, s.CompleteOrder(created[0].ID, startAt.Add(3*time.Hour), []string{"shock"}))
}

func TestScheduler_InProgressOrderDoesNotBlockNewPending(t *testing.T) {
	s, clock := newTestScheduler(t)
	registerTruck(t, s, "TR-001", 500)
	require.NoError(t, s.AddUsage("TR-001", 500, 0))
	created := s.CheckDueMaintenance(clock.Now())
	require.Len(t, created, 1)
	require.NoError(t, s.StartOrder(created[0].ID, clock.Now()))

	// Dedup applies to pending orders only.
	again := s.CheckDueMaintenance(clock.Now())
	assert.Len(t, again, 1)
}

func TestScheduler_CreateManualOrder(t *testing.T) {
	s, clock := newTestScheduler(t)
	registerTruck(t, s, "TR-001", 500)
	dueDate := clock.Now().AddDate(0, 0, 3)

	order, err := s.CreateManualOrder("TR-001", "gearbox", models.CriticalityMedium, dueDate, "oil seep spotted during walkaround")
	require.NoError(t, err)
	assert.Equal(t, models.OrderPending, order.Status)
	assert.Equal(t, models.CriticalityMedium, order.Classification)
	assert.NotNil(t, order.MaterialsUsed)

	eq, _ := s.Equipment("TR-001")
	assert.Equal(t, models.StatusInMaintenance, eq.Status)

	// Same pending-dedup space as scheduled orders.
	_, err = s.CreateManualOrder("TR-001", "gearbox", models.CriticalityHigh, dueDate, "again")
	assert.ErrorIs(t, err, ErrDuplicatePending)

	_, err = s.CreateManualOrder("missing", "gearbox", models.CriticalityHigh, dueDate, "")
	assert.ErrorIs(t, err, ErrEquipmentNotFound)
}

func TestScheduler_ManualOrder_UnregisteredComponentCompletesWithoutRebaseline(t *testing.T) {
	s, clock := newTestScheduler(t)
	registerTruck(t, s, "TR-001", 500)
	require.NoError(t, s.AddUsage("TR-001", 100, 0))

	order, err := s.CreateManualOrder("TR-001", "cab door hinge", models.CriticalityLow, clock.Now(), "squeaking")
	require.NoError(t, err)
	require.NoError(t, s.CompleteOrder(order.ID, clock.Now(), nil))

	eq, _ := s.Equipment("TR-001")
	assert.Equal(t, models.StatusOperational, eq.Status)
	// The registered component's baseline is untouched.
	assert.Equal(t, 0.0, eq.Components["suspension"].LastServiceHours)
}

func TestScheduler_RequestLifecycle(t *testing.T) {
	s, clock := newTestScheduler(t)
	registerTruck(t, s, "TR-001", 500)

	req, err := s.SubmitRequest("TR-001", "wipers", models.CriticalityLow, "blades worn through", 320, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, req.Status)

	eq, _ := s.Equipment("TR-001")
	assert.Equal(t, models.StatusPendingRequest, eq.Status)

	// A unit with a pending request is not re-evaluated by the scan.
	require.NoError(t, s.AddUsage("TR-001", 600, 0))
	assert.Empty(t, s.CheckDueMaintenance(clock.Now()))

	dueDate := clock.Now().AddDate(0, 0, 1)
	order, err := s.ProcessRequest(req.ID, models.CriticalityHigh, dueDate)
	require.NoError(t, err)
	assert.Contains(t, order.Reason, "blades worn through")
	assert.Equal(t, models.CriticalityHigh, order.Classification)
	assert.Equal(t, dueDate, order.DueDate)

	requests := s.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, models.RequestProcessed, requests[0].Status)
	assert.Equal(t, models.CriticalityHigh, requests[0].Classification)
	eq, _ = s.Equipment("TR-001")
	assert.Equal(t, models.StatusInMaintenance, eq.Status)

	// Processed requests are never triaged again.
	_, err = s.ProcessRequest(req.ID, models.CriticalityHigh, dueDate)
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func TestScheduler_ProcessRequest_Unknown(t *testing.T) {
	s, clock := newTestScheduler(t)
	_, err := s.ProcessRequest("no-such-request", models.CriticalityLow, clock.Now())
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func TestScheduler_PendingOrders_Filters(t *testing.T) {
	s, clock := newTestScheduler(t)
	registerTruck(t, s, "TR-001", 500)
	_, err := s.RegisterEquipment("TR-002", "Terberg tractor")
	require.NoError(t, err)

	near := clock.Now().AddDate(0, 0, 2)
	far := clock.Now().AddDate(0, 0, 30)
	_, err = s.CreateManualOrder("TR-001", "gearbox", models.CriticalityMedium, near, "")
	require.NoError(t, err)
	_, err = s.CreateManualOrder("TR-002", "brakes", models.CriticalityHigh, far, "")
	require.NoError(t, err)

	assert.Len(t, s.PendingOrders("", nil), 2)
	assert.Len(t, s.PendingOrders("TR-001", nil), 1)

	horizon := clock.Now().AddDate(0, 0, 7)
	withinWeek := s.PendingOrders("", &horizon)
	require.Len(t, withinWeek, 1)
	assert.Equal(t, "TR-001", withinWeek[0].EquipmentID)
}

func TestScheduler_ComponentDueStatus(t *testing.T) {
	s, clock := newTestScheduler(t)
	registerTruck(t, s, "TR-001", 500)
	require.NoError(t, s.RegisterComponent("TR-001", models.Component{
		Name:          "brakes",
		Criticality:   models.CriticalityHigh,
		HoursInterval: float64Ptr(1000),
	}))
	require.NoError(t, s.AddUsage("TR-001", 600, 0))

	statuses, err := s.ComponentDueStatus("TR-001", clock.Now())
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Equal(t, "brakes", statuses[0].ComponentName)
	assert.False(t, statuses[0].Due)
	assert.Equal(t, "suspension", statuses[1].ComponentName)
	assert.True(t, statuses[1].Due)
	assert.Contains(t, statuses[1].Reason, "600")

	// Evaluation creates no orders.
	assert.Empty(t, s.PendingOrders("", nil))

	_, err = s.ComponentDueStatus("missing", clock.Now())
	assert.ErrorIs(t, err, ErrEquipmentNotFound)
}

func TestScheduler_QueriesReturnIsolatedCopies(t *testing.T) {
	s, clock := newTestScheduler(t)
	registerTruck(t, s, "TR-001", 500)
	require.NoError(t, s.AddUsage("TR-001", 550, 0))
	created := s.CheckDueMaintenance(clock.Now())
	require.Len(t, created, 1)

	// Mutating a returned unit must not touch scheduler state.
	eq, _ := s.Equipment("TR-001")
	eq.Status = models.StatusInMaintenance
	eq.Horometer = 9999
	eq.Components["suspension"].LastServiceHours = 9999
	fresh, _ := s.Equipment("TR-001")
	assert.Equal(t, models.StatusOperational, fresh.Status)
	assert.Equal(t, 550.0, fresh.Horometer)
	assert.Equal(t, 0.0, fresh.Components["suspension"].LastServiceHours)

	// Same for orders.
	created[0].Status = models.OrderCompleted
	created[0].MaterialsUsed = append(created[0].MaterialsUsed, "shock")
	order, _ := s.Order(created[0].ID)
	assert.Equal(t, models.OrderPending, order.Status)
	assert.Empty(t, order.MaterialsUsed)
}

func TestScheduler_FleetReadsSafeDuringUsageUpdates(t *testing.T) {
	s, _ := newTestScheduler(t)
	registerTruck(t, s, "TR-001", 500)

	// Telemetry keeps the counters moving while persistence-style readers
	// walk fleet snapshots.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			_ = s.AddUsage("TR-001", 0.1, 1)
		}
	}()
	for i := 0; i < 500; i++ {
		for _, eq := range s.Fleet() {
			_ = eq.Horometer
			_ = eq.Components["suspension"]
		}
	}
	<-done

	eq, ok := s.Equipment("TR-001")
	require.True(t, ok)
	assert.InDelta(t, 50.0, eq.Horometer, 1e-6)
	assert.Equal(t, 500.0, eq.Odometer)
}

func TestScheduler_AddUsage_Errors(t *testing.T) {
	s, _ := newTestScheduler(t)
	assert.ErrorIs(t, s.AddUsage("missing", 1, 1), ErrEquipmentNotFound)

	registerTruck(t, s, "TR-001", 500)
	assert.ErrorIs(t, s.AddUsage("TR-001", -1, 0), models.ErrNegativeDelta)
	assert.ErrorIs(t, s.AddUsage("TR-001", 0, -1), models.ErrNegativeDelta)
}
