package maintenance

import (
	"context"

	"github.com/looplab/fsm"

	"github.com/fleetops/fleet-maintenance/internal/models"
)

const (
	// EventStart moves a pending order into execution.
	EventStart = "start"
	// EventComplete finalizes an order. Completion is allowed straight from
	// pending because field crews often report start and finish in one go.
	EventComplete = "complete"
)

// newOrderFSM builds the work-order lifecycle machine seeded with the
// order's current status. Completed is terminal; no event leads out of it
// and nothing transitions back to pending.
func newOrderFSM(current models.OrderStatus) *fsm.FSM {
	return fsm.NewFSM(
		string(current),
		fsm.Events{
			{Name: EventStart, Src: []string{string(models.OrderPending)}, Dst: string(models.OrderInProgress)},
			{Name: EventComplete, Src: []string{string(models.OrderPending), string(models.OrderInProgress)}, Dst: string(models.OrderCompleted)},
		},
		fsm.Callbacks{},
	)
}

// transitionOrder applies a lifecycle event to the order, returning the
// machine's error when the transition is not allowed from the current state.
func transitionOrder(order *models.WorkOrder, event string) error {
	machine := newOrderFSM(order.Status)
	if err := machine.Event(context.Background(), event); err != nil {
		return err
	}
	order.Status = models.OrderStatus(machine.Current())
	return nil
}
