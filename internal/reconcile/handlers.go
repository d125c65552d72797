package reconcile

import (
	"context"
	"fmt"

	"github.com/opentab/possync/internal/entity"
	"github.com/opentab/possync/internal/realtime"
)

// HandleEvent routes one push event to its reconciler. It is the
// realtime.Handler entry point and the resync supervisor's replay target;
// both must pass through here so replaying a handled event is a no-op.
func (e *Engine) HandleEvent(ctx context.Context, ev realtime.Event) error {
	switch ev.Kind {
	case realtime.EventOrderCreated, realtime.EventOrderStatusChanged:
		if ev.Order == nil {
			return &Fault{Code: FaultProtocol, Message: "order event missing order payload"}
		}
		return e.HandleOrder(ctx, *ev.Order)

	case realtime.EventTransactionCreated, realtime.EventTransactionUpdated:
		if ev.Transaction == nil {
			return &Fault{Code: FaultProtocol, Message: "transaction event missing payload"}
		}
		return e.HandleTransaction(ctx, *ev.Transaction)

	case realtime.EventTableAllocationChanged:
		if ev.Allocation == nil {
			return &Fault{Code: FaultProtocol, Message: "allocation event missing payload"}
		}
		return e.handleAllocationChanged(ctx, *ev.Allocation)

	case realtime.EventCheckinCreated:
		if ev.Checkin == nil {
			return &Fault{Code: FaultProtocol, Message: "checkin event missing payload"}
		}
		return e.handleCheckinCreated(ctx, *ev.Checkin)

	case realtime.EventCheckout:
		if ev.Checkin == nil {
			return &Fault{Code: FaultProtocol, Message: "checkout event missing payload"}
		}
		return e.handleCheckout(ctx, *ev.Checkin)

	case realtime.EventMemberCreated, realtime.EventMemberUpdated:
		if ev.Member == nil {
			return &Fault{Code: FaultProtocol, Message: "member event missing payload"}
		}
		return e.handleMember(ctx, ev.Kind, *ev.Member)

	case realtime.EventBookingCreated, realtime.EventBookingUpdated:
		if ev.Booking == nil {
			return &Fault{Code: FaultProtocol, Message: "booking event missing payload"}
		}
		return e.handleBooking(ctx, ev.Kind, *ev.Booking)

	case realtime.EventBookingDeleted:
		return e.handleBookingDeleted(ctx, ev.BookingID)

	default:
		return &Fault{Code: FaultProtocol, Message: fmt.Sprintf("unroutable event kind %d", ev.Kind)}
	}
}

// HandleConnect runs the resync supervisor. Fires on the initial connect
// and on every reconnect, before any live event is delivered.
func (e *Engine) HandleConnect(ctx context.Context) error {
	e.released = false
	return e.Resync(ctx)
}

// HandleTimeout tells the POS to disassociate all platform-pending state
// so it can operate autonomously. Fires once per outage; the flag resets
// on the next connect.
func (e *Engine) HandleTimeout(ctx context.Context) error {
	if e.released {
		return nil
	}
	e.released = true
	if err := e.posa.ReleasePlatformState(ctx); err != nil {
		return &Fault{Code: FaultPrecondition, Message: "release platform state failed", Err: err}
	}
	e.log.Warn("platform state released, pos operating autonomously")
	return nil
}

// handleAllocationChanged mirrors the platform's new table allocation for
// a checkin onto the POS.
func (e *Engine) handleAllocationChanged(ctx context.Context, alloc entity.TableAllocation) error {
	lg := e.opLog("allocation_changed").WithField("checkin", alloc.CheckinID)
	err := e.posa.RecordCheckin(ctx, entity.Checkin{
		ID:         alloc.CheckinID,
		TableNames: alloc.TableNames,
		Covers:     alloc.Covers,
	})
	if err != nil {
		return &Fault{Code: FaultPrecondition, Message: "record allocation failed", CheckinID: alloc.CheckinID, Err: err}
	}
	lg.Debug("allocation recorded")
	return nil
}

func (e *Engine) handleCheckinCreated(ctx context.Context, ci entity.Checkin) error {
	lg := e.opLog("checkin_created").WithField("checkin", ci.ID)
	if err := e.posa.RecordCheckin(ctx, ci); err != nil {
		return &Fault{Code: FaultPrecondition, Message: "record checkin failed", CheckinID: ci.ID, Err: err}
	}
	lg.Debug("checkin recorded")
	return nil
}

func (e *Engine) handleCheckout(ctx context.Context, ci entity.Checkin) error {
	lg := e.opLog("checkout").WithField("checkin", ci.ID)
	consumer := ""
	if ci.Consumer != nil {
		consumer = ci.Consumer.ID
	}
	if err := e.posa.RecordCheckout(ctx, consumer); err != nil {
		return &Fault{Code: FaultPrecondition, Message: "record checkout failed", CheckinID: ci.ID, Err: err}
	}
	lg.Debug("checkout recorded")
	return nil
}

// handleMember forwards a loyalty push to the optional member capability.
// A POS without one logs and skips; member sync is passthrough, not core.
func (e *Engine) handleMember(ctx context.Context, kind realtime.EventKind, m entity.Member) error {
	lg := e.opLog("member").WithField("member", m.ID)
	if e.caps.Member == nil {
		lg.Debug("no member capability, skipping")
		return nil
	}
	var err error
	if kind == realtime.EventMemberCreated {
		err = e.caps.Member.CreateMember(ctx, m)
	} else {
		err = e.caps.Member.UpdateMember(ctx, m)
	}
	if err != nil {
		return &Fault{Code: FaultPrecondition, Message: "member sync failed", Err: err}
	}
	lg.Debug("member synchronized")
	return nil
}

func (e *Engine) handleBooking(ctx context.Context, kind realtime.EventKind, b entity.Booking) error {
	lg := e.opLog("booking").WithField("booking", b.ID)
	if e.caps.Booking == nil {
		lg.Debug("no booking capability, skipping")
		return nil
	}
	var err error
	if kind == realtime.EventBookingCreated {
		err = e.caps.Booking.CreateBooking(ctx, b)
	} else {
		err = e.caps.Booking.UpdateBooking(ctx, b)
	}
	if err != nil {
		return &Fault{Code: FaultPrecondition, Message: "booking sync failed", BookingID: b.ID, Err: err}
	}
	lg.Debug("booking synchronized")
	return nil
}

func (e *Engine) handleBookingDeleted(ctx context.Context, id string) error {
	lg := e.opLog("booking_deleted").WithField("booking", id)
	if e.caps.Booking == nil {
		lg.Debug("no booking capability, skipping")
		return nil
	}
	if err := e.caps.Booking.DeleteBooking(ctx, id); err != nil {
		return &Fault{Code: FaultPrecondition, Message: "booking delete failed", BookingID: id, Err: err}
	}
	lg.Debug("booking deleted")
	return nil
}
