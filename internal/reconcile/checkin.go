package reconcile

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/unicode/norm"

	"github.com/opentab/possync/internal/entity"
)

// AllocateTable allocates tables to a POS order. An order that already
// carries a checkin delegates to ModifyAllocation instead of opening a
// second one. Otherwise a new checkin is created on the platform, and
// only after it returns is the association recorded and the order update
// pushed.
func (e *Engine) AllocateTable(ctx context.Context, posOrderID string, tableNames []string, covers int) error {
	lg := e.opLog("allocate_table").WithFields(logrus.Fields{
		"pos_order": posOrderID,
		"tables":    tableNames,
	})

	local, err := e.posa.Order(ctx, posOrderID)
	if err != nil {
		f := &Fault{Code: FaultPrecondition, Message: "order unknown to pos", Err: err}
		lg.WithError(f).Error("allocate table failed")
		return f
	}

	// The checkin lookup must happen under the lock: two concurrent
	// allocations could otherwise both see "no checkin" and open two.
	unlock := e.locks.lock(orderKey(local))
	defer unlock()

	existing, err := e.posa.OrderCheckin(ctx, posOrderID)
	if err != nil {
		return &Fault{Code: FaultPrecondition, Message: "checkin lookup failed", Err: err}
	}
	if existing != "" {
		lg.WithField("checkin", existing).Debug("order already checked in, modifying allocation")
		return e.modifyAllocation(ctx, posOrderID, tableNames, covers)
	}

	ci, err := e.gw.CreateCheckin(ctx, entity.Checkin{
		TableNames: tableNames,
		Covers:     covers,
		Consumer:   local.Consumer,
	})
	if err != nil {
		f := remoteFault(err, "create checkin failed")
		f.OrderID = local.ID
		lg.WithError(f).Error("allocate table failed")
		return f
	}

	if err := e.posa.RecordOrderCheckin(ctx, posOrderID, ci.ID); err != nil {
		return &Fault{Code: FaultPrecondition, Message: "record checkin association failed", CheckinID: ci.ID, Err: err}
	}

	if local.ID != "" {
		if err := e.pushOrderCheckin(ctx, lg, local, posOrderID, ci.ID); err != nil {
			return err
		}
	}
	lg.WithField("checkin", ci.ID).Info("table allocated")
	return nil
}

// ModifyAllocation re-issues an existing checkin with a new table-name
// list and covers. An empty list means "deallocate". An empty platform
// response is a hard failure, never a silent no-op.
func (e *Engine) ModifyAllocation(ctx context.Context, posOrderID string, tableNames []string, covers int) error {
	local, err := e.posa.Order(ctx, posOrderID)
	if err != nil {
		return &Fault{Code: FaultPrecondition, Message: "order unknown to pos", Err: err}
	}

	unlock := e.locks.lock(orderKey(local))
	defer unlock()

	return e.modifyAllocation(ctx, posOrderID, tableNames, covers)
}

// modifyAllocation is the lock-free body; callers hold the order lock.
func (e *Engine) modifyAllocation(ctx context.Context, posOrderID string, tableNames []string, covers int) error {
	lg := e.opLog("modify_allocation").WithFields(logrus.Fields{
		"pos_order": posOrderID,
		"tables":    tableNames,
	})

	checkinID, err := e.posa.OrderCheckin(ctx, posOrderID)
	if err != nil {
		return &Fault{Code: FaultPrecondition, Message: "checkin lookup failed", Err: err}
	}
	if checkinID == "" {
		f := &Fault{Code: FaultPrecondition, Message: "order has no checkin to modify"}
		lg.WithError(f).Error("modify allocation failed")
		return f
	}

	out, err := e.gw.UpdateCheckin(ctx, entity.Checkin{
		ID:         checkinID,
		TableNames: tableNames,
		Covers:     covers,
	})
	if err != nil {
		f := remoteFault(err, "update checkin failed")
		f.CheckinID = checkinID
		lg.WithError(f).Error("modify allocation failed")
		return f
	}
	if out.ID == "" {
		f := &Fault{Code: FaultProtocol, Message: "empty checkin returned on update", CheckinID: checkinID}
		lg.WithError(f).Error("modify allocation failed")
		return f
	}
	lg.WithField("checkin", out.ID).Info("allocation modified")
	return nil
}

// SeatBooking seats a booking, creating or reusing a checkin. When a POS
// order is supplied, its existing checkin must match the booking's
// checkin on id, covers and table-name set; any mismatch aborts seating
// before any platform seating call. The booking-to-checkin link and the
// order update are recorded only after the platform confirms.
func (e *Engine) SeatBooking(ctx context.Context, bookingID, posOrderID string) error {
	lg := e.opLog("seat_booking").WithFields(logrus.Fields{
		"booking":   bookingID,
		"pos_order": posOrderID,
	})

	if e.caps.Booking == nil {
		f := &Fault{Code: FaultUnsupported, Message: "pos provides no booking capability", BookingID: bookingID}
		lg.WithError(f).Warn("seat booking unsupported")
		return f
	}

	booking, err := e.gw.GetBooking(ctx, bookingID)
	if err != nil {
		f := remoteFault(err, "fetch booking failed")
		f.BookingID = bookingID
		lg.WithError(f).Error("seat booking failed")
		return f
	}

	var local entity.Order
	if posOrderID != "" {
		local, err = e.posa.Order(ctx, posOrderID)
		if err != nil {
			f := &Fault{Code: FaultPrecondition, Message: "order unknown to pos", BookingID: bookingID, Err: err}
			lg.WithError(f).Error("seat booking failed")
			return f
		}
		if err := e.checkSeatingCriteria(ctx, lg, booking, posOrderID); err != nil {
			return err
		}
	}

	ci, err := e.gw.SeatBooking(ctx, bookingID, posOrderID)
	if err != nil {
		f := remoteFault(err, "seat booking failed")
		f.BookingID = bookingID
		lg.WithError(f).Error("seat booking failed")
		return f
	}
	if ci.ID == "" {
		f := &Fault{Code: FaultProtocol, Message: "empty checkin returned on seating", BookingID: bookingID}
		lg.WithError(f).Error("seat booking failed")
		return f
	}

	if err := e.caps.Booking.RecordBookingCheckin(ctx, bookingID, ci.ID); err != nil {
		return &Fault{Code: FaultPrecondition, Message: "record booking checkin failed", BookingID: bookingID, Err: err}
	}

	if posOrderID != "" {
		if err := e.posa.RecordOrderCheckin(ctx, posOrderID, ci.ID); err != nil {
			return &Fault{Code: FaultPrecondition, Message: "record checkin association failed", CheckinID: ci.ID, Err: err}
		}
		if local.ID != "" {
			if err := e.pushOrderCheckin(ctx, lg, local, posOrderID, ci.ID); err != nil {
				return err
			}
		}
	}
	lg.WithField("checkin", ci.ID).Info("booking seated")
	return nil
}

// checkSeatingCriteria enforces the seating match: when the POS order
// already has a checkin, it must be the booking's checkin, with equal
// covers and set-equal table names.
func (e *Engine) checkSeatingCriteria(ctx context.Context, lg *logrus.Entry, booking entity.Booking, posOrderID string) error {
	orderCheckin, err := e.posa.OrderCheckin(ctx, posOrderID)
	if err != nil {
		return &Fault{Code: FaultPrecondition, Message: "checkin lookup failed", BookingID: booking.ID, Err: err}
	}
	if orderCheckin == "" {
		return nil
	}

	if booking.CheckinID != orderCheckin {
		f := &Fault{
			Code:      FaultPrecondition,
			Message:   "order checkin does not match booking checkin",
			BookingID: booking.ID,
			CheckinID: orderCheckin,
		}
		lg.WithError(f).Error("seating criteria mismatch")
		return f
	}

	ci, err := e.gw.GetCheckin(ctx, orderCheckin)
	if err != nil {
		f := remoteFault(err, "fetch checkin failed")
		f.CheckinID = orderCheckin
		return f
	}

	if ci.Covers != booking.Covers {
		f := &Fault{
			Code:      FaultPrecondition,
			Message:   "covers mismatch between order checkin and booking",
			BookingID: booking.ID,
			CheckinID: ci.ID,
		}
		lg.WithError(f).Error("seating criteria mismatch")
		return f
	}
	if !tableNamesEqual(ci.TableNames, booking.TableNames) {
		f := &Fault{
			Code:      FaultPrecondition,
			Message:   "table set mismatch between order checkin and booking",
			BookingID: booking.ID,
			CheckinID: ci.ID,
		}
		lg.WithError(f).Error("seating criteria mismatch")
		return f
	}
	return nil
}

// CloseCheckin closes a POS order's checkin on the platform and clears
// the local association only after the close succeeded.
func (e *Engine) CloseCheckin(ctx context.Context, posOrderID string) error {
	lg := e.opLog("close_checkin").WithField("pos_order", posOrderID)

	checkinID, err := e.posa.OrderCheckin(ctx, posOrderID)
	if err != nil {
		return &Fault{Code: FaultPrecondition, Message: "checkin lookup failed", Err: err}
	}
	if checkinID == "" {
		f := &Fault{Code: FaultPrecondition, Message: "order has no checkin to close"}
		lg.WithError(f).Error("close checkin failed")
		return f
	}

	if err := e.gw.CloseCheckin(ctx, checkinID); err != nil {
		f := remoteFault(err, "close checkin failed")
		f.CheckinID = checkinID
		lg.WithError(f).Error("close checkin failed")
		return f
	}

	if err := e.posa.RecordOrderCheckin(ctx, posOrderID, ""); err != nil {
		return &Fault{Code: FaultPrecondition, Message: "clear checkin association failed", CheckinID: checkinID, Err: err}
	}
	lg.WithField("checkin", checkinID).Info("checkin closed")
	return nil
}

// pushOrderCheckin pushes an order update carrying a new checkin id, with
// the last recorded version, then records the returned one.
func (e *Engine) pushOrderCheckin(ctx context.Context, lg *logrus.Entry, o entity.Order, posOrderID, checkinID string) error {
	version, err := e.posa.OrderVersion(ctx, posOrderID)
	if err != nil {
		return &Fault{Code: FaultPrecondition, Message: "no recorded version", OrderID: o.ID, Err: err}
	}
	o.Version = version
	o.CheckinID = checkinID
	o.PosID = posOrderID
	out, err := e.gw.UpdateOrder(ctx, o)
	if err != nil {
		f := remoteFault(err, "push order checkin failed")
		f.OrderID = o.ID
		lg.WithError(f).Error("order checkin push failed")
		return f
	}
	if err := e.posa.RecordOrderVersion(ctx, posOrderID, out.Version); err != nil {
		return &Fault{Code: FaultPrecondition, Message: "record order version failed", OrderID: o.ID, Err: err}
	}
	return nil
}

// tableNamesEqual compares table-name sets. Names are NFC-normalized so
// the same table typed on two systems compares equal; comparison is set
// equality, not containment.
func tableNamesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	na := normalizedSorted(a)
	nb := normalizedSorted(b)
	for i := range na {
		if na[i] != nb[i] {
			return false
		}
	}
	return true
}

func normalizedSorted(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = norm.NFC.String(n)
	}
	sort.Strings(out)
	return out
}
