package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/opentab/possync/internal/entity"
	"github.com/opentab/possync/internal/pos"
)

// HandleOrder is the single entry point for platform order pushes, used
// identically by live events and resync replay.
//
// Processing for one order id is serialized; events for different orders
// proceed concurrently.
func (e *Engine) HandleOrder(ctx context.Context, o entity.Order) error {
	lg := e.opLog("order").WithFields(logrus.Fields{
		"order":  o.ID,
		"status": string(o.Status),
	})

	status, err := entity.ParseOrderStatus(string(o.Status))
	if err != nil {
		// Contract divergence: abort this event loudly, never skip it.
		f := &Fault{Code: FaultProtocol, Message: err.Error(), OrderID: o.ID, Err: err}
		lg.WithError(f).Error("protocol violation")
		return f
	}

	unlock := e.locks.lock(orderKey(o))
	defer unlock()

	switch status {
	case entity.OrderNew, entity.OrderPending:
		return e.processPending(ctx, lg, o)
	case entity.OrderReadyToPay:
		return e.processReadyToPay(ctx, lg, o)
	case entity.OrderCancelled:
		return e.processCancelled(ctx, lg, o)
	default:
		// Venue-driven statuses echoed back by the platform carry a fresh
		// version and nothing else to act on.
		return e.syncOrderVersion(ctx, lg, o)
	}
}

// orderKey picks the serialization key: the platform id once one exists,
// the POS id otherwise.
func orderKey(o entity.Order) string {
	if o.ID != "" {
		return o.ID
	}
	return o.PosID
}

// processPending judges a platform-created order the POS has not seen.
//
// Three shapes arrive: fully paid (confirm straight onto the POS, no
// availability judgment), partially paid (confirm awaiting the
// ready-to-pay round), and unpaid (ask the POS to judge availability).
// A missing consumer is unconditionally fatal to the order.
func (e *Engine) processPending(ctx context.Context, lg *logrus.Entry, o entity.Order) error {
	// Replay guard: an order the POS already linked was handled before
	// (resync uses this same path). Refresh the version and stop, so a
	// second pass never re-confirms or re-captures.
	if _, err := e.posa.OrderByPlatformID(ctx, o.ID); err == nil {
		lg.Debug("pending order already linked, syncing version only")
		return e.syncOrderVersion(ctx, lg, o)
	} else if !errors.Is(err, pos.ErrNotFound) {
		return &Fault{Code: FaultPrecondition, Message: "order lookup failed", OrderID: o.ID, Err: err}
	}

	if o.Consumer == nil {
		lg.Warn("pending order has no consumer, rejecting")
		return e.rejectNewOrder(ctx, lg, o, []string{"missing consumer"})
	}

	switch {
	case o.TransactionsCover():
		return e.confirmNewOrder(ctx, lg, o, pos.PaymentFull)
	case len(o.Transactions) > 0:
		return e.confirmNewOrder(ctx, lg, o, pos.PaymentAwaiting)
	default:
		return e.judgeNewOrder(ctx, lg, o)
	}
}

// confirmNewOrder records a paid or part-paid platform order on the POS,
// then reports the accepted result back.
func (e *Engine) confirmNewOrder(ctx context.Context, lg *logrus.Entry, o entity.Order, scope pos.PaymentScope) error {
	posID, err := e.posa.ConfirmNewOrder(ctx, o, scope, o.Type)
	if err != nil {
		f := &Fault{Code: FaultPrecondition, Message: "pos refused order confirmation", OrderID: o.ID, Err: err}
		lg.WithError(f).Error("confirm new order failed")
		return f
	}
	lg.WithFields(logrus.Fields{"pos_order": posID, "scope": string(scope)}).
		Info("new order confirmed on pos")
	return e.resolveAcceptedOrder(ctx, lg, o, posID)
}

// judgeNewOrder runs the availability judgment for an unpaid order. In
// restaurant mode a positive judgment only sets accepted; in bistro mode
// it drives the whole accepted → waiting_for_payment → capture sequence,
// because no second confirmation round exists.
func (e *Engine) judgeNewOrder(ctx context.Context, lg *logrus.Entry, o entity.Order) error {
	j, err := e.posa.JudgeAvailability(ctx, o, e.mode)
	if err != nil {
		f := &Fault{Code: FaultPrecondition, Message: "availability judgment failed", OrderID: o.ID, Err: err}
		lg.WithError(f).Error("judge availability failed")
		return f
	}

	if !j.Approved {
		lg.WithField("reasons", j.Reasons).Info("order refused by pos")
		return e.rejectNewOrder(ctx, lg, o, j.Reasons)
	}

	// The POS may have re-priced; push its copy, not the platform's.
	accepted := j.Order
	accepted.ID = o.ID
	accepted.Version = o.Version
	if err := e.resolveAcceptedOrder(ctx, lg, accepted, j.PosOrderID); err != nil {
		return err
	}

	if e.mode == pos.CaptureRestaurant {
		return nil
	}
	return e.bistroCapture(ctx, lg, accepted.ID, j.PosOrderID)
}

// resolveAcceptedOrder reports accepted to the create-result endpoint and
// records the canonical version the platform answered with.
func (e *Engine) resolveAcceptedOrder(ctx context.Context, lg *logrus.Entry, o entity.Order, posID string) error {
	o.PosID = posID
	o.Status = entity.OrderAccepted
	out, err := e.gw.ResolveNewOrder(ctx, entity.OrderResolution{
		Status: entity.OrderAccepted,
		Order:  o,
	})
	if err != nil {
		f := remoteFault(err, "resolve accepted failed")
		f.OrderID = o.ID
		lg.WithError(f).Error("resolve accepted failed")
		return f
	}
	if err := e.posa.RecordOrderVersion(ctx, posID, out.Version); err != nil {
		return &Fault{Code: FaultPrecondition, Message: "record order version failed", OrderID: o.ID, Err: err}
	}
	lg.WithField("pos_order", posID).Info("order accepted")
	return nil
}

// rejectNewOrder reports rejected to the platform, notifies the POS, and
// rejects every attached transaction. Individual transaction failures are
// logged and the loop continues; they are not retryable.
func (e *Engine) rejectNewOrder(ctx context.Context, lg *logrus.Entry, o entity.Order, reasons []string) error {
	var result *multierror.Error

	o.Status = entity.OrderRejected
	if _, err := e.gw.ResolveNewOrder(ctx, entity.OrderResolution{
		Status:  entity.OrderRejected,
		Reasons: reasons,
		Order:   o,
	}); err != nil {
		f := remoteFault(err, "resolve rejected failed")
		f.OrderID = o.ID
		lg.WithError(f).Error("resolve rejected failed")
		result = multierror.Append(result, f)
	}

	if err := e.posa.RejectOrder(ctx, o, reasons); err != nil {
		lg.WithError(err).Error("pos reject notification failed")
		result = multierror.Append(result, err)
	}

	for _, tx := range o.Transactions {
		if err := e.rejectPayment(ctx, lg, tx); err != nil {
			lg.WithError(err).WithField("transaction", tx.ID).
				Error("reject attached transaction failed")
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// processReadyToPay reconciles totals against the POS (the pricing source
// of truth may rewrite the order), pushes waiting_for_payment with the
// last recorded version, then captures the payment on the POS. The local
// capture is recorded only after the remote push succeeded.
func (e *Engine) processReadyToPay(ctx context.Context, lg *logrus.Entry, o entity.Order) error {
	local, err := e.posa.OrderByPlatformID(ctx, o.ID)
	if err != nil {
		f := &Fault{Code: FaultPrecondition, Message: "ready to pay for order unknown to pos", OrderID: o.ID, Err: err}
		lg.WithError(f).Error("ready to pay failed")
		return f
	}

	repriced, err := e.posa.ReconcileTotals(ctx, o)
	if err != nil {
		f := &Fault{Code: FaultPrecondition, Message: "totals reconciliation failed", OrderID: o.ID, Err: err}
		lg.WithError(f).Error("ready to pay failed")
		return f
	}

	version, err := e.posa.OrderVersion(ctx, local.PosID)
	if err != nil {
		return &Fault{Code: FaultPrecondition, Message: "no recorded version", OrderID: o.ID, Err: err}
	}

	repriced.ID = o.ID
	repriced.Version = version
	repriced.Status = entity.OrderWaitingForPayment
	out, err := e.gw.UpdateOrder(ctx, repriced)
	if err != nil {
		f := remoteFault(err, "push waiting_for_payment failed")
		f.OrderID = o.ID
		lg.WithError(f).Error("ready to pay failed")
		return f
	}
	if err := e.posa.RecordOrderVersion(ctx, local.PosID, out.Version); err != nil {
		return &Fault{Code: FaultPrecondition, Message: "record order version failed", OrderID: o.ID, Err: err}
	}

	return e.capture(ctx, lg, repriced, local.PosID)
}

// bistroCapture finishes a bistro acceptance: push waiting_for_payment,
// then capture in the same synchronous sequence.
func (e *Engine) bistroCapture(ctx context.Context, lg *logrus.Entry, orderID, posID string) error {
	version, err := e.posa.OrderVersion(ctx, posID)
	if err != nil {
		return &Fault{Code: FaultPrecondition, Message: "no recorded version", OrderID: orderID, Err: err}
	}

	current, err := e.gw.GetOrder(ctx, orderID)
	if err != nil {
		f := remoteFault(err, "fetch accepted order failed")
		f.OrderID = orderID
		return f
	}

	current.Version = version
	current.Status = entity.OrderWaitingForPayment
	out, err := e.gw.UpdateOrder(ctx, current)
	if err != nil {
		f := remoteFault(err, "push waiting_for_payment failed")
		f.OrderID = orderID
		lg.WithError(f).Error("bistro capture failed")
		return f
	}
	if err := e.posa.RecordOrderVersion(ctx, posID, out.Version); err != nil {
		return &Fault{Code: FaultPrecondition, Message: "record order version failed", OrderID: orderID, Err: err}
	}

	return e.capture(ctx, lg, current, posID)
}

// capture records the payment outcome on the POS. A positive
// not-paying-total means a partial capture; bistro mode must never see
// one, since there is no later round to settle the remainder.
func (e *Engine) capture(ctx context.Context, lg *logrus.Entry, o entity.Order, posID string) error {
	partial := o.NotPayingTotal > 0
	if partial && e.mode == pos.CaptureBistro {
		f := &Fault{
			Code:    FaultPrecondition,
			Message: fmt.Sprintf("positive not-paying total %d in bistro mode", o.NotPayingTotal),
			OrderID: o.ID,
		}
		lg.WithError(f).Error("unsupported capture")
		return f
	}

	amount := o.PayTotal
	if amount == 0 {
		amount = o.Total() - o.NotPayingTotal
	}
	tx := entity.Transaction{OrderID: o.ID, Amount: amount, Tip: o.Tip}
	if err := e.posa.RecordPayment(ctx, posID, tx, partial); err != nil {
		f := &Fault{Code: FaultPrecondition, Message: "record payment failed", OrderID: o.ID, Err: err}
		lg.WithError(f).Error("capture failed")
		return f
	}
	lg.WithFields(logrus.Fields{"pos_order": posID, "amount": int64(amount), "partial": partial}).
		Info("payment captured")
	return nil
}

// processCancelled notifies the POS and stops; no further platform calls
// follow a platform-initiated cancellation.
func (e *Engine) processCancelled(ctx context.Context, lg *logrus.Entry, o entity.Order) error {
	local, err := e.posa.OrderByPlatformID(ctx, o.ID)
	if err != nil {
		if errors.Is(err, pos.ErrNotFound) {
			lg.Debug("cancelled order unknown to pos, nothing to do")
			return nil
		}
		return &Fault{Code: FaultPrecondition, Message: "lookup cancelled order failed", OrderID: o.ID, Err: err}
	}
	if err := e.posa.CancelOrder(ctx, local.PosID); err != nil {
		return &Fault{Code: FaultPrecondition, Message: "pos cancel failed", OrderID: o.ID, Err: err}
	}
	lg.WithField("pos_order", local.PosID).Info("order cancelled")
	return nil
}

// syncOrderVersion records the fresh version from a status echo for a
// linked order. Unlinked echoes carry nothing actionable.
func (e *Engine) syncOrderVersion(ctx context.Context, lg *logrus.Entry, o entity.Order) error {
	local, err := e.posa.OrderByPlatformID(ctx, o.ID)
	if err != nil {
		if errors.Is(err, pos.ErrNotFound) {
			return nil
		}
		return &Fault{Code: FaultPrecondition, Message: "lookup order failed", OrderID: o.ID, Err: err}
	}
	if o.Version == "" {
		return nil
	}
	if err := e.posa.RecordOrderVersion(ctx, local.PosID, o.Version); err != nil {
		return &Fault{Code: FaultPrecondition, Message: "record order version failed", OrderID: o.ID, Err: err}
	}
	lg.Debug("order version synchronized")
	return nil
}

// AcceptOrderAhead accepts a POS-judged order-ahead order. The platform's
// current copy is re-fetched first; a version differing from the one last
// recorded refuses the accept: the caller must re-fetch and retry, never
// silently overwrite. On accept every attached transaction is claimed;
// claim failures are logged and the batch continues, because the platform
// does not support mutating an order-ahead order after its terminal
// decision.
func (e *Engine) AcceptOrderAhead(ctx context.Context, posOrderID string) error {
	lg := e.opLog("accept_order_ahead").WithField("pos_order", posOrderID)
	return e.resolveOrderAhead(ctx, lg, posOrderID, true)
}

// RejectOrderAhead rejects a POS-judged order-ahead order and rejects
// every attached transaction, tolerating individual failures.
func (e *Engine) RejectOrderAhead(ctx context.Context, posOrderID string) error {
	lg := e.opLog("reject_order_ahead").WithField("pos_order", posOrderID)
	return e.resolveOrderAhead(ctx, lg, posOrderID, false)
}

func (e *Engine) resolveOrderAhead(ctx context.Context, lg *logrus.Entry, posOrderID string, accept bool) error {
	local, err := e.posa.Order(ctx, posOrderID)
	if err != nil {
		f := &Fault{Code: FaultPrecondition, Message: "order unknown to pos", Err: err}
		lg.WithError(f).Error("order-ahead decision failed")
		return f
	}
	if local.ID == "" {
		f := &Fault{Code: FaultPrecondition, Message: "order has no platform id"}
		lg.WithError(f).Error("order-ahead decision failed")
		return f
	}

	unlock := e.locks.lock(local.ID)
	defer unlock()

	remote, err := e.gw.GetOrder(ctx, local.ID)
	if err != nil {
		f := remoteFault(err, "re-fetch order failed")
		f.OrderID = local.ID
		lg.WithError(f).Error("order-ahead decision failed")
		return f
	}

	if accept {
		recorded, err := e.posa.OrderVersion(ctx, posOrderID)
		if err != nil {
			return &Fault{Code: FaultPrecondition, Message: "no recorded version", OrderID: local.ID, Err: err}
		}
		if remote.Version != recorded {
			f := &Fault{Code: FaultConflict, Message: "platform copy moved since last observation", OrderID: local.ID}
			lg.WithError(f).Warn("accept refused")
			return f
		}
	}

	status := entity.OrderAccepted
	if !accept {
		status = entity.OrderRejected
	}
	remote.Status = status
	remote.PosID = posOrderID
	out, err := e.gw.UpdateOrder(ctx, remote)
	if err != nil {
		f := remoteFault(err, "push order-ahead decision failed")
		f.OrderID = remote.ID
		lg.WithError(f).Error("order-ahead decision failed")
		return f
	}
	if err := e.posa.RecordOrderVersion(ctx, posOrderID, out.Version); err != nil {
		return &Fault{Code: FaultPrecondition, Message: "record order version failed", OrderID: remote.ID, Err: err}
	}

	txs, err := e.gw.TransactionsForOrder(ctx, remote.ID)
	if err != nil {
		f := remoteFault(err, "list order transactions failed")
		f.OrderID = remote.ID
		lg.WithError(f).Error("order-ahead decision failed")
		return f
	}

	var result *multierror.Error
	for _, tx := range txs {
		if accept {
			err = e.claimPayment(ctx, lg, tx)
		} else {
			err = e.rejectPayment(ctx, lg, tx)
		}
		if err != nil {
			lg.WithError(err).WithField("transaction", tx.ID).
				Error("order-ahead transaction resolution failed")
			result = multierror.Append(result, err)
		}
	}
	lg.WithFields(logrus.Fields{"accepted": accept, "transactions": len(txs)}).
		Info("order-ahead decision pushed")
	return result.ErrorOrNil()
}

// RedeemReward applies a loyalty reward to an order and claims it: the
// order is updated first (with the version just observed), the reward
// claim follows. A failed claim is reported but nothing local is rolled
// back; the order update was already confirmed.
func (e *Engine) RedeemReward(ctx context.Context, posOrderID, memberID string, reward entity.Reward) error {
	lg := e.opLog("redeem_reward").WithFields(logrus.Fields{
		"pos_order": posOrderID,
		"member":    memberID,
		"reward":    reward.ID,
	})

	if e.caps.Reward == nil {
		f := &Fault{Code: FaultUnsupported, Message: "pos provides no reward capability"}
		lg.WithError(f).Warn("redeem reward unsupported")
		return f
	}

	local, err := e.posa.Order(ctx, posOrderID)
	if err != nil {
		return &Fault{Code: FaultPrecondition, Message: "order unknown to pos", Err: err}
	}
	if local.ID == "" {
		return &Fault{Code: FaultPrecondition, Message: "order has no platform id"}
	}

	unlock := e.locks.lock(local.ID)
	defer unlock()

	remote, err := e.gw.GetOrder(ctx, local.ID)
	if err != nil {
		f := remoteFault(err, "re-fetch order failed")
		f.OrderID = local.ID
		return f
	}

	updated, err := e.caps.Reward.ApplyReward(ctx, posOrderID, reward)
	if err != nil {
		return &Fault{Code: FaultPrecondition, Message: "apply reward failed", OrderID: local.ID, Err: err}
	}

	updated.ID = remote.ID
	updated.Version = remote.Version
	out, err := e.gw.UpdateOrder(ctx, updated)
	if err != nil {
		f := remoteFault(err, "push reward order update failed")
		f.OrderID = remote.ID
		lg.WithError(f).Error("redeem reward failed")
		return f
	}
	if err := e.posa.RecordOrderVersion(ctx, posOrderID, out.Version); err != nil {
		return &Fault{Code: FaultPrecondition, Message: "record order version failed", OrderID: remote.ID, Err: err}
	}

	if err := e.gw.ClaimReward(ctx, memberID, reward.ID, reward.Version); err != nil {
		f := remoteFault(err, "claim reward failed")
		f.OrderID = remote.ID
		lg.WithError(f).Error("reward claim failed after order update")
		return f
	}
	lg.Info("reward redeemed")
	return nil
}
