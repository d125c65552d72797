package reconcile

import (
	"context"
	"errors"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/opentab/possync/internal/entity"
	"github.com/opentab/possync/internal/pos"
	"github.com/opentab/possync/internal/realtime"
)

// Resync re-derives the full in-flight set after a connection outage, so
// a dropped connection never leaves state permanently diverged. It runs
// once per (re)connect, before live events resume.
//
// Every replayed item enters through the identical handlers used for live
// pushes; the handlers are idempotent by construction, so running Resync
// twice with no intervening platform change leaves the POS unchanged.
// Per-item failures are collected and the pass continues.
func (e *Engine) Resync(ctx context.Context) error {
	lg := e.opLog("resync")
	lg.Info("resync starting")

	var result *multierror.Error

	if err := e.resyncUnlinked(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	if err := e.resyncCheckins(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	if err := e.resyncLinked(ctx); err != nil {
		result = multierror.Append(result, err)
	}

	err := result.ErrorOrNil()
	if err != nil {
		lg.WithError(err).Warn("resync finished with failures")
	} else {
		lg.Info("resync complete")
	}
	return err
}

// resyncUnlinked replays every platform order not yet linked to a POS id.
// Pending orders get their transaction list attached, exactly as a fresh
// order-created push would carry it.
func (e *Engine) resyncUnlinked(ctx context.Context) error {
	orders, err := e.gw.ListUnlinkedOrders(ctx)
	if err != nil {
		f := remoteFault(err, "list unlinked orders failed")
		return f
	}

	var result *multierror.Error
	for _, o := range orders {
		status, perr := entity.ParseOrderStatus(string(o.Status))
		if perr != nil {
			result = multierror.Append(result, &Fault{
				Code:    FaultProtocol,
				Message: "unlinked order carries unknown status",
				OrderID: o.ID,
				Err:     perr,
			})
			continue
		}
		if status != entity.OrderPending && status != entity.OrderNew {
			continue
		}
		txs, err := e.gw.TransactionsForUnlinkedOrder(ctx, o.ID)
		if err != nil {
			f := remoteFault(err, "list unlinked transactions failed")
			f.OrderID = o.ID
			result = multierror.Append(result, f)
			continue
		}
		o.Transactions = txs
		if err := e.HandleEvent(ctx, realtime.Event{Kind: realtime.EventOrderCreated, Order: &o}); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// resyncCheckins diffs the platform's checked-in consumer set against the
// POS's and synthesizes checkin/checkout events for consumers present on
// one side only. A POS without a consumer listing skips the pass.
func (e *Engine) resyncCheckins(ctx context.Context) error {
	posConsumers, err := e.posa.CheckedInConsumers(ctx)
	if err != nil {
		if errors.Is(err, pos.ErrUnsupported) {
			return nil
		}
		return &Fault{Code: FaultPrecondition, Message: "pos consumer listing failed", Err: err}
	}

	checkins, err := e.gw.ListCheckins(ctx)
	if err != nil {
		return remoteFault(err, "list checkins failed")
	}

	platformSide := make(map[string]entity.Checkin)
	for _, ci := range checkins {
		if ci.Completed || ci.Consumer == nil {
			continue
		}
		platformSide[ci.Consumer.ID] = ci
	}
	posSide := make(map[string]bool, len(posConsumers))
	for _, id := range posConsumers {
		posSide[id] = true
	}

	var result *multierror.Error
	for consumer, ci := range platformSide {
		if posSide[consumer] {
			continue
		}
		ev := realtime.Event{Kind: realtime.EventCheckinCreated, Checkin: &ci}
		if err := e.HandleEvent(ctx, ev); err != nil {
			result = multierror.Append(result, err)
		}
	}
	for _, consumer := range posConsumers {
		if _, ok := platformSide[consumer]; ok {
			continue
		}
		ev := realtime.Event{
			Kind:    realtime.EventCheckout,
			Checkin: &entity.Checkin{Consumer: &entity.Consumer{ID: consumer}},
		}
		if err := e.HandleEvent(ctx, ev); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// resyncLinked replays linked orders still in motion (pending,
// ready-to-pay, cancelled) through the live status handler, and re-issues
// a table allocation wherever the POS's recorded checkin differs from the
// platform copy's.
func (e *Engine) resyncLinked(ctx context.Context) error {
	orders, err := e.gw.ListOrders(ctx,
		entity.OrderPending, entity.OrderReadyToPay, entity.OrderCancelled)
	if err != nil {
		return remoteFault(err, "list linked orders failed")
	}

	var result *multierror.Error
	for _, o := range orders {
		if o.PosID == "" {
			// Unlinked copies are the first pass's business.
			continue
		}
		if err := e.HandleEvent(ctx, realtime.Event{Kind: realtime.EventOrderStatusChanged, Order: &o}); err != nil {
			result = multierror.Append(result, err)
			continue
		}
		if err := e.resyncAllocation(ctx, o); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// resyncAllocation re-pushes the POS view of an order's checkin when the
// platform copy disagrees, covering allocations issued during the outage.
func (e *Engine) resyncAllocation(ctx context.Context, o entity.Order) error {
	recorded, err := e.posa.OrderCheckin(ctx, o.PosID)
	if err != nil {
		if errors.Is(err, pos.ErrNotFound) {
			return nil
		}
		return &Fault{Code: FaultPrecondition, Message: "checkin lookup failed", OrderID: o.ID, Err: err}
	}
	if recorded == "" || recorded == o.CheckinID {
		return nil
	}
	lg := e.opLog("resync_allocation").WithFields(logrus.Fields{
		"order":   o.ID,
		"checkin": recorded,
	})
	return e.pushOrderCheckin(ctx, lg, o, o.PosID, recorded)
}
