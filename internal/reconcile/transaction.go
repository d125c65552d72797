package reconcile

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/opentab/possync/internal/entity"
	"github.com/opentab/possync/internal/platform"
	"github.com/opentab/possync/internal/pos"
)

// HandleTransaction is the single entry point for platform transaction
// pushes, for live events and resync replay alike. Processing is
// serialized per order id, alongside that order's own events.
func (e *Engine) HandleTransaction(ctx context.Context, tx entity.Transaction) error {
	lg := e.opLog("transaction").WithFields(logrus.Fields{
		"transaction": tx.ID,
		"order":       tx.OrderID,
		"status":      string(tx.Status),
	})

	status, err := entity.ParseTransactionStatus(string(tx.Status))
	if err != nil {
		f := &Fault{Code: FaultProtocol, Message: err.Error(), TransactionID: tx.ID, Err: err}
		lg.WithError(f).Error("protocol violation")
		return f
	}

	unlock := e.locks.lock(tx.OrderID)
	defer unlock()

	switch status {
	case entity.TxPending:
		return e.processPendingTransaction(ctx, lg, tx)
	case entity.TxComplete:
		return e.syncTransactionVersion(ctx, lg, tx)
	case entity.TxCancelled:
		if err := e.syncTransactionVersion(ctx, lg, tx); err != nil {
			return err
		}
		if err := e.posa.CancelPayment(ctx, tx); err != nil {
			return &Fault{Code: FaultPrecondition, Message: "pos cancellation hook failed", TransactionID: tx.ID, Err: err}
		}
		return nil
	default:
		// waiting and rejected pushes carry only a version refresh.
		return e.syncTransactionVersion(ctx, lg, tx)
	}
}

// processPendingTransaction resolves a platform-initiated payment claim:
// the POS either declares the order payable (claim follows) or the claim
// is rejected. An order unknown to the POS always rejects.
func (e *Engine) processPendingTransaction(ctx context.Context, lg *logrus.Entry, tx entity.Transaction) error {
	local, err := e.posa.OrderByPlatformID(ctx, tx.OrderID)
	if err != nil {
		if errors.Is(err, pos.ErrNotFound) {
			lg.Warn("pending transaction for order unknown to pos, rejecting")
			return e.rejectPayment(ctx, lg, tx)
		}
		return &Fault{Code: FaultPrecondition, Message: "order lookup failed", TransactionID: tx.ID, Err: err}
	}

	answer, ok, err := e.posa.ReadyToPay(ctx, local.PosID, tx)
	if err != nil {
		return &Fault{Code: FaultPrecondition, Message: "ready-to-pay judgment failed", TransactionID: tx.ID, Err: err}
	}
	if !ok {
		lg.Info("pos declined payment, rejecting")
		return e.rejectPayment(ctx, lg, tx)
	}

	if err := e.posa.RecordTransactionVersion(ctx, tx.ID, tx.Version); err != nil {
		return &Fault{Code: FaultPrecondition, Message: "record transaction version failed", TransactionID: tx.ID, Err: err}
	}

	answer.ID = tx.ID
	answer.OrderID = tx.OrderID
	answer.Version = tx.Version
	return e.claimPayment(ctx, lg, answer)
}

// claimPayment pushes the claim as waiting. A failed claim is never
// retried: whatever the fault, the claim resolves to a local cancel so
// the POS releases any held inventory or tender. Only on success is the
// payment recorded locally, with the returned version persisted.
func (e *Engine) claimPayment(ctx context.Context, lg *logrus.Entry, tx entity.Transaction) error {
	tx.Status = entity.TxWaiting
	out, err := e.gw.UpdateTransaction(ctx, tx)
	if err != nil {
		switch {
		case platform.IsNotFound(err):
			lg.WithError(err).Warn("claim answered not-found, cancelling locally")
		case platform.IsConflict(err):
			lg.WithError(err).Warn("payment already claimed, cancelling locally")
		default:
			lg.WithError(err).Error("claim failed, cancelling locally")
		}
		if cerr := e.posa.CancelPayment(ctx, tx); cerr != nil {
			lg.WithError(cerr).Error("local payment cancel failed")
		}
		f := remoteFault(err, "payment claim failed")
		f.TransactionID = tx.ID
		return f
	}

	if out.ID != tx.ID {
		// The platform confirmed some other claim; treat as failed.
		lg.WithField("returned", out.ID).Error("claim echo mismatch, cancelling locally")
		if cerr := e.posa.CancelPayment(ctx, tx); cerr != nil {
			lg.WithError(cerr).Error("local payment cancel failed")
		}
		return &Fault{Code: FaultProtocol, Message: "claim echoed a different transaction", TransactionID: tx.ID}
	}

	local, err := e.posa.OrderByPlatformID(ctx, tx.OrderID)
	if err != nil {
		return &Fault{Code: FaultPrecondition, Message: "order lookup after claim failed", TransactionID: tx.ID, Err: err}
	}
	if err := e.posa.RecordPayment(ctx, local.PosID, out, false); err != nil {
		return &Fault{Code: FaultPrecondition, Message: "record payment failed", TransactionID: tx.ID, Err: err}
	}
	if err := e.posa.RecordTransactionVersion(ctx, out.ID, out.Version); err != nil {
		return &Fault{Code: FaultPrecondition, Message: "record transaction version failed", TransactionID: tx.ID, Err: err}
	}
	lg.WithField("amount", int64(out.Amount)).Info("payment claimed")
	return nil
}

// rejectPayment pushes the claim as rejected. The platform confirms a
// reject by echoing the transaction as complete; any other outcome is a
// failed rejection.
func (e *Engine) rejectPayment(ctx context.Context, lg *logrus.Entry, tx entity.Transaction) error {
	tx.Status = entity.TxRejected
	out, err := e.gw.UpdateTransaction(ctx, tx)
	if err != nil {
		f := remoteFault(err, "payment rejection failed")
		f.TransactionID = tx.ID
		lg.WithError(f).Error("reject payment failed")
		return f
	}
	if out.Status != entity.TxComplete {
		f := &Fault{
			Code:          FaultProtocol,
			Message:       "rejection not confirmed by platform, got " + string(out.Status),
			TransactionID: tx.ID,
		}
		lg.WithError(f).Error("reject payment failed")
		return f
	}
	lg.Info("payment rejected")
	return nil
}

// syncTransactionVersion re-synchronizes the version for a terminal push
// that arrived outside the pending path.
func (e *Engine) syncTransactionVersion(ctx context.Context, lg *logrus.Entry, tx entity.Transaction) error {
	if tx.Version == "" {
		return nil
	}
	if err := e.posa.RecordTransactionVersion(ctx, tx.ID, tx.Version); err != nil {
		return &Fault{Code: FaultPrecondition, Message: "record transaction version failed", TransactionID: tx.ID, Err: err}
	}
	lg.Debug("transaction version synchronized")
	return nil
}
