package reconcile

import (
	"errors"
	"fmt"

	"github.com/opentab/possync/internal/platform"
	"github.com/opentab/possync/internal/pos"
)

// FaultCode categorizes reconciliation failures. Callers branch on the
// code, never on message text or nil-ness of a partial result.
type FaultCode string

const (
	// FaultConflict: a version the platform rejected as stale. The caller
	// must re-fetch and retry; local state was not mutated.
	FaultConflict FaultCode = "CONFLICT"

	// FaultNotFound: a referenced entity is gone on one side; dependent
	// local state is cancelled.
	FaultNotFound FaultCode = "NOT_FOUND"

	// FaultPaymentRequired: the platform refused a payment claim.
	FaultPaymentRequired FaultCode = "PAYMENT_REQUIRED"

	// FaultPrecondition: a local precondition failed (missing POS order,
	// nil entity where one was required, seating criteria mismatch).
	// Always logged, always aborts the enclosing operation.
	FaultPrecondition FaultCode = "PRECONDITION"

	// FaultProtocol: the platform sent a value outside the contract. Fatal
	// for the current event; never caught and ignored.
	FaultProtocol FaultCode = "PROTOCOL"

	// FaultUnsupported: the POS does not provide the optional capability
	// the operation needs.
	FaultUnsupported FaultCode = "UNSUPPORTED"

	// FaultTransient: a 5xx-class or network failure; the operation
	// aborted and both sides keep their prior-known-good state.
	FaultTransient FaultCode = "TRANSIENT"
)

// Fault is the reconciliation core's typed error.
type Fault struct {
	Code    FaultCode
	Message string

	// Entity references, set when known.
	OrderID       string
	TransactionID string
	CheckinID     string
	BookingID     string

	// Err is the underlying cause, when one exists.
	Err error
}

// Error implements the error interface.
func (f *Fault) Error() string {
	msg := fmt.Sprintf("%s: %s", f.Code, f.Message)
	if f.OrderID != "" {
		msg += fmt.Sprintf(" (order=%s)", f.OrderID)
	}
	if f.TransactionID != "" {
		msg += fmt.Sprintf(" (transaction=%s)", f.TransactionID)
	}
	if f.Err != nil {
		msg += ": " + f.Err.Error()
	}
	return msg
}

// Unwrap exposes the underlying cause to errors.Is/As.
func (f *Fault) Unwrap() error {
	return f.Err
}

// CodeOf returns the fault code of err, or "" when err carries none.
func CodeOf(err error) FaultCode {
	var f *Fault
	if errors.As(err, &f) {
		return f.Code
	}
	return ""
}

// IsConflict reports whether err is a version conflict fault.
func IsConflict(err error) bool { return CodeOf(err) == FaultConflict }

// IsNotFound reports whether err is a not-found fault.
func IsNotFound(err error) bool { return CodeOf(err) == FaultNotFound }

// IsPrecondition reports whether err is a local precondition fault.
func IsPrecondition(err error) bool { return CodeOf(err) == FaultPrecondition }

// IsProtocol reports whether err is a protocol violation fault.
func IsProtocol(err error) bool { return CodeOf(err) == FaultProtocol }

// IsUnsupported reports whether err is a missing-capability fault.
func IsUnsupported(err error) bool { return CodeOf(err) == FaultUnsupported }

// remoteFault maps a gateway error onto the fault taxonomy, preserving
// the cause. POS not-found errors map to FaultNotFound as well.
func remoteFault(err error, msg string) *Fault {
	f := &Fault{Message: msg, Err: err}
	switch {
	case platform.IsConflict(err):
		f.Code = FaultConflict
	case platform.IsNotFound(err), errors.Is(err, pos.ErrNotFound):
		f.Code = FaultNotFound
	case platform.IsPaymentRequired(err):
		f.Code = FaultPaymentRequired
	default:
		f.Code = FaultTransient
	}
	return f
}
