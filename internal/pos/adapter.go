// Package pos declares the capability set a point of sale implements for
// the reconciliation core. The core never touches POS storage directly;
// everything it knows about local state comes through these interfaces.
//
// Adapter is the required capability set. The loyalty and booking
// capabilities are optional: a POS that does not support them leaves the
// corresponding Capabilities field nil, and the core reports a typed
// unsupported fault instead of calling through.
package pos

import (
	"context"
	"errors"

	"github.com/opentab/possync/internal/entity"
)

// ErrNotFound is returned when a POS-local entity does not exist. The POS
// adapter is the only authority for "does this order still exist on the
// POS", so the core treats this error as definitive.
var ErrNotFound = errors.New("pos: not found")

// ErrUnsupported is returned by optional operations a particular POS does
// not implement (for example the checked-in consumer listing).
var ErrUnsupported = errors.New("pos: unsupported")

// CaptureMode selects how order acceptance and payment capture relate.
type CaptureMode string

const (
	// CaptureBistro is single-pass: payment is captured at the moment of
	// acceptance and no later confirmation round exists.
	CaptureBistro CaptureMode = "bistro"
	// CaptureRestaurant is multi-pass: acceptance and capture are separate
	// rounds, the latter triggered by a ready-to-pay push.
	CaptureRestaurant CaptureMode = "restaurant"
)

// Valid reports whether m is a known capture mode.
func (m CaptureMode) Valid() bool {
	return m == CaptureBistro || m == CaptureRestaurant
}

// PaymentScope tells the POS how much of a new order's payment arrived
// attached to it.
type PaymentScope string

const (
	// PaymentFull: attached transactions cover the whole total.
	PaymentFull PaymentScope = "full"
	// PaymentAwaiting: transactions are attached but do not cover; the
	// ready-to-pay round settles the rest.
	PaymentAwaiting PaymentScope = "awaiting"
)

// Judgment is the POS's answer to an availability check on an order with
// no attached payment.
type Judgment struct {
	Approved bool
	// Reasons explains a refusal, forwarded to the platform.
	Reasons []string
	// PosOrderID is the POS-local id assigned when Approved is true.
	PosOrderID string
	// Order is the POS's possibly re-priced copy. The POS is the pricing
	// source of truth and may rewrite lines before acceptance.
	Order entity.Order
}

// Adapter is the required POS capability set.
type Adapter interface {
	// Order retrieves an order by its POS-local id.
	Order(ctx context.Context, posID string) (entity.Order, error)

	// OrderByPlatformID resolves a platform order id to the POS-local
	// order. The adapter owns this mapping.
	OrderByPlatformID(ctx context.Context, platformID string) (entity.Order, error)

	// OrderVersion returns the version last recorded for a POS order.
	OrderVersion(ctx context.Context, posID string) (string, error)

	// RecordOrderVersion stores the version the platform returned on the
	// last successful exchange for this order.
	RecordOrderVersion(ctx context.Context, posID, version string) error

	// OrderCheckin returns the checkin id associated with a POS order, or
	// "" when none is recorded.
	OrderCheckin(ctx context.Context, posID string) (string, error)

	// RecordOrderCheckin stores (or clears, with "") the checkin
	// association for a POS order.
	RecordOrderCheckin(ctx context.Context, posID, checkinID string) error

	// JudgeAvailability asks the POS to judge product availability and
	// pricing for an order with no attached payment.
	JudgeAvailability(ctx context.Context, o entity.Order, mode CaptureMode) (Judgment, error)

	// ConfirmNewOrder records a platform-created order on the POS with the
	// given payment scope, split by delivery/pickup/unknown type. Returns
	// the assigned POS-local id.
	ConfirmNewOrder(ctx context.Context, o entity.Order, scope PaymentScope, typ entity.OrderType) (string, error)

	// RejectOrder records that a platform-created order was refused.
	RejectOrder(ctx context.Context, o entity.Order, reasons []string) error

	// CancelOrder notifies the POS that the platform cancelled an order.
	CancelOrder(ctx context.Context, posID string) error

	// ReconcileTotals lets the POS rewrite an order's lines and totals
	// before payment. Called on ready-to-pay; the returned order is what
	// gets pushed back to the platform.
	ReconcileTotals(ctx context.Context, o entity.Order) (entity.Order, error)

	// RecordTransactionVersion stores a transaction's platform version.
	RecordTransactionVersion(ctx context.Context, txID, version string) error

	// ReadyToPay asks the POS whether a platform-pushed pending
	// transaction is payable. ok=false means the POS declines; the claim
	// is then rejected. The returned transaction may adjust the amount
	// when the claim allows accepting less.
	ReadyToPay(ctx context.Context, posOrderID string, tx entity.Transaction) (entity.Transaction, bool, error)

	// RecordPayment records a successful capture against a POS order.
	// partial marks captures that leave a positive not-paying total.
	RecordPayment(ctx context.Context, posOrderID string, tx entity.Transaction, partial bool) error

	// CancelPayment releases any inventory or tender the POS held for a
	// claim that resolved to a local cancel.
	CancelPayment(ctx context.Context, tx entity.Transaction) error

	// RecordCheckin records a platform checkin (a consumer seated at
	// tables) on the POS.
	RecordCheckin(ctx context.Context, ci entity.Checkin) error

	// RecordCheckout records that a consumer's checkin closed.
	RecordCheckout(ctx context.Context, consumerID string) error

	// CheckedInConsumers lists consumer ids the POS currently shows as
	// checked in. May return ErrUnsupported.
	CheckedInConsumers(ctx context.Context) ([]string, error)

	// ReleasePlatformState tells the POS to stop treating any order or
	// checkin as platform-managed. Fired once per connection outage so the
	// POS can continue operating autonomously.
	ReleasePlatformState(ctx context.Context) error
}
