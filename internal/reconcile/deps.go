// Package reconcile is the order/transaction reconciliation engine: it
// turns push events and locally-initiated POS actions into corrective and
// confirming platform calls, keeps the POS adapter's view consistent, and
// re-derives the whole in-flight set after a connection outage.
//
// Every reconciliation either completes its state transition or leaves
// both sides in their prior-known-good state: local effects are recorded
// only after the corresponding remote call succeeded. Resync enters
// through the same handlers as live events, so replaying an
// already-handled event is a no-op once the POS reflects the outcome.
package reconcile

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opentab/possync/internal/entity"
	"github.com/opentab/possync/internal/pos"
)

// Gateway is the slice of the remote call surface the core consumes.
// *platform.Client satisfies it; tests plug a fake.
type Gateway interface {
	GetOrder(ctx context.Context, id string) (entity.Order, error)
	UpdateOrder(ctx context.Context, o entity.Order) (entity.Order, error)
	ResolveNewOrder(ctx context.Context, res entity.OrderResolution) (entity.Order, error)
	ListOrders(ctx context.Context, statuses ...entity.OrderStatus) ([]entity.Order, error)
	ListUnlinkedOrders(ctx context.Context) ([]entity.Order, error)

	UpdateTransaction(ctx context.Context, tx entity.Transaction) (entity.Transaction, error)
	TransactionsForOrder(ctx context.Context, orderID string) ([]entity.Transaction, error)
	TransactionsForUnlinkedOrder(ctx context.Context, orderID string) ([]entity.Transaction, error)

	CreateCheckin(ctx context.Context, ci entity.Checkin) (entity.Checkin, error)
	UpdateCheckin(ctx context.Context, ci entity.Checkin) (entity.Checkin, error)
	GetCheckin(ctx context.Context, id string) (entity.Checkin, error)
	ListCheckins(ctx context.Context) ([]entity.Checkin, error)
	CloseCheckin(ctx context.Context, id string) error

	GetBooking(ctx context.Context, id string) (entity.Booking, error)
	SeatBooking(ctx context.Context, bookingID, posOrderID string) (entity.Checkin, error)

	ClaimReward(ctx context.Context, memberID, rewardID, version string) error
}

// TokenGenerator produces correlation tokens; one is minted per handled
// event and carried on every log line of that reconciliation.
type TokenGenerator interface {
	Generate() string
}

// UUIDGenerator is the production token generator.
type UUIDGenerator struct{}

// Generate returns a random UUID string.
func (UUIDGenerator) Generate() string {
	return uuid.NewString()
}

// Deps is the engine's dependency set. It is built once, with every
// cross-component reference resolved before first use, and never mutated
// afterwards. Optional POS capabilities live in Caps; everything else is
// required.
type Deps struct {
	Gateway Gateway
	POS     pos.Adapter
	Caps    pos.Capabilities
	Mode    pos.CaptureMode

	// Tokens defaults to UUIDGenerator.
	Tokens TokenGenerator

	// Logger defaults to the standard logrus logger.
	Logger *logrus.Logger
}

// Engine is the reconciliation core. It implements realtime.Handler and
// exposes the locally-initiated operations (order-ahead decisions, table
// allocation, seating, reward redemption).
type Engine struct {
	gw     Gateway
	posa   pos.Adapter
	caps   pos.Capabilities
	mode   pos.CaptureMode
	tokens TokenGenerator
	log    *logrus.Entry

	locks *orderLocks

	// released tracks whether the current outage already told the POS to
	// disassociate platform state. Reset on connect.
	released bool
}

// New validates deps and builds an engine.
func New(deps Deps) (*Engine, error) {
	if deps.Gateway == nil {
		return nil, fmt.Errorf("reconcile: gateway is required")
	}
	if deps.POS == nil {
		return nil, fmt.Errorf("reconcile: pos adapter is required")
	}
	if !deps.Mode.Valid() {
		return nil, fmt.Errorf("reconcile: invalid capture mode %q", deps.Mode)
	}
	tokens := deps.Tokens
	if tokens == nil {
		tokens = UUIDGenerator{}
	}
	lg := deps.Logger
	if lg == nil {
		lg = logrus.StandardLogger()
	}
	return &Engine{
		gw:     deps.Gateway,
		posa:   deps.POS,
		caps:   deps.Caps,
		mode:   deps.Mode,
		tokens: tokens,
		log:    lg.WithField("component", "reconcile"),
		locks:  newOrderLocks(),
	}, nil
}

// opLog mints a correlation token and returns the log entry for one
// reconciliation operation.
func (e *Engine) opLog(op string) *logrus.Entry {
	return e.log.WithFields(logrus.Fields{
		"op":    op,
		"token": e.tokens.Generate(),
	})
}
