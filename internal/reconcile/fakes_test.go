package reconcile

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/opentab/possync/internal/entity"
	"github.com/opentab/possync/internal/platform"
	"github.com/opentab/possync/internal/pos"
	"github.com/opentab/possync/internal/testutil"
)

// Gateway must be satisfiable by the production client.
var _ Gateway = (*platform.Client)(nil)

func notFoundErr() error {
	return &platform.Error{Status: http.StatusNotFound, Message: "not found"}
}

func conflictErr() error {
	return &platform.Error{Status: http.StatusConflict, Message: "version conflict"}
}

// fakeGateway is an in-memory platform. Updates bump a shared revision
// counter so returned versions are fresh and deterministic: v1, v2, ...
type fakeGateway struct {
	mu sync.Mutex

	orders   map[string]entity.Order
	unlinked []entity.Order
	txs      map[string][]entity.Transaction
	checkins map[string]entity.Checkin
	bookings map[string]entity.Booking

	rev       int
	checkinID int

	// Error/behavior injection. Nil hooks fall through to the default.
	resolveErr      error
	updateOrderFn   func(entity.Order) (entity.Order, error)
	updateTxFn      func(entity.Transaction) (entity.Transaction, error)
	updateCheckinFn func(entity.Checkin) (entity.Checkin, error)
	// createCheckinEnter, when set, runs at CreateCheckin entry before any
	// state changes; tests use it to stage interleavings.
	createCheckinEnter func()
	seatErr         error
	claimRewardErr  error
	listUnlinkedErr error

	calls []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		orders:   map[string]entity.Order{},
		txs:      map[string][]entity.Transaction{},
		checkins: map[string]entity.Checkin{},
		bookings: map[string]entity.Booking{},
	}
}

func (g *fakeGateway) record(call string) {
	g.calls = append(g.calls, call)
}

// count returns how many recorded calls start with prefix.
func (g *fakeGateway) count(prefix string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

func (g *fakeGateway) nextVersion() string {
	g.rev++
	return fmt.Sprintf("v%d", g.rev)
}

func (g *fakeGateway) GetOrder(ctx context.Context, id string) (entity.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("GetOrder:" + id)
	o, ok := g.orders[id]
	if !ok {
		return entity.Order{}, notFoundErr()
	}
	return o, nil
}

func (g *fakeGateway) UpdateOrder(ctx context.Context, o entity.Order) (entity.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("UpdateOrder:" + string(o.Status))
	if g.updateOrderFn != nil {
		return g.updateOrderFn(o)
	}
	o.Version = g.nextVersion()
	g.orders[o.ID] = o
	return o, nil
}

func (g *fakeGateway) ResolveNewOrder(ctx context.Context, res entity.OrderResolution) (entity.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("ResolveNewOrder:" + string(res.Status))
	if g.resolveErr != nil {
		return entity.Order{}, g.resolveErr
	}
	o := res.Order
	o.Status = res.Status
	o.Version = g.nextVersion()
	g.orders[o.ID] = o
	return o, nil
}

func (g *fakeGateway) ListOrders(ctx context.Context, statuses ...entity.OrderStatus) ([]entity.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("ListOrders")
	want := map[entity.OrderStatus]bool{}
	for _, s := range statuses {
		want[s] = true
	}
	var out []entity.Order
	for _, o := range g.orders {
		if len(want) == 0 || want[o.Status] {
			out = append(out, o)
		}
	}
	return out, nil
}

func (g *fakeGateway) ListUnlinkedOrders(ctx context.Context) ([]entity.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("ListUnlinkedOrders")
	if g.listUnlinkedErr != nil {
		return nil, g.listUnlinkedErr
	}
	return g.unlinked, nil
}

func (g *fakeGateway) UpdateTransaction(ctx context.Context, tx entity.Transaction) (entity.Transaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("UpdateTransaction:" + string(tx.Status))
	if g.updateTxFn != nil {
		return g.updateTxFn(tx)
	}
	out := tx
	out.Version = g.nextVersion()
	if tx.Status == entity.TxRejected {
		// The platform confirms rejections by echoing complete.
		out.Status = entity.TxComplete
	}
	return out, nil
}

func (g *fakeGateway) TransactionsForOrder(ctx context.Context, orderID string) ([]entity.Transaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("TransactionsForOrder:" + orderID)
	return g.txs[orderID], nil
}

func (g *fakeGateway) TransactionsForUnlinkedOrder(ctx context.Context, orderID string) ([]entity.Transaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("TransactionsForUnlinkedOrder:" + orderID)
	return g.txs[orderID], nil
}

func (g *fakeGateway) CreateCheckin(ctx context.Context, ci entity.Checkin) (entity.Checkin, error) {
	if g.createCheckinEnter != nil {
		g.createCheckinEnter()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("CreateCheckin")
	g.checkinID++
	ci.ID = fmt.Sprintf("ci-%d", g.checkinID)
	ci.Version = g.nextVersion()
	g.checkins[ci.ID] = ci
	return ci, nil
}

func (g *fakeGateway) UpdateCheckin(ctx context.Context, ci entity.Checkin) (entity.Checkin, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("UpdateCheckin:" + ci.ID)
	if g.updateCheckinFn != nil {
		return g.updateCheckinFn(ci)
	}
	ci.Version = g.nextVersion()
	g.checkins[ci.ID] = ci
	return ci, nil
}

func (g *fakeGateway) GetCheckin(ctx context.Context, id string) (entity.Checkin, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("GetCheckin:" + id)
	ci, ok := g.checkins[id]
	if !ok {
		return entity.Checkin{}, notFoundErr()
	}
	return ci, nil
}

func (g *fakeGateway) ListCheckins(ctx context.Context) ([]entity.Checkin, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("ListCheckins")
	var out []entity.Checkin
	for _, ci := range g.checkins {
		out = append(out, ci)
	}
	return out, nil
}

func (g *fakeGateway) CloseCheckin(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("CloseCheckin:" + id)
	ci, ok := g.checkins[id]
	if !ok {
		return notFoundErr()
	}
	ci.Completed = true
	g.checkins[id] = ci
	return nil
}

func (g *fakeGateway) GetBooking(ctx context.Context, id string) (entity.Booking, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("GetBooking:" + id)
	b, ok := g.bookings[id]
	if !ok {
		return entity.Booking{}, notFoundErr()
	}
	return b, nil
}

func (g *fakeGateway) SeatBooking(ctx context.Context, bookingID, posOrderID string) (entity.Checkin, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("SeatBooking:" + bookingID)
	if g.seatErr != nil {
		return entity.Checkin{}, g.seatErr
	}
	g.checkinID++
	ci := entity.Checkin{ID: fmt.Sprintf("ci-%d", g.checkinID), Version: g.nextVersion()}
	g.checkins[ci.ID] = ci
	return ci, nil
}

func (g *fakeGateway) ClaimReward(ctx context.Context, memberID, rewardID, version string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("ClaimReward:" + rewardID)
	return g.claimRewardErr
}

type fakePayment struct {
	posOrderID string
	tx         entity.Transaction
	partial    bool
}

// fakeAdapter is an in-memory POS. It also implements the member, reward
// and booking capabilities; tests pick which ones to expose through Caps.
type fakeAdapter struct {
	mu sync.Mutex

	byPos     map[string]entity.Order
	posByPlat map[string]string
	versions  map[string]string
	txVers    map[string]string
	checkins  map[string]string

	approve bool
	reasons []string
	readyOK bool

	nextID int

	payments  []fakePayment
	cancelled []string
	cancels   []string
	rejected  []entity.Order

	recordedCheckins []entity.Checkin
	checkouts        []string
	consumers        []string
	consumersErr     error
	releases         int

	members  map[string]entity.Member
	bookings map[string]entity.Booking
	seated   map[string]string

	confirms int
	judges   int
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		byPos:     map[string]entity.Order{},
		posByPlat: map[string]string{},
		versions:  map[string]string{},
		txVers:    map[string]string{},
		checkins:  map[string]string{},
		members:   map[string]entity.Member{},
		bookings:  map[string]entity.Booking{},
		seated:    map[string]string{},
		approve:   true,
		readyOK:   true,
	}
}

func (a *fakeAdapter) assignID() string {
	a.nextID++
	return fmt.Sprintf("pos-%d", a.nextID)
}

// link stores an order under a fresh POS id, pre-linking it for tests.
func (a *fakeAdapter) link(o entity.Order) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	posID := a.assignID()
	o.PosID = posID
	a.byPos[posID] = o
	if o.ID != "" {
		a.posByPlat[o.ID] = posID
	}
	a.versions[posID] = o.Version
	return posID
}

func (a *fakeAdapter) Order(ctx context.Context, posID string) (entity.Order, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	o, ok := a.byPos[posID]
	if !ok {
		return entity.Order{}, pos.ErrNotFound
	}
	return o, nil
}

func (a *fakeAdapter) OrderByPlatformID(ctx context.Context, platformID string) (entity.Order, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	posID, ok := a.posByPlat[platformID]
	if !ok {
		return entity.Order{}, pos.ErrNotFound
	}
	return a.byPos[posID], nil
}

func (a *fakeAdapter) OrderVersion(ctx context.Context, posID string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.versions[posID]
	if !ok {
		return "", pos.ErrNotFound
	}
	return v, nil
}

func (a *fakeAdapter) RecordOrderVersion(ctx context.Context, posID, version string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.versions[posID] = version
	return nil
}

func (a *fakeAdapter) OrderCheckin(ctx context.Context, posID string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.byPos[posID]; !ok {
		return "", pos.ErrNotFound
	}
	return a.checkins[posID], nil
}

func (a *fakeAdapter) RecordOrderCheckin(ctx context.Context, posID, checkinID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.checkins[posID] = checkinID
	return nil
}

func (a *fakeAdapter) JudgeAvailability(ctx context.Context, o entity.Order, mode pos.CaptureMode) (pos.Judgment, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.judges++
	if !a.approve {
		return pos.Judgment{Approved: false, Reasons: a.reasons}, nil
	}
	posID := a.assignID()
	o.PosID = posID
	a.byPos[posID] = o
	if o.ID != "" {
		a.posByPlat[o.ID] = posID
	}
	return pos.Judgment{Approved: true, PosOrderID: posID, Order: o}, nil
}

func (a *fakeAdapter) ConfirmNewOrder(ctx context.Context, o entity.Order, scope pos.PaymentScope, typ entity.OrderType) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if posID, ok := a.posByPlat[o.ID]; ok {
		return posID, nil
	}
	a.confirms++
	posID := a.assignID()
	o.PosID = posID
	a.byPos[posID] = o
	a.posByPlat[o.ID] = posID
	return posID, nil
}

func (a *fakeAdapter) RejectOrder(ctx context.Context, o entity.Order, reasons []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rejected = append(a.rejected, o)
	if _, ok := a.posByPlat[o.ID]; !ok && o.ID != "" {
		posID := a.assignID()
		o.Status = entity.OrderRejected
		a.byPos[posID] = o
		a.posByPlat[o.ID] = posID
	}
	return nil
}

func (a *fakeAdapter) CancelOrder(ctx context.Context, posID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancels = append(a.cancels, posID)
	o := a.byPos[posID]
	o.Status = entity.OrderCancelled
	a.byPos[posID] = o
	return nil
}

func (a *fakeAdapter) ReconcileTotals(ctx context.Context, o entity.Order) (entity.Order, error) {
	return o, nil
}

func (a *fakeAdapter) RecordTransactionVersion(ctx context.Context, txID, version string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.txVers[txID] = version
	return nil
}

func (a *fakeAdapter) ReadyToPay(ctx context.Context, posOrderID string, tx entity.Transaction) (entity.Transaction, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.readyOK {
		return entity.Transaction{}, false, nil
	}
	return tx, true, nil
}

func (a *fakeAdapter) RecordPayment(ctx context.Context, posOrderID string, tx entity.Transaction, partial bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.payments = append(a.payments, fakePayment{posOrderID: posOrderID, tx: tx, partial: partial})
	return nil
}

func (a *fakeAdapter) CancelPayment(ctx context.Context, tx entity.Transaction) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancelled = append(a.cancelled, tx.ID)
	return nil
}

func (a *fakeAdapter) RecordCheckin(ctx context.Context, ci entity.Checkin) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordedCheckins = append(a.recordedCheckins, ci)
	if ci.Consumer != nil {
		a.consumers = append(a.consumers, ci.Consumer.ID)
	}
	return nil
}

func (a *fakeAdapter) RecordCheckout(ctx context.Context, consumerID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.checkouts = append(a.checkouts, consumerID)
	kept := a.consumers[:0]
	for _, c := range a.consumers {
		if c != consumerID {
			kept = append(kept, c)
		}
	}
	a.consumers = kept
	return nil
}

func (a *fakeAdapter) CheckedInConsumers(ctx context.Context) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.consumersErr != nil {
		return nil, a.consumersErr
	}
	out := make([]string, len(a.consumers))
	copy(out, a.consumers)
	return out, nil
}

func (a *fakeAdapter) ReleasePlatformState(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.releases++
	return nil
}

func (a *fakeAdapter) CreateMember(ctx context.Context, m entity.Member) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.members[m.ID] = m
	return nil
}

func (a *fakeAdapter) UpdateMember(ctx context.Context, m entity.Member) error {
	return a.CreateMember(ctx, m)
}

func (a *fakeAdapter) DeleteMember(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.members, id)
	return nil
}

func (a *fakeAdapter) ApplyReward(ctx context.Context, posOrderID string, r entity.Reward) (entity.Order, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	o, ok := a.byPos[posOrderID]
	if !ok {
		return entity.Order{}, pos.ErrNotFound
	}
	o.Surcounts = append(o.Surcounts, entity.Surcount{Name: r.Name, Amount: -r.Amount})
	a.byPos[posOrderID] = o
	return o, nil
}

func (a *fakeAdapter) CreateBooking(ctx context.Context, b entity.Booking) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bookings[b.ID] = b
	return nil
}

func (a *fakeAdapter) UpdateBooking(ctx context.Context, b entity.Booking) error {
	return a.CreateBooking(ctx, b)
}

func (a *fakeAdapter) DeleteBooking(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.bookings, id)
	return nil
}

func (a *fakeAdapter) RecordBookingCheckin(ctx context.Context, bookingID, checkinID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seated[bookingID] = checkinID
	return nil
}

var _ pos.Adapter = (*fakeAdapter)(nil)

func testLogger() *logrus.Logger {
	lg := logrus.New()
	lg.SetOutput(io.Discard)
	return lg
}

func newTestEngine(t *testing.T, mode pos.CaptureMode, gw *fakeGateway, ad *fakeAdapter, caps pos.Capabilities) *Engine {
	t.Helper()
	eng, err := New(Deps{
		Gateway: gw,
		POS:     ad,
		Caps:    caps,
		Mode:    mode,
		Tokens:  &testutil.SequentialTokenGenerator{},
		Logger:  testLogger(),
	})
	require.NoError(t, err)
	return eng
}

func allCaps(ad *fakeAdapter) pos.Capabilities {
	return pos.Capabilities{Member: ad, Reward: ad, Booking: ad}
}
