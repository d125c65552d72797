package posstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/opentab/possync/internal/entity"
	"github.com/opentab/possync/internal/pos"
)

// Judge is the availability policy hook. The default approves everything
// and echoes the order unchanged; a venue plugs real stock checks here.
type Judge func(o entity.Order, mode pos.CaptureMode) (approved bool, reasons []string)

// Adapter implements pos.Adapter plus the optional member, booking and
// reward capabilities on top of a Store.
type Adapter struct {
	store *Store
	judge Judge
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithJudge sets the availability policy.
func WithJudge(j Judge) Option {
	return func(a *Adapter) { a.judge = j }
}

// NewAdapter builds an adapter over an open store.
func NewAdapter(store *Store, opts ...Option) *Adapter {
	a := &Adapter{
		store: store,
		judge: func(entity.Order, pos.CaptureMode) (bool, []string) { return true, nil },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Capabilities returns the optional capability set this adapter provides.
// It provides all three.
func (a *Adapter) Capabilities() pos.Capabilities {
	return pos.Capabilities{Member: a, Reward: a, Booking: a}
}

func (a *Adapter) loadOrder(ctx context.Context, where, arg string) (entity.Order, error) {
	row := a.store.db.QueryRowContext(ctx,
		"SELECT pos_id, COALESCE(platform_id, ''), status, version, checkin_id, body FROM orders WHERE "+where, arg)

	var posID, platformID, status, version, checkinID, body string
	if err := row.Scan(&posID, &platformID, &status, &version, &checkinID, &body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.Order{}, pos.ErrNotFound
		}
		return entity.Order{}, fmt.Errorf("posstore: load order: %w", err)
	}

	var o entity.Order
	if err := json.Unmarshal([]byte(body), &o); err != nil {
		return entity.Order{}, fmt.Errorf("posstore: decode order body: %w", err)
	}
	o.PosID = posID
	o.ID = platformID
	o.Status = entity.OrderStatus(status)
	o.Version = version
	o.CheckinID = checkinID
	return o, nil
}

func (a *Adapter) saveOrder(ctx context.Context, posID string, o entity.Order, status entity.OrderStatus) error {
	body, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("posstore: encode order body: %w", err)
	}
	_, err = a.store.db.ExecContext(ctx, `
		INSERT INTO orders (pos_id, platform_id, status, version, checkin_id, body)
		VALUES (?, NULLIF(?, ''), ?, ?, ?, ?)
		ON CONFLICT(pos_id) DO UPDATE SET status = excluded.status, body = excluded.body
	`, posID, o.ID, string(status), o.Version, o.CheckinID, string(body))
	if err != nil {
		return fmt.Errorf("posstore: save order: %w", err)
	}
	return nil
}

// Order retrieves an order by POS id.
func (a *Adapter) Order(ctx context.Context, posID string) (entity.Order, error) {
	return a.loadOrder(ctx, "pos_id = ?", posID)
}

// OrderByPlatformID resolves a platform id to the POS order.
func (a *Adapter) OrderByPlatformID(ctx context.Context, platformID string) (entity.Order, error) {
	return a.loadOrder(ctx, "platform_id = ?", platformID)
}

// OrderVersion returns the last recorded version for a POS order.
func (a *Adapter) OrderVersion(ctx context.Context, posID string) (string, error) {
	return a.orderColumn(ctx, posID, "version")
}

// RecordOrderVersion stores the platform's latest version token.
func (a *Adapter) RecordOrderVersion(ctx context.Context, posID, version string) error {
	return a.setOrderColumn(ctx, posID, "version", version)
}

// OrderCheckin returns the checkin id linked to a POS order, "" if none.
func (a *Adapter) OrderCheckin(ctx context.Context, posID string) (string, error) {
	return a.orderColumn(ctx, posID, "checkin_id")
}

// RecordOrderCheckin stores or clears the checkin link.
func (a *Adapter) RecordOrderCheckin(ctx context.Context, posID, checkinID string) error {
	return a.setOrderColumn(ctx, posID, "checkin_id", checkinID)
}

func (a *Adapter) orderColumn(ctx context.Context, posID, col string) (string, error) {
	// col is a compile-time constant at every call site, never input.
	row := a.store.db.QueryRowContext(ctx,
		"SELECT "+col+" FROM orders WHERE pos_id = ?", posID)
	var v string
	if err := row.Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", pos.ErrNotFound
		}
		return "", fmt.Errorf("posstore: read order %s: %w", col, err)
	}
	return v, nil
}

func (a *Adapter) setOrderColumn(ctx context.Context, posID, col, val string) error {
	res, err := a.store.db.ExecContext(ctx,
		"UPDATE orders SET "+col+" = ? WHERE pos_id = ?", val, posID)
	if err != nil {
		return fmt.Errorf("posstore: record order %s: %w", col, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return pos.ErrNotFound
	}
	return nil
}

// JudgeAvailability runs the availability policy. An approved order is
// recorded immediately with a fresh POS id; judging the same platform
// order twice reuses the first id.
func (a *Adapter) JudgeAvailability(ctx context.Context, o entity.Order, mode pos.CaptureMode) (pos.Judgment, error) {
	approved, reasons := a.judge(o, mode)
	if !approved {
		return pos.Judgment{Approved: false, Reasons: reasons}, nil
	}

	if existing, err := a.OrderByPlatformID(ctx, o.ID); err == nil {
		return pos.Judgment{Approved: true, PosOrderID: existing.PosID, Order: existing}, nil
	} else if !errors.Is(err, pos.ErrNotFound) {
		return pos.Judgment{}, err
	}

	posID := uuid.NewString()
	if err := a.saveOrder(ctx, posID, o, entity.OrderAccepted); err != nil {
		return pos.Judgment{}, err
	}
	judged := o
	judged.PosID = posID
	return pos.Judgment{Approved: true, PosOrderID: posID, Order: judged}, nil
}

// ConfirmNewOrder records a platform order that arrived with payment
// attached. Confirming the same platform order twice returns the first
// POS id.
func (a *Adapter) ConfirmNewOrder(ctx context.Context, o entity.Order, scope pos.PaymentScope, typ entity.OrderType) (string, error) {
	if existing, err := a.OrderByPlatformID(ctx, o.ID); err == nil {
		return existing.PosID, nil
	} else if !errors.Is(err, pos.ErrNotFound) {
		return "", err
	}

	posID := uuid.NewString()
	status := entity.OrderAccepted
	if scope == pos.PaymentFull {
		status = entity.OrderPaid
	}
	if err := a.saveOrder(ctx, posID, o, status); err != nil {
		return "", err
	}
	if scope == pos.PaymentFull {
		if err := a.RecordPayment(ctx, posID, entity.Transaction{OrderID: o.ID, Amount: o.Total()}, false); err != nil {
			return "", err
		}
	}
	return posID, nil
}

// RejectOrder records the refusal so a replay of the same order is
// recognized as already judged.
func (a *Adapter) RejectOrder(ctx context.Context, o entity.Order, reasons []string) error {
	if _, err := a.OrderByPlatformID(ctx, o.ID); err == nil {
		return nil
	} else if !errors.Is(err, pos.ErrNotFound) {
		return err
	}
	return a.saveOrder(ctx, uuid.NewString(), o, entity.OrderRejected)
}

// CancelOrder marks a POS order cancelled.
func (a *Adapter) CancelOrder(ctx context.Context, posID string) error {
	return a.setOrderColumn(ctx, posID, "status", string(entity.OrderCancelled))
}

// ReconcileTotals echoes the order. The reference POS has no independent
// price book; a real adapter rewrites lines here.
func (a *Adapter) ReconcileTotals(ctx context.Context, o entity.Order) (entity.Order, error) {
	return o, nil
}

// RecordTransactionVersion upserts a transaction's platform version.
func (a *Adapter) RecordTransactionVersion(ctx context.Context, txID, version string) error {
	_, err := a.store.db.ExecContext(ctx, `
		INSERT INTO transaction_versions (tx_id, version) VALUES (?, ?)
		ON CONFLICT(tx_id) DO UPDATE SET version = excluded.version
	`, txID, version)
	if err != nil {
		return fmt.Errorf("posstore: record transaction version: %w", err)
	}
	return nil
}

// TransactionVersion returns the recorded version for a transaction.
func (a *Adapter) TransactionVersion(ctx context.Context, txID string) (string, error) {
	row := a.store.db.QueryRowContext(ctx,
		"SELECT version FROM transaction_versions WHERE tx_id = ?", txID)
	var v string
	if err := row.Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", pos.ErrNotFound
		}
		return "", fmt.Errorf("posstore: read transaction version: %w", err)
	}
	return v, nil
}

// ReadyToPay answers whether the order backing a pending claim is still
// payable. Cancelled and rejected orders decline.
func (a *Adapter) ReadyToPay(ctx context.Context, posOrderID string, tx entity.Transaction) (entity.Transaction, bool, error) {
	o, err := a.Order(ctx, posOrderID)
	if err != nil {
		if errors.Is(err, pos.ErrNotFound) {
			return entity.Transaction{}, false, nil
		}
		return entity.Transaction{}, false, err
	}
	if o.Status == entity.OrderCancelled || o.Status == entity.OrderRejected {
		return entity.Transaction{}, false, nil
	}
	return tx, true, nil
}

// RecordPayment records a capture. Idempotent per (order, transaction);
// a full capture marks the order paid.
func (a *Adapter) RecordPayment(ctx context.Context, posOrderID string, tx entity.Transaction, partial bool) error {
	p := 0
	if partial {
		p = 1
	}
	_, err := a.store.db.ExecContext(ctx, `
		INSERT INTO payments (pos_order_id, tx_id, amount, partial)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(pos_order_id, tx_id) DO NOTHING
	`, posOrderID, tx.ID, int64(tx.Amount), p)
	if err != nil {
		return fmt.Errorf("posstore: record payment: %w", err)
	}
	if !partial {
		if err := a.setOrderColumn(ctx, posOrderID, "status", string(entity.OrderPaid)); err != nil && !errors.Is(err, pos.ErrNotFound) {
			return err
		}
	}
	return nil
}

// Payments lists recorded captures for a POS order. Test and diagnostic
// surface.
func (a *Adapter) Payments(ctx context.Context, posOrderID string) ([]entity.Transaction, error) {
	rows, err := a.store.db.QueryContext(ctx,
		"SELECT tx_id, amount FROM payments WHERE pos_order_id = ? AND cancelled = 0", posOrderID)
	if err != nil {
		return nil, fmt.Errorf("posstore: list payments: %w", err)
	}
	defer rows.Close()

	var out []entity.Transaction
	for rows.Next() {
		var tx entity.Transaction
		var amount int64
		if err := rows.Scan(&tx.ID, &amount); err != nil {
			return nil, err
		}
		tx.Amount = entity.Money(amount)
		out = append(out, tx)
	}
	return out, rows.Err()
}

// CancelPayment marks any recorded capture for the claim cancelled,
// releasing the tender.
func (a *Adapter) CancelPayment(ctx context.Context, tx entity.Transaction) error {
	_, err := a.store.db.ExecContext(ctx,
		"UPDATE payments SET cancelled = 1 WHERE tx_id = ?", tx.ID)
	if err != nil {
		return fmt.Errorf("posstore: cancel payment: %w", err)
	}
	return nil
}

// RecordCheckin upserts a platform checkin.
func (a *Adapter) RecordCheckin(ctx context.Context, ci entity.Checkin) error {
	tables, err := json.Marshal(ci.TableNames)
	if err != nil {
		return fmt.Errorf("posstore: encode table names: %w", err)
	}
	consumer := ""
	if ci.Consumer != nil {
		consumer = ci.Consumer.ID
	}
	_, err = a.store.db.ExecContext(ctx, `
		INSERT INTO checkins (id, consumer_id, covers, table_names, active)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT(id) DO UPDATE SET
			consumer_id = excluded.consumer_id,
			covers = excluded.covers,
			table_names = excluded.table_names,
			active = 1
	`, ci.ID, consumer, ci.Covers, string(tables))
	if err != nil {
		return fmt.Errorf("posstore: record checkin: %w", err)
	}
	return nil
}

// RecordCheckout deactivates a consumer's checkins.
func (a *Adapter) RecordCheckout(ctx context.Context, consumerID string) error {
	_, err := a.store.db.ExecContext(ctx,
		"UPDATE checkins SET active = 0 WHERE consumer_id = ?", consumerID)
	if err != nil {
		return fmt.Errorf("posstore: record checkout: %w", err)
	}
	return nil
}

// CheckedInConsumers lists consumers with an active checkin.
func (a *Adapter) CheckedInConsumers(ctx context.Context) ([]string, error) {
	rows, err := a.store.db.QueryContext(ctx,
		"SELECT DISTINCT consumer_id FROM checkins WHERE active = 1 AND consumer_id != ''")
	if err != nil {
		return nil, fmt.Errorf("posstore: list consumers: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ReleasePlatformState stops treating every order as platform-managed.
// Fired on connection timeout so the POS can continue autonomously.
func (a *Adapter) ReleasePlatformState(ctx context.Context) error {
	_, err := a.store.db.ExecContext(ctx, "UPDATE orders SET managed = 0")
	if err != nil {
		return fmt.Errorf("posstore: release platform state: %w", err)
	}
	return nil
}

// CreateMember upserts a loyalty member.
func (a *Adapter) CreateMember(ctx context.Context, m entity.Member) error {
	_, err := a.store.db.ExecContext(ctx, `
		INSERT INTO members (id, name, points, version) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, points = excluded.points, version = excluded.version
	`, m.ID, m.Name, m.Points, m.Version)
	if err != nil {
		return fmt.Errorf("posstore: create member: %w", err)
	}
	return nil
}

// UpdateMember is the same upsert as CreateMember; pushes may arrive in
// either order after an outage.
func (a *Adapter) UpdateMember(ctx context.Context, m entity.Member) error {
	return a.CreateMember(ctx, m)
}

// DeleteMember removes a member.
func (a *Adapter) DeleteMember(ctx context.Context, id string) error {
	_, err := a.store.db.ExecContext(ctx, "DELETE FROM members WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("posstore: delete member: %w", err)
	}
	return nil
}

// ApplyReward applies a reward as a negative surcount on the POS order
// and returns the re-priced copy.
func (a *Adapter) ApplyReward(ctx context.Context, posOrderID string, r entity.Reward) (entity.Order, error) {
	o, err := a.Order(ctx, posOrderID)
	if err != nil {
		return entity.Order{}, err
	}

	discount := r.Amount
	if r.Type == "percentage" {
		// Amount is basis points of the order total.
		discount = o.Total() * r.Amount / 10000
	}
	o.Surcounts = append(o.Surcounts, entity.Surcount{Name: r.Name, Amount: -discount})

	if err := a.saveOrder(ctx, posOrderID, o, o.Status); err != nil {
		return entity.Order{}, err
	}
	return o, nil
}

// CreateBooking upserts a booking mirror.
func (a *Adapter) CreateBooking(ctx context.Context, b entity.Booking) error {
	body, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("posstore: encode booking: %w", err)
	}
	_, err = a.store.db.ExecContext(ctx, `
		INSERT INTO bookings (id, body) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET body = excluded.body
	`, b.ID, string(body))
	if err != nil {
		return fmt.Errorf("posstore: create booking: %w", err)
	}
	return nil
}

// UpdateBooking is the same upsert as CreateBooking.
func (a *Adapter) UpdateBooking(ctx context.Context, b entity.Booking) error {
	return a.CreateBooking(ctx, b)
}

// DeleteBooking removes a booking mirror and its checkin link.
func (a *Adapter) DeleteBooking(ctx context.Context, id string) error {
	if _, err := a.store.db.ExecContext(ctx, "DELETE FROM bookings WHERE id = ?", id); err != nil {
		return fmt.Errorf("posstore: delete booking: %w", err)
	}
	if _, err := a.store.db.ExecContext(ctx, "DELETE FROM booking_links WHERE booking_id = ?", id); err != nil {
		return fmt.Errorf("posstore: delete booking link: %w", err)
	}
	return nil
}

// RecordBookingCheckin links a seated booking to its checkin.
func (a *Adapter) RecordBookingCheckin(ctx context.Context, bookingID, checkinID string) error {
	_, err := a.store.db.ExecContext(ctx, `
		INSERT INTO booking_links (booking_id, checkin_id) VALUES (?, ?)
		ON CONFLICT(booking_id) DO UPDATE SET checkin_id = excluded.checkin_id
	`, bookingID, checkinID)
	if err != nil {
		return fmt.Errorf("posstore: record booking checkin: %w", err)
	}
	return nil
}

var _ pos.Adapter = (*Adapter)(nil)
var _ pos.MemberCapability = (*Adapter)(nil)
var _ pos.RewardCapability = (*Adapter)(nil)
var _ pos.BookingCapability = (*Adapter)(nil)
