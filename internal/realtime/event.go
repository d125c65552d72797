package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/opentab/possync/internal/entity"
)

// EventKind identifies a push event type.
type EventKind int

const (
	EventOrderCreated EventKind = iota + 1
	EventOrderStatusChanged
	EventTransactionCreated
	EventTransactionUpdated
	EventTableAllocationChanged
	EventCheckinCreated
	EventCheckout
	EventMemberCreated
	EventMemberUpdated
	EventBookingCreated
	EventBookingUpdated
	EventBookingDeleted
)

// kindNames maps wire type strings to event kinds. Unknown strings are a
// protocol violation, not a skippable message.
var kindNames = map[string]EventKind{
	"order_created":            EventOrderCreated,
	"order_status_changed":     EventOrderStatusChanged,
	"transaction_created":      EventTransactionCreated,
	"transaction_updated":      EventTransactionUpdated,
	"table_allocation_changed": EventTableAllocationChanged,
	"checkin_created":          EventCheckinCreated,
	"checkout":                 EventCheckout,
	"member_created":           EventMemberCreated,
	"member_updated":           EventMemberUpdated,
	"booking_created":          EventBookingCreated,
	"booking_updated":          EventBookingUpdated,
	"booking_deleted":          EventBookingDeleted,
}

// String returns the wire name for the kind.
func (k EventKind) String() string {
	for name, kind := range kindNames {
		if kind == k {
			return name
		}
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is one typed push event. Exactly one payload pointer is set,
// matching Kind. Seq is stamped by the channel's logical clock on receipt
// and only orders log output; it never crosses the wire.
type Event struct {
	Kind EventKind
	Seq  int64

	Order       *entity.Order
	Transaction *entity.Transaction
	Allocation  *entity.TableAllocation
	Checkin     *entity.Checkin
	Member      *entity.Member
	Booking     *entity.Booking

	// BookingID is set for booking_deleted, which carries only the id.
	BookingID string
}

// wireMessage is the channel's frame shape: a type tag plus a payload.
type wireMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// DecodeMessage turns one wire frame into a typed Event. An unknown type
// tag is an error: it means the POS and platform have diverged on the
// contract itself, and must abort processing loudly.
func DecodeMessage(data []byte) (Event, error) {
	var msg wireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return Event{}, fmt.Errorf("realtime: decode frame: %w", err)
	}

	kind, ok := kindNames[msg.Type]
	if !ok {
		return Event{}, fmt.Errorf("realtime: unknown event type %q", msg.Type)
	}

	ev := Event{Kind: kind}
	var err error
	switch kind {
	case EventOrderCreated, EventOrderStatusChanged:
		ev.Order = &entity.Order{}
		err = json.Unmarshal(msg.Payload, ev.Order)
	case EventTransactionCreated, EventTransactionUpdated:
		ev.Transaction = &entity.Transaction{}
		err = json.Unmarshal(msg.Payload, ev.Transaction)
	case EventTableAllocationChanged:
		ev.Allocation = &entity.TableAllocation{}
		err = json.Unmarshal(msg.Payload, ev.Allocation)
	case EventCheckinCreated, EventCheckout:
		ev.Checkin = &entity.Checkin{}
		err = json.Unmarshal(msg.Payload, ev.Checkin)
	case EventMemberCreated, EventMemberUpdated:
		ev.Member = &entity.Member{}
		err = json.Unmarshal(msg.Payload, ev.Member)
	case EventBookingCreated, EventBookingUpdated:
		ev.Booking = &entity.Booking{}
		err = json.Unmarshal(msg.Payload, ev.Booking)
	case EventBookingDeleted:
		var ref struct {
			ID string `json:"id"`
		}
		err = json.Unmarshal(msg.Payload, &ref)
		ev.BookingID = ref.ID
	}
	if err != nil {
		return Event{}, fmt.Errorf("realtime: decode %s payload: %w", msg.Type, err)
	}
	return ev, nil
}
