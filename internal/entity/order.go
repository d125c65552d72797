package entity

import "fmt"

// Money is a monetary amount in integer minor units (cents).
type Money int64

// OrderStatus enumerates the order lifecycle states exchanged with the
// platform. "new" is accepted on the wire and treated identically to
// "pending".
type OrderStatus string

const (
	OrderNew               OrderStatus = "new"
	OrderPending           OrderStatus = "pending"
	OrderAccepted          OrderStatus = "accepted"
	OrderRejected          OrderStatus = "rejected"
	OrderReadyToPay        OrderStatus = "ready_to_pay"
	OrderWaitingForPayment OrderStatus = "waiting_for_payment"
	OrderPaid              OrderStatus = "paid"
	OrderCancelled         OrderStatus = "cancelled"
)

// knownOrderStatuses is the closed set of statuses the platform contract
// defines. Anything outside this set is a protocol violation, never a
// value to be silently ignored.
var knownOrderStatuses = map[OrderStatus]bool{
	OrderNew:               true,
	OrderPending:           true,
	OrderAccepted:          true,
	OrderRejected:          true,
	OrderReadyToPay:        true,
	OrderWaitingForPayment: true,
	OrderPaid:              true,
	OrderCancelled:         true,
}

// ParseOrderStatus validates a status string received from the platform.
// Unknown strings return an error so callers are forced to treat them as
// a contract divergence rather than skip them.
func ParseOrderStatus(s string) (OrderStatus, error) {
	st := OrderStatus(s)
	if !knownOrderStatuses[st] {
		return "", fmt.Errorf("unknown order status %q", s)
	}
	return st, nil
}

// Terminal reports whether the status is one of the three states an order
// never leaves.
func (s OrderStatus) Terminal() bool {
	return s == OrderPaid || s == OrderRejected || s == OrderCancelled
}

// OrderType distinguishes how the consumer receives the order. The
// platform may omit it, in which case it is TypeUnknown.
type OrderType string

const (
	TypeDelivery OrderType = "delivery"
	TypePickup   OrderType = "pickup"
	TypeDineIn   OrderType = "dinein"
	TypeUnknown  OrderType = ""
)

// Consumer is the platform's record of who placed an order. A pending
// order pushed without a consumer is unconditionally rejected.
type Consumer struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// LineItem is one priced line on an order.
type LineItem struct {
	ID        string `json:"id"`
	PosID     string `json:"posId,omitempty"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice Money  `json:"unitPrice"`
	Total     Money  `json:"total"`
}

// Surcount is an order-level surcharge (positive amount) or discount
// (negative amount).
type Surcount struct {
	Name   string `json:"name"`
	Amount Money  `json:"amount"`
}

// Order is the shared order representation.
//
// PosID is assigned by the POS and opaque to the platform; ID is assigned
// by the platform and may be empty for a POS-originated order that has not
// round-tripped. Version must be echoed on every update.
type Order struct {
	ID         string      `json:"id,omitempty"`
	PosID      string      `json:"posRef,omitempty"`
	Status     OrderStatus `json:"status"`
	Type       OrderType   `json:"type,omitempty"`
	Version    string      `json:"version,omitempty"`
	CheckinID  string      `json:"checkinId,omitempty"`
	Consumer   *Consumer   `json:"consumer,omitempty"`
	Items      []LineItem  `json:"items"`
	Surcounts  []Surcount  `json:"surcounts,omitempty"`

	// Payment-split fields. NotPayingTotal above zero means part of the
	// order is settled outside the platform; bistro mode never allows it.
	PayTotal       Money   `json:"payTotal,omitempty"`
	NotPayingTotal Money   `json:"notPayingTotal,omitempty"`
	SplitWays      int     `json:"splitWays,omitempty"`
	PaySplits      []Money `json:"paySplits,omitempty"`
	Tip            Money   `json:"tip,omitempty"`

	// Transactions attached to the order at creation time. Populated on
	// order-created pushes and by the unlinked-transaction listing during
	// resync; empty on plain status changes.
	Transactions []Transaction `json:"transactions,omitempty"`
}

// Total is the full order value: line items plus order-level surcounts.
func (o *Order) Total() Money {
	var t Money
	for _, it := range o.Items {
		t += it.Total
	}
	for _, s := range o.Surcounts {
		t += s.Amount
	}
	return t
}

// TransactionsCover reports whether the attached transactions cover the
// whole order total. An order with no transactions never covers.
func (o *Order) TransactionsCover() bool {
	if len(o.Transactions) == 0 {
		return false
	}
	var sum Money
	for _, tx := range o.Transactions {
		sum += tx.Amount
	}
	return sum >= o.Total()
}

// OrderResolution is the POS's terminal judgment on a platform-created
// order, sent to the create-result endpoint.
type OrderResolution struct {
	Status  OrderStatus `json:"status"` // OrderAccepted or OrderRejected
	Reasons []string    `json:"reasons,omitempty"`
	Order   Order       `json:"order"`
}
