package entity

import "fmt"

// TransactionStatus enumerates the payment-claim lifecycle. Status only
// ever advances through pending → waiting → one of the terminals.
type TransactionStatus string

const (
	TxPending   TransactionStatus = "pending"
	TxWaiting   TransactionStatus = "waiting"
	TxComplete  TransactionStatus = "complete"
	TxRejected  TransactionStatus = "rejected"
	TxCancelled TransactionStatus = "cancelled"
)

var knownTxStatuses = map[TransactionStatus]bool{
	TxPending:   true,
	TxWaiting:   true,
	TxComplete:  true,
	TxRejected:  true,
	TxCancelled: true,
}

// ParseTransactionStatus validates a status string from the platform.
func ParseTransactionStatus(s string) (TransactionStatus, error) {
	st := TransactionStatus(s)
	if !knownTxStatuses[st] {
		return "", fmt.Errorf("unknown transaction status %q", s)
	}
	return st, nil
}

// Terminal reports whether the status is complete, rejected or cancelled.
func (s TransactionStatus) Terminal() bool {
	return s == TxComplete || s == TxRejected || s == TxCancelled
}

// Transaction is a payment claim against one order. The platform assigns
// the id and the version; the POS resolves the claim.
type Transaction struct {
	ID      string            `json:"id"`
	OrderID string            `json:"orderId"`
	Amount  Money             `json:"amount"`
	Tip     Money             `json:"tip,omitempty"`
	Status  TransactionStatus `json:"status"`
	Version string            `json:"version,omitempty"`

	// PartnerInitiated marks claims a partner (not the consumer) started.
	PartnerInitiated bool `json:"partnerInitiated,omitempty"`
	// AcceptLess marks claims the POS may settle below the requested
	// amount.
	AcceptLess bool `json:"acceptLess,omitempty"`

	Reference string `json:"reference,omitempty"`
}
