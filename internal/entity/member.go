package entity

// Member is a loyalty identity with a points balance. Out of the core
// reconciliation scope except where a reward redemption round-trips
// through the order reconciler.
type Member struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Points  int    `json:"points"`
	Version string `json:"version,omitempty"`
}

// Reward is a redeemable loyalty reward. Redeeming updates the order
// before the reward itself is claimed against the platform.
type Reward struct {
	ID       string `json:"id"`
	MemberID string `json:"memberId,omitempty"`
	Name     string `json:"name"`

	// Type is "absolute" (Amount is money off) or "percentage" (Amount is
	// basis points).
	Type    string `json:"type"`
	Amount  Money  `json:"amount"`
	Version string `json:"version,omitempty"`
}
