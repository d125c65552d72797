package entity

import "time"

// Checkin binds a consumer/table/covers grouping to subsequent orders.
// The platform assigns the id; the POS opens and closes checkins.
type Checkin struct {
	ID         string    `json:"id,omitempty"`
	TableNames []string  `json:"tableNames"`
	Covers     int       `json:"covers"`
	Consumer   *Consumer `json:"consumer,omitempty"`
	Completed  bool      `json:"completed,omitempty"`
	Version    string    `json:"version,omitempty"`
}

// Booking is a platform reservation. CheckinID is set once the booking is
// seated.
type Booking struct {
	ID         string    `json:"id"`
	TableNames []string  `json:"tableNames"`
	Date       time.Time `json:"date"`
	Covers     int       `json:"covers"`
	Consumer   *Consumer `json:"consumer,omitempty"`
	CheckinID  string    `json:"checkinId,omitempty"`
	Version    string    `json:"version,omitempty"`
}

// Table is a venue table as the platform knows it.
type Table struct {
	Name     string `json:"name"`
	Covers   int    `json:"covers,omitempty"`
	IsActive bool   `json:"isActive,omitempty"`
}

// TableAllocation is the payload of a table-allocation-changed push: the
// platform's view of which tables a checkin now occupies.
type TableAllocation struct {
	CheckinID  string   `json:"checkinId"`
	TableNames []string `json:"tableNames"`
	Covers     int      `json:"covers,omitempty"`
}
