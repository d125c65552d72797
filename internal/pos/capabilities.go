package pos

import (
	"context"

	"github.com/opentab/possync/internal/entity"
)

// MemberCapability mirrors platform loyalty members onto the POS.
type MemberCapability interface {
	CreateMember(ctx context.Context, m entity.Member) error
	UpdateMember(ctx context.Context, m entity.Member) error
	DeleteMember(ctx context.Context, id string) error
}

// RewardCapability applies a redeemed reward to a POS order. The adapter
// returns the re-priced order that gets pushed to the platform before the
// reward is claimed.
type RewardCapability interface {
	ApplyReward(ctx context.Context, posOrderID string, r entity.Reward) (entity.Order, error)
}

// BookingCapability mirrors platform bookings onto the POS and records
// seating links.
type BookingCapability interface {
	CreateBooking(ctx context.Context, b entity.Booking) error
	UpdateBooking(ctx context.Context, b entity.Booking) error
	DeleteBooking(ctx context.Context, id string) error

	// RecordBookingCheckin links a seated booking to its checkin.
	RecordBookingCheckin(ctx context.Context, bookingID, checkinID string) error
}

// Capabilities groups the optional POS capabilities. Nil fields mean the
// POS does not provide that capability; the core checks once at
// construction and surfaces typed unsupported faults, never a nil call.
type Capabilities struct {
	Member  MemberCapability
	Reward  RewardCapability
	Booking BookingCapability
}
