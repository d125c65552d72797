package platform

import (
	"context"
	"net/http"
	"net/url"

	"github.com/opentab/possync/internal/entity"
)

// GetBooking fetches one booking.
func (c *Client) GetBooking(ctx context.Context, id string) (entity.Booking, error) {
	var out entity.Booking
	err := c.do(ctx, http.MethodGet, "/bookings/"+url.PathEscape(id), nil, &out)
	return out, err
}

// ListBookings fetches the venue's bookings.
func (c *Client) ListBookings(ctx context.Context) ([]entity.Booking, error) {
	var out []entity.Booking
	err := c.do(ctx, http.MethodGet, "/bookings", nil, &out)
	return out, err
}

// seatRequest carries the optional order link for a seating call.
type seatRequest struct {
	PosOrderID string `json:"posOrderId,omitempty"`
}

// SeatBooking asks the platform to seat a booking, creating or reusing a
// checkin. The returned checkin is the platform's confirmation; callers
// record the booking-to-checkin link only after it arrives.
func (c *Client) SeatBooking(ctx context.Context, bookingID, posOrderID string) (entity.Checkin, error) {
	var out entity.Checkin
	err := c.do(ctx, http.MethodPost, "/bookings/"+url.PathEscape(bookingID)+"/seat",
		seatRequest{PosOrderID: posOrderID}, &out)
	return out, err
}
