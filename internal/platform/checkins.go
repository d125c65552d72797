package platform

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/opentab/possync/internal/entity"
)

// CreateCheckin opens a new checkin carrying table names and covers.
func (c *Client) CreateCheckin(ctx context.Context, ci entity.Checkin) (entity.Checkin, error) {
	var out entity.Checkin
	err := c.do(ctx, http.MethodPost, "/checkins", ci, &out)
	return out, err
}

// UpdateCheckin re-issues a checkin's table-name list and covers. An empty
// table-name list means "deallocate".
func (c *Client) UpdateCheckin(ctx context.Context, ci entity.Checkin) (entity.Checkin, error) {
	if ci.ID == "" {
		return entity.Checkin{}, fmt.Errorf("platform: update checkin: missing id")
	}
	var out entity.Checkin
	err := c.do(ctx, http.MethodPut, "/checkins/"+url.PathEscape(ci.ID), ci, &out)
	return out, err
}

// GetCheckin fetches one checkin.
func (c *Client) GetCheckin(ctx context.Context, id string) (entity.Checkin, error) {
	var out entity.Checkin
	err := c.do(ctx, http.MethodGet, "/checkins/"+url.PathEscape(id), nil, &out)
	return out, err
}

// ListCheckins fetches the venue's currently open checkins. The resync
// supervisor diffs this against the POS's checked-in consumer set.
func (c *Client) ListCheckins(ctx context.Context) ([]entity.Checkin, error) {
	var out []entity.Checkin
	err := c.do(ctx, http.MethodGet, "/checkins", nil, &out)
	return out, err
}

// CloseCheckin marks a checkin completed on the platform.
func (c *Client) CloseCheckin(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/checkins/"+url.PathEscape(id), nil, nil)
}

// ListTables fetches the venue's tables.
func (c *Client) ListTables(ctx context.Context) ([]entity.Table, error) {
	var out []entity.Table
	err := c.do(ctx, http.MethodGet, "/tables", nil, &out)
	return out, err
}

// GetTable fetches one table by name.
func (c *Client) GetTable(ctx context.Context, name string) (entity.Table, error) {
	var out entity.Table
	err := c.do(ctx, http.MethodGet, "/tables/"+url.PathEscape(name), nil, &out)
	return out, err
}
