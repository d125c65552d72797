package platform

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/opentab/possync/internal/entity"
)

// GetOrder fetches the platform's current copy of an order.
func (c *Client) GetOrder(ctx context.Context, id string) (entity.Order, error) {
	var o entity.Order
	err := c.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(id), nil, &o)
	return o, err
}

// UpdateOrder pushes an order mutation. The order must carry the version
// last observed from the platform; a stale version answers 409. The
// returned order is the platform's canonical post-update representation,
// including the new version.
func (c *Client) UpdateOrder(ctx context.Context, o entity.Order) (entity.Order, error) {
	if o.ID == "" {
		return entity.Order{}, fmt.Errorf("platform: update order: missing platform id")
	}
	var out entity.Order
	err := c.do(ctx, http.MethodPut, "/orders/"+url.PathEscape(o.ID), o, &out)
	return out, err
}

// CreateOrder registers a POS-originated order with the platform.
func (c *Client) CreateOrder(ctx context.Context, o entity.Order) (entity.Order, error) {
	var out entity.Order
	err := c.do(ctx, http.MethodPost, "/orders", o, &out)
	return out, err
}

// ListOrders fetches the venue's orders, optionally filtered by status.
func (c *Client) ListOrders(ctx context.Context, statuses ...entity.OrderStatus) ([]entity.Order, error) {
	path := "/orders"
	if len(statuses) > 0 {
		vals := make([]string, len(statuses))
		for i, s := range statuses {
			vals[i] = string(s)
		}
		path += "?status=" + url.QueryEscape(strings.Join(vals, ","))
	}
	var out []entity.Order
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// ListUnlinkedOrders fetches orders the platform created that no POS order
// id has been linked to yet. This is the resync supervisor's starting set.
func (c *Client) ListUnlinkedOrders(ctx context.Context) ([]entity.Order, error) {
	var out []entity.Order
	err := c.do(ctx, http.MethodGet, "/orders/unlinked", nil, &out)
	return out, err
}

// ResolveNewOrder reports the POS's accepted/rejected judgment on a
// platform-created order to the create-result endpoint, linking the POS
// order id in the same call. A conflict fault means the platform's copy
// moved since the POS judged it.
func (c *Client) ResolveNewOrder(ctx context.Context, res entity.OrderResolution) (entity.Order, error) {
	if res.Order.ID == "" {
		return entity.Order{}, fmt.Errorf("platform: resolve order: missing platform id")
	}
	var out entity.Order
	err := c.do(ctx, http.MethodPut, "/orders/"+url.PathEscape(res.Order.ID)+"/result", res, &out)
	return out, err
}
