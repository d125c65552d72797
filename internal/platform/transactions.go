package platform

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/opentab/possync/internal/entity"
)

// GetTransaction fetches the platform's current copy of a transaction.
func (c *Client) GetTransaction(ctx context.Context, id string) (entity.Transaction, error) {
	var tx entity.Transaction
	err := c.do(ctx, http.MethodGet, "/transactions/"+url.PathEscape(id), nil, &tx)
	return tx, err
}

// UpdateTransaction pushes a transaction status change (claim, reject).
// The transaction must carry its last observed version.
func (c *Client) UpdateTransaction(ctx context.Context, tx entity.Transaction) (entity.Transaction, error) {
	if tx.ID == "" {
		return entity.Transaction{}, fmt.Errorf("platform: update transaction: missing id")
	}
	var out entity.Transaction
	err := c.do(ctx, http.MethodPut, "/transactions/"+url.PathEscape(tx.ID), tx, &out)
	return out, err
}

// CreateTransaction registers a POS-initiated payment claim.
func (c *Client) CreateTransaction(ctx context.Context, tx entity.Transaction) (entity.Transaction, error) {
	var out entity.Transaction
	err := c.do(ctx, http.MethodPost, "/transactions", tx, &out)
	return out, err
}

// TransactionsForOrder lists the transactions attached to a linked order.
// As with the unlinked variant, a 404 means no transactions, not a
// missing resource.
func (c *Client) TransactionsForOrder(ctx context.Context, orderID string) ([]entity.Transaction, error) {
	var out []entity.Transaction
	err := c.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(orderID)+"/transactions", nil, &out)
	if IsNotFound(err) {
		return nil, nil
	}
	return out, err
}

// TransactionsForUnlinkedOrder lists the transactions attached to an
// unlinked order. The platform answers 404 when the order has none; that
// is an empty list here, not an error.
func (c *Client) TransactionsForUnlinkedOrder(ctx context.Context, orderID string) ([]entity.Transaction, error) {
	var out []entity.Transaction
	err := c.do(ctx, http.MethodGet, "/orders/unlinked/"+url.PathEscape(orderID)+"/transactions", nil, &out)
	if IsNotFound(err) {
		return nil, nil
	}
	return out, err
}
