// Package platform is the remote call gateway: a typed HTTP JSON client
// for the order/payment platform's request-response channel.
//
// Every call either returns the typed entity the platform answered with or
// an *Error carrying the HTTP status. Transport-level retry, TLS and
// authentication refresh are the embedding program's concern; this package
// sends one request per call.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

const defaultTimeout = 30 * time.Second

// Client issues platform calls for one venue.
type Client struct {
	baseURL string
	token   string
	venue   string
	http    *http.Client
	log     *logrus.Entry
}

// Config carries what a Client needs to talk to the platform.
type Config struct {
	BaseURL string
	Token   string
	Venue   string

	// HTTPClient overrides the default client (tests, custom transports).
	HTTPClient *http.Client

	Logger *logrus.Logger
}

// NewClient builds a gateway client. The base URL must not end in a slash.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("platform: base URL is required")
	}
	if cfg.Venue == "" {
		return nil, fmt.Errorf("platform: venue id is required")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}
	lg := cfg.Logger
	if lg == nil {
		lg = logrus.StandardLogger()
	}
	return &Client{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		venue:   cfg.Venue,
		http:    hc,
		log:     lg.WithField("component", "platform"),
	}, nil
}

// Venue returns the venue id this client is bound to.
func (c *Client) Venue() string {
	return c.venue
}

// errorBody is the platform's error payload shape.
type errorBody struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// do sends one request and decodes the 2xx response into out (when out is
// non-nil). Non-2xx responses become *Error.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("platform: encode %s %s: %w", method, path, err)
		}
		rd = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("platform: build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("X-Venue-Id", c.venue)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("platform: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		pe := &Error{Status: resp.StatusCode, Method: method, Path: path}
		var eb errorBody
		if err := json.NewDecoder(resp.Body).Decode(&eb); err == nil {
			pe.Message = eb.Message
		}
		c.log.WithFields(logrus.Fields{
			"method": method,
			"path":   path,
			"status": resp.StatusCode,
		}).Debug("platform call failed")
		return pe
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("platform: decode %s %s: %w", method, path, err)
	}
	return nil
}
