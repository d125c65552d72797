// Package realtime maintains the push-event connection to the platform:
// one long-lived connection per venue, a typed event stream, a staleness
// watchdog and reconnect with resync.
//
// Event delivery is sequential per connection. A read pump decodes frames
// onto a FIFO queue; a single dispatch goroutine hands events to the
// registered handler one at a time in arrival order. The handler is
// registered once, before Run, replacing per-connect subscribe pairs;
// (re)connection never re-registers anything.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrAlreadyRunning is returned when Run is called on a channel that is
// already running. Two simultaneous connections for one venue would each
// drive resync and double-apply corrective calls.
var ErrAlreadyRunning = errors.New("realtime: channel already running")

// ErrNoHandler is returned when Run is called before Register.
var ErrNoHandler = errors.New("realtime: no handler registered")

const (
	defaultWatchdogTimeout = 30 * time.Second
	initialBackoff         = time.Second
	maxBackoff             = time.Minute
)

// Conn is one live push connection. Receive blocks until a frame arrives
// or the connection fails.
type Conn interface {
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// Transport establishes push connections. The wire handshake and framing
// live behind this boundary.
type Transport interface {
	Connect(ctx context.Context) (Conn, error)
}

// Handler consumes the channel's lifecycle signals and events.
//
// HandleConnect runs once per (re)connect, before any event is delivered;
// it is where the resync supervisor re-derives in-flight state. HandleEvent
// failures are logged and the stream continues. HandleTimeout fires when
// the watchdog crosses its threshold.
type Handler interface {
	HandleConnect(ctx context.Context) error
	HandleEvent(ctx context.Context, ev Event) error
	HandleTimeout(ctx context.Context) error
}

// Channel owns the push connection for one venue.
type Channel struct {
	venue     string
	transport Transport
	timeout   time.Duration
	clock     *Clock
	log       *logrus.Entry

	mu      sync.Mutex
	handler Handler
	running bool
}

// ChannelConfig configures a Channel.
type ChannelConfig struct {
	Venue     string
	Transport Transport

	// WatchdogTimeout is the staleness threshold. Zero means the default.
	WatchdogTimeout time.Duration

	Logger *logrus.Logger
}

// NewChannel builds a channel. Register a handler before calling Run.
func NewChannel(cfg ChannelConfig) (*Channel, error) {
	if cfg.Venue == "" {
		return nil, fmt.Errorf("realtime: venue id is required")
	}
	if cfg.Transport == nil {
		return nil, fmt.Errorf("realtime: transport is required")
	}
	timeout := cfg.WatchdogTimeout
	if timeout == 0 {
		timeout = defaultWatchdogTimeout
	}
	lg := cfg.Logger
	if lg == nil {
		lg = logrus.StandardLogger()
	}
	return &Channel{
		venue:     cfg.Venue,
		transport: cfg.Transport,
		timeout:   timeout,
		clock:     NewClock(),
		log:       lg.WithFields(logrus.Fields{"component": "realtime", "venue": cfg.Venue}),
	}, nil
}

// Register sets the event handler. Calling Register again replaces the
// previous handler; there is never more than one consumer.
func (c *Channel) Register(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// Run connects and serves events until ctx is cancelled. Reconnection
// with backoff is Run's own responsibility; after every reconnect the
// handler's HandleConnect (resync) runs before events flow again.
//
// Only one Run per channel may be active; a second call returns
// ErrAlreadyRunning.
func (c *Channel) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	if c.handler == nil {
		c.mu.Unlock()
		return ErrNoHandler
	}
	c.running = true
	handler := c.handler
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	backoff := initialBackoff
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, err := c.transport.Connect(ctx)
		if err != nil {
			c.log.WithError(err).Warn("connect failed")
			if !sleepCtx(ctx, backoff) {
				return ctx.Err()
			}
			backoff = nextBackoff(backoff)
			continue
		}
		backoff = initialBackoff
		c.log.Info("connected")

		// Resync must complete before relying on the POS for new
		// judgments. A failed resync drops the connection and retries.
		if err := handler.HandleConnect(ctx); err != nil {
			c.log.WithError(err).Error("resync on connect failed")
			conn.Close()
			if !sleepCtx(ctx, backoff) {
				return ctx.Err()
			}
			backoff = nextBackoff(backoff)
			continue
		}

		err = c.serve(ctx, conn, handler)
		conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.WithError(err).Warn("connection lost, reconnecting")
	}
}

// serve pumps one connection: a reader goroutine feeds the queue, the
// calling goroutine dispatches sequentially. Returns when the connection
// drops, the watchdog trips, or ctx is cancelled.
func (c *Channel) serve(ctx context.Context, conn Conn, handler Handler) error {
	queue := newEventQueue()
	wd := newWatchdog(c.timeout)
	defer wd.Stop()

	readCtx, cancelRead := context.WithCancel(ctx)
	defer cancelRead()

	var readErr error
	go func() {
		defer queue.Close()
		for {
			data, err := conn.Receive(readCtx)
			if err != nil {
				readErr = err
				return
			}
			ev, err := DecodeMessage(data)
			if err != nil {
				// Contract divergence: surface loudly, drop the frame,
				// keep the stream alive.
				c.log.WithError(err).WithField("frame", string(data)).
					Error("protocol violation on push channel")
				continue
			}
			ev.Seq = c.clock.Next()
			if !queue.Enqueue(ev) {
				return
			}
		}
	}()

	for {
		ev, ok := queue.TryDequeue()
		if ok {
			if err := handler.HandleEvent(ctx, ev); err != nil {
				// Log and continue: one order's failure must not stall
				// every other order on the stream.
				c.log.WithError(err).WithFields(logrus.Fields{
					"kind": ev.Kind.String(),
					"seq":  ev.Seq,
				}).Error("event handling failed")
			}
			wd.Touch()
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-wd.Expired():
			c.log.Warn("connection timed out, releasing platform state")
			if err := handler.HandleTimeout(ctx); err != nil {
				c.log.WithError(err).Error("timeout handling failed")
			}
			return fmt.Errorf("realtime: watchdog timeout after %s", c.timeout)

		case <-queue.Wait():
			// The signal coalesces, so an empty queue here may just mean
			// the polling path already drained it. Only a closed queue
			// means the read pump is gone.
			if queue.Closed() && queue.Len() == 0 {
				if readErr != nil {
					return readErr
				}
				return fmt.Errorf("realtime: connection closed")
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}
