package realtime

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"time"
)

// maxFrameSize bounds one push frame. An order with hundreds of lines
// stays far below this.
const maxFrameSize = 1 << 20

// SocketTransport is the default transport: a TCP connection carrying
// newline-delimited JSON frames. Venues with a different wire layer plug
// their own Transport into the channel instead.
type SocketTransport struct {
	Addr string

	// DialTimeout bounds connection establishment. Zero means 10s.
	DialTimeout time.Duration
}

// Connect dials the push endpoint.
func (t *SocketTransport) Connect(ctx context.Context) (Conn, error) {
	timeout := t.DialTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	d := net.Dialer{Timeout: timeout}
	nc, err := d.DialContext(ctx, "tcp", t.Addr)
	if err != nil {
		return nil, fmt.Errorf("realtime: dial %s: %w", t.Addr, err)
	}
	sc := bufio.NewScanner(nc)
	sc.Buffer(make([]byte, 64*1024), maxFrameSize)
	return &socketConn{nc: nc, sc: sc}, nil
}

type socketConn struct {
	nc net.Conn
	sc *bufio.Scanner
}

// Receive reads one frame. Context cancellation closes the connection to
// unblock the read.
func (c *socketConn) Receive(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() {
		c.nc.Close()
	})
	defer stop()

	if !c.sc.Scan() {
		if err := c.sc.Err(); err != nil {
			return nil, fmt.Errorf("realtime: read frame: %w", err)
		}
		return nil, fmt.Errorf("realtime: connection closed by peer")
	}
	// Copy out: the scanner reuses its buffer on the next Scan.
	line := c.sc.Bytes()
	frame := make([]byte, len(line))
	copy(frame, line)
	return frame, nil
}

func (c *socketConn) Close() error {
	return c.nc.Close()
}
