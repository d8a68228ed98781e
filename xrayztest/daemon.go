// Package xrayztest provides a UDP stand-in for the X-Ray daemon.
package xrayztest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"

	"github.com/zoobzio/xrayz"
)

// maxDatagram is the largest payload the daemon accepts.
const maxDatagram = 64 * 1024

// readBuffer is the socket receive buffer requested by Listen. Bursts from
// concurrent senders overflow the kernel default.
const readBuffer = 4 << 20

// Packet is one decoded datagram.
type Packet struct {
	Fields     map[string]any
	Subsegment *xrayz.Subsegment
	Err        error
	Header     string
	Body       []byte
}

// Daemon receives framed documents over UDP.
// Safe for concurrent use.
type Daemon struct {
	conn    *net.UDPConn
	packets []Packet
	notify  chan struct{}
	mu      sync.Mutex
}

// Listen opens a daemon socket on address ("127.0.0.1:0" picks a port).
func Listen(address string) (*Daemon, error) {
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", xrayz.ErrInvalidAddress, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	// The kernel may cap the size; delivery stays best effort either way.
	_ = conn.SetReadBuffer(readBuffer)
	return &Daemon{conn: conn, notify: make(chan struct{}, 1)}, nil
}

// NewDaemon starts a daemon on a free loopback port that records every
// packet. It is closed when the test ends.
func NewDaemon(tb testing.TB) *Daemon {
	tb.Helper()
	d, err := Listen("127.0.0.1:0")
	if err != nil {
		tb.Fatalf("listen: %v", err)
	}
	go func() {
		_ = d.Serve(context.Background(), nil) //nolint:errcheck // Ends when the socket closes.
	}()
	tb.Cleanup(func() { _ = d.Close() })
	return d
}

// Addr returns the socket address as host:port.
func (d *Daemon) Addr() string {
	return d.conn.LocalAddr().String()
}

// Serve reads packets until ctx is done or the daemon is closed, recording
// each one and passing it to fn when fn is non-nil.
func (d *Daemon) Serve(ctx context.Context, fn func(Packet)) error {
	stop := context.AfterFunc(ctx, func() { _ = d.conn.Close() })
	defer stop()

	buf := make([]byte, maxDatagram)
	for {
		n, _, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		p := Decode(buf[:n])
		d.record(p)
		if fn != nil {
			fn(p)
		}
	}
}

func (d *Daemon) record(p Packet) {
	d.mu.Lock()
	d.packets = append(d.packets, p)
	d.mu.Unlock()

	select {
	case d.notify <- struct{}{}:
	default:
	}
}

// Packets returns a copy of everything received so far.
func (d *Daemon) Packets() []Packet {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Packet, len(d.packets))
	copy(out, d.packets)
	return out
}

// Wait blocks until at least n packets arrived or timeout elapses.
func (d *Daemon) Wait(n int, timeout time.Duration) ([]Packet, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		if packets := d.Packets(); len(packets) >= n {
			return packets, nil
		}
		select {
		case <-d.notify:
		case <-deadline.C:
			packets := d.Packets()
			return packets, fmt.Errorf("received %d of %d packets", len(packets), n)
		}
	}
}

// Close stops the daemon.
func (d *Daemon) Close() error {
	err := d.conn.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Decode splits a datagram into its header line and document.
func Decode(datagram []byte) Packet {
	raw := make([]byte, len(datagram))
	copy(raw, datagram)

	header, body, err := xrayz.Unframe(raw)
	if err != nil {
		return Packet{Body: raw, Err: err}
	}
	p := Packet{Header: string(header), Body: body}

	var fields map[string]any
	if err := sonic.Unmarshal(body, &fields); err != nil {
		p.Err = fmt.Errorf("decode document: %w", err)
		return p
	}
	var doc xrayz.Subsegment
	if err := sonic.Unmarshal(body, &doc); err != nil {
		p.Err = fmt.Errorf("decode document: %w", err)
		return p
	}
	p.Fields = fields
	p.Subsegment = &doc
	return p
}
