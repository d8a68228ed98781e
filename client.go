package xrayz

import (
	"fmt"
	"net"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// protocolHeader precedes every document sent to the daemon.
var protocolHeader = []byte(`{"format":"json","version":1}` + "\n")

// Client reports finished documents.
type Client interface {
	Send(doc *Subsegment) error
}

// ClientOption configures a DaemonClient.
type ClientOption func(*DaemonClient)

// WithClientLogger sets the logger used for send diagnostics.
func WithClientLogger(logger *zap.Logger) ClientOption {
	return func(c *DaemonClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRegisterer registers delivery counters with reg.
func WithRegisterer(reg prometheus.Registerer) ClientOption {
	return func(c *DaemonClient) {
		c.registerer = reg
	}
}

// DaemonClient sends documents to the X-Ray daemon over UDP.
// Safe for concurrent use; each Send is a single datagram write.
type DaemonClient struct {
	conn       *net.UDPConn
	addr       *net.UDPAddr
	logger     *zap.Logger
	registerer prometheus.Registerer
	metrics    *clientMetrics
}

// NewDaemonClient resolves address ("host:port") and connects a UDP socket
// to it. Nothing is sent until Send is called.
func NewDaemonClient(address string, opts ...ClientOption) (*DaemonClient, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, fmt.Errorf("%w: empty address", ErrInvalidAddress)
	}
	host, port, err := net.SplitHostPort(address)
	if err != nil || port == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	if host == "" {
		host = "127.0.0.1"
	}
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, port))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}

	c := &DaemonClient{
		addr:   addr,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}
	if c.registerer != nil {
		m, err := newClientMetrics(c.registerer)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		c.metrics = m
	}
	c.conn = conn

	c.logger.Debug("daemon client connected", zap.String("address", addr.String()))
	return c, nil
}

// Addr returns the resolved daemon address.
func (c *DaemonClient) Addr() *net.UDPAddr {
	return c.addr
}

// Send encodes doc and writes it as one datagram.
func (c *DaemonClient) Send(doc *Subsegment) error {
	data, err := doc.Encode()
	if err != nil {
		return err
	}
	return c.SendBytes(data)
}

// SendBytes frames an already encoded document and writes it.
// No acknowledgement is read and failed writes are not retried.
func (c *DaemonClient) SendBytes(doc []byte) error {
	if c == nil || c.conn == nil {
		return fmt.Errorf("%w: client not connected", ErrTransport)
	}
	packet := Frame(doc)
	n, err := c.conn.Write(packet)
	if err != nil {
		c.metrics.failed()
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	c.metrics.sent(n)
	return nil
}

// Close releases the socket.
func (c *DaemonClient) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Frame prepends the protocol header line to doc.
func Frame(doc []byte) []byte {
	packet := make([]byte, 0, len(protocolHeader)+len(doc))
	packet = append(packet, protocolHeader...)
	return append(packet, doc...)
}

// Unframe splits a datagram into its header line and document.
func Unframe(packet []byte) (header, doc []byte, err error) {
	for i, b := range packet {
		if b == '\n' {
			return packet[:i], packet[i+1:], nil
		}
	}
	return nil, nil, fmt.Errorf("%w: missing header delimiter", ErrInvalidDocument)
}

type clientMetrics struct {
	documents prometheus.Counter
	failures  prometheus.Counter
	bytes     prometheus.Counter
}

func newClientMetrics(reg prometheus.Registerer) (*clientMetrics, error) {
	m := &clientMetrics{
		documents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "xrayz",
			Subsystem: "daemon",
			Name:      "documents_sent_total",
			Help:      "Documents written to the daemon socket.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "xrayz",
			Subsystem: "daemon",
			Name:      "send_failures_total",
			Help:      "Datagram writes that failed.",
		}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "xrayz",
			Subsystem: "daemon",
			Name:      "bytes_sent_total",
			Help:      "Bytes written to the daemon socket, framing included.",
		}),
	}
	collectors := []prometheus.Collector{m.documents, m.failures, m.bytes}
	for i, c := range collectors {
		if err := reg.Register(c); err != nil {
			for _, done := range collectors[:i] {
				reg.Unregister(done)
			}
			return nil, fmt.Errorf("register daemon metrics: %w", err)
		}
	}
	return m, nil
}

func (m *clientMetrics) sent(n int) {
	if m == nil {
		return
	}
	m.documents.Inc()
	m.bytes.Add(float64(n))
}

func (m *clientMetrics) failed() {
	if m == nil {
		return
	}
	m.failures.Inc()
}
