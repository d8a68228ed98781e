package xrayz

import (
	"context"

	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

// sessionKeyType is a private type for context keys to avoid collisions.
type sessionKeyType string

const (
	sessionKey sessionKeyType = "xrayz"
)

// Tracer opens subsegment sessions.
// SubsegmentContext and the no-op tracer returned by Noop implement it.
type Tracer interface {
	// Enter opens a session whose parent is the tracer's parent.
	Enter(ns Namespace) *Session
	// Start opens a session whose parent is the open session carried by
	// ctx, if any, and returns a context carrying the new session.
	Start(ctx context.Context, ns Namespace) (context.Context, *Session)
}

// SubsegmentContext creates sessions linked to a trace.
// It is a value type: the With methods return modified copies and the
// receiver is never changed. Safe for concurrent use.
//
// The zero value is inert: every session it opens is a no-op.
type SubsegmentContext struct {
	client     Client
	header     Header
	clock      clockz.Clock
	logger     *zap.Logger
	prefix     string
	inProgress bool
}

// NewSubsegmentContext parses raw as a trace header and binds it to client.
// It fails with ErrMalformedTraceContext when raw is not a valid header.
func NewSubsegmentContext(raw string, client Client) (SubsegmentContext, error) {
	header, err := ParseHeader(raw)
	if err != nil {
		return SubsegmentContext{}, err
	}
	return FromHeader(header, client), nil
}

// FromHeader binds an already parsed header to client.
func FromHeader(header Header, client Client) SubsegmentContext {
	return SubsegmentContext{
		client: client,
		header: header,
		clock:  clockz.RealClock,
		logger: zap.NewNop(),
	}
}

// WithNamePrefix returns a copy that prefixes the names of custom subsegments.
func (c SubsegmentContext) WithNamePrefix(prefix string) SubsegmentContext {
	c.prefix = prefix
	return c
}

// WithClock returns a copy that timestamps with clock.
// Enables clock injection for deterministic testing.
func (c SubsegmentContext) WithClock(clock clockz.Clock) SubsegmentContext {
	if clock != nil {
		c.clock = clock
	}
	return c
}

// WithLogger returns a copy that logs reporting failures to logger.
func (c SubsegmentContext) WithLogger(logger *zap.Logger) SubsegmentContext {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// WithInProgress returns a copy that, when enabled, reports an in-progress
// document as each session opens, in addition to the final one.
func (c SubsegmentContext) WithInProgress(enabled bool) SubsegmentContext {
	c.inProgress = enabled
	return c
}

// Header returns the trace context sessions are linked to.
func (c SubsegmentContext) Header() Header {
	return c.header
}

// NamePrefix returns the custom name prefix.
func (c SubsegmentContext) NamePrefix() string {
	return c.prefix
}

// Enter opens a session. The subsegment's parent is the context's parent.
// Nothing is reported until the session closes unless in-progress
// reporting is enabled.
func (c SubsegmentContext) Enter(ns Namespace) *Session {
	if !usable(c.client) || ns == nil || ns.isNil() {
		return &Session{}
	}

	clock := c.clock
	if clock == nil {
		clock = clockz.RealClock
	}
	logger := c.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	doc := beginSubsegment(c.header.traceID, c.header.parentID, ns.Name(c.prefix), clock.Now())
	ns.apply(doc)

	child := c
	child.clock = clock
	child.logger = logger
	child.header = c.header.WithParentID(doc.ID)

	s := &Session{
		client: c.client,
		clock:  clock,
		logger: logger,
		doc:    doc,
		ns:     ns,
		child:  child,
	}
	if c.inProgress {
		s.report(doc.Clone())
	}
	return s
}

// Start opens a session nested under the open session carried by ctx,
// or under the context's parent when ctx carries none.
func (c SubsegmentContext) Start(ctx context.Context, ns Namespace) (context.Context, *Session) {
	// Handle nil context by creating a new one.
	if ctx == nil {
		ctx = context.Background()
	}

	scope := c
	if parent := SessionFromContext(ctx); parent.IsOpen() && parent.TraceID() == c.header.traceID {
		scope.header = c.header.WithParentID(parent.ID())
	}

	session := scope.Enter(ns)
	if !session.active() {
		return ctx, session
	}
	return context.WithValue(ctx, sessionKey, session), session
}

// SessionFromContext extracts the session stored by Start.
// Returns nil if no session is present.
func SessionFromContext(ctx context.Context) *Session {
	if ctx == nil {
		return nil
	}
	if s, ok := ctx.Value(sessionKey).(*Session); ok {
		return s
	}
	return nil
}

type noopTracer struct{}

func (noopTracer) Enter(Namespace) *Session { return &Session{} }

func (noopTracer) Start(ctx context.Context, _ Namespace) (context.Context, *Session) {
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx, &Session{}
}

// Noop returns a tracer whose sessions do nothing.
func Noop() Tracer {
	return noopTracer{}
}

// Infallible returns c when setup succeeded and the no-op tracer otherwise,
// so callers never special-case a missing trace context.
//
//	xctx, err := xrayz.NewSubsegmentContext(raw, client)
//	tracer := xrayz.Infallible(xctx, err)
func Infallible(c SubsegmentContext, err error) Tracer {
	if err != nil || !usable(c.client) {
		return Noop()
	}
	return c
}

// usable reports whether client can deliver documents. A nil
// *DaemonClient stored in the interface is not.
func usable(client Client) bool {
	if client == nil {
		return false
	}
	if d, ok := client.(*DaemonClient); ok {
		return d != nil && d.conn != nil
	}
	return true
}
