package xrayz

import (
	"context"
	"sync"

	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

// Session is the scoped handle of one open subsegment.
// Close reports the subsegment exactly once; callers defer it right after
// opening so it runs on every exit path.
//
// A nil or inert Session (from the no-op tracer) accepts every call.
type Session struct {
	client  Client
	clock   clockz.Clock
	logger  *zap.Logger
	doc     *Subsegment
	ns      Namespace
	child   SubsegmentContext
	outcome Outcome
	closed  bool
	mu      sync.Mutex // Protects doc, outcome and closed.
}

func (s *Session) active() bool {
	return s != nil && s.doc != nil
}

// ID returns the subsegment id, or "" for an inert session.
func (s *Session) ID() string {
	if !s.active() {
		return ""
	}
	return s.doc.ID
}

// TraceID returns the trace id, or "" for an inert session.
func (s *Session) TraceID() string {
	if !s.active() {
		return ""
	}
	return s.doc.TraceID
}

// Namespace returns the namespace for late enrichment, such as a request
// id that arrives with the response. Returns nil for an inert session.
func (s *Session) Namespace() Namespace {
	if !s.active() {
		return nil
	}
	return s.ns
}

// TraceHeader returns the propagation header for downstream calls made
// within this subsegment, or "" for an inert session.
func (s *Session) TraceHeader() string {
	if !s.active() {
		return ""
	}
	return s.child.header.String()
}

// Context returns a SubsegmentContext whose sessions are children of this one.
func (s *Session) Context() SubsegmentContext {
	if !s.active() {
		return SubsegmentContext{}
	}
	return s.child
}

// SetError marks the subsegment as a client-side failure.
func (s *Session) SetError() { s.setOutcome(OutcomeError) }

// SetFault marks the subsegment as a server-side failure.
func (s *Session) SetFault() { s.setOutcome(OutcomeFault) }

// SetThrottle marks the subsegment as throttled; it implies error.
func (s *Session) SetThrottle() { s.setOutcome(OutcomeThrottle) }

// Outcome returns the outcome recorded so far.
func (s *Session) Outcome() Outcome {
	if !s.active() {
		return OutcomeNone
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}

func (s *Session) setOutcome(o Outcome) {
	if !s.active() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// Don't modify closed subsegments.
	if s.closed {
		return
	}
	s.outcome = o
}

// IsOpen reports whether the session is active and not yet closed.
func (s *Session) IsOpen() bool {
	if !s.active() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// Document returns a copy of the subsegment as it stands.
func (s *Session) Document() *Subsegment {
	if !s.active() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Clone()
}

// Close ends the subsegment and reports it.
// Safe to call multiple times - subsequent calls are no-ops.
// Reporting failures are logged, never returned.
func (s *Session) Close() {
	if !s.active() {
		return
	}

	s.mu.Lock()
	// Prevent double-closing.
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	doc := s.doc
	doc.end(s.clock.Now())
	s.ns.apply(doc)
	doc.applyOutcome(s.outcome)
	s.mu.Unlock()

	s.report(doc)
}

// report hands doc to the client, absorbing errors and panics.
func (s *Session) report(doc *Subsegment) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("subsegment client panicked",
				zap.String("subsegment_id", doc.ID),
				zap.Any("panic", r),
			)
		}
	}()

	if err := s.client.Send(doc); err != nil {
		s.logger.Warn("failed to report subsegment",
			zap.String("subsegment_id", doc.ID),
			zap.String("name", doc.Name),
			zap.Bool("in_progress", doc.InProgress),
			zap.Error(err),
		)
	}
}

// Trace runs fn inside a session opened by tracer.
// A returned error marks the subsegment (see ClassifyError) and a panic
// marks it as a fault; the session is closed on every exit path, panics
// are re-raised after closing, and fn's error is returned unchanged.
func Trace(ctx context.Context, tracer Tracer, ns Namespace, fn func(context.Context, *Session) error) (err error) {
	if tracer == nil {
		tracer = Noop()
	}
	ctx, session := tracer.Start(ctx, ns)
	defer session.Close()
	defer func() {
		if r := recover(); r != nil {
			session.SetFault()
			panic(r)
		}
	}()

	err = fn(ctx, session)
	if err != nil && session.Outcome() == OutcomeNone {
		o := ClassifyError(err)
		if o == OutcomeNone {
			o = OutcomeError
		}
		session.setOutcome(o)
	}
	return err
}
