package xrayz

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"
)

// ErrAttemptAborted is reported to the classifier when an attempt exits
// without producing a result, for example by panicking.
var ErrAttemptAborted = errors.New("attempt aborted")

// attemptKeyType is a private type for context keys to avoid collisions.
type attemptKeyType string

const attemptKey attemptKeyType = "xrayz.attempt"

// AttemptRequest describes the outbound request of one attempt.
// When Header is non-nil the propagation header is injected into it.
type AttemptRequest struct {
	Header http.Header
	Method string
	URL    string
}

// AttemptResult describes how one attempt ended.
type AttemptResult struct {
	Err        error
	RequestID  string
	StatusCode int
}

// attemptState carries one attempt's session between the hooks.
type attemptState struct {
	session   *Session
	requestID string
	status    int
	mu        sync.Mutex
}

// InterceptorOption configures an Interceptor.
type InterceptorOption func(*Interceptor)

// WithOperation names every attempt with a fixed AWS service and operation.
func WithOperation(service, operation string) InterceptorOption {
	return func(i *Interceptor) {
		i.service = service
		i.operation = operation
	}
}

// WithRequestClassifier derives the namespace from each request.
// Requests it cannot classify are not traced.
func WithRequestClassifier(c RequestClassifier) InterceptorOption {
	return func(i *Interceptor) {
		i.requests = c
	}
}

// WithOutcomeClassifier replaces DefaultClassifier.
func WithOutcomeClassifier(c OutcomeClassifier) InterceptorOption {
	return func(i *Interceptor) {
		i.outcomes = c
	}
}

// WithInterceptorLogger sets the logger for classification diagnostics.
func WithInterceptorLogger(logger *zap.Logger) InterceptorOption {
	return func(i *Interceptor) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// Interceptor maps each attempt of an operation onto its own subsegment.
// It keeps no per-call state; the attempt travels in the context returned
// by BeforeAttempt. Safe for concurrent use.
type Interceptor struct {
	tracer    Tracer
	requests  RequestClassifier
	outcomes  OutcomeClassifier
	logger    *zap.Logger
	service   string
	operation string
}

// NewInterceptor creates an interceptor that opens sessions with tracer.
// Without WithOperation or WithRequestClassifier, KnownServices is used.
func NewInterceptor(tracer Tracer, opts ...InterceptorOption) *Interceptor {
	if tracer == nil {
		tracer = Noop()
	}
	i := &Interceptor{
		tracer:   tracer,
		outcomes: DefaultClassifier{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.requests == nil && i.service == "" {
		i.requests = KnownServices{}
	}
	return i
}

// BeforeAttempt opens the attempt's session and injects the propagation
// header into req. The returned context must be passed to the other hooks.
func (i *Interceptor) BeforeAttempt(ctx context.Context, req *AttemptRequest) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ns := i.namespace(req)
	if ns == nil {
		return ctx
	}

	attemptCtx, session := i.tracer.Start(ctx, ns)
	if !session.active() {
		return ctx
	}
	if req != nil && req.Header != nil {
		req.Header.Set(HeaderName, session.TraceHeader())
	}
	return context.WithValue(attemptCtx, attemptKey, &attemptState{session: session})
}

// ObserveResponse records response data as soon as it is known.
func (*Interceptor) ObserveResponse(ctx context.Context, status int, requestID string) {
	state := attemptFromContext(ctx)
	if state == nil {
		return
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	if status > 0 {
		state.status = status
	}
	if requestID != "" {
		state.requestID = requestID
	}
}

// AfterAttempt enriches, classifies and closes the attempt's session.
// Calling it twice, or without BeforeAttempt, does nothing.
func (i *Interceptor) AfterAttempt(ctx context.Context, result AttemptResult) {
	state := attemptFromContext(ctx)
	if state == nil {
		return
	}

	state.mu.Lock()
	session := state.session
	state.session = nil
	if result.StatusCode <= 0 {
		result.StatusCode = state.status
	}
	if result.RequestID == "" {
		result.RequestID = state.requestID
	}
	state.mu.Unlock()

	if session == nil {
		return
	}
	defer session.Close()

	switch ns := session.Namespace().(type) {
	case *AwsNamespace:
		if result.StatusCode > 0 {
			ns.SetResponseStatus(result.StatusCode)
		}
		if result.RequestID != "" {
			ns.SetRequestID(result.RequestID)
		}
	case *RemoteNamespace:
		if result.StatusCode > 0 {
			ns.SetResponseStatus(result.StatusCode)
		}
	}

	outcome, err := i.classify(result)
	if err != nil {
		i.logger.Debug("attempt left unclassified",
			zap.String("subsegment_id", session.ID()),
			zap.Error(err),
		)
		return
	}
	if outcome != OutcomeNone {
		session.setOutcome(outcome)
	}
}

// Attempt runs fn as one attempt, closing its session on every exit path.
func (i *Interceptor) Attempt(ctx context.Context, req *AttemptRequest, fn func(context.Context) AttemptResult) AttemptResult {
	attemptCtx := i.BeforeAttempt(ctx, req)
	finished := false
	defer func() {
		if !finished {
			i.AfterAttempt(attemptCtx, AttemptResult{Err: ErrAttemptAborted})
		}
	}()

	result := fn(attemptCtx)
	finished = true
	i.AfterAttempt(attemptCtx, result)
	return result
}

func (i *Interceptor) namespace(req *AttemptRequest) (ns Namespace) {
	if i.service != "" {
		return NewAwsNamespace(i.service, i.operation)
	}
	defer func() {
		if r := recover(); r != nil {
			i.logger.Warn("request classifier panicked", zap.Any("panic", r))
			ns = nil
		}
	}()
	aws, ok := i.requests.ClassifyRequest(req)
	if !ok || aws == nil {
		return nil
	}
	return aws
}

func (i *Interceptor) classify(result AttemptResult) (outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome = OutcomeNone
			err = fmt.Errorf("%w: classifier panicked: %v", ErrClassification, r)
		}
	}()
	return i.outcomes.Classify(result)
}

func attemptFromContext(ctx context.Context) *attemptState {
	if ctx == nil {
		return nil
	}
	state, _ := ctx.Value(attemptKey).(*attemptState)
	return state
}
