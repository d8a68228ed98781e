// Package awsxray plugs xrayz into smithy-go operation stacks, as used by
// the AWS SDK for Go v2, so every attempt of an SDK call is reported as its
// own subsegment.
//
//	interceptor := awsxray.NewInterceptor(tracer)
//	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
//		o.APIOptions = append(o.APIOptions, awsxray.Middleware(interceptor))
//	})
package awsxray

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/aws/smithy-go"
	"github.com/aws/smithy-go/middleware"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/zoobzio/xrayz"
)

// Middleware IDs.
const (
	AttemptMiddlewareID  = "XRayAttempt"
	ResponseMiddlewareID = "XRayResponse"
	retryMiddlewareID    = "Retry"
)

// requestIDHeaders lists the headers AWS services use for the request id.
var requestIDHeaders = []string{
	"X-Amz-Request-Id",
	"X-Amzn-Requestid",
	"X-Amzn-Request-Id",
}

// NewInterceptor creates an xrayz.Interceptor whose outcome classifier
// understands smithy errors. Later options override earlier ones.
func NewInterceptor(tracer xrayz.Tracer, opts ...xrayz.InterceptorOption) *xrayz.Interceptor {
	opts = append([]xrayz.InterceptorOption{xrayz.WithOutcomeClassifier(Classifier{})}, opts...)
	return xrayz.NewInterceptor(tracer, opts...)
}

// Middleware returns a stack mutator suitable for APIOptions.
// The attempt middleware is placed right after Retry so it runs once per
// attempt; stacks without Retry get it at the end of Finalize.
func Middleware(interceptor *xrayz.Interceptor) func(*middleware.Stack) error {
	return func(stack *middleware.Stack) error {
		attempt := &attemptMiddleware{interceptor: interceptor}
		if err := stack.Finalize.Insert(attempt, retryMiddlewareID, middleware.After); err != nil {
			if err := stack.Finalize.Add(attempt, middleware.After); err != nil {
				return err
			}
		}
		return stack.Deserialize.Add(&responseMiddleware{interceptor: interceptor}, middleware.After)
	}
}

type attemptMiddleware struct {
	interceptor *xrayz.Interceptor
}

func (*attemptMiddleware) ID() string { return AttemptMiddlewareID }

func (m *attemptMiddleware) HandleFinalize(ctx context.Context, in middleware.FinalizeInput, next middleware.FinalizeHandler) (
	out middleware.FinalizeOutput, metadata middleware.Metadata, err error,
) {
	m.interceptor.Attempt(ctx, attemptRequest(in.Request), func(ctx context.Context) xrayz.AttemptResult {
		out, metadata, err = next.HandleFinalize(ctx, in)
		return xrayz.AttemptResult{Err: err}
	})
	return out, metadata, err
}

type responseMiddleware struct {
	interceptor *xrayz.Interceptor
}

func (*responseMiddleware) ID() string { return ResponseMiddlewareID }

func (m *responseMiddleware) HandleDeserialize(ctx context.Context, in middleware.DeserializeInput, next middleware.DeserializeHandler) (
	out middleware.DeserializeOutput, metadata middleware.Metadata, err error,
) {
	out, metadata, err = next.HandleDeserialize(ctx, in)
	if resp, ok := out.RawResponse.(*smithyhttp.Response); ok && resp != nil && resp.Response != nil {
		m.interceptor.ObserveResponse(ctx, resp.StatusCode, RequestID(resp.Header))
	}
	return out, metadata, err
}

func attemptRequest(raw interface{}) *xrayz.AttemptRequest {
	req, ok := raw.(*smithyhttp.Request)
	if !ok || req == nil || req.Request == nil {
		return nil
	}
	out := &xrayz.AttemptRequest{
		Method: req.Method,
		Header: req.Header,
	}
	if req.URL != nil {
		out.URL = req.URL.String()
	}
	return out
}

// RequestID returns the AWS request id carried by h, if any.
func RequestID(h http.Header) string {
	for _, name := range requestIDHeaders {
		if v := h.Get(name); v != "" {
			return v
		}
	}
	return ""
}

// Classifier classifies smithy operation errors and falls back to
// xrayz.DefaultClassifier.
type Classifier struct{}

// Classify implements xrayz.OutcomeClassifier.
func (Classifier) Classify(result xrayz.AttemptResult) (xrayz.Outcome, error) {
	if result.Err != nil {
		var apiErr smithy.APIError
		if errors.As(result.Err, &apiErr) {
			if strings.Contains(strings.ToLower(apiErr.ErrorCode()), "throttl") {
				return xrayz.OutcomeThrottle, nil
			}
			switch apiErr.ErrorFault() {
			case smithy.FaultServer:
				return xrayz.OutcomeFault, nil
			case smithy.FaultClient:
				return xrayz.OutcomeError, nil
			}
		}

		var canceled *smithy.CanceledError
		if errors.As(result.Err, &canceled) {
			return xrayz.OutcomeError, nil
		}

		var sendErr *smithyhttp.RequestSendError
		if errors.As(result.Err, &sendErr) && result.StatusCode == 0 {
			return xrayz.OutcomeFault, nil
		}
	}
	return xrayz.DefaultClassifier{}.Classify(result)
}
