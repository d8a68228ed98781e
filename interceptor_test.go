package xrayz

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInterceptorOneSubsegmentPerAttempt(t *testing.T) {
	xctx, collector, _ := newTestContext(t)
	interceptor := NewInterceptor(xctx, WithOperation("DynamoDB", "GetItem"))

	var injected []string
	for attempt := 0; attempt < 3; attempt++ {
		req := &AttemptRequest{Method: http.MethodPost, Header: http.Header{}}
		interceptor.Attempt(context.Background(), req, func(context.Context) AttemptResult {
			injected = append(injected, req.Header.Get(HeaderName))
			if attempt < 2 {
				return AttemptResult{StatusCode: http.StatusServiceUnavailable, Err: errors.New("unavailable")}
			}
			return AttemptResult{StatusCode: http.StatusOK, RequestID: "req-3"}
		})
	}

	docs := collector.Export()
	require.Len(t, docs, 3)
	for i, doc := range docs {
		require.Equal(t, "DynamoDB", doc.Name)
		require.Equal(t, "GetItem", doc.AWS.Operation)
		require.Equal(t, testParentID, doc.ParentID)
		require.Equal(t, "Root="+testTraceID+";Parent="+doc.ID+";Sampled=1", injected[i])
	}
	require.True(t, docs[0].Fault)
	require.True(t, docs[1].Fault)
	require.Equal(t, 503, docs[1].HTTP.Response.Status)
	require.False(t, docs[2].Fault || docs[2].Error)
	require.Equal(t, "req-3", docs[2].AWS.RequestID)
	require.Equal(t, 200, docs[2].HTTP.Response.Status)
}

func TestInterceptorClientError(t *testing.T) {
	xctx, collector, _ := newTestContext(t)
	interceptor := NewInterceptor(xctx, WithOperation("S3", "GetObject"))

	ctx := interceptor.BeforeAttempt(context.Background(), nil)
	interceptor.AfterAttempt(ctx, AttemptResult{StatusCode: http.StatusNotFound})

	docs := collector.Export()
	require.True(t, docs[0].Error)
	require.False(t, docs[0].Fault)
}

func TestInterceptorObserveResponse(t *testing.T) {
	xctx, collector, _ := newTestContext(t)
	interceptor := NewInterceptor(xctx, WithOperation("S3", "GetObject"))

	ctx := interceptor.BeforeAttempt(context.Background(), &AttemptRequest{})
	interceptor.ObserveResponse(ctx, http.StatusTooManyRequests, "req-9")
	interceptor.AfterAttempt(ctx, AttemptResult{Err: errors.New("SlowDown")})

	docs := collector.Export()
	require.Equal(t, "req-9", docs[0].AWS.RequestID)
	require.Equal(t, 429, docs[0].HTTP.Response.Status)
	require.True(t, docs[0].Throttle)
	require.True(t, docs[0].Error)
}

func TestInterceptorAfterAttemptIsIdempotent(t *testing.T) {
	xctx, collector, _ := newTestContext(t)
	interceptor := NewInterceptor(xctx, WithOperation("S3", "GetObject"))

	ctx := interceptor.BeforeAttempt(context.Background(), nil)
	interceptor.AfterAttempt(ctx, AttemptResult{StatusCode: 200})
	interceptor.AfterAttempt(ctx, AttemptResult{StatusCode: 500})
	interceptor.AfterAttempt(context.Background(), AttemptResult{StatusCode: 500})

	docs := collector.Export()
	require.Len(t, docs, 1)
	require.False(t, docs[0].Fault)
}

func TestInterceptorClassifierPanicLeavesUnclassified(t *testing.T) {
	xctx, collector, _ := newTestContext(t)
	interceptor := NewInterceptor(xctx,
		WithOperation("S3", "GetObject"),
		WithOutcomeClassifier(OutcomeClassifierFunc(func(AttemptResult) (Outcome, error) {
			panic("classifier bug")
		})),
	)

	ctx := interceptor.BeforeAttempt(context.Background(), nil)
	require.NotPanics(t, func() {
		interceptor.AfterAttempt(ctx, AttemptResult{StatusCode: 500})
	})

	docs := collector.Export()
	require.Len(t, docs, 1)
	require.False(t, docs[0].Fault || docs[0].Error)
	require.Equal(t, 500, docs[0].HTTP.Response.Status)
}

func TestInterceptorAttemptClosesOnPanic(t *testing.T) {
	xctx, collector, _ := newTestContext(t)
	interceptor := NewInterceptor(xctx, WithOperation("S3", "GetObject"))

	require.Panics(t, func() {
		interceptor.Attempt(context.Background(), nil, func(context.Context) AttemptResult {
			panic("sdk bug")
		})
	})

	docs := collector.Export()
	require.Len(t, docs, 1)
	require.False(t, docs[0].InProgress)
}

func TestInterceptorRequestClassification(t *testing.T) {
	xctx, collector, _ := newTestContext(t)
	interceptor := NewInterceptor(xctx)

	req := &AttemptRequest{
		Method: http.MethodGet,
		URL:    "https://test-bucket.s3.us-east-1.amazonaws.com/some/key?x-id=GetObject",
		Header: http.Header{},
	}
	ctx := interceptor.BeforeAttempt(context.Background(), req)
	interceptor.AfterAttempt(ctx, AttemptResult{StatusCode: 200})

	unknown := &AttemptRequest{URL: "https://example.com/", Header: http.Header{}}
	ctx = interceptor.BeforeAttempt(context.Background(), unknown)
	require.Nil(t, SessionFromContext(ctx))
	require.Empty(t, unknown.Header.Get(HeaderName))
	interceptor.AfterAttempt(ctx, AttemptResult{StatusCode: 200})

	docs := collector.Export()
	require.Len(t, docs, 1)
	require.Equal(t, "S3", docs[0].Name)
	require.Equal(t, "GetObject", docs[0].AWS.Operation)
}

func TestInterceptorNestsUnderEnclosingSession(t *testing.T) {
	xctx, collector, _ := newTestContext(t)
	interceptor := NewInterceptor(xctx, WithOperation("SQS", "SendMessage"))

	ctx, handler := xctx.Start(context.Background(), NewCustomNamespace("handler"))

	const attempts = 32
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			interceptor.Attempt(ctx, nil, func(context.Context) AttemptResult {
				return AttemptResult{StatusCode: 200}
			})
		}()
	}
	wg.Wait()
	handler.Close()

	docs := collector.Export()
	require.Len(t, docs, attempts+1)

	ids := make(map[string]bool)
	for _, doc := range docs[:attempts] {
		require.Equal(t, handler.ID(), doc.ParentID)
		require.False(t, ids[doc.ID], "duplicate id %s", doc.ID)
		ids[doc.ID] = true
	}
	require.Equal(t, testParentID, docs[attempts].ParentID)
}

func TestInterceptorWithNoopTracer(t *testing.T) {
	interceptor := NewInterceptor(nil, WithOperation("S3", "GetObject"))
	req := &AttemptRequest{Header: http.Header{}}

	result := interceptor.Attempt(context.Background(), req, func(context.Context) AttemptResult {
		return AttemptResult{StatusCode: 200}
	})

	require.Equal(t, 200, result.StatusCode)
	require.Empty(t, req.Header.Get(HeaderName))
}
