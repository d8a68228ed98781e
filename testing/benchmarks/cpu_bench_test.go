package benchmarks

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zoobzio/xrayz"
)

const benchHeader = "Root=1-5f84c7c1-e7d1f3b2a1c4d5e6f7081920;Parent=3c6a6f1c1d2e3f40;Sampled=1"

// discard is a client that drops every document.
type discard struct{}

func (discard) Send(*xrayz.Subsegment) error { return nil }

func benchContext(b *testing.B, client xrayz.Client) xrayz.SubsegmentContext {
	b.Helper()
	xctx, err := xrayz.NewSubsegmentContext(benchHeader, client)
	if err != nil {
		b.Fatal(err)
	}
	return xctx
}

// BenchmarkSessionRate measures enter/close throughput without transport.
func BenchmarkSessionRate(b *testing.B) {
	xctx := benchContext(b, discard{})
	ns := xrayz.NewCustomNamespace("rate")

	b.ReportAllocs()
	b.ResetTimer()
	start := time.Now()

	for i := 0; i < b.N; i++ {
		xctx.Enter(ns).Close()
	}

	elapsed := time.Since(start)
	b.ReportMetric(float64(b.N)/elapsed.Seconds(), "subsegments/sec")
}

// BenchmarkSessionRateParallel measures enter/close from many goroutines.
func BenchmarkSessionRateParallel(b *testing.B) {
	xctx := benchContext(b, discard{})
	ns := xrayz.NewCustomNamespace("parallel")
	var counter atomic.Int64

	b.ResetTimer()
	start := time.Now()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			xctx.Enter(ns).Close()
			counter.Add(1)
		}
	})

	elapsed := time.Since(start)
	b.ReportMetric(float64(counter.Load())/elapsed.Seconds(), "subsegments/sec")
}

// BenchmarkIDGeneration measures segment and trace id generation.
func BenchmarkIDGeneration(b *testing.B) {
	b.Run("segment", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			_ = xrayz.NewSegmentID()
		}
	})
	b.Run("trace", func(b *testing.B) {
		now := time.Now()
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			_ = xrayz.NewTraceID(now)
		}
	})
}

// BenchmarkHeader measures parsing and rendering the propagation header.
func BenchmarkHeader(b *testing.B) {
	b.Run("parse", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			if _, err := xrayz.ParseHeader(benchHeader); err != nil {
				b.Fatal(err)
			}
		}
	})
	b.Run("string", func(b *testing.B) {
		h, err := xrayz.ParseHeader(benchHeader)
		if err != nil {
			b.Fatal(err)
		}
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			_ = h.WithParentID("53995c3f42cd8ad8").String()
		}
	})
}

// BenchmarkInterceptorAttempt measures the per-attempt overhead.
func BenchmarkInterceptorAttempt(b *testing.B) {
	interceptor := xrayz.NewInterceptor(benchContext(b, discard{}), xrayz.WithOperation("S3", "GetObject"))
	ctx := context.Background()
	ok := func(context.Context) xrayz.AttemptResult {
		return xrayz.AttemptResult{StatusCode: http.StatusOK, RequestID: "req"}
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req := &xrayz.AttemptRequest{Header: http.Header{}}
		interceptor.Attempt(ctx, req, ok)
	}
}
