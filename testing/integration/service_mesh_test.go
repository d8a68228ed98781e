package integration

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/zoobzio/xrayz"
)

// callService performs one traced HTTP call to url through interceptor.
func callService(ctx context.Context, t *testing.T, interceptor *xrayz.Interceptor, url string) int {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}

	result := interceptor.Attempt(ctx, &xrayz.AttemptRequest{Header: req.Header, Method: req.Method, URL: url},
		func(context.Context) xrayz.AttemptResult {
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return xrayz.AttemptResult{Err: err}
			}
			defer resp.Body.Close()
			return xrayz.AttemptResult{StatusCode: resp.StatusCode}
		})
	return result.StatusCode
}

// TestServiceMeshPropagation demonstrates a trace crossing two services:
// the downstream service continues the trace from the injected header.
func TestServiceMeshPropagation(t *testing.T) {
	daemon := NewMockDaemon(t)
	xctx := daemon.Context()

	inventory := NewMockService("inventory", daemon.Client)
	server := httptest.NewServer(inventory)
	defer server.Close()

	interceptor := xrayz.NewInterceptor(xctx, xrayz.WithOperation("inventory", "GetStock"))

	err := xrayz.Trace(context.Background(), xctx, xrayz.NewCustomNamespace("checkout"), func(ctx context.Context, _ *xrayz.Session) error {
		if status := callService(ctx, t, interceptor, server.URL+"/stock"); status != http.StatusOK {
			t.Errorf("Expected 200, got %d", status)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Trace failed: %v", err)
	}

	docs := daemon.WaitForDocuments(3)
	AssertParentChild(t, docs, "checkout", "inventory")
	AssertParentChild(t, docs, "inventory", "inventory.handle")

	received := inventory.Received()
	if len(received) != 1 {
		t.Fatalf("Expected one downstream request, got %d", len(received))
	}
	call := FindNamed(t, docs, "inventory")
	if call != nil && !strings.Contains(received[0], "Parent="+call.ID) {
		t.Errorf("Downstream header %q does not name the call subsegment %s", received[0], call.ID)
	}
	if call != nil && call.HTTP.Response.Status != http.StatusOK {
		t.Errorf("Expected recorded status 200, got %d", call.HTTP.Response.Status)
	}
}

// TestServiceMeshDownstreamFailure verifies a 5xx is recorded as a fault on
// the caller's side while the downstream reports its own subsegment.
func TestServiceMeshDownstreamFailure(t *testing.T) {
	daemon := NewMockDaemon(t)
	xctx := daemon.Context()

	payments := NewMockService("payments", daemon.Client)
	payments.SetStatus(http.StatusBadGateway)
	server := httptest.NewServer(payments)
	defer server.Close()

	interceptor := xrayz.NewInterceptor(xctx, xrayz.WithOperation("payments", "Charge"))
	if status := callService(context.Background(), t, interceptor, server.URL); status != http.StatusBadGateway {
		t.Errorf("Expected 502, got %d", status)
	}

	docs := daemon.WaitForDocuments(2)
	call := FindNamed(t, docs, "payments")
	if call == nil {
		return
	}
	if !call.Fault || call.Error {
		t.Errorf("Expected fault only, got fault=%v error=%v", call.Fault, call.Error)
	}
	AssertParentChild(t, docs, "payments", "payments.handle")
}
