// Package xrayz provides a lightweight client for the X-Ray daemon protocol.
//
// xrayz records subsegments inside an existing trace, typically one started
// by a serverless runtime, and reports each finished subsegment to the local
// daemon as a single UDP datagram. It does not sample, buffer or retry.
//
// Core Components:
//   - Header: Parsed trace context (trace id, parent id, sampling decision).
//   - Subsegment: The JSON document sent to the daemon.
//   - Namespace: AWS, remote or custom metadata for a subsegment.
//   - DaemonClient: Frames and sends documents over UDP.
//   - SubsegmentContext: Creates sessions linked to the trace context.
//   - Session: Scoped handle that reports its subsegment on Close.
//   - Interceptor: Opens one session per attempt of an SDK operation.
//
// Basic Usage:
//
//	client, err := xrayz.NewDaemonClient("127.0.0.1:2000")
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	xctx, err := xrayz.NewSubsegmentContext(os.Getenv("_X_AMZN_TRACE_ID"), client)
//	tracer := xrayz.Infallible(xctx, err)
//
//	// Open a subsegment around a block of work.
//	ctx, session := tracer.Start(ctx, xrayz.NewAwsNamespace("S3", "GetObject"))
//	defer session.Close()
//
//	// Attach late data before the session closes.
//	if ns, ok := session.Namespace().(*xrayz.AwsNamespace); ok {
//		ns.SetRequestID(requestID)
//	}
//
// Thread Safety:
//
// DaemonClient and SubsegmentContext are safe for concurrent use.
// A Session belongs to the call stack that opened it; its methods are
// guarded so misuse cannot corrupt the document, but sharing one across
// goroutines is not supported.
//
// Reporting:
//
// Close never fails. Encoding and transport errors are logged through the
// configured zap logger and dropped so tracing cannot change the outcome of
// the traced operation.
package xrayz

// HeaderName is the HTTP header used to propagate trace context.
const HeaderName = "X-Amzn-Trace-Id"

// Tag represents a namespace kind as it appears in the document.
type Tag = string

// Namespace tags written to the "namespace" field.
const (
	TagAWS    Tag = "aws"
	TagRemote Tag = "remote"
)
