package xrayz

import "errors"

// Configuration errors. These are the only errors returned by setup calls.
var (
	// ErrMalformedTraceContext reports a trace header that cannot be parsed.
	ErrMalformedTraceContext = errors.New("malformed trace context")
	// ErrInvalidAddress reports a daemon address that cannot be resolved.
	ErrInvalidAddress = errors.New("invalid daemon address")
	// ErrMissingEnv reports a required environment variable that is unset.
	ErrMissingEnv = errors.New("missing environment variable")
)

// Reporting errors. Sessions absorb these on Close.
var (
	// ErrTransport reports a datagram that could not be written.
	ErrTransport = errors.New("transport error")
	// ErrInvalidDocument reports a document missing mandatory fields.
	ErrInvalidDocument = errors.New("invalid segment document")
	// ErrClassification reports an outcome that could not be classified.
	ErrClassification = errors.New("classification failed")
)
