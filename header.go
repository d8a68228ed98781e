package xrayz

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

const (
	traceIDVersion = "1"
	traceIDLength  = 35 // 1-XXXXXXXX-XXXXXXXXXXXXXXXXXXXXXXXX
	segmentIDLen   = 16
)

// SamplingDecision is the sampling flag carried by a trace header.
type SamplingDecision int

// Sampling decisions.
const (
	// SamplingUnknown means the header carried no decision.
	SamplingUnknown SamplingDecision = iota
	// Sampled means the trace is recorded.
	Sampled
	// NotSampled means the trace is not recorded.
	NotSampled
	// SamplingRequested defers the decision downstream.
	SamplingRequested
)

// String renders the decision as a header field, or "" when unknown.
func (d SamplingDecision) String() string {
	switch d {
	case Sampled:
		return "Sampled=1"
	case NotSampled:
		return "Sampled=0"
	case SamplingRequested:
		return "Sampled=?"
	default:
		return ""
	}
}

func parseSamplingDecision(field string) SamplingDecision {
	switch field {
	case "Sampled=1":
		return Sampled
	case "Sampled=0":
		return NotSampled
	case "Sampled=?":
		return SamplingRequested
	default:
		return SamplingUnknown
	}
}

type headerField struct {
	key   string
	value string
}

// Header is the parsed form of the X-Amzn-Trace-Id value.
// A Header is immutable; the With methods return modified copies.
type Header struct {
	traceID    string
	parentID   string
	sampling   SamplingDecision
	additional []headerField
}

// NewHeader creates a header for an existing trace id.
func NewHeader(traceID string) (Header, error) {
	if !ValidTraceID(traceID) {
		return Header{}, fmt.Errorf("%w: invalid trace id %q", ErrMalformedTraceContext, traceID)
	}
	return Header{traceID: traceID}, nil
}

// ParseHeader parses a raw trace header such as
// "Root=1-5759e988-bd862e3fe1be46a994272793;Parent=53995c3f42cd8ad8;Sampled=1".
// Fields may appear in any order. Root is required.
func ParseHeader(raw string) (Header, error) {
	var h Header
	for _, field := range strings.Split(raw, ";") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		switch {
		case strings.HasPrefix(field, "Root="):
			h.traceID = strings.TrimPrefix(field, "Root=")
		case strings.HasPrefix(field, "Parent="):
			h.parentID = strings.TrimPrefix(field, "Parent=")
		case strings.HasPrefix(field, "Sampled="):
			h.sampling = parseSamplingDecision(field)
		case strings.HasPrefix(field, "Self="):
			// Added by load balancers, never forwarded.
		default:
			key, value, ok := strings.Cut(field, "=")
			if !ok {
				return Header{}, fmt.Errorf("%w: no '=' in field %q", ErrMalformedTraceContext, field)
			}
			h.additional = append(h.additional, headerField{key: key, value: value})
		}
	}

	if h.traceID == "" {
		return Header{}, fmt.Errorf("%w: missing Root", ErrMalformedTraceContext)
	}
	if !ValidTraceID(h.traceID) {
		return Header{}, fmt.Errorf("%w: invalid trace id %q", ErrMalformedTraceContext, h.traceID)
	}
	if h.parentID != "" && !ValidSegmentID(h.parentID) {
		return Header{}, fmt.Errorf("%w: invalid parent id %q", ErrMalformedTraceContext, h.parentID)
	}
	return h, nil
}

// TraceID returns the root trace id.
func (h Header) TraceID() string { return h.traceID }

// ParentID returns the parent segment id, or "" for a root trace.
func (h Header) ParentID() string { return h.parentID }

// Sampling returns the sampling decision.
func (h Header) Sampling() SamplingDecision { return h.sampling }

// Data returns an additional key=value field.
func (h Header) Data(key string) (string, bool) {
	for _, f := range h.additional {
		if f.key == key {
			return f.value, true
		}
	}
	return "", false
}

// WithParentID returns a copy with the parent id replaced.
func (h Header) WithParentID(parentID string) Header {
	h.additional = cloneFields(h.additional)
	h.parentID = parentID
	return h
}

// WithSamplingDecision returns a copy with the sampling decision replaced.
func (h Header) WithSamplingDecision(d SamplingDecision) Header {
	h.additional = cloneFields(h.additional)
	h.sampling = d
	return h
}

// WithData returns a copy with an additional key=value field set.
func (h Header) WithData(key, value string) Header {
	fields := cloneFields(h.additional)
	for i := range fields {
		if fields[i].key == key {
			fields[i].value = value
			h.additional = fields
			return h
		}
	}
	h.additional = append(fields, headerField{key: key, value: value})
	return h
}

// String renders the header in its wire form.
func (h Header) String() string {
	var b strings.Builder
	b.WriteString("Root=")
	b.WriteString(h.traceID)
	if h.parentID != "" {
		b.WriteString(";Parent=")
		b.WriteString(h.parentID)
	}
	if h.sampling != SamplingUnknown {
		b.WriteByte(';')
		b.WriteString(h.sampling.String())
	}
	for _, f := range h.additional {
		b.WriteByte(';')
		b.WriteString(f.key)
		b.WriteByte('=')
		b.WriteString(f.value)
	}
	return b.String()
}

func cloneFields(fields []headerField) []headerField {
	if fields == nil {
		return nil
	}
	out := make([]headerField, len(fields))
	copy(out, fields)
	return out
}

// NewTraceID builds a trace id from the given time and 96 random bits.
func NewTraceID(now time.Time) string {
	suffix := make([]byte, 12)
	defaultIDs.fill(suffix)
	return fmt.Sprintf("%s-%08x-%s", traceIDVersion, uint32(now.Unix()), hex.EncodeToString(suffix))
}

// NewSegmentID returns a fresh 16 hex digit segment id.
func NewSegmentID() string {
	return defaultIDs.Get()
}

// ValidTraceID reports whether id has the form 1-<8 hex>-<24 hex>, lowercase.
func ValidTraceID(id string) bool {
	if len(id) != traceIDLength || id[0:2] != traceIDVersion+"-" || id[10] != '-' {
		return false
	}
	return isHex(id[2:10]) && isHex(id[11:])
}

// ValidSegmentID reports whether id is 16 lowercase hex digits.
func ValidSegmentID(id string) bool {
	return len(id) == segmentIDLen && isHex(id)
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return s != ""
}
