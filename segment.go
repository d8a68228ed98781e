package xrayz

import (
	"fmt"
	"math"
	"time"

	"github.com/bytedance/sonic"
)

// documentType is the fixed "type" of every document this package emits.
const documentType = "subsegment"

// Seconds is a timestamp in fractional seconds since the Unix epoch.
type Seconds float64

// SecondsFrom converts t with microsecond precision.
func SecondsFrom(t time.Time) Seconds {
	return Seconds(float64(t.UnixMicro()) / 1e6)
}

// Time converts s back to a time.Time.
func (s Seconds) Time() time.Time {
	sec, frac := math.Modf(float64(s))
	return time.Unix(int64(sec), int64(math.Round(frac*1e6))*int64(time.Microsecond))
}

// AwsData is the "aws" object of an AWS subsegment.
type AwsData struct {
	Operation string `json:"operation,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// HTTPRequest is the "http.request" object.
type HTTPRequest struct {
	Method string `json:"method,omitempty"`
	URL    string `json:"url,omitempty"`
}

// HTTPResponse is the "http.response" object.
type HTTPResponse struct {
	Status int `json:"status,omitempty"`
}

// HTTPData is the "http" object.
type HTTPData struct {
	Request  *HTTPRequest  `json:"request,omitempty"`
	Response *HTTPResponse `json:"response,omitempty"`
}

// Subsegment is the document reported to the daemon.
// Subsegments are NOT thread-safe; Session guards the one it owns.
//
//nolint:govet // Field order matches the document layout
type Subsegment struct {
	Name       string    `json:"name"`
	ID         string    `json:"id"`
	TraceID    string    `json:"trace_id"`
	StartTime  Seconds   `json:"start_time"`
	EndTime    Seconds   `json:"end_time,omitempty"`
	InProgress bool      `json:"in_progress,omitempty"`
	ParentID   string    `json:"parent_id,omitempty"`
	Type       string    `json:"type"`
	Namespace  Tag       `json:"namespace,omitempty"`
	Error      bool      `json:"error,omitempty"`
	Fault      bool      `json:"fault,omitempty"`
	Throttle   bool      `json:"throttle,omitempty"`
	AWS        *AwsData  `json:"aws,omitempty"`
	HTTP       *HTTPData `json:"http,omitempty"`
}

// beginSubsegment creates an open subsegment.
func beginSubsegment(traceID, parentID, name string, start time.Time) *Subsegment {
	return &Subsegment{
		Name:       name,
		ID:         NewSegmentID(),
		TraceID:    traceID,
		ParentID:   parentID,
		StartTime:  SecondsFrom(start),
		InProgress: true,
		Type:       documentType,
	}
}

// IsOpen reports whether the subsegment has not ended.
func (s *Subsegment) IsOpen() bool {
	return s.EndTime == 0
}

// end stamps the end time, never earlier than the start time.
func (s *Subsegment) end(at time.Time) {
	end := SecondsFrom(at)
	if end < s.StartTime {
		end = s.StartTime
	}
	s.EndTime = end
	s.InProgress = false
}

// applyOutcome sets the outcome flags. Fault and error are exclusive.
func (s *Subsegment) applyOutcome(o Outcome) {
	switch o {
	case OutcomeError:
		s.Error, s.Fault, s.Throttle = true, false, false
	case OutcomeThrottle:
		s.Error, s.Fault, s.Throttle = true, false, true
	case OutcomeFault:
		s.Error, s.Fault, s.Throttle = false, true, false
	}
}

// Validate checks the mandatory fields and state invariants.
func (s *Subsegment) Validate() error {
	switch {
	case s == nil:
		return fmt.Errorf("%w: nil document", ErrInvalidDocument)
	case s.Name == "":
		return fmt.Errorf("%w: missing name", ErrInvalidDocument)
	case !ValidSegmentID(s.ID):
		return fmt.Errorf("%w: invalid id %q", ErrInvalidDocument, s.ID)
	case !ValidTraceID(s.TraceID):
		return fmt.Errorf("%w: invalid trace_id %q", ErrInvalidDocument, s.TraceID)
	case s.StartTime <= 0:
		return fmt.Errorf("%w: missing start_time", ErrInvalidDocument)
	case s.EndTime != 0 && s.InProgress:
		return fmt.Errorf("%w: in_progress with end_time", ErrInvalidDocument)
	case s.EndTime == 0 && !s.InProgress:
		return fmt.Errorf("%w: neither end_time nor in_progress", ErrInvalidDocument)
	case s.EndTime != 0 && s.EndTime < s.StartTime:
		return fmt.Errorf("%w: end_time before start_time", ErrInvalidDocument)
	case s.Fault && s.Error:
		return fmt.Errorf("%w: both fault and error set", ErrInvalidDocument)
	}
	return nil
}

// Encode validates the document and returns its JSON form.
func (s *Subsegment) Encode() ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	data, err := sonic.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	return data, nil
}

// Clone returns a deep copy.
func (s *Subsegment) Clone() *Subsegment {
	if s == nil {
		return nil
	}
	c := *s
	if s.AWS != nil {
		aws := *s.AWS
		c.AWS = &aws
	}
	if s.HTTP != nil {
		h := HTTPData{}
		if s.HTTP.Request != nil {
			req := *s.HTTP.Request
			h.Request = &req
		}
		if s.HTTP.Response != nil {
			resp := *s.HTTP.Response
			h.Response = &resp
		}
		c.HTTP = &h
	}
	return &c
}

func (s *Subsegment) httpData() *HTTPData {
	if s.HTTP == nil {
		s.HTTP = &HTTPData{}
	}
	return s.HTTP
}

func (s *Subsegment) setResponseStatus(status int) {
	if status <= 0 {
		return
	}
	h := s.httpData()
	if h.Response == nil {
		h.Response = &HTTPResponse{}
	}
	h.Response.Status = status
}
