package xrayz

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// Outcome is the classified result of a traced operation.
type Outcome int

// Outcomes.
const (
	// OutcomeNone leaves the subsegment without outcome flags.
	OutcomeNone Outcome = iota
	// OutcomeError is a client-side failure (4xx, validation).
	OutcomeError
	// OutcomeFault is a server-side or transport failure (5xx, unreachable).
	OutcomeFault
	// OutcomeThrottle is a throttled request (429); it implies error.
	OutcomeThrottle
)

func (o Outcome) String() string {
	switch o {
	case OutcomeError:
		return "error"
	case OutcomeFault:
		return "fault"
	case OutcomeThrottle:
		return "throttle"
	default:
		return "none"
	}
}

// ClassifyStatus maps an HTTP status to an outcome.
func ClassifyStatus(status int) Outcome {
	switch {
	case status == http.StatusTooManyRequests:
		return OutcomeThrottle
	case status >= 500:
		return OutcomeFault
	case status >= 400:
		return OutcomeError
	default:
		return OutcomeNone
	}
}

// ClassifyError inspects err for structured details. It returns
// OutcomeNone when nothing in the chain identifies the failure.
func ClassifyError(err error) Outcome {
	if err == nil {
		return OutcomeNone
	}

	var withStatus interface{ HTTPStatusCode() int }
	if errors.As(err, &withStatus) {
		if o := ClassifyStatus(withStatus.HTTPStatusCode()); o != OutcomeNone {
			return o
		}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return OutcomeError
	}

	// An endpoint was attached but the exchange never completed.
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return OutcomeFault
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return OutcomeFault
	}

	return OutcomeNone
}

// OutcomeClassifier decides the outcome of one attempt.
type OutcomeClassifier interface {
	Classify(result AttemptResult) (Outcome, error)
}

// OutcomeClassifierFunc adapts a function to OutcomeClassifier.
type OutcomeClassifierFunc func(result AttemptResult) (Outcome, error)

// Classify calls f.
func (f OutcomeClassifierFunc) Classify(result AttemptResult) (Outcome, error) {
	return f(result)
}

// DefaultClassifier classifies by status code first, then by error details.
type DefaultClassifier struct{}

// Classify implements OutcomeClassifier.
func (DefaultClassifier) Classify(result AttemptResult) (Outcome, error) {
	if result.Err == nil {
		return ClassifyStatus(result.StatusCode), nil
	}
	if o := ClassifyStatus(result.StatusCode); o != OutcomeNone {
		return o, nil
	}
	if o := ClassifyError(result.Err); o != OutcomeNone {
		return o, nil
	}
	return OutcomeNone, fmt.Errorf("%w: %T", ErrClassification, result.Err)
}

// RequestClassifier identifies the AWS service and operation of a request.
type RequestClassifier interface {
	ClassifyRequest(req *AttemptRequest) (*AwsNamespace, bool)
}

// KnownServices classifies requests for a number of AWS services.
//
// An "X-Amz-Target: Service.Operation" header is used when present; this
// covers DynamoDB, SQS, Cognito and others. Otherwise S3 endpoints are
// recognized through their "x-id" query parameter.
type KnownServices struct{}

// ClassifyRequest implements RequestClassifier.
func (KnownServices) ClassifyRequest(req *AttemptRequest) (*AwsNamespace, bool) {
	if req == nil {
		return nil, false
	}
	if target := req.Header.Get("X-Amz-Target"); target != "" {
		parts := strings.Split(target, ".")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, false
		}
		return NewAwsNamespace(parts[0], parts[1]), true
	}

	u, ok := parseAWSURL(req.URL)
	if !ok {
		return nil, false
	}
	switch code, _ := awsServiceCode(u); code {
	case "s3":
		return classifyS3(u)
	default:
		return nil, false
	}
}

// S3Classifier classifies S3 requests only.
type S3Classifier struct{}

// ClassifyRequest implements RequestClassifier.
func (S3Classifier) ClassifyRequest(req *AttemptRequest) (*AwsNamespace, bool) {
	if req == nil {
		return nil, false
	}
	u, ok := parseAWSURL(req.URL)
	if !ok {
		return nil, false
	}
	return classifyS3(u)
}

func classifyS3(u *url.URL) (*AwsNamespace, bool) {
	if code, ok := awsServiceCode(u); !ok || code != "s3" {
		return nil, false
	}
	for name, values := range u.Query() {
		if strings.EqualFold(name, "x-id") && len(values) > 0 && values[0] != "" {
			return NewAwsNamespace("S3", values[0]), true
		}
	}
	return nil, false
}

// parseAWSURL parses raw and accepts only *.amazonaws.com hosts.
func parseAWSURL(raw string) (*url.URL, bool) {
	u, err := url.Parse(raw)
	if err != nil || !strings.HasSuffix(u.Hostname(), ".amazonaws.com") {
		return nil, false
	}
	return u, true
}

// awsServiceCode extracts the service part of an AWS endpoint host:
// {service}.amazonaws.com, {service}.{region}.amazonaws.com, or
// {bucket}.{service}.{region}.amazonaws.com.
func awsServiceCode(u *url.URL) (string, bool) {
	labels := strings.Split(u.Hostname(), ".")
	switch len(labels) {
	case 5:
		return labels[1], true
	case 3, 4:
		return labels[0], true
	default:
		return "", false
	}
}
