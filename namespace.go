package xrayz

// Namespace classifies the subject of a subsegment and decides which
// fields it carries. The variants are AwsNamespace, RemoteNamespace and
// CustomNamespace; the interface is sealed.
type Namespace interface {
	// Name returns the subsegment name. Only custom namespaces use prefix.
	Name(prefix string) string
	apply(s *Subsegment)
	isNil() bool
}

// AwsNamespace describes a call to an AWS service operation.
type AwsNamespace struct {
	Service        string
	Operation      string
	RequestID      string
	ResponseStatus int
}

// NewAwsNamespace creates a namespace for service and operation.
func NewAwsNamespace(service, operation string) *AwsNamespace {
	return &AwsNamespace{Service: service, Operation: operation}
}

// SetRequestID records the request id returned by the service.
func (n *AwsNamespace) SetRequestID(id string) *AwsNamespace {
	n.RequestID = id
	return n
}

// SetResponseStatus records the HTTP status of the response.
func (n *AwsNamespace) SetResponseStatus(status int) *AwsNamespace {
	n.ResponseStatus = status
	return n
}

// Name returns the service name.
func (n *AwsNamespace) Name(_ string) string {
	return n.Service
}

func (n *AwsNamespace) isNil() bool { return n == nil }

func (n *AwsNamespace) apply(s *Subsegment) {
	s.Namespace = TagAWS
	if s.AWS == nil {
		s.AWS = &AwsData{}
	}
	s.AWS.Operation = n.Operation
	if n.RequestID != "" {
		s.AWS.RequestID = n.RequestID
	}
	s.setResponseStatus(n.ResponseStatus)
}

// RemoteNamespace describes a call to an arbitrary remote service.
type RemoteNamespace struct {
	Service        string
	Method         string
	URL            string
	ResponseStatus int
}

// NewRemoteNamespace creates a namespace for a remote HTTP call.
func NewRemoteNamespace(name, method, url string) *RemoteNamespace {
	return &RemoteNamespace{Service: name, Method: method, URL: url}
}

// SetResponseStatus records the HTTP status of the response.
func (n *RemoteNamespace) SetResponseStatus(status int) *RemoteNamespace {
	n.ResponseStatus = status
	return n
}

// Name returns the remote service name.
func (n *RemoteNamespace) Name(_ string) string {
	return n.Service
}

func (n *RemoteNamespace) isNil() bool { return n == nil }

func (n *RemoteNamespace) apply(s *Subsegment) {
	s.Namespace = TagRemote
	h := s.httpData()
	if h.Request == nil {
		h.Request = &HTTPRequest{}
	}
	h.Request.Method = n.Method
	h.Request.URL = n.URL
	s.setResponseStatus(n.ResponseStatus)
}

// CustomNamespace describes application logic.
type CustomNamespace struct {
	Label string
}

// NewCustomNamespace creates a namespace for a custom subsegment.
func NewCustomNamespace(name string) *CustomNamespace {
	return &CustomNamespace{Label: name}
}

// Name returns prefix followed by the label.
func (n *CustomNamespace) Name(prefix string) string {
	return prefix + n.Label
}

func (n *CustomNamespace) isNil() bool { return n == nil }

func (*CustomNamespace) apply(*Subsegment) {}
