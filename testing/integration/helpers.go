package integration

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/xrayz"
	"github.com/zoobzio/xrayz/xrayztest"
)

// TestTraceID is the root every scenario runs under.
const TestTraceID = "1-5f84c7c1-e7d1f3b2a1c4d5e6f7081920"

// TestParentID is the caller's segment id in TestHeader.
const TestParentID = "3c6a6f1c1d2e3f40"

// TestHeader is the incoming trace header of every scenario.
const TestHeader = "Root=" + TestTraceID + ";Parent=" + TestParentID + ";Sampled=1"

// MockDaemon wraps an xrayztest daemon with a connected client.
type MockDaemon struct {
	*xrayztest.Daemon
	Client *xrayz.DaemonClient
	t      *testing.T
}

// NewMockDaemon starts a daemon on a free port and connects a client to it.
func NewMockDaemon(t *testing.T) *MockDaemon {
	t.Helper()
	daemon := xrayztest.NewDaemon(t)
	client, err := xrayz.NewDaemonClient(daemon.Addr())
	if err != nil {
		t.Fatalf("Failed to connect daemon client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return &MockDaemon{Daemon: daemon, Client: client, t: t}
}

// Context returns a subsegment context for TestHeader bound to the client.
func (m *MockDaemon) Context() xrayz.SubsegmentContext {
	m.t.Helper()
	xctx, err := xrayz.NewSubsegmentContext(TestHeader, m.Client)
	if err != nil {
		m.t.Fatalf("Failed to parse header: %v", err)
	}
	return xctx
}

// WaitForDocuments waits for expected documents and fails on decode errors.
func (m *MockDaemon) WaitForDocuments(expected int) []*xrayz.Subsegment {
	m.t.Helper()
	packets, err := m.Wait(expected, 5*time.Second)
	if err != nil {
		m.t.Fatalf("Timeout waiting for documents: %v", err)
	}
	docs := make([]*xrayz.Subsegment, 0, len(packets))
	for _, p := range packets {
		if p.Err != nil {
			m.t.Fatalf("Undecodable packet %q: %v", p.Body, p.Err)
		}
		if p.Header != `{"format":"json","version":1}` {
			m.t.Errorf("Unexpected protocol header %q", p.Header)
		}
		docs = append(docs, p.Subsegment)
	}
	return docs
}

// FindNamed returns the first document called name.
func FindNamed(t *testing.T, docs []*xrayz.Subsegment, name string) *xrayz.Subsegment {
	t.Helper()
	for _, doc := range docs {
		if doc.Name == name {
			return doc
		}
	}
	t.Errorf("Subsegment named '%s' not found", name)
	return nil
}

// AssertParentChild verifies the parent-child relationship of two documents.
func AssertParentChild(t *testing.T, docs []*xrayz.Subsegment, parentName, childName string) {
	t.Helper()
	parent := FindNamed(t, docs, parentName)
	child := FindNamed(t, docs, childName)
	if parent == nil || child == nil {
		return
	}
	if child.ParentID != parent.ID {
		t.Errorf("Parent-child relationship broken: %s is not parent of %s. Child ParentID=%s, Parent ID=%s",
			parentName, childName, child.ParentID, parent.ID)
	}
	if child.TraceID != parent.TraceID {
		t.Errorf("Trace ID mismatch: parent=%s, child=%s", parent.TraceID, child.TraceID)
	}
}

// DocTree is a hierarchical view of subsegments.
type DocTree struct {
	Doc      *xrayz.Subsegment
	Children []*DocTree
}

// BuildDocTree constructs a tree from a flat document list. Documents whose
// parent is not in the list become roots.
func BuildDocTree(docs []*xrayz.Subsegment) []*DocTree {
	nodes := make(map[string]*DocTree, len(docs))
	for _, doc := range docs {
		nodes[doc.ID] = &DocTree{Doc: doc}
	}

	roots := make([]*DocTree, 0)
	for _, doc := range docs {
		node := nodes[doc.ID]
		if parent, ok := nodes[doc.ParentID]; ok {
			parent.Children = append(parent.Children, node)
		} else {
			roots = append(roots, node)
		}
	}
	return roots
}

// PrintDocTree formats a tree for debugging.
func PrintDocTree(trees []*DocTree) string {
	var sb strings.Builder
	for _, tree := range trees {
		printTreeNode(&sb, tree, 0)
	}
	return sb.String()
}

func printTreeNode(sb *strings.Builder, node *DocTree, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(sb, "%s%s (%.2fms)\n",
		indent, node.Doc.Name, float64(node.Doc.EndTime-node.Doc.StartTime)*1000)
	for _, child := range node.Children {
		printTreeNode(sb, child, depth+1)
	}
}

// MockService is a downstream HTTP service that continues the caller's
// trace from the incoming header.
type MockService struct {
	client   xrayz.Client
	name     string
	received []string
	status   int
	mu       sync.Mutex
}

// NewMockService creates a service reporting to client.
func NewMockService(name string, client xrayz.Client) *MockService {
	return &MockService{name: name, client: client, status: http.StatusOK}
}

// SetStatus configures the response status.
func (m *MockService) SetStatus(status int) {
	m.mu.Lock()
	m.status = status
	m.mu.Unlock()
}

// Received returns the trace headers seen so far.
func (m *MockService) Received() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.received))
	copy(out, m.received)
	return out
}

func (m *MockService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw := r.Header.Get(xrayz.HeaderName)
	m.mu.Lock()
	m.received = append(m.received, raw)
	status := m.status
	m.mu.Unlock()

	tracer := xrayz.Infallible(xrayz.NewSubsegmentContext(raw, m.client))
	_ = xrayz.Trace(r.Context(), tracer, xrayz.NewCustomNamespace(m.name+".handle"), func(context.Context, *xrayz.Session) error { //nolint:errcheck // Handler body cannot fail.
		return nil
	})
	w.WriteHeader(status)
}
