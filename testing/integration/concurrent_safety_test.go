package integration

import (
	"context"
	"sync"
	"testing"

	"github.com/zoobzio/xrayz"
)

// runConcurrentSessions opens a parent and a child session in each
// iteration from several goroutines sharing xctx.
func runConcurrentSessions(xctx xrayz.SubsegmentContext, goroutines, perGoroutine int) {
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				ctx, parent := xctx.Start(context.Background(), xrayz.NewCustomNamespace("parent"))
				_, child := xctx.Start(ctx, xrayz.NewAwsNamespace("DynamoDB", "GetItem"))
				child.Close()
				parent.Close()
			}
		}()
	}
	wg.Wait()
}

// assertUniqueLinkedDocs checks that ids never repeat and every child
// points at a parent from the same batch.
func assertUniqueLinkedDocs(t *testing.T, docs []*xrayz.Subsegment) {
	t.Helper()
	ids := make(map[string]bool, len(docs))
	parents := make(map[string]bool)
	for _, doc := range docs {
		if ids[doc.ID] {
			t.Errorf("Duplicate subsegment id %s", doc.ID)
		}
		ids[doc.ID] = true
		if doc.Name == "parent" {
			parents[doc.ID] = true
		}
	}
	for _, doc := range docs {
		if doc.Name == "DynamoDB" && !parents[doc.ParentID] {
			t.Errorf("Child %s has unknown parent %s", doc.ID, doc.ParentID)
		}
	}
}

// TestConcurrentSessions opens sessions from many goroutines against one
// shared context. The collector keeps every document, so the full count is
// checked.
func TestConcurrentSessions(t *testing.T) {
	collector := xrayz.NewCollector(0)
	xctx, err := xrayz.NewSubsegmentContext(TestHeader, collector)
	if err != nil {
		t.Fatal(err)
	}

	runConcurrentSessions(xctx, 10, 10)

	docs := collector.Export()
	if len(docs) != 200 {
		t.Fatalf("Expected 200 documents, got %d", len(docs))
	}
	assertUniqueLinkedDocs(t, docs)
}

// TestConcurrentSessionsOverUDP repeats the check through a real socket
// with a burst small enough for the daemon stub to absorb.
func TestConcurrentSessionsOverUDP(t *testing.T) {
	daemon := NewMockDaemon(t)

	runConcurrentSessions(daemon.Context(), 4, 3)

	assertUniqueLinkedDocs(t, daemon.WaitForDocuments(24))
}

// TestConcurrentCloseOfSharedSession races Close and outcome setters on one
// session; exactly one document may result.
func TestConcurrentCloseOfSharedSession(t *testing.T) {
	collector := xrayz.NewCollector(0)
	xctx, err := xrayz.NewSubsegmentContext(TestHeader, collector)
	if err != nil {
		t.Fatal(err)
	}

	for round := 0; round < 20; round++ {
		session := xctx.Enter(xrayz.NewCustomNamespace("shared"))
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if i%2 == 0 {
					session.SetFault()
				}
				session.Close()
			}(i)
		}
		wg.Wait()
	}

	if got := collector.Count(); got != 20 {
		t.Errorf("Expected 20 documents, got %d", got)
	}
}
