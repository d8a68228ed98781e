package xrayz

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestDoc() *Subsegment {
	return beginSubsegment(testTraceID, testParentID, "test", time.Unix(1700000000, 0))
}

func TestAwsNamespace(t *testing.T) {
	ns := NewAwsNamespace("S3", "GetObject")
	require.Equal(t, "S3", ns.Name(""))
	require.Equal(t, "S3", ns.Name("prefix."))

	doc := newTestDoc()
	ns.apply(doc)
	require.Equal(t, TagAWS, doc.Namespace)
	require.Equal(t, &AwsData{Operation: "GetObject"}, doc.AWS)
	require.Nil(t, doc.HTTP)
}

func TestAwsNamespaceLateData(t *testing.T) {
	ns := NewAwsNamespace("DynamoDB", "GetItem")
	doc := newTestDoc()
	ns.apply(doc)

	ns.SetRequestID("req-123").SetResponseStatus(404)
	ns.apply(doc)

	require.Equal(t, "req-123", doc.AWS.RequestID)
	require.Equal(t, 404, doc.HTTP.Response.Status)
	require.Nil(t, doc.HTTP.Request)
}

func TestRemoteNamespace(t *testing.T) {
	ns := NewRemoteNamespace("codemonger.io", "GET", "https://codemonger.io/")
	require.Equal(t, "codemonger.io", ns.Name("prefix."))

	doc := newTestDoc()
	ns.SetResponseStatus(200).apply(doc)

	require.Equal(t, TagRemote, doc.Namespace)
	require.Equal(t, &HTTPRequest{Method: "GET", URL: "https://codemonger.io/"}, doc.HTTP.Request)
	require.Equal(t, 200, doc.HTTP.Response.Status)
	require.Nil(t, doc.AWS)
}

func TestCustomNamespace(t *testing.T) {
	ns := NewCustomNamespace("TestSubsegment")
	require.Equal(t, "TestSubsegment", ns.Name(""))
	require.Equal(t, "prefixTestSubsegment", ns.Name("prefix"))

	doc := newTestDoc()
	ns.apply(doc)
	require.Empty(t, doc.Namespace)
	require.Nil(t, doc.AWS)
	require.Nil(t, doc.HTTP)
}
