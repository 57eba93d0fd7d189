package sparql

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/c360studio/semmigrate/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	rc := remote.NewClient(remote.Config{
		Service: "sparql",
		Timeout: 5 * time.Second,
		Retry:   remote.RetryConfig{MaxAttempts: 1},
	})
	return NewClient(srv.URL, rc)
}

func TestLookup(t *testing.T) {
	var gotQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotQuery = r.PostForm.Get("query")
		assert.Equal(t, resultsMIME, r.Header.Get("Accept"))
		w.Header().Set("Content-Type", resultsMIME)
		_, _ = w.Write([]byte(`{"head":{"vars":["id"]},"results":{"bindings":[
			{"id":{"type":"uri","value":"https://example.org/data/a"}},
			{"id":{"type":"uri","value":"https://example.org/data/b"}}]}}`))
	})

	ref, found, err := c.Lookup(context.Background(), "SELECT ?id WHERE { ?id ?p 'x' }")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "https://example.org/data/a", ref)
	assert.Equal(t, "SELECT ?id WHERE { ?id ?p 'x' }", gotQuery)
}

func TestLookupMiss(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"head":{"vars":["id"]},"results":{"bindings":[]}}`))
	})

	ref, found, err := c.Lookup(context.Background(), "q")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, ref)
}

func TestLookupWithoutIDColumn(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"head":{"vars":["x"]},"results":{"bindings":[{"x":{"type":"literal","value":"1"}}]}}`))
	})

	_, _, err := c.Lookup(context.Background(), "q")
	require.Error(t, err)
	assert.True(t, remote.IsFatal(err))
}

func TestLookupServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, _, err := c.Lookup(context.Background(), "q")
	require.Error(t, err)
	assert.True(t, remote.IsTransient(err))
}

func TestPopulation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"head":{"vars":["name","id"]},"results":{"bindings":[
			{"name":{"type":"literal","value":"Alice"},"id":{"type":"uri","value":"u1"}},
			{"id":{"type":"uri","value":"u2"}},
			{"name":{"type":"literal","value":"Bob"}}]}}`))
	})

	names, err := c.Population(context.Background(), "SELECT ?name ?id WHERE {}")
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice", "Bob"}, names)
}
