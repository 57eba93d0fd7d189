package wisski

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/c360studio/semmigrate/entity"
	"github.com/c360studio/semmigrate/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	rc := remote.NewClient(remote.Config{
		Service:  "store",
		Timeout:  5 * time.Second,
		Username: "admin",
		Password: "secret",
		Retry:    remote.RetryConfig{MaxAttempts: 1},
	})
	return NewClient(srv.URL+"/", rc)
}

func TestGet(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/entity", r.URL.Path)
		assert.Equal(t, "https://example.org/data/1", r.URL.Query().Get("uri"))
		user, _, _ := r.BasicAuth()
		assert.Equal(t, "admin", user)
		_, _ = w.Write([]byte(`{"bundle":"b1","fields":{"f1":["hello"],"f2":["https://example.org/data/x"]}}`))
	})

	d, err := c.Get(context.Background(), "https://example.org/data/1")
	require.NoError(t, err)
	assert.Equal(t, "b1", d.Bundle)
	assert.Equal(t, "https://example.org/data/1", d.URI)
	assert.Equal(t, entity.Literal("hello"), d.Fields["f1"][0])
	assert.Equal(t, entity.Ref("https://example.org/data/x"), d.Fields["f2"][0])
}

func TestGetNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.Get(context.Background(), "https://example.org/data/missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSave(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`{"uri":"https://example.org/data/new"}`))
	})

	d := entity.NewDescriptor("g_person").Set("f_person_name", entity.Literal("Ada"))
	uri, err := c.Save(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/data/new", uri)
	assert.Equal(t, "g_person", got["bundle"])
	assert.NotContains(t, got, "uri")
}

func TestSaveRejectsMissingBundle(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	_, err := c.Save(context.Background(), entity.NewDescriptor(""))
	require.Error(t, err)
	assert.True(t, remote.IsFatal(err))
}
