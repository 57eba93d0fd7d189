// Package wisski talks to the target graph store's entity API.
package wisski

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/c360studio/semmigrate/entity"
	"github.com/c360studio/semmigrate/remote"
)

// ErrNotFound is returned by Get when the store has no entity for the URI.
var ErrNotFound = errors.New("entity not found")

// Client reads and writes entities.
type Client struct {
	base string
	http *remote.Client
}

// NewClient creates a Client for the API rooted at base
// (e.g. https://wisski.example.org/wisski/api/v0).
func NewClient(base string, rc *remote.Client) *Client {
	return &Client{base: strings.TrimRight(base, "/"), http: rc}
}

// Get fetches the entity identified by uri.
func (c *Client) Get(ctx context.Context, uri string) (*entity.Descriptor, error) {
	endpoint := c.base + "/entity?" + url.Values{"uri": {uri}}.Encode()

	header := http.Header{}
	header.Set("Accept", "application/json")
	body, err := c.http.Do(ctx, http.MethodGet, endpoint, nil, header)
	if err != nil {
		if remote.StatusCode(err) == http.StatusNotFound {
			return nil, fmt.Errorf("get %s: %w", uri, ErrNotFound)
		}
		return nil, fmt.Errorf("get %s: %w", uri, err)
	}

	var d entity.Descriptor
	if err := json.Unmarshal(body, &d); err != nil {
		return nil, remote.NewFatalError(fmt.Errorf("decode entity %s: %w", uri, err))
	}
	if d.URI == "" {
		d.URI = uri
	}
	return &d, nil
}

// Save persists d and returns the URI of the stored entity. A descriptor
// with a URI updates that entity; one without creates a new entity.
func (c *Client) Save(ctx context.Context, d *entity.Descriptor) (string, error) {
	if d == nil || d.Bundle == "" {
		return "", remote.NewFatalError(errors.New("save: descriptor has no bundle"))
	}
	payload, err := json.Marshal(d)
	if err != nil {
		return "", remote.NewFatalError(fmt.Errorf("marshal entity: %w", err))
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Accept", "application/json")
	body, err := c.http.Do(ctx, http.MethodPost, c.base+"/entity", payload, header)
	if err != nil {
		return "", fmt.Errorf("save %s entity: %w", d.Bundle, err)
	}

	var saved struct {
		URI string `json:"uri"`
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &saved); err != nil {
			return "", remote.NewFatalError(fmt.Errorf("decode save response: %w", err))
		}
	}
	if saved.URI == "" {
		saved.URI = d.URI
	}
	return saved.URI, nil
}
