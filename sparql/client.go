// Package sparql queries the lookup endpoint and reads SPARQL 1.1 JSON
// result sets.
package sparql

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/c360studio/semmigrate/remote"
)

// IDVariable is the result column a lookup query binds the matched entity to.
const IDVariable = "id"

const resultsMIME = "application/sparql-results+json"

// Results is a SPARQL JSON result set.
type Results struct {
	Head struct {
		Vars []string `json:"vars"`
	} `json:"head"`
	Results struct {
		Bindings []map[string]Binding `json:"bindings"`
	} `json:"results"`
}

// Binding is one bound value in a result row.
type Binding struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Datatype string `json:"datatype,omitempty"`
	Lang     string `json:"xml:lang,omitempty"`
}

// Client sends queries to a SPARQL endpoint.
type Client struct {
	endpoint string
	http     *remote.Client
}

// NewClient creates a Client for endpoint.
func NewClient(endpoint string, rc *remote.Client) *Client {
	return &Client{endpoint: endpoint, http: rc}
}

// Query runs query and decodes the result set.
func (c *Client) Query(ctx context.Context, query string) (*Results, error) {
	form := url.Values{"query": {query}}
	header := http.Header{}
	header.Set("Content-Type", "application/x-www-form-urlencoded")
	header.Set("Accept", resultsMIME)

	body, err := c.http.Do(ctx, http.MethodPost, c.endpoint, []byte(form.Encode()), header)
	if err != nil {
		return nil, err
	}

	var res Results
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, remote.NewFatalError(fmt.Errorf("decode sparql results: %w", err))
	}
	return &res, nil
}

// Lookup runs a lookup query and returns the id of the first row. An empty
// result set is a miss, not an error.
func (c *Client) Lookup(ctx context.Context, query string) (string, bool, error) {
	res, err := c.Query(ctx, query)
	if err != nil {
		return "", false, err
	}
	if len(res.Results.Bindings) == 0 {
		return "", false, nil
	}
	b, ok := res.Results.Bindings[0][IDVariable]
	if !ok {
		return "", false, remote.NewFatalError(fmt.Errorf("lookup result has no %q column (vars: %s)",
			IDVariable, strings.Join(res.Head.Vars, ", ")))
	}
	return b.Value, true, nil
}

// Population runs a listing query and returns the first column of every
// row, in result order. Rows that leave the column unbound are dropped.
func (c *Client) Population(ctx context.Context, query string) ([]string, error) {
	res, err := c.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(res.Head.Vars) == 0 {
		return nil, nil
	}
	col := res.Head.Vars[0]
	values := make([]string, 0, len(res.Results.Bindings))
	for _, row := range res.Results.Bindings {
		if b, ok := row[col]; ok {
			values = append(values, b.Value)
		}
	}
	return values, nil
}
