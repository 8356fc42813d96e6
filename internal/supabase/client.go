// Package supabase is a minimal PostgREST client for a Supabase project.
//
// It covers the calls tutorrag makes: batch upsert, insert, filtered select,
// update and delete, and RPC calls to SQL functions. Every request carries
// the service role key in both the apikey and Authorization headers.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrNotConfigured indicates the project URL or service role key is unset.
	ErrNotConfigured = errors.New("supabase url and service role key are required")

	// ErrMissingFilter guards against unfiltered update and delete calls.
	ErrMissingFilter = errors.New("at least one filter is required")
)

const (
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 8192
)

// Config holds connection settings.
type Config struct {
	URL            string
	ServiceRoleKey string
	Timeout        time.Duration
}

// APIError is a non-2xx PostgREST response.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "postgrest: status %d", e.Status)
	if e.Code != "" {
		fmt.Fprintf(&b, " code %s", e.Code)
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	if e.Details != "" {
		b.WriteString(" (" + e.Details + ")")
	}
	return b.String()
}

// Filter is a PostgREST horizontal filter such as user_id=eq.42.
type Filter struct {
	Column   string
	Operator string
	Value    string
}

// Eq matches rows where column equals value.
func Eq(column, value string) Filter {
	return Filter{Column: column, Operator: "eq", Value: value}
}

// NotIn matches rows where column is none of values. Values are quoted so
// commas and parentheses inside them stay literal.
func NotIn(column string, values ...string) Filter {
	quoted := make([]string, len(values))
	for i, v := range values {
		v = strings.ReplaceAll(v, `\`, `\\`)
		quoted[i] = `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
	}
	return Filter{Column: column, Operator: "not.in", Value: "(" + strings.Join(quoted, ",") + ")"}
}

// Client talks to /rest/v1 of a Supabase project.
type Client struct {
	restURL string
	key     string
	http    *http.Client
}

// New creates a client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" || cfg.ServiceRoleKey == "" {
		return nil, ErrNotConfigured
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("parsing supabase url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Client{
		restURL: strings.TrimRight(cfg.URL, "/") + "/rest/v1",
		key:     cfg.ServiceRoleKey,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// Insert adds rows to table.
func (c *Client) Insert(ctx context.Context, table string, rows any) error {
	return c.do(ctx, http.MethodPost, "/"+table, nil, rows, "return=minimal", nil)
}

// Upsert inserts rows, replacing rows whose onConflict columns match.
// An empty onConflict uses the primary key.
func (c *Client) Upsert(ctx context.Context, table string, rows any, onConflict string) error {
	var q url.Values
	if onConflict != "" {
		q = url.Values{"on_conflict": {onConflict}}
	}
	return c.do(ctx, http.MethodPost, "/"+table, q, rows, "resolution=merge-duplicates,return=minimal", nil)
}

// Select decodes all matching rows of table into out.
func (c *Client) Select(ctx context.Context, table string, out any, filters ...Filter) error {
	q := filterQuery(filters)
	q.Set("select", "*")
	return c.do(ctx, http.MethodGet, "/"+table, q, nil, "", out)
}

// Update sets values on matching rows.
func (c *Client) Update(ctx context.Context, table string, values any, filters ...Filter) error {
	if len(filters) == 0 {
		return ErrMissingFilter
	}
	return c.do(ctx, http.MethodPatch, "/"+table, filterQuery(filters), values, "return=minimal", nil)
}

// Delete removes matching rows.
func (c *Client) Delete(ctx context.Context, table string, filters ...Filter) error {
	if len(filters) == 0 {
		return ErrMissingFilter
	}
	return c.do(ctx, http.MethodDelete, "/"+table, filterQuery(filters), nil, "return=minimal", nil)
}

// RPC calls a SQL function with named params and decodes the result into out.
func (c *Client) RPC(ctx context.Context, function string, params any, out any) error {
	return c.do(ctx, http.MethodPost, "/rpc/"+function, nil, params, "", out)
}

func filterQuery(filters []Filter) url.Values {
	q := url.Values{}
	for _, f := range filters {
		q.Add(f.Column, f.Operator+"."+f.Value)
	}
	return q
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, prefer string, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	target := c.restURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("apikey", c.key)
	req.Header.Set("Authorization", "Bearer "+c.key)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(raw, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
