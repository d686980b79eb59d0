// Package batchclient fetches spare part batches from the admin endpoint.
package batchclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/bbmatyushin/medsil-equipment-base/model"
)

// EndpointPrefix is the admin path of the batch endpoint.
const EndpointPrefix = "/admin/get-spare-part-quantity/"

// NullRecord is the path segment used when the page has no saved record yet.
const NullRecord = "null"

var uuidPattern = regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)

// RecordIDFromPath returns the first UUID in a page path, or "" when there
// is none.
func RecordIDFromPath(path string) string {
	for _, m := range uuidPattern.FindAllString(path, -1) {
		if id, err := uuid.Parse(m); err == nil {
			return id.String()
		}
	}
	return ""
}

// Client implements the tracker's Fetcher over HTTP.
type Client struct {
	baseURL   string
	recordID  string
	csrfToken string
	http      *http.Client
	logger    *log.Logger
	group     singleflight.Group
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout bounds each request. Zero keeps requests unbounded.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			hc := *c.http
			hc.Timeout = d
			c.http = &hc
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient builds a client for the change page at pagePath.
func NewClient(baseURL, pagePath, csrfToken string, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		recordID:  RecordIDFromPath(pagePath),
		csrfToken: csrfToken,
		http:      &http.Client{},
		logger:    log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) RecordID() string {
	return c.recordID
}

// BatchURL returns the endpoint URL for a part.
func (c *Client) BatchURL(partID string) string {
	record := c.recordID
	if record == "" {
		record = NullRecord
	}
	return c.baseURL + EndpointPrefix + url.PathEscape(record) + "/" + url.PathEscape(partID) + "/"
}

// FetchBatches never returns an error for transport or status failures: they
// are logged and reported as an empty list. Only a cancelled context is an
// error.
//
// Concurrent calls for the same part share one request. The shared request is
// detached from the caller that started it, so cancelling one caller leaves
// the others waiting for the result.
func (c *Client) FetchBatches(ctx context.Context, partID string) ([]model.BatchDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.logger.Printf("Fetching data for spare part: %s", partID)
	u := c.BatchURL(partID)
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(u, func() (interface{}, error) {
		return c.get(shared, u)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		c.logger.Printf("ERROR: fetching spare part %s: %v", partID, res.Err)
		return []model.BatchDescriptor{}, nil
	}
	results := res.Val.([]model.BatchDescriptor)
	return append([]model.BatchDescriptor(nil), results...), nil
}

func (c *Client) get(ctx context.Context, u string) ([]model.BatchDescriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-CSRFToken", c.csrfToken)
	req.Header.Set("Content-Type", "application/json")
	if c.csrfToken != "" {
		req.AddCookie(&http.Cookie{Name: "csrftoken", Value: c.csrfToken})
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("request %s: status %d", u, resp.StatusCode)
	}

	var body model.BatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode %s: %w", u, err)
	}
	if body.Results == nil {
		return []model.BatchDescriptor{}, nil
	}
	return body.Results, nil
}
