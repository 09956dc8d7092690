package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// JSONClient exchanges JSON documents with one base URL.
type JSONClient struct {
	http    *http.Client
	baseURL string
	headers http.Header
}

// RequestOption configures a single request.
type RequestOption func(*http.Request)

// WithHeader sets a request header.
func WithHeader(key, value string) RequestOption {
	return func(r *http.Request) { r.Header.Set(key, value) }
}

// WithIdempotencyKey marks a request as safe to retry.
func WithIdempotencyKey(key string) RequestOption {
	return WithHeader("Idempotency-Key", key)
}

// NewJSONClient wraps c for requests relative to baseURL.
func NewJSONClient(c *http.Client, baseURL string) *JSONClient {
	return &JSONClient{http: c, baseURL: strings.TrimSuffix(baseURL, "/"), headers: http.Header{}}
}

// SetHeader sets a header sent with every request.
func (c *JSONClient) SetHeader(key, value string) { c.headers.Set(key, value) }

// Get decodes the response of a GET into out.
func (c *JSONClient) Get(ctx context.Context, path string, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodGet, path, nil, out, opts...)
}

// Post sends in and decodes the response into out.
func (c *JSONClient) Post(ctx context.Context, path string, in, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPost, path, in, out, opts...)
}

// Put sends in and decodes the response into out.
func (c *JSONClient) Put(ctx context.Context, path string, in, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPut, path, in, out, opts...)
}

// Delete sends a DELETE.
func (c *JSONClient) Delete(ctx context.Context, path string, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodDelete, path, nil, nil, opts...)
}

// Do sends a request with in encoded as JSON, if not nil, and decodes a 2xx
// response into out, if not nil. Other responses and transport failures are
// returned as *Error.
func (c *JSONClient) Do(ctx context.Context, method, path string, in, out any, opts ...RequestOption) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("client: encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+strings.TrimPrefix(path, "/"), body)
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	for k, v := range c.headers {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return ClassifyError(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return ClassifyError(err)
	}
	if e := ClassifyStatus(resp.StatusCode, data); e != nil {
		return e
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("client: decode response: %w", err)
	}
	return nil
}
