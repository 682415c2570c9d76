package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"media-worker/internal/artifacts"
	"media-worker/internal/handlers"
	"media-worker/internal/jobs"
)

// apiClient talks to a running daemon's /api routes.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string) *apiClient {
	return &apiClient{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// apiError is a non-2xx response from the daemon.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Submit queues one job.
func (c *apiClient) Submit(ctx context.Context, kind, target string, p artifacts.Params) (handlers.SubmitResponse, error) {
	var out handlers.SubmitResponse
	body, err := json.Marshal(handlers.SubmitRequest{Kind: kind, Target: target, Params: p})
	if err != nil {
		return out, err
	}
	err = c.do(ctx, http.MethodPost, "/api/jobs", bytes.NewReader(body), &out)
	return out, err
}

// Jobs lists jobs matching filter.
func (c *apiClient) Jobs(ctx context.Context, filter jobs.Filter) ([]handlers.JobResponse, error) {
	var out []handlers.JobResponse
	path := "/api/jobs?filter=" + url.QueryEscape(string(filter))
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// Cancel requests cancellation of one job.
func (c *apiClient) Cancel(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/jobs/"+url.PathEscape(id), nil, nil)
}

func (c *apiClient) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &apiError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}
