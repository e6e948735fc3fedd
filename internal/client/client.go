// Package client talks to a running saiten server over its JSON API.
package client

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

	"github.com/hpungsan/saiten/internal/errors"
	"github.com/hpungsan/saiten/internal/ops"
	"github.com/hpungsan/saiten/internal/review"
)

const (
	defaultTimeout = 60 * time.Second
	maxRetries     = 3
)

// Client is a JSON API client for one server.
type Client struct {
	baseURL string
	http    *http.Client
	backoff func(attempt int) time.Duration
}

// New creates a client for the server at baseURL (e.g. http://127.0.0.1:5000).
// A nil httpClient gets a default with a timeout.
func New(baseURL string, httpClient *http.Client) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid server URL: %q", baseURL))
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL: baseURL,
		http:    httpClient,
		backoff: func(attempt int) time.Duration {
			return time.Duration(1<<uint(attempt)) * 250 * time.Millisecond
		},
	}, nil
}

// Assignments lists the assignments on the server.
func (c *Client) Assignments(ctx context.Context) ([]ops.AssignmentSummary, error) {
	var out []ops.AssignmentSummary
	err := c.do(ctx, http.MethodGet, "/api/assignments", nil, &out)
	return out, err
}

// Students lists the submitted students of an assignment, optionally filtered.
func (c *Client) Students(ctx context.Context, aid, filter string) ([]ops.Student, error) {
	path := assignmentPath(aid) + "/students"
	if filter != "" {
		path += "?filter=" + url.QueryEscape(filter)
	}
	var out []ops.Student
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// Student returns the detail of one student.
func (c *Client) Student(ctx context.Context, aid, sid string) (*ops.DetailOutput, error) {
	var out ops.DetailOutput
	if err := c.do(ctx, http.MethodGet, studentPath(aid, sid), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SaveFeedback commits a comment and marks the student reviewed.
func (c *Client) SaveFeedback(ctx context.Context, aid, sid, text string) error {
	body := map[string]*string{"feedback": &text}
	return c.do(ctx, http.MethodPost, studentPath(aid, sid)+"/feedback", body, nil)
}

// AutoCheck runs the static check for one student.
func (c *Client) AutoCheck(ctx context.Context, aid, sid string) (*ops.AutoCheckOutput, error) {
	var out ops.AutoCheckOutput
	if err := c.do(ctx, http.MethodPost, studentPath(aid, sid)+"/auto-check", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AutoCheckAll runs the batch auto-check on the server.
func (c *Client) AutoCheckAll(ctx context.Context, aid string, force bool) (*review.BatchStats, error) {
	path := assignmentPath(aid) + "/auto-check-all"
	if force {
		path += "?force=true"
	}
	var out review.BatchStats
	if err := c.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AutoCheckStatus reports whether the batch auto-check ran for an assignment.
func (c *Client) AutoCheckStatus(ctx context.Context, aid string) (*ops.AutoCheckStatusOutput, error) {
	var out ops.AutoCheckStatusOutput
	if err := c.do(ctx, http.MethodGet, assignmentPath(aid)+"/auto-check-status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExportCSV streams the feedback CSV of an assignment into w.
func (c *Client) ExportCSV(ctx context.Context, aid string, w io.Writer) error {
	resp, err := c.send(ctx, http.MethodGet, assignmentPath(aid)+"/export/csv", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if _, err := io.Copy(w, resp.Body); err != nil {
		return errors.NewUnavailable(fmt.Errorf("reading export: %w", err))
	}
	return nil
}

// do sends a JSON request and decodes a JSON response into out (if non-nil).
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
	}

	resp, err := c.send(ctx, method, path, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.NewInternal(fmt.Errorf("parsing response: %w", err))
	}
	return nil
}

// send performs the request. GETs are retried with backoff while the server is
// unreachable or answers 503; other methods are sent once. A non-2xx response
// is returned as the server's *errors.Error.
func (c *Client) send(ctx context.Context, method, path string, payload []byte) (*http.Response, error) {
	attempts := 1
	if method == http.MethodGet {
		attempts += maxRetries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, errors.NewCancelled(method + " " + path)
			case <-time.After(c.backoff(attempt - 1)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.NewCancelled(method + " " + path)
			}
			lastErr = errors.NewUnavailable(err)
			continue
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		apiErr := decodeError(resp)
		resp.Body.Close()
		if apiErr.Code != errors.ErrUnavailable {
			return nil, apiErr
		}
		lastErr = apiErr
	}
	return nil, lastErr
}

// decodeError maps the server's {"error":{code,message,status}} envelope back
// to *errors.Error. Bodies that are not an envelope keep the HTTP status.
func decodeError(resp *http.Response) *errors.Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var env struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
			Status  int    `json:"status"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Code != "" {
		status := env.Error.Status
		if status == 0 {
			status = resp.StatusCode
		}
		return &errors.Error{
			Code:    errors.ErrorCode(env.Error.Code),
			Status:  status,
			Message: env.Error.Message,
		}
	}

	code := errors.ErrInternal
	switch {
	case resp.StatusCode == http.StatusNotFound:
		code = errors.ErrNotFound
	case resp.StatusCode == http.StatusServiceUnavailable:
		code = errors.ErrUnavailable
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		code = errors.ErrInvalidRequest
	}
	return &errors.Error{
		Code:    code,
		Status:  resp.StatusCode,
		Message: fmt.Sprintf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
	}
}

func assignmentPath(aid string) string {
	return "/api/assignments/" + url.PathEscape(aid)
}

func studentPath(aid, sid string) string {
	return assignmentPath(aid) + "/students/" + url.PathEscape(sid)
}
