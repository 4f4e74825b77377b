// Package client is a typed HTTP client for the node API.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"aidledger/api/server"
	"aidledger/core"
	"aidledger/core/notify"
	"aidledger/core/program"
	"aidledger/core/state"
	"aidledger/types/ids"
)

const DefaultBaseURL = "http://localhost:8080"

// APIError is a non-2xx response from the node.
type APIError struct {
	Status  int
	Name    string
	Message string
	Code    *uint32
}

func (e *APIError) Error() string {
	if e.Code != nil {
		return fmt.Sprintf("%s (%d): %s", e.Name, *e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (HTTP %d)", e.Name, e.Message, e.Status)
}

type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rdr)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Name: http.StatusText(resp.StatusCode), Message: strings.TrimSpace(string(data))}
		var er server.ErrorResponse
		if json.Unmarshal(data, &er) == nil && er.Error != "" {
			apiErr.Name, apiErr.Message, apiErr.Code = er.Error, er.Message, er.Code
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Submit posts a signed transaction for execution.
func (c *Client) Submit(ctx context.Context, tx *core.Transaction) (*program.Receipt, error) {
	var r program.Receipt
	if err := c.do(ctx, http.MethodPost, "/api/v1/tx", tx, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Inspect decodes a transaction on the node without executing it.
func (c *Client) Inspect(ctx context.Context, tx *core.Transaction) (map[string]any, error) {
	var out map[string]any
	if err := c.do(ctx, http.MethodPost, "/api/v1/tx/inspect", tx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetNgo(ctx context.Context, addr ids.Pubkey) (*server.NgoResponse, error) {
	var out server.NgoResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/ngo/"+addr.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetNgoByAdmin(ctx context.Context, admin ids.Pubkey) (*server.NgoResponse, error) {
	var out server.NgoResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/ngo/admin/"+admin.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetBatch(ctx context.Context, addr ids.Pubkey) (*server.BatchResponse, error) {
	var out server.BatchResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/batch/"+addr.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetBatchByIndex(ctx context.Context, ngo ids.Pubkey, index uint64) (*server.BatchResponse, error) {
	var out server.BatchResponse
	path := fmt.Sprintf("/api/v1/ngo/%s/batch/%d", ngo, index)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListAccounts lists stored records; an empty kind lists all of them.
func (c *Client) ListAccounts(ctx context.Context, kind state.Kind) ([]program.AccountInfo, error) {
	path := "/api/v1/accounts"
	if kind != "" {
		path += "?kind=" + url.QueryEscape(string(kind))
	}
	var out []program.AccountInfo
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Events(ctx context.Context, from uint64, limit int) ([]program.EventInfo, error) {
	q := url.Values{}
	q.Set("from", strconv.FormatUint(from, 10))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out []program.EventInfo
	if err := c.do(ctx, http.MethodGet, "/api/v1/events?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Stream follows the node's event stream, replaying from seq `from` when
// replay is set, and calls fn for each event until ctx ends or fn errors.
func (c *Client) Stream(ctx context.Context, from uint64, replay bool, fn func(notify.Notification) error) error {
	path := "/api/v1/events/stream"
	if replay {
		path += "?from=" + strconv.FormatUint(from, 10)
	}
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	// The stream outlives any client timeout.
	httpClient := *c.HTTP
	httpClient.Timeout = 0
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeResponse(resp, nil)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var n notify.Notification
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &n); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		if err := fn(n); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return ctx.Err()
}

func (c *Client) Status(ctx context.Context) (*server.StatusResponse, error) {
	var out server.StatusResponse
	if err := c.do(ctx, http.MethodGet, "/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) NodeHealth(ctx context.Context) (*server.NodeHealthResponse, error) {
	var out server.NodeHealthResponse
	if err := c.do(ctx, http.MethodGet, "/nodehealth", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Liveness(ctx context.Context) (bool, error) {
	var out server.LivenessResponse
	err := c.do(ctx, http.MethodGet, "/health/liveness", nil, &out)
	return out.Alive, err
}

// Readiness reports false without error when the node answers 503.
func (c *Client) Readiness(ctx context.Context) (bool, error) {
	var out server.ReadinessResponse
	err := c.do(ctx, http.MethodGet, "/health/readiness", nil, &out)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusServiceUnavailable {
		return false, nil
	}
	return out.Ready, err
}
