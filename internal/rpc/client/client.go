// Package client implements the coordinator side of the worker RPC contract
// over JSON/HTTP. Transport-level faults are classified into the typed errors
// of the rpc package so the dispatcher can tell retryable failures apart from
// terminal ones.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aliskhannn/image-platform/internal/rpc"
)

// Client calls a single worker endpoint. Each call opens a fresh connection
// and closes it afterwards, so a retry after a connection-level failure never
// reuses a broken channel.
type Client struct {
	endpoint string
	timeout  time.Duration
}

// New creates a client for the given worker base URL (e.g.
// "http://worker:8090"). timeout bounds every call end to end.
func New(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		timeout:  timeout,
	}
}

// Process submits a job to the worker and waits for its result. Idempotency
// is not guaranteed: submitting the same job id twice may re-run processing.
func (c *Client) Process(ctx context.Context, req rpc.ProcessRequest) (rpc.ProcessResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return rpc.ProcessResponse{}, fmt.Errorf("failed to marshal process request: %w", err)
	}

	return c.call(ctx, http.MethodPost, c.endpoint+"/rpc/process", body)
}

// GetStatus asks the worker for its last known result for a job id.
func (c *Client) GetStatus(ctx context.Context, id uuid.UUID) (rpc.ProcessResponse, error) {
	return c.call(ctx, http.MethodGet, c.endpoint+"/rpc/status/"+id.String(), nil)
}

func (c *Client) call(ctx context.Context, method, url string, body []byte) (rpc.ProcessResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return rpc.ProcessResponse{}, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	// One transport per call: no connection reuse across retries.
	httpClient := &http.Client{
		Timeout:   c.timeout,
		Transport: &http.Transport{DisableKeepAlives: true},
	}

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return rpc.ProcessResponse{}, classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return rpc.ProcessResponse{}, fmt.Errorf("%w: %s returned %s", rpc.ErrEndpointUnreachable, url, resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		return rpc.ProcessResponse{}, fmt.Errorf("%w: unexpected status %s", rpc.ErrCommunication, resp.Status)
	}

	var out rpc.ProcessResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return rpc.ProcessResponse{}, fmt.Errorf("%w: failed to decode response: %v", rpc.ErrCommunication, err)
	}

	return out, nil
}

// classify maps an HTTP client error onto the rpc transport error taxonomy.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", rpc.ErrCallTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", rpc.ErrCallTimeout, err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return fmt.Errorf("%w: %v", rpc.ErrEndpointUnreachable, err)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return fmt.Errorf("%w: %v", rpc.ErrEndpointUnreachable, err)
	}

	return fmt.Errorf("%w: %v", rpc.ErrCommunication, err)
}
