package backend

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

	"github.com/kirillkom/extraction-tracker/internal/infrastructure/resilience"
)

// Client issues control-plane requests against the processing backend.
// Only the abort endpoint lives here; the stream endpoint is owned by the
// SSE event source.
type Client struct {
	endpoints  *Endpoints
	token      string
	httpClient *http.Client
	executor   *resilience.Executor
}

type ClientOptions struct {
	Token      string
	HTTPClient *http.Client
	Executor   *resilience.Executor
}

func NewClient(endpoints *Endpoints, options ClientOptions) *Client {
	httpClient := options.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		endpoints:  endpoints,
		token:      options.Token,
		httpClient: httpClient,
		executor:   options.Executor,
	}
}

// Abort requests server-side cancellation. Callers treat the result as
// advisory; local cancellation state is already applied when this runs.
func (c *Client) Abort(ctx context.Context, ownerID, resourceID string) error {
	call := func(ctx context.Context) error {
		return c.postAbort(ctx, ownerID, resourceID)
	}
	if c.executor != nil {
		return c.executor.Execute(ctx, call)
	}
	return call(ctx)
}

func (c *Client) postAbort(ctx context.Context, ownerID, resourceID string) error {
	body, err := json.Marshal(map[string]string{
		"owner_id":    ownerID,
		"resource_id": resourceID,
	})
	if err != nil {
		return fmt.Errorf("marshal abort request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoints.AbortURL(ownerID, resourceID), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create abort request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend abort request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return formatBackendHTTPError("abort", resp)
	}
	return nil
}

type httpStatusError struct {
	status int
	msg    string
}

func (e *httpStatusError) Error() string {
	if e.msg == "" {
		return fmt.Sprintf("backend status %d", e.status)
	}
	return fmt.Sprintf("backend status %d: %s", e.status, e.msg)
}

func formatBackendHTTPError(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	msg := strings.TrimSpace(string(body))
	return fmt.Errorf("backend %s: %w", operation, &httpStatusError{status: resp.StatusCode, msg: msg})
}

// ClassifyError drives retry/breaker decisions: transport failures and 5xx
// responses are retryable, 4xx responses are not.
func ClassifyError(err error) resilience.ErrorClassification {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return resilience.ErrorClassification{
			Retryable:     statusErr.status >= 500,
			RecordFailure: statusErr.status >= 500,
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	// Unrecognized errors are treated as transport-level.
	return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
}
