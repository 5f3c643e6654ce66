// Package telemetry submits opt-out usage events for CLI invocations.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fulmenhq/contentaudit/pkg/logger"
)

// AuditInvokeEvent is recorded once per audit run.
const AuditInvokeEvent = "contentaudit:cli:audit:invoke"

// DefaultTimeout bounds a single submission.
const DefaultTimeout = 3 * time.Second

// Event is the JSON payload posted to the collector.
type Event struct {
	Name        string `json:"name"`
	Clean       bool   `json:"clean"`
	UseDefaults bool   `json:"useDefaults"`
	RunID       string `json:"runId"`
	Version     string `json:"version"`
}

// Client posts events to a collector endpoint.
type Client struct {
	Disabled bool
	Endpoint string
	Timeout  time.Duration
	Sender   Sender
}

// NewClient builds a client; an empty endpoint disables submission.
func NewClient(endpoint string, disabled bool, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		Disabled: disabled || endpoint == "",
		Endpoint: endpoint,
		Timeout:  timeout,
		Sender:   NewHTTPSender(&http.Client{Timeout: timeout}),
	}
}

// Enabled reports whether SubmitRecord will attempt a request.
func (c *Client) Enabled() bool {
	return c != nil && !c.Disabled && c.Endpoint != "" && c.Sender != nil
}

// SubmitRecord posts event. A disabled client is a no-op.
func (c *Client) SubmitRecord(ctx context.Context, event Event) error {
	if !c.Enabled() {
		logger.Trace("Telemetry disabled; event not sent", logger.String("event", event.Name))
		return nil
	}
	body, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "encode telemetry event")
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.Wrapf(err, "build telemetry request for %s", c.Endpoint)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Sender.Do(req)
	if err != nil {
		return errors.Wrap(err, "send telemetry event")
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return errors.Newf("telemetry collector returned HTTP %d", resp.StatusCode)
	}
	logger.Debug("Telemetry event sent", logger.String("event", event.Name), logger.String("run_id", event.RunID))
	return nil
}
