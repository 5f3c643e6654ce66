package telemetry

import (
	"io"
	"net/http"
	"strings"
	"sync"
)

// Sender abstracts the HTTP round trip so events can be captured in tests.
type Sender interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPSender wraps http.Client for production use.
type HTTPSender struct {
	client *http.Client
}

// NewHTTPSender creates a production sender.
func NewHTTPSender(client *http.Client) *HTTPSender {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSender{client: client}
}

func (s *HTTPSender) Do(req *http.Request) (*http.Response, error) {
	return s.client.Do(req)
}

// MockSender records requests and replies with a canned status or error.
type MockSender struct {
	StatusCode int
	Err        error

	mu       sync.Mutex
	requests []RecordedRequest
}

// RecordedRequest is a captured outgoing request.
type RecordedRequest struct {
	Method      string
	URL         string
	ContentType string
	Body        []byte
}

func (m *MockSender) Do(req *http.Request) (*http.Response, error) {
	rec := RecordedRequest{
		Method:      req.Method,
		URL:         req.URL.String(),
		ContentType: req.Header.Get("Content-Type"),
	}
	if req.Body != nil {
		rec.Body, _ = io.ReadAll(req.Body)
		_ = req.Body.Close()
	}
	m.mu.Lock()
	m.requests = append(m.requests, rec)
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	status := m.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader("")),
		Header:     make(http.Header),
		Request:    req,
	}, nil
}

// Requests returns the captured requests.
func (m *MockSender) Requests() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RecordedRequest, len(m.requests))
	copy(out, m.requests)
	return out
}
