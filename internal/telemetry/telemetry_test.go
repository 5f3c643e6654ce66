package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEvent() Event {
	return Event{Name: AuditInvokeEvent, Clean: true, UseDefaults: false, RunID: "run-1", Version: "dev"}
}

func TestSubmitRecordPostsJSON(t *testing.T) {
	mock := &MockSender{}
	c := &Client{Endpoint: "https://telemetry.example.com/events", Sender: mock}

	require.NoError(t, c.SubmitRecord(context.Background(), testEvent()))

	reqs := mock.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].Method)
	assert.Equal(t, "https://telemetry.example.com/events", reqs[0].URL)
	assert.Equal(t, "application/json", reqs[0].ContentType)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(reqs[0].Body, &got))
	assert.Equal(t, map[string]interface{}{
		"name":        AuditInvokeEvent,
		"clean":       true,
		"useDefaults": false,
		"runId":       "run-1",
		"version":     "dev",
	}, got)
}

func TestSubmitRecordDisabled(t *testing.T) {
	tests := []struct {
		name   string
		client *Client
	}{
		{"nil client", nil},
		{"disabled flag", &Client{Disabled: true, Endpoint: "https://x", Sender: &MockSender{}}},
		{"no endpoint", &Client{Sender: &MockSender{}}},
		{"constructor with empty endpoint", NewClient("", false, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, tt.client.Enabled())
			assert.NoError(t, tt.client.SubmitRecord(context.Background(), testEvent()))
			if tt.client != nil {
				if m, ok := tt.client.Sender.(*MockSender); ok {
					assert.Empty(t, m.Requests())
				}
			}
		})
	}
}

func TestSubmitRecordFailures(t *testing.T) {
	c := &Client{Endpoint: "https://x", Sender: &MockSender{Err: errors.New("connection refused")}}
	err := c.SubmitRecord(context.Background(), testEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")

	c = &Client{Endpoint: "https://x", Sender: &MockSender{StatusCode: http.StatusServiceUnavailable}}
	err = c.SubmitRecord(context.Background(), testEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestSubmitRecordOverHTTP(t *testing.T) {
	var received Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, false, time.Second)
	require.True(t, c.Enabled())
	require.NoError(t, c.SubmitRecord(context.Background(), testEvent()))
	assert.Equal(t, testEvent(), received)
}
