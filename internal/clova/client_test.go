package clova

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusqa/campusqa/internal/log"
)

// testRetryConfig keeps backoff delays negligible in tests.
func testRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewClient(Config{
		Host:        srv.URL,
		APIKey:      "test-key",
		Model:       "HCX-005",
		MaxTokens:   500,
		Temperature: 0.5,
		Retry:       testRetryConfig(),
		HTTPClient:  srv.Client(),
	}, log.NewNop())
	return client, srv
}

func arrayContentResponse(text string) string {
	return `{
		"status": {"code": "20000", "message": "OK"},
		"result": {"message": {"role": "assistant", "content": [{"type": "text", "text": "` + text + `"}]}}
	}`
}

func TestClient_Complete_Success(t *testing.T) {
	var gotPath, gotAuth string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(arrayContentResponse("안녕하세요!")))
	})

	completion, err := client.Complete(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "안녕"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "안녕하세요!", completion.Content)
	assert.Equal(t, "/v3/chat-completions/HCX-005", gotPath)
	assert.Equal(t, "Bearer test-key", gotAuth)
}

func TestClient_Complete_StringContent(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"status": {"code": "20000", "message": "OK"},
			"result": {"message": {"role": "assistant", "content": "plain string reply"}}
		}`))
	})

	completion, err := client.Complete(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "plain string reply", completion.Content)
}

func TestClient_Complete_RetriesTransientThenSucceeds(t *testing.T) {
	var attempts atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(arrayContentResponse("done")))
	})

	completion, err := client.Complete(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "q"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "done", completion.Content)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestClient_Complete_RetryCeiling(t *testing.T) {
	var attempts atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.Complete(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "q"}},
	})
	require.Error(t, err)
	// MaxRetries=3 means 1 initial attempt + 3 retries.
	assert.Equal(t, int32(4), attempts.Load())
}

func TestClient_Complete_NoRetryOnClientError(t *testing.T) {
	var attempts atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.Complete(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "q"}},
	})
	require.Error(t, err)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestClient_Complete_ContractViolationNotRetried(t *testing.T) {
	var attempts atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		_, _ = w.Write([]byte(`{"status": {"code": "20000"}, "result": {}}`))
	})

	_, err := client.Complete(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "q"}},
	})
	require.ErrorIs(t, err, ErrContractViolation)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestClient_Complete_EmptyContentIsContractViolation(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(arrayContentResponse("   ")))
	})

	_, err := client.Complete(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "q"}},
	})
	assert.ErrorIs(t, err, ErrContractViolation)
}

func TestClient_Complete_MalformedJSONIsContractViolation(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	})

	_, err := client.Complete(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "q"}},
	})
	assert.ErrorIs(t, err, ErrContractViolation)
}

func TestClient_Complete_EmptyMessages(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request should be sent")
	})

	_, err := client.Complete(context.Background(), Request{})
	assert.Error(t, err)
}

func TestClient_Complete_ContextCancellationStopsRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		cancel()
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.Complete(ctx, Request{
		Messages: []Message{{Role: RoleUser, Content: "q"}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
