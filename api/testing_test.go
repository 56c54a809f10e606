package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/campusqa/campusqa/internal/auth"
	"github.com/campusqa/campusqa/internal/conversation"
	"github.com/campusqa/campusqa/internal/log"
	"github.com/campusqa/campusqa/internal/turn"
)

const testSecret = "test-secret-test-secret-test-sec"

// fakeStore is an in-memory ConversationStore for handler tests.
type fakeStore struct {
	conversations map[uuid.UUID]*conversation.Conversation
	messages      map[uuid.UUID][]*conversation.Message

	createErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		conversations: make(map[uuid.UUID]*conversation.Conversation),
		messages:      make(map[uuid.UUID][]*conversation.Message),
	}
}

func (f *fakeStore) Create(_ context.Context, ownerID string) (*conversation.Conversation, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	conv := &conversation.Conversation{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Title:     conversation.DefaultTitle,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	f.conversations[conv.ID] = conv
	return conv, nil
}

func (f *fakeStore) Get(_ context.Context, ownerID string, id uuid.UUID) (*conversation.Conversation, error) {
	conv, ok := f.conversations[id]
	if !ok || conv.OwnerID != ownerID {
		return nil, conversation.ErrNotFound
	}
	return conv, nil
}

func (f *fakeStore) List(_ context.Context, ownerID string, limit, offset int32) ([]*conversation.Conversation, error) {
	var out []*conversation.Conversation
	for _, conv := range f.conversations {
		if conv.OwnerID == ownerID {
			out = append(out, conv)
		}
	}
	return out, nil
}

func (f *fakeStore) Delete(ctx context.Context, ownerID string, id uuid.UUID) error {
	if _, err := f.Get(ctx, ownerID, id); err != nil {
		return err
	}
	delete(f.conversations, id)
	delete(f.messages, id)
	return nil
}

func (f *fakeStore) Messages(ctx context.Context, ownerID string, id uuid.UUID, limit, offset int32) ([]*conversation.Message, error) {
	if _, err := f.Get(ctx, ownerID, id); err != nil {
		return nil, err
	}
	return f.messages[id], nil
}

// fakeRunner is a canned TurnRunner.
type fakeRunner struct {
	result *turn.Result
	err    error
	gotReq turn.Request
}

func (f *fakeRunner) Process(_ context.Context, req turn.Request) (*turn.Result, error) {
	f.gotReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

// newTestServer wires a Server with fakes and returns an httptest server
// plus a valid bearer token for ownerID.
func newTestServer(t *testing.T, store *fakeStore, runner *fakeRunner, ownerID string) (*httptest.Server, string) {
	t.Helper()

	authenticator := auth.NewHMAC(testSecret)
	srv := NewServer(nil, store, runner, authenticator, log.NewNop())

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	token, err := authenticator.Issue(ownerID, time.Hour)
	if err != nil {
		t.Fatalf("issuing token: %v", err)
	}
	return ts, token
}

// authTokenFor mints a token for a different owner than the server default.
func authTokenFor(t *testing.T, ownerID string) (string, error) {
	t.Helper()
	return auth.NewHMAC(testSecret).Issue(ownerID, time.Hour)
}

func authedRequest(t *testing.T, method, url, token, body string) *http.Request {
	t.Helper()

	var req *http.Request
	var err error
	if body == "" {
		req, err = http.NewRequest(method, url, http.NoBody)
	} else {
		req, err = http.NewRequest(method, url, strings.NewReader(body))
	}
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	return req
}
