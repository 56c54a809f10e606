package turn

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusqa/campusqa/internal/clova"
	"github.com/campusqa/campusqa/internal/conversation"
	"github.com/campusqa/campusqa/internal/intent"
	"github.com/campusqa/campusqa/internal/log"
	"github.com/campusqa/campusqa/internal/syllabus"
)

// memStore is an in-memory Store implementation for orchestrator tests.
type memStore struct {
	mu            sync.Mutex
	conversations map[uuid.UUID]*conversation.Conversation
	messages      map[uuid.UUID][]*conversation.Message
	titleSet      chan string

	appendErr error
}

func newMemStore() *memStore {
	return &memStore{
		conversations: make(map[uuid.UUID]*conversation.Conversation),
		messages:      make(map[uuid.UUID][]*conversation.Message),
		titleSet:      make(chan string, 4),
	}
}

func (m *memStore) Create(_ context.Context, ownerID string) (*conversation.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv := &conversation.Conversation{
		ID:      uuid.New(),
		OwnerID: ownerID,
		Title:   conversation.DefaultTitle,
	}
	m.conversations[conv.ID] = conv
	return conv, nil
}

func (m *memStore) Get(_ context.Context, ownerID string, id uuid.UUID) (*conversation.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.conversations[id]
	if !ok || conv.OwnerID != ownerID {
		return nil, conversation.ErrNotFound
	}
	return conv, nil
}

func (m *memStore) RecentMessages(ctx context.Context, ownerID string, id uuid.UUID, n int32) ([]*conversation.Message, error) {
	if _, err := m.Get(ctx, ownerID, id); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.messages[id]
	if int(n) < len(msgs) {
		msgs = msgs[len(msgs)-int(n):]
	}
	return msgs, nil
}

func (m *memStore) Messages(ctx context.Context, ownerID string, id uuid.UUID, limit, offset int32) ([]*conversation.Message, error) {
	if _, err := m.Get(ctx, ownerID, id); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.messages[id]
	if int(limit) < len(msgs) {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

func (m *memStore) Append(ctx context.Context, ownerID string, id uuid.UUID, role, content string, sources []conversation.Source) (*conversation.Message, error) {
	if m.appendErr != nil && role == conversation.RoleAssistant {
		return nil, m.appendErr
	}
	if _, err := m.Get(ctx, ownerID, id); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if sources == nil {
		sources = []conversation.Source{}
	}
	msg := &conversation.Message{
		ID:             uuid.New(),
		ConversationID: id,
		Role:           role,
		Content:        content,
		Sources:        sources,
		Seq:            int32(len(m.messages[id])),
	}
	m.messages[id] = append(m.messages[id], msg)
	return msg, nil
}

func (m *memStore) Count(ctx context.Context, ownerID string, id uuid.UUID) (int64, error) {
	if _, err := m.Get(ctx, ownerID, id); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.messages[id])), nil
}

func (m *memStore) SetTitle(ctx context.Context, ownerID string, id uuid.UUID, title string) error {
	if _, err := m.Get(ctx, ownerID, id); err != nil {
		return err
	}
	m.mu.Lock()
	m.conversations[id].Title = title
	m.mu.Unlock()
	m.titleSet <- title
	return nil
}

type fakeCompleter struct {
	mu      sync.Mutex
	content string
	err     error
	reqs    []clova.Request
}

func (f *fakeCompleter) Complete(_ context.Context, req clova.Request) (*clova.Completion, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &clova.Completion{Content: f.content}, nil
}

func (f *fakeCompleter) requests() []clova.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]clova.Request(nil), f.reqs...)
}

type fakeSearcher struct {
	results []syllabus.Result
	err     error
	called  bool
	gotK    int
}

func (f *fakeSearcher) Search(_ context.Context, query string, k int) ([]syllabus.Result, error) {
	f.called = true
	f.gotK = k
	return f.results, f.err
}

type fakeRouter struct{ label intent.Label }

func (f *fakeRouter) Classify(_ context.Context, _ string) intent.Label { return f.label }

type fixture struct {
	orch      *Orchestrator
	store     *memStore
	completer *fakeCompleter
	searcher  *fakeSearcher
	router    *fakeRouter
}

func newFixture(label intent.Label) *fixture {
	f := &fixture{
		store:     newMemStore(),
		completer: &fakeCompleter{content: "생성된 답변"},
		searcher:  &fakeSearcher{},
		router:    &fakeRouter{label: label},
	}
	f.orch = New(f.store, f.completer, f.searcher, f.router, log.NewNop())
	return f
}

func waitTitle(t *testing.T, store *memStore) string {
	t.Helper()
	select {
	case title := <-store.titleSet:
		return title
	case <-time.After(2 * time.Second):
		t.Fatal("title was not set")
		return ""
	}
}

func TestProcess_CasualChatSkipsRetrieval(t *testing.T) {
	f := newFixture(intent.CasualChat)

	res, err := f.orch.Process(context.Background(), Request{
		OwnerID: "user-1",
		Query:   "안녕!",
	})
	require.NoError(t, err)

	assert.False(t, f.searcher.called, "casual chat must not hit retrieval")
	assert.Equal(t, "생성된 답변", res.Answer)
	assert.Empty(t, res.Sources)
	assert.Equal(t, intent.CasualChat, res.Intent)
}

func TestProcess_DomainQueryWithResults(t *testing.T) {
	f := newFixture(intent.DomainQuery)
	f.searcher.results = []syllabus.Result{{
		Chunk: syllabus.Chunk{
			Content:    "자료구조 수업은 월수 10시입니다.",
			CourseName: "자료구조",
			Professor:  "김교수",
			Section:    "01",
		},
		Score: 0.92,
	}}

	res, err := f.orch.Process(context.Background(), Request{
		OwnerID: "user-1",
		Query:   "자료구조 수업 언제야?",
	})
	require.NoError(t, err)

	assert.True(t, f.searcher.called)
	assert.Equal(t, "생성된 답변", res.Answer)
	require.Len(t, res.Sources, 1)
	assert.Equal(t, "자료구조", res.Sources[0].CourseName)

	// Assistant message persisted with the sources.
	assert.Equal(t, res.Sources, res.AssistantMessage.Sources)

	// Generation prompt carried the retrieved block.
	reqs := f.completer.requests()
	require.Len(t, reqs, 1)
	last := reqs[0].Messages[len(reqs[0].Messages)-1]
	assert.Contains(t, last.Content, "[관련 정보 1]")
}

func TestProcess_EmptyRetrievalSkipsGeneration(t *testing.T) {
	f := newFixture(intent.DomainQuery)
	f.searcher.results = nil

	res, err := f.orch.Process(context.Background(), Request{
		OwnerID: "user-1",
		Query:   "없는 수업 알려줘",
	})
	require.NoError(t, err)

	assert.Contains(t, res.Answer, "죄송합니다. 관련 수업 정보를 찾을 수 없습니다")
	assert.Empty(t, res.Sources)
	assert.Empty(t, f.completer.requests(), "no generation call on empty retrieval")

	// The canned answer is still persisted as the assistant message.
	assert.Equal(t, conversation.RoleAssistant, res.AssistantMessage.Role)
	assert.Equal(t, res.Answer, res.AssistantMessage.Content)
}

func TestProcess_GenerationFailureLeavesUserMessage(t *testing.T) {
	f := newFixture(intent.CasualChat)
	f.completer.err = errors.New("upstream exhausted")

	conv, err := f.store.Create(context.Background(), "user-1")
	require.NoError(t, err)

	_, err = f.orch.Process(context.Background(), Request{
		OwnerID:        "user-1",
		ConversationID: conv.ID,
		Query:          "안녕",
	})
	require.ErrorIs(t, err, ErrProviderUnavailable)

	// The user message survived the failed generation.
	msgs, err := f.store.Messages(context.Background(), "user-1", conv.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, conversation.RoleUser, msgs[0].Role)
	assert.Equal(t, "안녕", msgs[0].Content)
}

func TestProcess_RetrievalFailureIsProviderUnavailable(t *testing.T) {
	f := newFixture(intent.DomainQuery)
	f.searcher.err = errors.New("vector store down")

	conv, err := f.store.Create(context.Background(), "user-1")
	require.NoError(t, err)

	_, err = f.orch.Process(context.Background(), Request{
		OwnerID:        "user-1",
		ConversationID: conv.ID,
		Query:          "질문",
	})
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestProcess_AutoCreatesConversation(t *testing.T) {
	f := newFixture(intent.CasualChat)

	res, err := f.orch.Process(context.Background(), Request{
		OwnerID: "user-1",
		Query:   "안녕",
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, res.ConversationID)

	conv, err := f.store.Get(context.Background(), "user-1", res.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", conv.OwnerID)
}

func TestProcess_UnownedConversationRejectedBeforePersisting(t *testing.T) {
	f := newFixture(intent.CasualChat)

	conv, err := f.store.Create(context.Background(), "user-1")
	require.NoError(t, err)

	_, err = f.orch.Process(context.Background(), Request{
		OwnerID:        "user-2",
		ConversationID: conv.ID,
		Query:          "훔쳐보기",
	})
	require.ErrorIs(t, err, conversation.ErrNotFound)

	msgs, err := f.store.Messages(context.Background(), "user-1", conv.ID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs, "no message may be persisted for a rejected turn")
}

func TestProcess_EmptyQueryRejected(t *testing.T) {
	f := newFixture(intent.CasualChat)

	_, err := f.orch.Process(context.Background(), Request{OwnerID: "user-1"})
	assert.Error(t, err)
}

func TestProcess_HistoryExcludesCurrentUtterance(t *testing.T) {
	f := newFixture(intent.CasualChat)
	ctx := context.Background()

	conv, err := f.store.Create(ctx, "user-1")
	require.NoError(t, err)
	_, err = f.store.Append(ctx, "user-1", conv.ID, conversation.RoleUser, "이전 질문", nil)
	require.NoError(t, err)
	_, err = f.store.Append(ctx, "user-1", conv.ID, conversation.RoleAssistant, "이전 답변", nil)
	require.NoError(t, err)

	_, err = f.orch.Process(ctx, Request{
		OwnerID:        "user-1",
		ConversationID: conv.ID,
		Query:          "새 질문",
	})
	require.NoError(t, err)

	reqs := f.completer.requests()
	require.Len(t, reqs, 1)
	var newQuestionCount int
	for _, msg := range reqs[0].Messages {
		if strings.Contains(msg.Content, "새 질문") {
			newQuestionCount++
		}
	}
	assert.Equal(t, 1, newQuestionCount, "current utterance must appear exactly once")
	assert.Equal(t, "이전 질문", reqs[0].Messages[1].Content)
	assert.Equal(t, "이전 답변", reqs[0].Messages[2].Content)
}

func TestProcess_PassesKToSearch(t *testing.T) {
	f := newFixture(intent.DomainQuery)

	_, err := f.orch.Process(context.Background(), Request{
		OwnerID: "user-1",
		Query:   "질문",
		K:       7,
	})
	require.NoError(t, err)
	assert.Equal(t, 7, f.searcher.gotK)
}
