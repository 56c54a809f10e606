//go:build integration
// +build integration

package conversation

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusqa/campusqa/internal/log"
	"github.com/campusqa/campusqa/internal/testutil"
)

func setupIntegrationStore(t *testing.T) (*Store, func()) {
	t.Helper()

	tdb, cleanup := testutil.SetupTestDB(t)
	store := NewStore(NewQueries(tdb.Pool), tdb.Pool, log.NewNop())
	return store, cleanup
}

func TestStore_CreateAndGet_Integration(t *testing.T) {
	store, cleanup := setupIntegrationStore(t)
	defer cleanup()
	ctx := context.Background()

	conv, err := store.Create(ctx, "owner-1")
	require.NoError(t, err)
	require.NotNil(t, conv)
	assert.NotEqual(t, uuid.Nil, conv.ID)
	assert.Equal(t, DefaultTitle, conv.Title)
	assert.NotZero(t, conv.CreatedAt)

	got, err := store.Get(ctx, "owner-1", conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)

	_, err = store.Get(ctx, "owner-2", conv.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_AppendSeq_Integration(t *testing.T) {
	store, cleanup := setupIntegrationStore(t)
	defer cleanup()
	ctx := context.Background()

	conv, err := store.Create(ctx, "owner-1")
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		msg, err := store.Append(ctx, "owner-1", conv.ID, role, fmt.Sprintf("message %d", i), nil)
		require.NoError(t, err)
		assert.Equal(t, int32(i), msg.Seq)
	}

	msgs, err := store.Messages(ctx, "owner-1", conv.ID, 100, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	for i, msg := range msgs {
		assert.Equal(t, int32(i), msg.Seq)
	}
}

// TestStore_ConcurrentAppend_Integration verifies that the row lock
// serializes sequence allocation: concurrent appends to one conversation
// must produce dense, unique seq values with no constraint violations.
func TestStore_ConcurrentAppend_Integration(t *testing.T) {
	store, cleanup := setupIntegrationStore(t)
	defer cleanup()
	ctx := context.Background()

	conv, err := store.Create(ctx, "owner-1")
	require.NoError(t, err)

	const workers = 10
	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := store.Append(ctx, "owner-1", conv.ID, RoleUser, fmt.Sprintf("concurrent %d", n), nil)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	msgs, err := store.Messages(ctx, "owner-1", conv.ID, 100, 0)
	require.NoError(t, err)
	require.Len(t, msgs, workers)

	seen := make(map[int32]bool)
	for i, msg := range msgs {
		assert.Equal(t, int32(i), msg.Seq, "seq values must be dense")
		assert.False(t, seen[msg.Seq], "seq values must be unique")
		seen[msg.Seq] = true
	}
}

func TestStore_DeleteCascades_Integration(t *testing.T) {
	store, cleanup := setupIntegrationStore(t)
	defer cleanup()
	ctx := context.Background()

	conv, err := store.Create(ctx, "owner-1")
	require.NoError(t, err)

	_, err = store.Append(ctx, "owner-1", conv.ID, RoleUser, "hello", nil)
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "owner-1", conv.ID))

	_, err = store.Get(ctx, "owner-1", conv.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// Messages must be gone with the conversation.
	count, err := store.querier.CountMessages(ctx, uuidToPgUUID(conv.ID))
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestStore_UpdatedAtBumpsOnAppend_Integration(t *testing.T) {
	store, cleanup := setupIntegrationStore(t)
	defer cleanup()
	ctx := context.Background()

	first, err := store.Create(ctx, "owner-1")
	require.NoError(t, err)
	second, err := store.Create(ctx, "owner-1")
	require.NoError(t, err)

	// Appending to the older conversation moves it to the front of the list.
	_, err = store.Append(ctx, "owner-1", first.ID, RoleUser, "bump", nil)
	require.NoError(t, err)

	convs, err := store.List(ctx, "owner-1", 10, 0)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, first.ID, convs[0].ID)
	assert.Equal(t, second.ID, convs[1].ID)
}

func TestStore_Sources_RoundTrip_Integration(t *testing.T) {
	store, cleanup := setupIntegrationStore(t)
	defer cleanup()
	ctx := context.Background()

	conv, err := store.Create(ctx, "owner-1")
	require.NoError(t, err)

	sources := []Source{
		{CourseName: "운영체제", Professor: "이교수", Section: "02", ContentPreview: "프로세스와 스레드..."},
		{CourseName: "운영체제", Professor: "이교수", Section: "02", ContentPreview: "스케줄링 정책..."},
	}
	_, err = store.Append(ctx, "owner-1", conv.ID, RoleAssistant, "답변입니다", sources)
	require.NoError(t, err)

	msgs, err := store.Messages(ctx, "owner-1", conv.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, sources, msgs[0].Sources)
}
