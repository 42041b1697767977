package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/todobridge/internal/record"
)

func ptr[T any](v T) *T { return &v }

func TestCreateGetListDelete(t *testing.T) {
	ctx := context.Background()
	s := New()

	a, err := s.Create(ctx, record.Draft{Title: "A"})
	require.NoError(t, err)
	b, err := s.Create(ctx, record.Draft{Title: "B", IsCompleted: true})
	require.NoError(t, err)
	assert.Equal(t, int64(1), a.ID)
	assert.Equal(t, int64(2), b.ID)
	assert.NotNil(t, b.CompletedAt)

	got, err := s.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "A", got.Title)

	items, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, a.ID, items[0].ID)

	deleted, err := s.Delete(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, deleted.ID)

	_, err = s.Get(ctx, a.ID)
	assert.ErrorIs(t, err, record.ErrNotFound)
	_, err = s.Delete(ctx, a.ID)
	assert.ErrorIs(t, err, record.ErrNotFound)
}

func TestListOnEmptyStoreIsNonNil(t *testing.T) {
	items, err := New().List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestCreateRejectsInvalidDraft(t *testing.T) {
	_, err := New().Create(context.Background(), record.Draft{Title: "  "})
	var verr *record.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "title", verr.Field)
}

func TestUpdateCompletionTimestamps(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := New(WithClock(func() time.Time { return clock }))

	r, err := s.Create(ctx, record.Draft{Title: "A"})
	require.NoError(t, err)

	clock = clock.Add(time.Minute)
	r, err = s.Update(ctx, r.ID, record.Changes{IsCompleted: ptr(true)})
	require.NoError(t, err)
	require.NotNil(t, r.CompletedAt)
	firstStamp := *r.CompletedAt

	clock = clock.Add(time.Minute)
	r, err = s.Update(ctx, r.ID, record.Changes{IsCompleted: ptr(true)})
	require.NoError(t, err)
	assert.Equal(t, firstStamp, *r.CompletedAt)

	r, err = s.Update(ctx, r.ID, record.Changes{IsCompleted: ptr(false)})
	require.NoError(t, err)
	assert.Nil(t, r.CompletedAt)
}

func TestUpdateMissingAndInvalid(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.Update(ctx, 999999, record.Changes{Title: ptr("x")})
	assert.ErrorIs(t, err, record.ErrNotFound)

	r, err := s.Create(ctx, record.Draft{Title: "A"})
	require.NoError(t, err)
	_, err = s.Update(ctx, r.ID, record.Changes{Title: ptr("")})
	assert.Error(t, err)

	unchanged, err := s.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "A", unchanged.Title, "rejected update must not be persisted")
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	r, err := s.Create(ctx, record.Draft{Title: "A", Description: ptr("d")})
	require.NoError(t, err)

	*r.Description = "mutated"
	got, err := s.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "d", *got.Description)
}

func TestWithSeed(t *testing.T) {
	items, err := New(WithSeed()).List(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Welcome to Net App", items[0].Title)
}

func TestConcurrentCreatesAssignUniqueIDs(t *testing.T) {
	ctx := context.Background()
	s := New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Create(ctx, record.Draft{Title: "x"})
		}()
	}
	wg.Wait()

	items, err := s.List(ctx)
	require.NoError(t, err)
	seen := map[int64]bool{}
	for _, it := range items {
		assert.False(t, seen[it.ID])
		seen[it.ID] = true
	}
	assert.Len(t, items, 50)
}
