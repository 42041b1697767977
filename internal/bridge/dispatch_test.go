package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/todobridge/internal/events"
	"github.com/drblury/todobridge/internal/record"
	"github.com/drblury/todobridge/internal/store/memory"
)

func ptr[T any](v T) *T { return &v }

type steppingClock struct{ t time.Time }

func (c *steppingClock) now() time.Time {
	c.t = c.t.Add(time.Minute)
	return c.t
}

// brokenStore fails every call with an unexpected error.
type brokenStore struct{ record.Store }

var errDiskFull = errors.New("disk full")

func (brokenStore) List(context.Context) ([]record.Record, error) { return nil, errDiskFull }

func TestDispatchCreateAndGet(t *testing.T) {
	ctx := context.Background()
	d := NewDispatcher(memory.New())

	resp, ev, err := d.Dispatch(ctx, CreateRequest{Draft: record.Draft{Title: "A"}})
	require.NoError(t, err)
	require.True(t, resp.Success)
	created, ok := resp.Data.(record.Record)
	require.True(t, ok)
	assert.Equal(t, "A", created.Title)
	require.NotNil(t, ev)
	assert.Equal(t, events.ActionCreated, ev.Action)
	assert.Equal(t, created.ID, ev.ID)

	resp, ev, err = d.Dispatch(ctx, GetRequest{ID: created.ID})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, created, resp.Data)
	assert.Nil(t, ev)

	resp, _, err = d.Dispatch(ctx, GetAllRequest{})
	require.NoError(t, err)
	assert.Equal(t, []record.Record{created}, resp.Data)
}

func TestDispatchNotFound(t *testing.T) {
	ctx := context.Background()
	d := NewDispatcher(memory.New())

	for _, req := range []Request{
		GetRequest{ID: 42},
		UpdateRequest{ID: 42, Changes: record.Changes{Title: ptr("x")}},
		UpdateRequest{ID: 42, Partial: true},
		DeleteRequest{ID: 999999},
	} {
		resp, ev, err := d.Dispatch(ctx, req)
		require.NoError(t, err)
		assert.False(t, resp.Success)
		assert.Equal(t, ErrorNotFound, resp.Error)
		assert.Nil(t, ev, "no change event for %T", req)
	}
}

func TestDispatchCompletionTimestamps(t *testing.T) {
	ctx := context.Background()
	clock := &steppingClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	d := NewDispatcher(memory.New(memory.WithClock(clock.now)))

	resp, _, err := d.Dispatch(ctx, CreateRequest{Draft: record.Draft{Title: "A"}})
	require.NoError(t, err)
	id := resp.Data.(record.Record).ID

	update := func(completed bool) record.Record {
		t.Helper()
		resp, ev, err := d.Dispatch(ctx, UpdateRequest{ID: id, Partial: true, Changes: record.Changes{IsCompleted: &completed}})
		require.NoError(t, err)
		require.True(t, resp.Success)
		require.NotNil(t, ev)
		assert.Equal(t, events.ActionUpdatedPartial, ev.Action)
		return resp.Data.(record.Record)
	}

	first := update(true)
	require.NotNil(t, first.CompletedAt)

	again := update(true)
	require.NotNil(t, again.CompletedAt)
	assert.True(t, first.CompletedAt.Equal(*again.CompletedAt))

	reopened := update(false)
	assert.Nil(t, reopened.CompletedAt)
	assert.False(t, reopened.IsCompleted)
}

func TestDispatchDelete(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	created, err := store.Create(ctx, record.Draft{Title: "A"})
	require.NoError(t, err)

	resp, ev, err := NewDispatcher(store).Dispatch(ctx, DeleteRequest{ID: created.ID})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, MessageDeleted, resp.Message)
	assert.Nil(t, resp.Data)
	require.NotNil(t, ev)
	assert.Equal(t, events.ActionDeleted, ev.Action)
	assert.Equal(t, created.ID, ev.ID)

	_, err = store.Get(ctx, created.ID)
	assert.ErrorIs(t, err, record.ErrNotFound)
}

func TestDispatchUnexpectedError(t *testing.T) {
	_, ev, err := NewDispatcher(brokenStore{}).Dispatch(context.Background(), GetAllRequest{})
	assert.ErrorIs(t, err, errDiskFull)
	assert.Nil(t, ev)
}
