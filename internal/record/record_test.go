package record

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestNewStampsCreationAndCompletion(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600))

	open := New(Draft{Title: "A"}, now)
	assert.Equal(t, now.UTC(), open.CreatedAt)
	assert.Nil(t, open.CompletedAt)
	assert.Nil(t, open.Description)

	done := New(Draft{Title: "B", Description: ptr("d"), IsCompleted: true}, now)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, now.UTC(), *done.CompletedAt)
	assert.Equal(t, "d", *done.Description)
}

func TestApplyCompletionTransitions(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)
	t2 := t1.Add(time.Hour)

	r := New(Draft{Title: "A"}, t0)

	r.Apply(Changes{IsCompleted: ptr(true)}, t1)
	require.NotNil(t, r.CompletedAt, "false->true sets the completion timestamp")
	assert.Equal(t, t1, *r.CompletedAt)

	r.Apply(Changes{IsCompleted: ptr(true)}, t2)
	require.NotNil(t, r.CompletedAt)
	assert.Equal(t, t1, *r.CompletedAt, "true->true keeps the original timestamp")

	r.Apply(Changes{IsCompleted: ptr(false)}, t2)
	assert.False(t, r.IsCompleted)
	assert.Nil(t, r.CompletedAt, "true->false clears the timestamp")
}

func TestApplyLeavesAbsentFieldsUnchanged(t *testing.T) {
	now := time.Now()
	r := New(Draft{Title: "A", Description: ptr("keep")}, now)

	r.Apply(Changes{Title: ptr("B")}, now)
	assert.Equal(t, "B", r.Title)
	assert.Equal(t, "keep", *r.Description)

	r.Apply(Changes{Description: ptr("")}, now)
	assert.Nil(t, r.Description, "empty description clears it")
	assert.True(t, Changes{}.Empty())
	assert.False(t, Changes{Title: ptr("x")}.Empty())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		record Record
		want   string
	}{
		{name: "valid", record: Record{Title: "ok"}},
		{name: "empty title", record: Record{Title: ""}, want: "title is required"},
		{name: "blank title", record: Record{Title: "   "}, want: "title is required"},
		{name: "long title", record: Record{Title: strings.Repeat("x", 201)}, want: "title must be at most 200 characters"},
		{name: "long description", record: Record{Title: "ok", Description: ptr(strings.Repeat("y", 1001))}, want: "description must be at most 1000 characters"},
		{name: "max lengths", record: Record{Title: strings.Repeat("x", 200), Description: ptr(strings.Repeat("y", 1000))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.record)
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.want, verr.Error())
		})
	}
}
