// Package events defines the change events produced by record mutations and
// the sinks that deliver them.
package events

import (
	"context"
	"time"

	"github.com/drblury/todobridge/internal/record"
)

// Action names a mutation.
type Action string

const (
	ActionCreated        Action = "created"
	ActionUpdated        Action = "updated"
	ActionUpdatedPartial Action = "updatedpartial"
	ActionDeleted        Action = "deleted"
)

// ChangeEvent describes one successful mutation. Record is nil for deletes.
type ChangeEvent struct {
	Action    Action
	ID        int64
	Record    *record.Record
	Timestamp time.Time
}

// Created builds a created event from the stored record.
func Created(r record.Record, now time.Time) ChangeEvent {
	return withRecord(ActionCreated, r, now)
}

// Updated builds an updated event. partial selects the updatedpartial action.
func Updated(r record.Record, partial bool, now time.Time) ChangeEvent {
	if partial {
		return withRecord(ActionUpdatedPartial, r, now)
	}
	return withRecord(ActionUpdated, r, now)
}

// Deleted builds a deleted event for id.
func Deleted(id int64, now time.Time) ChangeEvent {
	return ChangeEvent{Action: ActionDeleted, ID: id, Timestamp: now.UTC()}
}

func withRecord(action Action, r record.Record, now time.Time) ChangeEvent {
	return ChangeEvent{Action: action, ID: r.ID, Record: &r, Timestamp: now.UTC()}
}

// PushFrame is the WebSocket frame sent by the notification hub.
type PushFrame struct {
	Action    Action    `json:"action"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

type idOnly struct {
	ID int64 `json:"id"`
}

// PushFrame renders e for WebSocket clients: the full record, or {"id":n} for
// deletes.
func (e ChangeEvent) PushFrame() PushFrame {
	var data any = idOnly{ID: e.ID}
	if e.Action != ActionDeleted && e.Record != nil {
		data = e.Record
	}
	return PushFrame{Action: e.Action, Data: data, Timestamp: e.Timestamp}
}

type createdPayload struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Timestamp time.Time `json:"timestamp"`
}

type updatedPayload struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	IsCompleted bool      `json:"isCompleted"`
	Timestamp   time.Time `json:"timestamp"`
}

type deletedPayload struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

// TopicPayload renders e for the broker topic <prefix>/todo/<action>.
func (e ChangeEvent) TopicPayload() any {
	var title string
	var completed bool
	if e.Record != nil {
		title = e.Record.Title
		completed = e.Record.IsCompleted
	}
	switch e.Action {
	case ActionCreated:
		return createdPayload{ID: e.ID, Title: title, Timestamp: e.Timestamp}
	case ActionUpdated, ActionUpdatedPartial:
		return updatedPayload{ID: e.ID, Title: title, IsCompleted: completed, Timestamp: e.Timestamp}
	default:
		return deletedPayload{ID: e.ID, Timestamp: e.Timestamp}
	}
}

// Sink receives change events. Implementations must not block on slow
// consumers and never report delivery failures to the caller.
type Sink interface {
	Emit(ctx context.Context, ev ChangeEvent)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev ChangeEvent)

func (f SinkFunc) Emit(ctx context.Context, ev ChangeEvent) { f(ctx, ev) }

// Multi fans an event out to every non-nil sink in order.
type Multi []Sink

// NewMulti drops nil sinks.
func NewMulti(sinks ...Sink) Multi {
	out := make(Multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m Multi) Emit(ctx context.Context, ev ChangeEvent) {
	for _, s := range m {
		s.Emit(ctx, ev)
	}
}
