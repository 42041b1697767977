package bridge

import (
	"context"
	"time"

	"github.com/drblury/todobridge/internal/events"
	"github.com/drblury/todobridge/internal/record"
)

// Dispatcher runs decoded requests against a record store.
type Dispatcher struct {
	store record.Store
	now   func() time.Time
}

// NewDispatcher binds a dispatcher to store.
func NewDispatcher(store record.Store) *Dispatcher {
	return &Dispatcher{store: store, now: time.Now}
}

// Dispatch executes req. Client-facing failures come back as a response with
// Success false and a nil error. A non-nil error is unexpected and has no
// response. The change event is set only for successful mutations.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (Response, *events.ChangeEvent, error) {
	now := d.now()

	var (
		data any
		ev   *events.ChangeEvent
		err  error
	)

	switch r := req.(type) {
	case GetAllRequest:
		data, err = d.store.List(ctx)

	case GetRequest:
		data, err = d.store.Get(ctx, r.ID)

	case CreateRequest:
		var created record.Record
		created, err = d.store.Create(ctx, r.Draft)
		if err == nil {
			data = created
			e := events.Created(created, now)
			ev = &e
		}

	case UpdateRequest:
		var updated record.Record
		updated, err = d.store.Update(ctx, r.ID, r.Changes)
		if err == nil {
			data = updated
			e := events.Updated(updated, r.Partial, now)
			ev = &e
		}

	case DeleteRequest:
		if _, err = d.store.Delete(ctx, r.ID); err == nil {
			e := events.Deleted(r.ID, now)
			return Response{Success: true, Message: MessageDeleted, Timestamp: now.UTC()}, &e, nil
		}

	default:
		return fail(ErrorUnknownCommand, now), nil, nil
	}

	if err != nil {
		if resp, ok := failureFor(err, now); ok {
			return resp, nil, nil
		}
		return Response{}, nil, err
	}
	return succeed(data, now), ev, nil
}
