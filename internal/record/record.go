// Package record defines the todo item owned by the record store, the store
// contract consumed by the HTTP API and the command bridge, and the field rules
// every store applies on create and update.
package record

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by every Store operation addressing a missing id.
var ErrNotFound = errors.New("record: item not found")

const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 1000
)

// Record is a persisted todo item.
type Record struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title" validate:"required,notblank,max=200"`
	Description *string    `json:"description" validate:"omitempty,max=1000"`
	IsCompleted bool       `json:"isCompleted"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt"`
}

// Draft carries the fields a caller controls when creating a record.
type Draft struct {
	Title       string
	Description *string
	IsCompleted bool
}

// Changes lists the fields to apply on update. Nil fields stay unchanged; a
// non-nil empty Description clears the description.
type Changes struct {
	Title       *string
	Description *string
	IsCompleted *bool
}

// Empty reports whether no field would change.
func (c Changes) Empty() bool {
	return c.Title == nil && c.Description == nil && c.IsCompleted == nil
}

// Store is the exclusive owner of records. Every call is atomic on its own;
// callers never combine calls into a transaction.
type Store interface {
	List(ctx context.Context) ([]Record, error)
	Get(ctx context.Context, id int64) (Record, error)
	Create(ctx context.Context, draft Draft) (Record, error)
	Update(ctx context.Context, id int64, changes Changes) (Record, error)
	Delete(ctx context.Context, id int64) (Record, error)
	Close() error
}

// New builds a record from a draft as of now. The result is not validated.
func New(draft Draft, now time.Time) Record {
	r := Record{
		Title:       draft.Title,
		Description: normalizeDescription(draft.Description),
		CreatedAt:   now.UTC(),
	}
	r.setCompleted(draft.IsCompleted, now)
	return r
}

// Apply mutates r with changes. Completing an open record stamps CompletedAt,
// reopening clears it, and re-completing keeps the original stamp.
func (r *Record) Apply(changes Changes, now time.Time) {
	if changes.Title != nil {
		r.Title = *changes.Title
	}
	if changes.Description != nil {
		r.Description = normalizeDescription(changes.Description)
	}
	if changes.IsCompleted != nil {
		r.setCompleted(*changes.IsCompleted, now)
	}
}

func (r *Record) setCompleted(completed bool, now time.Time) {
	r.IsCompleted = completed
	if !completed {
		r.CompletedAt = nil
		return
	}
	if r.CompletedAt == nil {
		stamp := now.UTC()
		r.CompletedAt = &stamp
	}
}

func normalizeDescription(desc *string) *string {
	if desc == nil || *desc == "" {
		return nil
	}
	d := *desc
	return &d
}
