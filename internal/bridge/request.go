package bridge

import (
	"errors"
	"fmt"
	"strings"

	"github.com/drblury/todobridge/internal/record"
	"github.com/drblury/todobridge/internal/runtime/jsoncodec"
)

// Command enumerates the operations a client may request.
type Command string

const (
	CommandGetAll        Command = "getall"
	CommandGet           Command = "get"
	CommandCreate        Command = "create"
	CommandUpdate        Command = "update"
	CommandUpdatePartial Command = "updatepartial"
	CommandDelete        Command = "delete"
)

// Commands lists every known command in dispatch order.
var Commands = []Command{
	CommandGetAll,
	CommandGet,
	CommandCreate,
	CommandUpdate,
	CommandUpdatePartial,
	CommandDelete,
}

// ParseCommand matches name case-insensitively against Commands.
func ParseCommand(name string) (Command, bool) {
	c := Command(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Commands {
		if c == known {
			return c, true
		}
	}
	return "", false
}

var (
	// ErrUnknownCommand is returned by ParseRequest for names outside Commands.
	ErrUnknownCommand = errors.New("bridge: unknown command")
	// ErrInvalidJSON marks payloads that do not decode into the command's fields.
	ErrInvalidJSON = errors.New("bridge: invalid JSON format")
)

// Request is the decoded form of one command. Each command has its own type
// carrying only the fields it accepts.
type Request interface {
	Command() Command
}

type GetAllRequest struct{}

type GetRequest struct {
	ID int64
}

type CreateRequest struct {
	Draft record.Draft
}

// UpdateRequest serves both update and updatepartial. Partial only selects
// the change event action.
type UpdateRequest struct {
	ID      int64
	Partial bool
	Changes record.Changes
}

type DeleteRequest struct {
	ID int64
}

func (GetAllRequest) Command() Command { return CommandGetAll }
func (GetRequest) Command() Command    { return CommandGet }
func (CreateRequest) Command() Command { return CommandCreate }
func (DeleteRequest) Command() Command { return CommandDelete }

func (r UpdateRequest) Command() Command {
	if r.Partial {
		return CommandUpdatePartial
	}
	return CommandUpdate
}

type idPayload struct {
	ID *int64 `json:"id" validate:"required"`
}

type createPayload struct {
	Title       *string `json:"title" validate:"required,notblank,max=200"`
	Description *string `json:"description" validate:"omitempty,max=1000"`
	IsCompleted *bool   `json:"isCompleted"`
}

type updatePayload struct {
	ID          *int64  `json:"id" validate:"required"`
	Title       *string `json:"title" validate:"omitempty,max=200"`
	Description *string `json:"description" validate:"omitempty,max=1000"`
	IsCompleted *bool   `json:"isCompleted"`
}

// ParseRequest decodes payload for the named command. Errors are
// ErrUnknownCommand, ErrInvalidJSON or a *record.ValidationError; none of
// them touch a store.
func ParseRequest(name string, payload []byte) (Request, error) {
	cmd, ok := ParseCommand(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}

	switch cmd {
	case CommandGetAll:
		return GetAllRequest{}, nil

	case CommandGet, CommandDelete:
		var p idPayload
		if err := decode(payload, &p); err != nil {
			return nil, err
		}
		if cmd == CommandGet {
			return GetRequest{ID: *p.ID}, nil
		}
		return DeleteRequest{ID: *p.ID}, nil

	case CommandCreate:
		var p createPayload
		if err := decode(payload, &p); err != nil {
			return nil, err
		}
		draft := record.Draft{Title: *p.Title, Description: p.Description}
		if p.IsCompleted != nil {
			draft.IsCompleted = *p.IsCompleted
		}
		return CreateRequest{Draft: draft}, nil

	default:
		var p updatePayload
		if err := decode(payload, &p); err != nil {
			return nil, err
		}
		req := UpdateRequest{ID: *p.ID, Partial: cmd == CommandUpdatePartial}
		// A blank title leaves the stored one untouched.
		if p.Title != nil && strings.TrimSpace(*p.Title) != "" {
			req.Changes.Title = p.Title
		}
		req.Changes.Description = p.Description
		req.Changes.IsCompleted = p.IsCompleted
		return req, nil
	}
}

func decode(payload []byte, dst any) error {
	if err := jsoncodec.Unmarshal(payload, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return record.ValidateStruct(dst)
}
