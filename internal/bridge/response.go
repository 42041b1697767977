package bridge

import (
	"errors"
	"time"

	"github.com/drblury/todobridge/internal/record"
)

// Error strings returned to bridge clients.
const (
	ErrorUnknownCommand = "Unknown command"
	ErrorInvalidJSON    = "Invalid JSON format"
	ErrorNotFound       = "Item not found"

	MessageDeleted = "Item deleted successfully"
)

// Response is published once for every command the bridge parses.
type Response struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func succeed(data any, now time.Time) Response {
	return Response{Success: true, Data: data, Timestamp: now.UTC()}
}

func fail(reason string, now time.Time) Response {
	return Response{Success: false, Error: reason, Timestamp: now.UTC()}
}

// failureFor maps a request or store error onto its client-facing response.
// ok is false for errors clients never see.
func failureFor(err error, now time.Time) (Response, bool) {
	var verr *record.ValidationError
	switch {
	case errors.Is(err, ErrUnknownCommand):
		return fail(ErrorUnknownCommand, now), true
	case errors.Is(err, ErrInvalidJSON):
		return fail(ErrorInvalidJSON, now), true
	case errors.Is(err, record.ErrNotFound):
		return fail(ErrorNotFound, now), true
	case errors.As(err, &verr):
		return fail("Invalid request: "+verr.Error(), now), true
	default:
		return Response{}, false
	}
}
