package errors

import sterrors "errors"

var (
	ErrStoreRequired      = sterrors.New("todobridge: record store is required")
	ErrLoggerRequired     = sterrors.New("todobridge: logger is required")
	ErrRegistryRequired   = sterrors.New("todobridge: connection registry is required")
	ErrTransportRequired  = sterrors.New("todobridge: transport is required")
	ErrPublisherRequired  = sterrors.New("todobridge: publisher is required")
	ErrSubscriberRequired = sterrors.New("todobridge: subscriber is required")
	ErrTopicRequired      = sterrors.New("todobridge: topic is required")
	ErrBridgeRunning      = sterrors.New("todobridge: command bridge already started")
	ErrConnectionClosed   = sterrors.New("todobridge: connection is closed")
	ErrUnknownStoreDriver = sterrors.New("todobridge: unknown store driver")
)

// ConfigValidationError wraps the joined validation failures of a Config.
type ConfigValidationError struct {
	Err error
}

func (e *ConfigValidationError) Error() string {
	if e == nil || e.Err == nil {
		return "todobridge: invalid configuration"
	}
	return "todobridge: invalid configuration: " + e.Err.Error()
}

func (e *ConfigValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
