package bridge

import (
	"context"
	"time"

	"github.com/drblury/todobridge/internal/runtime/logging"
	"github.com/drblury/todobridge/internal/runtime/telemetry"
)

// CommandInfo describes one inbound command to hooks.
type CommandInfo struct {
	// Command is the lower-cased last topic level, which may be unknown.
	Command string
	// Topic is the concrete topic the command arrived on.
	Topic string
	// CorrelationID is empty when the payload carried none.
	CorrelationID string
	// MessageUUID identifies the transport message.
	MessageUUID string
	Context     context.Context
	StartedAt   time.Time
	// Duration is set for OnCommandDone and OnCommandError.
	Duration time.Duration
}

// Hooks are optional callbacks around command handling. Nil hooks are skipped.
type Hooks struct {
	OnCommandStart func(info CommandInfo)

	// OnCommandDone runs after the response was handed to the transport.
	OnCommandDone func(info CommandInfo, resp Response)

	// OnCommandError runs for unexpected failures, which get no response.
	OnCommandError func(info CommandInfo, err error)
}

// Merge returns hooks that call h first and other second.
func (h Hooks) Merge(other Hooks) Hooks {
	return Hooks{
		OnCommandStart: chainStart(h.OnCommandStart, other.OnCommandStart),
		OnCommandDone:  chainDone(h.OnCommandDone, other.OnCommandDone),
		OnCommandError: chainError(h.OnCommandError, other.OnCommandError),
	}
}

func chainStart(a, b func(CommandInfo)) func(CommandInfo) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(info CommandInfo) {
		a(info)
		b(info)
	}
}

func chainDone(a, b func(CommandInfo, Response)) func(CommandInfo, Response) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(info CommandInfo, resp Response) {
		a(info, resp)
		b(info, resp)
	}
}

func chainError(a, b func(CommandInfo, error)) func(CommandInfo, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(info CommandInfo, err error) {
		a(info, err)
		b(info, err)
	}
}

func (h Hooks) onStart(info CommandInfo) {
	if h.OnCommandStart != nil {
		h.OnCommandStart(info)
	}
}

func (h Hooks) onDone(info CommandInfo, resp Response) {
	if h.OnCommandDone != nil {
		h.OnCommandDone(info, resp)
	}
}

func (h Hooks) onError(info CommandInfo, err error) {
	if h.OnCommandError != nil {
		h.OnCommandError(info, err)
	}
}

// LoggingHooks logs every command at debug level and failures at error level.
func LoggingHooks(logger logging.ServiceLogger) Hooks {
	return Hooks{
		OnCommandStart: func(info CommandInfo) {
			logger.Debug("Processing command", logging.LogFields{
				"command":        info.Command,
				"topic":          info.Topic,
				"correlation_id": info.CorrelationID,
				"message_uuid":   info.MessageUUID,
			})
		},
		OnCommandDone: func(info CommandInfo, resp Response) {
			logger.Debug("Command completed", logging.LogFields{
				"command":        info.Command,
				"correlation_id": info.CorrelationID,
				"success":        resp.Success,
				"error":          resp.Error,
				"duration_ms":    info.Duration.Milliseconds(),
			})
		},
		OnCommandError: func(info CommandInfo, err error) {
			logger.Error("Command failed", err, logging.LogFields{
				"command":        info.Command,
				"topic":          info.Topic,
				"correlation_id": info.CorrelationID,
				"message_uuid":   info.MessageUUID,
				"duration_ms":    info.Duration.Milliseconds(),
			})
		},
	}
}

// MetricsHooks counts commands by outcome: ok, rejected or error.
func MetricsHooks(m *telemetry.Metrics) Hooks {
	return Hooks{
		OnCommandDone: func(info CommandInfo, resp Response) {
			result := "ok"
			if !resp.Success {
				result = "rejected"
			}
			m.RecordCommand(commandLabel(info.Command), result, info.Duration)
		},
		OnCommandError: func(info CommandInfo, err error) {
			m.RecordCommand(commandLabel(info.Command), "error", info.Duration)
		},
	}
}

// commandLabel keeps label cardinality bounded to the known commands.
func commandLabel(name string) string {
	if cmd, ok := ParseCommand(name); ok {
		return string(cmd)
	}
	return "unknown"
}
