package todobridge

import (
	"github.com/drblury/todobridge/internal/bridge"
	"github.com/drblury/todobridge/internal/events"
	"github.com/drblury/todobridge/internal/hub"
	"github.com/drblury/todobridge/internal/record"
	runtimepkg "github.com/drblury/todobridge/internal/runtime"
	configpkg "github.com/drblury/todobridge/internal/runtime/config"
	errspkg "github.com/drblury/todobridge/internal/runtime/errors"
	idspkg "github.com/drblury/todobridge/internal/runtime/ids"
	jsoncodec "github.com/drblury/todobridge/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/todobridge/internal/runtime/logging"
	metadatapkg "github.com/drblury/todobridge/internal/runtime/metadata"
	transportpkg "github.com/drblury/todobridge/internal/runtime/transport"
	newtransport "github.com/drblury/todobridge/transport"
)

type (
	Config               = configpkg.Config
	Service              = runtimepkg.Service
	ServiceDependencies  = runtimepkg.ServiceDependencies
	ServiceStatus        = runtimepkg.Status
	Transport            = transportpkg.Transport
	TransportFactory     = transportpkg.Factory
	TransportFactoryFunc = transportpkg.FactoryFunc

	Record      = record.Record
	Draft       = record.Draft
	Changes     = record.Changes
	RecordStore = record.Store

	ChangeEvent = events.ChangeEvent
	EventAction = events.Action
	EventSink   = events.Sink

	Hub         = hub.Hub
	Registry    = hub.Registry
	Conn        = hub.Conn
	HubOption   = hub.Option
	Bridge      = bridge.Bridge
	BridgeState = bridge.State
	Command     = bridge.Command
	Response    = bridge.Response
	Hooks       = bridge.Hooks
	CommandInfo = bridge.CommandInfo

	Metadata = metadatapkg.Metadata

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	ConfigValidationError = errspkg.ConfigValidationError
	ValidationError       = record.ValidationError

	TransportBuilder  = newtransport.Builder
	TransportConfig   = newtransport.Config
	TransportRegistry = newtransport.Registry
)

var (
	NewService     = runtimepkg.NewService
	DefaultConfig  = configpkg.Defaults
	NewViper       = configpkg.NewViper
	LoadConfig     = configpkg.Load
	ValidateConfig = configpkg.ValidateConfig

	NewRegistry = hub.NewRegistry
	NewHub      = hub.New
	NewBridge   = bridge.New

	ParseCommand  = bridge.ParseCommand
	DerivePrefix  = bridge.DerivePrefix
	CommandTopic  = bridge.CommandTopic
	ResponseTopic = bridge.ResponseTopic
	EventTopic    = bridge.EventTopic

	RegisterTransport = newtransport.Register
	BuildTransport    = newtransport.Build
)

// Logger constructors.
var (
	NewLogger                 = loggingpkg.NewLogger
	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger
	NewWatermillAdapter       = loggingpkg.NewWatermillAdapter
)

// JSON helpers backed by sonic.
var (
	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal
)

var (
	CreateULID  = idspkg.CreateULID
	NewMetadata = metadatapkg.New
)

const (
	ActionCreated        = events.ActionCreated
	ActionUpdated        = events.ActionUpdated
	ActionUpdatedPartial = events.ActionUpdatedPartial
	ActionDeleted        = events.ActionDeleted
)

var (
	ErrNotFound           = record.ErrNotFound
	ErrStoreRequired      = errspkg.ErrStoreRequired
	ErrBridgeRunning      = errspkg.ErrBridgeRunning
	ErrUnknownTransport   = newtransport.ErrUnknownTransport
	ErrUnknownCommand     = bridge.ErrUnknownCommand
	ErrInvalidJSON        = bridge.ErrInvalidJSON
	ErrUnknownStoreDriver = errspkg.ErrUnknownStoreDriver
)
