package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/drblury/todobridge/internal/runtime"
	"github.com/drblury/todobridge/internal/runtime/config"
	"github.com/drblury/todobridge/internal/runtime/logging"
)

// flagKeys maps serve flags to config keys.
var flagKeys = map[string]string{
	"http-address":      config.KeyHTTPAddress,
	"cors-origin":       config.KeyCORSAllowedOrigins,
	"store-driver":      config.KeyStoreDriver,
	"sqlite-file":       config.KeySQLiteFile,
	"postgres-url":      config.KeyPostgresURL,
	"seed":              config.KeyStoreSeed,
	"bridge":            config.KeyBridgeEnabled,
	"transport":         config.KeyBridgeTransport,
	"broker":            config.KeyBroker,
	"broker-port":       config.KeyBrokerPort,
	"client-id":         config.KeyClientID,
	"topic":             config.KeyTopicPattern,
	"nats-url":          config.KeyNATSURL,
	"rabbitmq-url":      config.KeyRabbitMQURL,
	"metrics":           config.KeyMetricsEnabled,
	"log-level":         config.KeyLogLevel,
	"log-format":        config.KeyLogFormat,
	"hub-write-timeout": config.KeyHubWriteTimeout,
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the WebSocket hub and the command bridge",
		Long: `Run the todobridge service until interrupted.

Example:
  todobridge serve --store-driver sqlite --seed
  todobridge serve --bridge --broker mqtt.local --topic lab/#
  TODOBRIDGE_BRIDGE_TRANSPORT=nats TODOBRIDGE_BRIDGE_NATS_URL=nats://localhost:4222 todobridge serve --bridge`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, rootOpts)
		},
	}

	d := config.Defaults()
	f := cmd.Flags()
	f.String("http-address", d.HTTPAddress, "address for the HTTP API, WebSocket hub and metrics")
	f.StringSlice("cors-origin", nil, "allowed CORS origin, repeatable; * allows any")
	f.String("store-driver", d.StoreDriver, "record store (memory|sqlite|postgres)")
	f.String("sqlite-file", d.SQLiteFile, "SQLite database file")
	f.String("postgres-url", "", "PostgreSQL connection string")
	f.Bool("seed", false, "insert the welcome items into an empty store")
	f.Bool("bridge", false, "enable the command bridge")
	f.String("transport", d.BridgeTransport, "bridge transport (mqtt|nats|rabbitmq|channel)")
	f.String("broker", d.Broker, "MQTT broker host")
	f.Int("broker-port", d.BrokerPort, "MQTT broker port")
	f.String("client-id", d.ClientID, "broker client id (generated when empty)")
	f.String("topic", d.TopicPattern, "bridge topic pattern; its first level is the prefix")
	f.String("nats-url", "", "NATS server URL")
	f.String("rabbitmq-url", "", "RabbitMQ URL")
	f.Bool("metrics", d.MetricsEnabled, "expose Prometheus metrics on /metrics")
	f.String("log-level", d.LogLevel, "log level (trace|debug|info|warn|error)")
	f.String("log-format", d.LogFormat, "log format (json|text)")
	f.Duration("hub-write-timeout", d.HubWriteTimeout, "deadline for a single WebSocket push")

	f.VisitAll(func(fl *pflag.Flag) {
		if key, ok := flagKeys[fl.Name]; ok {
			_ = rootOpts.viper.BindPFlag(key, fl)
		}
	})

	return cmd
}

func runServe(ctx context.Context, opts *RootOptions) error {
	cfg, err := config.Load(opts.viper, opts.ConfigFile)
	if err != nil {
		return err
	}

	base, err := logging.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	logger := logging.NewSlogServiceLogger(base)

	svc, err := runtime.NewService(ctx, cfg, logger, runtime.ServiceDependencies{})
	if err != nil {
		return err
	}
	return svc.Start(ctx)
}
