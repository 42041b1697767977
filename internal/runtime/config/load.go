package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	errspkg "github.com/drblury/todobridge/internal/runtime/errors"
)

// EnvPrefix is prepended to every environment variable, e.g.
// TODOBRIDGE_BRIDGE_ENABLED.
const EnvPrefix = "TODOBRIDGE"

// Keys understood by Load.
const (
	KeyHTTPAddress        = "http.address"
	KeyCORSAllowedOrigins = "http.cors_allowed_origins"
	KeyStoreDriver        = "store.driver"
	KeySQLiteFile         = "store.sqlite_file"
	KeyPostgresURL        = "store.postgres_url"
	KeyStoreSeed          = "store.seed"
	KeyHubWriteTimeout    = "hub.write_timeout"
	KeyBridgeEnabled      = "bridge.enabled"
	KeyBridgeTransport    = "bridge.transport"
	KeyBroker             = "bridge.broker"
	KeyBrokerPort         = "bridge.port"
	KeyClientID           = "bridge.client_id"
	KeyTopicPattern       = "bridge.topic"
	KeyBrokerUsername     = "bridge.username"
	KeyBrokerPassword     = "bridge.password"
	KeyNATSURL            = "bridge.nats_url"
	KeyRabbitMQURL        = "bridge.rabbitmq_url"
	KeyMetricsEnabled     = "metrics.enabled"
	KeyLogLevel           = "log.level"
	KeyLogFormat          = "log.format"
)

// NewViper returns a viper instance with defaults and environment binding
// applied. Callers may bind flags to it before calling Load.
func NewViper() *viper.Viper {
	v := viper.New()
	d := Defaults()

	v.SetDefault(KeyHTTPAddress, d.HTTPAddress)
	v.SetDefault(KeyCORSAllowedOrigins, []string{})
	v.SetDefault(KeyStoreDriver, d.StoreDriver)
	v.SetDefault(KeySQLiteFile, d.SQLiteFile)
	v.SetDefault(KeyPostgresURL, "")
	v.SetDefault(KeyStoreSeed, false)
	v.SetDefault(KeyHubWriteTimeout, d.HubWriteTimeout)
	v.SetDefault(KeyBridgeEnabled, false)
	v.SetDefault(KeyBridgeTransport, d.BridgeTransport)
	v.SetDefault(KeyBroker, d.Broker)
	v.SetDefault(KeyBrokerPort, d.BrokerPort)
	v.SetDefault(KeyClientID, d.ClientID)
	v.SetDefault(KeyTopicPattern, d.TopicPattern)
	v.SetDefault(KeyBrokerUsername, "")
	v.SetDefault(KeyBrokerPassword, "")
	v.SetDefault(KeyNATSURL, "")
	v.SetDefault(KeyRabbitMQURL, "")
	v.SetDefault(KeyMetricsEnabled, d.MetricsEnabled)
	v.SetDefault(KeyLogLevel, d.LogLevel)
	v.SetDefault(KeyLogFormat, d.LogFormat)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional config file into v and returns a validated Config.
func Load(v *viper.Viper, file string) (*Config, error) {
	if v == nil {
		v = NewViper()
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config %s: %w", file, err)
			}
		}
	}

	cfg := &Config{
		HTTPAddress:        v.GetString(KeyHTTPAddress),
		CORSAllowedOrigins: v.GetStringSlice(KeyCORSAllowedOrigins),
		StoreDriver:        strings.ToLower(v.GetString(KeyStoreDriver)),
		SQLiteFile:         v.GetString(KeySQLiteFile),
		PostgresURL:        v.GetString(KeyPostgresURL),
		StoreSeed:          v.GetBool(KeyStoreSeed),
		HubWriteTimeout:    v.GetDuration(KeyHubWriteTimeout),
		BridgeEnabled:      v.GetBool(KeyBridgeEnabled),
		BridgeTransport:    strings.ToLower(v.GetString(KeyBridgeTransport)),
		Broker:             v.GetString(KeyBroker),
		BrokerPort:         v.GetInt(KeyBrokerPort),
		ClientID:           v.GetString(KeyClientID),
		TopicPattern:       v.GetString(KeyTopicPattern),
		BrokerUsername:     v.GetString(KeyBrokerUsername),
		BrokerPassword:     v.GetString(KeyBrokerPassword),
		NATSURL:            v.GetString(KeyNATSURL),
		RabbitMQURL:        v.GetString(KeyRabbitMQURL),
		MetricsEnabled:     v.GetBool(KeyMetricsEnabled),
		LogLevel:           v.GetString(KeyLogLevel),
		LogFormat:          strings.ToLower(v.GetString(KeyLogFormat)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, &errspkg.ConfigValidationError{Err: err}
	}
	return cfg, nil
}
