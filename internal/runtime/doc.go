/*
Package runtime wires the todobridge service together.

# Architecture Overview

A Service owns one record store and exposes it on two surfaces:

  - the HTTP API (internal/api), whose mutations are announced on the broker
    and pushed to WebSocket clients;
  - the command bridge (internal/bridge), which executes broker commands
    against the same store and announces its own mutations the same way.

The notification hub (internal/hub) is shared by both surfaces through the
events.Sink interface.

# Sub-packages

  - config/: Service configuration, viper loading and validation
  - errors/: Sentinel errors and error types
  - ids/: ULID generation for message, connection and client ids
  - jsoncodec/: JSON marshaling backed by sonic
  - logging/: Logger interface and adapters
  - metadata/: Message metadata keys and helpers
  - telemetry/: Prometheus collectors and the OpenTelemetry tracer
  - transport/: Factory that builds the bridge transport from configuration

# Usage Example

	cfg, err := config.Load(config.NewViper(), "todobridge.yaml")
	if err != nil {
		return err
	}

	svc, err := runtime.NewService(ctx, cfg, logger, runtime.ServiceDependencies{})
	if err != nil {
		return err
	}

	return svc.Start(ctx)
*/
package runtime
