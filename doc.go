// Package todobridge serves a todo item store over HTTP and mirrors every
// mutation to two real-time channels: a WebSocket notification hub for UI
// clients and a publish/subscribe command bridge for automation clients.
//
// The bridge subscribes to <prefix>/# on the configured broker (MQTT, NATS,
// RabbitMQ or in-memory Go channels), executes commands published on
// <prefix>/command/<name> against the store and answers on
// <prefix>/response/<correlationId>, or on <prefix>/response when the command
// carried no correlation id. Successful mutations, whether they arrive through
// the HTTP API or the bridge, are published on <prefix>/todo/<action> and
// pushed to every connected WebSocket client.
//
// # Commands
//
// The bridge understands getall, get, create, update, updatepartial and
// delete. Command names are case-insensitive. Unknown commands, malformed JSON
// and invalid fields are answered with an error envelope; unexpected failures
// are logged and swallowed so one bad message never stops the subscription.
//
// # Configuration
//
// Config is loaded with LoadConfig from an optional file, TODOBRIDGE_*
// environment variables and command-line flags. A minimal setup fills Config,
// creates a Service and calls Start:
//
//	cfg, err := todobridge.LoadConfig(todobridge.NewViper(), "")
//	if err != nil {
//		return err
//	}
//	svc, err := todobridge.NewService(ctx, cfg, logger, todobridge.ServiceDependencies{})
//	if err != nil {
//		return err
//	}
//	return svc.Start(ctx)
package todobridge
