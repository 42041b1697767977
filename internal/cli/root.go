// Package cli implements the todobridge command line.
package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/drblury/todobridge/internal/runtime/config"
)

// Version is stamped at build time with -ldflags "-X ...cli.Version=v1.2.3".
var Version = "dev"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigFile string
	viper      *viper.Viper
}

// NewRootCommand creates the todobridge root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{viper: config.NewViper()}

	cmd := &cobra.Command{
		Use:   "todobridge",
		Short: "Todo item API with WebSocket and broker notifications",
		Long: `todobridge serves a todo item store over HTTP, pushes every change to
WebSocket clients on /ws/todos and answers commands published on
<prefix>/command/<name> through an MQTT, NATS or RabbitMQ broker.

Settings come from the optional --config file, TODOBRIDGE_* environment
variables and flags, in increasing order of precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "path to a config file (yaml, json or toml)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewVersionCommand())

	return cmd
}
