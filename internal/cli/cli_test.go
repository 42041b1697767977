package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/todobridge/internal/runtime/config"
	errspkg "github.com/drblury/todobridge/internal/runtime/errors"
)

func TestVersionCommand(t *testing.T) {
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "todobridge "+Version)
}

func TestServeRejectsInvalidConfig(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"serve", "--store-driver", "mongodb"})

	err := cmd.Execute()
	var cfgErr *errspkg.ConfigValidationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), "unknown driver")
}

func TestServeFlagsOverrideConfigFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "todobridge.yaml")
	require.NoError(t, os.WriteFile(file, []byte("bridge:\n  topic: lab/#\n  enabled: true\n  transport: nats\n"), 0o600))

	opts := &RootOptions{ConfigFile: file, viper: config.NewViper()}
	serve := NewServeCommand(opts)
	require.NoError(t, serve.Flags().Parse([]string{"--nats-url", "nats://127.0.0.1:4222", "--log-format", "text"}))

	cfg, err := config.Load(opts.viper, opts.ConfigFile)
	require.NoError(t, err)
	assert.Equal(t, "lab/#", cfg.TopicPattern)
	assert.True(t, cfg.BridgeEnabled)
	assert.Equal(t, "nats", cfg.BridgeTransport)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATSURL)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, config.DefaultHTTPAddress, cfg.HTTPAddress)
}

func TestServeWithoutRequiredBridgeURL(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"serve", "--bridge", "--transport", "rabbitmq"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rabbitmq: URL is required")
}
