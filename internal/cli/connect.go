package cli

import (
	"context"
	"fmt"

	"github.com/telestore/telestore/internal/config"
	"github.com/telestore/telestore/internal/core"
	"github.com/telestore/telestore/internal/ipc"
	"github.com/telestore/telestore/internal/logging"
)

// loadConfig loads the configuration file named by --config, or the default
// one, and applies the configured log level.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if !verbose && !debug {
		logging.SetGlobalLevelString(cfg.Logging.Level)
	}
	return cfg, nil
}

// resolveSocket picks the backend socket: --socket, then config, then the
// platform default.
func resolveSocket(cfg *config.Config) string {
	switch {
	case socketPath != "":
		return socketPath
	case cfg.Bridge.SocketPath != "":
		return cfg.Bridge.SocketPath
	default:
		return ipc.DefaultSocketPath()
	}
}

// backendConn is a started engine connected to the backend.
type backendConn struct {
	*core.Engine
	client *ipc.Client
}

func (s *backendConn) Close() {
	s.Engine.Close()
	s.client.Close()
}

// connect dials the backend and starts an engine on it.
func connect(ctx context.Context) (*backendConn, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := GetLogger()
	socket := resolveSocket(cfg)
	client, err := ipc.Dial(ctx, socket, log)
	if err != nil {
		return nil, fmt.Errorf("backend not reachable (is it running?): %w", err)
	}

	engine, err := core.New(cfg, client,
		core.WithLogOutput(log.Output()),
		core.WithNotifications(notifyFlag),
	)
	if err != nil {
		client.Close()
		return nil, err
	}
	if err := engine.Start(ctx); err != nil {
		engine.Close()
		client.Close()
		return nil, err
	}

	log.Debug().Str("socket", socket).Msg("Connected to backend")
	return &backendConn{Engine: engine, client: client}, nil
}

// withBackend runs fn against a connected engine.
func withBackend(ctx context.Context, fn func(*backendConn) error) error {
	s, err := connect(ctx)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}
