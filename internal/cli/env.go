package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/braid/internal/action"
	"github.com/roach88/braid/internal/config"
	"github.com/roach88/braid/internal/engine"
	"github.com/roach88/braid/internal/model"
	"github.com/roach88/braid/internal/store"
)

// redisDialTimeout bounds the first connection to the event broker.
const redisDialTimeout = 5 * time.Second

// env is everything a command needs after flags and config are resolved.
type env struct {
	opts    *RootOptions
	cfg     config.Config
	logger  *slog.Logger
	out     *OutputFormatter
	store   *store.Store
	closers []func() error
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   o.Verbose,
	}
}

// loadConfig reads --config and applies flag overrides.
func (o *RootOptions) loadConfig() (config.Config, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}
	if o.Database != "" {
		cfg.Database = o.Database
	}
	if o.Verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

func (o *RootOptions) storeOptions() []store.Option {
	var opts []store.Option
	if o.IDs != nil {
		opts = append(opts, store.WithIDGenerator(o.IDs))
	}
	if o.Clock != nil {
		opts = append(opts, store.WithClock(o.Clock))
	}
	return opts
}

// openEnv resolves config and opens the database. The database must already
// exist; only "create" and "import" make new ones (mustExist false).
// Failures are reported through the formatter.
func (o *RootOptions) openEnv(cmd *cobra.Command, mustExist bool) (*env, error) {
	out := o.formatter(cmd)

	cfg, err := o.loadConfig()
	if err != nil {
		return nil, out.Fail("failed to load config", model.NewInvalidArgument(err.Error()))
	}
	logger := newLogger(cfg.Log, cmd.ErrOrStderr())

	if mustExist {
		if _, err := os.Stat(cfg.Database); errors.Is(err, os.ErrNotExist) {
			return nil, out.Fail("database not found", model.NewInvalidArgument(
				fmt.Sprintf("%s does not exist (run braid create)", cfg.Database)))
		}
	}

	logger.Debug("opening database", "path", cfg.Database)
	st, err := store.Open(cfg.Database, o.storeOptions()...)
	if err != nil {
		return nil, out.Fail("failed to open database", err)
	}

	return &env{
		opts:    o,
		cfg:     cfg,
		logger:  logger,
		out:     out,
		store:   st,
		closers: []func() error{st.Close},
	}, nil
}

// Close releases the store and any publisher connections.
func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			e.logger.Error("error closing resource", "error", err)
		}
	}
}

// engine builds the invalidation engine with a dispatcher wired from config.
func (e *env) engine(cmd *cobra.Command) (*engine.Engine, error) {
	publisher, err := e.publisher()
	if err != nil {
		return nil, err
	}

	runner := e.opts.Runner
	if runner == nil {
		// Action output must not corrupt JSON results
		stdout := cmd.OutOrStdout()
		if e.opts.Format == "json" {
			stdout = cmd.ErrOrStderr()
		}
		runner = action.ExecRunner{
			Timeout: e.cfg.Actions.ShellTimeout,
			Stdout:  stdout,
			Stderr:  cmd.ErrOrStderr(),
		}
	}

	dispatcher := action.NewDispatcher(e.store,
		action.WithRunner(runner),
		action.WithPublisher(publisher),
		action.WithLogger(e.logger),
	)
	return engine.New(e.store, dispatcher,
		engine.WithMaxDepth(e.cfg.Invalidation.MaxDepth),
		engine.WithLogger(e.logger),
	), nil
}

func (e *env) publisher() (action.Publisher, error) {
	if e.opts.Publisher != nil {
		return e.opts.Publisher, nil
	}

	events := e.cfg.Actions.Events
	switch events.Backend {
	case "redis":
		p, err := action.NewRedisPublisher(action.RedisOptions{
			Addr:        events.Redis.Addr,
			Password:    events.Redis.Password,
			DB:          events.Redis.DB,
			Channel:     events.Redis.Channel,
			DialTimeout: redisDialTimeout,
		})
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, p.Close)
		e.logger.Debug("publishing events to redis", "addr", events.Redis.Addr, "channel", p.Channel())
		return p, nil
	default:
		return action.LogPublisher{Logger: e.logger}, nil
	}
}

// parseID parses a record id argument.
func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, model.NewInvalidArgument(fmt.Sprintf("invalid record id %q", s))
	}
	return id, nil
}
