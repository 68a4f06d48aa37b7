package core

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"reflect"
	"syscall"

	"github.com/encodeous/tint"
	slogmulti "github.com/samber/slog-multi"

	"github.com/netlayer/igmphost/igmp"
	"github.com/netlayer/igmphost/netio"
	"github.com/netlayer/igmphost/state"
)

// Bootstrap manages the lifetime of the whole daemon: it reads and
// validates the config, then runs Start until shutdown.
func Bootstrap(configPath, logPath string, verbose bool) error {
	cfg, err := state.ReadConfig(configPath)
	if err != nil {
		return err
	}
	if logPath != "" {
		cfg.LogPath = logPath
	}
	if err := state.ConfigValidator(cfg); err != nil {
		return err
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return Start(*cfg, level)
}

func buildLogger(cfg state.Config, logLevel slog.Level) (*slog.Logger, error) {
	handlers := make([]slog.Handler, 0)
	handlers = append(handlers,
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:        logLevel,
			AddSource:    false,
			CustomPrefix: "igmphost",
		}))

	if cfg.LogPath != "" {
		err := os.MkdirAll(path.Dir(cfg.LogPath), 0700)
		if err != nil {
			return nil, err
		}
		f, err := os.OpenFile(cfg.LogPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0700)
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{Level: logLevel}))
	}

	return slog.New(slogmulti.Fanout(handlers...)), nil
}

// Start runs the daemon until a shutdown signal or a fatal error.
func Start(cfg state.Config, logLevel slog.Level) error {
	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(context.Canceled)

	logger, err := buildLogger(cfg, logLevel)
	if err != nil {
		return err
	}

	s := state.State{
		Modules: make(map[string]state.Module),
		Env: &state.Env{
			Context: ctx,
			Cancel:  cancel,
			Log:     logger,
			Cfg:     cfg,
			Engine:  igmp.New(igmp.Options{Log: logger}),
			Links:   make(map[string]*netio.Link),
		},
	}

	s.Log.Info("init modules")
	if err := initModules(&s); err != nil {
		Stop(&s)
		return err
	}
	s.Log.Info("igmphost is running. To gracefully exit, send SIGINT or Ctrl+C.")

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-c:
			s.Cancel(errors.New("received shutdown signal"))
		case <-ctx.Done():
		}
	}()

	<-ctx.Done()
	s.Log.Info("shutting down", "reason", context.Cause(ctx).Error())
	Stop(&s)
	return nil
}

func initModules(s *state.State) error {
	var modules []state.Module
	modules = append(modules, &Membership{})
	modules = append(modules, &Control{})

	for _, module := range modules {
		s.Modules[reflect.TypeOf(module).String()] = module
		if err := module.Init(s); err != nil {
			return err
		}
	}
	return nil
}

func Stop(s *state.State) {
	s.Log.Info("cleaning up modules")
	for moduleName, module := range s.Modules {
		if err := module.Cleanup(s); err != nil {
			s.Log.Error("error occurred during Stop: ", "module", moduleName, "error", err)
		}
	}
	s.Engine.Close()
	s.Log.Info("stopped")
}
