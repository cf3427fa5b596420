// Command subgrids runs the subgrid engine next to a tabletop host and
// talks to it over a WebSocket.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/subgrids/extension/internal/cache"
	"github.com/subgrids/extension/internal/config"
	"github.com/subgrids/extension/internal/dispatcher"
	"github.com/subgrids/extension/internal/handlers"
	"github.com/subgrids/extension/internal/hostbridge"
	"github.com/subgrids/extension/internal/influx"
	"github.com/subgrids/extension/internal/logging"
	"github.com/subgrids/extension/internal/manager"
	"github.com/subgrids/extension/internal/monitor"
	intOtel "github.com/subgrids/extension/internal/otel"
	"github.com/subgrids/extension/internal/session"
	"github.com/subgrids/extension/internal/storage"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentExtensionVersion string = "0.0.1"
	BuildDate               string = "unknown"

	ExtensionName string = "subgrids"
)

const eventLaneSize = 1024

// app holds everything one run wires together.
type app struct {
	logs    *logging.SlogManager
	logger  *slog.Logger
	logFile *os.File
	files   logging.Files
	otel    *intOtel.Provider

	session *session.Context
	scene   *cache.SceneCache
	bridge  *hostbridge.Bridge
	store   storage.Backend
	influx  *influx.Manager
	manager *manager.Manager
	events  *dispatcher.Dispatcher
	monitor *monitor.Service
}

func main() {
	configDir := "."
	args := os.Args[1:]
	command := ""
	if len(args) > 0 {
		if isCommand(args[0]) {
			command, args = strings.ToLower(args[0]), args[1:]
		} else {
			configDir = args[0]
		}
	}

	a := &app{session: session.NewContext(), scene: cache.NewSceneCache()}
	a.setupLogging(configDir)
	defer a.shutdown()

	if command != "" {
		if err := runCommand(a, command, args); err != nil {
			a.logger.Error("command failed", "command", command, "error", err)
			a.shutdown()
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.run(ctx); err != nil {
		a.logger.Error("subgrids stopped", "error", err)
		stop()
		a.shutdown()
		os.Exit(1)
	}
}

// setupLogging loads config and builds the loggers: console first, then
// the session log file plus OTel once config is known.
func (a *app) setupLogging(configDir string) {
	a.logs = logging.NewSlogManager()
	a.logs.Setup(nil, "info", nil)
	a.logger = a.logs.Logger()

	if err := config.Load(configDir); err != nil {
		a.logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		a.logger.Info("Loaded config")
		config.Watch(func(level string) {
			a.logs.SetLevel(level)
			a.logs.Logger().Info("Config changed, log level reloaded", "level", level)
		})
	}

	a.files = logging.NewFiles(viper.GetString("logsDir"), ExtensionName, time.Now())
	if err := a.files.Ensure(); err != nil {
		a.logger.Error("Failed to create logs directory", "error", err)
	}
	logPath := a.files.Log()
	var err error
	a.logFile, err = os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		a.logger.Error("Failed to create/open log file!", "error", err, "path", logPath)
	}

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		var w io.Writer
		if a.logFile != nil {
			w = a.logFile
		}
		a.otel, err = intOtel.New(intOtel.Config{
			Enabled:        otelCfg.Enabled,
			ServiceName:    otelCfg.ServiceName,
			ServiceVersion: CurrentExtensionVersion,
			BatchTimeout:   otelCfg.BatchTimeout,
			MetricInterval: otelCfg.MetricInterval,
			LogWriter:      w,
			Endpoint:       otelCfg.Endpoint,
			Insecure:       otelCfg.Insecure,
		})
		if err != nil {
			a.logger.Error("Failed to initialize OTel provider", "error", err)
		}
	}

	var otelLogProvider *sdklog.LoggerProvider
	if a.otel != nil {
		otelLogProvider = a.otel.LoggerProvider()
	}
	a.logs.SetContextProvider(func() []slog.Attr {
		scene := a.session.Scene()
		return []slog.Attr{
			slog.String("scene", scene.ID),
			slog.Bool("authoritative", scene.Authoritative),
		}
	})
	var file io.Writer
	if a.logFile != nil {
		file = a.logFile
	}
	a.logs.Setup(file, viper.GetString("logLevel"), otelLogProvider)
	a.logger = a.logs.Logger()
	a.logger.Info("Logging to file", "path", logPath, "version", CurrentExtensionVersion, "build", BuildDate)
}

// openStore builds the configured flag store. The host type is only
// available once the bridge exists.
func (a *app) openStore() error {
	cfg := config.GetStorageConfig()
	var err error
	if a.bridge != nil {
		a.store, err = storage.NewBackend(cfg, a.bridge.Flags(), a.logs.Component("storage"))
	} else {
		a.store, err = storage.NewBackend(cfg, nil, a.logs.Component("storage"))
	}
	if err != nil {
		return fmt.Errorf("creating %s storage: %w", cfg.Type, err)
	}
	if err := a.store.Init(); err != nil {
		return fmt.Errorf("initializing %s storage: %w", cfg.Type, err)
	}
	a.logger.Info("Storage backend initialized", "type", cfg.Type)
	return nil
}

func (a *app) run(ctx context.Context) error {
	bridgeCfg := config.GetBridgeConfig()
	a.bridge = hostbridge.New(hostbridge.Config{
		URL:        bridgeCfg.URL,
		Secret:     bridgeCfg.Secret,
		AckTimeout: bridgeCfg.AckTimeout,
		Name:       ExtensionName,
		Version:    CurrentExtensionVersion,
	}, a.scene, a.logs.Component("bridge"))

	if err := a.openStore(); err != nil {
		return err
	}

	var recorder manager.Recorder
	if viper.GetBool("influx.enabled") {
		backup := a.files.InfluxBackup()
		zl := logging.NewZerolog(a.logWriter(), viper.GetString("logLevel"))
		a.influx = influx.NewManager(zl, backup)
		if err := a.influx.Connect(ctx); err != nil {
			a.logger.Warn("InfluxDB unavailable, pull telemetry disabled", "error", err)
			a.influx = nil
		} else {
			recorder = a.influx
		}
	}

	var err error
	a.manager, err = manager.New(manager.Config{
		Scene:    a.scene,
		Writer:   a.bridge,
		Store:    a.store,
		Session:  a.session,
		Members:  cache.NewMembershipCache(),
		Renderer: a.bridge.Renderer(viper.GetString("grid.color"), viper.GetFloat64("grid.alpha")),
		Recorder: recorder,
		Logger:   a.logs.Component("manager"),
	})
	if err != nil {
		return fmt.Errorf("creating subgrid manager: %w", err)
	}

	a.events, err = dispatcher.New(logging.NewDispatcherLogger(logging.NewZerolog(a.logWriter(), viper.GetString("logLevel"))))
	if err != nil {
		return fmt.Errorf("creating dispatcher: %w", err)
	}
	handlers.NewService(handlers.Dependencies{
		Context: ctx,
		Scene:   a.scene,
		Manager: a.manager,
		Logger:  a.logs.Component("handlers"),
	}).Register(a.events, dispatcher.InLane(handlers.Lane, eventLaneSize), dispatcher.Logged())

	if err := a.bridge.Connect(a.events); err != nil {
		return fmt.Errorf("connecting to host: %w", err)
	}
	a.logger.Info("Connected to host", "url", bridgeCfg.URL)

	if viper.GetBool("monitor.enabled") {
		a.monitor = monitor.NewService(monitor.Dependencies{
			Dispatcher: a.events,
			Logger:     a.logs.Component("monitor"),
			StatusPath: a.files.Status(),
			Interval:   viper.GetDuration("monitor.interval"),
		})
		if err := a.monitor.Start(); err != nil {
			a.logger.Warn("Status monitor not started", "error", err)
		}
	}

	<-ctx.Done()
	a.logger.Info("Shutting down")
	return nil
}

func (a *app) logWriter() io.Writer {
	if a.logFile != nil {
		return a.logFile
	}
	return os.Stdout
}

func (a *app) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if a.monitor != nil {
		a.monitor.Stop()
	}
	if a.bridge != nil {
		if err := a.bridge.Close(); err != nil {
			a.logger.Warn("closing host bridge", "error", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("closing storage", "error", err)
		}
	}
	if a.influx != nil {
		if err := a.influx.Close(); err != nil {
			a.logger.Warn("closing influx", "error", err)
		}
	}
	if err := a.logs.Flush(ctx); err != nil {
		a.logger.Warn("flushing logs", "error", err)
	}
	if a.otel != nil {
		_ = a.otel.Shutdown(ctx)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
}
