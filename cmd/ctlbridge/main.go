// Command ctlbridge bridges control-surface devices and a host application.
//
// Usage:
//
//	ctlbridge [flags]
//	ctlbridge --LRSHUTDOWN
//
// Flags:
//
//	-config string   Configuration file (default: config.yaml in the data directory)
//	-console         Run the interactive console front end
//
// Started with --LRSHUTDOWN, ctlbridge asks a running instance to quit, or
// exits at once if none is running. A second ordinary start hands its
// arguments to the running instance and exits.
//
// Configuration is read from config.yaml and CTLBRIDGE_* environment
// variables, e.g. CTLBRIDGE_REMOTE_SEND_PORT=58763.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/ctlbridge/ctlbridge-go/cmd/ctlbridge/console"
	"github.com/ctlbridge/ctlbridge-go/pkg/config"
	"github.com/ctlbridge/ctlbridge-go/pkg/crash"
	"github.com/ctlbridge/ctlbridge-go/pkg/device"
	"github.com/ctlbridge/ctlbridge-go/pkg/i18n"
	"github.com/ctlbridge/ctlbridge-go/pkg/instance"
	"github.com/ctlbridge/ctlbridge-go/pkg/log"
	"github.com/ctlbridge/ctlbridge-go/pkg/service"
)

// Virtual port names used by the console.
const (
	virtualInput  = "virtual-in"
	virtualOutput = "virtual-out"
	portBuffer    = 64
)

const forwardTimeout = 3 * time.Second

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	// The crash handler is installed before anything else can fail.
	handler := crash.NewHandler(crash.Options{})
	if err := crash.Install(handler); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer handler.Recover()

	// The shutdown token is not a flag and skips flag parsing.
	var configPath string
	var consoleFlag bool
	if !instance.IsShutdown(args) {
		fs := flag.NewFlagSet("ctlbridge", flag.ContinueOnError)
		fs.StringVar(&configPath, "config", "", "Configuration file path")
		fs.BoolVar(&consoleFlag, "console", false, "Run the interactive console front end")
		if err := fs.Parse(args); err != nil {
			return 2
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if consoleFlag {
		cfg.Console = true
	}

	appLog, err := log.OpenAppLog(log.AppLogConfig{
		Path:       cfg.LogPath(),
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		Level:      cfg.Log.Level,
		Console:    !cfg.Console,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open log: %v\n", err)
		return 1
	}
	defer appLog.Close()
	logger := appLog.Logger()
	slog.SetDefault(logger)
	handler.SetLogger(logger)

	if cfg.File != "" {
		logger.Info("configuration loaded", "file", cfg.File)
	}

	// A running instance takes over our arguments.
	guard, err := instance.Acquire(cfg.Instance.Address, logger)
	if errors.Is(err, instance.ErrAlreadyRunning) {
		ctx, cancel := context.WithTimeout(context.Background(), forwardTimeout)
		defer cancel()
		if err := instance.Forward(ctx, cfg.Instance.Address, args); err != nil {
			logger.Error("forward to running instance failed", "error", err)
			return 1
		}
		logger.Info("arguments handed to running instance")
		return 0
	}
	if err != nil {
		logger.Error("instance guard unavailable", "error", err)
		return 1
	}
	defer guard.Close()

	sessionID := uuid.New().String()
	opts := []service.Option{service.WithCrashHandler(handler)}

	if cfg.TraceFile != "" {
		trace, err := log.NewFileLogger(cfg.TraceFile)
		if err != nil {
			logger.Warn("trace file unavailable", "path", cfg.TraceFile, "error", err)
		} else {
			defer trace.Close()
			var sink log.Logger = trace
			if cfg.Log.Level == "debug" {
				sink = log.Tee(trace, log.NewSlogAdapter(logger))
			}
			opts = append(opts, service.WithTrace(sink, sessionID))
		}
	}

	if cfg.Console {
		devices, in, out, err := virtualDevices()
		if err != nil {
			logger.Error("virtual ports unavailable", "error", err)
			return 1
		}
		opts = append(opts,
			service.WithDevices(devices),
			service.WithFrontEnd(console.Factory(console.Options{Input: in, Feedback: out})),
		)
	}

	svc, err := service.New(service.ConfigFrom(cfg, logger), opts...)
	if err != nil {
		logger.Error("service construction failed", "error", err)
		return 1
	}

	guard.SetPanicHandler(handler.Terminate)
	if err := guard.Serve(svc.AnotherInstanceStarted); err != nil {
		logger.Warn("instance forwarding disabled", "error", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		defer handler.Recover()
		for sig := range sigCh {
			logger.Info("signal received", "signal", sig.String())
			svc.RequestQuit()
		}
	}()

	ctx := context.Background()
	if err := svc.Initialise(ctx, args); err != nil {
		logger.Error("startup failed", "error", err)
		catalog, _ := i18n.Load(cfg.Language)
		fmt.Fprintf(os.Stderr, "%s\n%v\n", catalog.T("startup failed"), err)
		if serr := svc.Shutdown(); serr != nil {
			logger.Warn("shutdown after failed startup", "error", serr)
		}
		return 1
	}

	if err := svc.Run(ctx); err != nil {
		logger.Warn("dispatch loop ended", "error", err)
	}

	if err := svc.Shutdown(); err != nil {
		logger.Warn("shutdown completed with errors", "error", err)
	}
	logger.Info("exited")
	return 0
}

// virtualDevices registers the console's loopback ports. Messages typed at
// the console enter through the input; messages sent to the device come out
// of the output.
func virtualDevices() (*device.Registry, *device.VirtualPort, *device.VirtualPort, error) {
	reg := device.NewRegistry()
	in := device.NewVirtualPort(virtualInput, portBuffer)
	out := device.NewVirtualPort(virtualOutput, portBuffer)
	if err := reg.AddInput(in); err != nil {
		return nil, nil, nil, err
	}
	if err := reg.AddOutput(out); err != nil {
		return nil, nil, nil, err
	}
	return reg, in, out, nil
}
