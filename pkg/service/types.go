package service

import (
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ctlbridge/ctlbridge-go/pkg/config"
	"github.com/ctlbridge/ctlbridge-go/pkg/crash"
	"github.com/ctlbridge/ctlbridge-go/pkg/device"
	"github.com/ctlbridge/ctlbridge-go/pkg/lifecycle"
	"github.com/ctlbridge/ctlbridge-go/pkg/log"
)

// Service errors.
var (
	ErrAlreadyInitialised = errors.New("service already initialised")
	ErrStartup            = errors.New("startup failed")
	ErrQuitting           = errors.New("service is quitting")
)

// Component names in start order.
const (
	ComponentDeviceReceiver = "device-receiver"
	ComponentDeviceSender   = "device-sender"
	ComponentRemoteOut      = "remote-out"
	ComponentRemoteIn       = "remote-in"
	ComponentVersionChecker = "version-checker"
	ComponentDiagnostics    = "diagnostics"
	ComponentAutosave       = "autosave"
)

// State is the orchestrator state.
type State uint8

const (
	StateConstructed State = iota
	StateContextRunning
	StateComponentsWired
	StateComponentsStarted
	StateRunning
	StateStopping
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateConstructed:
		return "CONSTRUCTED"
	case StateContextRunning:
		return "CONTEXT_RUNNING"
	case StateComponentsWired:
		return "COMPONENTS_WIRED"
	case StateComponentsStarted:
		return "COMPONENTS_STARTED"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Config configures a Service.
type Config struct {
	// DataDir holds settings.xml, default.xml, preferences and run state.
	DataDir string

	// Workers is the number of execution context workers.
	Workers int

	// Language selects the translation catalogue.
	Language string

	// SendAddress and ReceiveAddress locate the host plugin sockets.
	SendAddress    string
	ReceiveAddress string

	// ProfileDirectory is used until preferences name another one.
	ProfileDirectory string

	// VersionURL enables the update check. Empty disables it.
	VersionURL         string
	VersionCheckDelay  time.Duration
	VersionMaxAttempts int

	// DiagnosticsAddress enables the metrics and health endpoint.
	DiagnosticsAddress string

	// Autosave is the default profile save interval. Zero disables it.
	Autosave time.Duration

	// Logger is the operational logger. Nil means slog.Default().
	Logger *slog.Logger
}

// ConfigFrom maps the process configuration onto a service Config.
func ConfigFrom(c config.Config, logger *slog.Logger) Config {
	return Config{
		DataDir:            c.DataDir,
		Workers:            c.Workers,
		Language:           c.Language,
		SendAddress:        c.SendAddress(),
		ReceiveAddress:     c.ReceiveAddress(),
		ProfileDirectory:   c.ProfileDirectory(),
		VersionURL:         c.Version.URL,
		VersionCheckDelay:  c.Version.CheckDelay,
		VersionMaxAttempts: c.Version.MaxAttempts,
		DiagnosticsAddress: c.Diagnostics.Address,
		Autosave:           c.Profile.Autosave,
		Logger:             logger,
	}
}

// Option adjusts a Service under construction.
type Option func(*options)

type options struct {
	frontEnd  FrontEndFactory
	devices   *device.Registry
	crash     *crash.Handler
	registry  *prometheus.Registry
	trace     log.Logger
	sessionID string
	hooks     lifecycle.Hooks
}

// WithFrontEnd sets the front end factory. Without one the service runs
// headless and never prompts.
func WithFrontEnd(f FrontEndFactory) Option {
	return func(o *options) { o.frontEnd = f }
}

// WithDevices sets the device port registry.
func WithDevices(r *device.Registry) Option {
	return func(o *options) { o.devices = r }
}

// WithCrashHandler sets the fatal-path handler. Without one the installed
// handler is used.
func WithCrashHandler(h *crash.Handler) Option {
	return func(o *options) { o.crash = h }
}

// WithRegistry sets the metrics registry.
func WithRegistry(r *prometheus.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithTrace sets the message trace sink.
func WithTrace(l log.Logger, sessionID string) Option {
	return func(o *options) {
		o.trace = l
		o.sessionID = sessionID
	}
}

// WithLifecycleHooks observes component starts and stops.
func WithLifecycleHooks(h lifecycle.Hooks) Option {
	return func(o *options) { o.hooks = h }
}
