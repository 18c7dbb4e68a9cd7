package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ctlbridge/ctlbridge-go/pkg/commands"
	"github.com/ctlbridge/ctlbridge-go/pkg/controls"
	"github.com/ctlbridge/ctlbridge-go/pkg/crash"
	"github.com/ctlbridge/ctlbridge-go/pkg/device"
	"github.com/ctlbridge/ctlbridge-go/pkg/diagnostics"
	"github.com/ctlbridge/ctlbridge-go/pkg/executor"
	"github.com/ctlbridge/ctlbridge-go/pkg/i18n"
	"github.com/ctlbridge/ctlbridge-go/pkg/instance"
	"github.com/ctlbridge/ctlbridge-go/pkg/lifecycle"
	"github.com/ctlbridge/ctlbridge-go/pkg/log"
	"github.com/ctlbridge/ctlbridge-go/pkg/persistence"
	"github.com/ctlbridge/ctlbridge-go/pkg/profile"
	"github.com/ctlbridge/ctlbridge-go/pkg/remote"
	"github.com/ctlbridge/ctlbridge-go/pkg/settings"
	"github.com/ctlbridge/ctlbridge-go/pkg/version"
)

const uiQueueSize = 256

// Service is the lifecycle orchestrator. Construct it once per process.
type Service struct {
	cfg       Config
	logger    *slog.Logger
	trace     log.Tracer
	sessionID string
	crash     *crash.Handler
	catalog   *i18n.Catalog
	registry  *prometheus.Registry

	// Components in construction order.
	exec      *executor.Context
	devices   *device.Registry
	commands  *commands.Set
	controls  *controls.Model
	profile   *profile.Profile
	sender    *device.Sender
	receiver  *device.Receiver
	remoteOut *remote.Out
	profiles  *profile.Manager
	remoteIn  *remote.In
	settings  *settings.Manager
	checker   *version.Checker
	diag      *diagnostics.Server
	autosave  *autosaver

	seq             *lifecycle.Sequence
	settingsFile    *persistence.XMLFile
	defaultProfile  *persistence.XMLFile
	runState        *persistence.RunStateStore
	frontEndFactory FrontEndFactory

	mu        sync.Mutex
	state     State
	frontEnd  FrontEnd
	wired     bool
	startedAt time.Time

	ui           chan func()
	quitReq      chan struct{}
	quitCh       chan struct{}
	quitOnce     sync.Once
	confirmOnce  sync.Once
	initOnce     sync.Once
	shutdownOnce sync.Once
	shutdownErr  error
}

// New constructs every component in dependency order. Nothing runs until
// Initialise.
func New(cfg Config, opts ...Option) (*Service, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Workers < 1 {
		cfg.Workers = executor.DefaultWorkers
	}

	s := &Service{
		cfg:             cfg,
		logger:          logger.With("component", "service"),
		sessionID:       o.sessionID,
		crash:           o.crash,
		registry:        o.registry,
		devices:         o.devices,
		frontEndFactory: o.frontEnd,
		settingsFile:    persistence.NewXMLFile(filepath.Join(cfg.DataDir, persistence.SettingsFileName)),
		defaultProfile:  persistence.NewXMLFile(filepath.Join(cfg.DataDir, persistence.DefaultProfileFileName)),
		runState:        persistence.NewRunStateStore(filepath.Join(cfg.DataDir, persistence.RunStateFileName)),
		ui:              make(chan func(), uiQueueSize),
		quitReq:         make(chan struct{}, 1),
		quitCh:          make(chan struct{}),
	}
	if s.sessionID == "" {
		s.sessionID = uuid.NewString()
	}
	s.trace = log.NewTracer(o.trace, s.sessionID, "service")
	if s.crash == nil {
		s.crash = crash.Installed()
	}
	if s.crash == nil {
		s.crash = crash.NewHandler(crash.Options{Logger: logger})
	}
	if s.registry == nil {
		s.registry = diagnostics.NewRegistry()
	}
	if s.devices == nil {
		s.devices = device.NewRegistry()
	}

	// Resource loading falls back to English; the failure is only logged.
	catalog, err := i18n.Load(cfg.Language)
	if err != nil {
		s.logger.Warn("translation not available, using fallback", "language", cfg.Language, "error", err)
	}
	s.catalog = catalog
	s.crash.SetTranslator(catalog.T)

	if err := s.construct(logger, o.trace); err != nil {
		return nil, err
	}
	if err := s.buildSequence(o.hooks); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) construct(logger *slog.Logger, trace log.Logger) error {
	s.exec = executor.New(
		executor.WithLogger(logger),
		executor.WithMetrics(s.registry),
		executor.WithPanicHandler(s.crash.Terminate),
	)

	cmds, err := commands.Default()
	if err != nil {
		return fmt.Errorf("load command set: %w", err)
	}
	s.commands = cmds
	s.controls = controls.New()
	s.profile = profile.New()

	s.sender = device.NewSender(device.SenderConfig{
		Registry: s.devices, Executor: s.exec, Logger: logger, Trace: trace, SessionID: s.sessionID,
	})
	s.receiver = device.NewReceiver(device.ReceiverConfig{
		Registry: s.devices, Executor: s.exec, Logger: logger, Trace: trace, SessionID: s.sessionID,
		PanicHandler: s.crash.Terminate,
	})
	s.remoteOut = remote.NewOut(remote.OutConfig{
		Address:   s.cfg.SendAddress,
		Profile:   s.profile,
		Controls:  s.controls,
		Receiver:  s.receiver,
		Executor:  s.exec,
		Logger:    logger,
		Trace:     trace,
		SessionID: s.sessionID,

		PanicHandler: s.crash.Terminate,
	})
	s.profiles = profile.NewManager(profile.ManagerConfig{
		Profile: s.profile,
		Remote:  s.remoteOut,
		Logger:  logger,
	})
	s.remoteIn = remote.NewIn(remote.InConfig{
		Address:   s.cfg.ReceiveAddress,
		Profile:   s.profile,
		Controls:  s.controls,
		Sender:    s.sender,
		Profiles:  s.profiles,
		Executor:  s.exec,
		Quit:      s.RequestQuit,
		Logger:    logger,
		Trace:     trace,
		SessionID: s.sessionID,

		PanicHandler: s.crash.Terminate,
	})
	s.settings = settings.NewManager(settings.Config{
		Path:                    filepath.Join(s.cfg.DataDir, settings.FileName),
		DefaultProfileDirectory: s.cfg.ProfileDirectory,
		Profiles:                s.profiles,
		Remote:                  s.remoteOut,
		Logger:                  logger,
	})
	s.remoteOut.OnConnection("profile-manager", s.profiles.HandleConnection)
	s.remoteOut.OnConnection("settings", s.settings.HandleConnection)

	s.checker, err = version.NewChecker(version.CheckerConfig{
		URL:         s.cfg.VersionURL,
		Delay:       s.cfg.VersionCheckDelay,
		MaxAttempts: s.cfg.VersionMaxAttempts,
		Executor:    s.exec,
		Recorder:    s.settings,
		Logger:      logger,

		PanicHandler: s.crash.Terminate,
	})
	if err != nil {
		return fmt.Errorf("version checker: %w", err)
	}
	s.checker.OnNewVersion(s.announceVersion)

	if s.cfg.DiagnosticsAddress != "" {
		s.diag = diagnostics.New(diagnostics.Config{
			Address:  s.cfg.DiagnosticsAddress,
			Registry: s.registry,
			Logger:   logger,

			PanicHandler: s.crash.Terminate,
		})
		s.diag.AddReadinessCheck("executor", diagnostics.RunningCheck("executor", s.exec.Running))
		s.diag.AddReadinessCheck("service", diagnostics.RunningCheck("service", func() bool {
			return s.State() == StateRunning
		}))
	}
	s.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: diagnostics.Namespace,
		Subsystem: "remote",
		Name:      "connected",
		Help:      "1 while the host application is connected.",
	}, func() float64 {
		if s.remoteOut.Connected() {
			return 1
		}
		return 0
	}))

	s.autosave = newAutosaver(s.cfg.Autosave, s.exec, s.SaveDefaultProfile, logger, s.crash.Terminate)
	return nil
}

// buildSequence fixes the start and stop orders. Inbound remote traffic is
// accepted only after the device transport is ready; callback sources stop
// before their targets.
func (s *Service) buildSequence(extra lifecycle.Hooks) error {
	s.seq = lifecycle.NewSequence(s.logger)
	s.seq.SetHooks(lifecycle.Hooks{
		OnStart: func(name string) {
			s.traceComponent(name, "STOPPED", "STARTED", "")
			if extra.OnStart != nil {
				extra.OnStart(name)
			}
		},
		OnStop: func(name string, err error) {
			reason := ""
			if err != nil {
				reason = err.Error()
			}
			s.traceComponent(name, "STARTED", "STOPPED", reason)
			if extra.OnStop != nil {
				extra.OnStop(name, err)
			}
		},
	})

	type participant struct {
		name string
		comp lifecycle.Component
	}
	start := []participant{
		{ComponentDeviceReceiver, s.receiver},
		{ComponentDeviceSender, s.sender},
		{ComponentRemoteOut, s.remoteOut},
		{ComponentRemoteIn, s.remoteIn},
		{ComponentVersionChecker, s.checker},
	}
	if s.diag != nil {
		start = append(start, participant{ComponentDiagnostics, s.diag})
	}
	start = append(start, participant{ComponentAutosave, s.autosave})

	for _, p := range start {
		if err := s.seq.Add(p.name, p.comp); err != nil {
			return err
		}
	}

	stop := []string{
		ComponentDeviceReceiver,
		ComponentRemoteIn,
		ComponentRemoteOut,
		ComponentVersionChecker,
		ComponentDeviceSender,
	}
	if s.diag != nil {
		stop = append(stop, ComponentDiagnostics)
	}
	stop = append(stop, ComponentAutosave)
	return s.seq.SetStopOrder(stop...)
}

// Initialise runs startup. args are the command-line arguments; the shutdown
// token skips startup and quits at once. On error the caller still runs
// Shutdown.
func (s *Service) Initialise(ctx context.Context, args []string) error {
	err := ErrAlreadyInitialised
	s.initOnce.Do(func() { err = s.initialise(ctx, args) })
	return err
}

func (s *Service) initialise(ctx context.Context, args []string) error {
	if instance.IsShutdown(args) {
		s.logger.Info("shutdown token received, quitting without startup")
		s.quit()
		return nil
	}

	if err := s.exec.Start(s.cfg.Workers); err != nil {
		return fmt.Errorf("%w: %w", ErrStartup, err)
	}
	s.setState(StateContextRunning)

	if err := s.LoadControlsModel(); err != nil {
		return fmt.Errorf("%w: %w", ErrStartup, err)
	}
	if err := s.settings.Load(); err != nil {
		s.logger.Warn("preferences not loaded, using defaults", "error", err)
	}
	s.loadDefaultProfile()
	s.checkPreviousRun()

	s.mu.Lock()
	s.wired = true
	s.mu.Unlock()
	s.setState(StateComponentsWired)

	// The front end registers its callbacks before any component can
	// deliver an event.
	if s.frontEndFactory != nil {
		fe, err := s.frontEndFactory(s.frontEndDeps())
		if err != nil {
			return fmt.Errorf("%w: front end: %w", ErrStartup, err)
		}
		s.mu.Lock()
		s.frontEnd = fe
		s.mu.Unlock()
		s.crash.SetAlerter(fe.Alert)
	}
	s.receiver.AddCallback("profile-manager", s.profiles.HandleDevice)

	if err := s.seq.StartAll(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrStartup, err)
	}
	s.setState(StateComponentsStarted)

	s.mu.Lock()
	s.startedAt = time.Now()
	s.mu.Unlock()
	s.saveRunState(false)
	s.setState(StateRunning)
	return nil
}

func (s *Service) frontEndDeps() FrontEndDeps {
	return FrontEndDeps{
		Commands:           s.commands,
		Profile:            s.profile,
		Profiles:           s.profiles,
		Settings:           s.settings,
		Controls:           s.controls,
		RemoteOut:          s.remoteOut,
		Receiver:           s.receiver,
		Sender:             s.sender,
		Devices:            s.devices,
		Translate:          s.catalog.T,
		PostUI:             s.PostUI,
		Quit:               s.RequestQuit,
		SaveDefaultProfile: s.SaveDefaultProfile,
		PanicHandler:       s.crash.Terminate,
		Logger:             s.logger,
	}
}

// Run is the UI dispatch loop. It executes PostUI functions on the calling
// goroutine until quit. A panic in a function is fatal.
func (s *Service) Run(ctx context.Context) error {
	for {
		select {
		case <-s.quitCh:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-s.quitReq:
			s.dispatch(s.confirmQuit)
		case fn := <-s.ui:
			s.dispatch(fn)
		}
	}
}

func (s *Service) dispatch(fn func()) {
	defer s.crash.RecoverDispatch()
	fn()
}

// PostUI queues fn for the dispatch loop. It blocks while the queue is full,
// so functions already on the loop must not post more than the queue holds.
func (s *Service) PostUI(fn func()) error {
	select {
	case <-s.quitCh:
		return ErrQuitting
	default:
	}
	select {
	case s.ui <- fn:
		return nil
	case <-s.quitCh:
		return ErrQuitting
	}
}

// RequestQuit asks the application to quit. The first request checks for
// unsaved profile changes on the dispatch loop and may prompt; later
// requests do nothing. It never blocks, so it is safe from the loop itself.
func (s *Service) RequestQuit() {
	if s.Quitting() {
		return
	}
	select {
	case s.quitReq <- struct{}{}:
	default:
		// One request is already pending.
	}
}

func (s *Service) confirmQuit() {
	s.confirmOnce.Do(func() {
		fe := s.currentFrontEnd()
		if fe != nil && s.profile.Unsaved() {
			if fe.Confirm(s.catalog.T("profiles title"), s.catalog.T("profile changed")) {
				if err := fe.SaveProfile(); err != nil {
					s.logger.Warn("profile save failed", "error", err)
				}
			}
		}
		s.quit()
	})
}

func (s *Service) quit() {
	s.quitOnce.Do(func() {
		s.logger.Debug("quit requested")
		close(s.quitCh)
	})
}

// Quitting reports whether quit has been requested.
func (s *Service) Quitting() bool {
	select {
	case <-s.quitCh:
		return true
	default:
		return false
	}
}

// AnotherInstanceStarted handles arguments forwarded by a second process.
// Only the shutdown token has an effect.
func (s *Service) AnotherInstanceStarted(args []string) {
	if instance.IsShutdown(args) {
		s.logger.Info("shutdown requested by another instance")
		s.RequestQuit()
	}
}

// Shutdown stops every started component, then the execution context, then
// persists state. State is only written when startup got as far as loading
// it. Safe to call once Initialise returned, whatever its result.
func (s *Service) Shutdown() error {
	s.shutdownOnce.Do(func() { s.shutdownErr = s.shutdown() })
	return s.shutdownErr
}

func (s *Service) shutdown() error {
	s.setState(StateStopping)

	var errs []error
	if err := s.seq.StopAll(); err != nil {
		errs = append(errs, err)
	}
	s.exec.Stop()
	s.exec.Join()
	s.logger.Debug("execution context joined", "stats", fmt.Sprintf("%+v", s.exec.Stats()))

	s.mu.Lock()
	wired := s.wired
	fe := s.frontEnd
	s.mu.Unlock()

	if wired {
		_ = s.SaveDefaultProfile()
		if err := s.SaveControlsModel(); err != nil {
			errs = append(errs, err)
		}
		s.saveRunState(true)
	}
	if fe != nil {
		if err := fe.Close(); err != nil {
			s.logger.Warn("front end close failed", "error", err)
		}
	}

	s.setState(StateStopped)
	return errors.Join(errs...)
}

// State returns the current orchestrator state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SessionID identifies this run in logs and traces.
func (s *Service) SessionID() string {
	return s.sessionID
}

// Executor returns the shared execution context.
func (s *Service) Executor() *executor.Context {
	return s.exec
}

// Controls returns the controls model.
func (s *Service) Controls() *controls.Model {
	return s.controls
}

// Profile returns the active profile.
func (s *Service) Profile() *profile.Profile {
	return s.profile
}

func (s *Service) currentFrontEnd() FrontEnd {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frontEnd
}

func (s *Service) setState(next State) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.mu.Unlock()

	s.logger.Info("service state", "from", prev.String(), "to", next.String())
	s.trace.Emit(log.Event{
		Layer:    log.LayerLifecycle,
		Category: log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityService,
			OldState: prev.String(),
			NewState: next.String(),
		},
	})
}

func (s *Service) traceComponent(name, oldState, newState, reason string) {
	s.trace.Emit(log.Event{
		Layer:    log.LayerLifecycle,
		Category: log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityComponent,
			Name:     name,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

func (s *Service) announceVersion(v version.Version) {
	err := s.PostUI(func() {
		if fe := s.currentFrontEnd(); fe != nil {
			fe.Alert(fmt.Sprintf("%s %s", s.catalog.T("new version"), v.String()))
		}
	})
	if err != nil {
		s.logger.Debug("version notice dropped", "error", err)
	}
}
