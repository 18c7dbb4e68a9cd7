// Package crash implements the process-fatal termination path.
//
// A Handler is installed once, first thing in main, and stays installed for
// the life of the process. Panics that escape a goroutine boundary or the UI
// dispatch loop are routed to it; it logs what it can and exits with status 1.
// Termination is unconditional: the handler only decides what is logged.
package crash

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
)

// ErrAlreadyInstalled is returned by Install after the first call.
var ErrAlreadyInstalled = errors.New("crash handler already installed")

// ExitCode is the process status used on the fatal path.
const ExitCode = 1

// Options configures a Handler.
type Options struct {
	// Logger receives the termination record. Nil means slog.Default().
	Logger *slog.Logger

	// Alert shows a message to the user. Nil disables alerts.
	Alert func(msg string)

	// Translate localises user-facing text. Nil means identity.
	Translate func(s string) string

	// Exit terminates the process. Nil means os.Exit.
	Exit func(code int)
}

// Handler serialises fatal terminations.
type Handler struct {
	// mu is held from the first log line until exit. It is the only lock on
	// the fatal path.
	mu         sync.Mutex
	terminated bool

	cfgMu     sync.RWMutex
	logger    *slog.Logger
	alert     func(string)
	translate func(string) string
	exit      func(int)

	uncaught atomic.Int64
}

var installed atomic.Pointer[Handler]

// NewHandler creates a handler. It does nothing until Install is called or
// its methods are used directly.
func NewHandler(opts Options) *Handler {
	h := &Handler{
		logger:    opts.Logger,
		alert:     opts.Alert,
		translate: opts.Translate,
		exit:      opts.Exit,
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.translate == nil {
		h.translate = func(s string) string { return s }
	}
	if h.exit == nil {
		h.exit = os.Exit
	}
	return h
}

// Install makes h the process-wide handler. Only the first call succeeds.
func Install(h *Handler) error {
	if !installed.CompareAndSwap(nil, h) {
		return ErrAlreadyInstalled
	}
	return nil
}

// Installed returns the process-wide handler, or nil.
func Installed() *Handler {
	return installed.Load()
}

// SetLogger replaces the logger, typically once the application log is open.
func (h *Handler) SetLogger(logger *slog.Logger) {
	if logger == nil {
		return
	}
	h.cfgMu.Lock()
	defer h.cfgMu.Unlock()
	h.logger = logger
}

// SetAlerter replaces the user alert function. Nil disables alerts.
func (h *Handler) SetAlerter(fn func(string)) {
	h.cfgMu.Lock()
	defer h.cfgMu.Unlock()
	h.alert = fn
}

// SetTranslator replaces the localisation function.
func (h *Handler) SetTranslator(fn func(string) string) {
	if fn == nil {
		return
	}
	h.cfgMu.Lock()
	defer h.cfgMu.Unlock()
	h.translate = fn
}

// Uncaught returns the number of panics that reached the dispatch loop.
func (h *Handler) Uncaught() int64 {
	return h.uncaught.Load()
}

func (h *Handler) config() (*slog.Logger, func(string), func(string) string) {
	h.cfgMu.RLock()
	defer h.cfgMu.RUnlock()
	return h.logger, h.alert, h.translate
}

// Terminate logs reason and exits with ExitCode. Concurrent callers are
// serialised; only the first one logs. A panic while logging is swallowed.
func (h *Handler) Terminate(reason any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.terminated {
		h.terminated = true
		h.logTermination(reason)
	}
	h.exit(ExitCode)
}

func (h *Handler) logTermination(reason any) {
	defer func() { _ = recover() }()

	logger, _, _ := h.config()
	if reason == nil {
		logger.Error("Terminate called, no exception available.")
		return
	}
	if msg, ok := Describe(reason); ok {
		logger.Error(fmt.Sprintf("Terminate called, exception %s.", msg))
		return
	}
	logger.Error("Terminate called, unknown exception type.", "type", fmt.Sprintf("%T", reason))
}

// Recover is deferred at goroutine boundaries. A panic is routed to Terminate.
func (h *Handler) Recover() {
	if r := recover(); r != nil {
		h.Terminate(r)
	}
}

// Guard is deferred first thing in goroutines that components start for
// themselves. A panic is handed to handler, normally Handler.Terminate. With
// a nil handler the panic keeps unwinding.
func Guard(handler func(any)) {
	if handler == nil {
		return
	}
	if r := recover(); r != nil {
		handler(r)
	}
}

// UnhandledException reports a panic that reached the UI dispatch loop, then
// terminates. It does not return in production.
func (h *Handler) UnhandledException(reason any, file string, line int) {
	count := h.uncaught.Add(1)

	func() {
		defer func() {
			if r := recover(); r != nil {
				h.Terminate(r)
			}
		}()

		logger, alert, translate := h.config()
		var userMsg, logMsg string
		if msg, ok := Describe(reason); ok {
			userMsg = fmt.Sprintf("%s %s, %s line %d. Total uncaught %d.",
				translate("unhandled exception"), msg, file, line, count)
			logMsg = fmt.Sprintf("Unhandled exception %s, %s line %d. Total uncaught %d.",
				msg, file, line, count)
		} else {
			userMsg = fmt.Sprintf("%s %s line %d. Total uncaught %d.",
				translate("unhandled exception"), file, line, count)
			logMsg = fmt.Sprintf("Unhandled exception %s line %d. Total uncaught %d.",
				file, line, count)
		}
		logger.Error(logMsg)
		if alert != nil {
			alert(userMsg)
		}
	}()

	h.Terminate(reason)
}

// RecoverDispatch is deferred directly by the UI dispatch loop. It resolves
// the panic site and hands the panic to UnhandledException.
func (h *Handler) RecoverDispatch() {
	r := recover()
	if r == nil {
		return
	}
	file, line := panicSite()
	h.UnhandledException(r, file, line)
}

// Describe returns a message for recognised panic values: errors, strings
// and fmt.Stringers.
func Describe(reason any) (string, bool) {
	switch v := reason.(type) {
	case error:
		return v.Error(), true
	case string:
		return v, true
	case fmt.Stringer:
		return v.String(), true
	default:
		return "", false
	}
}

// panicSite walks the stack of the panicking goroutine and returns the first
// frame below runtime.gopanic that is outside the runtime.
func panicSite() (string, int) {
	pcs := make([]uintptr, 64)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	seenPanic := false
	for {
		frame, more := frames.Next()
		if frame.Function == "runtime.gopanic" {
			seenPanic = true
		} else if seenPanic && !strings.HasPrefix(frame.Function, "runtime.") {
			return frame.File, frame.Line
		}
		if !more {
			break
		}
	}
	return "unknown", 0
}
