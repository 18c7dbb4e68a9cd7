package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ctlbridge/ctlbridge-go/pkg/crash"
	"github.com/ctlbridge/ctlbridge-go/pkg/executor"
)

// autosaver periodically posts a default profile save to the executor.
type autosaver struct {
	interval time.Duration
	exec     *executor.Context
	save     func() error
	logger   *slog.Logger
	onPanic  func(any)

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newAutosaver(interval time.Duration, exec *executor.Context, save func() error, logger *slog.Logger, onPanic func(any)) *autosaver {
	return &autosaver{
		interval: interval,
		exec:     exec,
		save:     save,
		logger:   logger.With("component", "autosave"),
		onPanic:  onPanic,
	}
}

func (a *autosaver) Start(ctx context.Context) error {
	if a.interval <= 0 {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel
	a.wg.Add(1)
	go a.run(runCtx)
	return nil
}

func (a *autosaver) run(ctx context.Context) {
	defer a.wg.Done()
	defer crash.Guard(a.onPanic)
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.exec.Post(func() { _ = a.save() }); err != nil {
				a.logger.Debug("autosave skipped", "error", err)
			}
		}
	}
}

func (a *autosaver) Stop() error {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.mu.Unlock()
	if cancel != nil {
		cancel()
		a.wg.Wait()
	}
	return nil
}
