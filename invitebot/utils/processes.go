package utils

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ProcessManager owns the long running goroutines of the bot, such as the
// per guild event sequencers, and stops them together on shutdown.
type ProcessManager struct {
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.RWMutex
	processes map[string]context.CancelFunc
}

func NewProcessManager() *ProcessManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &ProcessManager{
		ctx:       ctx,
		cancel:    cancel,
		processes: make(map[string]context.CancelFunc),
	}
}

// Start runs fn in its own goroutine. A process already running under the
// same name is stopped first. Panics are logged and end the process.
func (pm *ProcessManager) Start(name string, fn func(ctx context.Context)) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if _, exists := pm.processes[name]; exists {
		slog.Warn("Process already running, replacing it",
			slog.String("type", "sys"),
			slog.String("process", name))
		pm.stopLocked(name)
	}

	ctx, cancel := context.WithCancel(pm.ctx)
	pm.processes[name] = cancel

	pm.wg.Add(1)
	go func() {
		defer pm.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Background process panic",
					slog.String("type", "error"),
					slog.String("process", name),
					slog.Any("panic", r))
			}
		}()

		slog.Info("Starting background process",
			slog.String("type", "sys"),
			slog.String("process", name))
		fn(ctx)
		slog.Info("Background process ended",
			slog.String("type", "sys"),
			slog.String("process", name))
	}()
}

func (pm *ProcessManager) Stop(name string) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.stopLocked(name)
}

func (pm *ProcessManager) stopLocked(name string) {
	if cancel, exists := pm.processes[name]; exists {
		cancel()
		delete(pm.processes, name)
	}
}

// Shutdown cancels every process and waits up to timeout for them to return.
func (pm *ProcessManager) Shutdown(timeout time.Duration) error {
	slog.Info("Shutting down background processes",
		slog.String("type", "sys"),
		slog.Int("process_count", pm.Count()))

	pm.cancel()

	done := make(chan struct{})
	go func() {
		pm.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		slog.Warn("Timeout waiting for background processes to stop",
			slog.String("type", "sys"),
			slog.Duration("timeout", timeout))
		return context.DeadlineExceeded
	}
}

func (pm *ProcessManager) Count() int {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return len(pm.processes)
}

// Names lists the running processes in sorted order.
func (pm *ProcessManager) Names() []string {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	names := make([]string, 0, len(pm.processes))
	for name := range pm.processes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (pm *ProcessManager) Running(name string) bool {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	_, ok := pm.processes[name]
	return ok
}
