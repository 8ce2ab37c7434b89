package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vidscribe/vidscribe/credit"
	"github.com/vidscribe/vidscribe/job"
	"github.com/vidscribe/vidscribe/settlement"
)

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	// Type-cached plugin lists for efficient dispatch
	onInit                []OnInit
	onShutdown            []OnShutdown
	onTransactionRecorded []OnTransactionRecorded
	onBalanceChanged      []OnBalanceChanged
	onJobStateChanged     []OnJobStateChanged
	onJobCompleted        []OnJobCompleted
	onJobFailed           []OnJobFailed
	onCreditsGranted      []OnCreditsGranted
	onSettlementSynced    []OnSettlementSynced
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{logger: slog.Default()}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnTransactionRecorded); ok {
		r.onTransactionRecorded = append(r.onTransactionRecorded, v)
	}
	if v, ok := p.(OnBalanceChanged); ok {
		r.onBalanceChanged = append(r.onBalanceChanged, v)
	}
	if v, ok := p.(OnJobStateChanged); ok {
		r.onJobStateChanged = append(r.onJobStateChanged, v)
	}
	if v, ok := p.(OnJobCompleted); ok {
		r.onJobCompleted = append(r.onJobCompleted, v)
	}
	if v, ok := p.(OnJobFailed); ok {
		r.onJobFailed = append(r.onJobFailed, v)
	}
	if v, ok := p.(OnCreditsGranted); ok {
		r.onCreditsGranted = append(r.onCreditsGranted, v)
	}
	if v, ok := p.(OnSettlementSynced); ok {
		r.onSettlementSynced = append(r.onSettlementSynced, v)
	}

	r.logger.Info("plugin registered", "name", p.Name())
	return nil
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, session interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx, session)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitTransactionRecorded emits a ledger mutation event.
func (r *Registry) EmitTransactionRecorded(ctx context.Context, txn *credit.Transaction) {
	r.mu.RLock()
	plugins := r.onTransactionRecorded
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnTransactionRecorded(ctx, txn)
		}); err != nil {
			r.logger.Warn("plugin OnTransactionRecorded failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitBalanceChanged emits a balance change event.
func (r *Registry) EmitBalanceChanged(ctx context.Context, balance int64) {
	r.mu.RLock()
	plugins := r.onBalanceChanged
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnBalanceChanged(ctx, balance)
		}); err != nil {
			r.logger.Warn("plugin OnBalanceChanged failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitJobStateChanged emits a job transition event. Completed and
// failed terminal states additionally fire their dedicated hooks.
func (r *Registry) EmitJobStateChanged(ctx context.Context, j *job.Job) {
	r.mu.RLock()
	changed := r.onJobStateChanged
	completed := r.onJobCompleted
	failed := r.onJobFailed
	r.mu.RUnlock()

	for _, p := range changed {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnJobStateChanged(ctx, j)
		}); err != nil {
			r.logger.Warn("plugin OnJobStateChanged failed", "plugin", p.Name(), "error", err)
		}
	}

	switch {
	case j.Status == job.StatusCompleted:
		for _, p := range completed {
			if err := r.callWithTimeout(ctx, p.Name(), func() error {
				return p.OnJobCompleted(ctx, j)
			}); err != nil {
				r.logger.Warn("plugin OnJobCompleted failed", "plugin", p.Name(), "error", err)
			}
		}
	case j.Status.IsTerminal():
		for _, p := range failed {
			if err := r.callWithTimeout(ctx, p.Name(), func() error {
				return p.OnJobFailed(ctx, j)
			}); err != nil {
				r.logger.Warn("plugin OnJobFailed failed", "plugin", p.Name(), "error", err)
			}
		}
	}
}

// EmitCreditsGranted emits a subscription grant event.
func (r *Registry) EmitCreditsGranted(ctx context.Context, grant *settlement.Grant) {
	r.mu.RLock()
	plugins := r.onCreditsGranted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCreditsGranted(ctx, grant)
		}); err != nil {
			r.logger.Warn("plugin OnCreditsGranted failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitSettlementSynced emits a settlement pass event.
func (r *Registry) EmitSettlementSynced(ctx context.Context, summary *settlement.Summary) {
	r.mu.RLock()
	plugins := r.onSettlementSynced
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnSettlementSynced(ctx, summary)
		}); err != nil {
			r.logger.Warn("plugin OnSettlementSynced failed", "plugin", p.Name(), "error", err)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the job or ledger pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
