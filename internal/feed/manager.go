package feed

import (
	"context"
	"time"

	"go.uber.org/zap"

	"sheltercore/pkg/domain"
)

const (
	initialResubscribeDelay = 500 * time.Millisecond
	maxResubscribeDelay     = 30 * time.Second
)

// ReloadFunc refreshes a consumer's view of the store. The manager invokes it
// once at startup, after every matching change event, and after every
// resubscription, so consumers never patch state incrementally.
type ReloadFunc func(ctx context.Context) error

// ManagerOption customizes Manager construction.
type ManagerOption func(*Manager)

// ManagerWithLogger injects a logger.
func ManagerWithLogger(logger *zap.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// ManagerWithBackoff overrides the resubscription backoff bounds.
func ManagerWithBackoff(initial, max time.Duration) ManagerOption {
	return func(m *Manager) {
		if initial > 0 {
			m.initialDelay = initial
		}
		if max > 0 {
			m.maxDelay = max
		}
	}
}

// Manager holds one logical subscription per watched entity type and calls
// the reload function whenever any of them reports a change. A subscription
// whose channel closes is reopened with capped exponential backoff, followed
// by a forced reload to cover events missed while disconnected.
type Manager struct {
	hub          *Hub
	entities     []domain.EntityType
	reload       ReloadFunc
	logger       *zap.Logger
	initialDelay time.Duration
	maxDelay     time.Duration
}

// NewManager watches the given entity types on hub. Reload must be non-nil.
func NewManager(hub *Hub, entities []domain.EntityType, reload ReloadFunc, opts ...ManagerOption) *Manager {
	m := &Manager{
		hub:          hub,
		entities:     append([]domain.EntityType(nil), entities...),
		reload:       reload,
		logger:       zap.NewNop(),
		initialDelay: initialResubscribeDelay,
		maxDelay:     maxResubscribeDelay,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Run blocks until ctx is cancelled, maintaining one watcher goroutine per
// entity type. The initial reload happens before any watcher starts so the
// consumer never observes pre-subscription state.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.reload(ctx); err != nil {
		m.logger.Warn("initial reload failed", zap.Error(err))
	}
	done := make(chan struct{})
	for _, entity := range m.entities {
		go func(entity domain.EntityType) {
			m.watch(ctx, entity)
			done <- struct{}{}
		}(entity)
	}
	for range m.entities {
		<-done
	}
	return ctx.Err()
}

func (m *Manager) watch(ctx context.Context, entity domain.EntityType) {
	delay := m.initialDelay
	sub := m.hub.Subscribe(entity, EventAll)
	subscribedAt := time.Now()
	defer func() { sub.Close() }()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-sub.Events:
			if !ok {
				// Subscription dropped. Back off, resubscribe, and force a
				// reload for anything missed in between.
				delay = m.backoffAfterDrop(delay, time.Since(subscribedAt))
				select {
				case <-ctx.Done():
					return
				case <-time.After(delay):
				}
				delay *= 2
				if delay > m.maxDelay {
					delay = m.maxDelay
				}
				sub = m.hub.Subscribe(entity, EventAll)
				subscribedAt = time.Now()
				m.logger.Info("feed resubscribed", zap.String("entity", string(entity)))
				m.fireReload(ctx, entity)
				continue
			}
			delay = m.initialDelay
			m.fireReload(ctx, entity)
		}
	}
}

// backoffAfterDrop picks the wait before the next resubscription attempt. A
// subscription that stayed up longer than the max delay was healthy even if
// it never carried an event, so its drop starts a fresh backoff run.
func (m *Manager) backoffAfterDrop(delay, uptime time.Duration) time.Duration {
	if uptime > m.maxDelay {
		return m.initialDelay
	}
	return delay
}

func (m *Manager) fireReload(ctx context.Context, entity domain.EntityType) {
	if err := m.reload(ctx); err != nil {
		m.logger.Warn("reload failed",
			zap.String("entity", string(entity)),
			zap.Error(err))
	}
}
