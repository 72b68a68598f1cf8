package services

import (
	"context"
	"sync"
	"time"

	"alertaraven/models"

	"go.uber.org/zap"
)

// PendingRefresher reloads the pending-events list
type PendingRefresher interface {
	RefreshPending(ctx context.Context) error
}

// ConnectivityMonitor probes the classification service periodically and reacts
// to state changes.
type ConnectivityMonitor struct {
	classifier Classifier
	pending    PendingRefresher
	surface    AlertSurface
	interval   time.Duration
	logger     *zap.Logger

	mu        sync.RWMutex
	state     models.ConnectivityState
	downSince time.Time
}

// NewConnectivityMonitor creates a monitor probing every interval
func NewConnectivityMonitor(classifier Classifier, pending PendingRefresher, surface AlertSurface, interval time.Duration, logger *zap.Logger) *ConnectivityMonitor {
	return &ConnectivityMonitor{
		classifier: classifier,
		pending:    pending,
		surface:    surface,
		interval:   interval,
		logger:     logger,
		state:      models.Unknown,
	}
}

// Start probes immediately, then on every tick until ctx is done
func (c *ConnectivityMonitor) Start(ctx context.Context) {
	c.logger.Info("Starting connectivity monitor", zap.Duration("interval", c.interval))

	c.Check(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Connectivity monitor stopped")
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check runs one probe and handles the transition
func (c *ConnectivityMonitor) Check(ctx context.Context) models.ConnectivityState {
	state := c.classifier.ProbeConnectivity(ctx)
	now := time.Now()

	c.mu.Lock()
	previous := c.state
	c.state = state
	downSince := c.downSince
	if state == models.Disconnected && previous != models.Disconnected {
		c.downSince = now
	}
	c.mu.Unlock()

	if state == previous {
		return state
	}

	switch state {
	case models.Connected:
		if previous == models.Disconnected {
			c.logger.Info("Classifier connection recovered",
				zap.Duration("down_duration", now.Sub(downSince)))
		} else {
			c.logger.Info("Classifier connected")
		}
		if err := c.pending.RefreshPending(ctx); err != nil {
			c.logger.Warn("Failed to refresh pending events", zap.Error(err))
		}
	case models.Disconnected:
		c.logger.Warn("Classifier unreachable", zap.String("previous_state", string(previous)))
		c.surface.Warn(ctx, "classifier_disconnected", "Sin conexión",
			"Se perdió la conexión con el servidor de clasificación.")
	}
	return state
}

// State returns the result of the last probe
func (c *ConnectivityMonitor) State() models.ConnectivityState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}
