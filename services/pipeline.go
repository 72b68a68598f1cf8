package services

import (
	"context"
	"sync"

	"alertaraven/models"

	"go.uber.org/zap"
)

// AlertCanceller cancels whatever alert is counting down
type AlertCanceller interface {
	CancelActive(ctx context.Context, reason string)
}

// Monitor routes the device stream into the detectors while monitoring is on.
// Stopping cancels the running countdown, drops late classification responses
// and clears the stored previous speed.
type Monitor struct {
	filter       *SampleFilter
	orchestrator *MotionOrchestrator
	detector     *LocationDetector
	alerts       AlertCanceller
	surface      AlertSurface
	logger       *zap.Logger

	mu         sync.RWMutex
	active     bool
	perms      models.Permissions
	sessionCtx context.Context
	cancel     context.CancelFunc

	inflight sync.WaitGroup
}

// NewMonitor creates a stopped monitor
func NewMonitor(filter *SampleFilter, orchestrator *MotionOrchestrator, detector *LocationDetector, alerts AlertCanceller, surface AlertSurface, logger *zap.Logger) *Monitor {
	return &Monitor{
		filter:       filter,
		orchestrator: orchestrator,
		detector:     detector,
		alerts:       alerts,
		surface:      surface,
		logger:       logger,
	}
}

// StartMonitoring turns detection on with the given grants. Missing grants
// degrade the monitor instead of failing; only a device with neither motion nor
// location access is refused.
func (m *Monitor) StartMonitoring(ctx context.Context, perms models.Permissions) error {
	if !perms.Motion && !perms.Location {
		m.surface.Warn(ctx, "permissions_denied", "Permisos denegados",
			"Se necesitan permisos de movimiento o ubicación para iniciar el monitoreo.")
		return &models.PermissionError{Permission: "motion,location"}
	}

	m.mu.Lock()
	if m.active {
		m.perms = perms
		m.mu.Unlock()
		return nil
	}
	m.active = true
	m.perms = perms
	m.sessionCtx, m.cancel = context.WithCancel(context.WithoutCancel(ctx))
	m.mu.Unlock()

	m.filter.Reset()
	m.warnDegraded(ctx, perms)

	m.logger.Info("Monitoring started",
		zap.Bool("motion", perms.Motion),
		zap.Bool("location", perms.Location),
		zap.Bool("background_location", perms.BackgroundLocation))
	return nil
}

// StopMonitoring turns detection off. Stopping twice is harmless.
func (m *Monitor) StopMonitoring(ctx context.Context) {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return
	}
	m.active = false
	m.cancel()
	m.mu.Unlock()

	m.alerts.CancelActive(ctx, "monitoring_stopped")

	if err := m.detector.Reset(ctx); err != nil {
		m.logger.Error("Failed to clear previous speed", zap.Error(err))
	}
	m.filter.Reset()

	m.logger.Info("Monitoring stopped")
}

// UpdatePermissions applies new grants reported by the device
func (m *Monitor) UpdatePermissions(ctx context.Context, perms models.Permissions) {
	m.mu.Lock()
	m.perms = perms
	active := m.active
	m.mu.Unlock()

	if active {
		m.warnDegraded(ctx, perms)
	}
}

func (m *Monitor) warnDegraded(ctx context.Context, perms models.Permissions) {
	if !perms.Motion {
		m.logger.Warn("Motion permission denied, using location only")
		m.surface.Warn(ctx, "permission_motion", "Permiso denegado",
			"Sin acceso a los sensores de movimiento. Solo se usará la ubicación.")
	}
	if !perms.Location {
		m.logger.Warn("Location permission denied, using motion sensors only")
		m.surface.Warn(ctx, "permission_location", "Permiso denegado",
			"Solo se utilizarán los sensores de movimiento.")
		return
	}
	if !perms.BackgroundLocation {
		m.logger.Warn("Background location permission denied")
		m.surface.Warn(ctx, "permission_background", "Permiso denegado",
			"La detección en segundo plano no estará disponible.")
	}
	if !perms.Notifications {
		m.logger.Warn("Notification permission denied")
	}
}

// Active reports whether monitoring is on
func (m *Monitor) Active() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

func (m *Monitor) session() (context.Context, models.Permissions, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessionCtx, m.perms, m.active
}

// Start processes device messages until ctx is done or in is closed
func (m *Monitor) Start(ctx context.Context, in <-chan *models.DeviceMessage) {
	m.logger.Info("Starting device stream processing")

	defer m.inflight.Wait()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Device stream processing stopped")
			return
		case msg, ok := <-in:
			if !ok {
				m.logger.Info("Device stream channel closed")
				return
			}
			m.HandleMessage(ctx, msg)
		}
	}
}

// HandleMessage routes one message. Samples of one stream are filtered in
// arrival order; classification runs in the background.
func (m *Monitor) HandleMessage(ctx context.Context, msg *models.DeviceMessage) {
	if msg.Type == models.MessagePermissions {
		m.UpdatePermissions(ctx, *msg.Permissions)
		return
	}

	sessionCtx, perms, active := m.session()
	if !active {
		return
	}

	switch msg.Type {
	case models.MessageGyroscope:
		if perms.Motion {
			m.filter.OnGyroscope(models.SensorSample{Vec3: *msg.Reading, ArrivedAt: msg.Timestamp})
		}

	case models.MessageAccelerometer:
		if !perms.Motion {
			return
		}
		event, ok := m.filter.OnAccelerometer(models.SensorSample{Vec3: *msg.Reading, ArrivedAt: msg.Timestamp}, msg.DeviceID, msg.Background)
		if !ok {
			return
		}
		m.inflight.Add(1)
		go func() {
			defer m.inflight.Done()
			if _, err := m.orchestrator.Handle(sessionCtx, event); err != nil {
				m.logger.Debug("Motion event not classified", zap.Error(err))
			}
		}()

	case models.MessageLocation:
		if !perms.Location {
			return
		}
		if msg.Background && !perms.BackgroundLocation {
			m.logger.Debug("Skipping background fix without background permission")
			return
		}
		fix := *msg.Location
		if fix.TimestampMs == 0 {
			fix.TimestampMs = msg.Timestamp.UnixMilli()
		}
		if _, err := m.detector.OnFix(sessionCtx, fix, msg.Background); err != nil {
			m.logger.Error("Location fix processing failed",
				zap.Bool("background", msg.Background),
				zap.Error(err))
		}
	}
}

// MonitorStatus is a point-in-time view of the monitor
type MonitorStatus struct {
	Active      bool
	Permissions models.Permissions
	Last        *models.ClassificationResult
	Recent      []models.HistoryEntry
}

// Status reports whether monitoring is on and what was classified recently
func (m *Monitor) Status() MonitorStatus {
	_, perms, active := m.session()
	status := MonitorStatus{
		Active:      active,
		Permissions: perms,
		Recent:      m.orchestrator.History(),
	}
	if last, ok := m.orchestrator.Last(); ok {
		status.Last = &last
	}
	return status
}

// Wait blocks until in-flight classifications finish
func (m *Monitor) Wait() {
	m.inflight.Wait()
}
