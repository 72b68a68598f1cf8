package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"alertaraven/models"

	"go.uber.org/zap"
)

// MotionOrchestrator classifies forwarded motion events and starts an alert for
// emergency labels. Foreground events go to the remote classifier; background
// events are classified on the spot.
type MotionOrchestrator struct {
	classifier Classifier
	alerts     AlertTrigger
	surface    AlertSurface
	history    *Ring[models.HistoryEntry]
	now        func() time.Time
	logger     *zap.Logger
	metrics    *Metrics

	mu   sync.RWMutex
	last *models.ClassificationResult
}

// NewMotionOrchestrator creates an orchestrator keeping historySize results
func NewMotionOrchestrator(classifier Classifier, alerts AlertTrigger, surface AlertSurface, historySize int, logger *zap.Logger, metrics *Metrics) *MotionOrchestrator {
	return &MotionOrchestrator{
		classifier: classifier,
		alerts:     alerts,
		surface:    surface,
		history:    NewRing[models.HistoryEntry](historySize),
		now:        time.Now,
		logger:     logger,
		metrics:    metrics,
	}
}

// Handle classifies one event. ctx belongs to the monitoring session: once it is
// cancelled a late response is dropped without touching any state.
func (o *MotionOrchestrator) Handle(ctx context.Context, event *models.MotionEvent) (*models.ClassificationResult, error) {
	if event.Background {
		result := ClassifyLocally(event)
		return o.accept(ctx, event, result, models.SurfaceBackground)
	}

	if o.classifier.State() != models.Connected {
		if o.classifier.ProbeConnectivity(ctx) != models.Connected {
			o.logger.Warn("Classification skipped, classifier unreachable",
				zap.String("device_id", event.DeviceID))
			o.surface.Warn(ctx, "classifier_disconnected", "Sin conexión",
				"No hay conexión con el servidor de clasificación.")
			return nil, models.ErrDisconnected
		}
	}

	result, err := o.classifier.Classify(ctx, event)
	if ctx.Err() != nil {
		o.logger.Debug("Discarding classification, monitoring stopped",
			zap.String("device_id", event.DeviceID))
		return nil, ctx.Err()
	}
	if err != nil {
		o.logger.Error("Classification failed",
			zap.String("device_id", event.DeviceID),
			zap.Error(err))
		o.surface.Warn(ctx, "classification_failed", "Error",
			"No se pudo clasificar el movimiento.")
		return nil, fmt.Errorf("classification failed: %w", err)
	}

	return o.accept(ctx, event, *result, models.SurfaceDialog)
}

func (o *MotionOrchestrator) accept(ctx context.Context, event *models.MotionEvent, result models.ClassificationResult, surface models.Surface) (*models.ClassificationResult, error) {
	o.mu.Lock()
	o.last = &result
	o.mu.Unlock()

	o.history.Push(models.HistoryEntry{
		Event:     *event,
		Result:    result,
		Magnitude: result.AccelerationMagnitude,
		At:        o.now(),
	})
	o.metrics.Classified(result.Label)

	o.logger.Info("Motion classified",
		zap.String("label", string(result.Label)),
		zap.Float64("magnitude", result.AccelerationMagnitude),
		zap.String("event_id", result.EventID),
		zap.Bool("fast_detection", result.FastDetection),
		zap.Bool("background", event.Background))

	if !result.Label.IsEmergency() {
		return &result, nil
	}

	_, err := o.alerts.Trigger(ctx, models.Trigger{
		Source:         models.SourceMotion,
		Surface:        surface,
		Classification: result,
	})
	if err != nil && !errors.Is(err, models.ErrAlertInProgress) {
		o.logger.Error("Failed to start alert",
			zap.String("event_id", result.EventID),
			zap.Error(err))
		return &result, err
	}
	return &result, nil
}

// Last returns the most recent classification, if any
func (o *MotionOrchestrator) Last() (models.ClassificationResult, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.last == nil {
		return models.ClassificationResult{}, false
	}
	return *o.last, true
}

// History returns recent classifications, oldest first
func (o *MotionOrchestrator) History() []models.HistoryEntry {
	return o.history.Slice()
}

// Reset forgets the last result and the history
func (o *MotionOrchestrator) Reset() {
	o.mu.Lock()
	o.last = nil
	o.mu.Unlock()
	o.history.Reset()
}
