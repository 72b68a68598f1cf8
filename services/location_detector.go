package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"alertaraven/config"
	"alertaraven/models"

	"go.uber.org/zap"
)

// AlertTrigger starts alert countdowns
type AlertTrigger interface {
	Trigger(ctx context.Context, trig models.Trigger) (*AlertSession, error)
}

// LocationDetector flags an abrupt stop between two consecutive location fixes
// as a vehicle accident. The previous fix lives in the speed store so that
// separate background wake-ups can be compared.
type LocationDetector struct {
	speeds    SpeedStore
	alerts    AlertTrigger
	window    time.Duration
	fromSpeed float64
	toSpeed   float64
	now       func() time.Time
	logger    *zap.Logger
}

// NewLocationDetector creates a detector using the deceleration rule from cfg
func NewLocationDetector(cfg *config.Config, speeds SpeedStore, alerts AlertTrigger, logger *zap.Logger) *LocationDetector {
	return &LocationDetector{
		speeds:    speeds,
		alerts:    alerts,
		window:    cfg.DecelWindow,
		fromSpeed: cfg.DecelFromSpeed,
		toSpeed:   cfg.DecelToSpeed,
		now:       time.Now,
		logger:    logger,
	}
}

// OnFix evaluates one location fix and reports whether it was an emergency.
// The fix always replaces the stored previous sample, emergency or not.
func (d *LocationDetector) OnFix(ctx context.Context, fix models.LocationFix, background bool) (bool, error) {
	current := models.SpeedSample{Speed: fix.Speed, TimestampMs: fix.TimestampMs}
	if current.Speed < 0 {
		current.Speed = 0
	}
	if current.TimestampMs == 0 {
		current.TimestampMs = d.now().UnixMilli()
	}

	previous, ok, err := d.speeds.PreviousSpeed(ctx)
	if err != nil {
		d.logger.Warn("Failed to read previous speed, treating fix as first", zap.Error(err))
		ok = false
	}

	emergency := ok && d.decelerated(previous, current)

	var saveErr error
	if err := d.speeds.SaveSpeed(ctx, current); err != nil {
		d.logger.Error("Failed to persist speed sample", zap.Error(err))
		saveErr = fmt.Errorf("failed to persist speed: %w", err)
	}

	if !emergency {
		return false, saveErr
	}

	d.logger.Warn("Abrupt deceleration detected",
		zap.Float64("previous_speed", previous.Speed),
		zap.Float64("speed", current.Speed),
		zap.Int64("delta_ms", current.TimestampMs-previous.TimestampMs),
		zap.Bool("background", background))

	surface := models.SurfaceNotification
	if background {
		surface = models.SurfaceBackground
	}
	_, err = d.alerts.Trigger(ctx, models.Trigger{
		Source:  models.SourceLocation,
		Surface: surface,
		Classification: models.ClassificationResult{
			Label: models.LabelVehicleAccident,
		},
	})
	if err != nil && !errors.Is(err, models.ErrAlertInProgress) {
		d.logger.Error("Failed to start alert for deceleration", zap.Error(err))
		return true, errors.Join(err, saveErr)
	}
	return true, saveErr
}

func (d *LocationDetector) decelerated(previous, current models.SpeedSample) bool {
	dt := float64(current.TimestampMs-previous.TimestampMs) / 1000
	return dt < d.window.Seconds() && previous.Speed > d.fromSpeed && current.Speed < d.toSpeed
}

// Reset clears the stored previous sample so the next session starts cold
func (d *LocationDetector) Reset(ctx context.Context) error {
	if err := d.speeds.ClearSpeed(ctx); err != nil {
		return fmt.Errorf("failed to clear previous speed: %w", err)
	}
	return nil
}
