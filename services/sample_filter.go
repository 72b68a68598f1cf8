package services

import (
	"sync"
	"time"

	"alertaraven/models"

	"go.uber.org/zap"
)

// SampleFilter decides which accelerometer samples are worth classifying. A sample
// is forwarded only when its magnitude leaves the [low, high] band around 1g and at
// least minInterval has passed since the previous forward.
type SampleFilter struct {
	mu            sync.Mutex
	high          float64
	low           float64
	minInterval   time.Duration
	deviceID      string
	lastProcessed time.Time
	accelerometer models.Vec3
	gyroscope     models.Vec3
	now           func() time.Time
	logger        *zap.Logger
	metrics       *Metrics
}

// NewSampleFilter creates a filter with the given gate
func NewSampleFilter(high, low float64, minInterval time.Duration, deviceID string, logger *zap.Logger, metrics *Metrics) *SampleFilter {
	return &SampleFilter{
		high:        high,
		low:         low,
		minInterval: minInterval,
		deviceID:    deviceID,
		now:         time.Now,
		logger:      logger,
		metrics:     metrics,
	}
}

// OnAccelerometer evaluates one sample and returns the event to classify, if any.
// Calls for one stream are serialized; each completes before the next is considered.
func (f *SampleFilter) OnAccelerometer(sample models.SensorSample, deviceID string, background bool) (*models.MotionEvent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.accelerometer = sample.Vec3
	arrived := sample.ArrivedAt
	if arrived.IsZero() {
		arrived = f.now()
	}

	if !f.lastProcessed.IsZero() && arrived.Sub(f.lastProcessed) < f.minInterval {
		return nil, false
	}

	magnitude := sample.Magnitude()
	if magnitude <= f.high && magnitude >= f.low {
		return nil, false
	}

	f.lastProcessed = arrived
	if deviceID == "" {
		deviceID = f.deviceID
	}

	event := &models.MotionEvent{
		Accelerometer: sample.Vec3,
		Gyroscope:     f.gyroscope,
		Timestamp:     arrived.UnixMilli(),
		DeviceID:      deviceID,
		Background:    background,
	}

	f.logger.Debug("Sample forwarded for classification",
		zap.Float64("magnitude", magnitude),
		zap.Bool("background", background))
	f.metrics.SampleForwarded()

	return event, true
}

// OnGyroscope records the latest gyroscope reading. It is never gated.
func (f *SampleFilter) OnGyroscope(sample models.SensorSample) {
	f.mu.Lock()
	f.gyroscope = sample.Vec3
	f.mu.Unlock()
}

// Latest returns the last accelerometer and gyroscope readings
func (f *SampleFilter) Latest() (models.Vec3, models.Vec3) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accelerometer, f.gyroscope
}

// Reset forgets the rate-gate state and the latest readings
func (f *SampleFilter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastProcessed = time.Time{}
	f.accelerometer = models.Vec3{}
	f.gyroscope = models.Vec3{}
}
