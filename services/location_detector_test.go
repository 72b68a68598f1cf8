package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"alertaraven/config"
	"alertaraven/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingTrigger struct {
	mu       sync.Mutex
	triggers []models.Trigger
	err      error
}

func (r *recordingTrigger) Trigger(_ context.Context, trig models.Trigger) (*AlertSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.triggers = append(r.triggers, trig)
	return nil, r.err
}

func (r *recordingTrigger) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.triggers)
}

func newTestDetector(t *testing.T) (*LocationDetector, *ProfileStore, *recordingTrigger) {
	t.Helper()
	_, store := setupTestStore(t)
	cfg := &config.Config{
		DecelWindow:    5 * time.Second,
		DecelFromSpeed: 10,
		DecelToSpeed:   1,
	}
	trigger := &recordingTrigger{}
	return NewLocationDetector(cfg, store, trigger, zap.NewNop()), store, trigger
}

func TestLocationDetector_Deceleration(t *testing.T) {
	const T = int64(1700000000000)

	tests := []struct {
		name      string
		prevSpeed float64
		speed     float64
		offsetMs  int64
		emergency bool
	}{
		{name: "abrupt stop within window", prevSpeed: 15, speed: 0.5, offsetMs: 3000, emergency: true},
		{name: "stop after window", prevSpeed: 15, speed: 0.5, offsetMs: 6000, emergency: false},
		{name: "exactly at window", prevSpeed: 15, speed: 0.5, offsetMs: 5000, emergency: false},
		{name: "previous speed too low", prevSpeed: 10, speed: 0.5, offsetMs: 1000, emergency: false},
		{name: "still moving", prevSpeed: 15, speed: 1, offsetMs: 1000, emergency: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, store, trigger := newTestDetector(t)
			ctx := context.Background()
			require.NoError(t, store.SaveSpeed(ctx, models.SpeedSample{Speed: tt.prevSpeed, TimestampMs: T}))

			emergency, err := d.OnFix(ctx, models.LocationFix{Speed: tt.speed, TimestampMs: T + tt.offsetMs}, false)
			require.NoError(t, err)
			assert.Equal(t, tt.emergency, emergency)

			if tt.emergency {
				require.Equal(t, 1, trigger.count())
				got := trigger.triggers[0]
				assert.Equal(t, models.SourceLocation, got.Source)
				assert.Equal(t, models.SurfaceNotification, got.Surface)
				assert.Equal(t, models.LabelVehicleAccident, got.Classification.Label)
			} else {
				assert.Zero(t, trigger.count())
			}
		})
	}
}

func TestLocationDetector_PersistsEveryFix(t *testing.T) {
	d, store, trigger := newTestDetector(t)
	ctx := context.Background()

	fixes := []models.LocationFix{
		{Speed: 20, TimestampMs: 1000},
		{Speed: 0.2, TimestampMs: 2000},
		{Speed: 12, TimestampMs: 3000},
		{Speed: 13.5, TimestampMs: 4000},
	}
	for i, fix := range fixes {
		_, err := d.OnFix(ctx, fix, false)
		require.NoError(t, err)

		prev, ok, err := store.PreviousSpeed(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, fixes[i].Speed, prev.Speed, "fix %d", i)
		assert.Equal(t, fixes[i].TimestampMs, prev.TimestampMs, "fix %d", i)
	}
	assert.Equal(t, 1, trigger.count())
}

func TestLocationDetector_FirstFixNeverFires(t *testing.T) {
	d, _, trigger := newTestDetector(t)

	emergency, err := d.OnFix(context.Background(), models.LocationFix{Speed: 0, TimestampMs: 1000}, true)
	require.NoError(t, err)
	assert.False(t, emergency)
	assert.Zero(t, trigger.count())
}

func TestLocationDetector_BackgroundSurface(t *testing.T) {
	d, store, trigger := newTestDetector(t)
	ctx := context.Background()
	require.NoError(t, store.SaveSpeed(ctx, models.SpeedSample{Speed: 30, TimestampMs: 1000}))

	emergency, err := d.OnFix(ctx, models.LocationFix{Speed: 0, TimestampMs: 2000}, true)
	require.NoError(t, err)
	require.True(t, emergency)
	assert.Equal(t, models.SurfaceBackground, trigger.triggers[0].Surface)
}

func TestLocationDetector_AlertInProgressIsNotAnError(t *testing.T) {
	d, store, trigger := newTestDetector(t)
	trigger.err = models.ErrAlertInProgress
	ctx := context.Background()
	require.NoError(t, store.SaveSpeed(ctx, models.SpeedSample{Speed: 30, TimestampMs: 1000}))

	emergency, err := d.OnFix(ctx, models.LocationFix{Speed: 0, TimestampMs: 2000}, false)
	assert.True(t, emergency)
	assert.NoError(t, err)
}

func TestLocationDetector_ResetStartsCold(t *testing.T) {
	d, store, trigger := newTestDetector(t)
	ctx := context.Background()

	_, err := d.OnFix(ctx, models.LocationFix{Speed: 25, TimestampMs: 1000}, false)
	require.NoError(t, err)
	require.NoError(t, d.Reset(ctx))

	_, ok, err := store.PreviousSpeed(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	emergency, err := d.OnFix(ctx, models.LocationFix{Speed: 0, TimestampMs: 2000}, false)
	require.NoError(t, err)
	assert.False(t, emergency)
	assert.Zero(t, trigger.count())
}

func TestLocationDetector_NegativeSpeedClamped(t *testing.T) {
	d, store, _ := newTestDetector(t)
	ctx := context.Background()

	_, err := d.OnFix(ctx, models.LocationFix{Speed: -1, TimestampMs: 1000}, false)
	require.NoError(t, err)

	prev, ok, err := store.PreviousSpeed(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0.0, prev.Speed)
}
