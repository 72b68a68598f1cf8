package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// HapticsService drives the vibration motor of the monitored device over HTTP
type HapticsService struct {
	logger     *zap.Logger
	httpClient *resty.Client
}

// VibratePayload is sent to start a vibration pattern
type VibratePayload struct {
	PatternMs []int `json:"pattern_ms"`
	Repeat    bool  `json:"repeat"`
}

// NotifyPayload is sent to play a one-shot haptic cue
type NotifyPayload struct {
	Type string `json:"type"`
}

// NewHapticsService creates a haptics adapter for the device at apiURL
func NewHapticsService(logger *zap.Logger, apiURL string) *HapticsService {
	client := resty.New().
		SetBaseURL(apiURL).
		SetTimeout(10*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "AlertaRaven-Service/1.0")

	return &HapticsService{
		logger:     logger,
		httpClient: client,
	}
}

// StartVibration starts the pattern, looping it when repeat is set
func (h *HapticsService) StartVibration(ctx context.Context, patternMs []int, repeat bool) error {
	return h.post(ctx, "/api/v1/haptics/vibrate", VibratePayload{PatternMs: patternMs, Repeat: repeat})
}

// StopVibration stops any running pattern
func (h *HapticsService) StopVibration(ctx context.Context) error {
	return h.post(ctx, "/api/v1/haptics/stop", nil)
}

// WarningCue plays the warning notification haptic
func (h *HapticsService) WarningCue(ctx context.Context) error {
	return h.post(ctx, "/api/v1/haptics/notify", NotifyPayload{Type: "warning"})
}

func (h *HapticsService) post(ctx context.Context, endpoint string, payload interface{}) error {
	req := h.httpClient.R().SetContext(ctx)
	if payload != nil {
		req.SetBody(payload)
	}

	resp, err := req.Post(endpoint)
	if err != nil {
		h.logger.Error("Failed to send haptics request",
			zap.Error(err),
			zap.String("url", endpoint),
		)
		return fmt.Errorf("failed to send request: %w", err)
	}

	if resp.IsSuccess() {
		h.logger.Debug("Haptics request sent",
			zap.String("url", endpoint),
			zap.Int("status_code", resp.StatusCode()),
		)
		return nil
	}

	h.logger.Error("Haptics API returned error",
		zap.String("url", endpoint),
		zap.Int("status_code", resp.StatusCode()),
		zap.String("status", resp.Status()),
	)
	return fmt.Errorf("haptics API error: %s", resp.Status())
}

// NoopHaptics is used when no device endpoint is configured
type NoopHaptics struct{}

func (NoopHaptics) StartVibration(context.Context, []int, bool) error { return nil }
func (NoopHaptics) StopVibration(context.Context) error               { return nil }
func (NoopHaptics) WarningCue(context.Context) error                  { return nil }
