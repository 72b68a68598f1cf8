package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"alertaraven/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Classifier is the remote classification/feedback service
type Classifier interface {
	ProbeConnectivity(ctx context.Context) models.ConnectivityState
	State() models.ConnectivityState
	Classify(ctx context.Context, event *models.MotionEvent) (*models.ClassificationResult, error)
	SubmitFeedback(ctx context.Context, eventID string, label models.Label) error
	MarkNotified(ctx context.Context, eventID string) error
	ListPendingEvents(ctx context.Context) ([]models.PendingEvent, error)
}

type feedbackRequest struct {
	CorrectTipo models.Label `json:"correct_tipo"`
}

// ClassifierClient talks to the classification service over HTTP/JSON.
// Every call uses the same timeout and is never retried automatically.
type ClassifierClient struct {
	httpClient   *resty.Client
	logger       *zap.Logger
	placeholders []string

	mu    sync.RWMutex
	state models.ConnectivityState
}

// NewClassifierClient creates a client for baseURL
func NewClassifierClient(baseURL string, timeout time.Duration, placeholders []string, logger *zap.Logger) *ClassifierClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "AlertaRaven-Service/1.0")

	return &ClassifierClient{
		httpClient:   client,
		logger:       logger,
		placeholders: placeholders,
		state:        models.Unknown,
	}
}

// State returns the result of the last probe
func (c *ClassifierClient) State() models.ConnectivityState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *ClassifierClient) setState(state models.ConnectivityState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

// ProbeConnectivity issues GET /estadisticas. Any failure or non-2xx is Disconnected.
func (c *ClassifierClient) ProbeConnectivity(ctx context.Context) models.ConnectivityState {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		Get("/estadisticas")

	state := models.Connected
	if err != nil {
		c.logger.Debug("Classifier probe failed", zap.Error(err))
		state = models.Disconnected
	} else if !resp.IsSuccess() {
		c.logger.Debug("Classifier probe returned error status", zap.Int("status_code", resp.StatusCode()))
		state = models.Disconnected
	}

	c.setState(state)
	return state
}

// Classify sends one motion event for classification
func (c *ClassifierClient) Classify(ctx context.Context, event *models.MotionEvent) (*models.ClassificationResult, error) {
	var result models.ClassificationResult
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(event.Request()).
		SetResult(&result).
		Post("/clasificar_movimiento")
	if err != nil {
		c.setState(models.Disconnected)
		return nil, fmt.Errorf("%w: classify: %v", models.ErrDisconnected, err)
	}

	if !resp.IsSuccess() {
		return nil, &models.ServerError{Operation: "classify", StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	if _, ok := models.ParseLabel(string(result.Label)); !ok {
		return nil, fmt.Errorf("classify: unknown label %q", result.Label)
	}

	c.logger.Debug("Motion classified",
		zap.String("label", string(result.Label)),
		zap.Float64("magnitude", result.AccelerationMagnitude),
		zap.String("event_id", result.EventID),
		zap.Bool("fast_detection", result.FastDetection))

	return &result, nil
}

// SubmitFeedback posts the corrected label. Empty or placeholder ids are rejected
// without touching the network.
func (c *ClassifierClient) SubmitFeedback(ctx context.Context, eventID string, label models.Label) error {
	if !models.ValidEventID(eventID, c.placeholders) {
		return &models.ValidationError{Field: "event_id", Reason: fmt.Sprintf("%q is not feedback-eligible", eventID), Err: models.ErrInvalidEventID}
	}

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetPathParam("eventID", eventID).
		SetBody(feedbackRequest{CorrectTipo: label}).
		Post("/feedback/{eventID}")
	if err != nil {
		c.setState(models.Disconnected)
		return fmt.Errorf("%w: feedback: %v", models.ErrDisconnected, err)
	}
	if !resp.IsSuccess() {
		return &models.ServerError{Operation: "feedback", StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	c.logger.Info("Feedback submitted",
		zap.String("event_id", eventID),
		zap.String("label", string(label)))
	return nil
}

// MarkNotified posts /marcar_notificado/{eventID}
func (c *ClassifierClient) MarkNotified(ctx context.Context, eventID string) error {
	if !models.ValidEventID(eventID, c.placeholders) {
		return &models.ValidationError{Field: "event_id", Reason: fmt.Sprintf("%q is not feedback-eligible", eventID), Err: models.ErrInvalidEventID}
	}

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetPathParam("eventID", eventID).
		Post("/marcar_notificado/{eventID}")
	if err != nil {
		return fmt.Errorf("%w: mark notified: %v", models.ErrDisconnected, err)
	}
	if !resp.IsSuccess() {
		return &models.ServerError{Operation: "mark notified", StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	return nil
}

// ListPendingEvents returns the events awaiting feedback. When the last probe did not
// report Connected the result is empty and no request is made.
func (c *ClassifierClient) ListPendingEvents(ctx context.Context) ([]models.PendingEvent, error) {
	if c.State() != models.Connected {
		c.logger.Debug("Classifier not connected, skipping pending events")
		return []models.PendingEvent{}, nil
	}

	var events []models.PendingEvent
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&events).
		Get("/eventos_pendientes")
	if err != nil {
		return []models.PendingEvent{}, fmt.Errorf("%w: pending events: %v", models.ErrDisconnected, err)
	}
	if !resp.IsSuccess() {
		return []models.PendingEvent{}, &models.ServerError{Operation: "pending events", StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	if events == nil {
		events = []models.PendingEvent{}
	}

	c.logger.Debug("Pending events received", zap.Int("count", len(events)))
	return events, nil
}
