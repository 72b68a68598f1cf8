package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"alertaraven/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

type smsRequest struct {
	Recipients []string `json:"recipients"`
	Message    string   `json:"message"`
}

type callRequest struct {
	Recipient string `json:"recipient"`
}

type dispatchResponse struct {
	Status models.DispatchStatus `json:"status"`
}

// DispatchGateway hands SMS and calls to the messaging gateway
type DispatchGateway struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewDispatchGateway creates a gateway client for baseURL
func NewDispatchGateway(baseURL string, timeout time.Duration, logger *zap.Logger) *DispatchGateway {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "AlertaRaven-Service/1.0")

	return &DispatchGateway{
		httpClient: client,
		logger:     logger,
	}
}

// SendSMS sends one multi-recipient message. When the gateway cannot batch
// (501 Not Implemented) each recipient gets its own send; the batch counts as sent
// only when every single send did.
func (g *DispatchGateway) SendSMS(ctx context.Context, recipients []string, message string) (models.DispatchStatus, error) {
	if len(recipients) == 0 {
		return models.DispatchFailed, models.ErrNoContacts
	}

	status, code, err := g.sendSMS(ctx, recipients, message)
	if code != http.StatusNotImplemented {
		return status, err
	}

	g.logger.Info("Batch SMS unsupported, sending per recipient", zap.Int("recipients", len(recipients)))

	overall := models.DispatchSent
	var firstErr error
	for _, r := range recipients {
		status, code, err := g.sendSMS(ctx, []string{r}, message)
		if err == nil && code == http.StatusNotImplemented {
			err = &models.ServerError{Operation: "sms", StatusCode: code, Body: "single-recipient sms not implemented"}
		}
		if err == nil && status == models.DispatchFailed {
			err = fmt.Errorf("sms to %s reported failure", r)
		}
		if err != nil {
			overall = models.DispatchFailed
			g.logger.Warn("Per-recipient SMS failed", zap.String("recipient", r), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if status == models.DispatchRequiresConfirmation && overall == models.DispatchSent {
			overall = status
		}
	}
	return overall, firstErr
}

func (g *DispatchGateway) sendSMS(ctx context.Context, recipients []string, message string) (models.DispatchStatus, int, error) {
	var result dispatchResponse
	resp, err := g.httpClient.R().
		SetContext(ctx).
		SetBody(smsRequest{Recipients: recipients, Message: message}).
		SetResult(&result).
		Post("/sms")
	if err != nil {
		return models.DispatchFailed, 0, fmt.Errorf("sms request failed: %w", err)
	}
	if resp.StatusCode() == http.StatusNotImplemented {
		return models.DispatchFailed, resp.StatusCode(), nil
	}
	if !resp.IsSuccess() {
		return models.DispatchFailed, resp.StatusCode(), &models.ServerError{Operation: "sms", StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	return normalizeStatus(result.Status), resp.StatusCode(), nil
}

// Call asks the gateway to dial recipient
func (g *DispatchGateway) Call(ctx context.Context, recipient string) (models.DispatchStatus, error) {
	var result dispatchResponse
	resp, err := g.httpClient.R().
		SetContext(ctx).
		SetBody(callRequest{Recipient: recipient}).
		SetResult(&result).
		Post("/call")
	if err != nil {
		return models.DispatchFailed, fmt.Errorf("call request failed: %w", err)
	}
	if !resp.IsSuccess() {
		return models.DispatchFailed, &models.ServerError{Operation: "call", StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	return normalizeStatus(result.Status), nil
}

func normalizeStatus(s models.DispatchStatus) models.DispatchStatus {
	switch s {
	case models.DispatchSent, models.DispatchFailed, models.DispatchRequiresConfirmation:
		return s
	case "":
		return models.DispatchSent
	default:
		return models.DispatchRequiresConfirmation
	}
}

// LogDispatcher records dispatches in the log when no gateway is configured
type LogDispatcher struct {
	logger *zap.Logger
}

func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) SendSMS(_ context.Context, recipients []string, message string) (models.DispatchStatus, error) {
	d.logger.Warn("No dispatch gateway configured, SMS requires manual confirmation",
		zap.Strings("recipients", recipients),
		zap.String("message", message))
	return models.DispatchRequiresConfirmation, nil
}

func (d *LogDispatcher) Call(_ context.Context, recipient string) (models.DispatchStatus, error) {
	d.logger.Warn("No dispatch gateway configured, call requires manual confirmation",
		zap.String("recipient", recipient))
	return models.DispatchRequiresConfirmation, nil
}
