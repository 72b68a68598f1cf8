package services

import (
	"context"
	"fmt"
	"sync"

	"alertaraven/models"

	"go.uber.org/zap"
)

// FeedbackReconciler reports corrected labels to the classification service and
// keeps the pending-events list fresh.
type FeedbackReconciler struct {
	classifier   Classifier
	surface      AlertSurface
	placeholders []string
	logger       *zap.Logger

	mu      sync.RWMutex
	pending []models.PendingEvent
}

// NewFeedbackReconciler creates a reconciler on top of classifier
func NewFeedbackReconciler(classifier Classifier, surface AlertSurface, placeholders []string, logger *zap.Logger) *FeedbackReconciler {
	return &FeedbackReconciler{
		classifier:   classifier,
		surface:      surface,
		placeholders: placeholders,
		logger:       logger,
	}
}

// Reconcile submits label as the true classification of eventID, then marks the
// event notified and refreshes the pending list. Only the submission can fail the
// call; the two follow-up steps are logged and never undo it.
func (r *FeedbackReconciler) Reconcile(ctx context.Context, eventID string, label models.Label) error {
	if !models.ValidEventID(eventID, r.placeholders) {
		err := &models.ValidationError{Field: "event_id", Reason: fmt.Sprintf("%q cannot receive feedback", eventID), Err: models.ErrInvalidEventID}
		r.surface.Warn(ctx, "feedback_invalid", "Error", "ID de evento inválido.")
		return err
	}
	if _, ok := models.ParseLabel(string(label)); !ok {
		return &models.ValidationError{Field: "label", Reason: fmt.Sprintf("unknown label %q", label)}
	}

	if state := r.classifier.ProbeConnectivity(ctx); state != models.Connected {
		r.logger.Warn("Feedback skipped, classifier unreachable", zap.String("event_id", eventID))
		r.surface.Warn(ctx, "feedback_disconnected", "Error", "No hay conexión con el servidor.")
		return fmt.Errorf("feedback for event %s: %w", eventID, models.ErrDisconnected)
	}

	if err := r.classifier.SubmitFeedback(ctx, eventID, label); err != nil {
		r.logger.Error("Failed to submit feedback",
			zap.String("event_id", eventID),
			zap.String("label", string(label)),
			zap.Error(err))
		r.surface.Warn(ctx, "feedback_failed", "Error", "No se pudo enviar la retroalimentación.")
		return fmt.Errorf("feedback for event %s: %w", eventID, err)
	}

	r.logger.Info("Feedback submitted",
		zap.String("event_id", eventID),
		zap.String("label", string(label)))

	if err := r.classifier.MarkNotified(ctx, eventID); err != nil {
		r.logger.Warn("Failed to mark event notified",
			zap.String("event_id", eventID),
			zap.Error(err))
	}

	if err := r.RefreshPending(ctx); err != nil {
		r.logger.Warn("Failed to refresh pending events", zap.Error(err))
	}

	return nil
}

// RefreshPending reloads the pending-events list. While disconnected the list is
// replaced by an empty one.
func (r *FeedbackReconciler) RefreshPending(ctx context.Context) error {
	events, err := r.classifier.ListPendingEvents(ctx)
	if err != nil {
		return fmt.Errorf("failed to list pending events: %w", err)
	}

	r.mu.Lock()
	r.pending = events
	r.mu.Unlock()

	r.logger.Debug("Pending events refreshed", zap.Int("count", len(events)))
	return nil
}

// Pending returns the last fetched pending events
func (r *FeedbackReconciler) Pending() []models.PendingEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.PendingEvent, len(r.pending))
	copy(out, r.pending)
	return out
}
