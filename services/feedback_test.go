package services

import (
	"context"
	"errors"
	"testing"

	"alertaraven/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestReconciler(classifier *fakeClassifier) (*FeedbackReconciler, *fakeSurface) {
	surface := &fakeSurface{}
	return NewFeedbackReconciler(classifier, surface, []string{"test-id"}, zap.NewNop()), surface
}

func TestFeedbackReconciler_RejectsInvalidIDWithoutNetwork(t *testing.T) {
	for _, id := range []string{"", "  ", "test-id"} {
		t.Run("id="+id, func(t *testing.T) {
			classifier := &fakeClassifier{probeState: models.Connected}
			r, surface := newTestReconciler(classifier)

			err := r.Reconcile(context.Background(), id, models.LabelNormal)

			require.Error(t, err)
			assert.True(t, models.IsValidation(err))
			assert.ErrorIs(t, err, models.ErrInvalidEventID)
			assert.Zero(t, classifier.probeCount())
			assert.Empty(t, classifier.feedback)
			assert.Equal(t, []string{"feedback_invalid"}, surface.warningKeys())
		})
	}
}

func TestFeedbackReconciler_DisconnectedSkipsSubmission(t *testing.T) {
	classifier := &fakeClassifier{probeState: models.Disconnected}
	r, surface := newTestReconciler(classifier)

	err := r.Reconcile(context.Background(), "42", models.LabelPhoneFall)

	assert.ErrorIs(t, err, models.ErrDisconnected)
	assert.Equal(t, 1, classifier.probeCount())
	assert.Empty(t, classifier.feedback)
	assert.Equal(t, []string{"feedback_disconnected"}, surface.warningKeys())
}

func TestFeedbackReconciler_FullFlow(t *testing.T) {
	classifier := &fakeClassifier{
		probeState: models.Connected,
		pending:    []models.PendingEvent{{ID: "7", EventType: "caída de teléfono"}},
	}
	r, _ := newTestReconciler(classifier)

	require.NoError(t, r.Reconcile(context.Background(), "42", models.LabelVehicleAccident))

	assert.Equal(t, []feedbackCall{{eventID: "42", label: models.LabelVehicleAccident}}, classifier.feedback)
	assert.Equal(t, []string{"42"}, classifier.notified)
	assert.Equal(t, 1, classifier.listed)
	require.Len(t, r.Pending(), 1)
	assert.Equal(t, "7", r.Pending()[0].ID)
}

func TestFeedbackReconciler_MarkNotifiedFailureIsNonFatal(t *testing.T) {
	classifier := &fakeClassifier{
		probeState: models.Connected,
		notifyErr:  &models.ServerError{Operation: "mark_notified", StatusCode: 404},
	}
	r, _ := newTestReconciler(classifier)

	require.NoError(t, r.Reconcile(context.Background(), "42", models.LabelNormal))
	assert.Len(t, classifier.feedback, 1)
	assert.Equal(t, 1, classifier.listed, "refresh still runs after mark-notified fails")
}

func TestFeedbackReconciler_SubmissionFailureStopsFlow(t *testing.T) {
	classifier := &fakeClassifier{
		probeState: models.Connected,
		feedErr:    errors.New("boom"),
	}
	r, surface := newTestReconciler(classifier)

	err := r.Reconcile(context.Background(), "42", models.LabelNormal)

	assert.ErrorContains(t, err, "boom")
	assert.Empty(t, classifier.notified)
	assert.Zero(t, classifier.listed)
	assert.Equal(t, []string{"feedback_failed"}, surface.warningKeys())
}

func TestFeedbackReconciler_UnknownLabel(t *testing.T) {
	classifier := &fakeClassifier{probeState: models.Connected}
	r, _ := newTestReconciler(classifier)

	err := r.Reconcile(context.Background(), "42", models.Label("otro"))
	assert.True(t, models.IsValidation(err))
	assert.Zero(t, classifier.probeCount())
}
