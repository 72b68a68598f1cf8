package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"alertaraven/models"
)

type fakeProfiles struct {
	mu       sync.Mutex
	snapshot models.ProfileSnapshot
	err      error
}

func (f *fakeProfiles) Snapshot(context.Context) (models.ProfileSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return models.ProfileSnapshot{}, f.err
	}
	contacts := make([]models.EmergencyContact, len(f.snapshot.Contacts))
	copy(contacts, f.snapshot.Contacts)
	return models.ProfileSnapshot{Contacts: contacts, Medical: f.snapshot.Medical}, nil
}

type fakeSurface struct {
	mu        sync.Mutex
	presented []models.AlertNotice
	dismissed []string
	warnings  []string
	err       error
}

func (f *fakeSurface) Present(_ context.Context, notice models.AlertNotice) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.presented = append(f.presented, notice)
	return fmt.Sprintf("notice-%d", len(f.presented)), nil
}

func (f *fakeSurface) Dismiss(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dismissed = append(f.dismissed, id)
	return nil
}

func (f *fakeSurface) Warn(_ context.Context, key, _, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.warnings = append(f.warnings, key)
}

func (f *fakeSurface) counts() (presented, dismissed, warnings int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.presented), len(f.dismissed), len(f.warnings)
}

func (f *fakeSurface) warningKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.warnings...)
}

type fakeHaptics struct {
	mu     sync.Mutex
	starts int
	stops  int
	cues   int
}

func (f *fakeHaptics) StartVibration(context.Context, []int, bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	return nil
}

func (f *fakeHaptics) StopVibration(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeHaptics) WarningCue(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cues++
	return nil
}

func (f *fakeHaptics) counts() (starts, stops, cues int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops, f.cues
}

type fakeDispatcher struct {
	mu         sync.Mutex
	smsStatus  models.DispatchStatus
	smsErr     error
	callStatus models.DispatchStatus
	callErr    error
	sms        [][]string
	messages   []string
	calls      []string
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{smsStatus: models.DispatchSent, callStatus: models.DispatchSent}
}

func (f *fakeDispatcher) SendSMS(_ context.Context, recipients []string, message string) (models.DispatchStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sms = append(f.sms, recipients)
	f.messages = append(f.messages, message)
	return f.smsStatus, f.smsErr
}

func (f *fakeDispatcher) Call(_ context.Context, recipient string) (models.DispatchStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recipient)
	return f.callStatus, f.callErr
}

func (f *fakeDispatcher) snapshot() (sms [][]string, messages []string, calls []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.sms...), append([]string(nil), f.messages...), append([]string(nil), f.calls...)
}

type feedbackCall struct {
	eventID string
	label   models.Label
}

type fakeFeedback struct {
	mu    sync.Mutex
	calls []feedbackCall
	err   error
}

func (f *fakeFeedback) Reconcile(_ context.Context, eventID string, label models.Label) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, feedbackCall{eventID: eventID, label: label})
	return f.err
}

type fakeClassifier struct {
	mu sync.Mutex

	state      models.ConnectivityState
	probeState models.ConnectivityState
	result     *models.ClassificationResult
	classifyFn func(ctx context.Context, event *models.MotionEvent) (*models.ClassificationResult, error)
	err        error
	pending    []models.PendingEvent

	probes     int
	classified []*models.MotionEvent
	feedback   []feedbackCall
	feedErr    error
	notified   []string
	notifyErr  error
	listed     int
}

func (f *fakeClassifier) ProbeConnectivity(context.Context) models.ConnectivityState {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes++
	f.state = f.probeState
	return f.state
}

func (f *fakeClassifier) State() models.ConnectivityState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeClassifier) Classify(ctx context.Context, event *models.MotionEvent) (*models.ClassificationResult, error) {
	f.mu.Lock()
	f.classified = append(f.classified, event)
	fn := f.classifyFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, event)
	}
	if f.err != nil {
		return nil, f.err
	}
	r := *f.result
	return &r, nil
}

func (f *fakeClassifier) SubmitFeedback(_ context.Context, eventID string, label models.Label) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feedback = append(f.feedback, feedbackCall{eventID: eventID, label: label})
	return f.feedErr
}

func (f *fakeClassifier) MarkNotified(_ context.Context, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified = append(f.notified, eventID)
	return f.notifyErr
}

func (f *fakeClassifier) ListPendingEvents(context.Context) ([]models.PendingEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listed++
	return f.pending, nil
}

func (f *fakeClassifier) classifyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.classified)
}

func (f *fakeClassifier) probeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.probes
}

func waitDone(t *testing.T, s interface{ Done() <-chan struct{} }, timeout time.Duration) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(timeout):
		t.Fatalf("session did not finish within %s", timeout)
	}
}

func testContacts(n int) []models.EmergencyContact {
	contacts := make([]models.EmergencyContact, n)
	for i := range contacts {
		contacts[i] = models.EmergencyContact{
			ID:    fmt.Sprintf("c%d", i+1),
			Name:  fmt.Sprintf("Contacto %d", i+1),
			Phone: fmt.Sprintf("+5200%d", i+1),
		}
	}
	return contacts
}
