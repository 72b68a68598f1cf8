package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"alertaraven/config"
	"alertaraven/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// vibrationPatternMs is played on repeat for the whole countdown
var vibrationPatternMs = []int{500, 500, 500, 500}

// AlertSurface shows cancellable alerts and warnings to the user
type AlertSurface interface {
	// Present shows the alert and returns an id that Dismiss accepts.
	Present(ctx context.Context, notice models.AlertNotice) (string, error)
	Dismiss(ctx context.Context, noticeID string) error
	// Warn shows a non-cancellable message. Repeated keys may be throttled.
	Warn(ctx context.Context, key, title, message string)
}

// Haptics drives the device vibration motor
type Haptics interface {
	StartVibration(ctx context.Context, patternMs []int, repeat bool) error
	StopVibration(ctx context.Context) error
	WarningCue(ctx context.Context) error
}

// Dispatcher sends the emergency SMS and places the call
type Dispatcher interface {
	SendSMS(ctx context.Context, recipients []string, message string) (models.DispatchStatus, error)
	Call(ctx context.Context, recipient string) (models.DispatchStatus, error)
}

// FeedbackSink receives the label the user confirmed for an event
type FeedbackSink interface {
	Reconcile(ctx context.Context, eventID string, label models.Label) error
}

// AlertOptions are the tunables of the alert state machine
type AlertOptions struct {
	Countdowns          map[models.Surface]time.Duration
	MaxContacts         int
	DispatchTimeout     time.Duration
	Location            *time.Location
	PlaceholderEventIDs []string
}

// AlertOptionsFromConfig reads the alert tunables from cfg
func AlertOptionsFromConfig(cfg *config.Config) AlertOptions {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		loc = time.UTC
	}
	return AlertOptions{
		Countdowns: map[models.Surface]time.Duration{
			models.SurfaceNotification: cfg.CountdownNotification,
			models.SurfaceDialog:       cfg.CountdownDialog,
			models.SurfaceBackground:   cfg.CountdownBackground,
		},
		MaxContacts:         cfg.MaxDispatchContacts,
		DispatchTimeout:     cfg.DispatchTimeout,
		Location:            loc,
		PlaceholderEventIDs: cfg.PlaceholderEventIDs,
	}
}

// AlertSession is one countdown-to-dispatch run. It is owned by the AlertMachine
// and handed to callers so they can cancel it.
type AlertSession struct {
	ID             string
	Source         models.DetectionSource
	Surface        models.Surface
	Classification models.ClassificationResult
	StartedAt      time.Time
	Snapshot       models.ProfileSnapshot

	mu       sync.Mutex
	state    models.AlertState
	timer    *time.Timer
	noticeID string
	outcomes []models.DispatchOutcome
	done     chan struct{}
	machine  *AlertMachine
}

// State returns the current lifecycle state
func (s *AlertSession) State() models.AlertState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Outcomes returns the dispatch outcomes once the session is dispatched
func (s *AlertSession) Outcomes() []models.DispatchOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.DispatchOutcome, len(s.outcomes))
	copy(out, s.outcomes)
	return out
}

// Err returns a *models.DispatchError when any dispatch channel failed
func (s *AlertSession) Err() error {
	return dispatchErr(s.ID, s.Outcomes())
}

// Done is closed when the session reaches a terminal state
func (s *AlertSession) Done() <-chan struct{} {
	return s.done
}

// Cancel stops the countdown. Cancelling a finished session is a no-op.
func (s *AlertSession) Cancel(ctx context.Context) {
	s.machine.cancelSession(ctx, s, "user")
}

// AlertMachine owns the single active AlertSession
type AlertMachine struct {
	mu     sync.Mutex
	active *AlertSession
	arming bool
	// abortArming is set by CancelActive while a trigger is still arming
	abortArming bool
	wg          sync.WaitGroup

	opts       AlertOptions
	profiles   ProfileReader
	surface    AlertSurface
	haptics    Haptics
	dispatcher Dispatcher
	feedback   FeedbackSink
	now        func() time.Time
	logger     *zap.Logger
	metrics    *Metrics
}

// NewAlertMachine creates the state machine. A nil haptics disables vibration and
// a nil feedback sink turns label confirmation into a plain cancel.
func NewAlertMachine(opts AlertOptions, profiles ProfileReader, surface AlertSurface, haptics Haptics, dispatcher Dispatcher, feedback FeedbackSink, logger *zap.Logger, metrics *Metrics) *AlertMachine {
	if haptics == nil {
		haptics = NoopHaptics{}
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.DispatchTimeout <= 0 {
		opts.DispatchTimeout = 30 * time.Second
	}
	return &AlertMachine{
		opts:       opts,
		profiles:   profiles,
		surface:    surface,
		haptics:    haptics,
		dispatcher: dispatcher,
		feedback:   feedback,
		now:        time.Now,
		logger:     logger,
		metrics:    metrics,
	}
}

// Trigger starts a countdown for an emergency classification. While a session is
// active the existing session is returned with ErrAlertInProgress and nothing is
// restarted.
func (m *AlertMachine) Trigger(ctx context.Context, trig models.Trigger) (*AlertSession, error) {
	if !trig.Classification.Label.IsEmergency() {
		return nil, &models.ValidationError{Field: "label", Reason: fmt.Sprintf("%q does not start an alert", trig.Classification.Label)}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.active != nil || m.arming {
		active := m.active
		m.mu.Unlock()
		m.metrics.AlertIgnored("in_progress")
		m.logger.Info("Trigger ignored, alert already in progress",
			zap.String("source", string(trig.Source)),
			zap.String("label", string(trig.Classification.Label)))
		return active, models.ErrAlertInProgress
	}
	m.arming = true
	m.mu.Unlock()

	session, err := m.arm(ctx, trig)
	if err != nil {
		m.mu.Lock()
		m.arming = false
		m.abortArming = false
		m.mu.Unlock()
		return nil, err
	}

	m.present(ctx, session)
	return session, nil
}

// arm snapshots the profile and starts vibration and the timer
func (m *AlertMachine) arm(ctx context.Context, trig models.Trigger) (*AlertSession, error) {
	snapshot, err := m.profiles.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot profile: %w", err)
	}

	if len(snapshot.DispatchContacts(m.opts.MaxContacts)) == 0 {
		m.metrics.AlertIgnored("no_contacts")
		m.logger.Warn("Alert refused, no emergency contacts configured",
			zap.String("source", string(trig.Source)))
		m.surface.Warn(ctx, "no_contacts", "Configuración incompleta",
			"Se detectó una emergencia pero no hay contactos de emergencia configurados.")
		return nil, &models.ValidationError{Field: "contacts", Reason: "at least one emergency contact is required", Err: models.ErrNoContacts}
	}

	surface := trig.Surface
	if surface == "" {
		surface = models.SurfaceDialog
	}

	session := &AlertSession{
		ID:             uuid.NewString(),
		Source:         trig.Source,
		Surface:        surface,
		Classification: trig.Classification,
		StartedAt:      m.now(),
		Snapshot:       snapshot,
		state:          models.StateCountdown,
		done:           make(chan struct{}),
		machine:        m,
	}

	if err := m.haptics.StartVibration(ctx, vibrationPatternMs, true); err != nil {
		m.logger.Warn("Failed to start vibration", zap.String("session_id", session.ID), zap.Error(err))
	}
	if err := m.haptics.WarningCue(ctx); err != nil {
		m.logger.Warn("Failed to play warning cue", zap.String("session_id", session.ID), zap.Error(err))
	}

	countdown := m.countdown(surface)

	m.mu.Lock()
	if err := m.armingAborted(ctx); err != nil {
		m.arming = false
		m.abortArming = false
		m.mu.Unlock()
		m.abort(ctx, session, err)
		return nil, err
	}
	m.active = session
	m.arming = false
	m.wg.Add(1)
	session.mu.Lock()
	session.timer = time.AfterFunc(countdown, func() { m.expire(session) })
	session.mu.Unlock()
	m.mu.Unlock()

	m.metrics.AlertStarted(trig.Source)
	m.logger.Info("Alert countdown started",
		zap.String("session_id", session.ID),
		zap.String("source", string(session.Source)),
		zap.String("surface", string(surface)),
		zap.String("label", string(trig.Classification.Label)),
		zap.Float64("magnitude", trig.Classification.AccelerationMagnitude),
		zap.String("event_id", trig.Classification.EventID),
		zap.Duration("countdown", countdown))

	return session, nil
}

// armingAborted must be called with m.mu held
func (m *AlertMachine) armingAborted(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.abortArming {
		return models.ErrAlertAborted
	}
	return nil
}

// abort undoes the side effects of a session that was never published
func (m *AlertMachine) abort(ctx context.Context, session *AlertSession, cause error) {
	session.mu.Lock()
	session.state = models.StateCancelled
	session.mu.Unlock()
	close(session.done)

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.DispatchTimeout)
	defer cancel()
	if err := m.haptics.StopVibration(stopCtx); err != nil {
		m.logger.Warn("Failed to stop vibration", zap.String("session_id", session.ID), zap.Error(err))
	}

	m.metrics.AlertCancelled()
	m.logger.Info("Alert aborted before countdown started",
		zap.String("session_id", session.ID),
		zap.String("source", string(session.Source)),
		zap.Error(cause))
}

// present renders the cancellable alert for an armed session
func (m *AlertMachine) present(ctx context.Context, session *AlertSession) {
	notice := models.AlertNotice{
		SessionID:      session.ID,
		Surface:        session.Surface,
		Title:          session.Classification.Label.Title(),
		Body:           NotificationBody(session.Classification) + "\n\n" + FormatMedicalSummary(session.Snapshot.Medical),
		Countdown:      m.countdown(session.Surface),
		Classification: session.Classification,
	}
	if session.Surface == models.SurfaceDialog && session.Classification.FeedbackEligible(m.opts.PlaceholderEventIDs) {
		notice.FeedbackLabels = []models.Label{models.LabelNormal, models.LabelPhoneFall, models.LabelVehicleAccident}
	}

	noticeID, err := m.surface.Present(ctx, notice)
	if err != nil {
		m.logger.Error("Failed to present alert", zap.String("session_id", session.ID), zap.Error(err))
		return
	}

	session.mu.Lock()
	session.noticeID = noticeID
	finished := session.state != models.StateCountdown
	session.mu.Unlock()

	// The session may have ended while the notice was being shown.
	if finished && noticeID != "" {
		if err := m.surface.Dismiss(ctx, noticeID); err != nil {
			m.logger.Warn("Failed to dismiss alert", zap.String("session_id", session.ID), zap.Error(err))
		}
	}
}

func (m *AlertMachine) countdown(surface models.Surface) time.Duration {
	if d, ok := m.opts.Countdowns[surface]; ok && d > 0 {
		return d
	}
	return 15 * time.Second
}

// Current returns the active session or nil
func (m *AlertMachine) Current() *AlertSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// State returns the state of the active session, or Idle
func (m *AlertMachine) State() models.AlertState {
	if s := m.Current(); s != nil {
		return s.State()
	}
	return models.StateIdle
}

// Cancel cancels the session with the given id. Unknown or finished sessions are
// ignored so that repeated cancels are harmless.
func (m *AlertMachine) Cancel(ctx context.Context, sessionID string) {
	s := m.Current()
	if s == nil || s.ID != sessionID {
		m.logger.Debug("Cancel for inactive session ignored", zap.String("session_id", sessionID))
		return
	}
	m.cancelSession(ctx, s, "user")
}

// CancelActive cancels whatever session is counting down. A trigger that is still
// arming is aborted before its countdown starts.
func (m *AlertMachine) CancelActive(ctx context.Context, reason string) {
	m.mu.Lock()
	s := m.active
	if s == nil && m.arming {
		m.abortArming = true
		m.logger.Info("Aborting alert that is still arming", zap.String("reason", reason))
	}
	m.mu.Unlock()

	if s != nil {
		m.cancelSession(ctx, s, reason)
	}
}

// ConfirmLabel cancels the countdown and reports the chosen label as feedback.
// A feedback failure is returned but the session stays cancelled.
func (m *AlertMachine) ConfirmLabel(ctx context.Context, sessionID string, label models.Label) error {
	s := m.Current()
	if s == nil || s.ID != sessionID {
		return models.ErrUnknownSession
	}
	m.cancelSession(ctx, s, "label_confirmed")

	if m.feedback == nil {
		return nil
	}
	if err := m.feedback.Reconcile(ctx, s.Classification.EventID, label); err != nil {
		m.logger.Warn("Feedback after label confirmation failed",
			zap.String("session_id", s.ID),
			zap.String("event_id", s.Classification.EventID),
			zap.Error(err))
		return fmt.Errorf("failed to submit feedback: %w", err)
	}
	return nil
}

func (m *AlertMachine) cancelSession(ctx context.Context, s *AlertSession, reason string) {
	s.mu.Lock()
	if s.state != models.StateCountdown {
		s.mu.Unlock()
		return
	}
	s.state = models.StateCancelled
	if s.timer != nil {
		s.timer.Stop()
	}
	noticeID := s.noticeID
	s.mu.Unlock()
	defer m.wg.Done()

	m.release(s)
	close(s.done)

	if err := m.haptics.StopVibration(ctx); err != nil {
		m.logger.Warn("Failed to stop vibration", zap.String("session_id", s.ID), zap.Error(err))
	}
	if noticeID != "" {
		if err := m.surface.Dismiss(ctx, noticeID); err != nil {
			m.logger.Warn("Failed to dismiss alert", zap.String("session_id", s.ID), zap.Error(err))
		}
	}

	m.metrics.AlertCancelled()
	m.logger.Info("Alert cancelled",
		zap.String("session_id", s.ID),
		zap.String("reason", reason))
}

func (m *AlertMachine) release(s *AlertSession) {
	m.mu.Lock()
	if m.active == s {
		m.active = nil
	}
	m.mu.Unlock()
}

// expire runs when the countdown elapses. The state check makes dispatch happen
// at most once per session.
func (m *AlertMachine) expire(s *AlertSession) {
	s.mu.Lock()
	if s.state != models.StateCountdown {
		s.mu.Unlock()
		return
	}
	s.state = models.StateDispatching
	noticeID := s.noticeID
	s.mu.Unlock()
	defer m.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), m.opts.DispatchTimeout)
	defer cancel()

	if err := m.haptics.StopVibration(ctx); err != nil {
		m.logger.Warn("Failed to stop vibration", zap.String("session_id", s.ID), zap.Error(err))
	}
	if noticeID != "" {
		if err := m.surface.Dismiss(ctx, noticeID); err != nil {
			m.logger.Warn("Failed to dismiss alert", zap.String("session_id", s.ID), zap.Error(err))
		}
	}

	m.metrics.AlertDispatched()
	outcomes := m.dispatch(ctx, s)

	s.mu.Lock()
	s.outcomes = outcomes
	s.state = models.StateDispatched
	s.mu.Unlock()
	m.release(s)
	defer close(s.done)

	if err := dispatchErr(s.ID, outcomes); err != nil {
		m.logger.Error("Emergency dispatch failed", zap.String("session_id", s.ID), zap.Error(err))
		m.surface.Warn(ctx, "dispatch:"+s.ID, "Error de envío",
			"No se pudo notificar a todos sus contactos de emergencia: "+err.Error())
		return
	}
	m.surface.Warn(ctx, "dispatch:"+s.ID, "Emergencia notificada",
		"Se notificó a sus contactos de emergencia.")
}

// dispatch sends one batched SMS to the first contacts, then calls the first one.
// Each channel is attempted regardless of the other's outcome.
func (m *AlertMachine) dispatch(ctx context.Context, s *AlertSession) []models.DispatchOutcome {
	contacts := s.Snapshot.DispatchContacts(m.opts.MaxContacts)
	recipients := make([]string, 0, len(contacts))
	for _, c := range contacts {
		recipients = append(recipients, c.Phone)
	}

	message := FormatEmergencyMessage(s.Classification.Label, s.Snapshot.Medical, m.now().In(m.opts.Location))

	var outcomes []models.DispatchOutcome

	status, err := m.dispatcher.SendSMS(ctx, recipients, message)
	outcomes = append(outcomes, m.record(s, models.ChannelSMS, recipients, status, err))

	first := recipients[:1]
	status, err = m.dispatcher.Call(ctx, first[0])
	outcomes = append(outcomes, m.record(s, models.ChannelCall, first, status, err))

	return outcomes
}

func (m *AlertMachine) record(s *AlertSession, channel models.Channel, recipients []string, status models.DispatchStatus, err error) models.DispatchOutcome {
	if err != nil {
		status = models.DispatchFailed
	} else if status == models.DispatchFailed {
		err = fmt.Errorf("%s dispatch reported failure", channel)
	}

	outcome := models.DispatchOutcome{
		Channel:    channel,
		Recipients: recipients,
		Status:     status,
		Err:        err,
		At:         m.now(),
	}
	m.metrics.DispatchOutcome(outcome)

	fields := []zap.Field{
		zap.String("session_id", s.ID),
		zap.String("channel", string(channel)),
		zap.String("status", string(status)),
		zap.Int("recipients", len(recipients)),
	}
	if err != nil {
		m.logger.Error("Dispatch action failed", append(fields, zap.Error(err))...)
	} else {
		m.logger.Info("Dispatch action completed", fields...)
	}
	return outcome
}

func dispatchErr(sessionID string, outcomes []models.DispatchOutcome) error {
	for _, o := range outcomes {
		if o.Status == models.DispatchFailed {
			return &models.DispatchError{SessionID: sessionID, Outcomes: outcomes}
		}
	}
	return nil
}

// Wait blocks until no session is counting down or dispatching, or ctx is done
func (m *AlertMachine) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
