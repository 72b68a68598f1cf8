package models

import "time"

// AlertState is the lifecycle state of an alert session
type AlertState string

const (
	StateIdle        AlertState = "idle"
	StateCountdown   AlertState = "countdown"
	StateDispatching AlertState = "dispatching"
	StateDispatched  AlertState = "dispatched"
	StateCancelled   AlertState = "cancelled"
)

// DetectionSource identifies which detector raised the trigger
type DetectionSource string

const (
	SourceMotion   DetectionSource = "motion"
	SourceLocation DetectionSource = "location"
)

// Surface is where the cancellable alert is shown. Each surface has its own countdown.
type Surface string

const (
	SurfaceNotification Surface = "notification"
	SurfaceDialog       Surface = "dialog"
	SurfaceBackground   Surface = "background"
)

// Channel is a dispatch channel
type Channel string

const (
	ChannelSMS  Channel = "sms"
	ChannelCall Channel = "call"
)

// DispatchStatus is the outcome reported for one dispatch action
type DispatchStatus string

const (
	DispatchSent                 DispatchStatus = "sent"
	DispatchFailed               DispatchStatus = "failed"
	DispatchRequiresConfirmation DispatchStatus = "requires_confirmation"
)

// DispatchOutcome records what happened on one channel
type DispatchOutcome struct {
	Channel    Channel
	Recipients []string
	Status     DispatchStatus
	Err        error
	At         time.Time
}

// Trigger asks the alert state machine to start a countdown
type Trigger struct {
	Source         DetectionSource
	Surface        Surface
	Classification ClassificationResult
}

// AlertNotice is what the alert surface renders for a session in countdown
type AlertNotice struct {
	SessionID      string
	Surface        Surface
	Title          string
	Body           string
	Countdown      time.Duration
	Classification ClassificationResult
	// FeedbackLabels are offered as choices when the event is feedback-eligible.
	FeedbackLabels []Label
}
