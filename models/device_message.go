package models

import "time"

// DeviceMessageType identifies what a device stream message carries
type DeviceMessageType string

const (
	MessageAccelerometer DeviceMessageType = "accelerometer"
	MessageGyroscope     DeviceMessageType = "gyroscope"
	MessageLocation      DeviceMessageType = "location"
	MessagePermissions   DeviceMessageType = "permissions"
)

// Permissions mirrors the OS permission grants reported by the phone
type Permissions struct {
	Motion             bool `json:"motion"`
	Location           bool `json:"location"`
	BackgroundLocation bool `json:"background_location"`
	Notifications      bool `json:"notifications"`
}

// AllPermissions is the fully granted permission set
func AllPermissions() Permissions {
	return Permissions{Motion: true, Location: true, BackgroundLocation: true, Notifications: true}
}

// DeviceMessage represents one message of the phone's sensor/location stream
type DeviceMessage struct {
	Type        DeviceMessageType `json:"type"`
	DeviceID    string            `json:"device_id"`
	Background  bool              `json:"background"`
	Reading     *Vec3             `json:"reading,omitempty"`
	Location    *LocationFix      `json:"location,omitempty"`
	Permissions *Permissions      `json:"permissions,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}
