package models

import (
	"math"
	"time"
)

// Vec3 is a 3-axis sensor reading.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Magnitude returns the Euclidean norm of the vector.
func (v Vec3) Magnitude() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Array returns the reading in the [x, y, z] wire order.
func (v Vec3) Array() [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}

// SensorSample is a single accelerometer or gyroscope reading, timestamped at arrival.
type SensorSample struct {
	Vec3
	ArrivedAt time.Time
}

// MotionEvent is created by the sample filter when a gate fires. Immutable once sent.
type MotionEvent struct {
	Accelerometer Vec3
	Gyroscope     Vec3
	Timestamp     int64 // unix milliseconds
	DeviceID      string
	Background    bool
}

// MotionRequest is the body of POST /clasificar_movimiento.
type MotionRequest struct {
	AccelerometerData [3]float64 `json:"accelerometer_data"`
	GyroscopeData     [3]float64 `json:"gyroscope_data"`
	Timestamp         int64      `json:"timestamp"`
	DeviceID          string     `json:"device_id"`
}

// Request converts the event into its wire form.
func (e *MotionEvent) Request() MotionRequest {
	return MotionRequest{
		AccelerometerData: e.Accelerometer.Array(),
		GyroscopeData:     e.Gyroscope.Array(),
		Timestamp:         e.Timestamp,
		DeviceID:          e.DeviceID,
	}
}

// LocationFix is one platform location update.
type LocationFix struct {
	Speed       float64 `json:"speed"` // m/s, negative when unknown
	TimestampMs int64   `json:"timestamp"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

// SpeedSample is the persisted "previous" fix used by the deceleration rule.
type SpeedSample struct {
	Speed       float64
	TimestampMs int64
}
