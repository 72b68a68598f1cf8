package services

import "alertaraven/models"

// Thresholds of the on-device classifier used while the app is in the background
const (
	backgroundEmergencyMagnitude = 2.5
	backgroundAccidentMagnitude  = 4.0
	backgroundAccidentRotation   = 3.0
)

// ClassifyLocally labels a background motion event without the remote service.
// The result carries no event id, so it is never feedback-eligible.
func ClassifyLocally(event *models.MotionEvent) models.ClassificationResult {
	acc := event.Accelerometer.Magnitude()
	gyro := event.Gyroscope.Magnitude()

	label := models.LabelNormal
	switch {
	case acc > backgroundAccidentMagnitude && gyro > backgroundAccidentRotation:
		label = models.LabelVehicleAccident
	case acc > backgroundEmergencyMagnitude:
		label = models.LabelPhoneFall
	}

	return models.ClassificationResult{
		Label:                 label,
		AccelerationMagnitude: acc,
		FastDetection:         true,
	}
}
