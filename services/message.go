package services

import (
	"fmt"
	"strings"
	"time"

	"alertaraven/models"
)

const messageTimeLayout = "2006-01-02 15:04:05"

// FormatEmergencyMessage builds the SMS body sent to emergency contacts. The output
// depends only on its arguments.
func FormatEmergencyMessage(label models.Label, medical models.MedicalRecord, at time.Time) string {
	var sb strings.Builder

	sb.WriteString("🚨 EMERGENCIA DETECTADA 🚨\n")
	sb.WriteString(fmt.Sprintf("Tipo: %s\n", eventType(label)))
	sb.WriteString(fmt.Sprintf("Hora: %s\n\n", at.Format(messageTimeLayout)))

	sb.WriteString("Información médica:\n")
	sb.WriteString(FormatMedicalSummary(medical))
	sb.WriteString("\n\nPor favor, contacte inmediatamente.")

	return sb.String()
}

// FormatMedicalSummary renders one line per medical field with its fallback
func FormatMedicalSummary(medical models.MedicalRecord) string {
	lines := []string{
		"- Grupo sanguíneo: " + orDefault(medical.BloodType, "No especificado"),
		"- Alergias: " + orDefault(medical.Allergies, "Ninguna"),
		"- Medicamentos: " + orDefault(medical.Medications, "Ninguno"),
		"- Condiciones médicas: " + orDefault(medical.MedicalConditions, "Ninguna"),
		"- Altura: " + withUnit(medical.Height, "cm", "No especificada"),
		"- Peso: " + withUnit(medical.Weight, "kg", "No especificado"),
		"- Médico: " + orDefault(medical.Doctor, "No especificado"),
		"- Seguro: " + orDefault(medical.Insurance, "No especificado"),
		"- Condiciones: " + conditionsClause(medical),
		"- Info adicional: " + orDefault(medical.OtherInfo, "Ninguna"),
	}
	return strings.Join(lines, "\n")
}

// NotificationBody is the short text shown on the cancellable alert
func NotificationBody(result models.ClassificationResult) string {
	what := "un evento"
	switch result.Label {
	case models.LabelPhoneFall:
		what = "una caída"
	case models.LabelVehicleAccident:
		what = "un accidente"
	}
	return fmt.Sprintf("Se ha detectado %s (magnitud %.2f). Se notificará a sus contactos de emergencia si no cancela.",
		what, result.AccelerationMagnitude)
}

func eventType(label models.Label) string {
	if label == models.LabelPhoneFall {
		return "CAÍDA"
	}
	return "ACCIDENTE"
}

func conditionsClause(medical models.MedicalRecord) string {
	var conditions []string
	if medical.HasDiabetes {
		conditions = append(conditions, "Diabetes")
	}
	if medical.HasHypertension {
		conditions = append(conditions, "Hipertensión")
	}
	if medical.HasHeartConditions {
		conditions = append(conditions, "Problemas cardíacos")
	}
	if len(conditions) == 0 {
		return "Ninguna"
	}
	return strings.Join(conditions, ", ")
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func withUnit(value, unit, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value + " " + unit
}
