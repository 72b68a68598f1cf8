package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"alertaraven/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatEmergencyMessage_SavedRecordRoundTrip(t *testing.T) {
	_, store := setupTestStore(t)
	ctx := context.Background()

	saved := models.MedicalRecord{
		BloodType:          "O+",
		Allergies:          "Penicilina",
		Medications:        "Metformina",
		MedicalConditions:  "Asma",
		Height:             "172",
		Weight:             "70",
		Doctor:             "Dra. Ruiz",
		Insurance:          "IMSS",
		HasDiabetes:        true,
		HasHeartConditions: true,
		OtherInfo:          "Usa lentes",
	}
	require.NoError(t, store.SaveMedicalRecord(ctx, saved))

	loaded, err := store.MedicalRecord(ctx)
	require.NoError(t, err)

	at := time.Date(2024, 3, 9, 14, 5, 0, 0, time.UTC)
	msg := FormatEmergencyMessage(models.LabelPhoneFall, loaded, at)

	assert.True(t, strings.HasPrefix(msg, "🚨 EMERGENCIA DETECTADA 🚨\n"))
	assert.Contains(t, msg, "Tipo: CAÍDA\n")
	assert.Contains(t, msg, "Hora: 2024-03-09 14:05:00\n")
	assert.Contains(t, msg, "- Grupo sanguíneo: O+\n")
	assert.Contains(t, msg, "- Alergias: Penicilina\n")
	assert.Contains(t, msg, "- Medicamentos: Metformina\n")
	assert.Contains(t, msg, "- Condiciones médicas: Asma\n")
	assert.Contains(t, msg, "- Altura: 172 cm\n")
	assert.Contains(t, msg, "- Peso: 70 kg\n")
	assert.Contains(t, msg, "- Médico: Dra. Ruiz\n")
	assert.Contains(t, msg, "- Seguro: IMSS\n")
	assert.Contains(t, msg, "- Condiciones: Diabetes, Problemas cardíacos\n")
	assert.Contains(t, msg, "- Info adicional: Usa lentes\n")
	assert.True(t, strings.HasSuffix(msg, "Por favor, contacte inmediatamente."))
}

func TestFormatEmergencyMessage_Fallbacks(t *testing.T) {
	at := time.Date(2024, 3, 9, 14, 5, 0, 0, time.UTC)
	msg := FormatEmergencyMessage(models.LabelVehicleAccident, models.MedicalRecord{}, at)

	expected := []string{
		"Tipo: ACCIDENTE",
		"- Grupo sanguíneo: No especificado",
		"- Alergias: Ninguna",
		"- Medicamentos: Ninguno",
		"- Condiciones médicas: Ninguna",
		"- Altura: No especificada",
		"- Peso: No especificado",
		"- Médico: No especificado",
		"- Seguro: No especificado",
		"- Condiciones: Ninguna",
		"- Info adicional: Ninguna",
	}
	for _, line := range expected {
		assert.Contains(t, msg, line+"\n")
	}
	assert.NotContains(t, msg, " cm")
	assert.NotContains(t, msg, " kg")
}

func TestFormatEmergencyMessage_Deterministic(t *testing.T) {
	at := time.Date(2024, 3, 9, 14, 5, 0, 0, time.UTC)
	record := models.MedicalRecord{BloodType: "A-", HasHypertension: true}

	first := FormatEmergencyMessage(models.LabelPhoneFall, record, at)
	second := FormatEmergencyMessage(models.LabelPhoneFall, record, at)
	assert.Equal(t, first, second)
	assert.Contains(t, first, "- Condiciones: Hipertensión\n")
}

func TestNotificationBody(t *testing.T) {
	body := NotificationBody(models.ClassificationResult{Label: models.LabelVehicleAccident, AccelerationMagnitude: 4.567})
	assert.Contains(t, body, "un accidente")
	assert.Contains(t, body, "4.57")

	body = NotificationBody(models.ClassificationResult{Label: models.LabelPhoneFall, AccelerationMagnitude: 2.5})
	assert.Contains(t, body, "una caída")
}
