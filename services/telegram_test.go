package services

import (
	"fmt"
	"testing"
	"time"

	"alertaraven/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSessionID = "3f0c6a2e-8d5b-4d7e-9a41-6c2b1f0e9d88"

func TestCallbackData_RoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		action string
		label  models.Label
	}{
		{name: "cancel", action: ActionCancel},
		{name: "normal", action: ActionLabel, label: models.LabelNormal},
		{name: "fall", action: ActionLabel, label: models.LabelPhoneFall},
		{name: "accident", action: ActionLabel, label: models.LabelVehicleAccident},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := CallbackData(tt.action, testSessionID, tt.label)
			assert.LessOrEqual(t, len(data), 64)

			got, err := ParseCallback(data)
			require.NoError(t, err)
			assert.Equal(t, tt.action, got.Action)
			assert.Equal(t, testSessionID, got.SessionID)
			assert.Equal(t, tt.label, got.Label)
		})
	}
}

func TestParseCallback_Rejects(t *testing.T) {
	for _, data := range []string{"", "cancel", "cancel:", "label:x:" + testSessionID, "label:n:", "other:1"} {
		_, err := ParseCallback(data)
		assert.Error(t, err, data)
	}
}

func TestAlertKeyboard(t *testing.T) {
	dialog := models.AlertNotice{
		SessionID:      testSessionID,
		Surface:        models.SurfaceDialog,
		FeedbackLabels: []models.Label{models.LabelNormal, models.LabelPhoneFall, models.LabelVehicleAccident},
	}
	kb := alertKeyboard(dialog)
	require.Len(t, kb.InlineKeyboard, 2)
	require.Len(t, kb.InlineKeyboard[0], 3)
	assert.Equal(t, "Normal", kb.InlineKeyboard[0][0].Text)
	assert.Equal(t, "Caída de teléfono", kb.InlineKeyboard[0][1].Text)
	assert.Equal(t, "Accidente vehicular", kb.InlineKeyboard[0][2].Text)
	assert.Equal(t, "Cancelar alerta", kb.InlineKeyboard[1][0].Text)
	assert.Equal(t, "cancel:"+testSessionID, *kb.InlineKeyboard[1][0].CallbackData)

	notification := models.AlertNotice{SessionID: testSessionID, Surface: models.SurfaceNotification}
	kb = alertKeyboard(notification)
	require.Len(t, kb.InlineKeyboard, 1)
	assert.Equal(t, "Cancelar", kb.InlineKeyboard[0][0].Text)
}

func TestFormatAlertMessage(t *testing.T) {
	msg := formatAlertMessage(models.AlertNotice{
		Title:          "¡Caída Detectada!",
		Body:           "magnitud <3>",
		Countdown:      15 * time.Second,
		Classification: models.ClassificationResult{EventID: "42", FastDetection: true},
	})

	assert.Contains(t, msg, "<b>¡Caída Detectada!</b>")
	assert.Contains(t, msg, "magnitud &lt;3&gt;")
	assert.Contains(t, msg, "15 s")
	assert.Contains(t, msg, "<code>42</code>")
	assert.Contains(t, msg, "Detección rápida")
}

func TestTelegramService_WarnThrottle(t *testing.T) {
	now := time.Unix(1700000000, 0)
	ts := &TelegramService{
		lastWarnTimes: make(map[string]time.Time),
		now:           func() time.Time { return now },
	}

	assert.False(t, ts.shouldThrottle("disconnected"))
	assert.True(t, ts.shouldThrottle("disconnected"))
	assert.False(t, ts.shouldThrottle("other"))

	now = now.Add(14 * time.Second)
	assert.True(t, ts.shouldThrottle("disconnected"))

	now = now.Add(2 * time.Second)
	assert.False(t, ts.shouldThrottle("disconnected"))
}

func TestTelegramService_WarnThrottleEvictsExpiredKeys(t *testing.T) {
	now := time.Unix(1700000000, 0)
	ts := &TelegramService{
		lastWarnTimes: make(map[string]time.Time),
		now:           func() time.Time { return now },
	}

	for i := 0; i < 5; i++ {
		assert.False(t, ts.shouldThrottle(fmt.Sprintf("dispatch:%d", i)))
	}
	assert.Len(t, ts.lastWarnTimes, 5)

	now = now.Add(warnThrottle)
	assert.False(t, ts.shouldThrottle("dispatch:next"))
	assert.Len(t, ts.lastWarnTimes, 1)
	assert.Contains(t, ts.lastWarnTimes, "dispatch:next")
}

func TestTelegramService_FromChat(t *testing.T) {
	ts := &TelegramService{chatID: 1001}

	tests := []struct {
		name  string
		query *tgbotapi.CallbackQuery
		want  bool
	}{
		{name: "configured chat", query: &tgbotapi.CallbackQuery{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 1001}}}, want: true},
		{name: "other chat", query: &tgbotapi.CallbackQuery{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 2002}}}},
		{name: "inline message", query: &tgbotapi.CallbackQuery{InlineMessageID: "abc"}},
		{name: "no chat", query: &tgbotapi.CallbackQuery{Message: &tgbotapi.Message{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ts.fromChat(tt.query))
		})
	}
}

func TestFormatStatus(t *testing.T) {
	at := time.Date(2024, 3, 9, 14, 5, 0, 0, time.UTC)
	status := MonitorStatus{
		Active:      true,
		Permissions: models.Permissions{Motion: true, Location: true},
		Last:        &models.ClassificationResult{Label: models.LabelPhoneFall, AccelerationMagnitude: 2.94},
		Recent:      []models.HistoryEntry{{At: at.Add(-time.Minute)}, {At: at}},
	}

	msg := formatStatus(status, models.StateCountdown)
	assert.Contains(t, msg, "Monitoreo activo")
	assert.Contains(t, msg, "countdown")
	assert.Contains(t, msg, "segundo plano no")
	assert.Contains(t, msg, "Caída de teléfono (magnitud 2.94)")
	assert.Contains(t, msg, "2 eventos, último a las 14:05:00")

	msg = formatStatus(MonitorStatus{}, models.StateIdle)
	assert.Contains(t, msg, "Monitoreo detenido")
	assert.NotContains(t, msg, "Historial")
}
