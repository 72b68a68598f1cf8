package services

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"sync"
	"time"

	"alertaraven/config"
	"alertaraven/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const warnThrottle = 15 * time.Second

// Callback actions carried in inline button data
const (
	ActionCancel = "cancel"
	ActionLabel  = "label"
)

var labelCodes = map[models.Label]string{
	models.LabelNormal:          "n",
	models.LabelPhoneFall:       "f",
	models.LabelVehicleAccident: "a",
}

// AlertController is what the alert buttons act on
type AlertController interface {
	State() models.AlertState
	Cancel(ctx context.Context, sessionID string)
	ConfirmLabel(ctx context.Context, sessionID string, label models.Label) error
}

// MonitorController is what the chat commands act on
type MonitorController interface {
	StartMonitoring(ctx context.Context, perms models.Permissions) error
	StopMonitoring(ctx context.Context)
	Status() MonitorStatus
}

// CallbackAction is a decoded inline button press
type CallbackAction struct {
	Action    string
	SessionID string
	Label     models.Label
}

// TelegramService is the alert surface: cancellable alerts with inline buttons,
// dismissal by message id, and throttled warnings.
type TelegramService struct {
	bot           *tgbotapi.BotAPI
	chatID        int64
	mu            sync.Mutex
	lastWarnTimes map[string]time.Time // Track last warning time per key
	now           func() time.Time
	logger        *zap.Logger
}

func NewTelegramService(cfg *config.Config, logger *zap.Logger) (*TelegramService, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("error creating telegram bot: %w", err)
	}

	chatID, err := strconv.ParseInt(cfg.TelegramChatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("error parsing chat ID: %w", err)
	}

	logger.Info("Telegram bot authorized", zap.String("username", bot.Self.UserName))

	ts := &TelegramService{
		bot:           bot,
		chatID:        chatID,
		lastWarnTimes: make(map[string]time.Time),
		now:           time.Now,
		logger:        logger,
	}

	// Test Telegram connection with retry
	if err := ts.testConnection(); err != nil {
		logger.Error("Telegram connection test failed", zap.Error(err))
		return nil, fmt.Errorf("telegram connection test failed: %w", err)
	}

	return ts, nil
}

// testConnection tests Telegram connection with retry logic
func (ts *TelegramService) testConnection() error {
	maxRetries := 3

	for attempt := 1; attempt <= maxRetries; attempt++ {
		ts.logger.Info("Testing Telegram connection", zap.Int("attempt", attempt), zap.Int("max_retries", maxRetries))

		_, err := ts.bot.GetMe()
		if err == nil {
			ts.logger.Info("Telegram connection successful")
			return nil
		}

		ts.logger.Warn("Telegram connection failed",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Error(err))

		if attempt < maxRetries {
			time.Sleep(time.Duration(attempt) * time.Second)
		}
	}

	return fmt.Errorf("failed to connect to Telegram after %d attempts", maxRetries)
}

// Present sends the alert with its action buttons and returns the message id
func (ts *TelegramService) Present(_ context.Context, notice models.AlertNotice) (string, error) {
	msg := tgbotapi.NewMessage(ts.chatID, formatAlertMessage(notice))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	msg.ReplyMarkup = alertKeyboard(notice)

	sent, err := ts.bot.Send(msg)
	if err != nil {
		return "", fmt.Errorf("error sending alert: %w", err)
	}

	ts.logger.Info("Alert presented",
		zap.String("session_id", notice.SessionID),
		zap.String("surface", string(notice.Surface)),
		zap.Int("message_id", sent.MessageID))
	return strconv.Itoa(sent.MessageID), nil
}

// Dismiss deletes a presented alert
func (ts *TelegramService) Dismiss(_ context.Context, noticeID string) error {
	messageID, err := strconv.Atoi(noticeID)
	if err != nil {
		return fmt.Errorf("invalid notice id %q: %w", noticeID, err)
	}

	if _, err := ts.bot.Request(tgbotapi.NewDeleteMessage(ts.chatID, messageID)); err != nil {
		return fmt.Errorf("error deleting alert message: %w", err)
	}
	return nil
}

// Warn sends a plain warning, at most once per key every 15 seconds
func (ts *TelegramService) Warn(_ context.Context, key, title, message string) {
	if ts.shouldThrottle(key) {
		ts.logger.Debug("Throttling warning", zap.String("key", key))
		return
	}

	msg := tgbotapi.NewMessage(ts.chatID, formatWarning(title, message))
	msg.ParseMode = tgbotapi.ModeHTML

	if _, err := ts.bot.Send(msg); err != nil {
		ts.logger.Error("Failed to send warning", zap.String("key", key), zap.Error(err))
	}
}

// shouldThrottle records the warning time and reports whether the previous one
// for key was less than 15 seconds ago. Expired keys are evicted.
func (ts *TelegramService) shouldThrottle(key string) bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	now := ts.now()
	last, exists := ts.lastWarnTimes[key]
	if exists && now.Sub(last) < warnThrottle {
		return true
	}
	for k, t := range ts.lastWarnTimes {
		if now.Sub(t) >= warnThrottle {
			delete(ts.lastWarnTimes, k)
		}
	}
	ts.lastWarnTimes[key] = now
	return false
}

// SendStartupMessage sends a message when the service starts
func (ts *TelegramService) SendStartupMessage() error {
	message := "🟢 <b>AlertaRaven iniciado</b>\n\n" +
		"📡 Escuchando sensores y ubicación del dispositivo\n" +
		"🤖 Alertas de emergencia activas\n\n" +
		"Comandos: /iniciar, /detener, /estado"

	msg := tgbotapi.NewMessage(ts.chatID, message)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := ts.bot.Send(msg)
	return err
}

// Listen handles button presses and commands until ctx is done
func (ts *TelegramService) Listen(ctx context.Context, alerts AlertController, monitor MonitorController) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := ts.bot.GetUpdatesChan(u)

	ts.logger.Info("Listening for Telegram updates")

	for {
		select {
		case <-ctx.Done():
			ts.bot.StopReceivingUpdates()
			ts.logger.Info("Telegram listener stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.CallbackQuery != nil {
				if !ts.fromChat(update.CallbackQuery) {
					ts.logger.Warn("Ignoring callback from another chat", zap.String("data", update.CallbackQuery.Data))
					continue
				}
				ts.handleCallback(ctx, update.CallbackQuery, alerts)
				continue
			}
			if update.Message != nil && update.Message.IsCommand() && update.Message.Chat.ID == ts.chatID {
				ts.handleCommand(ctx, update.Message.Command(), alerts, monitor)
			}
		}
	}
}

// fromChat reports whether the button press came from the configured chat
func (ts *TelegramService) fromChat(query *tgbotapi.CallbackQuery) bool {
	return query.Message != nil && query.Message.Chat != nil && query.Message.Chat.ID == ts.chatID
}

func (ts *TelegramService) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery, alerts AlertController) {
	answer := "Listo"

	action, err := ParseCallback(query.Data)
	if err != nil {
		ts.logger.Warn("Ignoring unknown callback", zap.String("data", query.Data), zap.Error(err))
		answer = "Acción desconocida"
	} else {
		switch action.Action {
		case ActionCancel:
			alerts.Cancel(ctx, action.SessionID)
			answer = "Alerta cancelada"
		case ActionLabel:
			if err := alerts.ConfirmLabel(ctx, action.SessionID, action.Label); err != nil {
				ts.logger.Warn("Label confirmation failed",
					zap.String("session_id", action.SessionID),
					zap.Error(err))
				answer = "Alerta cancelada, no se pudo enviar la retroalimentación"
			} else {
				answer = "Gracias por la retroalimentación"
			}
		}
	}

	if _, err := ts.bot.Request(tgbotapi.NewCallback(query.ID, answer)); err != nil {
		ts.logger.Debug("Failed to answer callback", zap.Error(err))
	}
}

func (ts *TelegramService) handleCommand(ctx context.Context, command string, alerts AlertController, monitor MonitorController) {
	switch command {
	case "iniciar", "start":
		if err := monitor.StartMonitoring(ctx, models.AllPermissions()); err != nil {
			ts.logger.Warn("Failed to start monitoring", zap.Error(err))
			return
		}
		ts.Warn(ctx, "monitoring", "Monitoreo", "Monitoreo iniciado.")
	case "detener", "stop":
		monitor.StopMonitoring(ctx)
		ts.Warn(ctx, "monitoring", "Monitoreo", "Monitoreo detenido.")
	case "estado", "status":
		msg := tgbotapi.NewMessage(ts.chatID, formatStatus(monitor.Status(), alerts.State()))
		msg.ParseMode = tgbotapi.ModeHTML
		if _, err := ts.bot.Send(msg); err != nil {
			ts.logger.Error("Failed to send status", zap.Error(err))
		}
	}
}

// formatStatus renders the reply to the status command
func formatStatus(status MonitorStatus, alert models.AlertState) string {
	var sb strings.Builder

	if status.Active {
		sb.WriteString("🟢 <b>Monitoreo activo</b>\n")
	} else {
		sb.WriteString("⚪ <b>Monitoreo detenido</b>\n")
	}
	sb.WriteString(fmt.Sprintf("🚨 <b>Alerta:</b> %s\n", alert))

	p := status.Permissions
	sb.WriteString(fmt.Sprintf("🔐 <b>Permisos:</b> movimiento %s, ubicación %s, segundo plano %s\n",
		yesNo(p.Motion), yesNo(p.Location), yesNo(p.BackgroundLocation)))

	if status.Last != nil {
		sb.WriteString(fmt.Sprintf("\n📊 <b>Última clasificación:</b> %s (magnitud %.2f)\n",
			labelDisplay(status.Last.Label), status.Last.AccelerationMagnitude))
	}
	if n := len(status.Recent); n > 0 {
		sb.WriteString(fmt.Sprintf("🕒 <b>Historial:</b> %d eventos, último a las %s\n",
			n, status.Recent[n-1].At.Format("15:04:05")))
	}

	return sb.String()
}

func yesNo(ok bool) string {
	if ok {
		return "sí"
	}
	return "no"
}

// CallbackData encodes a button action. Labels use one-letter codes to stay
// within Telegram's 64 byte limit.
func CallbackData(action, sessionID string, label models.Label) string {
	if action == ActionLabel {
		return fmt.Sprintf("%s:%s:%s", ActionLabel, labelCodes[label], sessionID)
	}
	return fmt.Sprintf("%s:%s", ActionCancel, sessionID)
}

// ParseCallback decodes button data produced by CallbackData
func ParseCallback(data string) (CallbackAction, error) {
	parts := strings.Split(data, ":")
	switch {
	case len(parts) == 2 && parts[0] == ActionCancel && parts[1] != "":
		return CallbackAction{Action: ActionCancel, SessionID: parts[1]}, nil
	case len(parts) == 3 && parts[0] == ActionLabel && parts[2] != "":
		for label, code := range labelCodes {
			if code == parts[1] {
				return CallbackAction{Action: ActionLabel, SessionID: parts[2], Label: label}, nil
			}
		}
		return CallbackAction{}, fmt.Errorf("unknown label code %q", parts[1])
	}
	return CallbackAction{}, fmt.Errorf("malformed callback data %q", data)
}

// alertKeyboard builds the buttons for a notice. The dialog surface offers the
// feedback labels when the event can receive feedback.
func alertKeyboard(notice models.AlertNotice) tgbotapi.InlineKeyboardMarkup {
	cancelText := "Cancelar"
	var rows [][]tgbotapi.InlineKeyboardButton

	if notice.Surface == models.SurfaceDialog {
		cancelText = "Cancelar alerta"
		if len(notice.FeedbackLabels) > 0 {
			var row []tgbotapi.InlineKeyboardButton
			for _, label := range notice.FeedbackLabels {
				row = append(row, tgbotapi.NewInlineKeyboardButtonData(labelDisplay(label), CallbackData(ActionLabel, notice.SessionID, label)))
			}
			rows = append(rows, row)
		}
	}

	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(cancelText, CallbackData(ActionCancel, notice.SessionID, "")),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func labelDisplay(label models.Label) string {
	switch label {
	case models.LabelNormal:
		return "Normal"
	case models.LabelPhoneFall:
		return "Caída de teléfono"
	case models.LabelVehicleAccident:
		return "Accidente vehicular"
	}
	return string(label)
}

// formatAlertMessage creates the alert text shown above the buttons
func formatAlertMessage(notice models.AlertNotice) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("🚨 <b>%s</b> 🚨\n\n", html.EscapeString(notice.Title)))
	sb.WriteString(html.EscapeString(notice.Body))
	sb.WriteString("\n\n")
	sb.WriteString(fmt.Sprintf("⏱️ <b>Cuenta regresiva:</b> %s\n", formatDuration(notice.Countdown)))
	if notice.Classification.EventID != "" {
		sb.WriteString(fmt.Sprintf("🆔 <b>Evento:</b> <code>%s</code>\n", html.EscapeString(notice.Classification.EventID)))
	}
	if notice.Classification.FastDetection {
		sb.WriteString("⚡ Detección rápida\n")
	}

	return sb.String()
}

func formatWarning(title, message string) string {
	return fmt.Sprintf("⚠️ <b>%s</b>\n\n%s", html.EscapeString(title), html.EscapeString(message))
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0f s", d.Seconds())
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%d min %d s", minutes, seconds)
}

// LogSurface writes alerts to the log when no chat is configured
type LogSurface struct {
	logger *zap.Logger
}

func NewLogSurface(logger *zap.Logger) *LogSurface {
	return &LogSurface{logger: logger}
}

func (l *LogSurface) Present(_ context.Context, notice models.AlertNotice) (string, error) {
	l.logger.Warn("ALERT",
		zap.String("session_id", notice.SessionID),
		zap.String("title", notice.Title),
		zap.String("body", notice.Body),
		zap.Duration("countdown", notice.Countdown))
	return notice.SessionID, nil
}

func (l *LogSurface) Dismiss(_ context.Context, noticeID string) error {
	l.logger.Info("Alert dismissed", zap.String("notice_id", noticeID))
	return nil
}

func (l *LogSurface) Warn(_ context.Context, key, title, message string) {
	l.logger.Warn(title, zap.String("key", key), zap.String("message", message))
}
