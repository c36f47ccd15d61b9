package metrics

import (
	"time"

	"go.uber.org/zap"

	"github.com/rastreogo/leadbot/internal/sanitize"
)

// EventLogger provides structured logging for conversation lifecycle
// events. It complements the Prometheus counters with searchable detail
// for funnel analysis and debugging.
type EventLogger struct {
	logger *zap.Logger
}

// NewEventLogger creates a new conversation event logger.
func NewEventLogger(logger *zap.Logger) *EventLogger {
	return &EventLogger{
		logger: logger.Named("events"),
	}
}

// MessageReceived logs an inbound message before dispatch.
func (l *EventLogger) MessageReceived(phone, kind string) {
	l.logger.Info("message_received",
		zap.String("event_type", "message.received"),
		zap.String("phone", sanitize.Phone(phone)),
		zap.String("kind", kind),
		zap.Time("timestamp", time.Now().UTC()),
	)
}

// StateChanged logs a conversation state transition.
func (l *EventLogger) StateChanged(phone, from, to string) {
	l.logger.Info("state_changed",
		zap.String("event_type", "conversation.state_changed"),
		zap.String("phone", sanitize.Phone(phone)),
		zap.String("from", from),
		zap.String("to", to),
		zap.Time("timestamp", time.Now().UTC()),
	)
}

// ProspectQualified logs a completed qualification interview.
func (l *EventLogger) ProspectQualified(phone, prospectType, potential, nextAction string, interestScore int) {
	l.logger.Info("prospect_qualified",
		zap.String("event_type", "prospect.qualified"),
		zap.String("phone", sanitize.Phone(phone)),
		zap.String("prospect_type", prospectType),
		zap.String("potential", potential),
		zap.String("next_action", nextAction),
		zap.Int("interest_score", interestScore),
		zap.Time("timestamp", time.Now().UTC()),
	)
}

// AppointmentBooked logs a confirmed calendar booking.
func (l *EventLogger) AppointmentBooked(phone, date, timeOfDay, eventID string) {
	l.logger.Info("appointment_booked",
		zap.String("event_type", "appointment.booked"),
		zap.String("phone", sanitize.Phone(phone)),
		zap.String("date", date),
		zap.String("time", timeOfDay),
		zap.String("event_id", eventID),
		zap.Time("timestamp", time.Now().UTC()),
	)
}

// ProspectExported logs a delivery to the export sink.
func (l *EventLogger) ProspectExported(phone, exportID, action string, success bool) {
	fields := []zap.Field{
		zap.String("event_type", "prospect.exported"),
		zap.String("phone", sanitize.Phone(phone)),
		zap.String("export_id", exportID),
		zap.String("action", action),
		zap.Bool("success", success),
		zap.Time("timestamp", time.Now().UTC()),
	}

	if success {
		l.logger.Info("prospect_exported", fields...)
	} else {
		l.logger.Warn("prospect_export_failed", fields...)
	}
}

// TakeoverChanged logs an operator seizing or releasing a session.
func (l *EventLogger) TakeoverChanged(phone, action string) {
	l.logger.Info("takeover_changed",
		zap.String("event_type", "takeover."+action),
		zap.String("phone", sanitize.Phone(phone)),
		zap.Time("timestamp", time.Now().UTC()),
	)
}

// HighInterestDetected logs the one-shot high-interest alert.
func (l *EventLogger) HighInterestDetected(phone string, interestScore int) {
	l.logger.Info("high_interest_detected",
		zap.String("event_type", "prospect.high_interest"),
		zap.String("phone", sanitize.Phone(phone)),
		zap.Int("interest_score", interestScore),
		zap.Time("timestamp", time.Now().UTC()),
	)
}
