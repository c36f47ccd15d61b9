// Package export posts qualified prospect records to the sales team's
// intake webhook. Field names in the payload are fixed by the receiving
// spreadsheet integration and must not change.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rastreogo/leadbot/internal/circuitbreaker"
	"github.com/rastreogo/leadbot/internal/clock"
	"github.com/rastreogo/leadbot/internal/config"
	"github.com/rastreogo/leadbot/internal/domain"
	apperrors "github.com/rastreogo/leadbot/internal/errors"
)

// Actions understood by the receiving end.
const (
	ActionRegister = "registro_prospecto"
	ActionUpdate   = "actualizacion_prospecto"
)

// Payload is the exact JSON document the webhook expects.
type Payload struct {
	Date          string `json:"Date"`
	Source        string `json:"Source"`
	CampaignName  string `json:"Nombre campaña"`
	ProspectName  string `json:"Nombre Prospecto"`
	Company       string `json:"Empresa"`
	Phone         string `json:"Telefono"`
	FleetSize     string `json:"Tamaño Flota"`
	InterestGrade string `json:"Calificacion interes"`
	HasMeeting    string `json:"Cita (SI/NO)"`
	MeetingDate   string `json:"Fecha"`
	MeetingTime   string `json:"Hora"`
	Status        string `json:"Estatus"`
	Timestamp     string `json:"Timestamp"`
	Action        string `json:"Accion"`
}

// Sink delivers prospect records to the configured webhook.
type Sink struct {
	webhookURL     string
	httpClient     *http.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	clock          clock.Clock
	logger         *zap.Logger
}

// NewSink creates an export sink. A nil clk defaults to the real clock.
func NewSink(cfg *config.ExportConfig, clk clock.Clock, logger *zap.Logger) *Sink {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if clk == nil {
		clk = clock.New()
	}

	return &Sink{
		webhookURL: cfg.WebhookURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		circuitBreaker: circuitbreaker.New("export-webhook", nil, clk, logger),
		clock:          clk,
		logger:         logger,
	}
}

// Export posts the prospect record and returns the export id assigned to
// this delivery. Failures are returned for logging but callers must not
// block conversation transitions on them.
func (s *Sink) Export(ctx context.Context, p *domain.Prospect) (string, error) {
	payload := BuildPayload(p, s.clock.NowUTC())
	exportID := uuid.NewString()

	err := s.circuitBreaker.Execute(ctx, func(ctx context.Context) error {
		return s.post(ctx, payload)
	})
	if err != nil {
		return "", apperrors.ExportError(err)
	}

	s.logger.Info("prospect exported",
		zap.String("phone", p.PhoneNumber),
		zap.String("action", payload.Action),
		zap.String("export_id", exportID),
	)

	return exportID, nil
}

func (s *Sink) post(ctx context.Context, payload *Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal export payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create export request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("export request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("export webhook returned status %d", resp.StatusCode)
	}

	return nil
}

// BuildPayload maps a prospect record to the webhook document. A
// previously assigned export id marks the record as an update.
func BuildPayload(p *domain.Prospect, now time.Time) *Payload {
	action := ActionRegister
	if p.ExportID != "" {
		action = ActionUpdate
	}

	payload := &Payload{
		Date:          now.Format("2006-01-02"),
		Source:        p.Source,
		CampaignName:  p.CampaignName,
		ProspectName:  p.DisplayName(),
		Company:       p.Company,
		Phone:         p.PhoneNumber,
		FleetSize:     p.FleetSizeRaw,
		InterestGrade: interestGrade(p),
		HasMeeting:    "NO",
		Status:        string(p.State),
		Timestamp:     now.Format(time.RFC3339),
		Action:        action,
	}

	if p.Appointment != nil {
		payload.HasMeeting = "SI"
		payload.MeetingDate = p.Appointment.Date
		payload.MeetingTime = p.Appointment.Time
	}

	return payload
}

func interestGrade(p *domain.Prospect) string {
	if p.InterestScore <= 0 {
		return ""
	}
	return fmt.Sprintf("%d/10", p.InterestScore)
}
