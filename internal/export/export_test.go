package export

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/rastreogo/leadbot/internal/clock"
	"github.com/rastreogo/leadbot/internal/config"
	"github.com/rastreogo/leadbot/internal/domain"
	apperrors "github.com/rastreogo/leadbot/internal/errors"
)

var exportNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestSink(t *testing.T, handler http.HandlerFunc) *Sink {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewSink(&config.ExportConfig{WebhookURL: srv.URL}, clock.NewMock(exportNow), zap.NewNop())
}

func qualifiedProspect() *domain.Prospect {
	return &domain.Prospect{
		PhoneNumber:   "5215512345678",
		Name:          "Juan Pérez",
		Company:       "Transportes X",
		Source:        "facebook_ads",
		CampaignName:  "flotillas-q1",
		FleetSizeRaw:  "50 camiones",
		InterestScore: 9,
		State:         domain.StateClosed,
		Appointment: &domain.AppointmentDetails{
			Date: "Martes 11 de marzo",
			Time: "10:00",
			ISO:  "2025-03-11T10:00:00Z",
		},
	}
}

func TestExport_PostsExactFieldNames(t *testing.T) {
	var raw map[string]any
	sink := newTestSink(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &raw)
	})

	id, err := sink.Export(context.Background(), qualifiedProspect())
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if id == "" {
		t.Error("expected an export id")
	}

	// Field names are fixed by the receiving integration.
	for _, field := range []string{
		"Date", "Source", "Nombre campaña", "Nombre Prospecto", "Empresa",
		"Telefono", "Tamaño Flota", "Calificacion interes", "Cita (SI/NO)",
		"Fecha", "Hora", "Estatus", "Timestamp", "Accion",
	} {
		if _, ok := raw[field]; !ok {
			t.Errorf("payload missing field %q", field)
		}
	}

	if raw["Cita (SI/NO)"] != "SI" {
		t.Errorf("Cita = %v, want SI", raw["Cita (SI/NO)"])
	}
	if raw["Accion"] != ActionRegister {
		t.Errorf("Accion = %v, want %s", raw["Accion"], ActionRegister)
	}
	if raw["Calificacion interes"] != "9/10" {
		t.Errorf("Calificacion = %v", raw["Calificacion interes"])
	}
	if raw["Telefono"] != "5215512345678" {
		t.Errorf("Telefono = %v", raw["Telefono"])
	}
}

func TestExport_WebhookFailure(t *testing.T) {
	sink := newTestSink(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := sink.Export(context.Background(), qualifiedProspect())
	if err == nil {
		t.Fatal("expected error")
	}
	if apperrors.GetCode(err) != apperrors.CodeExport {
		t.Errorf("code = %s, want export", apperrors.GetCode(err))
	}
}

func TestBuildPayload_NoAppointment(t *testing.T) {
	p := qualifiedProspect()
	p.Appointment = nil

	payload := BuildPayload(p, exportNow)
	if payload.HasMeeting != "NO" {
		t.Errorf("HasMeeting = %q, want NO", payload.HasMeeting)
	}
	if payload.MeetingDate != "" || payload.MeetingTime != "" {
		t.Errorf("meeting fields should be empty, got %q %q", payload.MeetingDate, payload.MeetingTime)
	}
}

func TestBuildPayload_ActionUpdateOnReexport(t *testing.T) {
	p := qualifiedProspect()
	p.ExportID = "prior-export"

	if payload := BuildPayload(p, exportNow); payload.Action != ActionUpdate {
		t.Errorf("Action = %q, want %s", payload.Action, ActionUpdate)
	}
}

func TestBuildPayload_AnonymousProspect(t *testing.T) {
	p := &domain.Prospect{PhoneNumber: "5215512345678", Anonymous: true}

	payload := BuildPayload(p, exportNow)
	if payload.ProspectName != "prospecto" {
		t.Errorf("ProspectName = %q, want placeholder", payload.ProspectName)
	}
	if payload.InterestGrade != "" {
		t.Errorf("InterestGrade = %q, want empty for unscored prospect", payload.InterestGrade)
	}
}
