package flow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/rastreogo/leadbot/internal/calendar"
	"github.com/rastreogo/leadbot/internal/classify"
	"github.com/rastreogo/leadbot/internal/domain"
)

type fakeLLM struct {
	responses []string
	err       error
	calls     int
}

func (f *fakeLLM) Complete(_ context.Context, _, _ string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if len(f.responses) == 0 {
		return "", errors.New("no scripted response")
	}
	resp := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return resp, nil
}

type fakeScheduler struct {
	slots     []calendar.Slot
	listErr   error
	createErr error
	created   *calendar.Slot
}

func (f *fakeScheduler) ListAvailable(_ context.Context) ([]calendar.Slot, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.slots, nil
}

func (f *fakeScheduler) CreateEvent(_ context.Context, _ *domain.Prospect, slot calendar.Slot) (*domain.AppointmentDetails, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = &slot
	return &domain.AppointmentDetails{
		Date:            slot.Date,
		Time:            slot.Time,
		ISO:             slot.ISO,
		MeetLink:        "https://meet.google.com/abc",
		CalendarEventID: "evt-1",
	}, nil
}

func testDeps(llm classify.Completer, sched calendar.Scheduler) Deps {
	return Deps{
		Classifier: classify.NewClassifier(llm, time.Second, zap.NewNop()),
		LLM:        llm,
		Calendar:   sched,
		BotName:    "Sofía",
		VendorName: "RastreoGo",
		LLMTimeout: time.Second,
		Logger:     zap.NewNop(),
	}
}

func newProspect() *domain.Prospect {
	return domain.NewProspect("5215512345678", time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
}

func TestInitial_WelcomePersonalizedBySource(t *testing.T) {
	m := NewModules(testDeps(nil, nil))
	h := m.For(domain.StateInitial)

	p := newProspect()
	p.Source = "facebook_ads"

	res, err := h.Handle(context.Background(), p, "Hola, me interesa")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.NextState != domain.StateGreeting {
		t.Errorf("NextState = %s", res.NextState)
	}
	if !strings.Contains(res.Reply, "Facebook") {
		t.Errorf("welcome should mention the source, got %q", res.Reply)
	}
	if !strings.Contains(res.Reply, "Sofía") {
		t.Errorf("welcome should carry the bot name, got %q", res.Reply)
	}
}

func TestGreeting_CapturesNameThenCompany(t *testing.T) {
	m := NewModules(testDeps(nil, nil))
	h := m.For(domain.StateGreeting)
	p := newProspect()

	res, err := h.Handle(context.Background(), p, "Soy Juan Pérez")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if p.Name != "Juan Pérez" {
		t.Errorf("name = %q", p.Name)
	}
	if res.NextState != "" {
		t.Errorf("should stay in GREETING for the company question, got %s", res.NextState)
	}
	if !strings.Contains(res.Reply, "empresa") {
		t.Errorf("reply should ask for company, got %q", res.Reply)
	}

	res, err = h.Handle(context.Background(), p, "Transportes X")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if p.Company != "Transportes X" {
		t.Errorf("company = %q", p.Company)
	}
	if res.NextState != domain.StateQualification {
		t.Errorf("NextState = %s", res.NextState)
	}
}

func TestGreeting_RefusalGoesAnonymous(t *testing.T) {
	m := NewModules(testDeps(nil, nil))
	h := m.For(domain.StateGreeting)
	p := newProspect()

	res, err := h.Handle(context.Background(), p, "no doy mi nombre")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !p.Anonymous {
		t.Error("prospect should be anonymous")
	}
	if p.Name != "" {
		t.Errorf("name should stay empty, got %q", p.Name)
	}
	if res.NextState != domain.StateQualification {
		t.Errorf("refusal should skip the company question, got %s", res.NextState)
	}
}

func TestQualification_FullInterviewHighValue(t *testing.T) {
	m := NewModules(testDeps(nil, nil))
	h := m.For(domain.StateQualification)

	p := newProspect()
	p.Name = "Juan Pérez"
	p.Company = "Transportes X"
	p.State = domain.StateQualification

	if q := h.Prompt(context.Background(), p); q != questionFleetSize {
		t.Errorf("Prompt = %q", q)
	}
	if p.Step != domain.StepFleetSize {
		t.Errorf("Step = %s", p.Step)
	}

	res, _ := h.Handle(context.Background(), p, "50 camiones")
	if p.FleetBucket != domain.FleetLarge {
		t.Errorf("bucket = %s", p.FleetBucket)
	}
	if res.Reply != questionSolution {
		t.Errorf("reply = %q", res.Reply)
	}

	res, _ = h.Handle(context.Background(), p, "No usamos nada")
	if p.HasSolution {
		t.Error("hasSolution should be false")
	}
	if res.Reply != questionTimeline {
		t.Errorf("reply = %q", res.Reply)
	}

	res, _ = h.Handle(context.Background(), p, "este mes")
	if p.Timeline != domain.TimelineShort {
		t.Errorf("timeline = %s", p.Timeline)
	}
	if res.Reply != questionRole {
		t.Errorf("reply = %q", res.Reply)
	}

	res, _ = h.Handle(context.Background(), p, "Gerente de Transporte")
	if !p.IsDecisionMaker {
		t.Error("should be decision maker")
	}
	if p.Step != domain.StepComplete {
		t.Errorf("Step = %s", p.Step)
	}
	if p.ProspectType != domain.TypeHighValue {
		t.Errorf("type = %s", p.ProspectType)
	}
	if res.NextState != domain.StateInterestValidation {
		t.Errorf("NextState = %s", res.NextState)
	}
	if res.Notification == "" {
		t.Error("expected high-interest notification")
	}
	if !p.HighInterestNotified {
		t.Error("notification flag should be set")
	}
}

func TestQualification_AnonymousSkipsRoleAndCollapses(t *testing.T) {
	m := NewModules(testDeps(nil, nil))
	h := m.For(domain.StateQualification)

	p := newProspect()
	p.Anonymous = true
	p.State = domain.StateQualification
	h.Prompt(context.Background(), p)

	h.Handle(context.Background(), p, "3 camiones")
	h.Handle(context.Background(), p, "no")
	res, _ := h.Handle(context.Background(), p, "tal vez el próximo año")

	if p.Step != domain.StepComplete {
		t.Errorf("Step = %s, role confirmation should be skipped", p.Step)
	}
	if p.ProspectType != domain.TypeCurious {
		t.Errorf("type = %s, want CURIOUS", p.ProspectType)
	}
	if res.NextState != domain.StateGeneralInquiry {
		t.Errorf("NextState = %s", res.NextState)
	}
	if res.Notification != "" {
		t.Error("no notification for low interest")
	}
}

func TestQualification_NotificationIsOneShot(t *testing.T) {
	m := NewModules(testDeps(nil, nil))
	h := m.For(domain.StateQualification).(*qualificationModule)

	p := newProspect()
	p.Name = "Juan"
	p.IsDecisionMaker = true
	p.FleetBucket = domain.FleetLarge

	first := h.complete(context.Background(), p)
	second := h.complete(context.Background(), p)

	if first.Notification == "" {
		t.Error("first completion should notify")
	}
	if second.Notification != "" {
		t.Error("second completion must not notify again")
	}
}

func TestInterestValidation_CITA(t *testing.T) {
	llm := &fakeLLM{responses: []string{"CITA"}}
	m := NewModules(testDeps(llm, nil))
	h := m.For(domain.StateInterestValidation)

	res, err := h.Handle(context.Background(), newProspect(), "sí, agendemos")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.NextState != domain.StateAppointmentScheduling {
		t.Errorf("NextState = %s", res.NextState)
	}
}

func TestInterestValidation_GarbageDefaultsToInfo(t *testing.T) {
	llm := &fakeLLM{responses: []string{"lo siento, no entiendo la tarea"}}
	m := NewModules(testDeps(llm, nil))
	h := m.For(domain.StateInterestValidation)

	res, _ := h.Handle(context.Background(), newProspect(), "sí, agendemos")
	if res.NextState != domain.StateGeneralInquiry {
		t.Errorf("garbage reduction should default to INFO, got %s", res.NextState)
	}
}

func TestInterestValidation_KeywordFallbackWithoutLLM(t *testing.T) {
	m := NewModules(testDeps(nil, nil))
	h := m.For(domain.StateInterestValidation)

	res, _ := h.Handle(context.Background(), newProspect(), "me gustaría agendar la llamada")
	if res.NextState != domain.StateAppointmentScheduling {
		t.Errorf("keyword fallback should detect CITA, got %s", res.NextState)
	}
}

func slotMenuScheduler() *fakeScheduler {
	return &fakeScheduler{slots: []calendar.Slot{
		{Date: "Martes 11 de marzo", Time: "10:00", ISO: "2025-03-11T10:00:00Z"},
		{Date: "Martes 11 de marzo", Time: "11:00", ISO: "2025-03-11T11:00:00Z"},
	}}
}

func TestScheduling_PromptOffersMenu(t *testing.T) {
	m := NewModules(testDeps(nil, slotMenuScheduler()))
	h := m.For(domain.StateAppointmentScheduling)
	p := newProspect()

	menu := h.Prompt(context.Background(), p)
	if !strings.Contains(menu, "10:00") || !strings.Contains(menu, "11:00") {
		t.Errorf("menu = %q", menu)
	}
	if len(p.OfferedSlots) != 2 {
		t.Errorf("offered slots = %d", len(p.OfferedSlots))
	}
}

func TestScheduling_ChoiceBooksSlot(t *testing.T) {
	sched := slotMenuScheduler()
	m := NewModules(testDeps(nil, sched))
	h := m.For(domain.StateAppointmentScheduling)

	p := newProspect()
	h.Prompt(context.Background(), p)

	res, err := h.Handle(context.Background(), p, "la 2 por favor")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.NextState != domain.StateClosing {
		t.Errorf("NextState = %s", res.NextState)
	}
	if p.Appointment == nil || p.Appointment.Time != "11:00" {
		t.Errorf("appointment = %+v", p.Appointment)
	}
	if sched.created == nil || sched.created.ISO != "2025-03-11T11:00:00Z" {
		t.Errorf("created slot = %+v", sched.created)
	}
	if len(p.OfferedSlots) != 0 {
		t.Error("offered slots should be cleared after booking")
	}
	if !strings.Contains(res.Reply, "meet.google.com") {
		t.Errorf("reply should include the meet link, got %q", res.Reply)
	}
}

func TestScheduling_InvalidChoiceReasks(t *testing.T) {
	m := NewModules(testDeps(nil, slotMenuScheduler()))
	h := m.For(domain.StateAppointmentScheduling)

	p := newProspect()
	h.Prompt(context.Background(), p)

	res, _ := h.Handle(context.Background(), p, "el jueves mejor")
	if res.NextState != "" {
		t.Errorf("invalid choice must keep the phase, got %s", res.NextState)
	}
	if !strings.Contains(res.Reply, "número") {
		t.Errorf("reply = %q", res.Reply)
	}
}

func TestScheduling_CalendarOutageFallback(t *testing.T) {
	sched := &fakeScheduler{listErr: errors.New("calendar down")}
	m := NewModules(testDeps(nil, sched))
	h := m.For(domain.StateAppointmentScheduling)
	p := newProspect()

	if prompt := h.Prompt(context.Background(), p); !strings.Contains(prompt, "día y hora") {
		t.Errorf("prompt should ask for a preferred time, got %q", prompt)
	}

	res, _ := h.Handle(context.Background(), p, "el jueves a las 10")
	if res.NextState != "" {
		t.Errorf("phase must stay unchanged during outage, got %s", res.NextState)
	}
	if !strings.Contains(res.Reply, "día y hora") {
		t.Errorf("reply = %q", res.Reply)
	}
	if p.Answers["preferred_time"] != "el jueves a las 10" {
		t.Error("preferred time should be recorded for the operator")
	}
}

func TestScheduling_NilCalendarFallback(t *testing.T) {
	m := NewModules(testDeps(nil, nil))
	h := m.For(domain.StateAppointmentScheduling)

	if prompt := h.Prompt(context.Background(), newProspect()); !strings.Contains(prompt, "día y hora") {
		t.Errorf("nil calendar should use the fallback, got %q", prompt)
	}
}

func TestClosing_Finalizar(t *testing.T) {
	llm := &fakeLLM{responses: []string{"FINALIZAR"}}
	m := NewModules(testDeps(llm, nil))
	h := m.For(domain.StateClosing)

	p := newProspect()
	p.Name = "Juan"

	res, _ := h.Handle(context.Background(), p, "eso es todo, gracias")
	if res.NextState != domain.StateClosed {
		t.Errorf("NextState = %s", res.NextState)
	}
	if !strings.Contains(res.Reply, "Gracias") {
		t.Errorf("reply = %q", res.Reply)
	}
}

func TestClosing_ConsultaRoutesToInquiry(t *testing.T) {
	llm := &fakeLLM{responses: []string{"CONSULTA"}}
	m := NewModules(testDeps(llm, nil))
	h := m.For(domain.StateClosing)

	res, _ := h.Handle(context.Background(), newProspect(), "tengo una duda del precio")
	if res.NextState != domain.StateGeneralInquiry {
		t.Errorf("NextState = %s", res.NextState)
	}
}

func TestForceClose(t *testing.T) {
	p := newProspect()
	res := ForceClose(p)

	if !p.ClosedByOperator {
		t.Error("ClosedByOperator should be set")
	}
	if res.NextState != domain.StateClosing {
		t.Errorf("NextState = %s", res.NextState)
	}
}

func TestInquiry_AppendsOfferOnce(t *testing.T) {
	llm := &fakeLLM{responses: []string{
		"Cubrimos toda la república.",
		`{"highInterest": true, "interestScore": 8, "shouldOfferAppointment": true, "reasoning": "pregunta por cobertura"}`,
		"Claro, el equipo se instala en una hora.",
		`{"highInterest": true, "interestScore": 8, "shouldOfferAppointment": true, "reasoning": "sigue interesado"}`,
	}}
	m := NewModules(testDeps(llm, nil))
	h := m.For(domain.StateGeneralInquiry)

	p := newProspect()
	res, err := h.Handle(context.Background(), p, "¿tienen cobertura en Monterrey?")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !strings.Contains(res.Reply, "demo") {
		t.Errorf("first answer should append the offer, got %q", res.Reply)
	}
	if !p.AppointmentOffered {
		t.Error("offer flag should be set")
	}
	if res.Notification == "" {
		t.Error("high-interest grade should notify")
	}

	res, _ = h.Handle(context.Background(), p, "¿y cuánto tarda la instalación?")
	if strings.Contains(res.Reply, "demo") {
		t.Errorf("offer must not repeat, got %q", res.Reply)
	}
	if res.Notification != "" {
		t.Error("notification is one-shot")
	}
}

func TestInquiry_AcceptedOfferRoutesToScheduling(t *testing.T) {
	m := NewModules(testDeps(nil, nil))
	h := m.For(domain.StateGeneralInquiry)

	p := newProspect()
	p.AppointmentOffered = true

	res, _ := h.Handle(context.Background(), p, "¡sí, me interesa!")
	if res.NextState != domain.StateAppointmentScheduling {
		t.Errorf("NextState = %s", res.NextState)
	}
}

func TestInquiry_NoLLMCannedReply(t *testing.T) {
	m := NewModules(testDeps(nil, nil))
	h := m.For(domain.StateGeneralInquiry)

	res, _ := h.Handle(context.Background(), newProspect(), "¿cuánto cuesta?")
	if !strings.Contains(res.Reply, "asesor") {
		t.Errorf("canned reply should hand off to a human, got %q", res.Reply)
	}
}

func TestModules_UnknownStateFallsBackToInitial(t *testing.T) {
	m := NewModules(testDeps(nil, nil))

	h := m.For(domain.ConversationState("ANCIENT"))
	res, _ := h.Handle(context.Background(), newProspect(), "hola")
	if res.NextState != domain.StateGreeting {
		t.Errorf("fallback handler should behave like INITIAL, got %s", res.NextState)
	}
}
