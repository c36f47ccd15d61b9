// Package calendar books demo appointments on Google Calendar. It
// offers free slots inside configured business hours and creates events
// with a Meet link. When the calendar is not configured the engine runs
// scheduling in "suggest a time" degraded mode with a nil Scheduler.
package calendar

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/calendar/v3"

	"github.com/rastreogo/leadbot/internal/clock"
	"github.com/rastreogo/leadbot/internal/config"
	"github.com/rastreogo/leadbot/internal/domain"
	apperrors "github.com/rastreogo/leadbot/internal/errors"
	"github.com/rastreogo/leadbot/internal/metrics"
)

// Slot is an offered appointment slot.
type Slot struct {
	Date string `json:"date"` // human-readable Spanish date
	Time string `json:"time"` // HH:MM in the calendar timezone
	ISO  string `json:"iso"`  // RFC3339 start time
}

// Scheduler is the calendar collaborator used by the scheduling flow.
type Scheduler interface {
	ListAvailable(ctx context.Context) ([]Slot, error)
	CreateEvent(ctx context.Context, p *domain.Prospect, slot Slot) (*domain.AppointmentDetails, error)
}

// api is the slice of the Google Calendar service the Service uses.
// Kept narrow so tests can fake it.
type api interface {
	FreeBusy(ctx context.Context, req *calendar.FreeBusyRequest) (*calendar.FreeBusyResponse, error)
	InsertEvent(ctx context.Context, calendarID string, ev *calendar.Event) (*calendar.Event, error)
}

const (
	// Offer slots over the next few business days, capped for a
	// readable chat menu.
	lookaheadDays = 5
	maxSlots      = 5
)

// Service implements Scheduler over the Google Calendar API.
type Service struct {
	api        api
	calendarID string
	location   *time.Location
	slotLen    time.Duration
	dayStart   int
	dayEnd     int
	timeout    time.Duration
	vendorName string
	metrics    *metrics.Metrics
	clock      clock.Clock
	logger     *zap.Logger
}

// New creates a calendar service from config. It fails when credentials
// cannot be loaded; callers treat a nil Scheduler as degraded mode.
func New(cfg *config.CalendarConfig, vendorName string, m *metrics.Metrics, clk clock.Clock, logger *zap.Logger) (*Service, error) {
	svc, err := newGoogleService(cfg)
	if err != nil {
		return nil, apperrors.CalendarError(err)
	}
	return newService(&googleAPI{svc: svc}, cfg, vendorName, m, clk, logger), nil
}

func newService(a api, cfg *config.CalendarConfig, vendorName string, m *metrics.Metrics, clk clock.Clock, logger *zap.Logger) *Service {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil || cfg.Timezone == "" {
		loc = time.UTC
	}
	if clk == nil {
		clk = clock.New()
	}

	slotLen := cfg.SlotDuration
	if slotLen <= 0 {
		slotLen = 30 * time.Minute
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	dayStart, dayEnd := cfg.DayStartHour, cfg.DayEndHour
	if dayStart <= 0 {
		dayStart = 9
	}
	if dayEnd <= dayStart {
		dayEnd = 18
	}

	calendarID := cfg.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}

	return &Service{
		api:        a,
		calendarID: calendarID,
		location:   loc,
		slotLen:    slotLen,
		dayStart:   dayStart,
		dayEnd:     dayEnd,
		timeout:    timeout,
		vendorName: vendorName,
		metrics:    m,
		clock:      clk,
		logger:     logger,
	}
}

func (s *Service) record(operation string, err error) {
	if s.metrics != nil {
		s.metrics.RecordCalendarCall(operation, err)
	}
}

// ListAvailable returns free slots within business hours over the next
// few weekdays.
func (s *Service) ListAvailable(ctx context.Context) (slots []Slot, err error) {
	defer func() { s.record("list", err) }()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	now := s.clock.Now().In(s.location)
	windowStart := now
	windowEnd := now.AddDate(0, 0, lookaheadDays)

	resp, err := s.api.FreeBusy(ctx, &calendar.FreeBusyRequest{
		TimeMin: windowStart.Format(time.RFC3339),
		TimeMax: windowEnd.Format(time.RFC3339),
		Items:   []*calendar.FreeBusyRequestItem{{Id: s.calendarID}},
	})
	if err != nil {
		return nil, apperrors.CalendarError(fmt.Errorf("free/busy query failed: %w", err))
	}

	busy, err := parseBusy(resp, s.calendarID)
	if err != nil {
		return nil, apperrors.CalendarError(err)
	}

	for day := 0; day <= lookaheadDays && len(slots) < maxSlots; day++ {
		date := now.AddDate(0, 0, day)
		if date.Weekday() == time.Saturday || date.Weekday() == time.Sunday {
			continue
		}

		start := time.Date(date.Year(), date.Month(), date.Day(), s.dayStart, 0, 0, 0, s.location)
		end := time.Date(date.Year(), date.Month(), date.Day(), s.dayEnd, 0, 0, 0, s.location)

		for t := start; t.Add(s.slotLen).Before(end) || t.Add(s.slotLen).Equal(end); t = t.Add(s.slotLen) {
			if len(slots) >= maxSlots {
				break
			}
			// Leave some runway before the first offered slot.
			if t.Before(now.Add(time.Hour)) {
				continue
			}
			if overlapsBusy(t, t.Add(s.slotLen), busy) {
				continue
			}
			slots = append(slots, Slot{
				Date: FormatSpanishDate(t),
				Time: t.Format("15:04"),
				ISO:  t.Format(time.RFC3339),
			})
		}
	}

	return slots, nil
}

// CreateEvent books the slot and returns the stored appointment details.
func (s *Service) CreateEvent(ctx context.Context, p *domain.Prospect, slot Slot) (details *domain.AppointmentDetails, err error) {
	defer func() { s.record("create", err) }()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start, err := time.Parse(time.RFC3339, slot.ISO)
	if err != nil {
		return nil, apperrors.CalendarError(fmt.Errorf("invalid slot time %q: %w", slot.ISO, err))
	}
	end := start.Add(s.slotLen)

	event := &calendar.Event{
		Summary: fmt.Sprintf("Demo %s - %s", s.vendorName, p.DisplayName()),
		Description: fmt.Sprintf("Demostración de rastreo GPS.\nProspecto: %s\nEmpresa: %s\nTeléfono: %s",
			p.DisplayName(), p.Company, p.PhoneNumber),
		Start: &calendar.EventDateTime{
			DateTime: start.Format(time.RFC3339),
			TimeZone: s.location.String(),
		},
		End: &calendar.EventDateTime{
			DateTime: end.Format(time.RFC3339),
			TimeZone: s.location.String(),
		},
		ConferenceData: &calendar.ConferenceData{
			CreateRequest: &calendar.CreateConferenceRequest{
				RequestId: fmt.Sprintf("leadbot-%s-%d", p.PhoneNumber, start.Unix()),
				ConferenceSolutionKey: &calendar.ConferenceSolutionKey{
					Type: "hangoutsMeet",
				},
			},
		},
	}

	created, err := s.api.InsertEvent(ctx, s.calendarID, event)
	if err != nil {
		return nil, apperrors.CalendarError(fmt.Errorf("event insert failed: %w", err))
	}

	details = &domain.AppointmentDetails{
		Date:            slot.Date,
		Time:            slot.Time,
		ISO:             slot.ISO,
		CalendarEventID: created.Id,
		MeetLink:        meetLink(created),
	}

	s.logger.Info("appointment created",
		zap.String("event_id", created.Id),
		zap.String("start", slot.ISO),
	)

	return details, nil
}

func meetLink(ev *calendar.Event) string {
	if ev.HangoutLink != "" {
		return ev.HangoutLink
	}
	if ev.ConferenceData != nil {
		for _, ep := range ev.ConferenceData.EntryPoints {
			if ep.EntryPointType == "video" {
				return ep.Uri
			}
		}
	}
	return ""
}

type busyInterval struct {
	start, end time.Time
}

func parseBusy(resp *calendar.FreeBusyResponse, calendarID string) ([]busyInterval, error) {
	cal, ok := resp.Calendars[calendarID]
	if !ok {
		return nil, nil
	}
	intervals := make([]busyInterval, 0, len(cal.Busy))
	for _, b := range cal.Busy {
		start, err := time.Parse(time.RFC3339, b.Start)
		if err != nil {
			return nil, fmt.Errorf("invalid busy start %q: %w", b.Start, err)
		}
		end, err := time.Parse(time.RFC3339, b.End)
		if err != nil {
			return nil, fmt.Errorf("invalid busy end %q: %w", b.End, err)
		}
		intervals = append(intervals, busyInterval{start: start, end: end})
	}
	return intervals, nil
}

func overlapsBusy(start, end time.Time, busy []busyInterval) bool {
	for _, b := range busy {
		if start.Before(b.end) && b.start.Before(end) {
			return true
		}
	}
	return false
}

var spanishDays = map[time.Weekday]string{
	time.Monday:    "Lunes",
	time.Tuesday:   "Martes",
	time.Wednesday: "Miércoles",
	time.Thursday:  "Jueves",
	time.Friday:    "Viernes",
	time.Saturday:  "Sábado",
	time.Sunday:    "Domingo",
}

var spanishMonths = map[time.Month]string{
	time.January: "enero", time.February: "febrero", time.March: "marzo",
	time.April: "abril", time.May: "mayo", time.June: "junio",
	time.July: "julio", time.August: "agosto", time.September: "septiembre",
	time.October: "octubre", time.November: "noviembre", time.December: "diciembre",
}

// FormatSpanishDate renders "Lunes 2 de junio".
func FormatSpanishDate(t time.Time) string {
	return fmt.Sprintf("%s %d de %s", spanishDays[t.Weekday()], t.Day(), spanishMonths[t.Month()])
}
