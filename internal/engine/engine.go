// Package engine owns message dispatch: it turns inbound transport
// events into flow module invocations, persists the resulting prospect
// record, and delivers the reply. Flow modules decide WHAT to say; the
// engine decides whether the bot speaks at all (takeover, commands,
// reopening) and guarantees the state machine's edges.
package engine

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/rastreogo/leadbot/internal/clock"
	"github.com/rastreogo/leadbot/internal/domain"
	"github.com/rastreogo/leadbot/internal/flow"
	"github.com/rastreogo/leadbot/internal/metrics"
	"github.com/rastreogo/leadbot/internal/phone"
	"github.com/rastreogo/leadbot/internal/sanitize"
	"github.com/rastreogo/leadbot/internal/store"
	"github.com/rastreogo/leadbot/internal/transport"
)

const jidSuffix = "@s.whatsapp.net"

// apologyReply is sent when a dispatch fails internally. The prospect's
// state is left untouched so the next message retries the same phase.
const apologyReply = "Disculpa, tuve un problema técnico 😓. ¿Me repites tu mensaje?"

// audioFallbackReply is sent when a voice note cannot be transcribed.
const audioFallbackReply = "¡Gracias por tu mensaje de voz! Por el momento no puedo escucharlo 🙏. ¿Me lo escribes por favor?"

// Transcriber converts an audio message into text. Nil disables voice
// note handling.
type Transcriber interface {
	Transcribe(ctx context.Context, audioURL, mediaType, language string) (string, error)
}

// Exporter delivers a finished prospect to the external sink. Nil
// disables exporting.
type Exporter interface {
	Export(ctx context.Context, p *domain.Prospect) (string, error)
}

// Deliverer sends the bot's replies with human pacing.
type Deliverer interface {
	Deliver(ctx context.Context, jid, text string, readIDs []string) error
}

// Config carries the engine's behavioral settings.
type Config struct {
	// OperatorNumbers may issue supervisory commands from their own
	// chats. Messages sent from the business account (fromMe) are always
	// authorized.
	OperatorNumbers []string
	// NotifyNumber receives high-interest alerts. Empty disables them.
	NotifyNumber string
}

// Engine is the message dispatcher.
type Engine struct {
	store       *store.Store
	modules     *flow.Modules
	deliverer   Deliverer
	sender      transport.Sender
	transcriber Transcriber
	exporter    Exporter
	resolver    *phone.Resolver
	metrics     *metrics.Metrics
	events      *metrics.EventLogger
	errorRates  *metrics.ErrorRateTracker
	clock       clock.Clock
	logger      *zap.Logger

	operators map[string]struct{}
	notifyJid string
}

// New creates an Engine. transcriber and exporter may be nil; their
// features degrade per the module contracts. A nil clk defaults to the
// real clock.
func New(
	st *store.Store,
	modules *flow.Modules,
	deliverer Deliverer,
	sender transport.Sender,
	transcriber Transcriber,
	exporter Exporter,
	resolver *phone.Resolver,
	m *metrics.Metrics,
	tracker *metrics.ErrorRateTracker,
	cfg Config,
	clk clock.Clock,
	logger *zap.Logger,
) *Engine {
	if clk == nil {
		clk = clock.New()
	}
	operators := make(map[string]struct{}, len(cfg.OperatorNumbers))
	for _, n := range cfg.OperatorNumbers {
		operators[phone.Normalize(n)] = struct{}{}
	}
	notifyJid := ""
	if cfg.NotifyNumber != "" {
		notifyJid = phone.Normalize(cfg.NotifyNumber) + jidSuffix
	}
	return &Engine{
		store:       st,
		modules:     modules,
		deliverer:   deliverer,
		sender:      sender,
		transcriber: transcriber,
		exporter:    exporter,
		resolver:    resolver,
		metrics:     m,
		events:      metrics.NewEventLogger(logger),
		errorRates:  tracker,
		clock:       clk,
		logger:      logger,
		operators:   operators,
		notifyJid:   notifyJid,
	}
}

// Process handles one inbound message end to end. It never returns an
// error: every failure mode resolves into a reply, a silent drop, or a
// logged degradation.
func (e *Engine) Process(ctx context.Context, msg *transport.InboundMessage) {
	payload := transport.Extract(msg.Content)
	e.metrics.RecordMessage(string(payload.Kind))
	if payload.Kind == transport.KindNone {
		return
	}

	phoneNum := phone.Normalize(msg.RemoteJid)
	if phoneNum == "" {
		e.logger.Warn("inbound message without usable sender", zap.String("jid", sanitize.JID(msg.RemoteJid)))
		return
	}

	e.errorRates.RecordRequest()
	e.events.MessageReceived(phoneNum, string(payload.Kind))

	text := strings.TrimSpace(payload.Text)
	if payload.Kind == transport.KindAudio {
		var ok bool
		text, ok = e.transcribe(ctx, msg, payload)
		if !ok {
			return
		}
	}
	if text == "" {
		return
	}

	if cmd, target, ok := parseCommand(text); ok && e.authorized(msg, phoneNum) {
		e.runCommand(ctx, cmd, target, phoneNum)
		return
	}

	// The business account's own non-command messages are the operator
	// chatting manually; the bot stays out of the way.
	if msg.FromMe {
		return
	}

	reply, notification := e.runTurn(ctx, phoneNum, text)

	if reply != "" {
		e.deliver(ctx, msg.RemoteJid, reply, msg.ID)
	}
	if notification != "" {
		e.notify(ctx, notification)
	}
}

// runTurn executes the read-modify-write span of one turn under the
// prospect's lock, so a targeted command or a sweep nudge arriving
// mid-dispatch cannot be clobbered by this turn's save.
func (e *Engine) runTurn(ctx context.Context, phoneNum, text string) (reply, notification string) {
	unlock := e.store.Lock(phoneNum)
	defer unlock()

	p := e.store.Get(ctx, phoneNum)

	if p.InTakeover() {
		e.store.Update(ctx, phoneNum, nil)
		e.metrics.RecordDispatch("dropped_takeover")
		return "", ""
	}

	if p.State == domain.StateClosed {
		p.Reopen()
	}
	if p.State == domain.StateInitial {
		e.enrichNewProspect(p, text)
	}

	reply, notification = e.dispatch(ctx, p, text)

	(*domain.Patch)(nil).Apply(p, e.clock.NowUTC())
	e.store.Save(ctx, p)
	return reply, notification
}

// dispatch runs the flow module for the prospect's current phase and
// applies the resulting transition. A panicking module yields a generic
// apology with the state rolled back to the pre-dispatch phase.
func (e *Engine) dispatch(ctx context.Context, p *domain.Prospect, text string) (reply, notification string) {
	from := p.State

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("dispatch panicked",
				zap.String("phone", sanitize.Phone(p.PhoneNumber)),
				zap.String("state", string(from)),
				zap.Any("panic", r),
			)
			e.metrics.RecordDispatch("panic")
			e.errorRates.RecordError(metrics.ErrorCategoryInternal)
			p.State = from
			reply = apologyReply
			notification = ""
		}
	}()

	handler := e.modules.For(p.State)
	result, err := handler.Handle(ctx, p, text)
	if err != nil {
		e.logger.Error("flow module failed",
			zap.String("phone", sanitize.Phone(p.PhoneNumber)),
			zap.String("state", string(p.State)),
			zap.Error(err),
		)
		e.errorRates.RecordError(metrics.ErrorCategoryInternal)
		return apologyReply, ""
	}

	reply = result.Reply
	notification = result.Notification

	next := result.NextState
	if next != "" && next != p.State {
		if !domain.AllowedTransition(p.State, next) {
			e.logger.Error("flow module requested forbidden transition",
				zap.String("from", string(p.State)),
				zap.String("to", string(next)),
			)
		} else {
			e.metrics.RecordTransition(string(p.State), string(next))
			e.events.StateChanged(p.PhoneNumber, string(p.State), string(next))
			p.State = next

			if prompt := e.modules.For(next).Prompt(ctx, p); prompt != "" {
				reply = joinReply(reply, prompt)
			}
			if next == domain.StateClosed {
				e.export(ctx, p)
			}
		}
	}

	e.metrics.RecordDispatch("handled")
	return reply, notification
}

// enrichNewProspect stamps provenance onto a record about to run its
// first turn: marketing source from the opening message, country and
// timezone from the number.
func (e *Engine) enrichNewProspect(p *domain.Prospect, text string) {
	if p.Source == "" {
		p.Source, p.CampaignName = DetectSource(text)
	}
	if p.CountryCode == "" && e.resolver != nil {
		p.CountryCode = e.resolver.Country(p.PhoneNumber)
		p.Timezone = e.resolver.Timezone(p.PhoneNumber)
	}
}

// transcribe turns a voice note into text. On any failure the prospect
// is asked to type instead and the turn ends.
func (e *Engine) transcribe(ctx context.Context, msg *transport.InboundMessage, payload transport.Payload) (string, bool) {
	if e.transcriber == nil {
		e.deliver(ctx, msg.RemoteJid, audioFallbackReply, msg.ID)
		return "", false
	}

	text, err := e.transcriber.Transcribe(ctx, payload.AudioURL, payload.MediaType, "es")
	if err != nil {
		e.logger.Warn("audio transcription failed",
			zap.String("jid", sanitize.JID(msg.RemoteJid)),
			zap.Error(err),
		)
		e.errorRates.RecordError(metrics.ErrorCategoryLLM)
		e.deliver(ctx, msg.RemoteJid, audioFallbackReply, msg.ID)
		return "", false
	}
	return strings.TrimSpace(text), true
}

// export delivers the finished prospect to the sink, recording the
// export id on success. Failures degrade: the closure stands, the
// record can be re-exported on the next closure.
func (e *Engine) export(ctx context.Context, p *domain.Prospect) {
	if e.exporter == nil {
		return
	}

	action := "registro_prospecto"
	if p.ExportID != "" {
		action = "actualizacion_prospecto"
	}

	id, err := e.exporter.Export(ctx, p)
	e.metrics.RecordExport(err)
	if err != nil {
		e.logger.Warn("prospect export failed",
			zap.String("phone", sanitize.Phone(p.PhoneNumber)),
			zap.Error(err),
		)
		e.errorRates.RecordError(metrics.ErrorCategoryExport)
		e.events.ProspectExported(p.PhoneNumber, "", action, false)
		return
	}
	p.ExportID = id
	e.events.ProspectExported(p.PhoneNumber, id, action, true)
}

func (e *Engine) deliver(ctx context.Context, jid, text, messageID string) {
	var readIDs []string
	if messageID != "" {
		readIDs = []string{messageID}
	}
	if err := e.deliverer.Deliver(ctx, jid, text, readIDs); err != nil {
		e.logger.Error("reply delivery failed",
			zap.String("jid", sanitize.JID(jid)),
			zap.Error(err),
		)
		e.errorRates.RecordError(metrics.ErrorCategoryTransport)
	}
}

// notify relays an internal alert to the configured operator number,
// bypassing the humanizer: alerts should arrive immediately.
func (e *Engine) notify(ctx context.Context, text string) {
	if e.notifyJid == "" {
		return
	}
	if err := e.sender.SendMessage(ctx, e.notifyJid, text); err != nil {
		e.logger.Warn("operator notification failed", zap.Error(err))
		e.errorRates.RecordError(metrics.ErrorCategoryTransport)
	}
}

func (e *Engine) authorized(msg *transport.InboundMessage, phoneNum string) bool {
	if msg.FromMe {
		return true
	}
	_, ok := e.operators[phoneNum]
	return ok
}

func joinReply(reply, prompt string) string {
	if reply == "" {
		return prompt
	}
	return reply + "\n\n" + prompt
}

// DetectSource infers the marketing channel from the opening message.
// Campaign links prefill the first message, so channel keywords in it
// are a reliable signal.
func DetectSource(text string) (source, campaign string) {
	norm := strings.ToLower(text)
	switch {
	case strings.Contains(norm, "facebook") || strings.Contains(norm, "fb.me") || strings.Contains(norm, "instagram"):
		return "facebook_ads", "Meta Ads"
	case strings.Contains(norm, "google") || strings.Contains(norm, "anuncio"):
		return "google_ads", "Google Ads"
	case strings.Contains(norm, "recomend") || strings.Contains(norm, "refiri") || strings.Contains(norm, "me paso tu numero") || strings.Contains(norm, "me pasó tu número"):
		return "referral", "Referidos"
	default:
		return "organic", ""
	}
}

// Supervisory commands, issued by operators inside a prospect's chat
// (fromMe) or from a listed operator number naming the target.
const (
	cmdTakeover = "!operator"
	cmdRelease  = "!bot"
	cmdClose    = "!cerrar"
)

// parseCommand recognizes "!operator", "!bot" and "!cerrar", each with
// an optional target number ("!operator 5215512345678"). Without a
// target the command applies to the chat it was sent in.
func parseCommand(text string) (cmd, target string, ok bool) {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(text)))
	if len(fields) == 0 || len(fields) > 2 {
		return "", "", false
	}
	switch fields[0] {
	case cmdTakeover, cmdRelease, cmdClose:
	default:
		return "", "", false
	}
	if len(fields) == 2 {
		target = phone.Normalize(fields[1])
		if target == "" {
			return "", "", false
		}
	}
	return fields[0], target, true
}

// runCommand executes a supervisory command. Commands are silent toward
// the prospect except for !cerrar, which opens the closing question.
func (e *Engine) runCommand(ctx context.Context, cmd, target, chatPhone string) {
	phoneNum := target
	if phoneNum == "" {
		phoneNum = chatPhone
	}

	// Targeted commands run on the operator's queue shard, so the lock
	// is what keeps them from interleaving with the target's dispatch.
	unlock := e.store.Lock(phoneNum)

	p := e.store.Get(ctx, phoneNum)
	now := e.clock.NowUTC()
	closeReply := ""

	switch cmd {
	case cmdTakeover:
		p.BeginTakeover(now)
		e.metrics.RecordTakeover("begin")
		e.events.TakeoverChanged(phoneNum, "begin")

	case cmdRelease:
		p.EndTakeover()
		e.metrics.RecordTakeover("end")
		e.events.TakeoverChanged(phoneNum, "end")

	case cmdClose:
		if p.InTakeover() {
			p.EndTakeover()
		}
		from := p.State
		result := flow.ForceClose(p)
		p.State = result.NextState
		e.metrics.RecordTakeover("close")
		e.events.StateChanged(phoneNum, string(from), string(result.NextState))
		closeReply = result.Reply
	}

	(*domain.Patch)(nil).Apply(p, now)
	e.store.Save(ctx, p)
	unlock()

	if closeReply != "" {
		e.deliver(ctx, phoneNum+jidSuffix, closeReply, "")
	}
	e.metrics.RecordDispatch("command")
}
