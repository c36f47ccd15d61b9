// Package humanize paces outbound replies so the bot reads like a
// person typing: a composing hint, a length-proportional delay, the
// message, then a read receipt for the inbound messages it answers.
package humanize

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rastreogo/leadbot/internal/clock"
	"github.com/rastreogo/leadbot/internal/metrics"
	"github.com/rastreogo/leadbot/internal/transport"
)

const (
	perRune  = 30 * time.Millisecond
	minDelay = 1 * time.Second
	maxDelay = 3 * time.Second
)

// DelayFor computes the typing delay for a reply.
func DelayFor(text string) time.Duration {
	d := time.Duration(len([]rune(text))) * perRune
	if d < minDelay {
		d = minDelay
	}
	if d > maxDelay {
		d = maxDelay
	}
	return d
}

// Humanizer paces deliveries through the transport sender.
type Humanizer struct {
	sender  transport.Sender
	metrics *metrics.Metrics
	clock   clock.Clock
	logger  *zap.Logger
}

// New creates a Humanizer. A nil clk defaults to the real clock; a nil
// m skips delay instrumentation.
func New(sender transport.Sender, m *metrics.Metrics, clk clock.Clock, logger *zap.Logger) *Humanizer {
	if clk == nil {
		clk = clock.New()
	}
	return &Humanizer{sender: sender, metrics: m, clock: clk, logger: logger}
}

// Deliver sends the reply with human pacing. Presence and read-receipt
// failures are logged and swallowed; only the message send itself is
// reported. The delay aborts when ctx is canceled, e.g. on shutdown.
func (h *Humanizer) Deliver(ctx context.Context, jid, text string, readIDs []string) error {
	if err := h.sender.SendPresenceUpdate(ctx, jid, transport.PresenceComposing); err != nil {
		h.logger.Debug("presence update failed", zap.String("jid", jid), zap.Error(err))
	}

	delay := DelayFor(text)
	if h.metrics != nil {
		h.metrics.RecordReplyDelay(delay)
	}

	select {
	case <-h.clock.After(delay):
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := h.sender.SendMessage(ctx, jid, text); err != nil {
		return err
	}

	if len(readIDs) > 0 {
		if err := h.sender.ReadMessages(ctx, jid, readIDs); err != nil {
			h.logger.Debug("read receipt failed", zap.String("jid", jid), zap.Error(err))
		}
	}

	return nil
}
