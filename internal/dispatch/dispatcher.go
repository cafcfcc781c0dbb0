// Package dispatch runs one coalesced turn end to end: session bookkeeping,
// the response engine call and paced delivery of the reply.
package dispatch

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/nextlevelbuilder/goturn/internal/channels"
	"github.com/nextlevelbuilder/goturn/internal/clock"
	"github.com/nextlevelbuilder/goturn/internal/conversation"
	"github.com/nextlevelbuilder/goturn/internal/engine"
	"github.com/nextlevelbuilder/goturn/internal/store"
)

const (
	DefaultReadDelayMin    = 2000 * time.Millisecond
	DefaultReadDelayMax    = 4000 * time.Millisecond
	DefaultSegmentDelayMin = 1000 * time.Millisecond
	DefaultSegmentDelayMax = 2500 * time.Millisecond
	DefaultFirstSendDelay  = 500 * time.Millisecond
	DefaultDelimiter       = "|||"
	DefaultFailureMessage  = "Erro ao processar."
)

// Options shapes pacing and fallbacks. Zero values take the defaults above,
// except ResetNotice (empty means no notice) and History (nil disables it).
// A negative FirstSendDelay disables that pause.
type Options struct {
	ReadDelayMin    time.Duration
	ReadDelayMax    time.Duration
	SegmentDelayMin time.Duration
	SegmentDelayMax time.Duration
	FirstSendDelay  time.Duration
	Delimiter       string
	FailureMessage  string
	ResetNotice     string

	History store.HistoryStore
	Clock   clock.Clock
	// Jitter picks a delay in [min, max]. Defaults to a uniform draw.
	Jitter func(min, max time.Duration) time.Duration
	Tracer trace.Tracer
}

func (o Options) withDefaults() Options {
	if o.ReadDelayMax <= 0 {
		o.ReadDelayMin, o.ReadDelayMax = DefaultReadDelayMin, DefaultReadDelayMax
	}
	if o.SegmentDelayMax <= 0 {
		o.SegmentDelayMin, o.SegmentDelayMax = DefaultSegmentDelayMin, DefaultSegmentDelayMax
	}
	switch {
	case o.FirstSendDelay == 0:
		o.FirstSendDelay = DefaultFirstSendDelay
	case o.FirstSendDelay < 0:
		o.FirstSendDelay = 0
	}
	if o.Delimiter == "" {
		o.Delimiter = DefaultDelimiter
	}
	if o.FailureMessage == "" {
		o.FailureMessage = DefaultFailureMessage
	}
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	if o.Jitter == nil {
		o.Jitter = Uniform
	}
	if o.Tracer == nil {
		o.Tracer = noop.NewTracerProvider().Tracer("")
	}
	return o
}

// Uniform returns a random duration in [min, max].
func Uniform(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + rand.N(max-min+1)
}

// Result describes what one turn did. Failures of side effects are
// recorded here and in the log, never returned as errors.
type Result struct {
	TurnID         uuid.UUID
	Skipped        bool // blank input, nothing was done
	NewSession     bool
	EditWindowOpen bool
	Reply          string
	OrderSubmitted bool
	EngineErr      error
	Segments       []string
	Sent           int
}

// Dispatcher hands turns to the engine and delivers replies.
type Dispatcher struct {
	engine  engine.Engine
	sender  channels.Sender
	session *conversation.SessionWindow
	edit    *conversation.EditWindow
	opts    Options
}

func New(eng engine.Engine, sender channels.Sender, session *conversation.SessionWindow, edit *conversation.EditWindow, opts Options) *Dispatcher {
	return &Dispatcher{
		engine:  eng,
		sender:  sender,
		session: session,
		edit:    edit,
		opts:    opts.withDefaults(),
	}
}

// Handle satisfies debounce.Handler.
func (d *Dispatcher) Handle(ctx context.Context, id, text string) {
	d.Turn(ctx, id, text)
}

// Turn runs one paced turn for a conversation. Deliveries are strictly
// sequential; "paused" presence is always sent on the way out.
func (d *Dispatcher) Turn(ctx context.Context, id, text string) Result {
	id = conversation.Normalize(id)
	text = strings.TrimSpace(text)
	res := Result{TurnID: newTurnID()}
	if id == "" || text == "" {
		res.Skipped = true
		return res
	}

	ctx, span := d.opts.Tracer.Start(ctx, "turn.dispatch", trace.WithAttributes(
		attribute.String("conversation.id", id),
		attribute.String("turn.id", res.TurnID.String()),
		attribute.Int("turn.chars", len(text)),
	))
	defer span.End()

	defer func() {
		// Cleanup must reach the gateway even when ctx was cancelled.
		d.presence(context.WithoutCancel(ctx), id, channels.PresencePaused)
	}()

	req := d.prepare(ctx, id, text, &res)

	if err := clock.Sleep(ctx, d.opts.Clock, d.opts.Jitter(d.opts.ReadDelayMin, d.opts.ReadDelayMax)); err != nil {
		span.SetStatus(codes.Error, "cancelled before engine call")
		return res
	}
	d.presence(ctx, id, channels.PresenceComposing)

	reply := d.respond(ctx, req, &res)
	if res.EngineErr != nil {
		span.RecordError(res.EngineErr)
		span.SetStatus(codes.Error, "engine call failed")
	}

	d.presence(ctx, id, channels.PresencePaused)
	if err := clock.Sleep(ctx, d.opts.Clock, d.opts.FirstSendDelay); err != nil {
		return res
	}

	res.Segments = Split(reply, d.opts.Delimiter)
	d.deliver(ctx, id, &res)
	span.SetAttributes(
		attribute.Int("turn.segments", len(res.Segments)),
		attribute.Int("turn.sent", res.Sent),
		attribute.Bool("turn.order_submitted", res.OrderSubmitted),
	)
	return res
}

// Respond runs the engine for one turn without pacing or delivery and
// returns the raw reply.
func (d *Dispatcher) Respond(ctx context.Context, id, text string) (Result, error) {
	id = conversation.Normalize(id)
	text = strings.TrimSpace(text)
	res := Result{TurnID: newTurnID()}
	if id == "" || text == "" {
		res.Skipped = true
		return res, nil
	}

	ctx, span := d.opts.Tracer.Start(ctx, "turn.direct", trace.WithAttributes(
		attribute.String("conversation.id", id),
		attribute.String("turn.id", res.TurnID.String()),
	))
	defer span.End()

	req := d.prepare(ctx, id, text, &res)
	d.respond(ctx, req, &res)
	if res.EngineErr != nil {
		span.RecordError(res.EngineErr)
		span.SetStatus(codes.Error, "engine call failed")
	}
	return res, res.EngineErr
}

// prepare applies the session rule and records the user side of the turn.
func (d *Dispatcher) prepare(ctx context.Context, id, text string, res *Result) engine.Request {
	res.NewSession = !d.session.CheckAndRefresh(ctx, id)
	res.EditWindowOpen = d.edit.IsOpen(ctx, id)

	msg := text
	if res.NewSession {
		slog.Info("dispatch: session expired, starting new order", "conversation", id)
		if d.opts.ResetNotice != "" {
			msg = d.opts.ResetNotice + " " + text
		}
	}

	d.record(ctx, id, store.RoleUser, text)
	return engine.Request{
		ConversationID: id,
		Text:           msg,
		NewSession:     res.NewSession,
		EditWindowOpen: res.EditWindowOpen,
	}
}

func (d *Dispatcher) respond(ctx context.Context, req engine.Request, res *Result) string {
	ctx, span := d.opts.Tracer.Start(ctx, "engine.respond")
	defer span.End()

	start := d.opts.Clock.Now()
	reply, err := d.engine.Respond(ctx, req)
	if err == nil && strings.TrimSpace(reply.Text) == "" {
		err = errEmptyReply
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Warn("dispatch: engine failed", "conversation", req.ConversationID, "error", err)
		res.EngineErr = err
		res.Reply = d.opts.FailureMessage
		return res.Reply
	}

	slog.Debug("dispatch: engine replied",
		"conversation", req.ConversationID,
		"elapsed", d.opts.Clock.Now().Sub(start),
		"preview", channels.Truncate(reply.Text, 60),
	)
	res.Reply = reply.Text
	res.OrderSubmitted = reply.OrderSubmitted

	if reply.OrderSubmitted {
		if err := d.edit.Open(ctx, req.ConversationID, 0); err == nil {
			res.EditWindowOpen = true
		}
	}
	d.record(ctx, req.ConversationID, store.RoleAssistant, reply.Text)
	return reply.Text
}

func (d *Dispatcher) deliver(ctx context.Context, id string, res *Result) {
	ctx, span := d.opts.Tracer.Start(ctx, "turn.deliver", trace.WithAttributes(
		attribute.Int("turn.segments", len(res.Segments)),
	))
	defer span.End()

	for i, seg := range res.Segments {
		if i > 0 {
			if err := clock.Sleep(ctx, d.opts.Clock, d.opts.Jitter(d.opts.SegmentDelayMin, d.opts.SegmentDelayMax)); err != nil {
				slog.Warn("dispatch: delivery interrupted", "conversation", id, "sent", res.Sent, "total", len(res.Segments))
				return
			}
		}
		dl := d.sender.SendText(ctx, id, seg)
		if !dl.OK {
			span.RecordError(dl.Err)
			slog.Warn("dispatch: send failed",
				"conversation", id, "segment", i, "status", dl.Status, "error", dl.Err)
			continue
		}
		res.Sent++
	}
}

func (d *Dispatcher) presence(ctx context.Context, id string, p channels.Presence) {
	if dl := d.sender.SendPresence(ctx, id, p); !dl.OK {
		slog.Debug("dispatch: presence failed", "conversation", id, "presence", p, "status", dl.Status, "error", dl.Err)
	}
}

func (d *Dispatcher) record(ctx context.Context, id string, role store.Role, content string) {
	if d.opts.History == nil {
		return
	}
	err := d.opts.History.Append(ctx, store.HistoryMessage{
		ID:             newTurnID(),
		ConversationID: id,
		Role:           role,
		Content:        content,
		CreatedAt:      d.opts.Clock.Now().UTC(),
	})
	if err != nil {
		slog.Warn("dispatch: history append failed", "conversation", id, "role", role, "error", err)
	}
}

// Split cuts a reply into ordered message bubbles, dropping blank segments.
func Split(reply, delimiter string) []string {
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}
	var out []string
	for _, part := range strings.Split(reply, delimiter) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func newTurnID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}
