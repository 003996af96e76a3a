package smpp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

// Message final states as they appear in the receipt stat field.
const (
	StatDelivered     = "DELIVRD"
	StatUndeliverable = "UNDELIV"
	StatAccepted      = "ACCEPTD"
	StatRejected      = "REJECTD"
)

// receiptDateLayout renders receipt dates as YYMMDDhhmm.
const receiptDateLayout = "0601021504"

// receiptTextRunes bounds the original body excerpt in the receipt.
const receiptTextRunes = 20

// EngineConfig carries the delivery-receipt engine settings.
type EngineConfig struct {
	// CheckInterval is the tick between pending-set scans.
	CheckInterval time.Duration

	// MaxTimeEnroute is the minimum age before a message reaches its
	// final state.
	MaxTimeEnroute time.Duration

	// DiscardRecentAfter prunes old recent entries each tick; zero
	// disables pruning.
	DiscardRecentAfter time.Duration

	// PercentDelivered, PercentUndeliverable, PercentAccepted, and
	// PercentRejected weight the final-state draw. They sum to at most
	// 100; the remainder falls through to delivered.
	PercentDelivered     int
	PercentUndeliverable int
	PercentAccepted      int
	PercentRejected      int

	// ReceiptTLV, when non-nil, is appended to every delivery receipt.
	ReceiptTLV *TLV
}

// Engine walks pending messages to their final state and delivers receipts
// back to the submitting session. A single worker owns the tick loop.
type Engine struct {
	cfg      EngineConfig
	registry *Registry
	queue    *MessageQueue
	logger   *slog.Logger
	metrics  MetricsReporter
	now      func() time.Time
	roll     func() int
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEngineMetrics attaches a metrics reporter.
func WithEngineMetrics(m MetricsReporter) EngineOption {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// NewEngine creates a delivery-receipt engine over the shared registry and
// queue.
func NewEngine(cfg EngineConfig, registry *Registry, queue *MessageQueue, logger *slog.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		cfg:      cfg,
		registry: registry,
		queue:    queue,
		logger:   logger.With(slog.String("component", "lifecycle")),
		metrics:  noopMetrics{},
		now:      time.Now,
		roll:     func() int { return rand.IntN(100) },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run ticks until ctx is cancelled. An in-flight tick completes before
// return.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("lifecycle engine started",
		slog.Duration("check_interval", e.cfg.CheckInterval),
		slog.Duration("max_time_enroute", e.cfg.MaxTimeEnroute))

	ticker := time.NewTicker(e.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("lifecycle engine stopped")
			return nil
		case <-ticker.C:
			e.tick()
		}
	}
}

// tick finalizes every pending message old enough and prunes the recent
// set. Snapshots keep the queue lock out of the send path.
func (e *Engine) tick() {
	now := e.now()

	for _, m := range e.queue.PendingSnapshot() {
		if now.Sub(m.Submitted) < e.cfg.MaxTimeEnroute {
			continue
		}
		e.finalize(m)
	}
	e.metrics.PendingReceipts(e.queue.PendingCount())

	if e.cfg.DiscardRecentAfter > 0 {
		if n := e.queue.PruneRecent(now.Add(-e.cfg.DiscardRecentAfter)); n > 0 {
			e.logger.Debug("pruned recent messages", slog.Int("removed", n))
		}
	}
}

// finalize draws the final state, builds the receipt, and delivers it to
// the submitting session. The message leaves the pending set whether or
// not the delivery succeeds.
func (e *Engine) finalize(m QueuedMessage) {
	stat := e.drawState(e.roll())
	e.queue.RemovePending(m.MessageID)
	e.metrics.DeliveryReceipt(stat)

	sess, ok := e.registry.Get(m.SessionID)
	if !ok {
		e.logger.Debug("submitter gone, dropping receipt",
			slog.String("message_id", m.MessageID),
			slog.String("session_id", m.SessionID))
		return
	}

	if err := sess.Enqueue(e.buildReceipt(m, stat)); err != nil {
		if errors.Is(err, ErrOutboundFull) {
			e.metrics.OutboundDropped()
		}
		e.logger.Warn("receipt dropped",
			slog.String("message_id", m.MessageID),
			slog.String("session_id", m.SessionID),
			slog.String("error", err.Error()))
		return
	}

	e.logger.Info("delivery receipt sent",
		slog.String("message_id", m.MessageID),
		slog.String("stat", stat),
		slog.String("system_id", sess.SystemID))
}

// drawState maps a roll in [0,100) onto the cumulative state buckets.
// Rolls past every bucket fall through to delivered.
func (e *Engine) drawState(roll int) string {
	limit := e.cfg.PercentDelivered
	if roll < limit {
		return StatDelivered
	}
	limit += e.cfg.PercentUndeliverable
	if roll < limit {
		return StatUndeliverable
	}
	limit += e.cfg.PercentAccepted
	if roll < limit {
		return StatAccepted
	}
	limit += e.cfg.PercentRejected
	if roll < limit {
		return StatRejected
	}
	return StatDelivered
}

// buildReceipt renders the receipt text and wraps it in a deliver_sm with
// source and destination swapped relative to the original submit.
func (e *Engine) buildReceipt(m QueuedMessage, stat string) *PDU {
	date := e.now().Format(receiptDateLayout)

	text := string(m.Message)
	if runes := []rune(text); len(runes) > receiptTextRunes {
		text = string(runes[:receiptTextRunes])
	}

	receipt := fmt.Sprintf(
		"id:%s sub:001 dlvrd:001 submit date:%s done date:%s stat:%s err:000 text:%s",
		m.MessageID, date, date, stat, text)

	body := &ShortMessage{
		SourceAddr: m.DestAddr,
		DestAddr:   m.SourceAddr,
		Message:    []byte(receipt),
	}
	if e.cfg.ReceiptTLV != nil {
		body.TLVs = []TLV{*e.cfg.ReceiptTLV}
	}

	return &PDU{ID: CommandDeliverSM, Status: StatusOK, Sequence: 0, Body: body}
}
