package smpp

import "time"

// Test hooks for deterministic lifecycle runs.

// DrawState exposes the final-state draw.
func (e *Engine) DrawState(roll int) string { return e.drawState(roll) }

// BuildReceipt exposes receipt construction.
func (e *Engine) BuildReceipt(m QueuedMessage, stat string) *PDU {
	return e.buildReceipt(m, stat)
}

// Tick runs one lifecycle pass synchronously.
func (e *Engine) Tick() { e.tick() }

// SetNow replaces the engine clock.
func (e *Engine) SetNow(fn func() time.Time) { e.now = fn }

// SetRoll replaces the random draw.
func (e *Engine) SetRoll(fn func() int) { e.roll = fn }

// MoPayload exposes feed payload decoding.
func MoPayload(text string) []byte { return moPayload(text) }

// Dispatch exposes MO dispatch without running the service loops.
func (s *MoService) Dispatch(m MoMessage) { s.dispatch(m) }
