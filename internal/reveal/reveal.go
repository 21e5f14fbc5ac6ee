// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package reveal implements the typewriter animation scheduler.
//
// A reveal delivers a message's text incrementally through OnTick
// callbacks on a sequential timer chain. The chain is cooperative:
// each tick schedules the next one only after the callback returns, so
// ticks never overlap and cancellation between ticks is race-free.
//
// The scheduler is decoupled from any UI toolkit; the chat view feeds
// ticks back into the Bubble Tea loop via program.Send.
package reveal

import (
	"sync"
	"time"
)

// maxTicks bounds the number of ticks for long messages. Text up to
// maxTicks runes reveals one rune at a time; longer text reveals in
// ceil(len/maxTicks) rune chunks so the worst-case animation duration
// stays constant regardless of message length.
const maxTicks = 500

// Options configures a reveal.
type Options struct {
	// Delay is the pause between ticks.
	Delay time.Duration

	// Instant delivers the full text in a single immediate tick. Used
	// for user messages and history replays, which never animate.
	Instant bool

	// OnTick receives the partial text after each chunk. Called
	// sequentially, never after Cancel.
	OnTick func(partial string)

	// OnDone is called once after the final tick, so callers can stop
	// showing a pending-cursor indicator. Not called after Cancel.
	OnDone func()
}

// Handle controls an in-flight reveal.
type Handle struct {
	mu        sync.Mutex
	timer     *time.Timer
	cancelled bool
	done      bool
}

// Cancel stops future ticks. Safe to call multiple times and after
// completion; the callbacks are never invoked again once it returns.
func (h *Handle) Cancel() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cancelled = true
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
}

// Done reports whether the reveal delivered all chunks.
func (h *Handle) Done() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.done
}

// ChunkSize returns the reveal chunk size for a text of n runes:
// 1 for short text, ceil(n/maxTicks) beyond the tick budget.
func ChunkSize(n int) int {
	if n <= maxTicks {
		return 1
	}
	return (n + maxTicks - 1) / maxTicks
}

// Start begins revealing text and returns a handle for cancellation.
// Ticks operate on runes, not bytes, so multi-byte characters are never
// split mid-sequence.
func Start(text string, opts Options) *Handle {
	h := &Handle{}

	if opts.Instant || text == "" {
		if opts.OnTick != nil {
			opts.OnTick(text)
		}
		h.done = true
		if opts.OnDone != nil {
			opts.OnDone()
		}
		return h
	}

	runes := []rune(text)
	chunk := ChunkSize(len(runes))

	var step func(revealed int)
	step = func(revealed int) {
		h.mu.Lock()
		if h.cancelled {
			h.mu.Unlock()
			return
		}

		next := revealed + chunk
		if next > len(runes) {
			next = len(runes)
		}
		finished := next == len(runes)
		if finished {
			h.done = true
		} else {
			h.timer = time.AfterFunc(opts.Delay, func() { step(next) })
		}
		h.mu.Unlock()

		// Callbacks run outside the lock; the chain is sequential, so
		// OnTick invocations never overlap.
		if opts.OnTick != nil {
			opts.OnTick(string(runes[:next]))
		}
		if finished && opts.OnDone != nil {
			opts.OnDone()
		}
	}

	h.timer = time.AfterFunc(opts.Delay, func() { step(0) })
	return h
}

// =============================================================================
// SLOT
// =============================================================================

// Slot serializes reveals for one display position. Starting a new
// reveal implicitly cancels the previous one, so two loops can never
// write to the same output.
type Slot struct {
	mu      sync.Mutex
	current *Handle
}

// Start cancels any in-flight reveal on the slot and begins a new one.
func (s *Slot) Start(text string, opts Options) *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.current.Cancel()
	}
	s.current = Start(text, opts)
	return s.current
}

// Cancel stops the slot's in-flight reveal, if any.
func (s *Slot) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.current.Cancel()
		s.current = nil
	}
}
