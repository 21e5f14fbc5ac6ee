// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package coordinator owns the submission state machine sitting between
// the UI, the conversation store, and the completion client.
//
// At most one exchange is in flight. Submissions arriving while one is
// pending queue FIFO and drain one at a time as exchanges complete, so
// replies always land in order. Conversation switching is refused while
// an exchange is pending; the pending reply must land in the
// conversation the user was looking at when they sent the message.
package coordinator

import (
	"context"
	"errors"
	"sync"

	"github.com/jeranaias/orchat/internal/bus"
	"github.com/jeranaias/orchat/internal/config"
	"github.com/jeranaias/orchat/internal/openrouter"
	"github.com/jeranaias/orchat/internal/store"
	"github.com/jeranaias/orchat/internal/util"
)

// User-facing notices for the busy guards.
const (
	NoticeQueued = "Message queued"
	NoticeBusy   = "Please wait..."
)

// ErrBusy is returned by operations refused while an exchange is
// pending. A notice is published alongside it.
var ErrBusy = errors.New("an exchange is in progress")

// Completer is the completion client surface the coordinator needs.
type Completer interface {
	Complete(ctx context.Context, window []openrouter.ChatMessage, newMessage string, opts openrouter.Options) (string, error)
	Abort()
}

// Coordinator drives the idle/sending state machine. Safe for
// concurrent use; completion results arrive on their own goroutine.
type Coordinator struct {
	store    *store.Store
	client   Completer
	bus      *bus.Bus
	settings func() *config.Settings

	mu      sync.Mutex
	active  string
	sending bool
	queue   []string
}

// New creates a coordinator. settings is called per exchange so config
// reloads apply without restarting.
func New(st *store.Store, client Completer, eventBus *bus.Bus, settings func() *config.Settings) *Coordinator {
	return &Coordinator{
		store:    st,
		client:   client,
		bus:      eventBus,
		settings: settings,
	}
}

// =============================================================================
// STATE
// =============================================================================

// ActiveID returns the active conversation ID.
func (c *Coordinator) ActiveID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Sending reports whether an exchange is in flight.
func (c *Coordinator) Sending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sending
}

// QueueLen returns the number of submissions waiting behind the
// in-flight exchange.
func (c *Coordinator) QueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// =============================================================================
// STARTUP AND NAVIGATION
// =============================================================================

// Start selects the most recent conversation, creating one when the
// store is empty, and runs retention pruning.
func (c *Coordinator) Start() error {
	if s := c.settings(); s.AutoClearAfterDays > 0 {
		if _, err := c.store.PruneOlderThan(s.AutoClearAfterDays); err != nil {
			return err
		}
	}

	meta, ok := c.store.MostRecent()
	if ok {
		return c.SwitchTo(meta.ID)
	}
	conv, err := c.store.Create()
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.active = conv.ID
	c.mu.Unlock()
	return nil
}

// SwitchTo makes the given conversation active. Refused while sending:
// the pending reply must not land in a different conversation than the
// one it was asked from.
func (c *Coordinator) SwitchTo(id string) error {
	c.mu.Lock()
	if c.sending {
		c.mu.Unlock()
		c.notify(NoticeBusy)
		return ErrBusy
	}
	c.mu.Unlock()

	if _, err := c.store.Get(id); err != nil {
		return err
	}

	c.mu.Lock()
	c.active = id
	c.mu.Unlock()
	c.publish(bus.Event{Kind: bus.KindConversationChanged, ConversationID: id})
	return nil
}

// NewChat creates and activates a fresh conversation. Refused while
// sending.
func (c *Coordinator) NewChat() error {
	c.mu.Lock()
	if c.sending {
		c.mu.Unlock()
		c.notify(NoticeBusy)
		return ErrBusy
	}
	c.mu.Unlock()

	conv, err := c.store.Create()
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.active = conv.ID
	c.mu.Unlock()
	return nil
}

// ClearActive resets the active conversation to the greeting.
func (c *Coordinator) ClearActive() error {
	c.mu.Lock()
	if c.sending {
		c.mu.Unlock()
		c.notify(NoticeBusy)
		return ErrBusy
	}
	id := c.active
	c.mu.Unlock()

	_, err := c.store.Clear(id)
	return err
}

// DeleteActive removes the active conversation and activates the most
// recent remaining one, creating a fresh conversation when none remain.
func (c *Coordinator) DeleteActive() error {
	c.mu.Lock()
	if c.sending {
		c.mu.Unlock()
		c.notify(NoticeBusy)
		return ErrBusy
	}
	id := c.active
	c.mu.Unlock()

	if err := c.store.Delete(id); err != nil {
		return err
	}

	if meta, ok := c.store.MostRecent(); ok {
		c.mu.Lock()
		c.active = meta.ID
		c.mu.Unlock()
		c.publish(bus.Event{Kind: bus.KindConversationChanged, ConversationID: meta.ID})
		return nil
	}

	conv, err := c.store.Create()
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.active = conv.ID
	c.mu.Unlock()
	return nil
}

// =============================================================================
// SUBMISSION
// =============================================================================

// Submit sends a user message through the exchange pipeline. Empty
// input after normalization is ignored. While an exchange is pending
// the message queues and drains in order once the pending reply lands.
func (c *Coordinator) Submit(text string) error {
	text = util.NormalizeInput(text)
	if text == "" {
		return nil
	}

	c.mu.Lock()
	if c.sending {
		c.queue = append(c.queue, text)
		c.mu.Unlock()
		c.notify(NoticeQueued)
		return nil
	}
	c.sending = true
	c.mu.Unlock()

	return c.begin(text)
}

// begin appends the user message and launches the network exchange.
// Called with sending already claimed.
func (c *Coordinator) begin(text string) error {
	c.mu.Lock()
	convID := c.active
	c.mu.Unlock()

	if _, err := c.store.Append(convID, "user", text, false); err != nil {
		c.release()
		return err
	}
	c.publish(bus.Event{Kind: bus.KindStateChanged, Sending: true})

	s := c.settings()
	window, err := c.store.Window(convID, s.MaxContextMessages)
	if err != nil {
		c.release()
		return err
	}
	outbound := make([]openrouter.ChatMessage, 0, len(window))
	for _, m := range window {
		outbound = append(outbound, openrouter.ChatMessage{Role: m.Role, Content: m.Content})
	}

	go func() {
		reply, err := c.client.Complete(context.Background(), outbound, text, openrouter.Options{
			Temperature: s.Temperature,
		})
		c.finish(convID, reply, err)
	}()
	return nil
}

// finish lands the exchange result and drains one queued submission.
func (c *Coordinator) finish(convID, reply string, err error) {
	switch {
	case err == nil:
		c.store.Append(convID, "assistant", reply, true)
	case openrouter.TypeOf(err) == openrouter.ErrTypeAborted:
		// Superseded or cancelled: nothing lands.
	default:
		// Errors surface as assistant-authored messages so the
		// transcript records what happened.
		c.store.Append(convID, "assistant", errorReply(err), true)
	}

	c.mu.Lock()
	c.sending = false
	var next string
	if len(c.queue) > 0 {
		next = c.queue[0]
		c.queue = c.queue[1:]
		c.sending = true
	}
	c.mu.Unlock()
	c.publish(bus.Event{Kind: bus.KindStateChanged, Sending: next != ""})

	if next != "" {
		c.begin(next)
	}
}

// Cancel aborts the in-flight exchange and discards the queue.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	c.queue = nil
	c.mu.Unlock()
	c.client.Abort()
}

// release clears the sending flag after a local failure before the
// network call launched.
func (c *Coordinator) release() {
	c.mu.Lock()
	c.sending = false
	c.mu.Unlock()
	c.publish(bus.Event{Kind: bus.KindStateChanged, Sending: false})
}

// =============================================================================
// ERROR PRESENTATION
// =============================================================================

// errorReply converts a client error into transcript text.
func errorReply(err error) string {
	switch openrouter.TypeOf(err) {
	case openrouter.ErrTypeAuth:
		return "Error: your OpenRouter API key is missing or invalid. Use /key to set it."
	case openrouter.ErrTypeRateLimit:
		return "Error: rate limited by OpenRouter. Wait a moment and try again."
	case openrouter.ErrTypeMalformedResponse:
		return openrouter.FallbackReply
	default:
		return "Error: " + err.Error()
	}
}

func (c *Coordinator) publish(ev bus.Event) {
	if c.bus != nil {
		c.bus.Publish(ev)
	}
}

func (c *Coordinator) notify(text string) {
	if c.bus != nil {
		c.bus.Notice(text)
	}
}
