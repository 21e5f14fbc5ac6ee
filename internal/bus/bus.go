// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package bus is the in-process event bus connecting the conversation
// store and submission coordinator to the UI layers.
//
// Domain code publishes typed events; any number of consumers (the chat
// view, the plain REPL, the settings watcher) subscribe without the
// domain packages importing them. Delivery is asynchronous on buffered
// channels; a slow consumer drops events rather than blocking a
// publisher.
package bus

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned when publishing on a closed bus.
var ErrClosed = errors.New("bus closed")

// Kind identifies an event category.
type Kind int

const (
	// KindConversationChanged fires when the active conversation is
	// switched, created, cleared, or deleted.
	KindConversationChanged Kind = iota

	// KindMessageAppended fires when a message is appended to any
	// conversation.
	KindMessageAppended

	// KindStateChanged fires when the submission coordinator moves
	// between idle and sending.
	KindStateChanged

	// KindNotice carries a transient user-facing notice line.
	KindNotice

	// KindSettingsReloaded fires after the config file watcher applies
	// a new settings snapshot.
	KindSettingsReloaded
)

// Event is a single bus event. Payload fields are set per Kind; unused
// fields stay zero.
type Event struct {
	Kind           Kind
	ConversationID string
	MessageID      string
	Sending        bool
	Notice         string
}

// Handler receives events. Handlers run on the subscription's delivery
// goroutine, one event at a time.
type Handler func(Event)

// Subscription is an active registration on the bus.
type Subscription struct {
	bus    *Bus
	events chan Event
	closed atomic.Bool
}

// Unsubscribe stops delivery. Safe to call multiple times.
func (s *Subscription) Unsubscribe() {
	if s.closed.Swap(true) {
		return
	}
	s.bus.remove(s)
	close(s.events)
}

// Bus fans events out to subscribers. Safe for concurrent use.
type Bus struct {
	mu     sync.RWMutex
	subs   []*Subscription
	closed atomic.Bool
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for all events. Each subscription gets
// its own delivery goroutine so handlers never run concurrently with
// themselves.
func (b *Bus) Subscribe(handler Handler) *Subscription {
	sub := &Subscription{
		bus:    b,
		events: make(chan Event, 64),
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	go func() {
		for ev := range sub.events {
			handler(ev)
		}
	}()

	return sub
}

// Publish delivers ev to every live subscription. Non-blocking: a full
// subscriber buffer drops the event for that subscriber only.
func (b *Bus) Publish(ev Event) error {
	if b.closed.Load() {
		return ErrClosed
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if sub.closed.Load() {
			continue
		}
		select {
		case sub.events <- ev:
		default:
		}
	}
	return nil
}

// Notice publishes a transient notice line.
func (b *Bus) Notice(text string) {
	b.Publish(Event{Kind: KindNotice, Notice: text})
}

// Close shuts down the bus and all subscriptions.
func (b *Bus) Close() {
	if b.closed.Swap(true) {
		return
	}
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()
	for _, sub := range subs {
		if !sub.closed.Swap(true) {
			close(sub.events)
		}
	}
}

func (b *Bus) remove(target *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub == target {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}
