// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package bus

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	defer b.Close()

	received := make(chan Event, 1)
	sub := b.Subscribe(func(ev Event) { received <- ev })
	defer sub.Unsubscribe()

	if err := b.Publish(Event{Kind: KindNotice, Notice: "hello"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case ev := <-received:
		if ev.Kind != KindNotice || ev.Notice != "hello" {
			t.Errorf("got event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestMultipleSubscribers(t *testing.T) {
	b := New()
	defer b.Close()

	var count atomic.Int32
	for i := 0; i < 3; i++ {
		sub := b.Subscribe(func(Event) { count.Add(1) })
		defer sub.Unsubscribe()
	}

	b.Publish(Event{Kind: KindStateChanged, Sending: true})
	time.Sleep(100 * time.Millisecond)

	if got := count.Load(); got != 3 {
		t.Errorf("deliveries = %d, want 3", got)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	defer b.Close()

	var count atomic.Int32
	sub := b.Subscribe(func(Event) { count.Add(1) })

	b.Publish(Event{Kind: KindNotice})
	time.Sleep(50 * time.Millisecond)
	sub.Unsubscribe()
	b.Publish(Event{Kind: KindNotice})
	time.Sleep(50 * time.Millisecond)

	if got := count.Load(); got != 1 {
		t.Errorf("deliveries = %d, want 1", got)
	}
}

func TestPublishAfterClose(t *testing.T) {
	b := New()
	b.Close()
	if err := b.Publish(Event{}); err != ErrClosed {
		t.Errorf("Publish on closed bus = %v, want ErrClosed", err)
	}
}

func TestUnsubscribeTwiceSafe(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe(func(Event) {})
	sub.Unsubscribe()
	sub.Unsubscribe() // must not panic
}
