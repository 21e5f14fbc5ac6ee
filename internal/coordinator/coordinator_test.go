// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package coordinator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jeranaias/orchat/internal/bus"
	"github.com/jeranaias/orchat/internal/config"
	"github.com/jeranaias/orchat/internal/kv"
	"github.com/jeranaias/orchat/internal/openrouter"
	"github.com/jeranaias/orchat/internal/store"
)

// stubClient is a scriptable Completer. With gate set, Complete blocks
// until a result is pushed, letting tests hold an exchange open.
type stubClient struct {
	mu       sync.Mutex
	calls    []string
	inFlight int
	maxSeen  int
	gate     chan result
}

type result struct {
	reply string
	err   error
}

func (s *stubClient) Complete(ctx context.Context, window []openrouter.ChatMessage, newMessage string, opts openrouter.Options) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, newMessage)
	s.inFlight++
	if s.inFlight > s.maxSeen {
		s.maxSeen = s.inFlight
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	if s.gate != nil {
		r := <-s.gate
		return r.reply, r.err
	}
	return "echo: " + newMessage, nil
}

func (s *stubClient) Abort() {}

func (s *stubClient) callLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func newTestCoordinator(t *testing.T, client Completer) (*Coordinator, *store.Store, *bus.Bus) {
	t.Helper()
	b := bus.New()
	t.Cleanup(b.Close)
	st := store.New(kv.NewMemoryStore(), b, store.DefaultPolicy())
	c := New(st, client, b, config.Default)
	if err := c.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return c, st, b
}

// waitIdle polls until the coordinator leaves the sending state.
func waitIdle(t *testing.T, c *Coordinator) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if !c.Sending() && c.QueueLen() == 0 {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("coordinator never went idle")
}

func transcript(t *testing.T, st *store.Store, id string) []string {
	t.Helper()
	conv, err := st.Get(id)
	if err != nil {
		t.Fatalf("load conversation: %v", err)
	}
	out := make([]string, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		out = append(out, m.Role+": "+m.Content)
	}
	return out
}

func TestSubmitRoundTrip(t *testing.T) {
	stub := &stubClient{}
	c, st, _ := newTestCoordinator(t, stub)

	if err := c.Submit("  hello there  "); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	waitIdle(t, c)

	got := transcript(t, st, c.ActiveID())
	want := []string{
		"assistant: " + store.Greeting,
		"user: hello there",
		"assistant: echo: hello there",
	}
	if len(got) != len(want) {
		t.Fatalf("transcript = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transcript[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	// Fresh reply animates, user message does not.
	conv, _ := st.Get(c.ActiveID())
	if conv.Messages[1].Fresh {
		t.Error("user message marked fresh")
	}
	if !conv.Messages[2].Fresh {
		t.Error("new assistant reply not marked fresh")
	}
}

func TestEmptySubmitIgnored(t *testing.T) {
	stub := &stubClient{}
	c, st, _ := newTestCoordinator(t, stub)

	if err := c.Submit("   \n  "); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if c.Sending() {
		t.Error("blank submit started an exchange")
	}
	if got := transcript(t, st, c.ActiveID()); len(got) != 1 {
		t.Errorf("blank submit changed transcript: %v", got)
	}
}

func TestQueueDrainsInOrder(t *testing.T) {
	stub := &stubClient{gate: make(chan result)}
	c, st, b := newTestCoordinator(t, stub)

	notices := make(chan string, 8)
	sub := b.Subscribe(func(ev bus.Event) {
		if ev.Kind == bus.KindNotice {
			notices <- ev.Notice
		}
	})
	defer sub.Unsubscribe()

	c.Submit("first")
	c.Submit("second")
	c.Submit("third")

	if got := c.QueueLen(); got != 2 {
		t.Fatalf("queue length = %d, want 2", got)
	}
	for i := 0; i < 2; i++ {
		select {
		case n := <-notices:
			if n != NoticeQueued {
				t.Errorf("notice = %q, want %q", n, NoticeQueued)
			}
		case <-time.After(time.Second):
			t.Fatal("queued notice not published")
		}
	}

	for i := 0; i < 3; i++ {
		stub.gate <- result{reply: fmt.Sprintf("reply %d", i+1)}
	}
	waitIdle(t, c)

	if calls := stub.callLog(); len(calls) != 3 ||
		calls[0] != "first" || calls[1] != "second" || calls[2] != "third" {
		t.Errorf("call order = %v", calls)
	}
	stub.mu.Lock()
	maxSeen := stub.maxSeen
	stub.mu.Unlock()
	if maxSeen != 1 {
		t.Errorf("concurrent in-flight calls = %d, want 1", maxSeen)
	}

	got := transcript(t, st, c.ActiveID())
	want := []string{
		"assistant: " + store.Greeting,
		"user: first", "assistant: reply 1",
		"user: second", "assistant: reply 2",
		"user: third", "assistant: reply 3",
	}
	if len(got) != len(want) {
		t.Fatalf("transcript = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transcript[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestNavigationGuardedWhileSending(t *testing.T) {
	stub := &stubClient{gate: make(chan result)}
	c, st, b := newTestCoordinator(t, stub)

	other, _ := st.Create()

	notices := make(chan string, 8)
	sub := b.Subscribe(func(ev bus.Event) {
		if ev.Kind == bus.KindNotice {
			notices <- ev.Notice
		}
	})
	defer sub.Unsubscribe()

	// Start() activated the created conversation's predecessor; make
	// sure we are not already on other.
	before := c.ActiveID()
	c.Submit("question")

	if err := c.SwitchTo(other.ID); err != ErrBusy {
		t.Errorf("SwitchTo while sending = %v, want ErrBusy", err)
	}
	if err := c.NewChat(); err != ErrBusy {
		t.Errorf("NewChat while sending = %v, want ErrBusy", err)
	}
	if err := c.DeleteActive(); err != ErrBusy {
		t.Errorf("DeleteActive while sending = %v, want ErrBusy", err)
	}
	if c.ActiveID() != before {
		t.Error("active conversation changed while sending")
	}

	select {
	case n := <-notices:
		if n != NoticeBusy {
			t.Errorf("notice = %q, want %q", n, NoticeBusy)
		}
	case <-time.After(time.Second):
		t.Fatal("busy notice not published")
	}

	stub.gate <- result{reply: "done"}
	waitIdle(t, c)

	if err := c.SwitchTo(other.ID); err != nil {
		t.Errorf("SwitchTo after idle failed: %v", err)
	}
}

func TestErrorBecomesAssistantMessage(t *testing.T) {
	stub := &stubClient{gate: make(chan result, 1)}
	c, st, _ := newTestCoordinator(t, stub)

	stub.gate <- result{err: openrouter.ErrMissingKey}
	c.Submit("hi")
	waitIdle(t, c)

	got := transcript(t, st, c.ActiveID())
	last := got[len(got)-1]
	if !strings.HasPrefix(last, "assistant: Error:") || !strings.Contains(last, "API key") {
		t.Errorf("error not surfaced as assistant message: %q", last)
	}
}

func TestAbortedExchangeLandsNothing(t *testing.T) {
	stub := &stubClient{gate: make(chan result, 1)}
	c, st, _ := newTestCoordinator(t, stub)

	stub.gate <- result{err: openrouter.ErrAborted}
	c.Submit("hi")
	waitIdle(t, c)

	got := transcript(t, st, c.ActiveID())
	// Greeting plus the user message only; no assistant reply.
	if len(got) != 2 {
		t.Errorf("transcript after abort = %v", got)
	}
}

func TestDeleteActiveFallsBackToMostRecent(t *testing.T) {
	stub := &stubClient{}
	c, st, _ := newTestCoordinator(t, stub)

	first := c.ActiveID()
	if err := c.NewChat(); err != nil {
		t.Fatal(err)
	}

	if err := c.DeleteActive(); err != nil {
		t.Fatalf("DeleteActive failed: %v", err)
	}
	if c.ActiveID() != first {
		t.Errorf("active = %s, want fallback to %s", c.ActiveID(), first)
	}
	if len(st.List()) != 1 {
		t.Errorf("index size = %d, want 1", len(st.List()))
	}
}

func TestDeleteLastConversationCreatesNew(t *testing.T) {
	stub := &stubClient{}
	c, st, _ := newTestCoordinator(t, stub)

	old := c.ActiveID()
	if err := c.DeleteActive(); err != nil {
		t.Fatalf("DeleteActive failed: %v", err)
	}
	if c.ActiveID() == "" || c.ActiveID() == old {
		t.Errorf("active after deleting last = %q", c.ActiveID())
	}
	conv, err := st.Get(c.ActiveID())
	if err != nil {
		t.Fatalf("replacement conversation missing: %v", err)
	}
	if len(conv.Messages) != 1 || conv.Messages[0].Content != store.Greeting {
		t.Errorf("replacement not a greeting conversation: %+v", conv.Messages)
	}
}

func TestStartPicksMostRecent(t *testing.T) {
	b := bus.New()
	defer b.Close()
	st := store.New(kv.NewMemoryStore(), b, store.DefaultPolicy())
	a, _ := st.Create()
	recent, _ := st.Create()
	_ = a

	c := New(st, &stubClient{}, b, config.Default)
	if err := c.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if c.ActiveID() != recent.ID {
		t.Errorf("active = %s, want most recent %s", c.ActiveID(), recent.ID)
	}
}
