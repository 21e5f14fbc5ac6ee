// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/orchat/internal/config"
	"github.com/jeranaias/orchat/internal/coordinator"
	"github.com/jeranaias/orchat/internal/keyring"
	"github.com/jeranaias/orchat/internal/openrouter"
	"github.com/jeranaias/orchat/internal/reveal"
	"github.com/jeranaias/orchat/internal/store"
	"github.com/jeranaias/orchat/internal/ui/styles"
)

const (
	sidebarWidth    = 28
	noticeDuration  = 3 * time.Second
	inputCharLimit  = 4000
	minViewportRows = 5
)

// Model is the root Bubble Tea model for the chat interface.
type Model struct {
	theme    *styles.Theme
	coord    *coordinator.Coordinator
	store    *store.Store
	client   *openrouter.Client
	ring     *keyring.Keyring
	settings *config.Settings

	viewport viewport.Model
	input    textinput.Model
	spin     spinner.Model

	// Active conversation snapshot plus sidebar index.
	conv           *store.Conversation
	metas          []store.Meta
	sidebarVisible bool
	sidebarIndex   int
	sidebarFocused bool

	// Typewriter state: one reveal at a time, partial text per fresh
	// message until its reveal completes.
	revealSlot reveal.Slot
	revealing  map[string]string

	renderer *glamour.TermRenderer

	notice    string
	noticeSeq int
	showHelp  bool

	// send feeds messages from timer and bus goroutines back into the
	// Bubble Tea loop. Set via SetSend once the program exists.
	send func(tea.Msg)

	width, height int
	ready         bool
	quitting      bool
}

// New creates the chat model. Call SetSend before running the program.
func New(coord *coordinator.Coordinator, st *store.Store, client *openrouter.Client, ring *keyring.Keyring, settings *config.Settings) *Model {
	theme := styles.NewTheme()

	input := textinput.New()
	input.Placeholder = "Type a message, or / for commands"
	input.CharLimit = inputCharLimit
	input.Prompt = "> "
	input.PromptStyle = theme.InputPrompt
	input.PlaceholderStyle = theme.InputPlaceholder
	input.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = theme.Spinner

	return &Model{
		theme:          theme,
		coord:          coord,
		store:          st,
		client:         client,
		ring:           ring,
		settings:       settings,
		input:          input,
		spin:           spin,
		sidebarVisible: true,
		revealing:      make(map[string]string),
		send:           func(tea.Msg) {},
	}
}

// SetSend wires the program's Send function so reveal timers and bus
// subscribers can feed messages into the event loop.
func (m *Model) SetSend(send func(tea.Msg)) {
	m.send = send
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	m.reload()
	return tea.Batch(textinput.Blink, m.spin.Tick)
}

// =============================================================================
// STATE REFRESH
// =============================================================================

// reload snapshots the active conversation and the sidebar index from
// the store.
func (m *Model) reload() {
	m.metas = m.store.List()

	id := m.coord.ActiveID()
	conv, err := m.store.Get(id)
	if err != nil {
		m.conv = nil
		return
	}
	m.conv = conv

	m.sidebarIndex = 0
	for i, meta := range m.metas {
		if meta.ID == id {
			m.sidebarIndex = i
			break
		}
	}
	m.refreshViewport()
}

// refreshViewport re-renders the transcript into the viewport, keeping
// the view pinned to the bottom.
func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

// resize recomputes component dimensions after a terminal resize.
func (m *Model) resize(width, height int) {
	m.width, m.height = width, height

	contentWidth := width
	if m.sidebarVisible {
		contentWidth -= sidebarWidth
	}

	// Header, input box, and status bar take fixed rows.
	viewportHeight := height - 6
	if viewportHeight < minViewportRows {
		viewportHeight = minViewportRows
	}

	if !m.ready {
		m.viewport = viewport.New(contentWidth, viewportHeight)
		m.ready = true
	} else {
		m.viewport.Width = contentWidth
		m.viewport.Height = viewportHeight
	}
	m.input.Width = contentWidth - 6

	wrap := contentWidth - 8
	if wrap < 20 {
		wrap = 20
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wrap),
	)
	if err == nil {
		m.renderer = renderer
	}

	m.refreshViewport()
}

// =============================================================================
// REVEAL WIRING
// =============================================================================

// startReveal begins the typewriter animation for a fresh assistant
// message. Ticks come back through the program as RevealTickMsg.
func (m *Model) startReveal(convID string, msg *store.Message) {
	m.revealing[msg.ID] = ""
	send := m.send
	id, content := msg.ID, msg.Content

	m.revealSlot.Start(content, reveal.Options{
		Delay: time.Duration(m.settings.DisplaySpeedMs) * time.Millisecond,
		OnTick: func(partial string) {
			send(RevealTickMsg{ConversationID: convID, MessageID: id, Partial: partial})
		},
		OnDone: func() {
			send(RevealDoneMsg{ConversationID: convID, MessageID: id})
		},
	})
}

// cancelReveals stops any in-flight reveal and shows full text, used
// when switching conversations mid-animation.
func (m *Model) cancelReveals() {
	m.revealSlot.Cancel()
	m.revealing = make(map[string]string)
}

// =============================================================================
// NOTICES
// =============================================================================

// showNotice displays a transient status line that clears itself.
func (m *Model) showNotice(text string) tea.Cmd {
	m.notice = text
	m.noticeSeq++
	seq := m.noticeSeq
	return tea.Tick(noticeDuration, func(time.Time) tea.Msg {
		return NoticeExpiredMsg{Seq: seq}
	})
}

// =============================================================================
// HELPERS
// =============================================================================

// renderMarkdown renders completed assistant content for the terminal.
func (m *Model) renderMarkdown(content string) string {
	if m.renderer == nil {
		return content
	}
	out, err := m.renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(out, "\n")
}

// statusLine summarizes connection and exchange state.
func (m *Model) statusLine() string {
	state := m.theme.StatusIdle.Render("● idle")
	if m.coord.Sending() {
		state = m.theme.StatusBusy.Render(m.spin.View() + "sending")
		if n := m.coord.QueueLen(); n > 0 {
			state += m.theme.StatusBusy.Render(fmt.Sprintf(" (+%d queued)", n))
		}
	}

	key := m.theme.StatusIdle.Render("key ✓")
	if !m.client.IsConfigured() {
		key = m.theme.StatusBusy.Render("key ✗ (/key)")
	}

	return state + "  " + key
}

var _ tea.Model = (*Model)(nil)
