// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/orchat/internal/bus"
	"github.com/jeranaias/orchat/internal/coordinator"
	"github.com/jeranaias/orchat/internal/store"
)

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		if m.showHelp {
			m.showHelp = false
			return m, nil
		}
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case BusMsg:
		return m.handleBusEvent(msg.Event)

	case RevealTickMsg:
		if m.conv != nil && m.conv.ID == msg.ConversationID {
			m.revealing[msg.MessageID] = msg.Partial
			m.refreshViewport()
		}
		return m, nil

	case RevealDoneMsg:
		delete(m.revealing, msg.MessageID)
		m.store.MarkSeen(msg.ConversationID, msg.MessageID)
		if m.conv != nil && m.conv.ID == msg.ConversationID {
			m.reload()
		}
		return m, nil

	case NoticeExpiredMsg:
		if msg.Seq == m.noticeSeq {
			m.notice = ""
		}
		return m, nil

	case ExportDoneMsg:
		if msg.Err != nil {
			return m, m.showNotice("Export failed: " + msg.Err.Error())
		}
		return m, m.showNotice("Exported to " + msg.Path)

	case SettingsAppliedMsg:
		m.settings = msg.Settings
		m.client.SetModel(msg.Settings.Model)
		return m, m.showNotice("Settings reloaded")
	}

	return m, nil
}

// handleBusEvent reacts to domain events from the store and
// coordinator.
func (m *Model) handleBusEvent(ev bus.Event) (tea.Model, tea.Cmd) {
	switch ev.Kind {
	case bus.KindConversationChanged:
		m.cancelReveals()
		m.reload()

	case bus.KindMessageAppended:
		if m.conv == nil || ev.ConversationID != m.conv.ID {
			return m, nil
		}
		m.reload()
		// Animate a fresh assistant reply; everything else renders at
		// once.
		if msgs := m.conv.Messages; len(msgs) > 0 {
			last := msgs[len(msgs)-1]
			if last.ID == ev.MessageID && last.Fresh && last.Role == "assistant" {
				m.startReveal(m.conv.ID, last)
			}
		}

	case bus.KindStateChanged:
		m.refreshViewport()

	case bus.KindNotice:
		return m, m.showNotice(ev.Notice)
	}
	return m, nil
}

// handleKey routes keyboard input.
func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "esc":
		if m.coord.Sending() {
			m.coord.Cancel()
			return m, m.showNotice("Request cancelled")
		}
		if m.sidebarFocused {
			m.sidebarFocused = false
			m.input.Focus()
			return m, nil
		}
		return m, nil

	case "tab":
		if m.sidebarVisible && !m.sidebarFocused {
			m.sidebarFocused = true
			m.input.Blur()
		} else {
			m.sidebarFocused = false
			m.input.Focus()
		}
		return m, nil

	case "ctrl+b":
		m.sidebarVisible = !m.sidebarVisible
		m.sidebarFocused = false
		m.input.Focus()
		m.resize(m.width, m.height)
		return m, nil

	case "ctrl+n":
		if err := m.coord.NewChat(); err == nil {
			m.cancelReveals()
			m.reload()
		}
		return m, nil

	case "enter":
		if m.sidebarFocused {
			return m.selectSidebar()
		}
		return m.submitInput()

	case "up", "down":
		if m.sidebarFocused {
			return m.moveSidebar(msg.String())
		}

	case "pgup", "pgdown", "home", "end":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	if m.sidebarFocused {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submitInput dispatches the input line: slash commands run locally,
// everything else goes through the coordinator.
func (m *Model) submitInput() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	m.input.SetValue("")

	if strings.HasPrefix(text, "/") {
		return m.handleCommand(text)
	}

	if err := m.coord.Submit(text); err != nil && err != coordinator.ErrBusy {
		return m, m.showNotice("Error: " + err.Error())
	}
	return m, nil
}

// =============================================================================
// SIDEBAR NAVIGATION
// =============================================================================

func (m *Model) moveSidebar(dir string) (tea.Model, tea.Cmd) {
	if len(m.metas) == 0 {
		return m, nil
	}
	if dir == "up" && m.sidebarIndex > 0 {
		m.sidebarIndex--
	}
	if dir == "down" && m.sidebarIndex < len(m.metas)-1 {
		m.sidebarIndex++
	}
	return m, nil
}

func (m *Model) selectSidebar() (tea.Model, tea.Cmd) {
	if m.sidebarIndex >= len(m.metas) {
		return m, nil
	}
	target := m.metas[m.sidebarIndex]
	err := m.coord.SwitchTo(target.ID)
	if err == coordinator.ErrBusy {
		// The busy notice arrives via the bus.
		return m, nil
	}
	if err == store.ErrNotFound {
		m.reload()
		return m, m.showNotice("Conversation no longer exists")
	}
	m.sidebarFocused = false
	m.input.Focus()
	return m, nil
}
