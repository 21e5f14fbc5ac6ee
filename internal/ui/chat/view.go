// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/jeranaias/orchat/internal/util"
)

// View implements tea.Model.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Loading..."
	}

	var sections []string
	sections = append(sections, m.renderHeader())

	body := m.viewport.View()
	if m.showHelp {
		body = m.renderHelp()
	} else if m.sidebarVisible {
		sidebar := m.renderSidebar()
		body = lipgloss.JoinHorizontal(lipgloss.Top, sidebar, body)
	}
	sections = append(sections, body)

	sections = append(sections, m.renderInput())
	sections = append(sections, m.renderStatusBar())

	return strings.Join(sections, "\n")
}

// =============================================================================
// SECTIONS
// =============================================================================

func (m *Model) renderHeader() string {
	title := "orchat"
	if m.conv != nil {
		title = m.conv.Title
	}
	left := m.theme.HeaderTitle.Render(title)
	right := m.theme.HeaderModel.Render(m.settings.Model)

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 4
	if gap < 1 {
		gap = 1
	}
	return m.theme.Header.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

func (m *Model) renderSidebar() string {
	var sb strings.Builder
	sb.WriteString(m.theme.SidebarTitle.Render("Conversations"))
	sb.WriteString("\n\n")

	itemWidth := sidebarWidth - 4
	for i, meta := range m.metas {
		title := util.TruncateWidth(meta.Title, itemWidth)
		style := m.theme.SidebarItem
		if m.conv != nil && meta.ID == m.conv.ID {
			title = "• " + util.TruncateWidth(meta.Title, itemWidth-2)
		}
		if m.sidebarFocused && i == m.sidebarIndex {
			style = m.theme.SidebarSelected
		}
		sb.WriteString(style.Render(title))
		sb.WriteString("\n")
		if meta.Preview != "" {
			sb.WriteString(m.theme.SidebarPreview.Render(util.TruncateWidth(meta.Preview, itemWidth)))
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	return m.theme.Sidebar.
		Width(sidebarWidth - 2).
		Height(m.viewport.Height).
		Render(sb.String())
}

func (m *Model) renderInput() string {
	return m.theme.InputContainer.Width(m.width - 2).Render(m.input.View())
}

func (m *Model) renderStatusBar() string {
	left := m.statusLine()
	if m.notice != "" {
		left = m.theme.Notice.Render(m.notice)
	}

	help := m.theme.ShortcutKey.Render("tab") + m.theme.ShortcutDesc.Render(" sidebar  ") +
		m.theme.ShortcutKey.Render("ctrl+n") + m.theme.ShortcutDesc.Render(" new  ") +
		m.theme.ShortcutKey.Render("/help") + m.theme.ShortcutDesc.Render(" commands")

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(help) - 2
	if gap < 1 {
		gap = 1
	}
	return m.theme.StatusBar.Width(m.width).Render(left + strings.Repeat(" ", gap) + help)
}

// renderHelp draws the command reference shown by /help.
func (m *Model) renderHelp() string {
	rows := []struct{ cmd, desc string }{
		{"/new", "start a new conversation"},
		{"/clear", "reset this conversation to the greeting"},
		{"/delete", "delete this conversation"},
		{"/export [html|md]", "export the transcript to a file"},
		{"/model <name>", "switch the model"},
		{"/speed <ms>", "typewriter delay, 5-50 ms"},
		{"/key <value>", "store your OpenRouter API key"},
		{"/settings", "show current settings"},
		{"/quit", "exit"},
	}

	var sb strings.Builder
	sb.WriteString(m.theme.SidebarTitle.Render("Commands"))
	sb.WriteString("\n\n")
	for _, r := range rows {
		sb.WriteString(m.theme.ShortcutKey.Render(r.cmd))
		sb.WriteString(strings.Repeat(" ", 20-lipgloss.Width(r.cmd)))
		sb.WriteString(m.theme.ShortcutDesc.Render(r.desc))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	sb.WriteString(m.theme.ThinkingText.Render("Press any key to close."))

	return m.theme.Container.Height(m.viewport.Height).Render(sb.String())
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

// renderTranscript builds the viewport content for the active
// conversation.
func (m *Model) renderTranscript() string {
	if m.conv == nil {
		return m.theme.ThinkingText.Render("No conversation selected.")
	}

	wrapWidth := m.viewport.Width - 8
	if wrapWidth < 20 {
		wrapWidth = 20
	}

	var sb strings.Builder
	for _, msg := range m.conv.Messages {
		label := m.theme.AssistantLabel.Render("Assistant")
		bubble := m.theme.AssistantBubble
		if msg.Role == "user" {
			label = m.theme.UserLabel.Render("You")
			bubble = m.theme.UserBubble
		}

		ts := m.theme.Timestamp.Render(msg.CreatedAt.Format("15:04"))
		sb.WriteString(label + " " + ts + "\n")

		content := msg.Content
		if partial, ok := m.revealing[msg.ID]; ok {
			// Mid-reveal: plain text with a cursor, markdown rendering
			// waits for the full message.
			content = partial + "▌"
			sb.WriteString(bubble.Render(wordwrap.String(content, wrapWidth)))
		} else if msg.Role == "assistant" {
			sb.WriteString(bubble.Render(m.renderMarkdown(content)))
		} else {
			sb.WriteString(bubble.Render(wordwrap.String(content, wrapWidth)))
		}
		sb.WriteString("\n\n")
	}

	if m.coord.Sending() && len(m.revealing) == 0 {
		sb.WriteString(m.theme.Spinner.Render(m.spin.View()))
		sb.WriteString(m.theme.ThinkingText.Render(" thinking..."))
		sb.WriteString("\n")
	}

	return sb.String()
}
