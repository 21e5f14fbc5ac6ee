// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Slash command registry. Each command is an individual handler so
// commands stay independently testable.

package chat

import (
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/orchat/internal/config"
	"github.com/jeranaias/orchat/internal/export"
)

// commandHandler handles one slash command.
type commandHandler func(m *Model, args []string) (tea.Model, tea.Cmd)

var commandHandlers = map[string]commandHandler{
	"help": handleHelpCommand,
	"h":    handleHelpCommand,
	"?":    handleHelpCommand,
	"quit": handleQuitCommand,
	"q":    handleQuitCommand,
	"exit": handleQuitCommand,

	"new":    handleNewCommand,
	"n":      handleNewCommand,
	"clear":  handleClearCommand,
	"c":      handleClearCommand,
	"delete": handleDeleteCommand,
	"del":    handleDeleteCommand,

	"export": handleExportCommand,
	"e":      handleExportCommand,

	"model":    handleModelCommand,
	"m":        handleModelCommand,
	"speed":    handleSpeedCommand,
	"key":      handleKeyCommand,
	"settings": handleSettingsCommand,
}

// handleCommand parses and dispatches a /command line.
func (m *Model) handleCommand(line string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(strings.TrimPrefix(line, "/"))
	if len(fields) == 0 {
		return m, nil
	}
	name, args := strings.ToLower(fields[0]), fields[1:]

	handler, ok := commandHandlers[name]
	if !ok {
		return m, m.showNotice(fmt.Sprintf("Unknown command /%s (try /help)", name))
	}
	return handler(m, args)
}

// =============================================================================
// HANDLERS
// =============================================================================

func handleHelpCommand(m *Model, _ []string) (tea.Model, tea.Cmd) {
	m.showHelp = true
	return m, nil
}

func handleQuitCommand(m *Model, _ []string) (tea.Model, tea.Cmd) {
	m.quitting = true
	return m, tea.Quit
}

func handleNewCommand(m *Model, _ []string) (tea.Model, tea.Cmd) {
	if err := m.coord.NewChat(); err != nil {
		return m, nil
	}
	m.cancelReveals()
	m.reload()
	return m, nil
}

func handleClearCommand(m *Model, _ []string) (tea.Model, tea.Cmd) {
	if err := m.coord.ClearActive(); err != nil {
		return m, nil
	}
	m.cancelReveals()
	m.reload()
	return m, m.showNotice("Conversation cleared")
}

func handleDeleteCommand(m *Model, _ []string) (tea.Model, tea.Cmd) {
	if err := m.coord.DeleteActive(); err != nil {
		return m, nil
	}
	m.cancelReveals()
	m.reload()
	return m, m.showNotice("Conversation deleted")
}

func handleExportCommand(m *Model, args []string) (tea.Model, tea.Cmd) {
	if m.conv == nil {
		return m, m.showNotice("Nothing to export")
	}

	format := "md"
	if len(args) > 0 {
		format = strings.ToLower(args[0])
	}

	opts := export.DefaultOptions()
	opts.FontSize = m.settings.FontSize

	var exporter export.Exporter
	switch format {
	case "html", "htm":
		exporter = export.NewHTMLExporter(opts)
	case "md", "markdown":
		exporter = export.NewMarkdownExporter(opts)
	default:
		return m, m.showNotice("Unsupported format (html or md)")
	}

	conv := m.conv
	return m, func() tea.Msg {
		path, err := export.ExportToFile(conv, exporter, opts)
		return ExportDoneMsg{Path: path, Err: err}
	}
}

func handleModelCommand(m *Model, args []string) (tea.Model, tea.Cmd) {
	if len(args) == 0 {
		return m, m.showNotice("Model: " + m.settings.Model)
	}
	m.settings.Model = args[0]
	m.client.SetModel(args[0])
	if err := config.Save(m.settings); err != nil {
		return m, m.showNotice("Model set (config not saved: " + err.Error() + ")")
	}
	return m, m.showNotice("Model set to " + args[0])
}

func handleSpeedCommand(m *Model, args []string) (tea.Model, tea.Cmd) {
	if len(args) == 0 {
		return m, m.showNotice(fmt.Sprintf("Typewriter delay: %dms", m.settings.DisplaySpeedMs))
	}
	ms, err := strconv.Atoi(args[0])
	if err != nil {
		return m, m.showNotice("Usage: /speed <milliseconds>")
	}
	m.settings.DisplaySpeedMs = ms
	m.settings.Clamp()
	if err := config.Save(m.settings); err != nil {
		return m, m.showNotice("Speed set (config not saved: " + err.Error() + ")")
	}
	return m, m.showNotice(fmt.Sprintf("Typewriter delay set to %dms", m.settings.DisplaySpeedMs))
}

func handleKeyCommand(m *Model, args []string) (tea.Model, tea.Cmd) {
	if len(args) == 0 {
		if m.client.IsConfigured() {
			return m, m.showNotice("API key is set (fingerprint " + m.client.KeyFingerprint() + ")")
		}
		return m, m.showNotice("No API key. Usage: /key <value>, or run: orchat key set")
	}

	apiKey := args[0]
	if err := m.ring.Set(apiKey); err != nil {
		return m, m.showNotice("Could not store key: " + err.Error())
	}
	m.client.SetAPIKey(apiKey)
	m.settings.HasAPIKey = true
	config.Save(m.settings)
	return m, m.showNotice("API key stored")
}

func handleSettingsCommand(m *Model, _ []string) (tea.Model, tea.Cmd) {
	s := m.settings
	return m, m.showNotice(fmt.Sprintf(
		"model=%s speed=%dms temp=%.1f context=%d",
		s.Model, s.DisplaySpeedMs, s.Temperature, s.MaxContextMessages))
}
