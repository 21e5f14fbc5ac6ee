// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
//
// This file defines the Bubble Tea message types used by the chat
// interface. Domain events arrive as BusMsg via program.Send from the
// event bus subscription; reveal ticks arrive the same way from the
// typewriter scheduler's timer goroutines.
package chat

import (
	"github.com/jeranaias/orchat/internal/bus"
	"github.com/jeranaias/orchat/internal/config"
)

// BusMsg wraps a domain event from the event bus.
type BusMsg struct {
	Event bus.Event
}

// RevealTickMsg delivers a typewriter partial for a fresh assistant
// message.
type RevealTickMsg struct {
	ConversationID string
	MessageID      string
	Partial        string
}

// RevealDoneMsg signals that a reveal finished and the message can be
// re-rendered through the markdown pipeline.
type RevealDoneMsg struct {
	ConversationID string
	MessageID      string
}

// NoticeExpiredMsg clears the transient notice line.
type NoticeExpiredMsg struct {
	Seq int
}

// ExportDoneMsg reports the outcome of a transcript export.
type ExportDoneMsg struct {
	Path string
	Err  error
}

// SettingsAppliedMsg carries a freshly reloaded settings snapshot.
type SettingsAppliedMsg struct {
	Settings *config.Settings
}
