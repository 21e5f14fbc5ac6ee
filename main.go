// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// orchat is a terminal chat client for OpenRouter.
//
// With no arguments it starts the full-screen TUI; see internal/cli
// for the ask/chat/key subcommands.
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/orchat/internal/bus"
	"github.com/jeranaias/orchat/internal/cli"
	"github.com/jeranaias/orchat/internal/config"
	"github.com/jeranaias/orchat/internal/coordinator"
	"github.com/jeranaias/orchat/internal/keyring"
	"github.com/jeranaias/orchat/internal/kv"
	"github.com/jeranaias/orchat/internal/openrouter"
	"github.com/jeranaias/orchat/internal/store"
	"github.com/jeranaias/orchat/internal/ui/chat"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// Program reference for goroutines that feed messages into the event
// loop (bus subscription, reveal timers, config watcher).
var (
	programRef *tea.Program
	programMu  sync.Mutex
)

func init() {
	cli.Version = Version
}

func main() {
	handled, err := cli.Run(os.Args[1:])
	if handled {
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := runTUI(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runTUI() error {
	settings, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	config.SetGlobal(settings)

	dir, err := config.Dir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	closeLog, err := setupLogging(dir)
	if err != nil {
		return err
	}
	defer closeLog()

	// Storage and domain wiring.
	backend, err := kv.Open(dir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	eventBus := bus.New()
	defer eventBus.Close()

	st := store.New(backend, eventBus, store.Policy{
		TitleMaxChars:    settings.TitleMaxChars,
		PreviewMaxChars:  settings.PreviewMaxChars,
		MaxConversations: settings.MaxStoredConversations,
		RetentionDays:    settings.AutoClearAfterDays,
	})

	ring, err := keyring.New(dir)
	if err != nil {
		return err
	}
	client := openrouter.New("", settings.Model)
	if key, err := ring.Get(); err == nil {
		client.SetAPIKey(key)
	} else if err != keyring.ErrNoKey {
		log.Printf("keyring: %v", err)
	}

	coord := coordinator.New(st, client, eventBus, config.Global)
	if err := coord.Start(); err != nil {
		return fmt.Errorf("start coordinator: %w", err)
	}

	// UI wiring.
	m := chat.New(coord, st, client, ring, settings)
	p := tea.NewProgram(m, tea.WithAltScreen())

	programMu.Lock()
	programRef = p
	programMu.Unlock()

	m.SetSend(func(msg tea.Msg) {
		programMu.Lock()
		ref := programRef
		programMu.Unlock()
		if ref != nil {
			ref.Send(msg)
		}
	})

	// Domain events flow into the UI through the program.
	sub := eventBus.Subscribe(func(ev bus.Event) {
		programMu.Lock()
		ref := programRef
		programMu.Unlock()
		if ref != nil {
			ref.Send(chat.BusMsg{Event: ev})
		}
	})
	defer sub.Unsubscribe()

	// Settings hot reload: edits to the config file apply live.
	watcher, err := config.Watch(func(s *config.Settings) {
		st.SetPolicy(store.Policy{
			TitleMaxChars:    s.TitleMaxChars,
			PreviewMaxChars:  s.PreviewMaxChars,
			MaxConversations: s.MaxStoredConversations,
			RetentionDays:    s.AutoClearAfterDays,
		})
		programMu.Lock()
		ref := programRef
		programMu.Unlock()
		if ref != nil {
			ref.Send(chat.SettingsAppliedMsg{Settings: s})
		}
	})
	if err != nil {
		log.Printf("config watcher disabled: %v", err)
	} else {
		defer watcher.Close()
	}

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run program: %w", err)
	}
	return nil
}

// setupLogging sends the standard logger to a file so log lines never
// corrupt the alternate screen.
func setupLogging(dir string) (func(), error) {
	f, err := os.OpenFile(filepath.Join(dir, "orchat.log"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	log.SetOutput(f)
	log.SetFlags(log.LstdFlags | log.Lmsgprefix)
	return func() { f.Close() }, nil
}
