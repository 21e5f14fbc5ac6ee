// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the orchat command line surface.
//
// With no arguments orchat starts the full-screen TUI; subcommands
// cover one-shot questions, a plain line-mode REPL, and API key
// management for scripts and first-run setup.
package cli

import (
	"fmt"
	"os"

	"github.com/jeranaias/orchat/internal/config"
	"github.com/jeranaias/orchat/internal/keyring"
	"github.com/jeranaias/orchat/internal/kv"
	"github.com/jeranaias/orchat/internal/openrouter"
	"github.com/jeranaias/orchat/internal/store"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// Run dispatches a subcommand. Returns handled=false when no
// subcommand matched and the caller should start the TUI.
func Run(args []string) (handled bool, err error) {
	if len(args) == 0 {
		return false, nil
	}

	switch args[0] {
	case "ask":
		return true, runAsk(args[1:])
	case "chat":
		return true, runChat(args[1:])
	case "key":
		return true, runKey(args[1:])
	case "version", "--version", "-v":
		fmt.Printf("orchat %s\n", Version)
		return true, nil
	case "help", "--help", "-h":
		printUsage()
		return true, nil
	default:
		printUsage()
		return true, fmt.Errorf("unknown command: %s", args[0])
	}
}

func printUsage() {
	fmt.Print(`orchat - terminal chat client for OpenRouter

Usage:
  orchat                 start the interactive TUI
  orchat ask <question>  ask a single question and print the answer
  orchat chat            plain line-mode chat (no full-screen UI)
  orchat key set         store your OpenRouter API key (hidden input)
  orchat key show        show whether a key is stored
  orchat key clear       remove the stored key
  orchat version         print the version

Environment:
  ORCHAT_MODEL               override the configured model
  ORCHAT_DISPLAY_SPEED_MS    override the typewriter delay
`)
}

// =============================================================================
// SHARED SETUP
// =============================================================================

// env bundles the wired dependencies shared by the subcommands.
type env struct {
	settings *config.Settings
	ring     *keyring.Keyring
	client   *openrouter.Client
	store    *store.Store
}

// setup loads config, opens the keyring, and builds the client. The
// conversation store opens lazily since ask/chat do not always need it.
func setup() (*env, error) {
	settings, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	dir, err := config.Dir()
	if err != nil {
		return nil, err
	}
	ring, err := keyring.New(dir)
	if err != nil {
		return nil, err
	}

	client := openrouter.New("", settings.Model)
	if key, err := ring.Get(); err == nil {
		client.SetAPIKey(key)
	}

	return &env{settings: settings, ring: ring, client: client}, nil
}

// openStore opens the persistent conversation store.
func (e *env) openStore() error {
	if e.store != nil {
		return nil
	}
	dir, err := config.Dir()
	if err != nil {
		return err
	}
	backend, err := kv.Open(dir)
	if err != nil {
		return err
	}
	e.store = store.New(backend, nil, store.Policy{
		TitleMaxChars:    e.settings.TitleMaxChars,
		PreviewMaxChars:  e.settings.PreviewMaxChars,
		MaxConversations: e.settings.MaxStoredConversations,
		RetentionDays:    e.settings.AutoClearAfterDays,
	})
	return nil
}

// requireKey fails fast with a setup hint when no API key is present.
func (e *env) requireKey() error {
	if e.client.IsConfigured() {
		return nil
	}
	fmt.Fprintln(os.Stderr, "No API key configured. Run: orchat key set")
	return openrouter.ErrMissingKey
}
