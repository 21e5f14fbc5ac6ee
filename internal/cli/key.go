// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// key.go - API key management.
//
// The key is read with terminal echo disabled and stored encrypted;
// it never appears in the config file or shell history.
package cli

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/jeranaias/orchat/internal/config"
)

func runKey(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: orchat key <set|show|clear>")
	}

	e, err := setup()
	if err != nil {
		return err
	}

	switch args[0] {
	case "set":
		return keySet(e)
	case "show":
		return keyShow(e)
	case "clear":
		return keyClear(e)
	default:
		return fmt.Errorf("unknown key subcommand: %s", args[0])
	}
}

func keySet(e *env) error {
	fmt.Print("OpenRouter API key: ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("read key: %w", err)
	}

	apiKey := strings.TrimSpace(string(raw))
	if apiKey == "" {
		return fmt.Errorf("no key entered")
	}

	if err := e.ring.Set(apiKey); err != nil {
		return err
	}
	e.settings.HasAPIKey = true
	if err := config.Save(e.settings); err != nil {
		return err
	}
	fmt.Println("API key stored.")
	return nil
}

func keyShow(e *env) error {
	if !e.ring.Exists() {
		fmt.Println("No API key stored.")
		return nil
	}
	// Show a fingerprint only; the key itself stays sealed.
	key, err := e.ring.Get()
	if err != nil {
		return err
	}
	e.client.SetAPIKey(key)
	fmt.Printf("API key stored (fingerprint %s).\n", e.client.KeyFingerprint())
	return nil
}

func keyClear(e *env) error {
	if err := e.ring.Clear(); err != nil {
		return err
	}
	e.settings.HasAPIKey = false
	if err := config.Save(e.settings); err != nil {
		return err
	}
	fmt.Println("API key removed.")
	return nil
}
