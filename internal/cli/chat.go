// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - plain line-mode chat.
//
// A readline-style REPL for terminals where the full-screen TUI is
// unwanted (ssh sessions, screen readers, scripting). Conversations
// persist to the same store the TUI reads.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/jeranaias/orchat/internal/config"
	"github.com/jeranaias/orchat/internal/openrouter"
	"github.com/jeranaias/orchat/internal/store"
)

func runChat(_ []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	if err := e.requireKey(); err != nil {
		return err
	}
	if err := e.openStore(); err != nil {
		return err
	}

	conv, err := e.store.Create()
	if err != nil {
		return err
	}
	fmt.Printf("orchat (%s) - /quit to exit, /new for a fresh conversation\n\n", e.settings.Model)
	fmt.Println(renderAnswer(store.Greeting))
	fmt.Println()

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	loadHistory(line)
	defer saveHistory(line)

	for {
		input, err := line.Prompt("> ")
		if err == liner.ErrPromptAborted || err == io.EOF {
			fmt.Println()
			return nil
		}
		if err != nil {
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		switch input {
		case "/quit", "/exit", "/q":
			return nil
		case "/new":
			conv, err = e.store.Create()
			if err != nil {
				return err
			}
			fmt.Println("Started a new conversation.")
			continue
		case "/clear":
			if conv, err = e.store.Clear(conv.ID); err != nil {
				return err
			}
			fmt.Println("Conversation cleared.")
			continue
		}

		if _, err := e.store.Append(conv.ID, "user", input, false); err != nil {
			return err
		}

		window, err := e.store.Window(conv.ID, e.settings.MaxContextMessages)
		if err != nil {
			return err
		}
		outbound := make([]openrouter.ChatMessage, 0, len(window))
		for _, m := range window {
			outbound = append(outbound, openrouter.ChatMessage{Role: m.Role, Content: m.Content})
		}

		reply, err := e.client.Complete(context.Background(), outbound, input, openrouter.Options{
			Temperature: e.settings.Temperature,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}

		if _, err := e.store.Append(conv.ID, "assistant", reply, false); err != nil {
			return err
		}
		fmt.Println(renderAnswer(reply))
		fmt.Println()
	}
}

// =============================================================================
// HISTORY
// =============================================================================

func historyPath() (string, error) {
	dir, err := config.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "chat_history"), nil
}

func loadHistory(line *liner.State) {
	path, err := historyPath()
	if err != nil {
		return
	}
	if f, err := os.Open(path); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
}

func saveHistory(line *liner.State) {
	path, err := historyPath()
	if err != nil {
		return
	}
	f, err := os.Create(path)
	if err != nil {
		return
	}
	defer f.Close()
	line.WriteHistory(f)
}
