// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - single question command.
//
// Sends one prompt to OpenRouter and prints the rendered answer.
//
// Examples:
//   orchat ask "What is a goroutine?"
//   orchat ask -m anthropic/claude-3-haiku "Summarize this"
//   orchat ask --plain "print without markdown rendering"
package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/orchat/internal/openrouter"
)

func runAsk(args []string) error {
	fs := flag.NewFlagSet("ask", flag.ContinueOnError)
	model := fs.String("m", "", "model to use (overrides config)")
	plain := fs.Bool("plain", false, "print raw text without markdown rendering")
	if err := fs.Parse(args); err != nil {
		return err
	}

	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		return fmt.Errorf("usage: orchat ask <question>")
	}

	e, err := setup()
	if err != nil {
		return err
	}
	if err := e.requireKey(); err != nil {
		return err
	}
	if *model != "" {
		e.client.SetModel(*model)
	}

	reply, err := e.client.Complete(context.Background(), nil, question, openrouter.Options{
		Temperature: e.settings.Temperature,
	})
	if err != nil {
		return err
	}

	if *plain {
		fmt.Println(reply)
		return nil
	}
	fmt.Println(renderAnswer(reply))
	return nil
}

// renderAnswer formats markdown for the terminal, falling back to raw
// text when rendering is unavailable (pipes, dumb terminals).
func renderAnswer(text string) string {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(terminalWidth()),
	)
	if err != nil {
		return text
	}
	out, err := renderer.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n")
}

func terminalWidth() int {
	if fi, err := os.Stdout.Stat(); err == nil && fi.Mode()&os.ModeCharDevice == 0 {
		// Not a terminal: no wrapping.
		return 0
	}
	return 100
}
