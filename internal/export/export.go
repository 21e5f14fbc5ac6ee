// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes conversation transcripts to files.
// Supported formats: HTML with embedded styling, and raw Markdown.
package export

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/jeranaias/orchat/internal/store"
	"github.com/jeranaias/orchat/internal/util"
)

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter converts a conversation to a target format.
type Exporter interface {
	// Export renders the conversation and returns the file content.
	Export(conv *store.Conversation) ([]byte, error)

	// FileExtension returns the extension for the format (".html", ".md").
	FileExtension() string
}

// =============================================================================
// OPTIONS
// =============================================================================

// Options configures export behavior.
type Options struct {
	// OutputDir is where files are written. Default: current directory.
	OutputDir string

	// IncludeMetadata adds a header with title and export time.
	IncludeMetadata bool

	// IncludeTimestamps adds per-message timestamps.
	IncludeTimestamps bool

	// FontSize is the base glyph size in px for HTML exports.
	FontSize int

	// Theme selects the HTML palette, "dark" or "light".
	Theme string
}

// DefaultOptions returns the default export options.
func DefaultOptions() *Options {
	return &Options{
		OutputDir:         ".",
		IncludeMetadata:   true,
		IncludeTimestamps: true,
		FontSize:          16,
		Theme:             "dark",
	}
}

// =============================================================================
// FILE EXPORT
// =============================================================================

// ExportToFile renders a conversation and writes it next to a
// timestamped, filename-safe slug of its title. Returns the path.
func ExportToFile(conv *store.Conversation, exporter Exporter, opts *Options) (string, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	content, err := exporter.Export(conv)
	if err != nil {
		return "", err
	}

	filename := fmt.Sprintf("%s-%s%s",
		sanitizeFilename(conv.Title),
		time.Now().Format("20060102-150405"),
		exporter.FileExtension())
	path := filepath.Join(opts.OutputDir, filename)

	if err := util.AtomicWriteFile(path, content, 0644); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	return path, nil
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// sanitizeFilename converts a conversation title into a safe slug.
func sanitizeFilename(title string) string {
	s := unsafeFilenameChars.ReplaceAllString(strings.TrimSpace(title), "-")
	s = strings.Trim(s, "-.")
	if s == "" {
		return "conversation"
	}
	if len(s) > 60 {
		s = s[:60]
	}
	return s
}

// roleLabel maps a message role to its display name.
func roleLabel(role string) string {
	switch role {
	case "user":
		return "You"
	case "assistant":
		return "Assistant"
	default:
		return role
	}
}
