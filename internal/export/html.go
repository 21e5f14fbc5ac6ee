// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/jeranaias/orchat/internal/markdown"
	"github.com/jeranaias/orchat/internal/store"
)

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter renders conversations as a standalone HTML page with
// embedded CSS. Message bodies go through the markdown renderer, so
// code blocks, tables, and links survive the export.
type HTMLExporter struct {
	options *Options
}

// NewHTMLExporter creates an HTML exporter.
func NewHTMLExporter(opts *Options) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &HTMLExporter{options: opts}
}

func (e *HTMLExporter) FileExtension() string { return ".html" }

// Export converts a conversation to HTML.
func (e *HTMLExporter) Export(conv *store.Conversation) ([]byte, error) {
	if conv == nil {
		return nil, fmt.Errorf("conversation is nil")
	}
	if len(conv.Messages) == 0 {
		return nil, fmt.Errorf("conversation has no messages")
	}

	var sb strings.Builder

	sb.WriteString("<!DOCTYPE html>\n")
	sb.WriteString("<html lang=\"en\">\n<head>\n")
	sb.WriteString("    <meta charset=\"UTF-8\">\n")
	sb.WriteString("    <meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	sb.WriteString(fmt.Sprintf("    <title>%s</title>\n", html.EscapeString(conv.Title)))
	sb.WriteString("    <meta name=\"generator\" content=\"orchat\">\n")
	sb.WriteString(e.css())
	sb.WriteString("</head>\n<body>\n")

	if e.options.IncludeMetadata {
		sb.WriteString("<header class=\"meta\">\n")
		sb.WriteString(fmt.Sprintf("    <h1>%s</h1>\n", html.EscapeString(conv.Title)))
		sb.WriteString(fmt.Sprintf("    <p>Exported %s · %d messages</p>\n",
			time.Now().Format("2006-01-02 15:04"), len(conv.Messages)))
		sb.WriteString("</header>\n")
	}

	for _, msg := range conv.Messages {
		sb.WriteString(fmt.Sprintf("<section class=\"message message-%s\">\n", msg.Role))
		sb.WriteString(fmt.Sprintf("    <div class=\"role\">%s", roleLabel(msg.Role)))
		if e.options.IncludeTimestamps && !msg.CreatedAt.IsZero() {
			sb.WriteString(fmt.Sprintf(" <time>%s</time>", msg.CreatedAt.Format("15:04:05")))
		}
		sb.WriteString("</div>\n")
		sb.WriteString("    " + markdown.Render(msg.Content) + "\n")
		sb.WriteString("</section>\n")
	}

	sb.WriteString("</body>\n</html>\n")
	return []byte(sb.String()), nil
}

// css returns the embedded stylesheet. The px-* selectors match the
// classes emitted by the markdown renderer.
func (e *HTMLExporter) css() string {
	fg, bg, accent, panel := "#e6e6e6", "#131318", "#7aa2f7", "#1d1d26"
	if e.options.Theme == "light" {
		fg, bg, accent, panel = "#24292f", "#ffffff", "#0550ae", "#f6f8fa"
	}
	fontSize := e.options.FontSize
	if fontSize <= 0 {
		fontSize = 16
	}

	return fmt.Sprintf(`    <style>
        body { background: %[2]s; color: %[1]s; font-size: %[5]dpx;
               font-family: -apple-system, "Segoe UI", sans-serif;
               max-width: 52rem; margin: 0 auto; padding: 2rem 1rem; }
        .meta h1 { color: %[3]s; margin-bottom: 0.25rem; }
        .meta p { color: %[1]s; opacity: 0.6; margin-top: 0; }
        .message { margin: 1.25rem 0; padding: 0.75rem 1rem;
                   background: %[4]s; border-radius: 8px; }
        .message-user { border-left: 3px solid %[3]s; }
        .role { font-weight: 600; color: %[3]s; margin-bottom: 0.5rem; }
        .role time { font-weight: 400; opacity: 0.6; font-size: 0.85em; }
        .px-content pre { background: %[2]s; padding: 0.75rem;
                          border-radius: 6px; overflow-x: auto; }
        .px-content code.inline-code { background: %[2]s; padding: 0.1em 0.35em;
                                       border-radius: 4px; }
        .px-content table { border-collapse: collapse; }
        .px-content th, .px-content td { border: 1px solid %[3]s55;
                                         padding: 0.3em 0.6em; }
        .px-content blockquote.px-blockquote { border-left: 3px solid %[3]s;
                                               margin-left: 0; padding-left: 1em;
                                               opacity: 0.85; }
        .code-header { display: flex; justify-content: space-between;
                       font-size: 0.8em; opacity: 0.7; }
        .code-copy-btn { background: none; border: 1px solid %[3]s55;
                         color: %[1]s; border-radius: 4px; cursor: pointer; }
        .px-content a { color: %[3]s; }
    </style>
`, fg, bg, accent, panel, fontSize)
}
