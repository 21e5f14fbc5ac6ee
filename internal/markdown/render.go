// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package markdown converts assistant markdown into sanitized HTML for
// transcript export and the copy-as-HTML action.
//
// The pipeline runs a fixed sequence of passes. Code blocks are pulled
// out first and replaced with opaque placeholders so that no later pass
// can reinterpret characters inside them (*, #, | and friends are all
// markdown-significant), then all remaining text is HTML-escaped before
// any tags are generated. Only wrapper tags produced by the passes
// themselves are trusted; every byte of input text ends up escaped.
package markdown

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/alecthomas/chroma/v2/lexers"
)

// Placeholder delimiters. NUL cannot survive in rendered markdown text
// (it is stripped during normalization), so tokens are collision-free.
const (
	tokenPrefix = "\x00blk"
	tokenSuffix = "\x00"
)

type renderer struct {
	// blocks holds finished HTML fragments keyed by placeholder index.
	blocks []string
}

// Render converts a markdown string to sanitized HTML. Pure and
// deterministic: same input, same output, no side effects.
func Render(markdown string) string {
	if markdown == "" {
		return ""
	}

	r := &renderer{}

	// Pass 1: normalize line endings and strip NUL.
	text := strings.ReplaceAll(markdown, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, "\x00", "")

	// Pass 2: fenced code blocks, before anything else touches the text.
	text = r.extractFencedCode(text)

	// Everything that is not already inside a protected block is raw
	// text from here on; escape it before any tag generation.
	text = html.EscapeString(text)

	// Pass 3: tables.
	text = r.renderTables(text)

	// Pass 4: inline code spans. Protected like fenced blocks so the
	// emphasis passes cannot touch their contents.
	text = r.renderInlineCode(text)

	// Pass 5: headers.
	text = renderHeaders(text)

	// Pass 6: bold, then italic.
	text = renderEmphasis(text)

	// Pass 7: lists.
	text = renderLists(text)

	// Pass 8: horizontal rules.
	text = renderRules(text)

	// Pass 9: links.
	text = renderLinks(text)

	// Pass 10: blockquotes.
	text = renderBlockquotes(text)

	// Pass 11: paragraphs.
	text = r.renderParagraphs(text)

	// Pass 12: cleanup, placeholder restore, container wrap.
	text = collapseBlankLines(text)
	text = r.restore(text)

	return `<div class="px-content">` + strings.TrimSpace(text) + `</div>`
}

// protect stores an HTML fragment and returns its placeholder token.
func (r *renderer) protect(htmlFragment string) string {
	r.blocks = append(r.blocks, htmlFragment)
	return fmt.Sprintf("%s%d%s", tokenPrefix, len(r.blocks)-1, tokenSuffix)
}

var tokenRe = regexp.MustCompile("\x00blk(\\d+)\x00")

// restore replaces placeholder tokens with their stored fragments.
func (r *renderer) restore(text string) string {
	return tokenRe.ReplaceAllStringFunc(text, func(tok string) string {
		var idx int
		fmt.Sscanf(tok, tokenPrefix+"%d", &idx)
		if idx < 0 || idx >= len(r.blocks) {
			return ""
		}
		return r.blocks[idx]
	})
}

// =============================================================================
// CODE BLOCKS
// =============================================================================

// fenceRe requires a closing fence. An unterminated fence deliberately
// fails to match and falls through to plain-text handling instead of
// swallowing the rest of the document.
var fenceRe = regexp.MustCompile("(?s)```([^\n`]*)\n(.*?)\n?```")

func (r *renderer) extractFencedCode(text string) string {
	return fenceRe.ReplaceAllStringFunc(text, func(match string) string {
		parts := fenceRe.FindStringSubmatch(match)
		lang := strings.TrimSpace(parts[1])
		code := strings.TrimRight(parts[2], "\n")

		label, class := languageLabel(lang)
		fragment := `<div class="code-block">` +
			`<div class="code-header">` +
			`<span class="code-language">` + html.EscapeString(label) + `</span>` +
			`<div class="code-actions">` +
			`<button class="code-copy-btn" type="button" aria-label="Copy code">Copy</button>` +
			`</div></div>` +
			`<pre><code class="language-` + html.EscapeString(class) + `">` +
			html.EscapeString(code) +
			`</code></pre></div>`

		return r.protect(fragment)
	})
}

// languageLabel resolves a fence language tag to a display label and a
// css class suffix. The chroma lexer registry canonicalizes the many
// aliases models emit (golang/go, js/javascript, py/python); a fence
// with no tag, or an unknown one, gets the generic label.
func languageLabel(lang string) (label, class string) {
	if lang == "" {
		return "code", "plaintext"
	}
	if lexer := lexers.Get(lang); lexer != nil {
		return lexer.Config().Name, lang
	}
	return lang, lang
}

// =============================================================================
// TABLES
// =============================================================================

// tableRe matches a pipe-delimited header row, an alignment row, and
// zero or more body rows. Input is already escaped, so cell text never
// contains raw angle brackets.
var tableRe = regexp.MustCompile(`(?m)^(\|[^\n]+\|)\n(\|(?:[ \t]*:?-+:?[ \t]*\|)+)\n((?:\|[^\n]+\|\n?)*)`)

func (r *renderer) renderTables(text string) string {
	return tableRe.ReplaceAllStringFunc(text, func(match string) string {
		parts := tableRe.FindStringSubmatch(match)
		headerRow, alignRow, bodyRows := parts[1], parts[2], parts[3]

		aligns := parseAlignments(alignRow)

		var sb strings.Builder
		sb.WriteString(`<div class="markdown-table-wrapper"><table><thead><tr>`)
		for _, cell := range splitRow(headerRow) {
			sb.WriteString("<th>" + strings.TrimSpace(cell) + "</th>")
		}
		sb.WriteString(`</tr></thead><tbody>`)

		for _, row := range strings.Split(strings.TrimRight(bodyRows, "\n"), "\n") {
			if strings.TrimSpace(row) == "" {
				continue
			}
			sb.WriteString("<tr>")
			for i, cell := range splitRow(row) {
				align := "left"
				if i < len(aligns) {
					align = aligns[i]
				}
				sb.WriteString(`<td style="text-align:` + align + `">` + strings.TrimSpace(cell) + "</td>")
			}
			sb.WriteString("</tr>")
		}
		sb.WriteString(`</tbody></table></div>`)

		// Preserve the trailing newline boundary so a paragraph directly
		// after the table still starts on its own line.
		return sb.String() + "\n"
	})
}

// splitRow splits "| a | b |" into its cells.
func splitRow(row string) []string {
	row = strings.TrimSpace(row)
	row = strings.TrimPrefix(row, "|")
	row = strings.TrimSuffix(row, "|")
	return strings.Split(row, "|")
}

// parseAlignments maps :--- / :---: / ---: markers to css alignments.
func parseAlignments(alignRow string) []string {
	var aligns []string
	for _, cell := range splitRow(alignRow) {
		cell = strings.TrimSpace(cell)
		left := strings.HasPrefix(cell, ":")
		right := strings.HasSuffix(cell, ":")
		switch {
		case left && right:
			aligns = append(aligns, "center")
		case right:
			aligns = append(aligns, "right")
		default:
			aligns = append(aligns, "left")
		}
	}
	return aligns
}

// =============================================================================
// INLINE PASSES
// =============================================================================

var inlineCodeRe = regexp.MustCompile("`([^`\n]+)`")

func (r *renderer) renderInlineCode(text string) string {
	return inlineCodeRe.ReplaceAllStringFunc(text, func(match string) string {
		content := inlineCodeRe.FindStringSubmatch(match)[1]
		return r.protect(`<code class="inline-code">` + content + `</code>`)
	})
}

var headerRe = regexp.MustCompile(`(?m)^(#{1,6})[ \t]+(.+)$`)

func renderHeaders(text string) string {
	return headerRe.ReplaceAllStringFunc(text, func(match string) string {
		parts := headerRe.FindStringSubmatch(match)
		level := len(parts[1])
		return fmt.Sprintf(`<h%d class="px-header px-h%d">%s</h%d>`,
			level, level, strings.TrimSpace(parts[2]), level)
	})
}

var (
	boldStarRe       = regexp.MustCompile(`\*\*([^\n]+?)\*\*`)
	boldUnderscoreRe = regexp.MustCompile(`__([^\n]+?)__`)
	// Italic markers must not cross lines (or a bulleted list written
	// with * would glue adjacent items together) and the content must
	// not start with whitespace, so a list marker star followed by a
	// space is never mistaken for an opening marker.
	italicStarRe       = regexp.MustCompile(`\*([^\s*][^*\n]*)\*`)
	italicUnderscoreRe = regexp.MustCompile(`\b_([^_\n]+)_\b`)
)

func renderEmphasis(text string) string {
	text = boldStarRe.ReplaceAllString(text, `<strong class="px-bold">$1</strong>`)
	text = boldUnderscoreRe.ReplaceAllString(text, `<strong class="px-bold">$1</strong>`)
	text = italicStarRe.ReplaceAllString(text, `<em class="px-italic">$1</em>`)
	text = italicUnderscoreRe.ReplaceAllString(text, `<em class="px-italic">$1</em>`)
	return text
}

// =============================================================================
// LISTS
// =============================================================================

var (
	unorderedBlockRe = regexp.MustCompile(`(?m)(?:^[ \t]*[-*+][ \t]+.+(?:\n|$))+`)
	unorderedItemRe  = regexp.MustCompile(`(?m)^[ \t]*[-*+][ \t]+(.+)$`)
	orderedBlockRe   = regexp.MustCompile(`(?m)(?:^[ \t]*\d+\.[ \t]+.+(?:\n|$))+`)
	orderedItemRe    = regexp.MustCompile(`(?m)^[ \t]*\d+\.[ \t]+(.+)$`)
)

func renderLists(text string) string {
	text = unorderedBlockRe.ReplaceAllStringFunc(text, func(block string) string {
		return listHTML("ul", "px-unordered-list", unorderedItemRe, block)
	})
	text = orderedBlockRe.ReplaceAllStringFunc(text, func(block string) string {
		return listHTML("ol", "px-ordered-list", orderedItemRe, block)
	})
	return text
}

// listHTML groups the contiguous marker lines of block into one list.
func listHTML(tag, class string, itemRe *regexp.Regexp, block string) string {
	var sb strings.Builder
	sb.WriteString(`<` + tag + ` class="px-list ` + class + `">`)
	for _, item := range itemRe.FindAllStringSubmatch(block, -1) {
		sb.WriteString(`<li class="px-list-item">` + strings.TrimSpace(item[1]) + `</li>`)
	}
	sb.WriteString(`</` + tag + `>`)
	return sb.String() + "\n"
}

// =============================================================================
// RULES, LINKS, BLOCKQUOTES
// =============================================================================

var hrRe = regexp.MustCompile(`(?m)^[ \t]*(?:(?:-[ \t]*){3,}|(?:\*[ \t]*){3,}|(?:_[ \t]*){3,})$`)

func renderRules(text string) string {
	return hrRe.ReplaceAllString(text, `<hr class="px-hr">`)
}

var linkRe = regexp.MustCompile(`\[([^\]]+)\]\(([^)\s]+)\)`)

func renderLinks(text string) string {
	return linkRe.ReplaceAllStringFunc(text, func(match string) string {
		parts := linkRe.FindStringSubmatch(match)
		label, href := parts[1], parts[2]
		if !safeHref(href) {
			return label
		}
		return `<a href="` + href + `" class="px-link" target="_blank" rel="noopener noreferrer">` + label + `</a>`
	})
}

// safeHref rejects script-bearing URL schemes. The text is already
// entity-escaped, so quotes cannot break out of the attribute; only the
// scheme needs vetting.
func safeHref(href string) bool {
	lower := strings.ToLower(href)
	for _, scheme := range []string{"javascript:", "data:", "vbscript:"} {
		if strings.HasPrefix(lower, scheme) {
			return false
		}
	}
	return true
}

// Blockquote lines arrive as &gt; because escaping runs before this pass.
var blockquoteRe = regexp.MustCompile(`(?m)(?:^&gt;[ \t]?.*(?:\n|$))+`)

func renderBlockquotes(text string) string {
	return blockquoteRe.ReplaceAllStringFunc(text, func(block string) string {
		var lines []string
		for _, line := range strings.Split(strings.TrimRight(block, "\n"), "\n") {
			line = strings.TrimPrefix(line, "&gt;")
			line = strings.TrimPrefix(line, " ")
			lines = append(lines, line)
		}
		return `<blockquote class="px-blockquote">` + strings.Join(lines, "<br>") + `</blockquote>` + "\n"
	})
}

// =============================================================================
// PARAGRAPHS AND CLEANUP
// =============================================================================

// structuralPrefixes marks runs that are already block-level HTML and
// must not be wrapped in a paragraph.
var structuralPrefixes = []string{
	"<h1", "<h2", "<h3", "<h4", "<h5", "<h6",
	"<ul", "<ol", "<blockquote", "<hr",
	`<div class="markdown-table-wrapper"`,
	tokenPrefix, // protected code block
}

func isStructural(run string) bool {
	for _, prefix := range structuralPrefixes {
		if strings.HasPrefix(run, prefix) {
			return true
		}
	}
	return false
}

var blankRunRe = regexp.MustCompile(`\n{2,}`)

func (r *renderer) renderParagraphs(text string) string {
	runs := blankRunRe.Split(text, -1)

	for i, run := range runs {
		trimmed := strings.TrimSpace(run)
		if trimmed == "" || isStructural(trimmed) {
			runs[i] = trimmed
			continue
		}
		// Single newlines inside a run become line breaks; structural
		// fragments embedded mid-run (a list right after a text line)
		// keep their own line.
		lines := strings.Split(trimmed, "\n")
		var kept []string
		for _, line := range lines {
			if strings.TrimSpace(line) == "" {
				continue
			}
			kept = append(kept, line)
		}
		runs[i] = `<p class="px-paragraph">` + strings.Join(kept, "<br>") + `</p>`
	}

	return strings.Join(runs, "\n\n")
}

var emptyParagraphRe = regexp.MustCompile(`<p[^>]*>\s*</p>`)

func collapseBlankLines(text string) string {
	text = emptyParagraphRe.ReplaceAllString(text, "")
	text = blankRunRe.ReplaceAllString(text, "\n")
	return text
}
