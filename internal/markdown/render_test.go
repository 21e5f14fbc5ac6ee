// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package markdown

import (
	"html"
	"regexp"
	"strings"
	"testing"
)

func TestRenderEmpty(t *testing.T) {
	if got := Render(""); got != "" {
		t.Errorf("Render(\"\") = %q, want empty", got)
	}
}

func TestRenderWrapsContainer(t *testing.T) {
	got := Render("hello")
	if !strings.HasPrefix(got, `<div class="px-content">`) || !strings.HasSuffix(got, "</div>") {
		t.Errorf("output not wrapped in px-content container: %q", got)
	}
	if !strings.Contains(got, `<p class="px-paragraph">hello</p>`) {
		t.Errorf("missing paragraph: %q", got)
	}
}

// codeContentRe extracts the inner text of the first rendered code block.
var codeContentRe = regexp.MustCompile(`(?s)<pre><code[^>]*>(.*?)</code></pre>`)

func TestCodeBlockRoundTrip(t *testing.T) {
	// Code containing markdown-significant characters must come back
	// escaped but otherwise untouched by list/emphasis/table rules.
	code := "# not a header\n* not a list\n| a | b |\n**not bold** <script>alert(1)</script>"
	input := "```python\n" + code + "\n```"

	out := Render(input)

	m := codeContentRe.FindStringSubmatch(out)
	if m == nil {
		t.Fatalf("no code block in output: %q", out)
	}
	if got := html.UnescapeString(m[1]); got != code {
		t.Errorf("code round trip failed:\n got %q\nwant %q", got, code)
	}
	if strings.Contains(m[1], "<script>") {
		t.Error("script tag survived unescaped inside code block")
	}
	if strings.Contains(out, "<em") || strings.Contains(out, "<strong") || strings.Contains(out, "<ul") {
		t.Errorf("markdown rules leaked into code block: %q", out)
	}
}

func TestCodeBlockLanguageLabel(t *testing.T) {
	out := Render("```go\nfmt.Println(1)\n```")
	if !strings.Contains(out, `<span class="code-language">Go</span>`) {
		t.Errorf("missing canonical language label: %q", out)
	}
	if !strings.Contains(out, `class="language-go"`) {
		t.Errorf("missing language class: %q", out)
	}
	if !strings.Contains(out, `code-copy-btn`) {
		t.Errorf("missing copy action hook: %q", out)
	}
}

func TestCodeBlockNoLanguage(t *testing.T) {
	out := Render("```\nplain\n```")
	if !strings.Contains(out, `<span class="code-language">code</span>`) {
		t.Errorf("fence without language should get generic label: %q", out)
	}
	if !strings.Contains(out, `class="language-plaintext"`) {
		t.Errorf("fence without language should get plaintext class: %q", out)
	}
}

func TestUnterminatedCodeFence(t *testing.T) {
	out := Render("```go\nfunc main() {\nand the rest of the document")
	if strings.Contains(out, "<pre>") {
		t.Errorf("unterminated fence must not produce a code block: %q", out)
	}
	if !strings.Contains(out, "and the rest of the document") {
		t.Errorf("document tail lost: %q", out)
	}
}

func TestTableAlignment(t *testing.T) {
	input := strings.Join([]string{
		"| Name | Score | Rank |",
		"| :--- | :---: | ---: |",
		"| alpha | 10 | 1 |",
		"| beta | 20 | 2 |",
	}, "\n")

	out := Render(input)

	for _, want := range []string{
		"<th>Name</th>", "<th>Score</th>", "<th>Rank</th>",
		`<td style="text-align:left">alpha</td>`,
		`<td style="text-align:center">10</td>`,
		`<td style="text-align:right">1</td>`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestTableFollowedByParagraphNoBlankLine(t *testing.T) {
	input := "| a | b |\n| --- | --- |\n| 1 | 2 |\ntrailing text"
	out := Render(input)

	if !strings.Contains(out, "<table>") {
		t.Fatalf("table not rendered: %q", out)
	}
	if !strings.Contains(out, "trailing text") {
		t.Errorf("paragraph after table lost: %q", out)
	}
	if strings.Contains(out, "<td>trailing") || strings.Contains(out, ">trailing text</td>") {
		t.Errorf("trailing text swallowed into table: %q", out)
	}
}

func TestInlineCodeProtectedFromEmphasis(t *testing.T) {
	out := Render("use `*args` here")
	if !strings.Contains(out, `<code class="inline-code">*args</code>`) {
		t.Errorf("inline code mangled: %q", out)
	}
	if strings.Contains(out, "<em") {
		t.Errorf("emphasis applied inside inline code: %q", out)
	}
}

func TestHeaders(t *testing.T) {
	out := Render("# Top\n\n### Deep")
	if !strings.Contains(out, `<h1 class="px-header px-h1">Top</h1>`) {
		t.Errorf("h1 missing: %q", out)
	}
	if !strings.Contains(out, `<h3 class="px-header px-h3">Deep</h3>`) {
		t.Errorf("h3 missing: %q", out)
	}
}

func TestEmphasis(t *testing.T) {
	out := Render("**bold** and *italic* and __also bold__ and _also italic_")
	if !strings.Contains(out, `<strong class="px-bold">bold</strong>`) {
		t.Errorf("bold missing: %q", out)
	}
	if !strings.Contains(out, `<em class="px-italic">italic</em>`) {
		t.Errorf("italic missing: %q", out)
	}
	if !strings.Contains(out, `<strong class="px-bold">also bold</strong>`) {
		t.Errorf("underscore bold missing: %q", out)
	}
	if !strings.Contains(out, `<em class="px-italic">also italic</em>`) {
		t.Errorf("underscore italic missing: %q", out)
	}
}

func TestNestedEmphasisInListItems(t *testing.T) {
	input := "- plain item\n- *really* important\n- **very** important"
	out := Render(input)

	if !strings.Contains(out, `<ul class="px-list px-unordered-list">`) {
		t.Fatalf("list missing: %q", out)
	}
	if got := strings.Count(out, `<li class="px-list-item">`); got != 3 {
		t.Errorf("list item count = %d, want 3: %q", got, out)
	}
	if !strings.Contains(out, `<em class="px-italic">really</em> important`) {
		t.Errorf("italic inside list item mangled: %q", out)
	}
	if !strings.Contains(out, `<strong class="px-bold">very</strong> important`) {
		t.Errorf("bold inside list item mangled: %q", out)
	}
}

func TestStarMarkerListSurvivesItalicPass(t *testing.T) {
	out := Render("* first\n* second")
	if got := strings.Count(out, `<li class="px-list-item">`); got != 2 {
		t.Errorf("list item count = %d, want 2: %q", got, out)
	}
	if strings.Contains(out, "<em") {
		t.Errorf("italic pass consumed list markers: %q", out)
	}
}

func TestOrderedList(t *testing.T) {
	out := Render("1. one\n2. two\n3. three")
	if !strings.Contains(out, `<ol class="px-list px-ordered-list">`) {
		t.Fatalf("ordered list missing: %q", out)
	}
	if got := strings.Count(out, "<li"); got != 3 {
		t.Errorf("item count = %d, want 3", got)
	}
}

func TestHorizontalRule(t *testing.T) {
	out := Render("above\n\n---\n\nbelow")
	if !strings.Contains(out, `<hr class="px-hr">`) {
		t.Errorf("hr missing: %q", out)
	}
}

func TestLinks(t *testing.T) {
	out := Render("see [the docs](https://example.com/a?b=1)")
	if !strings.Contains(out, `href="https://example.com/a?b=1"`) {
		t.Errorf("href missing: %q", out)
	}
	if !strings.Contains(out, `target="_blank"`) || !strings.Contains(out, `rel="noopener noreferrer"`) {
		t.Errorf("link security attributes missing: %q", out)
	}
}

func TestLinkRejectsScriptScheme(t *testing.T) {
	out := Render("[click](javascript:alert(1))")
	if strings.Contains(out, "javascript:") {
		t.Errorf("javascript: URL survived: %q", out)
	}
	if !strings.Contains(out, "click") {
		t.Errorf("link text lost: %q", out)
	}
}

func TestBlockquote(t *testing.T) {
	out := Render("> first line\n> second line")
	if !strings.Contains(out, `<blockquote class="px-blockquote">first line<br>second line</blockquote>`) {
		t.Errorf("blockquote wrong: %q", out)
	}
}

func TestParagraphsAndLineBreaks(t *testing.T) {
	out := Render("line one\nline two\n\nsecond paragraph")
	if !strings.Contains(out, `<p class="px-paragraph">line one<br>line two</p>`) {
		t.Errorf("single newline should become <br>: %q", out)
	}
	if got := strings.Count(out, `<p class="px-paragraph">`); got != 2 {
		t.Errorf("paragraph count = %d, want 2: %q", got, out)
	}
}

func TestRawHTMLEscaped(t *testing.T) {
	out := Render(`<img src=x onerror=alert(1)> & "quotes"`)
	if strings.Contains(out, "<img") {
		t.Errorf("raw HTML survived: %q", out)
	}
	if !strings.Contains(out, "&lt;img") {
		t.Errorf("input not escaped: %q", out)
	}
}

func TestRenderDeterministic(t *testing.T) {
	input := "# H\n\n```go\nx := 1\n```\n\n- a\n- b\n\n> q"
	first := Render(input)
	for i := 0; i < 3; i++ {
		if got := Render(input); got != first {
			t.Fatalf("render not deterministic on run %d", i)
		}
	}
}
