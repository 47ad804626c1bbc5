// Package format turns raw message bodies into text suitable for tool output and prompts.
package format

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Converter handles body format conversions.
type Converter struct{}

// HTML2Text renders HTML as plain text. Layout tables collapse into lines,
// list items get a "- " prefix and links keep their target in parentheses.
func (c Converter) HTML2Text(raw []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("html.Parse failed: %w", err)
	}

	var b strings.Builder
	renderText(doc, &b)

	return normalizeLines(b.String()), nil
}

func renderText(n *html.Node, b *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		writeCollapsed(b, n.Data)
		return
	case html.ElementNode:
		if skipElement(n.DataAtom) {
			return
		}
	}

	if n.Type == html.ElementNode {
		switch {
		case n.DataAtom == atom.Br:
			b.WriteString("\n")
			return
		case n.DataAtom == atom.Li:
			ensureNewline(b)
			b.WriteString("- ")
		case isBlock(n.DataAtom):
			ensureNewline(b)
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		renderText(c, b)
	}

	if n.Type != html.ElementNode {
		return
	}

	switch {
	case n.DataAtom == atom.A:
		if href := attr(n, "href"); strings.HasPrefix(href, "http") && !strings.Contains(textOf(n), href) {
			fmt.Fprintf(b, " (%s)", href)
		}
	case n.DataAtom == atom.Td || n.DataAtom == atom.Th:
		b.WriteString(" ")
	case isBlock(n.DataAtom) || n.DataAtom == atom.Li:
		b.WriteString("\n")
	}
}

func skipElement(a atom.Atom) bool {
	switch a {
	case atom.Script, atom.Style, atom.Head, atom.Title, atom.Noscript:
		return true
	}
	return false
}

func isBlock(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Tr, atom.Table, atom.Ul, atom.Ol, atom.Blockquote,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6, atom.Pre, atom.Hr, atom.Section:
		return true
	}
	return false
}

func writeCollapsed(b *strings.Builder, s string) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		if s != "" && !endsWithSpace(b) {
			b.WriteString(" ")
		}
		return
	}

	if isSpace(s[0]) && !endsWithSpace(b) {
		b.WriteString(" ")
	}
	b.WriteString(strings.Join(fields, " "))
	if isSpace(s[len(s)-1]) {
		b.WriteString(" ")
	}
}

func ensureNewline(b *strings.Builder) {
	if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
		b.WriteString("\n")
	}
}

func endsWithSpace(b *strings.Builder) bool {
	s := b.String()
	return s == "" || isSpace(s[len(s)-1])
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\t' || c == '\r'
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// normalizeLines trims every line and keeps at most one blank line in a row.
func normalizeLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}

	return strings.TrimSpace(strings.Join(out, "\n"))
}
