package format

import (
	"regexp"
	"strings"
)

var (
	// "On Mon, Jan 1, 2024 at 10:00 AM Jane <jane@x.com> wrote:" possibly wrapped onto two lines.
	quoteHeaderRe = regexp.MustCompile(`(?m)^On\s[^\n]*(\n[^\n]*)?\swrote:\s*$`)
	originalMsgRe = regexp.MustCompile(`(?mi)^-{2,}\s*(original message|forwarded message)\s*-{2,}\s*$`)
	outlookRe     = regexp.MustCompile(`(?m)^From:\s.*\n(Sent|Date):\s`)
	underscoreRe  = regexp.MustCompile(`(?m)^_{10,}\s*$`)
	signatureRe   = regexp.MustCompile(`(?m)^(--|__)\s*$|^Sent from my \S`)
)

// VisibleReply returns the part of a plain-text body written by its sender:
// everything before the first quote header, without ">" quoted lines and
// without a trailing signature. A body that is nothing but quotes is returned trimmed.
func VisibleReply(body string) string {
	text := strings.ReplaceAll(body, "\r\n", "\n")

	cut := len(text)
	for _, re := range []*regexp.Regexp{quoteHeaderRe, originalMsgRe, outlookRe, underscoreRe, signatureRe} {
		if loc := re.FindStringIndex(text); loc != nil && loc[0] < cut {
			cut = loc[0]
		}
	}
	text = text[:cut]

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimLeft(line, " \t"), ">") {
			continue
		}
		kept = append(kept, line)
	}

	visible := strings.TrimSpace(strings.Join(kept, "\n"))
	if visible == "" {
		return strings.TrimSpace(body)
	}

	return visible
}
