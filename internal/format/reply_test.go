package format_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hal9000y/email-mcp/internal/format"
)

func TestVisibleReply(t *testing.T) {
	cases := []struct {
		name     string
		body     string
		expected string
	}{
		{
			name:     "plain",
			body:     "Can we meet?\n",
			expected: "Can we meet?",
		},
		{
			name:     "gmail_quote_header",
			body:     "Sounds good, see you then.\r\n\r\nOn Mon, Jan 1, 2024 at 10:00 AM Jane <jane@x.com> wrote:\r\n> Can we meet?\r\n",
			expected: "Sounds good, see you then.",
		},
		{
			name:     "wrapped_quote_header",
			body:     "Yes.\n\nOn Mon, Jan 1, 2024 at 10:00 AM Jane Doe <\njane@x.com> wrote:\n> Can we meet?\n",
			expected: "Yes.",
		},
		{
			name:     "inline_quotes_removed",
			body:     "> first question\nAnswer one\n> second question\nAnswer two",
			expected: "Answer one\nAnswer two",
		},
		{
			name:     "signature",
			body:     "Thanks!\n\n-- \nJane Doe\nACME Corp",
			expected: "Thanks!",
		},
		{
			name:     "mobile_signature",
			body:     "On my way\n\nSent from my iPhone",
			expected: "On my way",
		},
		{
			name:     "outlook_header",
			body:     "Approved.\n\nFrom: Bob <bob@x.com>\nSent: Monday\nSubject: Budget\n\nPlease approve",
			expected: "Approved.",
		},
		{
			name:     "original_message",
			body:     "Noted.\n\n-----Original Message-----\nFrom: bob@x.com\n",
			expected: "Noted.",
		},
		{
			name:     "only_quotes_falls_back_to_body",
			body:     "> quoted only\n",
			expected: "> quoted only",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, format.VisibleReply(tc.body))
		})
	}
}
