package slack

import (
	"regexp"
	"strings"

	goslack "github.com/slack-go/slack"
)

// Fingerprint is the marker embedded in an approval request notification
// so the later resolution can find that message in channel history and
// thread onto it.
func Fingerprint(approvalID string) string {
	return "approval " + approvalID
}

var whitespaceRe = regexp.MustCompile(`\s+`)

func normalizeText(s string) string {
	s = strings.ToLower(s)
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// collectMessageText gathers the searchable text of a channel message:
// the fallback text plus any attachment text.
func collectMessageText(msg goslack.Message) string {
	var parts []string
	if msg.Text != "" {
		parts = append(parts, msg.Text)
	}
	for _, att := range msg.Attachments {
		if att.Text != "" {
			parts = append(parts, att.Text)
		}
		if att.Fallback != "" {
			parts = append(parts, att.Fallback)
		}
	}
	return strings.Join(parts, " ")
}
