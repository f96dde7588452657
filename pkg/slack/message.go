package slack

import (
	"fmt"
	"strings"
	"unicode/utf8"

	goslack "github.com/slack-go/slack"

	"github.com/pce-project/pce/pkg/models"
)

const maxBlockTextLength = 2900

var statusEmoji = map[models.ApprovalStatus]string{
	models.ApprovalStatusApproved:   ":white_check_mark:",
	models.ApprovalStatusRejected:   ":x:",
	models.ApprovalStatusOverridden: ":warning:",
	models.ApprovalStatusExpired:    ":hourglass:",
}

var statusLabel = map[models.ApprovalStatus]string{
	models.ApprovalStatusApproved:   "Approval granted",
	models.ApprovalStatusRejected:   "Approval rejected",
	models.ApprovalStatusOverridden: "Approval overridden",
	models.ApprovalStatusExpired:    "Approval expired",
}

func approvalURL(approvalID, dashboardURL string) string {
	return fmt.Sprintf("%s/approvals/%s", dashboardURL, approvalID)
}

// BuildApprovalRequestMessage creates Block Kit blocks for a pending
// approval. The returned text is the notification fallback and carries
// the fingerprint that resolution threading searches for.
func BuildApprovalRequestMessage(a *models.Approval, dashboardURL string) (string, []goslack.Block) {
	headerText := fmt.Sprintf(":lock: *Approval required* — %s", a.Subject)

	var lines []string
	if a.Action != nil && a.Action.ActionType != "" {
		lines = append(lines, fmt.Sprintf("*Action:* `%s`", a.Action.ActionType))
	}
	lines = append(lines, fmt.Sprintf("*Projected cost:* %.2f", a.ProjectedCost))
	if a.Risk != "" {
		lines = append(lines, fmt.Sprintf("*Risk:* %s", a.Risk))
	}
	if len(a.Reasons) > 0 {
		lines = append(lines, "*Reasons:* "+strings.Join(a.Reasons, ", "))
	}

	blocks := []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, headerText, false, false),
			nil, nil,
		),
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, strings.Join(lines, "\n"), false, false),
			nil, nil,
		),
		goslack.NewContextBlock("",
			goslack.NewTextBlockObject(goslack.MarkdownType, "Approval "+a.ApprovalID, false, false),
		),
	}

	if dashboardURL != "" {
		btn := goslack.NewButtonBlockElement("", "", goslack.NewTextBlockObject(goslack.PlainTextType, "Review in Dashboard", false, false))
		btn.URL = approvalURL(a.ApprovalID, dashboardURL)
		blocks = append(blocks, goslack.NewActionBlock("", btn))
	}

	text := fmt.Sprintf("Approval required (%s): %s", Fingerprint(a.ApprovalID), a.Subject)
	return text, blocks
}

// BuildApprovalResolvedMessage creates Block Kit blocks for a terminal
// approval notification.
func BuildApprovalResolvedMessage(a *models.Approval, dashboardURL string) (string, []goslack.Block) {
	emoji := statusEmoji[a.Status]
	if emoji == "" {
		emoji = ":question:"
	}
	label := statusLabel[a.Status]
	if label == "" {
		label = "Approval " + string(a.Status)
	}

	headerText := fmt.Sprintf("%s *%s* — %s", emoji, label, a.Subject)
	if a.Actor != "" {
		headerText += fmt.Sprintf("\nResolved by `%s`", a.Actor)
	}
	if a.Notes != "" {
		headerText += fmt.Sprintf("\n*Notes:*\n%s", truncateForSlack(a.Notes))
	}

	blocks := []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, headerText, false, false),
			nil, nil,
		),
	}

	if dashboardURL != "" {
		btn := goslack.NewButtonBlockElement("", "", goslack.NewTextBlockObject(goslack.PlainTextType, "View Details", false, false))
		btn.URL = approvalURL(a.ApprovalID, dashboardURL)
		blocks = append(blocks, goslack.NewActionBlock("", btn))
	}

	text := fmt.Sprintf("%s: %s", label, a.Subject)
	return text, blocks
}

// truncateForSlack caps block text at Slack's limit without splitting a
// multi-byte rune.
func truncateForSlack(text string) string {
	if utf8.RuneCountInString(text) <= maxBlockTextLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxBlockTextLength]) + "\n\n_... (truncated — view details in dashboard)_"
}
