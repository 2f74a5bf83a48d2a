package delivery

import (
	"fmt"
	"strings"

	"github.com/themadorg/mailaggregator/entity"
)

const (
	shortSummaryLen    = 120
	fullEmailBodyLimit = 3500
)

// Render formats msg for Telegram delivery according to template
// (spec §4.7 step 2). accountEmail is only used by the richer
// templates.
func Render(template entity.PushTemplate, msg *entity.Message, accountEmail string) string {
	switch template {
	case entity.TemplateTitleOnly:
		return renderTitleOnly(msg)
	case entity.TemplateFull:
		return renderFull(msg, accountEmail)
	case entity.TemplateFullEmail:
		return renderFullEmail(msg, accountEmail)
	default:
		return renderShort(msg)
	}
}

func renderTitleOnly(msg *entity.Message) string {
	subject := msg.Subject
	if subject == "" {
		subject = "(no subject)"
	}
	return subject
}

func renderShort(msg *entity.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\n", msg.Sender)
	fmt.Fprintf(&b, "Subject: %s\n", subjectOrPlaceholder(msg.Subject))
	b.WriteString(truncate(msg.ContentSummary, shortSummaryLen))
	return b.String()
}

func renderFull(msg *entity.Message, accountEmail string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Account: %s\n", accountEmail)
	fmt.Fprintf(&b, "Time: %s\n", msg.ReceivedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "From: %s\n", msg.Sender)
	fmt.Fprintf(&b, "Subject: %s\n\n", subjectOrPlaceholder(msg.Subject))
	b.WriteString(msg.ContentSummary)
	return b.String()
}

func renderFullEmail(msg *entity.Message, accountEmail string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Account: %s\n", accountEmail)
	fmt.Fprintf(&b, "Time: %s\n", msg.ReceivedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "From: %s\n", msg.Sender)
	fmt.Fprintf(&b, "Subject: %s\n\n", subjectOrPlaceholder(msg.Subject))
	b.WriteString(truncate(msg.BodyText, fullEmailBodyLimit))
	return b.String()
}

func subjectOrPlaceholder(subject string) string {
	if subject == "" {
		return "(no subject)"
	}
	return subject
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n])
}
