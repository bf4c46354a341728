package platform

import (
	"context"
	"strings"

	"github.com/aretw0/owlet/pkg/core"
)

// Change types for conventional change reasons.
const (
	ChangeFeat  = "feat"
	ChangeFix   = "fix"
	ChangeChore = "chore"
)

const reasonFooter = "Changed-by: owlet"

// FormatChangeReason builds a conventional change reason:
//
//	<type>(<scope>): <subject>
//
//	<body>
//
//	Changed-by: owlet
func FormatChangeReason(ctype, scope, subject, body string) string {
	if ctype == "" {
		ctype = ChangeChore
	}
	var sb strings.Builder
	sb.WriteString(ctype)
	if scope != "" {
		sb.WriteString("(" + scope + ")")
	}
	sb.WriteString(": ")
	sb.WriteString(subject)
	if body = strings.TrimSpace(body); body != "" {
		sb.WriteString("\n\n")
		sb.WriteString(body)
	}
	sb.WriteString("\n\n")
	sb.WriteString(reasonFooter)
	return sb.String()
}

// AppendFooter adds the owlet footer to a free-form reason once.
func AppendFooter(msg string) string {
	if strings.Contains(msg, reasonFooter) {
		return msg
	}
	msg = strings.TrimRight(msg, "\n")
	return msg + "\n\n" + reasonFooter
}

// WithChangeReason attaches a reason to ctx. Versioned stores record it
// as the commit message of the next transaction run with ctx.
func WithChangeReason(ctx context.Context, reason string) context.Context {
	return context.WithValue(ctx, core.ChangeReasonKey, reason)
}
