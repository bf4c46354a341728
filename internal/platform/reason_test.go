package platform

import (
	"context"
	"testing"

	"github.com/aretw0/owlet/pkg/core"
)

func TestFormatChangeReason(t *testing.T) {
	tests := []struct {
		name    string
		ctype   string
		scope   string
		subject string
		body    string
		want    string
	}{
		{
			name:    "simple",
			ctype:   ChangeFeat,
			subject: "subscribe to example",
			want:    "feat: subscribe to example\n\nChanged-by: owlet",
		},
		{
			name:    "with scope",
			ctype:   ChangeFix,
			scope:   "folder",
			subject: "move news",
			want:    "fix(folder): move news\n\nChanged-by: owlet",
		},
		{
			name:    "with body and default type",
			subject: "tidy",
			body:    "  Dropped empty folders.\n",
			want:    "chore: tidy\n\nDropped empty folders.\n\nChanged-by: owlet",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatChangeReason(tt.ctype, tt.scope, tt.subject, tt.body)
			if got != tt.want {
				t.Errorf("FormatChangeReason() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAppendFooter(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		want string
	}{
		{name: "plain", msg: "simple message", want: "simple message\n\nChanged-by: owlet"},
		{name: "trailing newline", msg: "line 1\n", want: "line 1\n\nChanged-by: owlet"},
		{name: "already present", msg: "x\n\nChanged-by: owlet", want: "x\n\nChanged-by: owlet"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AppendFooter(tt.msg); got != tt.want {
				t.Errorf("AppendFooter() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWithChangeReason(t *testing.T) {
	ctx := WithChangeReason(context.Background(), "why")
	if got, _ := ctx.Value(core.ChangeReasonKey).(string); got != "why" {
		t.Errorf("reason = %q", got)
	}
}
