package moderation

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const timestampLayout = "2006-01-02 15:04 UTC"

// FormatExpiry renders an expiry for confirmation messages and logs, eg "2024-03-01 12:00 UTC (2 hours from now)".
func FormatExpiry(exp *time.Time, now time.Time) string {
	if exp == nil {
		return "permanent"
	}
	return fmt.Sprintf("%s (%s)", exp.UTC().Format(timestampLayout), humanize.RelTime(*exp, now, "ago", "from now"))
}

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// Title is the kind name with a leading capital, for message headers.
func (k Kind) Title() string {
	if k == "" {
		return ""
	}
	return strings.ToUpper(string(k[:1])) + string(k[1:])
}
