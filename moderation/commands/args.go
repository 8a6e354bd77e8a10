package commands

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/disgoorg/snowflake/v2"
)

var mentionRE = regexp.MustCompile(`^<@!?(\d+)>$`)

// ParseUser accepts a user mention or a raw id.
func ParseUser(arg string) (snowflake.ID, error) {
	if m := mentionRE.FindStringSubmatch(arg); m != nil {
		arg = m[1]
	}
	id, err := snowflake.Parse(arg)
	if err != nil || id == 0 {
		return 0, &ArgumentError{Arg: arg, Msg: "is not a valid user mention or id"}
	}
	return id, nil
}

// units must appear in descending order of magnitude; "m" is months and "M" is minutes
var durationRE = regexp.MustCompile(`^` +
	`(?:(?P<years>\d+) ?(?:years|year|Y|y) ?)?` +
	`(?:(?P<months>\d+) ?(?:months|month|m) ?)?` +
	`(?:(?P<weeks>\d+) ?(?:weeks|week|W|w) ?)?` +
	`(?:(?P<days>\d+) ?(?:days|day|D|d) ?)?` +
	`(?:(?P<hours>\d+) ?(?:hours|hour|H|h) ?)?` +
	`(?:(?P<minutes>\d+) ?(?:minutes|minute|M) ?)?` +
	`(?:(?P<seconds>\d+) ?(?:seconds|second|S|s))?` +
	`$`)

// Span is a calendar-aware duration; months and years are applied with AddDate.
type Span struct {
	Years, Months, Weeks, Days, Hours, Minutes, Seconds int
}

func (s Span) IsZero() bool {
	return s == Span{}
}

// From returns the instant the span ends when starting at t.
func (s Span) From(t time.Time) time.Time {
	t = t.AddDate(s.Years, s.Months, s.Weeks*7+s.Days)
	return t.Add(time.Duration(s.Hours)*time.Hour +
		time.Duration(s.Minutes)*time.Minute +
		time.Duration(s.Seconds)*time.Second)
}

func (s Span) String() string {
	var sb strings.Builder
	for _, part := range []struct {
		n    int
		unit string
	}{
		{s.Years, "y"}, {s.Months, "m"}, {s.Weeks, "w"}, {s.Days, "d"},
		{s.Hours, "h"}, {s.Minutes, "M"}, {s.Seconds, "s"},
	} {
		if part.n > 0 {
			fmt.Fprintf(&sb, "%d%s", part.n, part.unit)
		}
	}
	return sb.String()
}

// ParseSpan parses duration strings like "1y2m3w4d5h6M7s".
func ParseSpan(raw string) (Span, error) {
	m := durationRE.FindStringSubmatch(raw)
	if m == nil || raw == "" {
		return Span{}, &ArgumentError{Arg: raw, Msg: "is not a valid duration string"}
	}
	var s Span
	fields := map[string]*int{
		"years": &s.Years, "months": &s.Months, "weeks": &s.Weeks, "days": &s.Days,
		"hours": &s.Hours, "minutes": &s.Minutes, "seconds": &s.Seconds,
	}
	for i, name := range durationRE.SubexpNames() {
		dst, ok := fields[name]
		if !ok || m[i] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i])
		if err != nil {
			return Span{}, &ArgumentError{Arg: raw, Msg: "has an out of range amount"}
		}
		*dst = n
	}
	if s.IsZero() {
		return Span{}, &ArgumentError{Arg: raw, Msg: "is a zero duration"}
	}
	return s, nil
}

// ParseExpiry accepts either a duration relative to now or an absolute timestamp (interpreted as UTC when no zone is given). The result must be in the future.
func ParseExpiry(raw string, now time.Time) (time.Time, error) {
	if span, err := ParseSpan(raw); err == nil {
		return span.From(now).UTC(), nil
	}
	t, err := dateparse.ParseIn(raw, time.UTC)
	if err != nil {
		return time.Time{}, &ArgumentError{Arg: raw, Msg: "is not a valid duration or timestamp"}
	}
	if !t.After(now) {
		return time.Time{}, &ArgumentError{Arg: raw, Msg: "is in the past"}
	}
	return t.UTC(), nil
}

// IsPermanent matches the keywords which clear an expiry.
func IsPermanent(raw string) bool {
	switch strings.ToLower(raw) {
	case "p", "perm", "permanent":
		return true
	}
	return false
}
