package utils

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the absolute form accepted by ParseSince.
const DateLayout = "2006-01-02"

var ageRegex = regexp.MustCompile(`^(\d+)([smhdw])$`)

// FormatAge renders how long before now t happened, e.g. "3h ago".
func FormatAge(t, now time.Time) string {
	if t.IsZero() {
		return "N/A"
	}
	age := now.Sub(t)
	if age < 0 {
		age = 0
	}

	const day = 24 * time.Hour
	switch {
	case age < time.Minute:
		return fmt.Sprintf("%ds ago", int(age.Seconds()))
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	case age < day:
		return fmt.Sprintf("%dh ago", int(age.Hours()))
	case age < 7*day:
		return fmt.Sprintf("%dd ago", int(age/day))
	default:
		return fmt.Sprintf("%dw ago", int(age/(7*day)))
	}
}

// ParseAge parses "90s", "15m", "24h", "7d" or "2w".
func ParseAge(s string) (time.Duration, error) {
	m := ageRegex.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, fmt.Errorf("invalid age %q (want a number followed by s, m, h, d or w)", s)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("invalid age %q: %w", s, err)
	}

	unit := map[string]time.Duration{
		"s": time.Second,
		"m": time.Minute,
		"h": time.Hour,
		"d": 24 * time.Hour,
		"w": 7 * 24 * time.Hour,
	}[m[2]]
	return time.Duration(n) * unit, nil
}

// ParseSince turns a relative age or a YYYY-MM-DD date into a cut-off time.
func ParseSince(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("since cannot be empty")
	}
	if age, err := ParseAge(s); err == nil {
		return now.Add(-age), nil
	}
	if t, err := time.ParseInLocation(DateLayout, s, now.Location()); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid since %q (use 7d, 24h or %s)", s, DateLayout)
}
