package utils

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// FormatNumber renders n with '.' thousands separators, e.g. 1234567 -> 1.234.567.
func FormatNumber(n int64) string {
	negative := n < 0
	if negative {
		n = -n
	}
	digits := strconv.FormatInt(n, 10)
	var b strings.Builder
	if negative {
		b.WriteByte('-')
	}
	lead := len(digits) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(digits[:lead])
	for i := lead; i < len(digits); i += 3 {
		b.WriteByte('.')
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// FormatMinutes renders a minute count as "Xh Ym".
func FormatMinutes(minutes int64) string {
	if minutes < 0 {
		minutes = 0
	}
	hours := minutes / 60
	rest := minutes % 60
	if hours == 0 {
		return fmt.Sprintf("%dm", rest)
	}
	return fmt.Sprintf("%dh %dm", hours, rest)
}

// ProgressBar draws current/target over width cells using full and empty blocks.
func ProgressBar(current, target int64, width int) string {
	if width <= 0 {
		width = 10
	}
	filled := width
	if target > 0 && current < target {
		if current < 0 {
			current = 0
		}
		filled = int(current * int64(width) / target)
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// Truncate cuts s to at most max runes, ending with "..." when shortened.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

// ChannelSlug lowercases name and keeps only characters Discord accepts in text channel names.
func ChannelSlug(name string) string {
	var b strings.Builder
	lastDash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
			lastDash = false
		case r == '-' || r == ' ' || r == '.':
			if !lastDash && b.Len() > 0 {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "user"
	}
	return Truncate(slug, 80)
}

// ParseSnowflake converts a Discord id to the integer form used by the ledger.
func ParseSnowflake(id string) (int64, error) {
	value, err := strconv.ParseUint(strings.TrimSpace(id), 10, 63)
	if err != nil {
		return 0, fmt.Errorf("invalid snowflake %q: %w", id, err)
	}
	return int64(value), nil
}

func FormatSnowflake(id int64) string {
	return strconv.FormatInt(id, 10)
}
