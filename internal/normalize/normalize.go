// Package normalize converts raw extracted text into typed values.
package normalize

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/movie-catalog-crawler/internal/crawler"
)

const releaseLayout = "2 January 2006"

// TrimText drops every non-ASCII byte and control character, then trims
// surrounding whitespace.
func TrimText(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c >= 0x80:
			continue
		case c == '\t' || c == '\n' || c == '\r':
			b.WriteByte(c)
		case c < 0x20 || c == 0x7f:
			continue
		default:
			b.WriteByte(c)
		}
	}
	return strings.TrimSpace(b.String())
}

// TrimAll applies TrimText elementwise.
func TrimAll(raw []string) []string {
	out := make([]string, len(raw))
	for i, s := range raw {
		out[i] = TrimText(s)
	}
	return out
}

// CompactAll trims every entry and drops the ones left empty.
func CompactAll(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = TrimText(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ParseInt parses an integer, ignoring thousands separators.
func ParseInt(raw string) (int64, error) {
	clean := strings.ReplaceAll(TrimText(raw), ",", "")
	n, err := strconv.ParseInt(clean, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: not an integer: %q", crawler.ErrFormat, raw)
	}
	return n, nil
}

// ParseFloat parses a finite decimal number. NaN and infinities are rejected.
func ParseFloat(raw string) (float64, error) {
	f, err := strconv.ParseFloat(TrimText(raw), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: not a number: %q", crawler.ErrFormat, raw)
	}
	return f, nil
}

// ParseDuration reads the leading integer of a running time such as "142 min".
func ParseDuration(raw string) (int, error) {
	fields := strings.Fields(TrimText(raw))
	if len(fields) == 0 {
		return 0, fmt.Errorf("%w: empty duration", crawler.ErrFormat)
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: not a duration: %q", crawler.ErrFormat, raw)
	}
	return n, nil
}

// ParseYear parses a four digit year, optionally wrapped in parentheses.
func ParseYear(raw string) (int, error) {
	tok := strings.Trim(TrimText(raw), "()")
	if len(tok) != 4 || strings.Trim(tok, "0123456789") != "" {
		return 0, fmt.Errorf("%w: not a year: %q", crawler.ErrFormat, raw)
	}
	year, err := strconv.Atoi(tok)
	if err != nil || year <= 0 {
		return 0, fmt.Errorf("%w: not a year: %q", crawler.ErrFormat, raw)
	}
	return year, nil
}

// ParseReleaseDate parses "day month year". A missing day defaults to 1 and a
// missing month to January, so "1994" and "October 1994" are accepted.
func ParseReleaseDate(raw string) (time.Time, error) {
	tokens := strings.Fields(TrimText(raw))
	switch len(tokens) {
	case 3:
	case 2:
		tokens = append([]string{"1"}, tokens...)
	case 1:
		tokens = append([]string{"1", "January"}, tokens...)
	default:
		return time.Time{}, fmt.Errorf("%w: release date %q has %d tokens", crawler.ErrFormat, raw, len(tokens))
	}
	t, err := time.Parse(releaseLayout, strings.Join(tokens, " "))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: release date %q: %v", crawler.ErrFormat, raw, err)
	}
	return t, nil
}
