package services

import (
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// DefaultTimezone is the reference timezone all naive datetimes resolve in.
const DefaultTimezone = "America/Los_Angeles"

// naiveISOPattern matches timezone-less ISO datetimes like
// "2025-06-15T09:00:00" or "2025-06-15 09:00", with optional seconds.
var naiveISOPattern = regexp.MustCompile(
	`^(\d{4})-(\d{2})-(\d{2})[T ](\d{2}):(\d{2})(?::(\d{2}))?$`)

// offsetSuffixPattern detects an explicit UTC/offset marker at the end of a
// datetime string ("Z", "+07:00", "-0800").
var offsetSuffixPattern = regexp.MustCompile(`(Z|[+-]\d{2}:?\d{2})$`)

// LoadReferenceTimezone loads the named timezone, falling back to the
// default reference timezone and then UTC.
func LoadReferenceTimezone(name string) *time.Location {
	if name == "" {
		name = DefaultTimezone
	}
	if loc, err := time.LoadLocation(name); err == nil {
		return loc
	}
	if loc, err := time.LoadLocation(DefaultTimezone); err == nil {
		return loc
	}
	return time.UTC
}

// ParseNaiveOrAbsolute converts a datetime string into an absolute instant.
// Strings carrying an explicit UTC/offset marker parse directly. Naive ISO
// strings are interpreted as wall-clock time in loc. Anything else falls back
// to generic date parsing in loc, then to nil.
func ParseNaiveOrAbsolute(input string, loc *time.Location) *time.Time {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil
	}

	if offsetSuffixPattern.MatchString(input) {
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05Z0700", "2006-01-02 15:04:05Z0700"} {
			if t, err := time.Parse(layout, input); err == nil {
				return &t
			}
		}
	}

	if m := naiveISOPattern.FindStringSubmatch(input); m != nil {
		if t := resolveNaiveInZone(m, loc); t != nil {
			return t
		}
	}

	if t, err := dateparse.ParseIn(input, loc); err == nil {
		return &t
	}

	return nil
}

// resolveNaiveInZone converts naive wall-clock fields into an instant in loc
// using an iterative fixed-point conversion: seed a UTC guess from the naive
// fields, format that guess back into loc, and correct by the wall-clock
// delta until it converges. This handles DST-boundary ambiguity for the
// common case within a few iterations.
func resolveNaiveInZone(m []string, loc *time.Location) *time.Time {
	atoi := func(s string) int {
		n := 0
		for _, c := range s {
			n = n*10 + int(c-'0')
		}
		return n
	}

	year, month, day := atoi(m[1]), atoi(m[2]), atoi(m[3])
	hour, minute := atoi(m[4]), atoi(m[5])
	second := 0
	if m[6] != "" {
		second = atoi(m[6])
	}

	target := time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)
	guess := target

	for i := 0; i < 4; i++ {
		local := guess.In(loc)
		wall := time.Date(local.Year(), local.Month(), local.Day(),
			local.Hour(), local.Minute(), local.Second(), 0, time.UTC)
		delta := target.Sub(wall)
		if delta == 0 {
			return &guess
		}
		guess = guess.Add(delta)
	}

	// Never converged exactly (wall time skipped by a DST jump); the last
	// guess is still the closest instant.
	return &guess
}

// SameCalendarDay reports whether two instants fall on the same calendar day
// in loc. Used by the exact-vs-cycle duplicate classification.
func SameCalendarDay(a, b time.Time, loc *time.Location) bool {
	al, bl := a.In(loc), b.In(loc)
	return al.Year() == bl.Year() && al.Month() == bl.Month() && al.Day() == bl.Day()
}

// StripTimezoneSuffix defensively removes a stray "Z" or offset marker from
// a datetime string the extractor was instructed to emit as naive local time.
func StripTimezoneSuffix(input string) string {
	return strings.TrimSpace(offsetSuffixPattern.ReplaceAllString(strings.TrimSpace(input), ""))
}
