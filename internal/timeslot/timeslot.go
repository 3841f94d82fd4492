// Package timeslot converts between "HH:MM" wall-clock strings and minute
// offsets from midnight.
package timeslot

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// MinutesPerDay is the exclusive upper bound of a valid minute offset.
const MinutesPerDay = 24 * 60

// Layout is the calendar date layout used for booking dates.
const Layout = "2006-01-02"

var (
	ErrInvalidFormat = errors.New("invalid time format, expected HH:MM")
	ErrInvalidRange  = errors.New("minute offset out of range")
)

var clockPattern = regexp.MustCompile(`^([0-1][0-9]|2[0-3]):[0-5][0-9]$`)

// Parse returns the minutes since midnight for s.
func Parse(s string) (int, error) {
	if !clockPattern.MatchString(s) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}
	hours := int(s[0]-'0')*10 + int(s[1]-'0')
	minutes := int(s[3]-'0')*10 + int(s[4]-'0')
	return hours*60 + minutes, nil
}

// Format renders a minute offset in [0, MinutesPerDay) as zero-padded "HH:MM".
func Format(minutes int) (string, error) {
	if minutes < 0 || minutes >= MinutesPerDay {
		return "", fmt.Errorf("%w: %d", ErrInvalidRange, minutes)
	}
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60), nil
}

// MustFormat is Format for offsets already known to be in range.
func MustFormat(minutes int) string {
	s, err := Format(minutes)
	if err != nil {
		panic(err)
	}
	return s
}

// ParseDate parses a "YYYY-MM-DD" calendar date at midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	d, err := time.ParseInLocation(Layout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return d, nil
}

// Truncate drops the clock part of t, keeping its location.
func Truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// At combines a calendar date with a minute offset read as wall-clock time
// in the date's location, so DST changes do not shift the result.
func At(date time.Time, minutes int) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, minutes/60, minutes%60, 0, 0, date.Location())
}
