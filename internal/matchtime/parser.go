// Package matchtime parses the kickoff time strings attached to
// prediction entries. The upstream feed is inconsistent about the
// format, so every known shape is handled in one place.
package matchtime

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Parse interprets s as a wall-clock kickoff time and returns its next
// occurrence at or after ref, in ref's location. Accepted forms are
// "15:04", "1504", "3:04 PM" and "3:04PM" (case insensitive).
func Parse(s string, ref time.Time) (time.Time, error) {
	hour, minute, err := parseClock(s)
	if err != nil {
		return time.Time{}, err
	}

	kickoff := time.Date(ref.Year(), ref.Month(), ref.Day(), hour, minute, 0, 0, ref.Location())
	if kickoff.Before(ref) {
		kickoff = kickoff.AddDate(0, 0, 1)
	}
	return kickoff, nil
}

func parseClock(s string) (hour, minute int, err error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return 0, 0, fmt.Errorf("empty kickoff time")
	}

	upper := strings.ToUpper(raw)
	meridiem := ""
	for _, suffix := range []string{"AM", "PM"} {
		if strings.HasSuffix(upper, suffix) {
			meridiem = suffix
			upper = strings.TrimSpace(strings.TrimSuffix(upper, suffix))
			break
		}
	}

	switch {
	case strings.Contains(upper, ":"):
		parts := strings.SplitN(upper, ":", 2)
		hour, err = strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return 0, 0, fmt.Errorf("kickoff time %q: bad hour", s)
		}
		minute, err = strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return 0, 0, fmt.Errorf("kickoff time %q: bad minute", s)
		}
	case len(upper) == 4 && meridiem == "":
		// Compact "1504" form.
		hour, err = strconv.Atoi(upper[:2])
		if err != nil {
			return 0, 0, fmt.Errorf("kickoff time %q: bad hour", s)
		}
		minute, err = strconv.Atoi(upper[2:])
		if err != nil {
			return 0, 0, fmt.Errorf("kickoff time %q: bad minute", s)
		}
	default:
		return 0, 0, fmt.Errorf("kickoff time %q: unrecognized format", s)
	}

	if meridiem != "" {
		if hour < 1 || hour > 12 {
			return 0, 0, fmt.Errorf("kickoff time %q: hour out of range for %s", s, meridiem)
		}
		hour %= 12
		if meridiem == "PM" {
			hour += 12
		}
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("kickoff time %q: out of range", s)
	}
	return hour, minute, nil
}

// Countdown renders the time left until kickoff as a short label. A
// kickoff at or before ref yields "Live".
func Countdown(kickoff, ref time.Time) string {
	remaining := kickoff.Sub(ref)
	if remaining <= 0 {
		return "Live"
	}

	days := int(remaining / (24 * time.Hour))
	remaining -= time.Duration(days) * 24 * time.Hour
	hours := int(remaining / time.Hour)
	minutes := int(remaining%time.Hour) / int(time.Minute)

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %02dm", hours, minutes)
	default:
		return fmt.Sprintf("%dm", minutes)
	}
}
