package reminder

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrUnparseableTime is returned when no absolute fire time can be resolved
// from the reminder text.
var ErrUnparseableTime = errors.New("could not understand the reminder time")

var (
	relativePattern = regexp.MustCompile(`(?i)^(.*?)\s+in\s+(\d+)\s+(second|seconds|sec|secs|minute|minutes|min|mins|hour|hours|hr|hrs|day|days)\b.*$`)
	tomorrowPattern = regexp.MustCompile(`(?i)^(.*?)\s+tomorrow\s+at\s+(\d{1,2}(?::\d{2})?)\s*(am|pm)?\b.*$`)
	weekdayPattern  = regexp.MustCompile(`(?i)^(.*?)\s+on\s+(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\s+at\s+(\d{1,2}(?::\d{2})?)\s*(am|pm)?\b.*$`)
	atPattern       = regexp.MustCompile(`(?i)^(.*?)\s+at\s+(\d{1,2}(?::\d{2})?)\s*(am|pm)?(?:\s+today)?\b.*$`)
)

var weekdays = map[string]time.Weekday{
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"sunday":    time.Sunday,
}

// Parse splits a reminder request like "call John in 30 minutes" into the
// message text and an absolute fire time resolved against now.
//
// Supported forms: "in N seconds/minutes/hours/days", "tomorrow at H[:MM]",
// "on <weekday> at H[:MM]" and "at H[:MM] [today]". A bare "at" time already
// in the past rolls over to tomorrow.
func Parse(text string, now time.Time) (string, time.Time, error) {
	text = strings.TrimSpace(text)

	if m := relativePattern.FindStringSubmatch(text); m != nil {
		amount, err := strconv.Atoi(m[2])
		if err == nil && amount > 0 {
			var unit time.Duration
			switch strings.ToLower(m[3])[0] {
			case 's':
				unit = time.Second
			case 'm':
				unit = time.Minute
			case 'h':
				unit = time.Hour
			case 'd':
				unit = 24 * time.Hour
			}
			return strings.TrimSpace(m[1]), now.Add(time.Duration(amount) * unit), nil
		}
	}

	if m := tomorrowPattern.FindStringSubmatch(text); m != nil {
		fireAt, ok := clockTime(m[2], m[3], now.AddDate(0, 0, 1))
		if ok {
			return strings.TrimSpace(m[1]), fireAt, nil
		}
	}

	if m := weekdayPattern.FindStringSubmatch(text); m != nil {
		target := weekdays[strings.ToLower(m[2])]
		daysAhead := (int(target) - int(now.Weekday()) + 7) % 7
		if daysAhead == 0 {
			daysAhead = 7
		}
		fireAt, ok := clockTime(m[3], m[4], now.AddDate(0, 0, daysAhead))
		if ok {
			return strings.TrimSpace(m[1]), fireAt, nil
		}
	}

	if m := atPattern.FindStringSubmatch(text); m != nil {
		fireAt, ok := clockTime(m[2], m[3], now)
		if ok {
			if !fireAt.After(now) {
				fireAt = fireAt.AddDate(0, 0, 1)
			}
			return strings.TrimSpace(m[1]), fireAt, nil
		}
	}

	return "", time.Time{}, ErrUnparseableTime
}

// clockTime resolves "H[:MM]" plus an optional am/pm marker on the date part
// of base.
func clockTime(clock, ampm string, base time.Time) (time.Time, bool) {
	hourStr, minuteStr, hasMinute := strings.Cut(clock, ":")

	hour, err := strconv.Atoi(hourStr)
	if err != nil || hour > 23 {
		return time.Time{}, false
	}

	minute := 0
	if hasMinute {
		minute, err = strconv.Atoi(minuteStr)
		if err != nil || minute > 59 {
			return time.Time{}, false
		}
	}

	switch strings.ToLower(ampm) {
	case "pm":
		if hour < 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	}
	if hour > 23 {
		return time.Time{}, false
	}

	return time.Date(base.Year(), base.Month(), base.Day(), hour, minute, 0, 0, base.Location()), true
}
