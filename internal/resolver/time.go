// Package resolver turns the time, date and place slots of a belief into
// concrete timestamps and endpoints for external services.
package resolver

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"pti/dm/internal/ontology"
)

// Kind tells whether a resolved time came from a relative or an absolute
// specification.
type Kind string

const (
	Relative Kind = "rel"
	Absolute Kind = "abs"
)

// TimeSlots are the raw slot values that describe a point in time.
type TimeSlots struct {
	Abs     string // "14:30"
	AMPM    string // morning, am, pm, evening, night
	Rel     string // "0:20" or "now"
	DateRel string // today, tomorrow, day_after_tomorrow
	// LTA names what the user talked about last, e.g. "departure_time_rel".
	LTA string
}

var clockRe = regexp.MustCompile(`^[0-2]?[0-9]:[0-5][0-9]$`)

var ampmDefaults = map[string]string{
	"morning": "06:00",
	"am":      "10:00",
	"pm":      "15:00",
	"evening": "18:00",
	"night":   "00:00",
}

func unset(v string) bool { return v == "" || v == ontology.None || v == ontology.DontCare }

func orNone(v string) string {
	if unset(v) {
		return ontology.None
	}
	return v
}

// CeilMinute rounds t up to the next whole minute.
func CeilMinute(t time.Time) time.Time {
	m := t.Truncate(time.Minute)
	if m.Equal(t) {
		return t
	}
	return m.Add(time.Minute)
}

// Interpret resolves ts against now. now's location is the location of the
// result.
func Interpret(now time.Time, ts TimeSlots) (time.Time, Kind) {
	abs, ampm, rel, date := orNone(ts.Abs), orNone(ts.AMPM), orNone(ts.Rel), orNone(ts.DateRel)

	if abs != ontology.None && rel != ontology.None {
		switch {
		case strings.HasSuffix(ts.LTA, "time_rel"):
			abs = ontology.None
		case strings.HasSuffix(ts.LTA, "time"), ts.LTA == "date_rel":
			rel = ontology.None
		}
	}
	if abs != ontology.None && !validClock(abs) {
		abs = ontology.None
	}

	now = CeilMinute(now)

	if (abs == ontology.None && ampm == ontology.None && date == ontology.None) || rel != ontology.None {
		t := now
		if rel != ontology.None && rel != "now" {
			if d, ok := ParseDuration(rel); ok {
				t = t.Add(d)
			}
		}
		return t, Relative
	}

	if abs == ontology.None {
		if def, ok := ampmDefaults[ampm]; ok {
			abs = def
		} else if date != ontology.None {
			abs = now.Format("15:04")
		}
	}
	h, m, ok := parseClock(abs)
	if !ok {
		return now, Relative
	}

	if h >= 1 && h <= 12 {
		switch ampm {
		case "pm":
			if h < 12 {
				h += 12
			}
		case "am", "morning":
			if h == 12 {
				h = 0
			}
		case "evening":
			if h >= 4 {
				h = (h + 12) % 24
			}
		case "night":
			if h >= 6 {
				h = (h + 12) % 24
			}
		case ontology.None:
			if (date == ontology.None || date == "today") && now.Hour() > h && now.Hour() < h+12 {
				h = (h + 12) % 24
			}
		}
	}

	t := time.Date(now.Year(), now.Month(), now.Day(), h, m, 0, 0, now.Location())
	switch date {
	case "tomorrow":
		t = t.AddDate(0, 0, 1)
	case "day_after_tomorrow":
		t = t.AddDate(0, 0, 2)
	default:
		if t.Before(now) {
			t = t.AddDate(0, 0, 1)
		}
	}
	return t, Absolute
}

func validClock(v string) bool {
	_, _, ok := parseClock(v)
	return ok
}

func parseClock(v string) (int, int, bool) {
	if !clockRe.MatchString(v) {
		return 0, 0, false
	}
	hs, ms, _ := strings.Cut(v, ":")
	h, _ := strconv.Atoi(hs)
	m, _ := strconv.Atoi(ms)
	if h > 23 {
		return 0, 0, false
	}
	return h, m, true
}

// ParseDuration reads an H:MM relative time.
func ParseDuration(v string) (time.Duration, bool) {
	hs, ms, ok := strings.Cut(strings.TrimSpace(v), ":")
	if !ok {
		return 0, false
	}
	h, err1 := strconv.Atoi(hs)
	m, err2 := strconv.Atoi(ms)
	if err1 != nil || err2 != nil || h < 0 || m < 0 || m > 59 {
		return 0, false
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, true
}

// FormatDuration renders d as H:MM, the form relative time slots use.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	mins := int(d.Round(time.Minute) / time.Minute)
	return strconv.Itoa(mins/60) + ":" + twoDigits(mins%60)
}

func twoDigits(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
