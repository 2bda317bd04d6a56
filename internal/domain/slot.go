package domain

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// labelRe matches an HHMM observation label, e.g. "0600".
var labelRe = regexp.MustCompile(`^([01]\d|2[0-3])[0-5]\d$`)

// Day selects which calendar day of a run a slot belongs to. The zero value
// is not a valid day, so a slot that never set one fails validation.
type Day int

const (
	Today Day = iota + 1
	Yesterday
)

func (d Day) String() string {
	switch d {
	case Today:
		return "today"
	case Yesterday:
		return "yesterday"
	default:
		return fmt.Sprintf("day(%d)", int(d))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (d Day) MarshalText() ([]byte, error) {
	switch d {
	case Today, Yesterday:
		return []byte(d.String()), nil
	default:
		return nil, fmt.Errorf("invalid day %d", int(d))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler so calendar files can
// spell days as "today" or "yesterday".
func (d *Day) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "today":
		*d = Today
	case "yesterday":
		*d = Yesterday
	default:
		return fmt.Errorf("invalid day %q: want today or yesterday", string(text))
	}
	return nil
}

// Slot is one entry of the observation calendar: a report family observed at
// a fixed time of a given day, converted with a given channel.
type Slot struct {
	Label   string `toml:"label"`
	Day     Day    `toml:"day"`
	Family  string `toml:"family"`
	Pattern string `toml:"pattern"`
	Channel int    `toml:"channel,omitempty"`
}

// ID identifies the slot within a calendar, e.g. "yesterday-SMAL-1800".
func (s Slot) ID() string {
	return fmt.Sprintf("%s-%s-%s", s.Day, s.Family, s.Label)
}

// Glob expands the slot's filename pattern for date. Supported placeholders
// are {YYYY}, {MM} and {DD}.
func (s Slot) Glob(date time.Time) string {
	return strings.NewReplacer(
		"{YYYY}", date.Format("2006"),
		"{MM}", date.Format("01"),
		"{DD}", date.Format("02"),
	).Replace(s.Pattern)
}

// ArtifactName is the archived BUFR filename for the slot on date,
// e.g. "Synop_202610190600.bufr".
func (s Slot) ArtifactName(date time.Time) string {
	return "Synop_" + date.Format("20060102") + s.Label + ".bufr"
}

// Calendar is the fixed, ordered list of slots a run tries to produce.
type Calendar []Slot

// DefaultCalendar returns the operational calendar: the eight synoptic hours
// of the previous day split across the main (SMAL) and intermediate (SIAL)
// bulletin families, plus the two main hours already available today.
func DefaultCalendar() Calendar {
	return Calendar{
		{Label: "0000", Day: Yesterday, Family: "SMAL", Pattern: "SMAL*{DD}0000*"},
		{Label: "0300", Day: Yesterday, Family: "SIAL", Pattern: "SIAL*{DD}0300*"},
		{Label: "0600", Day: Yesterday, Family: "SMAL", Pattern: "SMAL*{DD}0600*"},
		{Label: "0900", Day: Yesterday, Family: "SIAL", Pattern: "SIAL*{DD}0900*"},
		{Label: "1200", Day: Yesterday, Family: "SMAL", Pattern: "SMAL*{DD}1200*"},
		{Label: "1500", Day: Yesterday, Family: "SIAL", Pattern: "SIAL*{DD}1500*"},
		{Label: "1800", Day: Yesterday, Family: "SMAL", Pattern: "SMAL*{DD}1800*"},
		{Label: "2100", Day: Yesterday, Family: "SIAL", Pattern: "SIAL*{DD}2100*"},
		{Label: "0000", Day: Today, Family: "SMAL", Pattern: "SMAL*{DD}0000*"},
		{Label: "0600", Day: Today, Family: "SMAL", Pattern: "SMAL*{DD}0600*"},
	}
}

// Validate checks that the calendar can drive a run.
func (c Calendar) Validate() error {
	if len(c) == 0 {
		return errors.New("calendar has no slots")
	}
	seen := make(map[string]struct{}, len(c))
	for i, s := range c {
		if !labelRe.MatchString(s.Label) {
			return fmt.Errorf("slot %d: invalid label %q, want HHMM", i, s.Label)
		}
		if strings.TrimSpace(s.Pattern) == "" {
			return fmt.Errorf("slot %d: pattern is required", i)
		}
		if _, err := filepath.Match(s.Pattern, ""); err != nil {
			return fmt.Errorf("slot %d: bad pattern %q: %w", i, s.Pattern, err)
		}
		if s.Channel < 0 {
			return fmt.Errorf("slot %d: channel must not be negative", i)
		}
		switch s.Day {
		case Today, Yesterday:
		case 0:
			return fmt.Errorf("slot %d: day is required", i)
		default:
			return fmt.Errorf("slot %d: invalid day %d", i, int(s.Day))
		}
		key := s.Day.String() + "/" + s.Label
		if _, dup := seen[key]; dup {
			return fmt.Errorf("slot %d: duplicate slot %s", i, key)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// RunDates are the two calendar days a run works on.
type RunDates struct {
	Today     time.Time
	Yesterday time.Time
}

// NewRunDates derives the run days from now, truncated to local midnight.
func NewRunDates(now time.Time) RunDates {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return RunDates{
		Today:     today,
		Yesterday: today.AddDate(0, 0, -1),
	}
}

// For returns the date a slot of the given day refers to.
func (d RunDates) For(day Day) time.Time {
	if day == Yesterday {
		return d.Yesterday
	}
	return d.Today
}

// DatePath is the year/month/day partition used by both the raw tree and
// the archive, e.g. "2026/10/19".
func DatePath(date time.Time) string {
	return filepath.Join(date.Format("2006"), date.Format("01"), date.Format("02"))
}
