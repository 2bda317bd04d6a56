package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/couchcryptid/synop-bufr-etl/internal/domain"
)

// calendarFile is the on-disk shape of SLOT_CALENDAR_FILE:
//
//	[[slot]]
//	label   = "0600"
//	day     = "today"
//	family  = "SMAL"
//	pattern = "SMAL*{DD}0600*"
//	channel = 96   # optional
type calendarFile struct {
	Slots []domain.Slot `toml:"slot"`
}

// LoadCalendar returns the slot calendar. An empty path selects the built-in
// calendar.
func LoadCalendar(path string) (domain.Calendar, error) {
	if path == "" {
		return domain.DefaultCalendar(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read calendar: %w", err)
	}

	var file calendarFile
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse calendar %s: %w", path, err)
	}

	cal := domain.Calendar(file.Slots)
	if err := cal.Validate(); err != nil {
		return nil, fmt.Errorf("calendar %s: %w", path, err)
	}
	return cal, nil
}
