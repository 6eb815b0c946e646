package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Source identifies how a dose acknowledgement was produced.
type Source string

const (
	SourceManual     Source = "manual"
	SourceIRSensor   Source = "ir_sensor"
	SourceSimulation Source = "simulation"
)

// Label returns display text for the acknowledgement source.
func (s Source) Label() string {
	switch s {
	case SourceIRSensor:
		return "via IR sensor"
	case SourceSimulation:
		return "via simulation"
	default:
		return "manually"
	}
}

// DoseRecord is one acknowledged dose. Records are append-only: once added
// to a medication's history they are never mutated or removed.
type DoseRecord struct {
	Date      time.Time `json:"date"`
	Scheduled time.Time `json:"scheduled"`
	Taken     bool      `json:"taken"`
	Source    Source    `json:"source"`
}

// Medication is a tracked medication with its daily dosing schedule.
// StartDate and EndDate are calendar dates ("2006-01-02", inclusive range);
// Schedules are times of day ("15:04", 24h), one per daily dose.
type Medication struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Dosage          string       `json:"dosage"`
	StartDate       string       `json:"startDate"`
	EndDate         string       `json:"endDate"`
	Schedules       []string     `json:"schedules"`
	Color           string       `json:"color"`
	ReminderMinutes int          `json:"reminderMinutes"`
	History         []DoseRecord `json:"history"`
	Active          bool         `json:"active"`
}

// DefaultReminderMinutes is the pre-reminder lead time used when a
// medication does not carry its own.
const DefaultReminderMinutes = 3

// ReminderLead returns the pre-reminder lead time. Zero or negative
// values count as unset and fall back to the default.
func (m *Medication) ReminderLead() time.Duration {
	minutes := m.ReminderMinutes
	if minutes <= 0 {
		minutes = DefaultReminderMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// RangeContains reports whether now falls within the medication's date
// range, expanded to [startDate 00:00:00, endDate 23:59:59.999...].
// Unparseable dates degrade to false (no next dose), never an error.
func (m *Medication) RangeContains(now time.Time) bool {
	start, err := ParseDate(m.StartDate, now.Location())
	if err != nil {
		return false
	}
	end, err := ParseDate(m.EndDate, now.Location())
	if err != nil {
		return false
	}
	endOfRange := end.AddDate(0, 0, 1).Add(-time.Nanosecond)
	return !now.Before(start) && !now.After(endOfRange)
}

// NextDose is one resolved upcoming dose occurrence.
type NextDose struct {
	Medication *Medication
	At         time.Time
}

// NewMedicationID returns a creation-time identifier, unique enough for a
// single-user list.
func NewMedicationID(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 10)
}

// ParseDate parses a calendar date ("2006-01-02") at midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// ParseClock parses a time of day ("15:04", 24h) into hour and minute.
func ParseClock(s string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time format: %s", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour: %s", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute: %s", s)
	}
	return hour, minute, nil
}
