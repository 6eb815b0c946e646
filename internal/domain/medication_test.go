package domain

import (
	"testing"
	"time"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		in         string
		hour, min  int
		wantErr    bool
	}{
		{in: "09:00", hour: 9, min: 0},
		{in: "23:59", hour: 23, min: 59},
		{in: "0:5", hour: 0, min: 5},
		{in: " 12:30 ", hour: 12, min: 30},
		{in: "24:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "9am", wantErr: true},
		{in: "", wantErr: true},
		{in: "12:30:15", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			hour, minute, err := ParseClock(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseClock(%q): %v", tt.in, err)
			}
			if hour != tt.hour || minute != tt.min {
				t.Errorf("got %d:%d, want %d:%d", hour, minute, tt.hour, tt.min)
			}
		})
	}
}

func TestRangeContains(t *testing.T) {
	m := &Medication{StartDate: "2026-06-10", EndDate: "2026-06-20"}
	day := func(d, hour int) time.Time {
		return time.Date(2026, 6, d, hour, 0, 0, 0, time.UTC)
	}

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{name: "before start", now: day(9, 23), want: false},
		{name: "start midnight", now: day(10, 0), want: true},
		{name: "inside", now: day(15, 12), want: true},
		{name: "last day evening", now: day(20, 23), want: true},
		{name: "day after end", now: day(21, 0), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.RangeContains(tt.now); got != tt.want {
				t.Errorf("RangeContains(%s) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}

	t.Run("unparseable dates", func(t *testing.T) {
		bad := &Medication{StartDate: "junk", EndDate: "2026-06-20"}
		if bad.RangeContains(day(15, 12)) {
			t.Error("unparseable start date must exclude")
		}
	})
}

func TestReminderLead(t *testing.T) {
	tests := []struct {
		minutes int
		want    time.Duration
	}{
		{minutes: 10, want: 10 * time.Minute},
		{minutes: 0, want: DefaultReminderMinutes * time.Minute},
		{minutes: -5, want: DefaultReminderMinutes * time.Minute},
	}
	for _, tt := range tests {
		m := &Medication{ReminderMinutes: tt.minutes}
		if got := m.ReminderLead(); got != tt.want {
			t.Errorf("ReminderLead(%d) = %s, want %s", tt.minutes, got, tt.want)
		}
	}
}
