package service

import (
	"strings"
	"testing"
	"time"

	"github.com/medtick/medtick/internal/domain"
)

func medsOf(ms ...*domain.Medication) []*domain.Medication { return ms }

func TestWriteICS(t *testing.T) {
	svc := NewCalendarService(nil, time.UTC)

	m1 := med("1", "Aspirin", "09:00", "21:00")
	m1.Dosage = "100mg"
	m2 := med("2", "Old Med", "08:00")
	m2.Active = false

	var buf strings.Builder
	if err := svc.WriteICS(&buf, medsOf(m1, m2)); err != nil {
		t.Fatalf("WriteICS: %v", err)
	}
	ics := buf.String()

	if !strings.Contains(ics, "BEGIN:VCALENDAR") || !strings.Contains(ics, "END:VCALENDAR") {
		t.Fatal("not a calendar document")
	}
	if got := strings.Count(ics, "BEGIN:VEVENT"); got != 2 {
		t.Errorf("event count = %d, want 2 (one per schedule, inactive skipped)", got)
	}
	if !strings.Contains(ics, "FREQ=DAILY") {
		t.Error("missing daily recurrence")
	}
	if !strings.Contains(ics, "UNTIL=20261231") {
		t.Error("recurrence not bounded by end date")
	}
	if !strings.Contains(ics, "Aspirin") {
		t.Error("missing medication name")
	}
	if strings.Contains(ics, "Old Med") {
		t.Error("inactive medication exported")
	}
	if !strings.Contains(ics, "UID:medtick-1-0") || !strings.Contains(ics, "UID:medtick-1-1") {
		t.Error("missing stable per-schedule UIDs")
	}
}

func TestWriteICSSkipsUnparseable(t *testing.T) {
	svc := NewCalendarService(nil, time.UTC)

	bad := med("1", "Aspirin", "9am")
	noDates := med("2", "Vitamin D", "09:00")
	noDates.StartDate = "whenever"

	var buf strings.Builder
	if err := svc.WriteICS(&buf, medsOf(bad, noDates)); err != nil {
		t.Fatalf("WriteICS: %v", err)
	}
	if strings.Contains(buf.String(), "BEGIN:VEVENT") {
		t.Error("unparseable medications produced events")
	}
}

func TestPublishUnconfigured(t *testing.T) {
	svc := NewCalendarService(nil, time.UTC)
	if svc.IsConfigured() {
		t.Fatal("nil client reported as configured")
	}
	if _, err := svc.Publish(nil); err == nil {
		t.Fatal("expected error when publishing unconfigured")
	}
}
