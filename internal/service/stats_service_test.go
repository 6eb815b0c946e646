package service

import (
	"testing"
	"time"

	"github.com/medtick/medtick/internal/domain"
)

func TestComputeStatsEmpty(t *testing.T) {
	got := ComputeStats(nil, at(12, 0))
	if got.ActiveCount != 0 || got.TakenToday != 0 || got.TotalToday != 0 || got.AdherenceRate != 0 {
		t.Fatalf("expected zero stats, got %+v", got)
	}
}

func TestComputeStatsToday(t *testing.T) {
	now := at(12, 0)
	taken := func(when time.Time) domain.DoseRecord {
		return domain.DoseRecord{Date: when, Taken: true, Source: domain.SourceManual}
	}

	m1 := med("1", "Aspirin", "09:00", "21:00")
	m1.History = []domain.DoseRecord{
		taken(at(9, 2)),                    // today
		taken(at(9, 0).AddDate(0, 0, -1)), // yesterday
	}

	m2 := med("2", "Vitamin D", "12:00")
	m2.History = []domain.DoseRecord{taken(at(12, 1))}

	inactive := med("3", "Old Med", "08:00")
	inactive.Active = false

	got := ComputeStats([]*domain.Medication{m1, m2, inactive}, now)

	if got.ActiveCount != 2 {
		t.Errorf("active = %d, want 2", got.ActiveCount)
	}
	if got.TotalToday != 3 {
		t.Errorf("total today = %d, want 3", got.TotalToday)
	}
	if got.TakenToday != 2 {
		t.Errorf("taken today = %d, want 2", got.TakenToday)
	}
}

func TestComputeStatsAdherenceRate(t *testing.T) {
	// 15 June, medication started 11 June: 5 inclusive days, one schedule,
	// 5 scheduled doses ever.
	now := at(12, 0)
	m := med("1", "Aspirin", "09:00")
	m.StartDate = "2026-06-11"

	for i := 0; i < 4; i++ {
		m.History = append(m.History, domain.DoseRecord{
			Date:  now.AddDate(0, 0, -i),
			Taken: true,
		})
	}

	got := ComputeStats([]*domain.Medication{m}, now)
	if got.AdherenceRate != 80 {
		t.Errorf("rate = %d, want 80", got.AdherenceRate)
	}
}

func TestComputeStatsAdherenceRounds(t *testing.T) {
	// 2 taken over 3 scheduled days is 66.7 percent, rounded to 67.
	now := at(12, 0)
	m := med("1", "Aspirin", "09:00")
	m.StartDate = "2026-06-13"
	m.History = []domain.DoseRecord{
		{Date: now, Taken: true},
		{Date: now.AddDate(0, 0, -1), Taken: true},
	}

	got := ComputeStats([]*domain.Medication{m}, now)
	if got.AdherenceRate != 67 {
		t.Errorf("rate = %d, want 67", got.AdherenceRate)
	}
}

func TestComputeStatsAdherenceCapped(t *testing.T) {
	// Duplicate manual acknowledgements are allowed, so taken-ever can
	// exceed scheduled-ever; the rate never reads above 100.
	now := at(12, 0)
	m := med("1", "Aspirin", "09:00")
	m.StartDate = "2026-06-15"
	for i := 0; i < 3; i++ {
		m.History = append(m.History, domain.DoseRecord{Date: now, Taken: true, Source: domain.SourceManual})
	}

	got := ComputeStats([]*domain.Medication{m}, now)
	if got.AdherenceRate != 100 {
		t.Errorf("rate = %d, want capped at 100", got.AdherenceRate)
	}
}

func TestComputeStatsRangeEndsBeforeNow(t *testing.T) {
	// Course ended 5 days ago; scheduled-ever stops at the end date.
	now := at(12, 0)
	m := med("1", "Aspirin", "09:00")
	m.StartDate = "2026-06-01"
	m.EndDate = "2026-06-10"
	for i := 0; i < 10; i++ {
		m.History = append(m.History, domain.DoseRecord{Taken: true,
			Date: time.Date(2026, 6, 1+i, 9, 0, 0, 0, time.UTC)})
	}

	got := ComputeStats([]*domain.Medication{m}, now)
	if got.AdherenceRate != 100 {
		t.Errorf("rate = %d, want 100", got.AdherenceRate)
	}
	// The ended course no longer contributes to today's counters.
	if got.TotalToday != 0 {
		t.Errorf("total today = %d, want 0", got.TotalToday)
	}
}

func TestComputeStatsNotStartedYet(t *testing.T) {
	now := at(12, 0)
	m := med("1", "Aspirin", "09:00")
	m.StartDate = "2026-07-01"
	m.EndDate = "2026-07-31"

	got := ComputeStats([]*domain.Medication{m}, now)
	if got.AdherenceRate != 0 {
		t.Errorf("rate = %d, want 0 for an unstarted course", got.AdherenceRate)
	}
	if got.TotalToday != 0 {
		t.Errorf("total today = %d, want 0", got.TotalToday)
	}
	if got.ActiveCount != 1 {
		t.Errorf("active = %d, want 1", got.ActiveCount)
	}
}
