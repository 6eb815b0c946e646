package service

import (
	"math"
	"time"

	"github.com/medtick/medtick/internal/domain"
)

// Stats is the adherence summary shown on the dashboard.
type Stats struct {
	ActiveCount   int `json:"active_count"`
	TakenToday    int `json:"taken_today"`
	TotalToday    int `json:"total_today"`
	AdherenceRate int `json:"adherence_rate"`
}

// ComputeStats derives adherence statistics from the medication list.
//
// TakenToday/TotalToday cover active medications whose date range includes
// the start of today; a history entry counts toward today when its record
// date falls within [today 00:00, tomorrow 00:00). The adherence rate is
// round(100 * taken-ever / scheduled-ever) where scheduled-ever sums, per
// medication, the inclusive day count from startDate to min(now, endDate)
// times the number of daily schedules. A zero denominator yields rate 0.
func ComputeStats(meds []*domain.Medication, now time.Time) Stats {
	var stats Stats

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	tomorrow := today.AddDate(0, 0, 1)

	for _, med := range meds {
		if !med.Active {
			continue
		}
		stats.ActiveCount++

		if !med.RangeContains(today) {
			continue
		}
		stats.TotalToday += len(med.Schedules)

		for _, record := range med.History {
			if !record.Date.Before(today) && record.Date.Before(tomorrow) {
				stats.TakenToday++
			}
		}
	}

	var totalScheduled, totalTaken int
	for _, med := range meds {
		totalTaken += len(med.History)

		start, err := domain.ParseDate(med.StartDate, now.Location())
		if err != nil {
			continue
		}
		end, err := domain.ParseDate(med.EndDate, now.Location())
		if err != nil {
			continue
		}
		if now.Before(start) {
			continue
		}

		until := now
		endOfRange := end.AddDate(0, 0, 1).Add(-time.Nanosecond)
		if now.After(endOfRange) {
			until = endOfRange
		}

		days := int(until.Sub(start).Hours()/24) + 1
		if days < 0 {
			days = 0
		}
		totalScheduled += days * len(med.Schedules)
	}

	if totalScheduled > 0 {
		stats.AdherenceRate = int(math.Round(100 * float64(totalTaken) / float64(totalScheduled)))
		// Duplicate acknowledgements can push taken-ever past
		// scheduled-ever; the rate still reads as a percentage.
		if stats.AdherenceRate > 100 {
			stats.AdherenceRate = 100
		}
	}

	return stats
}
