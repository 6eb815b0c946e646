package service

import (
	"time"

	"github.com/medtick/medtick/internal/domain"
)

// ResolveNext computes the single next-due dose across all medications.
//
// Only active medications whose date range contains now participate. For
// each scheduled time of day the next occurrence is today's instance, or
// tomorrow's once today's has passed. The roll-over rule is strictly
// doseTime <= now: an occurrence exactly equal to now already belongs to
// the next day. Ties between medications resolve to the first one found
// in input order.
//
// Returns nil when no active medication has an upcoming occurrence.
func ResolveNext(meds []*domain.Medication, now time.Time) *domain.NextDose {
	var best *domain.NextDose

	for _, med := range meds {
		if !med.Active {
			continue
		}
		if !med.RangeContains(now) {
			continue
		}

		for _, schedule := range med.Schedules {
			hour, minute, err := domain.ParseClock(schedule)
			if err != nil {
				continue
			}

			dose := time.Date(now.Year(), now.Month(), now.Day(),
				hour, minute, 0, 0, now.Location())
			if !dose.After(now) {
				dose = dose.AddDate(0, 0, 1)
			}

			if best == nil || dose.Before(best.At) {
				best = &domain.NextDose{Medication: med, At: dose}
			}
		}
	}

	return best
}
