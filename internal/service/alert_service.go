package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/medtick/medtick/internal/domain"
)

// AlertKind distinguishes the early reminder from the urgent alert.
type AlertKind string

const (
	AlertRemind AlertKind = "remind"
	AlertTake   AlertKind = "take"
)

// MinDismissFloorSeconds is the lowest dwell time an alert can have
// regardless of configuration.
const MinDismissFloorSeconds = 3 * 60

// UntilActionSeconds is the dwell time of the "until-action" setting: a
// full day, so the alert effectively stays until acknowledged.
const UntilActionSeconds = 24 * 60 * 60

// ErrNoAlert is returned when dismiss or snooze is requested with no
// alert on screen.
var ErrNoAlert = errors.New("no alert is open")

// DwellError rejects a dismiss request made before the minimum on-screen
// time has elapsed.
type DwellError struct {
	RemainingSeconds int
}

func (e *DwellError) Error() string {
	minutes := (e.RemainingSeconds + 59) / 60
	return fmt.Sprintf("please wait %d more minute(s) before closing", minutes)
}

// Alert is one open reminder with its dwell state. Elapsed advances on
// the shared one-second tick; Countdown is the fixed display duration set
// when the alert opened. Both run off the same counter.
type Alert struct {
	Kind           AlertKind
	MedicationID   string
	MedicationName string
	Dosage         string
	DoseAt         time.Time
	OpenedAt       time.Time
	Elapsed        int
	Countdown      int
}

// Remaining returns the countdown display value, duration minus elapsed.
func (a *Alert) Remaining() int {
	r := a.Countdown - a.Elapsed
	if r < 0 {
		return 0
	}
	return r
}

type reminderFlags struct {
	remind bool
	take   bool
}

// AlertService is the per-medication reminder state machine plus the
// dwell-time gate for the single visible alert. It is not goroutine-safe;
// the engine serializes access.
type AlertService struct {
	minSeconds int // configured minimum, before the floor is applied
	flags      map[string]*reminderFlags
	alert      *Alert
}

func NewAlertService(minReminderSeconds int) *AlertService {
	return &AlertService{
		minSeconds: minReminderSeconds,
		flags:      make(map[string]*reminderFlags),
	}
}

// SetMinDuration updates the configured dwell minimum in seconds.
func (s *AlertService) SetMinDuration(seconds int) {
	s.minSeconds = seconds
}

// MinConfigured returns the configured dwell minimum as set, before the
// floor is applied.
func (s *AlertService) MinConfigured() int {
	return s.minSeconds
}

// MinDismiss returns the effective dwell time: the configured value,
// never below the three-minute floor.
func (s *AlertService) MinDismiss() int {
	if s.minSeconds > MinDismissFloorSeconds {
		return s.minSeconds
	}
	return MinDismissFloorSeconds
}

// Current returns the open alert, or nil.
func (s *AlertService) Current() *Alert {
	return s.alert
}

// TakeShown reports whether the urgent alert has already been raised for
// the medication in the current cycle.
func (s *AlertService) TakeShown(medicationID string) bool {
	f := s.flags[medicationID]
	return f != nil && f.take
}

func (s *AlertService) flagsFor(medicationID string) *reminderFlags {
	f := s.flags[medicationID]
	if f == nil {
		f = &reminderFlags{}
		s.flags[medicationID] = f
	}
	return f
}

// Evaluate runs one state-machine step against the resolved next dose.
// While an alert is on screen every evaluation is a no-op: flags are not
// even set, so the suppressed transition can still fire later. Returns
// the newly opened alert, or nil.
func (s *AlertService) Evaluate(next *domain.NextDose, now time.Time) *Alert {
	if s.alert != nil || next == nil {
		return nil
	}

	med := next.Medication
	f := s.flagsFor(med.ID)

	if !now.Before(next.At) {
		// Due time reached; this fires directly from idle when the
		// pre-reminder window was never evaluated.
		if f.take {
			return nil
		}
		f.take = true
		return s.open(AlertTake, med, next.At, now)
	}

	remindAt := next.At.Add(-med.ReminderLead())
	if !now.Before(remindAt) && !f.remind {
		f.remind = true
		return s.open(AlertRemind, med, next.At, now)
	}

	return nil
}

// Reopen raises the post-snooze alert: take when the dose time has
// arrived, the pre-reminder otherwise, judged at the wake-up instant.
func (s *AlertService) Reopen(next *domain.NextDose, now time.Time) *Alert {
	if s.alert != nil || next == nil {
		return nil
	}

	med := next.Medication
	f := s.flagsFor(med.ID)

	kind := AlertRemind
	if !now.Before(next.At) {
		kind = AlertTake
		f.take = true
	} else {
		f.remind = true
	}
	return s.open(kind, med, next.At, now)
}

func (s *AlertService) open(kind AlertKind, med *domain.Medication, doseAt, now time.Time) *Alert {
	countdown := s.MinDismiss()
	if kind == AlertRemind {
		if until := int(doseAt.Sub(now).Seconds()); until > 0 {
			countdown = until
		}
	}

	s.alert = &Alert{
		Kind:           kind,
		MedicationID:   med.ID,
		MedicationName: med.Name,
		Dosage:         med.Dosage,
		DoseAt:         doseAt,
		OpenedAt:       now,
		Countdown:      countdown,
	}
	return s.alert
}

// Advance moves the open alert's dwell clock one second forward. When the
// countdown runs out the alert auto-closes and both reminder flags clear
// without recording an acknowledgement; the expired alert is returned.
func (s *AlertService) Advance() *Alert {
	if s.alert == nil {
		return nil
	}

	s.alert.Elapsed++
	if s.alert.Elapsed >= s.alert.Countdown {
		expired := s.alert
		s.clearFlags(expired.MedicationID)
		s.alert = nil
		return expired
	}
	return nil
}

// Dismiss closes the open alert without acknowledging, honored only once
// the minimum dwell time has elapsed. Reminder flags are left set so the
// same alert does not immediately re-raise.
func (s *AlertService) Dismiss() error {
	if s.alert == nil {
		return ErrNoAlert
	}
	if s.alert.Elapsed < s.MinDismiss() {
		return &DwellError{RemainingSeconds: s.MinDismiss() - s.alert.Elapsed}
	}
	s.alert = nil
	return nil
}

// Snooze closes the open alert and clears both reminder flags so the
// scheduled re-evaluation can raise it again. Returns the medication id
// of the snoozed alert.
func (s *AlertService) Snooze() (string, error) {
	if s.alert == nil {
		return "", ErrNoAlert
	}
	medID := s.alert.MedicationID
	s.clearFlags(medID)
	s.alert = nil
	return medID, nil
}

// CloseFor clears the medication's reminder flags and closes its alert if
// one is open. Called on acknowledgement.
func (s *AlertService) CloseFor(medicationID string) {
	s.clearFlags(medicationID)
	if s.alert != nil && s.alert.MedicationID == medicationID {
		s.alert = nil
	}
}

func (s *AlertService) clearFlags(medicationID string) {
	delete(s.flags, medicationID)
}
