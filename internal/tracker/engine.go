package tracker

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/medtick/medtick/internal/domain"
	"github.com/medtick/medtick/internal/notify"
	"github.com/medtick/medtick/internal/service"
	"github.com/medtick/medtick/internal/storage"
)

const (
	snoozeDelay     = 5 * time.Minute
	sensorTolerance = 15 * time.Minute
)

var (
	// ErrNoTarget means an acknowledgement could not be resolved to any
	// medication. Callers may treat it as a no-op.
	ErrNoTarget = errors.New("no medication to record")

	ErrNotFound  = errors.New("medication not found")
	ErrNoPending = errors.New("no pending sensor confirmation")
)

// Store is the persistence collaborator backing the engine.
type Store interface {
	LoadMedications() ([]*domain.Medication, error)
	SaveMedications([]*domain.Medication) error
	LoadSettings() (storage.Settings, error)
	SaveSettings(storage.Settings) error
}

// PendingConfirmation is a sensor-detected dose waiting for explicit user
// approval because the next scheduled dose was outside the auto-confirm
// tolerance window.
type PendingConfirmation struct {
	MedicationID   string        `json:"medication_id"`
	MedicationName string        `json:"medication_name"`
	DoseAt         time.Time     `json:"dose_at"`
	Source         domain.Source `json:"source"`
	CreatedAt      time.Time     `json:"created_at"`
}

// Engine is the tracker session: the medication list, the resolved next
// dose, the reminder state machine, and the pending one-shot timers. All
// mutation funnels through it so timer callbacks, relay events and API
// requests stay serialized behind one mutex.
type Engine struct {
	mu       sync.Mutex
	store    Store
	alerts   *service.AlertService
	notifier notify.Notifier
	timezone *time.Location

	meds    []*domain.Medication
	next    *domain.NextDose
	snooze  *time.Timer
	pending *PendingConfirmation

	relayStatus string
	devices     []domain.Device

	now func() time.Time
}

func New(store Store, notifier notify.Notifier, tz *time.Location) (*Engine, error) {
	if tz == nil {
		tz = time.Local
	}

	meds, err := store.LoadMedications()
	if err != nil {
		return nil, fmt.Errorf("load medications: %w", err)
	}

	settings, err := store.LoadSettings()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	e := &Engine{
		store:    store,
		alerts:   service.NewAlertService(settings.MinReminderDurationSeconds),
		notifier: notifier,
		timezone: tz,
		meds:     meds,
	}
	e.now = func() time.Time { return time.Now().In(tz) }
	return e, nil
}

// Close cancels any pending one-shot timers.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopSnoozeLocked()
}

// Tick is the once-per-second evaluation step: advance the open alert's
// dwell clock, run the state machine against the previously resolved next
// dose, then refresh the resolution. Evaluating before re-resolving is
// what lets the urgent alert fire at the dose instant, because resolution
// itself rolls an occurrence equal to now over to tomorrow.
func (e *Engine) Tick() {
	e.tickAt(e.now())
}

func (e *Engine) tickAt(now time.Time) {
	e.mu.Lock()

	if expired := e.alerts.Advance(); expired != nil {
		log.Printf("Alert for %s expired without acknowledgement", expired.MedicationName)
	}

	opened := e.alerts.Evaluate(e.next, now)
	if opened != nil {
		e.stopSnoozeLocked()
	}
	e.next = service.ResolveNext(e.meds, now)

	e.mu.Unlock()

	if opened != nil {
		e.announce(opened)
	}
}

// announce fires the best-effort notification for a newly opened alert.
// It runs the notifier off the tick goroutine so a slow channel (e.g.
// Telegram) cannot stall the one-second loop.
func (e *Engine) announce(a *service.Alert) {
	title := "Medication Reminder"
	if a.Kind == service.AlertTake {
		title = "Take Your Medication Now!"
	}
	body := a.MedicationName
	if a.Dosage != "" {
		body = fmt.Sprintf("%s — %s", a.MedicationName, a.Dosage)
	}
	go e.notifier.Notify(title, body)
}

func (e *Engine) notifyAsync(title, body string) {
	go e.notifier.Notify(title, body)
}

// Medications returns a snapshot of the medication list.
func (e *Engine) Medications() []*domain.Medication {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*domain.Medication, len(e.meds))
	copy(out, e.meds)
	return out
}

// Next returns the currently resolved next dose, or nil.
func (e *Engine) Next() *domain.NextDose {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.next == nil {
		return nil
	}
	next := *e.next
	return &next
}

// Alert returns a copy of the open alert, or nil.
func (e *Engine) Alert() *service.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	cur := e.alerts.Current()
	if cur == nil {
		return nil
	}
	a := *cur
	return &a
}

// Stats computes the adherence summary.
func (e *Engine) Stats() service.Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return service.ComputeStats(e.meds, e.now())
}

// CreateMedication adds a medication and persists the list.
func (e *Engine) CreateMedication(med *domain.Medication) (*domain.Medication, error) {
	if strings.TrimSpace(med.Name) == "" {
		return nil, fmt.Errorf("medication name cannot be empty")
	}
	if len(med.Schedules) == 0 {
		return nil, fmt.Errorf("medication needs at least one schedule time")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	med.ID = domain.NewMedicationID(now)
	med.History = []domain.DoseRecord{}
	med.Active = true

	e.meds = append(e.meds, med)
	e.saveLocked()
	e.next = service.ResolveNext(e.meds, now)
	return med, nil
}

// UpdateMedication replaces every field except the identifier and the
// acknowledgement history.
func (e *Engine) UpdateMedication(id string, upd *domain.Medication) (*domain.Medication, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	med := e.findLocked(id)
	if med == nil {
		return nil, ErrNotFound
	}

	med.Name = upd.Name
	med.Dosage = upd.Dosage
	med.StartDate = upd.StartDate
	med.EndDate = upd.EndDate
	med.Schedules = upd.Schedules
	med.Color = upd.Color
	med.ReminderMinutes = upd.ReminderMinutes
	med.Active = upd.Active

	e.saveLocked()
	e.next = service.ResolveNext(e.meds, e.now())
	return med, nil
}

// DeleteMedication removes a medication, closing its alert if open.
func (e *Engine) DeleteMedication(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := -1
	for i, med := range e.meds {
		if med.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrNotFound
	}

	e.meds = append(e.meds[:idx], e.meds[idx+1:]...)
	e.alerts.CloseFor(id)
	if e.pending != nil && e.pending.MedicationID == id {
		e.pending = nil
	}
	e.saveLocked()
	e.next = service.ResolveNext(e.meds, e.now())
	return nil
}

// TakeMedication records a dose as taken. An empty id falls back to the
// open alert's medication, then to the current next-due one.
func (e *Engine) TakeMedication(id string, source domain.Source) error {
	e.mu.Lock()

	now := e.now()
	var med *domain.Medication
	scheduled := now

	if id != "" {
		med = e.findLocked(id)
		if med == nil {
			e.mu.Unlock()
			return ErrNoTarget
		}
		if cur := e.alerts.Current(); cur != nil && cur.MedicationID == id {
			scheduled = cur.DoseAt
		}
	} else if cur := e.alerts.Current(); cur != nil {
		med = e.findLocked(cur.MedicationID)
		scheduled = cur.DoseAt
	} else if e.next != nil {
		med = e.next.Medication
		scheduled = e.next.At
	}

	if med == nil {
		e.mu.Unlock()
		return ErrNoTarget
	}

	name := med.Name
	e.recordLocked(med, scheduled, now, source)
	e.mu.Unlock()

	e.notifyAsync("Dose recorded", fmt.Sprintf("%s marked as taken %s", name, source.Label()))
	return nil
}

// recordLocked is the single mutation point for adherence history: append
// one record, persist, clear the medication's reminder state and cancel
// the snooze timer so nothing re-opens a recorded dose.
func (e *Engine) recordLocked(med *domain.Medication, scheduled, now time.Time, source domain.Source) {
	med.History = append(med.History, domain.DoseRecord{
		Date:      now,
		Scheduled: scheduled,
		Taken:     true,
		Source:    source,
	})
	e.saveLocked()
	e.alerts.CloseFor(med.ID)
	e.stopSnoozeLocked()
	if e.pending != nil && e.pending.MedicationID == med.ID {
		e.pending = nil
	}
}

// Snooze closes the open alert and schedules exactly one re-evaluation
// after the snooze delay.
func (e *Engine) Snooze() error {
	e.mu.Lock()

	medID, err := e.alerts.Snooze()
	if err != nil {
		e.mu.Unlock()
		return err
	}

	e.stopSnoozeLocked()
	e.snooze = time.AfterFunc(snoozeDelay, e.snoozeWake)
	log.Printf("Reminder for medication %s snoozed for %s", medID, snoozeDelay)

	e.mu.Unlock()
	e.notifyAsync("Reminder snoozed", "Reminder snoozed for 5 minutes")
	return nil
}

func (e *Engine) snoozeWake() {
	e.mu.Lock()
	now := e.now()
	e.next = service.ResolveNext(e.meds, now)
	opened := e.alerts.Reopen(e.next, now)
	e.mu.Unlock()

	if opened != nil {
		e.announce(opened)
	}
}

func (e *Engine) stopSnoozeLocked() {
	if e.snooze != nil {
		e.snooze.Stop()
		e.snooze = nil
	}
}

// Dismiss attempts to close the open alert without acknowledging. It is
// rejected with a DwellError until the minimum on-screen time has passed.
func (e *Engine) Dismiss() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.alerts.Dismiss()
}

// HandleMessage consumes one relay message. Only medication_taken drives
// the core; connection_status and device_update merely refresh the device
// display state.
func (e *Engine) HandleMessage(msg domain.Message) {
	switch msg.Kind {
	case domain.KindMedicationTaken:
		e.handleMedicationTaken(msg)
	case domain.KindConnectionStatus:
		e.mu.Lock()
		e.relayStatus = msg.Status
		e.devices = msg.Devices
		e.mu.Unlock()
	case domain.KindDeviceUpdate:
		e.mu.Lock()
		e.devices = msg.Devices
		e.mu.Unlock()
	}
}

func (e *Engine) handleMedicationTaken(msg domain.Message) {
	e.mu.Lock()

	now := e.now()
	source := msg.Source()

	// A named event targets its medication directly, bypassing next-due
	// resolution. Matching is case-insensitive but exact.
	if name := strings.TrimSpace(msg.Medication); name != "" {
		for _, med := range e.meds {
			if strings.EqualFold(med.Name, name) {
				medName := med.Name
				e.recordLocked(med, now, now, source)
				e.mu.Unlock()
				e.notifyAsync("Dose recorded", fmt.Sprintf("%s marked as taken %s", medName, source.Label()))
				return
			}
		}
	}

	next := e.next
	if next == nil {
		next = service.ResolveNext(e.meds, now)
	}
	if next == nil {
		e.mu.Unlock()
		e.notifyAsync("Sensor event ignored", "Sensor detected medication, but no scheduled medication was found")
		return
	}

	med, doseAt := next.Medication, next.At

	// With an alert up for this medication the resolution has already
	// rolled past it; the alert still carries the dose being acknowledged.
	if cur := e.alerts.Current(); cur != nil && cur.MedicationID == med.ID {
		doseAt = cur.DoseAt
	}

	if e.alerts.TakeShown(med.ID) {
		e.recordTakenFromSensorLocked(med, doseAt, now, source)
		return
	}

	diff := doseAt.Sub(now)
	if diff < 0 {
		diff = -diff
	}
	if diff <= sensorTolerance {
		e.recordTakenFromSensorLocked(med, doseAt, now, source)
		return
	}

	// Next dose is too far away to auto-confirm; hold for the user.
	e.pending = &PendingConfirmation{
		MedicationID:   med.ID,
		MedicationName: med.Name,
		DoseAt:         doseAt,
		Source:         source,
		CreatedAt:      now,
	}
	e.mu.Unlock()
	e.notifyAsync("Confirm dose",
		fmt.Sprintf("Sensor detected medication taken. Confirm to record %s", med.Name))
}

// recordTakenFromSensorLocked records and releases the lock.
func (e *Engine) recordTakenFromSensorLocked(med *domain.Medication, scheduled, now time.Time, source domain.Source) {
	name := med.Name
	e.recordLocked(med, scheduled, now, source)
	e.mu.Unlock()
	e.notifyAsync("Dose recorded", fmt.Sprintf("%s marked as taken %s", name, source.Label()))
}

// Pending returns the sensor confirmation waiting for the user, or nil.
func (e *Engine) Pending() *PendingConfirmation {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending == nil {
		return nil
	}
	p := *e.pending
	return &p
}

// ConfirmPending records the held sensor dose.
func (e *Engine) ConfirmPending() error {
	e.mu.Lock()

	if e.pending == nil {
		e.mu.Unlock()
		return ErrNoPending
	}

	p := e.pending
	e.pending = nil
	med := e.findLocked(p.MedicationID)
	if med == nil {
		e.mu.Unlock()
		return ErrNoTarget
	}

	name := med.Name
	label := p.Source.Label()
	e.recordLocked(med, p.DoseAt, e.now(), p.Source)
	e.mu.Unlock()

	e.notifyAsync("Dose recorded", fmt.Sprintf("%s marked as taken %s", name, label))
	return nil
}

// DenyPending discards the held sensor dose without recording.
func (e *Engine) DenyPending() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending == nil {
		return ErrNoPending
	}
	e.pending = nil
	return nil
}

// Settings returns the current reminder settings.
func (e *Engine) Settings() storage.Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return storage.Settings{MinReminderDurationSeconds: e.alerts.MinConfigured()}
}

// UpdateSettings changes and persists the minimum reminder duration.
func (e *Engine) UpdateSettings(settings storage.Settings) error {
	if settings.MinReminderDurationSeconds <= 0 {
		return fmt.Errorf("minimum reminder duration must be positive")
	}
	// The until-action setting is the ceiling: anything longer collapses
	// to "stays until acknowledged".
	if settings.MinReminderDurationSeconds > service.UntilActionSeconds {
		settings.MinReminderDurationSeconds = service.UntilActionSeconds
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.alerts.SetMinDuration(settings.MinReminderDurationSeconds)
	if err := e.store.SaveSettings(settings); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// Devices returns the last device list received from the relay.
func (e *Engine) Devices() []domain.Device {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.Device, len(e.devices))
	copy(out, e.devices)
	return out
}

// RelayStatus returns the last relay connection status string.
func (e *Engine) RelayStatus() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.relayStatus
}

func (e *Engine) findLocked(id string) *domain.Medication {
	for _, med := range e.meds {
		if med.ID == id {
			return med
		}
	}
	return nil
}

func (e *Engine) saveLocked() {
	if err := e.store.SaveMedications(e.meds); err != nil {
		// Persistence failure keeps the in-memory session usable.
		log.Printf("Failed to save medications: %v", err)
	}
}
