package tracker

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/medtick/medtick/internal/clients/relay"
	"github.com/medtick/medtick/internal/domain"
	"github.com/medtick/medtick/internal/service"
	"github.com/medtick/medtick/internal/storage"
)

// APIResponse is the envelope for every API reply.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type NextDoseResponse struct {
	MedicationID string    `json:"medication_id"`
	Name         string    `json:"name"`
	Dosage       string    `json:"dosage"`
	At           time.Time `json:"at"`
}

type AlertResponse struct {
	Kind           string    `json:"kind"`
	MedicationID   string    `json:"medication_id"`
	MedicationName string    `json:"medication_name"`
	Dosage         string    `json:"dosage"`
	DoseAt         time.Time `json:"dose_at"`
	ElapsedSeconds int       `json:"elapsed_seconds"`
	CountdownLeft  int       `json:"countdown_left"`
}

type medicationRequest struct {
	Name            string   `json:"name"`
	Dosage          string   `json:"dosage"`
	StartDate       string   `json:"startDate"`
	EndDate         string   `json:"endDate"`
	Schedules       []string `json:"schedules"`
	Color           string   `json:"color"`
	ReminderMinutes int      `json:"reminderMinutes"`
	Active          *bool    `json:"active,omitempty"`
}

// API is the HTTP surface consumed by the web UI.
type API struct {
	engine   *Engine
	relay    *relay.Client
	calendar *service.CalendarService
	username string
	password string
}

func NewAPI(engine *Engine, relayClient *relay.Client, calendar *service.CalendarService, username, password string) *API {
	return &API{
		engine:   engine,
		relay:    relayClient,
		calendar: calendar,
		username: username,
		password: password,
	}
}

// Register wires all API routes. With no credentials configured the API
// stays disabled, mirroring the rest of the best-effort glue.
func (a *API) Register(mux *http.ServeMux) {
	if a.username == "" || a.password == "" {
		return
	}

	mux.HandleFunc("/api/medications", a.basicAuth(a.apiMedications))
	mux.HandleFunc("/api/medication/", a.basicAuth(a.apiMedication))
	mux.HandleFunc("/api/next", a.basicAuth(a.apiNext))
	mux.HandleFunc("/api/stats", a.basicAuth(a.apiStats))
	mux.HandleFunc("/api/alert", a.basicAuth(a.apiAlert))
	mux.HandleFunc("/api/take", a.basicAuth(a.apiTake))
	mux.HandleFunc("/api/snooze", a.basicAuth(a.apiSnooze))
	mux.HandleFunc("/api/dismiss", a.basicAuth(a.apiDismiss))
	mux.HandleFunc("/api/settings", a.basicAuth(a.apiSettings))
	mux.HandleFunc("/api/simulate", a.basicAuth(a.apiSimulate))
	mux.HandleFunc("/api/sensor/pending", a.basicAuth(a.apiSensorPending))
	mux.HandleFunc("/api/sensor/confirm", a.basicAuth(a.apiSensorConfirm))
	mux.HandleFunc("/api/sensor/deny", a.basicAuth(a.apiSensorDeny))
	mux.HandleFunc("/api/devices", a.basicAuth(a.apiDevices))
	mux.HandleFunc("/api/calendar.ics", a.basicAuth(a.apiCalendarICS))
	mux.HandleFunc("/api/calendar/sync", a.basicAuth(a.apiCalendarSync))
}

func (a *API) basicAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok || username != a.username || password != a.password {
			w.Header().Set("WWW-Authenticate", `Basic realm="medtick API"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (a *API) jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(APIResponse{Success: true, Data: data})
}

func (a *API) jsonError(w http.ResponseWriter, err string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{Success: false, Error: err})
}

// GET /api/medications - list medications
// POST /api/medications - add a medication
func (a *API) apiMedications(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.jsonResponse(w, a.engine.Medications())

	case http.MethodPost:
		var req medicationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			a.jsonError(w, "Invalid JSON", http.StatusBadRequest)
			return
		}

		med, err := a.engine.CreateMedication(&domain.Medication{
			Name:            req.Name,
			Dosage:          req.Dosage,
			StartDate:       req.StartDate,
			EndDate:         req.EndDate,
			Schedules:       req.Schedules,
			Color:           req.Color,
			ReminderMinutes: req.ReminderMinutes,
		})
		if err != nil {
			a.jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		a.jsonResponse(w, med)

	default:
		a.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// GET/PUT/DELETE /api/medication/{id}
func (a *API) apiMedication(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/medication/")
	if id == "" {
		a.jsonError(w, "Medication ID required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		for _, med := range a.engine.Medications() {
			if med.ID == id {
				a.jsonResponse(w, med)
				return
			}
		}
		a.jsonError(w, "Medication not found", http.StatusNotFound)

	case http.MethodPut:
		var req medicationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			a.jsonError(w, "Invalid JSON", http.StatusBadRequest)
			return
		}

		active := true
		if req.Active != nil {
			active = *req.Active
		}

		med, err := a.engine.UpdateMedication(id, &domain.Medication{
			Name:            req.Name,
			Dosage:          req.Dosage,
			StartDate:       req.StartDate,
			EndDate:         req.EndDate,
			Schedules:       req.Schedules,
			Color:           req.Color,
			ReminderMinutes: req.ReminderMinutes,
			Active:          active,
		})
		if errors.Is(err, ErrNotFound) {
			a.jsonError(w, "Medication not found", http.StatusNotFound)
			return
		}
		if err != nil {
			a.jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		a.jsonResponse(w, med)

	case http.MethodDelete:
		err := a.engine.DeleteMedication(id)
		if errors.Is(err, ErrNotFound) {
			a.jsonError(w, "Medication not found", http.StatusNotFound)
			return
		}
		if err != nil {
			a.jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		a.jsonResponse(w, map[string]string{"deleted": id})

	default:
		a.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// GET /api/next - the next upcoming dose
func (a *API) apiNext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	next := a.engine.Next()
	if next == nil {
		// "No upcoming medications" is a normal state, not an error.
		a.jsonResponse(w, nil)
		return
	}

	a.jsonResponse(w, NextDoseResponse{
		MedicationID: next.Medication.ID,
		Name:         next.Medication.Name,
		Dosage:       next.Medication.Dosage,
		At:           next.At,
	})
}

// GET /api/stats - adherence statistics
func (a *API) apiStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	a.jsonResponse(w, a.engine.Stats())
}

// GET /api/alert - the currently open alert, if any
func (a *API) apiAlert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	alert := a.engine.Alert()
	if alert == nil {
		a.jsonResponse(w, nil)
		return
	}

	a.jsonResponse(w, AlertResponse{
		Kind:           string(alert.Kind),
		MedicationID:   alert.MedicationID,
		MedicationName: alert.MedicationName,
		Dosage:         alert.Dosage,
		DoseAt:         alert.DoseAt,
		ElapsedSeconds: alert.Elapsed,
		CountdownLeft:  alert.Remaining(),
	})
}

// POST /api/take - record a dose as taken
func (a *API) apiTake(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		MedicationID string `json:"medication_id"`
		Source       string `json:"source"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	source := domain.Source(req.Source)
	if source == "" {
		source = domain.SourceManual
	}

	err := a.engine.TakeMedication(req.MedicationID, source)
	if errors.Is(err, ErrNoTarget) {
		a.jsonError(w, "No medication to record", http.StatusNotFound)
		return
	}
	if err != nil {
		a.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	a.jsonResponse(w, map[string]string{"status": "recorded"})
}

// POST /api/snooze - snooze the open alert
func (a *API) apiSnooze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	err := a.engine.Snooze()
	if errors.Is(err, service.ErrNoAlert) {
		a.jsonError(w, "No alert is open", http.StatusNotFound)
		return
	}
	if err != nil {
		a.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	a.jsonResponse(w, map[string]string{"status": "snoozed"})
}

// POST /api/dismiss - dismiss the open alert without acknowledging
func (a *API) apiDismiss(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	err := a.engine.Dismiss()
	var dwell *service.DwellError
	if errors.As(err, &dwell) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(APIResponse{
			Success: false,
			Error:   dwell.Error(),
			Data:    map[string]int{"remaining_seconds": dwell.RemainingSeconds},
		})
		return
	}
	if errors.Is(err, service.ErrNoAlert) {
		a.jsonError(w, "No alert is open", http.StatusNotFound)
		return
	}
	if err != nil {
		a.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	a.jsonResponse(w, map[string]string{"status": "dismissed"})
}

// GET /api/settings - current reminder settings
// PUT /api/settings - update reminder settings
func (a *API) apiSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.jsonResponse(w, a.engine.Settings())

	case http.MethodPut:
		var settings storage.Settings
		if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
			a.jsonError(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		if err := a.engine.UpdateSettings(settings); err != nil {
			a.jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		a.jsonResponse(w, settings)

	default:
		a.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// POST /api/simulate - fake a sensor event, through the relay when it is
// up so every client sees it, locally otherwise
func (a *API) apiSimulate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Medication string `json:"medication"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	if a.relay != nil && a.relay.Connected() {
		if err := a.relay.Send(domain.Message{
			Kind:       domain.KindSimulation,
			Medication: req.Medication,
		}); err == nil {
			a.jsonResponse(w, map[string]string{"status": "sent"})
			return
		}
	}

	a.engine.HandleMessage(domain.Message{
		Kind:       domain.KindMedicationTaken,
		Medication: req.Medication,
		DeviceID:   "simulation",
		Timestamp:  time.Now().Format(time.RFC3339),
	})
	a.jsonResponse(w, map[string]string{"status": "simulated"})
}

// GET /api/sensor/pending - the sensor dose awaiting confirmation
func (a *API) apiSensorPending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	a.jsonResponse(w, a.engine.Pending())
}

// POST /api/sensor/confirm - record the pending sensor dose
func (a *API) apiSensorConfirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	err := a.engine.ConfirmPending()
	if errors.Is(err, ErrNoPending) {
		a.jsonError(w, "No pending confirmation", http.StatusNotFound)
		return
	}
	if errors.Is(err, ErrNoTarget) {
		a.jsonError(w, "Medication no longer exists", http.StatusNotFound)
		return
	}
	if err != nil {
		a.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	a.jsonResponse(w, map[string]string{"status": "recorded"})
}

// POST /api/sensor/deny - discard the pending sensor dose
func (a *API) apiSensorDeny(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	err := a.engine.DenyPending()
	if errors.Is(err, ErrNoPending) {
		a.jsonError(w, "No pending confirmation", http.StatusNotFound)
		return
	}
	a.jsonResponse(w, map[string]string{"status": "discarded"})
}

// GET /api/devices - hardware devices known to the relay
func (a *API) apiDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	a.jsonResponse(w, map[string]interface{}{
		"relay_status": a.engine.RelayStatus(),
		"devices":      a.engine.Devices(),
	})
}

// GET /api/calendar.ics - dosing schedule as an iCalendar document
func (a *API) apiCalendarICS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if a.calendar == nil {
		a.jsonError(w, "Calendar export not available", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/calendar")
	w.Header().Set("Content-Disposition", `attachment; filename="medications.ics"`)
	if err := a.calendar.WriteICS(w, a.engine.Medications()); err != nil {
		a.jsonError(w, err.Error(), http.StatusInternalServerError)
	}
}

// POST /api/calendar/sync - publish the schedule to CalDAV
func (a *API) apiCalendarSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if a.calendar == nil || !a.calendar.IsConfigured() {
		a.jsonError(w, "CalDAV not configured", http.StatusBadRequest)
		return
	}

	result, err := a.calendar.Publish(a.engine.Medications())
	if err != nil {
		a.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	a.jsonResponse(w, result)
}
