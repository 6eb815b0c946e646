package tracker

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/medtick/medtick/internal/domain"
)

func newTestAPI(t *testing.T, store *memStore) (*Engine, *httptest.Server) {
	t.Helper()
	e := newTestEngine(t, store)

	mux := http.NewServeMux()
	NewAPI(e, nil, nil, "admin", "secret").Register(mux)

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return e, ts
}

func request(t *testing.T, ts *httptest.Server, method, path string, body interface{}) (*http.Response, APIResponse) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, ts.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.SetBasicAuth("admin", "secret")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var envelope APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, envelope
}

func TestAPIAuthRequired(t *testing.T) {
	_, ts := newTestAPI(t, newMemStore())

	resp, err := http.Get(ts.URL + "/api/medications")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/medications", nil)
	req.SetBasicAuth("admin", "wrong")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 for bad password", resp.StatusCode)
	}
}

func TestAPIMedicationCRUD(t *testing.T) {
	_, ts := newTestAPI(t, newMemStore())

	resp, envelope := request(t, ts, http.MethodPost, "/api/medications", map[string]interface{}{
		"name":      "Aspirin",
		"dosage":    "100mg",
		"startDate": "2026-01-01",
		"endDate":   "2026-12-31",
		"schedules": []string{"09:00"},
	})
	if resp.StatusCode != http.StatusOK || !envelope.Success {
		t.Fatalf("create failed: %d %s", resp.StatusCode, envelope.Error)
	}

	var created domain.Medication
	raw, _ := json.Marshal(envelope.Data)
	if err := json.Unmarshal(raw, &created); err != nil {
		t.Fatalf("decode created: %v", err)
	}
	if created.ID == "" || !created.Active {
		t.Fatalf("created = %+v", created)
	}

	_, envelope = request(t, ts, http.MethodGet, "/api/medications", nil)
	var list []domain.Medication
	raw, _ = json.Marshal(envelope.Data)
	json.Unmarshal(raw, &list)
	if len(list) != 1 || list[0].Name != "Aspirin" {
		t.Fatalf("list = %+v", list)
	}

	resp, envelope = request(t, ts, http.MethodPut, "/api/medication/"+created.ID, map[string]interface{}{
		"name":      "Aspirin Forte",
		"dosage":    "200mg",
		"startDate": "2026-01-01",
		"endDate":   "2026-12-31",
		"schedules": []string{"10:00"},
	})
	if resp.StatusCode != http.StatusOK || !envelope.Success {
		t.Fatalf("update failed: %d %s", resp.StatusCode, envelope.Error)
	}

	resp, _ = request(t, ts, http.MethodDelete, "/api/medication/"+created.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete failed: %d", resp.StatusCode)
	}

	resp, _ = request(t, ts, http.MethodDelete, "/api/medication/"+created.ID, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", resp.StatusCode)
	}
}

func TestAPICreateValidation(t *testing.T) {
	_, ts := newTestAPI(t, newMemStore())

	resp, envelope := request(t, ts, http.MethodPost, "/api/medications", map[string]interface{}{
		"name": "No Schedules",
	})
	if resp.StatusCode != http.StatusBadRequest || envelope.Success {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestAPIDismissDwellRejected(t *testing.T) {
	store := newMemStore()
	store.meds = []*domain.Medication{testMed("1", "Aspirin", "09:00")}
	e, ts := newTestAPI(t, store)

	e.driveTo(clock(8, 50, 0), clock(8, 58, 0))
	if e.Alert() == nil {
		t.Fatal("expected open alert")
	}

	resp, envelope := request(t, ts, http.MethodPost, "/api/dismiss", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409 while dwell time remains", resp.StatusCode)
	}
	if envelope.Success {
		t.Error("dismiss reported success")
	}
	if e.Alert() == nil {
		t.Error("alert closed despite rejection")
	}
}

func TestAPITakeAndStats(t *testing.T) {
	store := newMemStore()
	store.meds = []*domain.Medication{testMed("1", "Aspirin", "09:00")}
	e, ts := newTestAPI(t, store)

	e.now = func() time.Time { return clock(8, 55, 0) }
	e.Tick()

	resp, _ := request(t, ts, http.MethodPost, "/api/take", map[string]string{"medication_id": "1"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("take status = %d", resp.StatusCode)
	}

	_, envelope := request(t, ts, http.MethodGet, "/api/stats", nil)
	var stats struct {
		TakenToday int `json:"taken_today"`
		TotalToday int `json:"total_today"`
	}
	raw, _ := json.Marshal(envelope.Data)
	json.Unmarshal(raw, &stats)
	if stats.TakenToday != 1 || stats.TotalToday != 1 {
		t.Fatalf("stats = %+v, want 1/1", stats)
	}
}

func TestAPISnoozeWithoutAlert(t *testing.T) {
	_, ts := newTestAPI(t, newMemStore())

	resp, _ := request(t, ts, http.MethodPost, "/api/snooze", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestAPIDisabledWithoutCredentials(t *testing.T) {
	e := newTestEngine(t, newMemStore())
	mux := http.NewServeMux()
	NewAPI(e, nil, nil, "", "").Register(mux)

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/api/medications")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 when API is disabled", resp.StatusCode)
	}
}
