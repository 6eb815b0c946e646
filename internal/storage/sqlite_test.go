package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/medtick/medtick/internal/domain"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMedicationsRoundTrip(t *testing.T) {
	s := newTestStorage(t)

	meds := []*domain.Medication{
		{
			ID:        "1718000000000",
			Name:      "Aspirin",
			Dosage:    "100mg",
			StartDate: "2026-01-01",
			EndDate:   "2026-12-31",
			Schedules: []string{"09:00", "21:00"},
			Color:     "#ff0000",
			History: []domain.DoseRecord{
				{
					Date:      time.Date(2026, 6, 15, 9, 1, 0, 0, time.UTC),
					Scheduled: time.Date(2026, 6, 15, 9, 0, 0, 0, time.UTC),
					Taken:     true,
					Source:    domain.SourceManual,
				},
			},
			Active: true,
		},
	}

	if err := s.SaveMedications(meds); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.LoadMedications()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("loaded %d medications, want 1", len(got))
	}
	m := got[0]
	if m.ID != "1718000000000" || m.Name != "Aspirin" || len(m.Schedules) != 2 {
		t.Errorf("medication fields lost: %+v", m)
	}
	if len(m.History) != 1 || !m.History[0].Taken || m.History[0].Source != domain.SourceManual {
		t.Errorf("history lost: %+v", m.History)
	}
}

func TestLoadMedicationsAbsent(t *testing.T) {
	s := newTestStorage(t)

	got, err := s.LoadMedications()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("want empty list, got %v", got)
	}
}

func TestLoadMedicationsMalformed(t *testing.T) {
	s := newTestStorage(t)

	if err := s.saveBlob(keyMedications, []byte("{not json")); err != nil {
		t.Fatalf("seed blob: %v", err)
	}

	got, err := s.LoadMedications()
	if err != nil {
		t.Fatalf("malformed blob must not error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("want empty list for malformed blob, got %v", got)
	}
}

func TestSaveMedicationsOverwrites(t *testing.T) {
	s := newTestStorage(t)

	if err := s.SaveMedications([]*domain.Medication{{ID: "1", Name: "A"}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.SaveMedications([]*domain.Medication{{ID: "2", Name: "B"}}); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.LoadMedications()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 1 || got[0].ID != "2" {
		t.Fatalf("want only the second list, got %v", got)
	}
}

func TestSettings(t *testing.T) {
	s := newTestStorage(t)

	t.Run("defaults when absent", func(t *testing.T) {
		got, err := s.LoadSettings()
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if got.MinReminderDurationSeconds != DefaultMinReminderSeconds {
			t.Errorf("min duration = %d, want default %d",
				got.MinReminderDurationSeconds, DefaultMinReminderSeconds)
		}
	})

	t.Run("round trip", func(t *testing.T) {
		if err := s.SaveSettings(Settings{MinReminderDurationSeconds: 600}); err != nil {
			t.Fatalf("save: %v", err)
		}
		got, err := s.LoadSettings()
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if got.MinReminderDurationSeconds != 600 {
			t.Errorf("min duration = %d, want 600", got.MinReminderDurationSeconds)
		}
	})

	t.Run("non-positive value falls back to default", func(t *testing.T) {
		if err := s.saveBlob(keySettings, []byte(`{"minReminderDurationSeconds":0}`)); err != nil {
			t.Fatalf("seed blob: %v", err)
		}
		got, err := s.LoadSettings()
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if got.MinReminderDurationSeconds != DefaultMinReminderSeconds {
			t.Errorf("min duration = %d, want default", got.MinReminderDurationSeconds)
		}
	})
}
