package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/medtick/medtick/internal/domain"

	_ "github.com/mattn/go-sqlite3"
)

// Blob keys. The full medication list and the settings document are each
// stored as one JSON blob under a fixed name.
const (
	keyMedications = "medications"
	keySettings    = "settings"
)

// DefaultMinReminderSeconds is the configured dwell floor used when no
// settings have been saved yet.
const DefaultMinReminderSeconds = 120

// Settings are the user-tunable reminder options.
type Settings struct {
	MinReminderDurationSeconds int `json:"minReminderDurationSeconds"`
}

type Storage struct {
	db *sql.DB
}

func New(dbPath string) (*Storage, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS blobs (
			name TEXT PRIMARY KEY,
			data TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}

func (s *Storage) loadBlob(name string) ([]byte, bool, error) {
	var data string
	err := s.db.QueryRow(`SELECT data FROM blobs WHERE name = ?`, name).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load blob %s: %w", name, err)
	}
	return []byte(data), true, nil
}

func (s *Storage) saveBlob(name string, data []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO blobs (name, data, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(name) DO UPDATE SET data = excluded.data, updated_at = CURRENT_TIMESTAMP`,
		name, string(data))
	if err != nil {
		return fmt.Errorf("save blob %s: %w", name, err)
	}
	return nil
}

// LoadMedications returns the persisted medication list. An absent or
// malformed blob yields an empty list, never an error.
func (s *Storage) LoadMedications() ([]*domain.Medication, error) {
	data, ok, err := s.loadBlob(keyMedications)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []*domain.Medication{}, nil
	}

	var meds []*domain.Medication
	if err := json.Unmarshal(data, &meds); err != nil {
		// Corrupt state is treated as empty, not surfaced to the user.
		return []*domain.Medication{}, nil
	}
	return meds, nil
}

func (s *Storage) SaveMedications(meds []*domain.Medication) error {
	data, err := json.Marshal(meds)
	if err != nil {
		return fmt.Errorf("marshal medications: %w", err)
	}
	return s.saveBlob(keyMedications, data)
}

// LoadSettings returns the persisted settings, falling back to defaults
// when absent or malformed.
func (s *Storage) LoadSettings() (Settings, error) {
	def := Settings{MinReminderDurationSeconds: DefaultMinReminderSeconds}

	data, ok, err := s.loadBlob(keySettings)
	if err != nil {
		return def, err
	}
	if !ok {
		return def, nil
	}

	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return def, nil
	}
	if settings.MinReminderDurationSeconds <= 0 {
		settings.MinReminderDurationSeconds = DefaultMinReminderSeconds
	}
	return settings, nil
}

func (s *Storage) SaveSettings(settings Settings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	return s.saveBlob(keySettings, data)
}
