package binding

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"qrmark-backend/fingerprint"
)

// RegistrationStatus is the lifecycle state of a registration record.
type RegistrationStatus string

const (
	StatusPreRegistered RegistrationStatus = "pre_registered"
	StatusCompleted     RegistrationStatus = "completed"
)

// RegistrationRecord persists a pre-registered binding until the bound
// QR/document pair is actually produced. Records past ExpiresAt are
// reaped by CleanupExpired; nothing else may delete or mutate a record
// except the completion transition.
type RegistrationRecord struct {
	RegistrationID string                   `json:"registration_id"`
	Fingerprint    *fingerprint.Fingerprint `json:"fingerprint"`
	PayloadData    string                   `json:"payload_data"`
	BindingToken   string                   `json:"binding_token"`
	Status         RegistrationStatus       `json:"status"`
	CreatedAt      int64                    `json:"created_at"`
	ExpiresAt      int64                    `json:"expires_at"`
}

// Store keeps registration records as one JSON file per fingerprint id.
type Store struct {
	dir string
	mu  sync.RWMutex
	log *logrus.Logger
}

func NewStore(dir string, log *logrus.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %v", err)
	}
	return &Store{dir: dir, log: log}, nil
}

// Save writes a record keyed by its fingerprint id, assigning a
// registration id when missing.
func (s *Store) Save(rec *RegistrationRecord) error {
	if rec.Fingerprint == nil || rec.Fingerprint.FingerprintID == "" {
		return fmt.Errorf("record has no fingerprint id")
	}
	if rec.RegistrationID == "" {
		rec.RegistrationID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize record: %v", err)
	}
	if err := os.WriteFile(s.recordPath(rec.Fingerprint.FingerprintID), data, 0o644); err != nil {
		return fmt.Errorf("failed to write record: %v", err)
	}
	s.log.WithField("fingerprint_id", rec.Fingerprint.FingerprintID).Info("saved registration record")
	return nil
}

// Load finds a record by fingerprint id or by the registration id
// assigned at save time. The fingerprint id is the file key and resolves
// with a direct read; a registration id falls back to a directory scan.
func (s *Store) Load(id string) (*RegistrationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := s.loadLocked(id)
	if err == nil || !errors.Is(err, ErrRecordNotFound) {
		return rec, err
	}
	return s.scanLocked(id)
}

func (s *Store) scanLocked(registrationID string) (*RegistrationRecord, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list storage dir: %v", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			s.log.WithError(err).WithField("file", entry.Name()).Warn("skipping unreadable record")
			continue
		}
		var rec RegistrationRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			s.log.WithError(err).WithField("file", entry.Name()).Warn("skipping corrupt record")
			continue
		}
		if rec.RegistrationID == registrationID {
			return &rec, nil
		}
	}
	return nil, ErrRecordNotFound
}

// Complete transitions a record from pre_registered to completed. Any
// other transition is rejected.
func (s *Store) Complete(fingerprintID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.loadLocked(fingerprintID)
	if err != nil {
		return err
	}
	if rec.Status != StatusPreRegistered {
		return fmt.Errorf("record %s is %s, only pre_registered records can complete",
			fingerprintID, rec.Status)
	}
	rec.Status = StatusCompleted

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize record: %v", err)
	}
	if err := os.WriteFile(s.recordPath(fingerprintID), data, 0o644); err != nil {
		return fmt.Errorf("failed to write record: %v", err)
	}
	s.log.WithField("fingerprint_id", fingerprintID).Info("registration completed")
	return nil
}

// CleanupExpired removes records whose expiry passed and returns how
// many were removed.
func (s *Store) CleanupExpired(now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to list storage dir: %v", err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			s.log.WithError(err).WithField("file", entry.Name()).Warn("skipping unreadable record")
			continue
		}
		var rec RegistrationRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			s.log.WithError(err).WithField("file", entry.Name()).Warn("skipping corrupt record")
			continue
		}
		if rec.ExpiresAt < now.Unix() {
			if err := os.Remove(path); err != nil {
				s.log.WithError(err).WithField("file", entry.Name()).Warn("failed to remove expired record")
				continue
			}
			removed++
		}
	}
	if removed > 0 {
		s.log.WithField("removed", removed).Info("cleaned up expired registration records")
	}
	return removed, nil
}

func (s *Store) loadLocked(fingerprintID string) (*RegistrationRecord, error) {
	data, err := os.ReadFile(s.recordPath(fingerprintID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to read record: %v", err)
	}
	var rec RegistrationRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse record: %v", err)
	}
	return &rec, nil
}

func (s *Store) recordPath(fingerprintID string) string {
	return filepath.Join(s.dir, fingerprintID+".json")
}
