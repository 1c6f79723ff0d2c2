package alvlbot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lmittmann/tint"
)

const (
	unregisteredFile = "unregistered.json"
	registeredFile   = "registered.json"
	clientsFile      = "clients.json"
)

// UnregisteredRecord tracks a member who joined but hasn't completed
// registration yet.
type UnregisteredRecord struct {
	Username string    `json:"username"`
	JoinedAt time.Time `json:"joined_at"`
}

// RegisteredRecord tracks a member who completed the registration
// questionnaire.
type RegisteredRecord struct {
	Username     string    `json:"username"`
	Source       string    `json:"source"`
	RegisteredAt time.Time `json:"registered_at"`
}

// ClientRecord tracks a verified paying client.
type ClientRecord struct {
	Username     string    `json:"username"`
	ProjectInfo  string    `json:"project_info"`
	RegisteredAt time.Time `json:"registered_at"`
}

// RecordStore persists the three member tables as flat JSON files
// (object-of-objects keyed by Discord user ID) under a data directory.
//
// Reads treat a missing or corrupt file as an empty table and never fail
// the caller. Writes are serialized behind a mutex, but transitions that
// touch two tables are not atomic: a crash between the two file writes can
// leave a user in both tables. Last writer wins; there is no cross-process
// locking.
type RecordStore struct {
	dir    string
	mu     sync.Mutex
	logger *slog.Logger
}

// NewRecordStore creates the data directory and the three table files
// (empty) if they don't exist yet.
func NewRecordStore(dir string, logger *slog.Logger) (*RecordStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &RecordStore{dir: dir, logger: logger.With(loggerNameKey, "record_store")}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("error creating data dir: %w", err)
	}
	for _, name := range []string{unregisteredFile, registeredFile, clientsFile} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if writeErr := os.WriteFile(path, []byte("{}"), 0o644); writeErr != nil {
				return nil, fmt.Errorf("error creating %s: %w", name, writeErr)
			}
		}
	}
	return s, nil
}

// readTable loads a JSON table, returning an empty mapping on any error.
func readTable[T any](s *RecordStore, name string) map[string]T {
	records := map[string]T{}
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("error reading table, treating as empty",
				"table", name, tint.Err(err),
			)
		}
		return records
	}
	if err = json.Unmarshal(data, &records); err != nil {
		s.logger.Warn("corrupt table, treating as empty",
			"table", name, tint.Err(err),
		)
		return map[string]T{}
	}
	return records
}

// writeTable persists a JSON table with 4-space indentation, leaving
// non-ASCII text unescaped.
func writeTable[T any](s *RecordStore, name string, records map[string]T) error {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("error encoding %s: %w", name, err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, name), buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("error writing %s: %w", name, err)
	}
	return nil
}

func (s *RecordStore) Unregistered() map[string]UnregisteredRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return readTable[UnregisteredRecord](s, unregisteredFile)
}

func (s *RecordStore) Registered() map[string]RegisteredRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return readTable[RegisteredRecord](s, registeredFile)
}

func (s *RecordStore) Clients() map[string]ClientRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return readTable[ClientRecord](s, clientsFile)
}

func (s *RecordStore) WriteUnregistered(records map[string]UnregisteredRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeTable(s, unregisteredFile, records)
}

func (s *RecordStore) WriteRegistered(records map[string]RegisteredRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeTable(s, registeredFile, records)
}

func (s *RecordStore) WriteClients(records map[string]ClientRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeTable(s, clientsFile, records)
}

// AddUnregistered records a freshly joined member.
func (s *RecordStore) AddUnregistered(userID string, record UnregisteredRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := readTable[UnregisteredRecord](s, unregisteredFile)
	records[userID] = record
	return writeTable(s, unregisteredFile, records)
}

// HasRegistered reports whether the user already completed registration
// (either table counts, since clients skip or supersede registration).
func (s *RecordStore) HasRegistered(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := readTable[RegisteredRecord](s, registeredFile)[userID]; ok {
		return true
	}
	_, ok := readTable[ClientRecord](s, clientsFile)[userID]
	return ok
}

// HasClient reports whether the user is already a verified client.
func (s *RecordStore) HasClient(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := readTable[ClientRecord](s, clientsFile)[userID]
	return ok
}

// Register moves a member from the unregistered table to the registered
// table. The two writes are sequential, not atomic; the registered table
// is written first so a crash can't drop the member from both.
func (s *RecordStore) Register(userID string, record RegisteredRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	registered := readTable[RegisteredRecord](s, registeredFile)
	registered[userID] = record
	if err := writeTable(s, registeredFile, registered); err != nil {
		return err
	}

	unregistered := readTable[UnregisteredRecord](s, unregisteredFile)
	if _, ok := unregistered[userID]; ok {
		delete(unregistered, userID)
		if err := writeTable(s, unregisteredFile, unregistered); err != nil {
			return err
		}
	}
	return nil
}

// PromoteClient records a verified client and removes the user from the
// other two tables, so an ID appears in at most one table.
func (s *RecordStore) PromoteClient(userID string, record ClientRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clients := readTable[ClientRecord](s, clientsFile)
	clients[userID] = record
	if err := writeTable(s, clientsFile, clients); err != nil {
		return err
	}

	registered := readTable[RegisteredRecord](s, registeredFile)
	if _, ok := registered[userID]; ok {
		delete(registered, userID)
		if err := writeTable(s, registeredFile, registered); err != nil {
			return err
		}
	}

	unregistered := readTable[UnregisteredRecord](s, unregisteredFile)
	if _, ok := unregistered[userID]; ok {
		delete(unregistered, userID)
		if err := writeTable(s, unregisteredFile, unregistered); err != nil {
			return err
		}
	}
	return nil
}

// TableSizes returns the current record counts, keyed by table name.
// Used by the status API.
func (s *RecordStore) TableSizes() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]int{
		"unregistered": len(readTable[UnregisteredRecord](s, unregisteredFile)),
		"registered":   len(readTable[RegisteredRecord](s, registeredFile)),
		"clients":      len(readTable[ClientRecord](s, clientsFile)),
	}
}
