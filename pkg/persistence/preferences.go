package persistence

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// StateVersion is the current version of the preferences file format.
const StateVersion = 1

// Preferences is the content of a preferences file.
type Preferences struct {
	Version int       `json:"version"`
	SavedAt time.Time `json:"saved_at"`

	// DeviceTokens maps an application id to its last registered token.
	DeviceTokens map[string]string `json:"device_tokens,omitempty"`
}

// PreferencesStore manages persistence of preferences to a JSON file.
type PreferencesStore struct {
	mu   sync.Mutex
	path string
}

// NewPreferencesStore creates a new preferences store.
func NewPreferencesStore(path string) *PreferencesStore {
	return &PreferencesStore{path: path}
}

// Path returns the file path.
func (s *PreferencesStore) Path() string { return s.path }

// Save persists the preferences to disk.
func (s *PreferencesStore) Save(prefs *Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(prefs)
}

func (s *PreferencesStore) save(prefs *Preferences) error {
	// Ensure parent directory exists
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	prefs.Version = StateVersion
	prefs.SavedAt = time.Now()

	data, err := json.MarshalIndent(prefs, "", "  ")
	if err != nil {
		return err
	}

	// Write through a temp file so a crash never leaves a torn file.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Load reads the preferences from disk.
// Returns nil, nil if the file doesn't exist (empty preferences).
func (s *PreferencesStore) Load() (*Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *PreferencesStore) load() (*Preferences, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	prefs := &Preferences{}
	if err := json.Unmarshal(data, prefs); err != nil {
		return nil, err
	}
	return prefs, nil
}

// Clear removes the preferences file.
func (s *PreferencesStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// LoadDeviceToken returns the token stored for appID, or "".
func (s *PreferencesStore) LoadDeviceToken(appID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefs, err := s.load()
	if err != nil || prefs == nil {
		return "", err
	}
	return prefs.DeviceTokens[appID], nil
}

// SaveDeviceToken stores token for appID, keeping the other entries.
func (s *PreferencesStore) SaveDeviceToken(appID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefs, err := s.load()
	if err != nil {
		return err
	}
	if prefs == nil {
		prefs = &Preferences{}
	}
	if prefs.DeviceTokens == nil {
		prefs.DeviceTokens = make(map[string]string)
	}
	prefs.DeviceTokens[appID] = token
	return s.save(prefs)
}

// MemoryStore keeps device tokens in memory.
type MemoryStore struct {
	mu     sync.Mutex
	tokens map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string]string)}
}

// LoadDeviceToken returns the token stored for appID, or "".
func (s *MemoryStore) LoadDeviceToken(appID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens[appID], nil
}

// SaveDeviceToken stores token for appID.
func (s *MemoryStore) SaveDeviceToken(appID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[appID] = token
	return nil
}
