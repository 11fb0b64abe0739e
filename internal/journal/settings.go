package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Theme is the UI colour scheme preference.
type Theme string

const (
	ThemeDark   Theme = "dark"
	ThemeLight  Theme = "light"
	ThemeSystem Theme = "system"
)

// Valid reports whether t is one of the known themes.
func (t Theme) Valid() bool {
	switch t {
	case ThemeDark, ThemeLight, ThemeSystem:
		return true
	}
	return false
}

// ErrInvalidSettings is wrapped by SettingsPatch.Validate failures.
var ErrInvalidSettings = errors.New("invalid settings")

// Settings are the user preferences persisted under KeySettings.
type Settings struct {
	ReminderEnabled bool   `json:"reminderEnabled"`
	ReminderTime    string `json:"reminderTime"` // HH:MM, local time
	Theme           Theme  `json:"theme"`
}

// DefaultSettings returns the settings used before anything is stored.
func DefaultSettings() Settings {
	return Settings{
		ReminderEnabled: false,
		ReminderTime:    "21:00",
		Theme:           ThemeDark,
	}
}

// SettingsPatch is a partial update; nil fields are left unchanged.
type SettingsPatch struct {
	ReminderEnabled *bool   `json:"reminderEnabled,omitempty"`
	ReminderTime    *string `json:"reminderTime,omitempty"`
	Theme           *Theme  `json:"theme,omitempty"`
}

// Validate checks the fields that are set.
func (p SettingsPatch) Validate() error {
	if p.ReminderTime != nil {
		if _, _, err := ParseReminderTime(*p.ReminderTime); err != nil {
			return err
		}
	}
	if p.Theme != nil && !p.Theme.Valid() {
		return fmt.Errorf("%w: unknown theme %q", ErrInvalidSettings, *p.Theme)
	}
	return nil
}

// Apply returns s with the non-nil fields of p merged in.
func (s Settings) Apply(p SettingsPatch) Settings {
	if p.ReminderEnabled != nil {
		s.ReminderEnabled = *p.ReminderEnabled
	}
	if p.ReminderTime != nil {
		s.ReminderTime = *p.ReminderTime
	}
	if p.Theme != nil {
		s.Theme = *p.Theme
	}
	return s
}

// ParseReminderTime splits an HH:MM string into hour and minute.
func ParseReminderTime(v string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", v)
	if err != nil || len(v) != 5 {
		return 0, 0, fmt.Errorf("%w: reminder time %q must be HH:MM", ErrInvalidSettings, v)
	}
	return t.Hour(), t.Minute(), nil
}

// SettingsStore holds the current Settings with write-through persistence.
type SettingsStore struct {
	storage Storage
	logger  *slog.Logger

	mu       sync.Mutex
	pubMu    sync.Mutex
	settings Settings

	subs observers[Settings]
}

func NewSettingsStore(storage Storage, logger *slog.Logger) *SettingsStore {
	if storage == nil {
		storage = NopStorage{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SettingsStore{storage: storage, logger: logger, settings: DefaultSettings()}
}

// Init loads stored settings over the defaults. Fields missing from the
// stored object keep their default value.
func (s *SettingsStore) Init() {
	raw, ok, err := s.storage.GetItem(KeySettings)
	if err != nil {
		s.logger.Error("failed to read settings", "key", KeySettings, "error", err)
		return
	}
	if !ok || raw == "" {
		return
	}

	loaded := DefaultSettings()
	if err := json.Unmarshal([]byte(raw), &loaded); err != nil {
		s.logger.Error("failed to parse settings", "key", KeySettings, "error", err)
		return
	}

	s.mu.Lock()
	s.settings = loaded
	s.publishLocked()
}

func (s *SettingsStore) Get() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// Update merges patch into the current settings and persists the result.
// Callers validate the patch first.
func (s *SettingsStore) Update(patch SettingsPatch) (Settings, error) {
	s.mu.Lock()
	next := s.settings.Apply(patch)

	data, err := json.Marshal(next)
	if err != nil {
		s.mu.Unlock()
		return Settings{}, fmt.Errorf("encoding settings: %w", err)
	}
	if err := s.storage.SetItem(KeySettings, string(data)); err != nil {
		s.mu.Unlock()
		return Settings{}, fmt.Errorf("persisting settings: %w", err)
	}

	s.settings = next
	s.publishLocked()
	return next, nil
}

// Subscribe registers fn and delivers the current settings immediately.
func (s *SettingsStore) Subscribe(fn func(Settings)) (unsubscribe func()) {
	s.mu.Lock()
	current := s.settings
	s.pubMu.Lock()
	s.mu.Unlock()
	defer s.pubMu.Unlock()
	return s.subs.subscribe(fn, current)
}

func (s *SettingsStore) publishLocked() {
	current := s.settings
	s.pubMu.Lock()
	s.mu.Unlock()
	defer s.pubMu.Unlock()
	s.subs.publish(current)
}
