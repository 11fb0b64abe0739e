package journal

import (
	"fmt"
	"log/slog"
	"sync"
)

// OnboardingState tracks the first-run flow.
type OnboardingState struct {
	Completed   bool `json:"completed"`
	CurrentStep int  `json:"currentStep"`
}

// OnboardingStore persists the completion flag under KeyOnboarding.
// Before Init the state reports completed so nothing flashes the wizard
// while storage is being read.
type OnboardingStore struct {
	storage Storage
	logger  *slog.Logger

	mu    sync.Mutex
	pubMu sync.Mutex
	state OnboardingState

	subs observers[OnboardingState]
}

func NewOnboardingStore(storage Storage, logger *slog.Logger) *OnboardingStore {
	if storage == nil {
		storage = NopStorage{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OnboardingStore{
		storage: storage,
		logger:  logger,
		state:   OnboardingState{Completed: true},
	}
}

// Init loads the persisted flag. Without durable storage there is nothing
// to read, so the in-memory default stands.
func (s *OnboardingStore) Init() {
	if !durable(s.storage) {
		return
	}
	raw, _, err := s.storage.GetItem(KeyOnboarding)
	if err != nil {
		s.logger.Error("failed to read onboarding flag", "key", KeyOnboarding, "error", err)
		return
	}

	s.mu.Lock()
	s.state = OnboardingState{Completed: raw == "true"}
	s.publishLocked()
}

// Complete marks onboarding as done.
func (s *OnboardingStore) Complete() error {
	s.mu.Lock()
	if err := s.storage.SetItem(KeyOnboarding, "true"); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("persisting onboarding flag: %w", err)
	}
	s.state = OnboardingState{Completed: true}
	s.publishLocked()
	return nil
}

// Reset clears the flag so the first-run flow starts over.
func (s *OnboardingStore) Reset() error {
	s.mu.Lock()
	if err := s.storage.RemoveItem(KeyOnboarding); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("removing onboarding flag: %w", err)
	}
	s.state = OnboardingState{}
	s.publishLocked()
	return nil
}

func (s *OnboardingStore) State() OnboardingState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *OnboardingStore) Subscribe(fn func(OnboardingState)) (unsubscribe func()) {
	s.mu.Lock()
	current := s.state
	s.pubMu.Lock()
	s.mu.Unlock()
	defer s.pubMu.Unlock()
	return s.subs.subscribe(fn, current)
}

func (s *OnboardingStore) publishLocked() {
	current := s.state
	s.pubMu.Lock()
	s.mu.Unlock()
	defer s.pubMu.Unlock()
	s.subs.publish(current)
}
