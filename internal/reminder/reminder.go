// Package reminder sends the daily check-in notification.
package reminder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kalambet/pulse/internal/journal"
)

const (
	reminderTitle = "Pulse"
	reminderBody  = "How was your day? Log today's check-in."
	reminderURL   = "/"
)

// SettingsSource provides the current reminder preferences.
type SettingsSource interface {
	Get() journal.Settings
}

// EntrySource reports whether today already has an entry.
type EntrySource interface {
	Today() (journal.DailyEntry, bool)
}

// Pusher delivers a raw push payload.
type Pusher interface {
	HandlePush(ctx context.Context, data []byte) error
}

// Scheduler fires at most one reminder per local day, once the configured
// reminder time has passed and today has no entry yet.
type Scheduler struct {
	settings SettingsSource
	entries  EntrySource
	pusher   Pusher
	clock    journal.Clock
	poll     time.Duration
	logger   *slog.Logger

	mu        sync.Mutex
	lastFired string // local date of the last reminder
}

// NewScheduler creates a Scheduler. If pollInterval is <= 0, it defaults
// to one minute. A nil clock uses the wall clock.
func NewScheduler(settings SettingsSource, entries EntrySource, pusher Pusher, clock journal.Clock, pollInterval time.Duration) *Scheduler {
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	if clock == nil {
		clock = wallClock{}
	}
	return &Scheduler{
		settings: settings,
		entries:  entries,
		pusher:   pusher,
		clock:    clock,
		poll:     pollInterval,
		logger:   slog.Default(),
	}
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// Run checks for a due reminder every poll interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.Error("reminder check failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce sends the reminder if one is due. Returns true if it was sent.
func (s *Scheduler) RunOnce(ctx context.Context) (bool, error) {
	now := s.clock.Now()
	today := journal.LocalDate(now)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastFired == today {
		return false, nil
	}

	settings := s.settings.Get()
	if !settings.ReminderEnabled {
		return false, nil
	}
	hour, minute, err := journal.ParseReminderTime(settings.ReminderTime)
	if err != nil {
		return false, err
	}
	due := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if now.Before(due) {
		return false, nil
	}
	if _, ok := s.entries.Today(); ok {
		return false, nil
	}

	data, err := json.Marshal(map[string]string{
		"title": reminderTitle,
		"body":  reminderBody,
		"url":   reminderURL,
	})
	if err != nil {
		return false, fmt.Errorf("encoding reminder: %w", err)
	}
	if err := s.pusher.HandlePush(ctx, data); err != nil {
		return false, fmt.Errorf("sending reminder: %w", err)
	}

	s.lastFired = today
	s.logger.Info("reminder sent", "date", today)
	return true, nil
}
