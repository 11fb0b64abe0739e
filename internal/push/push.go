// Package push turns push payloads into notifications and routes
// notification clicks.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultTitle = "Pulse"
	DefaultURL   = "/"

	ActionOpen    = "open"
	ActionDismiss = "dismiss"

	iconPath = "/icon-192.png"
)

// Payload is the inbound push message. Every field is optional.
type Payload struct {
	Title *string `json:"title"`
	Body  *string `json:"body"`
	URL   *string `json:"url"`
}

type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

type Data struct {
	URL string `json:"url"`
}

// Notification is a displayed reminder.
type Notification struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	Body    string    `json:"body"`
	Icon    string    `json:"icon"`
	Badge   string    `json:"badge"`
	Vibrate []int     `json:"vibrate"`
	Data    Data      `json:"data"`
	Actions []Action  `json:"actions"`
	ShownAt time.Time `json:"shownAt"`
}

// Display shows and closes notifications.
type Display interface {
	Show(ctx context.Context, n Notification) error
	Close(ctx context.Context, id string) error
}

// Clients opens app windows.
type Clients interface {
	OpenWindow(ctx context.Context, url string) error
}

// Handler reacts to push messages and notification clicks.
type Handler struct {
	display Display
	logger  *slog.Logger
	now     func() time.Time
}

func NewHandler(display Display, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{display: display, logger: logger, now: time.Now}
}

// NewNotification builds the notification for p with defaults applied.
func NewNotification(p Payload, now time.Time) Notification {
	n := Notification{
		ID:      uuid.New().String(),
		Title:   DefaultTitle,
		Icon:    iconPath,
		Badge:   iconPath,
		Vibrate: []int{100, 50, 100},
		Data:    Data{URL: DefaultURL},
		Actions: []Action{
			{Action: ActionOpen, Title: "Open Pulse"},
			{Action: ActionDismiss, Title: "Dismiss"},
		},
		ShownAt: now,
	}
	if p.Title != nil && *p.Title != "" {
		n.Title = *p.Title
	}
	if p.Body != nil {
		n.Body = *p.Body
	}
	if p.URL != nil && *p.URL != "" {
		n.Data.URL = *p.URL
	}
	return n
}

// HandlePush shows a notification for data. Empty data and data that is
// not a JSON object are ignored.
func (h *Handler) HandlePush(ctx context.Context, data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		h.logger.Debug("ignoring malformed push payload", "error", err)
		return nil
	}

	n := NewNotification(p, h.now())
	if err := h.display.Show(ctx, n); err != nil {
		return fmt.Errorf("showing notification: %w", err)
	}
	h.logger.Info("notification shown", "id", n.ID, "title", n.Title)
	return nil
}

// HandleClick closes n and, unless the dismiss action was chosen, opens
// the notification's URL.
func (h *Handler) HandleClick(ctx context.Context, n Notification, action string, clients Clients) error {
	if err := h.display.Close(ctx, n.ID); err != nil {
		return fmt.Errorf("closing notification: %w", err)
	}
	if action == ActionDismiss {
		return nil
	}

	url := n.Data.URL
	if url == "" {
		url = DefaultURL
	}
	if err := clients.OpenWindow(ctx, url); err != nil {
		return fmt.Errorf("opening %s: %w", url, err)
	}
	return nil
}
