package push

import (
	"context"
	"sync"
)

// Tray keeps shown notifications in memory until they are closed.
type Tray struct {
	mu    sync.Mutex
	items []Notification
}

func NewTray() *Tray {
	return &Tray{}
}

func (t *Tray) Show(_ context.Context, n Notification) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = append(t.items, n)
	return nil
}

// Close removes the notification. Unknown ids are ignored.
func (t *Tray) Close(_ context.Context, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, n := range t.items {
		if n.ID == id {
			t.items = append(t.items[:i:i], t.items[i+1:]...)
			break
		}
	}
	return nil
}

// List returns the open notifications, oldest first.
func (t *Tray) List() []Notification {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Notification, len(t.items))
	copy(out, t.items)
	return out
}

func (t *Tray) Get(id string) (Notification, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, n := range t.items {
		if n.ID == id {
			return n, true
		}
	}
	return Notification{}, false
}
