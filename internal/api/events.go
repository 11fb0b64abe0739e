package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/kalambet/pulse/internal/journal"
)

const eventsKeepAlive = 30 * time.Second

// Event names in the order pending updates are flushed.
var eventNames = []string{"entries", "derived", "settings", "onboarding"}

// eventQueue keeps the latest payload per event name. Store callbacks
// never block on a slow client; intermediate values are coalesced.
type eventQueue struct {
	mu      sync.Mutex
	pending map[string][]byte
	notify  chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		pending: make(map[string][]byte),
		notify:  make(chan struct{}, 1),
	}
}

func (q *eventQueue) push(name string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	q.mu.Lock()
	q.pending[name] = data
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

type event struct {
	name string
	data []byte
}

func (q *eventQueue) drain() []event {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []event
	for _, name := range eventNames {
		if data, ok := q.pending[name]; ok {
			out = append(out, event{name: name, data: data})
			delete(q.pending, name)
		}
	}
	return out
}

// handleEvents streams store changes as server-sent events. The current
// value of every store is sent first.
func handleEvents(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
			return
		}

		q := newEventQueue()
		unsubs := []func(){
			deps.Entries.Subscribe(func(v []journal.DailyEntry) { q.push("entries", v) }),
			deps.Entries.SubscribeDerived(func(v journal.Derived) { q.push("derived", v) }),
			deps.Settings.Subscribe(func(v journal.Settings) { q.push("settings", v) }),
			deps.Onboarding.Subscribe(func(v journal.OnboardingState) { q.push("onboarding", v) }),
		}
		defer func() {
			for _, unsubscribe := range unsubs {
				unsubscribe()
			}
		}()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		keepAlive := time.NewTicker(eventsKeepAlive)
		defer keepAlive.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-keepAlive.C:
				if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
					return
				}
				flusher.Flush()
			case <-q.notify:
				for _, ev := range q.drain() {
					if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.name, ev.data); err != nil {
						deps.Logger.Debug("event stream closed", "error", err)
						return
					}
				}
				flusher.Flush()
			}
		}
	}
}
