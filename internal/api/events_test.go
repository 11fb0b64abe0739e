package api

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// readEvent returns the next event name and data line from an SSE stream.
func readEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var name, data string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("reading stream: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if name != "" {
				return name, data
			}
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestEvents_StreamsCurrentValuesThenChanges(t *testing.T) {
	deps := newTestDeps(t)
	srv := httptest.NewServer(NewHandler(deps))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("GET /api/events: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	r := bufio.NewReader(resp.Body)
	for _, want := range eventNames {
		name, data := readEvent(t, r)
		if name != want {
			t.Fatalf("event = %q, want %q", name, want)
		}
		if data == "" {
			t.Errorf("%s event has no data", name)
		}
	}

	if _, err := deps.Settings.Update(settingsPatchTheme("light")); err != nil {
		t.Fatal(err)
	}
	name, data := readEvent(t, r)
	if name != "settings" || !strings.Contains(data, `"theme":"light"`) {
		t.Errorf("event = %s %s", name, data)
	}
}

func TestEventQueue_CoalescesPerName(t *testing.T) {
	q := newEventQueue()
	q.push("settings", map[string]int{"v": 1})
	q.push("entries", []int{1})
	q.push("settings", map[string]int{"v": 2})

	events := q.drain()
	if len(events) != 2 {
		t.Fatalf("drained %d events, want 2", len(events))
	}
	if events[0].name != "entries" || events[1].name != "settings" {
		t.Errorf("order = %s, %s", events[0].name, events[1].name)
	}
	if string(events[1].data) != `{"v":2}` {
		t.Errorf("settings data = %s", events[1].data)
	}
	if len(q.drain()) != 0 {
		t.Error("queue not empty after drain")
	}
}
