package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const webhookTimeout = 5 * time.Second

// Webhook forwards notifications to a desktop notifier listening on URL.
type Webhook struct {
	url        string
	httpClient *http.Client
}

func NewWebhook(url string) *Webhook {
	return &Webhook{
		url:        url,
		httpClient: &http.Client{Timeout: webhookTimeout},
	}
}

func (w *Webhook) Show(ctx context.Context, n Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshaling notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting notification: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 200 && res.StatusCode <= 299 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
	return fmt.Errorf("notification failed with status %d: %s", res.StatusCode, string(body))
}

// Close is a no-op; the desktop notifier dismisses on its own.
func (w *Webhook) Close(context.Context, string) error { return nil }

// Fanout shows and closes notifications on every display in order.
type Fanout []Display

func (f Fanout) Show(ctx context.Context, n Notification) error {
	var errs []error
	for _, d := range f {
		if err := d.Show(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return firstErr(errs)
}

func (f Fanout) Close(ctx context.Context, id string) error {
	var errs []error
	for _, d := range f {
		if err := d.Close(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return firstErr(errs)
}

func firstErr(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return errs[0]
}
