package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"text/template"

	"github.com/manav03panchal/tabula/internal/errors"
	"github.com/manav03panchal/tabula/internal/logging"
)

// Webhook posts every event to an HTTP endpoint, as JSON or through a
// text/template.
type Webhook struct {
	url    string
	tmpl   *template.Template
	client *HTTPClient
}

// NewWebhook creates a webhook notifier. An empty tmpl posts the event as
// JSON.
func NewWebhook(url, tmpl string, client *HTTPClient) (*Webhook, error) {
	if url == "" {
		return nil, errors.ValidationField("url", "webhook url is required", nil)
	}
	if client == nil {
		client = DefaultHTTPClient()
	}
	w := &Webhook{url: url, client: client}
	if tmpl != "" {
		t, err := template.New("webhook").Parse(tmpl)
		if err != nil {
			return nil, errors.ValidationField("template", "invalid webhook template", err)
		}
		w.tmpl = t
	}
	return w, nil
}

// Format renders the request body for e.
func (w *Webhook) Format(e Event) ([]byte, error) {
	if w.tmpl == nil {
		return json.Marshal(e)
	}
	var buf bytes.Buffer
	if err := w.tmpl.Execute(&buf, e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ContentType returns the content type of formatted bodies.
func (w *Webhook) ContentType() string {
	if w.tmpl == nil {
		return "application/json"
	}
	return "text/plain; charset=utf-8"
}

// Notify implements Notifier.
func (w *Webhook) Notify(ctx context.Context, e Event) error {
	body, err := w.Format(e)
	if err != nil {
		return fmt.Errorf("failed to format event: %w", err)
	}
	result := w.client.Send(ctx, w.url, w.ContentType(), body)
	logging.DebugContext(ctx, "webhook delivered",
		logging.KeyTable, e.TableID,
		"status", result.StatusCode,
		"attempts", result.Attempts,
		logging.KeyDuration, result.Duration.Milliseconds(),
		logging.KeyError, result.Error)
	return result.Error
}
