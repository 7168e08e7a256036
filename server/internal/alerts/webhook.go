package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/healthwatch/healthwatch/pkg/types"
	"github.com/healthwatch/healthwatch/server/internal/config"
)

// Webhook posts alert events to a Slack, Teams or generic HTTP endpoint.
type Webhook struct {
	kind   string
	url    string
	client *retryablehttp.Client
}

// NewWebhooks builds a Webhook per configured target whose URL resolves to
// a non-empty value. Targets with an empty URL are skipped with a warning.
func NewWebhooks(cfgs []config.WebhookConfig) []*Webhook {
	out := make([]*Webhook, 0, len(cfgs))
	for _, c := range cfgs {
		url := c.URL()
		if url == "" {
			slog.Warn("alerts: webhook url is empty, skipping", "type", c.Type, "url_env", c.URLEnv)
			continue
		}
		out = append(out, NewWebhook(c.Type, url))
	}
	return out
}

// NewWebhook returns a Webhook of the given kind (slack | teams | http).
func NewWebhook(kind, url string) *Webhook {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.HTTPClient.Timeout = 10 * time.Second
	client.Logger = slog.Default()
	return &Webhook{kind: kind, url: url, client: client}
}

func (w *Webhook) Name() string { return "webhook:" + w.kind }

// Notify posts ev. Retries on 5xx and connection errors are handled by the
// client; a final non-2xx status is returned as an error.
func (w *Webhook) Notify(ctx context.Context, ev Event) error {
	var payload interface{}
	switch w.kind {
	case "slack":
		payload = slackPayload(ev)
	case "teams":
		payload = teamsPayload(ev)
	default:
		payload = ev
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func slackPayload(ev Event) map[string]string {
	return map[string]string{
		"text": fmt.Sprintf("*%s* %s: %s", severityLabel(ev), ev.Alert.Title, ev.Alert.Message),
	}
}

func teamsPayload(ev Event) map[string]interface{} {
	return map[string]interface{}{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": severityColor(ev),
		"summary":    ev.Alert.Title,
		"title":      fmt.Sprintf("Healthwatch %s: %s", ev.Kind, ev.Alert.Title),
		"text":       ev.Alert.Message,
	}
}

func severityLabel(ev Event) string {
	if ev.Kind == EventResolved {
		return "[RESOLVED]"
	}
	switch ev.Alert.Severity {
	case types.SeverityCritical:
		return "[CRITICAL]"
	case types.SeverityHigh:
		return "[HIGH]"
	case types.SeverityMedium:
		return "[MEDIUM]"
	default:
		return "[LOW]"
	}
}

func severityColor(ev Event) string {
	if ev.Kind == EventResolved {
		return "2EB67D"
	}
	switch ev.Alert.Severity {
	case types.SeverityCritical, types.SeverityHigh:
		return "FF4F6A"
	case types.SeverityMedium:
		return "FFAB40"
	default:
		return "00D4FF"
	}
}
