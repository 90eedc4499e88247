// Package alert dispatches human-actionable escalations.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/enrichops/overseer/internal/core/domain"
	"github.com/enrichops/overseer/internal/metrics"
)

// Alert is one escalation handed to operators.
type Alert struct {
	Agent             domain.Agent        `json:"agent"`
	Severity          string              `json:"severity"` // "warning" or "critical"
	Reason            string              `json:"reason"`
	RecommendedAction string              `json:"recommended_action"`
	Details           domain.CheckDetails `json:"details"`
	Timestamp         time.Time           `json:"timestamp"`
}

// Notifier delivers alerts. Delivery guarantees are the collaborator's
// problem, not ours.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// LogNotifier writes alerts to the structured log. Default when no webhook is
// configured.
type LogNotifier struct {
	Log *slog.Logger
}

func (n *LogNotifier) Notify(_ context.Context, a Alert) error {
	n.Log.Error("supervision alert",
		"agent", a.Agent,
		"severity", a.Severity,
		"reason", a.Reason,
		"recommended_action", a.RecommendedAction,
		"dominant_category", a.Details.DominantCategory,
	)
	metrics.AlertsTotal.WithLabelValues(string(a.Agent), a.Reason).Inc()
	return nil
}

// WebhookNotifier POSTs alerts as JSON to a configured endpoint.
type WebhookNotifier struct {
	URL        string
	httpClient *http.Client
	log        *slog.Logger
}

// NewWebhookNotifier creates a webhook notifier.
func NewWebhookNotifier(url string, timeout time.Duration, log *slog.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		URL:        url,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

func (n *WebhookNotifier) Notify(ctx context.Context, a Alert) error {
	metrics.AlertsTotal.WithLabelValues(string(a.Agent), a.Reason).Inc()

	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("alert delivery: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("alert webhook returned http %d", resp.StatusCode)
	}
	n.log.Info("alert delivered", "agent", a.Agent, "severity", a.Severity)
	return nil
}
