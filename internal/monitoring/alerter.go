package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/venuewatch/refresh-cli/internal/config"
	"github.com/venuewatch/refresh-cli/internal/model"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRunFailureRate AlertType = "run_failure_rate"
	AlertUnresolvedRate AlertType = "unresolved_rate"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds and
// pushes run summaries and alerts to a webhook. Delivery is fire and
// forget: a webhook outage never fails a run.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// runEvent is the webhook payload for a finished run.
type runEvent struct {
	Event      string            `json:"event"`
	RunID      string            `json:"run_id"`
	Status     model.RunStatus   `json:"status"`
	Summary    *model.RunSummary `json:"summary,omitempty"`
	Error      string            `json:"error,omitempty"`
	FinishedAt time.Time         `json:"finished_at"`
}

// NotifyRunFinished pushes the run's final summary to the webhook. Errors
// are logged and swallowed.
func (a *Alerter) NotifyRunFinished(ctx context.Context, run model.Run) {
	if a.cfg.WebhookURL == "" {
		return
	}

	ev := runEvent{
		Event:      "run_finished",
		RunID:      run.ID,
		Status:     run.Status,
		Summary:    run.Summary,
		Error:      run.Error,
		FinishedAt: time.Now().UTC(),
	}
	if run.FinishedAt != nil {
		ev.FinishedAt = *run.FinishedAt
	}

	if err := a.post(ctx, ev); err != nil {
		zap.L().Warn("monitoring: failed to push run summary",
			zap.String("run_id", run.ID),
			zap.Error(err),
		)
		return
	}
	zap.L().Info("monitoring: run summary pushed",
		zap.String("run_id", run.ID),
		zap.String("status", string(run.Status)),
	)
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	finished := snap.RunsComplete + snap.RunsFailed
	if finished >= 5 && snap.RunFailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertRunFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Run failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
				snap.RunFailRate*100, a.cfg.FailureRateThreshold*100,
				snap.RunsFailed, finished, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.RunFailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.RunsFailed,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	if a.cfg.UnresolvedRateThreshold > 0 && snap.UnresolvedRate > a.cfg.UnresolvedRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertUnresolvedRate,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Unresolved venue rate %.1f%% exceeds threshold %.1f%% (%d of %d attempted in last %dh)",
				snap.UnresolvedRate*100, a.cfg.UnresolvedRateThreshold*100,
				snap.VenuesUnresolved, snap.VenuesAttempted, snap.LookbackHours,
			),
			Details: map[string]any{
				"unresolved_rate": snap.UnresolvedRate,
				"threshold":       a.cfg.UnresolvedRateThreshold,
				"unresolved":      snap.VenuesUnresolved,
				"attempted":       snap.VenuesAttempted,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.post(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// post sends a single JSON payload to the webhook URL.
func (a *Alerter) post(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
