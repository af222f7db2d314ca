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

	"github.com/timewise-games/content-cli/internal/config"
	"github.com/timewise-games/content-cli/internal/model"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertFlaggedRate   AlertType = "flagged_rate"
	AlertEraStarvation AlertType = "era_starvation"
	AlertDLQBacklog    AlertType = "dlq_backlog"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a PoolSnapshot against configured thresholds and sends
// alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *PoolSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if snap.TotalEvents >= 10 && snap.FlaggedRate > a.cfg.FlaggedRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertFlaggedRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Pool flagged rate %.1f%% exceeds threshold %.1f%% (%d flagged / %d total)",
				snap.FlaggedRate*100, a.cfg.FlaggedRateThreshold*100,
				snap.FlaggedEvents, snap.TotalEvents,
			),
			Details: map[string]any{
				"flagged_rate": snap.FlaggedRate,
				"threshold":    a.cfg.FlaggedRateThreshold,
				"flagged":      snap.FlaggedEvents,
				"total":        snap.TotalEvents,
			},
			Timestamp: now,
		})
	}

	if a.cfg.MinUnusedPerBucket > 0 {
		for _, bucket := range model.AllEraBuckets() {
			unused := snap.UnusedByBucket[bucket]
			if unused >= a.cfg.MinUnusedPerBucket {
				continue
			}
			alerts = append(alerts, Alert{
				Type:     AlertEraStarvation,
				Severity: "medium",
				Message: fmt.Sprintf(
					"Era bucket %q has %d unused events, below floor %d",
					bucket, unused, a.cfg.MinUnusedPerBucket,
				),
				Details: map[string]any{
					"bucket": string(bucket),
					"unused": unused,
					"floor":  a.cfg.MinUnusedPerBucket,
				},
				Timestamp: now,
			})
		}
	}

	if a.cfg.DLQDepthThreshold > 0 && snap.DLQDepth > a.cfg.DLQDepthThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertDLQBacklog,
			Severity: "high",
			Message: fmt.Sprintf(
				"%d failed years queued for retry, above threshold %d",
				snap.DLQDepth, a.cfg.DLQDepthThreshold,
			),
			Details: map[string]any{
				"depth":     snap.DLQDepth,
				"threshold": a.cfg.DLQDepthThreshold,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL. Returns the
// number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
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

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
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
