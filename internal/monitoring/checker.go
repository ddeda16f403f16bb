package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/venuewatch/refresh-cli/internal/config"
)

// Checker watches recent refresh runs in the background and raises alerts
// when the run failure rate or the venue unresolved rate drifts past its
// threshold. It reads from the same Collector the HTTP surface uses, so the
// numbers in an alert always match what /healthz shows.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig
}

func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
	}
}

// Run sweeps refresh health on the configured interval until ctx is
// cancelled. The first sweep happens immediately so a restarted server
// reports on runs that finished while it was down.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	log := zap.L().With(zap.String("component", "refresh.health"))
	log.Info("watching refresh health",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.sweep(ctx, log)

	for {
		select {
		case <-ctx.Done():
			log.Info("refresh health watcher stopped")
			return
		case <-ticker.C:
			c.sweep(ctx, log)
		}
	}
}

func (c *Checker) sweep(ctx context.Context, log *zap.Logger) {
	snap, err := c.collector.Collect(ctx, c.cfg.LookbackWindowHours)
	if err != nil {
		log.Error("refresh health sweep failed", zap.Error(err))
		return
	}

	alerts := c.alerter.Evaluate(snap)
	if len(alerts) == 0 {
		log.Debug("refresh health nominal",
			zap.Float64("run_fail_rate", snap.RunFailRate),
			zap.Float64("unresolved_rate", snap.UnresolvedRate),
		)
		return
	}

	sent := c.alerter.SendAlerts(ctx, alerts)
	log.Warn("refresh health degraded",
		zap.Int("alerts_triggered", len(alerts)),
		zap.Int("alerts_sent", sent),
		zap.Float64("run_fail_rate", snap.RunFailRate),
		zap.Float64("unresolved_rate", snap.UnresolvedRate),
	)
}
