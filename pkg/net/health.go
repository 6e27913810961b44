package net

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const (
	StatusHealthy = "healthy"
)

// Health is the payload of the service health endpoint.
type Health struct {
	Status   string `json:"status" yaml:"status"`
	ModelRun string `json:"model_run,omitempty" yaml:"modelRun,omitempty"`
}

// CheckResult is one poll of one URL.
type CheckResult struct {
	URL      string        `json:"url" yaml:"url"`
	Healthy  bool          `json:"healthy" yaml:"healthy"`
	ModelRun string        `json:"model_run,omitempty" yaml:"modelRun,omitempty"`
	Latency  time.Duration `json:"latency" yaml:"latency"`
	Error    string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// CheckHealth polls url once.
func CheckHealth(ctx context.Context, client *http.Client, url string) *CheckResult {
	start := time.Now()
	r := &CheckResult{URL: url}

	var h Health
	err := GetJSON(ctx, client, url, &h)
	r.Latency = time.Since(start)

	if err != nil {
		r.Error = err.Error()
		return r
	}
	if h.Status != StatusHealthy {
		r.Error = fmt.Sprintf("status %q", h.Status)
		return r
	}

	r.Healthy = true
	r.ModelRun = h.ModelRun
	return r
}

// Monitor polls every URL immediately and then on each interval until ctx
// is done. Each result is passed to report.
func Monitor(ctx context.Context, client *http.Client, urls []string, interval time.Duration, report func(*CheckResult)) error {
	if len(urls) == 0 {
		return fmt.Errorf("at least one URL required")
	}
	if interval <= 0 {
		return fmt.Errorf("interval must be positive: %v", interval)
	}

	poll := func() {
		for _, u := range urls {
			report(CheckHealth(ctx, client, u))
		}
	}

	slog.Debug("monitor started", "urls", len(urls), "interval", interval)
	poll()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("monitor stopped")
			return nil
		case <-ticker.C:
			poll()
		}
	}
}
