package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mchmarny/dropscore/pkg/auth"
	"github.com/mchmarny/dropscore/pkg/format"
	"github.com/mchmarny/dropscore/pkg/net"
	"github.com/urfave/cli/v3"
)

var (
	urlFlag = &cli.StringSliceFlag{
		Name:  "url",
		Usage: "Health endpoint to poll, repeatable (default: config)",
	}

	intervalFlag = &cli.DurationFlag{
		Name:  "interval",
		Usage: "Time between polls (default: config)",
	}

	timeoutFlag = &cli.DurationFlag{
		Name:  "timeout",
		Usage: "Per-request timeout (default: config)",
	}

	onceFlag = &cli.BoolFlag{
		Name:  "once",
		Usage: "Poll every URL once, print the results and exit",
	}

	monitorCmd = &cli.Command{
		Name:            "monitor",
		HideHelpCommand: true,
		Usage:           "Poll scoring service health endpoints on an interval",
		Action:          cmdMonitor,
		Flags: []cli.Flag{
			urlFlag,
			intervalFlag,
			timeoutFlag,
			onceFlag,
		},
	}
)

func cmdMonitor(ctx context.Context, cmd *cli.Command) error {
	cfg := getConfig(cmd)
	mc := cfg.Config.Monitor

	urls := cmd.StringSlice(urlFlag.Name)
	if len(urls) == 0 {
		urls = mc.URLs
	}
	if len(urls) == 0 {
		return errors.New("no URLs to monitor, use --url or set monitor.urls in config")
	}

	interval := mc.Interval
	if cmd.IsSet(intervalFlag.Name) {
		interval = cmd.Duration(intervalFlag.Name)
	}
	timeout := mc.Timeout
	if cmd.IsSet(timeoutFlag.Name) {
		timeout = cmd.Duration(timeoutFlag.Name)
	}

	token, err := auth.NewStore(cfg.Home).Get()
	if err != nil && !errors.Is(err, auth.ErrNoKey) {
		return fmt.Errorf("reading API key: %w", err)
	}
	client := net.GetOAuthClient(ctx, token, timeout)

	if cmd.Bool(onceFlag.Name) {
		checks := make(format.Checks, 0, len(urls))
		for _, u := range urls {
			checks = append(checks, net.CheckHealth(ctx, client, u))
		}
		return encode(cmd, checks)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("monitoring", "urls", urls, "interval", interval, "timeout", timeout)
	return net.Monitor(ctx, client, urls, interval, logCheck)
}

func logCheck(r *net.CheckResult) {
	if r.Healthy {
		slog.Info("service healthy", "url", r.URL, "model_run", r.ModelRun, "latency", r.Latency)
		return
	}
	slog.Warn("service unhealthy", "url", r.URL, "error", r.Error, "latency", r.Latency)
}
