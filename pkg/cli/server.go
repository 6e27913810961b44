package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mchmarny/dropscore/pkg/auth"
	"github.com/mchmarny/dropscore/pkg/logging"
	"github.com/mchmarny/dropscore/pkg/metrics"
	"github.com/mchmarny/dropscore/pkg/score"
	"github.com/urfave/cli/v3"
)

const (
	serverShutdownWaitSeconds = 5
	serverTimeoutSeconds      = 300
	serverMaxHeaderBytes      = 20
	serverMaxBodyBytes        = 32 << 20
)

var (
	portFlag = &cli.IntFlag{
		Name:  "port",
		Usage: "Port on which the server will listen (default: config)",
	}

	hostFlag = &cli.StringFlag{
		Name:  "host",
		Usage: "Address on which the server will listen",
		Value: "127.0.0.1",
	}

	logFormatFlag = &cli.StringFlag{
		Name:  "log-format",
		Usage: "Server log format [text, json] (default: config)",
	}

	noAuthFlag = &cli.BoolFlag{
		Name:  "no-auth",
		Usage: "Serve without API key protection even when a key is configured",
	}

	serverCmd = &cli.Command{
		Name:            "server",
		Aliases:         []string{"serve"},
		HideHelpCommand: true,
		Usage:           "Start the HTTP scoring service",
		Action:          cmdStartServer,
		Flags: []cli.Flag{
			portFlag,
			hostFlag,
			logFormatFlag,
			workersFlag,
			noAuthFlag,
		},
	}
)

// server holds the read-only state shared by every handler.
type server struct {
	db      *sql.DB
	engine  *score.Engine
	run     string
	workers int
	metrics *metrics.Recorder
}

func cmdStartServer(ctx context.Context, cmd *cli.Command) error {
	cfg := getConfig(cmd)

	logFormat := cfg.Config.Server.LogFormat
	if v := cmd.String(logFormatFlag.Name); v != "" {
		logFormat = v
	}
	level := "info"
	if cfg.Debug {
		level = "debug"
	}
	slog.SetDefault(logging.NewServerLogger(os.Stderr, level, logFormat, appName))

	eng, err := cfg.loadEngine()
	if err != nil {
		return err
	}

	workers := cfg.Config.Workers
	if cmd.IsSet(workersFlag.Name) {
		workers = cmd.Int(workersFlag.Name)
	}

	key := ""
	if !cmd.Bool(noAuthFlag.Name) {
		key, err = auth.NewStore(cfg.Home).Get()
		if err != nil && !errors.Is(err, auth.ErrNoKey) {
			return fmt.Errorf("reading API key: %w", err)
		}
	}
	if key == "" {
		slog.Warn("API key not configured, scoring endpoints are unprotected")
	}

	port := cfg.Config.Server.Port
	if cmd.IsSet(portFlag.Name) {
		port = cmd.Int(portFlag.Name)
	}
	address := fmt.Sprintf("%s:%d", cmd.String(hostFlag.Name), port)

	srv := &server{
		db:      cfg.DB,
		engine:  eng,
		run:     cfg.modelRun(),
		workers: workers,
		metrics: metrics.New(),
	}

	s := &http.Server{
		Addr:           address,
		Handler:        makeRouter(srv, key),
		ReadTimeout:    serverTimeoutSeconds * time.Second,
		WriteTimeout:   serverTimeoutSeconds * time.Second,
		MaxHeaderBytes: 1 << serverMaxHeaderBytes,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	slog.Info("server started", "address", fmt.Sprintf("http://%s", address), "model_run", srv.run)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("error starting server: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownWaitSeconds*time.Second)
	defer cancel()

	if err := s.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("error shutting down server", "error", err)
	}
	slog.Info("server stopped")
	return nil
}

func makeRouter(s *server, key string) http.Handler {
	mux := http.NewServeMux()

	protect := func(h http.HandlerFunc) http.Handler {
		return auth.Middleware(key, h)
	}

	handle := func(pattern string, h http.Handler) {
		mux.Handle(pattern, s.instrument(pattern, h))
	}

	// Service
	handle("GET /health", http.HandlerFunc(s.healthHandler))
	mux.Handle("GET /metrics", s.metrics.Handler())

	// Scoring
	handle("POST /predict", protect(s.predictHandler))
	handle("POST /predict/batch", protect(s.batchHandler))

	// Students
	handle("GET /api/students", protect(s.listStudentsHandler))
	handle("POST /api/students", protect(s.createStudentHandler))
	handle("GET /api/students/{id}", protect(s.getStudentHandler))
	handle("DELETE /api/students/{id}", protect(s.deleteStudentHandler))
	handle("POST /api/students/{id}/predict", protect(s.predictStudentHandler))
	handle("GET /api/students/{id}/predictions", protect(s.studentPredictionsHandler))
	handle("GET /api/summary", protect(s.summaryHandler))

	return recoverer(http.MaxBytesHandler(mux, serverMaxBodyBytes))
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *server) instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.metrics.Request(route, sw.status)
		slog.Debug("request", "route", route, "status", sw.status, "duration", time.Since(start))
	})
}

func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				slog.Error("panic serving request", "path", r.URL.Path, "panic", v)
				writeError(w, http.StatusInternalServerError, msgUnexpected)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
