// Package cli implements the dropscore command line and scoring service.
package cli

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mchmarny/dropscore/pkg/config"
	"github.com/mchmarny/dropscore/pkg/data"
	"github.com/mchmarny/dropscore/pkg/format"
	"github.com/mchmarny/dropscore/pkg/logging"
	"github.com/mchmarny/dropscore/pkg/model"
	"github.com/mchmarny/dropscore/pkg/score"
	"github.com/urfave/cli/v3"
)

const (
	appName      = "dropscore"
	appConfigKey = "app-config"
)

var (
	version = "v0.0.1-default"
	commit  = ""
	date    = ""

	debugFlag = &cli.BoolFlag{
		Name:  "debug",
		Usage: "Prints verbose logs (optional, default: false)",
	}

	homeFlag = &cli.StringFlag{
		Name:    "config",
		Usage:   "Path to the config directory (default: $HOME/.dropscore)",
		Sources: cli.EnvVars("DROPSCORE_HOME"),
	}

	dbFilePathFlag = &cli.StringFlag{
		Name:  "db",
		Usage: "Path to the Sqlite database file (default: <config>/data.db)",
	}

	artifactsFlag = &cli.StringFlag{
		Name:    "artifacts",
		Usage:   "Directory holding timestamped model runs (overrides config)",
		Sources: cli.EnvVars("DROPSCORE_ARTIFACTS"),
	}

	ortLibFlag = &cli.StringFlag{
		Name:    "ort-lib",
		Usage:   "Path to the ONNX Runtime shared library (overrides config)",
		Sources: cli.EnvVars("DROPSCORE_ORT_LIB"),
	}

	formatFlag = &cli.StringFlag{
		Name:  "format",
		Usage: "Output format [json, yaml, table]",
		Value: string(format.JSON),
	}
)

// Execute creates and runs the CLI application.
func Execute() {
	logging.SetDefaultCLILogger("info")

	app := newApp()
	if err := app.Run(context.Background(), os.Args); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

type appConfig struct {
	Home   string
	DBPath string
	Debug  bool
	Format format.Format
	Config *config.Config
	DB     *sql.DB

	artifact *model.Artifact
	engine   *score.Engine
}

func getConfig(cmd *cli.Command) *appConfig {
	return cmd.Root().Metadata[appConfigKey].(*appConfig)
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:                  appName,
		Version:               fmt.Sprintf("%s (%s - %s)", version, commit, date),
		EnableShellCompletion: true,
		HideHelpCommand:       true,
		Usage:                 "Dropout risk and deservingness scoring for scholarship applicants",
		Metadata:              map[string]any{},
		Flags: []cli.Flag{
			debugFlag,
			homeFlag,
			dbFilePathFlag,
			artifactsFlag,
			ortLibFlag,
			formatFlag,
		},
		Commands: []*cli.Command{
			scoreCmd,
			batchCmd,
			serverCmd,
			studentsCmd,
			modelCmd,
			authCmd,
			monitorCmd,
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			cfg, err := initApp(cmd)
			if err != nil {
				return ctx, err
			}
			cmd.Root().Metadata[appConfigKey] = cfg
			return ctx, nil
		},
		After: func(_ context.Context, cmd *cli.Command) error {
			if cfg, ok := cmd.Root().Metadata[appConfigKey].(*appConfig); ok {
				cfg.close()
			}
			return nil
		},
	}
}

func initApp(cmd *cli.Command) (*appConfig, error) {
	debug := cmd.Bool(debugFlag.Name)
	if debug {
		logging.SetDefaultCLILogger("debug")
	}

	f, err := format.Parse(cmd.String(formatFlag.Name))
	if err != nil {
		return nil, err
	}

	home := cmd.String(homeFlag.Name)
	if home == "" {
		if home, _, err = config.GetOrCreateHomeDir(appName); err != nil {
			return nil, fmt.Errorf("resolving home dir: %w", err)
		}
	}

	conf, err := config.ReadOrCreate(home)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if v := cmd.String(artifactsFlag.Name); v != "" {
		conf.Artifacts = v
	}
	if v := cmd.String(ortLibFlag.Name); v != "" {
		conf.ORTLibrary = v
	}

	dbPath := cmd.String(dbFilePathFlag.Name)
	if dbPath == "" {
		dbPath = filepath.Join(home, data.DataFileName)
	}

	if err := data.Init(dbPath); err != nil {
		return nil, fmt.Errorf("initializing database: %w", err)
	}

	db, err := data.GetDB(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	slog.Debug("app initialized", "home", home, "db", dbPath, "artifacts", conf.Artifacts)

	return &appConfig{
		Home:   home,
		DBPath: dbPath,
		Debug:  debug,
		Format: f,
		Config: conf,
		DB:     db,
	}, nil
}

// loadEngine reads the latest model run and builds the scoring engine.
// The artifact is loaded once per process.
func (a *appConfig) loadEngine() (*score.Engine, error) {
	if a.engine != nil {
		return a.engine, nil
	}

	start := time.Now()
	art, err := model.Load(a.Config.Artifacts, a.Config.ORTLibrary)
	if err != nil {
		return nil, fmt.Errorf("loading model from %s: %w", a.Config.Artifacts, err)
	}

	eng, err := score.NewEngine(art, art.TopFeatures(a.Config.TopFeatures), a.Config.Scoring())
	if err != nil {
		art.Close()
		return nil, fmt.Errorf("creating engine: %w", err)
	}

	slog.Debug("engine ready", "run", art.Run, "duration", time.Since(start))
	a.artifact = art
	a.engine = eng
	return eng, nil
}

func (a *appConfig) modelRun() string {
	if a.artifact == nil {
		return ""
	}
	return a.artifact.Run
}

func (a *appConfig) close() {
	if a.artifact != nil {
		if err := a.artifact.Close(); err != nil {
			slog.Debug("error closing model", "error", err)
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

func output(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func encode(cmd *cli.Command, v any) error {
	return format.Encode(output(cmd), getConfig(cmd).Format, v)
}
