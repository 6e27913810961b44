package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mchmarny/dropscore/pkg/format"
	"github.com/mchmarny/dropscore/pkg/model"
	"github.com/mchmarny/dropscore/pkg/net"
	"github.com/urfave/cli/v3"
)

const runLayout = "20060102_150405"

var errRunExists = errors.New("run already exists")

var (
	baseURLFlag = &cli.StringFlag{
		Name:     "url",
		Usage:    "Base URL of a published model run",
		Required: true,
	}

	forceFlag = &cli.BoolFlag{
		Name:  "force",
		Usage: "Replace the run directory if it already exists",
	}

	runFlag = &cli.StringFlag{
		Name:  "run",
		Usage: "Run directory name to download into (default: current UTC timestamp)",
	}

	modelCmd = &cli.Command{
		Name:            "model",
		HideHelpCommand: true,
		Usage:           "Inspect and fetch model artifacts",
		Commands: []*cli.Command{
			{
				Name:   "info",
				Usage:  "Describe the latest model run",
				Action: cmdModelInfo,
			},
			{
				Name:   "pull",
				Usage:  "Download a model run into the artifacts directory",
				Flags:  []cli.Flag{baseURLFlag, runFlag, forceFlag},
				Action: cmdModelPull,
			},
		},
	}
)

func cmdModelInfo(_ context.Context, cmd *cli.Command) error {
	cfg := getConfig(cmd)
	if _, err := cfg.loadEngine(); err != nil {
		return err
	}
	return encode(cmd, format.NewModelInfo(cfg.artifact))
}

func cmdModelPull(ctx context.Context, cmd *cli.Command) error {
	cfg := getConfig(cmd)

	run := cmd.String(runFlag.Name)
	if run == "" {
		run = time.Now().UTC().Format(runLayout)
	}

	p := &puller{
		client: net.GetHTTPClient(cfg.Config.Monitor.Timeout),
		base:   cmd.String(baseURLFlag.Name),
		root:   cfg.Config.Artifacts,
		ortLib: cfg.Config.ORTLibrary,
		force:  cmd.Bool(forceFlag.Name),
	}
	dir, err := p.pull(ctx, run)
	if err != nil {
		return err
	}

	art, err := model.LoadRun(dir, cfg.Config.ORTLibrary)
	if err != nil {
		return fmt.Errorf("loading %s: %w", dir, err)
	}
	defer art.Close()

	return encode(cmd, format.NewModelInfo(art))
}

// puller fetches a published run into the artifacts root. Files land in a
// hidden staging directory that is renamed into place only after the run
// loads, so readers never see a partial run and a failure leaves any
// existing run untouched.
type puller struct {
	client *http.Client
	base   string
	root   string
	ortLib string
	force  bool
}

func (p *puller) pull(ctx context.Context, run string) (string, error) {
	if run == "" || run != filepath.Base(run) || strings.HasPrefix(run, ".") {
		return "", fmt.Errorf("invalid run name %q", run)
	}

	dir := filepath.Join(p.root, run)
	replace := false
	if _, err := os.Stat(dir); err == nil {
		if !p.force {
			return "", fmt.Errorf("%w: %s (use --%s to replace it)", errRunExists, dir, forceFlag.Name)
		}
		replace = true
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("checking %s: %w", dir, err)
	}

	if err := os.MkdirAll(p.root, 0o700); err != nil {
		return "", fmt.Errorf("creating %s: %w", p.root, err)
	}
	stage, err := os.MkdirTemp(p.root, "."+run+"-*")
	if err != nil {
		return "", fmt.Errorf("creating staging dir: %w", err)
	}
	defer os.RemoveAll(stage)

	found, err := p.download(ctx, stage)
	if err != nil {
		return "", err
	}

	art, err := model.LoadRun(stage, p.ortLib)
	if err != nil {
		return "", fmt.Errorf("validating downloaded run: %w", err)
	}
	art.Close()

	if replace {
		old, err := os.MkdirTemp(p.root, "."+run+"-old-*")
		if err != nil {
			return "", fmt.Errorf("creating backup dir: %w", err)
		}
		defer os.RemoveAll(old)
		if err := os.Rename(dir, filepath.Join(old, run)); err != nil {
			return "", fmt.Errorf("moving aside %s: %w", dir, err)
		}
		if err := os.Rename(stage, dir); err != nil {
			if rerr := os.Rename(filepath.Join(old, run), dir); rerr != nil {
				slog.Error("restoring previous run", "dir", dir, "error", rerr)
			}
			return "", fmt.Errorf("installing %s: %w", dir, err)
		}
	} else if err := os.Rename(stage, dir); err != nil {
		return "", fmt.Errorf("installing %s: %w", dir, err)
	}

	slog.Info("model downloaded", "run", run, "dir", dir, "files", found+1, "replaced", replace)
	return dir, nil
}

// download writes the metadata and whichever classifier files the source
// publishes into dir and returns the number of classifier files.
func (p *puller) download(ctx context.Context, dir string) (int, error) {
	base := strings.TrimSuffix(p.base, "/")
	if err := net.Download(ctx, p.client, base+"/"+model.MetadataFile, filepath.Join(dir, model.MetadataFile)); err != nil {
		return 0, fmt.Errorf("downloading %s: %w", model.MetadataFile, err)
	}

	found := 0
	for _, name := range []string{model.ONNXFile, model.LinearFile} {
		err := net.Download(ctx, p.client, base+"/"+name, filepath.Join(dir, name))
		if errors.Is(err, net.ErrorURLNotFound) {
			slog.Debug("classifier not published", "file", name)
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("downloading %s: %w", name, err)
		}
		found++
	}
	if found == 0 {
		return 0, fmt.Errorf("%w: no classifier at %s", model.ErrArtifactMissing, base)
	}
	return found, nil
}
