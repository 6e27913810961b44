package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mchmarny/dropscore/pkg/feature"
)

// Artifact is a loaded training run: its metadata and classifier. It is
// read-only after Load and safe to share.
type Artifact struct {
	Run        string
	Dir        string
	Meta       *Metadata
	Classifier Classifier
}

// LatestRun returns the lexicographically last run directory under root.
// Run directories are named by timestamp so this is the most recent run.
// Hidden directories hold in-progress downloads and are skipped.
func LatestRun(root string) (string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: artifact root %s", ErrArtifactMissing, root)
		}
		return "", fmt.Errorf("error reading artifact root %s: %w", root, err)
	}

	runs := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			runs = append(runs, e.Name())
		}
	}
	if len(runs) == 0 {
		return "", fmt.Errorf("%w: no runs in %s", ErrArtifactMissing, root)
	}

	sort.Strings(runs)
	return runs[len(runs)-1], nil
}

// Load reads the latest run under root. The ONNX graph is preferred over the
// linear coefficients when both are present. ortLib is only used for ONNX.
func Load(root, ortLib string) (*Artifact, error) {
	run, err := LatestRun(root)
	if err != nil {
		return nil, err
	}
	return LoadRun(filepath.Join(root, run), ortLib)
}

// LoadRun reads a specific run directory.
func LoadRun(dir, ortLib string) (*Artifact, error) {
	meta, err := ReadMetadata(filepath.Join(dir, MetadataFile))
	if err != nil {
		return nil, err
	}

	a := &Artifact{
		Run:  filepath.Base(dir),
		Dir:  dir,
		Meta: meta,
	}

	onnxPath := filepath.Join(dir, ONNXFile)
	linearPath := filepath.Join(dir, LinearFile)

	switch {
	case exists(onnxPath):
		m, err := NewONNX(onnxPath, ortLib, meta)
		if err != nil {
			return nil, fmt.Errorf("error loading %s: %w", onnxPath, err)
		}
		a.Classifier = m
	case exists(linearPath):
		m, err := LoadLinear(linearPath, meta.InputFeatures)
		if err != nil {
			return nil, err
		}
		a.Classifier = m
	default:
		return nil, fmt.Errorf("%w: no %s or %s in %s", ErrArtifactMissing, ONNXFile, LinearFile, dir)
	}

	slog.Debug("model loaded",
		"run", a.Run,
		"classifier", fmt.Sprintf("%T", a.Classifier),
		"features", len(meta.InputFeatures),
		"importances", len(meta.Importances))

	return a, nil
}

// Predict delegates to the classifier.
func (a *Artifact) Predict(ctx context.Context, v *feature.Vector) (float64, error) {
	return a.Classifier.Predict(ctx, v)
}

// TopFeatures returns up to n globally most important features.
func (a *Artifact) TopFeatures(n int) []string {
	return a.Meta.TopFeatures(n)
}

// Close releases the classifier.
func (a *Artifact) Close() error {
	if a == nil || a.Classifier == nil {
		return nil
	}
	return a.Classifier.Close()
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
