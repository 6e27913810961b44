package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/mchmarny/dropscore/pkg/feature"
)

// Linear is a logistic classifier stored as plain coefficients. Weight keys
// are encoded feature names: numeric columns as is, categorical levels as
// column=level.
type Linear struct {
	Intercept float64            `json:"intercept"`
	Weights   map[string]float64 `json:"weights"`

	names []string
}

// NewLinear builds a classifier from coefficients.
func NewLinear(intercept float64, weights map[string]float64) (*Linear, error) {
	l := &Linear{Intercept: intercept, Weights: weights}
	if err := l.init(nil); err != nil {
		return nil, err
	}
	return l, nil
}

// LoadLinear reads coefficients from path. When features is not empty the
// weight keys must match it exactly.
func LoadLinear(path string, features []string) (*Linear, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrArtifactMissing, path)
		}
		return nil, fmt.Errorf("error reading linear model %s: %w", path, err)
	}

	var l Linear
	if err := json.Unmarshal(b, &l); err != nil {
		return nil, fmt.Errorf("error parsing linear model %s: %w", path, err)
	}

	if err := l.init(features); err != nil {
		return nil, fmt.Errorf("invalid linear model %s: %w", path, err)
	}
	return &l, nil
}

func (l *Linear) init(features []string) error {
	if len(l.Weights) == 0 {
		return errors.New("no weights")
	}

	l.names = make([]string, 0, len(l.Weights))
	for k := range l.Weights {
		l.names = append(l.names, k)
	}
	sort.Strings(l.names)

	if len(features) == 0 {
		return nil
	}
	if len(features) != len(l.names) {
		return fmt.Errorf("model expects %d inputs, metadata lists %d", len(l.names), len(features))
	}
	for _, f := range features {
		if _, ok := l.Weights[f]; !ok {
			return fmt.Errorf("metadata feature %q has no weight", f)
		}
	}
	return nil
}

// Predict returns the logistic probability of dropout for v.
func (l *Linear) Predict(ctx context.Context, v *feature.Vector) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, inferenceErr("predict", err)
	}

	x, err := v.Encode(l.names)
	if err != nil {
		return 0, inferenceErr("encode", err)
	}

	z := l.Intercept
	for i, name := range l.names {
		z += l.Weights[name] * x[i]
	}

	p := 1 / (1 + math.Exp(-z))
	if err := checkProbability(p); err != nil {
		return 0, err
	}
	return p, nil
}

// Close is a no-op.
func (l *Linear) Close() error {
	return nil
}
