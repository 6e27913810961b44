// Package score blends the rule and model probabilities, assigns the risk
// tier and assembles the explanation for single records and batches.
package score

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"time"

	"github.com/mchmarny/dropscore/pkg/feature"
	"github.com/mchmarny/dropscore/pkg/record"
	"github.com/mchmarny/dropscore/pkg/rules"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultTopFeatures  = 6
	DefaultModelTimeout = 10 * time.Second
)

// ErrModelInference wraps every classifier failure, including timeouts.
var ErrModelInference = errors.New("model prediction failed")

// Predictor is the classifier contract: probability of dropout for v.
type Predictor interface {
	Predict(ctx context.Context, v *feature.Vector) (float64, error)
}

// Config controls scoring. The same value is used by every path.
type Config struct {
	Rules        rules.Config
	Thresholds   Thresholds
	TopFeatures  int
	ModelTimeout time.Duration
}

// DefaultConfig returns the production scoring config.
func DefaultConfig() Config {
	return Config{
		Rules:        rules.DefaultConfig(),
		Thresholds:   DefaultThresholds(),
		TopFeatures:  DefaultTopFeatures,
		ModelTimeout: DefaultModelTimeout,
	}
}

// Validate checks the nested configs.
func (c Config) Validate() error {
	if err := c.Rules.Validate(); err != nil {
		return fmt.Errorf("invalid rules: %w", err)
	}
	if err := c.Thresholds.Validate(); err != nil {
		return err
	}
	if c.TopFeatures < 0 {
		return fmt.Errorf("top features must not be negative: %d", c.TopFeatures)
	}
	if c.ModelTimeout < 0 {
		return fmt.Errorf("model timeout must not be negative: %v", c.ModelTimeout)
	}
	return nil
}

// Engine scores records. It holds no mutable state and is safe for
// concurrent use.
type Engine struct {
	predictor Predictor
	top       []string
	cfg       Config
}

// NewEngine builds an engine around predictor. ranking is the global
// feature-importance order from the model metadata; it is truncated to
// cfg.TopFeatures.
func NewEngine(predictor Predictor, ranking []string, cfg Config) (*Engine, error) {
	if predictor == nil {
		return nil, errors.New("predictor required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	n := min(cfg.TopFeatures, len(ranking))
	return &Engine{
		predictor: predictor,
		top:       append([]string{}, ranking[:n]...),
		cfg:       cfg,
	}, nil
}

// Config returns the engine config.
func (e *Engine) Config() Config {
	return e.cfg
}

// Score derives the features of r and scores them.
func (e *Engine) Score(ctx context.Context, r record.Raw) (*Result, error) {
	return e.ScoreVector(ctx, feature.Derive(r))
}

// ScoreVector runs the rule estimator and the classifier on v and blends
// the two probabilities.
func (e *Engine) ScoreVector(ctx context.Context, v *feature.Vector) (*Result, error) {
	contributions, ruleP := rules.Estimate(v, e.cfg.Rules)

	modelP, err := e.predict(ctx, v)
	if err != nil {
		return nil, err
	}

	blended := Blend(modelP, ruleP)

	return &Result{
		RuleProbability:    ruleP,
		ModelProbability:   modelP,
		BlendedProbability: blended,
		Deservingness:      Deservingness(blended),
		Tier:               e.cfg.Thresholds.TierFor(blended),
		Contributions:      contributions,
		TopFeatures:        append([]string{}, e.top...),
	}, nil
}

type prediction struct {
	p   float64
	err error
}

func (e *Engine) predict(ctx context.Context, v *feature.Vector) (float64, error) {
	if e.cfg.ModelTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.ModelTimeout)
		defer cancel()
	}

	// buffered so the goroutine can finish after a timeout
	ch := make(chan prediction, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- prediction{err: fmt.Errorf("classifier panic: %v", r)}
			}
		}()
		p, err := e.predictor.Predict(ctx, v)
		ch <- prediction{p: p, err: err}
	}()

	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%w: %w", ErrModelInference, ctx.Err())
	case out := <-ch:
		if out.err != nil {
			return 0, fmt.Errorf("%w: %w", ErrModelInference, out.err)
		}
		if math.IsNaN(out.p) || out.p < 0 || out.p > 1 {
			return 0, fmt.Errorf("%w: probability out of range: %v", ErrModelInference, out.p)
		}
		return out.p, nil
	}
}

// ScoreBatch scores rows in parallel with at most workers goroutines
// (NumCPU when workers <= 0). Results are in input order. The first failing
// row cancels the rest and fails the batch.
func (e *Engine) ScoreBatch(ctx context.Context, rows []record.Raw, workers int) ([]*Result, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make([]*Result, len(rows))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, row := range rows {
		g.Go(func() error {
			r, err := e.Score(gctx, row)
			if err != nil {
				return fmt.Errorf("row %d: %w", i+1, err)
			}
			results[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
