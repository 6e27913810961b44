// Package model loads the pre-trained dropout classifier and exposes it
// behind a single Predict call.
package model

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/mchmarny/dropscore/pkg/feature"
)

const (
	// MetadataFile is the training metadata written next to each classifier.
	MetadataFile = "meta.json"

	// ONNXFile is the exported classifier graph.
	ONNXFile = "dropout_model.onnx"

	// LinearFile is the logistic classifier exported as plain coefficients.
	LinearFile = "dropout_model.json"
)

// ErrArtifactMissing is returned when the artifact root, run directory,
// metadata or classifier blob cannot be found.
var ErrArtifactMissing = errors.New("model artifact missing")

// Classifier returns the probability of the positive (dropout) class.
type Classifier interface {
	Predict(ctx context.Context, v *feature.Vector) (float64, error)
	Close() error
}

// InferenceError reports a failed model call: a schema mismatch, a runtime
// failure or an out-of-range output.
type InferenceError struct {
	Op  string
	Err error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("model %s: %v", e.Op, e.Err)
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}

func inferenceErr(op string, err error) error {
	return &InferenceError{Op: op, Err: err}
}

func checkProbability(p float64) error {
	if math.IsNaN(p) || p < 0 || p > 1 {
		return inferenceErr("output", fmt.Errorf("probability out of range: %v", p))
	}
	return nil
}
