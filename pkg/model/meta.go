package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

const (
	defaultONNXOutput = "probabilities"
)

// Importance is one entry of the global feature-importance ranking.
// On disk it is a two element array: [name, importance].
type Importance struct {
	Feature string  `yaml:"feature"`
	Value   float64 `yaml:"value"`
}

// UnmarshalJSON decodes the [name, importance] pair form.
func (i *Importance) UnmarshalJSON(b []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(b, &pair); err != nil {
		return fmt.Errorf("importance must be a [name, value] pair: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("importance must have 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &i.Feature); err != nil {
		return fmt.Errorf("importance name: %w", err)
	}
	if err := json.Unmarshal(pair[1], &i.Value); err != nil {
		return fmt.Errorf("importance value: %w", err)
	}
	return nil
}

// MarshalJSON writes the pair form back out.
func (i Importance) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{i.Feature, i.Value})
}

// ONNXSpec names the graph tensors when they differ from the defaults.
type ONNXSpec struct {
	Input  string `json:"input,omitempty" yaml:"input,omitempty"`
	Output string `json:"output,omitempty" yaml:"output,omitempty"`
}

// Metadata is the training summary stored alongside the classifier.
type Metadata struct {
	Timestamp     string         `json:"timestamp" yaml:"timestamp"`
	BestParams    map[string]any `json:"best_params,omitempty" yaml:"bestParams,omitempty"`
	Importances   []Importance   `json:"global_feature_importances" yaml:"importances"`
	InputFeatures []string       `json:"input_features,omitempty" yaml:"inputFeatures,omitempty"`
	ONNX          *ONNXSpec      `json:"onnx,omitempty" yaml:"onnx,omitempty"`
}

// TopFeatures returns up to n feature names in importance order.
// A shorter ranking is returned as is.
func (m *Metadata) TopFeatures(n int) []string {
	if m == nil || n <= 0 {
		return []string{}
	}
	if n > len(m.Importances) {
		n = len(m.Importances)
	}
	list := make([]string, n)
	for i := 0; i < n; i++ {
		list[i] = m.Importances[i].Feature
	}
	return list
}

// ReadMetadata parses a meta.json file.
func ReadMetadata(path string) (*Metadata, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrArtifactMissing, path)
		}
		return nil, fmt.Errorf("error reading metadata %s: %w", path, err)
	}

	var m Metadata
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("error parsing metadata %s: %w", path, err)
	}
	return &m, nil
}

func (m *Metadata) onnxOutput() string {
	if m.ONNX != nil && m.ONNX.Output != "" {
		return m.ONNX.Output
	}
	return defaultONNXOutput
}

func (m *Metadata) onnxInput() string {
	if m.ONNX != nil {
		return m.ONNX.Input
	}
	return ""
}
