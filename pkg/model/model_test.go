package model

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/mchmarny/dropscore/pkg/feature"
	"github.com/mchmarny/dropscore/pkg/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMeta = `{
  "timestamp": "20250101_120000",
  "best_params": {"C": 0.5},
  "global_feature_importances": [
    ["attendance_rate", 0.31],
    ["cutoff", 0.22],
    ["motivational_score", 0.12]
  ],
  "input_features": ["cutoff", "attendance_rate", "orphan=yes"]
}`

const testLinear = `{
  "intercept": -1.0,
  "weights": {"cutoff": 0.0, "attendance_rate": -0.01, "orphan=yes": -0.5}
}`

func writeRun(t *testing.T, root, run string, files map[string]string) string {
	t.Helper()
	dir := filepath.Join(root, run)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}
	return dir
}

func TestLatestRun(t *testing.T) {
	root := t.TempDir()
	writeRun(t, root, "20240101_000000", nil)
	writeRun(t, root, "20250301_080000", nil)
	writeRun(t, root, "20250101_000000", nil)
	require.NoError(t, os.WriteFile(filepath.Join(root, "zzz.txt"), []byte("x"), 0o600))

	run, err := LatestRun(root)
	require.NoError(t, err)
	assert.Equal(t, "20250301_080000", run)

	writeRun(t, root, ".zzz_partial", nil)
	run, err = LatestRun(root)
	require.NoError(t, err)
	assert.Equal(t, "20250301_080000", run)
}

func TestLatestRun_Missing(t *testing.T) {
	_, err := LatestRun(filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, ErrArtifactMissing)

	_, err = LatestRun(t.TempDir())
	assert.ErrorIs(t, err, ErrArtifactMissing)
}

func TestLoad_Linear(t *testing.T) {
	root := t.TempDir()
	writeRun(t, root, "20240101_000000", map[string]string{MetadataFile: `{"timestamp":"old","global_feature_importances":[]}`})
	writeRun(t, root, "20250101_120000", map[string]string{
		MetadataFile: testMeta,
		LinearFile:   testLinear,
	})

	a, err := Load(root, "")
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, "20250101_120000", a.Run)
	assert.Equal(t, "20250101_120000", a.Meta.Timestamp)
	assert.IsType(t, &Linear{}, a.Classifier)
	assert.Equal(t, []string{"attendance_rate", "cutoff"}, a.TopFeatures(2))

	v := feature.Derive(record.Raw{"cutoff": 180, "attendance_rate": 50})
	p, err := a.Predict(context.Background(), v)
	require.NoError(t, err)
	assert.InDelta(t, 1/(1+math.Exp(1.5)), p, 1e-9)

	v = feature.Derive(record.Raw{"cutoff": 180, "attendance_rate": 50, "orphan": "yes"})
	p, err = a.Predict(context.Background(), v)
	require.NoError(t, err)
	assert.InDelta(t, 1/(1+math.Exp(2.0)), p, 1e-9)
}

func TestLoad_MissingPieces(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
	}{
		{"no metadata", map[string]string{LinearFile: testLinear}},
		{"no classifier", map[string]string{MetadataFile: testMeta}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			writeRun(t, root, "run", tt.files)
			_, err := Load(root, "")
			assert.ErrorIs(t, err, ErrArtifactMissing)
		})
	}
}

func TestLoad_FeatureMismatch(t *testing.T) {
	root := t.TempDir()
	writeRun(t, root, "run", map[string]string{
		MetadataFile: `{"timestamp":"t","global_feature_importances":[],"input_features":["cutoff","hostel=yes"]}`,
		LinearFile:   testLinear,
	})
	_, err := Load(root, "")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrArtifactMissing)
}

func TestMetadata_Importances(t *testing.T) {
	var m Metadata
	require.NoError(t, json.Unmarshal([]byte(testMeta), &m))
	require.Len(t, m.Importances, 3)
	assert.Equal(t, Importance{Feature: "cutoff", Value: 0.22}, m.Importances[1])

	b, err := json.Marshal(m.Importances[0])
	require.NoError(t, err)
	assert.JSONEq(t, `["attendance_rate", 0.31]`, string(b))

	assert.Error(t, json.Unmarshal([]byte(`{"global_feature_importances":[["a"]]}`), &m))
	assert.Error(t, json.Unmarshal([]byte(`{"global_feature_importances":[{"a":1}]}`), &m))
}

func TestMetadata_TopFeatures(t *testing.T) {
	m := &Metadata{Importances: []Importance{{"a", 3}, {"b", 2}, {"c", 1}}}

	assert.Equal(t, []string{"a", "b"}, m.TopFeatures(2))
	assert.Equal(t, []string{"a", "b", "c"}, m.TopFeatures(6))
	assert.Empty(t, m.TopFeatures(0))

	var nilMeta *Metadata
	assert.Empty(t, nilMeta.TopFeatures(3))
}

func TestLinear_SchemaMismatch(t *testing.T) {
	l, err := NewLinear(0, map[string]float64{"cutoff": 1, "school_board": 1})
	require.NoError(t, err)

	_, err = l.Predict(context.Background(), feature.Derive(record.Raw{}))
	require.Error(t, err)

	var ie *InferenceError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, "encode", ie.Op)
}

func TestLinear_CanceledContext(t *testing.T) {
	l, err := NewLinear(0, map[string]float64{"cutoff": 1})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = l.Predict(ctx, feature.Derive(record.Raw{}))
	var ie *InferenceError
	require.True(t, errors.As(err, &ie))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewLinear_NoWeights(t *testing.T) {
	_, err := NewLinear(0, nil)
	assert.Error(t, err)
}

func TestCheckProbability(t *testing.T) {
	assert.NoError(t, checkProbability(0))
	assert.NoError(t, checkProbability(1))
	assert.Error(t, checkProbability(-0.1))
	assert.Error(t, checkProbability(1.01))
	assert.Error(t, checkProbability(math.NaN()))
}
