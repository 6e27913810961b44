package model

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mchmarny/dropscore/pkg/feature"
	"github.com/mchmarny/dropscore/pkg/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// DROPSCORE_TEST_RUN points at a run directory holding meta.json and
// dropout_model.onnx; DROPSCORE_ORT_LIB at the runtime shared library.
func skipIfNoONNX(t *testing.T) (string, string) {
	t.Helper()
	dir := os.Getenv("DROPSCORE_TEST_RUN")
	if dir == "" {
		t.Skip("DROPSCORE_TEST_RUN not set, skipping ONNX test")
	}
	if _, err := os.Stat(filepath.Join(dir, ONNXFile)); os.IsNotExist(err) {
		t.Skip("ONNX model not available, skipping ONNX test")
	}
	return dir, os.Getenv("DROPSCORE_ORT_LIB")
}

func TestONNX_Predict(t *testing.T) {
	dir, lib := skipIfNoONNX(t)

	a, err := LoadRun(dir, lib)
	require.NoError(t, err)
	defer a.Close()

	require.IsType(t, &ONNX{}, a.Classifier)

	v := feature.Derive(record.Raw{"cutoff": 160, "attendance_rate": 0.8})
	p1, err := a.Predict(context.Background(), v)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, p1, 0.0)
	assert.LessOrEqual(t, p1, 1.0)

	p2, err := a.Predict(context.Background(), v)
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
}

func TestNewONNX_RequiresInputFeatures(t *testing.T) {
	_, err := NewONNX("missing.onnx", "", &Metadata{})
	assert.Error(t, err)

	_, err = NewONNX("missing.onnx", "", nil)
	assert.Error(t, err)
}
