package format

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/mchmarny/dropscore/pkg/data"
	"github.com/mchmarny/dropscore/pkg/model"
	"github.com/mchmarny/dropscore/pkg/record"
	"github.com/mchmarny/dropscore/pkg/score"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Format
		err  bool
	}{
		{"", JSON, false},
		{"JSON", JSON, false},
		{"yml", YAML, false},
		{"yaml", YAML, false},
		{"table", Table, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		if tt.err {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestEncode_JSONAndYAML(t *testing.T) {
	counts := TierCounts{score.TierHigh: 2}

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, JSON, counts))
	var m map[string]int
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	assert.Equal(t, 2, m["HIGH"])

	buf.Reset()
	require.NoError(t, Encode(&buf, YAML, counts))
	m = nil
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &m))
	assert.Equal(t, 2, m["HIGH"])
}

func TestEncode_TableFallsBackToJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, Table, map[string]string{"status": "ok"}))
	assert.JSONEq(t, `{"status":"ok"}`, buf.String())
}

func TestEncode_TierCountsTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, Table, TierCounts{score.TierLow: 3, score.TierHigh: 1}))
	out := buf.String()
	assert.Contains(t, out, "LOW")
	assert.Contains(t, out, "MEDIUM")
	assert.Contains(t, out, "TOTAL")
	assert.Contains(t, out, "4")
}

func TestStudentsTable(t *testing.T) {
	list := Students{{
		ID:         7,
		Name:       "Asha",
		District:   "Pune",
		Attributes: record.Raw{"cutoff": 120.0, "attendance": 50.0},
		CreatedAt:  time.Now(),
	}}
	out := Render(list)
	assert.Contains(t, out, "Asha")
	assert.Contains(t, out, "Pune")
	assert.Contains(t, out, "DISTRICT")
}

func TestPredictionsTable(t *testing.T) {
	list := Predictions{{
		ID:            "p1",
		StudentID:     7,
		Probability:   0.6,
		Deservingness: 40,
		Tier:          score.TierMedium,
		CreatedAt:     time.Now(),
	}}
	out := Render(list)
	assert.Contains(t, out, "0.600")
	assert.Contains(t, out, "40.00")
	assert.Contains(t, out, "MEDIUM")
}

func TestResponseTable(t *testing.T) {
	resp := score.NewResponse(&score.Result{
		RuleProbability:    0.95,
		ModelProbability:   0.2,
		BlendedProbability: 0.575,
		Deservingness:      42.5,
		Tier:               score.TierMedium,
		TopFeatures:        []string{"cutoff", "attendance"},
	})
	out := Render((*Response)(resp))
	assert.Contains(t, out, "0.575")
	assert.Contains(t, out, "42.50")
	assert.Contains(t, out, "cutoff, attendance")

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, JSON, (*Response)(resp)))
	assert.Contains(t, buf.String(), `"dropout_probability": 0.575`)
}

func TestSummaryTable(t *testing.T) {
	s := &data.Summary{Students: 3, Predictions: 5, Tiers: map[score.Tier]int{score.TierHigh: 2}}
	out := Render((*Summary)(s))
	assert.Contains(t, out, "Latest HIGH")
	assert.Contains(t, out, "Predictions")
}

func TestModelInfo(t *testing.T) {
	lin, err := model.NewLinear(0.1, map[string]float64{"cutoff": 1})
	require.NoError(t, err)

	info := NewModelInfo(&model.Artifact{
		Run:        "20250101_000000",
		Classifier: lin,
		Meta: &model.Metadata{
			Timestamp:   "20250101_000000",
			Importances: []model.Importance{{Feature: "cutoff", Value: 0.42}},
		},
	})
	assert.Equal(t, "linear", info.Classifier)
	assert.Contains(t, Render(info), "0.4200")
}
