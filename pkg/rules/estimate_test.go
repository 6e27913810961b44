package rules

import (
	"fmt"
	"testing"

	"github.com/mchmarny/dropscore/pkg/feature"
	"github.com/mchmarny/dropscore/pkg/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reasons(list []Contribution) []string {
	out := make([]string, len(list))
	for i, c := range list {
		out[i] = c.Reason
	}
	return out
}

func TestEstimate_HighRiskExample(t *testing.T) {
	v := feature.Derive(record.Raw{
		"cutoff":                140,
		"attendance_rate":       0.55,
		"family_income_numeric": 35000,
		"preferred_location":    "any",
		"orphan":                "no",
	})

	list, p := Estimate(v, DefaultConfig())

	require.Len(t, list, 4)
	assert.Equal(t, []string{
		"Cutoff is less than 150 - very high dropout tendency.",
		"Low attendance (55.0%).",
		"Family income 35000 > 30000 - may choose alternate options, increasing dropout risk.",
		"Preferred location and course flexible ('any').",
	}, reasons(list))
	assert.Equal(t, 0.75, list[0].Magnitude)
	assert.Equal(t, 1.90, list[1].Magnitude)
	assert.Equal(t, 5.90, list[2].Magnitude)
	assert.Equal(t, 0.0, list[3].Magnitude)
	assert.Equal(t, 0.95, p)
}

func TestEstimate_ProtectedHighCutoff(t *testing.T) {
	v := feature.Derive(record.Raw{
		"cutoff":          250,
		"orphan":          "yes",
		"attendance_rate": 75,
	})

	list, p := Estimate(v, DefaultConfig())

	assert.Equal(t, []string{
		"Cutoff is above 193, but protected due to orphan/single-parent status.",
		"Moderate attendance (75.0%) - neutral effect.",
		"Preferred location and course flexible ('any').",
		"Orphan - institutional support reduces dropout risk.",
	}, reasons(list))
	assert.Equal(t, 0.0, list[0].Magnitude)
	// 0.10 + 0 + 0 + 0 - 0.10
	assert.Equal(t, 0.01, p)
}

func TestEstimate_UnprotectedHighCutoff(t *testing.T) {
	v := feature.Derive(record.Raw{"cutoff": 250, "attendance_rate": 75})

	list, p := Estimate(v, DefaultConfig())
	require.NotEmpty(t, list)
	assert.Equal(t, "Cutoff above 193 - extremely high dropout tendency.", list[0].Reason)
	assert.Equal(t, 0.70, list[0].Magnitude)
	assert.InDelta(t, 0.80, p, 1e-9)
}

func TestEstimate_CutoffBands(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		cutoff float64
		want   float64
	}{
		{0, cfg.CutoffLowWeight},
		{149.99, cfg.CutoffLowWeight},
		{150, cfg.CutoffSafeWeight},
		{192.9, cfg.CutoffSafeWeight},
		{193, cfg.CutoffHighWeight},
		{300, cfg.CutoffHighWeight},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("cutoff %v", tt.cutoff), func(t *testing.T) {
			v := feature.Derive(record.Raw{"cutoff": tt.cutoff})
			list, _ := Estimate(v, cfg)
			assert.Equal(t, tt.want, list[0].Magnitude)
		})
	}
}

func TestEstimate_SafeProfile(t *testing.T) {
	v := feature.Derive(record.Raw{
		"cutoff":          170,
		"attendance_rate": "92",
		"girl_child":      "Yes",
		"first_graduate":  "yes",
	})

	list, p := Estimate(v, DefaultConfig())
	assert.Len(t, list, 5)
	// 0.10 - 0.20 - 0.20 - 0.05 - 0.10 clamps at the floor
	assert.Equal(t, 0.01, p)
}

func TestEstimate_Preferences(t *testing.T) {
	cfg := DefaultConfig()

	v := feature.Derive(record.Raw{"cutoff": 170, "attendance_rate": 75, "preferred_location": "Chennai"})
	list, p := Estimate(v, cfg)
	assert.Contains(t, reasons(list), "Preferred location 'chennai' may restrict options.")
	assert.NotContains(t, reasons(list), "Preferred location and course flexible ('any').")
	assert.InDelta(t, 0.10-0.20+0.30, p, 1e-9)

	v = feature.Derive(record.Raw{"cutoff": 170, "attendance_rate": 75, "preferred_location": "Chennai", "preferred_course": "BCom"})
	list, p = Estimate(v, cfg)
	assert.Contains(t, reasons(list), "Preferred course 'bcom' may create mismatch risk.")
	assert.InDelta(t, 0.10-0.20+0.30+0.25, p, 1e-9)
}

func TestEstimate_BehaviouralSignals(t *testing.T) {
	v := feature.Derive(record.Raw{
		"cutoff":             170,
		"attendance_rate":    75,
		"motivational_score": 1,
		"interest_lvl":       "low",
		"attitude":           "Negative",
	})

	list, p := Estimate(v, DefaultConfig())
	r := reasons(list)
	assert.Contains(t, r, "Low motivational score.")
	assert.Contains(t, r, "Low interest level.")
	assert.Contains(t, r, "Negative attitude observed.")
	assert.InDelta(t, 0.10-0.20+0.15+0.15+0.20, p, 1e-9)
}

func TestEstimate_ShortCircuitPolicy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ProtectivePolicy = PolicyShortCircuit

	v := feature.Derive(record.Raw{"cutoff": 100, "attendance_rate": 10, "first_graduate": "yes"})
	list, p := Estimate(v, cfg)
	require.Len(t, list, 1)
	assert.Equal(t, cfg.ShortCircuitProbability, p)

	v = feature.Derive(record.Raw{"cutoff": 100, "attendance_rate": 10})
	list, p = Estimate(v, cfg)
	assert.Greater(t, len(list), 1)
	assert.Equal(t, 0.95, p)
}

func TestEstimate_Bounds(t *testing.T) {
	cfg := DefaultConfig()
	inputs := []record.Raw{
		{},
		{"cutoff": 100, "attendance_rate": 0.1, "family_income_numeric": 90000, "preferred_location": "x", "preferred_course": "y", "attitude": "negative", "motivational_score": 0, "interest_lvl": 0},
		{"cutoff": 170, "attendance_rate": 99, "orphan": "yes", "single_parent": "yes", "first_graduate": "yes", "girlchild": "yes"},
		{"cutoff": "junk", "attendance_rate": "junk"},
	}

	for _, policy := range []ProtectivePolicy{PolicyAdditive, PolicyShortCircuit} {
		cfg.ProtectivePolicy = policy
		for _, in := range inputs {
			_, p := Estimate(feature.Derive(in), cfg)
			assert.GreaterOrEqual(t, p, cfg.MinProbability)
			assert.LessOrEqual(t, p, cfg.MaxProbability)
		}
	}
}

func TestEstimate_Deterministic(t *testing.T) {
	in := record.Raw{"cutoff": "181", "attendance_rate": 0.7, "preferred_course": "EEE", "girl_child": "yes"}
	l1, p1 := Estimate(feature.Derive(in), DefaultConfig())
	l2, p2 := Estimate(feature.Derive(in), DefaultConfig())
	assert.Equal(t, l1, l2)
	assert.Equal(t, p1, p2)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	c := DefaultConfig()
	c.ProtectivePolicy = "sometimes"
	assert.Error(t, c.Validate())

	c = DefaultConfig()
	c.CutoffLow = 300
	assert.Error(t, c.Validate())

	c = DefaultConfig()
	c.MinProbability = 0.99
	assert.Error(t, c.Validate())
}
