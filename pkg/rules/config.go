// Package rules implements the deterministic, explainable dropout-risk estimator.
package rules

import "fmt"

// ProtectivePolicy selects how protective household flags affect the estimate.
type ProtectivePolicy string

const (
	// PolicyAdditive subtracts a fixed bonus for each protective flag set.
	PolicyAdditive ProtectivePolicy = "additive"

	// PolicyShortCircuit returns ShortCircuitProbability as soon as any
	// protective flag is set, discarding every other contribution.
	PolicyShortCircuit ProtectivePolicy = "short-circuit"
)

// Config holds every threshold and magnitude the estimator uses.
type Config struct {
	BaseProbability float64 `json:"base_probability" yaml:"baseProbability"`
	MinProbability  float64 `json:"min_probability" yaml:"minProbability"`
	MaxProbability  float64 `json:"max_probability" yaml:"maxProbability"`

	CutoffLow        float64 `json:"cutoff_low" yaml:"cutoffLow"`
	CutoffHigh       float64 `json:"cutoff_high" yaml:"cutoffHigh"`
	CutoffLowWeight  float64 `json:"cutoff_low_weight" yaml:"cutoffLowWeight"`
	CutoffSafeWeight float64 `json:"cutoff_safe_weight" yaml:"cutoffSafeWeight"`
	CutoffHighWeight float64 `json:"cutoff_high_weight" yaml:"cutoffHighWeight"`

	AttendanceLow        float64 `json:"attendance_low" yaml:"attendanceLow"`
	AttendanceHigh       float64 `json:"attendance_high" yaml:"attendanceHigh"`
	AttendanceLowWeight  float64 `json:"attendance_low_weight" yaml:"attendanceLowWeight"`
	AttendanceHighWeight float64 `json:"attendance_high_weight" yaml:"attendanceHighWeight"`

	IncomeCeiling float64 `json:"income_ceiling" yaml:"incomeCeiling"`
	IncomeWeight  float64 `json:"income_weight" yaml:"incomeWeight"`

	LocationWeight float64 `json:"location_weight" yaml:"locationWeight"`
	CourseWeight   float64 `json:"course_weight" yaml:"courseWeight"`

	MotivationLow          float64 `json:"motivation_low" yaml:"motivationLow"`
	MotivationWeight       float64 `json:"motivation_weight" yaml:"motivationWeight"`
	InterestLow            float64 `json:"interest_low" yaml:"interestLow"`
	InterestWeight         float64 `json:"interest_weight" yaml:"interestWeight"`
	NegativeAttitudeWeight float64 `json:"negative_attitude_weight" yaml:"negativeAttitudeWeight"`

	OrphanBonus        float64 `json:"orphan_bonus" yaml:"orphanBonus"`
	SingleParentBonus  float64 `json:"single_parent_bonus" yaml:"singleParentBonus"`
	FirstGraduateBonus float64 `json:"first_graduate_bonus" yaml:"firstGraduateBonus"`
	GirlChildBonus     float64 `json:"girl_child_bonus" yaml:"girlChildBonus"`

	ProtectivePolicy        ProtectivePolicy `json:"protective_policy" yaml:"protectivePolicy"`
	ShortCircuitProbability float64          `json:"short_circuit_probability" yaml:"shortCircuitProbability"`
}

// DefaultConfig returns the production rule set.
func DefaultConfig() Config {
	return Config{
		BaseProbability: 0.10,
		MinProbability:  0.01,
		MaxProbability:  0.95,

		CutoffLow:        150,
		CutoffHigh:       193,
		CutoffLowWeight:  0.75,
		CutoffSafeWeight: -0.20,
		CutoffHighWeight: 0.70,

		AttendanceLow:        60,
		AttendanceHigh:       85,
		AttendanceLowWeight:  1.90,
		AttendanceHighWeight: -0.20,

		IncomeCeiling: 30000,
		IncomeWeight:  5.90,

		LocationWeight: 0.30,
		CourseWeight:   0.25,

		MotivationLow:          40,
		MotivationWeight:       0.15,
		InterestLow:            4,
		InterestWeight:         0.15,
		NegativeAttitudeWeight: 0.20,

		OrphanBonus:        -0.10,
		SingleParentBonus:  -0.10,
		FirstGraduateBonus: -0.05,
		GirlChildBonus:     -0.10,

		ProtectivePolicy:        PolicyAdditive,
		ShortCircuitProbability: 0.01,
	}
}

// Validate checks that the config is internally consistent.
func (c Config) Validate() error {
	if c.MinProbability < 0 || c.MaxProbability > 1 || c.MinProbability > c.MaxProbability {
		return fmt.Errorf("invalid probability bounds [%v, %v]", c.MinProbability, c.MaxProbability)
	}
	if c.CutoffLow > c.CutoffHigh {
		return fmt.Errorf("cutoff low (%v) above cutoff high (%v)", c.CutoffLow, c.CutoffHigh)
	}
	if c.AttendanceLow > c.AttendanceHigh {
		return fmt.Errorf("attendance low (%v) above attendance high (%v)", c.AttendanceLow, c.AttendanceHigh)
	}
	switch c.ProtectivePolicy {
	case PolicyAdditive, PolicyShortCircuit:
	default:
		return fmt.Errorf("unknown protective policy: %q", c.ProtectivePolicy)
	}
	return nil
}
