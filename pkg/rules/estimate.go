package rules

import (
	"fmt"
	"math"

	"github.com/mchmarny/dropscore/pkg/feature"
	"github.com/mchmarny/dropscore/pkg/record"
)

// Contribution is one itemized reason and its signed effect on the estimate.
type Contribution struct {
	Reason    string  `json:"reason" yaml:"reason"`
	Magnitude float64 `json:"magnitude" yaml:"magnitude"`
}

// Estimate scores a feature vector with the rule set. It has no side
// effects: the same vector and config always yield the same result.
func Estimate(v *feature.Vector, cfg Config) ([]Contribution, float64) {
	e := &estimator{cfg: cfg, list: make([]Contribution, 0)}

	orphan := v.Orphan == record.FlagYes
	singleParent := v.SingleParent == record.FlagYes
	firstGraduate := v.FirstGraduate == record.FlagYes
	girlChild := v.GirlChild == record.FlagYes

	if cfg.ProtectivePolicy == PolicyShortCircuit && (orphan || singleParent || firstGraduate || girlChild) {
		return []Contribution{{
			Reason:    "Protective household status (orphan, single parent, first graduate or girl child) - minimal dropout risk.",
			Magnitude: cfg.ShortCircuitProbability - cfg.BaseProbability,
		}}, cfg.ShortCircuitProbability
	}

	e.cutoff(v.Cutoff, orphan || singleParent)
	e.attendance(feature.NormalizeAttendance(v.AttendanceRate))
	e.income(v.FamilyIncomeNumeric)
	e.preferences(v.PreferredLocation, v.PreferredCourse)

	if v.MotivationalScore < cfg.MotivationLow {
		e.add(cfg.MotivationWeight, "Low motivational score.")
	}
	if v.InterestLvl < cfg.InterestLow {
		e.add(cfg.InterestWeight, "Low interest level.")
	}
	if v.Attitude == "negative" {
		e.add(cfg.NegativeAttitudeWeight, "Negative attitude observed.")
	}

	if orphan {
		e.add(cfg.OrphanBonus, "Orphan - institutional support reduces dropout risk.")
	}
	if singleParent {
		e.add(cfg.SingleParentBonus, "Single parent - additional support reduces dropout risk.")
	}
	if firstGraduate {
		e.add(cfg.FirstGraduateBonus, "First graduate - strong motivation observed.")
	}
	if girlChild {
		e.add(cfg.GirlChildBonus, "Girl child - statistically lower dropout rate.")
	}

	return e.list, e.probability()
}

type estimator struct {
	cfg  Config
	list []Contribution
	sum  float64
}

func (e *estimator) add(m float64, reason string) {
	e.sum += m
	e.list = append(e.list, Contribution{Reason: reason, Magnitude: m})
}

func (e *estimator) cutoff(c float64, protected bool) {
	cfg := e.cfg
	switch {
	case c < cfg.CutoffLow:
		e.add(cfg.CutoffLowWeight, fmt.Sprintf("Cutoff is less than %s - very high dropout tendency.", num(cfg.CutoffLow)))
	case c < cfg.CutoffHigh:
		e.add(cfg.CutoffSafeWeight, fmt.Sprintf("Cutoff between %s and %s - safe range (low dropout tendency).", num(cfg.CutoffLow), num(cfg.CutoffHigh)))
	case protected:
		e.add(0, fmt.Sprintf("Cutoff is above %s, but protected due to orphan/single-parent status.", num(cfg.CutoffHigh)))
	default:
		e.add(cfg.CutoffHighWeight, fmt.Sprintf("Cutoff above %s - extremely high dropout tendency.", num(cfg.CutoffHigh)))
	}
}

func (e *estimator) attendance(pct float64) {
	cfg := e.cfg
	switch {
	case pct < cfg.AttendanceLow:
		e.add(cfg.AttendanceLowWeight, fmt.Sprintf("Low attendance (%.1f%%).", pct))
	case pct >= cfg.AttendanceHigh:
		e.add(cfg.AttendanceHighWeight, fmt.Sprintf("High attendance (%.1f%%).", pct))
	default:
		e.add(0, fmt.Sprintf("Moderate attendance (%.1f%%) - neutral effect.", pct))
	}
}

func (e *estimator) income(income float64) {
	if income > e.cfg.IncomeCeiling {
		e.add(e.cfg.IncomeWeight, fmt.Sprintf("Family income %s > %s - may choose alternate options, increasing dropout risk.", num(income), num(e.cfg.IncomeCeiling)))
	}
}

func (e *estimator) preferences(location, course string) {
	if location == feature.Any && course == feature.Any {
		e.add(0, "Preferred location and course flexible ('any').")
		return
	}
	if location != feature.Any {
		e.add(e.cfg.LocationWeight, fmt.Sprintf("Preferred location '%s' may restrict options.", location))
	}
	if course != feature.Any {
		e.add(e.cfg.CourseWeight, fmt.Sprintf("Preferred course '%s' may create mismatch risk.", course))
	}
}

func (e *estimator) probability() float64 {
	return math.Max(e.cfg.MinProbability, math.Min(e.cfg.MaxProbability, e.cfg.BaseProbability+e.sum))
}

// num prints whole numbers without a fractional part.
func num(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return fmt.Sprintf("%.0f", f)
	}
	return fmt.Sprintf("%.2f", f)
}
