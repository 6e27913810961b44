package feature

import (
	"math"
	"strings"

	"github.com/mchmarny/dropscore/pkg/record"
)

const (
	motivationDefault    = 3.0
	motivationMultiplier = 20.0
	motivationMax        = 100.0

	attendanceDefault = 100.0
	percentMax        = 100.0

	levelScaleMax        = 10.0
	communicationDefault = 0.0
	supportDefault       = 5.0

	familyMembersDefault = 1.0
)

var (
	// IncomeTiers maps family_income_tier to a representative monthly income.
	IncomeTiers = map[string]float64{
		"low":    1000,
		"medium": 5000,
		"high":   15000,
	}

	// communication uses a small 1/3/5 scale
	communicationAnchors = levelAnchors{low: 1, medium: 3, high: 5}

	// interest and family support use a 2/5/8 scale out of 10
	supportAnchors = levelAnchors{low: 2, medium: 5, high: 8}
)

type levelAnchors struct {
	low, medium, high float64
}

// Derive canonicalizes a raw record and builds its feature vector.
// It never fails; missing or unparseable values fall back to defaults.
func Derive(r record.Raw) *Vector {
	return FromCanonical(record.Canonicalize(r))
}

// FromCanonical builds the feature vector from a canonicalized record.
func FromCanonical(c *record.Canonical) *Vector {
	v := &Vector{
		Cutoff:            c.Float(Cutoff, 0),
		Marks10:           c.Float(Marks10, 0),
		Marks11:           c.Float(Marks11, 0),
		Marks12:           c.Float(Marks12, 0),
		MotivationalScore: ScaleMotivation(c.Float(MotivationalScore, motivationDefault)),
		AttendanceRate:    c.Float(AttendanceRate, attendanceDefault),
		CommunicationFreq: mapLevel(c, CommunicationFreq, communicationAnchors, communicationDefault),
		InterestLvl:       mapLevel(c, InterestLvl, supportAnchors, supportDefault),
		FamilySupport:     mapLevel(c, FamilySupport, supportAnchors, supportDefault),

		PreferredLocation: c.String(PreferredLocation, Any),
		PreferredCourse:   c.String(PreferredCourse, Any),
		FamilyIncomeTier:  c.String(FamilyIncomeTier, Any),
		Attitude:          c.String(Attitude, Any),
		Orphan:            c.Flag(Orphan),
		SingleParent:      c.Flag(SingleParent),
		FirstGraduate:     c.Flag(FirstGraduate),
		GirlChild:         c.Flag(GirlChild),
	}

	v.DeltaMarks12_11 = finite(v.Marks12-v.Marks11, 0)
	v.MarksMean10_11_12 = finite((v.Marks10+v.Marks11+v.Marks12)/3, 0)

	v.FamilyIncomeNumeric = ResolveIncome(c)
	v.FamilyMembers = c.Float(FamilyMembers, familyMembersDefault)
	if v.FamilyMembers <= 0 {
		v.FamilyMembers = familyMembersDefault
	}
	v.IncomePerMember = finite(v.FamilyIncomeNumeric/math.Max(v.FamilyMembers, 1), 0)

	if v.MotivationalScore != 0 && v.AttendanceRate != 0 {
		v.MotivationToAttendanceRatio = finite(v.MotivationalScore/v.AttendanceRate, 0)
	}

	return v
}

// ResolveIncome picks the first available income source: the explicit
// numeric field, then the income tier, then the raw family_income field.
func ResolveIncome(c *record.Canonical) float64 {
	if f, ok := c.ParseFloat(FamilyIncomeNumeric); ok {
		return f
	}
	if f, ok := IncomeTiers[c.String(FamilyIncomeTier, "")]; ok {
		return f
	}
	if f, ok := c.ParseFloat(FamilyIncome); ok {
		return f
	}
	return 0
}

// ScaleMotivation rescales a 1-5 motivation level to 0-100.
func ScaleMotivation(x float64) float64 {
	return clamp(finite(x, motivationDefault)*motivationMultiplier, 0, motivationMax)
}

// NormalizeAttendance converts fraction-style attendance (<= 1) to a
// percentage and clamps the result to [0, 100].
func NormalizeAttendance(x float64) float64 {
	if x <= 1 {
		x *= percentMax
	}
	return clamp(x, 0, percentMax)
}

// mapLevel resolves low/medium/high labels to anchors and clamps numbers
// to the 0-10 range.
func mapLevel(c *record.Canonical, key string, a levelAnchors, def float64) float64 {
	if !c.Has(key) {
		return def
	}
	if f, ok := c.ParseFloat(key); ok {
		return clamp(f, 0, levelScaleMax)
	}

	s := c.String(key, "")
	switch {
	case strings.Contains(s, "low"):
		return a.low
	case strings.Contains(s, "med"):
		return a.medium
	case strings.Contains(s, "high"):
		return a.high
	}
	return def
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

func finite(x, def float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return def
	}
	return x
}
