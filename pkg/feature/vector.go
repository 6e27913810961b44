// Package feature derives the fixed-schema feature vector scored by both the
// rule estimator and the trained classifier.
package feature

import (
	"fmt"
	"strings"
)

const (
	Any = "any"

	Cutoff                      = "cutoff"
	Marks10                     = "marks_10"
	Marks11                     = "marks_11"
	Marks12                     = "marks_12"
	MotivationalScore           = "motivational_score"
	AttendanceRate              = "attendance_rate"
	CommunicationFreq           = "communication_freq"
	InterestLvl                 = "interest_lvl"
	FamilySupport               = "family_support"
	DeltaMarks12_11             = "delta_marks_12_11"
	MarksMean10_11_12           = "marks_mean_10_11_12"
	IncomePerMember             = "income_per_member"
	MotivationToAttendanceRatio = "motivation_to_attendance_ratio"

	PreferredLocation = "preferred_location"
	PreferredCourse   = "preferred_course"
	FamilyIncomeTier  = "family_income_tier"
	Orphan            = "orphan"
	SingleParent      = "single_parent"
	FirstGraduate     = "first_graduate"
	GirlChild         = "girlchild"
	Attitude          = "attitude"

	FamilyIncomeNumeric = "family_income_numeric"
	FamilyIncome        = "family_income"
	FamilyMembers       = "family_members"
)

var (
	numericNames = []string{
		Cutoff, Marks10, Marks11, Marks12,
		MotivationalScore, AttendanceRate, CommunicationFreq,
		InterestLvl, FamilySupport,
		DeltaMarks12_11, MarksMean10_11_12,
		IncomePerMember, MotivationToAttendanceRatio,
	}

	categoricalNames = []string{
		PreferredLocation, PreferredCourse, FamilyIncomeTier,
		Orphan, SingleParent, FirstGraduate, GirlChild, Attitude,
	}
)

// NumericNames returns the numeric model columns in training order.
func NumericNames() []string {
	return append([]string(nil), numericNames...)
}

// CategoricalNames returns the categorical model columns in training order.
func CategoricalNames() []string {
	return append([]string(nil), categoricalNames...)
}

// Vector is the canonical, fully defaulted feature vector for one student.
type Vector struct {
	Cutoff                      float64 `json:"cutoff" yaml:"cutoff"`
	Marks10                     float64 `json:"marks_10" yaml:"marks10"`
	Marks11                     float64 `json:"marks_11" yaml:"marks11"`
	Marks12                     float64 `json:"marks_12" yaml:"marks12"`
	MotivationalScore           float64 `json:"motivational_score" yaml:"motivationalScore"`
	AttendanceRate              float64 `json:"attendance_rate" yaml:"attendanceRate"`
	CommunicationFreq           float64 `json:"communication_freq" yaml:"communicationFreq"`
	InterestLvl                 float64 `json:"interest_lvl" yaml:"interestLvl"`
	FamilySupport               float64 `json:"family_support" yaml:"familySupport"`
	DeltaMarks12_11             float64 `json:"delta_marks_12_11" yaml:"deltaMarks1211"`
	MarksMean10_11_12           float64 `json:"marks_mean_10_11_12" yaml:"marksMean101112"`
	IncomePerMember             float64 `json:"income_per_member" yaml:"incomePerMember"`
	MotivationToAttendanceRatio float64 `json:"motivation_to_attendance_ratio" yaml:"motivationToAttendanceRatio"`

	// not model inputs; used by the rules
	FamilyIncomeNumeric float64 `json:"family_income_numeric" yaml:"familyIncomeNumeric"`
	FamilyMembers       float64 `json:"family_members" yaml:"familyMembers"`

	PreferredLocation string `json:"preferred_location" yaml:"preferredLocation"`
	PreferredCourse   string `json:"preferred_course" yaml:"preferredCourse"`
	FamilyIncomeTier  string `json:"family_income_tier" yaml:"familyIncomeTier"`
	Orphan            string `json:"orphan" yaml:"orphan"`
	SingleParent      string `json:"single_parent" yaml:"singleParent"`
	FirstGraduate     string `json:"first_graduate" yaml:"firstGraduate"`
	GirlChild         string `json:"girlchild" yaml:"girlchild"`
	Attitude          string `json:"attitude" yaml:"attitude"`
}

// Numeric returns the value of a numeric model column.
func (v *Vector) Numeric(name string) (float64, bool) {
	switch name {
	case Cutoff:
		return v.Cutoff, true
	case Marks10:
		return v.Marks10, true
	case Marks11:
		return v.Marks11, true
	case Marks12:
		return v.Marks12, true
	case MotivationalScore:
		return v.MotivationalScore, true
	case AttendanceRate:
		return v.AttendanceRate, true
	case CommunicationFreq:
		return v.CommunicationFreq, true
	case InterestLvl:
		return v.InterestLvl, true
	case FamilySupport:
		return v.FamilySupport, true
	case DeltaMarks12_11:
		return v.DeltaMarks12_11, true
	case MarksMean10_11_12:
		return v.MarksMean10_11_12, true
	case IncomePerMember:
		return v.IncomePerMember, true
	case MotivationToAttendanceRatio:
		return v.MotivationToAttendanceRatio, true
	}
	return 0, false
}

// Categorical returns the value of a categorical model column.
func (v *Vector) Categorical(name string) (string, bool) {
	switch name {
	case PreferredLocation:
		return v.PreferredLocation, true
	case PreferredCourse:
		return v.PreferredCourse, true
	case FamilyIncomeTier:
		return v.FamilyIncomeTier, true
	case Orphan:
		return v.Orphan, true
	case SingleParent:
		return v.SingleParent, true
	case FirstGraduate:
		return v.FirstGraduate, true
	case GirlChild:
		return v.GirlChild, true
	case Attitude:
		return v.Attitude, true
	}
	return "", false
}

// Encode builds the model input for the given encoded column names.
// Numeric columns are used as-is; categorical columns are one-hot encoded
// as "column=level". An unknown column is a schema mismatch.
func (v *Vector) Encode(names []string) ([]float64, error) {
	out := make([]float64, len(names))
	for i, name := range names {
		f, err := v.encodeOne(name)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

func (v *Vector) encodeOne(name string) (float64, error) {
	if f, ok := v.Numeric(name); ok {
		return f, nil
	}
	col, level, ok := strings.Cut(name, "=")
	if !ok {
		return 0, fmt.Errorf("unknown feature %q", name)
	}
	val, ok := v.Categorical(col)
	if !ok {
		return 0, fmt.Errorf("unknown categorical feature %q", col)
	}
	if val == level {
		return 1, nil
	}
	return 0, nil
}
