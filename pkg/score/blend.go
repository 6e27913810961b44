package score

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	blendPlaces         = 3
	deservingnessPlaces = 2

	// exactExp keeps enough digits that a float64 in [0, 100] converts to
	// decimal without creating or hiding a rounding tie.
	exactExp = -40
)

// Tier is the discrete risk bucket of a blended probability.
type Tier string

const (
	TierLow    Tier = "LOW"
	TierMedium Tier = "MEDIUM"
	TierHigh   Tier = "HIGH"
)

// Tiers lists every tier from lowest to highest.
func Tiers() []Tier {
	return []Tier{TierLow, TierMedium, TierHigh}
}

// ParseTier accepts a tier name in any case.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToUpper(strings.TrimSpace(s)))
	switch t {
	case TierLow, TierMedium, TierHigh:
		return t, nil
	default:
		return "", fmt.Errorf("invalid risk tier: %q", s)
	}
}

// Thresholds are the inclusive lower bounds of the HIGH and MEDIUM tiers.
type Thresholds struct {
	High   float64 `json:"high" yaml:"high"`
	Medium float64 `json:"medium" yaml:"medium"`
}

// DefaultThresholds returns the production tier boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{High: 0.7, Medium: 0.4}
}

// Validate checks 0 <= Medium <= High <= 1.
func (t Thresholds) Validate() error {
	if t.Medium < 0 || t.High > 1 || t.Medium > t.High {
		return fmt.Errorf("invalid tier thresholds: medium=%v high=%v", t.Medium, t.High)
	}
	return nil
}

// TierFor classifies a blended probability.
func (t Thresholds) TierFor(p float64) Tier {
	switch {
	case p >= t.High:
		return TierHigh
	case p >= t.Medium:
		return TierMedium
	default:
		return TierLow
	}
}

// Blend averages the model and rule probabilities with equal weight and
// rounds the result to 3 decimal places.
func Blend(model, rule float64) float64 {
	return Round(model*0.5+rule*0.5, blendPlaces)
}

// Deservingness is the complement of the blended risk on a 0-100 scale,
// rounded to 2 decimal places.
func Deservingness(blended float64) float64 {
	return Round((1-blended)*100, deservingnessPlaces)
}

// Round rounds the exact binary value of f to the given number of places,
// resolving exact ties to the even digit. 0.3125 rounds to 0.312 and 2.675,
// stored as 2.67499..., rounds to 2.67.
func Round(f float64, places int32) float64 {
	return toFloat(decimal.NewFromFloatWithExponent(f, exactExp).RoundBank(places))
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
