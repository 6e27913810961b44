// Package record canonicalizes loosely-typed student records.
package record

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

const (
	FlagYes = "yes"
	FlagNo  = "no"
)

// Raw is a single student record as submitted or stored. Values may be
// numbers, strings, booleans or nil.
type Raw map[string]any

// Synonym maps a canonical field name to the alternate names it accepts.
type Synonym struct {
	Canonical  string
	Alternates []string
}

// Synonyms is applied in order. The canonical name always wins when present.
var Synonyms = []Synonym{
	{Canonical: "motivational_score", Alternates: []string{"motivation_level"}},
	{Canonical: "communication_freq", Alternates: []string{"communication_frequency"}},
	{Canonical: "interest_lvl", Alternates: []string{"interest_level"}},
	{Canonical: "girlchild", Alternates: []string{"girl_child"}},
	{Canonical: "cutoff", Alternates: []string{"cutoff_value"}},
	{Canonical: "single_parent", Alternates: []string{"singleparent"}},
	{Canonical: "first_graduate", Alternates: []string{"firstgraduate"}},
	{Canonical: "preferred_location", Alternates: []string{"preferredlocation"}},
	{Canonical: "preferred_course", Alternates: []string{"preferredcourse"}},
}

var (
	keyReplacer = strings.NewReplacer(" ", "_", "-", "_")
	truthy      = map[string]bool{"yes": true, "y": true, "true": true, "1": true}
)

// Canonical is a record with normalized keys and synonyms resolved.
type Canonical struct {
	fields map[string]any
}

// Canonicalize normalizes keys and merges synonyms into canonical names.
// The input is not modified.
func Canonicalize(r Raw) *Canonical {
	fields := make(map[string]any, len(r))

	// exact keys first so that "cutoff" beats " Cutoff " on collision
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ei, ej := NormalizeKey(keys[i]) == keys[i], NormalizeKey(keys[j]) == keys[j]
		if ei != ej {
			return ei
		}
		return keys[i] < keys[j]
	})

	for _, k := range keys {
		v := r[k]
		if isAbsent(v) {
			continue
		}
		nk := NormalizeKey(k)
		if _, ok := fields[nk]; ok {
			continue
		}
		fields[nk] = v
	}

	for _, s := range Synonyms {
		if _, ok := fields[s.Canonical]; ok {
			continue
		}
		for _, alt := range s.Alternates {
			if v, ok := fields[alt]; ok {
				fields[s.Canonical] = v
				break
			}
		}
	}

	return &Canonical{fields: fields}
}

// NormalizeKey trims, lower-cases and snake-cases a field name.
func NormalizeKey(k string) string {
	return keyReplacer.Replace(strings.ToLower(strings.TrimSpace(k)))
}

// Has reports whether the field is present and non-empty.
func (c *Canonical) Has(key string) bool {
	_, ok := c.fields[key]
	return ok
}

// Value returns the raw value of a field.
func (c *Canonical) Value(key string) (any, bool) {
	v, ok := c.fields[key]
	return v, ok
}

// ParseFloat returns the numeric value of a field if it has one.
func (c *Canonical) ParseFloat(key string) (float64, bool) {
	v, ok := c.fields[key]
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

// Float returns the numeric value of a field or def when absent or unparseable.
func (c *Canonical) Float(key string, def float64) float64 {
	if f, ok := c.ParseFloat(key); ok {
		return f
	}
	return def
}

// String returns the normalized string value of a field or def when absent.
func (c *Canonical) String(key, def string) string {
	v, ok := c.fields[key]
	if !ok {
		return def
	}
	s := NormalizeString(toString(v))
	if s == "" {
		return def
	}
	return s
}

// Text returns the trimmed value of a field without case folding, or an
// empty string when absent.
func (c *Canonical) Text(key string) string {
	v, ok := c.fields[key]
	if !ok {
		return ""
	}
	return strings.TrimSpace(norm.NFKC.String(toString(v)))
}

// Flag returns "yes" for truthy values and "no" for everything else.
func (c *Canonical) Flag(key string) string {
	if truthy[c.String(key, FlagNo)] {
		return FlagYes
	}
	return FlagNo
}

// NormalizeString trims, NFKC-normalizes and case-folds s.
func NormalizeString(s string) string {
	// a Caser carries state and must not be shared across goroutines
	return cases.Fold().String(norm.NFKC.String(strings.TrimSpace(s)))
}

func isAbsent(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	}
	return false
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case int32:
		f = float64(t)
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return ""
	}
}
