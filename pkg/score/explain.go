package score

import (
	"github.com/mchmarny/dropscore/pkg/rules"
)

// Result is the full outcome of scoring one record.
type Result struct {
	RuleProbability    float64              `json:"rule_probability" yaml:"ruleProbability"`
	ModelProbability   float64              `json:"model_probability" yaml:"modelProbability"`
	BlendedProbability float64              `json:"blended_probability" yaml:"blendedProbability"`
	Deservingness      float64              `json:"deservingness_score" yaml:"deservingnessScore"`
	Tier               Tier                 `json:"risk_tier" yaml:"riskTier"`
	Contributions      []rules.Contribution `json:"contributions" yaml:"contributions"`
	TopFeatures        []string             `json:"top_features" yaml:"topFeatures"`
}

// Reasons returns the contribution reasons in emission order.
func (r *Result) Reasons() []string {
	list := make([]string, len(r.Contributions))
	for i, c := range r.Contributions {
		list[i] = c.Reason
	}
	return list
}

// Explanation is the stable, serializable account of a score.
type Explanation struct {
	FinalProbability float64  `json:"final_probability_used" yaml:"finalProbabilityUsed"`
	RuleProbability  float64  `json:"rule_probability" yaml:"ruleProbability"`
	ModelProbability float64  `json:"model_probability" yaml:"modelProbability"`
	Reasons          []string `json:"human_readable_reasons" yaml:"humanReadableReasons"`
	TopFeatures      []string `json:"global_top_model_features" yaml:"globalTopModelFeatures"`
}

// Assemble builds the explanation for r. The component probabilities are
// rounded to 3 places; the final probability is already rounded by Blend.
func Assemble(r *Result) Explanation {
	top := r.TopFeatures
	if top == nil {
		top = []string{}
	}
	return Explanation{
		FinalProbability: r.BlendedProbability,
		RuleProbability:  Round(r.RuleProbability, blendPlaces),
		ModelProbability: Round(r.ModelProbability, blendPlaces),
		Reasons:          r.Reasons(),
		TopFeatures:      top,
	}
}

// Response is the scoring payload returned to service callers.
type Response struct {
	DropoutProbability float64     `json:"dropout_probability" yaml:"dropoutProbability"`
	DeservingnessScore float64     `json:"deservingness_score" yaml:"deservingnessScore"`
	RiskTier           Tier        `json:"risk_tier" yaml:"riskTier"`
	Explanation        Explanation `json:"explanation" yaml:"explanation"`
}

// NewResponse converts a result into its response payload.
func NewResponse(r *Result) *Response {
	return &Response{
		DropoutProbability: r.BlendedProbability,
		DeservingnessScore: r.Deservingness,
		RiskTier:           r.Tier,
		Explanation:        Assemble(r),
	}
}

// Summarize counts results per tier. Every tier is present in the map.
func Summarize(results []*Result) map[Tier]int {
	m := make(map[Tier]int, len(Tiers()))
	for _, t := range Tiers() {
		m[t] = 0
	}
	for _, r := range results {
		if r != nil {
			m[r.Tier]++
		}
	}
	return m
}
