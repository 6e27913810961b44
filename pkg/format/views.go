package format

import (
	"fmt"
	"strings"
	"time"

	"github.com/mchmarny/dropscore/pkg/data"
	"github.com/mchmarny/dropscore/pkg/model"
	"github.com/mchmarny/dropscore/pkg/net"
	"github.com/mchmarny/dropscore/pkg/score"
)

const timeLayout = "2006-01-02 15:04:05"

// Students is a list of stored students.
type Students []*data.Student

func (s Students) Header() []string {
	return []string{"ID", "Name", "District", "Fields", "Created"}
}

func (s Students) Rows() [][]any {
	rows := make([][]any, 0, len(s))
	for _, st := range s {
		rows = append(rows, []any{st.ID, st.Name, st.District, len(st.Attributes), st.CreatedAt.Local().Format(timeLayout)})
	}
	return rows
}

func (s Students) NumericColumns() []int { return []int{1, 4} }

// Predictions is the prediction history of a student.
type Predictions []*data.Prediction

func (p Predictions) Header() []string {
	return []string{"ID", "Student", "Probability", "Rule", "Model", "Deservingness", "Tier", "Run", "Created"}
}

func (p Predictions) Rows() [][]any {
	rows := make([][]any, 0, len(p))
	for _, pr := range p {
		rows = append(rows, []any{
			pr.ID,
			pr.StudentID,
			num(pr.Probability, 3),
			num(pr.RuleProbability, 3),
			num(pr.ModelProbability, 3),
			num(pr.Deservingness, 2),
			pr.Tier,
			pr.ModelRun,
			pr.CreatedAt.Local().Format(timeLayout),
		})
	}
	return rows
}

func (p Predictions) NumericColumns() []int { return []int{2, 3, 4, 5, 6} }

// TierCounts counts records per tier.
type TierCounts map[score.Tier]int

func (t TierCounts) Header() []string {
	return []string{"Tier", "Count"}
}

func (t TierCounts) Rows() [][]any {
	rows := make([][]any, 0, len(score.Tiers())+1)
	total := 0
	for _, tier := range score.Tiers() {
		rows = append(rows, []any{tier, t[tier]})
		total += t[tier]
	}
	return append(rows, []any{"TOTAL", total})
}

func (t TierCounts) NumericColumns() []int { return []int{2} }

// Summary is the stored population summary.
type Summary data.Summary

func (s *Summary) Header() []string {
	return []string{"Metric", "Value"}
}

func (s *Summary) Rows() [][]any {
	rows := [][]any{
		{"Students", s.Students},
		{"Predictions", s.Predictions},
	}
	for _, tier := range score.Tiers() {
		rows = append(rows, []any{fmt.Sprintf("Latest %s", tier), s.Tiers[tier]})
	}
	return rows
}

func (s *Summary) NumericColumns() []int { return []int{2} }

// Response is a single scoring response.
type Response score.Response

func (r *Response) Header() []string {
	return []string{"Field", "Value"}
}

func (r *Response) Rows() [][]any {
	rows := [][]any{
		{"Dropout probability", num(r.DropoutProbability, 3)},
		{"Deservingness", num(r.DeservingnessScore, 2)},
		{"Risk tier", r.RiskTier},
		{"Rule probability", num(r.Explanation.RuleProbability, 3)},
		{"Model probability", num(r.Explanation.ModelProbability, 3)},
	}
	for i, reason := range r.Explanation.Reasons {
		rows = append(rows, []any{fmt.Sprintf("Reason %d", i+1), reason})
	}
	if len(r.Explanation.TopFeatures) > 0 {
		rows = append(rows, []any{"Top model features", strings.Join(r.Explanation.TopFeatures, ", ")})
	}
	return rows
}

// Checks is a list of health poll results.
type Checks []*net.CheckResult

func (c Checks) Header() []string {
	return []string{"URL", "Healthy", "Model Run", "Latency", "Error"}
}

func (c Checks) Rows() [][]any {
	rows := make([][]any, 0, len(c))
	for _, r := range c {
		rows = append(rows, []any{r.URL, r.Healthy, r.ModelRun, r.Latency.Round(time.Millisecond), r.Error})
	}
	return rows
}

// ModelInfo describes a loaded artifact run.
type ModelInfo struct {
	Run           string             `json:"run" yaml:"run"`
	Dir           string             `json:"dir" yaml:"dir"`
	Classifier    string             `json:"classifier" yaml:"classifier"`
	Timestamp     string             `json:"timestamp" yaml:"timestamp"`
	InputFeatures []string           `json:"input_features,omitempty" yaml:"inputFeatures,omitempty"`
	Importances   []model.Importance `json:"global_feature_importances" yaml:"importances"`
}

// NewModelInfo describes a.
func NewModelInfo(a *model.Artifact) *ModelInfo {
	info := &ModelInfo{
		Run:        a.Run,
		Dir:        a.Dir,
		Classifier: fmt.Sprintf("%T", a.Classifier),
	}
	switch a.Classifier.(type) {
	case *model.ONNX:
		info.Classifier = "onnx"
	case *model.Linear:
		info.Classifier = "linear"
	}
	if a.Meta != nil {
		info.Timestamp = a.Meta.Timestamp
		info.InputFeatures = a.Meta.InputFeatures
		info.Importances = a.Meta.Importances
	}
	return info
}

func (m *ModelInfo) Header() []string {
	return []string{"Rank", "Feature", "Importance"}
}

func (m *ModelInfo) Rows() [][]any {
	rows := make([][]any, 0, len(m.Importances))
	for i, imp := range m.Importances {
		rows = append(rows, []any{i + 1, imp.Feature, num(imp.Value, 4)})
	}
	return rows
}

func (m *ModelInfo) NumericColumns() []int { return []int{1, 3} }

func num(f float64, places int) string {
	return fmt.Sprintf("%.*f", places, f)
}
