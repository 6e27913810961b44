package data

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mchmarny/dropscore/pkg/score"
)

const (
	insertPredictionSQL = `INSERT INTO prediction (
			id, student_id, probability, rule_probability, model_probability,
			deservingness, tier, explanation, model_run, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	selectPredictionsSQL = `SELECT id, student_id, probability, rule_probability, model_probability,
			deservingness, tier, explanation, model_run, created_at
		FROM prediction
		WHERE student_id = ?
		ORDER BY rowid DESC
	`

	selectTierSummarySQL = `SELECT tier, COUNT(*)
		FROM prediction
		WHERE rowid IN (SELECT MAX(rowid) FROM prediction GROUP BY student_id)
		GROUP BY tier
	`

	selectCountsSQL = `SELECT
			(SELECT COUNT(*) FROM student),
			(SELECT COUNT(*) FROM prediction)
	`
)

// Prediction is one stored scoring outcome of a student.
type Prediction struct {
	ID               string            `json:"id" yaml:"id"`
	StudentID        int64             `json:"student_id" yaml:"studentID"`
	Probability      float64           `json:"dropout_probability" yaml:"dropoutProbability"`
	RuleProbability  float64           `json:"rule_probability" yaml:"ruleProbability"`
	ModelProbability float64           `json:"model_probability" yaml:"modelProbability"`
	Deservingness    float64           `json:"deservingness_score" yaml:"deservingnessScore"`
	Tier             score.Tier        `json:"risk_tier" yaml:"riskTier"`
	Explanation      score.Explanation `json:"explanation" yaml:"explanation"`
	ModelRun         string            `json:"model_run,omitempty" yaml:"modelRun,omitempty"`
	CreatedAt        time.Time         `json:"created_at" yaml:"createdAt"`
}

// Summary counts students by the tier of their latest prediction.
type Summary struct {
	Students    int                `json:"students" yaml:"students"`
	Predictions int                `json:"predictions" yaml:"predictions"`
	Tiers       map[score.Tier]int `json:"tiers" yaml:"tiers"`
}

// SavePrediction stores the result for an existing student.
func SavePrediction(db *sql.DB, studentID int64, run string, r *score.Result) (*Prediction, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}
	if r == nil {
		return nil, errors.New("result required")
	}

	p := &Prediction{
		ID:               uuid.NewString(),
		StudentID:        studentID,
		Probability:      r.BlendedProbability,
		RuleProbability:  r.RuleProbability,
		ModelProbability: r.ModelProbability,
		Deservingness:    r.Deservingness,
		Tier:             r.Tier,
		Explanation:      score.Assemble(r),
		ModelRun:         run,
	}

	b, err := json.Marshal(p.Explanation)
	if err != nil {
		return nil, fmt.Errorf("error encoding explanation: %w", err)
	}

	created := now()
	if _, err := db.Exec(insertPredictionSQL,
		p.ID, p.StudentID, p.Probability, p.RuleProbability, p.ModelProbability,
		p.Deservingness, string(p.Tier), string(b), p.ModelRun, created); err != nil {
		return nil, fmt.Errorf("error inserting prediction for student %d: %w", studentID, err)
	}

	p.CreatedAt = parseTime(created)
	return p, nil
}

// SaveScored stores a student together with its prediction in a single
// transaction. Used by the batch and save-on-predict paths.
func SaveScored(db *sql.DB, students []*Student, results []*score.Result, run string) error {
	if db == nil {
		return errDBNotInitialized
	}
	if len(students) != len(results) {
		return fmt.Errorf("have %d results for %d students", len(results), len(students))
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("error starting save tx: %w", err)
	}

	for i, s := range students {
		attrs, err := encodeAttributes(s.Attributes)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("student %d: %w", i+1, err)
		}

		created := now()
		res, err := tx.Exec(insertStudentSQL, s.Name, s.District, attrs, created)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("error inserting student %d: %w", i+1, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("error reading student %d id: %w", i+1, err)
		}

		r := results[i]
		x, err := json.Marshal(score.Assemble(r))
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("error encoding explanation %d: %w", i+1, err)
		}
		if _, err := tx.Exec(insertPredictionSQL,
			uuid.NewString(), id, r.BlendedProbability, r.RuleProbability, r.ModelProbability,
			r.Deservingness, string(r.Tier), string(x), run, created); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("error inserting prediction %d: %w", i+1, err)
		}

		s.ID = id
		s.CreatedAt = parseTime(created)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing save: %w", err)
	}
	return nil
}

// ListPredictions returns every prediction of a student, newest first.
func ListPredictions(db *sql.DB, studentID int64) ([]*Prediction, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	rows, err := db.Query(selectPredictionsSQL, studentID)
	if err != nil {
		return nil, fmt.Errorf("error listing predictions: %w", err)
	}
	defer rows.Close()

	list := make([]*Prediction, 0)
	for rows.Next() {
		var (
			p       Prediction
			tier    string
			expl    string
			created string
		)
		if err := rows.Scan(&p.ID, &p.StudentID, &p.Probability, &p.RuleProbability,
			&p.ModelProbability, &p.Deservingness, &tier, &expl, &p.ModelRun, &created); err != nil {
			return nil, fmt.Errorf("error scanning prediction: %w", err)
		}
		if err := json.Unmarshal([]byte(expl), &p.Explanation); err != nil {
			return nil, fmt.Errorf("error decoding explanation of prediction %s: %w", p.ID, err)
		}
		p.Tier = score.Tier(tier)
		p.CreatedAt = parseTime(created)
		list = append(list, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating predictions: %w", err)
	}
	return list, nil
}

// GetSummary returns student and prediction totals and the tier counts of
// each student's latest prediction.
func GetSummary(db *sql.DB) (*Summary, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	s := &Summary{Tiers: make(map[score.Tier]int)}
	for _, t := range score.Tiers() {
		s.Tiers[t] = 0
	}

	if err := db.QueryRow(selectCountsSQL).Scan(&s.Students, &s.Predictions); err != nil {
		return nil, fmt.Errorf("error counting records: %w", err)
	}

	rows, err := db.Query(selectTierSummarySQL)
	if err != nil {
		return nil, fmt.Errorf("error summarizing tiers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			tier  string
			count int
		)
		if err := rows.Scan(&tier, &count); err != nil {
			return nil, fmt.Errorf("error scanning tier summary: %w", err)
		}
		s.Tiers[score.Tier(tier)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tier summary: %w", err)
	}
	return s, nil
}
