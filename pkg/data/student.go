package data

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mchmarny/dropscore/pkg/record"
)

const (
	studentPageSizeDefault = 100

	insertStudentSQL = `INSERT INTO student (name, district, attributes, created_at)
		VALUES (?, ?, ?, ?)
	`

	selectStudentSQL = `SELECT id, name, district, attributes, created_at
		FROM student
		WHERE id = ?
	`

	selectStudentsSQL = `SELECT id, name, district, attributes, created_at
		FROM student
		ORDER BY id DESC
		LIMIT ?
	`

	deleteStudentPredictionsSQL = `DELETE FROM prediction WHERE student_id = ?`
	deleteStudentSQL            = `DELETE FROM student WHERE id = ?`
)

// Student is a stored record. Attributes holds the raw fields as received
// so the student can be scored again later.
type Student struct {
	ID         int64      `json:"id" yaml:"id"`
	Name       string     `json:"name,omitempty" yaml:"name,omitempty"`
	District   string     `json:"district,omitempty" yaml:"district,omitempty"`
	Attributes record.Raw `json:"attributes" yaml:"attributes"`
	CreatedAt  time.Time  `json:"created_at" yaml:"createdAt"`
}

// NewStudent wraps a raw record, lifting name and district when present.
func NewStudent(r record.Raw) *Student {
	c := record.Canonicalize(r)
	return &Student{
		Name:       c.Text("name"),
		District:   c.Text("district"),
		Attributes: r,
	}
}

// SaveStudent inserts s and sets its ID and creation time.
func SaveStudent(db *sql.DB, s *Student) error {
	if db == nil {
		return errDBNotInitialized
	}
	if s == nil {
		return errors.New("student required")
	}

	attrs, err := encodeAttributes(s.Attributes)
	if err != nil {
		return err
	}

	created := now()
	res, err := db.Exec(insertStudentSQL, s.Name, s.District, attrs, created)
	if err != nil {
		return fmt.Errorf("error inserting student: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("error reading student id: %w", err)
	}

	s.ID = id
	s.CreatedAt = parseTime(created)
	return nil
}

// GetStudent returns the student with id or ErrNotFound.
func GetStudent(db *sql.DB, id int64) (*Student, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	s, err := scanStudent(db.QueryRow(selectStudentSQL, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("student %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("error getting student %d: %w", id, err)
	}
	return s, nil
}

// ListStudents returns up to limit students, newest first.
func ListStudents(db *sql.DB, limit int) ([]*Student, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}
	if limit <= 0 {
		limit = studentPageSizeDefault
	}

	rows, err := db.Query(selectStudentsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing students: %w", err)
	}
	defer rows.Close()

	list := make([]*Student, 0)
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning student: %w", err)
		}
		list = append(list, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating students: %w", err)
	}
	return list, nil
}

// DeleteStudent removes the student and all of its predictions.
func DeleteStudent(db *sql.DB, id int64) error {
	if db == nil {
		return errDBNotInitialized
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("error starting delete tx: %w", err)
	}

	if _, err := tx.Exec(deleteStudentPredictionsSQL, id); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("error deleting predictions of student %d: %w", id, err)
	}

	res, err := tx.Exec(deleteStudentSQL, id)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("error deleting student %d: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("error reading delete result: %w", err)
	}
	if n == 0 {
		_ = tx.Rollback()
		return fmt.Errorf("student %d: %w", id, ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing delete: %w", err)
	}
	return nil
}

func encodeAttributes(r record.Raw) (string, error) {
	if r == nil {
		r = record.Raw{}
	}
	b, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("error encoding student attributes: %w", err)
	}
	return string(b), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStudent(row scanner) (*Student, error) {
	var (
		s       Student
		attrs   string
		created string
	)
	if err := row.Scan(&s.ID, &s.Name, &s.District, &attrs, &created); err != nil {
		return nil, err
	}

	d := json.NewDecoder(strings.NewReader(attrs))
	d.UseNumber()
	if err := d.Decode(&s.Attributes); err != nil {
		return nil, fmt.Errorf("error decoding attributes of student %d: %w", s.ID, err)
	}
	s.CreatedAt = parseTime(created)
	return &s, nil
}
