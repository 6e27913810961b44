// Package tabular reads batch CSV input and writes it back with the scoring
// columns appended.
package tabular

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/mchmarny/dropscore/pkg/record"
	"github.com/mchmarny/dropscore/pkg/score"
)

const (
	ColumnProbability   = "dropout_probability"
	ColumnDeservingness = "deservingness_score"
	ColumnTier          = "risk_tier"
	ColumnExplanation   = "explanation"

	utf8BOM = "\uFEFF"
)

// ErrNoHeader is returned for input without a header row.
var ErrNoHeader = errors.New("csv input has no header row")

// OutputColumns are appended to every batch output row, in this order.
func OutputColumns() []string {
	return []string{ColumnProbability, ColumnDeservingness, ColumnTier, ColumnExplanation}
}

// Table is a parsed CSV file. Rows are padded or truncated to the header
// width.
type Table struct {
	Header []string
	Rows   [][]string
}

// Read parses CSV with a header row.
func Read(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoHeader
		}
		return nil, fmt.Errorf("error reading csv header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	t := &Table{Header: header, Rows: make([][]string, 0)}
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading csv line %d: %w", line, err)
		}
		if blank(row) {
			continue
		}
		t.Rows = append(t.Rows, fit(row, len(header)))
	}
	return t, nil
}

// Records converts every row to a raw record keyed by header name.
// Empty cells are left out so they count as absent.
func (t *Table) Records() []record.Raw {
	list := make([]record.Raw, len(t.Rows))
	for i, row := range t.Rows {
		r := make(record.Raw, len(t.Header))
		for j, name := range t.Header {
			if name == "" {
				continue
			}
			if v := strings.TrimSpace(row[j]); v != "" {
				r[name] = v
			}
		}
		list[i] = r
	}
	return list
}

// Write emits the input columns followed by the scoring columns. A
// scoring column already present in the input is overwritten in place.
func Write(w io.Writer, t *Table, results []*score.Result) error {
	if len(results) != len(t.Rows) {
		return fmt.Errorf("have %d results for %d rows", len(results), len(t.Rows))
	}

	header := append([]string{}, t.Header...)
	pos := make(map[string]int, len(OutputColumns()))
	for _, c := range OutputColumns() {
		idx := slices.Index(header, c)
		if idx < 0 {
			header = append(header, c)
			idx = len(header) - 1
		}
		pos[c] = idx
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("error writing csv header: %w", err)
	}

	for i, row := range t.Rows {
		out := fit(row, len(header))
		cells, err := Cells(results[i])
		if err != nil {
			return fmt.Errorf("row %d: %w", i+1, err)
		}
		for c, v := range cells {
			out[pos[c]] = v
		}
		if err := cw.Write(out); err != nil {
			return fmt.Errorf("error writing csv row %d: %w", i+1, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("error flushing csv: %w", err)
	}
	return nil
}

// Cells renders the scoring columns for one result. The explanation is
// written as a JSON object.
func Cells(r *score.Result) (map[string]string, error) {
	b, err := json.Marshal(score.Assemble(r))
	if err != nil {
		return nil, fmt.Errorf("error encoding explanation: %w", err)
	}
	return map[string]string{
		ColumnProbability:   strconv.FormatFloat(r.BlendedProbability, 'f', -1, 64),
		ColumnDeservingness: strconv.FormatFloat(r.Deservingness, 'f', -1, 64),
		ColumnTier:          string(r.Tier),
		ColumnExplanation:   string(b),
	}, nil
}

func fit(row []string, n int) []string {
	out := make([]string, n)
	copy(out, row)
	return out
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
