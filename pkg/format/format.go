// Package format renders command output as JSON, YAML, or terminal tables.
package format

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"
)

// Format is an output encoding.
type Format string

const (
	JSON  Format = "json"
	YAML  Format = "yaml"
	Table Format = "table"
)

// Formats lists the supported output formats.
func Formats() []string {
	return []string{string(JSON), string(YAML), string(Table)}
}

// Parse accepts a format name. Empty means JSON.
func Parse(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return JSON, nil
	case "yaml", "yml":
		return YAML, nil
	case "table", "text":
		return Table, nil
	default:
		return "", fmt.Errorf("unsupported output format: %q (valid: %s)", s, strings.Join(Formats(), ", "))
	}
}

// Tabular is implemented by values that know how to lay themselves out as
// a table.
type Tabular interface {
	Header() []string
	Rows() [][]any
}

// Encode writes v to w in format f. Values that are not Tabular are
// written as JSON when f is Table.
func Encode(w io.Writer, f Format, v any) error {
	switch f {
	case YAML:
		e := yaml.NewEncoder(w)
		e.SetIndent(2)
		if err := e.Encode(v); err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		return e.Close()
	case Table:
		if t, ok := v.(Tabular); ok {
			_, err := io.WriteString(w, Render(t)+"\n")
			return err
		}
	}

	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	if err := e.Encode(v); err != nil {
		return fmt.Errorf("encoding json: %w", err)
	}
	return nil
}

// Numeric is implemented by tables with right-aligned columns.
type Numeric interface {
	NumericColumns() []int
}

// Render lays t out as a light-style terminal table.
func Render(t Tabular) string {
	w := table.NewWriter()
	w.SetStyle(table.StyleLight)

	header := t.Header()
	row := make(table.Row, len(header))
	for i, h := range header {
		row[i] = h
	}
	w.AppendHeader(row)

	for _, r := range t.Rows() {
		w.AppendRow(table.Row(r))
	}

	if n, ok := t.(Numeric); ok {
		cols := n.NumericColumns()
		cfgs := make([]table.ColumnConfig, len(cols))
		for i, c := range cols {
			cfgs[i] = table.ColumnConfig{Number: c, Align: text.AlignRight}
		}
		w.SetColumnConfigs(cfgs)
	}
	return w.Render()
}
