package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrEmptyRecord is returned when the input holds no JSON object.
var ErrEmptyRecord = errors.New("no record provided")

// Decode reads one JSON object into a Raw record. Numbers are kept as
// json.Number so that large values and numeric strings coerce the same way.
func Decode(r io.Reader) (Raw, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("error reading record: %w", err)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, ErrEmptyRecord
	}

	d := json.NewDecoder(bytes.NewReader(b))
	d.UseNumber()

	var rec Raw
	if err := d.Decode(&rec); err != nil {
		return nil, fmt.Errorf("error decoding record: %w", err)
	}
	if rec == nil {
		return nil, ErrEmptyRecord
	}
	return rec, nil
}
