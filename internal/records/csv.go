package records

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/projectsamarth/samarth/internal/models"
)

// MissingColumnsError reports a cleaned file whose header lacks required
// columns.
type MissingColumnsError struct {
	Source  models.Source
	Missing []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("%s data is missing required columns: %s", e.Source, strings.Join(e.Missing, ", "))
}

// LoadFile reads the cleaned CSV at path.
func LoadFile(path string, source models.Source) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s data: %w", source, err)
	}
	defer f.Close()

	recs, err := LoadCSV(f, source)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return recs, nil
}

// LoadCSV parses a cleaned CSV stream. Header names are normalised to lower
// case and trimmed. Rows are returned in file order.
func LoadCSV(r io.Reader, source models.Source) ([]Record, error) {
	if !source.Valid() {
		return nil, fmt.Errorf("unknown source %q", source)
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &MissingColumnsError{Source: source, Missing: RequiredColumns(source)}
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i, h := range header {
		header[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	}

	if missing := missingColumns(header, RequiredColumns(source)); len(missing) > 0 {
		return nil, &MissingColumnsError{Source: source, Missing: missing}
	}

	var out []Record
	for row := 1; ; row++ {
		cols, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", row, err)
		}

		fields := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(cols) && name != "" {
				fields[name] = cols[i]
			}
		}
		out = append(out, Record{Source: source, Row: row, Fields: fields})
	}
	return out, nil
}

func missingColumns(header, required []string) []string {
	have := make(map[string]bool, len(header))
	for _, h := range header {
		have[h] = true
	}
	var missing []string
	for _, c := range required {
		if !have[c] {
			missing = append(missing, c)
		}
	}
	return missing
}
