package corpus

import (
	"fmt"

	"github.com/projectsamarth/samarth/internal/models"
)

// DataError describes a record that cannot be rendered into a citable
// Document. The corpus builder skips such records and counts them.
type DataError struct {
	Source models.Source
	Row    int
	Field  string
}

func (e *DataError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("record %d: missing source tag", e.Row)
	}
	return fmt.Sprintf("%s record %d: missing required field %q", e.Source, e.Row, e.Field)
}
