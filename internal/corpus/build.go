package corpus

import (
	"errors"

	"github.com/projectsamarth/samarth/internal/models"
	"github.com/projectsamarth/samarth/internal/records"
)

// Result is the ordered document set produced from a batch of records.
type Result struct {
	Documents []models.Document
	Skipped   int
	Errors    []*DataError
}

// Build normalizes every record in input order. Records that fail with a
// DataError are skipped and reported; they never abort the batch.
func Build(recs []records.Record) Result {
	res := Result{Documents: make([]models.Document, 0, len(recs))}
	for _, rec := range recs {
		doc, err := Normalize(rec)
		if err != nil {
			var de *DataError
			if !errors.As(err, &de) {
				de = &DataError{Source: rec.Source, Row: rec.Row}
			}
			res.Skipped++
			res.Errors = append(res.Errors, de)
			continue
		}
		res.Documents = append(res.Documents, doc)
	}
	return res
}
