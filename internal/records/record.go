// Package records reads cleaned crop-production and rainfall CSV files into
// immutable Records.
package records

import (
	"strings"

	"github.com/projectsamarth/samarth/internal/models"
)

// Column names of the cleaned datasets.
const (
	ColState      = "state_name"
	ColDistrict   = "district_name"
	ColCrop       = "crop"
	ColSeason     = "season"
	ColCropYear   = "crop_year"
	ColArea       = "area_"
	ColProduction = "production_"

	ColSubdivision = "subdivision"
	ColYear        = "year"
	ColAnnual      = "annual"
)

// MonthColumns lists the rainfall monthly totals in calendar order.
var MonthColumns = []string{"jan", "feb", "mar", "apr", "may", "jun", "jul", "aug", "sep", "oct", "nov", "dec"}

// RequiredColumns returns the columns a cleaned file for source must carry.
// They are the fields needed to cite a record.
func RequiredColumns(source models.Source) []string {
	switch source {
	case models.SourceCropProduction:
		return []string{ColState, ColDistrict, ColCrop, ColCropYear}
	case models.SourceRainfall:
		return []string{ColSubdivision, ColYear}
	}
	return nil
}

// Record is one cleaned source row. Row is the 1-based data row number in
// the originating file and, with Source, identifies the record.
type Record struct {
	Source models.Source
	Row    int
	Fields map[string]string
}

// Get returns the trimmed value of a field and whether it is present and
// non-empty.
func (r Record) Get(col string) (string, bool) {
	v, ok := r.Fields[col]
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	if v == "" || strings.EqualFold(v, "nan") {
		return "", false
	}
	return v, true
}
