// Package corpus renders cleaned records into retrievable documents.
package corpus

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/projectsamarth/samarth/internal/models"
	"github.com/projectsamarth/samarth/internal/records"
)

const (
	placeholder = "N/A"

	cropAttribution     = "Source: Ministry of Agriculture, data.gov.in"
	rainfallAttribution = "Source: India Meteorological Department, data.gov.in"
)

var monthNames = []string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

// documentNamespace seeds the name-based UUIDs of documents so the same
// source row always maps to the same id.
var documentNamespace = uuid.MustParse("5c1f2a0e-7d43-4b8e-9a61-2f0c4f1d9b7a")

// DocumentID returns the stable identity of the document rendered from the
// given source row.
func DocumentID(source models.Source, row int) uuid.UUID {
	return uuid.NewSHA1(documentNamespace, []byte(fmt.Sprintf("%s:%d", source, row)))
}

// Normalize renders a record as a Document. It has no side effects. Missing
// optional fields render as "N/A" or 0; a missing source tag or citation
// field yields a *DataError.
func Normalize(rec records.Record) (models.Document, error) {
	if !rec.Source.Valid() {
		return models.Document{}, &DataError{Row: rec.Row, Field: models.MetaSource}
	}
	for _, col := range records.RequiredColumns(rec.Source) {
		if _, ok := rec.Get(col); !ok {
			return models.Document{}, &DataError{Source: rec.Source, Row: rec.Row, Field: col}
		}
	}

	switch rec.Source {
	case models.SourceCropProduction:
		return normalizeCrop(rec), nil
	default:
		return normalizeRainfall(rec), nil
	}
}

// Yield returns production per unit area, or 0 when area is not positive.
// Non-finite inputs, and a quotient that overflows, also yield 0.
func Yield(production, area float64) float64 {
	if !(area > 0) || math.IsInf(area, 0) || math.IsNaN(production) || math.IsInf(production, 0) {
		return 0
	}
	y := production / area
	if math.IsNaN(y) || math.IsInf(y, 0) {
		return 0
	}
	return y
}

func normalizeCrop(rec records.Record) models.Document {
	state := text(rec, records.ColState)
	district := text(rec, records.ColDistrict)
	crop := text(rec, records.ColCrop)
	season := text(rec, records.ColSeason)
	year := yearText(rec, records.ColCropYear)
	area := number(rec, records.ColArea)
	production := number(rec, records.ColProduction)

	var b strings.Builder
	b.WriteString("Agricultural Production Data:\n")
	fmt.Fprintf(&b, "State: %s\n", state)
	fmt.Fprintf(&b, "District: %s\n", district)
	fmt.Fprintf(&b, "Crop: %s\n", crop)
	fmt.Fprintf(&b, "Season: %s\n", season)
	fmt.Fprintf(&b, "Year: %s\n", year)
	fmt.Fprintf(&b, "Area: %s hectares\n", formatNumber(area))
	fmt.Fprintf(&b, "Production: %s tonnes\n", formatNumber(production))
	fmt.Fprintf(&b, "Yield: %.2f tonnes/hectare\n", Yield(production, area))
	b.WriteString(cropAttribution)

	return models.Document{
		ID:   DocumentID(rec.Source, rec.Row),
		Text: b.String(),
		Metadata: map[string]string{
			models.MetaSource:   string(models.SourceCropProduction),
			models.MetaState:    state,
			models.MetaDistrict: district,
			models.MetaCrop:     crop,
			models.MetaYear:     year,
			models.MetaSeason:   season,
		},
	}
}

func normalizeRainfall(rec records.Record) models.Document {
	subdivision := text(rec, records.ColSubdivision)
	year := yearText(rec, records.ColYear)

	var b strings.Builder
	b.WriteString("Climate Data - Rainfall:\n")
	fmt.Fprintf(&b, "Subdivision: %s\n", subdivision)
	fmt.Fprintf(&b, "Year: %s\n", year)
	for i, col := range records.MonthColumns {
		fmt.Fprintf(&b, "%s: %s mm\n", monthNames[i], formatNumber(number(rec, col)))
	}
	fmt.Fprintf(&b, "Annual Total: %s mm\n", formatNumber(number(rec, records.ColAnnual)))
	b.WriteString(rainfallAttribution)

	return models.Document{
		ID:   DocumentID(rec.Source, rec.Row),
		Text: b.String(),
		Metadata: map[string]string{
			models.MetaSource:      string(models.SourceRainfall),
			models.MetaSubdivision: subdivision,
			models.MetaYear:        year,
		},
	}
}

func text(rec records.Record, col string) string {
	if v, ok := rec.Get(col); ok {
		return v
	}
	return placeholder
}

// yearText renders "2004.0" (as written by pandas) as "2004".
func yearText(rec records.Record, col string) string {
	v, ok := rec.Get(col)
	if !ok {
		return placeholder
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil && f == math.Trunc(f) && !math.IsInf(f, 0) {
		return strconv.FormatInt(int64(f), 10)
	}
	return v
}

// number parses a numeric field; missing, malformed and non-finite values
// read as 0.
func number(rec records.Record, col string) float64 {
	v, ok := rec.Get(col)
	if !ok {
		return 0
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", ""), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
