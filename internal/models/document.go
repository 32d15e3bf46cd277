package models

import (
	"github.com/google/uuid"
)

// Source identifies which cleaned dataset a record came from.
type Source string

const (
	SourceCropProduction Source = "crop_production"
	SourceRainfall       Source = "rainfall"
)

func (s Source) Valid() bool {
	return s == SourceCropProduction || s == SourceRainfall
}

// Metadata keys carried by every Document. Crop documents use state,
// district, crop and season; rainfall documents use subdivision.
const (
	MetaSource      = "source"
	MetaState       = "state"
	MetaDistrict    = "district"
	MetaCrop        = "crop"
	MetaSeason      = "season"
	MetaYear        = "year"
	MetaSubdivision = "subdivision"
)

// Document is the rendered, citable form of exactly one Record. It is never
// mutated after creation.
type Document struct {
	ID       uuid.UUID         `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
}

// Source returns the dataset tag stored in the metadata.
func (d Document) Source() Source {
	return Source(d.Metadata[MetaSource])
}

// Citation renders the location/year pair used to cite the document.
func (d Document) Citation() string {
	switch d.Source() {
	case SourceRainfall:
		return d.Metadata[MetaSubdivision] + ", " + d.Metadata[MetaYear]
	default:
		return d.Metadata[MetaDistrict] + ", " + d.Metadata[MetaState] + ", " + d.Metadata[MetaYear]
	}
}
