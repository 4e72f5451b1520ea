package store

import "github.com/hyperjump/ruiji/internal/models"

// Defaults for the approximate-NN method of every vector field.
const (
	SpaceCosine  = "cosinesimil"
	MethodHNSW   = "hnsw"
	EngineNMSLib = "nmslib"
)

// VectorField declares one knn vector field.
type VectorField struct {
	Name      string `json:"name"`
	Dimension int    `json:"dimension"`
	Space     string `json:"space_type"`
	Method    string `json:"method"`
	Engine    string `json:"engine"`
}

// Schema is the fixed index layout: one vector field per kind plus an opaque metadata object.
type Schema struct {
	VectorFields  []VectorField `json:"vector_fields"`
	MetadataField string        `json:"metadata_field"`
}

// DefaultSchema returns the schema with a cosine HNSW field for every vector kind.
func DefaultSchema() *Schema {
	s := &Schema{MetadataField: models.MetadataField}
	for _, kind := range models.VectorKinds {
		s.VectorFields = append(s.VectorFields, VectorField{
			Name:      kind.Field(),
			Dimension: kind.Dimension(),
			Space:     SpaceCosine,
			Method:    MethodHNSW,
			Engine:    EngineNMSLib,
		})
	}
	return s
}

// Field returns the declared field with the given name.
func (s *Schema) Field(name string) (VectorField, bool) {
	for _, f := range s.VectorFields {
		if f.Name == name {
			return f, true
		}
	}
	return VectorField{}, false
}
