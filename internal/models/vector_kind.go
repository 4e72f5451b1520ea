package models

import (
	"fmt"
	"strings"
)

// VectorKind selects which embedding field a vector belongs to.
type VectorKind int

const (
	// KindText is a sentence embedding of a product's name and description.
	KindText VectorKind = iota + 1
	// KindImage is a pooled CNN feature vector of a product image.
	KindImage
)

// Field names are part of the store contract and must not change.
const (
	TextVectorField  = "text_vector_embeddings"
	ImageVectorField = "image_vector_embeddings"
	MetadataField    = "metadata"
)

// Fixed dimensions of each embedding field.
const (
	TextDimension  = 768
	ImageDimension = 2048
)

// VectorKinds lists every kind in schema order.
var VectorKinds = []VectorKind{KindText, KindImage}

// String returns the wire name of the kind ("text" or "image").
func (k VectorKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindImage:
		return "image"
	default:
		return fmt.Sprintf("VectorKind(%d)", int(k))
	}
}

// Field returns the document field that stores vectors of this kind.
func (k VectorKind) Field() string {
	switch k {
	case KindText:
		return TextVectorField
	case KindImage:
		return ImageVectorField
	default:
		return ""
	}
}

// Dimension returns the declared vector length for this kind.
func (k VectorKind) Dimension() int {
	switch k {
	case KindText:
		return TextDimension
	case KindImage:
		return ImageDimension
	default:
		return 0
	}
}

// Valid reports whether k is a known kind.
func (k VectorKind) Valid() bool {
	return k == KindText || k == KindImage
}

// CheckDimension returns a *DimensionError when vec does not match the kind's dimension.
func (k VectorKind) CheckDimension(vec []float32) error {
	if !k.Valid() {
		return fmt.Errorf("%w: unknown vector kind %d", ErrInvalidArgument, int(k))
	}
	if len(vec) != k.Dimension() {
		return &DimensionError{Kind: k, Got: len(vec), Want: k.Dimension()}
	}
	return nil
}

// ParseVectorKind parses "text" or "image" (case-insensitive).
func ParseVectorKind(s string) (VectorKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text":
		return KindText, nil
	case "image":
		return KindImage, nil
	default:
		return 0, fmt.Errorf("%w: invalid search type %q (supported: text, image)", ErrInvalidArgument, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k VectorKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: unknown vector kind %d", ErrInvalidArgument, int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *VectorKind) UnmarshalText(b []byte) error {
	parsed, err := ParseVectorKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
