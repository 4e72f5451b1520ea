//go:build !cgo
// +build !cgo

package embedding

import "errors"

var errNoCGO = errors.New("ONNX embedders require CGO; build with CGO_ENABLED=1 and onnxruntime")

// ONNXEmbedder stub type when built without CGO (see onnx.go for real implementation).
// It embeds MockEmbedder only to satisfy Embedder; it is never constructed.
type ONNXEmbedder struct{ MockEmbedder }

// NewONNXEmbedder returns an error when built without CGO (ONNX not available).
func NewONNXEmbedder(_ string, _, _ int, _ Tokenizer) (*ONNXEmbedder, error) {
	return nil, errNoCGO
}

// ONNXImageEmbedder stub type when built without CGO (see onnx_image.go for real implementation).
// It embeds MockImageEmbedder only to satisfy ImageEmbedder; it is never constructed.
type ONNXImageEmbedder struct{ MockImageEmbedder }

// NewONNXImageEmbedder returns an error when built without CGO (ONNX not available).
func NewONNXImageEmbedder(_ string, _ int) (*ONNXImageEmbedder, error) {
	return nil, errNoCGO
}
