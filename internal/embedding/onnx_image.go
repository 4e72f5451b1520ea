//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ONNXImageEmbedder runs a CNN feature extractor exported to ONNX (input "input" of
// shape [1,3,224,224], output "output" of shape [1,dimensions]), e.g. ResNet-50 without
// its classification head.
type ONNXImageEmbedder struct {
	session      *ort.AdvancedSession
	dimensions   int
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	mu           sync.Mutex
}

// NewONNXImageEmbedder loads the image model at modelPath.
func NewONNXImageEmbedder(modelPath string, dimensions int) (*ONNXImageEmbedder, error) {
	if err := acquireRuntime(); err != nil {
		return nil, err
	}
	e := &ONNXImageEmbedder{dimensions: dimensions}
	ok := false
	defer func() {
		if !ok {
			_ = e.Close()
		}
	}()

	var err error
	if e.inputTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 3, ImageInputSize, ImageInputSize)); err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	if e.outputTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(dimensions))); err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	e.session, err = ort.NewAdvancedSession(
		modelPath,
		[]string{"input"},
		[]string{"output"},
		[]ort.ArbitraryTensor{e.inputTensor},
		[]ort.ArbitraryTensor{e.outputTensor},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	ok = true
	return e, nil
}

// EmbedImage decodes data and returns the pooled feature vector.
func (e *ONNXImageEmbedder) EmbedImage(_ context.Context, data []byte) ([]float32, error) {
	pixels, err := ImageTensor(data)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	copy(e.inputTensor.GetData(), pixels)
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	out := make([]float32, e.dimensions)
	copy(out, e.outputTensor.GetData())
	return out, nil
}

// Dimensions returns the embedding dimension.
func (e *ONNXImageEmbedder) Dimensions() int {
	return e.dimensions
}

// Close destroys the session and tensors.
func (e *ONNXImageEmbedder) Close() error {
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	if e.inputTensor != nil {
		_ = e.inputTensor.Destroy()
		e.inputTensor = nil
	}
	if e.outputTensor != nil {
		_ = e.outputTensor.Destroy()
		e.outputTensor = nil
	}
	releaseRuntime()
	return err
}
