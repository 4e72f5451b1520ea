package embedding

import (
	"fmt"

	"go.uber.org/zap"
)

// Supported providers.
const (
	ProviderMock = "mock"
	ProviderONNX = "onnx"
)

// Options selects and sizes the embedders.
type Options struct {
	Provider       string
	TextModelPath  string
	ImageModelPath string
	TextDimension  int
	ImageDimension int
	MaxTokens      int
	CacheSize      int
	// Vocabulary selects the text model's special token ids ("mpnet" or "bert").
	Vocabulary     string
}

// New builds the text and image embedders for opts.Provider. The text embedder is
// wrapped in an LRU cache when opts.CacheSize > 0.
func New(opts Options, logger *zap.Logger) (Embedder, ImageEmbedder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var (
		text  Embedder
		image ImageEmbedder
	)
	switch opts.Provider {
	case ProviderMock, "":
		text = NewMockEmbedder(opts.TextDimension)
		image = NewMockImageEmbedder(opts.ImageDimension)
	case ProviderONNX:
		special, err := SpecialTokensFor(opts.Vocabulary)
		if err != nil {
			return nil, nil, err
		}
		t, err := NewONNXEmbedder(opts.TextModelPath, opts.TextDimension, opts.MaxTokens, NewHashTokenizer(special))
		if err != nil {
			return nil, nil, fmt.Errorf("text embedder: %w", err)
		}
		i, err := NewONNXImageEmbedder(opts.ImageModelPath, opts.ImageDimension)
		if err != nil {
			_ = t.Close()
			return nil, nil, fmt.Errorf("image embedder: %w", err)
		}
		text, image = t, i
	default:
		return nil, nil, fmt.Errorf("unknown embedding provider: %s (supported: mock, onnx)", opts.Provider)
	}
	if opts.CacheSize > 0 {
		text = NewCachedEmbedder(text, opts.CacheSize)
	}
	logger.Info("embedders ready",
		zap.String("provider", opts.Provider),
		zap.Int("text_dimensions", text.Dimensions()),
		zap.Int("image_dimensions", image.Dimensions()),
	)
	return text, image, nil
}
