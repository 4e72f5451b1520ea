package bootstrap

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/hyperjump/ruiji/internal/models"
)

// LoadCatalog reads a seed catalog: a JSON array of {productId, name, description}.
// Every product must have a name.
func LoadCatalog(path string) ([]models.Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	var products []models.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("%w: parse catalog %s: %v", models.ErrInvalidArgument, path, err)
	}
	for i := range products {
		if err := products[i].Validate(); err != nil {
			return nil, fmt.Errorf("catalog entry %d: %w", i, err)
		}
	}
	return products, nil
}
