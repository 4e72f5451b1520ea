package opensearch

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
	"go.uber.org/zap"

	"github.com/hyperjump/ruiji/internal/models"
)

// errAlreadyExists is returned for resource_already_exists_exception; CreateIndex treats it as success.
var errAlreadyExists = errors.New("index already exists")

// responseError maps a non-2xx response onto the store error taxonomy.
func (c *Client) responseError(res *opensearchapi.Response, index string) error {
	var body errorResponse
	_ = json.NewDecoder(res.Body).Decode(&body)
	reason := body.Error.Reason
	if reason == "" {
		reason = res.String()
	}
	err := classifyStatus(res.StatusCode, body.Error.Type, reason)
	c.logger.Debug("opensearch request failed",
		zap.String("index", index),
		zap.Int("status", res.StatusCode),
		zap.String("type", body.Error.Type),
		zap.Error(err),
	)
	return err
}

func classifyStatus(status int, errType, reason string) error {
	switch {
	case errType == "resource_already_exists_exception":
		return fmt.Errorf("%w: %s", errAlreadyExists, reason)
	case errType == "index_not_found_exception":
		return fmt.Errorf("%w: %s", models.ErrIndexMissing, reason)
	case status == http.StatusConflict:
		return fmt.Errorf("%w: %s", models.ErrWriteConflict, reason)
	case status == http.StatusBadRequest && strings.Contains(strings.ToLower(reason), "dimension"):
		return fmt.Errorf("%w: %s", models.ErrDimensionMismatch, reason)
	case status == http.StatusBadRequest:
		return fmt.Errorf("%w: %s", models.ErrInvalidArgument, reason)
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", models.ErrNotFound, reason)
	default:
		return fmt.Errorf("%w: status %d: %s", models.ErrStoreUnavailable, status, reason)
	}
}
