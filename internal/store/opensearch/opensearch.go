// Package opensearch implements store.Client on an OpenSearch cluster with the k-NN plugin.
package opensearch

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	opensearch "github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
	"go.uber.org/zap"

	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/internal/store"
)

// Config holds connection settings.
type Config struct {
	Addresses          []string
	Username           string
	Password           string
	Compress           bool
	Timeout            time.Duration
	MaxRetries         int
	RetryOnTimeout     bool
	InsecureSkipVerify bool
	// Refresh makes each write visible to search before the call returns.
	Refresh bool
}

// Client talks to OpenSearch. Safe for concurrent use.
type Client struct {
	os        *opensearch.Client
	transport *http.Transport
	timeout   time.Duration
	refresh   bool
	logger    *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

var _ store.Client = (*Client)(nil)

// New connects to the cluster and verifies it answers. An unreachable cluster is models.ErrStoreUnavailable.
func New(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	if len(cfg.Addresses) == 0 {
		return nil, fmt.Errorf("%w: no opensearch addresses configured", models.ErrInvalidArgument)
	}
	transport := &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}, //nolint:gosec
	}
	osClient, err := opensearch.NewClient(opensearch.Config{
		Addresses:            cfg.Addresses,
		Username:             cfg.Username,
		Password:             cfg.Password,
		Transport:            transport,
		CompressRequestBody:  cfg.Compress,
		MaxRetries:           cfg.MaxRetries,
		EnableRetryOnTimeout: cfg.RetryOnTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create opensearch client: %w", err)
	}
	c := &Client{
		os:        osClient,
		transport: transport,
		timeout:   cfg.Timeout,
		refresh:   cfg.Refresh,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	info, err := c.do(ctx, opensearchapi.InfoRequest{})
	if err != nil {
		return nil, err
	}
	defer info.Body.Close()
	if info.IsError() {
		return nil, c.responseError(info, "")
	}
	var body struct {
		ClusterName string `json:"cluster_name"`
		Version     struct {
			Number string `json:"number"`
		} `json:"version"`
	}
	_ = json.NewDecoder(info.Body).Decode(&body)
	c.logger.Info("connected to opensearch",
		zap.Strings("addresses", cfg.Addresses),
		zap.String("cluster", body.ClusterName),
		zap.String("version", body.Version.Number),
	)
	return c, nil
}

// request is satisfied by every opensearchapi request type.
type request interface {
	Do(ctx context.Context, transport opensearchapi.Transport) (*opensearchapi.Response, error)
}

// do runs req with the configured per-request timeout. Transport failures are models.ErrStoreUnavailable.
func (c *Client) do(ctx context.Context, req request) (*opensearchapi.Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	res, err := req.Do(ctx, c.os)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	// Bodies are read after do returns, so buffer them before the timeout context is released.
	body, err := io.ReadAll(res.Body)
	_ = res.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", models.ErrStoreUnavailable, err)
	}
	res.Body = io.NopCloser(bytes.NewReader(body))
	return res, nil
}

// IndexExists reports whether the index exists.
func (c *Client) IndexExists(ctx context.Context, name string) (bool, error) {
	res, err := c.do(ctx, opensearchapi.IndicesExistsRequest{Index: []string{name}})
	if err != nil {
		return false, err
	}
	defer res.Body.Close()
	switch {
	case res.StatusCode == http.StatusOK:
		return true, nil
	case res.StatusCode == http.StatusNotFound:
		return false, nil
	default:
		return false, c.responseError(res, name)
	}
}

// CreateIndex creates the index with knn mappings for every schema field.
func (c *Client) CreateIndex(ctx context.Context, name string, schema *store.Schema) error {
	if schema == nil {
		schema = store.DefaultSchema()
	}
	body, err := encode(indexBody(schema))
	if err != nil {
		return err
	}
	res, err := c.do(ctx, opensearchapi.IndicesCreateRequest{Index: name, Body: body})
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		err := c.responseError(res, name)
		if errors.Is(err, errAlreadyExists) {
			c.logger.Debug("index already exists", zap.String("index", name))
			return nil
		}
		return err
	}
	c.logger.Info("index created", zap.String("index", name))
	return nil
}

// DropIndex deletes the index. A missing index is not an error.
func (c *Client) DropIndex(ctx context.Context, name string) error {
	res, err := c.do(ctx, opensearchapi.IndicesDeleteRequest{Index: []string{name}})
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		err := c.responseError(res, name)
		if errors.Is(err, models.ErrIndexMissing) {
			return nil
		}
		return err
	}
	c.logger.Info("index deleted", zap.String("index", name))
	return nil
}

// Count returns the number of documents in the index.
func (c *Client) Count(ctx context.Context, name string) (int64, error) {
	res, err := c.do(ctx, opensearchapi.CountRequest{Index: []string{name}})
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, c.responseError(res, name)
	}
	var body countResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("%w: decode count: %v", models.ErrStoreUnavailable, err)
	}
	return body.Count, nil
}

// UpsertDocument sends a scripted update with an upsert document. The engine applies it
// atomically against the document's current version and answers 409 when it lost a race.
func (c *Client) UpsertDocument(ctx context.Context, name string, upd *models.DocumentUpdate) error {
	body, err := encode(updateBody(upd))
	if err != nil {
		return err
	}
	req := opensearchapi.UpdateRequest{
		Index:      name,
		DocumentID: models.DocumentKey(upd.ID),
		Body:       body,
	}
	if c.refresh {
		req.Refresh = "true"
	}
	res, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return c.responseError(res, name)
	}
	return nil
}

// GetDocument fetches a document with both vector fields.
func (c *Client) GetDocument(ctx context.Context, name string, id int64) (*models.Document, error) {
	res, err := c.do(ctx, opensearchapi.GetRequest{Index: name, DocumentID: models.DocumentKey(id)})
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.IsError() {
		err := c.responseError(res, name)
		if res.StatusCode == http.StatusNotFound && !errors.Is(err, models.ErrIndexMissing) {
			return nil, fmt.Errorf("%w: document %d", models.ErrNotFound, id)
		}
		return nil, err
	}
	var body getResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode document: %v", models.ErrStoreUnavailable, err)
	}
	if !body.Found {
		return nil, fmt.Errorf("%w: document %d", models.ErrNotFound, id)
	}
	md := body.Source.Metadata
	if md == nil {
		md = models.Metadata{}
	}
	return &models.Document{
		ID:          id,
		TextVector:  body.Source.TextVector,
		ImageVector: body.Source.ImageVector,
		Metadata:    md,
		Version:     body.Version,
	}, nil
}

// Search runs a knn query against the query kind's field and returns hits with metadata only.
func (c *Client) Search(ctx context.Context, name string, query *models.KNNQuery) ([]models.Hit, error) {
	body, err := encode(knnBody(query))
	if err != nil {
		return nil, err
	}
	res, err := c.do(ctx, opensearchapi.SearchRequest{Index: []string{name}, Body: body})
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, c.responseError(res, name)
	}
	var sr searchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("%w: decode search: %v", models.ErrStoreUnavailable, err)
	}
	return sr.toHits()
}

// Stats returns the index uuid and document count.
func (c *Client) Stats(ctx context.Context, name string) (*store.IndexStats, error) {
	res, err := c.do(ctx, opensearchapi.IndicesGetSettingsRequest{Index: []string{name}})
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, c.responseError(res, name)
	}
	var settings settingsResponse
	if err := json.NewDecoder(res.Body).Decode(&settings); err != nil {
		return nil, fmt.Errorf("%w: decode settings: %v", models.ErrStoreUnavailable, err)
	}
	n, err := c.Count(ctx, name)
	if err != nil {
		return nil, err
	}
	return &store.IndexStats{
		Name:      name,
		UUID:      settings[name].Settings.Index.UUID,
		Documents: n,
		Backend:   "opensearch",
	}, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.transport.CloseIdleConnections()
	return nil
}
