package opensearch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/internal/store"
)

// indexBody builds the create-index request: knn enabled, one knn_vector mapping per
// schema field and an object mapping for metadata.
func indexBody(schema *store.Schema) map[string]any {
	props := make(map[string]any, len(schema.VectorFields)+1)
	space := store.SpaceCosine
	for _, f := range schema.VectorFields {
		props[f.Name] = map[string]any{
			"type":      "knn_vector",
			"dimension": f.Dimension,
			"method": map[string]any{
				"name":       f.Method,
				"space_type": f.Space,
				"engine":     f.Engine,
			},
		}
		space = f.Space
	}
	props[schema.MetadataField] = map[string]any{"type": "object"}
	return map[string]any{
		"settings": map[string]any{
			"index": map[string]any{
				"knn":            true,
				"knn.space_type": space,
			},
		},
		"mappings": map[string]any{"properties": props},
	}
}

// replaceScript overwrites one vector field and the whole metadata object of an
// existing document. A partial "doc" update would merge metadata key by key instead.
const replaceScript = "ctx._source[params.field] = params.vector; ctx._source.metadata = params.metadata"

// updateBody builds a scripted update that creates the document from "upsert" when
// absent. Only the update's vector field and metadata are touched, so the other
// field survives while metadata is replaced as a whole.
func updateBody(upd *models.DocumentUpdate) map[string]any {
	md := upd.Metadata
	if md == nil {
		md = models.Metadata{}
	}
	return map[string]any{
		"script": map[string]any{
			"lang":   "painless",
			"source": replaceScript,
			"params": map[string]any{
				"field":    upd.Kind.Field(),
				"vector":   upd.Vector,
				"metadata": md,
			},
		},
		"upsert": map[string]any{
			upd.Kind.Field():     upd.Vector,
			models.MetadataField: md,
		},
	}
}

// knnBody builds a k-NN query restricted to the query kind's field.
func knnBody(q *models.KNNQuery) map[string]any {
	return map[string]any{
		"size": q.TopK,
		"query": map[string]any{
			"knn": map[string]any{
				q.Kind.Field(): map[string]any{
					"vector": q.Vector,
					"k":      q.TopK,
				},
			},
		},
		"_source": []string{models.MetadataField},
	}
}

func encode(body any) (io.Reader, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	return &buf, nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string  `json:"_id"`
			Score  float64 `json:"_score"`
			Source struct {
				Metadata models.Metadata `json:"metadata"`
			} `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (r *searchResponse) toHits() ([]models.Hit, error) {
	hits := make([]models.Hit, 0, len(r.Hits.Hits))
	for _, h := range r.Hits.Hits {
		id, err := models.ParseDocumentKey(h.ID)
		if err != nil {
			return nil, err
		}
		md := h.Source.Metadata
		if md == nil {
			md = models.Metadata{}
		}
		hits = append(hits, models.Hit{ID: id, Score: h.Score, Metadata: md})
	}
	return hits, nil
}

type getResponse struct {
	ID     string `json:"_id"`
	Found  bool   `json:"found"`
	Source struct {
		TextVector  []float32       `json:"text_vector_embeddings"`
		ImageVector []float32       `json:"image_vector_embeddings"`
		Metadata    models.Metadata `json:"metadata"`
	} `json:"_source"`
	Version int64 `json:"_version"`
}

type countResponse struct {
	Count int64 `json:"count"`
}

type settingsResponse map[string]struct {
	Settings struct {
		Index struct {
			UUID string `json:"uuid"`
		} `json:"index"`
	} `json:"settings"`
}

// errorResponse is the error envelope OpenSearch returns with non-2xx statuses.
type errorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
	Status int `json:"status"`
}
