package opensearch

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/hyperjump/ruiji/internal/models"
)

// fakeCluster is a single-node OpenSearch stand-in covering the endpoints the client uses.
type fakeCluster struct {
	mu      sync.Mutex
	indices map[string]*fakeIndex
	// conflicts makes the next n update calls answer 409.
	conflicts int
	// down makes every request answer 503.
	down bool
	// bodies records the last decoded request body per path.
	bodies map[string]map[string]any
	gzip   bool
}

type fakeIndex struct {
	uuid     string
	mappings map[string]any
	docs     map[string]map[string]any
	versions map[string]int64
}

func newFakeCluster(t *testing.T) (*fakeCluster, *httptest.Server) {
	t.Helper()
	f := &fakeCluster{indices: make(map[string]*fakeIndex), bodies: make(map[string]map[string]any)}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeCluster) body(path string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[path]
}

func (f *fakeCluster) sawGzip() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gzip
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func osError(w http.ResponseWriter, status int, typ, reason string) {
	writeJSON(w, status, map[string]any{
		"error":  map[string]any{"type": typ, "reason": reason},
		"status": status,
	})
}

func (f *fakeCluster) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var body map[string]any
	reader := io.Reader(r.Body)
	if r.Header.Get("Content-Encoding") == "gzip" {
		f.gzip = true
		gz, err := gzip.NewReader(r.Body)
		if err != nil {
			osError(w, 400, "parse_exception", err.Error())
			return
		}
		defer gz.Close()
		reader = gz
	}
	if data, _ := io.ReadAll(reader); len(data) > 0 {
		if err := json.Unmarshal(data, &body); err != nil {
			osError(w, 400, "parse_exception", err.Error())
			return
		}
	}
	f.bodies[r.URL.Path] = body

	if f.down {
		osError(w, 503, "cluster_block_exception", "cluster unavailable")
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if parts[0] == "" {
		writeJSON(w, 200, map[string]any{
			"cluster_name": "fake",
			"version":      map[string]any{"distribution": "opensearch", "number": "2.11.0"},
			"tagline":      "The OpenSearch Project: https://opensearch.org/",
		})
		return
	}
	name := parts[0]
	idx, exists := f.indices[name]

	switch {
	case len(parts) == 1 && r.Method == http.MethodHead:
		if exists {
			w.WriteHeader(200)
		} else {
			w.WriteHeader(404)
		}
	case len(parts) == 1 && r.Method == http.MethodPut:
		if exists {
			osError(w, 400, "resource_already_exists_exception", fmt.Sprintf("index [%s] already exists", name))
			return
		}
		mappings, _ := body["mappings"].(map[string]any)
		f.indices[name] = &fakeIndex{
			uuid:     fmt.Sprintf("uuid-%s-%d", name, len(f.bodies)),
			mappings: mappings,
			docs:     make(map[string]map[string]any),
			versions: make(map[string]int64),
		}
		writeJSON(w, 200, map[string]any{"acknowledged": true, "index": name})
	case !exists:
		osError(w, 404, "index_not_found_exception", "no such index ["+name+"]")
	case len(parts) == 1 && r.Method == http.MethodDelete:
		delete(f.indices, name)
		writeJSON(w, 200, map[string]any{"acknowledged": true})
	case parts[1] == "_count":
		writeJSON(w, 200, map[string]any{"count": len(idx.docs)})
	case parts[1] == "_settings":
		writeJSON(w, 200, map[string]any{name: map[string]any{"settings": map[string]any{"index": map[string]any{"uuid": idx.uuid}}}})
	case parts[1] == "_update" && len(parts) == 3:
		f.update(w, idx, name, parts[2], body)
	case parts[1] == "_doc" && len(parts) == 3:
		src, ok := idx.docs[parts[2]]
		if !ok {
			writeJSON(w, 404, map[string]any{"_index": name, "_id": parts[2], "found": false})
			return
		}
		writeJSON(w, 200, map[string]any{"_index": name, "_id": parts[2], "_version": idx.versions[parts[2]], "found": true, "_source": src})
	case parts[1] == "_search":
		f.search(w, idx, body)
	default:
		osError(w, 400, "illegal_argument_exception", "unsupported "+r.Method+" "+r.URL.Path)
	}
}

func (f *fakeCluster) update(w http.ResponseWriter, idx *fakeIndex, name, id string, body map[string]any) {
	if f.conflicts > 0 {
		f.conflicts--
		osError(w, 409, "version_conflict_engine_exception", "["+id+"]: version conflict")
		return
	}
	src, exists := idx.docs[id]

	// apply runs against a copy so a rejected update leaves the document untouched.
	next := make(map[string]any)
	for k, v := range src {
		next[k] = v
	}
	switch {
	case body["script"] != nil:
		script, _ := body["script"].(map[string]any)
		if !exists {
			upsert, _ := body["upsert"].(map[string]any)
			if upsert == nil {
				osError(w, 404, "document_missing_exception", "["+id+"]: document missing")
				return
			}
			mergeObject(next, upsert)
			break
		}
		if script["source"] != replaceScript {
			osError(w, 400, "illegal_argument_exception", "unsupported script")
			return
		}
		params, _ := script["params"].(map[string]any)
		field, _ := params["field"].(string)
		next[field] = params["vector"]
		next[models.MetadataField] = params["metadata"]
	case body["doc"] != nil:
		doc, _ := body["doc"].(map[string]any)
		if !exists && body["doc_as_upsert"] != true {
			osError(w, 404, "document_missing_exception", "["+id+"]: document missing")
			return
		}
		mergeObject(next, doc)
	default:
		osError(w, 400, "action_request_validation_exception", "script or doc is missing")
		return
	}

	for field, v := range next {
		if vec, ok := v.([]any); ok {
			if want := fieldDimension(idx, field); want != len(vec) {
				osError(w, 400, "mapper_parsing_exception",
					fmt.Sprintf("Vector dimension mismatch. Expected: %d, Given: %d", want, len(vec)))
				return
			}
		}
	}
	idx.docs[id] = next
	idx.versions[id]++
	result := "updated"
	if !exists {
		result = "created"
	}
	writeJSON(w, 200, map[string]any{"_index": name, "_id": id, "_version": idx.versions[id], "result": result})
}

// mergeObject applies a partial doc the way the engine does: nested objects merge
// key by key, everything else is overwritten.
func mergeObject(dst, src map[string]any) {
	for k, v := range src {
		sub, isObj := v.(map[string]any)
		cur, curIsObj := dst[k].(map[string]any)
		if isObj && curIsObj {
			merged := make(map[string]any, len(cur)+len(sub))
			for ck, cv := range cur {
				merged[ck] = cv
			}
			mergeObject(merged, sub)
			dst[k] = merged
			continue
		}
		dst[k] = v
	}
}

func fieldDimension(idx *fakeIndex, field string) int {
	props, _ := idx.mappings["properties"].(map[string]any)
	f, _ := props[field].(map[string]any)
	d, _ := f["dimension"].(float64)
	return int(d)
}

func (f *fakeCluster) search(w http.ResponseWriter, idx *fakeIndex, body map[string]any) {
	query, _ := body["query"].(map[string]any)
	knn, _ := query["knn"].(map[string]any)
	var field string
	var clause map[string]any
	for k, v := range knn {
		field, clause = k, v.(map[string]any)
	}
	raw, _ := clause["vector"].([]any)
	k := int(clause["k"].(float64))
	if want := fieldDimension(idx, field); want != len(raw) {
		osError(w, 400, "illegal_argument_exception",
			fmt.Sprintf("Query vector has invalid dimension: %d. Dimension should be: %d", len(raw), want))
		return
	}

	type hit struct {
		id    string
		score float64
	}
	var hits []hit
	for id, src := range idx.docs {
		vec, ok := src[field].([]any)
		if !ok {
			continue
		}
		hits = append(hits, hit{id, 1 / (2 - cosine(raw, vec))})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > k {
		hits = hits[:k]
	}
	out := make([]map[string]any, 0, len(hits))
	for _, h := range hits {
		out = append(out, map[string]any{
			"_id":     h.id,
			"_score":  h.score,
			"_source": map[string]any{"metadata": idx.docs[h.id]["metadata"]},
		})
	}
	writeJSON(w, 200, map[string]any{"hits": map[string]any{"total": map[string]any{"value": len(out)}, "hits": out}})
}

func cosine(a, b []any) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := a[i].(float64), b[i].(float64)
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
