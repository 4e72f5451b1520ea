package models

// Hit is a single nearest-neighbor match. Raw vectors are never returned.
type Hit struct {
	ID       int64    `json:"product_id"`
	Score    float64  `json:"score"`
	Metadata Metadata `json:"metadata"`
}

// SearchResponse is the response for a search request.
// An empty Results slice means "no matches", which is distinct from a failed search.
type SearchResponse struct {
	Results   []Hit  `json:"results"`
	Total     int    `json:"total"`
	Kind      string `json:"searchType"`
	QueryTime int64  `json:"query_time_ms"`
	Message   string `json:"message,omitempty"`
}

// ProductView is what callers see of a stored document: its metadata and which vector fields are set.
type ProductView struct {
	ID       int64    `json:"product_id"`
	Metadata Metadata `json:"metadata"`
	HasText  bool     `json:"has_text_vector"`
	HasImage bool     `json:"has_image_vector"`
}

// View projects d without its raw vectors.
func (d *Document) View() *ProductView {
	return &ProductView{
		ID:       d.ID,
		Metadata: d.Metadata,
		HasText:  len(d.TextVector) > 0,
		HasImage: len(d.ImageVector) > 0,
	}
}
