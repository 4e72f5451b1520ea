// Package cli provides output formatting and an HTTP client for the ruiji command.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/hyperjump/ruiji/internal/models"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact prints one result per line.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a -output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(s); f {
	case OutputText, OutputCompact, OutputJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text, compact, or json", s)
	}
}

// WriteSearchResults writes search results to w in the given format.
// Use OutputJSON for parseable output consumable by other apps.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, response)
	case OutputCompact:
		for _, hit := range response.Results {
			fmt.Fprintf(w, "%d\t%.4f\t%s\n", hit.ID, hit.Score, metadataString(hit.Metadata, "name"))
		}
		return nil
	default:
		writeSearchResultsText(w, response)
		return nil
	}
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) {
	if len(response.Results) == 0 {
		msg := response.Message
		if msg == "" {
			msg = "No results found"
		}
		fmt.Fprintf(w, "\n%s (%s search, %dms)\n", msg, response.Kind, response.QueryTime)
		return
	}
	fmt.Fprintf(w, "\nFound %d results in %dms (%s search)\n\n", response.Total, response.QueryTime, response.Kind)
	for i, hit := range response.Results {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Rank: %d | Score: %.4f\n", i+1, hit.Score)
		fmt.Fprintf(w, "Product ID: %d\n", hit.ID)
		if name := metadataString(hit.Metadata, "name"); name != "" {
			fmt.Fprintf(w, "Name: %s\n", name)
		}
		if desc := metadataString(hit.Metadata, "description"); desc != "" {
			fmt.Fprintf(w, "\n%s\n", Truncate(desc, 200))
		}
		fmt.Fprintln(w)
	}
}

// Status is the shape of GET /status.
type Status struct {
	Index          string `json:"index"`
	UUID           string `json:"uuid,omitempty"`
	Documents      int64  `json:"documents"`
	Backend        string `json:"backend"`
	DiskUsageBytes *int64 `json:"disk_usage_bytes,omitempty"`
}

// WriteStatus writes index status to w. Compact output is treated as text.
func WriteStatus(w io.Writer, status *Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, status)
	}
	fmt.Fprintf(w, "index:             %s\n", status.Index)
	fmt.Fprintf(w, "backend:           %s\n", status.Backend)
	fmt.Fprintf(w, "documents:         %d   # count of indexed products\n", status.Documents)
	if status.UUID != "" {
		fmt.Fprintf(w, "uuid:              %s   # changes on every reset\n", status.UUID)
	}
	if status.DiskUsageBytes != nil {
		fmt.Fprintf(w, "disk_usage_bytes:  %d\n", *status.DiskUsageBytes)
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// metadataString returns md[key] when it is a string.
func metadataString(md models.Metadata, key string) string {
	s, _ := md[key].(string)
	return s
}

// Truncate truncates s to maxLen and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
