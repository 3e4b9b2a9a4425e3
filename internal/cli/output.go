package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

func parseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text or json)", s)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteQueryResult writes a single-collection result in the given format.
func WriteQueryResult(w io.Writer, result models.QueryResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, result)
	}
	fmt.Fprintf(w, "\nFound %d results\n\n", result.Len())
	for i, m := range result.Metadata {
		writeOneHit(w, i+1, "", m)
	}
	return nil
}

// WriteMultiQueryResult writes a multi-collection result. Text output lists collections in the order
// given by ids and skips collections without hits.
func WriteMultiQueryResult(w io.Writer, ids []string, result models.MultiQueryResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, result)
	}
	total := 0
	for _, r := range result {
		total += r.Len()
	}
	fmt.Fprintf(w, "\nFound %d results in %d collections\n\n", total, len(result))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		r, ok := result[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		for i, m := range r.Metadata {
			writeOneHit(w, i+1, id, m)
		}
	}
	return nil
}

func writeOneHit(w io.Writer, rank int, collectionID string, m models.Metadata) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	if collectionID != "" {
		fmt.Fprintf(w, "[%s] ", collectionID)
	}
	fmt.Fprintf(w, "Rank: %d | Hash: %d | Index: %d\n", rank, m.Hash, m.Index)
	fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(m.Text, 200))
}

// WriteHashes writes stored hashes sorted ascending, one per line, or as a JSON array.
func WriteHashes(w io.Writer, hashes []int64, format OutputFormat) error {
	sorted := append([]int64{}, hashes...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	if format == OutputJSON {
		return writeJSON(w, sorted)
	}
	for _, h := range sorted {
		fmt.Fprintln(w, h)
	}
	return nil
}

// statusResponse mirrors the fields of GET /api/vector/status used by the CLI.
type statusResponse struct {
	VectorsPath    string   `json:"vectors_path"`
	DiskUsageBytes int64    `json:"disk_usage_bytes"`
	Sources        []string `json:"sources"`
	OpenPartitions int      `json:"open_partitions"`
}

// WriteStatus writes the store status in the given format.
func WriteStatus(w io.Writer, s statusResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, s)
	}
	fmt.Fprintf(w, "vectors_path:       %s\n", s.VectorsPath)
	fmt.Fprintf(w, "disk_usage_bytes:   %d   # partition files on disk\n", s.DiskUsageBytes)
	fmt.Fprintf(w, "open_partitions:    %d\n", s.OpenPartitions)
	if len(s.Sources) > 0 {
		fmt.Fprintf(w, "sources:            %s\n", strings.Join(s.Sources, ", "))
	} else {
		fmt.Fprintln(w, "sources:            none")
	}
	return nil
}
