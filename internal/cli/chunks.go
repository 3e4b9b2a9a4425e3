package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/kioku/internal/models"
)

// maxChunkLine bounds one JSONL line.
const maxChunkLine = 16 << 20

// readChunks parses one ChunkItem per line. Blank lines are skipped. A line without an explicit
// index gets its position among the parsed chunks.
func readChunks(r io.Reader) ([]models.ChunkItem, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxChunkLine)
	items := []models.ChunkItem{}
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var raw struct {
			Hash  int64  `json:"hash"`
			Text  string `json:"text"`
			Index *int   `json:"index"`
		}
		if err := json.Unmarshal([]byte(text), &raw); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		item := models.ChunkItem{Hash: raw.Hash, Text: raw.Text, Index: len(items)}
		if raw.Index != nil {
			item.Index = *raw.Index
		}
		if err := item.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		items = append(items, item)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
