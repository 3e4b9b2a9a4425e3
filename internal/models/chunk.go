// Package models defines the chunk, metadata and query result types shared by the store, the
// collection manager and the HTTP API.
package models

import "fmt"

// ChunkItem is one caller-supplied unit of text. Hash is the caller's deduplication key and is not
// required to be unique.
type ChunkItem struct {
	Hash  int64  `json:"hash"`
	Text  string `json:"text"`
	Index int    `json:"index"`
}

// Metadata is stored verbatim next to each vector.
type Metadata struct {
	Hash  int64  `json:"hash"`
	Text  string `json:"text"`
	Index int    `json:"index"`
}

// Metadata returns the metadata carried by the chunk.
func (c ChunkItem) Metadata() Metadata {
	return Metadata{Hash: c.Hash, Text: c.Text, Index: c.Index}
}

// Validate rejects chunks that cannot be embedded.
func (c ChunkItem) Validate() error {
	if c.Text == "" {
		return fmt.Errorf("chunk %d has empty text", c.Hash)
	}
	return nil
}
