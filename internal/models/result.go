package models

// QueryResult is the answer to a single-collection query. Hashes and Metadata are parallel and
// ordered by descending similarity. Both are empty (never nil) when nothing matched.
type QueryResult struct {
	Hashes   []int64    `json:"hashes"`
	Metadata []Metadata `json:"metadata"`
}

// NewQueryResult returns an empty result with non-nil slices so it encodes as [] instead of null.
func NewQueryResult() QueryResult {
	return QueryResult{Hashes: []int64{}, Metadata: []Metadata{}}
}

// Add appends one hit.
func (r *QueryResult) Add(m Metadata) {
	r.Hashes = append(r.Hashes, m.Hash)
	r.Metadata = append(r.Metadata, m)
}

// Len returns the number of hits.
func (r QueryResult) Len() int {
	return len(r.Hashes)
}

// MultiQueryResult maps a collection id to its surviving hits. Collections without hits are absent.
type MultiQueryResult map[string]QueryResult
