package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const errorPreviewLen = 200

// httpClient is the transport shared by the remote adapters of one source. The limiter is optional.
type httpClient struct {
	source  string
	client  *http.Client
	limiter *rate.Limiter
}

// newHTTPClient returns a client with no timeout when timeout is 0; the request context bounds each call.
func newHTTPClient(source string, timeout time.Duration, limiter *rate.Limiter) *httpClient {
	return &httpClient{
		source:  source,
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
	}
}

func (c *httpClient) postJSON(ctx context.Context, endpoint string, header http.Header, in, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &RequestError{Source: c.source, Err: err}
		}
	}

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", c.source, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return notConfigured(c.source, "a valid API URL")
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &RequestError{Source: c.source, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &RequestError{Source: c.source, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &RequestError{Source: c.source, StatusCode: resp.StatusCode, Message: preview(data)}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &RequestError{Source: c.source, StatusCode: resp.StatusCode, Message: "malformed response: " + preview(data), Err: err}
	}
	return nil
}

func bearer(key string) http.Header {
	h := http.Header{}
	if key != "" {
		h.Set("Authorization", "Bearer "+key)
	}
	return h
}

// endpointURL replaces the path of base with path, dropping any path the caller supplied.
func endpointURL(source, base, path string) (string, error) {
	if strings.TrimSpace(base) == "" {
		return "", notConfigured(source, "an API URL")
	}
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", notConfigured(source, "a valid API URL")
	}
	u.Path = path
	u.RawQuery = ""
	return u.String(), nil
}

func preview(data []byte) string {
	s := strings.TrimSpace(string(data))
	if len(s) > errorPreviewLen {
		s = s[:errorPreviewLen]
	}
	return s
}

// indexedEmbedding is one element of an OpenAI-style response.
type indexedEmbedding struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

// orderByIndex places each vector at its echoed index and fails unless every input got exactly one.
func orderByIndex(source string, n int, data []indexedEmbedding) ([][]float32, error) {
	if len(data) != n {
		return nil, badResponse(source, "got %d embeddings for %d inputs", len(data), n)
	}
	out := make([][]float32, n)
	for _, d := range data {
		if d.Index < 0 || d.Index >= n {
			return nil, badResponse(source, "embedding index %d out of range", d.Index)
		}
		if out[d.Index] != nil {
			return nil, badResponse(source, "duplicate embedding index %d", d.Index)
		}
		if len(d.Embedding) == 0 {
			return nil, badResponse(source, "empty embedding at index %d", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// checkCount validates a response that carries no index and is trusted to be in input order.
func checkCount(source string, n int, vecs [][]float32) ([][]float32, error) {
	if len(vecs) != n {
		return nil, badResponse(source, "got %d embeddings for %d inputs", len(vecs), n)
	}
	for i, v := range vecs {
		if len(v) == 0 {
			return nil, badResponse(source, "empty embedding at position %d", i)
		}
	}
	return vecs, nil
}

// inBatches calls fn on consecutive windows of at most size texts and concatenates the results.
func inBatches(texts []string, size int, fn func(batch []string) ([][]float32, error)) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += size {
		end := start + size
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := fn(texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}
