package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/hyperjump/kioku/internal/embedding"
	"github.com/hyperjump/kioku/internal/models"
)

// flexString accepts a JSON string or number; clients send numeric collection ids as numbers.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected a string or number, got %s", data)
	}
	*f = flexString(n.String())
	return nil
}

type insertRequest struct {
	CollectionID flexString         `json:"collectionId"`
	Source       string             `json:"source"`
	Items        []models.ChunkItem `json:"items"`
}

type listRequest struct {
	CollectionID flexString `json:"collectionId"`
	Source       string     `json:"source"`
}

type deleteRequest struct {
	CollectionID flexString `json:"collectionId"`
	Source       string     `json:"source"`
	Hashes       []int64    `json:"hashes"`
}

type queryRequest struct {
	CollectionID flexString `json:"collectionId"`
	Source       string     `json:"source"`
	SearchText   string     `json:"searchText"`
	TopK         int        `json:"topK"`
	Threshold    float64    `json:"threshold"`
}

type queryMultiRequest struct {
	CollectionIDs []flexString `json:"collectionIds"`
	Source        string       `json:"source"`
	SearchText    string       `json:"searchText"`
	TopK          int          `json:"topK"`
	Threshold     float64      `json:"threshold"`
}

type purgeRequest struct {
	CollectionID flexString `json:"collectionId"`
}

// Header names carrying per-request source settings.
const (
	headerExtrasURL       = "X-Extras-Url"
	headerExtrasKey       = "X-Extras-Key"
	headerOpenAIModel     = "X-OpenAI-Model"
	headerTogetherAIModel = "X-Togetherai-Model"
	headerMistralModel    = "X-Mistral-Model"
	headerCohereModel     = "X-Cohere-Model"
	headerOllamaModel     = "X-Ollama-Model"
	headerOllamaURL       = "X-Ollama-URL"
	headerOllamaKeep      = "X-Ollama-Keep"
	headerLlamaCppURL     = "X-LlamaCpp-URL"
	headerVLLMURL         = "X-Vllm-URL"
	headerVLLMModel       = "X-Vllm-Model"
)

// sourceSettings extracts the headers that apply to source. Headers of other sources are ignored.
func sourceSettings(source string, h http.Header) embedding.SourceSettings {
	get := func(name string) string { return strings.TrimSpace(h.Get(name)) }
	var s embedding.SourceSettings
	switch source {
	case embedding.SourceExtras:
		s.APIURL = get(headerExtrasURL)
		s.APIKey = get(headerExtrasKey)
	case embedding.SourceOpenAI:
		s.Model = get(headerOpenAIModel)
	case embedding.SourceTogetherAI:
		s.Model = get(headerTogetherAIModel)
	case embedding.SourceMistral:
		s.Model = get(headerMistralModel)
	case embedding.SourceCohere:
		s.Model = get(headerCohereModel)
	case embedding.SourceOllama:
		s.Model = get(headerOllamaModel)
		s.APIURL = get(headerOllamaURL)
		s.KeepAlive, _ = strconv.ParseBool(get(headerOllamaKeep))
	case embedding.SourceLlamaCpp:
		s.APIURL = get(headerLlamaCppURL)
	case embedding.SourceVLLM:
		s.APIURL = get(headerVLLMURL)
		s.Model = get(headerVLLMModel)
	}
	return s
}
