package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/hyperjump/kioku/internal/models"
)

// newExtrasServer embeds each text as [len(text), 1].
func newExtrasServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text []string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		out := make([][]float32, len(req.Text))
		for i, text := range req.Text {
			out[i] = []float32{float32(len(text)), 1}
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"embedding": out})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeTestConfig(t *testing.T, extrasURL string) (configPath, vectorsPath string) {
	t.Helper()
	dir := t.TempDir()
	configPath = filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`
storage:
  vectors_path: "./vectors"
vectors:
  default_source: extras
  batch_size: 1
embedding:
  providers:
    extras:
      api_url: %q
`, extrasURL)
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return configPath, filepath.Join(dir, "vectors")
}

func run(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand("test")
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append(args, "--config", configPath))
	err := root.Execute()
	return out.String(), err
}

func TestInsertListQueryPurge(t *testing.T) {
	extras := newExtrasServer(t)
	configPath, vectorsPath := writeTestConfig(t, extras.URL)

	chunksPath := filepath.Join(t.TempDir(), "chunks.jsonl")
	chunks := `{"hash": 1, "text": "short", "index": 0}
{"hash": 2, "text": "a much longer text", "index": 1}
`
	if err := os.WriteFile(chunksPath, []byte(chunks), 0600); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, configPath, "insert", "-c", "chat-1", "--file", chunksPath, "--no-progress")
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if !strings.Contains(out, "Inserted 2 chunks into chat-1 (extras)") {
		t.Errorf("insert output = %q", out)
	}
	if _, err := os.Stat(filepath.Join(vectorsPath, "extras", "chat-1", "index.db")); err != nil {
		t.Errorf("partition file missing: %v", err)
	}

	out, err = run(t, configPath, "list", "-c", "chat-1", "-o", "json")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var hashes []int64
	if err := json.Unmarshal([]byte(out), &hashes); err != nil {
		t.Fatalf("decode list output %q: %v", out, err)
	}
	if len(hashes) != 2 || hashes[0] != 1 || hashes[1] != 2 {
		t.Errorf("hashes = %v, want [1 2]", hashes)
	}

	out, err = run(t, configPath, "query", "-c", "chat-1", "-k", "1", "-o", "json", "short")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	var result models.QueryResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode query output %q: %v", out, err)
	}
	if len(result.Hashes) != 1 || result.Hashes[0] != 1 {
		t.Errorf("query hashes = %v, want [1]", result.Hashes)
	}

	out, err = run(t, configPath, "query", "-c", "chat-1", "-c", "chat-2", "-o", "json", "short")
	if err != nil {
		t.Fatalf("query multi: %v", err)
	}
	var multi models.MultiQueryResult
	if err := json.Unmarshal([]byte(out), &multi); err != nil {
		t.Fatalf("decode multi output %q: %v", out, err)
	}
	if _, ok := multi["chat-2"]; ok {
		t.Error("empty collection should be absent")
	}
	if multi["chat-1"].Len() != 2 {
		t.Errorf("chat-1 hits = %d, want 2", multi["chat-1"].Len())
	}

	if _, err := run(t, configPath, "delete", "-c", "chat-1", "2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	out, err = run(t, configPath, "list", "-c", "chat-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if out != "1\n" {
		t.Errorf("list after delete = %q, want \"1\\n\"", out)
	}

	out, err = run(t, configPath, "status", "-o", "json")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var status statusResponse
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatal(err)
	}
	if status.VectorsPath != vectorsPath || len(status.Sources) != 1 || status.Sources[0] != "extras" {
		t.Errorf("status = %+v", status)
	}

	if _, err := run(t, configPath, "purge", "-c", "chat-1"); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if _, err := os.Stat(filepath.Join(vectorsPath, "extras", "chat-1")); !os.IsNotExist(err) {
		t.Errorf("collection dir should be gone, stat err = %v", err)
	}
}

func TestPurgeAllRequiresConfirmation(t *testing.T) {
	extras := newExtrasServer(t)
	configPath, vectorsPath := writeTestConfig(t, extras.URL)

	if _, err := run(t, configPath, "purge-all"); err == nil {
		t.Fatal("purge-all without --yes should fail")
	}
	if err := os.MkdirAll(filepath.Join(vectorsPath, "extras", "c"), 0755); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, configPath, "purge-all", "--yes"); err != nil {
		t.Fatalf("purge-all: %v", err)
	}
	entries, err := os.ReadDir(vectorsPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("vectors root not empty: %v", entries)
	}
}

func TestInsertRejectsMissingCollection(t *testing.T) {
	extras := newExtrasServer(t)
	configPath, _ := writeTestConfig(t, extras.URL)
	chunksPath := filepath.Join(t.TempDir(), "chunks.jsonl")
	if err := os.WriteFile(chunksPath, []byte(`{"hash": 1, "text": "x"}`), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, configPath, "insert", "--file", chunksPath, "--no-progress"); err == nil {
		t.Fatal("insert without a collection should fail")
	}
}

func TestStatusViaHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/vector/status" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(statusResponse{VectorsPath: "/srv/vectors", Sources: []string{"openai"}, DiskUsageBytes: 10})
	}))
	defer srv.Close()

	extras := newExtrasServer(t)
	configPath, _ := writeTestConfig(t, extras.URL)
	out, err := run(t, configPath, "status", "--server", srv.URL+"/")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "/srv/vectors") || !strings.Contains(out, "openai") {
		t.Errorf("status output = %q", out)
	}
}

func TestParseHashes(t *testing.T) {
	hashes, err := parseHashes([]string{"1", "-5", "9007199254740993"})
	if err != nil {
		t.Fatal(err)
	}
	if len(hashes) != 3 || hashes[1] != -5 || hashes[2] != 9007199254740993 {
		t.Errorf("hashes = %v", hashes)
	}
	if _, err := parseHashes([]string{"abc"}); err == nil {
		t.Error("expected error for non-numeric hash")
	}
}

func TestQueryStopsWhenContextCancelled(t *testing.T) {
	var calls atomic.Int32
	extras := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"embedding":[[1,1]]}`))
	}))
	defer extras.Close()
	configPath, _ := writeTestConfig(t, extras.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	root := NewRootCommand("test")
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"query", "-c", "chat-1", "hello", "--config", configPath})
	if err := root.ExecuteContext(ctx); err == nil {
		t.Fatal("query on a cancelled context should fail")
	}
	if n := calls.Load(); n != 0 {
		t.Errorf("embedding server called %d times after cancel", n)
	}
}
