package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/inqdoc/internal/models"
	"github.com/hyperjump/inqdoc/internal/pipeline"
	"github.com/hyperjump/inqdoc/internal/server"
)

const testConfig = `
storage:
  root: ./docs
  database_path: ./inqdoc.db
embedding:
  dimensions: 16
vector_store:
  memory:
    path: ./vectors.json
`

func writeConfig(t *testing.T) (dir, path string) {
	t.Helper()
	dir = t.TempDir()
	path = filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(testConfig), 0600); err != nil {
		t.Fatal(err)
	}
	return dir, path
}

// run executes the root command and returns stdout and stderr.
func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	orig, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(orig) })
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir, configPath := writeConfig(t)
	chdir(t, dir)

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved = %q, want %q", resolved, configPath)
	}
	if cfg.Embedding.Dimensions != 16 {
		t.Errorf("dimensions = %d", cfg.Embedding.Dimensions)
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	_, configPath := writeConfig(t)
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved = %q", resolved)
	}
	if !strings.HasSuffix(cfg.Storage.DatabasePath, "inqdoc.db") || !filepath.IsAbs(cfg.Storage.DatabasePath) {
		t.Errorf("database path not expanded: %q", cfg.Storage.DatabasePath)
	}
}

func TestLoadConfig_fallsBackToDefaults(t *testing.T) {
	if _, err := os.Stat(defaultConfigPath); err == nil {
		t.Skip("a system config exists")
	}
	chdir(t, t.TempDir())
	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != "" {
		t.Errorf("resolved = %q, want defaults", resolved)
	}
	if cfg.VectorStore.Default != "memory" {
		t.Errorf("default store = %q", cfg.VectorStore.Default)
	}
}

func TestLoadConfig_missingExplicitPath(t *testing.T) {
	if _, _, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected an error for a missing explicit config")
	}
}

func TestJoinArgs(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"budget"}, "budget"},
		{[]string{"quarterly", "budget"}, "quarterly budget"},
		{[]string{"quarterly budget"}, "quarterly budget"},
		{[]string{}, ""},
		{[]string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		if got := joinArgs(tt.args); got != tt.want {
			t.Errorf("joinArgs(%q) = %q, want %q", tt.args, got, tt.want)
		}
	}
}

func TestHasExtension(t *testing.T) {
	exts := []string{".txt", "MD"}
	for file, want := range map[string]bool{
		"a.txt":   true,
		"b.md":    true,
		"c.PDF":   false,
		"noext":   false,
		"d.TXT":   true,
		"e.txt.x": false,
	} {
		if got := hasExtension(file, exts); got != want {
			t.Errorf("hasExtension(%q) = %v", file, got)
		}
	}
	if !hasExtension("anything.bin", nil) {
		t.Error("no extensions should accept every file")
	}
}

func TestVersionCommand(t *testing.T) {
	out, _, err := run(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if out != "inqdoc version dev\n" {
		t.Errorf("version output = %q", out)
	}
}

func TestRootCmd_rejectsUnknownOutputFormat(t *testing.T) {
	_, configPath := writeConfig(t)
	_, _, err := run(t, "--config", configPath, "-o", "yaml", "list")
	if err == nil || !strings.Contains(err.Error(), "unknown output format") {
		t.Errorf("err = %v", err)
	}
}

func TestCLI_ingestSearchListDelete(t *testing.T) {
	dir, configPath := writeConfig(t)
	src := filepath.Join(dir, "src")
	if err := os.MkdirAll(filepath.Join(src, "nested"), 0755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"budget.txt":        "The quarterly budget grew by ten percent after the hiring plan was approved.",
		"nested/travel.md":  "# Travel\n\nTravel policy covers flights and hotels for client visits.",
		"ignored.bin":       "binary-ish",
		".hidden/secret.md": "should never be uploaded",
	}
	for name, content := range files {
		p := filepath.Join(src, name)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}
	}

	out, errOut, err := run(t, "--config", configPath, "ingest", "--put", "--prefix", "kb", src)
	if err != nil {
		t.Fatalf("ingest: %v\n%s", err, errOut)
	}
	if !strings.Contains(out, "kb/budget.txt") || !strings.Contains(out, "kb/nested/travel.md") {
		t.Errorf("ingest output:\n%s", out)
	}
	if strings.Contains(out, "ignored.bin") || strings.Contains(out, "secret.md") {
		t.Errorf("filtered files were ingested:\n%s", out)
	}

	out, _, err = run(t, "--config", configPath, "ingest", "kb/budget.txt")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "unchanged") {
		t.Errorf("second ingest should be skipped:\n%s", out)
	}

	out, _, err = run(t, "--config", configPath, "-o", "json", "search", "quarterly", "budget")
	if err != nil {
		t.Fatal(err)
	}
	var resp models.SearchResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("search json: %v\n%s", err, out)
	}
	if resp.Query != "quarterly budget" || resp.Total == 0 {
		t.Fatalf("search response: %+v", resp)
	}
	found := false
	for _, r := range resp.Results {
		if key, _ := r.Metadata[models.MetaStorageKey].(string); key == "kb/budget.txt" {
			found = true
			if r.KeywordScore <= 0 {
				t.Errorf("keyword score = %f", r.KeywordScore)
			}
		}
	}
	if !found {
		t.Errorf("kb/budget.txt not in results: %+v", resp.Results)
	}

	out, _, err = run(t, "--config", configPath, "list")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "kb/budget.txt") || !strings.Contains(out, "kb/nested/travel.md") {
		t.Errorf("list:\n%s", out)
	}

	out, _, err = run(t, "--config", configPath, "delete", "--purge", "kb/budget.txt")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Deleted kb/budget.txt") {
		t.Errorf("delete output: %q", out)
	}
	if _, err := os.Stat(filepath.Join(dir, "docs", "kb", "budget.txt")); !os.IsNotExist(err) {
		t.Errorf("purge left the stored file: %v", err)
	}

	out, _, err = run(t, "--config", configPath, "list")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "kb/budget.txt") {
		t.Errorf("deleted document still listed:\n%s", out)
	}

	out, _, err = run(t, "--config", configPath, "status")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Documents:   1") {
		t.Errorf("status:\n%s", out)
	}
}

func TestCLI_ingestReportsFailures(t *testing.T) {
	_, configPath := writeConfig(t)
	_, errOut, err := run(t, "--config", configPath, "ingest", "missing.txt")
	if err == nil || !strings.Contains(err.Error(), "1 of 1 documents failed") {
		t.Errorf("err = %v", err)
	}
	if !strings.Contains(errOut, "missing.txt") {
		t.Errorf("stderr = %q", errOut)
	}
}

func TestCLI_deleteRejectsPurgeByID(t *testing.T) {
	_, configPath := writeConfig(t)
	_, _, err := run(t, "--config", configPath, "delete", "--purge", "doc_0123456789abcdef")
	if err == nil || !strings.Contains(err.Error(), "--purge needs a storage key") {
		t.Errorf("err = %v", err)
	}
}

func TestClient_againstServer(t *testing.T) {
	_, configPath := writeConfig(t)
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	p, err := pipeline.New(ctx, cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	if _, err := p.PutDocument(ctx, "hr/handbook.txt", []byte("Vacation requests need manager approval two weeks ahead.")); err != nil {
		t.Fatal(err)
	}
	if _, err := p.IngestDocument(ctx, "hr/handbook.txt", pipeline.IngestOptions{}); err != nil {
		t.Fatal(err)
	}

	ts := httptest.NewServer(server.NewServer(p, &cfg.Server, nil).Handler())
	defer ts.Close()
	c := newClient(ts.URL + "/")

	resp, err := c.Search(ctx, &models.SearchRequest{Query: "vacation approval"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 {
		t.Errorf("total = %d", resp.Total)
	}

	st, err := c.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Documents != 1 {
		t.Errorf("status documents = %d", st.Documents)
	}

	// No completion providers are configured.
	_, err = c.Ask(ctx, &models.SearchRequest{Query: "how early?"})
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Errorf("ask err = %v", err)
	}

	_, err = c.Search(ctx, &models.SearchRequest{})
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Errorf("empty query err = %v", err)
	}
}

func TestServerMessage(t *testing.T) {
	if got := serverMessage(strings.NewReader(`{"error":"search failed"}`)); got != "search failed" {
		t.Errorf("json body: %q", got)
	}
	if got := serverMessage(strings.NewReader("bad gateway\n")); got != "bad gateway" {
		t.Errorf("text body: %q", got)
	}
}

func TestClient_searchViaFlagUsesServer(t *testing.T) {
	var got models.SearchRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/search" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(models.SearchResponse{Query: got.Query})
	}))
	defer ts.Close()

	out, _, err := run(t, "--server", ts.URL, "search", "--semantic-weight", "0.9", "--no-rerank", "--document", "a.txt", "hello", "world")
	if err != nil {
		t.Fatal(err)
	}
	if got.Query != "hello world" {
		t.Errorf("query = %q", got.Query)
	}
	if got.SemanticWeight == nil || *got.SemanticWeight != 0.9 || got.KeywordWeight != nil {
		t.Errorf("weights = %v %v", got.SemanticWeight, got.KeywordWeight)
	}
	if got.Rerank == nil || *got.Rerank || got.EnhanceContext != nil {
		t.Errorf("toggles = %v %v", got.Rerank, got.EnhanceContext)
	}
	if !strings.HasPrefix(got.DocumentID, "doc_") {
		t.Errorf("document filter = %q", got.DocumentID)
	}
	if !strings.Contains(out, "Found 0 results") {
		t.Errorf("output: %q", out)
	}
}
