package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

// fakeProviders serves the microblog, forum and news APIs from one server.
func fakeProviders(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/2/tweets/search/recent", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer mb-token" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, `{"data":[
			{"id":"1","text":"bitcoin rally to the moon"},
			{"id":"2","text":"bitcoin crash"}
		]}`)
	})
	mux.HandleFunc("/r/cryptocurrency/comments.json", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"data":{"children":[
			{"data":{"id":"c1","body":"bitcoin looks bullish","permalink":"/r/cryptocurrency/c1","created_utc":1760860800}},
			{"data":{"id":"c2","body":"ethereum only","permalink":"/r/cryptocurrency/c2"}}
		]}}`)
	})
	mux.HandleFunc("/v2/everything", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("apiKey") != "news-key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, `{"status":"ok","articles":[
			{"source":{"name":"CoinDesk"},"title":"Bitcoin surges","description":"Record gains","url":"https://n.test/1","publishedAt":"2026-10-19T08:00:00Z"},
			{"source":{"name":"Nowhere"},"title":"","description":"","url":"https://n.test/2","publishedAt":"2026-10-19T07:00:00Z"}
		]}`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeTestConfig(t *testing.T, dir, baseURL string) {
	t.Helper()

	content := fmt.Sprintf(`sources:
  microblog:
    base_url: %[1]s
    bearer_token_env: TEST_MICROBLOG_TOKEN
  forum:
    base_url: %[1]s
  news:
    base_url: %[1]s
    api_key_env: TEST_NEWS_KEY
cache:
  ttl: 60s
storage:
  path: %[2]s
log:
  level: error
`, baseURL, filepath.Join(dir, "bitpredector.db"))

	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write test config: %v", err)
	}
}

// setupPipeline points the CLI at a temp config dir backed by fake providers.
func setupPipeline(t *testing.T) {
	t.Helper()

	dir := t.TempDir()
	srv := fakeProviders(t)
	writeTestConfig(t, dir, srv.URL)
	t.Setenv("TEST_MICROBLOG_TOKEN", "mb-token")
	t.Setenv("TEST_NEWS_KEY", "news-key")

	oldConfigDir := configDir
	oldFormat := analyzeFormat
	oldDisable := analyzeDisable
	oldNoSave := analyzeNoSave
	oldHistoryFormat := historyFormat
	oldHistoryLimit := historyLimit
	oldNewsFormat := newsFormat
	oldNoColor := noColor
	t.Cleanup(func() {
		configDir = oldConfigDir
		analyzeFormat = oldFormat
		analyzeDisable = oldDisable
		analyzeNoSave = oldNoSave
		historyFormat = oldHistoryFormat
		historyLimit = oldHistoryLimit
		newsFormat = oldNewsFormat
		noColor = oldNoColor
	})

	configDir = dir
	analyzeFormat = "terminal"
	analyzeDisable = nil
	analyzeNoSave = false
	historyFormat = "terminal"
	historyLimit = 20
	newsFormat = "terminal"
	noColor = true
}

func testCommand() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	return cmd
}

type readingJSON struct {
	Keyword    string  `json:"keyword"`
	Confidence float64 `json:"confidence"`
	Positive   int     `json:"positive"`
	Negative   int     `json:"negative"`
	Total      int     `json:"total"`
	Sources    []struct {
		Name   string `json:"name"`
		Status string `json:"status"`
		Items  int    `json:"items"`
	} `json:"sources"`
}

func TestPipelineAnalyzeHistoryNews(t *testing.T) {
	setupPipeline(t)
	cmd := testCommand()

	analyzeFormat = "json"
	out, err := captureStdout(t, func() error {
		return analyzeAction(cmd, []string{"bitcoin"})
	})
	if err != nil {
		t.Fatalf("analyze json: %v", err)
	}

	var got readingJSON
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode analyze output: %v\n%s", err, out)
	}
	if got.Confidence != 0.5 || got.Positive != 3 || got.Negative != 1 || got.Total != 4 {
		t.Fatalf("reading = %+v, want confidence 0.5 from 3 positive and 1 negative", got)
	}
	if len(got.Sources) != 3 {
		t.Fatalf("sources = %d, want 3", len(got.Sources))
	}
	for _, s := range got.Sources {
		if s.Status != "ok" {
			t.Errorf("source %s status = %q, want ok", s.Name, s.Status)
		}
	}

	analyzeFormat = "terminal"
	analyzeDisable = []string{"forum"}
	out, err = captureStdout(t, func() error {
		return analyzeAction(cmd, []string{"bitcoin"})
	})
	if err != nil {
		t.Fatalf("analyze terminal: %v", err)
	}
	requireContains(t, out, "Confidence: 0.33 (bullish)")
	requireContains(t, out, "disabled")

	historyFormat = "json"
	out, err = captureStdout(t, func() error {
		return historyAction(cmd, []string{"BITCOIN"})
	})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	var hist struct {
		Readings []readingJSON `json:"readings"`
	}
	if err := json.Unmarshal([]byte(out), &hist); err != nil {
		t.Fatalf("decode history output: %v\n%s", err, out)
	}
	if len(hist.Readings) != 2 {
		t.Fatalf("history readings = %d, want 2", len(hist.Readings))
	}
	if hist.Readings[0].Confidence != 0.33 || hist.Readings[1].Confidence != 0.5 {
		t.Errorf("history not newest first: %v, %v", hist.Readings[0].Confidence, hist.Readings[1].Confidence)
	}

	out, err = captureStdout(t, func() error {
		return newsPullAction(cmd, nil)
	})
	if err != nil {
		t.Fatalf("news pull: %v", err)
	}
	requireContains(t, out, "Pulled 1 articles (1 incomplete skipped)")

	newsFormat = "json"
	out, err = captureStdout(t, func() error {
		return newsListAction(cmd, nil)
	})
	if err != nil {
		t.Fatalf("news list: %v", err)
	}
	var articles []struct {
		Title   string `json:"title"`
		Content string `json:"content"`
		Source  string `json:"source"`
	}
	if err := json.Unmarshal([]byte(out), &articles); err != nil {
		t.Fatalf("decode news output: %v\n%s", err, out)
	}
	if len(articles) != 1 || articles[0].Title != "Bitcoin surges" || articles[0].Content != "Record gains" || articles[0].Source != "CoinDesk" {
		t.Errorf("articles = %+v", articles)
	}
}

func TestAnalyze_NoSave(t *testing.T) {
	setupPipeline(t)
	cmd := testCommand()

	analyzeNoSave = true
	if _, err := captureStdout(t, func() error {
		return analyzeAction(cmd, []string{"bitcoin"})
	}); err != nil {
		t.Fatalf("analyze: %v", err)
	}

	out, err := captureStdout(t, func() error {
		return historyAction(cmd, []string{"bitcoin"})
	})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "No readings found.")
}

func TestAnalyze_MissingCredentialsFailsSourceOnly(t *testing.T) {
	setupPipeline(t)
	t.Setenv("TEST_MICROBLOG_TOKEN", "")
	cmd := testCommand()

	analyzeFormat = "json"
	out, err := captureStdout(t, func() error {
		return analyzeAction(cmd, []string{"bitcoin"})
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	var got readingJSON
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if got.Sources[0].Name != "microblog" || got.Sources[0].Status != "failed" {
		t.Errorf("microblog = %+v, want failed", got.Sources[0])
	}
	if got.Confidence != 1 || got.Total != 2 {
		t.Errorf("reading = %+v, want confidence 1 from forum and news", got)
	}
}

func TestAnalyze_UnknownDisabledSource(t *testing.T) {
	setupPipeline(t)

	analyzeDisable = []string{"telegraph"}
	_, err := captureStdout(t, func() error {
		return analyzeAction(testCommand(), []string{"bitcoin"})
	})
	if err == nil || !strings.Contains(err.Error(), "telegraph") {
		t.Fatalf("err = %v, want unknown source error", err)
	}
}

func TestAnalyze_UnknownFormat(t *testing.T) {
	setupPipeline(t)

	analyzeFormat = "html"
	_, err := captureStdout(t, func() error {
		return analyzeAction(testCommand(), []string{"bitcoin"})
	})
	if err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestSourcesAction(t *testing.T) {
	setupPipeline(t)

	out, err := captureStdout(t, func() error {
		return sourcesAction(nil, nil)
	})
	if err != nil {
		t.Fatalf("sources: %v", err)
	}
	requireContains(t, out, "NAME")
	requireContains(t, out, "microblog")
	requireContains(t, out, "forum")
	requireContains(t, out, "not needed")
	if strings.Contains(out, "rss") {
		t.Error("rss listed without feeds")
	}
}

func TestDoctorAction(t *testing.T) {
	setupPipeline(t)

	out, err := captureStdout(t, func() error {
		return doctorAction(testCommand(), nil)
	})
	if err != nil {
		t.Fatalf("doctor: %v\n%s", err, out)
	}
	requireContains(t, out, "microblog credentials ($TEST_MICROBLOG_TOKEN)")
	requireContains(t, out, "All checks passed.")
}

func TestDoctorAction_MissingKey(t *testing.T) {
	setupPipeline(t)
	t.Setenv("TEST_NEWS_KEY", "")

	out, err := captureStdout(t, func() error {
		return doctorAction(testCommand(), nil)
	})
	if err == nil {
		t.Fatal("expected doctor to fail")
	}
	requireContains(t, out, "[FAIL] news: $TEST_NEWS_KEY is not set")
}

func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	oldStdout := os.Stdout
	reader, writer, err := os.Pipe()
	if err != nil {
		t.Fatalf("open stdout pipe: %v", err)
	}

	os.Stdout = writer
	runErr := fn()
	_ = writer.Close()
	os.Stdout = oldStdout

	out, readErr := io.ReadAll(reader)
	_ = reader.Close()
	if readErr != nil {
		t.Fatalf("read stdout pipe: %v", readErr)
	}
	return string(out), runErr
}

func requireContains(t *testing.T, got, want string) {
	t.Helper()

	if !strings.Contains(got, want) {
		t.Fatalf("expected output to contain %q, got:\n%s", want, got)
	}
}
