package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/momentseek/pkg/model"
	"github.com/urfave/cli/v3"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = io.Discard
	err := app.Run(context.Background(), append([]string{"momentseek"}, args...))
	return out.String(), err
}

func predictionServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.FormValue("query") == "" {
			http.Error(w, "query missing", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestQueryHistoryShow(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "lobby.mp4")
	gt.NoError(t, os.WriteFile(video, []byte("frames"), 0600))
	srv := predictionServer(t, `{"predicted_moments": [[15, 25, 0.4], [10, 20, 0.9]]}`)

	common := []string{"--owner", "tester", "--store", "sqlite", "--db-path", filepath.Join(dir, "history.db")}

	out, err := runApp(t, append([]string{"query",
		"--video", video,
		"--query", "when does the door open",
		"--duration", "30",
		"--endpoint", srv.URL,
		"--json"}, common...)...)
	gt.NoError(t, err)

	var doc struct {
		Entry   model.HistoryEntry `json:"entry"`
		NoMatch bool               `json:"no_match"`
		Top     model.ResultSet    `json:"top"`
	}
	gt.NoError(t, json.Unmarshal([]byte(out), &doc))
	gt.False(t, doc.NoMatch)
	gt.Equal(t, doc.Top[0].Confidence, 0.9)
	gt.Equal(t, doc.Entry.OwnerID, model.OwnerID("tester"))

	out, err = runApp(t, append([]string{"query",
		"--video", video,
		"--query", "a red car",
		"--endpoint", srv.URL}, common...)...)
	gt.NoError(t, err)
	gt.S(t, out).Contains("Top predictions:")
	gt.S(t, out).Contains("#1  0:10.0 - 0:20.0")
	gt.S(t, out).Contains("video duration unknown")
	gt.S(t, out).Contains("Saved to history: ")

	out, err = runApp(t, append([]string{"history", "--sort", "queryText", "--order", "asc"}, common...)...)
	gt.NoError(t, err)
	gt.S(t, out).Contains("page 1/1 (2 entries)")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	gt.A(t, lines).Length(3)
	gt.S(t, lines[0]).Contains("a red car")

	out, err = runApp(t, append([]string{"show", "--duration", "30", string(doc.Entry.ID)}, common...)...)
	gt.NoError(t, err)
	gt.S(t, out).Contains("Query:    when does the door open")
	gt.S(t, out).Contains("Best:     0:10.0 - 0:20.0")
	gt.S(t, out).NotContains("video duration unknown")

	_, err = runApp(t, append([]string{"show", string(doc.Entry.ID)}, "--owner", "someone-else",
		"--store", "sqlite", "--db-path", filepath.Join(dir, "history.db"))...)
	gt.Error(t, err)
	gt.S(t, errorMessage(err)).Contains(model.Summary(model.ErrHistoryNotFound))
}

func TestQueryNoMatch(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "lot.mp4")
	gt.NoError(t, os.WriteFile(video, []byte("frames"), 0600))
	srv := predictionServer(t, `{"predicted_moments": []}`)

	out, err := runApp(t, "query", "--video", video, "--query", "a unicorn",
		"--endpoint", srv.URL, "--owner", "tester", "--store", "memory")
	gt.NoError(t, err)
	gt.S(t, out).Contains("No matching moment found in the video.")
}

func TestQueryPredictionError(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "lot.mp4")
	gt.NoError(t, os.WriteFile(video, []byte("frames"), 0600))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		http.Error(w, "CUDA out of memory", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := runApp(t, "query", "--video", video, "--query", "q",
		"--endpoint", srv.URL, "--owner", "tester", "--store", "memory")
	gt.Error(t, err)
	msg := errorMessage(err)
	gt.S(t, msg).Contains("Failed to process your query. Please try again.")
	gt.S(t, msg).Contains("detail:")
}

func TestQueryMissingVideo(t *testing.T) {
	_, err := runApp(t, "query", "--video", filepath.Join(t.TempDir(), "none.mp4"), "--query", "q",
		"--owner", "tester", "--store", "memory")
	gt.Error(t, err)
	gt.S(t, errorMessage(err)).Contains(model.Summary(model.ErrVideoRequired))
}

func TestLoadEngineConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	gt.NoError(t, os.WriteFile(path, []byte("resolution: 50\ntop_n: 2\nskip_seconds: 5\npolicy_dir: ./policies\n"), 0600))

	run := func(args ...string) (engineConfig, error) {
		var (
			cfg config
			ec  engineConfig
			err error
		)
		cmd := &cli.Command{
			Name:  "test",
			Flags: engineFlagList(&cfg),
			Action: func(ctx context.Context, c *cli.Command) error {
				ec, err = loadEngineConfig(cfg.engine.configPath, c, cfg.engine)
				return nil
			},
		}
		gt.NoError(t, cmd.Run(context.Background(), append([]string{"test"}, args...)))
		return ec, err
	}

	ec, err := run()
	gt.NoError(t, err)
	gt.Equal(t, ec, defaultEngineConfig())

	ec, err = run("--config", path, "--top-n", "7")
	gt.NoError(t, err)
	gt.Equal(t, ec.Resolution, 50)
	gt.Equal(t, ec.TopN, 7)
	gt.Equal(t, ec.SkipSeconds, 5.0)
	gt.Equal(t, ec.FallbackDuration, 150.0)
	gt.Equal(t, ec.PageSize, 20)
	gt.Equal(t, ec.PolicyDir, "./policies")

	_, err = run("--resolution", "0")
	gt.Error(t, err)

	_, err = run("--config", filepath.Join(dir, "missing.yaml"))
	gt.Error(t, err)
}
