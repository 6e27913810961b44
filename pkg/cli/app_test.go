package cli

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/mchmarny/dropscore/pkg/model"
	"github.com/mchmarny/dropscore/pkg/net"
	"github.com/mchmarny/dropscore/pkg/score"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

const (
	testRun  = "20250101_120000"
	testMeta = `{
  "timestamp": "20250101_120000",
  "global_feature_importances": [["attendance_rate", 0.31], ["cutoff", 0.22]],
  "input_features": ["cutoff", "attendance_rate"]
}`
	testLinear = `{"intercept": -1.0, "weights": {"cutoff": 0.0, "attendance_rate": -0.01}}`
)

type testEnv struct {
	home      string
	artifacts string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	keyring.MockInit()

	env := &testEnv{
		home:      filepath.Join(t.TempDir(), "home"),
		artifacts: filepath.Join(t.TempDir(), "artifacts"),
	}
	dir := filepath.Join(env.artifacts, testRun)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, model.MetadataFile), []byte(testMeta), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, model.LinearFile), []byte(testLinear), 0o600))
	return env
}

func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	app := newApp()
	app.Writer = &buf
	base := []string{appName, "--config", e.home, "--artifacts", e.artifacts, "--format", "json"}
	err := app.Run(context.Background(), append(base, args...))
	return buf.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestScoreCommand(t *testing.T) {
	env := newTestEnv(t)
	in := writeFile(t, "record.json", `{"cutoff":140,"attendance_rate":0.55,"family_income_numeric":35000,"preferred_location":"any","orphan":"no"}`)

	out, err := env.run(t, "score", "--file", in, "--save")
	require.NoError(t, err)

	var resp score.Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	assert.Equal(t, 0.95, resp.Explanation.RuleProbability)
	assert.Len(t, resp.Explanation.Reasons, 4)
	assert.Equal(t, []string{"attendance_rate", "cutoff"}, resp.Explanation.TopFeatures)

	out, err = env.run(t, "students", "list")
	require.NoError(t, err)
	var list []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &list), out)
	assert.Len(t, list, 1)

	out, err = env.run(t, "--format", "table", "students", "summary")
	require.NoError(t, err)
	assert.Contains(t, out, "Students")
}

func TestScoreCommand_MissingArtifacts(t *testing.T) {
	env := newTestEnv(t)
	env.artifacts = filepath.Join(t.TempDir(), "none")
	in := writeFile(t, "record.json", `{"cutoff":170}`)

	_, err := env.run(t, "score", "--file", in)
	assert.ErrorIs(t, err, model.ErrArtifactMissing)
}

func TestBatchCommand(t *testing.T) {
	env := newTestEnv(t)
	in := writeFile(t, "in.csv", "name,cutoff,attendance_rate\nA,140,0.55\nB,170,95\n")
	outPath := filepath.Join(t.TempDir(), "out.csv")

	out, err := env.run(t, "batch", "--input", in, "--output", outPath, "--workers", "2")
	require.NoError(t, err)

	var counts map[string]int
	require.NoError(t, json.Unmarshal([]byte(out), &counts), out)
	assert.Equal(t, 2, counts["LOW"]+counts["MEDIUM"]+counts["HIGH"])

	f, err := os.Open(outPath)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "A", rows[1][0])
	assert.Equal(t, "B", rows[2][0])
}

func TestAuthCommands(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "auth", "key")
	require.NoError(t, err)
	var created map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	assert.NotEmpty(t, created["api_key"])

	out, err = env.run(t, "auth", "show")
	require.NoError(t, err)
	var shown map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.Equal(t, created["api_key"], shown["api_key"])

	_, err = env.run(t, "auth", "clear")
	require.NoError(t, err)

	_, err = env.run(t, "auth", "show")
	assert.Error(t, err)
}

func TestModelInfoCommand(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "model", "info")
	require.NoError(t, err)

	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &info), out)
	assert.Equal(t, testRun, info["run"])
	assert.Equal(t, "linear", info["classifier"])
}

func TestMonitorOnce(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"status":"healthy","model_run":"r1"}`))
	}))
	defer srv.Close()

	out, err := env.run(t, "monitor", "--url", srv.URL, "--once", "--timeout", "2s")
	require.NoError(t, err)

	var checks []net.CheckResult
	require.NoError(t, json.Unmarshal([]byte(out), &checks), out)
	require.Len(t, checks, 1)
	assert.True(t, checks[0].Healthy)
	assert.Equal(t, "r1", checks[0].ModelRun)
}

func newRunServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/runs/latest/" + model.MetadataFile:
			w.Write([]byte(testMeta))
		case "/runs/latest/" + model.LinearFile:
			w.Write([]byte(testLinear))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newPuller(base, root string) *puller {
	return &puller{client: net.GetHTTPClient(0), base: base, root: root}
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestPullRun(t *testing.T) {
	srv := newRunServer(t)
	root := filepath.Join(t.TempDir(), "artifacts")

	dir, err := newPuller(srv.URL+"/runs/latest/", root).pull(context.Background(), "20250202_000000")
	require.NoError(t, err)

	a, err := model.LoadRun(dir, "")
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, "20250202_000000", a.Run)

	_, err = os.Stat(filepath.Join(dir, model.ONNXFile))
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, []string{"20250202_000000"}, listDir(t, root))
}

func TestPullRun_FailureLeavesNoRun(t *testing.T) {
	srv := newRunServer(t)
	root := t.TempDir()

	_, err := newPuller(srv.URL+"/missing", root).pull(context.Background(), "x")
	assert.Error(t, err)
	assert.Empty(t, listDir(t, root))
}

func TestPullRun_KeepsExistingRun(t *testing.T) {
	missing := httptest.NewServer(http.NotFoundHandler())
	defer missing.Close()

	root := t.TempDir()
	existing := filepath.Join(root, testRun)
	require.NoError(t, os.MkdirAll(existing, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(existing, model.MetadataFile), []byte(testMeta), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(existing, model.LinearFile), []byte(testLinear), 0o600))

	p := newPuller(missing.URL, root)

	_, err := p.pull(context.Background(), testRun)
	assert.ErrorIs(t, err, errRunExists)

	p.force = true
	_, err = p.pull(context.Background(), testRun)
	assert.Error(t, err)

	assert.Equal(t, []string{testRun}, listDir(t, root))
	a, err := model.LoadRun(existing, "")
	require.NoError(t, err)
	a.Close()
}

func TestPullRun_ForceReplaces(t *testing.T) {
	srv := newRunServer(t)
	root := t.TempDir()
	existing := filepath.Join(root, testRun)
	require.NoError(t, os.MkdirAll(existing, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(existing, "stale.txt"), []byte("x"), 0o600))

	p := newPuller(srv.URL+"/runs/latest", root)
	p.force = true
	dir, err := p.pull(context.Background(), testRun)
	require.NoError(t, err)
	assert.Equal(t, existing, dir)

	assert.ElementsMatch(t, []string{model.MetadataFile, model.LinearFile}, listDir(t, dir))
	assert.Equal(t, []string{testRun}, listDir(t, root))
}

func TestPullRun_InvalidName(t *testing.T) {
	p := newPuller("http://127.0.0.1:1", t.TempDir())
	for _, run := range []string{"", "..", "../x", ".hidden", "a/b"} {
		_, err := p.pull(context.Background(), run)
		assert.Error(t, err, run)
	}
}
