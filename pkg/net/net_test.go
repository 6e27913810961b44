package net

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetHTTPClient(t *testing.T) {
	client := GetHTTPClient(0)
	require.NotNil(t, client)
	assert.Equal(t, timeoutInSeconds*time.Second, client.Timeout)

	client = GetHTTPClient(time.Second)
	assert.Equal(t, time.Second, client.Timeout)
}

func TestGetOAuthClient_SendsBearer(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		w.Write([]byte(`{"status":"healthy"}`))
	}))
	defer srv.Close()

	client := GetOAuthClient(context.Background(), "secret", time.Second)
	var h Health
	require.NoError(t, GetJSON(context.Background(), client, srv.URL, &h))
	assert.Equal(t, "Bearer secret", got)

	client = GetOAuthClient(context.Background(), "", time.Second)
	require.NoError(t, GetJSON(context.Background(), client, srv.URL, &h))
	assert.Empty(t, got)
}

func TestGetJSON_Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		case "/bad":
			w.Write([]byte("not json"))
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	client := GetHTTPClient(time.Second)
	var h Health
	assert.ErrorIs(t, GetJSON(context.Background(), client, srv.URL+"/missing", &h), ErrorURLNotFound)
	assert.Error(t, GetJSON(context.Background(), client, srv.URL+"/bad", &h))
	assert.Error(t, GetJSON(context.Background(), client, srv.URL+"/other", &h))
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/meta.json" {
			w.Write([]byte(`{"timestamp":"t"}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	dir := t.TempDir()
	client := GetHTTPClient(time.Second)

	path := filepath.Join(dir, "meta.json")
	require.NoError(t, Download(context.Background(), client, srv.URL+"/meta.json", path))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"timestamp":"t"}`, string(b))

	missing := filepath.Join(dir, "model.onnx")
	assert.ErrorIs(t, Download(context.Background(), client, srv.URL+"/model.onnx", missing), ErrorURLNotFound)
	_, err = os.Stat(missing)
	assert.True(t, os.IsNotExist(err))
}

func TestCheckHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.Write([]byte(`{"status":"healthy","model_run":"20250101_120000"}`))
			return
		}
		w.Write([]byte(`{"status":"degraded"}`))
	}))
	defer srv.Close()

	client := GetHTTPClient(time.Second)

	r := CheckHealth(context.Background(), client, srv.URL+"/health")
	assert.True(t, r.Healthy)
	assert.Equal(t, "20250101_120000", r.ModelRun)
	assert.Empty(t, r.Error)

	r = CheckHealth(context.Background(), client, srv.URL+"/other")
	assert.False(t, r.Healthy)
	assert.Contains(t, r.Error, "degraded")
}

func TestMonitor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"status":"healthy"}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu      sync.Mutex
		results []*CheckResult
	)
	report := func(r *CheckResult) {
		mu.Lock()
		defer mu.Unlock()
		results = append(results, r)
		if len(results) == 3 {
			cancel()
		}
	}

	err := Monitor(ctx, GetHTTPClient(time.Second), []string{srv.URL}, 10*time.Millisecond, report)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(results), 3)
	for _, r := range results[:3] {
		assert.True(t, r.Healthy)
	}
}

func TestMonitor_Validation(t *testing.T) {
	client := GetHTTPClient(time.Second)
	assert.Error(t, Monitor(context.Background(), client, nil, time.Second, func(*CheckResult) {}))
	assert.Error(t, Monitor(context.Background(), client, []string{"http://x"}, 0, func(*CheckResult) {}))
}
