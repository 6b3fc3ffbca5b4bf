package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fpang/vision-archiver/internal/config"
	"github.com/fpang/vision-archiver/internal/store"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv(config.KeyResultsBucket, "results")
	t.Setenv(config.KeyCredentialsFile, "/nonexistent/key.json")
	t.Setenv(config.KeyScopes, "https://www.googleapis.com/auth/cloud-vision")
}

func TestLoadEnvironmentFilesystem(t *testing.T) {
	setRequiredEnv(t)
	env, err := loadEnvironment(context.Background(), backendFS, t.TempDir())
	if err != nil {
		t.Fatalf("loadEnvironment: %v", err)
	}
	if env.dynamo != nil {
		t.Error("fs backend should not have a ledger client")
	}
	c, err := env.assemble(nil)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if c.Ledger != nil {
		t.Error("ledger should be disabled")
	}
}

func TestLoadEnvironmentUnknownBackend(t *testing.T) {
	setRequiredEnv(t)
	_, err := loadEnvironment(context.Background(), "ftp", t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "unknown backend") {
		t.Fatalf("err = %v", err)
	}
}

func TestServeMuxRoutes(t *testing.T) {
	apiHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { io.WriteString(w, "api") })
	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { io.WriteString(w, "metrics") })
	srv := httptest.NewServer(newServeMux(apiHandler, metricsHandler))
	defer srv.Close()

	for path, want := range map[string]string{"/metrics": "metrics", "/health": "api", "/v1/annotate": "api"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if string(body) != want {
			t.Errorf("GET %s = %q, want %q", path, body, want)
		}
	}
}

func TestPrintRuns(t *testing.T) {
	var buf bytes.Buffer
	printRuns(&buf, []store.Run{{
		RunID: "run-1", State: "FAILED", Kind: "decode", Step: "CREDENTIALED",
		StartedAt: time.Date(2024, 5, 1, 12, 30, 45, 0, time.UTC), DurationMs: 42,
	}})
	got := buf.String()
	for _, want := range []string{"STARTED", "2024-05-01 12:30:45", "run-1", "FAILED", "decode", "CREDENTIALED", "42"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}
