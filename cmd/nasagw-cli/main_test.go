package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("GATEWAY_CONFIG", "")
	t.Setenv("NASA_API_KEY", "")
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestVersion(t *testing.T) {
	out, err := runCLI(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.HasPrefix(out, "nasagw-cli dev") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestValidate(t *testing.T) {
	path := writeConfig(t, "governor:\n  max_requests: 10\n  rate_window: 30m\nrequest_log:\n  driver: sqlite\n")
	out, err := runCLI(t, "validate", path)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	for _, want := range []string{"Config is valid", "10 requests per 30m0s", "Logs:      sqlite"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestValidate_Invalid(t *testing.T) {
	path := writeConfig(t, "governor:\n  max_requests: many\n")
	if _, err := runCLI(t, "validate", path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestValidate_RequiresArg(t *testing.T) {
	if _, err := runCLI(t, "validate"); err == nil {
		t.Fatal("expected error without a config file")
	}
}

func TestBudget_Defaults(t *testing.T) {
	out, err := runCLI(t, "budget")
	if err != nil {
		t.Fatalf("budget failed: %v", err)
	}
	if !strings.Contains(out, "30 requests per 1h0m0s") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestAPOD(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/planetary/apod" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"date":"2024-05-01","title":"Nebula","media_type":"image"}`))
	}))
	defer srv.Close()

	path := writeConfig(t, "upstream:\n  api_base_url: "+srv.URL+"\n")
	out, err := runCLI(t, "--config", path, "apod", "--date", "2024-05-01")
	if err != nil {
		t.Fatalf("apod failed: %v", err)
	}
	if !strings.Contains(out, `"id": "apod-2024-05-01"`) {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestAPOD_InvalidDate(t *testing.T) {
	if _, err := runCLI(t, "apod", "--date", "1990-01-01"); err == nil {
		t.Fatal("expected invalid date error")
	}
}
