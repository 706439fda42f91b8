package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"shipflow/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckDiskSpace(t *testing.T) {
	dir := t.TempDir()
	if result := CheckDiskSpace("volume", dir, 1); !result.Passed {
		t.Fatalf("expected pass with 1 byte minimum, got: %s", result.Detail)
	}
	result := CheckDiskSpace("volume", dir, ^uint64(0))
	if result.Passed {
		t.Fatal("expected failure with an impossible minimum")
	}
	if !strings.Contains(result.Detail, "need") {
		t.Fatalf("unexpected detail %q", result.Detail)
	}
	if result := CheckDiskSpace("volume", filepath.Join(dir, "missing"), 1); result.Passed {
		t.Fatal("expected failure for missing path")
	}
}

func TestCheckCatalog(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "catalog.yaml")
	testsupport.WriteFile(t, good, testsupport.SampleCatalog)
	if result := CheckCatalog(good); !result.Passed || !strings.Contains(result.Detail, "3 packaging rules") {
		t.Fatalf("unexpected result %+v", result)
	}

	noRules := filepath.Join(dir, "norules.yaml")
	testsupport.WriteFile(t, noRules, "categories:\n  MUG-01: drinkware\n")
	if result := CheckCatalog(noRules); result.Passed {
		t.Fatal("expected failure without packaging rules")
	}

	if result := CheckCatalog(filepath.Join(dir, "missing.yaml")); result.Passed || !strings.Contains(result.Detail, "does not exist") {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestCheckDatabase(t *testing.T) {
	if result := CheckDatabase(context.Background(), nil); result.Passed {
		t.Fatal("expected failure without a database")
	}
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	if result := CheckDatabase(context.Background(), db); !result.Passed {
		t.Fatalf("expected pass for fresh database, got: %s", result.Detail)
	}
}

func TestCheckService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	ctx := context.Background()
	if result := CheckService(ctx, "carrier", srv.URL, "good-key", time.Second); !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	if result := CheckService(ctx, "carrier", srv.URL, "bad-key", time.Second); result.Passed || !strings.Contains(result.Detail, "auth failed") {
		t.Fatalf("unexpected result %+v", result)
	}
	if result := CheckService(ctx, "carrier", "", "", time.Second); !result.Passed || !strings.Contains(result.Detail, "Disabled") {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestCheckService_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if result := CheckService(context.Background(), "rates", srv.URL, "", time.Second); result.Passed {
		t.Fatal("expected failure for 5xx response")
	}
}

func TestRunAll(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithCatalog(testsupport.SampleCatalog))
	db := testsupport.MustOpenDB(t, cfg)
	results := RunAll(context.Background(), cfg, db)
	if len(results) != 8 {
		t.Fatalf("expected 8 results, got %d: %+v", len(results), results)
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures %+v", failed)
	}
	if RunAll(context.Background(), nil, nil) != nil {
		t.Fatal("expected nil results without config")
	}
}
