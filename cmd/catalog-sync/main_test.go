package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/tcg-catalog-sync/internal/config"
	"github.com/Sternrassler/tcg-catalog-sync/internal/testutil"
	"github.com/Sternrassler/tcg-catalog-sync/pkg/store"
)

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	return &config.Config{
		Catalog: config.Catalog{
			BaseURL:      baseURL,
			CategoryID:   2,
			ProductTypes: "Cards",
			UserAgent:    "CatalogSyncTest/1.0",
			Timeout:      5 * time.Second,
		},
		Sync:    config.Sync{PageSize: 10, MaxConcurrent: 3},
		Store:   config.Store{Path: filepath.Join(t.TempDir(), "catalog.db")},
		Logging: config.Logging{Level: "error", Format: "json"},
	}
}

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	healthHandler(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if string(body) != "OK" {
		t.Errorf("Expected body 'OK', got %s", string(body))
	}
}

func TestServeMetrics(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().String()
	l.Close()

	stop := serveMetrics(addr)
	defer stop()

	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get("http://" + addr + "/metrics")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "catalog_sync_runs_total") && !strings.Contains(string(body), "go_goroutines") {
		t.Errorf("unexpected metrics body: %.200s", body)
	}
}

func TestRunSync_EndToEnd(t *testing.T) {
	mock := testutil.NewMockCatalog()
	defer mock.Close()
	cfg := testConfig(t, mock.URL())

	var out bytes.Buffer
	if err := runSync(context.Background(), cfg, false, &out); err != nil {
		t.Fatalf("runSync() error = %v\n%s", err, out.String())
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if lines[0] != "loading(0%)" {
		t.Errorf("first line = %q", lines[0])
	}
	if lines[len(lines)-3] != "success" || lines[len(lines)-2] != "idle" {
		t.Errorf("tail = %q", lines[len(lines)-3:])
	}
	want := "stored: 3 rarities, 2 printings, 2 conditions, 25 sets, 40 products, 80 skus"
	if lines[len(lines)-1] != want {
		t.Errorf("summary = %q, want %q", lines[len(lines)-1], want)
	}
}

func TestRunSync_Failure(t *testing.T) {
	mock := testutil.NewMockCatalog()
	defer mock.Close()
	mock.FailAt(testutil.ProductsPath, 20, http.StatusInternalServerError)
	cfg := testConfig(t, mock.URL())

	var out bytes.Buffer
	err := runSync(context.Background(), cfg, false, &out)
	if !errors.Is(err, errSyncFailed) {
		t.Fatalf("runSync() error = %v, want errSyncFailed", err)
	}
	if !strings.Contains(out.String(), "failure: ") || !strings.HasSuffix(out.String(), "idle\n") {
		t.Errorf("output = %q", out.String())
	}
}

func TestRunSync_ClearFirst(t *testing.T) {
	mock := testutil.NewMockCatalog(testutil.WithCatalogSize(5, 5))
	defer mock.Close()
	cfg := testConfig(t, mock.URL())

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := db.InsertCardSets(context.Background(), []store.CardSet{{ID: 1, Name: "Stale"}}); err != nil {
		t.Fatalf("InsertCardSets() error = %v", err)
	}
	db.Close()

	var out bytes.Buffer
	if err := runSync(context.Background(), cfg, true, &out); err != nil {
		t.Fatalf("runSync() error = %v", err)
	}
	if !strings.Contains(out.String(), " 5 sets,") {
		t.Errorf("stale set survived --clear: %q", out.String())
	}
}

func TestRunSync_Cancelled(t *testing.T) {
	mock := testutil.NewMockCatalog()
	defer mock.Close()
	cfg := testConfig(t, mock.URL())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	if err := runSync(ctx, cfg, false, &out); !errors.Is(err, context.Canceled) {
		t.Errorf("runSync() error = %v, want context.Canceled", err)
	}
	if strings.Contains(out.String(), "failure") {
		t.Errorf("cancellation reported as failure: %q", out.String())
	}
}

func TestRootCmd_ClearAndStatus(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "catalog.db")
	cfgPath := filepath.Join(dir, "catalog-sync.yaml")
	yaml := fmt.Sprintf("store:\n  path: %s\nlogging:\n  level: error\n", dbPath)
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"clear", "--config", cfgPath})
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("clear error = %v", err)
	}
	if !strings.Contains(out.String(), "cleared "+dbPath) {
		t.Errorf("output = %q", out.String())
	}

	cmd = newRootCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"status", "--config", cfgPath})
	if err := cmd.ExecuteContext(context.Background()); !errors.Is(err, errNoRedis) {
		t.Errorf("status without redis error = %v, want errNoRedis", err)
	}
}
