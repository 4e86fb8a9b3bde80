package syncer

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestFetcher_BuildsPeriodPath(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL, "rasff", "xlsx", time.Second, zap.NewNop())
	res := f.Fetch(Period{Year: 2025, Week: 3})
	if res.Status != FetchData {
		t.Fatalf("expected data, got %v (err=%v)", res.Status, res.Err)
	}
	if gotPath != "/25/rasff-2025-03.xlsx" {
		t.Fatalf("unexpected path: %q", gotPath)
	}
	if string(res.Data) != "payload" {
		t.Fatalf("unexpected body: %q", res.Data)
	}
}

func TestFetcher_NotFoundIsAbsentNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	res := NewFetcher(srv.URL, "rasff", "xlsx", time.Second, zap.NewNop()).Fetch(Period{2026, 40})
	if res.Status != FetchAbsent {
		t.Fatalf("expected absent, got %v", res.Status)
	}
	if res.Err != nil {
		t.Fatalf("absence must not carry an error, got %v", res.Err)
	}
}

func TestFetcher_ServerErrorIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	res := NewFetcher(srv.URL, "rasff", "xlsx", time.Second, zap.NewNop()).Fetch(Period{2025, 1})
	if res.Status != FetchFailed || res.Err == nil {
		t.Fatalf("expected failure with error, got %v (err=%v)", res.Status, res.Err)
	}
}

func TestFetcher_TransportErrorIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	res := NewFetcher(srv.URL, "rasff", "xlsx", time.Second, zap.NewNop()).Fetch(Period{2025, 1})
	if res.Status != FetchFailed || res.Err == nil {
		t.Fatalf("expected transport failure, got %v (err=%v)", res.Status, res.Err)
	}
}
