package compare

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"
)

func okResult() Result {
	return Result{
		ASIN:        "B0TESTASIN",
		RiskLevel:   RiskLow,
		Comparisons: []Comparison{},
	}
}

func TestCheckSendsPageContext(t *testing.T) {
	var got url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		json.NewEncoder(w).Encode(okResult())
	}))
	defer srv.Close()

	cl := New(srv.URL, WithBackoff(time.Millisecond))
	res, err := cl.Check(context.Background(), CheckRequest{
		ASIN:        "B0TESTASIN",
		Title:       "Widget",
		Description: "<p>Battery lasts &amp; charges</p>",
		Region:      "US",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.ASIN != "B0TESTASIN" {
		t.Fatalf("wrong asin %q", res.ASIN)
	}
	if got.Get("asin") != "B0TESTASIN" || got.Get("page_region") != "US" {
		t.Fatalf("missing query params: %v", got)
	}
	// Markup stripped, entities decoded.
	if got.Get("page_description") != "Battery lasts & charges" {
		t.Fatalf("description not sanitized: %q", got.Get("page_description"))
	}
}

func TestCheckRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(okResult())
	}))
	defer srv.Close()

	cl := New(srv.URL, WithRetries(3), WithBackoff(time.Millisecond))
	if _, err := cl.Check(context.Background(), CheckRequest{ASIN: "B0TESTASIN"}); err != nil {
		t.Fatalf("expected success on third attempt: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", calls.Load())
	}
}

func TestCheckGivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cl := New(srv.URL, WithRetries(2), WithBackoff(time.Millisecond))
	if _, err := cl.Check(context.Background(), CheckRequest{ASIN: "B0TESTASIN"}); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestCheckRejectsMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"asin": "B0TESTASIN"`)) // truncated
	}))
	defer srv.Close()

	cl := New(srv.URL, WithRetries(1), WithBackoff(time.Millisecond))
	if _, err := cl.Check(context.Background(), CheckRequest{ASIN: "B0TESTASIN"}); err == nil {
		t.Fatal("expected error for truncated JSON")
	}
}

func TestCheckRejectsInvalidResult(t *testing.T) {
	cases := []Result{
		{RiskLevel: RiskLow, Comparisons: []Comparison{}},                      // no asin
		{ASIN: "B0TESTASIN", RiskLevel: "SEVERE", Comparisons: []Comparison{}}, // bad risk
		{ASIN: "B0TESTASIN", RiskLevel: RiskHigh},                              // nil comparisons
	}
	for i, bad := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(bad)
		}))
		cl := New(srv.URL, WithRetries(1), WithBackoff(time.Millisecond))
		if _, err := cl.Check(context.Background(), CheckRequest{ASIN: "B0TESTASIN"}); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
		srv.Close()
	}
}

func TestCheckRequiresASIN(t *testing.T) {
	cl := New("http://localhost:0")
	if _, err := cl.Check(context.Background(), CheckRequest{}); err == nil {
		t.Fatal("expected error without asin")
	}
}

func TestCheckCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cl := New(srv.URL, WithRetries(3), WithBackoff(time.Second))
	start := time.Now()
	_, err := cl.Check(ctx, CheckRequest{ASIN: "B0TESTASIN"})
	if err == nil {
		t.Fatal("expected error with cancelled context")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatal("cancelled context must not wait out the backoff")
	}
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"status":"healthy"}`))
	}))
	defer srv.Close()

	cl := New(srv.URL)
	if err := cl.Health(context.Background()); err != nil {
		t.Fatal(err)
	}

	cl = New(srv.URL + "/missing")
	if err := cl.Health(context.Background()); err == nil {
		t.Fatal("expected error for non-200 health")
	}
}

func TestSanitizeTruncatesOnRuneBoundary(t *testing.T) {
	cl := New("http://service.invalid")

	// Three bytes per rune, so the byte cap lands mid-rune.
	long := strings.Repeat("⚡", maxDescriptionLen)
	got := cl.sanitize(long)
	if len(got) == 0 || len(got) > maxDescriptionLen {
		t.Fatalf("truncated length %d", len(got))
	}
	if !utf8.ValidString(got) {
		t.Fatal("truncation split a rune")
	}

	// Below the cap nothing is touched.
	if short := cl.sanitize("⚡ fast charge"); short != "⚡ fast charge" {
		t.Fatalf("short description altered: %q", short)
	}
}
