package postgrest

import (
	"context"
	stdjson "encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

// tableServer fakes a PostgREST endpoint serving rows from memory with
// offset/limit pagination. It can advertise a wrong total and inject
// failures.
type tableServer struct {
	rows         []Row
	failuresLeft int32 // 500s to serve before succeeding
	failStatus   int
	requests     int32
	// advertisedTotal, when non-zero, is reported in Content-Range
	// regardless of the actual row count.
	advertisedTotal int
}

func (ts *tableServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&ts.requests, 1)

		if atomic.LoadInt32(&ts.failuresLeft) > 0 {
			atomic.AddInt32(&ts.failuresLeft, -1)
			status := ts.failStatus
			if status == 0 {
				status = http.StatusInternalServerError
			}
			http.Error(w, "upstream hiccup", status)
			return
		}

		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		total := len(ts.rows)
		if ts.advertisedTotal != 0 {
			total = ts.advertisedTotal
		}
		end := offset + limit
		if end > len(ts.rows) {
			end = len(ts.rows)
		}
		var page []Row
		if offset < len(ts.rows) {
			page = ts.rows[offset:end]
		}

		if r.Method == http.MethodHead {
			w.Header().Set("Content-Range", fmt.Sprintf("0-0/%d", total))
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if page == nil {
			page = []Row{}
		}
		stdjson.NewEncoder(w).Encode(page)
	}
}

func nRows(n int) []Row {
	rows := make([]Row, n)
	for i := range rows {
		rows[i] = Row{"rssd_id": fmt.Sprintf("%d", i)}
	}
	return rows
}

func newTestClient(t *testing.T, ts *tableServer) (*Client, func()) {
	t.Helper()
	srv := httptest.NewServer(ts.handler())
	c := New(srv.URL, "test-key", WithRetryBase(time.Millisecond))
	return c, srv.Close
}

// ── Pagination termination ──

func TestFetchAllConcatenatesPages(t *testing.T) {
	ts := &tableServer{rows: nRows(25)}
	c, closeFn := newTestClient(t, ts)
	defer closeFn()

	rows, err := c.FetchAll(context.Background(), Query{Table: "y9c_full", PageSize: 10})
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(rows) != 25 {
		t.Fatalf("got %d rows, want 25", len(rows))
	}
	if rows[24]["rssd_id"] != "24" {
		t.Errorf("rows out of order: %v", rows[24])
	}
}

func TestFetchAllIgnoresAdvertisedTotal(t *testing.T) {
	// The service claims 1000 rows but only 15 exist. The short page
	// must terminate the loop; trusting the advertised count would
	// spin forever on empty pages.
	ts := &tableServer{rows: nRows(15), advertisedTotal: 1000}
	c, closeFn := newTestClient(t, ts)
	defer closeFn()

	rows, err := c.FetchAll(context.Background(), Query{Table: "y9c_full", PageSize: 10})
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(rows) != 15 {
		t.Fatalf("got %d rows, want 15", len(rows))
	}
	// 2 pages: full then short.
	if got := atomic.LoadInt32(&ts.requests); got != 2 {
		t.Errorf("made %d requests, want 2", got)
	}
}

func TestFetchAllExactPageBoundary(t *testing.T) {
	// 20 rows, page size 10: the loop needs a third, empty page to
	// prove exhaustion.
	ts := &tableServer{rows: nRows(20)}
	c, closeFn := newTestClient(t, ts)
	defer closeFn()

	rows, err := c.FetchAll(context.Background(), Query{Table: "y9c_full", PageSize: 10})
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(rows) != 20 {
		t.Fatalf("got %d rows, want 20", len(rows))
	}
}

func TestFetchAllMaxRowsCap(t *testing.T) {
	ts := &tableServer{rows: nRows(100)}
	c, closeFn := newTestClient(t, ts)
	defer closeFn()

	rows, err := c.FetchAll(context.Background(), Query{Table: "y9c_full", PageSize: 30, MaxRows: 50})
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(rows) != 50 {
		t.Fatalf("got %d rows, want exactly 50", len(rows))
	}
}

// ── Retry behaviour ──

func TestFetchAllRetriesTransient(t *testing.T) {
	ts := &tableServer{rows: nRows(5), failuresLeft: 2}
	c, closeFn := newTestClient(t, ts)
	defer closeFn()

	rows, err := c.FetchAll(context.Background(), Query{Table: "y9c_full", PageSize: 10})
	if err != nil {
		t.Fatalf("FetchAll after transient failures: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("got %d rows, want 5", len(rows))
	}
}

func TestFetchAllExhaustsRetries(t *testing.T) {
	ts := &tableServer{rows: nRows(5), failuresLeft: 100}
	c, closeFn := newTestClient(t, ts)
	defer closeFn()

	rows, err := c.FetchAll(context.Background(), Query{Table: "y9c_full", PageSize: 10})
	if err == nil {
		t.Fatal("expected error after retry exhaustion")
	}
	if !IsTransient(err) {
		t.Errorf("exhausted retries should surface the transient error, got %v", err)
	}
	// No partial results on failure.
	if rows != nil {
		t.Errorf("got partial rows %v, want nil", rows)
	}
}

func TestFetchAllNoRetryOnSchemaError(t *testing.T) {
	ts := &tableServer{rows: nRows(5), failuresLeft: 1, failStatus: http.StatusNotFound}
	c, closeFn := newTestClient(t, ts)
	defer closeFn()

	_, err := c.FetchAll(context.Background(), Query{Table: "missing_table", PageSize: 10})
	if err == nil {
		t.Fatal("expected error")
	}
	if IsTransient(err) {
		t.Errorf("404 should be a schema error, got %v", err)
	}
	if got := atomic.LoadInt32(&ts.requests); got != 1 {
		t.Errorf("schema error retried: %d requests", got)
	}
}

func TestFetchAllRejectsNonArrayBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"message": "not a row list"}`)
	}))
	defer srv.Close()

	c := New(srv.URL, "key", WithRetryBase(time.Millisecond))
	_, err := c.FetchAll(context.Background(), Query{Table: "y9c_full", PageSize: 10})
	if err == nil {
		t.Fatal("expected shape error")
	}
	if IsTransient(err) {
		t.Errorf("shape violation must not be transient: %v", err)
	}
}

// ── Count ──

func TestCountParsesContentRange(t *testing.T) {
	ts := &tableServer{rows: nRows(7), advertisedTotal: 3573}
	c, closeFn := newTestClient(t, ts)
	defer closeFn()

	n, err := c.Count(context.Background(), "y9c_full")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 3573 {
		t.Errorf("got %d, want 3573", n)
	}
}

// ── Headers ──

func TestAuthHeadersSent(t *testing.T) {
	var gotKey, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("apikey")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	c := New(srv.URL, "secret-key")
	if _, err := c.FetchAll(context.Background(), Query{Table: "t", PageSize: 10}); err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if gotKey != "secret-key" || gotAuth != "Bearer secret-key" {
		t.Errorf("credentials not sent: apikey=%q auth=%q", gotKey, gotAuth)
	}
}

// ── Rate limiting ──

func TestZeroRateLimitDisablesThrottle(t *testing.T) {
	// rate_limit: 0 must mean "no throttle", not "no tokens ever":
	// a zero-token limiter would block every fetch until context death.
	ts := &tableServer{rows: nRows(25)}
	srv := httptest.NewServer(ts.handler())
	defer srv.Close()

	c := New(srv.URL, "test-key", WithRateLimit(0, 10*time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	rows, err := c.FetchAll(ctx, Query{Table: "y9c_full", PageSize: 10})
	if err != nil {
		t.Fatalf("FetchAll with disabled throttle: %v", err)
	}
	if len(rows) != 25 {
		t.Errorf("got %d rows, want 25", len(rows))
	}
}

// ── Ping ──

func TestPingRejectedCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := New(srv.URL, "wrong-key").Ping(context.Background())
	if err == nil || IsTransient(err) {
		t.Errorf("got %v, want non-transient credential error", err)
	}
}

func TestPingOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := New(srv.URL, "test-key").Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
