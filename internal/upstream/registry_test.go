package upstream

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"relay-gate-go/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Upstream: config.UpstreamConfig{
			MaxBackends:     8,
			IdleConnections: 10,
		},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegistry_ClientReuse(t *testing.T) {
	r, err := NewRegistry(testConfig(), testLogger(), nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	id := Derive("example.com", 443)
	first := r.client(id)
	second := r.client(id)

	if first != second {
		t.Error("same identity should reuse the same client")
	}

	other := r.client(Derive("example.org", 443))
	if other == first {
		t.Error("distinct targets must not share a client")
	}
}

// Colliding name tokens still get separate clients: the cache keys on the
// dial target, and each client's TLS config carries its own server name.
func TestRegistry_NameCollisionSeparateClients(t *testing.T) {
	r, err := NewRegistry(testConfig(), testLogger(), nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	a := Derive("a.b", 443)
	b := Derive("a_b", 443)
	if a.Name != b.Name {
		t.Fatalf("expected colliding names, got %q and %q", a.Name, b.Name)
	}

	if r.client(a) == r.client(b) {
		t.Error("colliding names must not share a client")
	}
}

func TestRegistry_EvictsOldestClient(t *testing.T) {
	cfg := testConfig()
	cfg.Upstream.MaxBackends = 1
	r, err := NewRegistry(cfg, testLogger(), nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	first := r.client(Derive("one.example.com", 443))
	r.client(Derive("two.example.com", 443))

	if got := r.clients.Len(); got != 1 {
		t.Fatalf("cache length = %d, want 1", got)
	}

	// Re-requesting the evicted identity builds a fresh client.
	if r.client(Derive("one.example.com", 443)) == first {
		t.Error("evicted identity should get a new client")
	}
}

func TestRegistry_DoStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Host != "origin.test" {
			t.Errorf("Host = %q, want %q", req.Host, "origin.test")
		}
		if req.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", req.Method)
		}
		if req.ContentLength != 5 {
			t.Errorf("ContentLength = %d, want 5", req.ContentLength)
		}
		body, _ := io.ReadAll(req.Body)
		if string(body) != "hello" {
			t.Errorf("body = %q, want %q", string(body), "hello")
		}
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("created"))
	}))
	defer srv.Close()

	r, err := NewRegistry(testConfig(), testLogger(), nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	id := Derive("origin.test", 443)
	resp, err := r.DoStream(context.Background(), id, http.MethodPost, srv.URL+"/make", http.Header{}, strings.NewReader("hello"), 5)
	if err != nil {
		t.Fatalf("DoStream() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(body) != "created" {
		t.Errorf("body = %q, want %q", string(body), "created")
	}
}

func TestRegistry_DoStream_Unreachable(t *testing.T) {
	r, err := NewRegistry(testConfig(), testLogger(), nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	id := Derive("127.0.0.1", 1)
	_, err = r.DoStream(context.Background(), id, http.MethodGet, "http://127.0.0.1:1/none", http.Header{}, http.NoBody, 0)
	if err == nil {
		t.Fatal("DoStream() expected error for unreachable origin, got nil")
	}
}

func TestRegistry_DoStream_CanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		<-req.Context().Done()
	}))
	defer srv.Close()

	r, err := NewRegistry(testConfig(), testLogger(), nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	id := Derive("origin.test", 443)
	_, err = r.DoStream(ctx, id, http.MethodGet, srv.URL+"/slow", http.Header{}, http.NoBody, 0)
	if err == nil {
		t.Fatal("DoStream() expected error for canceled context, got nil")
	}
}
