package ollama

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgallion1/docchat/internal/llm"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(Config{BaseURL: srv.URL + "/", ChatModel: "chat", EmbedModel: "embed"}, llm.NewLimiter(0, 0), log)
}

func TestEmbed_Batch(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Model != "embed" || len(req.Input) != 2 {
			t.Errorf("unexpected request %+v", req)
		}
		json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{1, 0}, {0, 1}}})
	}))

	vecs, err := c.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vecs) != 2 || vecs[1][1] != 1 {
		t.Errorf("unexpected vectors %v", vecs)
	}
}

func TestEmbed_FallsBackToLegacyEndpoint(t *testing.T) {
	var legacyCalls int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/embed":
			http.NotFound(w, r)
		case "/api/embeddings":
			atomic.AddInt32(&legacyCalls, 1)
			var req legacyEmbedRequest
			json.NewDecoder(r.Body).Decode(&req)
			json.NewEncoder(w).Encode(legacyEmbedResponse{Embedding: []float32{float32(len(req.Prompt))}})
		}
	}))

	vecs, err := c.Embed(context.Background(), []string{"a", "bbb"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if legacyCalls != 2 {
		t.Errorf("expected one legacy call per text, got %d", legacyCalls)
	}
	if vecs[0][0] != 1 || vecs[1][0] != 3 {
		t.Errorf("vectors out of order: %v", vecs)
	}
}

func TestEmbed_RetriesTransientErrors(t *testing.T) {
	var calls int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{1}}})
	}))

	if _, err := c.Embed(context.Background(), []string{"a"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestEmbed_ContextDeadline(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.Embed(ctx, []string{"a"}); err == nil {
		t.Fatal("expected an error after the deadline")
	}
}

func TestGenerate_Chat(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Content != "Question: hi" {
			t.Errorf("unexpected chat request %+v", req)
		}
		if req.Stream {
			t.Errorf("expected non-streaming request")
		}
		json.NewEncoder(w).Encode(chatResponse{Message: chatMessage{Role: "assistant", Content: "  Paris.  "}})
	}))

	got, err := c.Generate(context.Background(), llm.Prompt{System: "rules", User: "Question: hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Paris." {
		t.Errorf("expected trimmed answer, got %q", got)
	}
}

func TestGenerate_FallsBackToGenerateEndpoint(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/chat":
			json.NewEncoder(w).Encode(chatResponse{})
		case "/api/generate":
			var req generateRequest
			json.NewDecoder(r.Body).Decode(&req)
			if req.Prompt != "rules\n\nQuestion: hi" {
				t.Errorf("unexpected flattened prompt %q", req.Prompt)
			}
			json.NewEncoder(w).Encode(generateResponse{Response: "Paris."})
		}
	}))

	got, err := c.Generate(context.Background(), llm.Prompt{System: "rules", User: "Question: hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Paris." {
		t.Errorf("expected fallback answer, got %q", got)
	}
}

func TestGenerate_Failure(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusBadRequest)
	}))
	if _, err := c.Generate(context.Background(), llm.Prompt{User: "q"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestPing(t *testing.T) {
	up := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"models":[]}`))
	}))
	if err := up.Ping(context.Background()); err != nil {
		t.Fatalf("expected ping ok, got %v", err)
	}

	down := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	if err := down.Ping(context.Background()); err == nil {
		t.Fatal("expected ping failure")
	}
}
