package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/genledger/internal/api/handler"
	"github.com/jmerrifield20/genledger/internal/generation"
	"github.com/jmerrifield20/genledger/internal/ledger"
	"github.com/jmerrifield20/genledger/internal/llm"
	"go.uber.org/zap"
)

// ── Stubs ────────────────────────────────────────────────────────────────

type echoGenerator struct{}

func (echoGenerator) Generate(_ context.Context, prompt string) (string, error) {
	return "generated: " + prompt[:min(len(prompt), 20)], nil
}

type failingStore struct {
	ledger.Store
}

func (failingStore) Record(context.Context, string, ledger.Kind, string) (*ledger.Entry, error) {
	return nil, errors.New("disk full")
}

// ── Helpers ──────────────────────────────────────────────────────────────

var hexDigest = regexp.MustCompile(`^[0-9a-f]{64}$`)

func setupGenerationRouter(t *testing.T, gen llm.Generator, store ledger.Store) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	svc := generation.NewService(gen, store, generation.Config{}, zap.NewNop())
	handler.NewGenerationHandler(svc, zap.NewNop()).Register(r)
	return r
}

func postJSON(router http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return resp
}

func ledgerLen(t *testing.T, store ledger.Store) int {
	t.Helper()
	n, err := store.Len(context.Background())
	if err != nil {
		t.Fatalf("Len: %v", err)
	}
	return n
}

// ── Tests ────────────────────────────────────────────────────────────────

func TestSummarize_200_disabledBackend(t *testing.T) {
	store := ledger.NewMemoryStore()
	router := setupGenerationRouter(t, llm.Disabled{}, store)

	w := postJSON(router, "/summarize", `{"text":"Photosynthesis converts light into chemical energy."}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	resp := decode(t, w)
	if resp["summary"] != generation.FallbackDisabled {
		t.Errorf("summary = %v, want fallback text", resp["summary"])
	}
	hash, _ := resp["verification_hash"].(string)
	if !hexDigest.MatchString(hash) {
		t.Errorf("verification_hash %q is not 64 lower-case hex characters", hash)
	}
	if len(resp) != 2 {
		t.Errorf("expected exactly summary and verification_hash, got %v", resp)
	}
	if w.Header().Get("X-Generation-Degraded") != "true" {
		t.Error("expected X-Generation-Degraded header on fallback response")
	}
	if _, err := store.Lookup(context.Background(), hash); err != nil {
		t.Errorf("returned hash not on record: %v", err)
	}
}

func TestSummarize_200_generated(t *testing.T) {
	router := setupGenerationRouter(t, echoGenerator{}, ledger.NewMemoryStore())

	w := postJSON(router, "/summarize", `{"text":"some text"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode(t, w)
	if s, _ := resp["summary"].(string); !strings.HasPrefix(s, "generated: ") {
		t.Errorf("summary = %q, want generated text", s)
	}
	if w.Header().Get("X-Generation-Degraded") != "" {
		t.Error("unexpected degraded header on generated response")
	}
}

func TestSummarize_400_missingText(t *testing.T) {
	store := ledger.NewMemoryStore()
	router := setupGenerationRouter(t, llm.Disabled{}, store)

	for _, body := range []string{`{}`, `{"text":""}`, `{"text":"   "}`} {
		w := postJSON(router, "/summarize", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", body, w.Code)
			continue
		}
		if got := decode(t, w)["error"]; got != "No text provided" {
			t.Errorf("%s: error = %v", body, got)
		}
	}
	if n := ledgerLen(t, store); n != 0 {
		t.Errorf("expected empty ledger after validation failures, got %d", n)
	}
}

func TestQA_400_emptyBody(t *testing.T) {
	store := ledger.NewMemoryStore()
	router := setupGenerationRouter(t, llm.Disabled{}, store)

	w := postJSON(router, "/qa", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if got := decode(t, w)["error"]; got != "Context and question are required" {
		t.Errorf("error = %v", got)
	}
	if n := ledgerLen(t, store); n != 0 {
		t.Errorf("ledger size changed: %d", n)
	}
}

func TestQA_400_missingQuestion(t *testing.T) {
	router := setupGenerationRouter(t, llm.Disabled{}, ledger.NewMemoryStore())

	w := postJSON(router, "/qa", `{"context":"The sky is blue."}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestQA_200(t *testing.T) {
	router := setupGenerationRouter(t, llm.Disabled{}, ledger.NewMemoryStore())

	w := postJSON(router, "/qa", `{"context":"The sky is blue.","question":"What color is the sky?"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode(t, w)
	if _, ok := resp["answer"]; !ok {
		t.Errorf("expected answer field, got %v", resp)
	}
	if _, ok := resp["verification_hash"]; !ok {
		t.Errorf("expected verification_hash field, got %v", resp)
	}
}

func TestLearningPath_sameHashTwice(t *testing.T) {
	store := ledger.NewMemoryStore()
	router := setupGenerationRouter(t, llm.Disabled{}, store)

	first := decode(t, postJSON(router, "/learning_path", `{"topic":"Linear Algebra"}`))
	second := decode(t, postJSON(router, "/learning_path", `{"topic":"Linear Algebra"}`))

	if first["verification_hash"] != second["verification_hash"] {
		t.Errorf("hashes differ: %v vs %v", first["verification_hash"], second["verification_hash"])
	}
	if first["learning_path"] != generation.FallbackDisabled {
		t.Errorf("learning_path = %v", first["learning_path"])
	}
	if n := ledgerLen(t, store); n != 1 {
		t.Errorf("expected 1 distinct digest, got %d", n)
	}
}

func TestLearningPath_400_missingTopic(t *testing.T) {
	router := setupGenerationRouter(t, llm.Disabled{}, ledger.NewMemoryStore())

	w := postJSON(router, "/learning_path", `{"topic":""}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if got := decode(t, w)["error"]; got != "No topic provided" {
		t.Errorf("error = %v", got)
	}
}

func TestGeneration_400_invalidJSON(t *testing.T) {
	router := setupGenerationRouter(t, llm.Disabled{}, ledger.NewMemoryStore())

	for _, path := range []string{"/summarize", "/qa", "/learning_path"} {
		w := postJSON(router, path, `not json`)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", path, w.Code)
		}
	}
}

func TestGeneration_413_bodyTooLarge(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handler.BodyLimit(64))
	svc := generation.NewService(llm.Disabled{}, ledger.NewMemoryStore(), generation.Config{}, zap.NewNop())
	handler.NewGenerationHandler(svc, zap.NewNop()).Register(r)

	body := `{"text":"` + strings.Repeat("a", 256) + `"}`
	w := postJSON(r, "/summarize", body)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d: %s", w.Code, w.Body.String())
	}
}

func TestGeneration_500_storeFailure(t *testing.T) {
	router := setupGenerationRouter(t, llm.Disabled{}, failingStore{Store: ledger.NewMemoryStore()})

	w := postJSON(router, "/summarize", `{"text":"hello"}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	resp := decode(t, w)
	if _, ok := resp["verification_hash"]; ok {
		t.Error("500 response must not carry a verification hash")
	}
	if strings.Contains(w.Body.String(), "disk full") {
		t.Error("internal error text leaked to client")
	}
}
