package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/spigell/profile-evaluator/internal/ai"
	"github.com/spigell/profile-evaluator/internal/history"
	"github.com/spigell/profile-evaluator/internal/prompt"
)

type stubPipeline struct {
	reply   string
	result  *ai.EvaluationResult
	err     error
	prompts []string
}

func (s *stubPipeline) Evaluate(_ context.Context, prompt string) (*ai.EvaluationResult, error) {
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func (s *stubPipeline) Generate(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func newChatRouter(h *ChatHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/chat", h.Chat)
	return r
}

func postChat(t *testing.T, r *gin.Engine, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response body: %v", err)
	}
	return body
}

func TestChatEmptyMessage(t *testing.T) {
	h := NewChatHandler(&stubPipeline{}, history.NewMemoryStore(5), prompt.Knowledge{}, nil)
	r := newChatRouter(h)

	w := postChat(t, r, `{"message": ""}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	if _, ok := decodeBody(t, w)["error"]; !ok {
		t.Fatal("expected error key in response body")
	}
}

func TestChatInvalidBody(t *testing.T) {
	h := NewChatHandler(&stubPipeline{}, history.NewMemoryStore(5), prompt.Knowledge{}, nil)
	r := newChatRouter(h)

	w := postChat(t, r, `{not json`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestChatHappyPathAppendsHistory(t *testing.T) {
	pipeline := &stubPipeline{reply: "hi there"}
	store := history.NewMemoryStore(5)
	h := NewChatHandler(pipeline, store, prompt.Knowledge{}, nil)
	r := newChatRouter(h)

	w := postChat(t, r, `{"message": "hello", "session_id": "s1"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	if body["response"] != "hi there" {
		t.Fatalf("unexpected response: %v", body["response"])
	}

	turns, _ := store.Get(context.Background(), "s1")
	if len(turns) != 1 || turns[0].User != "hello" || turns[0].Bot != "hi there" {
		t.Fatalf("unexpected stored history: %+v", turns)
	}
}

func TestChatDefaultSession(t *testing.T) {
	pipeline := &stubPipeline{reply: "ok"}
	store := history.NewMemoryStore(5)
	h := NewChatHandler(pipeline, store, prompt.Knowledge{}, nil)
	r := newChatRouter(h)

	postChat(t, r, `{"message": "hello"}`)

	turns, _ := store.Get(context.Background(), "default")
	if len(turns) != 1 {
		t.Fatalf("expected turn stored under default session, got %d", len(turns))
	}
}

func TestChatHistoryInjectedIntoPrompt(t *testing.T) {
	pipeline := &stubPipeline{reply: "reply"}
	store := history.NewMemoryStore(5)
	_ = store.Append(context.Background(), "s1", history.Turn{User: "earlier question", Bot: "earlier answer"})
	h := NewChatHandler(pipeline, store, prompt.Knowledge{}, nil)
	r := newChatRouter(h)

	postChat(t, r, `{"message": "follow-up", "session_id": "s1"}`)

	if len(pipeline.prompts) != 1 {
		t.Fatalf("expected 1 prompt, got %d", len(pipeline.prompts))
	}

	if !strings.Contains(pipeline.prompts[0], "earlier question") {
		t.Fatalf("prior turns missing from prompt: %s", pipeline.prompts[0])
	}
}

func TestChatSixTurnsCapAtFive(t *testing.T) {
	pipeline := &stubPipeline{reply: "reply"}
	store := history.NewMemoryStore(5)
	h := NewChatHandler(pipeline, store, prompt.Knowledge{}, nil)
	r := newChatRouter(h)

	for i := 1; i <= 6; i++ {
		w := postChat(t, r, fmt.Sprintf(`{"message": "message %d", "session_id": "s1"}`, i))
		if w.Code != http.StatusOK {
			t.Fatalf("turn %d: expected 200, got %d", i, w.Code)
		}
	}

	turns, _ := store.Get(context.Background(), "s1")
	if len(turns) != 5 {
		t.Fatalf("expected history capped at 5, got %d", len(turns))
	}

	for _, turn := range turns {
		if turn.User == "message 1" {
			t.Fatal("oldest turn must be evicted")
		}
	}
}

func TestChatUpstreamFailure(t *testing.T) {
	pipeline := &stubPipeline{err: errors.New("max retries reached")}
	h := NewChatHandler(pipeline, history.NewMemoryStore(5), prompt.Knowledge{}, nil)
	r := newChatRouter(h)

	w := postChat(t, r, `{"message": "hello"}`)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}

	if _, ok := decodeBody(t, w)["error"]; !ok {
		t.Fatal("expected error key in response body")
	}
}

func TestChatKnowledgeInjection(t *testing.T) {
	pipeline := &stubPipeline{reply: "reply"}
	knowledge := prompt.Knowledge{Text: "The hackathon runs in March.", Keywords: []string{"hackathon"}}
	h := NewChatHandler(pipeline, history.NewMemoryStore(5), knowledge, nil)
	r := newChatRouter(h)

	postChat(t, r, `{"message": "when is the hackathon?"}`)

	if !strings.Contains(pipeline.prompts[0], "The hackathon runs in March.") {
		t.Fatalf("knowledge missing from prompt: %s", pipeline.prompts[0])
	}

	pipeline.prompts = nil
	postChat(t, r, `{"message": "unrelated question"}`)

	if strings.Contains(pipeline.prompts[0], "The hackathon runs in March.") {
		t.Fatal("knowledge must not be injected without a keyword match")
	}
}
