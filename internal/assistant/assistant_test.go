package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcandre22/ready-mix-coach/internal/aggregator"
	"github.com/marcandre22/ready-mix-coach/internal/logger"
	"github.com/marcandre22/ready-mix-coach/internal/types"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

// fakeOpenAI records every request and answers through reply.
type fakeOpenAI struct {
	mu       sync.Mutex
	requests []chatRequest
	reply    func(n int, req chatRequest, w http.ResponseWriter, r *http.Request)
}

func (f *fakeOpenAI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	f.mu.Lock()
	f.requests = append(f.requests, req)
	n := len(f.requests)
	f.mu.Unlock()
	f.reply(n, req, w, r)
}

func (f *fakeOpenAI) calls() []chatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chatRequest(nil), f.requests...)
}

func writeAnswer(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
	})
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"message": msg, "type": "invalid_request_error", "code": code},
	})
}

func newTestClient(t *testing.T, f *fakeOpenAI, cfg Config) *OpenAI {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	cfg.APIKey = "test-key"
	cfg.BaseURL = srv.URL + "/v1"
	return NewOpenAI(cfg, logger.Discard())
}

func TestAskFallsThroughMissingModel(t *testing.T) {
	f := &fakeOpenAI{reply: func(_ int, req chatRequest, w http.ResponseWriter, _ *http.Request) {
		if req.Model == "gpt-legacy" {
			writeError(w, http.StatusNotFound, "model_not_found", "The model `gpt-legacy` does not exist")
			return
		}
		writeAnswer(w, "  Wait time is up 4 min.  ")
	}}
	c := newTestClient(t, f, Config{Model: "gpt-legacy", MaxElapsed: time.Second})

	got, err := c.Ask(context.Background(), "sys", types.ConversationHistory{}, "why is wait up?")
	require.NoError(t, err)
	assert.Equal(t, "Wait time is up 4 min.", got)

	calls := f.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "gpt-legacy", calls[0].Model)
	assert.Equal(t, "gpt-4o", calls[1].Model)
}

func TestModelChainSkipsDuplicates(t *testing.T) {
	assert.Equal(t, []string{"gpt-4o", "gpt-4o-mini"}, modelChain("gpt-4o"))
	assert.Equal(t, []string{"o3", "gpt-4o", "gpt-4o-mini"}, modelChain("o3"))

	c := NewOpenAI(Config{APIKey: "sk-test", Model: "gpt-4o-mini"}, logger.Discard())
	models := c.Models()
	assert.Equal(t, []string{"gpt-4o-mini", "gpt-4o"}, models)
	models[0] = "changed"
	assert.Equal(t, "gpt-4o-mini", c.Models()[0])
}

func TestAskAuthErrorIsUnavailableWithoutRetry(t *testing.T) {
	f := &fakeOpenAI{reply: func(_ int, _ chatRequest, w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusUnauthorized, "invalid_api_key", "Incorrect API key provided")
	}}
	c := newTestClient(t, f, Config{MaxElapsed: 5 * time.Second})

	_, err := c.Ask(context.Background(), "sys", types.ConversationHistory{}, "hello")
	require.Error(t, err)

	var u *UnavailableError
	require.True(t, errors.As(err, &u))
	assert.False(t, u.Timeout)
	assert.Len(t, f.calls(), 1)
}

func TestAskRetriesServerErrors(t *testing.T) {
	f := &fakeOpenAI{reply: func(n int, _ chatRequest, w http.ResponseWriter, _ *http.Request) {
		if n == 1 {
			writeError(w, http.StatusBadGateway, "", "upstream hiccup")
			return
		}
		writeAnswer(w, "recovered")
	}}
	c := newTestClient(t, f, Config{MaxElapsed: 10 * time.Second})

	got, err := c.Ask(context.Background(), "sys", types.ConversationHistory{}, "hello")
	require.NoError(t, err)
	assert.Equal(t, "recovered", got)
	assert.Len(t, f.calls(), 2)
}

func TestAskTimeout(t *testing.T) {
	f := &fakeOpenAI{reply: func(_ int, _ chatRequest, w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
			writeAnswer(w, "too late")
		}
	}}
	c := newTestClient(t, f, Config{Timeout: 50 * time.Millisecond})

	_, err := c.Ask(context.Background(), "sys", types.ConversationHistory{}, "hello")
	var u *UnavailableError
	require.True(t, errors.As(err, &u))
	assert.True(t, u.Timeout)
}

func TestAskSendsSystemHistoryAndQuestion(t *testing.T) {
	f := &fakeOpenAI{reply: func(_ int, _ chatRequest, w http.ResponseWriter, _ *http.Request) {
		writeAnswer(w, "ok")
	}}
	c := newTestClient(t, f, Config{HistoryTurns: 2})

	h := types.ConversationHistory{}.
		With(types.Message{Role: types.RoleUser, Content: "old question"}).
		With(types.Message{Role: types.RoleUser, Content: "volume today"}).
		With(types.Message{Role: types.RoleAssistant, Content: "22 m3"})
	_, err := c.Ask(context.Background(), "system ctx", h, "and yesterday?")
	require.NoError(t, err)

	msgs := f.calls()[0].Messages
	require.Len(t, msgs, 4)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, "system ctx", msgs[0].Content)
	assert.Equal(t, "volume today", msgs[1].Content)
	assert.Equal(t, "assistant", msgs[2].Role)
	assert.Equal(t, "and yesterday?", msgs[3].Content)
}

func TestNewPicksMock(t *testing.T) {
	a, err := New(Config{Mock: true}, logger.Discard())
	require.NoError(t, err)
	_, ok := a.(*Mock)
	assert.True(t, ok)

	t.Setenv("USE_MOCK_LLM", "false")
	t.Setenv("OPENAI_API_KEY", "")
	_, err = New(Config{}, logger.Discard())
	assert.Error(t, err)
}

func TestMockRecordsCalls(t *testing.T) {
	m := &Mock{}
	got, err := m.Ask(context.Background(), "ctx", types.ConversationHistory{}, " why? ")
	require.NoError(t, err)
	assert.Contains(t, got, `"why?"`)
	require.Len(t, m.Calls, 1)
	assert.Equal(t, "ctx", m.Calls[0].SystemContext)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Ask(ctx, "ctx", types.ConversationHistory{}, "q")
	var u *UnavailableError
	assert.ErrorAs(t, err, &u)
}

func TestAsUnavailable(t *testing.T) {
	carried := &UnavailableError{Cause: errors.New("boom")}
	assert.Same(t, carried, AsUnavailable(fmt.Errorf("ask: %w", carried)))

	u := AsUnavailable(errors.New("connection refused"))
	assert.False(t, u.Timeout)
	assert.EqualError(t, u, "assistant unavailable: connection refused")

	u = AsUnavailable(fmt.Errorf("call: %w", context.DeadlineExceeded))
	assert.True(t, u.Timeout)
	assert.ErrorIs(t, u, context.DeadlineExceeded)
}

func TestDefaultGuidelines(t *testing.T) {
	g := DefaultGuidelines()
	assert.Equal(t, "direct, supportive, insightful", g.Style.Voice)
	assert.Len(t, g.SuggestedPrompts, 21)

	prompt := BuildSystemPrompt(g)
	assert.Contains(t, prompt, "Speak in a direct, supportive, insightful tone.")
	assert.Contains(t, prompt, "Instructions:\n- Remember recent questions")
	assert.Contains(t, prompt, "Avoid:\n- too vague")
	assert.Contains(t, prompt, "Closing Guideline: ")
}

func TestParseGuidelinesRejectsIncomplete(t *testing.T) {
	_, err := ParseGuidelines([]byte("persona: hi\n"))
	assert.ErrorContains(t, err, "missing rules")

	_, err = ParseGuidelines([]byte("persona: [unclosed"))
	assert.Error(t, err)
}

func TestSuggestionsDeterministic(t *testing.T) {
	g := DefaultGuidelines()
	a := g.Suggestions(3, 42)
	b := g.Suggestions(3, 42)
	assert.Equal(t, a, b)
	assert.Len(t, a, 3)

	seen := map[string]bool{}
	for _, s := range a {
		assert.False(t, seen[s], "duplicate suggestion %q", s)
		seen[s] = true
	}
	assert.Len(t, g.Suggestions(0, 1), len(g.SuggestedPrompts))
}

func TestBuildSystemContextEncodesMissingAsNull(t *testing.T) {
	now := time.Date(2026, 3, 5, 14, 0, 0, 0, time.UTC)
	snap := aggregator.ComputeKPIs(nil, now, 600)

	ctx := BuildSystemContext(DefaultGuidelines(), snap)
	assert.Contains(t, ctx, "Best practice:")
	assert.Contains(t, ctx, "Fleet KPIs (JSON, null means no data):")
	assert.Contains(t, ctx, `"utilization_pct": null`)

	start := strings.Index(ctx, "{")
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(ctx[start:]), &decoded))
	assert.Contains(t, decoded, "windows")
}
