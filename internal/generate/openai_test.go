package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	openai "github.com/openai/openai-go/v3"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chatServer is a fake Chat Completions endpoint. Each request pops the next reply; the last reply repeats.
type chatServer struct {
	mu       sync.Mutex
	replies  []chatReply
	requests []chatRequest
}

type chatReply struct {
	status int
	body   string
}

type chatRequest struct {
	Model               string  `json:"model"`
	Temperature         float64 `json:"temperature"`
	MaxCompletionTokens int     `json:"max_completion_tokens"`
	Messages            []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func completion(content string, finish string) string {
	return fmt.Sprintf(`{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-4o-mini",`+
		`"choices":[{"index":0,"message":{"role":"assistant","content":%q,"refusal":null},"finish_reason":%q,"logprobs":null}],`+
		`"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`, content, finish)
}

func (s *chatServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/chat/completions") {
		http.NotFound(w, r)
		return
	}
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.requests = append(s.requests, req)

	reply := s.replies[0]
	if len(s.replies) > 1 {
		s.replies = s.replies[1:]
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(reply.status)
	_, _ = w.Write([]byte(reply.body))
}

func newTestOpenAI(t *testing.T, replies ...chatReply) (*OpenAI, *chatServer, *[]time.Duration) {
	t.Helper()
	cs := &chatServer{replies: replies}
	srv := httptest.NewServer(cs)
	t.Cleanup(srv.Close)

	o, err := NewOpenAI(Config{
		APIKey:      "sk-test",
		BaseURL:     srv.URL + "/v1/",
		Temperature: DefaultTemperature,
		MaxRetries:  DefaultMaxRetries,
	})
	require.NoError(t, err)

	var slept []time.Duration
	o.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return o, cs, &slept
}

func TestOpenAI_Generate(t *testing.T) {
	o, cs, slept := newTestOpenAI(t, chatReply{status: 200, body: completion("```python\n\"\"\"Prints a greeting.\"\"\"\n```", "stop")})

	got, err := o.Generate(context.Background(), Request{Language: "python", FunctionText: "def hello_world():\n    print('hi')"})
	require.NoError(t, err)
	assert.Equal(t, `"""Prints a greeting."""`, got)
	assert.Empty(t, *slept)

	require.Len(t, cs.requests, 1)
	req := cs.requests[0]
	assert.Equal(t, DefaultModel, req.Model)
	assert.Equal(t, 1.0, req.Temperature)
	assert.Equal(t, DefaultMaxOutputTokens, req.MaxCompletionTokens)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Content, "Google Style")
	assert.Equal(t, "user", req.Messages[1].Role)
	assert.Equal(t, "```\ndef hello_world():\n    print('hi')\n```", req.Messages[1].Content)
}

func TestOpenAI_EmptyReplyMeansDocumented(t *testing.T) {
	o, _, _ := newTestOpenAI(t, chatReply{status: 200, body: completion("", "stop")})

	got, err := o.Generate(context.Background(), Request{Language: "python", FunctionText: "def f():\n    \"\"\"Doc.\"\"\"\n"})
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestOpenAI_RetriesServerErrors(t *testing.T) {
	serverErr := chatReply{status: 500, body: `{"error":{"message":"boom","type":"server_error"}}`}
	o, cs, slept := newTestOpenAI(t, serverErr, chatReply{status: 429, body: `{"error":{"message":"slow down","type":"rate_limit"}}`},
		chatReply{status: 200, body: completion("Adds.", "stop")})

	got, err := o.Generate(context.Background(), Request{Language: "go", FunctionText: "func Add() {}"})
	require.NoError(t, err)
	assert.Equal(t, "Adds.", got)
	assert.Len(t, cs.requests, 3)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 500 * time.Millisecond}, *slept)
}

func TestOpenAI_GivesUpAfterMaxRetries(t *testing.T) {
	o, cs, slept := newTestOpenAI(t, chatReply{status: 503, body: `{"error":{"message":"unavailable"}}`})

	_, err := o.Generate(context.Background(), Request{Language: "go", FunctionText: "func Add() {}"})
	require.Error(t, err)
	var apiErr *openai.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 503, apiErr.StatusCode)
	assert.Len(t, cs.requests, DefaultMaxRetries+1)
	assert.Len(t, *slept, DefaultMaxRetries)
}

func TestOpenAI_DoesNotRetryAuthErrors(t *testing.T) {
	o, cs, slept := newTestOpenAI(t, chatReply{status: 401, body: `{"error":{"message":"bad key","type":"invalid_request_error"}}`})

	_, err := o.Generate(context.Background(), Request{Language: "go", FunctionText: "func Add() {}"})
	var apiErr *openai.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 401, apiErr.StatusCode)
	assert.NotErrorIs(t, err, ErrMalformedResponse)
	assert.Len(t, cs.requests, 1)
	assert.Empty(t, *slept)
}

func TestOpenAI_MalformedResponses(t *testing.T) {
	noChoices := `{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-4o-mini","choices":[]}`
	refusal := `{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-4o-mini",` +
		`"choices":[{"index":0,"message":{"role":"assistant","content":null,"refusal":"I can't."},"finish_reason":"stop","logprobs":null}]}`

	tests := []struct {
		name string
		body string
	}{
		{name: "no choices", body: noChoices},
		{name: "refusal", body: refusal},
		{name: "truncated", body: completion("", "length")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, _, _ := newTestOpenAI(t, chatReply{status: 200, body: tt.body})
			_, err := o.Generate(context.Background(), Request{Language: "python", FunctionText: "def f(): pass"})
			assert.ErrorIs(t, err, ErrMalformedResponse)
		})
	}
}

func TestOpenAI_CanceledWhileWaiting(t *testing.T) {
	o, _, _ := newTestOpenAI(t, chatReply{status: 500, body: `{"error":{"message":"boom"}}`})
	ctx, cancel := context.WithCancel(context.Background())
	o.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := o.Generate(ctx, Request{Language: "go", FunctionText: "func Add() {}"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSleepCtx(t *testing.T) {
	require.NoError(t, sleepCtx(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepCtx(ctx, time.Hour), context.Canceled)
}
