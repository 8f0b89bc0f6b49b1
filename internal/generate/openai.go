package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/codalotl/docstringify/internal/health"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAI generates doc comments with the Chat Completions API (or any endpoint compatible with it, via Config.BaseURL).
type OpenAI struct {
	client          openai.Client
	model           string
	temperature     float64
	maxOutputTokens int
	maxRetries      int
	styles          map[string]string

	// sleep waits between retries. Replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error

	health.Ctx
}

var _ Generator = (*OpenAI)(nil)

// NewOpenAI returns an OpenAI backend. cfg.APIKey is required; the key is never read from the environment here.
func NewOpenAI(cfg Config) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: the openai backend needs an API key (set OPENAI_API_KEY or pass --openai-api-key)", ErrMissingCredential)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	o := &OpenAI{
		client:          openai.NewClient(opts...),
		model:           cfg.Model,
		temperature:     cfg.Temperature,
		maxOutputTokens: cfg.MaxOutputTokens,
		maxRetries:      cfg.MaxRetries,
		styles:          cfg.DocStyles,
		sleep:           sleepCtx,
		Ctx:             health.NewCtx(cfg.Logger),
	}
	if o.model == "" {
		o.model = DefaultModel
	}
	if o.maxOutputTokens <= 0 {
		o.maxOutputTokens = DefaultMaxOutputTokens
	}
	if o.maxRetries < 0 {
		o.maxRetries = 0
	}
	return o, nil
}

// errRetryable marks an error as worth retrying.
var errRetryable = errors.New("retryable")

func makeRetryable(err error) error { return fmt.Errorf("%w: %w", errRetryable, err) }
func isRetryable(err error) bool    { return errors.Is(err, errRetryable) }

// retrySleepDurations' i'th index is the sleep duration for the i'th retry. Any retry after that would use the last value.
var retrySleepDurations = []time.Duration{
	10 * time.Millisecond,
	500 * time.Millisecond,
	1 * time.Second,
	2 * time.Second,
	4 * time.Second,
	10 * time.Second,
}

func retrySleep(retry int) time.Duration {
	if retry < len(retrySleepDurations) {
		return retrySleepDurations[retry]
	}
	return retrySleepDurations[len(retrySleepDurations)-1]
}

// Generate sends req as a two-message chat (system prompt, fenced function text) and returns the sanitized reply. Rate limits, server errors, and network errors
// are retried up to the configured number of times; other errors are returned as-is.
func (o *OpenAI) Generate(ctx context.Context, req Request) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(SystemPrompt(req.Language, docStyle(o.styles, req.Language))),
			openai.UserMessage(UserPrompt(req.FunctionText)),
		},
		Temperature:         openai.Float(o.temperature),
		TopP:                openai.Float(1),
		MaxCompletionTokens: openai.Int(int64(o.maxOutputTokens)),
	}

	var err error
	for attempt := 0; attempt <= o.maxRetries; attempt++ {
		if attempt > 0 {
			d := retrySleep(attempt - 1)
			o.Log("generate.retry", "attempt", attempt, "max", o.maxRetries, "sleep", d, "err", err.Error())
			if serr := o.sleep(ctx, d); serr != nil {
				return "", serr
			}
		}

		var reply string
		reply, err = o.send(ctx, params)
		if err == nil {
			return reply, nil
		}
		if !isRetryable(err) {
			break
		}
	}
	return "", err
}

func (o *OpenAI) send(ctx context.Context, params openai.ChatCompletionNewParams) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			if apiErr.StatusCode == http.StatusTooManyRequests || (apiErr.StatusCode >= 500 && apiErr.StatusCode <= 599) {
				return "", makeRetryable(err)
			}
			return "", err
		}
		var netErr net.Error
		if errors.As(err, &netErr) {
			return "", makeRetryable(err)
		}
		return "", err
	}

	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}
	choice := resp.Choices[0]
	if choice.Message.Refusal != "" {
		return "", fmt.Errorf("%w: refusal: %s", ErrMalformedResponse, choice.Message.Refusal)
	}
	if choice.Message.Content == "" && choice.FinishReason != "stop" {
		return "", fmt.Errorf("%w: empty content with finish reason %q", ErrMalformedResponse, choice.FinishReason)
	}

	o.Debug("generate.response", "model", resp.Model, "finish", choice.FinishReason,
		slog.Group("usage", "in", resp.Usage.PromptTokens, "out", resp.Usage.CompletionTokens))
	return sanitize(choice.Message.Content), nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
