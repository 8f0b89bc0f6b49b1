package generate

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

var o200k = sync.OnceValues(func() (tokenizer.Codec, error) {
	return tokenizer.Get(tokenizer.O200kBase)
})

// CountTokens returns the o200k_base token count of text. If the tokenizer is unavailable, it estimates 4 bytes per token.
func CountTokens(text string) int {
	enc, err := o200k()
	if err != nil {
		return len(text) / 4
	}
	count, err := enc.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}

// WithTokenBudget returns a Generator that declines ("" with no error, and no call to g) requests whose user prompt exceeds maxTokens. maxTokens <= 0 returns g.
func WithTokenBudget(g Generator, maxTokens int, logger *slog.Logger) Generator {
	if maxTokens <= 0 {
		return g
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return GeneratorFunc(func(ctx context.Context, req Request) (string, error) {
		if n := CountTokens(UserPrompt(req.FunctionText)); n > maxTokens {
			logger.Info("function exceeds token budget; skipping", "language", req.Language, "tokens", n, "max", maxTokens)
			return "", nil
		}
		return g.Generate(ctx, req)
	})
}
