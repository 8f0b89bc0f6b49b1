// Package generate obtains a doc comment for one function from a text-generation service. A Generator is handed the verbatim text of a function and returns the doc
// comment to insert, or "" when the function is already documented or the service declines.
//
// Backends are looked up by name in Backends ("openai", "mock"). WithTokenBudget wraps any Generator so that oversized functions are declined without a request.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

var (
	// ErrMalformedResponse is returned when the service answers, but the answer cannot be used as a doc comment (ex: no choices, a refusal, or a truncated empty
	// message). Callers treat it as "".
	ErrMalformedResponse = errors.New("malformed generation response")

	// ErrMissingCredential is returned by a backend constructor that needs credentials it was not given.
	ErrMissingCredential = errors.New("missing credential")

	// ErrUnknownBackend is returned by New for a name not in Backends.
	ErrUnknownBackend = errors.New("unknown generation backend")
)

// Request is one function to document.
type Request struct {
	Language     string // Language name as reported by langproc.Processor.Name (ex: "python").
	FunctionText string // Verbatim function source.
}

// Generator returns a doc comment for req.FunctionText, or "" if none should be inserted.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GeneratorFunc adapts a function to a Generator.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

const (
	DefaultModel           = "gpt-4o-mini"
	DefaultTemperature     = 1.0
	DefaultMaxOutputTokens = 500
	DefaultMaxRetries      = 3
)

// Config configures a backend. Backends ignore fields they do not use.
type Config struct {
	APIKey          string  // openai: required.
	Model           string  // openai: "" means DefaultModel.
	BaseURL         string  // openai: "" means the provider default.
	Temperature     float64 // openai: sent as-is.
	MaxOutputTokens int     // openai: <= 0 means DefaultMaxOutputTokens.
	MaxRetries      int     // openai: retries of retryable failures (429, 5xx, network). < 0 means none.

	// DocStyles maps a language name to the doc comment style named in the system prompt. Missing languages fall back to DefaultDocStyles.
	DocStyles map[string]string

	// MockResponses is the mock backend's table: the value of the first key contained in the function text is the reply.
	MockResponses map[string]string

	Logger *slog.Logger
}

// Factory builds a backend from cfg.
type Factory func(cfg Config) (Generator, error)

// Backends maps backend names to constructors.
var Backends = map[string]Factory{
	"openai": func(cfg Config) (Generator, error) { return NewOpenAI(cfg) },
	"mock":   func(cfg Config) (Generator, error) { return NewMock(cfg.MockResponses), nil },
}

// BackendNames returns the names in Backends, sorted.
func BackendNames() []string {
	names := make([]string, 0, len(Backends))
	for name := range Backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the backend registered under name.
func New(name string, cfg Config) (Generator, error) {
	factory, ok := Backends[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrUnknownBackend, name, strings.Join(BackendNames(), ", "))
	}
	return factory(cfg)
}
