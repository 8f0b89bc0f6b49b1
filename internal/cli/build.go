package cli

import (
	"log/slog"

	"github.com/codalotl/docstringify/internal/generate"
	"github.com/codalotl/docstringify/internal/langproc"
	"github.com/codalotl/docstringify/internal/langproc/golang"
	"github.com/codalotl/docstringify/internal/langproc/python"
)

// buildProcessors registers one processor per enabled language, with its configured formatter. A missing formatter executable is an error.
func buildProcessors(cfg Config) (*langproc.Registry, error) {
	reg := langproc.NewRegistry()
	for _, lang := range cfg.Languages {
		var proc langproc.Processor
		switch lang {
		case python.Name:
			var formatter langproc.Formatter
			if cfg.Python.Formatter == "black" {
				black, err := python.NewBlack(cfg.Python.BlackPath, cfg.Python.LineLength)
				if err != nil {
					return nil, err
				}
				formatter = black
			}
			p, err := python.New(formatter)
			if err != nil {
				return nil, err
			}
			proc = p

		case golang.Name:
			var formatter langproc.Formatter
			switch cfg.Go.Formatter {
			case "goimports":
				formatter = golang.Goimports
			case "gofmt":
				formatter = golang.Gofmt
			}
			proc = golang.New(formatter)
		}

		if proc == nil {
			continue
		}
		if err := reg.Register(proc); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// buildGenerator constructs the configured backend behind the input token budget.
func buildGenerator(cfg Config, logger *slog.Logger) (generate.Generator, error) {
	gen, err := generate.New(cfg.Backend, generate.Config{
		APIKey:          cfg.OpenAI.APIKey,
		Model:           cfg.OpenAI.Model,
		BaseURL:         cfg.OpenAI.BaseURL,
		Temperature:     cfg.OpenAI.Temperature,
		MaxOutputTokens: cfg.OpenAI.MaxOutputTokens,
		MaxRetries:      cfg.OpenAI.MaxRetries,
		DocStyles:       cfg.DocStyles,
		MockResponses:   cfg.Mock.Responses,
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}
	return generate.WithTokenBudget(gen, cfg.MaxInputTokens, logger), nil
}
