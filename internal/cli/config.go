package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/codalotl/docstringify/internal/generate"
	"github.com/codalotl/docstringify/internal/langproc/golang"
	"github.com/codalotl/docstringify/internal/langproc/python"
	"github.com/codalotl/docstringify/internal/q/cascade"
)

// configDirName is the directory holding config.yaml, both in $HOME and in projects.
const configDirName = ".docstringify"

const (
	defaultMaxInputTokens = 8000
	defaultBlackPath      = "black"
	redactedSecret        = "REDACTED"
)

var defaultExclude = []string{".git", ".hg", ".svn", ".venv", "venv", "__pycache__", "node_modules"}

// Config is the effective configuration of a run.
type Config struct {
	Backend        string            `yaml:"backend"`
	Languages      []string          `yaml:"languages"`
	Exclude        []string          `yaml:"exclude"`
	MaxInputTokens int               `yaml:"max_input_tokens"`
	DocStyles      map[string]string `yaml:"doc_styles,omitempty"` // language -> docstring style named in the prompt.
	OpenAI         OpenAIConfig      `yaml:"openai"`
	Python         PythonConfig      `yaml:"python"`
	Go             GoConfig          `yaml:"go"`
	Mock           MockConfig        `yaml:"mock,omitempty"`

	sources cascade.LoadReport // Where each value came from.
}

type OpenAIConfig struct {
	APIKey          string  `yaml:"api_key,omitempty"`
	Model           string  `yaml:"model"`
	BaseURL         string  `yaml:"base_url,omitempty"`
	Temperature     float64 `yaml:"temperature"`
	MaxOutputTokens int     `yaml:"max_output_tokens"`
	MaxRetries      int     `yaml:"max_retries"`
}

type PythonConfig struct {
	Formatter  string `yaml:"formatter"` // "black" or "none".
	BlackPath  string `yaml:"black_path"`
	LineLength int    `yaml:"line_length,omitempty"` // 0 uses black's default.
}

type GoConfig struct {
	Formatter string `yaml:"formatter"` // "goimports", "gofmt", or "none".
}

// MockConfig is the reply table of the mock backend: the value of the first key found in a function's text is its doc comment.
type MockConfig struct {
	Responses map[string]string `yaml:"responses,omitempty"`
}

// configDefaults is the lowest layer of the cascade.
func configDefaults() map[string]any {
	return map[string]any{
		"backend":                  "openai",
		"languages":                []string{python.Name},
		"exclude":                  slices.Clone(defaultExclude),
		"max_input_tokens":         defaultMaxInputTokens,
		"openai.model":             generate.DefaultModel,
		"openai.temperature":       float64(generate.DefaultTemperature),
		"openai.max_output_tokens": generate.DefaultMaxOutputTokens,
		"openai.max_retries":       generate.DefaultMaxRetries,
		"python.formatter":         "black",
		"python.black_path":        defaultBlackPath,
		"go.formatter":             "goimports",
	}
}

// configEnv maps config keys to the environment variables that override them.
var configEnv = map[string]string{
	"openai.api_key": "OPENAI_API_KEY",
	"openai.model":   "DOCSTRINGIFY_MODEL",
	"backend":        "DOCSTRINGIFY_BACKEND",
}

// loadConfig runs the cascade, lowest to highest precedence: defaults, ~/.docstringify/config.yaml, the nearest .docstringify/config.yaml in dir or an ancestor, --config,
// the environment, then flags. Missing implicit files are skipped; a missing --config file is an error. Unknown keys in any file are an error. --exclude patterns are
// appended to the loaded list rather than replacing it.
func loadConfig(dir string, flags *cliGrammar) (Config, error) {
	configFile := filepath.Join(configDirName, "config.yaml")
	loader := cascade.New().
		RejectUnknownKeys().
		WithDefaults(configDefaults()).
		WithYAMLFile(cascade.InUserConfigDirectory(configFile)).
		WithNearestYAMLFile(configFile, dir)
	if flags.ConfigFile != "" {
		path := cascade.ExpandPath(flags.ConfigFile)
		if _, err := os.Stat(path); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		loader = loader.WithYAMLFile(path)
	}
	loader = loader.WithEnv(configEnv).WithFlags(flagValues(flags))

	var cfg Config
	report, err := loader.StrictlyLoadWithReport(&cfg)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	cfg.sources = report

	if len(flags.Exclude) > 0 {
		cfg.Exclude = append(slices.Clone(cfg.Exclude), flags.Exclude...)
		cfg.sources.Fields["exclude"] = cascade.Providence{SourceType: cascade.SourceFlag}
	}
	return cfg, nil
}

// flagValues returns the cascade keys of every config flag given on the command line.
func flagValues(f *cliGrammar) map[string]any {
	m := map[string]any{}
	set := func(key string, v string) {
		if v != "" {
			m[key] = v
		}
	}
	set("backend", f.Backend)
	set("openai.api_key", f.OpenAIAPIKey)
	set("openai.model", f.Model)
	set("openai.base_url", f.BaseURL)

	var langs []string
	for _, l := range f.Lang {
		if l = strings.TrimSpace(l); l != "" {
			langs = append(langs, l)
		}
	}
	if len(langs) > 0 {
		m["languages"] = langs
	}
	if f.MaxInputTokens != 0 {
		m["max_input_tokens"] = f.MaxInputTokens
	}
	return m
}

var (
	knownLanguages    = []string{golang.Name, python.Name}
	knownPyFormatters = []string{"black", "none"}
	knownGoFormatters = []string{"goimports", "gofmt", "none"}
	errInvalidConfig  = errors.New("invalid configuration")
)

// validateConfig reports the first problem found in a loaded config.
func validateConfig(c Config) error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", errInvalidConfig, fmt.Sprintf(format, args...))
	}

	if _, ok := generate.Backends[c.Backend]; !ok {
		return invalid("unknown backend %q (available: %s)", c.Backend, strings.Join(generate.BackendNames(), ", "))
	}
	if len(c.Languages) == 0 {
		return invalid("no languages enabled")
	}
	for _, l := range c.Languages {
		if !slices.Contains(knownLanguages, l) {
			return invalid("unknown language %q (available: %s)", l, strings.Join(knownLanguages, ", "))
		}
	}
	for _, pattern := range c.Exclude {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return invalid("bad exclude pattern %q: %v", pattern, err)
		}
	}
	if c.MaxInputTokens <= 0 {
		return invalid("max_input_tokens must be positive, got %d", c.MaxInputTokens)
	}
	if c.OpenAI.MaxOutputTokens <= 0 {
		return invalid("openai.max_output_tokens must be positive, got %d", c.OpenAI.MaxOutputTokens)
	}
	if t := c.OpenAI.Temperature; t < 0 || t > 2 {
		return invalid("openai.temperature must be between 0 and 2, got %g", t)
	}
	if c.OpenAI.MaxRetries < 0 {
		return invalid("openai.max_retries must not be negative, got %d", c.OpenAI.MaxRetries)
	}
	if !slices.Contains(knownPyFormatters, c.Python.Formatter) {
		return invalid("unknown python.formatter %q (available: %s)", c.Python.Formatter, strings.Join(knownPyFormatters, ", "))
	}
	if c.Python.LineLength < 0 {
		return invalid("python.line_length must not be negative, got %d", c.Python.LineLength)
	}
	if !slices.Contains(knownGoFormatters, c.Go.Formatter) {
		return invalid("unknown go.formatter %q (available: %s)", c.Go.Formatter, strings.Join(knownGoFormatters, ", "))
	}
	return nil
}

// redacted returns a copy of c safe to print.
func (c Config) redacted() Config {
	if c.OpenAI.APIKey != "" {
		c.OpenAI.APIKey = redactedSecret
	}
	return c
}

// writeConfigYAML writes c as YAML. Each value that did not come from the defaults is preceded by a comment naming its source.
func writeConfigYAML(w io.Writer, c Config) error {
	var doc yaml.Node
	if err := doc.Encode(c); err != nil {
		return err
	}
	annotateSources(&doc, "", c.sources)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return err
	}
	return enc.Close()
}

func annotateSources(n *yaml.Node, prefix string, sources cascade.LoadReport) {
	if n.Kind == yaml.DocumentNode {
		for _, child := range n.Content {
			annotateSources(child, prefix, sources)
		}
		return
	}
	if n.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i], n.Content[i+1]
		path := key.Value
		if prefix != "" {
			path = prefix + "." + key.Value
		}
		if p := sources.Field(path); p.IsSet() && !p.Default() {
			key.HeadComment = "# from " + describeSource(p)
		}
		annotateSources(val, path, sources)
	}
}

func describeSource(p cascade.Providence) string {
	switch p.SourceType {
	case cascade.SourceEnv:
		return "environment"
	case cascade.SourceFlag:
		return "command line"
	}
	if p.SourceIdentifier != "" {
		return p.SourceIdentifier
	}
	return p.SourceType
}
