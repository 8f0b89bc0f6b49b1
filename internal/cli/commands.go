package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/codalotl/docstringify/internal/docstringer"
	"github.com/codalotl/docstringify/internal/health"
)

// cliGrammar is the kong grammar. Flags declared here apply to every command.
type cliGrammar struct {
	ConfigFile     string   `name:"config" help:"Read configuration from FILE (after ~/.docstringify/config.yaml and the nearest .docstringify/config.yaml)." placeholder:"FILE"`
	Backend        string   `help:"Generation backend: openai or mock."`
	OpenAIAPIKey   string   `name:"openai-api-key" help:"OpenAI API key (default: $OPENAI_API_KEY)."`
	Model          string   `help:"Model name for the openai backend."`
	BaseURL        string   `name:"base-url" help:"Base URL of an OpenAI-compatible API."`
	Lang           []string `name:"lang" help:"Enabled languages, comma separated (python, go)." sep:","`
	Exclude        []string `help:"Skip files and directories whose base name matches GLOB. Repeatable." placeholder:"GLOB" sep:"none"`
	DryRun         bool     `name:"dry-run" help:"Print a diff of each change instead of writing files."`
	FailFast       bool     `name:"fail-fast" help:"Stop at the first file that fails."`
	Verbose        int      `short:"v" type:"counter" help:"Increase verbosity (-v, -vv)."`
	MaxInputTokens int      `name:"max-input-tokens" help:"Skip functions whose prompt exceeds this many tokens."`

	Run       RunCmd     `cmd:"" default:"withargs" help:"Insert missing docstrings into PATH (files or directories). This is the default command."`
	ConfigCmd ConfigCmd  `cmd:"" name:"config" help:"Print the effective configuration as YAML, with secrets redacted."`
	Version   VersionCmd `cmd:"" help:"Print the version."`
}

// RunCmd inserts docstrings into each path in turn.
type RunCmd struct {
	Paths []string `arg:"" name:"path" help:"Files or directories to process."`
}

func (c *RunCmd) Run(env *runEnv) error {
	cfg, err := resolveConfig(env.flags)
	if err != nil {
		return usageErr(err)
	}

	logger, closeLog := newLogger(env.flags.Verbose, env.errW)
	defer closeLog()

	procs, err := buildProcessors(cfg)
	if err != nil {
		return usageErr(health.LogErr(logger, err))
	}
	gen, err := buildGenerator(cfg, logger)
	if err != nil {
		return usageErr(health.LogErr(logger, err))
	}

	w := docstringer.New(gen, procs, docstringer.Options{
		Out:       env.out,
		Verbosity: env.flags.Verbose,
		DryRun:    env.flags.DryRun,
		FailFast:  env.flags.FailFast,
		Exclude:   cfg.Exclude,
		Ctx:       health.NewCtx(logger),
	})
	logger.Info("starting", "version", Version, "backend", cfg.Backend, "languages", procs.Names(), "paths", c.Paths, "dry_run", env.flags.DryRun)

	var total docstringer.Stats
	var failures []error
	for _, path := range c.Paths {
		stats, err := w.Process(env.ctx, path)
		total.Add(stats)
		if err != nil {
			failures = append(failures, err)
			if env.flags.FailFast || env.ctx.Err() != nil {
				break
			}
		}
	}

	if env.flags.Verbose > 0 {
		fmt.Fprintf(env.out, "Totals: dirs=%d files=%d inserted=%d skipped=%d failed=%d\n", total.Dirs, total.Files, total.Insertions, total.Skipped, total.Failed)
	}
	return errors.Join(failures...)
}

// ConfigCmd prints the effective configuration.
type ConfigCmd struct{}

func (c *ConfigCmd) Run(env *runEnv) error {
	cfg, err := resolveConfig(env.flags)
	if err != nil {
		return usageErr(err)
	}
	return writeConfigYAML(env.out, cfg.redacted())
}

// VersionCmd prints the version.
type VersionCmd struct{}

func (c *VersionCmd) Run(env *runEnv) error {
	_, err := fmt.Fprintf(env.out, "docstringify version %s\n", Version)
	return err
}

// resolveConfig runs the whole configuration cascade and validates the result.
func resolveConfig(flags *cliGrammar) (Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	cfg, err := loadConfig(wd, flags)
	if err != nil {
		return Config{}, err
	}
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
