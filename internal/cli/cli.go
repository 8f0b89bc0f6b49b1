package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/alecthomas/kong"
)

// Version is the docstringify version. It is a var (not a const) so build tooling can override it (for example via `-ldflags "-X .../internal/cli.Version=1.2.3"`).
var Version = "0.3.0"

// In/Out/Err override standard I/O. If nil, defaults are used. Overriding is useful for testing.
type RunOptions struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// Run runs the CLI with args (typically you'd use os.Args).
//
// It returns a recommended exit code (0, 1, or 2) and an error, if any:
//   - 0 -> err == nil
//   - 1 -> err != nil, but the structure of args is sound (a file failed, the root path is unreadable, etc).
//   - 2 -> err != nil, args parse error, misuse of flags, or a configuration that cannot start (missing API key, unknown backend, missing formatter).
//
// Note that in cases of errors, Run has already displayed an error message to opts.Err || Stderr. Callers may use os.Exit with the exit code.
func Run(args []string, opts *RunOptions) (code int, err error) {
	argv := args
	if len(argv) > 0 {
		argv = argv[1:]
	}

	env := &runEnv{in: os.Stdin, out: os.Stdout, errW: os.Stderr}
	if opts != nil {
		if opts.In != nil {
			env.in = opts.In
		}
		if opts.Out != nil {
			env.out = opts.Out
		}
		if opts.Err != nil {
			env.errW = opts.Err
		}
	}

	// kong reports --help and fatal parse errors through its exit hook; turn that into a return.
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		exit, ok := r.(kongExit)
		if !ok {
			panic(r)
		}
		code = int(exit)
		if code != 0 {
			err = errors.New("usage error")
		}
	}()

	grammar := &cliGrammar{}
	parser, err := kong.New(grammar,
		kong.Name("docstringify"),
		kong.Description("Generate missing docstrings and doc comments with an LLM and insert them into source files."),
		kong.Writers(env.out, env.errW),
		kong.Exit(func(code int) { panic(kongExit(code)) }),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)
	if err != nil {
		// The grammar is static; an error here is a programming error.
		fmt.Fprintf(env.errW, "docstringify: %v\n", err)
		return 2, err
	}

	kctx, err := parser.Parse(argv)
	if err != nil {
		fmt.Fprintf(env.errW, "docstringify: %v\n", err)
		fmt.Fprintln(env.errW, "Run 'docstringify --help' for usage.")
		return 2, err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	env.ctx = ctx
	env.flags = grammar

	if err := kctx.Run(env); err != nil {
		fmt.Fprintf(env.errW, "docstringify: %v\n", err)
		var ee *exitError
		if errors.As(err, &ee) {
			return ee.code, err
		}
		return 1, err
	}
	return 0, nil
}

type kongExit int

// runEnv is bound into every command's Run method.
type runEnv struct {
	ctx   context.Context
	in    io.Reader
	out   io.Writer
	errW  io.Writer
	flags *cliGrammar
}

// exitError carries a non-default exit code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// usageErr marks err as a startup misconfiguration (exit code 2).
func usageErr(err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: 2, err: err}
}
