package cli

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codalotl/docstringify/internal/generate"
)

const helloPy = `def hello_world():
    print("Hello, world!")


def square(x):
    return x * x
`

const mockConfig = `backend: mock
python:
  formatter: none
mock:
  responses:
    hello_world: Prints a greeting.
    square: Returns the square of x.
`

// isolate points HOME at an empty directory and clears the environment variables Run reads.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, k := range []string{"OPENAI_API_KEY", "DOCSTRINGIFY_MODEL", "DOCSTRINGIFY_BACKEND", logFileEnv, "NO_COLOR"} {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, path string, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func run(t *testing.T, args ...string) (int, string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	code, err := Run(append([]string{"docstringify"}, args...), &RunOptions{
		In:  bytes.NewReader(nil),
		Out: &out,
		Err: &errOut,
	})
	return code, out.String(), errOut.String(), err
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestRun_Help(t *testing.T) {
	isolate(t)
	code, out, _, err := run(t, "--help")
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "docstringify")
	assert.Contains(t, out, "--dry-run")
	assert.Contains(t, out, "--exclude")
}

func TestRun_Version(t *testing.T) {
	isolate(t)
	code, out, _, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "docstringify version "+Version+"\n", out)
}

func TestRun_UsageErrors(t *testing.T) {
	isolate(t)

	code, _, stderr, err := run(t)
	assert.Error(t, err)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "--help")

	code, _, _, err = run(t, "--no-such-flag", ".")
	assert.Error(t, err)
	assert.Equal(t, 2, code)
}

func TestRun_MockBackend(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	cfgPath := writeFile(t, filepath.Join(dir, "docstringify.yaml"), mockConfig)
	path := writeFile(t, filepath.Join(dir, "hello.py"), helloPy)

	code, out, stderr, err := run(t, "--config", cfgPath, path)
	require.NoError(t, err, stderr)
	assert.Equal(t, 0, code)
	assert.Equal(t, "Generated 2 docstrings in "+path+".\n", out)

	got := readFile(t, path)
	assert.Contains(t, got, "def hello_world():\n    \"\"\"Prints a greeting.\"\"\"\n    print(")
	assert.Contains(t, got, "def square(x):\n    \"\"\"Returns the square of x.\"\"\"\n    return x * x\n")
}

func TestRun_BackendFromEnvAndVerboseTotals(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	cfgPath := writeFile(t, filepath.Join(dir, "cfg.yaml"), "python:\n  formatter: none\n")
	src := writeFile(t, filepath.Join(dir, "src", "a.py"), "def f():\n    pass\n")
	t.Setenv("DOCSTRINGIFY_BACKEND", "mock")

	// No mock responses: every function is declined.
	code, out, _, err := run(t, "--config", cfgPath, "-v", filepath.Join(dir, "src"))
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "No docstrings generated in "+src+".\n")
	assert.Contains(t, out, "Totals: dirs=1 files=1 inserted=0 skipped=1 failed=0\n")
	assert.Equal(t, "def f():\n    pass\n", readFile(t, src))
}

func TestRun_DryRun(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	cfgPath := writeFile(t, filepath.Join(dir, "cfg.yaml"), mockConfig)
	path := writeFile(t, filepath.Join(dir, "hello.py"), helloPy)

	code, out, _, err := run(t, "--config", cfgPath, "--dry-run", dir)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "--- "+path+"\n")
	assert.Contains(t, out, "+    \"\"\"Prints a greeting.\"\"\"\n")
	assert.Contains(t, out, "Would generate 2 docstrings in "+path+".\n")
	assert.Equal(t, helloPy, readFile(t, path))
}

func TestRun_ExcludeAndGo(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	cfgPath := writeFile(t, filepath.Join(dir, "cfg.yaml"), `backend: mock
go:
  formatter: gofmt
mock:
  responses:
    Add: Add returns a+b.
`)
	const src = "package calc\n\nfunc Add(a, b int) int {\n\treturn a + b\n}\n"
	kept := writeFile(t, filepath.Join(dir, "calc", "calc.go"), src)
	skipped := writeFile(t, filepath.Join(dir, "gen", "calc.go"), src)

	code, out, _, err := run(t, "--config", cfgPath, "--lang", "go", "--exclude", "gen", dir)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "Generated 1 docstring in "+kept+".\n", out)
	assert.Equal(t, "package calc\n\n// Add returns a+b.\nfunc Add(a, b int) int {\n\treturn a + b\n}\n", readFile(t, kept))
	assert.Equal(t, src, readFile(t, skipped))
}

func TestRun_StartupMisconfiguration(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	noFormat := writeFile(t, filepath.Join(dir, "cfg.yaml"), "python:\n  formatter: none\n")
	path := writeFile(t, filepath.Join(dir, "hello.py"), helloPy)

	code, _, stderr, err := run(t, "--config", noFormat, path)
	assert.Equal(t, 2, code)
	assert.ErrorIs(t, err, generate.ErrMissingCredential)
	assert.Contains(t, stderr, "missing credential")

	code, _, _, err = run(t, "--config", noFormat, "--backend", "nope", path)
	assert.Equal(t, 2, code)
	assert.ErrorIs(t, err, errInvalidConfig)

	code, _, _, err = run(t, "--config", noFormat, "--backend", "mock", "--lang", "rust", path)
	assert.Equal(t, 2, code)
	assert.ErrorIs(t, err, errInvalidConfig)

	missingBlack := writeFile(t, filepath.Join(dir, "black.yaml"), "backend: mock\npython:\n  black_path: /no/such/black\n")
	code, _, stderr, _ = run(t, "--config", missingBlack, path)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "black not available")

	code, _, _, _ = run(t, "--config", filepath.Join(dir, "missing.yaml"), path)
	assert.Equal(t, 2, code)

	assert.Equal(t, helloPy, readFile(t, path))
}

func TestRun_MissingRoot(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	cfgPath := writeFile(t, filepath.Join(dir, "cfg.yaml"), mockConfig)

	code, _, stderr, err := run(t, "--config", cfgPath, filepath.Join(dir, "nope"))
	assert.Error(t, err)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "cannot read path")
}

func TestRun_GenerationFailureExitsOne(t *testing.T) {
	isolate(t)
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error","code":"invalid_api_key"}}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	cfgPath := writeFile(t, filepath.Join(dir, "cfg.yaml"), "python:\n  formatter: none\n")
	path := writeFile(t, filepath.Join(dir, "hello.py"), helloPy)

	code, out, stderr, err := run(t, "--config", cfgPath, "--openai-api-key", "sk-test", "--base-url", srv.URL+"/v1/", path)
	assert.Error(t, err)
	assert.Equal(t, 1, code)
	assert.Empty(t, out)
	assert.Contains(t, stderr, "cannot docstringify file")
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, helloPy, readFile(t, path))
}

func TestRun_ConfigCommandRedactsSecrets(t *testing.T) {
	isolate(t)
	t.Setenv("OPENAI_API_KEY", "sk-very-secret")

	code, out, _, err := run(t, "config", "--model", "gpt-4.1-mini")
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "api_key: "+redactedSecret)
	assert.NotContains(t, out, "sk-very-secret")
	assert.Contains(t, out, "model: gpt-4.1-mini")
	assert.Contains(t, out, "backend: openai")
	assert.Contains(t, out, "max_input_tokens: 8000")
	assert.Contains(t, out, "# from environment\n  api_key: ")
	assert.Contains(t, out, "# from command line\n  model: gpt-4.1-mini")
}

func TestRun_ConfigCommandRejectsUnknownKeys(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	cfgPath := writeFile(t, filepath.Join(dir, "cfg.yaml"), "openai:\n  modle: gpt-4.1\n")

	code, out, stderr, err := run(t, "--config", cfgPath, "config")
	assert.Error(t, err)
	assert.Equal(t, 2, code)
	assert.Empty(t, out)
	assert.Contains(t, stderr, `unknown key "openai.modle"`)
}

func TestRun_LogFile(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	logPath := filepath.Join(dir, "run.log")
	t.Setenv(logFileEnv, logPath)
	cfgPath := writeFile(t, filepath.Join(dir, "cfg.yaml"), mockConfig)
	path := writeFile(t, filepath.Join(dir, "src", "hello.py"), helloPy)

	code, _, stderr, err := run(t, "--config", cfgPath, "-v", path)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Empty(t, stderr)

	logs := readFile(t, logPath)
	assert.Contains(t, logs, "msg=starting")
	assert.Contains(t, logs, "msg=\"wrote file\"")
	assert.Regexp(t, `run=[0-9a-f]{8}-[0-9a-f]{4}-`, logs)
}
