package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kris-hansen/workbench/utils/config"
	"github.com/kris-hansen/workbench/utils/models"
	"github.com/kris-hansen/workbench/utils/processor"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoCompleter answers every prompt with "re: <user message>".
type echoCompleter struct{}

func (echoCompleter) StreamCompletion(ctx context.Context, req models.CompletionRequest) (<-chan models.Event, error) {
	ch := make(chan models.Event, 2)
	ch <- models.Event{Type: models.EventDelta, Delta: "re: " + req.UserMessage()}
	ch <- models.Event{Type: models.EventDone, Usage: &models.Usage{PromptTokens: 1, CompletionTokens: 1}}
	close(ch)
	return ch, nil
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// execute runs the CLI with a fake completer and an isolated configuration.
func execute(t *testing.T, input string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("WORKBENCH_ENV", filepath.Join(t.TempDir(), "config.yaml"))
	t.Setenv("WORKBENCH_LOG_FILE", "")

	origCompleter, origStdin := newCompleter, stdin
	newCompleter = func(*config.EnvConfig) models.Completer { return echoCompleter{} }
	stdin = strings.NewReader(input)
	t.Cleanup(func() {
		newCompleter, stdin = origCompleter, origStdin
	})

	resetFlags(rootCmd)
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), errOut.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const greetWorkflow = `name: greet
nodes:
  - id: ask
    type: prompt
    prompt: "Greet {{ name }}"
    outputKey: greeting
`

const people = "name,age\nAda,30\nLin,40\n"

func TestRunCommand(t *testing.T) {
	dir := t.TempDir()
	wf := writeFile(t, dir, "greet.yaml", greetWorkflow)
	data := writeFile(t, dir, "people.csv", people)

	out, errOut, err := execute(t, "", "run", wf, data, "--mode", "table", "--title", "Greetings")
	require.NoError(t, err)
	assert.Equal(t, "# Greetings\n\nre: Greet Ada\n\nre: Greet Lin\n", out)
	assert.Contains(t, errOut, "Unit 2", "summary goes to stderr")
}

func TestRunCommandExports(t *testing.T) {
	dir := t.TempDir()
	wf := writeFile(t, dir, "greet.yaml", greetWorkflow)
	data := writeFile(t, dir, "people.csv", people)
	notes := writeFile(t, dir, "notes.md", "# Notes\n")
	csvPath := filepath.Join(dir, "out", "results.csv")
	docsDir := filepath.Join(dir, "docs")

	out, _, err := execute(t, "", "run", wf, data,
		"--mode", "table", "--format", "csv", "-o", csvPath,
		"--append-to", notes, "--out-dir", docsDir, "--quiet")
	require.NoError(t, err)
	assert.Empty(t, out)

	table, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.Equal(t, "Unit #,Original Text,Response,Status\n"+
		"1,\"{\"\"name\"\":\"\"Ada\"\",\"\"age\"\":\"\"30\"\"}\",re: Greet Ada,Completed\n"+
		"2,\"{\"\"name\"\":\"\"Lin\"\",\"\"age\"\":\"\"40\"\"}\",re: Greet Lin,Completed\n", string(table))

	appended, err := os.ReadFile(notes)
	require.NoError(t, err)
	assert.Equal(t, "# Notes\n\nre: Greet Ada\n\nre: Greet Lin\n", string(appended))

	files, err := os.ReadDir(docsDir)
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestRunCommandResponseKey(t *testing.T) {
	dir := t.TempDir()
	wf := writeFile(t, dir, "tag.yaml", `nodes:
  - id: tag
    type: func
    lang: expr
    expr: '{"tag": upper(name)}'
`)
	data := writeFile(t, dir, "people.csv", people)

	out, _, err := execute(t, "", "run", wf, data, "--mode", "table", "--response-key", "tag", "-q")
	require.NoError(t, err)
	assert.Equal(t, "ADA\n\nLIN\n", out)
}

func TestRunCommandErrors(t *testing.T) {
	dir := t.TempDir()
	wf := writeFile(t, dir, "greet.yaml", greetWorkflow)
	broken := writeFile(t, dir, "broken.yaml", "name: nothing\n")

	_, _, err := execute(t, "text", "run", filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	_, _, err = execute(t, "text", "run", broken)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid workflow script")

	_, _, err = execute(t, "text", "run", wf, "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")

	_, _, err = execute(t, "text", "run", wf, "--mode", "word-count")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk size")
}

func TestPromptCommandStdin(t *testing.T) {
	out, _, err := execute(t, "first\nsecond\n", "prompt", "Summarize", "--mode", "newline", "--format", "json", "-q")
	require.NoError(t, err)

	var res processor.RunResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Units, 2)
	assert.Equal(t, "re: Summarize\n\nfirst", res.Units[0].Response)
	assert.Equal(t, "re: Summarize\n\nsecond", res.Units[1].Response)
	assert.Equal(t, 4, res.Usage.TotalTokens)
}

func TestPromptCommandWithoutChunk(t *testing.T) {
	out, _, err := execute(t, "a\nb", "prompt", "Line {{ index }}", "--mode", "newline", "--append-chunk=false", "-q")
	require.NoError(t, err)
	assert.Equal(t, "re: Line 0\n\nre: Line 1\n", out)
}

func TestParseCommand(t *testing.T) {
	dir := t.TempDir()
	wf := writeFile(t, dir, "greet.yaml", greetWorkflow+"  - type: print\n")

	out, _, err := execute(t, "", "parse", wf)
	require.NoError(t, err)
	assert.Contains(t, out, "Workflow: greet")
	assert.Contains(t, out, "1. ask [prompt]")
	assert.Contains(t, out, "2. node_2 [print]")
	assert.Contains(t, out, "print node has no message")

	out, _, err = execute(t, "", "parse", wf, "--serialize")
	require.NoError(t, err)
	again := writeFile(t, dir, "again.yaml", out)
	out2, _, err := execute(t, "", "parse", again, "--serialize")
	require.NoError(t, err)
	assert.Equal(t, out, out2, "serialized form is stable")

	out, _, err = execute(t, "", "parse", wf, "--json")
	require.NoError(t, err)
	var parsed struct {
		Nodes []struct {
			ID string `json:"id"`
		} `json:"nodes"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	require.Len(t, parsed.Nodes, 2)
	assert.Equal(t, "ask", parsed.Nodes[0].ID)
}

func TestChunkCommand(t *testing.T) {
	out, _, err := execute(t, people, "chunk", "--mode", "table", "--row-limit", "1", "--json")
	require.NoError(t, err)

	var res struct {
		Mode  string `json:"mode"`
		Units []struct {
			Index int               `json:"index"`
			Row   map[string]string `json:"row"`
		} `json:"units"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "table", res.Mode)
	require.Len(t, res.Units, 1)
	assert.Equal(t, "Ada", res.Units[0].Row["name"])

	out, _, err = execute(t, "one two three", "chunk", "--mode", "word-count", "--size", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "2 units (mode word-count)")
	assert.Contains(t, out, "--- unit 2 ---\nthree")
}

func TestConfigureCommand(t *testing.T) {
	env := filepath.Join(t.TempDir(), "config.yaml")

	run := func(args ...string) string {
		t.Helper()
		resetFlags(rootCmd)
		t.Setenv("WORKBENCH_ENV", env)
		var out bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetErr(&out)
		rootCmd.SetArgs(args)
		require.NoError(t, rootCmd.Execute())
		return out.String()
	}

	out := run("configure", "--provider", "vllm", "--endpoint", "http://gpu:8000/v1", "--models", "my-llama")
	assert.Contains(t, out, "Configured provider vllm")

	run("configure", "--default-model", "my-llama")

	cfg, err := config.LoadEnvConfig(env)
	require.NoError(t, err)
	require.NotNil(t, cfg.Providers["vllm"])
	assert.Equal(t, []string{"my-llama"}, cfg.Providers["vllm"].Models)
	assert.Equal(t, "my-llama", cfg.Workbench.DefaultModel)

	out = run("configure", "--list")
	assert.Contains(t, out, "- vllm (api key not set)")
	assert.Contains(t, out, "endpoint: http://gpu:8000/v1")
	assert.Contains(t, out, "- model: my-llama")

	resetFlags(rootCmd)
	rootCmd.SetArgs([]string{"configure", "--provider", "nope"})
	assert.Error(t, rootCmd.Execute())
}

func TestVersionCommand(t *testing.T) {
	version = "v1.2.3"
	t.Cleanup(func() { version = "" })

	out, _, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "Workbench version: v1.2.3\n", out)
}

func TestPromptCommandInputDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.md", "alpha")
	writeFile(t, dir, "b.md", "bravo")
	writeFile(t, dir, "skip.txt", "not markdown")

	out, _, err := execute(t, "", "prompt", "File {{ name }}", "--input-dir", dir, "--ext", "md", "--append-chunk=false", "-q")
	require.NoError(t, err)
	assert.Equal(t, "re: File a.md\n\nre: File b.md\n", out)

	_, _, err = execute(t, "", "prompt", "x", "--input-dir", dir, "--mode", "newline")
	assert.Error(t, err)
}
