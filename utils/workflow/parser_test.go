package workflow

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func fptr(f float64) *float64 { return &f }

func hasWarning(ws []Warning, substr string) bool {
	for _, w := range ws {
		if strings.Contains(w.String(), substr) {
			return true
		}
	}
	return false
}

func TestParseBasicWorkflow(t *testing.T) {
	script := `# classify rows
name: triage
defaults:
  model: gpt-4o
  temperature: 0.2

nodes:
  - id: prep
    type: func
    expr: |
      if row["status"] == "closed" {
        return map[string]interface{}{"skip": true}
      }

      return map[string]interface{}{"upper": strings.ToUpper(chunk)}
  - id: ask
    type: prompt
    prompt: "Classify: {{ upper }}"
    expect: json
    outputKey: label
    maxTokens: 256
    appendChunk: true
  - id: show
    type: print
    message: Label is {{ label.kind }} # not a comment
`
	wf, err := Parse(script)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}

	want := []Node{
		{
			ID:   "prep",
			Type: TypeFunc,
			Expr: "if row[\"status\"] == \"closed\" {\n  return map[string]interface{}{\"skip\": true}\n}\n\nreturn map[string]interface{}{\"upper\": strings.ToUpper(chunk)}",
		},
		{
			ID:          "ask",
			Type:        TypePrompt,
			Prompt:      "Classify: {{ upper }}",
			Expect:      "json",
			Output:      "label",
			MaxTokens:   256,
			AppendChunk: true,
		},
		{
			ID:      "show",
			Type:    TypePrint,
			Message: "Label is {{ label.kind }} # not a comment",
		},
	}
	if diff := cmp.Diff(want, wf.Nodes); diff != "" {
		t.Errorf("nodes mismatch (-want +got):\n%s", diff)
	}
	if wf.Name != "triage" {
		t.Errorf("Name = %q", wf.Name)
	}
	if diff := cmp.Diff(Defaults{Model: "gpt-4o", Temperature: fptr(0.2)}, wf.Defaults); diff != "" {
		t.Errorf("defaults mismatch:\n%s", diff)
	}
	if len(wf.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", wf.Warnings)
	}
}

func TestParseScalarCoercion(t *testing.T) {
	script := `nodes:
  - id: n
    type: prompt
    prompt: 'it''s {{ x }}'
    temperature: 0
    flag: true
    nothing: null
    tilde: ~
    count: 12.5
    word: hello
    quoted: "42"
    escaped: "a\tb\n\"c\""
`
	wf, err := Parse(script)
	if err != nil {
		t.Fatal(err)
	}
	n := wf.Nodes[0]
	if n.Prompt != "it's {{ x }}" {
		t.Errorf("Prompt = %q", n.Prompt)
	}
	if n.Temperature == nil || *n.Temperature != 0 {
		t.Errorf("Temperature = %v, want 0", n.Temperature)
	}
	wantExtra := map[string]interface{}{
		"flag":    true,
		"nothing": nil,
		"tilde":   nil,
		"count":   12.5,
		"word":    "hello",
		"quoted":  "42",
		"escaped": "a\tb\n\"c\"",
	}
	if diff := cmp.Diff(wantExtra, n.Extra); diff != "" {
		t.Errorf("extra mismatch:\n%s", diff)
	}
	if !hasWarning(wf.Warnings, `unknown field "flag"`) {
		t.Errorf("expected unknown field warning, got %v", wf.Warnings)
	}
}

func TestParseTabsAndCRLF(t *testing.T) {
	script := "nodes:\r\n\t- id: a\r\n\t  type: print\r\n\t  message: |\r\n\t\t  line one\r\n\r\n\t\t  line two\r\n"
	wf, err := Parse(script)
	if err != nil {
		t.Fatal(err)
	}
	if len(wf.Nodes) != 1 {
		t.Fatalf("got %d nodes", len(wf.Nodes))
	}
	if wf.Nodes[0].Message != "line one\n\nline two" {
		t.Errorf("Message = %q", wf.Nodes[0].Message)
	}
}

func TestParseBlockScalarEdges(t *testing.T) {
	script := `nodes:
- id: a
  type: print
  message: |
      indented more
    base

- id: b
  type: print
  message: |-
    kept
`
	wf, err := Parse(script)
	if err != nil {
		t.Fatal(err)
	}
	if len(wf.Nodes) != 2 {
		t.Fatalf("got %d nodes: %+v", len(wf.Nodes), wf.Nodes)
	}
	if wf.Nodes[0].Message != "  indented more\nbase" {
		t.Errorf("Message = %q", wf.Nodes[0].Message)
	}
	if wf.Nodes[1].Message != "kept" {
		t.Errorf("Message = %q", wf.Nodes[1].Message)
	}
}

func TestParseBareList(t *testing.T) {
	wf, err := Parse("- id: only\n  type: print\n  message: hi\n")
	if err != nil {
		t.Fatal(err)
	}
	if len(wf.Nodes) != 1 || wf.Nodes[0].ID != "only" {
		t.Errorf("nodes = %+v", wf.Nodes)
	}
}

func TestParseStructureError(t *testing.T) {
	tests := []string{
		"",
		"# just a comment\n",
		"name: nothing here\n",
		"just some prose",
	}
	for _, script := range tests {
		_, err := Parse(script)
		if !errors.Is(err, ErrNoNodeList) {
			t.Errorf("Parse(%q) error = %v, want ErrNoNodeList", script, err)
		}
		var se *StructureError
		if !errors.As(err, &se) {
			t.Errorf("Parse(%q) error is not a StructureError", script)
		}
	}
}

func TestParseEmptyNodeList(t *testing.T) {
	wf, err := Parse("nodes: []\n")
	if err != nil {
		t.Fatal(err)
	}
	if len(wf.Nodes) != 0 {
		t.Errorf("nodes = %+v", wf.Nodes)
	}
	if !hasWarning(wf.Warnings, "no nodes") {
		t.Errorf("expected empty workflow warning, got %v", wf.Warnings)
	}
}

func TestParseWarningsDegradeGracefully(t *testing.T) {
	script := `nodes:
  - type: print
    message: first
  - id: dup
    type: teleport
  - id: dup
    type: prompt
    temperature: warm
    max_tokens: -3
    append_chunk: maybe
    this line is junk
  - id: f
    type: func
`
	wf, err := Parse(script)
	if err != nil {
		t.Fatal(err)
	}
	if len(wf.Nodes) != 4 {
		t.Fatalf("got %d nodes", len(wf.Nodes))
	}
	if wf.Nodes[0].ID != "node_1" {
		t.Errorf("default id = %q, want node_1", wf.Nodes[0].ID)
	}
	p := wf.Nodes[2]
	if p.Temperature != nil || p.MaxTokens != 0 || p.AppendChunk {
		t.Errorf("bad values should be ignored: %+v", p)
	}

	for _, want := range []string{
		"missing id",
		"duplicate id",
		`unknown node type "teleport"`,
		"temperature: expected a number",
		"max_tokens: expected a non-negative integer",
		"append_chunk: expected true or false",
		"expected key: value",
		"prompt node has no prompt",
		"func node has no expr",
	} {
		if !hasWarning(wf.Warnings, want) {
			t.Errorf("missing warning %q in %v", want, wf.Warnings)
		}
	}
}

func TestNodeAccessors(t *testing.T) {
	n := Node{ID: "summary"}
	if n.OutputKey() != "summary" {
		t.Errorf("OutputKey() = %q", n.OutputKey())
	}
	if n.Format() != FormatText {
		t.Errorf("Format() = %q", n.Format())
	}
	if n.Language() != "go" {
		t.Errorf("Language() = %q", n.Language())
	}

	n = Node{ID: "x", Output: "result", Expect: "JSON", Lang: "Expr"}
	if n.OutputKey() != "result" || n.Format() != FormatJSON || n.Language() != "expr" {
		t.Errorf("accessors = %q %q %q", n.OutputKey(), n.Format(), n.Language())
	}
}

func TestResolveSettings(t *testing.T) {
	got := Resolve(Node{})
	want := PromptSettings{Model: BaselineModel, Temperature: BaselineTemperature, System: BaselineSystemPrompt}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("baseline mismatch:\n%s", diff)
	}

	wfDefaults := Defaults{Model: "wf-model", MaxTokens: 100}
	cfgDefaults := Defaults{Model: "cfg-model", Temperature: fptr(0.1), System: "cfg system"}
	got = Resolve(Node{Temperature: fptr(0)}, wfDefaults, cfgDefaults)
	want = PromptSettings{Model: "wf-model", Temperature: 0, MaxTokens: 100, System: "cfg system"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("layered mismatch:\n%s", diff)
	}
}
