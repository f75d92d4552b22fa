package workflow

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"
)

func sampleWorkflow() *Workflow {
	return &Workflow{
		Name: "review: batch",
		Defaults: Defaults{
			Model:       "claude-3-5-haiku-latest",
			Temperature: fptr(0.3),
			MaxTokens:   1024,
			System:      "You review things.\nBe brief.",
		},
		Nodes: []Node{
			{
				ID:   "prep",
				Type: TypeFunc,
				Lang: "go",
				Expr: "n := len(chunk)\nif n == 0 {\n\treturn map[string]interface{}{\"skip\": true}\n}\n\nreturn map[string]interface{}{\"size\": n}",
			},
			{
				ID:   "gate",
				Type: TypeFunc,
				Lang: "expr",
				Expr: `size > 10 ? {"long": true} : {"skip": true}`,
			},
			{
				ID:          "ask",
				Type:        TypePrompt,
				Model:       "gpt-4o",
				Temperature: fptr(0),
				MaxTokens:   300,
				System:      "  leading spaces matter",
				Prompt:      "Rate this: {{ chunk }}\n  - be fair\nScore: 1-10 # inclusive",
				Expect:      "json",
				Output:      "rating",
				AppendChunk: true,
			},
			{
				ID:      "007",
				Type:    TypePrint,
				Message: "true",
			},
			{
				ID:      "edge",
				Type:    TypePrint,
				Message: "ends with newline\n",
			},
			{
				ID:      "quotes",
				Type:    TypePrint,
				Message: `she said "hi" \ and 'bye'`,
			},
			{
				ID:      "blanky",
				Type:    TypePrint,
				Message: "a\n   \nb",
			},
			{
				ID:   "custom",
				Type: NodeType("webhook"),
				Extra: map[string]interface{}{
					"url":     "https://example.com/hook",
					"retries": float64(3),
					"enabled": false,
					"body":    "line1\nline2",
					"none":    nil,
				},
			},
		},
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	wf := sampleWorkflow()
	text := Serialize(wf)

	parsed, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse(Serialize) error: %v\n%s", err, text)
	}
	if diff := cmp.Diff(wf.Nodes, parsed.Nodes); diff != "" {
		t.Errorf("nodes mismatch (-want +got):\n%s\n%s", diff, text)
	}
	if diff := cmp.Diff(wf.Defaults, parsed.Defaults); diff != "" {
		t.Errorf("defaults mismatch (-want +got):\n%s", diff)
	}
	if parsed.Name != wf.Name {
		t.Errorf("Name = %q, want %q", parsed.Name, wf.Name)
	}

	// serializing again is stable
	if again := Serialize(parsed); again != text {
		t.Errorf("second serialization differs:\n%s\n---\n%s", text, again)
	}
}

func TestSerializeIsValidYAML(t *testing.T) {
	text := Serialize(sampleWorkflow())

	var doc struct {
		Name  string                   `yaml:"name"`
		Nodes []map[string]interface{} `yaml:"nodes"`
	}
	if err := yaml.Unmarshal([]byte(text), &doc); err != nil {
		t.Fatalf("serialized script is not valid YAML: %v\n%s", err, text)
	}
	if doc.Name != "review: batch" {
		t.Errorf("yaml name = %q", doc.Name)
	}
	if len(doc.Nodes) != 8 {
		t.Fatalf("yaml saw %d nodes", len(doc.Nodes))
	}
	if doc.Nodes[0]["expr"] != sampleWorkflow().Nodes[0].Expr {
		t.Errorf("yaml expr = %q", doc.Nodes[0]["expr"])
	}
	if doc.Nodes[3]["id"] != "007" || doc.Nodes[3]["message"] != "true" {
		t.Errorf("yaml scalars = %v", doc.Nodes[3])
	}
}

func TestSerializeLayout(t *testing.T) {
	text := SerializeNodes([]Node{{ID: "a", Type: TypePrint, Message: "hello {{ name }}"}})
	want := "nodes:\n  - id: a\n    type: print\n    message: hello {{ name }}\n"
	if text != want {
		t.Errorf("SerializeNodes = %q, want %q", text, want)
	}
	if got := SerializeNodes(nil); got != "nodes: []\n" {
		t.Errorf("empty = %q", got)
	}
}

func TestQuoteIfNeeded(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain text", "plain text"},
		{"", `""`},
		{"42", `"42"`},
		{"null", `"null"`},
		{"yes", `"yes"`},
		{"key: value", `"key: value"`},
		{"- item", `"- item"`},
		{" padded", `" padded"`},
		{"tab\there", `"tab\there"`},
		{"{{ x }}", `"{{ x }}"`},
		{"a#b", "a#b"},
	}
	for _, tt := range tests {
		if got := quoteIfNeeded(tt.in); got != tt.want {
			t.Errorf("quoteIfNeeded(%q) = %s, want %s", tt.in, got, tt.want)
		}
		if got := quoteIfNeeded(tt.in); strings.HasPrefix(got, `"`) {
			if back, ok := unquoteDouble(got); !ok || back != tt.in {
				t.Errorf("unquoteDouble(%s) = %q, %v", got, back, ok)
			}
		}
	}
}
