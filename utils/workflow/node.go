package workflow

import (
	"errors"
	"fmt"
	"strings"
)

// NodeType is the closed set of step kinds.
type NodeType string

const (
	TypeFunc   NodeType = "func"
	TypePrompt NodeType = "prompt"
	TypePrint  NodeType = "print"
)

// Known reports whether t is one of the supported node types.
func (t NodeType) Known() bool {
	return t == TypeFunc || t == TypePrompt || t == TypePrint
}

// Format is the expected shape of a prompt response.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Values used when neither the node, the workflow nor the caller sets them.
const (
	BaselineModel        = "gpt-4o-mini"
	BaselineTemperature  = 0.7
	BaselineSystemPrompt = "You are a helpful assistant."
	DefaultLang          = "go"
)

// ErrNoNodeList is matched by a StructureError.
var ErrNoNodeList = errors.New("workflow has no node list")

// StructureError is returned when a script has no recognizable node list.
type StructureError struct {
	Reason string
}

func (e *StructureError) Error() string {
	return fmt.Sprintf("invalid workflow script: %s", e.Reason)
}

func (e *StructureError) Is(target error) bool {
	return target == ErrNoNodeList
}

// Node is one step of a workflow. Unset fields keep their zero value;
// defaults are applied by the accessor methods.
type Node struct {
	ID   string   `json:"id"`
	Type NodeType `json:"type"`

	// func
	Expr string `json:"expr,omitempty"`
	Lang string `json:"lang,omitempty"`

	// prompt
	Prompt      string   `json:"prompt,omitempty"`
	System      string   `json:"system,omitempty"`
	Model       string   `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Expect      string   `json:"expect,omitempty"`
	Output      string   `json:"output,omitempty"`
	AppendChunk bool     `json:"append_chunk,omitempty"`

	// print
	Message string `json:"message,omitempty"`

	// Extra holds keys the parser did not recognize.
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// OutputKey is the context key a prompt node writes.
func (n Node) OutputKey() string {
	if n.Output != "" {
		return n.Output
	}
	return n.ID
}

// Format returns the expected response format, text unless json was asked for.
func (n Node) Format() Format {
	if strings.EqualFold(strings.TrimSpace(n.Expect), string(FormatJSON)) {
		return FormatJSON
	}
	return FormatText
}

// Language returns the evaluator language for a func node.
func (n Node) Language() string {
	if n.Lang == "" {
		return DefaultLang
	}
	return strings.ToLower(n.Lang)
}

// Defaults are workflow-level fallbacks for prompt nodes.
type Defaults struct {
	Model       string
	Temperature *float64
	MaxTokens   int
	System      string
}

// IsZero reports whether no default is set.
func (d Defaults) IsZero() bool {
	return d.Model == "" && d.Temperature == nil && d.MaxTokens == 0 && d.System == ""
}

// PromptSettings are the resolved model parameters for one prompt node.
type PromptSettings struct {
	Model       string
	Temperature float64
	MaxTokens   int
	System      string
}

// Resolve applies node values, then each defaults layer in order, then the
// baseline values.
func Resolve(n Node, layers ...Defaults) PromptSettings {
	s := PromptSettings{
		Model:     n.Model,
		MaxTokens: n.MaxTokens,
		System:    n.System,
	}
	temp := n.Temperature
	for _, d := range layers {
		if s.Model == "" {
			s.Model = d.Model
		}
		if temp == nil {
			temp = d.Temperature
		}
		if s.MaxTokens == 0 {
			s.MaxTokens = d.MaxTokens
		}
		if s.System == "" {
			s.System = d.System
		}
	}
	if s.Model == "" {
		s.Model = BaselineModel
	}
	s.Temperature = BaselineTemperature
	if temp != nil {
		s.Temperature = *temp
	}
	if strings.TrimSpace(s.System) == "" {
		s.System = BaselineSystemPrompt
	}
	return s
}

// Warning is a non-fatal authoring problem found while parsing.
type Warning struct {
	Line    int
	NodeID  string
	Message string
}

func (w Warning) String() string {
	var b strings.Builder
	if w.Line > 0 {
		fmt.Fprintf(&b, "line %d: ", w.Line)
	}
	if w.NodeID != "" {
		fmt.Fprintf(&b, "node %s: ", w.NodeID)
	}
	b.WriteString(w.Message)
	return b.String()
}

// Workflow is a parsed script.
type Workflow struct {
	Name     string
	Defaults Defaults
	Nodes    []Node
	Warnings []Warning
}

// Validate reports authoring problems that only show up at run time, such
// as prompt nodes without a prompt. It never fails the workflow.
func (w *Workflow) Validate() []Warning {
	var out []Warning
	for _, n := range w.Nodes {
		switch n.Type {
		case TypeFunc:
			if strings.TrimSpace(n.Expr) == "" {
				out = append(out, Warning{NodeID: n.ID, Message: "func node has no expr"})
			}
		case TypePrompt:
			if strings.TrimSpace(n.Prompt) == "" {
				out = append(out, Warning{NodeID: n.ID, Message: "prompt node has no prompt"})
			}
		case TypePrint:
			if n.Message == "" {
				out = append(out, Warning{NodeID: n.ID, Message: "print node has no message"})
			}
		case "":
			out = append(out, Warning{NodeID: n.ID, Message: "node has no type"})
		default:
			out = append(out, Warning{NodeID: n.ID, Message: fmt.Sprintf("unknown node type %q", n.Type)})
		}
	}
	return out
}
