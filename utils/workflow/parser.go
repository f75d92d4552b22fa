package workflow

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// TabWidth is the number of spaces a tab expands to before indentation is measured.
const TabWidth = 2

var (
	pairPattern   = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_-]*)[ ]*:(?:[ ](.*))?$`)
	numberPattern = regexp.MustCompile(`^[-+]?(?:[0-9]+(?:\.[0-9]*)?|\.[0-9]+)(?:[eE][-+]?[0-9]+)?$`)
)

// fieldAliases maps accepted spellings to the canonical key.
var fieldAliases = map[string]string{
	"id":               "id",
	"type":             "type",
	"expr":             "expr",
	"code":             "expr",
	"lang":             "lang",
	"language":         "lang",
	"prompt":           "prompt",
	"template":         "prompt",
	"promptTemplate":   "prompt",
	"prompt_template":  "prompt",
	"system":           "system",
	"system_prompt":    "system",
	"systemPrompt":     "system",
	"systemTemplate":   "system",
	"system_template":  "system",
	"model":            "model",
	"temperature":      "temperature",
	"max_tokens":       "max_tokens",
	"maxTokens":        "max_tokens",
	"expect":           "expect",
	"expectedFormat":   "expect",
	"expected_format":  "expect",
	"format":           "expect",
	"output":           "output",
	"outputKey":        "output",
	"output_key":       "output",
	"append_chunk":     "append_chunk",
	"appendChunk":      "append_chunk",
	"message":          "message",
	"messageTemplate":  "message",
	"message_template": "message",
}

type line struct {
	num    int
	indent int
	text   string // without indentation or trailing spaces
	full   string // without indentation
}

func (l line) blank() bool   { return l.text == "" }
func (l line) comment() bool { return strings.HasPrefix(l.text, "#") }
func (l line) skip() bool    { return l.blank() || l.comment() }

// scalar is a parsed value together with its source spelling.
type scalar struct {
	raw    string
	value  interface{}
	quoted bool
	block  bool
}

type pair struct {
	key  string
	val  scalar
	line int
}

type parser struct {
	lines    []line
	pos      int
	warnings []Warning
}

// Parse reads a workflow script. Problems with individual nodes become
// warnings; only a script without any node list returns an error.
func Parse(text string) (*Workflow, error) {
	p := &parser{lines: splitLines(text)}
	return p.parse()
}

// ParseNodes is Parse without the workflow-level settings.
func ParseNodes(text string) ([]Node, []Warning, error) {
	wf, err := Parse(text)
	if err != nil {
		return nil, nil, err
	}
	return wf.Nodes, wf.Warnings, nil
}

func splitLines(text string) []line {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\t", strings.Repeat(" ", TabWidth))
	raw := strings.Split(text, "\n")
	out := make([]line, len(raw))
	for i, r := range raw {
		trimmed := strings.TrimLeft(r, " ")
		out[i] = line{num: i + 1, indent: len(r) - len(trimmed), text: strings.TrimRight(trimmed, " "), full: trimmed}
	}
	return out
}

func (p *parser) warn(lineNum int, nodeID, format string, args ...interface{}) {
	p.warnings = append(p.warnings, Warning{Line: lineNum, NodeID: nodeID, Message: fmt.Sprintf(format, args...)})
}

func (p *parser) parse() (*Workflow, error) {
	wf := &Workflow{}
	foundList := false

	for p.pos < len(p.lines) {
		l := p.lines[p.pos]
		if l.skip() {
			p.pos++
			continue
		}
		if l.indent > 0 {
			p.warn(l.num, "", "unexpected indentation at top level")
			p.pos++
			continue
		}

		if isListItem(l.text) {
			if foundList {
				p.warn(l.num, "", "second node list; nodes are appended")
			}
			foundList = true
			wf.Nodes = append(wf.Nodes, p.parseList(0)...)
			continue
		}

		m := pairPattern.FindStringSubmatch(l.text)
		if m == nil {
			p.warn(l.num, "", "cannot parse line %q", l.text)
			p.pos++
			continue
		}
		key, rest := m[1], strings.TrimSpace(m[2])
		p.pos++

		switch key {
		case "nodes":
			if foundList {
				p.warn(l.num, "", "second node list; nodes are appended")
			}
			foundList = true
			switch rest {
			case "", "[]":
			default:
				p.warn(l.num, "", "unexpected value after nodes: %q", rest)
			}
			if rest == "[]" {
				continue
			}
			if indent, ok := p.nextListIndent(); ok {
				wf.Nodes = append(wf.Nodes, p.parseList(indent)...)
			}
		case "name":
			if pr, ok := p.parsePair(l, ""); ok {
				wf.Name = p.stringValue(pr.val, l.num, "", "name")
			}
		case "defaults":
			wf.Defaults = p.parseDefaults(p.readPairs(0, ""))
		default:
			p.warn(l.num, "", "unknown top-level key %q ignored", key)
			p.skipNested(0)
		}
	}

	if !foundList {
		return nil, &StructureError{Reason: "no nodes: list found"}
	}
	if len(wf.Nodes) == 0 {
		p.warn(0, "", "workflow has no nodes")
	}

	p.assignIDs(wf)
	wf.Warnings = append(p.warnings, wf.Validate()...)
	return wf, nil
}

func isListItem(text string) bool {
	return text == "-" || strings.HasPrefix(text, "- ")
}

// nextListIndent finds the indentation of the list that follows "nodes:".
func (p *parser) nextListIndent() (int, bool) {
	for i := p.pos; i < len(p.lines); i++ {
		l := p.lines[i]
		if l.skip() {
			continue
		}
		if isListItem(l.text) {
			return l.indent, true
		}
		return 0, false
	}
	return 0, false
}

func (p *parser) parseList(indent int) []Node {
	var nodes []Node
	for p.pos < len(p.lines) {
		l := p.lines[p.pos]
		if l.skip() {
			p.pos++
			continue
		}
		if l.indent < indent || (l.indent == indent && !isListItem(l.text)) {
			break
		}
		if l.indent > indent {
			p.warn(l.num, "", "unexpected indentation in node list")
			p.pos++
			continue
		}
		nodes = append(nodes, p.parseItem(l, indent, len(nodes)+1))
	}
	return nodes
}

func (p *parser) parseItem(l line, listIndent, position int) Node {
	p.pos++
	var pairs []pair

	inline := strings.TrimPrefix(l.text, "-")
	if strings.TrimSpace(inline) != "" {
		spaces := len(inline) - len(strings.TrimLeft(inline, " "))
		fieldIndent := listIndent + 1 + spaces
		if pr, ok := p.parsePair(line{num: l.num, indent: fieldIndent, text: strings.TrimSpace(inline)}, ""); ok {
			pairs = append(pairs, pr)
		}
	}
	pairs = append(pairs, p.readPairs(listIndent, "")...)

	label := fmt.Sprintf("#%d", position)
	for _, pr := range pairs {
		if pr.key == "id" && pr.val.raw != "" {
			label = pr.val.raw
		}
	}
	return p.buildNode(pairs, label)
}

// readPairs consumes key/value lines indented deeper than parent.
func (p *parser) readPairs(parent int, nodeID string) []pair {
	var pairs []pair
	for p.pos < len(p.lines) {
		l := p.lines[p.pos]
		if l.skip() {
			p.pos++
			continue
		}
		if l.indent <= parent {
			break
		}
		if isListItem(l.text) {
			p.warn(l.num, nodeID, "nested lists are not supported")
			p.pos++
			continue
		}
		p.pos++
		if pr, ok := p.parsePair(l, nodeID); ok {
			pairs = append(pairs, pr)
		}
	}
	return pairs
}

// parsePair parses l, which has already been consumed, reading any block
// scalar lines that follow it.
func (p *parser) parsePair(l line, nodeID string) (pair, bool) {
	m := pairPattern.FindStringSubmatch(l.text)
	if m == nil {
		p.warn(l.num, nodeID, "expected key: value, got %q", l.text)
		return pair{}, false
	}
	rest := strings.TrimSpace(m[2])
	if rest == "|" || rest == "|-" || rest == "|+" {
		text := p.readBlock(l.indent + TabWidth)
		return pair{key: m[1], val: scalar{raw: text, value: text, block: true}, line: l.num}, true
	}
	return pair{key: m[1], val: p.scalarAt(rest, l.num), line: l.num}, true
}

// readBlock collects a literal block whose lines are indented at least
// minIndent. Blank lines inside are kept; trailing blank lines are dropped.
func (p *parser) readBlock(minIndent int) string {
	var body []string
	end := p.pos
	for i := p.pos; i < len(p.lines); i++ {
		l := p.lines[i]
		if l.blank() {
			body = append(body, "")
			continue
		}
		if l.indent < minIndent {
			break
		}
		body = append(body, strings.Repeat(" ", l.indent-minIndent)+l.full)
		end = i + 1
	}
	kept := 0
	for i, s := range body {
		if s != "" {
			kept = i + 1
		}
	}
	if kept == 0 {
		end = p.pos
	}
	p.pos = end
	return strings.Join(body[:kept], "\n")
}

// skipNested drops lines belonging to an ignored key.
func (p *parser) skipNested(parent int) {
	for p.pos < len(p.lines) {
		l := p.lines[p.pos]
		if !l.skip() && l.indent <= parent {
			return
		}
		p.pos++
	}
}

func (p *parser) scalarAt(rest string, lineNum int) scalar {
	switch {
	case rest == "":
		return scalar{raw: "", value: nil}
	case strings.HasPrefix(rest, `"`):
		if s, ok := unquoteDouble(rest); ok {
			return scalar{raw: s, value: s, quoted: true}
		}
		p.warn(lineNum, "", "malformed double-quoted string")
		return scalar{raw: strings.TrimPrefix(rest, `"`), value: strings.TrimPrefix(rest, `"`)}
	case strings.HasPrefix(rest, "'"):
		if s, ok := unquoteSingle(rest); ok {
			return scalar{raw: s, value: s, quoted: true}
		}
		p.warn(lineNum, "", "malformed single-quoted string")
		return scalar{raw: strings.TrimPrefix(rest, "'"), value: strings.TrimPrefix(rest, "'")}
	}
	return scalar{raw: rest, value: coerce(rest)}
}

// coerce applies the plain-scalar rules: booleans, null, numbers, else text.
func coerce(s string) interface{} {
	switch s {
	case "true":
		return true
	case "false":
		return false
	case "null", "~":
		return nil
	}
	if numberPattern.MatchString(s) {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return s
}

func unquoteDouble(s string) (string, bool) {
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			return b.String(), strings.TrimSpace(s[i+1:]) == ""
		case '\\':
			if i+1 >= len(s) {
				return "", false
			}
			i++
			switch s[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '0':
				b.WriteByte(0)
			case '"', '\\', '/':
				b.WriteByte(s[i])
			case 'u':
				if i+4 >= len(s) {
					return "", false
				}
				code, err := strconv.ParseUint(s[i+1:i+5], 16, 32)
				if err != nil {
					return "", false
				}
				b.WriteRune(rune(code))
				i += 4
			default:
				b.WriteByte('\\')
				b.WriteByte(s[i])
			}
		default:
			b.WriteByte(c)
		}
	}
	return "", false
}

func unquoteSingle(s string) (string, bool) {
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		if s[i] == '\'' {
			if i+1 < len(s) && s[i+1] == '\'' {
				b.WriteByte('\'')
				i++
				continue
			}
			return b.String(), strings.TrimSpace(s[i+1:]) == ""
		}
		b.WriteByte(s[i])
	}
	return "", false
}

// stringValue returns a scalar as text. Plain scalars keep their spelling
// so that an id like 007 is not turned into 7.
func (p *parser) stringValue(v scalar, lineNum int, nodeID, key string) string {
	if v.quoted || v.block {
		return v.raw
	}
	if v.value == nil {
		return ""
	}
	if _, ok := v.value.(string); !ok {
		p.warn(lineNum, nodeID, "%s: expected text, got %s; using it as text", key, v.raw)
	}
	return v.raw
}

func (p *parser) floatValue(v scalar, lineNum int, nodeID, key string) *float64 {
	if f, ok := v.value.(float64); ok && !v.quoted {
		return &f
	}
	if v.value == nil && !v.quoted {
		return nil
	}
	p.warn(lineNum, nodeID, "%s: expected a number, got %q; ignored", key, v.raw)
	return nil
}

func (p *parser) intValue(v scalar, lineNum int, nodeID, key string) int {
	f := p.floatValue(v, lineNum, nodeID, key)
	if f == nil {
		return 0
	}
	if *f < 0 || *f != math.Trunc(*f) || *f > math.MaxInt32 {
		p.warn(lineNum, nodeID, "%s: expected a non-negative integer, got %s; ignored", key, v.raw)
		return 0
	}
	return int(*f)
}

func (p *parser) boolValue(v scalar, lineNum int, nodeID, key string) bool {
	if b, ok := v.value.(bool); ok && !v.quoted {
		return b
	}
	if v.value == nil && !v.quoted {
		return false
	}
	p.warn(lineNum, nodeID, "%s: expected true or false, got %q; using false", key, v.raw)
	return false
}

func (p *parser) buildNode(pairs []pair, label string) Node {
	var n Node
	seen := map[string]bool{}
	for _, pr := range pairs {
		key, known := fieldAliases[pr.key]
		if !known {
			p.warn(pr.line, label, "unknown field %q kept as-is", pr.key)
			if n.Extra == nil {
				n.Extra = map[string]interface{}{}
			}
			n.Extra[pr.key] = pr.val.value
			continue
		}
		if seen[key] {
			p.warn(pr.line, label, "field %q set more than once; last value wins", key)
		}
		seen[key] = true

		switch key {
		case "id":
			n.ID = p.stringValue(pr.val, pr.line, label, key)
		case "type":
			n.Type = NodeType(p.stringValue(pr.val, pr.line, label, key))
		case "expr":
			n.Expr = p.stringValue(pr.val, pr.line, label, key)
		case "lang":
			n.Lang = p.stringValue(pr.val, pr.line, label, key)
		case "prompt":
			n.Prompt = p.stringValue(pr.val, pr.line, label, key)
		case "system":
			n.System = p.stringValue(pr.val, pr.line, label, key)
		case "model":
			n.Model = p.stringValue(pr.val, pr.line, label, key)
		case "temperature":
			n.Temperature = p.floatValue(pr.val, pr.line, label, key)
		case "max_tokens":
			n.MaxTokens = p.intValue(pr.val, pr.line, label, key)
		case "expect":
			n.Expect = p.stringValue(pr.val, pr.line, label, key)
			if n.Expect != "" && n.Format() == FormatText && !strings.EqualFold(n.Expect, string(FormatText)) {
				p.warn(pr.line, label, "expect: unknown format %q, treated as text", n.Expect)
			}
		case "output":
			n.Output = p.stringValue(pr.val, pr.line, label, key)
		case "append_chunk":
			n.AppendChunk = p.boolValue(pr.val, pr.line, label, key)
		case "message":
			n.Message = p.stringValue(pr.val, pr.line, label, key)
		}
	}
	return n
}

func (p *parser) parseDefaults(pairs []pair) Defaults {
	var d Defaults
	for _, pr := range pairs {
		switch fieldAliases[pr.key] {
		case "model":
			d.Model = p.stringValue(pr.val, pr.line, "", "defaults.model")
		case "temperature":
			d.Temperature = p.floatValue(pr.val, pr.line, "", "defaults.temperature")
		case "max_tokens":
			d.MaxTokens = p.intValue(pr.val, pr.line, "", "defaults.max_tokens")
		case "system":
			d.System = p.stringValue(pr.val, pr.line, "", "defaults.system")
		default:
			p.warn(pr.line, "", "unknown defaults key %q ignored", pr.key)
		}
	}
	return d
}

// assignIDs fills missing ids with node_<n> and reports duplicates.
func (p *parser) assignIDs(wf *Workflow) {
	seen := map[string]int{}
	for i := range wf.Nodes {
		n := &wf.Nodes[i]
		if strings.TrimSpace(n.ID) == "" {
			n.ID = fmt.Sprintf("node_%d", i+1)
			p.warn(0, n.ID, "missing id; using %s", n.ID)
		}
		if first, dup := seen[n.ID]; dup {
			p.warn(0, n.ID, "duplicate id (also node %d)", first)
			continue
		}
		seen[n.ID] = i + 1
	}
}
