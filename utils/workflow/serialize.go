package workflow

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// Serialize writes wf as script text that Parse reads back to an equal
// workflow. The output is also valid standard YAML.
func Serialize(wf *Workflow) string {
	var b strings.Builder
	if wf.Name != "" {
		writeField(&b, 0, "name", wf.Name)
	}
	if !wf.Defaults.IsZero() {
		b.WriteString("defaults:\n")
		d := wf.Defaults
		if d.Model != "" {
			writeField(&b, 2, "model", d.Model)
		}
		if d.Temperature != nil {
			writeRaw(&b, 2, "temperature", formatFloat(*d.Temperature))
		}
		if d.MaxTokens != 0 {
			writeRaw(&b, 2, "max_tokens", strconv.Itoa(d.MaxTokens))
		}
		if d.System != "" {
			writeField(&b, 2, "system", d.System)
		}
	}
	b.WriteString(SerializeNodes(wf.Nodes))
	return b.String()
}

// SerializeNodes writes only the nodes: list.
func SerializeNodes(nodes []Node) string {
	if len(nodes) == 0 {
		return "nodes: []\n"
	}
	var b strings.Builder
	b.WriteString("nodes:\n")
	for i, n := range nodes {
		if i > 0 {
			b.WriteString("\n")
		}
		writeNode(&b, n)
	}
	return b.String()
}

func writeNode(b *strings.Builder, n Node) {
	const indent = 4
	item := &strings.Builder{}

	if n.ID != "" {
		writeField(item, indent, "id", n.ID)
	}
	if n.Type != "" {
		writeField(item, indent, "type", string(n.Type))
	}
	if n.Lang != "" {
		writeField(item, indent, "lang", n.Lang)
	}
	if n.Expr != "" {
		writeField(item, indent, "expr", n.Expr)
	}
	if n.Model != "" {
		writeField(item, indent, "model", n.Model)
	}
	if n.Temperature != nil {
		writeRaw(item, indent, "temperature", formatFloat(*n.Temperature))
	}
	if n.MaxTokens != 0 {
		writeRaw(item, indent, "max_tokens", strconv.Itoa(n.MaxTokens))
	}
	if n.System != "" {
		writeField(item, indent, "system", n.System)
	}
	if n.Prompt != "" {
		writeField(item, indent, "prompt", n.Prompt)
	}
	if n.Expect != "" {
		writeField(item, indent, "expect", n.Expect)
	}
	if n.Output != "" {
		writeField(item, indent, "output", n.Output)
	}
	if n.AppendChunk {
		writeRaw(item, indent, "append_chunk", "true")
	}
	if n.Message != "" {
		writeField(item, indent, "message", n.Message)
	}

	keys := make([]string, 0, len(n.Extra))
	for k := range n.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch v := n.Extra[k].(type) {
		case string:
			writeField(item, indent, k, v)
		default:
			writeRaw(item, indent, k, formatExtra(v))
		}
	}

	text := item.String()
	if text == "" {
		b.WriteString("  -\n")
		return
	}
	// the first field moves onto the dash line
	b.WriteString("  - ")
	b.WriteString(text[indent:])
}

func writeRaw(b *strings.Builder, indent int, key, value string) {
	fmt.Fprintf(b, "%s%s: %s\n", strings.Repeat(" ", indent), key, value)
}

func writeField(b *strings.Builder, indent int, key, value string) {
	if strings.Contains(value, "\n") && blockSafe(value) {
		pad := strings.Repeat(" ", indent+TabWidth)
		fmt.Fprintf(b, "%s%s: |-\n", strings.Repeat(" ", indent), key)
		for _, l := range strings.Split(value, "\n") {
			if l == "" {
				b.WriteString("\n")
				continue
			}
			b.WriteString(pad)
			b.WriteString(l)
			b.WriteString("\n")
		}
		return
	}
	writeRaw(b, indent, key, quoteIfNeeded(value))
}

// blockSafe reports whether s survives a literal block unchanged.
func blockSafe(s string) bool {
	if strings.HasPrefix(s, "\n") || strings.HasSuffix(s, "\n") {
		return false
	}
	for _, l := range strings.Split(s, "\n") {
		if l == "" {
			continue
		}
		if strings.TrimSpace(l) == "" || strings.HasPrefix(l, " ") {
			return false
		}
		for _, r := range l {
			if r == '\t' || r == '\r' || (unicode.IsControl(r)) {
				return false
			}
		}
	}
	return true
}

// quoteIfNeeded returns s as a plain scalar when Parse and YAML would both
// read it back unchanged, and double-quoted otherwise.
func quoteIfNeeded(s string) string {
	if needsQuotes(s) {
		return quote(s)
	}
	return s
}

func needsQuotes(s string) bool {
	if s == "" || s != strings.TrimSpace(s) {
		return true
	}
	if _, isString := coerce(s).(string); !isString {
		return true
	}
	switch strings.ToLower(s) {
	case "yes", "no", "on", "off", "y", "n", "true", "false", "null", "~", ".nan", ".inf", "-.inf":
		return true
	}
	if strings.ContainsAny(s[:1], "-?:,[]{}#&*!|>'\"%@`") {
		return true
	}
	if strings.Contains(s, ": ") || strings.Contains(s, " #") || strings.HasSuffix(s, ":") {
		return true
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return true
		}
	}
	return false
}

func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		default:
			if unicode.IsControl(r) {
				fmt.Fprintf(&b, `\u%04x`, r)
				continue
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !numberPattern.MatchString(s) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return s
}

func formatExtra(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return formatFloat(val)
	case int:
		return strconv.Itoa(val)
	}
	return quote(fmt.Sprint(v))
}
