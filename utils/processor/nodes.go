package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"regexp"
	"strings"

	"github.com/kris-hansen/workbench/utils/evaluator"
	"github.com/kris-hansen/workbench/utils/models"
	"github.com/kris-hansen/workbench/utils/template"
	"github.com/kris-hansen/workbench/utils/workflow"
)

func (r *run) runFunc(ctx context.Context, st *unitState, node workflow.Node) (outcome, error) {
	idx := st.unit.Index
	if strings.TrimSpace(node.Expr) == "" {
		r.log(idx, LevelWarn, node.ID, "func node has no expr; node skipped")
		return advance, nil
	}
	ev, err := r.p.evaluators.Get(node.Language())
	if err != nil {
		return failUnit, fmt.Errorf("func %s: %w", node.ID, err)
	}

	bindings := evaluator.Bindings{
		Context:  st.vars,
		Chunk:    st.unit.RawText,
		Row:      st.unit.Row,
		Template: func(tpl string) string { return template.Render(tpl, st.vars) },
		Log:      func(msg string) { r.log(idx, LevelInfo, node.ID, msg) },
	}
	value, err := ev.Evaluate(ctx, node.Expr, bindings)
	if err != nil {
		return classify(ctx, err), fmt.Errorf("func %s failed: %w", node.ID, err)
	}

	obj, ok := evaluator.AsObject(value)
	if !ok {
		return advance, nil
	}
	if evaluator.Truthy(obj["skip"]) {
		msg := "unit skipped"
		if reason, ok := obj["reason"].(string); ok && reason != "" {
			msg += ": " + reason
		}
		r.log(idx, LevelInfo, node.ID, msg)
		return skipUnit, nil
	}
	maps.Copy(st.vars, obj)
	return advance, nil
}

func (r *run) runPrompt(ctx context.Context, st *unitState, node workflow.Node) (outcome, error) {
	idx := st.unit.Index
	if strings.TrimSpace(node.Prompt) == "" {
		return failUnit, fmt.Errorf("prompt node %s has no prompt template", node.ID)
	}

	settings := workflow.Resolve(node, r.wf.Defaults, r.p.defaults)
	req := models.CompletionRequest{
		Prompt:       template.Render(node.Prompt, st.vars),
		ChunkText:    st.unit.RawText,
		IncludeChunk: node.AppendChunk,
		Model:        settings.Model,
		Temperature:  settings.Temperature,
		MaxTokens:    settings.MaxTokens,
		SystemPrompt: template.Render(settings.System, st.vars),
	}
	r.p.debugf("unit %d node %s: model=%s temperature=%.2f max_tokens=%d", idx, node.ID, req.Model, req.Temperature, req.MaxTokens)

	if r.p.completer == nil {
		return failUnit, fmt.Errorf("prompt %s: no completion provider configured", node.ID)
	}
	events, err := r.p.completer.StreamCompletion(ctx, req)
	if err != nil {
		return classify(ctx, err), fmt.Errorf("prompt %s: %w", node.ID, err)
	}
	text, usage, err := models.Collect(ctx, events, func(delta string) {
		r.p.emit(ProgressUpdate{Type: ProgressDelta, RunID: r.result.RunID, Unit: idx, NodeID: node.ID, Delta: delta})
	})
	r.result.Usage.Add(usage)
	if err != nil {
		return classify(ctx, err), fmt.Errorf("prompt %s: %w", node.ID, err)
	}

	var value interface{} = text
	if node.Format() == workflow.FormatJSON {
		parsed, perr := ParseJSONResponse(text)
		if perr != nil {
			r.log(idx, LevelWarn, node.ID, fmt.Sprintf("response is not valid JSON (%v); stored raw text", perr))
		} else {
			value = parsed
		}
	}
	st.vars[node.OutputKey()] = value
	st.response = template.Format(value)
	return advance, nil
}

func (r *run) runPrint(st *unitState, node workflow.Node) {
	r.log(st.unit.Index, LevelInfo, node.ID, template.Render(node.Message, st.vars))
}

var fencePattern = regexp.MustCompile("(?s)^```[A-Za-z0-9_-]*[ \t]*\n(.*?)\n?```$")

// StripCodeFence removes a surrounding Markdown code fence, if any.
func StripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if m := fencePattern.FindStringSubmatch(trimmed); m != nil {
		return strings.TrimSpace(m[1])
	}
	return trimmed
}

// ParseJSONResponse decodes a model response, tolerating a code fence around
// the JSON.
func ParseJSONResponse(text string) (interface{}, error) {
	var v interface{}
	if err := json.Unmarshal([]byte(StripCodeFence(text)), &v); err != nil {
		return nil, err
	}
	return v, nil
}
