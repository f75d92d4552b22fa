package evaluator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/builtin"
	"github.com/expr-lang/expr/vm"
)

type exprHelpers struct {
	Template func(string) string `expr:"template"`
	Log      func(string) bool   `expr:"log"`
}

// exprShape types the built-in names at compile time. Context keys are
// resolved when the expression runs.
var exprShape = map[string]interface{}{
	"context":  map[string]interface{}{},
	"chunk":    "",
	"row":      map[string]string{},
	"helpers":  exprHelpers{},
	"template": func(string) string { return "" },
	"log":      func(string) bool { return true },
}

// ExprEvaluator evaluates func bodies as expr-lang expressions. The
// expression sees context, chunk, row and helpers, plus every context key
// at the top level and template/log shortcuts. A context key named like an
// expr built-in (type, date, count, ...) hides that built-in. row is nil
// for units that are not table rows; use row?.name to read it safely.
type ExprEvaluator struct {
	mu    sync.Mutex
	cache map[string]*vm.Program
}

// NewExprEvaluator creates an expr-lang evaluator.
func NewExprEvaluator() *ExprEvaluator {
	return &ExprEvaluator{cache: map[string]*vm.Program{}}
}

func (e *ExprEvaluator) Evaluate(ctx context.Context, source string, b Bindings) (interface{}, error) {
	program, err := e.compile(source, shadowedBuiltins(b.Context))
	if err != nil {
		return nil, err
	}
	b = withDefaults(b)

	// expr calls need a return value
	logFn := func(msg string) bool {
		b.Log(msg)
		return true
	}

	env := make(map[string]interface{}, len(b.Context)+len(exprShape))
	for k, v := range b.Context {
		env[k] = v
	}
	env["context"] = b.Context
	env["chunk"] = b.Chunk
	if b.Row != nil {
		env["row"] = b.Row
	} else {
		env["row"] = nil
	}
	env["helpers"] = exprHelpers{Template: b.Template, Log: logFn}
	env["template"] = b.Template
	env["log"] = logFn

	return run(ctx, func() (interface{}, error) {
		return expr.Run(program, env)
	})
}

// shadowedBuiltins lists the context keys that collide with expr built-ins,
// sorted so the list can key the program cache.
func shadowedBuiltins(vars map[string]interface{}) []string {
	var names []string
	for k := range vars {
		if _, reserved := exprShape[k]; reserved {
			continue
		}
		if _, ok := builtin.Index[k]; ok {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	return names
}

func (e *ExprEvaluator) compile(source string, shadowed []string) (*vm.Program, error) {
	key := strings.Join(shadowed, "\x00") + "\x01" + source

	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.cache[key]; ok {
		return p, nil
	}
	opts := []expr.Option{expr.Env(exprShape), expr.AllowUndefinedVariables()}
	for _, name := range shadowed {
		opts = append(opts, expr.DisableBuiltin(name))
	}
	p, err := expr.Compile(source, opts...)
	if err != nil {
		return nil, fmt.Errorf("compile error: %w", err)
	}
	e.cache[key] = p
	return p, nil
}
