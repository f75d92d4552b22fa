package evaluator

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// AllowedPackages are the standard library packages a Go func body may use.
// Packages with filesystem, network or process access are left out.
var AllowedPackages = []string{
	"bytes",
	"encoding/base64",
	"encoding/json",
	"fmt",
	"math",
	"regexp",
	"sort",
	"strconv",
	"strings",
	"time",
	"unicode",
	"unicode/utf8",
}

var packageRefs = func() map[string]*regexp.Regexp {
	refs := make(map[string]*regexp.Regexp, len(AllowedPackages))
	for _, path := range AllowedPackages {
		name := path[strings.LastIndex(path, "/")+1:]
		refs[path] = regexp.MustCompile(`\b` + name + `\.`)
	}
	return refs
}()

type goFunc func(map[string]interface{}, string, map[string]string, func(string) string, func(string)) interface{}

// GoEvaluator interprets func bodies as Go with yaegi. Each distinct body is
// compiled once and reused.
type GoEvaluator struct {
	exports interp.Exports

	mu    sync.Mutex
	cache map[string]goFunc
}

// NewGoEvaluator creates an evaluator restricted to AllowedPackages.
func NewGoEvaluator() *GoEvaluator {
	allowed := make(map[string]bool, len(AllowedPackages))
	for _, p := range AllowedPackages {
		allowed[p] = true
	}
	exports := interp.Exports{}
	for key, symbols := range stdlib.Symbols {
		// keys look like "encoding/json/json"
		idx := strings.LastIndex(key, "/")
		if idx < 0 {
			continue
		}
		if allowed[key[:idx]] {
			exports[key] = symbols
		}
	}
	return &GoEvaluator{exports: exports, cache: map[string]goFunc{}}
}

// Evaluate runs source as the body of
//
//	func(context map[string]interface{}, chunk string, row map[string]string, helpers Helpers) interface{}
//
// where Helpers has Template(string) string and Log(string) fields.
func (g *GoEvaluator) Evaluate(ctx context.Context, source string, b Bindings) (interface{}, error) {
	fn, err := g.compile(source)
	if err != nil {
		return nil, err
	}
	b = withDefaults(b)
	return run(ctx, func() (interface{}, error) {
		return fn(b.Context, b.Chunk, b.Row, b.Template, b.Log), nil
	})
}

func (g *GoEvaluator) compile(source string) (goFunc, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if fn, ok := g.cache[source]; ok {
		return fn, nil
	}

	if err := g.validateImports(source); err != nil {
		return nil, err
	}

	i := interp.New(interp.Options{})
	if err := i.Use(g.exports); err != nil {
		return nil, fmt.Errorf("failed to load symbols: %w", err)
	}
	if _, err := i.Eval(g.wrap(source)); err != nil {
		return nil, fmt.Errorf("compile error: %w", err)
	}
	v, err := i.Eval("main.Run")
	if err != nil {
		return nil, fmt.Errorf("entry point not found: %w", err)
	}
	fn, ok := v.Interface().(func(map[string]interface{}, string, map[string]string, func(string) string, func(string)) interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected entry point type %s", reflect.TypeOf(v.Interface()))
	}
	g.cache[source] = fn
	return fn, nil
}

var importLine = regexp.MustCompile(`(?m)^\s*import\b`)

// validateImports rejects bodies that try to declare their own imports.
// Allowed packages are imported automatically.
func (g *GoEvaluator) validateImports(source string) error {
	if importLine.MatchString(source) {
		return fmt.Errorf("import statements are not allowed; available packages: %s", strings.Join(AllowedPackages, ", "))
	}
	return nil
}

// wrap turns a function body into a main package, importing the allowed
// packages the body refers to.
func (g *GoEvaluator) wrap(body string) string {
	var imports []string
	for _, path := range AllowedPackages {
		if packageRefs[path].MatchString(body) {
			imports = append(imports, fmt.Sprintf("%q", path))
		}
	}
	sort.Strings(imports)

	var b strings.Builder
	b.WriteString("package main\n\n")
	if len(imports) > 0 {
		b.WriteString("import (\n")
		for _, imp := range imports {
			b.WriteString("\t" + imp + "\n")
		}
		b.WriteString(")\n\n")
	}
	b.WriteString(`type Helpers struct {
	Template func(string) string
	Log      func(string)
}

func Run(context map[string]interface{}, chunk string, row map[string]string, template func(string) string, log func(string)) interface{} {
	helpers := Helpers{Template: template, Log: log}
	_ = helpers
`)
	b.WriteString(body)
	b.WriteString("\n\treturn nil\n}\n")
	return b.String()
}
