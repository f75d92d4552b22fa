// Package evaluator runs the source of func nodes in a sandbox.
package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"sort"
	"strings"
)

// Bindings are the values a func body can see.
type Bindings struct {
	// Context is a copy of the unit's variables; changes to it are discarded.
	Context map[string]interface{}
	Chunk   string
	Row     map[string]string
	// Template renders a template against the unit's current variables.
	Template func(string) string
	// Log appends a message to the unit's log trail.
	Log func(string)
}

// Evaluator executes one func body and returns its result.
type Evaluator interface {
	Evaluate(ctx context.Context, source string, b Bindings) (interface{}, error)
}

// Set maps a node language to its evaluator.
type Set map[string]Evaluator

// DefaultSet returns the go and expr evaluators.
func DefaultSet() Set {
	return Set{
		"go":   NewGoEvaluator(),
		"expr": NewExprEvaluator(),
	}
}

// Get returns the evaluator for lang.
func (s Set) Get(lang string) (Evaluator, error) {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if e, ok := s[lang]; ok && e != nil {
		return e, nil
	}
	known := make([]string, 0, len(s))
	for k := range s {
		known = append(known, k)
	}
	sort.Strings(known)
	return nil, fmt.Errorf("no evaluator for language %q (available: %s)", lang, strings.Join(known, ", "))
}

// AsObject converts an evaluation result to a map when it is one.
func AsObject(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case map[string]string:
		out := make(map[string]interface{}, len(m))
		for k, s := range m {
			out[k] = s
		}
		return out, true
	case nil:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]interface{}, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

// Truthy follows the usual scripting rules: false, nil, zero numbers and
// empty strings are false.
func Truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case json.Number:
		f, err := t.Float64()
		return err != nil || f != 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.Bool:
		return rv.Bool()
	case reflect.String:
		return rv.String() != ""
	case reflect.Ptr:
		return !rv.IsNil()
	}
	return true
}

func copyContext(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	maps.Copy(out, in)
	return out
}

func withDefaults(b Bindings) Bindings {
	if b.Template == nil {
		b.Template = func(s string) string { return s }
	}
	if b.Log == nil {
		b.Log = func(string) {}
	}
	b.Context = copyContext(b.Context)
	return b
}

// run calls fn on its own goroutine so a cancelled context returns at once.
// A panic in fn becomes an error.
func run(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	type outcome struct {
		v   interface{}
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		v, err := fn()
		done <- outcome{v: v, err: err}
	}()

	select {
	case o := <-done:
		return o.v, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
