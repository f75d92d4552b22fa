package processor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/kris-hansen/workbench/utils/chunker"
	"github.com/kris-hansen/workbench/utils/config"
	"github.com/kris-hansen/workbench/utils/evaluator"
	"github.com/kris-hansen/workbench/utils/models"
	"github.com/kris-hansen/workbench/utils/workflow"
)

// Options configure a Processor.
type Options struct {
	// Defaults sit below the workflow's own defaults when resolving prompt
	// settings. Usually filled from the workbench configuration.
	Defaults   workflow.Defaults
	Evaluators evaluator.Set
	Verbose    bool
}

// OptionsFromConfig maps the workbench section of cfg to processor options.
func OptionsFromConfig(cfg *config.EnvConfig, verbose bool) Options {
	opts := Options{Verbose: verbose}
	if cfg == nil {
		return opts
	}
	wb := cfg.Workbench
	opts.Defaults = workflow.Defaults{
		Model:       wb.DefaultModel,
		Temperature: wb.Temperature,
		MaxTokens:   wb.MaxTokens,
		System:      wb.SystemPrompt,
	}
	return opts
}

// Processor executes workflows over process units. Units run one after
// another and the nodes of a unit run in order.
type Processor struct {
	completer  models.Completer
	evaluators evaluator.Set
	defaults   workflow.Defaults
	verbose    bool

	progress  ProgressWriter
	streamLog *StreamLogger

	active atomic.Bool
	mu     sync.Mutex
	// emitMu serializes progress writes; writers may share an output
	// stream with the caller.
	emitMu sync.Mutex
}

// NewProcessor creates a processor that sends prompt nodes to completer.
func NewProcessor(completer models.Completer, opts Options) *Processor {
	evals := opts.Evaluators
	if evals == nil {
		evals = evaluator.DefaultSet()
	}
	return &Processor{
		completer:  completer,
		evaluators: evals,
		defaults:   opts.Defaults,
		verbose:    opts.Verbose,
	}
}

// SetProgressWriter sets the progress writer for streaming updates
func (p *Processor) SetProgressWriter(w ProgressWriter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.progress = w
}

// SetStreamLogger mirrors run progress to a file.
func (p *Processor) SetStreamLogger(l *StreamLogger) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.streamLog = l
}

func (p *Processor) debugf(format string, args ...interface{}) {
	if p.verbose {
		p.mu.Lock()
		defer p.mu.Unlock()
		log.Printf("[DEBUG][Processor] "+format+"\n", args...)
	}
}

func (p *Processor) emit(u ProgressUpdate) {
	p.mu.Lock()
	w := p.progress
	p.mu.Unlock()
	if w == nil {
		return
	}
	p.emitMu.Lock()
	defer p.emitMu.Unlock()
	if err := w.WriteProgress(u); err != nil {
		p.debugf("progress writer error: %v", err)
	}
}

func (p *Processor) stream() *StreamLogger {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.streamLog == nil {
		return &StreamLogger{}
	}
	return p.streamLog
}

// RunScript parses script and runs it. A script without a node list is
// returned as an error before any unit runs.
func (p *Processor) RunScript(ctx context.Context, script string, units []chunker.Unit) (*RunResult, error) {
	wf, err := workflow.Parse(script)
	if err != nil {
		return &RunResult{RunID: uuid.NewString(), Error: err}, err
	}
	return p.Run(ctx, wf, units)
}

// Run executes wf over units. Node failures are recorded per unit and never
// abort the run. Cancelling ctx stops the in-flight call and marks every
// unfinished unit cancelled; completed results are kept.
func (p *Processor) Run(ctx context.Context, wf *workflow.Workflow, units []chunker.Unit) (*RunResult, error) {
	if wf == nil {
		err := &workflow.StructureError{Reason: "no workflow given"}
		return &RunResult{RunID: uuid.NewString(), Error: err}, err
	}
	if !p.active.CompareAndSwap(false, true) {
		return nil, ErrRunActive
	}
	defer p.active.Store(false)

	r := &run{
		p:      p,
		wf:     wf,
		sl:     p.stream(),
		result: &RunResult{RunID: uuid.NewString(), Logs: []LogEntry{}, PerUnit: []Snapshot{}, Units: make([]UnitResult, 0, len(units))},
	}
	start := time.Now()
	defer func() {
		r.finish()
		r.result.Duration = time.Since(start)
	}()

	p.debugf("run %s: %d nodes over %d units", r.result.RunID, len(wf.Nodes), len(units))
	r.sl.LogRunStart(r.result.RunID, len(wf.Nodes), len(units))
	p.emit(ProgressUpdate{Type: ProgressRunStart, RunID: r.result.RunID, Unit: RunLevel, Total: len(units)})

	for _, w := range wf.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, msg)
		}
		r.log(RunLevel, LevelWarn, w.NodeID, msg)
	}

	for i, unit := range units {
		if ctx.Err() != nil {
			r.cancelRemaining(units[i:])
			break
		}
		p.emit(ProgressUpdate{Type: ProgressUnitStart, RunID: r.result.RunID, Unit: unit.Index, Total: len(units)})
		r.sl.LogUnitStart(i+1, len(units))

		ur := r.runUnit(ctx, unit)
		r.result.Units = append(r.result.Units, ur)
		if ur.Status == StatusCancelled {
			r.result.Cancelled = true
			r.cancelRemaining(units[i+1:])
			r.sl.LogUnitResult(ur)
			p.emit(ProgressUpdate{Type: ProgressUnitDone, RunID: r.result.RunID, Unit: ur.Index, Result: &ur})
			break
		}
		r.sl.LogUnitResult(ur)
		p.emit(ProgressUpdate{Type: ProgressUnitDone, RunID: r.result.RunID, Unit: ur.Index, Result: &ur})
	}

	r.sl.LogRunEnd(r.result)
	p.emit(ProgressUpdate{Type: ProgressRunDone, RunID: r.result.RunID, Unit: RunLevel, Total: len(units)})
	return r.result, nil
}

// SinglePrompt is the one-node mode: the same prompt applied to every unit.
type SinglePrompt struct {
	Prompt      string
	System      string
	Model       string
	Temperature *float64
	MaxTokens   int
	AppendChunk bool
	Expect      string
}

// SinglePromptOutput is the context key holding each unit's response.
const SinglePromptOutput = "response"

// RunSinglePrompt runs sp over units. Each unit's response is in its
// UnitResult and under SinglePromptOutput in its snapshot.
func (p *Processor) RunSinglePrompt(ctx context.Context, sp SinglePrompt, units []chunker.Unit) (*RunResult, error) {
	wf := &workflow.Workflow{Nodes: []workflow.Node{{
		ID:          "prompt",
		Type:        workflow.TypePrompt,
		Prompt:      sp.Prompt,
		System:      sp.System,
		Model:       sp.Model,
		Temperature: sp.Temperature,
		MaxTokens:   sp.MaxTokens,
		AppendChunk: sp.AppendChunk,
		Expect:      sp.Expect,
		Output:      SinglePromptOutput,
	}}}
	return p.Run(ctx, wf, units)
}

// run holds the state of one Run call.
type run struct {
	p  *Processor
	wf *workflow.Workflow
	sl *StreamLogger

	mu     sync.Mutex
	done   bool
	result *RunResult
}

// log appends an entry. Entries arriving after the run returned, e.g. from an
// abandoned evaluator, are dropped. The lock is held through the progress
// write so nothing is emitted once finish has returned.
func (r *run) log(unit int, level LogLevel, nodeID, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return
	}
	entry := LogEntry{Unit: unit, Level: level, NodeID: nodeID, Message: msg, Time: time.Now()}
	r.result.Logs = append(r.result.Logs, entry)

	r.sl.LogEntry(entry)
	r.p.emit(ProgressUpdate{Type: ProgressLog, RunID: r.result.RunID, Unit: unit, NodeID: nodeID, Log: &entry})
}

func (r *run) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done = true
}

func (r *run) cancelRemaining(units []chunker.Unit) {
	r.result.Cancelled = true
	for _, u := range units {
		r.result.Units = append(r.result.Units, UnitResult{Index: u.Index, Input: u.RawText, Status: StatusCancelled})
	}
}

// seedVars builds a fresh context for unit: table columns first, then the
// built-ins, which win on name clashes.
func seedVars(unit chunker.Unit) Vars {
	vars := make(Vars, len(unit.Row)+4)
	var row interface{}
	if unit.Row != nil {
		m := make(map[string]interface{}, len(unit.Row))
		for k, v := range unit.Row {
			vars[k] = v
			m[k] = v
		}
		row = m
	}
	vars["chunk"] = unit.RawText
	vars["row"] = row
	vars["data"] = row
	vars["index"] = unit.Index
	return vars
}

// unitState is what a node sees of the unit being processed.
type unitState struct {
	unit     chunker.Unit
	vars     Vars
	response string
}

// outcome says how a unit continues after a node.
type outcome int

const (
	advance outcome = iota
	skipUnit
	failUnit
	cancelUnit
)

func (r *run) runUnit(ctx context.Context, unit chunker.Unit) UnitResult {
	st := &unitState{unit: unit, vars: seedVars(unit)}
	ur := UnitResult{Index: unit.Index, Input: unit.RawText, Status: StatusCompleted}

	for _, node := range r.wf.Nodes {
		if ctx.Err() != nil {
			ur.Status = StatusCancelled
			r.log(unit.Index, LevelWarn, node.ID, "run cancelled")
			return ur
		}
		r.p.emit(ProgressUpdate{Type: ProgressStep, RunID: r.result.RunID, Unit: unit.Index, NodeID: node.ID, Message: string(node.Type)})

		var (
			next outcome
			err  error
		)
		switch node.Type {
		case workflow.TypeFunc:
			next, err = r.runFunc(ctx, st, node)
		case workflow.TypePrompt:
			next, err = r.runPrompt(ctx, st, node)
		case workflow.TypePrint:
			r.runPrint(st, node)
		default:
			r.log(unit.Index, LevelWarn, node.ID, fmt.Sprintf("unknown node type %q; node skipped", node.Type))
		}

		switch next {
		case skipUnit:
			ur.Status = StatusSkipped
			ur.Response = st.response
			return ur
		case failUnit:
			ur.Status = StatusFailed
			ur.Error = err.Error()
			r.log(unit.Index, LevelError, node.ID, err.Error())
			return ur
		case cancelUnit:
			ur.Status = StatusCancelled
			r.log(unit.Index, LevelWarn, node.ID, "run cancelled")
			return ur
		}
	}

	snapshot := maps.Clone(st.vars)
	snapshot["chunk"] = unit.RawText
	r.result.PerUnit = append(r.result.PerUnit, Snapshot{Index: unit.Index, Context: snapshot})
	ur.Response = st.response
	return ur
}

// classify maps a node error to cancellation when the run's context ended.
func classify(ctx context.Context, err error) outcome {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return cancelUnit
	}
	return failUnit
}
