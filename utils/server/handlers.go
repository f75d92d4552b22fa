package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/kris-hansen/workbench/utils/chunker"
	"github.com/kris-hansen/workbench/utils/config"
	"github.com/kris-hansen/workbench/utils/export"
	"github.com/kris-hansen/workbench/utils/processor"
	"github.com/kris-hansen/workbench/utils/workflow"
)

// ChunkSpec selects how request content is split into units.
type ChunkSpec struct {
	Mode      string `json:"mode,omitempty"`
	Size      int    `json:"size,omitempty"`
	Separator string `json:"separator,omitempty"`
	RowLimit  int    `json:"row_limit,omitempty"`
}

func (c ChunkSpec) split(content string) (*chunker.Result, error) {
	mode, err := chunker.ParseMode(c.Mode)
	if err != nil {
		return nil, err
	}
	return chunker.ChunkDocument(content, mode, chunker.Params{
		Size:      c.Size,
		Separator: c.Separator,
		RowLimit:  c.RowLimit,
	})
}

// UnitView is the wire form of a process unit.
type UnitView struct {
	Index int               `json:"index"`
	Text  string            `json:"text"`
	Row   map[string]string `json:"row,omitempty"`
}

// ChunkRequest is the body of POST /chunk.
type ChunkRequest struct {
	Content string    `json:"content"`
	Chunk   ChunkSpec `json:"chunk"`
}

// ChunkData is returned by POST /chunk.
type ChunkData struct {
	Mode     string     `json:"mode"`
	Columns  []string   `json:"columns,omitempty"`
	Units    []UnitView `json:"units"`
	Warnings []string   `json:"warnings,omitempty"`
}

// ParseRequest is the body of POST /parse.
type ParseRequest struct {
	Script string `json:"script"`
}

// ParseData is returned by POST /parse.
type ParseData struct {
	Name       string          `json:"name,omitempty"`
	Nodes      []workflow.Node `json:"nodes"`
	Warnings   []string        `json:"warnings,omitempty"`
	Serialized string          `json:"serialized"`
}

// RunRequest is the body of POST /run. Either Script or Prompt is required;
// Prompt runs the one-node prompt mode.
type RunRequest struct {
	Script      string    `json:"script,omitempty"`
	Prompt      string    `json:"prompt,omitempty"`
	Model       string    `json:"model,omitempty"`
	AppendChunk bool      `json:"append_chunk,omitempty"`
	Content     string    `json:"content"`
	Chunk       ChunkSpec `json:"chunk"`
	Stream      bool      `json:"stream,omitempty"`
}

// RunData is returned by POST /run, or sent as the final "result" event of a
// streamed run.
type RunData struct {
	Mode     string               `json:"mode"`
	Warnings []string             `json:"warnings,omitempty"`
	Result   *processor.RunResult `json:"result"`
}

// ExportRequest is the body of POST /export. Entries are taken from Result
// when set.
type ExportRequest struct {
	Format      string               `json:"format"`
	Result      *processor.RunResult `json:"result,omitempty"`
	Entries     []export.Entry       `json:"entries,omitempty"`
	ResponseKey string               `json:"response_key,omitempty"`
	Options     export.Options       `json:"options"`
	Existing    string               `json:"existing,omitempty"`
	Delimiter   string               `json:"delimiter,omitempty"`
}

// ExportData is returned by POST /export.
type ExportData struct {
	Format    string            `json:"format"`
	Content   string            `json:"content,omitempty"`
	Documents []export.Document `json:"documents,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed. Use GET.")
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: map[string]string{"status": "ok"}})
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req ParseRequest
	if !decodeBody(w, r, &req) {
		return
	}

	wf, err := workflow.Parse(req.Script)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	data := ParseData{
		Name:       wf.Name,
		Nodes:      wf.Nodes,
		Warnings:   warningStrings(wf.Warnings),
		Serialized: workflow.Serialize(wf),
	}
	config.DebugLog("Parsed workflow with %d nodes, %d warnings", len(wf.Nodes), len(wf.Warnings))
	writeJSON(w, http.StatusOK, Response{Success: true, Data: data})
}

func (s *Server) handleChunk(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req ChunkRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := req.Chunk.split(req.Content)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	data := ChunkData{Mode: string(res.Mode), Units: make([]UnitView, 0, len(res.Units)), Warnings: res.Warnings}
	if res.Table != nil {
		data.Columns = res.Table.Headers
	}
	for _, u := range res.Units {
		data.Units = append(data.Units, UnitView{Index: u.Index, Text: u.RawText, Row: u.Row})
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: data})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req RunRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Script == "" && req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "Either script or prompt is required")
		return
	}

	chunks, err := req.Chunk.split(req.Content)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var flusher http.Flusher
	if req.Stream {
		f, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "Streaming not supported")
			return
		}
		flusher = f
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()
	}

	proc := processor.NewProcessor(s.completer, processor.OptionsFromConfig(s.envConfig, config.Verbose || config.Debug))
	if req.Stream {
		proc.SetProgressWriter(processor.ProgressFunc(func(u processor.ProgressUpdate) error {
			return sendEvent(w, flusher, string(u.Type), u)
		}))
	}

	// the request context ends when the client disconnects
	ctx, cancel := s.runContext(r.Context())
	defer cancel()

	config.VerboseLog("Running workflow over %d units (mode %s)", len(chunks.Units), chunks.Mode)
	var res *processor.RunResult
	if req.Script != "" {
		res, err = proc.RunScript(ctx, req.Script, chunks.Units)
	} else {
		res, err = proc.RunSinglePrompt(ctx, processor.SinglePrompt{
			Prompt:      req.Prompt,
			Model:       req.Model,
			AppendChunk: req.AppendChunk,
		}, chunks.Units)
	}

	if err != nil {
		config.VerboseLog("Run failed: %v", err)
		status := http.StatusInternalServerError
		if errors.Is(err, workflow.ErrNoNodeList) {
			status = http.StatusUnprocessableEntity
		}
		if req.Stream {
			_ = sendEvent(w, flusher, "error", Response{Success: false, Error: err.Error()})
			return
		}
		writeError(w, status, err.Error())
		return
	}

	data := RunData{Mode: string(chunks.Mode), Warnings: chunks.Warnings, Result: res}
	if req.Stream {
		if err := sendEvent(w, flusher, "result", data); err != nil {
			config.DebugLog("Client went away before the result was sent: %v", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: data})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req ExportRequest
	if !decodeBody(w, r, &req) {
		return
	}

	entries := req.Entries
	if req.Result != nil {
		entries = export.EntriesFromRun(req.Result, req.ResponseKey)
		if req.Options.RunID == "" {
			req.Options.RunID = req.Result.RunID
		}
	}

	data := ExportData{Format: req.Format}
	switch req.Format {
	case "combined", "":
		data.Format = "combined"
		data.Content = export.Combined(entries, req.Options)
	case "append":
		data.Content = export.AppendTo(req.Existing, entries, req.Options)
	case "csv":
		delim, err := export.ParseDelimiter(req.Delimiter)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		var buf bytes.Buffer
		if err := export.WriteCSV(&buf, entries, delim); err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error writing CSV: %v", err))
			return
		}
		data.Content = buf.String()
	case "documents":
		data.Documents = export.Documents(entries, req.Options)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown export format %q", req.Format))
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: data})
}

// sendEvent writes one Server-Sent Event.
func sendEvent(w http.ResponseWriter, flusher http.Flusher, event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error encoding %s event: %w", event, err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func warningStrings(ws []workflow.Warning) []string {
	if len(ws) == 0 {
		return nil
	}
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = w.String()
	}
	return out
}
