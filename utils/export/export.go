// Package export turns run results into documents and tables.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
	"github.com/kris-hansen/workbench/utils/processor"
	"github.com/kris-hansen/workbench/utils/template"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// CSVHeader is the fixed column set of the table export.
var CSVHeader = []string{"Unit #", "Original Text", "Response", "Status"}

// Entry is one unit's outcome in export form.
type Entry struct {
	Index    int                  `json:"index"`
	Input    string               `json:"input"`
	Response string               `json:"response"`
	Status   processor.UnitStatus `json:"status"`
}

// Completed reports whether the unit finished normally.
func (e Entry) Completed() bool {
	return e.Status == processor.StatusCompleted
}

// Options shape the text exports.
type Options struct {
	Title        string `json:"title,omitempty"`
	UnitHeaders  bool   `json:"unit_headers,omitempty"`
	IncludeInput bool   `json:"include_input,omitempty"`
	RunID        string `json:"run_id,omitempty"`
}

// EntriesFromRun lists every unit of res in order. With a responseKey, the
// response of a completed unit is read from its snapshot at that dotted path
// instead of the last prompt output.
func EntriesFromRun(res *processor.RunResult, responseKey string) []Entry {
	if res == nil {
		return nil
	}
	snapshots := make(map[int]processor.Vars, len(res.PerUnit))
	for _, s := range res.PerUnit {
		snapshots[s.Index] = s.Context
	}

	entries := make([]Entry, 0, len(res.Units))
	for _, u := range res.Units {
		e := Entry{Index: u.Index, Input: u.Input, Response: u.Response, Status: u.Status}
		if responseKey != "" {
			e.Response = ""
			if ctx, ok := snapshots[u.Index]; ok {
				if v, ok := template.Resolve(responseKey, ctx); ok {
					e.Response = template.Format(v)
				}
			}
		}
		entries = append(entries, e)
	}
	return entries
}

func unitHeader(e Entry) string {
	return fmt.Sprintf("## Unit %d", e.Index+1)
}

// Combined joins the responses of completed entries into one document.
func Combined(entries []Entry, opts Options) string {
	var parts []string
	if opts.Title != "" {
		parts = append(parts, "# "+opts.Title)
	}
	for _, e := range entries {
		if !e.Completed() {
			continue
		}
		var b strings.Builder
		if opts.UnitHeaders {
			b.WriteString(unitHeader(e))
			b.WriteString("\n\n")
		}
		if opts.IncludeInput && e.Input != "" {
			b.WriteString(quote(e.Input))
			b.WriteString("\n\n")
		}
		b.WriteString(strings.TrimRight(e.Response, "\n"))
		parts = append(parts, b.String())
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "\n\n") + "\n"
}

// AppendTo adds the combined export to the end of an existing document.
func AppendTo(existing string, entries []Entry, opts Options) string {
	addition := Combined(entries, opts)
	if addition == "" {
		return existing
	}
	trimmed := strings.TrimRight(existing, "\n")
	if trimmed == "" {
		return addition
	}
	return trimmed + "\n\n" + addition
}

// ParseDelimiter reads a single-character delimiter. Empty means comma and
// the two-character escape \t means tab.
func ParseDelimiter(s string) (rune, error) {
	switch {
	case s == "":
		return ',', nil
	case s == `\t`:
		return '\t', nil
	case utf8.RuneCountInString(s) == 1:
		r, _ := utf8.DecodeRuneInString(s)
		return r, nil
	}
	return 0, fmt.Errorf("delimiter must be a single character, got %q", s)
}

// WriteCSV writes all entries as a delimited table with a header row. Unit
// numbers are 1-based and statuses title-cased.
func WriteCSV(w io.Writer, entries []Entry, delimiter rune) error {
	if delimiter == 0 {
		delimiter = ','
	}
	cw := csv.NewWriter(w)
	cw.Comma = delimiter
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("error writing header: %w", err)
	}

	title := cases.Title(language.English)
	for _, e := range entries {
		record := []string{strconv.Itoa(e.Index + 1), e.Input, e.Response, title.String(string(e.Status))}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("error writing unit %d: %w", e.Index+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Document is one exported document.
type Document struct {
	ID      string `json:"id"`
	RunID   string `json:"run_id,omitempty"`
	Index   int    `json:"index"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// DocumentID derives a stable identifier from a unit's index and text.
func DocumentID(e Entry) string {
	h := xxhash.New()
	_, _ = h.WriteString(strconv.Itoa(e.Index))
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(e.Input)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(e.Response)
	return fmt.Sprintf("%016x", h.Sum64())
}

// Documents makes one document per completed entry, in unit order.
func Documents(entries []Entry, opts Options) []Document {
	docs := make([]Document, 0, len(entries))
	for _, e := range entries {
		if !e.Completed() {
			continue
		}
		title := fmt.Sprintf("Unit %d", e.Index+1)
		if opts.Title != "" {
			title = opts.Title + " - " + title
		}
		content := strings.TrimRight(e.Response, "\n")
		if opts.IncludeInput && e.Input != "" {
			content = quote(e.Input) + "\n\n" + content
		}
		docs = append(docs, Document{
			ID:      DocumentID(e),
			RunID:   opts.RunID,
			Index:   e.Index,
			Title:   title,
			Content: content + "\n",
		})
	}
	return docs
}

func quote(text string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, l := range lines {
		if l == "" {
			lines[i] = ">"
			continue
		}
		lines[i] = "> " + l
	}
	return strings.Join(lines, "\n")
}
