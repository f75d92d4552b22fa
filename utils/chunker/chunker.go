// Package chunker splits a document into the process units a workflow runs over.
package chunker

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Mode selects how content is split.
type Mode string

const (
	ModeNone            Mode = "none"
	ModeNewline         Mode = "newline"
	ModeBlankLine       Mode = "blank-line"
	ModeWordCount       Mode = "word-count"
	ModeCharacterCount  Mode = "character-count"
	ModeCustomSeparator Mode = "custom-separator"
	ModeTable           Mode = "table"
)

// Modes lists every supported mode.
var Modes = []Mode{ModeNone, ModeNewline, ModeBlankLine, ModeWordCount, ModeCharacterCount, ModeCustomSeparator, ModeTable}

var (
	ErrInvalidSize    = errors.New("chunk size must be at least 1")
	ErrEmptySeparator = errors.New("custom separator must not be empty")
)

var blankLineRun = regexp.MustCompile(`\n\s*\n`)

// Params are the mode-specific chunking parameters.
type Params struct {
	// Size is the word or character count per unit.
	Size int
	// Separator is the literal string for custom-separator mode.
	Separator string
	// RowLimit truncates table units; 0 means unlimited.
	RowLimit int
}

// Unit is one item pushed through the workflow.
type Unit struct {
	Index   int
	RawText string
	// Row and Columns are set in table mode only.
	Row     map[string]string
	Columns []string
}

// Result carries the units plus what the chunker actually did.
type Result struct {
	Mode     Mode
	Units    []Unit
	Table    *Table
	Warnings []string
}

// ParseMode validates a mode name. An empty name means none.
func ParseMode(s string) (Mode, error) {
	if s == "" {
		return ModeNone, nil
	}
	for _, m := range Modes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown chunk mode %q", s)
}

// Chunk splits content into units.
func Chunk(content string, mode Mode, params Params) ([]Unit, error) {
	res, err := ChunkDocument(content, mode, params)
	if err != nil {
		return nil, err
	}
	return res.Units, nil
}

// ChunkDocument splits content and reports the effective mode. Table mode
// falls back to none when the content is not tabular.
func ChunkDocument(content string, mode Mode, params Params) (*Result, error) {
	if err := validate(mode, params); err != nil {
		return nil, err
	}

	res := &Result{Mode: mode}
	if strings.TrimSpace(content) == "" {
		return res, nil
	}
	content = normalizeNewlines(content)

	var fragments []string
	switch mode {
	case ModeTable:
		if t, ok := DetectTable(content); ok {
			res.Table = t
			res.Units = tableUnits(t, params.RowLimit)
			return res, nil
		}
		res.Mode = ModeNone
		res.Warnings = append(res.Warnings, "content is not tabular; processing as a single text unit")
		fragments = []string{content}
	case ModeNone:
		fragments = []string{content}
	case ModeNewline:
		fragments = strings.Split(content, "\n")
	case ModeBlankLine:
		fragments = blankLineRun.Split(content, -1)
	case ModeCustomSeparator:
		fragments = strings.Split(content, params.Separator)
	case ModeWordCount:
		res.Units = numbered(wordGroups(content, params.Size))
		return res, nil
	case ModeCharacterCount:
		res.Units = numbered(runeSlices(content, params.Size))
		return res, nil
	}

	texts := make([]string, 0, len(fragments))
	for _, f := range fragments {
		if f = strings.TrimSpace(f); f != "" {
			texts = append(texts, f)
		}
	}
	res.Units = numbered(texts)
	return res, nil
}

func validate(mode Mode, params Params) error {
	switch mode {
	case ModeWordCount, ModeCharacterCount:
		if params.Size < 1 {
			return fmt.Errorf("%s: %w (got %d)", mode, ErrInvalidSize, params.Size)
		}
	case ModeCustomSeparator:
		if params.Separator == "" {
			return ErrEmptySeparator
		}
	case ModeNone, ModeNewline, ModeBlankLine, ModeTable:
	default:
		return fmt.Errorf("unknown chunk mode %q", mode)
	}
	if params.RowLimit < 0 {
		return fmt.Errorf("row limit must not be negative (got %d)", params.RowLimit)
	}
	return nil
}

func tableUnits(t *Table, limit int) []Unit {
	n := len(t.Rows)
	if limit > 0 && limit < n {
		n = limit
	}
	units := make([]Unit, n)
	for i := 0; i < n; i++ {
		units[i] = Unit{
			Index:   i,
			RawText: t.RowJSON(i),
			Row:     t.Record(i),
			Columns: t.Headers,
		}
	}
	return units
}

func wordGroups(content string, size int) []string {
	words := strings.Fields(content)
	var groups []string
	for start := 0; start < len(words); start += size {
		end := min(start+size, len(words))
		groups = append(groups, strings.Join(words[start:end], " "))
	}
	return groups
}

func runeSlices(content string, size int) []string {
	runes := []rune(content)
	var slices []string
	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		s := string(runes[start:end])
		if strings.TrimSpace(s) != "" {
			slices = append(slices, s)
		}
	}
	return slices
}

func numbered(texts []string) []Unit {
	units := make([]Unit, len(texts))
	for i, t := range texts {
		units[i] = Unit{Index: i, RawText: t}
	}
	return units
}
