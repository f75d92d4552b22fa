package chunker

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Candidate delimiters in tie-break order.
var delimiterCandidates = []rune{',', ';', '\t', '|'}

const (
	sampleLines         = 10
	minFilledRowShare   = 0.7
	minFilledCellsShare = 0.3
)

// Table is a parsed delimited table.
type Table struct {
	Delimiter rune
	Headers   []string
	Rows      [][]string
}

// DetectDelimiter counts unquoted occurrences of each candidate over the
// first non-empty lines. The highest count wins; ties resolve to comma.
func DetectDelimiter(content string) rune {
	counts := make(map[rune]int, len(delimiterCandidates))
	seen := 0
	for _, line := range strings.Split(normalizeNewlines(content), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		inQuotes := false
		for _, r := range line {
			if r == '"' {
				inQuotes = !inQuotes
				continue
			}
			if inQuotes {
				continue
			}
			for _, c := range delimiterCandidates {
				if r == c {
					counts[c]++
				}
			}
		}
		seen++
		if seen >= sampleLines {
			break
		}
	}

	best, bestCount, tied := ',', 0, false
	for _, c := range delimiterCandidates {
		switch n := counts[c]; {
		case n > bestCount:
			best, bestCount, tied = c, n, false
		case n == bestCount && n > 0:
			tied = true
		}
	}
	if tied || bestCount == 0 {
		return ','
	}
	return best
}

// ParseTable parses content as a delimited table with a header row.
func ParseTable(content string, delimiter rune) (*Table, error) {
	r := csv.NewReader(strings.NewReader(normalizeNewlines(content)))
	r.Comma = delimiter
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	var records [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse table: %w", err)
		}
		if isBlankRecord(rec) {
			continue
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("table has no header row")
	}

	// blank headers become column_<n>; repeats get a _2, _3, ... suffix
	headers := make([]string, len(records[0]))
	seen := make(map[string]bool, len(headers))
	for i, h := range records[0] {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("column_%d", i+1)
		}
		if seen[h] {
			base := h
			for n := 2; seen[h]; n++ {
				h = fmt.Sprintf("%s_%d", base, n)
			}
		}
		seen[h] = true
		headers[i] = h
	}

	rows := make([][]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make([]string, len(headers))
		for i := range row {
			if i < len(rec) {
				row[i] = strings.TrimSpace(rec[i])
			}
		}
		rows = append(rows, row)
	}

	return &Table{Delimiter: delimiter, Headers: headers, Rows: rows}, nil
}

// DetectTable reports whether content looks like a delimited table and
// returns the parsed table when it does.
func DetectTable(content string) (*Table, bool) {
	if strings.TrimSpace(content) == "" {
		return nil, false
	}
	t, err := ParseTable(content, DetectDelimiter(content))
	if err != nil {
		return nil, false
	}
	return t, t.valid()
}

func (t *Table) valid() bool {
	if len(t.Headers) < 2 || len(t.Rows) < 1 {
		return false
	}
	sample := t.Rows
	if len(sample) > sampleLines {
		sample = sample[:sampleLines]
	}
	filled := 0
	for _, row := range sample {
		nonEmpty := 0
		for _, cell := range row {
			if cell != "" {
				nonEmpty++
			}
		}
		if float64(nonEmpty) >= minFilledCellsShare*float64(len(t.Headers)) {
			filled++
		}
	}
	return float64(filled) >= minFilledRowShare*float64(len(sample))
}

// Record maps header names to the cells of row i.
func (t *Table) Record(i int) map[string]string {
	rec := make(map[string]string, len(t.Headers))
	for j, h := range t.Headers {
		rec[h] = t.Rows[i][j]
	}
	return rec
}

// RowJSON serializes row i as a JSON object with keys in header order.
func (t *Table) RowJSON(i int) string {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for j, h := range t.Headers {
		if j > 0 {
			buf.WriteByte(',')
		}
		writeJSONString(&buf, h)
		buf.WriteByte(':')
		writeJSONString(&buf, t.Rows[i][j])
	}
	buf.WriteByte('}')
	return buf.String()
}

func writeJSONString(buf *bytes.Buffer, s string) {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	// Encode appends a newline
	buf.Truncate(buf.Len() - 1)
}

func isBlankRecord(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "\r\n", "\n"), "\r", "\n")
}
