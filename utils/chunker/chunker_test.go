package chunker

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func texts(units []Unit) []string {
	out := make([]string, len(units))
	for i, u := range units {
		out[i] = u.RawText
	}
	return out
}

func TestChunkTextModes(t *testing.T) {
	tests := []struct {
		name    string
		content string
		mode    Mode
		params  Params
		want    []string
	}{
		{
			name:    "none trims the whole document",
			content: "  one document \n",
			mode:    ModeNone,
			want:    []string{"one document"},
		},
		{
			name:    "newline drops empty lines",
			content: "alpha\n\n  beta  \r\ngamma\n",
			mode:    ModeNewline,
			want:    []string{"alpha", "beta", "gamma"},
		},
		{
			name:    "blank-line splits on runs of blank lines",
			content: "para one\nstill one\n\n\n  \npara two\n\npara three",
			mode:    ModeBlankLine,
			want:    []string{"para one\nstill one", "para two", "para three"},
		},
		{
			name:    "word-count groups words",
			content: "a b  c\nd e",
			mode:    ModeWordCount,
			params:  Params{Size: 2},
			want:    []string{"a b", "c d", "e"},
		},
		{
			name:    "character-count slices runes",
			content: "héllo wörld",
			mode:    ModeCharacterCount,
			params:  Params{Size: 4},
			want:    []string{"héll", "o wö", "rld"},
		},
		{
			name:    "character-count drops whitespace-only slices",
			content: "ab    cd",
			mode:    ModeCharacterCount,
			params:  Params{Size: 2},
			want:    []string{"ab", "cd"},
		},
		{
			name:    "custom separator",
			content: "one---two--- ---three",
			mode:    ModeCustomSeparator,
			params:  Params{Separator: "---"},
			want:    []string{"one", "two", "three"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			units, err := Chunk(tt.content, tt.mode, tt.params)
			if err != nil {
				t.Fatalf("Chunk error: %v", err)
			}
			if diff := cmp.Diff(tt.want, texts(units)); diff != "" {
				t.Errorf("units mismatch (-want +got):\n%s", diff)
			}
			for i, u := range units {
				if u.Index != i {
					t.Errorf("unit %d has index %d", i, u.Index)
				}
			}
		})
	}
}

func TestChunkEmptyContent(t *testing.T) {
	for _, mode := range Modes {
		params := Params{Size: 3, Separator: ","}
		units, err := Chunk("  \n\t", mode, params)
		if err != nil {
			t.Errorf("%s: unexpected error %v", mode, err)
		}
		if len(units) != 0 {
			t.Errorf("%s: got %d units, want 0", mode, len(units))
		}
	}
}

func TestChunkInvalidParams(t *testing.T) {
	if _, err := Chunk("a b", ModeWordCount, Params{Size: 0}); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("word-count size 0: got %v", err)
	}
	if _, err := Chunk("abc", ModeCharacterCount, Params{Size: -2}); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("character-count size -2: got %v", err)
	}
	if _, err := Chunk("a,b", ModeCustomSeparator, Params{}); !errors.Is(err, ErrEmptySeparator) {
		t.Errorf("empty separator: got %v", err)
	}
	if _, err := Chunk("a", Mode("sentences"), Params{}); err == nil {
		t.Error("unknown mode: expected error")
	}
}

func TestChunkIdempotent(t *testing.T) {
	content := "name;city\nAda;London\nLin;Taipei\n"
	first, err := Chunk(content, ModeTable, Params{})
	if err != nil {
		t.Fatal(err)
	}
	second, err := Chunk(content, ModeTable, Params{})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("chunking is not idempotent:\n%s", diff)
	}
}

func TestChunkTableMode(t *testing.T) {
	res, err := ChunkDocument("name,age\nAda,30\nLin,25", ModeTable, Params{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Mode != ModeTable {
		t.Fatalf("mode = %s, want table", res.Mode)
	}
	want := []Unit{
		{Index: 0, RawText: `{"name":"Ada","age":"30"}`, Row: map[string]string{"name": "Ada", "age": "30"}, Columns: []string{"name", "age"}},
		{Index: 1, RawText: `{"name":"Lin","age":"25"}`, Row: map[string]string{"name": "Lin", "age": "25"}, Columns: []string{"name", "age"}},
	}
	if diff := cmp.Diff(want, res.Units); diff != "" {
		t.Errorf("units mismatch (-want +got):\n%s", diff)
	}
}

func TestChunkTableRowLimit(t *testing.T) {
	units, err := Chunk("n,v\na,1\nb,2\nc,3\n", ModeTable, Params{RowLimit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{`{"n":"a","v":"1"}`, `{"n":"b","v":"2"}`}, texts(units)); diff != "" {
		t.Errorf("row limit mismatch:\n%s", diff)
	}
}

func TestChunkTableFallsBackToText(t *testing.T) {
	res, err := ChunkDocument("hello world\nthis is prose", ModeTable, Params{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Mode != ModeNone {
		t.Errorf("mode = %s, want none", res.Mode)
	}
	if len(res.Units) != 1 || res.Units[0].Row != nil {
		t.Errorf("units = %+v", res.Units)
	}
	if len(res.Warnings) == 0 {
		t.Error("expected a fallback warning")
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode(""); err != nil || m != ModeNone {
		t.Errorf("ParseMode(\"\") = %v, %v", m, err)
	}
	if m, err := ParseMode("blank-line"); err != nil || m != ModeBlankLine {
		t.Errorf("ParseMode(blank-line) = %v, %v", m, err)
	}
	if _, err := ParseMode("paragraph"); err == nil {
		t.Error("expected error for unknown mode")
	}
}
