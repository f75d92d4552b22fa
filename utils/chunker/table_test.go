package chunker

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDetectTable(t *testing.T) {
	tbl, ok := DetectTable("a,b\n1,2\n3,4")
	if !ok {
		t.Fatal("expected table")
	}
	if diff := cmp.Diff([]string{"a", "b"}, tbl.Headers); diff != "" {
		t.Errorf("headers mismatch:\n%s", diff)
	}
	if len(tbl.Rows) != 2 {
		t.Errorf("rows = %d, want 2", len(tbl.Rows))
	}

	if _, ok := DetectTable("hello world"); ok {
		t.Error("plain text detected as table")
	}
}

func TestDetectTableHeuristics(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    bool
	}{
		{"header only", "a,b,c\n", false},
		{"single column", "name\nAda\nLin", false},
		{"mostly empty rows", "a,b,c,d\n1,,,\n,,,\n,,,2\n,,,\n", false},
		{"sparse but acceptable", "a,b,c\n1,,\n2,,\n3,x,\n", true},
		{"semicolon table", "x;y\n1;2\n", true},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, got := DetectTable(tt.content); got != tt.want {
				t.Errorf("DetectTable(%q) = %v, want %v", tt.content, got, tt.want)
			}
		})
	}
}

func TestDetectDelimiter(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    rune
	}{
		{"comma", "a,b,c\n1,2,3", ','},
		{"semicolon", "a;b;c\n1;2;3", ';'},
		{"tab", "a\tb\n1\t2", '\t'},
		{"pipe", "a|b|c\n1|2|3", '|'},
		{"quoted commas ignored", "\"x,y,z\";b\n\"1,2,3\";2", ';'},
		{"tie resolves to comma", "a;b,c\n", ','},
		{"nothing resolves to comma", "plain words", ','},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectDelimiter(tt.content); got != tt.want {
				t.Errorf("DetectDelimiter = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseTableRepeatedHeaders(t *testing.T) {
	tbl, err := ParseTable("name,name,name_2,,note,note\nAda,Lovelace,x,y,a,b\n", ',')
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"name", "name_2", "name_2_2", "column_4", "note", "note_2"}
	if diff := cmp.Diff(want, tbl.Headers); diff != "" {
		t.Errorf("headers mismatch:\n%s", diff)
	}
	rec := tbl.Record(0)
	if rec["name"] != "Ada" || rec["name_2"] != "Lovelace" || rec["note_2"] != "b" {
		t.Errorf("Record = %v", rec)
	}
	if got := tbl.RowJSON(0); got != `{"name":"Ada","name_2":"Lovelace","name_2_2":"x","column_4":"y","note":"a","note_2":"b"}` {
		t.Errorf("RowJSON = %s", got)
	}
}

func TestParseTableShapes(t *testing.T) {
	tbl, err := ParseTable("name,,note\n\"Ada, Countess\",1\nLin,2,\"said \"\"hi\"\"\",extra\n", ',')
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"name", "column_2", "note"}, tbl.Headers); diff != "" {
		t.Errorf("headers mismatch:\n%s", diff)
	}
	want := [][]string{
		{"Ada, Countess", "1", ""},
		{"Lin", "2", `said "hi"`},
	}
	if diff := cmp.Diff(want, tbl.Rows); diff != "" {
		t.Errorf("rows mismatch:\n%s", diff)
	}
	if got := tbl.RowJSON(1); got != `{"name":"Lin","column_2":"2","note":"said \"hi\""}` {
		t.Errorf("RowJSON = %s", got)
	}
}
