package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kris-hansen/workbench/utils/processor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRun() *processor.RunResult {
	return &processor.RunResult{
		RunID: "run-1",
		Units: []processor.UnitResult{
			{Index: 0, Input: "Ada, 30", Status: processor.StatusCompleted, Response: "Hello Ada"},
			{Index: 1, Input: `Lin said "hi"`, Status: processor.StatusFailed, Error: "boom"},
			{Index: 2, Input: "multi\nline", Status: processor.StatusCompleted, Response: "Second"},
			{Index: 3, Input: "later", Status: processor.StatusCancelled},
		},
		PerUnit: []processor.Snapshot{
			{Index: 0, Context: processor.Vars{"review": map[string]interface{}{"score": float64(9)}}},
			{Index: 2, Context: processor.Vars{"review": map[string]interface{}{"score": 0.5}}},
		},
	}
}

func TestEntriesFromRun(t *testing.T) {
	entries := EntriesFromRun(sampleRun(), "")
	require.Len(t, entries, 4)
	assert.Equal(t, "Hello Ada", entries[0].Response)
	assert.Equal(t, processor.StatusFailed, entries[1].Status)
	assert.Equal(t, 3, entries[3].Index)

	byKey := EntriesFromRun(sampleRun(), "review.score")
	assert.Equal(t, "9", byKey[0].Response)
	assert.Equal(t, "", byKey[1].Response)
	assert.Equal(t, "0.5", byKey[2].Response)

	assert.Nil(t, EntriesFromRun(nil, ""))
}

func TestCombined(t *testing.T) {
	entries := EntriesFromRun(sampleRun(), "")

	assert.Equal(t, "Hello Ada\n\nSecond\n", Combined(entries, Options{}))

	withHeaders := Combined(entries, Options{Title: "Results", UnitHeaders: true})
	assert.Equal(t, "# Results\n\n## Unit 1\n\nHello Ada\n\n## Unit 3\n\nSecond\n", withHeaders)

	withInput := Combined(entries[2:3], Options{IncludeInput: true})
	assert.Equal(t, "> multi\n> line\n\nSecond\n", withInput)

	assert.Equal(t, "", Combined(entries[1:2], Options{}))
}

func TestAppendTo(t *testing.T) {
	entries := EntriesFromRun(sampleRun(), "")
	assert.Equal(t, "Notes\n\nHello Ada\n\nSecond\n", AppendTo("Notes\n\n\n", entries, Options{}))
	assert.Equal(t, "Hello Ada\n\nSecond\n", AppendTo("", entries, Options{}))
	assert.Equal(t, "unchanged", AppendTo("unchanged", nil, Options{}))
}

func TestWriteCSV(t *testing.T) {
	entries := EntriesFromRun(sampleRun(), "")

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, entries, ','))

	want := "Unit #,Original Text,Response,Status\n" +
		"1,\"Ada, 30\",Hello Ada,Completed\n" +
		"2,\"Lin said \"\"hi\"\"\",,Failed\n" +
		"3,\"multi\nline\",Second,Completed\n" +
		"4,later,,Cancelled\n"
	assert.Equal(t, want, buf.String())

	// round-trips through a standard reader
	records, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 5)
	assert.Equal(t, `Lin said "hi"`, records[2][1])
	assert.Equal(t, "multi\nline", records[3][1])
}

func TestWriteCSVSemicolon(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []Entry{{Index: 0, Input: "a;b", Response: "c", Status: processor.StatusSkipped}}, ';'))
	assert.Equal(t, "Unit #;Original Text;Response;Status\n1;\"a;b\";c;Skipped\n", buf.String())
}

func TestDocuments(t *testing.T) {
	entries := EntriesFromRun(sampleRun(), "")
	docs := Documents(entries, Options{Title: "Batch", RunID: "run-1"})
	require.Len(t, docs, 2)

	assert.Equal(t, "Batch - Unit 1", docs[0].Title)
	assert.Equal(t, "Hello Ada\n", docs[0].Content)
	assert.Equal(t, 2, docs[1].Index)
	assert.Equal(t, "run-1", docs[1].RunID)
	assert.Len(t, docs[0].ID, 16)
	assert.NotEqual(t, docs[0].ID, docs[1].ID)

	again := Documents(EntriesFromRun(sampleRun(), ""), Options{})
	assert.Equal(t, docs[0].ID, again[0].ID, "IDs are stable across exports")
	assert.Equal(t, "Unit 1", again[0].Title)
}

func TestFileSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	docs := Documents(EntriesFromRun(sampleRun(), ""), Options{Title: "Batch"})

	sink := FileSink{Dir: dir, Concurrency: 2}
	require.NoError(t, sink.Write(context.Background(), docs))

	for _, d := range docs {
		data, err := os.ReadFile(sink.PathFor(d))
		require.NoError(t, err)
		assert.Equal(t, "# "+d.Title+"\n\n"+d.Content, string(data))
	}
	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestFileSinkCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	docs := Documents(EntriesFromRun(sampleRun(), ""), Options{})
	err := FileSink{Dir: t.TempDir()}.Write(ctx, docs)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPostgresSinkConfig(t *testing.T) {
	_, err := OpenPostgres("", "")
	assert.Error(t, err)

	_, err = OpenPostgres("postgres://localhost/db?sslmode=disable", "bad name;")
	assert.Error(t, err)

	sink, err := OpenPostgres("postgres://localhost/db?sslmode=disable", "")
	require.NoError(t, err)
	defer sink.Close()
	assert.Equal(t, defaultTable, sink.table)
	assert.Contains(t, sink.createTableSQL(), `CREATE TABLE IF NOT EXISTS "workbench_documents"`)
	assert.Contains(t, sink.insertSQL(), `INSERT INTO "workbench_documents"`)
	assert.Contains(t, sink.insertSQL(), "ON CONFLICT (id)")
}

func TestParseDelimiter(t *testing.T) {
	tests := []struct {
		in      string
		want    rune
		wantErr bool
	}{
		{in: "", want: ','},
		{in: ";", want: ';'},
		{in: `\t`, want: '\t'},
		{in: "\t", want: '\t'},
		{in: "|", want: '|'},
		{in: "ab", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseDelimiter(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
