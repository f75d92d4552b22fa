package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/kris-hansen/workbench/utils/chunker"
	"github.com/kris-hansen/workbench/utils/config"
	"github.com/kris-hansen/workbench/utils/export"
	"github.com/kris-hansen/workbench/utils/fileutil"
	"github.com/kris-hansen/workbench/utils/models"
	"github.com/kris-hansen/workbench/utils/processor"
	"github.com/spf13/cobra"
)

// newCompleter builds the completion backend for a run. Tests replace it.
var newCompleter = func(cfg *config.EnvConfig) models.Completer {
	router := models.NewRouter(cfg)
	router.SetVerbose(verbose || debug)
	return router
}

// outputFlags control where and how run results are written.
type outputFlags struct {
	format       string
	output       string
	delimiter    string
	responseKey  string
	title        string
	unitHeaders  bool
	includeInput bool
	appendTo     string
	outDir       string
	db           bool
	dsn          string
	table        string
	streamLog    string
	quiet        bool
}

func (f *outputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.format, "format", "f", "text", "output format: text, json, csv")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "write output to this file instead of STDOUT")
	cmd.Flags().StringVar(&f.delimiter, "delimiter", ",", `CSV delimiter (use \t for tab)`)
	cmd.Flags().StringVar(&f.responseKey, "response-key", "", "context key (dotted path) to export instead of the last prompt output")
	cmd.Flags().StringVar(&f.title, "title", "", "title of the combined document")
	cmd.Flags().BoolVar(&f.unitHeaders, "unit-headers", false, "add a '## Unit N' header before each response")
	cmd.Flags().BoolVar(&f.includeInput, "include-input", false, "quote each unit's input above its response")
	cmd.Flags().StringVar(&f.appendTo, "append-to", "", "append the combined responses to this document")
	cmd.Flags().StringVar(&f.outDir, "out-dir", "", "write one Markdown document per completed unit into this directory")
	cmd.Flags().BoolVar(&f.db, "db", false, "store one document per completed unit in Postgres")
	cmd.Flags().StringVar(&f.dsn, "dsn", "", "Postgres DSN (defaults to database.dsn from the configuration)")
	cmd.Flags().StringVar(&f.table, "table", "", "Postgres table for --db (defaults to database.table)")
	cmd.Flags().StringVar(&f.streamLog, "stream-log", "", "write real-time progress to file (use with tail -f for monitoring)")
	cmd.Flags().BoolVarP(&f.quiet, "quiet", "q", false, "do not print the run summary")
}

func (f *outputFlags) options(runID string) export.Options {
	return export.Options{
		Title:        f.title,
		UnitHeaders:  f.unitHeaders,
		IncludeInput: f.includeInput,
		RunID:        runID,
	}
}

type runFunc func(ctx context.Context, proc *processor.Processor) (*processor.RunResult, error)

// executeRun runs fn with progress display, then writes every requested
// output. SIGINT cancels the run; results of finished units are still written.
func executeRun(cmd *cobra.Command, chunks *chunker.Result, out *outputFlags, fn runFunc) error {
	switch out.format {
	case "text", "json", "csv":
	default:
		return fmt.Errorf("unknown output format %q (use text, json or csv)", out.format)
	}

	for _, w := range chunks.Warnings {
		log.Printf("[WARN] %s\n", w)
	}
	if len(chunks.Units) == 0 {
		log.Printf("[WARN] Input produced no units\n")
	}

	proc := processor.NewProcessor(newCompleter(envConfig), processor.OptionsFromConfig(envConfig, verbose || debug))

	styler := processor.NewStyler(nil)
	spinner := processor.NewSpinner(os.Stderr)
	progress := processor.MultiProgress{spinner}
	if verbose || debug {
		spinner.Disable()
		progress = append(progress, processor.ProgressFunc(func(u processor.ProgressUpdate) error {
			if u.Type == processor.ProgressLog && u.Log != nil {
				log.Printf("%s\n", styler.LogLine(*u.Log))
			}
			return nil
		}))
	}
	proc.SetProgressWriter(progress)

	if out.streamLog != "" {
		sl, err := processor.NewStreamLogger(out.streamLog)
		if err != nil {
			log.Printf("Warning: Failed to set up stream log: %v\n", err)
		} else {
			log.Printf("Stream logging to: %s (use 'tail -f %s' to monitor)\n", out.streamLog, out.streamLog)
			proc.SetStreamLogger(sl)
			defer sl.Close()
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	res, err := fn(ctx, proc)
	stop()
	spinner.Stop()
	if err != nil {
		return err
	}

	if !out.quiet {
		fmt.Fprintln(cmd.ErrOrStderr(), styler.Summary(res))
	}
	if err := writeOutputs(cmd.Context(), cmd.OutOrStdout(), res, out); err != nil {
		return err
	}
	if res.Cancelled {
		counts := res.Counts()
		return fmt.Errorf("run interrupted: %d of %d units completed", counts[processor.StatusCompleted], len(res.Units))
	}
	return nil
}

func writeOutputs(ctx context.Context, stdout io.Writer, res *processor.RunResult, out *outputFlags) error {
	entries := export.EntriesFromRun(res, out.responseKey)
	opts := out.options(res.RunID)

	var buf bytes.Buffer
	switch out.format {
	case "json":
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return fmt.Errorf("error encoding result: %w", err)
		}
	case "csv":
		delim, err := export.ParseDelimiter(out.delimiter)
		if err != nil {
			return err
		}
		if err := export.WriteCSV(&buf, entries, delim); err != nil {
			return fmt.Errorf("error writing CSV: %w", err)
		}
	default:
		buf.WriteString(export.Combined(entries, opts))
	}

	if out.output != "" {
		if err := fileutil.WriteFile(out.output, buf.Bytes()); err != nil {
			return fmt.Errorf("error writing output: %w", err)
		}
		config.VerboseLog("Wrote %s output to %s", out.format, out.output)
	} else if _, err := stdout.Write(buf.Bytes()); err != nil {
		return err
	}

	if out.appendTo != "" {
		existing, err := os.ReadFile(out.appendTo)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("error reading %s: %w", out.appendTo, err)
		}
		doc := export.AppendTo(string(existing), entries, opts)
		if err := fileutil.WriteFile(out.appendTo, []byte(doc)); err != nil {
			return fmt.Errorf("error appending to %s: %w", out.appendTo, err)
		}
		config.VerboseLog("Appended responses to %s", out.appendTo)
	}

	if out.outDir == "" && !out.db {
		return nil
	}
	docs := export.Documents(entries, opts)
	if out.outDir != "" {
		if err := (export.FileSink{Dir: out.outDir}).Write(ctx, docs); err != nil {
			return fmt.Errorf("error writing documents: %w", err)
		}
		config.VerboseLog("Wrote %d documents to %s", len(docs), out.outDir)
	}
	if out.db {
		if err := storeDocuments(ctx, docs, out); err != nil {
			return err
		}
	}
	return nil
}

func storeDocuments(ctx context.Context, docs []export.Document, out *outputFlags) error {
	dsn, table := out.dsn, out.table
	if envConfig != nil {
		if dsn == "" {
			dsn = envConfig.Database.DSN
		}
		if table == "" {
			table = envConfig.Database.Table
		}
	}
	sink, err := export.OpenPostgres(dsn, table)
	if err != nil {
		return fmt.Errorf("error opening document store: %w", err)
	}
	defer sink.Close()
	if err := sink.Write(ctx, docs); err != nil {
		return fmt.Errorf("error storing documents: %w", err)
	}
	return nil
}
