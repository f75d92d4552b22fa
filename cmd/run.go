package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kris-hansen/workbench/utils/fileutil"
	"github.com/kris-hansen/workbench/utils/processor"
	"github.com/kris-hansen/workbench/utils/workflow"
	"github.com/spf13/cobra"
)

var runChunk chunkFlags
var runOutput outputFlags

var runCmd = &cobra.Command{
	Use:   "run <workflow> [input]",
	Short: "Execute a workflow script over a document or table",
	Long: `Execute a workflow script over every unit of the input. The input is read
from the given file or from STDIN, split with --mode, and each unit runs
through the workflow's nodes in order.

Responses are printed as one combined document by default. Use --format
csv for the four-column table or --format json for the full run result.`,
	Example: `  # Run a workflow over every row of a CSV file
  workbench run triage.yaml tickets.csv --mode table

  # Split paragraphs and append the responses to notes.md
  cat report.txt | workbench run summarize.yaml --mode blank-line --append-to notes.md

  # Export a table of results
  workbench run classify.yaml rows.csv --mode table --format csv -o results.csv

  # Monitor a long run in real time
  workbench run triage.yaml big.csv --mode table --stream-log /tmp/run.log`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		script, err := fileutil.ReadInput(args[0], nil)
		if err != nil {
			return fmt.Errorf("error reading workflow: %w", err)
		}
		wf, err := workflow.Parse(script)
		if err != nil {
			return fmt.Errorf("error parsing workflow %s: %w", args[0], err)
		}

		inputPath := ""
		if len(args) > 1 {
			inputPath = args[1]
		}
		chunks, err := runChunk.load(inputPath)
		if err != nil {
			return err
		}

		name := wf.Name
		if name == "" {
			name = filepath.Base(args[0])
		}
		if verbose {
			printWorkflowSummary(name, wf, len(chunks.Units))
		}

		return executeRun(cmd, chunks, &runOutput, func(ctx context.Context, proc *processor.Processor) (*processor.RunResult, error) {
			return proc.Run(ctx, wf, chunks.Units)
		})
	},
}

func printWorkflowSummary(name string, wf *workflow.Workflow, units int) {
	styler := processor.NewStyler(nil)
	fmt.Fprintln(os.Stderr, styler.Box(fmt.Sprintf("Workflow %s: %d nodes over %d units", name, len(wf.Nodes), units)))
	for _, n := range wf.Nodes {
		fmt.Fprintf(os.Stderr, "- %s (%s)\n", n.ID, n.Type)
	}
}

func init() {
	runChunk.register(runCmd)
	runOutput.register(runCmd)
	rootCmd.AddCommand(runCmd)
}
