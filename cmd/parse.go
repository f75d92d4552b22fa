package cmd

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/kris-hansen/workbench/utils/fileutil"
	"github.com/kris-hansen/workbench/utils/workflow"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var parseSerialize bool
var parseJSON bool

var parseCmd = &cobra.Command{
	Use:   "parse <workflow>",
	Short: "Check a workflow script and list its nodes",
	Long: `Parse a workflow script and report its nodes and authoring warnings.
Warnings never stop a run; a script without a node list is an error.`,
	Example: `  # List nodes and warnings
  workbench parse triage.yaml

  # Print the script in canonical form
  workbench parse triage.yaml --serialize`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		script, err := fileutil.ReadInput(args[0], nil)
		if err != nil {
			return fmt.Errorf("error reading workflow: %w", err)
		}
		wf, err := workflow.Parse(script)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		switch {
		case parseJSON:
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]interface{}{
				"name":     wf.Name,
				"nodes":    wf.Nodes,
				"warnings": warningLines(wf.Warnings),
			})
		case parseSerialize:
			text := workflow.Serialize(wf)
			var doc map[string]interface{}
			if err := yaml.Unmarshal([]byte(text), &doc); err != nil {
				log.Printf("[WARN] Serialized script is not standard YAML: %v\n", err)
			}
			fmt.Fprint(out, text)
			return nil
		}

		if wf.Name != "" {
			fmt.Fprintf(out, "Workflow: %s\n", wf.Name)
		}
		fmt.Fprintf(out, "Nodes (%d):\n", len(wf.Nodes))
		for i, n := range wf.Nodes {
			fmt.Fprintf(out, "  %d. %s [%s]\n", i+1, n.ID, n.Type)
		}
		if len(wf.Warnings) > 0 {
			fmt.Fprintf(out, "Warnings (%d):\n", len(wf.Warnings))
			for _, w := range warningLines(wf.Warnings) {
				fmt.Fprintf(out, "  - %s\n", w)
			}
		}
		return nil
	},
}

func warningLines(ws []workflow.Warning) []string {
	lines := make([]string, len(ws))
	for i, w := range ws {
		lines[i] = w.String()
	}
	return lines
}

func init() {
	parseCmd.Flags().BoolVar(&parseSerialize, "serialize", false, "print the script in canonical form")
	parseCmd.Flags().BoolVar(&parseJSON, "json", false, "print nodes and warnings as JSON")
	rootCmd.AddCommand(parseCmd)
}
