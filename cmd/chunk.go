package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/cobra"
)

var chunkOpts chunkFlags
var chunkJSON bool

var chunkCmd = &cobra.Command{
	Use:   "chunk [input]",
	Short: "Preview how input is split into units",
	Example: `  # Show the rows of a CSV file as units
  workbench chunk data.csv --mode table

  # Split STDIN into 200-word units
  cat book.txt | workbench chunk --mode word-count --size 200`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		inputPath := ""
		if len(args) > 0 {
			inputPath = args[0]
		}
		res, err := chunkOpts.load(inputPath)
		if err != nil {
			return err
		}
		for _, w := range res.Warnings {
			log.Printf("[WARN] %s\n", w)
		}

		out := cmd.OutOrStdout()
		if chunkJSON {
			type unitJSON struct {
				Index int               `json:"index"`
				Text  string            `json:"text"`
				Row   map[string]string `json:"row,omitempty"`
			}
			units := make([]unitJSON, len(res.Units))
			for i, u := range res.Units {
				units[i] = unitJSON{Index: u.Index, Text: u.RawText, Row: u.Row}
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]interface{}{"mode": res.Mode, "units": units})
		}

		fmt.Fprintf(out, "%d units (mode %s)\n", len(res.Units), res.Mode)
		for _, u := range res.Units {
			fmt.Fprintf(out, "\n--- unit %d ---\n%s\n", u.Index+1, strings.TrimRight(u.RawText, "\n"))
		}
		return nil
	},
}

func init() {
	chunkOpts.register(chunkCmd)
	chunkCmd.Flags().BoolVar(&chunkJSON, "json", false, "print units as JSON")
	rootCmd.AddCommand(chunkCmd)
}
