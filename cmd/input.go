package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/kris-hansen/workbench/utils/chunker"
	"github.com/kris-hansen/workbench/utils/config"
	"github.com/kris-hansen/workbench/utils/filescan"
	"github.com/kris-hansen/workbench/utils/fileutil"
	"github.com/spf13/cobra"
)

// stdin is swapped in tests.
var stdin io.Reader = os.Stdin

// readInput returns the contents of path, or STDIN when path is empty or "-".
func readInput(path string) (string, error) {
	return fileutil.ReadInput(path, stdin)
}

// chunkFlags are the splitting options shared by commands that take input.
type chunkFlags struct {
	mode      string
	size      int
	separator string
	rowLimit  int
	inputDir  string
	exclude   []string
	exts      []string
}

func (f *chunkFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.mode, "mode", "none", "chunk mode: none, newline, blank-line, word-count, character-count, custom-separator, table")
	cmd.Flags().IntVar(&f.size, "size", 0, "words or characters per unit (word-count, character-count)")
	cmd.Flags().StringVar(&f.separator, "separator", "", "separator for custom-separator mode")
	cmd.Flags().IntVar(&f.rowLimit, "row-limit", 0, "process at most this many table rows (0 = all)")
	cmd.Flags().StringVar(&f.inputDir, "input-dir", "", "use every text file under this directory as one unit")
	cmd.Flags().StringSliceVar(&f.exclude, "exclude", nil, "gitignore-style patterns to skip with --input-dir")
	cmd.Flags().StringSliceVar(&f.exts, "ext", nil, "only read files with these extensions with --input-dir")
}

// fromDir scans the input directory; each file becomes one unit.
func (f *chunkFlags) fromDir() (*chunker.Result, error) {
	if f.mode != "" && f.mode != string(chunker.ModeNone) {
		return nil, fmt.Errorf("--input-dir makes one unit per file and cannot be combined with --mode %s", f.mode)
	}
	opts := filescan.DefaultOptions()
	opts.Exclude = f.exclude
	opts.Extensions = f.exts
	scan, err := filescan.Scan(f.inputDir, opts)
	if err != nil {
		return nil, fmt.Errorf("error scanning %s: %w", f.inputDir, err)
	}
	config.VerboseLog("Found %d files under %s (%d ignored)", len(scan.Files), scan.Root, scan.Ignored)
	return scan.Units()
}

// load reads the units for a command: the input directory when set,
// otherwise the input file or STDIN split by mode.
func (f *chunkFlags) load(inputPath string) (*chunker.Result, error) {
	if f.inputDir != "" {
		if inputPath != "" {
			return nil, fmt.Errorf("give either an input file or --input-dir, not both")
		}
		return f.fromDir()
	}
	content, err := readInput(inputPath)
	if err != nil {
		return nil, err
	}
	return f.split(content)
}

func (f *chunkFlags) split(content string) (*chunker.Result, error) {
	mode, err := chunker.ParseMode(f.mode)
	if err != nil {
		return nil, err
	}
	res, err := chunker.ChunkDocument(content, mode, chunker.Params{
		Size:      f.size,
		Separator: f.separator,
		RowLimit:  f.rowLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("error chunking input: %w", err)
	}
	return res, nil
}
