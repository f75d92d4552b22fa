package cmd

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/kris-hansen/workbench/utils/config"
	"github.com/spf13/cobra"
)

// version is set at build time.
var version string

var verbose bool
var debug bool

// envConfig holds the loaded configuration, available to all commands
var envConfig *config.EnvConfig

// logFile is closed when the command finishes
var logFile *os.File

var rootCmd = &cobra.Command{
	Use:   "workbench",
	Short: "Run prompt workflows over documents and tables",
	Long: `Workbench splits a document or table into units and runs a workflow of
func, prompt and print nodes over every unit.

Getting Started:
  1. workbench chunk data.csv --mode table     Preview how input is split
  2. workbench parse triage.yaml               Check a workflow script
  3. workbench run triage.yaml data.csv        Execute it

Configuration is stored in ~/.workbench/config.yaml (override with WORKBENCH_ENV).`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		log.SetFlags(0)

		if logFileName := os.Getenv("WORKBENCH_LOG_FILE"); logFileName != "" {
			if file, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666); err == nil {
				logFile = file
				log.SetOutput(file)
				log.Printf("[INFO] Logging session started at %s\n", time.Now().Format(time.RFC3339))
			} else {
				log.Printf("[WARN] Failed to open log file '%s': %v. Continuing with stderr logging.\n", logFileName, err)
			}
		}

		config.Verbose = verbose
		config.Debug = debug

		envPath := config.GetEnvPath()
		config.DebugLog("Loading environment configuration from %s", envPath)

		var err error
		envConfig, err = config.LoadEnvConfig(envPath)
		if err != nil {
			return fmt.Errorf("error loading environment configuration: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeLogFile()
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func closeLogFile() {
	if logFile == nil {
		return
	}
	log.Printf("[INFO] Logging session ended at %s\n", time.Now().Format(time.RFC3339))
	if err := logFile.Sync(); err != nil {
		log.Printf("[WARN] Failed to sync log file: %v\n", err)
	}
	logFile.Close()
	logFile = nil
	log.SetOutput(os.Stderr)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.AddCommand(versionCmd)
}

// getVersion returns the version string.
// Priority: build-time ldflags > VERSION file (for development)
func getVersion() string {
	if version != "" {
		return version
	}

	_, filename, _, ok := runtime.Caller(0)
	if ok {
		projectRoot := filepath.Dir(filepath.Dir(filename))
		content, err := os.ReadFile(filepath.Join(projectRoot, "VERSION"))
		if err == nil {
			return "v" + strings.TrimSpace(string(content)) + "-dev"
		}
	}

	return "unknown (build with: go build -ldflags \"-X 'github.com/kris-hansen/workbench/cmd.version=vX.Y.Z'\")"
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "Workbench version: %s\n", getVersion())
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		closeLogFile()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
