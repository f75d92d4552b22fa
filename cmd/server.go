package cmd

import (
	"fmt"
	"log"
	"strings"

	"github.com/kris-hansen/workbench/utils/config"
	"github.com/kris-hansen/workbench/utils/server"
	"github.com/spf13/cobra"
)

var serverPort int
var serverHost string

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the HTTP API",
	Long: `Start the Workbench HTTP server on the configured port (default: 8088).

Endpoints:
  GET  /health     Health check
  POST /parse      Parse a workflow script
  POST /chunk      Split content into units
  POST /run        Run a workflow or single prompt (JSON, or SSE with "stream": true)
  POST /export     Export a run result as text, CSV or documents`,
	Example: `  # Start the server
  workbench server

  # Override the port for this session
  workbench server --port 9000

  # View current configuration
  workbench server show`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := *envConfig
		sc := cfg.GetServerConfig()
		if cmd.Flags().Changed("port") {
			sc.Port = serverPort
		}
		if cmd.Flags().Changed("host") {
			sc.Host = serverHost
		}
		cfg.Server = sc

		log.SetFlags(log.LstdFlags)
		if err := server.Run(&cfg); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	},
}

var showServerCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current server configuration",
	Run: func(cmd *cobra.Command, args []string) {
		sc := envConfig.GetServerConfig()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Server Configuration (%s):\n", config.GetEnvPath())
		fmt.Fprintf(out, "Host: %s\n", sc.Host)
		fmt.Fprintf(out, "Port: %d\n", sc.Port)
		fmt.Fprintf(out, "Authentication Enabled: %v\n", sc.BearerToken != "")
		fmt.Fprintf(out, "Max Body Bytes: %d\n", sc.MaxBodyBytes)
		if sc.RunTimeoutSeconds > 0 {
			fmt.Fprintf(out, "Run Timeout: %ds\n", sc.RunTimeoutSeconds)
		}

		fmt.Fprintf(out, "\nCORS Configuration:\n")
		fmt.Fprintf(out, "Enabled: %v\n", sc.CORS.Enabled)
		if sc.CORS.Enabled {
			fmt.Fprintf(out, "Allowed Origins: %s\n", strings.Join(sc.CORS.AllowedOrigins, ", "))
			fmt.Fprintf(out, "Allowed Methods: %s\n", strings.Join(sc.CORS.AllowedMethods, ", "))
			fmt.Fprintf(out, "Allowed Headers: %s\n", strings.Join(sc.CORS.AllowedHeaders, ", "))
			fmt.Fprintf(out, "Max Age: %d seconds\n", sc.CORS.MaxAge)
		}
	},
}

func init() {
	serverCmd.Flags().IntVar(&serverPort, "port", 0, "port to listen on (overrides the configuration)")
	serverCmd.Flags().StringVar(&serverHost, "host", "", "host to bind (overrides the configuration)")
	serverCmd.AddCommand(showServerCmd)
	rootCmd.AddCommand(serverCmd)
}
