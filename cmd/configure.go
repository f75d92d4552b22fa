package cmd

import (
	"fmt"
	"strings"

	"github.com/kris-hansen/workbench/utils/config"
	"github.com/kris-hansen/workbench/utils/models"
	"github.com/spf13/cobra"
)

var (
	configureProvider string
	configureAPIKey   string
	configureEndpoint string
	configureRegion   string
	configureModels   []string
	configureDefault  string
	configureDSN      string
	configureList     bool
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Set provider credentials and workbench defaults",
	Long: `Store provider credentials, endpoints and defaults in the configuration
file. Keys not stored here are read from <PROVIDER>_API_KEY at run time.`,
	Example: `  # Store an OpenAI key
  workbench configure --provider openai --api-key sk-...

  # Point a local vLLM server at custom models
  workbench configure --provider vllm --endpoint http://gpu:8000/v1 --models my-llama

  # Set the default model for prompt nodes
  workbench configure --default-model claude-sonnet-4-20250514

  # Show the current configuration
  workbench configure --list`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if configureList {
			listConfiguration(cmd)
			return nil
		}

		changed := false
		if configureProvider != "" {
			name := strings.ToLower(configureProvider)
			if !isKnownProvider(name) {
				return fmt.Errorf("unknown provider %q (known: %s)", name, strings.Join(models.GetRegistry().Providers(), ", "))
			}
			p := &config.Provider{}
			if existing, ok := envConfig.Providers[name]; ok && existing != nil {
				*p = *existing
			}
			if configureAPIKey != "" {
				p.APIKey = configureAPIKey
			}
			if configureEndpoint != "" {
				p.Endpoint = configureEndpoint
			}
			if configureRegion != "" {
				p.Region = configureRegion
			}
			if len(configureModels) > 0 {
				p.Models = configureModels
			}
			envConfig.SetProviderConfig(name, p)
			fmt.Fprintf(out, "Configured provider %s\n", name)
			changed = true
		}
		if configureDefault != "" {
			envConfig.Workbench.DefaultModel = configureDefault
			fmt.Fprintf(out, "Default model set to %s\n", configureDefault)
			changed = true
		}
		if configureDSN != "" {
			envConfig.Database.DSN = configureDSN
			fmt.Fprintf(out, "Database DSN updated\n")
			changed = true
		}
		if !changed {
			return cmd.Help()
		}

		path := config.GetEnvPath()
		if err := config.SaveEnvConfig(path, envConfig); err != nil {
			return err
		}
		fmt.Fprintf(out, "Configuration saved to %s\n", path)
		return nil
	},
}

func isKnownProvider(name string) bool {
	for _, p := range models.GetRegistry().Providers() {
		if p == name {
			return true
		}
	}
	return name == "ollama" || name == "vllm"
}

func listConfiguration(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration file: %s\n", config.GetEnvPath())

	providers := envConfig.ConfiguredProviders()
	if len(providers) == 0 {
		fmt.Fprintf(out, "\nNo providers configured.\n")
	} else {
		fmt.Fprintf(out, "\nProviders:\n")
	}
	for _, name := range providers {
		p := envConfig.Providers[name]
		if p == nil {
			continue
		}
		key := "not set"
		if p.APIKey != "" {
			key = "set"
		}
		fmt.Fprintf(out, "- %s (api key %s)\n", name, key)
		if p.Endpoint != "" {
			fmt.Fprintf(out, "    endpoint: %s\n", p.Endpoint)
		}
		if p.Region != "" {
			fmt.Fprintf(out, "    region: %s\n", p.Region)
		}
		if len(p.Models) > 0 {
			fmt.Fprintf(out, "    models: %s\n", strings.Join(p.Models, ", "))
		}
	}

	wb := envConfig.Workbench
	fmt.Fprintf(out, "\nDefaults:\n")
	fmt.Fprintf(out, "- model: %s\n", valueOr(wb.DefaultModel, "(built-in)"))
	if wb.Temperature != nil {
		fmt.Fprintf(out, "- temperature: %g\n", *wb.Temperature)
	}
	if wb.MaxTokens > 0 {
		fmt.Fprintf(out, "- max tokens: %d\n", wb.MaxTokens)
	}
	fmt.Fprintf(out, "- database: %s\n", valueOr(envConfig.Database.DSN, "not configured"))
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func init() {
	configureCmd.Flags().StringVar(&configureProvider, "provider", "", "provider to configure (openai, anthropic, google, xai, deepseek, moonshot, bedrock, ollama, vllm)")
	configureCmd.Flags().StringVar(&configureAPIKey, "api-key", "", "API key for --provider")
	configureCmd.Flags().StringVar(&configureEndpoint, "endpoint", "", "endpoint override for --provider")
	configureCmd.Flags().StringVar(&configureRegion, "region", "", "AWS region for bedrock")
	configureCmd.Flags().StringSliceVar(&configureModels, "models", nil, "models routed to --provider")
	configureCmd.Flags().StringVar(&configureDefault, "default-model", "", "default model for prompt nodes")
	configureCmd.Flags().StringVar(&configureDSN, "dsn", "", "Postgres DSN for the document sink")
	configureCmd.Flags().BoolVar(&configureList, "list", false, "list the current configuration")
	rootCmd.AddCommand(configureCmd)
}
