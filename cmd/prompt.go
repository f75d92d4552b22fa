package cmd

import (
	"context"

	"github.com/kris-hansen/workbench/utils/processor"
	"github.com/spf13/cobra"
)

var promptChunk chunkFlags
var promptOutput outputFlags
var singlePrompt processor.SinglePrompt
var promptTemperature float64

var promptCmd = &cobra.Command{
	Use:   "prompt \"<template>\" [input]",
	Short: "Apply one prompt to every unit of the input",
	Long: `Send the same prompt to the model once per input unit. The template may
reference {{ chunk }}, {{ index }} and, in table mode, column names. With
--append-chunk (the default) the unit text is added after the prompt.`,
	Example: `  # Summarize each paragraph
  workbench prompt "Summarize in one sentence:" notes.txt --mode blank-line

  # Ask a question about each row without appending it
  workbench prompt "Is {{ email }} a work address? Answer yes or no." users.csv \
    --mode table --append-chunk=false --format csv`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		inputPath := ""
		if len(args) > 1 {
			inputPath = args[1]
		}
		chunks, err := promptChunk.load(inputPath)
		if err != nil {
			return err
		}

		sp := singlePrompt
		sp.Prompt = args[0]
		if cmd.Flags().Changed("temperature") {
			t := promptTemperature
			sp.Temperature = &t
		}
		return executeRun(cmd, chunks, &promptOutput, func(ctx context.Context, proc *processor.Processor) (*processor.RunResult, error) {
			return proc.RunSinglePrompt(ctx, sp, chunks.Units)
		})
	},
}

func init() {
	promptCmd.Flags().StringVarP(&singlePrompt.Model, "model", "m", "", "model to use (defaults to the configured default model)")
	promptCmd.Flags().StringVar(&singlePrompt.System, "system", "", "system prompt")
	promptCmd.Flags().Float64Var(&promptTemperature, "temperature", 0, "sampling temperature")
	promptCmd.Flags().IntVar(&singlePrompt.MaxTokens, "max-tokens", 0, "maximum tokens per response")
	promptCmd.Flags().BoolVar(&singlePrompt.AppendChunk, "append-chunk", true, "append the unit text after the prompt")
	promptCmd.Flags().StringVar(&singlePrompt.Expect, "expect", "", "expected response format: text or json")
	promptChunk.register(promptCmd)
	promptOutput.register(promptCmd)
	rootCmd.AddCommand(promptCmd)
}
