package models

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

const bedrockDefaultRegion = "us-east-1"

// BedrockProvider calls models hosted on AWS Bedrock through the Converse
// API. Credentials come from the standard AWS chain; the API key is unused.
type BedrockProvider struct {
	region  string
	verbose bool
	mu      sync.Mutex
}

// NewBedrockProvider creates a new Bedrock provider instance
func NewBedrockProvider() *BedrockProvider {
	return &BedrockProvider{region: bedrockDefaultRegion}
}

func (b *BedrockProvider) debugf(format string, args ...interface{}) {
	if b.verbose {
		b.mu.Lock()
		defer b.mu.Unlock()
		log.Printf("[DEBUG][Bedrock] "+format+"\n", args...)
	}
}

// Name returns the provider name
func (b *BedrockProvider) Name() string {
	return "bedrock"
}

// SupportsModel matches vendor-qualified Bedrock model IDs.
func (b *BedrockProvider) SupportsModel(modelName string) bool {
	return GetRegistry().ValidateModel("bedrock", modelName)
}

// Configure accepts and ignores the key; AWS credentials are resolved later.
func (b *BedrockProvider) Configure(apiKey string) error {
	return nil
}

// SetRegion selects the AWS region.
func (b *BedrockProvider) SetRegion(region string) {
	if region != "" {
		b.region = region
	}
}

// SetVerbose enables or disables verbose mode
func (b *BedrockProvider) SetVerbose(verbose bool) {
	b.verbose = verbose
}

// IsLocal reports that Bedrock needs no workbench-managed key.
func (b *BedrockProvider) IsLocal() bool {
	return true
}

// StreamCompletion streams a Converse response.
func (b *BedrockProvider) StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Event, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(b.region))
	if err != nil {
		return nil, fmt.Errorf("error loading AWS config: %w", err)
	}
	client := bedrockruntime.NewFromConfig(cfg)

	input := &bedrockruntime.ConverseStreamInput{
		ModelId: aws.String(req.Model),
		Messages: []types.Message{{
			Role:    types.ConversationRoleUser,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: req.UserMessage()}},
		}},
		InferenceConfig: &types.InferenceConfiguration{
			Temperature: aws.Float32(float32(req.Temperature)),
		},
	}
	if req.MaxTokens > 0 {
		input.InferenceConfig.MaxTokens = aws.Int32(int32(req.MaxTokens))
	}
	if req.SystemPrompt != "" {
		input.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: req.SystemPrompt}}
	}

	b.debugf("Streaming from model %s in %s", req.Model, b.region)
	resp, err := client.ConverseStream(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("Bedrock API error: %w", err)
	}
	events := resp.GetStream()

	out := newStream(ctx)
	go func() {
		defer out.close()
		defer events.Close()

		var usage *Usage
		for ev := range events.Events() {
			switch v := ev.(type) {
			case *types.ConverseStreamOutputMemberContentBlockDelta:
				if text, ok := v.Value.Delta.(*types.ContentBlockDeltaMemberText); ok {
					if !out.delta(text.Value) {
						return
					}
				}
			case *types.ConverseStreamOutputMemberMetadata:
				if u := v.Value.Usage; u != nil {
					usage = &Usage{
						PromptTokens:     int(aws.ToInt32(u.InputTokens)),
						CompletionTokens: int(aws.ToInt32(u.OutputTokens)),
						TotalTokens:      int(aws.ToInt32(u.TotalTokens)),
					}
				}
			}
		}
		if err := events.Err(); err != nil {
			out.fail(fmt.Errorf("Bedrock stream error: %w", err))
			return
		}
		out.done(usage)
	}()
	return out.ch, nil
}
