package llm

import (
	"context"
	"errors"
	"log"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"comicgen-server/modules/common/config"
)

// OpenAIClient implements Client using the official openai-go SDK
// (chat completions). Works against any OpenAI-compatible endpoint via
// LLM_BASE_URL.
type OpenAIClient struct {
	model   string
	timeout time.Duration
	opts    []option.RequestOption
}

func NewOpenAIClient(cfg *config.Config) (*OpenAIClient, error) {
	if cfg.LLMAPIKey == "" {
		return nil, errors.New("LLM_API_KEY is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.LLMAPIKey)}
	if cfg.LLMBaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.LLMBaseURL))
	}
	return &OpenAIClient{
		model:   cfg.LLMModel,
		timeout: cfg.LLMTimeout,
		opts:    opts,
	}, nil
}

func (c *OpenAIClient) Complete(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	client := openai.NewClient(c.opts...)

	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("llm returned empty choices")
	}

	content := resp.Choices[0].Message.Content
	log.Printf("🤖 LLM completion: %d chars (model: %s)", len(content), c.model)
	return content, nil
}
