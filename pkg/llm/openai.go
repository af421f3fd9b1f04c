package llm

import (
	"context"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIGenerator 基于 OpenAI 兼容接口的文案生成
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

// NewOpenAIGenerator 创建 OpenAI 客户端
func NewOpenAIGenerator(cfg Config) *OpenAIGenerator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
	}
}

func (g *OpenAIGenerator) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens: 256,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// CallerGuide 给求助者的应急指引
func (g *OpenAIGenerator) CallerGuide(ctx context.Context, cc CaseContext) (string, error) {
	return g.complete(ctx, callerPrompt(cc))
}

// HelperGuide 给帮助者的处置指引
func (g *OpenAIGenerator) HelperGuide(ctx context.Context, cc CaseContext) (string, error) {
	return g.complete(ctx, helperPrompt(cc))
}
