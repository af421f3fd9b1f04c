package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// OllamaGenerator 通过 Ollama HTTP API 的文案生成
type OllamaGenerator struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaGenerator 创建 Ollama 客户端
func NewOllamaGenerator(cfg Config) *OllamaGenerator {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://127.0.0.1:11434"
	}
	return &OllamaGenerator{baseURL: baseURL, model: cfg.Model, client: http.DefaultClient}
}

func (g *OllamaGenerator) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(map[string]interface{}{
		"model":  g.model,
		"prompt": prompt,
		"stream": false,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}

	var out struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return out.Response, nil
}

// CallerGuide 给求助者的应急指引
func (g *OllamaGenerator) CallerGuide(ctx context.Context, cc CaseContext) (string, error) {
	return g.complete(ctx, callerPrompt(cc))
}

// HelperGuide 给帮助者的处置指引
func (g *OllamaGenerator) HelperGuide(ctx context.Context, cc CaseContext) (string, error) {
	return g.complete(ctx, helperPrompt(cc))
}
