package llm

import (
	"context"
	"fmt"
	"strings"
)

// CaseContext 提供给文案生成方的案件上下文
type CaseContext struct {
	Description    string
	Urgency        string
	DangerLevel    string
	Mobility       string
	PeopleCount    *int
	Vulnerability  []string
	DistanceMeters float64 // 帮助者视角，0 表示未知
}

// TextGenerator 文案生成协作方。引擎只通过这个窄接口取文本，
// 调用方负责异步化：通道与状态机路径上绝不等待它。
type TextGenerator interface {
	// CallerGuide 给求助者的应急指引（短文本）
	CallerGuide(ctx context.Context, cc CaseContext) (string, error)

	// HelperGuide 给帮助者的处置指引（短文本）
	HelperGuide(ctx context.Context, cc CaseContext) (string, error)
}

// Config 生成方配置
type Config struct {
	Provider string // openai / ollama
	APIKey   string
	BaseURL  string
	Model    string
}

// New 创建文案生成客户端
func New(cfg Config) (TextGenerator, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return NewOpenAIGenerator(cfg), nil
	case "ollama":
		return NewOllamaGenerator(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}

func callerPrompt(cc CaseContext) string {
	return fmt.Sprintf(
		"You are assisting a person in a disaster. Situation: %s (urgency %s, danger %s, mobility %s). "+
			"Give at most three short bullet points of immediate safety guidance.",
		cc.Description, cc.Urgency, cc.DangerLevel, cc.Mobility)
}

func helperPrompt(cc CaseContext) string {
	people := "unknown"
	if cc.PeopleCount != nil {
		people = fmt.Sprintf("%d", *cc.PeopleCount)
	}
	return fmt.Sprintf(
		"You are briefing a volunteer responder. Case: %s (urgency %s, danger %s, people %s, vulnerability: %s). "+
			"Give at most three short bullet points on how to approach safely and what to bring.",
		cc.Description, cc.Urgency, cc.DangerLevel, people, strings.Join(cc.Vulnerability, ", "))
}
