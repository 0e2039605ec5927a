package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shouni/go-gemini-client/gemini"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// PromptClient は go-gemini-client を用いて単発のプロンプトに答える Completer です。
type PromptClient struct {
	aiClient gemini.GenerativeModel
	model    string
	limiter  *rate.Limiter
}

// NewGeminiModel は gemini クライアントを初期化します。
func NewGeminiModel(ctx context.Context, apiKey string, temperature float32) (gemini.GenerativeModel, error) {
	clientConfig := gemini.Config{
		APIKey:      apiKey,
		Temperature: genai.Ptr(temperature),
	}
	aiClient, err := gemini.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("AIクライアントの初期化に失敗しました: %w", err)
	}
	return aiClient, nil
}

// NewPromptClient は PromptClient を生成します。
func NewPromptClient(aiClient gemini.GenerativeModel, model string, limiter *rate.Limiter) *PromptClient {
	if limiter == nil {
		limiter = NewLimiter(0)
	}
	return &PromptClient{aiClient: aiClient, model: model, limiter: limiter}
}

// Complete はプロンプトを送信し、応答テキストを返します。
func (c *PromptClient) Complete(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("レートリミット待機中に中断されました: %w", err)
	}

	slog.Info("Calling Gemini API (single prompt)", "model", c.model)
	resp, err := c.aiClient.GenerateContent(ctx, prompt, c.model)
	if err != nil {
		return "", fmt.Errorf("テキスト生成に失敗しました: %w", err)
	}
	if strings.TrimSpace(resp.Text) == "" {
		return "", ErrEmptyResponse
	}
	return resp.Text, nil
}
