// Package ai はテキスト生成と画像生成の外部サービスとの境界を提供します。
package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shouni/go-zenith-comic-kit/pkg/domain"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// ErrEmptyResponse はモデルが空の応答を返したことを表します。
var ErrEmptyResponse = errors.New("モデルの応答が空です")

// TextRequest はテキスト生成の1回分の要求です。
type TextRequest struct {
	Model             string
	SystemInstruction string
	History           []domain.Turn
	Message           string
	// Schema を指定すると JSON 出力を強制します。
	Schema      *genai.Schema
	Temperature *float32
}

// TextGenerator はテキスト生成クライアントの契約です。
type TextGenerator interface {
	GenerateText(ctx context.Context, req TextRequest) (string, error)
}

// Completer は単発のプロンプトに自由記述で答えるクライアントの契約です。
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// contentGenerator は *genai.Models のうち利用するメソッドだけを切り出したものです。
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GenAIText は google.golang.org/genai を用いた TextGenerator です。
type GenAIText struct {
	models       contentGenerator
	defaultModel string
	limiter      *rate.Limiter
}

// NewGenAIClient は Gemini API 用の genai クライアントを生成します。
func NewGenAIClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY は必須です")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("AIクライアントの初期化に失敗しました: %w", err)
	}
	return client, nil
}

// NewLimiter は interval ごとに1回の呼び出しを許可するリミッターを返します。0 以下なら制限しません。
func NewLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// NewGenAIText は GenAIText を生成します。
func NewGenAIText(client *genai.Client, defaultModel string, limiter *rate.Limiter) *GenAIText {
	return newGenAIText(client.Models, defaultModel, limiter)
}

func newGenAIText(models contentGenerator, defaultModel string, limiter *rate.Limiter) *GenAIText {
	if limiter == nil {
		limiter = NewLimiter(0)
	}
	return &GenAIText{models: models, defaultModel: defaultModel, limiter: limiter}
}

// GenerateText は履歴と新しい発話をまとめて送信し、応答テキスト全体を返します。
func (g *GenAIText) GenerateText(ctx context.Context, req TextRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = g.defaultModel
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("レートリミット待機中に中断されました: %w", err)
	}

	slog.Info("Calling Gemini API", "model", model, "history", len(req.History), "schema", req.Schema != nil)
	resp, err := g.models.GenerateContent(ctx, model, buildContents(req), buildConfig(req))
	if err != nil {
		return "", fmt.Errorf("テキスト生成に失敗しました: %w", err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func buildContents(req TextRequest) []*genai.Content {
	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, turn := range req.History {
		var role genai.Role = genai.RoleUser
		if turn.Role == domain.RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Text, role))
	}
	return append(contents, genai.NewContentFromText(req.Message, genai.RoleUser))
}

func buildConfig(req TextRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature: req.Temperature,
	}
	if req.SystemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}
	if req.Schema != nil {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = req.Schema
	}
	return cfg
}
