package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shouni/go-zenith-comic-kit/pkg/ai"
	"github.com/shouni/go-zenith-comic-kit/pkg/config"
	"github.com/shouni/go-zenith-comic-kit/pkg/domain"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// ErrAPIKeyRequired はモデルを呼び出そうとしたが GEMINI_API_KEY が設定されていないことを表します。
var ErrAPIKeyRequired = errors.New("GEMINI_API_KEY が設定されていません")

// clients はモデル呼び出しに使うクライアント群です。
type clients struct {
	text      ai.TextGenerator
	completer ai.Completer
	image     ai.ImageGenerator
}

// buildClients は設定からクライアント群を構築します。
// API キーが無い場合もモデルを呼ばない操作は使えるように、呼び出し時にエラーを返すクライアントで埋めるのだ。
func buildClients(ctx context.Context, cfg config.Config, limiter *rate.Limiter) (clients, error) {
	var c clients

	var genaiClient *genai.Client
	if cfg.GeminiAPIKey != "" {
		var err error
		genaiClient, err = ai.NewGenAIClient(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return c, err
		}
		c.text = ai.NewGenAIText(genaiClient, cfg.EpisodeModel, limiter)

		model, err := ai.NewGeminiModel(ctx, cfg.GeminiAPIKey, cfg.Temperature)
		if err != nil {
			return c, err
		}
		c.completer = ai.NewPromptClient(model, cfg.GeminiModel, limiter)
	} else {
		slog.Warn("GEMINI_API_KEY is not set; model calls will fail")
		c.text = unavailable{}
		c.completer = unavailable{}
	}

	image, err := buildImageGenerator(cfg, genaiClient, limiter)
	if err != nil {
		return c, err
	}
	c.image = ai.NewCachedImage(image, cfg.ImageCacheTTL)
	return c, nil
}

// buildImageGenerator は設定されたバックエンドの ImageGenerator を返します。
func buildImageGenerator(cfg config.Config, genaiClient *genai.Client, limiter *rate.Limiter) (ai.ImageGenerator, error) {
	switch strings.ToLower(cfg.ImageBackend) {
	case config.ImageBackendProxy:
		slog.Info("Using image proxy backend", "url", cfg.ProxyURL)
		return ai.NewProxyImage(cfg.ProxyURL, cfg.RequestTimeout, limiter), nil
	case config.ImageBackendGenAI, "":
		if genaiClient == nil {
			return unavailable{}, nil
		}
		return ai.NewGenAIImage(genaiClient, cfg.ImageModel, limiter), nil
	}
	return nil, fmt.Errorf("不明な画像バックエンドです: '%s'", cfg.ImageBackend)
}

// unavailable は API キーが無いときに使う、常に ErrAPIKeyRequired を返すクライアントです。
type unavailable struct{}

func (unavailable) GenerateText(context.Context, ai.TextRequest) (string, error) {
	return "", ErrAPIKeyRequired
}

func (unavailable) Complete(context.Context, string) (string, error) {
	return "", ErrAPIKeyRequired
}

func (unavailable) Generate(context.Context, string) (*domain.ImagePayload, error) {
	return nil, ErrAPIKeyRequired
}

func (unavailable) Edit(context.Context, domain.ImagePayload, string) (*domain.ImagePayload, error) {
	return nil, ErrAPIKeyRequired
}
