package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shouni/go-zenith-comic-kit/pkg/domain"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// ErrEditUnsupported は画像編集に対応していないバックエンドで Edit を呼んだことを表します。
var ErrEditUnsupported = errors.New("このバックエンドは画像編集に対応していません")

// ImageGenerator は画像生成クライアントの契約です。
// サービスが使える画像を返さなかった場合は、エラーではなく nil を返します。
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) (*domain.ImagePayload, error)
	Edit(ctx context.Context, prior domain.ImagePayload, instruction string) (*domain.ImagePayload, error)
}

// GenAIImage はマルチモーダルモデルに直接問い合わせる ImageGenerator です。
type GenAIImage struct {
	models  contentGenerator
	model   string
	limiter *rate.Limiter
}

// NewGenAIImage は GenAIImage を生成します。
func NewGenAIImage(client *genai.Client, model string, limiter *rate.Limiter) *GenAIImage {
	return newGenAIImage(client.Models, model, limiter)
}

func newGenAIImage(models contentGenerator, model string, limiter *rate.Limiter) *GenAIImage {
	if limiter == nil {
		limiter = NewLimiter(0)
	}
	return &GenAIImage{models: models, model: model, limiter: limiter}
}

// Generate はプロンプトから画像を生成します。
func (g *GenAIImage) Generate(ctx context.Context, prompt string) (*domain.ImagePayload, error) {
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	return g.call(ctx, contents)
}

// Edit は前回の画像と編集指示を一緒に送信します。
func (g *GenAIImage) Edit(ctx context.Context, prior domain.ImagePayload, instruction string) (*domain.ImagePayload, error) {
	data, err := base64.StdEncoding.DecodeString(prior.Data)
	if err != nil {
		return nil, fmt.Errorf("元画像のデコードに失敗しました: %w", err)
	}
	parts := []*genai.Part{
		genai.NewPartFromBytes(data, prior.MimeType),
		genai.NewPartFromText(instruction),
	}
	return g.call(ctx, []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)})
}

func (g *GenAIImage) call(ctx context.Context, contents []*genai.Content) (*domain.ImagePayload, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("レートリミット待機中に中断されました: %w", err)
	}

	slog.Info("Calling Gemini image model", "model", g.model)
	resp, err := g.models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	})
	if err != nil {
		return nil, fmt.Errorf("画像生成に失敗しました: %w", err)
	}

	payload := extractImage(resp)
	if payload == nil {
		slog.Warn("Image model returned no usable image", "model", g.model)
	}
	return payload, nil
}

// extractImage は応答から最初のインライン画像を取り出します。見つからなければ nil なのだ。
func extractImage(resp *genai.GenerateContentResponse) *domain.ImagePayload {
	if resp == nil {
		return nil
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			mime := part.InlineData.MIMEType
			if mime == "" {
				mime = "image/png"
			}
			if !strings.HasPrefix(mime, "image/") {
				continue
			}
			return &domain.ImagePayload{
				Data:     base64.StdEncoding.EncodeToString(part.InlineData.Data),
				MimeType: mime,
			}
		}
	}
	return nil
}
