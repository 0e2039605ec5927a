package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shouni/go-zenith-comic-kit/pkg/ai"
	"github.com/shouni/go-zenith-comic-kit/pkg/domain"
	"github.com/shouni/go-zenith-comic-kit/pkg/prompts"
	"golang.org/x/sync/errgroup"
)

// defaultImageConcurrency は一括生成時に同時に走らせる画像生成の数です。
const defaultImageConcurrency = 2

// ErrNoImage は画像生成サービスが画像を返さなかったことを表します。
var ErrNoImage = errors.New("画像が生成されませんでした")

// ImageRunner はパネルの画像プロンプトを組み立て、画像を生成・編集します。
type ImageRunner struct {
	generator     ai.ImageGenerator
	promptBuilder prompts.ImagePrompt
	concurrency   int
}

// NewImageRunner は依存関係を注入して初期化します。
func NewImageRunner(gen ai.ImageGenerator, pb prompts.ImagePrompt, concurrency int) *ImageRunner {
	if concurrency <= 0 {
		concurrency = defaultImageConcurrency
	}
	return &ImageRunner{generator: gen, promptBuilder: pb, concurrency: concurrency}
}

// PreparePrompt はパネルの画像プロンプトを組み立てて保存したコピーを返します。
func (r *ImageRunner) PreparePrompt(comic domain.Comic, panel domain.Panel) domain.Panel {
	panel.ImageGenerationPrompt = r.promptBuilder.BuildPanel(panel, comic)
	return panel
}

// Generate はパネルの画像を生成します。プロンプトが未作成なら先に組み立てるのだ。
// サービスが画像を返さなかった場合は ErrNoImage を返し、パネルは変更しません。
func (r *ImageRunner) Generate(ctx context.Context, comic domain.Comic, panel domain.Panel) (domain.Panel, error) {
	if strings.TrimSpace(panel.ImageGenerationPrompt) == "" {
		panel = r.PreparePrompt(comic, panel)
	}

	logger := slog.With("id", comic.ID, "panel", panel.ID)
	logger.Info("Starting panel image generation")
	startTime := time.Now()

	img, err := r.generator.Generate(ctx, panel.ImageGenerationPrompt)
	if err != nil {
		return panel, fmt.Errorf("パネル '%s' の画像生成に失敗しました: %w", panel.ID, err)
	}
	if img == nil {
		logger.Warn("Image service returned no image")
		return panel, ErrNoImage
	}

	logger.Info("Panel image generation completed", "duration", time.Since(startTime).Round(time.Millisecond))
	panel.Image = img
	return panel, nil
}

// Edit は既存の画像に編集指示を与えて描き直します。画像が無い場合は指示を加えたプロンプトで新規に生成します。
func (r *ImageRunner) Edit(ctx context.Context, comic domain.Comic, panel domain.Panel, instruction string) (domain.Panel, error) {
	if strings.TrimSpace(instruction) == "" {
		return panel, fmt.Errorf("%w: 編集指示は必須です", domain.ErrValidation)
	}
	if strings.TrimSpace(panel.ImageGenerationPrompt) == "" {
		panel = r.PreparePrompt(comic, panel)
	}

	var (
		img *domain.ImagePayload
		err error
	)
	if panel.Image != nil {
		img, err = r.generator.Edit(ctx, *panel.Image, instruction)
	}
	if panel.Image == nil || errors.Is(err, ai.ErrEditUnsupported) {
		img, err = r.generator.Generate(ctx, prompts.EditImagePrompt(panel.ImageGenerationPrompt, instruction))
	}
	if err != nil {
		return panel, fmt.Errorf("パネル '%s' の画像編集に失敗しました: %w", panel.ID, err)
	}
	if img == nil {
		return panel, ErrNoImage
	}

	panel.ImageGenerationPrompt = prompts.EditImagePrompt(panel.ImageGenerationPrompt, instruction)
	panel.Image = img
	return panel, nil
}

// GenerateAll は画像の無いパネルをまとめて並列生成します。
// 画像が返らなかったパネルはそのまま残し、1つでも呼び出しに失敗したら全体を失敗とするのだ。
func (r *ImageRunner) GenerateAll(ctx context.Context, comic domain.Comic) (domain.Panels, error) {
	panels := make(domain.Panels, len(comic.Panels))
	copy(panels, comic.Panels)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(r.concurrency)

	for i, panel := range panels {
		if panel.Image != nil {
			continue
		}
		eg.Go(func() error {
			updated, err := r.Generate(egCtx, comic, panel)
			if err != nil && !errors.Is(err, ErrNoImage) {
				return err
			}
			panels[i] = updated
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return panels, nil
}
