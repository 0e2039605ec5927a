package runner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shouni/go-zenith-comic-kit/pkg/ai"
	"github.com/shouni/go-zenith-comic-kit/pkg/domain"
	"github.com/shouni/go-zenith-comic-kit/pkg/prompts"
)

// StyleGuideRunner は画像生成の前置きに使うスタイルガイドを作成します。
type StyleGuideRunner struct {
	completer     ai.Completer
	promptBuilder prompts.TextPrompt
}

// NewStyleGuideRunner は依存関係を注入して初期化します。
func NewStyleGuideRunner(c ai.Completer, pb prompts.TextPrompt) *StyleGuideRunner {
	return &StyleGuideRunner{completer: c, promptBuilder: pb}
}

// Ensure はスタイルガイドが未設定の場合だけ生成したコミックのコピーを返します。
// force が true なら既存の値があっても作り直すのだ。changed はコミックを更新したかどうかです。
func (r *StyleGuideRunner) Ensure(ctx context.Context, comic domain.Comic, force bool) (updated domain.Comic, changed bool, err error) {
	if !force && strings.TrimSpace(comic.StyleGuidePrompt) != "" {
		return comic, false, nil
	}

	prompt, err := r.promptBuilder.Build(prompts.ModeStyleGuide, prompts.ComicData(comic))
	if err != nil {
		return comic, false, fmt.Errorf("プロンプト生成に失敗: %w", err)
	}

	slog.Info("StyleGuideRunner: Generating style guide", "id", comic.ID, "force", force)
	guide, err := r.completer.Complete(ctx, prompt)
	if err != nil {
		return comic, false, fmt.Errorf("スタイルガイドの生成に失敗しました: %w", err)
	}
	comic.StyleGuidePrompt = strings.TrimSpace(guide)
	return comic, true, nil
}
