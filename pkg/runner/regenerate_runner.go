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

// RegenerateRunner はパネルの1フィールドだけを書き直します。
type RegenerateRunner struct {
	completer     ai.Completer
	promptBuilder prompts.TextPrompt
}

// NewRegenerateRunner は依存関係を注入して初期化します。
func NewRegenerateRunner(c ai.Completer, pb prompts.TextPrompt) *RegenerateRunner {
	return &RegenerateRunner{completer: c, promptBuilder: pb}
}

// Regenerate はフィールドを再生成したパネルのコピーを返します。
// 失敗した場合は元のパネルをそのまま返します。
func (r *RegenerateRunner) Regenerate(ctx context.Context, comic domain.Comic, panel domain.Panel, field domain.PanelField) (domain.Panel, error) {
	field, err := domain.ParsePanelField(string(field))
	if err != nil {
		return panel, err
	}

	data := prompts.ComicData(comic)
	data.Panel = panel
	data.Field = string(field)
	data.CurrentValue = panel.Field(field)
	prompt, err := r.promptBuilder.Build(prompts.ModeRegenerate, data)
	if err != nil {
		return panel, fmt.Errorf("プロンプト生成に失敗: %w", err)
	}

	slog.Info("RegenerateRunner: Regenerating field", "id", comic.ID, "panel", panel.ID, "field", field)
	answer, err := r.completer.Complete(ctx, prompt)
	if err != nil {
		return panel, fmt.Errorf("フィールド '%s' の再生成に失敗しました: %w", field, err)
	}
	return panel.WithField(field, strings.TrimSpace(answer)), nil
}
