package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/shouni/go-zenith-comic-kit/pkg/ai"
	"github.com/shouni/go-zenith-comic-kit/pkg/domain"
	"github.com/shouni/go-zenith-comic-kit/pkg/prompts"
)

// ErrInvalidOutput はモデルの応答が期待した形式ではなかったことを表します。
var ErrInvalidOutput = errors.New("AIの応答が期待した形式ではありません")

var jsonBlockRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(.*\\S)\\s*```")

// PanelRunner は教科書の抜粋からコミックの下書きパネルを生成します。
type PanelRunner struct {
	text          ai.TextGenerator
	promptBuilder prompts.TextPrompt
	model         string
	newID         func() string
}

// NewPanelRunner は依存関係を注入して初期化します。
func NewPanelRunner(text ai.TextGenerator, pb prompts.TextPrompt, model string) *PanelRunner {
	return &PanelRunner{
		text:          text,
		promptBuilder: pb,
		model:         model,
		newID:         uuid.NewString,
	}
}

// Generate は抜粋をプロンプトに埋め込み、スキーマ付きの1回の呼び出しでパネル配列を生成するのだ。
// 返すパネルは下書きで、コミックにはまだ追加されていません。
func (r *PanelRunner) Generate(ctx context.Context, comic domain.Comic, excerpt string) (domain.Panels, error) {
	if strings.TrimSpace(excerpt) == "" {
		return nil, fmt.Errorf("%w: 教科書の抜粋は必須です", domain.ErrValidation)
	}

	data := prompts.ComicData(comic)
	data.Excerpt = excerpt
	prompt, err := r.promptBuilder.Build(prompts.ModePanels, data)
	if err != nil {
		return nil, fmt.Errorf("プロンプト生成に失敗: %w", err)
	}

	slog.Info("PanelRunner: Generating panels", "id", comic.ID, "model", r.model, "existing", len(comic.Panels))
	resp, err := r.text.GenerateText(ctx, ai.TextRequest{
		Model:   r.model,
		Message: prompt,
		Schema:  ai.PanelArraySchema(),
	})
	if err != nil {
		return nil, fmt.Errorf("パネルの生成に失敗しました: %w", err)
	}

	panels, err := parsePanels(resp)
	if err != nil {
		return nil, err
	}
	for i := range panels {
		panels[i].ID = r.newID()
		if panels[i].Dialogue == nil {
			panels[i].Dialogue = []domain.DialogueLine{}
		}
	}

	slog.Info("PanelRunner: Generated draft panels", "id", comic.ID, "count", len(panels))
	return panels, nil
}

// parsePanels は応答からコードフェンスを取り除き、JSON 配列としてパネルを取り出します。
func parsePanels(raw string) (domain.Panels, error) {
	raw = strings.TrimSpace(raw)
	rawJSON := raw
	if matches := jsonBlockRegex.FindStringSubmatch(raw); len(matches) > 1 {
		rawJSON = strings.TrimSpace(matches[1])
	}

	if !strings.HasPrefix(rawJSON, "[") {
		return nil, fmt.Errorf("%w: JSON 配列ではありません (応答抜粋: %q)", ErrInvalidOutput, truncateString(raw, 200))
	}

	var panels domain.Panels
	if err := json.Unmarshal([]byte(rawJSON), &panels); err != nil {
		return nil, fmt.Errorf("%w: JSON の解析に失敗しました (応答抜粋: %q): %v", ErrInvalidOutput, truncateString(raw, 200), err)
	}
	if len(panels) == 0 {
		return nil, fmt.Errorf("%w: パネルが1つも含まれていません", ErrInvalidOutput)
	}
	return panels, nil
}

func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
