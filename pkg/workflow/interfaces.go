package workflow

import (
	"context"

	"github.com/shouni/go-zenith-comic-kit/pkg/domain"
)

// PanelRunner は、教科書の抜粋から下書きパネルを生成する責務を持ちます。
type PanelRunner interface {
	Generate(ctx context.Context, comic domain.Comic, excerpt string) (domain.Panels, error)
}

// RegenerateRunner は、パネルの1フィールドを書き直す責務を持ちます。
type RegenerateRunner interface {
	Regenerate(ctx context.Context, comic domain.Comic, panel domain.Panel, field domain.PanelField) (domain.Panel, error)
}

// StyleGuideRunner は、画像生成の前置きとなるスタイルガイドを用意する責務を持ちます。
type StyleGuideRunner interface {
	Ensure(ctx context.Context, comic domain.Comic, force bool) (domain.Comic, bool, error)
}

// ImageRunner は、パネルの画像プロンプトの作成と画像の生成・編集の責務を持ちます。
type ImageRunner interface {
	PreparePrompt(comic domain.Comic, panel domain.Panel) domain.Panel
	Generate(ctx context.Context, comic domain.Comic, panel domain.Panel) (domain.Panel, error)
	Edit(ctx context.Context, comic domain.Comic, panel domain.Panel, instruction string) (domain.Panel, error)
	GenerateAll(ctx context.Context, comic domain.Comic) (domain.Panels, error)
}
