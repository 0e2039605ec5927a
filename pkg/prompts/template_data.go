package prompts

import (
	_ "embed"

	"github.com/shouni/go-zenith-comic-kit/pkg/domain"
)

const (
	ModePanels         = "panels"
	ModeRegenerate     = "regenerate"
	ModeStyleGuide     = "style_guide"
	ModeEpisodeInitial = "episode_initial"
)

// TemplateData はプロンプトテンプレートに渡すデータ構造です。モードごとに使う項目だけ埋めれば良いのだ。
type TemplateData struct {
	Subject           string
	Topic             string
	Ward              string
	Characters        domain.Characters
	LastPanelSummary  string
	CompletedExcerpts int
	ExistingPanels    int
	Excerpt           string

	// フィールド再生成用
	Panel        domain.Panel
	Field        string
	CurrentValue string

	// エピソード用
	EpisodeNumber   int
	TextbookContent string
}

// CharacterNames はテンプレートから呼ぶためのキャラクター名一覧です。
func (d TemplateData) CharacterNames() []string {
	return d.Characters.Names()
}

// ComicData はコミックの文脈を埋めた TemplateData を返します。
func ComicData(c domain.Comic) TemplateData {
	return TemplateData{
		Subject:           c.Subject,
		Topic:             c.Topic,
		Ward:              c.Ward,
		Characters:        c.Characters,
		LastPanelSummary:  c.StoryState.LastPanelSummary,
		CompletedExcerpts: c.StoryState.CompletedExcerpts,
		ExistingPanels:    len(c.Panels),
	}
}

var (
	//go:embed panels.md
	PanelsPrompt string
	//go:embed regenerate.md
	RegeneratePrompt string
	//go:embed style_guide.md
	StyleGuidePrompt string
	//go:embed episode_initial.md
	EpisodeInitialPrompt string

	// MasterPrompt はエピソード生成会話のシステム指示です。
	//go:embed master.md
	MasterPrompt string
)

// allTemplates はモードとテンプレート文字列を紐づけるマップなのだ。
var allTemplates = map[string]string{
	ModePanels:         PanelsPrompt,
	ModeRegenerate:     RegeneratePrompt,
	ModeStyleGuide:     StyleGuidePrompt,
	ModeEpisodeInitial: EpisodeInitialPrompt,
}
