package prompts

import "github.com/shouni/go-zenith-comic-kit/pkg/domain"

// TextPrompt は、テキスト生成用プロンプトを構築する契約です。
type TextPrompt interface {
	// Build は、指定されたモード（例: "panels", "regenerate"）とデータに基づいてプロンプト文字列を生成します。
	Build(mode string, data TemplateData) (string, error)
}

// ImagePrompt は、パネル画像用プロンプトを構築する契約です。
type ImagePrompt interface {
	BuildPanel(panel domain.Panel, comic domain.Comic) string
}
