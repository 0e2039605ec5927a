package prompts

import (
	"fmt"
	"strings"

	"github.com/shouni/go-zenith-comic-kit/pkg/domain"
)

// ImagePromptBuilder は、コミックの文脈を考慮してパネル画像用のプロンプトを構築します。
type ImagePromptBuilder struct {
	defaultSuffix string // 設定ファイルから渡される共通の画風サフィックス
}

// NewImagePromptBuilder は新しい ImagePromptBuilder を生成します。
func NewImagePromptBuilder(suffix string) *ImagePromptBuilder {
	return &ImagePromptBuilder{defaultSuffix: suffix}
}

// BuildPanel は、パネルのビジュアル説明、アクション、雰囲気、セリフ、登場人物から1つのプロンプトを組み立てます。
// コミックにスタイルガイドがあれば先頭に付けるのだ。
func (pb *ImagePromptBuilder) BuildPanel(panel domain.Panel, comic domain.Comic) string {
	var sections []string

	// --- 1. 役割と画風 ---
	sections = append(sections, panelSystemInstruction, RenderingStyle)
	if guide := strings.TrimSpace(comic.StyleGuidePrompt); guide != "" {
		sections = append(sections, fmt.Sprintf("### STYLE GUIDE ###\n%s", guide))
	}
	if pb.defaultSuffix != "" {
		sections = append(sections, fmt.Sprintf("### ARTISTIC STYLE ###\n%s", pb.defaultSuffix))
	}

	// --- 2. パネルの内容 ---
	var sb strings.Builder
	sb.WriteString("### SCENE ###\n")
	writeLine(&sb, "VISUAL", panel.VisualDescription)
	writeLine(&sb, "ACTION", panel.Action)
	writeLine(&sb, "MOOD", joinClean("; ", panel.Expectation, panel.Caption))
	writeLine(&sb, "WARD", comic.Ward)
	for _, d := range panel.Dialogue {
		if strings.TrimSpace(d.Line) == "" {
			continue
		}
		sb.WriteString(fmt.Sprintf("- DIALOGUE_CONTEXT: [%s] says \"%s\"\n", d.Character, strings.TrimSpace(d.Line)))
	}
	sections = append(sections, strings.TrimRight(sb.String(), "\n"))

	// --- 3. 登場人物 ---
	if len(comic.Characters) > 0 {
		var cs strings.Builder
		cs.WriteString("### CHARACTERS ###\n")
		for _, c := range comic.Characters {
			cs.WriteString(fmt.Sprintf("- %s\n", c.String()))
		}
		sections = append(sections, strings.TrimRight(cs.String(), "\n"))
	}

	sections = append(sections, CinematicTags, "AVOID: "+NegativePanelPrompt)
	return strings.Join(sections, "\n\n")
}

// EditImagePrompt は既存のプロンプトに編集指示を追記したプロンプトを返します。
func EditImagePrompt(prompt, instruction string) string {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return prompt
	}
	return fmt.Sprintf("%s\n\n### EDIT INSTRUCTION ###\n%s", strings.TrimRight(prompt, "\n"), instruction)
}

func writeLine(sb *strings.Builder, label, value string) {
	if v := strings.TrimSpace(value); v != "" {
		sb.WriteString(fmt.Sprintf("- %s: %s\n", label, v))
	}
}

// joinClean は空でない要素だけを結合します。
func joinClean(sep string, parts ...string) string {
	var cleanParts []string
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			cleanParts = append(cleanParts, s)
		}
	}
	return strings.Join(cleanParts, sep)
}
