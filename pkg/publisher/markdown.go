package publisher

import (
	"fmt"
	"strings"

	"github.com/shouni/go-zenith-comic-kit/pkg/domain"
)

// ComicMarkdown はコミック全体を Markdown に変換します。
// 見出し、作品情報、パネルごとの画像・ビジュアル説明・キャプション・セリフ・推論の順に並べるのだ。
func ComicMarkdown(c domain.Comic) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# %s\n\n", c.Topic))
	sb.WriteString(fmt.Sprintf("**Subject:** %s\n", c.Subject))
	sb.WriteString(fmt.Sprintf("**Ward:** %s\n", c.Ward))
	sb.WriteString(fmt.Sprintf("**Characters:** %s\n\n", strings.Join(c.Characters.Names(), ", ")))

	for i, p := range c.Panels {
		sb.WriteString(fmt.Sprintf("## Panel %d\n\n", i+1))
		if p.Image != nil && p.Image.Data != "" && p.Image.MimeType != "" {
			sb.WriteString(fmt.Sprintf("![Visual Description: %s](%s)\n\n", p.VisualDescription, p.Image.DataURI()))
		}
		sb.WriteString(fmt.Sprintf("**Visual Description:** %s\n\n", p.VisualDescription))

		if p.Caption != "" {
			sb.WriteString(fmt.Sprintf("**Caption:** %s\n\n", p.Caption))
		}

		if len(p.Dialogue) > 0 {
			sb.WriteString("**Dialogue:**\n")
			for _, d := range p.Dialogue {
				sb.WriteString(fmt.Sprintf("*   **%s:** \"%s\"\n", d.Character, d.Line))
			}
			sb.WriteString("\n")
		}

		sb.WriteString(fmt.Sprintf("*   **Observation:** %s\n", p.Observation))
		sb.WriteString(fmt.Sprintf("*   **Reasoning:** %s\n", p.Reasoning))
		sb.WriteString(fmt.Sprintf("*   **Action:** %s\n", p.Action))
		sb.WriteString(fmt.Sprintf("*   **Expectation:** %s\n", p.Expectation))
		sb.WriteString(fmt.Sprintf("*   **Suggestions/Corrections:** %s\n\n", p.Suggestions))
	}
	return sb.String()
}

// EpisodeMarkdown はエピソードの成果物を Markdown に変換します。未生成のフィールドは出力しません。
func EpisodeMarkdown(e domain.Episode) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# Episode %d: %s\n\n", e.EpisodeNumber, e.Topic))
	sb.WriteString(fmt.Sprintf("**Phase:** %s\n\n", e.GenerationPhase))

	sections := []struct {
		title string
		value *string
	}{
		{"Story Arc Proposal", e.StoryArcProposal},
		{"Full Episode Script", e.FullEpisodeScript},
		{"Character Database Update", e.CharacterDatabaseUpdate},
		{"Panel Breakdown", e.PanelBreakdown},
	}
	for _, s := range sections {
		if s.value == nil || strings.TrimSpace(*s.value) == "" {
			continue
		}
		sb.WriteString(fmt.Sprintf("## %s\n\n%s\n\n", s.title, strings.TrimSpace(*s.value)))
	}
	return sb.String()
}
