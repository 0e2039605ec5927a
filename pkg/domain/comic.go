package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	// initialSummaryRunes は最初の抜粋から要約を作るときの最大文字数です。
	initialSummaryRunes = 100
	// firstBatchProgress は最初のパネル群を確定したときの進捗値です。
	firstBatchProgress = 10
)

// StoryState はコミックの物語の進み具合を保持します。パネル群を確定するたびに更新されます。
type StoryState struct {
	LastPanelSummary  string `json:"lastPanelSummary"`
	CompletedExcerpts int    `json:"completedExcerpts"`
}

// Comic はコミックビルダーの作品です。
type Comic struct {
	ID               string     `json:"id"`
	Subject          string     `json:"subject"`
	Topic            string     `json:"topic"`
	Ward             string     `json:"ward"`
	Characters       Characters `json:"characters"`
	StyleGuidePrompt string     `json:"styleGuidePrompt,omitempty"`
	StoryState       StoryState `json:"storyState"`
	Panels           Panels     `json:"panels"`
	Progress         int        `json:"progress"`
	CreatedAt        time.Time  `json:"createdAt"`
}

// ComicInput は作成フォームから受け取る入力です。
type ComicInput struct {
	Subject        string     `json:"subject"`
	Topic          string     `json:"topic"`
	Ward           string     `json:"ward"`
	Characters     Characters `json:"characters"`
	InitialExcerpt string     `json:"initialExcerpt"`
}

// Validate は必須項目を検証します。
func (in ComicInput) Validate() error {
	var missing []string
	if strings.TrimSpace(in.Subject) == "" {
		missing = append(missing, "subject")
	}
	if strings.TrimSpace(in.Topic) == "" {
		missing = append(missing, "topic")
	}
	if strings.TrimSpace(in.Ward) == "" {
		missing = append(missing, "ward")
	}
	if strings.TrimSpace(in.InitialExcerpt) == "" {
		missing = append(missing, "initialExcerpt")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: 必須項目が未入力です (%s)", ErrValidation, strings.Join(missing, ", "))
	}
	return ValidateCharacters(in.Characters)
}

// NewComic は検証済みの入力から新しいコミックを生成します。
func NewComic(id string, in ComicInput, now time.Time) (Comic, error) {
	if err := in.Validate(); err != nil {
		return Comic{}, err
	}
	chars := make(Characters, len(in.Characters))
	copy(chars, in.Characters)

	return Comic{
		ID:         id,
		Subject:    strings.TrimSpace(in.Subject),
		Topic:      strings.TrimSpace(in.Topic),
		Ward:       strings.TrimSpace(in.Ward),
		Characters: chars,
		StoryState: StoryState{
			LastPanelSummary:  initialSummary(in.InitialExcerpt),
			CompletedExcerpts: 0,
		},
		Panels:    Panels{},
		Progress:  0,
		CreatedAt: now.UTC(),
	}, nil
}

func initialSummary(excerpt string) string {
	r := []rune(excerpt)
	if len(r) > initialSummaryRunes {
		r = r[:initialSummaryRunes]
	}
	return string(r) + "..."
}

// FinishExcerpt は下書きパネル群をコミックに確定したコピーを返します。
// ビジュアル説明が空の下書きが1つでもあれば ErrMissingVisualDescription を返し、元のコミックは変更しません。
func (c Comic) FinishExcerpt(drafts Panels) (Comic, error) {
	if len(drafts) == 0 {
		return c, fmt.Errorf("%w: 確定する下書きパネルがありません", ErrValidation)
	}
	if drafts.MissingVisualDescription() {
		return c, ErrMissingVisualDescription
	}

	oldCount := len(c.Panels)
	updated := make(Panels, 0, oldCount+len(drafts))
	updated = append(updated, c.Panels...)
	updated = append(updated, drafts...)

	c.Panels = updated
	c.Progress = Progress(oldCount, len(updated))

	if summary := drafts[len(drafts)-1].Summary(); summary != "" {
		c.StoryState.LastPanelSummary = summary
	}
	c.StoryState.CompletedExcerpts++

	return c, nil
}

// Progress は確定前後のパネル数から進捗率を計算します。
// 既存パネルが無い場合は固定で 10 なのだ。単調増加は保証されません。
func Progress(oldCount, newTotal int) int {
	if oldCount <= 0 {
		return firstBatchProgress
	}
	ratio := float64(newTotal) / (float64(oldCount) * 1.5) * 100
	return int(math.Round(math.Min(100, ratio)))
}

// ReplacePanel は同じ ID のパネルを置き換えたコピーを返します。
func (c Comic) ReplacePanel(p Panel) (Comic, error) {
	i := c.Panels.Index(p.ID)
	if i < 0 {
		return c, fmt.Errorf("%w: パネル '%s' が見つかりません", ErrValidation, p.ID)
	}
	panels := make(Panels, len(c.Panels))
	copy(panels, c.Panels)
	panels[i] = p
	c.Panels = panels
	return c, nil
}

// FindPanel は ID からパネルを取得します。
func (c Comic) FindPanel(id string) (Panel, bool) {
	i := c.Panels.Index(id)
	if i < 0 {
		return Panel{}, false
	}
	return c.Panels[i], true
}
