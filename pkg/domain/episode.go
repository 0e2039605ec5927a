package domain

import (
	"fmt"
	"strings"
	"time"
)

// Role は会話履歴の発話者です。
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Turn は会話履歴の1発話です。
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Phase はエピソード生成ワークフローの現在の段階です。
type Phase string

const (
	PhaseStart                 Phase = "start"
	PhaseArcProposalPending    Phase = "arc_proposal_pending"
	PhaseArcProposalReview     Phase = "arc_proposal_review"
	PhaseEpisodeWritingPending Phase = "episode_writing_pending"
	PhaseEpisodeReview         Phase = "episode_review"
	PhasePanelBreakdownPending Phase = "panel_breakdown_pending"
	PhasePanelBreakdownReview  Phase = "panel_breakdown_review"
	PhaseComplete              Phase = "complete"
)

// IsPending はモデル応答待ちの段階であれば true を返します。
func (p Phase) IsPending() bool {
	return strings.HasSuffix(string(p), "_pending")
}

// Episode はエピソードビルダーの作品です。
// History は追記のみで、生成会話の唯一の永続記録なのだ。
type Episode struct {
	ID              string    `json:"id"`
	EpisodeNumber   int       `json:"episodeNumber"`
	Topic           string    `json:"topic"`
	TextbookContent string    `json:"textbookContent"`
	CreatedAt       time.Time `json:"createdAt"`
	GenerationPhase Phase     `json:"generationPhase"`
	History         []Turn    `json:"history"`

	StoryArcProposal        *string `json:"storyArcProposal,omitempty"`
	FullEpisodeScript       *string `json:"fullEpisodeScript,omitempty"`
	CharacterDatabaseUpdate *string `json:"characterDatabaseUpdate,omitempty"`
	PanelBreakdown          *string `json:"panelBreakdown,omitempty"`

	// LastError は直近の生成失敗時にユーザーへ表示するメッセージです。
	LastError string `json:"lastError,omitempty"`
}

// EpisodeInput は作成フォームから受け取る入力です。
type EpisodeInput struct {
	Topic           string `json:"topic"`
	TextbookContent string `json:"textbookContent"`
}

// Validate は必須項目を検証します。
func (in EpisodeInput) Validate() error {
	if strings.TrimSpace(in.Topic) == "" {
		return fmt.Errorf("%w: topic は必須です", ErrValidation)
	}
	if strings.TrimSpace(in.TextbookContent) == "" {
		return fmt.Errorf("%w: textbookContent は必須です", ErrValidation)
	}
	return nil
}

// NewEpisode は start 段階の新しいエピソードを生成します。
func NewEpisode(id string, number int, in EpisodeInput, now time.Time) (Episode, error) {
	if err := in.Validate(); err != nil {
		return Episode{}, err
	}
	return Episode{
		ID:              id,
		EpisodeNumber:   number,
		Topic:           strings.TrimSpace(in.Topic),
		TextbookContent: in.TextbookContent,
		CreatedAt:       now.UTC(),
		GenerationPhase: PhaseStart,
		History:         []Turn{},
	}, nil
}

// AppendTurns はユーザー発話とモデル応答を履歴の末尾に追加したコピーを返します。
func (e Episode) AppendTurns(prompt, response string) Episode {
	h := make([]Turn, 0, len(e.History)+2)
	h = append(h, e.History...)
	e.History = append(h,
		Turn{Role: RoleUser, Text: prompt},
		Turn{Role: RoleModel, Text: response},
	)
	return e
}

// StringPtr は文字列のポインタを返すヘルパーです。
func StringPtr(s string) *string { return &s }
