// Package phase はエピソード生成の段階遷移を扱います。
//
// 状態は段階ごとの型を持つタグ付き共用体として表し、遷移は (状態, イベント) から
// (次の状態, 副作用) を返す純粋関数です。副作用の実行は Machine が担当します。
package phase

import "github.com/shouni/go-zenith-comic-kit/pkg/domain"

// State は段階ごとの状態です。実装はこのパッケージ内の型に限られます。
type State interface {
	Phase() domain.Phase
	state()
}

// Start は作成直後の状態です。Fresh は会話履歴が空であることを表します。
type Start struct{ Fresh bool }

// ArcProposalPending はストーリーアーク提案を待っている状態です。
type ArcProposalPending struct{}

// ArcProposalReview はストーリーアーク提案のレビュー中です。
// Proposal が nil の場合は既存の値を変更しません。
type ArcProposalReview struct{ Proposal *string }

// EpisodeWritingPending はエピソード本文を待っている状態です。
type EpisodeWritingPending struct{}

// EpisodeDraft はエピソード執筆応答から取り出したフィールドです。
type EpisodeDraft struct {
	Script          string
	CharacterUpdate *string
}

// EpisodeReview はエピソード本文のレビュー中です。
// Draft が nil の場合は既存の値を変更しません。
type EpisodeReview struct{ Draft *EpisodeDraft }

// PanelBreakdownPending はパネル分割を待っている状態です。
type PanelBreakdownPending struct{}

// PanelBreakdownReview はパネル分割のレビュー中です。
// Breakdown が nil の場合は既存の値を変更しません。
type PanelBreakdownReview struct{ Breakdown *string }

// Complete は終端状態です。
type Complete struct{}

// Unknown は保存データにある未知の段階です。どのイベントにも反応しません。
type Unknown struct{ Raw domain.Phase }

func (Start) Phase() domain.Phase                 { return domain.PhaseStart }
func (ArcProposalPending) Phase() domain.Phase    { return domain.PhaseArcProposalPending }
func (ArcProposalReview) Phase() domain.Phase     { return domain.PhaseArcProposalReview }
func (EpisodeWritingPending) Phase() domain.Phase { return domain.PhaseEpisodeWritingPending }
func (EpisodeReview) Phase() domain.Phase         { return domain.PhaseEpisodeReview }
func (PanelBreakdownPending) Phase() domain.Phase { return domain.PhasePanelBreakdownPending }
func (PanelBreakdownReview) Phase() domain.Phase  { return domain.PhasePanelBreakdownReview }
func (Complete) Phase() domain.Phase              { return domain.PhaseComplete }
func (u Unknown) Phase() domain.Phase             { return u.Raw }

func (Start) state()                 {}
func (ArcProposalPending) state()    {}
func (ArcProposalReview) state()     {}
func (EpisodeWritingPending) state() {}
func (EpisodeReview) state()         {}
func (PanelBreakdownPending) state() {}
func (PanelBreakdownReview) state()  {}
func (Complete) state()              {}
func (Unknown) state()               {}

// StateOf は保存されているエピソードから現在の状態を組み立てます。
func StateOf(ep domain.Episode) State {
	switch ep.GenerationPhase {
	case domain.PhaseStart, "":
		return Start{Fresh: len(ep.History) == 0}
	case domain.PhaseArcProposalPending:
		return ArcProposalPending{}
	case domain.PhaseArcProposalReview:
		return ArcProposalReview{}
	case domain.PhaseEpisodeWritingPending:
		return EpisodeWritingPending{}
	case domain.PhaseEpisodeReview:
		return EpisodeReview{}
	case domain.PhasePanelBreakdownPending:
		return PanelBreakdownPending{}
	case domain.PhasePanelBreakdownReview:
		return PanelBreakdownReview{}
	case domain.PhaseComplete:
		return Complete{}
	}
	return Unknown{Raw: ep.GenerationPhase}
}

// Apply は状態をエピソードに書き戻したコピーを返します。
// 状態が持たないフィールドには触れないため、失敗時の巻き戻しでも既存の成果物は残るのだ。
func Apply(ep domain.Episode, s State) domain.Episode {
	ep.GenerationPhase = s.Phase()
	switch st := s.(type) {
	case ArcProposalPending, EpisodeWritingPending, PanelBreakdownPending:
		ep.LastError = ""
	case ArcProposalReview:
		if st.Proposal != nil {
			ep.StoryArcProposal = domain.StringPtr(*st.Proposal)
		}
	case EpisodeReview:
		if st.Draft != nil {
			ep.FullEpisodeScript = domain.StringPtr(st.Draft.Script)
			ep.CharacterDatabaseUpdate = nil
			if st.Draft.CharacterUpdate != nil {
				ep.CharacterDatabaseUpdate = domain.StringPtr(*st.Draft.CharacterUpdate)
			}
		}
	case PanelBreakdownReview:
		if st.Breakdown != nil {
			ep.PanelBreakdown = domain.StringPtr(*st.Breakdown)
		}
	}
	return ep
}
