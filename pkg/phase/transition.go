package phase

import (
	"fmt"
	"strings"
)

// PanelRequestPhrase を含む入力だけがエピソードレビューからパネル分割へ進めます（大文字小文字は区別しない）。
const PanelRequestPhrase = "generate panels"

// Event は状態遷移のきっかけです。
type Event interface{ event() }

// AutoStart は作成直後のエピソードを開いたときの自動開始です。Prompt は合成済みの初期プロンプトです。
type AutoStart struct{ Prompt string }

// UserInput はユーザーの入力です。
type UserInput struct{ Text string }

// Succeeded はモデル呼び出しの成功です。
type Succeeded struct {
	Prompt   string
	Response string
}

// Failed はモデル呼び出しの失敗です。
type Failed struct{ Err error }

// Abandoned は画面を離れたなどの理由で応答を適用しないことを表します。
type Abandoned struct{}

// Finish はパネル分割のレビューを終えて完了にする操作です。
type Finish struct{}

func (AutoStart) event() {}
func (UserInput) event() {}
func (Succeeded) event() {}
func (Failed) event()    {}
func (Abandoned) event() {}
func (Finish) event()    {}

// Effect は遷移に伴う副作用の指示です。
type Effect interface{ effect() }

// Persist は新しい状態をエピソードに書き戻して保存します。
type Persist struct{}

// CallModel は会話履歴に Prompt を加えてテキストモデルを呼び出します。
type CallModel struct{ Prompt string }

// AppendHistory はユーザー発話とモデル応答を履歴に追加します。
type AppendHistory struct {
	Prompt   string
	Response string
}

// ReportError はユーザーに見せるエラーメッセージを記録します。
type ReportError struct{ Message string }

func (Persist) effect()       {}
func (CallModel) effect()     {}
func (AppendHistory) effect() {}
func (ReportError) effect()   {}

// FailurePolicy はモデル呼び出し失敗時の戻り先を決めます。
type FailurePolicy int

const (
	// RevertToArcProposalReview は失敗した段階に関係なく arc_proposal_review に戻します。
	// 元の実装の挙動で、直前の段階に戻らない点は既知の食い違いとして残しています。
	RevertToArcProposalReview FailurePolicy = iota
	// RevertToPrevious は呼び出し前の段階に戻します。
	RevertToPrevious
)

// ParseFailurePolicy は設定値を FailurePolicy に変換します。
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "arc_proposal_review":
		return RevertToArcProposalReview, nil
	case "previous":
		return RevertToPrevious, nil
	}
	return 0, fmt.Errorf("不明な失敗時ポリシーです: '%s'", s)
}

// Rules は遷移の規則です。
type Rules struct {
	Policy FailurePolicy
	Parser ResponseParser
}

// DefaultRules は元の挙動どおりの規則です。
var DefaultRules = Rules{Policy: RevertToArcProposalReview, Parser: DefaultParser}

// Transition は DefaultRules で遷移します。
func Transition(s State, ev Event) (State, []Effect) {
	return DefaultRules.Transition(s, ev)
}

// Transition は現在の状態とイベントから次の状態と副作用を返します。
// 受け付けない組み合わせでは状態をそのまま返し、副作用は空です。
func (r Rules) Transition(s State, ev Event) (State, []Effect) {
	switch st := s.(type) {
	case Start:
		if e, ok := ev.(AutoStart); ok && st.Fresh {
			return ArcProposalPending{}, []Effect{Persist{}, CallModel{Prompt: e.Prompt}}
		}

	case ArcProposalReview:
		if e, ok := ev.(UserInput); ok && strings.TrimSpace(e.Text) != "" {
			return EpisodeWritingPending{}, []Effect{Persist{}, CallModel{Prompt: e.Text}}
		}

	case EpisodeReview:
		if e, ok := ev.(UserInput); ok && RequestsPanels(e.Text) {
			return PanelBreakdownPending{}, []Effect{Persist{}, CallModel{Prompt: e.Text}}
		}

	case PanelBreakdownReview:
		if _, ok := ev.(Finish); ok {
			return Complete{}, []Effect{Persist{}}
		}

	case ArcProposalPending, EpisodeWritingPending, PanelBreakdownPending:
		return r.settle(s, ev)
	}
	return s, nil
}

// settle は応答待ちの状態に届いた結果を処理します。
func (r Rules) settle(s State, ev Event) (State, []Effect) {
	switch e := ev.(type) {
	case Succeeded:
		history := AppendHistory{Prompt: e.Prompt, Response: e.Response}
		switch s.(type) {
		case ArcProposalPending:
			return ArcProposalReview{Proposal: &e.Response}, []Effect{history, Persist{}}
		case EpisodeWritingPending:
			draft := r.parser().ParseEpisode(e.Response)
			return EpisodeReview{Draft: &draft}, []Effect{history, Persist{}}
		case PanelBreakdownPending:
			return PanelBreakdownReview{Breakdown: &e.Response}, []Effect{history, Persist{}}
		}

	case Failed:
		msg := "生成に失敗しました"
		if e.Err != nil {
			msg = e.Err.Error()
		}
		return r.failureTarget(s), []Effect{ReportError{Message: msg}, Persist{}}

	case Abandoned:
		return previous(s), []Effect{Persist{}}
	}
	return s, nil
}

func (r Rules) failureTarget(s State) State {
	if r.Policy == RevertToPrevious {
		return previous(s)
	}
	return ArcProposalReview{}
}

func (r Rules) parser() ResponseParser {
	if r.Parser == nil {
		return DefaultParser
	}
	return r.Parser
}

// previous は応答待ちの段階に入る直前の段階を返します。各応答待ちの段階に入る経路は1つだけなのだ。
func previous(s State) State {
	switch s.(type) {
	case ArcProposalPending:
		return Start{Fresh: true}
	case EpisodeWritingPending:
		return ArcProposalReview{}
	case PanelBreakdownPending:
		return EpisodeReview{}
	}
	return s
}

// RequestsPanels は入力がパネル分割の要求かどうかを判定します。
func RequestsPanels(input string) bool {
	return strings.Contains(strings.ToLower(input), PanelRequestPhrase)
}
