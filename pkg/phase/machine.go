package phase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shouni/go-zenith-comic-kit/pkg/ai"
	"github.com/shouni/go-zenith-comic-kit/pkg/collection"
	"github.com/shouni/go-zenith-comic-kit/pkg/domain"
	"github.com/shouni/go-zenith-comic-kit/pkg/prompts"
	"github.com/shouni/go-zenith-comic-kit/pkg/session"
)

var (
	// ErrStale は呼び出し中に画面を離れた、または作品が削除されたため応答を破棄したことを表します。
	ErrStale = errors.New("生成結果は適用されずに破棄されました")
	// ErrInterrupted は前回のプロセスが応答待ちのまま終了していたことを表します。
	ErrInterrupted = errors.New("前回の生成が中断されていました。もう一度お試しください")
)

// Machine はエピソードの段階遷移を駆動し、副作用（保存とモデル呼び出し）を実行します。
type Machine struct {
	episodes *collection.Episodes
	text     ai.TextGenerator
	prompts  prompts.TextPrompt
	rules    Rules
	model    string
	busy     *session.Busy
	epochs   *session.Epochs
}

// MachineArgs は Machine の依存関係です。
type MachineArgs struct {
	Episodes *collection.Episodes
	Text     ai.TextGenerator
	Prompts  prompts.TextPrompt
	Rules    Rules
	Model    string
	Busy     *session.Busy
	Epochs   *session.Epochs
}

// NewMachine は依存関係を検証して Machine を生成します。
func NewMachine(args MachineArgs) (*Machine, error) {
	if args.Episodes == nil {
		return nil, fmt.Errorf("Episodes は必須です")
	}
	if args.Text == nil {
		return nil, fmt.Errorf("TextGenerator は必須です")
	}
	if args.Prompts == nil {
		return nil, fmt.Errorf("TextPrompt は必須です")
	}
	if args.Busy == nil {
		args.Busy = session.NewBusy()
	}
	if args.Epochs == nil {
		args.Epochs = session.NewEpochs()
	}
	if args.Rules.Parser == nil {
		args.Rules.Parser = DefaultParser
	}
	return &Machine{
		episodes: args.Episodes,
		text:     args.Text,
		prompts:  args.Prompts,
		rules:    args.Rules,
		model:    args.Model,
		busy:     args.Busy,
		epochs:   args.Epochs,
	}, nil
}

// Run は受け付けられた1回分の遷移です。
// Accepted が true でモデル呼び出しを伴う場合、応答待ちの状態は既に保存されています。
type Run struct {
	// Accepted はイベントが遷移を引き起こしたかどうかです。false の場合は何も変わっていません。
	Accepted bool
	// Episode は Dispatch 直後のエピソードです。
	Episode domain.Episode

	m       *Machine
	call    *CallModel
	token   session.Token
	release func()

	once   sync.Once
	result domain.Episode
	err    error
}

// Wait はモデル呼び出しを実行して結果を適用し、最終的なエピソードを返します。
// 何度呼んでも最初の結果を返します。
func (r *Run) Wait(ctx context.Context) (domain.Episode, error) {
	r.once.Do(func() {
		if r.call == nil {
			r.result = r.Episode
			return
		}
		defer r.release()
		r.result, r.err = r.m.complete(ctx, r)
	})
	return r.result, r.err
}

// Open はエピソードを開きます。
// start 段階かつ履歴が空なら初期プロンプトで自動的に開始し、応答待ちのまま放置されていれば失敗として回復します。
func (m *Machine) Open(ctx context.Context, id string) (*Run, error) {
	ep, err := m.episodes.Find(id)
	if err != nil {
		return nil, err
	}

	var ev Event
	switch {
	case ep.GenerationPhase.IsPending() && !m.busy.IsBusy(id):
		slog.Warn("Recovering interrupted generation", "id", id, "phase", ep.GenerationPhase)
		ev = Failed{Err: ErrInterrupted}
	case ep.GenerationPhase == domain.PhaseStart && len(ep.History) == 0:
		prompt, err := m.prompts.Build(prompts.ModeEpisodeInitial, prompts.TemplateData{
			EpisodeNumber:   ep.EpisodeNumber,
			Topic:           ep.Topic,
			TextbookContent: ep.TextbookContent,
		})
		if err != nil {
			return nil, err
		}
		ev = AutoStart{Prompt: prompt}
	default:
		return &Run{Episode: ep}, nil
	}

	run, err := m.Dispatch(ctx, id, ev)
	if errors.Is(err, session.ErrBusy) {
		return &Run{Episode: ep}, nil
	}
	return run, err
}

// Respond はユーザー入力で遷移させます。受け付けない段階の入力は何もせず Accepted=false を返します。
func (m *Machine) Respond(ctx context.Context, id, input string) (*Run, error) {
	return m.Dispatch(ctx, id, UserInput{Text: input})
}

// Finish はパネル分割のレビューを終えて complete に進めます。
func (m *Machine) Finish(ctx context.Context, id string) (domain.Episode, error) {
	run, err := m.Dispatch(ctx, id, Finish{})
	if err != nil {
		return domain.Episode{}, err
	}
	if !run.Accepted {
		return run.Episode, fmt.Errorf("%w: 完了にできるのは panel_breakdown_review 段階だけです (現在: %s)", domain.ErrValidation, run.Episode.GenerationPhase)
	}
	return run.Wait(ctx)
}

// Leave はエピソードの画面を離れたことを記録します。進行中の呼び出しの結果は破棄されます。
func (m *Machine) Leave(id string) {
	m.epochs.Invalidate(id)
}

// IsBusy は生成呼び出しが進行中かどうかを返します。
func (m *Machine) IsBusy(id string) bool {
	return m.busy.IsBusy(id)
}

// Dispatch はイベントで遷移させ、モデル呼び出しが必要なら応答待ちの状態を保存した Run を返します。
func (m *Machine) Dispatch(ctx context.Context, id string, ev Event) (*Run, error) {
	release, ok := m.busy.TryAcquire(id)
	if !ok {
		return nil, session.ErrBusy
	}

	ep, err := m.episodes.Find(id)
	if err != nil {
		release()
		return nil, err
	}

	next, effects := m.rules.Transition(StateOf(ep), ev)
	if len(effects) == 0 {
		release()
		return &Run{Episode: ep}, nil
	}

	token := m.epochs.Begin(id)
	ep, call, err := m.apply(ctx, ep, next, effects)
	if err != nil {
		release()
		return nil, err
	}
	slog.Info("Episode phase changed", "id", id, "phase", ep.GenerationPhase)

	run := &Run{Accepted: true, Episode: ep, m: m, call: call, token: token, release: release}
	if call == nil {
		release()
	}
	return run, nil
}

// complete はモデルを呼び出し、結果を最新のエピソードに適用します。
func (m *Machine) complete(ctx context.Context, r *Run) (domain.Episode, error) {
	id := r.Episode.ID
	resp, callErr := m.text.GenerateText(ctx, ai.TextRequest{
		Model:             m.model,
		SystemInstruction: prompts.MasterPrompt,
		History:           r.Episode.History,
		Message:           r.call.Prompt,
	})

	var ev Event = Succeeded{Prompt: r.call.Prompt, Response: resp}
	if callErr != nil {
		slog.Error("Episode generation failed", "id", id, "phase", r.Episode.GenerationPhase, "error", callErr)
		ev = Failed{Err: callErr}
	}

	current, err := m.episodes.Find(id)
	if err != nil {
		slog.Warn("Discarding response for deleted episode", "id", id)
		return r.Episode, ErrStale
	}
	stale := !r.token.Current()
	if stale {
		slog.Warn("Discarding stale response", "id", id, "phase", current.GenerationPhase)
		ev = Abandoned{}
	}

	// 呼び出しの期限切れやキャンセルで結果の保存まで止めないのだ。
	next, effects := m.rules.Transition(StateOf(current), ev)
	ep, _, err := m.apply(context.WithoutCancel(ctx), current, next, effects)
	if err != nil {
		return current, err
	}

	switch {
	case stale:
		return ep, ErrStale
	case callErr != nil:
		return ep, fmt.Errorf("エピソードの生成に失敗しました: %w", callErr)
	}
	return ep, nil
}

// apply は副作用を順に実行します。モデル呼び出しは実行せずに返すのだ。
func (m *Machine) apply(ctx context.Context, ep domain.Episode, next State, effects []Effect) (domain.Episode, *CallModel, error) {
	var call *CallModel
	for _, eff := range effects {
		switch e := eff.(type) {
		case AppendHistory:
			ep = ep.AppendTurns(e.Prompt, e.Response)
		case ReportError:
			ep.LastError = e.Message
		case Persist:
			ep = Apply(ep, next)
			if err := m.episodes.Update(ctx, ep); err != nil {
				return ep, nil, err
			}
		case CallModel:
			c := e
			call = &c
		}
	}
	return ep, call, nil
}
