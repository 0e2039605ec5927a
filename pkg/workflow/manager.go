package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/shouni/go-zenith-comic-kit/pkg/ai"
	"github.com/shouni/go-zenith-comic-kit/pkg/collection"
	"github.com/shouni/go-zenith-comic-kit/pkg/config"
	"github.com/shouni/go-zenith-comic-kit/pkg/domain"
	"github.com/shouni/go-zenith-comic-kit/pkg/phase"
	"github.com/shouni/go-zenith-comic-kit/pkg/prompts"
	"github.com/shouni/go-zenith-comic-kit/pkg/runner"
	"github.com/shouni/go-zenith-comic-kit/pkg/session"
	"github.com/shouni/go-zenith-comic-kit/pkg/store"
)

// ManagerArgs は Manager の依存関係です。クライアントやビルダーを省略すると設定から構築します。
type ManagerArgs struct {
	Config   config.Config
	KV       store.KV
	Notifier collection.Notifier

	Text        ai.TextGenerator
	Completer   ai.Completer
	Image       ai.ImageGenerator
	TextPrompt  prompts.TextPrompt
	ImagePrompt prompts.ImagePrompt
}

// Manager は、コミックとエピソードの2つのワークフローを構成する部品を保持し、操作を提供します。
type Manager struct {
	cfg config.Config

	comics   *collection.Comics
	episodes *collection.Episodes
	drafts   *Drafts

	panelRunner      PanelRunner
	regenerateRunner RegenerateRunner
	styleGuideRunner StyleGuideRunner
	imageRunner      ImageRunner

	machine    *phase.Machine
	comicsBusy *session.Busy
}

// New は、設定を基に新しい Manager を初期化します。
func New(ctx context.Context, args ManagerArgs) (*Manager, error) {
	if args.KV == nil {
		return nil, fmt.Errorf("KV は必須です")
	}
	if err := args.Config.Validate(); err != nil {
		return nil, err
	}

	if err := initializeClients(ctx, &args); err != nil {
		return nil, err
	}

	tPrompt, err := initializeTextPrompt(args.TextPrompt)
	if err != nil {
		return nil, err
	}
	iPrompt := initializeImagePrompt(args.ImagePrompt, args.Config.StyleSuffix)

	policy, err := phase.ParseFailurePolicy(args.Config.FailurePolicy)
	if err != nil {
		return nil, err
	}

	var comicOpts []collection.Option[domain.Comic]
	var episodeOpts []collection.Option[domain.Episode]
	if args.Notifier != nil {
		comicOpts = append(comicOpts, collection.WithNotifier[domain.Comic](args.Notifier))
		episodeOpts = append(episodeOpts, collection.WithNotifier[domain.Episode](args.Notifier))
	}
	comics := collection.NewComics(ctx, args.KV, comicOpts...)
	episodes := collection.NewEpisodes(ctx, args.KV, episodeOpts...)

	machine, err := phase.NewMachine(phase.MachineArgs{
		Episodes: episodes,
		Text:     args.Text,
		Prompts:  tPrompt,
		Rules:    phase.Rules{Policy: policy, Parser: phase.DefaultParser},
		Model:    args.Config.EpisodeModel,
	})
	if err != nil {
		return nil, fmt.Errorf("フェーズマシンの初期化に失敗しました: %w", err)
	}

	return &Manager{
		cfg:              args.Config,
		comics:           comics,
		episodes:         episodes,
		drafts:           NewDrafts(ctx, args.KV),
		panelRunner:      runner.NewPanelRunner(args.Text, tPrompt, args.Config.GeminiModel),
		regenerateRunner: runner.NewRegenerateRunner(args.Completer, tPrompt),
		styleGuideRunner: runner.NewStyleGuideRunner(args.Completer, tPrompt),
		imageRunner:      runner.NewImageRunner(args.Image, iPrompt, args.Config.ImageConcurrency),
		machine:          machine,
		comicsBusy:       session.NewBusy(),
	}, nil
}

// initializeClients は、省略されたクライアントを設定から構築して args を埋めます。
func initializeClients(ctx context.Context, args *ManagerArgs) error {
	if args.Text != nil && args.Completer != nil && args.Image != nil {
		return nil
	}
	built, err := buildClients(ctx, args.Config, ai.NewLimiter(args.Config.RateInterval))
	if err != nil {
		return fmt.Errorf("AIクライアントの初期化に失敗しました: %w", err)
	}
	if args.Text == nil {
		args.Text = built.text
	}
	if args.Completer == nil {
		args.Completer = built.completer
	}
	if args.Image == nil {
		args.Image = built.image
	}
	return nil
}

// initializeTextPrompt は TextPrompt ビルダーを初期化します。
// 引数として既存のビルダーが渡された場合はそれを返し、nil の場合は新規作成します。
func initializeTextPrompt(textPrompt prompts.TextPrompt) (prompts.TextPrompt, error) {
	if textPrompt != nil {
		return textPrompt, nil
	}

	pb, err := prompts.NewTextPromptBuilder()
	if err != nil {
		return nil, fmt.Errorf("TextPromptBuilder の新規作成に失敗しました: %w", err)
	}

	return pb, nil
}

// initializeImagePrompt は ImagePromptBuilder を初期化します。
func initializeImagePrompt(imagePrompt prompts.ImagePrompt, styleSuffix string) prompts.ImagePrompt {
	if imagePrompt != nil {
		return imagePrompt
	}

	return prompts.NewImagePromptBuilder(styleSuffix)
}

// Config は Manager の設定を返します。
func (m *Manager) Config() config.Config { return m.cfg }

// Comics はコミック一覧を返します。
func (m *Manager) Comics() *collection.Comics { return m.comics }

// Episodes はエピソード一覧を返します。
func (m *Manager) Episodes() *collection.Episodes { return m.episodes }

// SetNotifier は両方の一覧の変更通知の受け手を差し替えます。
func (m *Manager) SetNotifier(n collection.Notifier) {
	m.comics.SetNotifier(n)
	m.episodes.SetNotifier(n)
}

// ClearAll はすべての作品と下書きを削除します。
func (m *Manager) ClearAll(ctx context.Context) error {
	for _, e := range m.episodes.All() {
		m.machine.Leave(e.ID)
	}
	return errors.Join(m.comics.Clear(ctx), m.episodes.Clear(ctx), m.drafts.Clear(ctx))
}

// ClearComics はすべてのコミックと下書きを削除します。
func (m *Manager) ClearComics(ctx context.Context) error {
	return errors.Join(m.comics.Clear(ctx), m.drafts.Clear(ctx))
}
