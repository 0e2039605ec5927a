package phase

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shouni/go-zenith-comic-kit/pkg/ai"
	"github.com/shouni/go-zenith-comic-kit/pkg/collection"
	"github.com/shouni/go-zenith-comic-kit/pkg/domain"
	"github.com/shouni/go-zenith-comic-kit/pkg/prompts"
	"github.com/shouni/go-zenith-comic-kit/pkg/session"
	"github.com/shouni/go-zenith-comic-kit/pkg/store"
)

// fakeText は呼び出しを記録し、設定された応答を返すテスト用の TextGenerator です。
type fakeText struct {
	mu       sync.Mutex
	requests []ai.TextRequest
	response string
	err      error
	// gate が設定されていれば、閉じられるまで応答を返しません。
	gate chan struct{}
}

func (f *fakeText) GenerateText(ctx context.Context, req ai.TextRequest) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.response, f.err
}

func (f *fakeText) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func newTestMachine(t *testing.T, text ai.TextGenerator, rules Rules) (*Machine, *collection.Episodes) {
	t.Helper()
	return newTestMachineWithKV(t, store.NewMemoryKV(), text, rules)
}

func newTestMachineWithKV(t *testing.T, kv store.KV, text ai.TextGenerator, rules Rules) (*Machine, *collection.Episodes) {
	t.Helper()
	ctx := context.Background()
	episodes := collection.NewEpisodes(ctx, kv)
	builder, err := prompts.NewTextPromptBuilder()
	if err != nil {
		t.Fatalf("プロンプトビルダーの生成に失敗しました: %v", err)
	}
	m, err := NewMachine(MachineArgs{
		Episodes: episodes,
		Text:     text,
		Prompts:  builder,
		Rules:    rules,
		Model:    "test-model",
	})
	if err != nil {
		t.Fatalf("NewMachine に失敗しました: %v", err)
	}
	return m, episodes
}

func createEpisode(t *testing.T, episodes *collection.Episodes) domain.Episode {
	t.Helper()
	ep, err := episodes.CreateEpisode(context.Background(), domain.EpisodeInput{
		Topic:           "Pre-eclampsia",
		TextbookContent: "Hypertension after 20 weeks of gestation...",
	})
	if err != nil {
		t.Fatalf("エピソードの作成に失敗しました: %v", err)
	}
	return ep
}

// seed はエピソードを任意の段階に置きます。
func seed(t *testing.T, episodes *collection.Episodes, ep domain.Episode) {
	t.Helper()
	if err := episodes.Update(context.Background(), ep); err != nil {
		t.Fatalf("更新に失敗しました: %v", err)
	}
}

func TestMachine_OpenAutoStart(t *testing.T) {
	ctx := context.Background()
	text := &fakeText{response: "STORY ARC: ..."}
	m, episodes := newTestMachine(t, text, DefaultRules)
	ep := createEpisode(t, episodes)

	run, err := m.Open(ctx, ep.ID)
	if err != nil {
		t.Fatalf("Open に失敗しました: %v", err)
	}
	if !run.Accepted || run.Episode.GenerationPhase != domain.PhaseArcProposalPending {
		t.Fatalf("自動開始されていません: %+v", run)
	}
	stored, _ := episodes.Find(ep.ID)
	if stored.GenerationPhase != domain.PhaseArcProposalPending {
		t.Errorf("応答待ちの段階が保存されていません: %s", stored.GenerationPhase)
	}

	got, err := run.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait に失敗しました: %v", err)
	}
	if got.GenerationPhase != domain.PhaseArcProposalReview {
		t.Errorf("段階: 期待値 %s, 実際の値 %s", domain.PhaseArcProposalReview, got.GenerationPhase)
	}
	if got.StoryArcProposal == nil || *got.StoryArcProposal != "STORY ARC: ..." {
		t.Errorf("アーク提案が保存されていません: %v", got.StoryArcProposal)
	}
	if len(got.History) != 2 || got.History[0].Role != domain.RoleUser || got.History[1].Text != "STORY ARC: ..." {
		t.Errorf("履歴が不正です: %+v", got.History)
	}
	if !strings.Contains(got.History[0].Text, "Episode Number: 1") || !strings.Contains(got.History[0].Text, "Topic: Pre-eclampsia") {
		t.Errorf("初期プロンプトが不正です: %q", got.History[0].Text)
	}

	req := text.requests[0]
	if req.SystemInstruction != prompts.MasterPrompt || req.Model != "test-model" || len(req.History) != 0 {
		t.Errorf("モデル呼び出しの内容が不正です: %+v", req)
	}

	t.Run("再度開いても自動開始しないこと", func(t *testing.T) {
		run, err := m.Open(ctx, ep.ID)
		if err != nil {
			t.Fatalf("Open に失敗しました: %v", err)
		}
		if run.Accepted || text.calls() != 1 {
			t.Errorf("二度目の自動開始が発生しました (calls=%d)", text.calls())
		}
	})
}

func TestMachine_AutoStartIsExactlyOnce(t *testing.T) {
	ctx := context.Background()
	text := &fakeText{response: "arc", gate: make(chan struct{})}
	m, episodes := newTestMachine(t, text, DefaultRules)
	ep := createEpisode(t, episodes)

	first, err := m.Open(ctx, ep.ID)
	if err != nil || !first.Accepted {
		t.Fatalf("最初の Open が受け付けられていません: %v", err)
	}
	second, err := m.Open(ctx, ep.ID)
	if err != nil {
		t.Fatalf("二度目の Open に失敗しました: %v", err)
	}
	if second.Accepted {
		t.Error("呼び出し中の二度目の Open が受け付けられました")
	}
	if !m.IsBusy(ep.ID) {
		t.Error("呼び出し中は busy であるはずです")
	}

	close(text.gate)
	if _, err := first.Wait(ctx); err != nil {
		t.Fatalf("Wait に失敗しました: %v", err)
	}
	if text.calls() != 1 {
		t.Errorf("モデル呼び出し回数: 期待値 1, 実際の値 %d", text.calls())
	}
	if m.IsBusy(ep.ID) {
		t.Error("完了後も busy のままです")
	}
}

func TestMachine_FailureRevertsWithoutHistory(t *testing.T) {
	ctx := context.Background()
	text := &fakeText{err: errors.New("quota exceeded")}
	m, episodes := newTestMachine(t, text, DefaultRules)
	ep := createEpisode(t, episodes)
	ep.GenerationPhase = domain.PhaseEpisodeReview
	ep.History = []domain.Turn{{Role: domain.RoleUser, Text: "a"}, {Role: domain.RoleModel, Text: "b"}}
	ep.FullEpisodeScript = domain.StringPtr("script")
	seed(t, episodes, ep)

	run, err := m.Respond(ctx, ep.ID, "generate panels")
	if err != nil {
		t.Fatalf("Respond に失敗しました: %v", err)
	}
	got, err := run.Wait(ctx)
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("失敗が返されるはずです: %v", err)
	}
	if got.GenerationPhase != domain.PhaseArcProposalReview {
		t.Errorf("段階: 期待値 %s, 実際の値 %s", domain.PhaseArcProposalReview, got.GenerationPhase)
	}
	if len(got.History) != 2 {
		t.Errorf("失敗時に履歴が変わっています: %d 件", len(got.History))
	}
	if got.LastError != "quota exceeded" {
		t.Errorf("エラーメッセージが記録されていません: %q", got.LastError)
	}
	if got.FullEpisodeScript == nil || *got.FullEpisodeScript != "script" {
		t.Error("既存の成果物が消えています")
	}
}

func TestMachine_FailureUnderExpiredContextIsPersisted(t *testing.T) {
	kv, err := store.OpenSQLite(filepath.Join(t.TempDir(), "zenith.db"))
	if err != nil {
		t.Fatalf("OpenSQLite に失敗しました: %v", err)
	}
	t.Cleanup(func() { _ = kv.Close() })

	// 応答しないモデルをコンテキストの期限切れで失敗させる。
	text := &fakeText{gate: make(chan struct{})}
	m, episodes := newTestMachineWithKV(t, kv, text, DefaultRules)
	ep := createEpisode(t, episodes)
	ep.GenerationPhase = domain.PhaseArcProposalReview
	ep.History = []domain.Turn{{Role: domain.RoleUser, Text: "a"}, {Role: domain.RoleModel, Text: "b"}}
	ep.StoryArcProposal = domain.StringPtr("arc")
	seed(t, episodes, ep)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	run, err := m.Respond(ctx, ep.ID, "looks good")
	if err != nil {
		t.Fatalf("Respond に失敗しました: %v", err)
	}
	got, err := run.Wait(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("期限切れのエラーを期待しましたが %v でした", err)
	}
	if got.GenerationPhase != domain.PhaseArcProposalReview || got.LastError == "" {
		t.Fatalf("失敗時の状態が不正です: phase=%s lastError=%q", got.GenerationPhase, got.LastError)
	}

	reloaded, err := collection.NewEpisodes(context.Background(), kv).Find(ep.ID)
	if err != nil {
		t.Fatalf("再読み込みに失敗しました: %v", err)
	}
	if reloaded.GenerationPhase != got.GenerationPhase || reloaded.LastError != got.LastError {
		t.Errorf("保存内容がメモリと一致しません: 保存 phase=%s lastError=%q, メモリ phase=%s lastError=%q",
			reloaded.GenerationPhase, reloaded.LastError, got.GenerationPhase, got.LastError)
	}
	if !reflect.DeepEqual(reloaded.History, got.History) {
		t.Errorf("保存された履歴が一致しません: %+v", reloaded.History)
	}
}

func TestMachine_WritingSplitsCharacterUpdate(t *testing.T) {
	ctx := context.Background()
	resp := "EPISODE 1\nScene...\n" + CharacterDatabaseSeparator + "\nNurse Chidinma: wiser"
	text := &fakeText{response: resp}
	m, episodes := newTestMachine(t, text, DefaultRules)
	ep := createEpisode(t, episodes)
	ep.GenerationPhase = domain.PhaseArcProposalReview
	ep.History = []domain.Turn{{Role: domain.RoleUser, Text: "init"}, {Role: domain.RoleModel, Text: "arc"}}
	seed(t, episodes, ep)

	run, err := m.Respond(ctx, ep.ID, "Approved, write it")
	if err != nil {
		t.Fatalf("Respond に失敗しました: %v", err)
	}
	got, err := run.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait に失敗しました: %v", err)
	}
	if got.GenerationPhase != domain.PhaseEpisodeReview {
		t.Errorf("段階が不正です: %s", got.GenerationPhase)
	}
	if *got.FullEpisodeScript != "EPISODE 1\nScene...\n" {
		t.Errorf("本文が不正です: %q", *got.FullEpisodeScript)
	}
	if got.CharacterDatabaseUpdate == nil || !strings.HasPrefix(*got.CharacterDatabaseUpdate, CharacterDatabaseSeparator) {
		t.Errorf("キャラクター更新が不正です: %v", got.CharacterDatabaseUpdate)
	}
	if len(got.History) != 4 {
		t.Errorf("履歴の件数: 期待値 4, 実際の値 %d", len(got.History))
	}
	if len(text.requests[0].History) != 2 {
		t.Errorf("呼び出し前の履歴が渡されていません: %d 件", len(text.requests[0].History))
	}
}

func TestMachine_IgnoresInputWithoutPanelRequest(t *testing.T) {
	ctx := context.Background()
	text := &fakeText{response: "unused"}
	m, episodes := newTestMachine(t, text, DefaultRules)
	ep := createEpisode(t, episodes)
	ep.GenerationPhase = domain.PhaseEpisodeReview
	seed(t, episodes, ep)

	run, err := m.Respond(ctx, ep.ID, "please revise the second scene")
	if err != nil {
		t.Fatalf("Respond に失敗しました: %v", err)
	}
	if run.Accepted {
		t.Error("パネル要求の無い入力が受け付けられました")
	}
	if text.calls() != 0 {
		t.Errorf("モデルが呼び出されました: %d 回", text.calls())
	}
	stored, _ := episodes.Find(ep.ID)
	if stored.GenerationPhase != domain.PhaseEpisodeReview {
		t.Errorf("段階が変わっています: %s", stored.GenerationPhase)
	}
}

func TestMachine_LeaveDiscardsResponse(t *testing.T) {
	ctx := context.Background()
	text := &fakeText{response: "PANEL #1", gate: make(chan struct{})}
	m, episodes := newTestMachine(t, text, DefaultRules)
	ep := createEpisode(t, episodes)
	ep.GenerationPhase = domain.PhaseEpisodeReview
	seed(t, episodes, ep)

	run, err := m.Respond(ctx, ep.ID, "Generate panels")
	if err != nil || !run.Accepted {
		t.Fatalf("Respond が受け付けられていません: %v", err)
	}
	m.Leave(ep.ID)
	close(text.gate)

	got, err := run.Wait(ctx)
	if !errors.Is(err, ErrStale) {
		t.Fatalf("ErrStale が返されるはずです: %v", err)
	}
	if got.GenerationPhase != domain.PhaseEpisodeReview {
		t.Errorf("呼び出し前の段階に戻っていません: %s", got.GenerationPhase)
	}
	if got.PanelBreakdown != nil || len(got.History) != 0 {
		t.Errorf("破棄された応答が適用されています: %+v", got)
	}
}

func TestMachine_DeletedDuringCall(t *testing.T) {
	ctx := context.Background()
	text := &fakeText{response: "arc", gate: make(chan struct{})}
	m, episodes := newTestMachine(t, text, DefaultRules)
	ep := createEpisode(t, episodes)

	run, err := m.Open(ctx, ep.ID)
	if err != nil || !run.Accepted {
		t.Fatalf("Open が受け付けられていません: %v", err)
	}
	if err := episodes.Delete(ctx, ep.ID); err != nil {
		t.Fatalf("削除に失敗しました: %v", err)
	}
	close(text.gate)

	if _, err := run.Wait(ctx); !errors.Is(err, ErrStale) {
		t.Errorf("ErrStale が返されるはずです: %v", err)
	}
	if episodes.Len() != 0 {
		t.Error("削除したエピソードが復活しています")
	}
}

func TestMachine_RespondWhileBusy(t *testing.T) {
	ctx := context.Background()
	text := &fakeText{response: "script", gate: make(chan struct{})}
	m, episodes := newTestMachine(t, text, DefaultRules)
	ep := createEpisode(t, episodes)
	ep.GenerationPhase = domain.PhaseArcProposalReview
	seed(t, episodes, ep)

	run, err := m.Respond(ctx, ep.ID, "go")
	if err != nil {
		t.Fatalf("Respond に失敗しました: %v", err)
	}
	if _, err := m.Respond(ctx, ep.ID, "again"); !errors.Is(err, session.ErrBusy) {
		t.Errorf("ErrBusy が返されるはずです: %v", err)
	}
	close(text.gate)
	if _, err := run.Wait(ctx); err != nil {
		t.Fatalf("Wait に失敗しました: %v", err)
	}
}

func TestMachine_RecoversInterruptedPending(t *testing.T) {
	ctx := context.Background()
	text := &fakeText{response: "unused"}
	m, episodes := newTestMachine(t, text, Rules{Policy: RevertToPrevious})
	ep := createEpisode(t, episodes)
	ep.GenerationPhase = domain.PhaseEpisodeWritingPending
	ep.History = []domain.Turn{{Role: domain.RoleUser, Text: "init"}, {Role: domain.RoleModel, Text: "arc"}}
	seed(t, episodes, ep)

	run, err := m.Open(ctx, ep.ID)
	if err != nil {
		t.Fatalf("Open に失敗しました: %v", err)
	}
	got, err := run.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait に失敗しました: %v", err)
	}
	if got.GenerationPhase != domain.PhaseArcProposalReview {
		t.Errorf("段階: 期待値 %s, 実際の値 %s", domain.PhaseArcProposalReview, got.GenerationPhase)
	}
	if got.LastError != ErrInterrupted.Error() {
		t.Errorf("中断のメッセージが記録されていません: %q", got.LastError)
	}
	if text.calls() != 0 {
		t.Error("回復時にモデルが呼び出されました")
	}
}

func TestMachine_Finish(t *testing.T) {
	ctx := context.Background()
	m, episodes := newTestMachine(t, &fakeText{}, DefaultRules)
	ep := createEpisode(t, episodes)

	t.Run("パネル分割レビュー以外では完了にできないこと", func(t *testing.T) {
		if _, err := m.Finish(ctx, ep.ID); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("ErrValidation が返されるはずです: %v", err)
		}
	})

	t.Run("パネル分割レビューから完了にできること", func(t *testing.T) {
		ep.GenerationPhase = domain.PhasePanelBreakdownReview
		ep.PanelBreakdown = domain.StringPtr("PANEL #1")
		seed(t, episodes, ep)

		got, err := m.Finish(ctx, ep.ID)
		if err != nil {
			t.Fatalf("Finish に失敗しました: %v", err)
		}
		if got.GenerationPhase != domain.PhaseComplete || *got.PanelBreakdown != "PANEL #1" {
			t.Errorf("結果が不正です: %+v", got)
		}
	})

	t.Run("存在しないエピソードは ErrNotFound", func(t *testing.T) {
		if _, err := m.Finish(ctx, "missing"); !errors.Is(err, collection.ErrNotFound) {
			t.Errorf("ErrNotFound が返されるはずです: %v", err)
		}
	})
}
