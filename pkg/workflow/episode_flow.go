package workflow

import (
	"context"
	"log/slog"

	"github.com/shouni/go-zenith-comic-kit/pkg/domain"
	"github.com/shouni/go-zenith-comic-kit/pkg/phase"
)

// CreateEpisode は次の番号を割り当ててエピソードを作成します。
func (m *Manager) CreateEpisode(ctx context.Context, in domain.EpisodeInput) (domain.Episode, error) {
	e, err := m.episodes.CreateEpisode(ctx, in)
	if err != nil {
		return e, err
	}
	slog.Info("Episode created", "id", e.ID, "number", e.EpisodeNumber)
	return e, nil
}

// OpenEpisode はエピソードを開きます。作成直後なら自動的に生成を開始するのだ。
func (m *Manager) OpenEpisode(ctx context.Context, id string) (*phase.Run, error) {
	return m.machine.Open(ctx, id)
}

// RespondEpisode はユーザー入力でエピソードを進めます。
func (m *Manager) RespondEpisode(ctx context.Context, id, input string) (*phase.Run, error) {
	return m.machine.Respond(ctx, id, input)
}

// FinishEpisode はパネル分割のレビューを終えてエピソードを完了にします。
func (m *Manager) FinishEpisode(ctx context.Context, id string) (domain.Episode, error) {
	return m.machine.Finish(ctx, id)
}

// LeaveEpisode はエピソードの画面を離れます。進行中の生成結果は破棄されます。
func (m *Manager) LeaveEpisode(id string) {
	m.machine.Leave(id)
}

// EpisodeBusy はエピソードの生成が進行中かどうかを返します。
func (m *Manager) EpisodeBusy(id string) bool {
	return m.machine.IsBusy(id)
}

// DeleteEpisode はエピソードを削除します。進行中の生成結果は適用されません。
func (m *Manager) DeleteEpisode(ctx context.Context, id string) error {
	m.machine.Leave(id)
	return m.episodes.Delete(ctx, id)
}
