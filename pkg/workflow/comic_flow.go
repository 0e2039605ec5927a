package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/shouni/go-zenith-comic-kit/pkg/ai"
	"github.com/shouni/go-zenith-comic-kit/pkg/domain"
	"github.com/shouni/go-zenith-comic-kit/pkg/session"
)

// CreateComic は入力を検証してコミックを作成します。
func (m *Manager) CreateComic(ctx context.Context, in domain.ComicInput) (domain.Comic, error) {
	c, err := m.comics.CreateComic(ctx, in)
	if err != nil {
		return c, err
	}
	slog.Info("Comic created", "id", c.ID, "topic", c.Topic)
	return c, nil
}

// DeleteComic はコミックとその下書きを削除します。
func (m *Manager) DeleteComic(ctx context.Context, id string) error {
	if err := m.comics.Delete(ctx, id); err != nil {
		return err
	}
	m.drafts.Delete(ctx, id)
	return nil
}

// GenerateDrafts は抜粋から下書きパネルを生成して保存します。以前の下書きは置き換えるのだ。
func (m *Manager) GenerateDrafts(ctx context.Context, comicID, excerpt string) (domain.Panels, error) {
	release, err := m.acquireComic(comicID)
	if err != nil {
		return nil, err
	}
	defer release()

	comic, err := m.comics.Find(comicID)
	if err != nil {
		return nil, err
	}
	panels, err := m.panelRunner.Generate(ctx, comic, excerpt)
	if err != nil {
		return nil, err
	}
	if _, err := m.comics.Find(comicID); err != nil {
		slog.Warn("Discarding drafts for deleted comic", "id", comicID)
		return nil, err
	}

	m.drafts.Put(ctx, DraftSet{ComicID: comicID, Excerpt: excerpt, Panels: panels})
	return panels, nil
}

// Drafts はコミックの確定前の下書きを返します。
func (m *Manager) Drafts(comicID string) (DraftSet, bool) {
	return m.drafts.Get(comicID)
}

// DiscardDrafts は下書きを破棄します。
func (m *Manager) DiscardDrafts(ctx context.Context, comicID string) {
	m.drafts.Delete(ctx, comicID)
}

// FinishExcerpt は下書きをコミックに確定し、下書きを破棄します。
func (m *Manager) FinishExcerpt(ctx context.Context, comicID string) (domain.Comic, error) {
	set, ok := m.drafts.Get(comicID)
	if !ok {
		return domain.Comic{}, fmt.Errorf("%w: 確定する下書きパネルがありません", domain.ErrValidation)
	}
	comic, err := m.comics.Find(comicID)
	if err != nil {
		return comic, err
	}

	updated, err := comic.FinishExcerpt(set.Panels)
	if err != nil {
		return comic, err
	}
	if err := m.comics.Update(ctx, updated); err != nil {
		return comic, err
	}
	m.drafts.Delete(ctx, comicID)

	slog.Info("Excerpt finished", "id", comicID, "panels", len(updated.Panels), "progress", updated.Progress)
	return updated, nil
}

// UpdatePanel は下書きまたは確定済みのパネルを丸ごと置き換えます。
func (m *Manager) UpdatePanel(ctx context.Context, comicID string, panel domain.Panel) (domain.Panel, error) {
	if _, err := m.comics.Find(comicID); err != nil {
		return panel, err
	}
	if err := m.savePanel(ctx, comicID, panel); err != nil {
		return panel, err
	}
	return panel, nil
}

// AddDialogueLine はパネルに空のセリフ行を追加します。話者は作品の最初のキャラクターです。
func (m *Manager) AddDialogueLine(ctx context.Context, comicID, panelID string) (domain.Panel, error) {
	comic, panel, err := m.findPanel(comicID, panelID)
	if err != nil {
		return panel, err
	}
	panel = panel.AddDialogueLine(comic.Characters)
	return panel, m.savePanel(ctx, comicID, panel)
}

// RemoveDialogueLine はパネルの指定位置のセリフ行を削除します。
func (m *Manager) RemoveDialogueLine(ctx context.Context, comicID, panelID string, index int) (domain.Panel, error) {
	_, panel, err := m.findPanel(comicID, panelID)
	if err != nil {
		return panel, err
	}
	panel, err = panel.RemoveDialogueLine(index)
	if err != nil {
		return panel, err
	}
	return panel, m.savePanel(ctx, comicID, panel)
}

// RegenerateField はパネルの1フィールドを再生成して保存します。失敗した場合は何も変更しません。
func (m *Manager) RegenerateField(ctx context.Context, comicID, panelID string, field domain.PanelField) (domain.Panel, error) {
	release, err := m.acquireComic(comicID)
	if err != nil {
		return domain.Panel{}, err
	}
	defer release()

	comic, panel, err := m.findPanel(comicID, panelID)
	if err != nil {
		return panel, err
	}
	updated, err := m.regenerateRunner.Regenerate(ctx, comic, panel, field)
	if err != nil {
		return panel, err
	}
	return m.mergePanel(ctx, comicID, panelID, func(p domain.Panel) domain.Panel {
		return p.WithField(field, updated.Field(field))
	})
}

// EnsureStyleGuide はコミックのスタイルガイドを用意します。force なら作り直すのだ。
func (m *Manager) EnsureStyleGuide(ctx context.Context, comicID string, force bool) (domain.Comic, error) {
	release, err := m.acquireComic(comicID)
	if err != nil {
		return domain.Comic{}, err
	}
	defer release()
	return m.ensureStyleGuide(ctx, comicID, force)
}

func (m *Manager) ensureStyleGuide(ctx context.Context, comicID string, force bool) (domain.Comic, error) {
	comic, err := m.comics.Find(comicID)
	if err != nil {
		return comic, err
	}
	updated, changed, err := m.styleGuideRunner.Ensure(ctx, comic, force)
	if err != nil || !changed {
		return comic, err
	}

	current, err := m.comics.Find(comicID)
	if err != nil {
		return comic, err
	}
	current.StyleGuidePrompt = updated.StyleGuidePrompt
	if err := m.comics.Update(ctx, current); err != nil {
		return comic, err
	}
	return current, nil
}

// PreparePanelImagePrompt はパネルの画像プロンプトを組み立てて保存します。
func (m *Manager) PreparePanelImagePrompt(ctx context.Context, comicID, panelID string) (domain.Panel, error) {
	comic, panel, err := m.findPanel(comicID, panelID)
	if err != nil {
		return panel, err
	}
	panel = m.imageRunner.PreparePrompt(comic, panel)
	return panel, m.savePanel(ctx, comicID, panel)
}

// GeneratePanelImage はパネルの画像を生成して保存します。instruction があれば既存画像の編集として扱うのだ。
// スタイルガイドが無ければ先に生成します。
func (m *Manager) GeneratePanelImage(ctx context.Context, comicID, panelID, instruction string) (domain.Panel, error) {
	release, err := m.acquireComic(comicID)
	if err != nil {
		return domain.Panel{}, err
	}
	defer release()

	if _, err := m.ensureStyleGuide(ctx, comicID, false); err != nil {
		slog.Warn("Style guide generation failed, continuing without it", "id", comicID, "error", err)
	}

	comic, panel, err := m.findPanel(comicID, panelID)
	if err != nil {
		return panel, err
	}

	// 既に画像があるパネルの生成は描き直しなので、キャッシュ済みの画像を返さない
	if panel.Image != nil {
		ctx = ai.WithFreshImage(ctx)
	}

	var updated domain.Panel
	if strings.TrimSpace(instruction) == "" {
		updated, err = m.imageRunner.Generate(ctx, comic, panel)
	} else {
		updated, err = m.imageRunner.Edit(ctx, comic, panel, instruction)
	}
	if err != nil {
		return panel, err
	}
	return m.mergePanel(ctx, comicID, panelID, func(p domain.Panel) domain.Panel {
		p.ImageGenerationPrompt = updated.ImageGenerationPrompt
		p.Image = updated.Image
		return p
	})
}

// GenerateAllImages は確定済みで画像の無いパネルの画像をまとめて生成して保存します。
func (m *Manager) GenerateAllImages(ctx context.Context, comicID string) (domain.Comic, error) {
	release, err := m.acquireComic(comicID)
	if err != nil {
		return domain.Comic{}, err
	}
	defer release()

	if _, err := m.ensureStyleGuide(ctx, comicID, false); err != nil {
		slog.Warn("Style guide generation failed, continuing without it", "id", comicID, "error", err)
	}
	comic, err := m.comics.Find(comicID)
	if err != nil {
		return comic, err
	}
	panels, err := m.imageRunner.GenerateAll(ctx, comic)
	if err != nil {
		return comic, err
	}

	current, err := m.comics.Find(comicID)
	if err != nil {
		return comic, err
	}
	current.Panels = slices.Clone(current.Panels)
	for _, p := range panels {
		i := current.Panels.Index(p.ID)
		if i < 0 || p.Image == nil {
			continue
		}
		current.Panels[i].ImageGenerationPrompt = p.ImageGenerationPrompt
		current.Panels[i].Image = p.Image
	}
	if err := m.comics.Update(ctx, current); err != nil {
		return comic, err
	}
	return current, nil
}

// acquireComic はコミックの処理中フラグを立てます。
func (m *Manager) acquireComic(comicID string) (func(), error) {
	release, ok := m.comicsBusy.TryAcquire(comicID)
	if !ok {
		return nil, session.ErrBusy
	}
	return release, nil
}

// findPanel は下書き、確定済みパネルの順にパネルを探します。
func (m *Manager) findPanel(comicID, panelID string) (domain.Comic, domain.Panel, error) {
	comic, err := m.comics.Find(comicID)
	if err != nil {
		return comic, domain.Panel{}, err
	}
	if set, ok := m.drafts.Get(comicID); ok {
		if i := set.Panels.Index(panelID); i >= 0 {
			return comic, set.Panels[i], nil
		}
	}
	if p, ok := comic.FindPanel(panelID); ok {
		return comic, p, nil
	}
	return comic, domain.Panel{}, fmt.Errorf("%w: パネル '%s' が見つかりません", domain.ErrValidation, panelID)
}

// savePanel はパネルを下書きまたはコミック本体のうち、見つかった方に書き戻します。
func (m *Manager) savePanel(ctx context.Context, comicID string, panel domain.Panel) error {
	if set, ok := m.drafts.Get(comicID); ok {
		if i := set.Panels.Index(panel.ID); i >= 0 {
			set.Panels[i] = panel
			m.drafts.Put(ctx, set)
			return nil
		}
	}
	comic, err := m.comics.Find(comicID)
	if err != nil {
		return err
	}
	updated, err := comic.ReplacePanel(panel)
	if err != nil {
		return err
	}
	return m.comics.Update(ctx, updated)
}

// mergePanel はモデル呼び出しの後に最新のパネルを取り直し、変更を適用して保存します。
func (m *Manager) mergePanel(ctx context.Context, comicID, panelID string, apply func(domain.Panel) domain.Panel) (domain.Panel, error) {
	_, current, err := m.findPanel(comicID, panelID)
	if err != nil {
		return current, err
	}
	current = apply(current)
	return current, m.savePanel(ctx, comicID, current)
}
