package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// saveTimeout は1回の保存に許す時間です。
const saveTimeout = 10 * time.Second

// 作品の種類ごとの固定キーです。2種類の作品が衝突しないように別々のキーを使うのだ。
const (
	ComicsKey   = "zenith_comics"
	EpisodesKey = "zenith_episodes"
)

// Collection は作品一覧全体を1つの JSON 配列として固定キーに保存する永続化層です。
type Collection[T any] struct {
	kv  KV
	key string
}

// NewCollection は KV とキーから Collection を生成します。
func NewCollection[T any](kv KV, key string) *Collection[T] {
	return &Collection[T]{kv: kv, key: key}
}

// Key は保存先のキーを返します。
func (c *Collection[T]) Key() string { return c.key }

// Load は保存済みの一覧を返します。
// 読み込みやデコードに失敗した場合はログを出して空の一覧を返し、呼び出し元へエラーは返しません。
func (c *Collection[T]) Load(ctx context.Context) []T {
	raw, ok, err := c.kv.Get(ctx, c.key)
	if err != nil {
		slog.Warn("Failed to load collection, starting empty", "key", c.key, "error", err)
		return []T{}
	}
	if !ok || len(raw) == 0 {
		return []T{}
	}

	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		slog.Warn("Failed to decode collection, starting empty", "key", c.key, "error", err)
		return []T{}
	}
	if items == nil {
		return []T{}
	}
	return items
}

// Save は一覧全体をシリアライズして上書き保存します。
// メモリ上の変更は既に確定しているため、呼び出し元のキャンセルや期限切れでは書き込みを中断しないのだ。
// 失敗した場合は以前の永続化状態が残り、エラーを返します。
func (c *Collection[T]) Save(ctx context.Context, items []T) error {
	if items == nil {
		items = []T{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		slog.Error("Failed to encode collection, not saved", "key", c.key, "error", err)
		return fmt.Errorf("一覧のエンコードに失敗しました (%s): %w", c.key, err)
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()
	if err := c.kv.Put(saveCtx, c.key, raw); err != nil {
		slog.Error("Failed to save collection", "key", c.key, "error", err)
		return fmt.Errorf("一覧の保存に失敗しました (%s): %w", c.key, err)
	}
	return nil
}
