package collection

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/shouni/go-zenith-comic-kit/pkg/domain"
	"github.com/shouni/go-zenith-comic-kit/pkg/store"
)

// ErrNotFound は指定した ID の作品が存在しないことを表します。
var ErrNotFound = errors.New("作品が見つかりません")

// EventType はコレクションの変更種別です。
type EventType string

const (
	EventCreated EventType = "created"
	EventUpdated EventType = "updated"
	EventDeleted EventType = "deleted"
	EventCleared EventType = "cleared"
)

// Event はコレクションの変更通知です。
type Event struct {
	Kind string    `json:"kind"`
	Type EventType `json:"type"`
	ID   string    `json:"id,omitempty"`
}

// Notifier は変更通知の受け手です。
type Notifier func(Event)

// Manager はメモリ上の作品一覧と、それを変更する操作を提供します。
// すべての変更は永続化層を経由し、操作のたびに永続化内容とメモリ上の内容を一致させるのだ。
type Manager[T domain.Work] struct {
	kind   string
	coll   *store.Collection[T]
	sortFn func(a, b T) int
	notify Notifier

	mu    sync.RWMutex
	items []T
}

// Option は Manager の任意設定です。
type Option[T domain.Work] func(*Manager[T])

// WithSort は変更のたびに一覧を並べ替える比較関数を設定します。
func WithSort[T domain.Work](cmp func(a, b T) int) Option[T] {
	return func(m *Manager[T]) { m.sortFn = cmp }
}

// WithNotifier は変更通知の受け手を設定します。
func WithNotifier[T domain.Work](n Notifier) Option[T] {
	return func(m *Manager[T]) { m.notify = n }
}

// NewManager は永続化層から一覧を読み込んで Manager を生成します。
func NewManager[T domain.Work](ctx context.Context, kind string, coll *store.Collection[T], opts ...Option[T]) *Manager[T] {
	m := &Manager[T]{kind: kind, coll: coll}
	for _, opt := range opts {
		opt(m)
	}
	m.items = coll.Load(ctx)
	if m.sortFn != nil {
		slices.SortStableFunc(m.items, m.sortFn)
	}
	return m
}

// SetNotifier は変更通知の受け手を差し替えます。
func (m *Manager[T]) SetNotifier(n Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notify = n
}

// All は一覧のコピーを返します。
func (m *Manager[T]) All() []T {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.items)
}

// Len は作品数を返します。
func (m *Manager[T]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// Find は ID から作品を取得します。
func (m *Manager[T]) Find(id string) (T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i := m.indexOf(id); i >= 0 {
		return m.items[i], nil
	}
	var zero T
	return zero, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Create は作品を末尾に追加して保存します。
func (m *Manager[T]) Create(ctx context.Context, item T) (T, error) {
	err := m.mutate(ctx, Event{Type: EventCreated, ID: item.WorkID()}, func(items []T) []T {
		return append(items, item)
	})
	return item, err
}

// CreateWith はロックを保持したまま現在の一覧から新しい作品を組み立てて追加します。
func (m *Manager[T]) CreateWith(ctx context.Context, build func(current []T) (T, error)) (T, error) {
	m.mu.Lock()
	item, err := build(slices.Clone(m.items))
	if err != nil {
		m.mu.Unlock()
		var zero T
		return zero, err
	}
	m.items = append(m.items, item)
	err = m.commitLocked(ctx)
	notify := m.notify
	m.mu.Unlock()

	m.emit(notify, Event{Type: EventCreated, ID: item.WorkID()})
	return item, err
}

// Update は同じ ID の作品を丸ごと置き換えて保存します。
func (m *Manager[T]) Update(ctx context.Context, item T) error {
	m.mu.Lock()
	i := m.indexOf(item.WorkID())
	if i < 0 {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, item.WorkID())
	}
	m.items[i] = item
	err := m.commitLocked(ctx)
	notify := m.notify
	m.mu.Unlock()

	m.emit(notify, Event{Type: EventUpdated, ID: item.WorkID()})
	return err
}

// Delete は作品を削除して保存します。
func (m *Manager[T]) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	i := m.indexOf(id)
	if i < 0 {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	m.items = slices.Delete(slices.Clone(m.items), i, i+1)
	err := m.commitLocked(ctx)
	notify := m.notify
	m.mu.Unlock()

	m.emit(notify, Event{Type: EventDeleted, ID: id})
	return err
}

// Clear は一覧を空にして保存します。
func (m *Manager[T]) Clear(ctx context.Context) error {
	return m.mutate(ctx, Event{Type: EventCleared}, func([]T) []T { return []T{} })
}

func (m *Manager[T]) mutate(ctx context.Context, ev Event, fn func([]T) []T) error {
	m.mu.Lock()
	m.items = fn(m.items)
	err := m.commitLocked(ctx)
	notify := m.notify
	m.mu.Unlock()

	m.emit(notify, ev)
	return err
}

// commitLocked は並べ替えと保存を行います。呼び出し側が書き込みロックを保持している必要があります。
// 保存に失敗してもメモリ上の変更は残し、エラーを返すのだ。
func (m *Manager[T]) commitLocked(ctx context.Context) error {
	if m.sortFn != nil {
		slices.SortStableFunc(m.items, m.sortFn)
	}
	return m.coll.Save(ctx, m.items)
}

func (m *Manager[T]) emit(n Notifier, ev Event) {
	if n == nil {
		return
	}
	ev.Kind = m.kind
	n(ev)
}

func (m *Manager[T]) indexOf(id string) int {
	for i, it := range m.items {
		if it.WorkID() == id {
			return i
		}
	}
	return -1
}
