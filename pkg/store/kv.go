package store

import (
	"context"
	"sync"
)

// KV は単一キーに対して値全体を読み書きするストレージの契約です。
// 部分更新やトランザクションは提供しません。
type KV interface {
	// Get はキーに対応する値を返します。キーが存在しない場合は ok=false です。
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Put はキーの値を丸ごと上書きします。
	Put(ctx context.Context, key string, value []byte) error
}

// MemoryKV はプロセス内だけで完結する KV です。テストや一時的な実行に使います。
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryKV は空の MemoryKV を生成します。
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte)}
}

// Get は保存済みの値のコピーを返します。
func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

// Put は値のコピーを保存します。
func (m *MemoryKV) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	m.data[key] = v
	return nil
}
