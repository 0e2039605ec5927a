// Package session は作品ごとの「処理中」フラグと生成エポックを管理します。
package session

import (
	"errors"
	"sync"
)

// ErrBusy は同じ作品に対する生成呼び出しが既に進行中であることを表します。
var ErrBusy = errors.New("この作品は生成処理中です")

// Busy は作品ごとに同時に1つだけ生成呼び出しを許可するフラグの集合です。
// キューやセマフォではなく、処理中なら即座に断るのだ。
type Busy struct {
	mu     sync.Mutex
	active map[string]struct{}
}

// NewBusy は空の Busy を生成します。
func NewBusy() *Busy {
	return &Busy{active: make(map[string]struct{})}
}

// TryAcquire はフラグを立てます。既に立っていれば ok=false です。
// 返された release は何度呼んでも安全です。
func (b *Busy) TryAcquire(key string) (release func(), ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, held := b.active[key]; held {
		return func() {}, false
	}
	b.active[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.active, key)
			b.mu.Unlock()
		})
	}, true
}

// IsBusy はフラグが立っているかを返します。
func (b *Busy) IsBusy(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, held := b.active[key]
	return held
}

// Epochs は作品ごとの世代カウンタです。
// 画面から離れたり作品が削除されたりすると世代が進み、それ以前に発行された Token は無効になります。
type Epochs struct {
	mu      sync.Mutex
	current map[string]uint64
}

// NewEpochs は空の Epochs を生成します。
func NewEpochs() *Epochs {
	return &Epochs{current: make(map[string]uint64)}
}

// Token は生成呼び出し開始時点の世代です。
type Token struct {
	owner *Epochs
	key   string
	epoch uint64
}

// Begin は現在の世代の Token を発行します。
func (e *Epochs) Begin(key string) Token {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Token{owner: e, key: key, epoch: e.current[key]}
}

// Invalidate は世代を進め、発行済みの Token を無効にします。
func (e *Epochs) Invalidate(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.current[key]++
}

// Current は Token が最新の世代であれば true を返します。
func (t Token) Current() bool {
	if t.owner == nil {
		return false
	}
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	return t.owner.current[t.key] == t.epoch
}
