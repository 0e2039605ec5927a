package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrLocked は別のプロセスがデータディレクトリを使用中であることを表します。
var ErrLocked = errors.New("データディレクトリは別のプロセスが使用中です")

const lockFileName = "zenith.lock"

// DirLock はデータディレクトリへの書き込みを単一プロセスに限定するロックです。
type DirLock struct {
	lock *flock.Flock
}

// AcquireDirLock はデータディレクトリのロックを取得します。取得できない場合は ErrLocked を返します。
func AcquireDirLock(dir string) (*DirLock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("データディレクトリの作成に失敗しました: %w", err)
	}
	fl := flock.New(filepath.Join(dir, lockFileName))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("ロックの取得に失敗しました: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, dir)
	}
	return &DirLock{lock: fl}, nil
}

// Release はロックを解放します。
func (l *DirLock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	return l.lock.Unlock()
}
