package builder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shouni/go-zenith-comic-kit/internal/config"
	"github.com/shouni/go-zenith-comic-kit/pkg/collection"
	"github.com/shouni/go-zenith-comic-kit/pkg/publisher"
	"github.com/shouni/go-zenith-comic-kit/pkg/store"
	"github.com/shouni/go-zenith-comic-kit/pkg/workflow"
)

// AppContext は、アプリケーション実行に必要な共通コンテキストを保持する
// コマンドやサーバーはこれを受け取って Manager や Publisher を使うのだ。
type AppContext struct {
	Config  *config.Config    // Config は設定ファイルと環境変数から読み込まれた設定です。
	Manager *workflow.Manager // Manager はコミックとエピソードのワークフローです。
	kv      *store.SQLiteKV   // kv はデータディレクトリ内の SQLite ストアです。
	lock    *store.DirLock    // lock はデータディレクトリの排他ロックです。
}

// NewAppContext はデータディレクトリをロックしてストアを開き、Manager を構築します。
// 返された AppContext は使い終わったら Close する必要があります。
func NewAppContext(ctx context.Context, cfg *config.Config, notifier collection.Notifier) (*AppContext, error) {
	if cfg == nil {
		return nil, fmt.Errorf("設定は必須です")
	}

	lock, err := store.AcquireDirLock(cfg.Storage.DataDir)
	if err != nil {
		return nil, err
	}

	kv, err := store.OpenSQLite(cfg.DatabasePath())
	if err != nil {
		_ = lock.Release()
		return nil, fmt.Errorf("ストアの初期化に失敗しました: %w", err)
	}

	mgr, err := workflow.New(ctx, workflow.ManagerArgs{
		Config:   cfg.Kit(),
		KV:       kv,
		Notifier: notifier,
	})
	if err != nil {
		_ = kv.Close()
		_ = lock.Release()
		return nil, fmt.Errorf("ワークフローの初期化に失敗しました: %w", err)
	}

	slog.DebugContext(ctx, "Application context ready", "db", kv.Path())
	return &AppContext{Config: cfg, Manager: mgr, kv: kv, lock: lock}, nil
}

// Publisher は出力先ディレクトリに書き出す Publisher を構築します。
func (a *AppContext) Publisher(outputDir string, writeImages bool) *publisher.Publisher {
	return publisher.NewPublisher(publisher.Options{
		OutputDir:   outputDir,
		Theme:       a.Config.UI.Theme,
		WriteImages: writeImages,
	})
}

// Close はストアとロックを解放します。
func (a *AppContext) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	if a.kv != nil {
		errs = append(errs, a.kv.Close())
	}
	if a.lock != nil {
		errs = append(errs, a.lock.Release())
	}
	return errors.Join(errs...)
}
