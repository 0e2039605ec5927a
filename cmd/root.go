package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shouni/go-zenith-comic-kit/internal/builder"
	"github.com/shouni/go-zenith-comic-kit/internal/config"
	"github.com/shouni/go-zenith-comic-kit/internal/logging"
	kitconfig "github.com/shouni/go-zenith-comic-kit/pkg/config"

	"github.com/spf13/cobra"
)

// グローバルフラグと、PersistentPreRunE で読み込んだ設定なのだ。
var (
	configPath string
	logLevel   string
	appConfig  *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "zenith",
	Short: "医学教科書の抜粋から教育コミックとエピソード台本を作るのだ。",
	Long: `Zenith Teaching Hospital を舞台に、教科書の抜粋からコミックのパネルと
エピソード台本を Gemini で生成するツールなのだ。
サブコマンドで作品を操作するか、serve でブラウザ向けの API サーバーを起動するのだよ。`,
	SilenceUsage:      true,
	PersistentPreRunE: preRunAppE,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "設定ファイルのパスなのだ（省略時は ./zenith.toml か ~/.config/zenith/config.toml）。")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "ログレベル（debug, info, warn, error）なのだ。")

	rootCmd.AddCommand(comicCmd, episodeCmd, exportCmd, serveCmd, charactersCmd, configCmd)
}

// preRunAppE は、コマンド実行前に設定を読み込み、ロガーを準備するのだ。
func preRunAppE(cmd *cobra.Command, args []string) error {
	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := logging.Setup(cfg.Log.Level, cfg.Log.Format); err != nil {
		return err
	}
	appConfig = cfg
	return nil
}

// openApp はデータディレクトリを開いてアプリケーションのコンテキストを構築するのだ。
func openApp(ctx context.Context) (*builder.AppContext, error) {
	if appConfig == nil {
		return nil, fmt.Errorf("設定が読み込まれていません")
	}
	return builder.NewAppContext(ctx, appConfig, nil)
}

// requireAPIKey は Gemini を呼び出すコマンドの前提条件を確認するのだ。
func requireAPIKey(cmd *cobra.Command, args []string) error {
	return appConfig.RequireAPIKey()
}

// requireImageBackend は画像生成の前提条件を確認するのだ。プロキシ経由なら Gemini のキーは不要なのだよ。
func requireImageBackend(cmd *cobra.Command, args []string) error {
	if appConfig.Image.Backend == kitconfig.ImageBackendProxy {
		return nil
	}
	return appConfig.RequireAPIKey()
}

// Execute は、アプリケーションのメインエントリポイントなのだ。
// main.go から呼び出されて、cobra のコマンドライン解析を開始するのだよ。
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "エラー:", err)
		stop()
		os.Exit(1)
	}
}
