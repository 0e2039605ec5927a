package cmd

import (
	"log/slog"

	"github.com/shouni/go-zenith-comic-kit/internal/server"

	"github.com/spf13/cobra"
)

var serveAddr string

// serveCmd はブラウザ向けの API サーバーを起動するのだ。
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "HTTP API と WebSocket の変更通知を提供するのだ。",
	Long: `コミックとエピソードの操作を HTTP API として公開するのだ。
HUGGINGFACE_TOKEN を設定すると /api/image-proxy も使えるのだよ。`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		if appConfig.Gemini.APIKey == "" {
			slog.Warn("GEMINI_API_KEY is not set; generation endpoints will return 503")
		}

		var proxy *server.ImageProxy
		if appConfig.HuggingFace.Token != "" {
			proxy = server.NewImageProxy(appConfig.HuggingFace.ModelURL, appConfig.HuggingFace.Token, nil)
		}

		srv, err := server.New(server.Options{
			Manager: app.Manager,
			Theme:   appConfig.UI.Theme,
			Proxy:   proxy,
			Debug:   appConfig.Log.Level == "debug",
		})
		if err != nil {
			return err
		}

		addr := appConfig.Server.Addr
		if serveAddr != "" {
			addr = serveAddr
		}
		return srv.Run(ctx, addr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "待ち受けアドレスなのだ（省略時は設定ファイルの server.addr）。")
}
