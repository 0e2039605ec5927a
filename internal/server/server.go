package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/shouni/go-zenith-comic-kit/pkg/workflow"
)

const shutdownTimeout = 5 * time.Second

// Options は HTTP サーバーの構成です。
type Options struct {
	Manager *workflow.Manager
	// Theme は画面と書き出しに使うテーマです。
	Theme string
	// Proxy が nil の場合、画像プロキシは 503 を返します。
	Proxy *ImageProxy
	Debug bool
}

// Server はワークフローを HTTP と WebSocket で公開します。
type Server struct {
	mgr            *workflow.Manager
	theme          string
	proxy          *ImageProxy
	hub            *Hub
	engine         *gin.Engine
	requestTimeout time.Duration
}

// New はルーティングを構成した Server を生成します。Manager の変更通知は Hub に繋ぎ替えるのだ。
func New(opts Options) (*Server, error) {
	if opts.Manager == nil {
		return nil, fmt.Errorf("Manager は必須です")
	}
	if !opts.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		mgr:            opts.Manager,
		theme:          opts.Theme,
		proxy:          opts.Proxy,
		hub:            NewHub(),
		engine:         gin.New(),
		requestTimeout: opts.Manager.Config().RequestTimeout,
	}
	s.mgr.SetNotifier(s.hub.Publish)
	s.routes()
	return s, nil
}

// Handler は HTTP ハンドラを返します。
func (s *Server) Handler() http.Handler { return s.engine }

// Hub は変更通知の配信ハブを返します。
func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) routes() {
	r := s.engine
	r.Use(gin.Recovery(), requestLogger(), corsMiddleware())

	r.GET("/ws", func(c *gin.Context) { s.hub.ServeWS(c.Writer, c.Request) })

	api := r.Group("/api")
	{
		api.GET("/settings", s.getSettings)
		api.GET("/characters/predefined", s.listPredefinedCharacters)
		api.POST("/image-proxy", s.imageProxy)

		comics := api.Group("/comics")
		{
			comics.GET("", s.listComics)
			comics.POST("", s.createComic)
			comics.DELETE("", s.clearComics)
			comics.GET("/:id", s.getComic)
			comics.DELETE("/:id", s.deleteComic)
			comics.GET("/:id/drafts", s.getDrafts)
			comics.POST("/:id/drafts", s.generateDrafts)
			comics.DELETE("/:id/drafts", s.discardDrafts)
			comics.POST("/:id/finish", s.finishExcerpt)
			comics.POST("/:id/style-guide", s.ensureStyleGuide)
			comics.POST("/:id/images", s.generateAllImages)
			comics.GET("/:id/export", s.exportComic)
			comics.PUT("/:id/panels/:panelID", s.updatePanel)
			comics.POST("/:id/panels/:panelID/regenerate", s.regenerateField)
			comics.POST("/:id/panels/:panelID/image", s.generatePanelImage)
			comics.POST("/:id/panels/:panelID/dialogue", s.addDialogueLine)
			comics.DELETE("/:id/panels/:panelID/dialogue/:index", s.removeDialogueLine)
		}

		episodes := api.Group("/episodes")
		{
			episodes.GET("", s.listEpisodes)
			episodes.POST("", s.createEpisode)
			episodes.GET("/:id", s.getEpisode)
			episodes.DELETE("/:id", s.deleteEpisode)
			episodes.POST("/:id/open", s.openEpisode)
			episodes.POST("/:id/respond", s.respondEpisode)
			episodes.POST("/:id/finish", s.finishEpisode)
			episodes.POST("/:id/leave", s.leaveEpisode)
			episodes.GET("/:id/export", s.exportEpisode)
		}
	}
}

// Run は ctx が終了するまで HTTP サーバーと配信ハブを動かします。
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.hub.Run(gctx) })
	g.Go(func() error {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP サーバーの起動に失敗しました: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		slog.Info("Shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).Round(time.Millisecond),
		)
	}
}

// modelContext はモデル呼び出し用のコンテキストを作ります。
// 接続が切れても生成は続け、結果の破棄はエピソードの離脱で判断するのだ。
func (s *Server) modelContext(c *gin.Context) (context.Context, context.CancelFunc) {
	ctx := context.WithoutCancel(c.Request.Context())
	if s.requestTimeout > 0 {
		return context.WithTimeout(ctx, s.requestTimeout)
	}
	return context.WithCancel(ctx)
}

func (s *Server) getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"theme": s.theme})
}

func (s *Server) imageProxy(c *gin.Context) {
	if s.proxy == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "HUGGINGFACE_TOKEN が設定されていません"})
		return
	}
	s.proxy.Handle(c)
}
