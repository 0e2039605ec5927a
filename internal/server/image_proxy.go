package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	defaultProxyTimeout   = 2 * time.Minute
	maxUpstreamImageBytes = 32 << 20
)

// ImageProxy は Hugging Face の推論エンドポイントへプロンプトを転送し、画像を Base64 テキストで返します。
// トークンをサーバー側に閉じ込めるための中継なのだ。
type ImageProxy struct {
	modelURL   string
	token      string
	httpClient *http.Client
	maxBytes   int64
}

// NewImageProxy は ImageProxy を生成します。httpClient が nil なら既定のタイムアウトで作ります。
func NewImageProxy(modelURL, token string, httpClient *http.Client) *ImageProxy {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultProxyTimeout}
	}
	return &ImageProxy{modelURL: modelURL, token: token, httpClient: httpClient, maxBytes: maxUpstreamImageBytes}
}

type proxyInput struct {
	Prompt string `json:"prompt"`
}

type inferenceRequest struct {
	Inputs  string           `json:"inputs"`
	Options inferenceOptions `json:"options"`
}

type inferenceOptions struct {
	UseCache     bool `json:"use_cache"`
	WaitForModel bool `json:"wait_for_model"`
}

// upstreamError は転送先が失敗を返したことを表します。
type upstreamError struct {
	Status  int
	Message string
	Details string
}

func (e *upstreamError) Error() string {
	return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
}

// upstreamMessage は転送先のステータスを利用者向けの説明に変換します。
func upstreamMessage(status int) string {
	switch status {
	case http.StatusServiceUnavailable:
		return "モデルを読み込み中です。20〜30秒後にもう一度お試しください"
	case http.StatusUnauthorized:
		return "API トークンが無効です。環境変数 HUGGINGFACE_TOKEN を確認してください"
	case http.StatusTooManyRequests:
		return "レート制限を超えました。しばらく待ってからもう一度お試しください"
	default:
		return "Hugging Face API がエラーを返しました"
	}
}

// Fetch はプロンプトを転送して画像のバイト列を取得します。
func (p *ImageProxy) Fetch(ctx context.Context, prompt string) ([]byte, error) {
	body, err := json.Marshal(inferenceRequest{
		Inputs:  prompt,
		Options: inferenceOptions{UseCache: false, WaitForModel: true},
	})
	if err != nil {
		return nil, fmt.Errorf("リクエストの作成に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.modelURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("リクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Hugging Face API への接続に失敗しました: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, p.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("Hugging Face API の応答の読み込みに失敗しました: %w", err)
	}
	if int64(len(raw)) > p.maxBytes {
		return nil, fmt.Errorf("Hugging Face API の応答が上限 %d バイトを超えました", p.maxBytes)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &upstreamError{
			Status:  resp.StatusCode,
			Message: upstreamMessage(resp.StatusCode),
			Details: strings.TrimSpace(string(raw)),
		}
	}
	return raw, nil
}

// Handle は POST /api/image-proxy の処理です。
func (p *ImageProxy) Handle(c *gin.Context) {
	var in proxyInput
	if err := c.ShouldBindJSON(&in); err != nil || strings.TrimSpace(in.Prompt) == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "prompt は必須です"})
		return
	}

	raw, err := p.Fetch(c.Request.Context(), in.Prompt)
	if err != nil {
		var ue *upstreamError
		if errors.As(err, &ue) {
			slog.Warn("Image proxy upstream error", "status", ue.Status, "details", ue.Details)
			c.AbortWithStatusJSON(ue.Status, gin.H{"error": ue.Message, "status": ue.Status, "details": ue.Details})
			return
		}
		slog.Error("Image proxy failed", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "プロキシでエラーが発生しました", "details": err.Error()})
		return
	}

	c.Data(http.StatusOK, "text/plain", []byte(base64.StdEncoding.EncodeToString(raw)))
}
