package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/shouni/go-zenith-comic-kit/pkg/domain"

	"golang.org/x/time/rate"
)

const (
	defaultProxyMimeType = "image/jpeg"
	maxProxyResponseSize = 32 << 20
)

// ErrResponseTooLarge は応答が読み込みの上限を超えたことを表します。
var ErrResponseTooLarge = errors.New("応答が大きすぎます")

// ProxyImage は同一オリジンの画像プロキシ経由で画像を生成する ImageGenerator です。
// プロキシの応答は生のバイト列、Base64 テキスト、JSON のいずれでも受け付けるのだ。
type ProxyImage struct {
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxBytes   int64
}

// NewProxyImage は ProxyImage を生成します。
func NewProxyImage(endpoint string, timeout time.Duration, limiter *rate.Limiter) *ProxyImage {
	if limiter == nil {
		limiter = NewLimiter(0)
	}
	return &ProxyImage{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
		maxBytes:   maxProxyResponseSize,
	}
}

type proxyRequest struct {
	Prompt string `json:"prompt"`
}

type proxyJSONResponse struct {
	Image    string `json:"image"`
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
	Error    string `json:"error"`
	Details  string `json:"details"`
}

// Generate はプロンプトをプロキシへ送信します。
func (p *ProxyImage) Generate(ctx context.Context, prompt string) (*domain.ImagePayload, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("レートリミット待機中に中断されました: %w", err)
	}

	body, err := json.Marshal(proxyRequest{Prompt: prompt})
	if err != nil {
		return nil, fmt.Errorf("リクエストの作成に失敗しました: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("リクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	slog.Info("Calling image proxy", "endpoint", p.endpoint)
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("画像プロキシへの接続に失敗しました: %w", err)
	}
	defer resp.Body.Close()

	raw, err := readLimited(resp.Body, p.maxBytes)
	if err != nil {
		return nil, fmt.Errorf("画像プロキシの応答の読み込みに失敗しました: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, proxyError(resp.StatusCode, contentType, raw)
	}
	return normalizeProxyResponse(contentType, raw)
}

// Edit はプロキシ先が text-to-image 専用のため対応していません。
func (p *ProxyImage) Edit(context.Context, domain.ImagePayload, string) (*domain.ImagePayload, error) {
	return nil, ErrEditUnsupported
}

func proxyError(status int, contentType string, raw []byte) error {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType == "application/json" {
		var body proxyJSONResponse
		if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
			return fmt.Errorf("画像プロキシがエラーを返しました (status %d): %s", status, body.Error)
		}
	}
	return fmt.Errorf("画像プロキシがエラーを返しました (status %d): %s", status, truncateString(strings.TrimSpace(string(raw)), 200))
}

// normalizeProxyResponse は応答のエンコーディングの違いを吸収して ImagePayload に揃えます。
func normalizeProxyResponse(contentType string, raw []byte) (*domain.ImagePayload, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	mediaType, _, _ := mime.ParseMediaType(contentType)

	switch {
	case strings.HasPrefix(mediaType, "image/"):
		return &domain.ImagePayload{
			Data:     base64.StdEncoding.EncodeToString(raw),
			MimeType: mediaType,
		}, nil

	case mediaType == "application/json":
		var body proxyJSONResponse
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, fmt.Errorf("画像プロキシの JSON 応答の解析に失敗しました: %w", err)
		}
		if body.Error != "" {
			return nil, fmt.Errorf("画像プロキシがエラーを返しました: %s", body.Error)
		}
		data := body.Image
		if data == "" {
			data = body.Data
		}
		if data == "" {
			return nil, nil
		}
		mimeType := body.MimeType
		if mimeType == "" {
			mimeType = defaultProxyMimeType
		}
		return &domain.ImagePayload{Data: stripDataURIPrefix(data), MimeType: mimeType}, nil

	default:
		text := strings.TrimSpace(string(raw))
		if _, err := base64.StdEncoding.DecodeString(stripDataURIPrefix(text)); err != nil {
			return nil, fmt.Errorf("画像プロキシの応答が Base64 ではありません: %w", err)
		}
		return &domain.ImagePayload{Data: stripDataURIPrefix(text), MimeType: sniffMimeType(text)}, nil
	}
}

func stripDataURIPrefix(s string) string {
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			return s[i+1:]
		}
	}
	return s
}

// sniffMimeType は data: URI または Base64 の先頭バイトから MIME タイプを推定します。
func sniffMimeType(s string) string {
	if strings.HasPrefix(s, "data:") {
		if end := strings.Index(s, ";"); end > len("data:") {
			return s[len("data:"):end]
		}
	}
	head := s
	if len(head) > 64 {
		head = head[:64]
	}
	head = head[:len(head)/4*4]
	decoded, err := base64.StdEncoding.DecodeString(head)
	if err != nil || len(decoded) == 0 {
		return defaultProxyMimeType
	}
	if detected := http.DetectContentType(decoded); strings.HasPrefix(detected, "image/") {
		return detected
	}
	return defaultProxyMimeType
}

// readLimited は最大 limit バイトまで読み込み、それを超える応答はエラーにします。
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > limit {
		return nil, fmt.Errorf("%w: 上限 %d バイト", ErrResponseTooLarge, limit)
	}
	return raw, nil
}

func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
