package config

import (
	"fmt"
	"strings"
	"time"
)

// デフォルト値の定義
const (
	DefaultGeminiModel      = "gemini-2.5-flash"
	DefaultEpisodeModel     = "gemini-2.5-pro"
	DefaultImageModel       = "gemini-2.5-flash-image"
	DefaultImageBackend     = ImageBackendGenAI
	DefaultProxyURL         = "http://127.0.0.1:8080/api/image-proxy"
	DefaultTemperature      = float32(0.7)
	DefaultRateInterval     = 2 * time.Second
	DefaultImageCacheTTL    = 30 * time.Minute
	DefaultImageConcurrency = 2
	DefaultRequestTimeout   = 2 * time.Minute
	DefaultFailurePolicy    = "arc_proposal_review"
	DefaultStyleSuffix      = "Clean educational comic style, semi-realistic proportions, soft cel shading, warm clinical lighting, clear line art, expressive faces, consistent character designs, high resolution"
)

// 画像生成のバックエンド名です。
const (
	ImageBackendGenAI = "genai"
	ImageBackendProxy = "proxy"
)

// Config は Zenith Comic Kit の各 Runner を動作させるための基本設定です。
type Config struct {
	// --- AI Model Settings ---
	GeminiAPIKey string
	GeminiModel  string // パネル生成用
	EpisodeModel string // エピソード会話用
	ImageModel   string
	Temperature  float32

	// --- Image Backend Settings ---
	ImageBackend     string // "genai" または "proxy"
	ProxyURL         string
	ImageCacheTTL    time.Duration
	ImageConcurrency int

	// --- Generation Settings ---
	StyleSuffix   string
	RateInterval  time.Duration
	FailurePolicy string

	// --- Timeout ---
	RequestTimeout time.Duration
}

// DefaultConfig は推奨されるデフォルト設定を返すヘルパー関数です。
func DefaultConfig() Config {
	return Config{
		GeminiModel:      DefaultGeminiModel,
		EpisodeModel:     DefaultEpisodeModel,
		ImageModel:       DefaultImageModel,
		Temperature:      DefaultTemperature,
		ImageBackend:     DefaultImageBackend,
		ProxyURL:         DefaultProxyURL,
		ImageCacheTTL:    DefaultImageCacheTTL,
		ImageConcurrency: DefaultImageConcurrency,
		StyleSuffix:      DefaultStyleSuffix,
		RateInterval:     DefaultRateInterval,
		FailurePolicy:    DefaultFailurePolicy,
		RequestTimeout:   DefaultRequestTimeout,
	}
}

// Validate は設定値の組み合わせを検証します。API キーの有無はモデルを呼ぶ時点で確認するのだ。
func (c Config) Validate() error {
	switch strings.ToLower(c.ImageBackend) {
	case ImageBackendGenAI:
	case ImageBackendProxy:
		if strings.TrimSpace(c.ProxyURL) == "" {
			return fmt.Errorf("画像バックエンドが proxy の場合 ProxyURL は必須です")
		}
	default:
		return fmt.Errorf("不明な画像バックエンドです: '%s'", c.ImageBackend)
	}
	if c.RateInterval < 0 {
		return fmt.Errorf("RateInterval は 0 以上で指定してください: %s", c.RateInterval)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("Temperature は 0 から 2 の範囲で指定してください: %v", c.Temperature)
	}
	return nil
}
