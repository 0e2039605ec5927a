package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	kitconfig "github.com/shouni/go-zenith-comic-kit/pkg/config"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/shouni/go-utils/envutil"
)

//go:embed sample_config.toml
var sampleConfig string

// デフォルト値の定義なのだ
const (
	DefaultConfigName     = "zenith.toml"
	DefaultDataDir        = "~/.local/share/zenith"
	DefaultServerAddr     = "127.0.0.1:8080"
	DefaultTheme          = "light"
	DefaultLogLevel       = "info"
	DefaultHuggingFaceURL = "https://api-inference.huggingface.co/models/stabilityai/stable-diffusion-xl-base-1.0"
	DefaultEnvFile        = ".env"
)

// Config はアプリケーション全体の環境設定（APIキー、保存先、テーマなど）を保持する構造体なのだ。
type Config struct {
	Gemini      Gemini      `toml:"gemini"`
	Image       Image       `toml:"image"`
	HuggingFace HuggingFace `toml:"huggingface"`
	Generation  Generation  `toml:"generation"`
	Storage     Storage     `toml:"storage"`
	Server      Server      `toml:"server"`
	UI          UI          `toml:"ui"`
	Log         Log         `toml:"log"`
}

// Gemini はテキストモデルの設定です。
type Gemini struct {
	APIKey       string  `toml:"api_key"`
	Model        string  `toml:"model"`
	EpisodeModel string  `toml:"episode_model"`
	Temperature  float32 `toml:"temperature"`
}

// Image は画像生成の設定です。
type Image struct {
	Model           string `toml:"model"`
	Backend         string `toml:"backend"`
	ProxyURL        string `toml:"proxy_url"`
	CacheTTLSeconds int    `toml:"cache_ttl_seconds"`
	Concurrency     int    `toml:"concurrency"`
	StyleSuffix     string `toml:"style_suffix"`
}

// HuggingFace は画像プロキシの転送先の設定です。
type HuggingFace struct {
	Token    string `toml:"token"`
	ModelURL string `toml:"model_url"`
}

// Generation はモデル呼び出し全般の設定です。
type Generation struct {
	RateIntervalMillis    int    `toml:"rate_interval_ms"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	FailurePolicy         string `toml:"failure_policy"`
}

// Storage は保存先の設定です。
type Storage struct {
	DataDir string `toml:"data_dir"`
}

// Server は HTTP サーバーの設定です。
type Server struct {
	Addr string `toml:"addr"`
}

// UI は表示の設定です。
type UI struct {
	Theme string `toml:"theme"`
}

// Log はログ出力の設定です。
type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default は推奨されるデフォルト設定を返すのだ。
func Default() Config {
	kit := kitconfig.DefaultConfig()
	return Config{
		Gemini: Gemini{
			Model:        kit.GeminiModel,
			EpisodeModel: kit.EpisodeModel,
			Temperature:  kit.Temperature,
		},
		Image: Image{
			Model:           kit.ImageModel,
			Backend:         kit.ImageBackend,
			ProxyURL:        kit.ProxyURL,
			CacheTTLSeconds: int(kit.ImageCacheTTL / time.Second),
			Concurrency:     kit.ImageConcurrency,
			StyleSuffix:     kit.StyleSuffix,
		},
		HuggingFace: HuggingFace{ModelURL: DefaultHuggingFaceURL},
		Generation: Generation{
			RateIntervalMillis:    int(kit.RateInterval / time.Millisecond),
			RequestTimeoutSeconds: int(kit.RequestTimeout / time.Second),
			FailurePolicy:         kit.FailurePolicy,
		},
		Storage: Storage{DataDir: DefaultDataDir},
		Server:  Server{Addr: DefaultServerAddr},
		UI:      UI{Theme: DefaultTheme},
		Log:     Log{Level: DefaultLogLevel},
	}
}

// SampleConfig はサンプルの設定ファイルの内容を返します。
func SampleConfig() string {
	return sampleConfig
}

// Load は設定ファイル、.env、環境変数の順に重ねて設定を読み込み、検証するのだ。
// path が空なら カレントディレクトリの zenith.toml、無ければ ~/.config/zenith/config.toml を探します。
// ファイルが無い場合はデフォルト値のまま進みます。
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("設定ファイルを開けませんでした: %w", err)
		}
		defer file.Close()

		if err := toml.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("設定ファイルの解析に失敗しました: %w", err)
		}
	}

	if err := godotenv.Load(DefaultEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, "", false, fmt.Errorf(".env の読み込みに失敗しました: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

// applyEnv は環境変数で設定を上書きします。
func (c *Config) applyEnv() error {
	c.Gemini.APIKey = envutil.GetEnv("GEMINI_API_KEY", c.Gemini.APIKey)
	c.Gemini.Model = envutil.GetEnv("GEMINI_MODEL", c.Gemini.Model)
	c.Gemini.EpisodeModel = envutil.GetEnv("EPISODE_MODEL", c.Gemini.EpisodeModel)
	c.Image.Model = envutil.GetEnv("IMAGE_MODEL", c.Image.Model)
	c.Image.Backend = envutil.GetEnv("IMAGE_BACKEND", c.Image.Backend)
	c.Image.ProxyURL = envutil.GetEnv("IMAGE_PROXY_URL", c.Image.ProxyURL)
	c.HuggingFace.Token = envutil.GetEnv("HUGGINGFACE_TOKEN", c.HuggingFace.Token)
	c.Storage.DataDir = envutil.GetEnv("ZENITH_DATA_DIR", c.Storage.DataDir)
	c.UI.Theme = envutil.GetEnv("ZENITH_THEME", c.UI.Theme)
	c.Log.Level = envutil.GetEnv("ZENITH_LOG_LEVEL", c.Log.Level)

	if raw := envutil.GetEnv("ZENITH_RATE_INTERVAL_MS", ""); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("ZENITH_RATE_INTERVAL_MS は整数で指定してください: %w", err)
		}
		c.Generation.RateIntervalMillis = v
	}
	return nil
}

func (c *Config) normalize() error {
	c.Image.Backend = strings.ToLower(strings.TrimSpace(c.Image.Backend))
	c.UI.Theme = strings.ToLower(strings.TrimSpace(c.UI.Theme))
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))

	dir, err := ExpandPath(c.Storage.DataDir)
	if err != nil {
		return err
	}
	c.Storage.DataDir = dir
	return nil
}

// Validate は設定値を検証します。GEMINI_API_KEY はモデルを呼ぶコマンドだけが確認するのだ。
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Storage.DataDir) == "" {
		return fmt.Errorf("storage.data_dir は必須です")
	}
	switch c.UI.Theme {
	case "light", "dark":
	default:
		return fmt.Errorf("ui.theme は light か dark で指定してください: '%s'", c.UI.Theme)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level が不正です: '%s'", c.Log.Level)
	}
	if c.Generation.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("generation.request_timeout_seconds は正の値で指定してください")
	}
	if c.Image.CacheTTLSeconds <= 0 {
		return fmt.Errorf("image.cache_ttl_seconds は正の値で指定してください")
	}
	return c.Kit().Validate()
}

// Kit は各 Runner に渡すキットの設定を組み立てます。
func (c *Config) Kit() kitconfig.Config {
	return kitconfig.Config{
		GeminiAPIKey:     c.Gemini.APIKey,
		GeminiModel:      c.Gemini.Model,
		EpisodeModel:     c.Gemini.EpisodeModel,
		ImageModel:       c.Image.Model,
		Temperature:      c.Gemini.Temperature,
		ImageBackend:     c.Image.Backend,
		ProxyURL:         c.Image.ProxyURL,
		ImageCacheTTL:    time.Duration(c.Image.CacheTTLSeconds) * time.Second,
		ImageConcurrency: c.Image.Concurrency,
		StyleSuffix:      c.Image.StyleSuffix,
		RateInterval:     time.Duration(c.Generation.RateIntervalMillis) * time.Millisecond,
		FailurePolicy:    c.Generation.FailurePolicy,
		RequestTimeout:   time.Duration(c.Generation.RequestTimeoutSeconds) * time.Second,
	}
}

// RequireAPIKey はモデルを呼び出すコマンドの前提条件を確認します。
func (c *Config) RequireAPIKey() error {
	if strings.TrimSpace(c.Gemini.APIKey) == "" {
		return fmt.Errorf("環境変数 GEMINI_API_KEY が設定されていません。Gemini API の利用には必須なのだ")
	}
	return nil
}

// DatabasePath はデータディレクトリ内の SQLite ファイルのパスです。
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Storage.DataDir, "zenith.db")
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := ExpandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("設定ファイルを確認できませんでした: %w", err)
		}
		return expanded, true, nil
	}

	projectPath, err := filepath.Abs(DefaultConfigName)
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	defaultPath, err := ExpandPath("~/.config/zenith/config.toml")
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

// ExpandPath は "~" をホームディレクトリに展開し、絶対パスにします。
func ExpandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("ホームディレクトリの解決に失敗しました: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("絶対パスの解決に失敗しました %q: %w", pathValue, err)
	}
	return absolute, nil
}
