package publisher

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/shouni/go-zenith-comic-kit/pkg/asset"
	"github.com/shouni/go-zenith-comic-kit/pkg/domain"
)

// Format はエクスポート形式です。
type Format string

const (
	FormatMarkdown Format = "md"
	FormatJSON     Format = "json"
	FormatHTML     Format = "html"
)

// ParseFormat は文字列をエクスポート形式として解釈します。空なら Markdown です。
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", "markdown":
		return FormatMarkdown, nil
	case FormatMarkdown, FormatJSON, FormatHTML:
		return f, nil
	}
	return "", fmt.Errorf("%w: 不明なエクスポート形式です: '%s'", domain.ErrValidation, s)
}

// Ext はファイル拡張子を返します。
func (f Format) Ext() string { return "." + string(f) }

// ContentType は HTTP 応答に使う Content-Type を返します。
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json; charset=utf-8"
	case FormatHTML:
		return "text/html; charset=utf-8"
	}
	return "text/markdown; charset=utf-8"
}

// Artifact は1つの書き出し結果です。
type Artifact struct {
	FileName    string
	ContentType string
	Data        []byte
}

// RenderComic はコミックを指定形式に変換します。
func RenderComic(c domain.Comic, f Format, theme string) (Artifact, error) {
	return render(c, c.Topic, ComicMarkdown(c), f, theme)
}

// RenderEpisode はエピソードを指定形式に変換します。
func RenderEpisode(e domain.Episode, f Format, theme string) (Artifact, error) {
	title := fmt.Sprintf("Episode %d %s", e.EpisodeNumber, e.Topic)
	return render(e, title, EpisodeMarkdown(e), f, theme)
}

func render[T domain.Work](work T, title, markdown string, f Format, theme string) (Artifact, error) {
	a := Artifact{FileName: asset.ExportFileName(title, f.Ext()), ContentType: f.ContentType()}
	var err error
	switch f {
	case FormatJSON:
		a.Data, err = JSON(work)
	case FormatHTML:
		a.Data, err = HTML(markdown, title, theme)
	default:
		a.Data = []byte(markdown)
	}
	return a, err
}

// Options はパブリッシュ動作を制御する設定項目です。
type Options struct {
	OutputDir string
	Theme     string
	// WriteImages が true ならパネル画像を images/panel_N.<ext> として書き出します。
	WriteImages bool
}

// PublishResult はパブリッシュ処理の結果として生成されたファイルの情報を保持します。
type PublishResult struct {
	Paths      []string
	ImagePaths []string
}

// Publisher は成果物をローカルのディレクトリに書き出します。
type Publisher struct {
	opts Options
}

// NewPublisher は Publisher を生成します。
func NewPublisher(opts Options) *Publisher {
	if opts.OutputDir == "" {
		opts.OutputDir = asset.DefaultExportDir
	}
	return &Publisher{opts: opts}
}

// PublishComic はコミックを指定された形式で書き出すのだ。
func (p *Publisher) PublishComic(ctx context.Context, c domain.Comic, formats ...Format) (PublishResult, error) {
	var result PublishResult
	for _, f := range formats {
		a, err := RenderComic(c, f, p.opts.Theme)
		if err != nil {
			return result, err
		}
		path, err := p.write(ctx, a)
		if err != nil {
			return result, err
		}
		result.Paths = append(result.Paths, path)
	}

	if p.opts.WriteImages {
		images, err := p.writeImages(ctx, c)
		if err != nil {
			return result, err
		}
		result.ImagePaths = images
	}
	return result, nil
}

// PublishEpisode はエピソードを指定された形式で書き出します。
func (p *Publisher) PublishEpisode(ctx context.Context, e domain.Episode, formats ...Format) (PublishResult, error) {
	var result PublishResult
	for _, f := range formats {
		a, err := RenderEpisode(e, f, p.opts.Theme)
		if err != nil {
			return result, err
		}
		path, err := p.write(ctx, a)
		if err != nil {
			return result, err
		}
		result.Paths = append(result.Paths, path)
	}
	return result, nil
}

func (p *Publisher) write(ctx context.Context, a Artifact) (string, error) {
	path, err := asset.ResolveOutputPath(p.opts.OutputDir, a.FileName)
	if err != nil {
		return "", fmt.Errorf("出力パスの解決に失敗しました: %w", err)
	}
	if err := writeFile(path, a.Data); err != nil {
		return "", err
	}
	slog.InfoContext(ctx, "Exported artifact", "path", path, "bytes", len(a.Data))
	return path, nil
}

// writeImages はパネル画像をデコードして連番付きのファイルに保存します。画像の無いパネルは飛ばすのだ。
func (p *Publisher) writeImages(ctx context.Context, c domain.Comic) ([]string, error) {
	imgDir, err := asset.ResolveOutputPath(p.opts.OutputDir, asset.DefaultImageDir)
	if err != nil {
		return nil, fmt.Errorf("出力パスの解決に失敗しました: %w", err)
	}
	basePath, err := asset.ResolveOutputPath(imgDir, asset.DefaultPanelFileName)
	if err != nil {
		return nil, fmt.Errorf("出力パスの解決に失敗しました: %w", err)
	}

	var paths []string
	for i, panel := range c.Panels {
		if panel.Image == nil || panel.Image.Data == "" {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(panel.Image.Data)
		if err != nil {
			return paths, fmt.Errorf("パネル %d の画像デコードに失敗しました: %w", i+1, err)
		}
		panelPath, err := asset.GenerateIndexedPath(basePath, i+1)
		if err != nil {
			return paths, fmt.Errorf("パネル %d の出力パス生成に失敗しました: %w", i+1, err)
		}
		panelPath = strings.TrimSuffix(panelPath, filepath.Ext(panelPath)) + imageExt(panel.Image.MimeType)
		if err := writeFile(panelPath, data); err != nil {
			return paths, err
		}
		slog.InfoContext(ctx, "パネル画像を保存しています", "index", i+1, "path", panelPath)
		paths = append(paths, panelPath)
	}
	return paths, nil
}

func imageExt(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	}
	return ".png"
}

func writeFile(path string, data []byte) error {
	if strings.Contains(path, "://") {
		return fmt.Errorf("ローカル以外の出力先には対応していません: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("出力ディレクトリの作成に失敗しました: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("ファイルの書き込みに失敗しました %s: %w", path, err)
	}
	return nil
}
