package asset

import (
	"regexp"
	"strings"

	"github.com/shouni/go-utils/urlpath"
)

const (
	// DefaultExportDir はエクスポート先のデフォルトのディレクトリ名です。
	DefaultExportDir = "exports"
	// DefaultImageDir はパネル画像を書き出すディレクトリ名です。
	DefaultImageDir = "images"
	// DefaultPanelFileName はパネル画像の共通のベースファイル名です。
	DefaultPanelFileName = "panel.png"
	// untitledName はトピックが空のときに使うファイル名です。
	untitledName = "untitled"
)

var (
	whitespaceRegex = regexp.MustCompile(`\s+`)
	// unsafeNameRegex はファイル名に使えない文字に一致します。
	unsafeNameRegex = regexp.MustCompile(`[/\\:*?"<>|]`)
)

// ExportFileName はトピックから書き出し用のファイル名を作ります。
// 空白の連続は "_" に置き換えるのだ。例: "Post partum haemorrhage", ".md" -> "Post_partum_haemorrhage.md"
func ExportFileName(topic, ext string) string {
	name := strings.TrimSpace(topic)
	name = unsafeNameRegex.ReplaceAllString(name, "")
	name = whitespaceRegex.ReplaceAllString(name, "_")
	if name == "" {
		name = untitledName
	}
	return name + ext
}

// ResolveOutputPath は、ベースとなるディレクトリパスとファイル名から、
// GCS/ローカルを考慮した最終的な出力パスを生成します。
func ResolveOutputPath(baseDir, fileName string) (string, error) {
	return urlpath.ResolveOutputPath(baseDir, fileName)
}

// GenerateIndexedPath は、指定されたベースパスの拡張子の前に連番を挿入し、
// 新しいパス文字列を生成します。index は1以上の整数である必要があります。
// 例: "path/to/panel.png", 1 -> "path/to/panel_1.png"
func GenerateIndexedPath(basePath string, index int) (string, error) {
	return urlpath.GenerateIndexedPath(basePath, index)
}
