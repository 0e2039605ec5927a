package publisher

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// DefaultTheme はテーマ未指定時のテーマ名です。
const DefaultTheme = "light"

var markdownRenderer = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
)

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 860px; margin: 2rem auto; padding: 0 1rem; line-height: 1.6; }
img { max-width: 100%; border-radius: 8px; }
body.theme-dark { background: #111827; color: #e5e7eb; }
body.theme-dark a { color: #93c5fd; }
</style>
</head>
<body class="theme-{{.Theme}}">
{{.Body}}
</body>
</html>
`))

type page struct {
	Title string
	Theme string
	Body  template.HTML
}

// HTML は Markdown を goldmark (GFM) で変換し、テーマのクラスを付けた1枚の HTML ページにします。
func HTML(markdown, title, theme string) ([]byte, error) {
	var body bytes.Buffer
	if err := markdownRenderer.Convert([]byte(markdown), &body); err != nil {
		return nil, fmt.Errorf("HTMLの変換に失敗しました: %w", err)
	}
	if theme == "" {
		theme = DefaultTheme
	}

	var out bytes.Buffer
	if err := pageTemplate.Execute(&out, page{Title: title, Theme: theme, Body: template.HTML(body.String())}); err != nil {
		return nil, fmt.Errorf("HTMLページの組み立てに失敗しました: %w", err)
	}
	return out.Bytes(), nil
}
