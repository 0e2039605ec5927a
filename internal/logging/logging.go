package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Options はロガー構築時のパラメータです。
type Options struct {
	Level  string
	Format string
	Output io.Writer
}

// New はオプションから slog のロガーを構築します。
// Format が空の場合、出力先が端末ならテキスト、それ以外は JSON を選ぶのだ。
func New(opts Options) (*slog.Logger, error) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	level := ParseLevel(opts.Level)
	handlerOpts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
	}

	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = "json"
		if isTerminal(out) {
			format = "text"
		}
	}

	switch format {
	case "json":
		return slog.New(slog.NewJSONHandler(out, handlerOpts)), nil
	case "text", "console":
		return slog.New(slog.NewTextHandler(out, handlerOpts)), nil
	default:
		return nil, fmt.Errorf("ログ形式が不正です: '%s'", opts.Format)
	}
}

// Setup はロガーを構築してデフォルトに設定します。
func Setup(level, format string) error {
	logger, err := New(Options{Level: level, Format: format})
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	return nil
}

// ParseLevel は文字列のログレベルを解釈します。不明な値は info です。
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
