package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// readText はフラグの値、ファイル、標準入力の順に本文を取得するのだ。
// path が "-" の場合は標準入力から読むのだよ。
func readText(value, path string) (string, error) {
	if strings.TrimSpace(value) != "" {
		return value, nil
	}
	switch {
	case path == "-" || (path == "" && isStdin()):
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("標準入力の読み込みに失敗しました: %w", err)
		}
		return string(b), nil
	case path != "":
		b, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("ファイル '%s' の読み込みに失敗しました: %w", path, err)
		}
		return string(b), nil
	}
	return "", nil
}

func isStdin() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// splitNames はカンマ区切りの名前を分割するのだ。
func splitNames(s string) []string {
	var out []string
	for _, n := range strings.Split(s, ",") {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}
