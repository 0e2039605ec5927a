package cmd

import (
	"fmt"
	"strings"

	"github.com/shouni/go-zenith-comic-kit/pkg/asset"
	"github.com/shouni/go-zenith-comic-kit/pkg/publisher"

	"github.com/spf13/cobra"
)

var exportOpts struct {
	formats   string
	outputDir string
	images    bool
}

// exportCmd は作品をファイルに書き出すのだ。
var exportCmd = &cobra.Command{
	Use:       "export <comic|episode> <id>",
	Short:     "作品を Markdown、JSON、HTML で書き出すのだ。",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"comic", "episode"},
	RunE: func(cmd *cobra.Command, args []string) error {
		formats, err := parseFormats(exportOpts.formats)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		app, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		pub := app.Publisher(exportOpts.outputDir, exportOpts.images)

		var res publisher.PublishResult
		switch args[0] {
		case "comic":
			comic, err := app.Manager.Comics().Find(args[1])
			if err != nil {
				return err
			}
			res, err = pub.PublishComic(ctx, comic, formats...)
			if err != nil {
				return err
			}
		case "episode":
			ep, err := app.Manager.Episodes().Find(args[1])
			if err != nil {
				return err
			}
			res, err = pub.PublishEpisode(ctx, ep, formats...)
			if err != nil {
				return err
			}
		default:
			return fmt.Errorf("種類は comic か episode で指定してほしいのだ: '%s'", args[0])
		}

		for _, p := range append(res.Paths, res.ImagePaths...) {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return nil
	},
}

func parseFormats(s string) ([]publisher.Format, error) {
	var out []publisher.Format
	for _, name := range strings.Split(s, ",") {
		f, err := publisher.ParseFormat(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func init() {
	exportCmd.Flags().StringVar(&exportOpts.formats, "format", "md", "書き出す形式（md, json, html をカンマ区切り）なのだ。")
	exportCmd.Flags().StringVarP(&exportOpts.outputDir, "output-dir", "o", asset.DefaultExportDir, "出力先ディレクトリなのだ。")
	exportCmd.Flags().BoolVar(&exportOpts.images, "images", false, "パネル画像もファイルに書き出すのだ。")
}
