package cmd

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/shouni/go-zenith-comic-kit/pkg/domain"
	"github.com/shouni/go-zenith-comic-kit/pkg/publisher"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var comicOpts struct {
	subject     string
	topic       string
	ward        string
	characters  string
	excerpt     string
	excerptFile string
	field       string
	instruction string
	force       bool
	promptOnly  bool
}

// comicCmd はコミックビルダーのサブコマンドをまとめるのだ。
var comicCmd = &cobra.Command{
	Use:   "comic",
	Short: "教科書の抜粋からコミックのパネルを作るのだ。",
}

var comicCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "新しいコミックを作成するのだ。",
	Long: `科目、トピック、病棟、登場キャラクター、最初の抜粋を指定してコミックを作成するのだ。
--characters には常設キャストの名前をカンマ区切りで指定するのだよ。`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		excerpt, err := readText(comicOpts.excerpt, comicOpts.excerptFile)
		if err != nil {
			return err
		}
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		comic, err := app.Manager.CreateComic(cmd.Context(), domain.ComicInput{
			Subject:        comicOpts.subject,
			Topic:          comicOpts.topic,
			Ward:           comicOpts.ward,
			Characters:     domain.PickPredefined(splitNames(comicOpts.characters)),
			InitialExcerpt: excerpt,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), comic.ID)
		return nil
	},
}

var comicListCmd = &cobra.Command{
	Use:   "list",
	Short: "コミックの一覧を表示するのだ。",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		comics := app.Manager.Comics().All()
		if len(comics) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "コミックはまだありません。")
			return nil
		}
		rows := make([][]string, 0, len(comics))
		for _, c := range comics {
			rows = append(rows, []string{
				c.ID,
				c.Topic,
				c.Ward,
				strconv.Itoa(len(c.Panels)),
				strconv.Itoa(c.Progress) + "%",
				humanize.Time(c.CreatedAt),
			})
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderTable(
			[]string{"ID", "Topic", "Ward", "Panels", "Progress", "Created"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
		))
		return nil
	},
}

var comicShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "コミックを Markdown で表示するのだ。",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		comic, err := app.Manager.Comics().Find(args[0])
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), publisher.ComicMarkdown(comic))
		if set, ok := app.Manager.Drafts(comic.ID); ok {
			fmt.Fprintf(cmd.OutOrStdout(), "\n確定前の下書きが %d 件あります。\n", len(set.Panels))
			printPanels(cmd, set.Panels)
		}
		return nil
	},
}

var comicDraftCmd = &cobra.Command{
	Use:     "draft <id>",
	Short:   "抜粋から下書きパネルを生成するのだ。",
	Args:    cobra.ExactArgs(1),
	PreRunE: requireAPIKey,
	RunE: func(cmd *cobra.Command, args []string) error {
		excerpt, err := readText(comicOpts.excerpt, comicOpts.excerptFile)
		if err != nil {
			return err
		}
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		panels, err := app.Manager.GenerateDrafts(cmd.Context(), args[0], excerpt)
		if err != nil {
			return err
		}
		printPanels(cmd, panels)
		return nil
	},
}

var comicFinishCmd = &cobra.Command{
	Use:   "finish <id>",
	Short: "下書きパネルをコミックに確定するのだ。",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		comic, err := app.Manager.FinishExcerpt(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "パネル %d 枚、進捗 %d%% なのだ。\n", len(comic.Panels), comic.Progress)
		return nil
	},
}

var comicRegenerateCmd = &cobra.Command{
	Use:     "regenerate <id> <panel-id>",
	Short:   "パネルのフィールドを1つ書き直すのだ。",
	Args:    cobra.ExactArgs(2),
	PreRunE: requireAPIKey,
	RunE: func(cmd *cobra.Command, args []string) error {
		field, err := domain.ParsePanelField(comicOpts.field)
		if err != nil {
			return err
		}
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		panel, err := app.Manager.RegenerateField(cmd.Context(), args[0], args[1], field)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), panel.Field(field))
		return nil
	},
}

var comicImageCmd = &cobra.Command{
	Use:   "image <id> [panel-id]",
	Short: "パネルの画像を生成するのだ。",
	Long: `パネルを指定すると1枚、省略すると画像の無い確定済みパネルをすべて生成するのだ。
--instruction を付けると既存の画像を編集するのだよ。`,
	Args:    cobra.RangeArgs(1, 2),
	PreRunE: requireImageBackend,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		if len(args) == 1 {
			comic, err := app.Manager.GenerateAllImages(ctx, args[0])
			if err != nil {
				return err
			}
			done := 0
			for _, p := range comic.Panels {
				if p.Image != nil {
					done++
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "画像 %d / %d 枚なのだ。\n", done, len(comic.Panels))
			return nil
		}

		if comicOpts.promptOnly {
			panel, err := app.Manager.PreparePanelImagePrompt(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), panel.ImageGenerationPrompt)
			return nil
		}

		panel, err := app.Manager.GeneratePanelImage(ctx, args[0], args[1], comicOpts.instruction)
		if err != nil {
			return err
		}
		slog.Info("Panel image saved", "panel", panel.ID, "mimeType", panel.Image.MimeType)
		return nil
	},
}

var comicStyleGuideCmd = &cobra.Command{
	Use:     "style-guide <id>",
	Short:   "画像の画風を揃えるスタイルガイドを作るのだ。",
	Args:    cobra.ExactArgs(1),
	PreRunE: requireAPIKey,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		comic, err := app.Manager.EnsureStyleGuide(cmd.Context(), args[0], comicOpts.force)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), comic.StyleGuidePrompt)
		return nil
	},
}

var comicDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "コミックと下書きを削除するのだ。",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()
		return app.Manager.DeleteComic(cmd.Context(), args[0])
	},
}

func printPanels(cmd *cobra.Command, panels domain.Panels) {
	rows := make([][]string, 0, len(panels))
	for i, p := range panels {
		lines := make([]string, 0, len(p.Dialogue))
		for _, d := range p.Dialogue {
			lines = append(lines, d.Character+": "+d.Line)
		}
		rows = append(rows, []string{strconv.Itoa(i + 1), p.ID, p.Caption, p.VisualDescription, strings.Join(lines, "\n")})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(
		[]string{"#", "ID", "Caption", "Visual", "Dialogue"},
		rows,
		[]columnAlignment{alignRight},
	))
}

func init() {
	f := comicCreateCmd.Flags()
	f.StringVar(&comicOpts.subject, "subject", "", "科目（例: Obstetrics）なのだ。")
	f.StringVar(&comicOpts.topic, "topic", "", "トピックなのだ。")
	f.StringVar(&comicOpts.ward, "ward", "", "舞台となる病棟なのだ。")
	f.StringVar(&comicOpts.characters, "characters", "", "登場キャラクターの名前（カンマ区切り）なのだ。")
	for _, c := range []*cobra.Command{comicCreateCmd, comicDraftCmd} {
		c.Flags().StringVarP(&comicOpts.excerpt, "excerpt", "e", "", "教科書の抜粋なのだ。")
		c.Flags().StringVarP(&comicOpts.excerptFile, "excerpt-file", "f", "", "抜粋を読み込むファイル（'-'で標準入力なのだ）。")
	}
	comicRegenerateCmd.Flags().StringVar(&comicOpts.field, "field", "", "書き直すフィールド名（observation, caption など）なのだ。")
	_ = comicRegenerateCmd.MarkFlagRequired("field")
	comicImageCmd.Flags().StringVarP(&comicOpts.instruction, "instruction", "i", "", "画像の編集指示なのだ。")
	comicImageCmd.Flags().BoolVar(&comicOpts.promptOnly, "prompt-only", false, "画像は生成せず、プロンプトだけ表示するのだ。")
	comicStyleGuideCmd.Flags().BoolVar(&comicOpts.force, "force", false, "既存のスタイルガイドを作り直すのだ。")

	comicCmd.AddCommand(
		comicCreateCmd,
		comicListCmd,
		comicShowCmd,
		comicDraftCmd,
		comicFinishCmd,
		comicRegenerateCmd,
		comicImageCmd,
		comicStyleGuideCmd,
		comicDeleteCmd,
	)
}
