package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shouni/go-zenith-comic-kit/pkg/domain"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var episodeOpts struct {
	topic       string
	content     string
	contentFile string
}

// episodeCmd はエピソードビルダーのサブコマンドをまとめるのだ。
var episodeCmd = &cobra.Command{
	Use:   "episode",
	Short: "対話しながらエピソード台本を作るのだ。",
	Long: `アーク提案、台本執筆、パネル分割の3段階でエピソードを作るのだ。
open で自動的にアーク提案が始まり、respond で次の段階へ進めるのだよ。`,
}

var episodeCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "新しいエピソードを作成するのだ。",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := readText(episodeOpts.content, episodeOpts.contentFile)
		if err != nil {
			return err
		}
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		ep, err := app.Manager.CreateEpisode(cmd.Context(), domain.EpisodeInput{Topic: episodeOpts.topic, TextbookContent: content})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (Episode %d)\n", ep.ID, ep.EpisodeNumber)
		return nil
	},
}

var episodeListCmd = &cobra.Command{
	Use:   "list",
	Short: "エピソードの一覧を表示するのだ。",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		episodes := app.Manager.Episodes().All()
		if len(episodes) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "エピソードはまだありません。")
			return nil
		}
		rows := make([][]string, 0, len(episodes))
		for _, e := range episodes {
			rows = append(rows, []string{
				strconv.Itoa(e.EpisodeNumber),
				e.ID,
				e.Topic,
				string(e.GenerationPhase),
				humanize.Time(e.CreatedAt),
			})
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderTable(
			[]string{"#", "ID", "Topic", "Phase", "Created"},
			rows,
			[]columnAlignment{alignRight},
		))
		return nil
	},
}

var episodeOpenCmd = &cobra.Command{
	Use:     "open <id>",
	Short:   "エピソードを開くのだ。作成直後ならアーク提案を生成するのだよ。",
	Args:    cobra.ExactArgs(1),
	PreRunE: requireAPIKey,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		run, err := app.Manager.OpenEpisode(ctx, args[0])
		if err != nil {
			return err
		}
		ep, err := run.Wait(ctx)
		printEpisodeState(cmd, ep)
		return err
	},
}

var episodeRespondCmd = &cobra.Command{
	Use:     "respond <id> <message...>",
	Short:   "返答してエピソードを次の段階へ進めるのだ。",
	Args:    cobra.MinimumNArgs(2),
	PreRunE: requireAPIKey,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		run, err := app.Manager.RespondEpisode(ctx, args[0], strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		if !run.Accepted {
			fmt.Fprintf(cmd.OutOrStdout(), "段階 %s ではこの入力を受け付けないのだ。\n", run.Episode.GenerationPhase)
			return nil
		}
		ep, err := run.Wait(ctx)
		printEpisodeState(cmd, ep)
		return err
	},
}

var episodeFinishCmd = &cobra.Command{
	Use:   "finish <id>",
	Short: "パネル分割を承認してエピソードを完了にするのだ。",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		ep, err := app.Manager.FinishEpisode(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Episode %d は %s なのだ。\n", ep.EpisodeNumber, ep.GenerationPhase)
		return nil
	},
}

var episodeDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "エピソードを削除するのだ。",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()
		return app.Manager.DeleteEpisode(cmd.Context(), args[0])
	},
}

// printEpisodeState は段階と直近のモデル応答を表示するのだ。
func printEpisodeState(cmd *cobra.Command, ep domain.Episode) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Episode %d: %s [%s]\n", ep.EpisodeNumber, ep.Topic, ep.GenerationPhase)
	if ep.LastError != "" {
		fmt.Fprintf(out, "エラー: %s\n", ep.LastError)
		return
	}
	for i := len(ep.History) - 1; i >= 0; i-- {
		if ep.History[i].Role == domain.RoleModel {
			fmt.Fprintln(out)
			fmt.Fprintln(out, ep.History[i].Text)
			return
		}
	}
}

func init() {
	f := episodeCreateCmd.Flags()
	f.StringVar(&episodeOpts.topic, "topic", "", "エピソードのトピックなのだ。")
	f.StringVar(&episodeOpts.content, "content", "", "教科書の本文なのだ。")
	f.StringVarP(&episodeOpts.contentFile, "content-file", "f", "", "本文を読み込むファイル（'-'で標準入力なのだ）。")

	episodeCmd.AddCommand(
		episodeCreateCmd,
		episodeListCmd,
		episodeOpenCmd,
		episodeRespondCmd,
		episodeFinishCmd,
		episodeDeleteCmd,
	)
}
