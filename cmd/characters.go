package cmd

import (
	"fmt"

	"github.com/shouni/go-zenith-comic-kit/internal/config"
	"github.com/shouni/go-zenith-comic-kit/pkg/domain"

	"github.com/spf13/cobra"
)

// charactersCmd は常設キャストの一覧を表示するのだ。
var charactersCmd = &cobra.Command{
	Use:   "characters",
	Short: "Zenith Teaching Hospital の常設キャストを表示するのだ。",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rows := make([][]string, 0, len(domain.PredefinedCharacters))
		for _, c := range domain.PredefinedCharacters {
			rows = append(rows, []string{c.Name, c.Description})
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Name", "Role"}, rows, nil))
		return nil
	},
}

// configCmd は設定ファイルのサンプルを表示するのだ。
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "設定ファイルのサンプルを表示するのだ。",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprint(cmd.OutOrStdout(), config.SampleConfig())
		return nil
	},
}
