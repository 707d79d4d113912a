package cli

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/artemshloyda/neonconvert/internal/config"
)

// newPresetsCmd создаёт команду для просмотра пресетов холста.
func newPresetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "Показать пресеты холста для PDF -> JPG",
		Long: `Показать пресеты холста для PDF -> JPG.

Пресет задаёт размер холста и качество JPEG. Явные --canvas и --quality
перекрывают значения пресета.

Примеры:
  neonconvert presets
  neonconvert docs/ --out ./jpg --preset thumbnail`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), renderPresets())
		},
	}
}

func renderPresets() string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Пресет", "Холст", "Качество"})

	for _, name := range config.ValidPresets() {
		p := config.Presets[config.Preset(name)]
		tw.AppendRow(table.Row{name, fmt.Sprintf("%dx%d", p.CanvasWidth, p.CanvasHeight), p.Quality})
	}

	return tw.Render()
}
