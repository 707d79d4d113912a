package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/artemshloyda/neonconvert/internal/queue"
	"github.com/artemshloyda/neonconvert/internal/storage"
	"github.com/artemshloyda/neonconvert/internal/worker"
)

// maxErrorWidth - длина сообщения об ошибке в таблице.
const maxErrorWidth = 48

var statusLabels = map[queue.Status]string{
	queue.StatusPending:    "⏳ ожидает",
	queue.StatusConverting: "🔄 конвертируется",
	queue.StatusCompleted:  "✅ готово",
	queue.StatusError:      "❌ ошибка",
}

// renderQueue рисует таблицу элементов очереди.
func renderQueue(items []queue.Item) string {
	if len(items) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"#", "Файл", "Статус", "%", "Результат", "Размер", "Ошибка"})

	for i, it := range items {
		result, size := "-", "-"
		if it.Output != nil {
			result = it.Output.FileName
			size = worker.FormatBytes(it.Output.Size)
		}
		tw.AppendRow(table.Row{
			i + 1,
			it.Source.Name,
			statusLabel(it.Status),
			it.Progress,
			result,
			size,
			truncate(it.Err, maxErrorWidth),
		})
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})

	return tw.Render()
}

// renderSummary рисует итоговую сводку сессии.
func renderSummary(st worker.Stats, journal storage.Stats, elapsed time.Duration) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.SetTitle("📊 Результаты")

	tw.AppendRows([]table.Row{
		{"Сконвертировано", st.Completed},
		{"Ошибок", st.Failed},
		{"Повторов", st.Retried},
		{"Попыток в журнале", journal.Total},
		{"Отброшено результатов", journal.Discarded},
		{"Исходные файлы", worker.FormatBytes(st.InputBytes)},
		{"Результаты", worker.FormatBytes(st.OutputBytes)},
		{"Средняя попытка", journal.AvgDuration.Round(time.Millisecond)},
		{"Время", elapsed.Round(time.Millisecond)},
	})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
	})

	return tw.Render()
}

func statusLabel(s queue.Status) string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return string(s)
}

func truncate(s string, width int) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "-"
	}
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return fmt.Sprintf("%s…", string(r[:width-1]))
}
