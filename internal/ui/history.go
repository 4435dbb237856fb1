package ui

import (
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// HistoryEntry is one finished call in the history table.
type HistoryEntry struct {
	Started  time.Time
	Room     string
	Outcome  string
	Duration time.Duration
}

// History collects finished calls and prints them as a plain table, which
// stays readable when stdout is a log file.
type History struct {
	entries []HistoryEntry
}

func (h *History) Add(e HistoryEntry) {
	h.entries = append(h.entries, e)
}

func (h *History) Len() int { return len(h.entries) }

func (h *History) Render(w io.Writer) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.Style().Title.Align = text.AlignCenter
	tw.SetTitle("Calls")
	tw.AppendHeader(table.Row{"#", "Started", "Room", "Outcome", "Duration"})

	for i, e := range h.entries {
		tw.AppendRow(table.Row{
			i + 1,
			e.Started.Format(time.TimeOnly),
			e.Room,
			e.Outcome,
			e.Duration.Round(time.Millisecond).String(),
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})
	tw.AppendFooter(table.Row{"", "", "", "total", len(h.entries)})
	tw.Render()
}
