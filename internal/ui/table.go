package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// CallSummary is the printable outcome of one call.
type CallSummary struct {
	Session  string
	Room     string
	Outcome  string
	Path     []string
	Emitted  []string
	Duration string
	Err      error
}

func styledTable(headers []string, rows [][]string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})
}

func CallSummaryView(s CallSummary) string {
	errText := "-"
	if s.Err != nil {
		errText = s.Err.Error()
	}
	emitted := "-"
	if len(s.Emitted) > 0 {
		emitted = strings.Join(s.Emitted, ", ")
	}

	rows := [][]string{
		{"Session", s.Session},
		{"Room", s.Room},
		{"Outcome", OutcomeText(s.Outcome)},
		{"States", strings.Join(s.Path, " → ")},
		{"Sent", emitted},
		{"Duration", s.Duration},
		{"Error", errText},
	}
	return styledTable([]string{"Call", "Value"}, rows).Render()
}

// OutcomeText decorates a session outcome for display.
func OutcomeText(outcome string) string {
	switch outcome {
	case "completed":
		return SuccessStyle.Render(IconSuccess + " " + outcome)
	case "failed":
		return ErrorStyle.Render(IconError + " " + outcome)
	case "canceled":
		return MutedStyle.Render(outcome)
	default:
		return WarningStyle.Render(IconWarning + " " + outcome)
	}
}

func RenderCallSummary(s CallSummary) {
	fmt.Println(CallSummaryView(s))
}

type RoomInfo struct {
	Room     string
	RoomLink string
}

func NewRoomInfo(room, roomLink string) *RoomInfo {
	return &RoomInfo{
		Room:     room,
		RoomLink: roomLink,
	}
}

func (r *RoomInfo) View() string {
	content := fmt.Sprintf("%s Someone is at the door!\n\n%s Room:  %s",
		IconRoom,
		IconCopy, BoldStyle.Foreground(Primary).Render(r.Room),
	)
	if r.RoomLink != "" {
		content += fmt.Sprintf("\n%s Join:  %s", IconWeb, MutedStyle.Render(r.RoomLink))
	}
	return RoomBoxStyle.Render(content)
}
