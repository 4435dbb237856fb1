package trigger

import (
	"context"
	"errors"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/BioHazard786/doorcall/internal/ui"
)

// Key fires on any key press in the terminal. q, esc and ctrl+c exhaust it.
type Key struct {
	in  io.Reader
	out io.Writer
}

// NewKey reads keys from in and draws the prompt to out. nil means the
// process stdin and stdout.
func NewKey(in io.Reader, out io.Writer) *Key {
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	return &Key{in: in, out: out}
}

type keyModel struct {
	pressed bool
	quit    bool
}

func (m *keyModel) Init() tea.Cmd { return nil }

func (m *keyModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "q", "esc", "ctrl+c":
		m.quit = true
	default:
		m.pressed = true
	}
	return m, tea.Quit
}

func (m *keyModel) View() string {
	if m.pressed || m.quit {
		return ""
	}
	return ui.PromptStyle.Render("Press any key to start a call") + " " +
		ui.MutedStyle.Render("(q to quit)") + "\n"
}

func (k *Key) Wait(ctx context.Context) error {
	model := &keyModel{}
	p := tea.NewProgram(model,
		tea.WithContext(ctx),
		tea.WithInput(k.in),
		tea.WithOutput(k.out),
	)
	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	if model.quit || !model.pressed {
		return ErrExhausted
	}
	return nil
}
