package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

var stateLabels = map[string]string{
	"idle":            "Idle",
	"connected":       "Connected to rendezvous server",
	"room_pending":    "Opening room",
	"awaiting_peer":   "Waiting for someone to join",
	"awaiting_invite": "Waiting for the call offer",
	"negotiating":     "Answering",
	"active":          "In call",
	"closing":         "Hanging up",
}

// StateLabel returns the human text for a controller state.
func StateLabel(state string) string {
	if l, ok := stateLabels[state]; ok {
		return l
	}
	return state
}

type stateMsg string

// CallView shows the live state of the current call with a spinner.
type CallView struct {
	program *tea.Program
	model   *callModel
	wg      sync.WaitGroup
	once    sync.Once
}

type callModel struct {
	spinner spinner.Model
	state   string
	since   time.Time
	done    bool
}

// NewCallView creates a view that draws to out. It does not read input.
func NewCallView(out io.Writer) *CallView {
	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = SpinnerStyle

	model := &callModel{spinner: s, state: "idle", since: time.Now()}
	return &CallView{
		model: model,
		program: tea.NewProgram(model,
			tea.WithInput(nil),
			tea.WithOutput(out),
		),
	}
}

// Start runs the view in a goroutine.
func (v *CallView) Start() {
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		if _, err := v.program.Run(); err != nil {
			fmt.Printf("UI error: %v\n", err)
		}
	}()
}

// SetState updates the displayed state.
func (v *CallView) SetState(state string) {
	v.program.Send(stateMsg(state))
}

// Stop ends the view and waits for it to clear.
func (v *CallView) Stop() {
	v.once.Do(func() {
		v.program.Quit()
		v.wg.Wait()
	})
}

func (m *callModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *callModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case stateMsg:
		if string(msg) != m.state {
			m.state = string(msg)
			m.since = time.Now()
		}
		return m, nil

	case tea.QuitMsg:
		m.done = true
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *callModel) View() string {
	if m.done {
		return ""
	}
	elapsed := time.Since(m.since).Truncate(time.Second)
	return fmt.Sprintf("%s %s %s\n",
		m.spinner.View(),
		StatusStyle.Render(StateLabel(m.state)),
		MutedStyle.Render(elapsed.String()),
	)
}

// Write prints p above the live view.
func (v *CallView) Write(p []byte) (int, error) {
	v.program.Println(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
