package chooser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/pipectx/internal/directory"
	"github.com/kingrea/pipectx/internal/pipeline"
)

// TUI asks the user through a terminal list of candidate tasks.
type TUI struct {
	dir    directory.Client
	input  io.Reader
	output io.Writer
}

// TUIOption customises a TUI.
type TUIOption func(*TUI)

// WithInput reads key presses from r instead of stdin.
func WithInput(r io.Reader) TUIOption {
	return func(t *TUI) { t.input = r }
}

// WithOutput draws to w instead of stdout.
func WithOutput(w io.Writer) TUIOption {
	return func(t *TUI) { t.output = w }
}

// NewTUI creates a terminal chooser backed by dir.
func NewTUI(dir directory.Client, opts ...TUIOption) *TUI {
	t := &TUI{dir: dir}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Choose implements Chooser. It blocks until the user selects a task or
// dismisses the list.
func (t *TUI) Choose(ctx context.Context, req Request) (pipeline.TaskRef, error) {
	tasks, err := Candidates(ctx, t.dir, req)
	if err != nil {
		return pipeline.TaskRef{}, err
	}
	if len(tasks) == 0 {
		return pipeline.TaskRef{}, fmt.Errorf("%w for %s", ErrNoCandidates, describe(req))
	}

	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if t.input != nil {
		opts = append(opts, tea.WithInput(t.input))
	}
	if t.output != nil {
		opts = append(opts, tea.WithOutput(t.output))
	}
	final, err := tea.NewProgram(newModel(req, tasks), opts...).Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return pipeline.TaskRef{}, fmt.Errorf("chooser: %w", ctx.Err())
		}
		return pipeline.TaskRef{}, fmt.Errorf("chooser: run: %w", err)
	}
	m, ok := final.(model)
	if !ok || m.choice == nil {
		return pipeline.TaskRef{}, pipeline.ErrUserCancelled
	}
	return *m.choice, nil
}

// taskItem wraps a TaskRef for the list display
type taskItem struct {
	task pipeline.TaskRef
}

func (i taskItem) Title() string {
	return fmt.Sprintf("%s · %s", i.task.Step, i.task.Entity)
}

func (i taskItem) Description() string {
	var logins []string
	for _, a := range i.task.Assignees {
		if a.Login != "" {
			logins = append(logins, a.Login)
		}
	}
	if len(logins) == 0 {
		return fmt.Sprintf("#%d unassigned", i.task.ID)
	}
	return fmt.Sprintf("#%d assigned to %s", i.task.ID, strings.Join(logins, ", "))
}

func (i taskItem) FilterValue() string {
	return i.Title()
}

type model struct {
	list      list.Model
	reason    string
	choice    *pipeline.TaskRef
	cancelled bool
}

func newModel(req Request, tasks []pipeline.TaskRef) model {
	delegate := list.NewDefaultDelegate()
	delegate.SetHeight(2)
	delegate.SetSpacing(0)
	items := make([]list.Item, len(tasks))
	for i, task := range tasks {
		items[i] = taskItem{task: task}
	}
	l := list.New(items, delegate, 60, 16)
	l.Title = "Select a task for " + describe(req)
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)

	m := model{list: l}
	if req.Reason != nil {
		m.reason = req.Reason.Error()
	}
	return m
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		height := msg.Height - 6
		if height < 5 {
			height = msg.Height
		}
		m.list.SetSize(msg.Width-2, height)
		return m, nil

	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "ctrl+c", "esc":
			m.cancelled = true
			return m, tea.Quit
		case "enter":
			if item, ok := m.list.SelectedItem().(taskItem); ok {
				task := item.task
				m.choice = &task
				return m, tea.Quit
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m model) View() string {
	if m.choice != nil || m.cancelled {
		return ""
	}
	reasonStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FFD479")).
		MarginBottom(1)
	helpStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888888")).
		MarginTop(1)

	var b strings.Builder
	if m.reason != "" {
		b.WriteString(reasonStyle.Render("⚠ " + m.reason))
		b.WriteString("\n")
	}
	b.WriteString(m.list.View())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("enter select · esc cancel"))
	return b.String()
}

func describe(req Request) string {
	if req.Entity != nil {
		return fmt.Sprintf("%s (%s)", req.Entity, req.Project.Name)
	}
	return "project " + req.Project.Name
}
