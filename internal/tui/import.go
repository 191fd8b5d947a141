// Package tui renders interactive progress for long CLI operations.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mmcdole/reelsync/internal/domain"
	"github.com/mmcdole/reelsync/internal/tui/styles"
)

const maxBarWidth = 60

// ImportFunc runs an import, reporting progress through onProgress
type ImportFunc func(ctx context.Context, onProgress domain.ProgressFunc) (domain.ImportResult, error)

// ProgressMsg reports processed titles
type ProgressMsg struct {
	Done  int
	Total int
}

// DoneMsg ends the import view
type DoneMsg struct {
	Result domain.ImportResult
	Err    error
}

// ImportModel shows a spinner while the catalog is listed and a progress bar
// while titles are processed.
type ImportModel struct {
	title    string
	spinner  spinner.Model
	bar      progress.Model
	done     int
	total    int
	finished bool
	result   domain.ImportResult
	err      error
	cancel   context.CancelFunc
}

// NewImportModel creates the model. cancel is called when the user quits.
func NewImportModel(title string, cancel context.CancelFunc) ImportModel {
	s := spinner.New()
	s.Spinner = spinner.Spinner{Frames: styles.SpinnerFrames, FPS: spinner.Dot.FPS}
	s.Style = styles.SpinnerStyle

	bar := progress.New(progress.WithSolidFill(string(styles.Accent)))
	bar.Width = 40

	return ImportModel{title: title, spinner: s, bar: bar, cancel: cancel}
}

func (m ImportModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m ImportModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			// The import winds down and reports through DoneMsg
			if m.cancel != nil {
				m.cancel()
			}
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.bar.Width = min(max(msg.Width-30, 10), maxBarWidth)
		return m, nil

	case ProgressMsg:
		m.done, m.total = msg.Done, msg.Total
		return m, nil

	case DoneMsg:
		m.finished = true
		m.result, m.err = msg.Result, msg.Err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m ImportModel) View() string {
	if m.finished {
		return Summary(m.result, m.err) + "\n"
	}
	if m.total == 0 {
		return fmt.Sprintf("%s Listing %s...\n", m.spinner.View(), m.title)
	}
	percent := float64(m.done) / float64(m.total)
	return fmt.Sprintf("%s Importing %s %s %s\n",
		m.spinner.View(),
		m.title,
		m.bar.ViewAs(percent),
		styles.DimStyle.Render(fmt.Sprintf("%d/%d", m.done, m.total)))
}

// Summary renders the outcome of an import
func Summary(res domain.ImportResult, err error) string {
	var b strings.Builder
	line := fmt.Sprintf("%s: %d listed, %d new, %d synced, %d sources",
		res.CatalogID, res.Listed, res.Created, res.Synced, res.Sources)
	if err != nil {
		b.WriteString(styles.Failure(line + " (" + err.Error() + ")"))
	} else {
		b.WriteString(styles.Success(line))
	}
	for id, ferr := range res.Failed {
		b.WriteString("\n  " + styles.WarnStyle.Render(id) + " " + styles.DimStyle.Render(ferr.Error()))
	}
	return b.String()
}

// RunImport runs fn under an interactive progress view and returns its result
func RunImport(ctx context.Context, title string, fn ImportFunc, opts ...tea.ProgramOption) (domain.ImportResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewImportModel(title, cancel), opts...)

	type outcome struct {
		result domain.ImportResult
		err    error
	}
	outcomes := make(chan outcome, 1)
	go func() {
		res, err := fn(ctx, func(done, total int) {
			p.Send(ProgressMsg{Done: done, Total: total})
		})
		outcomes <- outcome{res, err}
		p.Send(DoneMsg{Result: res, Err: err})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-outcomes
		return domain.ImportResult{}, fmt.Errorf("progress view failed: %w", err)
	}
	out := <-outcomes
	return out.result, out.err
}
