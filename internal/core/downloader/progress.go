package downloader

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

var (
	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	infoStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	doneStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// transferState holds the shared transfer state
type transferState struct {
	mu         sync.RWMutex
	current    int64
	total      int64
	speed      float64
	done       bool
	err        error
	startTime  time.Time
	endTime    time.Time
	finalSpeed float64
	finalPath  string
}

func newTransferState() *transferState {
	return &transferState{startTime: time.Now(), total: -1}
}

func (s *transferState) update(current, total int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = current
	s.total = total
	if elapsed := time.Since(s.startTime).Seconds(); elapsed > 0 {
		s.speed = float64(current) / elapsed
	}
}

func (s *transferState) finish(path string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endTime = time.Now()
	if elapsed := s.endTime.Sub(s.startTime).Seconds(); elapsed > 0 {
		s.finalSpeed = float64(s.current) / elapsed
	}
	s.finalPath = path
	s.err = err
	s.done = true
}

func (s *transferState) get() (current, total int64, speed float64, done bool, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.total, s.speed, s.done, s.err
}

func (s *transferState) getFinal() (path string, elapsed time.Duration, avgSpeed float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.endTime.IsZero() {
		return s.finalPath, time.Since(s.startTime), s.speed
	}
	return s.finalPath, s.endTime.Sub(s.startTime), s.finalSpeed
}

// tickMsg triggers UI updates
type tickMsg time.Time

// transferModel is the Bubble Tea model for transfer progress
type transferModel struct {
	progress progress.Model
	spinner  spinner.Model
	label    string
	state    *transferState
	cancel   context.CancelFunc
}

func newTransferModel(label string, state *transferState, cancel context.CancelFunc) transferModel {
	p := progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(50),
	)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return transferModel{
		progress: p,
		spinner:  s,
		label:    label,
		state:    state,
		cancel:   cancel,
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m transferModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

func (m transferModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.cancel()
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		return m, cmd

	case tickMsg:
		current, total, _, done, _ := m.state.get()
		if done {
			return m, tea.Quit
		}
		cmds := []tea.Cmd{tickCmd()}
		if total > 0 {
			cmds = append(cmds, m.progress.SetPercent(float64(current)/float64(total)))
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m transferModel) View() string {
	current, total, speed, done, err := m.state.get()

	if err != nil {
		return fmt.Sprintf("\n  %s Download failed: %v\n\n", errStyle.Render("✗"), err)
	}

	if done {
		path, elapsed, avgSpeed := m.state.getFinal()
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		return fmt.Sprintf("\n  %s Completed\n  Saved: %s (%s)\n  Elapsed: %s  |  Avg speed: %s/s\n\n",
			doneStyle.Render("✓"),
			path,
			humanize.IBytes(uint64(current)),
			formatDuration(elapsed),
			humanize.IBytes(uint64(avgSpeed)),
		)
	}

	s := fmt.Sprintf("\n  %s Downloading: %s\n\n", m.spinner.View(), infoStyle.Render(m.label))
	s += fmt.Sprintf("  %s\n\n", m.progress.View())

	if total > 0 {
		percent := float64(current) / float64(total) * 100
		s += fmt.Sprintf("  Progress: %.1f%%  |  %s/%s  |  Speed: %s/s  |  ETA: %s\n",
			percent,
			humanize.IBytes(uint64(current)),
			humanize.IBytes(uint64(total)),
			humanize.IBytes(uint64(speed)),
			calculateETA(total-current, speed),
		)
	} else {
		s += fmt.Sprintf("  %s  |  Speed: %s/s\n", humanize.IBytes(uint64(current)), humanize.IBytes(uint64(speed)))
	}

	s += "\n" + helpStyle.Render("  Press q to cancel") + "\n"
	return s
}

func calculateETA(remaining int64, speed float64) string {
	if speed <= 0 {
		return "??:??"
	}
	return formatDuration(time.Duration(float64(remaining)/speed) * time.Second)
}

// SaveFunc performs a transfer, reporting through progress, and returns
// the saved path
type SaveFunc func(ctx context.Context, progress ProgressFunc) (string, error)

// RunTransferTUI runs save in the background with a TUI progress display
func RunTransferTUI(ctx context.Context, label string, save SaveFunc) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	state := newTransferState()
	go func() {
		path, err := save(ctx, state.update)
		state.finish(path, err)
	}()

	p := tea.NewProgram(newTransferModel(label, state, cancel))
	if _, err := p.Run(); err != nil {
		return "", err
	}

	path, _, _ := state.getFinal()
	_, _, _, done, err := state.get()
	if !done {
		return "", context.Canceled
	}
	return path, err
}
