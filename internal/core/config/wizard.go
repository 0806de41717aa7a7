package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const asciiArt = `
 ┬  ┬┬─┐┌─┐┌─┐┌─┐┬ ┬  ┬┌─┐
 └┐┌┘├┬┘├┤ └─┐│ ││ └┐┌┘├┤
  └┘ ┴└─└─┘└─┘└─┘┴─┘└┘ └─┘
`

var (
	logoStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	titleStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	stepStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("248"))
	selectedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	unselectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	cursorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	helpStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	labelStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("248")).Width(16)
	valueStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	containerStyle  = lipgloss.NewStyle().Padding(2, 4)
)

const (
	stepUpload = iota
	stepOutputDir
	stepYtDLP
	stepConfirm
	stepCount
)

type option struct{ label, value string }

var uploadOptions = []option{
	{"2 GiB (local bot API server)", "2048"},
	{"50 MiB (hosted bot API)", "50"},
	{"512 MiB", "512"},
	{"4 GiB", "4096"},
}

var confirmOptions = []option{
	{"Yes, save", "yes"},
	{"No, cancel", "no"},
}

type model struct {
	currentStep int
	cursor      int
	config      *Config
	input       textinput.Model
	confirmed   bool
	cancelled   bool
	width       int
	height      int
}

func initialModel(cfg *Config) model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.PromptStyle = cursorStyle
	ti.CharLimit = 512
	ti.Width = 60

	m := model{config: cfg, input: ti}
	m.setCursorFromConfig()
	return m
}

func (m *model) stepTitle() string {
	switch m.currentStep {
	case stepUpload:
		return "Upload limit"
	case stepOutputDir:
		return "Output directory"
	case stepYtDLP:
		return "yt-dlp executable"
	case stepConfirm:
		return "Confirm"
	}
	return ""
}

func (m *model) stepDescription() string {
	switch m.currentStep {
	case stepUpload:
		return "Media above this size (or of unknown size) is delivered as a link"
	case stepOutputDir:
		return "Where `vresolve fetch` saves files"
	case stepYtDLP:
		return "Leave empty to use yt-dlp from PATH"
	case stepConfirm:
		return "Review your settings"
	}
	return ""
}

func (m *model) options() []option {
	switch m.currentStep {
	case stepUpload:
		return uploadOptions
	case stepConfirm:
		return confirmOptions
	}
	return nil
}

func (m *model) isInputStep() bool {
	return m.currentStep == stepOutputDir || m.currentStep == stepYtDLP
}

func (m *model) setCursorFromConfig() {
	m.cursor = 0
	switch m.currentStep {
	case stepUpload:
		current := strconv.Itoa(m.config.MaxUploadMB)
		for i, opt := range uploadOptions {
			if opt.value == current {
				m.cursor = i
			}
		}
	case stepOutputDir:
		v := m.config.OutputDir
		if v == "" {
			v = DefaultDownloadDir()
		}
		m.input.SetValue(v)
	case stepYtDLP:
		m.input.SetValue(m.config.YtDLPPath)
	}

	if m.isInputStep() {
		m.input.CursorEnd()
		m.input.Focus()
	} else {
		m.input.Blur()
	}
}

func (m *model) saveCurrentValue() {
	switch m.currentStep {
	case stepUpload:
		if mb, err := strconv.Atoi(uploadOptions[m.cursor].value); err == nil {
			m.config.MaxUploadMB = mb
		}
	case stepOutputDir:
		m.config.OutputDir = expandPath(strings.TrimSpace(m.input.Value()))
	case stepYtDLP:
		m.config.YtDLPPath = expandPath(strings.TrimSpace(m.input.Value()))
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.cancelled = true
			return m, tea.Quit

		case "left":
			if m.isInputStep() {
				break
			}
			fallthrough
		case "shift+tab":
			if m.currentStep > 0 {
				m.saveCurrentValue()
				m.currentStep--
				m.setCursorFromConfig()
			}
			return m, nil

		case "right":
			if m.isInputStep() {
				break
			}
			fallthrough
		case "enter", "tab":
			m.saveCurrentValue()
			if m.currentStep == stepConfirm {
				m.confirmed = m.cursor == 0
				m.cancelled = !m.confirmed
				return m, tea.Quit
			}
			m.currentStep++
			m.setCursorFromConfig()
			return m, nil

		case "up", "k":
			if opts := m.options(); len(opts) > 0 {
				m.cursor = (m.cursor - 1 + len(opts)) % len(opts)
				return m, nil
			}

		case "down", "j":
			if opts := m.options(); len(opts) > 0 {
				m.cursor = (m.cursor + 1) % len(opts)
				return m, nil
			}
		}
	}

	if m.isInputStep() {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(logoStyle.Render(asciiArt))
	b.WriteString("\n\n")
	b.WriteString(stepStyle.Render(fmt.Sprintf("Step %d of %d", m.currentStep+1, stepCount)))
	b.WriteString("\n\n")
	b.WriteString(titleStyle.Render(m.stepTitle()))
	b.WriteString("\n")
	b.WriteString(stepStyle.Render(m.stepDescription()))
	b.WriteString("\n\n")

	if m.currentStep == stepConfirm {
		b.WriteString(m.renderReview())
		b.WriteString("\n")
	}

	if m.isInputStep() {
		b.WriteString(m.input.View())
		b.WriteString("\n")
	} else {
		for i, opt := range m.options() {
			cursor := "  "
			style := unselectedStyle
			if i == m.cursor {
				cursor = cursorStyle.Render("> ")
				style = selectedStyle
			}
			b.WriteString(cursor)
			b.WriteString(style.Render(opt.label))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("shift+tab back • enter next • ↑↓ select • esc quit"))

	content := containerStyle.Render(b.String())
	if m.width > 0 && m.height > 0 {
		content = lipgloss.Place(m.width, m.height, lipgloss.Left, lipgloss.Top, content)
	}
	return content
}

func (m model) renderReview() string {
	var b strings.Builder

	ytdlp := m.config.YtDLPPath
	if ytdlp == "" {
		ytdlp = "yt-dlp (PATH)"
	}

	lines := []struct{ label, value string }{
		{"Upload limit", fmt.Sprintf("%d MiB", m.config.MaxUploadMB)},
		{"Output dir", m.config.OutputDir},
		{"yt-dlp", ytdlp},
	}
	for _, line := range lines {
		b.WriteString(labelStyle.Render(line.label + ":"))
		b.WriteString(valueStyle.Render(line.value))
		b.WriteString("\n")
	}
	return b.String()
}

// RunInitWizard runs an interactive TUI wizard to configure vresolve
func RunInitWizard() (*Config, error) {
	cfg := LoadOrDefault()

	p := tea.NewProgram(initialModel(cfg), tea.WithAltScreen())
	finalModel, err := p.Run()
	if err != nil {
		return nil, err
	}

	result := finalModel.(model)
	if result.cancelled || !result.confirmed {
		return nil, fmt.Errorf("configuration cancelled")
	}

	if result.config.OutputDir == "" {
		result.config.OutputDir = DefaultDownloadDir()
	}
	if err := result.config.Validate(); err != nil {
		return nil, err
	}
	return result.config, nil
}
