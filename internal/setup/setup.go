// Package setup provides the interactive wizard that writes router.toml.
package setup

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/config"
)

// Provider options
const (
	ProviderAnthropic   = "anthropic"
	ProviderOpenAI      = "openai"
	ProviderGoogle      = "google"
	ProviderOllamaLocal = "ollama-local"
	ProviderCompat      = "openai-compat"
)

const ollamaBaseURL = "http://localhost:11434/v1"

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			MarginBottom(1)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("170")).
			Bold(true)

	normalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("82"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))
)

// Step represents a setup wizard step
type Step int

const (
	StepProvider Step = iota
	StepModel
	StepBaseURL
	StepDataset
	StepKnowledge
	StepGuidance
	StepRecorder
	StepConfirm
	StepComplete
)

type option struct {
	name string
	desc string
}

var providers = []option{
	{ProviderAnthropic, "Claude models"},
	{ProviderOpenAI, "GPT models"},
	{ProviderGoogle, "Gemini models"},
	{ProviderOllamaLocal, "Local Ollama through the built-in OpenAI-compatible client"},
	{ProviderCompat, "Any OpenAI-compatible endpoint"},
}

var recorders = []option{
	{"file", "One JSONL file per session"},
	{"sqlite", "All sessions in one SQLite database"},
	{"none", "Do not record sessions"},
}

// Answers holds what the user entered.
type Answers struct {
	Provider  string
	Model     string
	BaseURL   string
	Dataset   string
	Knowledge string
	Guidance  string
	Recorder  string
}

// Model is the bubbletea model for the setup wizard
type Model struct {
	step      Step
	answers   Answers
	cursor    int
	textInput textinput.Model
	path      string
	err       error
	written   bool
}

type writtenMsg struct{ err error }

// New creates a wizard that writes to path. An existing file pre-fills the
// answers.
func New(path string) Model {
	ti := textinput.New()
	ti.Focus()
	ti.CharLimit = 256
	ti.Width = 50

	m := Model{
		step:      StepProvider,
		textInput: ti,
		path:      path,
		answers:   Answers{Provider: ProviderAnthropic, Recorder: "file"},
	}
	if cfg, err := config.LoadFile(path); err == nil {
		m.answers = answersFrom(cfg)
	}
	m.cursor = indexOf(providers, m.answers.Provider)
	return m
}

func answersFrom(cfg *config.Config) Answers {
	a := Answers{
		Provider:  cfg.LLM.Provider,
		Model:     cfg.LLM.Model,
		BaseURL:   cfg.LLM.BaseURL,
		Dataset:   cfg.Analytics.Path,
		Knowledge: cfg.Knowledge.Seed,
		Guidance:  cfg.Guidance.Dir,
		Recorder:  cfg.Storage.Recorder,
	}
	if cfg.LLM.Direct {
		a.Provider = ProviderCompat
		if a.BaseURL == ollamaBaseURL {
			a.Provider = ProviderOllamaLocal
		}
	}
	return a
}

func indexOf(opts []option, name string) int {
	for i, o := range opts {
		if o.name == name {
			return i
		}
	}
	return 0
}

// DefaultModel returns the suggested model for a provider.
func DefaultModel(provider string) string {
	switch provider {
	case ProviderAnthropic:
		return "claude-sonnet-4-20250514"
	case ProviderOpenAI:
		return "gpt-4o"
	case ProviderGoogle:
		return "gemini-2.0-flash"
	case ProviderOllamaLocal:
		return "llama3.2"
	default:
		return ""
	}
}

// Build turns answers into a configuration.
func Build(a Answers) *config.Config {
	cfg := config.New()
	cfg.LLM.Provider = a.Provider
	cfg.LLM.Model = a.Model
	cfg.LLM.BaseURL = a.BaseURL
	switch a.Provider {
	case ProviderOllamaLocal:
		cfg.LLM.Provider = ""
		cfg.LLM.Direct = true
		if cfg.LLM.BaseURL == "" {
			cfg.LLM.BaseURL = ollamaBaseURL
		}
	case ProviderCompat:
		cfg.LLM.Provider = ""
		cfg.LLM.Direct = true
	}
	cfg.Analytics.Path = a.Dataset
	cfg.Knowledge.Seed = a.Knowledge
	cfg.Guidance.Dir = a.Guidance
	if a.Recorder != "" {
		cfg.Storage.Recorder = a.Recorder
	}
	return cfg
}

// Write encodes cfg as TOML at path.
func Write(path string, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()
	fmt.Fprintln(f, "# Router configuration")
	fmt.Fprintln(f, "# Generated by: router init")
	fmt.Fprintln(f)
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Run runs the wizard in the terminal.
func Run(path string) error {
	final, err := tea.NewProgram(New(path)).Run()
	if err != nil {
		return err
	}
	if m, ok := final.(Model); ok && m.err != nil {
		return m.err
	}
	return nil
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) isTextInputStep() bool {
	switch m.step {
	case StepModel, StepBaseURL, StepDataset, StepKnowledge, StepGuidance:
		return true
	}
	return false
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case writtenMsg:
		m.err = msg.err
		m.written = msg.err == nil
		m.step = StepComplete
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.isTextInputStep() {
			if msg.String() == "enter" {
				return m.handleEnter()
			}
			var cmd tea.Cmd
			m.textInput, cmd = m.textInput.Update(msg)
			return m, cmd
		}

		switch msg.String() {
		case "q", "esc":
			return m, tea.Quit
		case "enter":
			return m.handleEnter()
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < m.maxCursor() {
				m.cursor++
			}
		}
	}
	return m, nil
}

func (m Model) maxCursor() int {
	switch m.step {
	case StepProvider:
		return len(providers) - 1
	case StepRecorder:
		return len(recorders) - 1
	}
	return 0
}

// handleEnter stores the current answer and advances.
func (m Model) handleEnter() (tea.Model, tea.Cmd) {
	value := strings.TrimSpace(m.textInput.Value())
	switch m.step {
	case StepProvider:
		provider := providers[m.cursor].name
		if provider != m.answers.Provider || m.answers.Model == "" {
			m.answers.Model = DefaultModel(provider)
		}
		m.answers.Provider = provider
		m.step = StepModel
		m.prompt(m.answers.Model)
	case StepModel:
		m.answers.Model = value
		m.step = StepBaseURL
		if m.answers.Provider == ProviderOllamaLocal && m.answers.BaseURL == "" {
			m.answers.BaseURL = ollamaBaseURL
		}
		m.prompt(m.answers.BaseURL)
	case StepBaseURL:
		m.answers.BaseURL = value
		m.step = StepDataset
		m.prompt(m.answers.Dataset)
	case StepDataset:
		m.answers.Dataset = value
		m.step = StepKnowledge
		m.prompt(m.answers.Knowledge)
	case StepKnowledge:
		m.answers.Knowledge = value
		m.step = StepGuidance
		m.prompt(m.answers.Guidance)
	case StepGuidance:
		m.answers.Guidance = value
		m.step = StepRecorder
		m.cursor = indexOf(recorders, m.answers.Recorder)
	case StepRecorder:
		m.answers.Recorder = recorders[m.cursor].name
		m.step = StepConfirm
	case StepConfirm:
		path, cfg := m.path, Build(m.answers)
		return m, func() tea.Msg { return writtenMsg{Write(path, cfg)} }
	case StepComplete:
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) prompt(value string) {
	m.textInput.SetValue(value)
	m.textInput.CursorEnd()
}

func (m Model) View() string {
	var s strings.Builder
	switch m.step {
	case StepProvider:
		s.WriteString(m.viewSelect("LLM Provider", providers))
	case StepModel:
		s.WriteString(m.viewInput("Model", "Model used by the router and the specialists"))
	case StepBaseURL:
		s.WriteString(m.viewInput("Base URL", "Leave empty for the provider's default endpoint"))
	case StepDataset:
		s.WriteString(m.viewInput("Analytics dataset", "YAML file with accounts and campaigns (empty: specialists answer without tools)"))
	case StepKnowledge:
		s.WriteString(m.viewInput("Knowledge documents", "YAML documents indexed for semantic_search (optional)"))
	case StepGuidance:
		s.WriteString(m.viewInput("Guidance directory", "Markdown guidance appended after tool results (optional)"))
	case StepRecorder:
		s.WriteString(m.viewSelect("Session recorder", recorders))
	case StepConfirm:
		s.WriteString(m.viewConfirm())
	case StepComplete:
		s.WriteString(m.viewComplete())
	}
	return s.String()
}

func (m Model) viewSelect(title string, opts []option) string {
	var s strings.Builder
	s.WriteString(titleStyle.Render(title) + "\n")
	for i, o := range opts {
		cursor := "  "
		style := normalStyle
		if i == m.cursor {
			cursor = "> "
			style = selectedStyle
		}
		s.WriteString(cursor + style.Render(o.name) + " " + dimStyle.Render(o.desc) + "\n")
	}
	s.WriteString("\n" + dimStyle.Render("↑/↓ to move, Enter to select, q to quit"))
	return s.String()
}

func (m Model) viewInput(title, hint string) string {
	var s strings.Builder
	s.WriteString(titleStyle.Render(title) + "\n")
	s.WriteString(dimStyle.Render(hint) + "\n\n")
	s.WriteString(m.textInput.View() + "\n\n")
	s.WriteString(dimStyle.Render("Enter to continue"))
	return s.String()
}

func (m Model) viewConfirm() string {
	a := m.answers
	var s strings.Builder
	s.WriteString(titleStyle.Render("Write "+m.path+"?") + "\n")
	rows := [][2]string{
		{"provider", a.Provider},
		{"model", a.Model},
		{"base_url", a.BaseURL},
		{"dataset", a.Dataset},
		{"knowledge", a.Knowledge},
		{"guidance", a.Guidance},
		{"recorder", a.Recorder},
	}
	for _, r := range rows {
		v := r[1]
		if v == "" {
			v = dimStyle.Render("(none)")
		}
		s.WriteString(fmt.Sprintf("  %-10s %s\n", r[0], v))
	}
	s.WriteString("\n" + dimStyle.Render("Enter to write, q to quit without saving"))
	return s.String()
}

func (m Model) viewComplete() string {
	if m.err != nil {
		return errorStyle.Render("✗ "+m.err.Error()) + "\n"
	}
	return successStyle.Render("✓ Wrote "+m.path) + "\n" +
		dimStyle.Render("Run: router validate "+m.path) + "\n"
}
