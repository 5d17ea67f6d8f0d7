package console

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fsnotify/fsnotify"
)

var (
	pagerTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	pagerInfoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))
)

// RenderFunc produces the pager content; it is re-run on file changes in
// follow mode.
type RenderFunc func(width int) (string, error)

// Page shows content in a scrollable, searchable full-screen view.
func Page(title string, render RenderFunc) error {
	m := &pagerModel{title: title, render: render}
	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion()).Run()
	return err
}

// Follow is Page that re-renders whenever the file at path is written, for
// watching a session recording while turns run.
func Follow(title, path string, render RenderFunc) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	m := &pagerModel{title: title, render: render, watcher: watcher}
	_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion()).Run()
	return err
}

type fileChangedMsg struct{}

type pagerModel struct {
	viewport viewport.Model
	title    string
	render   RenderFunc
	watcher  *fsnotify.Watcher
	content  string
	ready    bool
	updated  time.Time

	searching bool
	input     textinput.Model
	query     string
	matches   []int
	current   int
}

func (m *pagerModel) Init() tea.Cmd {
	if m.watcher != nil {
		return m.waitForChange()
	}
	return nil
}

func (m *pagerModel) waitForChange() tea.Cmd {
	return func() tea.Msg {
		for {
			select {
			case ev, ok := <-m.watcher.Events:
				if !ok {
					return nil
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					// let the writer finish the line
					time.Sleep(100 * time.Millisecond)
					return fileChangedMsg{}
				}
			case _, ok := <-m.watcher.Errors:
				if !ok {
					return nil
				}
			}
		}
	}
}

func (m *pagerModel) refresh() {
	content, err := m.render(m.viewport.Width)
	if err != nil {
		content = fmt.Sprintf("render failed: %v", err)
	}
	m.content = wrapContent(content, m.viewport.Width)
	m.viewport.SetContent(m.content)
	m.updated = time.Now()
	if m.query != "" {
		m.search()
	}
}

func (m *pagerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.searching {
		if key, ok := msg.(tea.KeyMsg); ok {
			switch key.String() {
			case "enter":
				m.query = m.input.Value()
				m.searching = false
				m.search()
				m.jump(0)
				return m, nil
			case "esc", "ctrl+c":
				m.searching = false
				return m, nil
			}
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case fileChangedMsg:
		atBottom := m.viewport.AtBottom()
		m.refresh()
		if atBottom {
			m.viewport.GotoBottom()
		}
		cmds = append(cmds, m.waitForChange())

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "esc":
			if m.query == "" {
				return m, tea.Quit
			}
			m.query, m.matches = "", nil
		case "g":
			m.viewport.GotoTop()
		case "G", "f":
			m.viewport.GotoBottom()
		case "/":
			m.searching = true
			m.input = textinput.New()
			m.input.Placeholder = "Search..."
			m.input.CharLimit = 100
			m.input.Width = 40
			m.input.SetValue(m.query)
			m.input.Focus()
			return m, textinput.Blink
		case "n":
			if len(m.matches) > 0 {
				m.jump((m.current + 1) % len(m.matches))
			}
		case "N":
			if len(m.matches) > 0 {
				m.jump((m.current - 1 + len(m.matches)) % len(m.matches))
			}
		}

	case tea.WindowSizeMsg:
		height := msg.Height - 2 // header and footer
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.viewport.YPosition = 1
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
		m.refresh()
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *pagerModel) search() {
	m.matches, m.current = nil, 0
	if m.query == "" {
		return
	}
	q := strings.ToLower(m.query)
	for i, line := range strings.Split(m.content, "\n") {
		if strings.Contains(strings.ToLower(line), q) {
			m.matches = append(m.matches, i)
		}
	}
}

// jump centers match i on screen.
func (m *pagerModel) jump(i int) {
	if i < 0 || i >= len(m.matches) {
		return
	}
	m.current = i
	offset := m.matches[i] - m.viewport.Height/2
	if limit := m.viewport.TotalLineCount() - m.viewport.Height; offset > limit {
		offset = limit
	}
	if offset < 0 {
		offset = 0
	}
	m.viewport.SetYOffset(offset)
}

func (m *pagerModel) View() string {
	if !m.ready {
		return "\n  Loading..."
	}

	title := pagerTitleStyle.Render(m.title)
	rule := strings.Repeat("─", max(0, m.viewport.Width-lipgloss.Width(title)))
	header := lipgloss.JoinHorizontal(lipgloss.Center, title, pagerInfoStyle.Render(rule))

	if m.searching {
		return header + "\n" + m.viewport.View() + "\n" + warnStyle.Render("/") + m.input.View()
	}

	var help string
	switch {
	case m.query != "" && len(m.matches) == 0:
		help = " pattern not found │ /: search "
	case len(m.matches) > 0:
		help = fmt.Sprintf(" [%d/%d] │ n/N: next/prev │ esc: clear ", m.current+1, len(m.matches))
	case m.watcher != nil:
		help = fmt.Sprintf(" ● LIVE %s │ q: quit │ /: search │ f: follow ", m.updated.Format("15:04:05"))
	default:
		help = " q: quit │ /: search │ g/G: top/bottom "
	}
	info := fmt.Sprintf(" %3.0f%% ", m.viewport.ScrollPercent()*100)
	fill := strings.Repeat("─", max(0, m.viewport.Width-lipgloss.Width(help)-lipgloss.Width(info)))
	footer := pagerInfoStyle.Render(help + fill + info)

	return header + "\n" + m.viewport.View() + "\n" + footer
}
