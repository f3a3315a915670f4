package main

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"exploreedit/internal/editor"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00D9FF")).
			Background(lipgloss.Color("#1a1a2e")).
			Padding(0, 2)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666680")).
			Italic(true).
			PaddingLeft(2)

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3d3d5c"))

	cursorStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#00D9FF")).
			Foreground(lipgloss.Color("#1a1a2e"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4a4a6a")).
			PaddingLeft(1)

	altSelectedStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FFFFFF")).
				Background(lipgloss.Color("#00D9FF")).
				Padding(0, 1)

	altStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666680")).
			Padding(0, 1)
)

// heatColor maps a <=0 logit-minus-max value to a foreground colour: 0
// (argmax) is brightest cyan, increasingly negative values fade toward
// grey, the same "confidence heat" idea the teacher's stats line
// summarises numerically instead of visually.
func heatColor(logitMinusMax float32) lipgloss.Color {
	v := logitMinusMax
	if v > 0 {
		v = 0
	}
	if v < -8 {
		v = -8
	}
	t := 1 + v/8 // 1 at argmax, 0 at <= -8
	g := int(0x66 + t*(0xff-0x66))
	return lipgloss.Color(fmt.Sprintf("#4E%02XC4", g))
}

const tickInterval = 20 * time.Millisecond

type tickMsg struct{}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(time.Time) tea.Msg { return tickMsg{} })
}

type model struct {
	ed  *editor.Adapter
	ctx context.Context

	buffer string
	cursor int

	viewport viewport.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer

	width, height int
	ready         bool
	showHelp      bool
	status        string
}

func newModel(ctx context.Context, ed *editor.Adapter) *model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#4ECDC4"))

	renderer, _ := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(80))

	return &model{ed: ed, ctx: ctx, spinner: s, renderer: renderer}
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(tick(), m.spinner.Tick)
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		if !m.ready {
			m.viewport = viewport.New(msg.Width-4, msg.Height-6)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width - 4
			m.viewport.Height = msg.Height - 6
		}
		m.updateViewport()
		return m, nil

	case tickMsg:
		for m.ed.Tick(m.ctx) {
		}
		m.updateViewport()
		return m, tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		switch msg.Type {
		case tea.KeyEsc, tea.KeyCtrlH:
			m.showHelp = false
		}
		m.updateViewport()
		return m, nil
	}

	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		return m, tea.Quit

	case tea.KeyCtrlH:
		m.showHelp = true
		return m, nil

	case tea.KeyTab:
		m.ed.RequestAltsAt(m.ctx, m.cursor)

	case tea.KeyCtrlN:
		m.ed.AltNext(m.ctx, m.cursor)

	case tea.KeyCtrlP:
		m.ed.AltPrev(m.ctx, m.cursor)

	case tea.KeyEnter:
		m.cursor = m.ed.AltCommit(m.ctx, m.cursor)

	case tea.KeyCtrlJ:
		if err := m.ed.Insert(m.ctx, m.cursor, "\n"); err == nil {
			m.cursor++
		}

	case tea.KeyBackspace:
		if m.cursor > 0 {
			prev := m.cursor - 1
			for prev > 0 && isContinuationByte(m.buffer, prev) {
				prev--
			}
			if err := m.ed.Erase(m.ctx, prev, m.cursor); err == nil {
				m.cursor = prev
			}
		}

	case tea.KeyLeft:
		m.cursor = m.ed.AltBack(m.cursor)

	case tea.KeyRight:
		if m.cursor < len(m.buffer) {
			_, size := utf8.DecodeRuneInString(m.buffer[m.cursor:])
			m.cursor += size
		}

	case tea.KeyRunes, tea.KeySpace:
		text := string(msg.Runes)
		if msg.Type == tea.KeySpace {
			text = " "
		}
		if err := m.ed.Insert(m.ctx, m.cursor, text); err == nil {
			m.cursor += len(text)
		}
	}

	m.updateViewport()
	return m, nil
}

func isContinuationByte(s string, i int) bool {
	return i > 0 && i < len(s) && s[i]&0xC0 == 0x80
}

func (m *model) updateViewport() {
	m.buffer = m.ed.Tree().Render(m.ed.Tree().Root, 0, false)

	var b strings.Builder
	b.WriteString(m.buffer[:m.cursor])
	b.WriteString(cursorStyle.Render("|"))

	ghost := m.ed.GhostText(m.cursor)
	for _, r := range ghost {
		b.WriteString(lipgloss.NewStyle().Foreground(heatColor(0)).Render(string(r)))
	}
	b.WriteString(m.buffer[m.cursor:])

	if alts := m.ed.Alternatives(m.cursor); len(alts) > 1 {
		b.WriteString("\n\n")
		for _, a := range alts {
			label := a.Text
			if label == "" {
				label = "∅"
			}
			if a.Selected {
				b.WriteString(altSelectedStyle.Render(label))
			} else {
				b.WriteString(lipgloss.NewStyle().Foreground(heatColor(a.LogitMinusMax)).Render(altStyle.Render(label)))
			}
			b.WriteString(" ")
		}
	}

	if m.ed.Idle() {
		m.status = "idle"
	} else {
		m.status = m.spinner.View() + " exploring"
	}

	if m.ready {
		m.viewport.SetContent(b.String())
	}
}

func (m *model) View() string {
	if !m.ready {
		return "\n  starting exploreedit..."
	}

	if m.showHelp {
		text, _ := m.renderer.Render(helpText)
		return borderStyle.Render(text) + "\n" + helpStyle.Render("Esc/Ctrl+H to close")
	}

	header := lipgloss.JoinHorizontal(lipgloss.Center,
		titleStyle.Render(" exploreedit "),
		subtitleStyle.Render(m.status),
	)
	body := borderStyle.Render(m.viewport.View())
	footer := helpStyle.Render("Tab: branch | Ctrl+N/P: cycle | Enter: accept | Ctrl+J: newline | Ctrl+H: help | Esc: quit")

	return header + "\n" + body + "\n" + footer
}

const helpText = `
### exploreedit

Typing inserts text and kicks off background scoring of the path you're
on. Use these keys to explore the model's lateral alternatives:

- **Tab** — branch at the cursor: guarantee a runner-up alternative and
  keep the ghost text extending
- **Ctrl+N / Ctrl+P** — cycle to the next/previous alternative
- **Enter** — accept the selected alternative into the document
- **Ctrl+J** — insert a literal newline
- **Left/Right** — move the cursor (skips continuation-byte internals)
- **Esc** — quit
`
