package console

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/lucasb-eyer/go-colorful"

	"upsidedown/pkg/channel"
	"upsidedown/pkg/display"
	"upsidedown/pkg/normalize"
)

// wallRows is the letter layout of the wall, top to bottom.
var wallRows = []string{"ABCDEFGH", "IJKLMNOP", "RSTUVWXYZ"}

type entry struct {
	role    string
	content string
}

type replyMsg struct {
	reply Reply
	err   error
}

type frameMsg display.Frame

type bootTickMsg struct{}

type model struct {
	ctx    context.Context
	sendFn SendFunc
	info   Info

	theme     theme
	spinner   spinner.Model
	input     textinput.Model
	viewport  viewport.Model
	entries   []entry
	frame     display.Frame
	hasFrame  bool
	width     int
	height    int
	isReady   bool
	isSending bool
	lastErr   string
	booting   bool
	bootStep  int
	followLog bool
}

func newModel(ctx context.Context, sendFn SendFunc, info Info) *model {
	spin := spinner.New()
	spin.Spinner = spinner.Points
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	in := textinput.New()
	in.Prompt = ""
	in.Placeholder = "Type a message for the wall..."
	in.Focus()
	in.CharLimit = 280

	vp := viewport.New(80, 10)

	return &model{
		ctx:       ctx,
		sendFn:    sendFn,
		info:      info,
		theme:     defaultTheme(),
		spinner:   spin,
		input:     in,
		viewport:  vp,
		width:     100,
		height:    30,
		booting:   true,
		followLog: true,
	}
}

func (m *model) Init() tea.Cmd {
	return bootTickCmd()
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		m.resizeComponents()
		m.refreshViewport(false)
		m.isReady = true
		return m, nil
	case frameMsg:
		m.frame = display.Frame(typed)
		m.hasFrame = true
		return m, nil
	case bootTickMsg:
		if !m.booting {
			return m, nil
		}

		m.bootStep++
		if m.bootStep < len(bootScriptLines())+1 {
			return m, bootTickCmd()
		}

		m.booting = false
		return m, textinput.Blink
	case tea.MouseMsg:
		if m.booting {
			return m, nil
		}
		m.handleViewportMouse(typed)
		return m, nil
	case tea.KeyMsg:
		switch typed.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		}

		if m.booting {
			return m, nil
		}

		if handled := m.handleViewportKey(typed); handled {
			return m, nil
		}

		if typed.String() == "enter" {
			if m.isSending {
				return m, nil
			}

			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}
			if isExitCommand(text) {
				return m, tea.Quit
			}

			m.lastErr = ""
			m.entries = append(m.entries, entry{role: "sent", content: text})
			m.input.SetValue("")
			m.isSending = true
			m.followLog = true
			m.refreshViewport(true)
			return m, tea.Batch(m.spinner.Tick, sendCmd(m.ctx, m.sendFn, text))
		}
	}

	m.input, cmd = m.input.Update(msg)

	switch typed := msg.(type) {
	case spinner.TickMsg:
		if !m.isSending {
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(typed)
		return m, cmd
	case replyMsg:
		m.isSending = false
		switch {
		case errors.Is(typed.err, channel.ErrNoReply):
			m.entries = append(m.entries, entry{role: "silent", content: "no reply"})
		case typed.err != nil:
			m.lastErr = typed.err.Error()
			m.entries = append(m.entries, entry{role: "error", content: typed.err.Error()})
		case strings.TrimSpace(typed.reply.Content) == "":
			m.entries = append(m.entries, entry{role: "silent", content: "ignored, nothing to display"})
		case !typed.reply.Delivered:
			m.entries = append(m.entries, entry{role: "silent", content: "processed, reply withheld while debug output is off"})
		default:
			m.entries = append(m.entries, entry{role: "reply", content: typed.reply.Content})
		}
		m.refreshViewport(false)
	}

	return m, cmd
}

func (m *model) View() string {
	if !m.isReady {
		m.resizeComponents()
		m.refreshViewport(false)
	}
	if m.booting {
		return m.bootView()
	}

	header := m.theme.header.Width(m.width - 2).Render("🎄 Upside Down Wall")
	role := "visitor"
	if m.info.Privileged {
		role = "operator"
	}
	meta := m.theme.headerMeta.Render(fmt.Sprintf(
		"sender:%s · role:%s · sent:%d · brightness:%d",
		displayOrNA(m.info.SenderID),
		role,
		sentCount(m.entries),
		m.frame.Brightness,
	))
	line := m.theme.divider.Width(m.width - 2).Render(strings.Repeat("═", max(8, m.width-2)))

	status := m.theme.status.Render("💡 Enter send  ·  #password text  ·  PgUp/PgDn scroll  ·  🛑 Ctrl+C/Esc quit")
	if m.isSending {
		status = m.theme.statusBusy.Render(fmt.Sprintf("%s ⚡ waiting for the wall...", m.spinner.View()))
	}
	if m.lastErr != "" {
		status = m.theme.statusErr.Render("🚨 last message failed - try again")
	}

	parts := []string{
		header,
		meta,
		line,
		m.theme.wall.Width(m.width - 2).Render(m.renderWall()),
		m.theme.viewport.Width(m.width - 2).Render(m.viewport.View()),
		status,
		m.theme.inputLabel.Render("✍ You") + " " + m.theme.hint.Render("(type /exit, quit, or :q)"),
		m.theme.input.Width(m.width - 2).Render(m.input.View()),
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// renderWall draws the mirrored wall. Lit lamps take their color dimmed by the frame
// brightness; dark lamps are grey.
func (m *model) renderWall() string {
	if !m.hasFrame {
		return m.theme.hint.Render("wall mirror unavailable")
	}

	level := float64(m.frame.Brightness) / 255
	rows := make([]string, 0, len(wallRows))
	for _, row := range wallRows {
		cells := make([]string, 0, len(row))
		for _, letter := range row {
			idx := normalize.Index(letter)
			style := m.theme.lampOff
			if idx >= 0 && m.frame.Lit[idx] {
				shade := m.frame.Lamps[idx].BlendRgb(colorful.Color{}, 1-level).Clamped()
				style = m.theme.lampOn.Foreground(lipgloss.Color(shade.Hex()))
			}
			cells = append(cells, style.Render(string(letter)))
		}
		rows = append(rows, strings.Join(cells, " "))
	}
	return strings.Join(rows, "\n")
}

func (m *model) resizeComponents() {
	w := m.width - 6
	if w < 40 {
		w = 40
	}
	h := m.height - 16
	if h < 6 {
		h = 6
	}

	m.viewport.Width = w
	m.viewport.Height = h
	m.input.Width = w - 2
}

func (m *model) refreshViewport(forceBottom bool) {
	previousOffset := m.viewport.YOffset
	var sections []string
	for _, item := range m.entries {
		switch item.role {
		case "sent":
			sections = append(sections, m.renderCard(
				m.theme.sentTitle.Render("▛▚ [ YOU ] ▞▜"),
				m.theme.sentBox.Width(m.viewport.Width).Render(strings.TrimSpace(item.content)),
			))
		case "reply":
			sections = append(sections, m.renderCard(
				m.theme.replyTitle.Render("▛▚ [ WALL ] ▞▜"),
				m.theme.replyBox.Width(m.viewport.Width).Render(strings.TrimSpace(item.content)),
			))
		case "silent":
			sections = append(sections, m.theme.hint.Render("   · "+item.content))
		case "error":
			sections = append(sections, m.renderCard(
				m.theme.errorTitle.Render("▛▚ [ERROR] ▞▜"),
				m.theme.errorBox.Width(m.viewport.Width).Render(strings.TrimSpace(item.content)),
			))
		}
	}

	m.viewport.SetContent(strings.Join(sections, "\n\n"))
	if m.followLog || forceBottom {
		m.viewport.GotoBottom()
		m.followLog = true
		return
	}

	maxOffset := m.viewport.TotalLineCount() - m.viewport.Height
	if maxOffset < 0 {
		maxOffset = 0
	}
	if previousOffset > maxOffset {
		previousOffset = maxOffset
	}
	m.viewport.SetYOffset(previousOffset)
}

func (m *model) renderCard(title string, body string) string {
	return lipgloss.JoinVertical(lipgloss.Left, title, body)
}

func (m *model) bootView() string {
	header := m.theme.header.Width(m.width - 2).Render("🎄 Upside Down Wall")
	meta := m.theme.headerMeta.Render("boot sequence")
	line := m.theme.divider.Width(m.width - 2).Render(strings.Repeat("═", max(8, m.width-2)))

	script := bootScriptLines()
	count := min(m.bootStep, len(script))
	visible := make([]string, 0, count+1)
	for i := 0; i < count; i++ {
		visible = append(visible, m.theme.bootLine.Render(script[i]))
	}
	if m.bootStep > len(script) {
		visible = append(visible, m.theme.bootDone.Render("✅ wall online"))
	}

	body := m.theme.viewport.Width(m.width - 2).Render(strings.Join(visible, "\n"))
	return lipgloss.JoinVertical(lipgloss.Left, header, meta, line, body)
}

func bootTickCmd() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(_ time.Time) tea.Msg {
		return bootTickMsg{}
	})
}

func (m *model) handleViewportKey(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "pgup", "ctrl+b", "alt+up", "ctrl+up":
		m.viewport.PageUp()
		m.followLog = false
		return true
	case "pgdown", "ctrl+f", "alt+down", "ctrl+down":
		m.viewport.PageDown()
		if m.viewport.AtBottom() {
			m.followLog = true
		}
		return true
	case "home":
		m.viewport.GotoTop()
		m.followLog = false
		return true
	case "end":
		m.viewport.GotoBottom()
		m.followLog = true
		return true
	default:
		return false
	}
}

// handleViewportMouse scrolls the log on wheel events. Scrolling up stops following new
// entries until the bottom is reached again.
func (m *model) handleViewportMouse(msg tea.MouseMsg) bool {
	if msg.Action != tea.MouseActionPress {
		return false
	}

	switch msg.Button {
	case tea.MouseButtonWheelUp:
		m.viewport.ScrollUp(3)
		m.followLog = false
		return true
	case tea.MouseButtonWheelDown:
		m.viewport.ScrollDown(3)
		if m.viewport.AtBottom() {
			m.followLog = true
		}
		return true
	default:
		return false
	}
}

func bootScriptLines() []string {
	return []string{
		"[BOOT] stringing the lights",
		"[BOOT] painting the alphabet",
		"[BOOT] opening the gate",
	}
}

func sendCmd(ctx context.Context, sendFn SendFunc, text string) tea.Cmd {
	return func() tea.Msg {
		reply, err := sendFn(ctx, text)
		return replyMsg{reply: reply, err: err}
	}
}

func displayOrNA(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "n/a"
	}

	return trimmed
}

func sentCount(entries []entry) int {
	count := 0
	for _, item := range entries {
		if item.role == "sent" {
			count++
		}
	}

	return count
}

func isExitCommand(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "/exit", "quit", ":q":
		return true
	default:
		return false
	}
}
