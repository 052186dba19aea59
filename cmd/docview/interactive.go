package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/edpaget/ycrdt-bridge/bridge"
	"github.com/edpaget/ycrdt-bridge/handle"
	"github.com/edpaget/ycrdt-bridge/host"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	nameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	kindStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	eventStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD700"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type containerInfo struct {
	name   string
	kind   string
	handle handle.Handle
}

// eventLog collects observer events; callbacks fire on whatever goroutine
// commits, so access is guarded.
type eventLog struct {
	mu    sync.Mutex
	lines []string
}

func (l *eventLog) OnEvent(payload []byte) error {
	var ev bridge.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return err
	}
	l.mu.Lock()
	l.lines = append(l.lines, summarize(ev))
	if len(l.lines) > 8 {
		l.lines = l.lines[len(l.lines)-8:]
	}
	l.mu.Unlock()
	return nil
}

func (l *eventLog) tail() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.lines))
	copy(out, l.lines)
	return out
}

func summarize(ev bridge.Event) string {
	var parts []string
	for _, s := range ev.Seq {
		if s.Retain > 0 {
			parts = append(parts, fmt.Sprintf("retain %d", s.Retain))
		}
		if s.Delete > 0 {
			parts = append(parts, fmt.Sprintf("delete %d", s.Delete))
		}
		if len(s.Insert) > 0 {
			parts = append(parts, fmt.Sprintf("insert %d", len(s.Insert)))
		}
	}
	for _, s := range ev.Text {
		if s.Retain > 0 {
			parts = append(parts, fmt.Sprintf("retain %d", s.Retain))
		}
		if s.Delete > 0 {
			parts = append(parts, fmt.Sprintf("delete %d", s.Delete))
		}
		if s.Insert != "" {
			parts = append(parts, fmt.Sprintf("insert %q", s.Insert))
		}
	}
	for _, e := range ev.Entries {
		parts = append(parts, fmt.Sprintf("%s %s", e.Action, e.Key))
	}
	return fmt.Sprintf("%s(%s): %s", ev.Container, ev.Kind, strings.Join(parts, ", "))
}

type modelState int

const (
	stateContainers modelState = iota
	stateNewContainer
	stateCommand
	stateShowResult
)

type interactiveModel struct {
	err        error
	b          *bridge.Bridge
	doc        handle.Handle
	events     *eventLog
	containers []containerInfo
	input      textinput.Model
	result     string
	clientID   uint64
	nextSub    uint64
	selected   int
	state      modelState
}

func newInteractiveModel(loadFile string, clientID uint64) (*interactiveModel, error) {
	b := bridge.New(host.NewLocalRuntime())

	doc, err := newDoc(b, clientID)
	if err != nil {
		b.Close()
		return nil, err
	}
	if loadFile != "" {
		update, err := os.ReadFile(loadFile)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("read update: %w", err)
		}
		if err := b.ApplyUpdate(doc, update); err != nil {
			b.Close()
			return nil, fmt.Errorf("apply update: %w", err)
		}
	}
	id, err := b.DocClientID(doc)
	if err != nil {
		b.Close()
		return nil, err
	}

	m := &interactiveModel{
		b:        b,
		doc:      doc,
		events:   &eventLog{},
		clientID: id,
		state:    stateContainers,
	}
	if err := m.refreshContainers(); err != nil {
		b.Close()
		return nil, err
	}
	return m, nil
}

// refreshContainers re-opens a handle per named container and subscribes the
// event log to any container not yet watched.
func (m *interactiveModel) refreshContainers() error {
	names, err := m.b.DocContainerNames(m.doc)
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(m.containers))
	for _, c := range m.containers {
		known[c.name] = true
	}

	for _, name := range names {
		if known[name] {
			continue
		}
		// Kind probing: the getter for the right kind succeeds, the rest
		// report a mismatch.
		if h, err := m.b.DocGetText(m.doc, name); err == nil {
			m.watch(containerInfo{name: name, kind: "text", handle: h}, func(id uint64) error {
				return m.b.TextObserve(h, id, m.events)
			})
			continue
		}
		if h, err := m.b.DocGetList(m.doc, name); err == nil {
			m.watch(containerInfo{name: name, kind: "list", handle: h}, func(id uint64) error {
				return m.b.ListObserve(h, id, m.events)
			})
			continue
		}
		if h, err := m.b.DocGetMap(m.doc, name); err == nil {
			m.watch(containerInfo{name: name, kind: "map", handle: h}, func(id uint64) error {
				return m.b.MapObserve(h, id, m.events)
			})
			continue
		}
		if h, err := m.b.DocGetXMLElement(m.doc, name); err == nil {
			m.watch(containerInfo{name: name, kind: "xml", handle: h}, func(id uint64) error {
				return m.b.XMLObserve(h, id, m.events)
			})
		}
	}
	return nil
}

func (m *interactiveModel) watch(c containerInfo, observe func(uint64) error) {
	m.nextSub++
	if err := observe(m.nextSub); err != nil {
		m.err = err
		return
	}
	m.containers = append(m.containers, c)
}

func (m *interactiveModel) Init() tea.Cmd {
	return nil
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.b.Close()
			return m, tea.Quit

		case "q":
			if m.state == stateContainers {
				m.b.Close()
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateContainers && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateContainers && m.selected < len(m.containers)-1 {
				m.selected++
			}

		case "n":
			if m.state == stateContainers {
				m.input = textinput.New()
				m.input.Placeholder = "name kind (text|list|map|xml)"
				m.input.Prompt = "new: "
				m.input.Width = 40
				m.input.Focus()
				m.state = stateNewContainer
				return m, nil
			}

		case "enter":
			switch m.state {
			case stateContainers:
				if len(m.containers) > 0 {
					c := m.containers[m.selected]
					m.input = textinput.New()
					m.input.Placeholder = commandHint(c.kind)
					m.input.Prompt = c.name + "> "
					m.input.Width = 60
					m.input.Focus()
					m.state = stateCommand
					return m, nil
				}

			case stateNewContainer:
				m.result, m.err = m.createContainer(m.input.Value())
				m.state = stateShowResult

			case stateCommand:
				c := m.containers[m.selected]
				m.result, m.err = m.runCommand(c, m.input.Value())
				m.state = stateShowResult

			case stateShowResult:
				m.state = stateContainers
				m.result = ""
				m.err = nil
			}

		case "esc":
			switch m.state {
			case stateNewContainer, stateCommand:
				m.state = stateContainers
			case stateShowResult:
				m.state = stateContainers
				m.result = ""
				m.err = nil
			}
		}
	}

	if m.state == stateCommand || m.state == stateNewContainer {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	return m, nil
}

func commandHint(kind string) string {
	switch kind {
	case "text":
		return "insert <index> <text> | delete <index> <n> | show"
	case "list":
		return "push <value>... | insert <index> <value> | remove <index> <n> | show"
	case "map":
		return "set <key> <value> | remove <key> | clear | show"
	case "xml":
		return "elem <index> <tag> | text <index> <s> | attr <key> <value> | show"
	default:
		return ""
	}
}

func (m *interactiveModel) createContainer(line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return "", fmt.Errorf("expected: <name> <kind>")
	}
	name, kind := fields[0], fields[1]

	var err error
	switch kind {
	case "text":
		_, err = m.b.DocGetText(m.doc, name)
	case "list":
		_, err = m.b.DocGetList(m.doc, name)
	case "map":
		_, err = m.b.DocGetMap(m.doc, name)
	case "xml":
		_, err = m.b.DocGetXMLElement(m.doc, name)
	default:
		return "", fmt.Errorf("unknown kind %q", kind)
	}
	if err != nil {
		return "", err
	}
	if err := m.refreshContainers(); err != nil {
		return "", err
	}
	return fmt.Sprintf("created %s (%s)", name, kind), nil
}

// runCommand executes one command against the selected container inside an
// implicit transaction.
func (m *interactiveModel) runCommand(c containerInfo, line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", fmt.Errorf("empty command")
	}
	cmd, args := fields[0], fields[1:]

	if cmd == "show" {
		return m.show(c)
	}

	switch c.kind {
	case "text":
		return m.runTextCommand(c, cmd, args, line)
	case "list":
		return m.runListCommand(c, cmd, args)
	case "map":
		return m.runMapCommand(c, cmd, args)
	case "xml":
		return m.runXMLCommand(c, cmd, args)
	}
	return "", fmt.Errorf("unknown container kind %q", c.kind)
}

func (m *interactiveModel) show(c containerInfo) (string, error) {
	switch c.kind {
	case "text":
		return m.b.TextString(c.handle, handle.Zero)
	case "list":
		return m.b.ListToJSON(c.handle, handle.Zero)
	case "map":
		return m.b.MapToJSON(c.handle, handle.Zero)
	case "xml":
		return m.b.XMLRender(c.handle, handle.Zero)
	}
	return "", fmt.Errorf("unknown container kind %q", c.kind)
}

func (m *interactiveModel) runTextCommand(c containerInfo, cmd string, args []string, line string) (string, error) {
	switch cmd {
	case "insert":
		if len(args) < 2 {
			return "", fmt.Errorf("insert <index> <text>")
		}
		index, err := strconv.Atoi(args[0])
		if err != nil {
			return "", err
		}
		// Everything after the index is the text, spaces included.
		rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), cmd))
		rest = strings.TrimSpace(strings.TrimPrefix(rest, args[0]))
		if err := m.b.TextInsert(c.handle, handle.Zero, index, rest, nil); err != nil {
			return "", err
		}
		return "ok", nil
	case "delete":
		if len(args) != 2 {
			return "", fmt.Errorf("delete <index> <n>")
		}
		index, err := strconv.Atoi(args[0])
		if err != nil {
			return "", err
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return "", err
		}
		if err := m.b.TextDelete(c.handle, handle.Zero, index, n); err != nil {
			return "", err
		}
		return "ok", nil
	}
	return "", fmt.Errorf("unknown text command %q", cmd)
}

func (m *interactiveModel) runListCommand(c containerInfo, cmd string, args []string) (string, error) {
	switch cmd {
	case "push":
		if len(args) == 0 {
			return "", fmt.Errorf("push <value>...")
		}
		values := make([]bridge.Value, len(args))
		for i, a := range args {
			values[i] = parseValue(a)
		}
		if err := m.b.ListPush(c.handle, handle.Zero, values...); err != nil {
			return "", err
		}
		return "ok", nil
	case "insert":
		if len(args) != 2 {
			return "", fmt.Errorf("insert <index> <value>")
		}
		index, err := strconv.Atoi(args[0])
		if err != nil {
			return "", err
		}
		if err := m.b.ListInsert(c.handle, handle.Zero, index, parseValue(args[1])); err != nil {
			return "", err
		}
		return "ok", nil
	case "remove":
		if len(args) != 2 {
			return "", fmt.Errorf("remove <index> <n>")
		}
		index, err := strconv.Atoi(args[0])
		if err != nil {
			return "", err
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return "", err
		}
		if err := m.b.ListRemove(c.handle, handle.Zero, index, n); err != nil {
			return "", err
		}
		return "ok", nil
	}
	return "", fmt.Errorf("unknown list command %q", cmd)
}

func (m *interactiveModel) runMapCommand(c containerInfo, cmd string, args []string) (string, error) {
	switch cmd {
	case "set":
		if len(args) != 2 {
			return "", fmt.Errorf("set <key> <value>")
		}
		if err := m.b.MapSet(c.handle, handle.Zero, args[0], parseValue(args[1])); err != nil {
			return "", err
		}
		return "ok", nil
	case "remove":
		if len(args) != 1 {
			return "", fmt.Errorf("remove <key>")
		}
		if err := m.b.MapRemove(c.handle, handle.Zero, args[0]); err != nil {
			return "", err
		}
		return "ok", nil
	case "clear":
		if err := m.b.MapClear(c.handle, handle.Zero); err != nil {
			return "", err
		}
		return "ok", nil
	}
	return "", fmt.Errorf("unknown map command %q", cmd)
}

func (m *interactiveModel) runXMLCommand(c containerInfo, cmd string, args []string) (string, error) {
	switch cmd {
	case "elem":
		if len(args) != 2 {
			return "", fmt.Errorf("elem <index> <tag>")
		}
		index, err := strconv.Atoi(args[0])
		if err != nil {
			return "", err
		}
		if err := m.b.XMLInsertElement(c.handle, handle.Zero, nil, index, args[1]); err != nil {
			return "", err
		}
		return "ok", nil
	case "text":
		if len(args) < 2 {
			return "", fmt.Errorf("text <index> <s>")
		}
		index, err := strconv.Atoi(args[0])
		if err != nil {
			return "", err
		}
		if err := m.b.XMLInsertText(c.handle, handle.Zero, nil, index, strings.Join(args[1:], " ")); err != nil {
			return "", err
		}
		return "ok", nil
	case "attr":
		if len(args) != 2 {
			return "", fmt.Errorf("attr <key> <value>")
		}
		if err := m.b.XMLSetAttr(c.handle, handle.Zero, nil, args[0], parseValue(args[1])); err != nil {
			return "", err
		}
		return "ok", nil
	}
	return "", fmt.Errorf("unknown xml command %q", cmd)
}

// parseValue guesses the most specific value shape for a token.
func parseValue(s string) bridge.Value {
	if s == "true" || s == "false" {
		return bridge.BoolValue(s == "true")
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return bridge.IntValue(i)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return bridge.FloatValue(f)
	}
	return bridge.StringValue(s)
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Doc Viewer"))
	b.WriteString(fmt.Sprintf(" client %d\n\n", m.clientID))

	switch m.state {
	case stateContainers:
		if len(m.containers) == 0 {
			b.WriteString("No containers yet.\n")
		} else {
			b.WriteString("Containers:\n\n")
			for i, c := range m.containers {
				line := nameStyle.Render(c.name) + " " + kindStyle.Render("("+c.kind+")")
				if i == m.selected {
					b.WriteString(selectedStyle.Render("> " + c.name + " (" + c.kind + ")"))
				} else {
					b.WriteString("  " + line)
				}
				b.WriteString("\n")
			}
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter command • n new • q quit"))

	case stateNewContainer:
		b.WriteString("Create container:\n\n")
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter create • esc back"))

	case stateCommand:
		c := m.containers[m.selected]
		b.WriteString(fmt.Sprintf("Command for %s:\n\n", nameStyle.Render(c.name)))
		b.WriteString(m.input.View())
		b.WriteString("\n")
		b.WriteString(kindStyle.Render(commandHint(c.kind)))
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter run • esc back"))

	case stateShowResult:
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • esc back"))
	}

	if lines := m.events.tail(); len(lines) > 0 {
		b.WriteString("\n\nEvents:\n")
		for _, line := range lines {
			b.WriteString(eventStyle.Render("  " + line))
			b.WriteString("\n")
		}
	}

	return b.String()
}

func runInteractive(loadFile string, clientID uint64) error {
	m, err := newInteractiveModel(loadFile, clientID)
	if err != nil {
		return err
	}
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err = p.Run()
	return err
}
