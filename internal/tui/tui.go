// Package tui renders the todo list and turns key presses into Synchronizer
// operations. It holds no list data of its own.
package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/idilsaglam/tada/internal/model"
	"github.com/idilsaglam/tada/internal/syncer"
	"github.com/idilsaglam/tada/internal/ui"
)

// Static text.
const (
	HeaderText     = "Todo List App"
	CardTitle      = "My Todo List"
	FooterText     = "© Todo List App. All rights reserved."
	EmptyText      = "No todos yet. Add one above!"
	LoadingText    = "Loading todos..."
	InputTitle     = "Add a todo"
	FatalTitle     = "Cannot start"
	addPlaceholder = "Enter a new todo"
)

type focus int

const (
	focusInput focus = iota
	focusList
)

type keyMap struct {
	Submit    key.Binding
	Cancel    key.Binding
	Switch    key.Binding
	Add       key.Binding
	Edit      key.Binding
	Delete    key.Binding
	Up        key.Binding
	Down      key.Binding
	Quit      key.Binding
	ForceQuit key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Submit:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "save")),
		Cancel:    key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
		Switch:    key.NewBinding(key.WithKeys("tab", "shift+tab"), key.WithHelp("tab", "switch focus")),
		Add:       key.NewBinding(key.WithKeys("a", "i"), key.WithHelp("a", "add")),
		Edit:      key.NewBinding(key.WithKeys("e", "enter"), key.WithHelp("e", "edit")),
		Delete:    key.NewBinding(key.WithKeys("d", "x", "delete"), key.WithHelp("d", "delete")),
		Up:        key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:      key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Quit:      key.NewBinding(key.WithKeys("q"), key.WithHelp("q", "quit")),
		ForceQuit: key.NewBinding(key.WithKeys("ctrl+c")),
	}
}

// listItem adapts model.Item to bubbles/list.Item.
type listItem struct {
	item model.Item
}

func (i listItem) FilterValue() string { return i.item.Text }

// itemDelegate renders one line per item: the text, or the inline editor
// when the item is being edited, followed by the edit/delete affordances.
type itemDelegate struct {
	theme     ui.Theme
	editingID string
	editor    string
}

func (d itemDelegate) Height() int                               { return 1 }
func (d itemDelegate) Spacing() int                              { return 0 }
func (d itemDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }
func (d itemDelegate) Render(w io.Writer, m list.Model, index int, li list.Item) {
	it, ok := li.(listItem)
	if !ok {
		return
	}
	prefix := "  "
	if index == m.Index() {
		prefix = d.theme.Selected.Render(d.theme.SymCursor) + " "
	}
	controls := d.theme.Muted.Render(fmt.Sprintf("  %s %s", d.theme.SymEdit, d.theme.SymDelete))
	if it.item.ID == d.editingID {
		fmt.Fprint(w, prefix+d.editor+controls)
		return
	}
	width := m.Width() - lipgloss.Width(prefix) - lipgloss.Width(controls)
	fmt.Fprint(w, prefix+ui.Truncate(it.item.Text, width)+controls)
}

// Model is the bubbletea model for the todo view.
type Model struct {
	sync    *syncer.Synchronizer
	theme   ui.Theme
	keys    keyMap
	input   textinput.Model
	editor  textinput.Model
	list    list.Model
	spinner spinner.Model
	help    help.Model

	focus  focus
	shown  int // snapshot revision currently in the list
	width  int
	height int
}

// New builds the view over s. The caller owns s and must Close it once the
// program exits.
func New(s *syncer.Synchronizer) Model {
	theme := ui.Current()

	in := textinput.New()
	in.Prompt = "> "
	in.Placeholder = addPlaceholder
	in.CharLimit = 200

	ed := textinput.New()
	ed.Prompt = ""
	ed.Placeholder = "Edit todo..."
	ed.CharLimit = 200

	l := list.New(nil, itemDelegate{theme: theme}, 0, 0)
	l.Title = CardTitle
	l.Styles.Title = theme.Title
	l.Styles.PaginationStyle = theme.Help
	l.SetShowHelp(false)
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(false)
	l.SetStatusBarItemName("todo", "todos")
	l.KeyMap.Quit.SetEnabled(false)
	l.KeyMap.ForceQuit.SetEnabled(false)

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))

	m := Model{
		sync:    s,
		theme:   theme,
		keys:    defaultKeys(),
		input:   in,
		editor:  ed,
		list:    l,
		spinner: sp,
		help:    help.New(),
		focus:   focusInput,
		shown:   -1,
		width:   80,
		height:  24,
	}
	m.resize()
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.sync.Init(), m.spinner.Tick, textinput.Blink)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		return m, nil

	case tea.BlurMsg:
		m.sync.BlurEdit()
		cmd = m.refresh()
		return m, cmd

	case spinner.TickMsg:
		if !m.sync.Loading() {
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	if cmd = m.sync.Update(msg); cmd != nil {
		rc := m.refresh()
		return m, tea.Batch(cmd, rc)
	}
	// Cursor blinks and anything else the inputs understand.
	var inCmd, edCmd tea.Cmd
	m.input, inCmd = m.input.Update(msg)
	m.editor, edCmd = m.editor.Update(msg)
	rc := m.refresh()
	return m, tea.Batch(rc, inCmd, edCmd)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.ForceQuit) {
		return m, tea.Quit
	}
	if m.sync.Phase() == syncer.PhaseFatal {
		if key.Matches(msg, m.keys.Quit, m.keys.Submit) {
			return m, tea.Quit
		}
		return m, nil
	}
	if id := m.sync.EditingID(); id != "" {
		return m.handleEditKey(id, msg)
	}
	if m.focus == focusInput {
		return m.handleInputKey(msg)
	}
	return m.handleListKey(msg)
}

// Edit mode. Esc is the explicit cancel and always exits; moving focus away
// is a blur, which yields to a save still in flight.
func (m Model) handleEditKey(id string, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Submit):
		m.sync.SetEditText(m.editor.Value())
		cmd := m.sync.SaveEdit(id)
		rc := m.refresh()
		return m, tea.Batch(cmd, rc)
	case key.Matches(msg, m.keys.Cancel):
		m.sync.CancelEdit()
		rc := m.refresh()
		return m, rc
	case key.Matches(msg, m.keys.Switch):
		m.sync.BlurEdit()
		if m.sync.EditingID() == "" {
			m.focus = focusInput
		}
		rc := m.refresh()
		return m, rc
	}
	var cmd tea.Cmd
	m.editor, cmd = m.editor.Update(msg)
	m.sync.SetEditText(m.editor.Value())
	return m, cmd
}

func (m Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Submit):
		cmd := m.sync.Add(m.input.Value())
		rc := m.refresh()
		return m, tea.Batch(cmd, rc)
	case key.Matches(msg, m.keys.Switch), key.Matches(msg, m.keys.Cancel):
		m.focus = focusList
		rc := m.refresh()
		return m, rc
	}
	if m.sync.Loading() {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.sync.SetNewText(m.input.Value())
	return m, cmd
}

func (m Model) handleListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Switch), key.Matches(msg, m.keys.Add):
		m.focus = focusInput
		rc := m.refresh()
		return m, rc
	case key.Matches(msg, m.keys.Edit):
		if id, ok := m.selectedID(); ok {
			m.sync.StartEdit(id)
			m.editor.SetValue(m.sync.EditText())
			m.editor.CursorEnd()
		}
		rc := m.refresh()
		return m, rc
	case key.Matches(msg, m.keys.Delete):
		if id, ok := m.selectedID(); ok {
			return m, m.sync.Delete(id)
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) selectedID() (string, bool) {
	li, ok := m.list.SelectedItem().(listItem)
	if !ok {
		return "", false
	}
	return li.item.ID, true
}

// refresh pulls Synchronizer state into the widgets: the list after a new
// snapshot, the input buffers, and which input has focus.
func (m *Model) refresh() tea.Cmd {
	if rev := m.sync.Revision(); rev != m.shown {
		items := m.sync.Items()
		li := make([]list.Item, 0, len(items))
		for _, it := range items {
			li = append(li, listItem{item: it})
		}
		m.list.SetItems(li)
		if n := len(li); n > 0 && m.list.Index() >= n {
			m.list.Select(n - 1)
		}
		m.shown = rev
	}

	if m.input.Value() != m.sync.NewText() {
		m.input.SetValue(m.sync.NewText())
	}

	var cmd tea.Cmd
	editing := m.sync.EditingID() != ""
	switch {
	case editing:
		m.input.Blur()
		if !m.editor.Focused() {
			cmd = m.editor.Focus()
		}
	case m.focus == focusInput && !m.sync.Loading():
		m.editor.Blur()
		if !m.input.Focused() {
			cmd = m.input.Focus()
		}
	default:
		m.editor.Blur()
		m.input.Blur()
	}
	return cmd
}

func (m *Model) resize() {
	w := m.width - 4
	if w < 20 {
		w = 20
	}
	h := m.height - 14
	if h < 4 {
		h = 4
	}
	m.list.SetSize(w, h)
	m.input.Width = w - 4
	m.editor.Width = w - 12
	m.help.Width = w
}

// View implements tea.Model.
func (m Model) View() string {
	t := m.theme
	header := t.Title.Render(HeaderText)
	footer := t.Muted.Render(FooterText)

	if m.sync.Phase() == syncer.PhaseFatal {
		body := strings.Join([]string{
			t.Error.Render(t.SymFail + " " + FatalTitle),
			"",
			m.sync.FatalMessage(),
			"",
			t.Help.Render("press q to quit"),
		}, "\n")
		return ui.PanelString(header + "\n\n" + body + "\n\n" + footer)
	}

	var b strings.Builder
	b.WriteString(header + "\n\n")
	if msg := m.sync.Err(); msg != "" {
		b.WriteString(t.Error.Render(t.SymFail+" "+msg) + "\n\n")
	}

	inputTitle := InputTitle
	if m.sync.Loading() {
		inputTitle += " " + t.Muted.Render("(disabled while loading)")
	}
	box := lipgloss.NewStyle().Border(t.Border).BorderForeground(t.BorderColor).Padding(0, 1)
	b.WriteString(box.Render(inputTitle+"\n"+m.input.View()) + "\n\n")

	switch {
	case m.sync.Loading():
		b.WriteString(m.spinner.View() + " " + LoadingText)
	case len(m.sync.Items()) == 0:
		b.WriteString(t.Title.Render(CardTitle) + "\n\n" + t.Muted.Render(EmptyText))
	default:
		l := m.list
		l.SetDelegate(itemDelegate{
			theme:     t,
			editingID: m.sync.EditingID(),
			editor:    m.editor.View(),
		})
		b.WriteString(l.View())
	}

	b.WriteString("\n\n" + m.help.ShortHelpView(m.helpKeys()))
	b.WriteString("\n" + footer)
	return ui.PanelString(b.String())
}

func (m Model) helpKeys() []key.Binding {
	k := m.keys
	switch {
	case m.sync.EditingID() != "":
		return []key.Binding{k.Submit, k.Cancel, k.Switch}
	case m.focus == focusInput:
		add := key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "add"))
		return []key.Binding{add, k.Switch}
	}
	return []key.Binding{k.Up, k.Down, k.Edit, k.Delete, k.Add, k.Quit}
}
