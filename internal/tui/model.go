// Package tui provides the BubbleTea-based compstack dashboard.
package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/compstack/internal/adapter/output"
	"github.com/jmylchreest/compstack/internal/config"
	"github.com/jmylchreest/compstack/internal/core"
	"github.com/jmylchreest/compstack/internal/dbus"
	"github.com/jmylchreest/compstack/internal/model"
	"github.com/jmylchreest/compstack/internal/store"
)

// Mode represents the current UI mode.
type Mode int

const (
	ModeList Mode = iota
	ModeDetail
	ModeSearch
	ModeHelp
)

// headerHeight is the number of lines above the journal list.
const headerHeight = 4

// Model is the main TUI model.
type Model struct {
	// Configuration
	cfg       *config.Config
	store     *store.Store
	statePath string
	decimal   bool
	refresh   time.Duration

	// Current mode
	mode Mode

	// Components
	list        list.Model
	viewport    viewport.Model
	searchInput textinput.Model
	help        help.Model

	// State
	passes      []model.Pass
	shared      *store.SharedState
	sharedErr   error
	selected    *model.Pass
	searchQuery string
	failedOnly  bool
	showMapped  bool
	width       int
	height      int
	ready       bool

	// Key bindings
	keys KeyMap

	clip      clipboard
	reconcile func(context.Context) error

	// Status message
	statusMsg string
	statusErr bool

	// Change subscriptions
	refreshCh <-chan store.ChangeEvent
	stateCh   <-chan struct{}
}

// passItem wraps a pass for the list component.
type passItem struct {
	pass    model.Pass
	decimal bool
}

func (i passItem) Title() string {
	title := fmt.Sprintf("%s · %s · %d ops", i.pass.Trigger, i.pass.Strategy, len(i.pass.Ops))
	if i.pass.Resynced {
		title += " · resynced"
	}
	return title
}

func (i passItem) Description() string {
	when := "unknown"
	if i.pass.Timestamp > 0 {
		when = humanize.Time(i.pass.TimestampTime())
	}
	if i.pass.Failed() {
		return when + " - " + strings.Join(strings.Fields(i.pass.Error), " ")
	}
	return when + " - " + output.JoinIDs(i.pass.Result, i.decimal)
}

func (i passItem) FilterValue() string {
	return i.pass.Trigger + " " + string(i.pass.Strategy) + " " + i.pass.Error
}

// passDelegate is a list delegate that highlights failed passes.
type passDelegate struct {
	list.DefaultDelegate
}

func newPassDelegate() passDelegate {
	return passDelegate{DefaultDelegate: list.NewDefaultDelegate()}
}

// Render draws failed passes in red with a [!] marker. Lines are cut to
// the list width by display cells.
func (d passDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	pi, ok := item.(passItem)
	if !ok {
		d.DefaultDelegate.Render(w, m, index, item)
		return
	}

	st := d.Styles
	title, desc := st.NormalTitle, st.NormalDesc
	if index == m.Index() {
		title, desc = st.SelectedTitle, st.SelectedDesc
	}

	text := pi.Title()
	if pi.pass.Failed() {
		text = "[!] " + text
		title = title.Foreground(lipgloss.Color("9"))
		desc = desc.Foreground(lipgloss.Color("9"))
	}

	fit := func(s string) string {
		if width := m.Width() - st.NormalTitle.GetHorizontalPadding(); width > 0 {
			return ansi.Truncate(s, width, "…")
		}
		return s
	}
	fmt.Fprintf(w, "%s\n%s", title.Render(fit(text)), desc.Render(fit(pi.Description())))
}

// New creates a new TUI model. statePath is the daemon's shared state file;
// an empty path hides the status header.
func New(cfg *config.Config, s *store.Store, statePath string) Model {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	l := list.New(nil, newPassDelegate(), 0, 0)
	l.Title = "Stacking Passes"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.DisableQuitKeybindings()

	searchInput := textinput.New()
	searchInput.Placeholder = "Search or filter (e.g. failed=true,ops>2)..."
	searchInput.CharLimit = 100

	refresh, err := time.ParseDuration(cfg.TUI.Refresh)
	if err != nil || refresh <= 0 {
		refresh = time.Second
	}

	m := Model{
		cfg:         cfg,
		store:       s,
		statePath:   statePath,
		decimal:     !cfg.Output.Hex,
		refresh:     refresh,
		mode:        ModeList,
		list:        l,
		searchInput: searchInput,
		help:        help.New(),
		keys:        DefaultKeyMap(),
		clip:        newClipboard(cfg),
	}

	if s != nil {
		m.refreshCh = s.Subscribe()
	}

	return m
}

// WithStateChanges makes the model reload the shared state whenever ch
// fires. It replaces the poll interval as the primary refresh source.
func (m Model) WithStateChanges(ch <-chan struct{}) Model {
	m.stateCh = ch
	return m
}

// WithReconciler enables the reconcile key. fn asks the daemon for an
// immediate pass.
func (m Model) WithReconciler(fn func(context.Context) error) Model {
	m.reconcile = fn
	return m
}

// Init initializes the TUI.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.loadPasses,
		m.loadState,
		m.watchForChanges,
		m.watchState,
		m.tick(),
	)
}

type loadPassesMsg struct{}

type refreshMsg struct{}

type stateMsg struct {
	state *store.SharedState
	err   error
}

type stateChangedMsg struct{}

type tickMsg time.Time

func (m Model) loadPasses() tea.Msg {
	return loadPassesMsg{}
}

// loadState reads the shared state file.
func (m Model) loadState() tea.Msg {
	if m.statePath == "" {
		return stateMsg{}
	}
	st, err := store.LoadSharedStateFrom(m.statePath)
	return stateMsg{state: st, err: err}
}

// watchForChanges waits for the next journal change.
func (m Model) watchForChanges() tea.Msg {
	if m.refreshCh == nil {
		return nil
	}
	if _, ok := <-m.refreshCh; !ok {
		return nil
	}
	return refreshMsg{}
}

// watchState waits for the next state file change.
func (m Model) watchState() tea.Msg {
	if m.stateCh == nil {
		return nil
	}
	if _, ok := <-m.stateCh; !ok {
		return nil
	}
	return stateChangedMsg{}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true

		m.list.SetSize(msg.Width, max(msg.Height-headerHeight-1, 1))
		m.viewport = viewport.New(msg.Width, max(msg.Height-4, 1))
		m.viewport.YPosition = 2

		return m, nil

	case loadPassesMsg:
		m.passes = m.fetchPasses()
		m.list.SetItems(m.buildListItems())
		return m, nil

	case refreshMsg:
		m.passes = m.fetchPasses()
		m.list.SetItems(m.buildListItems())
		return m, m.watchForChanges

	case stateMsg:
		m.shared = msg.state
		m.sharedErr = msg.err
		return m, nil

	case stateChangedMsg:
		return m, tea.Batch(m.loadState, m.watchState)

	case tickMsg:
		// Relative times age and missed file events are picked up here.
		return m, tea.Batch(m.loadState, m.tick())

	case statusMsg:
		m.statusMsg = msg.text
		m.statusErr = msg.isErr
		return m, tea.Tick(3*time.Second, func(t time.Time) tea.Msg {
			return clearStatusMsg{}
		})

	case clearStatusMsg:
		m.statusMsg = ""
		m.statusErr = false
		return m, nil

	case copyResultMsg:
		if msg.err != nil {
			return m, status("Copy failed: "+msg.err.Error(), true)
		}
		return m, status("Copied to clipboard", false)

	case reconcileResultMsg:
		if msg.err != nil {
			return m, status("Reconcile failed: "+msg.err.Error(), true)
		}
		return m, tea.Batch(m.loadState, status("Reconciled", false))
	}

	switch m.mode {
	case ModeList:
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		cmds = append(cmds, cmd)
	case ModeDetail:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	case ModeSearch:
		var cmd tea.Cmd
		m.searchInput, cmd = m.searchInput.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

type statusMsg struct {
	text  string
	isErr bool
}

type clearStatusMsg struct{}

type copyResultMsg struct {
	err error
}

type reconcileResultMsg struct {
	err error
}

func status(text string, isErr bool) tea.Cmd {
	return func() tea.Msg {
		return statusMsg{text: text, isErr: isErr}
	}
}

// handleKey handles key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// The search box takes every printable key.
	if m.mode == ModeSearch {
		return m.handleSearchKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		if m.mode == ModeHelp {
			m.mode = ModeList
		} else {
			m.mode = ModeHelp
		}
		return m, nil
	}

	switch m.mode {
	case ModeList:
		return m.handleListKey(msg)
	case ModeDetail:
		return m.handleDetailKey(msg)
	case ModeHelp:
		if key.Matches(msg, m.keys.Back) {
			m.mode = ModeList
		}
		return m, nil
	}

	return m, nil
}

// handleListKey handles keys in list mode.
func (m Model) handleListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Enter):
		if item, ok := m.list.SelectedItem().(passItem); ok {
			m = m.openDetail(item.pass)
		}
		return m, nil

	case key.Matches(msg, m.keys.Copy):
		if item, ok := m.list.SelectedItem().(passItem); ok {
			return m, m.copyToClipboard(item.pass.ID)
		}
		return m, nil

	case key.Matches(msg, m.keys.CopyOps):
		if item, ok := m.list.SelectedItem().(passItem); ok {
			return m, m.copyToClipboard(output.FormatField(&item.pass, "ops", m.decimal))
		}
		return m, nil

	case key.Matches(msg, m.keys.CopyAllJSON):
		data, err := json.MarshalIndent(m.visiblePasses(), "", "  ")
		if err != nil {
			return m, status("Failed to marshal JSON: "+err.Error(), true)
		}
		return m, m.copyToClipboard(string(data))

	case key.Matches(msg, m.keys.CopyAllYAML):
		data, err := yaml.Marshal(m.visiblePasses())
		if err != nil {
			return m, status("Failed to marshal YAML: "+err.Error(), true)
		}
		return m, m.copyToClipboard(string(data))

	case key.Matches(msg, m.keys.ToggleFailed):
		m.failedOnly = !m.failedOnly
		m.list.SetItems(m.buildListItems())
		if m.failedOnly {
			return m, status("Showing failed passes only", false)
		}
		return m, status("Showing all passes", false)

	case key.Matches(msg, m.keys.Search):
		m.searchInput.SetValue("")
		m.searchQuery = ""
		m.list.SetItems(m.buildListItems())
		m.mode = ModeSearch
		m.searchInput.Focus()
		return m, textinput.Blink

	case key.Matches(msg, m.keys.Refresh):
		return m, tea.Batch(m.loadPasses, m.loadState)

	case key.Matches(msg, m.keys.ToggleMapped):
		m.showMapped = !m.showMapped
		return m, nil

	case key.Matches(msg, m.keys.ToggleIDs):
		m = m.toggleIDs()
		return m, nil

	case key.Matches(msg, m.keys.Reconcile):
		return m, m.requestReconcile()
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) openDetail(p model.Pass) Model {
	m.selected = &p
	m.mode = ModeDetail
	m.viewport.SetContent(m.renderDetail(p))
	m.viewport.GotoTop()
	return m
}

// handleDetailKey handles keys in detail mode.
func (m Model) handleDetailKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		m.mode = ModeList
		m.selected = nil
		return m, nil

	case key.Matches(msg, m.keys.Copy):
		if m.selected != nil {
			return m, m.copyToClipboard(m.selected.ID)
		}
		return m, nil

	case key.Matches(msg, m.keys.CopyOps):
		if m.selected != nil {
			return m, m.copyToClipboard(output.FormatField(m.selected, "ops", m.decimal))
		}
		return m, nil

	case key.Matches(msg, m.keys.ToggleIDs):
		m = m.toggleIDs()
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// toggleIDs switches surface ids between hex and decimal everywhere.
func (m Model) toggleIDs() Model {
	m.decimal = !m.decimal
	m.list.SetItems(m.buildListItems())
	if m.selected != nil {
		m.viewport.SetContent(m.renderDetail(*m.selected))
	}
	return m
}

// requestReconcile asks the daemon for an immediate pass.
func (m Model) requestReconcile() tea.Cmd {
	if m.reconcile == nil {
		return status("Daemon not reachable over D-Bus", true)
	}
	fn := m.reconcile
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return reconcileResultMsg{err: fn(ctx)}
	}
}

// handleSearchKey handles keys in search mode.
func (m Model) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.mode = ModeList
		m.searchInput.Blur()
		m.searchInput.SetValue("")
		m.searchQuery = ""
		m.list.SetItems(m.buildListItems())
		return m, nil

	case tea.KeyEnter:
		m.searchInput.Blur()
		if item, ok := m.list.SelectedItem().(passItem); ok {
			m = m.openDetail(item.pass)
			return m, nil
		}
		m.mode = ModeList
		return m, nil

	case tea.KeyUp, tea.KeyDown:
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)

	m.searchQuery = m.searchInput.Value()
	m.list.SetItems(m.buildListItems())

	return m, cmd
}

// fetchPasses gets passes from the store, newest first.
func (m Model) fetchPasses() []model.Pass {
	if m.store == nil {
		return nil
	}
	passes := m.store.All()
	core.Sort(passes, core.DefaultSortOptions())
	return passes
}

// visiblePasses applies the failed toggle and the search query.
func (m Model) visiblePasses() []model.Pass {
	passes := m.passes
	if m.failedOnly {
		passes = slices.DeleteFunc(slices.Clone(passes), func(p model.Pass) bool { return !p.Failed() })
	}
	return applySearch(passes, m.searchQuery)
}

// buildListItems creates list items from the visible passes.
func (m Model) buildListItems() []list.Item {
	passes := m.visiblePasses()
	items := make([]list.Item, len(passes))
	for i, p := range passes {
		items[i] = passItem{pass: p, decimal: m.decimal}
	}
	return items
}

// renderDetail renders the detail view for a pass.
func (m Model) renderDetail(p model.Pass) string {
	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("8"))

	ids := func(v []model.SurfaceID) string { return output.JoinIDs(v, m.decimal) }

	var sb strings.Builder
	sb.WriteString(headerStyle.Render(p.ID) + "\n\n")

	sb.WriteString(labelStyle.Render("Trigger: ") + p.Trigger + "\n")
	if p.Timestamp > 0 {
		sb.WriteString(labelStyle.Render("Time: ") + humanize.Time(p.TimestampTime()) + "\n")
	}
	sb.WriteString(labelStyle.Render("Strategy: ") + string(p.Strategy) + "\n")
	sb.WriteString(labelStyle.Render("Duration: ") + p.Duration.String() + "\n")
	sb.WriteString(labelStyle.Render("Compositing: ") + fmt.Sprintf("%t", p.Compositing) + "\n")
	if p.Resynced {
		sb.WriteString(labelStyle.Render("Resynced: ") + "yes\n")
	}

	sb.WriteString("\n" + labelStyle.Render("Desired: ") + ids(p.Desired) + "\n")
	sb.WriteString(labelStyle.Render("Result:  ") + ids(p.Result) + "\n")
	if len(p.Dropped) > 0 {
		sb.WriteString(labelStyle.Render("Dropped: ") + ids(p.Dropped) + "\n")
	}
	if len(p.Direct) > 0 {
		sb.WriteString(labelStyle.Render("Direct:  ") + ids(p.Direct) + "\n")
	}

	if len(p.Ops) > 0 {
		sb.WriteString("\n" + labelStyle.Render(fmt.Sprintf("Requests (%d):", len(p.Ops))) + "\n")
		for _, op := range p.Ops {
			sb.WriteString("  " + op.String() + "\n")
		}
	}

	if p.Failed() {
		errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
		sb.WriteString("\n" + labelStyle.Render("Error:") + "\n")
		sb.WriteString(errStyle.Render(p.Error) + "\n")
	}

	return sb.String()
}

// renderHeader renders the daemon status above the journal.
func (m Model) renderHeader() string {
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	onStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	offStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9"))

	lines := make([]string, 0, headerHeight)

	switch {
	case m.statePath == "":
		lines = append(lines, labelStyle.Render("no daemon state"))
	case m.sharedErr != nil:
		lines = append(lines, errStyle.Render("state: "+m.sharedErr.Error()))
	case m.shared == nil:
		lines = append(lines, labelStyle.Render("loading state..."))
	default:
		st := m.shared
		daemon := offStyle.Render("stopped")
		if st.Running() {
			daemon = onStyle.Render(fmt.Sprintf("running (pid %d)", st.PID))
		}
		comp := offStyle.Render("off")
		if st.Compositing {
			comp = onStyle.Render("on")
		}
		updated := "never"
		if st.UpdatedAt > 0 {
			updated = humanize.Time(time.Unix(st.UpdatedAt, 0))
		}
		lines = append(lines,
			labelStyle.Render("daemon ")+daemon+
				labelStyle.Render("  compositing ")+comp+
				labelStyle.Render("  display ")+string(st.Power)+
				labelStyle.Render("  updated ")+updated)

		order, label := st.Stacking, "stack (top first) "
		if m.showMapped {
			order, label = st.MappedStacking, "mapped (top first) "
		}
		top := slices.Clone(order)
		slices.Reverse(top)
		lines = append(lines, labelStyle.Render(label)+output.JoinIDs(top, m.decimal))
		var app []model.SurfaceID
		if st.CurrentApp != model.None {
			app = []model.SurfaceID{st.CurrentApp}
		}
		lines = append(lines,
			labelStyle.Render("current app ")+output.JoinIDs(app, m.decimal)+
				labelStyle.Render("  direct ")+output.JoinIDs(st.Direct, m.decimal))
	}

	for len(lines) < headerHeight {
		lines = append(lines, "")
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// copyToClipboard copies text to the system clipboard.
func (m Model) copyToClipboard(text string) tea.Cmd {
	clip := m.clip
	return func() tea.Msg {
		return copyResultMsg{err: clip.Copy(text)}
	}
}

// View renders the TUI.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	switch m.mode {
	case ModeList:
		return m.viewList()
	case ModeDetail:
		return m.viewDetail()
	case ModeSearch:
		return m.viewSearch()
	case ModeHelp:
		return m.viewHelp()
	default:
		return ""
	}
}

func (m Model) viewList() string {
	s := m.renderHeader() + "\n" + m.list.View()

	if m.statusMsg != "" {
		statusStyle := lipgloss.NewStyle().
			Foreground(lipgloss.Color("7"))
		if m.statusErr {
			statusStyle = statusStyle.Foreground(lipgloss.Color("9"))
		}
		s += "\n" + statusStyle.Render(m.statusMsg)
	} else {
		s += "\n" + m.keybindBar(m.width, ModeList)
	}

	return s
}

func (m Model) viewDetail() string {
	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Padding(0, 1)

	header := headerStyle.Render("Pass Detail")

	return header + "\n" + m.viewport.View() + "\n" + m.keybindBar(m.width, ModeDetail)
}

func (m Model) viewSearch() string {
	kind := "search"
	if isFilterExpression(m.searchQuery) {
		kind = "filter"
	}
	countStr := fmt.Sprintf("(%s, %d matches)", kind, len(m.list.Items()))

	searchBar := "Search: " + m.searchInput.View() + " " +
		lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(countStr)

	return m.renderHeader() + "\n" + searchBar + "\n" + m.list.View() + "\n" + m.keybindBar(m.width, ModeSearch)
}

func (m Model) viewHelp() string {
	title := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).MarginBottom(1)
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	h := m.help
	h.Width = m.width

	return title.Render("Keyboard Shortcuts") + "\n" +
		h.FullHelpView(m.keys.FullHelp()) + "\n\n" +
		dim.Render("Filters") + "\n" +
		"  strategy=aggressive  ops>=3  failed=true  surface=0x1a00003  timestamp<1h  took>2ms\n\n" +
		dim.Render("Press ? or esc to return")
}

// keybindBar renders the bindings that matter in mode, most important
// first, truncated to width.
func (m Model) keybindBar(width int, mode Mode) string {
	k := m.keys
	var binds []key.Binding
	switch mode {
	case ModeList:
		binds = []key.Binding{k.Quit, k.Enter, k.Help, k.Search, k.ToggleFailed,
			k.Copy, k.CopyOps, k.Refresh, k.ToggleMapped, k.Reconcile}
	case ModeDetail:
		binds = []key.Binding{k.Quit, k.Back, k.Copy, k.CopyOps, k.Down, k.ToggleIDs}
	case ModeSearch:
		binds = []key.Binding{k.Enter, k.Back, k.Up}
	}

	h := m.help
	h.Width = width
	return h.ShortHelpView(binds)
}

// RunOptions configures the TUI.
type RunOptions struct {
	Config      *config.Config
	Store       *store.Store
	JournalPath string // Journal to watch for changes (empty = no watching)
	StatePath   string // Shared state file (empty = no header)
	Logger      *slog.Logger
}

// Run starts the TUI with the given options.
func Run(opts RunOptions) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := opts.Store
	if s == nil {
		s = store.NewStore(nil)
	}

	m := New(opts.Config, s, opts.StatePath)

	if opts.JournalPath != "" || opts.StatePath != "" {
		if watcher, err := watchFiles(s, opts, logger); err != nil {
			logger.Warn("failed to watch journal and state", "error", err)
		} else {
			defer func() { _ = watcher.Stop() }()
			if opts.StatePath != "" {
				m = m.WithStateChanges(watcher.stateCh)
			}
		}
	}

	if client, err := dbus.NewClient(); err != nil {
		logger.Debug("daemon D-Bus service unavailable", "error", err)
	} else {
		m = m.WithReconciler(client.Reconcile)
	}

	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

type fileWatch struct {
	*store.FileWatcher
	stateCh chan struct{}
}

// watchFiles rehydrates s when the journal changes and signals state file
// changes on stateCh.
func watchFiles(s *store.Store, opts RunOptions, logger *slog.Logger) (*fileWatch, error) {
	fw, err := store.NewWatcher(logger)
	if err != nil {
		return nil, err
	}
	w := &fileWatch{FileWatcher: fw, stateCh: make(chan struct{}, 1)}

	if opts.JournalPath != "" {
		if err := fw.WatchStore(s, opts.JournalPath); err != nil {
			_ = fw.Stop()
			return nil, err
		}
	}
	if opts.StatePath != "" {
		err := fw.Watch(opts.StatePath, func() {
			select {
			case w.stateCh <- struct{}{}:
			default:
			}
		})
		if err != nil {
			_ = fw.Stop()
			return nil, err
		}
	}
	if err := fw.Start(); err != nil {
		_ = fw.Stop()
		return nil, err
	}
	return w, nil
}
