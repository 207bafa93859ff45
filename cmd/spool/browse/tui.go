package browsecmder

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	bubbletea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/muesli/termenv"

	"github.com/papercomputeco/spool/pkg/dotdir"
	"github.com/papercomputeco/spool/pkg/merkle"
	"github.com/papercomputeco/spool/pkg/store"
	"github.com/papercomputeco/spool/pkg/utils"
)

func init() {
	// Force TrueColor profile to fix lipgloss color detection issue
	// See: https://github.com/charmbracelet/lipgloss/issues/439
	renderer := lipgloss.NewRenderer(os.Stdout, termenv.WithProfile(termenv.TrueColor))
	renderer.SetColorProfile(termenv.TrueColor)
	lipgloss.SetDefaultRenderer(renderer)
}

type browseView int

const (
	viewGraph browseView = iota
	viewNode
)

type browseModel struct {
	st        *store.Store
	dd        *dotdir.Manager
	configDir string

	all   []*merkle.Node
	nodes []*merkle.Node
	types []string

	sortIndex int
	typeIndex int

	cursor         int
	selected       *merkle.Node
	neighborCursor int

	pinnedID string
	status   string

	view   browseView
	width  int
	height int
	keys   browseKeyMap
	help   help.Model
}

// neighbor is one node reachable from the selected node: a parent it was
// derived from, or the output of an edge that consumes it.
type neighbor struct {
	node     *merkle.Node
	relation string
}

var (
	browseTitleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	browseMutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	browseAccentStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("215"))
	browseSectionStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	browseDividerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("237"))
	browseMetricLabel    = lipgloss.NewStyle().Foreground(lipgloss.Color("246")).Bold(true)
	browseMetricValue    = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	browseHighlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("235")).Background(lipgloss.Color("214")).Bold(true)
	browsePinStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("70"))
	browseHashStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("111"))
)

var sortOrder = []string{"topo", "type"}

type browseKeyMap struct {
	Up    key.Binding
	Down  key.Binding
	Enter key.Binding
	Back  key.Binding
	Sort  key.Binding
	Type  key.Binding
	Pin   key.Binding
	Quit  key.Binding
}

func (k browseKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Down, k.Up, k.Enter, k.Back, k.Sort, k.Type, k.Pin, k.Quit}
}

func (k browseKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Down, k.Up, k.Enter, k.Back}, {k.Sort, k.Type, k.Pin, k.Quit}}
}

func defaultKeyMap() browseKeyMap {
	return browseKeyMap{
		Up:    key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k", "up")),
		Down:  key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j", "down")),
		Enter: key.NewBinding(key.WithKeys("enter", "l"), key.WithHelp("enter", "drill")),
		Back:  key.NewBinding(key.WithKeys("h", "esc"), key.WithHelp("h", "back")),
		Sort:  key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "sort")),
		Type:  key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "type")),
		Pin:   key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "pin")),
		Quit:  key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func newBrowseModel(st *store.Store, dd *dotdir.Manager, configDir string) (browseModel, error) {
	order, err := st.TopologicalSort()
	if err != nil {
		return browseModel{}, err
	}

	m := browseModel{
		st:        st,
		dd:        dd,
		configDir: configDir,
		all:       order,
		types:     distinctTypes(order),
		view:      viewGraph,
		keys:      defaultKeyMap(),
		help:      help.New(),
	}

	if pin, pinErr := dd.LoadPinState(configDir); pinErr == nil && pin != nil {
		m.pinnedID = pin.NodeID
	}

	m.nodes = m.visibleNodes()
	return m, nil
}

func (m browseModel) Init() bubbletea.Cmd {
	return nil
}

func (m browseModel) Update(msg bubbletea.Msg) (bubbletea.Model, bubbletea.Cmd) {
	switch msg := msg.(type) {
	case bubbletea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case bubbletea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m browseModel) View() string {
	switch m.view {
	case viewGraph:
		return m.viewGraph()
	case viewNode:
		return m.viewNode()
	}
	return m.viewGraph()
}

func (m browseModel) handleKey(msg bubbletea.KeyMsg) (bubbletea.Model, bubbletea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, bubbletea.Quit
	case "j", "down":
		return m.moveCursor(1)
	case "k", "up":
		return m.moveCursor(-1)
	case "l", "enter":
		if m.view == viewGraph {
			return m.enterNode()
		}
		return m.jumpToNeighbor()
	case "h", "esc":
		if m.view == viewNode {
			m.view = viewGraph
			m.selected = nil
			m.neighborCursor = 0
			m.status = ""
		}
	case "s":
		if m.view == viewGraph {
			return m.cycleSort()
		}
	case "t":
		if m.view == viewGraph {
			return m.cycleType()
		}
	case "p":
		return m.pinCurrent()
	}

	return m, nil
}

func (m browseModel) moveCursor(delta int) (bubbletea.Model, bubbletea.Cmd) {
	if m.view == viewGraph {
		if len(m.nodes) == 0 {
			return m, nil
		}
		m.cursor = clamp(m.cursor+delta, len(m.nodes)-1)
		return m, nil
	}

	neighbors := m.neighbors()
	if len(neighbors) == 0 {
		return m, nil
	}
	m.neighborCursor = clamp(m.neighborCursor+delta, len(neighbors)-1)
	return m, nil
}

func (m browseModel) enterNode() (bubbletea.Model, bubbletea.Cmd) {
	if len(m.nodes) == 0 {
		return m, nil
	}

	m.selected = m.nodes[m.cursor]
	m.neighborCursor = 0
	m.view = viewNode
	m.status = ""
	return m, nil
}

func (m browseModel) jumpToNeighbor() (bubbletea.Model, bubbletea.Cmd) {
	neighbors := m.neighbors()
	if len(neighbors) == 0 {
		return m, nil
	}

	m.selected = neighbors[m.neighborCursor].node
	m.neighborCursor = 0
	m.status = ""
	return m, nil
}

func (m browseModel) cycleSort() (bubbletea.Model, bubbletea.Cmd) {
	m.sortIndex = (m.sortIndex + 1) % len(sortOrder)
	m.nodes = m.visibleNodes()
	m.cursor = clampCursor(m.cursor, len(m.nodes))
	return m, nil
}

func (m browseModel) cycleType() (bubbletea.Model, bubbletea.Cmd) {
	m.typeIndex = (m.typeIndex + 1) % (len(m.types) + 1)
	m.nodes = m.visibleNodes()
	m.cursor = clampCursor(m.cursor, len(m.nodes))
	return m, nil
}

func (m browseModel) pinCurrent() (bubbletea.Model, bubbletea.Cmd) {
	node := m.currentNode()
	if node == nil {
		return m, nil
	}

	err := m.dd.SavePin(&dotdir.PinState{
		NodeID:   node.ID.String(),
		Hash:     node.Hash,
		PinnedAt: time.Now().UTC(),
	}, m.configDir)
	if err != nil {
		m.status = "pin failed: " + err.Error()
		return m, nil
	}

	m.pinnedID = node.ID.String()
	m.status = "pinned " + utils.ShortHash(node.ID.String())
	return m, nil
}

// currentNode is the node an action applies to: the drilled-into node, or
// the one under the list cursor.
func (m browseModel) currentNode() *merkle.Node {
	if m.view == viewNode {
		return m.selected
	}
	if len(m.nodes) == 0 {
		return nil
	}
	return m.nodes[m.cursor]
}

// visibleNodes applies the type filter and sort to the topological order.
func (m browseModel) visibleNodes() []*merkle.Node {
	filtered := m.all
	if m.typeIndex > 0 && m.typeIndex <= len(m.types) {
		typeName := m.types[m.typeIndex-1]
		filtered = make([]*merkle.Node, 0, len(m.all))
		for _, n := range m.all {
			if n.TypeName == typeName {
				filtered = append(filtered, n)
			}
		}
	}

	if sortOrder[m.sortIndex] == "type" {
		sorted := make([]*merkle.Node, len(filtered))
		copy(sorted, filtered)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].TypeName < sorted[j].TypeName
		})
		return sorted
	}

	return filtered
}

// neighbors lists the nodes one hop from the selected node: parents first,
// then the outputs of edges consuming it. Duplicates collapse to the first
// relation seen.
func (m browseModel) neighbors() []neighbor {
	if m.selected == nil {
		return nil
	}

	seen := map[uuid.UUID]bool{m.selected.ID: true}
	items := make([]neighbor, 0, 8)

	for _, parentID := range m.selected.ParentIDs {
		if seen[parentID] {
			continue
		}
		if parent, ok := m.st.GetNode(parentID); ok {
			seen[parentID] = true
			items = append(items, neighbor{node: parent, relation: "parent"})
		}
	}

	for _, edge := range m.st.OutgoingEdges(m.selected.ID) {
		if seen[edge.OutputID] {
			continue
		}
		if output, ok := m.st.GetNode(edge.OutputID); ok {
			seen[edge.OutputID] = true
			items = append(items, neighbor{node: output, relation: edge.Operation})
		}
	}

	return items
}

func (m browseModel) viewGraph() string {
	headerLeft := browseTitleStyle.Render("spool browse")
	headerRight := browseMutedStyle.Render(fmt.Sprintf("%d nodes · %d edges", m.st.NodeCount(), m.st.EdgeCount()))
	header := renderHeaderLine(m.width, headerLeft, headerRight)

	lines := make([]string, 0, 16)
	lines = append(lines, header, renderRule(m.width), "")
	lines = append(lines, m.viewMetrics(), "")
	lines = append(lines, m.viewNodeList())

	if m.status != "" {
		lines = append(lines, "", browseAccentStyle.Render(m.status))
	}

	lines = append(lines, "", m.viewFooter())
	return strings.Join(lines, "\n")
}

func (m browseModel) viewMetrics() string {
	headers := []string{"NODES", "EDGES", "ROOTS", "LEAVES", "TYPES"}
	values := []string{
		strconv.Itoa(m.st.NodeCount()),
		strconv.Itoa(m.st.EdgeCount()),
		strconv.Itoa(len(m.st.RootNodes())),
		strconv.Itoa(len(m.st.LeafNodes())),
		strconv.Itoa(len(m.types)),
	}

	lines := []string{
		renderMetricRow(m.width, headers, browseMetricLabel),
		renderMetricRow(m.width, values, browseMetricValue),
	}

	return strings.Join(lines, "\n")
}

func (m browseModel) viewNodeList() string {
	typeName := "all"
	if m.typeIndex > 0 && m.typeIndex <= len(m.types) {
		typeName = m.types[m.typeIndex-1]
	}

	lines := []string{
		browseSectionStyle.Render(fmt.Sprintf("nodes (sort: %s, type: %s)", sortOrder[m.sortIndex], typeName)),
		renderRule(m.width),
	}

	if len(m.nodes) == 0 {
		lines = append(lines, browseMutedStyle.Render("no nodes"))
		return strings.Join(lines, "\n")
	}

	lines = append(lines, browseMutedStyle.Render("    id        hash      type              parents  in  out"))

	start, end := visibleRange(len(m.nodes), m.cursor, m.listHeight())
	for i := start; i < end; i++ {
		node := m.nodes[i]
		cursor := " "
		if i == m.cursor {
			cursor = ">"
		}

		pin := " "
		if node.ID.String() == m.pinnedID {
			pin = browsePinStyle.Render("●")
		}

		line := fmt.Sprintf("%s %s %s  %s  %-16s %7d %3d %4d",
			cursor,
			pin,
			utils.ShortHash(node.ID.String()),
			browseHashStyle.Render(utils.ShortHash(node.Hash)),
			truncateText(node.TypeName, 16),
			len(node.ParentIDs),
			len(m.st.IncomingEdges(node.ID)),
			len(m.st.OutgoingEdges(node.ID)),
		)

		if i == m.cursor {
			line = browseHighlightStyle.Render(line)
		}

		lines = append(lines, line)
	}

	return strings.Join(lines, "\n")
}

func (m browseModel) viewNode() string {
	if m.selected == nil {
		return browseMutedStyle.Render("no node selected")
	}

	node := m.selected
	headerLeft := browseTitleStyle.Render("spool browse › " + node.TypeName)
	right := utils.ShortHash(node.ID.String())
	if node.ID.String() == m.pinnedID {
		right += " · " + browsePinStyle.Render("● pinned")
	}
	headerRight := browseMutedStyle.Render(right)
	header := renderHeaderLine(m.width, headerLeft, headerRight)

	lines := make([]string, 0, 24)
	lines = append(lines, header, renderRule(m.width), "")

	lines = append(lines, browseSectionStyle.Render("node"), renderRule(m.width))
	lines = append(lines, fmt.Sprintf("%s %s", browseMetricLabel.Render("id     "), node.ID.String()))
	lines = append(lines, fmt.Sprintf("%s %s", browseMetricLabel.Render("hash   "), browseHashStyle.Render(node.Hash)))
	lines = append(lines, fmt.Sprintf("%s %d parents · %d in · %d out",
		browseMetricLabel.Render("links  "),
		len(node.ParentIDs),
		len(m.st.IncomingEdges(node.ID)),
		len(m.st.OutgoingEdges(node.ID)),
	))

	lines = append(lines, "", browseSectionStyle.Render("payload"), renderRule(m.width))
	if len(node.Payload) == 0 {
		lines = append(lines, browseMutedStyle.Render("no payload"))
	} else {
		payload := truncateText(string(node.Payload), 600)
		lines = append(lines, wrapText(payload, max(20, m.width-2))...)
	}

	neighbors := m.neighbors()
	lines = append(lines, "", browseSectionStyle.Render("neighbors"), renderRule(m.width))
	if len(neighbors) == 0 {
		lines = append(lines, browseMutedStyle.Render("no neighbors"))
	} else {
		for i, nb := range neighbors {
			cursor := " "
			if i == m.neighborCursor {
				cursor = ">"
			}

			line := fmt.Sprintf("%s %s %s  %-16s %s",
				cursor,
				utils.ShortHash(nb.node.ID.String()),
				browseHashStyle.Render(utils.ShortHash(nb.node.Hash)),
				truncateText(nb.node.TypeName, 16),
				browseMutedStyle.Render(nb.relation),
			)

			if i == m.neighborCursor {
				line = browseHighlightStyle.Render(line)
			}

			lines = append(lines, line)
		}
	}

	if m.status != "" {
		lines = append(lines, "", browseAccentStyle.Render(m.status))
	}

	lines = append(lines, "", m.viewFooter())
	return strings.Join(lines, "\n")
}

func (m browseModel) viewFooter() string {
	return browseMutedStyle.Render(m.help.View(m.keys))
}

// listHeight is how many node rows fit under the header, metrics, and
// footer chrome.
func (m browseModel) listHeight() int {
	height := m.height
	if height <= 0 {
		height = 40
	}
	return max(height-12, 5)
}

func distinctTypes(nodes []*merkle.Node) []string {
	seen := map[string]bool{}
	types := make([]string, 0, 8)
	for _, n := range nodes {
		if !seen[n.TypeName] {
			seen[n.TypeName] = true
			types = append(types, n.TypeName)
		}
	}
	sort.Strings(types)
	return types
}

func clamp(value, upper int) int {
	if value < 0 {
		return 0
	}
	if value > upper {
		return upper
	}
	return value
}

// clampCursor keeps a cursor valid after the list it indexes changes size.
func clampCursor(cursor, length int) int {
	if length == 0 {
		return 0
	}
	return clamp(cursor, length-1)
}

func truncateText(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	if limit <= 3 {
		return value[:limit]
	}
	return value[:limit-3] + "..."
}

func renderHeaderLine(width int, left, right string) string {
	lineWidth := width
	if lineWidth <= 0 {
		lineWidth = 80
	}
	leftWidth := lipgloss.Width(left)
	rightWidth := lipgloss.Width(right)
	if leftWidth+rightWidth+1 >= lineWidth {
		return strings.TrimSpace(left + " " + right)
	}
	spacing := lineWidth - leftWidth - rightWidth
	return left + strings.Repeat(" ", spacing) + right
}

func renderRule(width int) string {
	lineWidth := width
	if lineWidth <= 0 {
		lineWidth = 80
	}
	return browseDividerStyle.Render(strings.Repeat("─", lineWidth))
}

func renderMetricRow(width int, items []string, style lipgloss.Style) string {
	if len(items) == 0 {
		return ""
	}
	lineWidth := width
	if lineWidth <= 0 {
		lineWidth = 80
	}
	cols := len(items)
	spaceWidth := (cols - 1) * 2
	colWidth := max((lineWidth-spaceWidth)/cols, 12)
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, style.Render(fitCell(item, colWidth)))
	}
	return strings.Join(parts, "  ")
}

func fitCell(value string, width int) string {
	if width <= 0 {
		return value
	}
	if lipgloss.Width(value) > width {
		return truncateText(value, width)
	}
	return value + strings.Repeat(" ", width-lipgloss.Width(value))
}

func visibleRange(total, cursor, size int) (int, int) {
	if total <= 0 || size <= 0 {
		return 0, 0
	}
	if total <= size {
		return 0, total
	}
	if cursor < 0 {
		cursor = 0
	}
	if cursor >= total {
		cursor = total - 1
	}
	start := max(cursor-(size/2), 0)
	end := start + size
	if end > total {
		end = total
		start = max(end-size, 0)
	}
	return start, end
}

func wrapText(text string, width int) []string {
	if width <= 0 {
		return []string{text}
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{""}
	}
	lines := []string{}
	current := ""
	for _, word := range words {
		if current == "" {
			current = word
			continue
		}
		if lipgloss.Width(current)+1+lipgloss.Width(word) <= width {
			current = current + " " + word
			continue
		}
		lines = append(lines, current)
		current = word
	}
	if current != "" {
		lines = append(lines, current)
	}
	return lines
}
