package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/nerrad567/gozwave/zwave"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch live controller events and protocol counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl, _, cleanup, err := openController()
		if err != nil {
			return err
		}
		defer cleanup()

		m := newMonitorModel(ctrl)
		p := tea.NewProgram(m, tea.WithAltScreen())

		sink := &monitorSink{program: p}
		ctrl.AddEventListener(sink)
		defer ctrl.RemoveEventListener(sink)

		_, err = p.Run()
		return err
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

// monitorSink forwards controller events into the bubbletea program's
// message loop.
type monitorSink struct {
	program *tea.Program
}

func (s *monitorSink) OnEvent(e zwave.Event) {
	s.program.Send(eventMsg(e))
}

type eventMsg zwave.Event
type tickMsg time.Time

type logLine struct {
	at   time.Time
	text string
}

type monitorModel struct {
	ctrl     *zwave.Controller
	log      []logLine
	maxLines int
	nodes    table.Model
}

func newMonitorModel(ctrl *zwave.Controller) monitorModel {
	nodes := table.New(
		table.WithColumns([]table.Column{
			{Title: "NODE", Width: 6},
			{Title: "STAGE", Width: 14},
			{Title: "LISTENING", Width: 10},
			{Title: "SENT", Width: 8},
		}),
		table.WithFocused(false),
		table.WithHeight(8),
	)
	nodes.SetStyles(table.Styles{
		Header: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("69")),
		Cell:   lipgloss.NewStyle(),
	})

	return monitorModel{ctrl: ctrl, maxLines: 200, nodes: nodes}
}

func (m monitorModel) Init() tea.Cmd {
	return tickCmd()
}

// refreshNodes rebuilds the node table's rows from the controller's current
// node snapshot, sorted by node ID for a stable display.
func (m *monitorModel) refreshNodes() {
	nodes := m.ctrl.Nodes()
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].NodeID < nodes[j].NodeID })

	rows := make([]table.Row, 0, len(nodes))
	for _, n := range nodes {
		rows = append(rows, table.Row{
			strconv.Itoa(int(n.NodeID)),
			n.Stage().String(),
			strconv.FormatBool(n.Listening),
			strconv.FormatUint(n.SendCount(), 10),
		})
	}
	m.nodes.SetRows(rows)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tickMsg:
		m.refreshNodes()
		return m, tickCmd()

	case eventMsg:
		m.append(formatEvent(zwave.Event(msg)))
	}

	return m, nil
}

func (m *monitorModel) append(line string) {
	m.log = append(m.log, logLine{at: time.Now(), text: line})
	if len(m.log) > m.maxLines {
		m.log = m.log[len(m.log)-m.maxLines:]
	}
}

func formatEvent(e zwave.Event) string {
	switch e.Kind {
	case zwave.EventTransactionCompleted:
		if e.Message != nil {
			return fmt.Sprintf("transaction complete: class=0x%02x node=%d", e.Message.MessageClass, e.Message.TargetNodeID)
		}
		return "transaction complete"
	case zwave.EventInitializationCompleted:
		return fmt.Sprintf("initialization complete: own-node=%d", e.OwnNodeID)
	case zwave.EventNodeStatus:
		status := "alive"
		if e.Status == zwave.NodeDead {
			status = "dead"
		}
		return fmt.Sprintf("node %d: %s", e.NodeID, status)
	default:
		return e.Kind.String()
	}
}

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("69"))
	counterStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

func (m monitorModel) View() string {
	var b strings.Builder

	c := m.ctrl.Counters()
	b.WriteString(headerStyle.Render(fmt.Sprintf("gozwave monitor — home=%#08x own-node=%d nodes=%d queue=%d",
		m.ctrl.HomeID(), m.ctrl.OwnNodeID(), len(m.ctrl.Nodes()), m.ctrl.SendQueueLength())))
	b.WriteString("\n")
	b.WriteString(counterStyle.Render(fmt.Sprintf("SOF=%d ACK=%d NAK=%d CAN=%d OOF=%d timeout=%d",
		c.SOF, c.ACK, c.NAK, c.CAN, c.OOF, c.Timeout)))
	b.WriteString("\n\n")
	b.WriteString(m.nodes.View())
	b.WriteString("\n\n")

	for _, line := range m.log {
		fmt.Fprintf(&b, "%s  %s\n", line.at.Format("15:04:05"), line.text)
	}

	b.WriteString("\nq to quit\n")
	return b.String()
}
