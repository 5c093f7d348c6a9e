package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/wippyai/asyncgraph"
	"github.com/wippyai/asyncgraph/asyncgroup"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	defStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	fidStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	flagStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFB86C"))

	detailStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#666666")).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

func newInspectCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <sample>",
		Short: "Browse the groups and function ids of a sample",
		Long: "inspect opens an interactive browser of a sample's async state groups.\n" +
			"When output is not a terminal it prints the groups instead.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := lookupSample(args[0])
			if err != nil {
				return err
			}
			plan, err := c.prepare(cmd.Context(), s)
			if err != nil {
				return err
			}
			if !c.interactive() {
				c.printGroups(plan)
				return nil
			}
			p := tea.NewProgram(newInspectModel(s.Name, plan), tea.WithAltScreen(), tea.WithOutput(c.out))
			_, err = p.Run()
			return err
		},
	}
}

type inspectModel struct {
	sample string
	units  []*asyncgroup.Groups
	names  []string
	unit   int
	group  int
	detail viewport.Model
	ready  bool
}

func newInspectModel(sample string, plan *asyncgraph.Plan) *inspectModel {
	m := &inspectModel{sample: sample}
	for _, u := range plan.Units {
		m.units = append(m.units, u.Groups)
		m.names = append(m.names, u.Graph.Name)
	}
	return m
}

func (m *inspectModel) Init() tea.Cmd { return nil }

func (m *inspectModel) current() *asyncgroup.Groups {
	if len(m.units) == 0 {
		return nil
	}
	return m.units[m.unit]
}

func (m *inspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		height := max(msg.Height/2, 5)
		if !m.ready {
			m.detail = viewport.New(msg.Width-4, height)
			m.ready = true
		} else {
			m.detail.Width = msg.Width - 4
			m.detail.Height = height
		}
		m.refresh()

	case tea.KeyMsg:
		gs := m.current()
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "up", "k":
			if m.group > 0 {
				m.group--
				m.refresh()
			}
		case "down", "j":
			if gs != nil && m.group < len(gs.List)-1 {
				m.group++
				m.refresh()
			}
		case "tab", "right", "l":
			if len(m.units) > 1 {
				m.unit = (m.unit + 1) % len(m.units)
				m.group = 0
				m.refresh()
			}
		case "shift+tab", "left", "h":
			if len(m.units) > 1 {
				m.unit = (m.unit + len(m.units) - 1) % len(m.units)
				m.group = 0
				m.refresh()
			}
		default:
			var cmd tea.Cmd
			m.detail, cmd = m.detail.Update(msg)
			return m, cmd
		}
	}
	return m, nil
}

func (m *inspectModel) refresh() {
	gs := m.current()
	if !m.ready || gs == nil || len(gs.List) == 0 {
		return
	}
	m.detail.SetContent(gs.Describe(gs.List[m.group]))
	m.detail.GotoTop()
}

func (m *inspectModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("asyncgraph inspect"))
	b.WriteString(" ")
	b.WriteString(m.sample)
	b.WriteString("\n\n")

	for i, name := range m.names {
		if i == m.unit {
			b.WriteString(selectedStyle.Render(" " + name + " "))
		} else {
			b.WriteString(defStyle.Render(" " + name + " "))
		}
	}
	b.WriteString("\n\n")

	gs := m.current()
	if gs == nil {
		b.WriteString("No definitions.\n")
		return b.String()
	}
	fmt.Fprintf(&b, "%d groups in %d functions\n\n", len(gs.List), gs.NumFunctions)
	for i, g := range gs.List {
		line := fmt.Sprintf("%-10s %s", g.Label, fidStyle.Render(fmt.Sprintf("fn %d", g.FunctionID)))
		if flags := groupFlags(gs, g); flags != "" {
			line += " " + flagStyle.Render(flags)
		}
		if i == m.group {
			b.WriteString(selectedStyle.Render("> " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}
	if m.ready {
		b.WriteString("\n")
		b.WriteString(detailStyle.Render(m.detail.View()))
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("↑/↓ group • tab definition • pgup/pgdn scroll • q quit"))
	return b.String()
}

func groupFlags(gs *asyncgroup.Groups, g *asyncgroup.Group) string {
	var flags []string
	if gs.IsEntry(g) {
		flags = append(flags, "entry")
	}
	if g.Skippable {
		flags = append(flags, "skippable")
	}
	if g.SignaledConditionally {
		flags = append(flags, "conditional")
	}
	if n := g.MaxFireCount(); n > 1 {
		flags = append(flags, fmt.Sprintf("fires %d", n))
	}
	return strings.Join(flags, ", ")
}
