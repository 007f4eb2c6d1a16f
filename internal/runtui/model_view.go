package runtui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/agusx1211/swarmix/internal/theme"
)

// View implements tea.Model.
func (m Model) View() string {
	if m.width == 0 || m.height < 6 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderTaskLine())
	b.WriteString("\n")
	b.WriteString(m.renderRunLine())
	b.WriteString("\n\n")
	b.WriteString(sectionTitleStyle.Render("Agents"))
	b.WriteString("\n")
	b.WriteString(m.renderAgents())
	b.WriteString("\n")
	b.WriteString(sectionTitleStyle.Render("Log"))
	b.WriteString("\n")
	b.WriteString(m.renderLog())
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())
	return b.String()
}

func (m Model) renderHeader() string {
	title := fmt.Sprintf(" swarmix run — %s ", m.repoName)
	return headerStyle.Width(m.width).MaxWidth(m.width).Render(title)
}

func (m Model) renderTaskLine() string {
	line := labelStyle.Render("task") + valueStyle.Render(m.task)
	return ansi.Truncate(line, m.width, "…")
}

func (m Model) renderRunLine() string {
	parts := []string{labelStyle.Render("run")}
	if m.runID != "" {
		parts = append(parts, valueStyle.Render(m.runID))
	} else {
		parts = append(parts, dimStyle.Render("starting"))
	}
	parts = append(parts, dimStyle.Render(formatElapsed(m.elapsed)))
	switch {
	case m.planning:
		parts = append(parts, m.spin.View()+dimStyle.Render("planning agents"))
	case m.done && m.cancelled:
		parts = append(parts, warnStyle.Render("cancelled"))
	case m.done && m.exitErr != nil:
		parts = append(parts, errStyle.Render("failed"))
	case m.done:
		parts = append(parts, okStyle.Render(fmt.Sprintf("%d succeeded, %d failed, %d skipped",
			m.succeeded, m.failed, m.skipped)))
	case m.stopping:
		parts = append(parts, warnStyle.Render("cancelling"))
	}
	return ansi.Truncate(strings.Join(parts, " "), m.width, "…")
}

func (m Model) renderAgents() string {
	if len(m.rows) == 0 {
		if m.planning {
			return dimStyle.Render("  waiting for the planner") + "\n"
		}
		return dimStyle.Render("  no agents") + "\n"
	}
	var b strings.Builder
	for i := range m.rows {
		b.WriteString(m.renderAgentRow(&m.rows[i]))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderAgentRow(r *agentRow) string {
	line := theme.AgentStateIndicator(r.state.label()) +
		pad(r.id, 4) + " " +
		pad(ansi.Truncate(r.name, 14, "…"), 14) + " " +
		stateStyle(r.state).Render(pad(r.state.label(), 9)) + " " +
		m.agentDetail(r)
	return ansi.Truncate(line, m.width, "…")
}

// pad right-pads s with spaces to w display columns.
func pad(s string, w int) string {
	if d := w - lipgloss.Width(s); d > 0 {
		return s + strings.Repeat(" ", d)
	}
	return s
}

func (m Model) agentDetail(r *agentRow) string {
	switch r.state {
	case stateDone:
		return dimStyle.Render(fmt.Sprintf("commit %.8s on %s", r.commitHash, r.branch))
	case stateFailed:
		return errStyle.Render(fmt.Sprintf("%s: %s", r.failStage, r.failErr))
	case stateRunning:
		if r.sessionID != "" {
			return dimStyle.Render("session " + r.sessionID)
		}
		return dimStyle.Render("worker running")
	case stateWorktree:
		return dimStyle.Render(r.branch)
	case stateSkipped:
		return dimStyle.Render("cancelled before start")
	default:
		return dimStyle.Render(r.role)
	}
}

func (m Model) renderLog() string {
	vh := m.logViewportHeight()
	start := m.scrollPos
	if ms := m.maxScroll(); start > ms {
		start = ms
	}
	end := start + vh
	if end > len(m.lines) {
		end = len(m.lines)
	}
	out := make([]string, 0, vh)
	for _, line := range m.lines[start:end] {
		out = append(out, ansi.Truncate("  "+line, m.width, "…"))
	}
	for len(out) < vh {
		out = append(out, "")
	}
	return strings.Join(out, "\n")
}

func (m Model) renderStatusBar() string {
	var parts []string
	if m.done {
		parts = append(parts, shortcut("q", "quit"))
	} else {
		parts = append(parts, shortcut("ctrl+c", "cancel"))
	}
	parts = append(parts, shortcut("j/k", "scroll"))
	parts = append(parts, shortcut("g/G", "top/bottom"))
	if total := len(m.lines); total > m.logViewportHeight() {
		pct := 0
		if ms := m.maxScroll(); ms > 0 {
			pct = m.scrollPos * 100 / ms
		}
		parts = append(parts, statusValueStyle.Render(fmt.Sprintf("%d%%", pct)))
	}
	content := strings.Join(parts, statusValueStyle.Render("  "))
	return statusBarStyle.Width(m.width).MaxWidth(m.width).Render(content)
}

func shortcut(key, desc string) string {
	return statusKeyStyle.Render(key) + statusValueStyle.Render(" "+desc)
}

func formatElapsed(d time.Duration) string {
	secs := int(d.Seconds())
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
