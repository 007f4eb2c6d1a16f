package runtui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/agusx1211/swarmix/internal/events"
)

const maxLogLines = 2000

// agentState tracks one roster entry through its pipeline.
type agentState int

const (
	statePending agentState = iota
	stateWorktree
	stateRunning
	stateDone
	stateFailed
	stateSkipped
)

func (s agentState) label() string {
	switch s {
	case stateWorktree:
		return "worktree"
	case stateRunning:
		return "running"
	case stateDone:
		return "done"
	case stateFailed:
		return "failed"
	case stateSkipped:
		return "skipped"
	default:
		return "pending"
	}
}

type agentRow struct {
	id         string
	name       string
	role       string
	state      agentState
	branch     string
	sessionID  string
	commitHash string
	failStage  string
	failErr    string
}

// runClosedMsg signals that the round goroutine has exited and the event
// channel is drained.
type runClosedMsg struct{}

// tickMsg is sent every second to update the elapsed time display.
type tickMsg struct{}

// Model is the bubbletea model for the swarmix run dashboard.
type Model struct {
	width  int
	height int

	repoName string
	task     string
	runID    string

	// Spinner shown while the planner round-trip is in flight.
	planning bool
	spin     spinner.Model

	rows  []agentRow
	index map[string]int

	// Progress log lines and scroll position.
	lines      []string
	scrollPos  int
	autoScroll bool

	startTime time.Time
	elapsed   time.Duration

	done      bool
	stopping  bool
	cancelled bool
	succeeded int
	failed    int
	skipped   int
	exitErr   error

	eventCh chan any
	stop    func()
}

// NewModel builds the dashboard model. stop requests cooperative cancellation
// of the active round; it must be safe to call more than once.
func NewModel(repoName, task string, eventCh chan any, stop func()) Model {
	return Model{
		repoName:   repoName,
		task:       task,
		planning:   true,
		spin:       spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(spinnerStyle)),
		index:      make(map[string]int),
		autoScroll: true,
		startTime:  time.Now(),
		eventCh:    eventCh,
		stop:       stop,
	}
}

// SetSize sets the terminal dimensions on the model so the first render has
// correct sizing when embedded in a parent program.
func (m *Model) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// Done reports whether the round has finished.
func (m Model) Done() bool {
	return m.done
}

// Result returns the final counters once Done.
func (m Model) Result() (succeeded, failed, skipped int, cancelled bool) {
	return m.succeeded, m.failed, m.skipped, m.cancelled
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		waitForEvent(m.eventCh),
		tickEvery(),
		m.spin.Tick,
		tea.SetWindowTitle("swarmix run"),
	)
}

// waitForEvent returns a Cmd that waits for the next event on the channel.
func waitForEvent(ch chan any) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return runClosedMsg{}
		}
		return msg
	}
}

// tickEvery returns a Cmd that sends a tickMsg after 1 second.
func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		if !m.planning {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tickMsg:
		if !m.done {
			m.elapsed = time.Since(m.startTime)
		}
		ms := m.maxScroll()
		if m.scrollPos > ms {
			m.scrollPos = ms
		}
		return m, tickEvery()

	case events.RunStartedMsg:
		m.runID = msg.RunID
		if !msg.StartedAt.IsZero() {
			m.startTime = msg.StartedAt
		}
		return m, waitForEvent(m.eventCh)

	case events.PlanReadyMsg:
		m.planning = false
		m.rows = m.rows[:0]
		m.index = make(map[string]int)
		for _, a := range msg.Agents {
			m.index[a.ID] = len(m.rows)
			m.rows = append(m.rows, agentRow{id: a.ID, name: a.Name, role: a.Role})
		}
		return m, waitForEvent(m.eventCh)

	case events.WorktreeReadyMsg:
		if r := m.row(msg.AgentID); r != nil {
			r.state = stateWorktree
			r.branch = msg.Branch
		}
		return m, waitForEvent(m.eventCh)

	case events.AgentStartedMsg:
		if r := m.row(msg.AgentID); r != nil {
			r.state = stateRunning
		}
		return m, waitForEvent(m.eventCh)

	case events.AgentSessionMsg:
		if r := m.row(msg.AgentID); r != nil {
			r.sessionID = msg.SessionID
		}
		return m, waitForEvent(m.eventCh)

	case events.AgentFinishedMsg:
		if r := m.row(msg.AgentID); r != nil {
			r.state = stateDone
			r.sessionID = msg.SessionID
			r.commitHash = msg.CommitHash
			r.branch = msg.Branch
		}
		return m, waitForEvent(m.eventCh)

	case events.AgentFailedMsg:
		if r := m.row(msg.AgentID); r != nil {
			r.state = stateFailed
			r.failStage = msg.Stage
			if msg.Err != nil {
				r.failErr = msg.Err.Error()
			}
		}
		return m, waitForEvent(m.eventCh)

	case events.AgentSkippedMsg:
		if r := m.row(msg.AgentID); r != nil {
			r.state = stateSkipped
		}
		return m, waitForEvent(m.eventCh)

	case events.RunFinishedMsg:
		m.done = true
		m.planning = false
		m.succeeded = msg.Succeeded
		m.failed = msg.Failed
		m.skipped = msg.Skipped
		m.cancelled = msg.Cancelled
		m.exitErr = msg.Err
		m.elapsed = time.Since(m.startTime)
		if msg.Err != nil {
			m.addLine(errStyle.Render(fmt.Sprintf("run failed: %v", msg.Err)))
		}
		return m, waitForEvent(m.eventCh)

	case events.ProgressMsg:
		m.addLine(dimStyle.Render(msg.Line))
		return m, waitForEvent(m.eventCh)

	case runClosedMsg:
		m.done = true
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		if m.done {
			return m, tea.Quit
		}
		return m, nil
	case "ctrl+c":
		if m.done || m.stopping {
			return m, tea.Quit
		}
		// First Ctrl+C: cooperative cancel; agents already running finish.
		m.stopping = true
		if m.stop != nil {
			m.stop()
		}
		m.addLine(warnStyle.Render("Cancelling run... (press Ctrl+C again to force quit)"))
		return m, nil
	case "j", "down":
		m.scrollDown(1)
	case "k", "up":
		m.scrollUp(1)
	case "pgdown", "ctrl+d":
		m.scrollDown(m.logViewportHeight() / 2)
	case "pgup", "ctrl+u":
		m.scrollUp(m.logViewportHeight() / 2)
	case "home", "g":
		m.scrollPos = 0
		m.autoScroll = false
	case "end", "G":
		m.scrollPos = m.maxScroll()
		m.autoScroll = true
	}
	return m, nil
}

// row returns a mutable pointer into the roster, or nil for unknown IDs.
func (m *Model) row(agentID string) *agentRow {
	i, ok := m.index[agentID]
	if !ok {
		return nil
	}
	return &m.rows[i]
}

func (m *Model) addLine(line string) {
	m.lines = append(m.lines, line)
	if len(m.lines) > maxLogLines {
		m.lines = m.lines[len(m.lines)-maxLogLines:]
	}
	if m.autoScroll {
		m.scrollPos = m.maxScroll()
	}
}

func (m *Model) scrollDown(n int) {
	ms := m.maxScroll()
	m.scrollPos += n
	if m.scrollPos >= ms {
		m.scrollPos = ms
		m.autoScroll = true
	}
}

func (m *Model) scrollUp(n int) {
	m.scrollPos -= n
	if m.scrollPos < 0 {
		m.scrollPos = 0
	}
	m.autoScroll = false
}

func (m Model) maxScroll() int {
	ms := len(m.lines) - m.logViewportHeight()
	if ms < 0 {
		return 0
	}
	return ms
}

// logViewportHeight is the number of log lines that fit under the fixed
// chrome: header, task, run line, section titles, agent rows, status bar.
func (m Model) logViewportHeight() int {
	chrome := 8 + len(m.rows)
	h := m.height - chrome
	if h < 3 {
		return 3
	}
	return h
}
