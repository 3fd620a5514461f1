// Package tui is the terminal shell for the guided cleaning flow.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"fieldline/internal/workflow"
)

var (
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	stepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	timerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	photoStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	boxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50"))
)

// SampleFeed carries elapsed values from the workflow sampler into the
// program. Push never blocks; a slow UI skips samples.
type SampleFeed chan time.Duration

func NewSampleFeed() SampleFeed { return make(SampleFeed, 1) }

func (f SampleFeed) Push(d time.Duration) {
	select {
	case f <- d:
	default:
	}
}

func (f SampleFeed) wait() tea.Cmd {
	return func() tea.Msg { return SampleMsg(<-f) }
}

type SampleMsg time.Duration

type transitionMsg struct {
	action string
	err    error
}

// Cleaning drives one workflow.Workflow from the keyboard.
type Cleaning struct {
	ctx   context.Context
	flow  *workflow.Workflow
	title string
	feed  SampleFeed
	now   func() time.Time

	input  textinput.Model
	spin   spinner.Model
	busy   bool
	status string
	err    error

	completed bool
	abandoned bool
}

func NewCleaning(ctx context.Context, flow *workflow.Workflow, title string, feed SampleFeed, now func() time.Time) Cleaning {
	ti := textinput.New()
	ti.Placeholder = "path or uri of the photo, Enter to add"
	ti.Prompt = "photo> "
	ti.CharLimit = 512
	ti.Width = 60
	if now == nil {
		now = time.Now
	}
	return Cleaning{
		ctx:   ctx,
		flow:  flow,
		title: title,
		feed:  feed,
		now:   now,
		input: ti,
		spin:  spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
}

// Completed reports whether the flow finished and the entity was completed.
func (m Cleaning) Completed() bool { return m.completed }

// Abandoned reports whether the user closed the flow early.
func (m Cleaning) Abandoned() bool { return m.abandoned }

func (m Cleaning) Init() tea.Cmd {
	if m.feed == nil {
		return nil
	}
	return m.feed.wait()
}

func (m Cleaning) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case SampleMsg:
		// The view reads elapsed from the flow; the message only triggers a
		// redraw and re-arms the listener.
		if m.completed || m.abandoned {
			return m, nil
		}
		return m, m.feed.wait()
	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	case transitionMsg:
		m.busy = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		switch msg.action {
		case "start":
			m.input.Blur()
			m.status = "cleaning started"
		case "complete":
			m.completed = true
			m.status = "task completed"
			return m, tea.Quit
		}
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Cleaning) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		m.flow.Abandon()
		m.abandoned = true
		return m, tea.Quit
	}
	if m.busy {
		return m, nil
	}
	step := m.flow.Step()
	switch step {
	case workflow.StepInstructions:
		if msg.Type == tea.KeyEnter || msg.String() == "n" {
			m.err = m.flow.Next()
			return m, m.input.Focus()
		}
	case workflow.StepBeforePhotos, workflow.StepAfterPhotos:
		switch msg.Type {
		case tea.KeyEnter:
			m.addPhoto(step)
			return m, nil
		case tea.KeyCtrlD:
			m.removeLast(step)
			return m, nil
		case tea.KeyCtrlS:
			return m.transition(step)
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	case workflow.StepCleaning:
		if msg.Type == tea.KeyEnter || msg.String() == "d" {
			if m.err = m.flow.FinishCleaning(); m.err == nil {
				m.status = "cleaning finished, add after photos"
			}
			return m, m.input.Focus()
		}
	}
	return m, nil
}

func (m *Cleaning) addPhoto(step workflow.Step) {
	uri := strings.TrimSpace(m.input.Value())
	if uri == "" {
		m.err = errors.New("enter a photo path first")
		return
	}
	p := workflow.PhotoRef{ID: uuid.NewString(), URI: uri, TakenAt: m.now()}
	if step == workflow.StepBeforePhotos {
		m.err = m.flow.AddBeforePhoto(p)
	} else {
		m.err = m.flow.AddAfterPhoto(p)
	}
	if m.err == nil {
		m.input.Reset()
	}
}

func (m *Cleaning) removeLast(step workflow.Step) {
	v := m.flow.View()
	photos := v.Before
	if step == workflow.StepAfterPhotos {
		photos = v.After
	}
	if len(photos) == 0 {
		return
	}
	m.err = m.flow.RemovePhoto(photos[len(photos)-1].ID)
}

// transition runs the network-backed step change off the update loop.
func (m Cleaning) transition(step workflow.Step) (tea.Model, tea.Cmd) {
	ctx, flow := m.ctx, m.flow
	action, call := "start", flow.StartCleaning
	if step == workflow.StepAfterPhotos {
		action, call = "complete", flow.Complete
	}
	m.busy = true
	m.err = nil
	run := func() tea.Msg { return transitionMsg{action: action, err: call(ctx)} }
	return m, tea.Batch(run, m.spin.Tick)
}

func (m Cleaning) View() string {
	v := m.flow.View()
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n")
	b.WriteString(stepStyle.Render(stepLabel(v.Step)))
	b.WriteString("\n\n")

	switch v.Step {
	case workflow.StepInstructions:
		b.WriteString("1. Take at least one photo of each room before you start.\n")
		b.WriteString("2. Clean; the timer runs until you mark the cleaning done.\n")
		b.WriteString("3. Take photos of the result and complete the task.\n")
	case workflow.StepBeforePhotos, workflow.StepAfterPhotos:
		photos := v.Before
		if v.Step == workflow.StepAfterPhotos {
			photos = v.After
			b.WriteString(timerStyle.Render("Cleaning time " + formatElapsed(v.Elapsed)))
			b.WriteString("\n\n")
		}
		b.WriteString(renderPhotos(photos))
		b.WriteString("\n")
		b.WriteString(m.input.View())
		b.WriteString("\n")
	case workflow.StepCleaning:
		b.WriteString(boxStyle.Render(timerStyle.Render(formatElapsed(v.Elapsed))))
		b.WriteString("\n")
	case workflow.StepCompleted:
		b.WriteString(successStyle.Render("Done."))
		b.WriteString("\n")
	}

	if m.busy {
		b.WriteString("\n" + m.spin.View() + " talking to the service…\n")
	}
	if m.err != nil {
		b.WriteString("\n" + errorStyle.Render(m.err.Error()) + "\n")
	} else if m.status != "" {
		b.WriteString("\n" + helpStyle.Render(m.status) + "\n")
	}
	b.WriteString("\n" + helpStyle.Render(helpLine(v.Step)))
	return b.String()
}

func stepLabel(s workflow.Step) string {
	switch s {
	case workflow.StepInstructions:
		return "Step 1/4 · Instructions"
	case workflow.StepBeforePhotos:
		return "Step 2/4 · Before photos"
	case workflow.StepCleaning:
		return "Step 3/4 · Cleaning"
	case workflow.StepAfterPhotos:
		return "Step 4/4 · After photos"
	}
	return "Completed"
}

func helpLine(s workflow.Step) string {
	switch s {
	case workflow.StepInstructions:
		return "enter: next · esc: close"
	case workflow.StepBeforePhotos:
		return "enter: add photo · ctrl+d: remove last · ctrl+s: start cleaning · esc: close"
	case workflow.StepCleaning:
		return "d: done cleaning · esc: close"
	case workflow.StepAfterPhotos:
		return "enter: add photo · ctrl+d: remove last · ctrl+s: complete · esc: close"
	}
	return ""
}

func renderPhotos(photos []workflow.PhotoRef) string {
	if len(photos) == 0 {
		return photoStyle.Render("no photos yet") + "\n"
	}
	var b strings.Builder
	for i, p := range photos {
		b.WriteString(photoStyle.Render(fmt.Sprintf("%d. %s", i+1, p.URI)))
		b.WriteString("\n")
	}
	return b.String()
}

func formatElapsed(d time.Duration) string {
	d = d.Truncate(time.Second)
	h := int(d / time.Hour)
	mnt := int(d%time.Hour) / int(time.Minute)
	s := int(d%time.Minute) / int(time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", h, mnt, s)
}
