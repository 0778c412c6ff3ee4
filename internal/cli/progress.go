package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"

	"github.com/jmbento/omnicall-ai/internal/client"
)

const pollInterval = time.Second

// Theme holds the colors of the progress view.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"),
	Success: lipgloss.Color("#00D787"),
	Error:   lipgloss.Color("#FF005F"),
	Hint:    lipgloss.Color("#6C6C6C"),
}

func (t Theme) style(c lipgloss.Color) lipgloss.Style { return lipgloss.NewStyle().Foreground(c) }

type tickMsg time.Time

// pollMsg carries one round of job snapshots, in the order of the view.
type pollMsg struct {
	jobs []*client.Job
	err  error
}

// progressModel polls a set of ingestion jobs and renders one bar per job.
type progressModel struct {
	client   *client.Client
	labels   []string
	jobs     []*client.Job
	bar      progress.Model
	theme    Theme
	started  time.Time
	done     bool
	quitting bool
	err      error
}

func newProgressModel(c *client.Client, labels []string, jobs []*client.Job) progressModel {
	return progressModel{
		client:  c,
		labels:  labels,
		jobs:    jobs,
		bar:     progress.New(progress.WithDefaultBlend(), progress.WithWidth(32)),
		theme:   defaultTheme,
		started: time.Now(),
	}
}

func (m progressModel) Init() tea.Cmd {
	return tea.Batch(tick(), m.bar.Init())
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		if s := msg.String(); s == "ctrl+c" || s == "q" {
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		return m, m.poll()

	case pollMsg:
		if msg.err != nil {
			m.err = fmt.Errorf("fetch job status: %w", msg.err)
			m.done = true
			return m, tea.Quit
		}
		m.jobs = msg.jobs
		if finished(m.jobs) {
			m.done = true
			m.err = failures(m.labels, m.jobs)
			return m, tea.Quit
		}
		return m, tick()

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.bar, cmd = m.bar.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m progressModel) View() tea.View {
	return tea.NewView(m.render())
}

func (m progressModel) render() string {
	var b strings.Builder
	for i, job := range m.jobs {
		b.WriteString(m.line(m.labels[i], job))
		b.WriteByte('\n')
	}

	switch {
	case m.quitting:
		ids := make([]string, 0, len(m.jobs))
		for _, j := range m.jobs {
			if !terminal(j) {
				ids = append(ids, j.ID)
			}
		}
		b.WriteString(m.theme.style(m.theme.Hint).Italic(true).Render(
			fmt.Sprintf("\nStill running on the server: %s\nUse 'omnicall jobs <id>' to check status.\n", strings.Join(ids, ", "))))
	case m.done && m.err == nil:
		b.WriteString(m.theme.style(m.theme.Success).Bold(true).Render(
			fmt.Sprintf("\n✓ %d chunks stored in %s\n", chunksStored(m.jobs), time.Since(m.started).Round(time.Second))))
	case !m.done:
		b.WriteString(m.theme.style(m.theme.Hint).Italic(true).Render("Press Ctrl+C to continue in background"))
		b.WriteByte('\n')
	}
	return b.String()
}

func (m progressModel) line(label string, job *client.Job) string {
	if job == nil {
		return fmt.Sprintf("%-24s %s", label, m.theme.style(m.theme.Error).Render("gone"))
	}
	switch job.Status {
	case "completed":
		chunks := 0
		if job.Result != nil {
			chunks = job.Result.ChunksCreated
		}
		return fmt.Sprintf("%-24s %s %d chunks", label, m.theme.style(m.theme.Success).Render("✓"), chunks)
	case "failed":
		return fmt.Sprintf("%-24s %s %s", label, m.theme.style(m.theme.Error).Bold(true).Render("✗"), job.Error)
	}
	var pct float64
	if job.Total > 0 {
		pct = float64(job.Progress) / float64(job.Total)
	}
	return fmt.Sprintf("%-24s %s %s", label, m.theme.style(m.theme.Status).Render("["+job.Status+"]"), m.bar.ViewAs(pct))
}

// poll runs as a tea.Cmd so Update never blocks on the network.
func (m progressModel) poll() tea.Cmd {
	jobs := append([]*client.Job(nil), m.jobs...)
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		for i, j := range jobs {
			if j == nil || terminal(j) {
				continue
			}
			fresh, err := m.client.GetJob(ctx, j.ID)
			if err != nil {
				return pollMsg{err: err}
			}
			jobs[i] = fresh
		}
		return pollMsg{jobs: jobs}
	}
}

func tick() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func terminal(j *client.Job) bool {
	return j == nil || j.Status == "completed" || j.Status == "failed"
}

func finished(jobs []*client.Job) bool {
	for _, j := range jobs {
		if !terminal(j) {
			return false
		}
	}
	return true
}

func chunksStored(jobs []*client.Job) int {
	n := 0
	for _, j := range jobs {
		if j != nil && j.Result != nil {
			n += j.Result.ChunksCreated
		}
	}
	return n
}

// failures joins the errors of failed or vanished jobs.
func failures(labels []string, jobs []*client.Job) error {
	var errs []error
	for i, j := range jobs {
		switch {
		case j == nil:
			errs = append(errs, fmt.Errorf("%s: job no longer exists on the server", labels[i]))
		case j.Status == "failed":
			msg := j.Error
			if msg == "" {
				msg = "unknown error"
			}
			errs = append(errs, fmt.Errorf("%s: %s", labels[i], msg))
		}
	}
	return errors.Join(errs...)
}

// RunJobProgress shows one progress bar per job until all of them finish.
// Ctrl+C leaves the jobs running on the server and returns nil; failed jobs
// are returned as one joined error.
func RunJobProgress(c *client.Client, labels []string, jobs []*client.Job) error {
	if len(jobs) == 0 {
		return nil
	}
	final, err := tea.NewProgram(newProgressModel(c, labels, jobs)).Run()
	if err != nil {
		return fmt.Errorf("progress UI error: %w", err)
	}
	if m, ok := final.(progressModel); ok && !m.quitting {
		return m.err
	}
	return nil
}
