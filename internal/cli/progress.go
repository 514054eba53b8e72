package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/matzehuels/imgembed/pkg/observability"
)

// progressBarWidth is the number of cells in the progress bar.
const progressBarWidth = 30

var (
	progressFilledStyle = lipgloss.NewStyle().Foreground(colorCyan)
	progressEmptyStyle  = lipgloss.NewStyle().Foreground(colorDim)
)

// =============================================================================
// Messages
// =============================================================================

type (
	discoverMsg struct{ total int }
	startMsg    struct{ source string }
	completeMsg struct{ fallback bool }
	finishedMsg struct{}
	tickMsg     time.Time
)

// =============================================================================
// ProgressModel - Preprocess progress view
// =============================================================================

// ProgressModel renders the progress of a tree preprocess. It is fed by
// resolve hooks and quits when the run finishes.
type ProgressModel struct {
	Total     int
	Done      int
	Fallbacks int
	Current   string
	frame     int
	finished  bool
}

func (m ProgressModel) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case discoverMsg:
		m.Total = msg.total
	case startMsg:
		m.Current = msg.source
	case completeMsg:
		m.Done++
		if msg.fallback {
			m.Fallbacks++
		}
	case finishedMsg:
		m.finished = true
		return m, tea.Quit
	case tickMsg:
		m.frame++
		return m, tick()
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m ProgressModel) View() string {
	if m.finished {
		return ""
	}
	var b strings.Builder
	b.WriteString(styleIconSpinner.Render(spinnerFrames[m.frame%len(spinnerFrames)]))
	b.WriteString(" ")
	b.WriteString(m.bar())
	b.WriteString(" ")
	b.WriteString(StyleNumber.Render(fmt.Sprintf("%d/%d", m.Done, m.Total)))
	if m.Fallbacks > 0 {
		b.WriteString(StyleDim.Render(" · "))
		b.WriteString(StyleWarning.Render(fmt.Sprintf("%d fallback", m.Fallbacks)))
	}
	if m.Current != "" {
		b.WriteString("  ")
		b.WriteString(StyleDim.Render(truncate(m.Current, 48)))
	}
	return b.String()
}

func (m ProgressModel) bar() string {
	filled := 0
	if m.Total > 0 {
		filled = min(progressBarWidth, m.Done*progressBarWidth/m.Total)
	}
	return progressFilledStyle.Render(strings.Repeat("█", filled)) +
		progressEmptyStyle.Render(strings.Repeat("░", progressBarWidth-filled))
}

// truncate shortens s to n runes, keeping the tail where file names live.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return "…" + string(r[len(r)-n+1:])
}

// =============================================================================
// Hooks
// =============================================================================

// progressHooks forwards resolve events to a running program.
type progressHooks struct {
	program *tea.Program
}

func (h progressHooks) OnDiscover(ctx context.Context, count int) {
	h.program.Send(discoverMsg{total: count})
}

func (h progressHooks) OnResolveStart(ctx context.Context, kind, source string) {
	h.program.Send(startMsg{source: source})
}

func (h progressHooks) OnResolveComplete(ctx context.Context, kind, source string, d time.Duration, fallback bool) {
	h.program.Send(completeMsg{fallback: fallback})
}

// runWithProgress runs fn while a progress view draws to w. The view is
// driven by resolve hooks registered for the duration of fn.
func runWithProgress(ctx context.Context, w io.Writer, fn func(context.Context) error) error {
	program := tea.NewProgram(ProgressModel{},
		tea.WithContext(ctx),
		tea.WithOutput(w),
		tea.WithInput(nil),
	)
	observability.SetResolveHooks(progressHooks{program: program})
	defer observability.SetResolveHooks(observability.NoopResolveHooks{})

	errc := make(chan error, 1)
	go func() {
		err := fn(ctx)
		program.Send(finishedMsg{})
		errc <- err
	}()

	if _, err := program.Run(); err != nil {
		loggerFromContext(ctx).Debug("progress view stopped", "err", err)
	}
	return <-errc
}
