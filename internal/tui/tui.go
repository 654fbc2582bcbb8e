// Package tui renders a live verification as it moves through the
// pipeline: a spinner, a stage checklist, and a result card once the
// run finishes.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/toorcn/checkmate/internal/pipeline"
	"github.com/toorcn/checkmate/internal/ratelimit"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#58a6ff"))
	urlStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#8b949e"))
	doneStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#7ee787"))
	degradedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#d29922"))
	failedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#f85149"))
	skippedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8b949e"))
	labelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#8b949e")).Width(12)
	cardStyle     = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#30363d")).
			Padding(0, 1).
			MarginTop(1)
)

var verdictColors = map[string]lipgloss.Color{
	"verified":       "#7ee787",
	"partially_true": "#a5d6ff",
	"satire":         "#d2a8ff",
	"opinion":        "#c9d1d9",
	"unverified":     "#8b949e",
	"outdated":       "#d29922",
	"exaggerated":    "#ffa657",
	"rumor":          "#ffa657",
	"misleading":     "#ff7b72",
	"conspiracy":     "#f85149",
	"false":          "#f85149",
	"debunked":       "#f85149",
}

// stageOrder fixes the checklist rows.
var stageOrder = []pipeline.Stage{
	pipeline.StageExtract,
	pipeline.StageTranscribe,
	pipeline.StageFactCheck,
	pipeline.StageScore,
}

var stageLabels = map[pipeline.Stage]string{
	pipeline.StageExtract:    "Extract content",
	pipeline.StageTranscribe: "Transcribe media",
	pipeline.StageFactCheck:  "Fact-check claim",
	pipeline.StageScore:      "Score credibility",
}

type stageMsg struct {
	stage  pipeline.Stage
	status pipeline.StageStatus
}

type doneMsg struct {
	result *pipeline.Result
	err    error
}

type model struct {
	url     string
	spinner spinner.Model
	status  map[pipeline.Stage]pipeline.StageStatus
	result  *pipeline.Result
	err     error
	done    bool
	quit    bool
}

func newModel(url string) model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#58a6ff"))
	return model{
		url:     url,
		spinner: sp,
		status:  make(map[pipeline.Stage]pipeline.StageStatus),
	}
}

func (m model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.quit = true
			return m, tea.Quit
		}
	case stageMsg:
		m.status[msg.stage] = msg.status
		return m, nil
	case doneMsg:
		m.result = msg.result
		m.err = msg.err
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("checkmate"))
	b.WriteString("  ")
	b.WriteString(urlStyle.Render(m.url))
	b.WriteString("\n\n")

	for _, stage := range stageOrder {
		b.WriteString("  ")
		b.WriteString(m.stageRow(stage))
		b.WriteString("\n")
	}

	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(failedStyle.Render("✗ " + m.err.Error()))
		b.WriteString("\n")
	} else if m.result != nil {
		b.WriteString(m.resultCard())
		b.WriteString("\n")
	}
	return b.String()
}

func (m model) stageRow(stage pipeline.Stage) string {
	label := stageLabels[stage]
	switch m.status[stage] {
	case pipeline.StatusRunning:
		return m.spinner.View() + " " + label
	case pipeline.StatusDone:
		return doneStyle.Render("✓") + " " + label
	case pipeline.StatusDegraded:
		return degradedStyle.Render("~") + " " + label + skippedStyle.Render(" (degraded)")
	case pipeline.StatusSkipped:
		return skippedStyle.Render("- " + label + " (skipped)")
	case pipeline.StatusFailed:
		return failedStyle.Render("✗ " + label)
	}
	return skippedStyle.Render("· " + label)
}

func (m model) resultCard() string {
	res := m.result
	var rows []string

	if fc := res.FactCheck; fc != nil {
		color, ok := verdictColors[fc.Verdict]
		if !ok {
			color = "#c9d1d9"
		}
		verdictStyle := lipgloss.NewStyle().Bold(true).Foreground(color)
		rows = append(rows,
			labelStyle.Render("Verdict")+verdictStyle.Render(strings.ToUpper(fc.Verdict)),
			labelStyle.Render("Confidence")+fmt.Sprintf("%.0f%%", fc.Confidence),
		)
		if len(fc.Flags) > 0 {
			rows = append(rows, labelStyle.Render("Flags")+strings.Join(fc.Flags, ", "))
		}
		if pb := fc.PoliticalBias; pb != nil && pb.RegionScore != nil {
			rows = append(rows, labelStyle.Render("Bias")+fmt.Sprintf("%s (%d/100)", pb.Direction, *pb.RegionScore))
		}
	}
	if res.CreatorCredibilityRating != nil {
		rows = append(rows, labelStyle.Render("Credibility")+fmt.Sprintf("%.1f / 10", *res.CreatorCredibilityRating))
	}
	for i, f := range res.Factors {
		label := ""
		if i == 0 {
			label = "Factors"
		}
		rows = append(rows, labelStyle.Render(label)+f)
	}
	rows = append(rows, labelStyle.Render("Took")+res.Duration.Round(10*time.Millisecond).String())

	return cardStyle.Render(strings.Join(rows, "\n"))
}

// Run executes one verification while rendering progress. It returns
// the pipeline's result once the program exits; quitting early cancels
// the run.
func Run(ctx context.Context, p *pipeline.Pipeline, rawURL string, id ratelimit.Identity) (*pipeline.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	prog := tea.NewProgram(newModel(rawURL))
	go func() {
		res, err := p.Process(ctx, rawURL, id, func(stage pipeline.Stage, status pipeline.StageStatus) {
			prog.Send(stageMsg{stage: stage, status: status})
		})
		prog.Send(doneMsg{result: res, err: err})
	}()

	final, err := prog.Run()
	if err != nil {
		return nil, err
	}
	fm := final.(model)
	if fm.quit && !fm.done {
		return nil, context.Canceled
	}
	return fm.result, fm.err
}
