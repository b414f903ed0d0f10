package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/glebk/herb-bot/internal/recovery"
	"github.com/glebk/herb-bot/internal/stats"
	"github.com/glebk/herb-bot/internal/view"
)

// Theme is the set of styles used by terminal reports
type Theme struct {
	Pane  lipgloss.Style
	Title lipgloss.Style
	Muted lipgloss.Style
	Bar   lipgloss.Style
	Hot   lipgloss.Style
}

// NewTheme returns the light or dark palette bound to w's color profile
func NewTheme(w io.Writer, dark bool) Theme {
	r := lipgloss.NewRenderer(w)

	text, muted, accent, border, hot := lipgloss.Color("#1b4332"), lipgloss.Color("#52796f"),
		lipgloss.Color("#2d6a4f"), lipgloss.Color("#95d5b2"), lipgloss.Color("#d00000")
	if dark {
		text, muted, accent, border, hot = lipgloss.Color("#cdd6f4"), lipgloss.Color("#a6adc8"),
			lipgloss.Color("#a6e3a1"), lipgloss.Color("#45475a"), lipgloss.Color("#fab387")
	}

	return Theme{
		Pane: r.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(border).
			Foreground(text).
			Padding(0, 1),
		Title: r.NewStyle().Foreground(accent).Bold(true),
		Muted: r.NewStyle().Foreground(muted),
		Bar:   r.NewStyle().Foreground(accent),
		Hot:   r.NewStyle().Foreground(hot).Bold(true),
	}
}

const barWidth = 20

// Stats writes a statistics summary
func Stats(w io.Writer, t Theme, s stats.Summary) error {
	var sb strings.Builder
	sb.WriteString(t.Title.Render(s.Title) + "\n\n")

	peak := s.MaxBucket()
	for _, b := range s.Buckets {
		n := b.Count * barWidth / peak
		fmt.Fprintf(&sb, "%-5s %s %d\n", b.Name, t.Bar.Render(strings.Repeat("█", n))+strings.Repeat(" ", barWidth-n), b.Count)
	}

	fmt.Fprintf(&sb, "\nSessions %d   Avg/day %.1f   Busiest day %d\n", s.TotalSessions, s.AvgPerDay, s.BusiestDay)
	fmt.Fprintf(&sb, "Total %sg   Spent %s\n", strconv.FormatFloat(s.TotalGrams, 'f', -1, 64), view.Money(s.TotalCost))

	if len(s.Methods) > 0 {
		sb.WriteString("\n" + t.Title.Render("Methods") + "\n")
		for _, g := range s.Methods {
			fmt.Fprintf(&sb, "  %-8s %d\n", g.Label, g.Count)
		}
	}
	if len(s.Strains) > 0 {
		sb.WriteString("\n" + t.Title.Render("Strains") + t.Muted.Render(fmt.Sprintf(" (%d unique)", s.UniqueStrains)) + "\n")
		for _, g := range s.Strains {
			fmt.Fprintf(&sb, "  %s %d\n", g.Label, g.Count)
		}
	}

	_, err := fmt.Fprintln(w, t.Pane.Render(strings.TrimRight(sb.String(), "\n")))
	return err
}

// Recovery writes a recovery report
func Recovery(w io.Writer, t Theme, r recovery.Report) error {
	var sb strings.Builder
	sb.WriteString(t.Title.Render("Recovery") + "\n\n")

	if r.LastSession == nil {
		sb.WriteString(t.Muted.Render("No sessions logged yet.") + "\n")
	} else {
		sb.WriteString("Sober for " + t.Hot.Render(view.Duration(r.Sober.Days, r.Sober.Hours)) + "\n")
	}
	fmt.Fprintf(&sb, "Lifetime spend %s\nProjected yearly savings %s\n\n", view.Money(r.LifetimeSpend), view.Money(r.ProjectedSavings))

	for _, m := range r.Milestones {
		mark := t.Muted.Render("[ ]")
		if m.Achieved {
			mark = t.Bar.Render("[x]")
		}
		fmt.Fprintf(&sb, "%s %-9s %s\n", mark, m.Label, t.Muted.Render(m.Benefit))
	}

	_, err := fmt.Fprintln(w, t.Pane.Render(strings.TrimRight(sb.String(), "\n")))
	return err
}
