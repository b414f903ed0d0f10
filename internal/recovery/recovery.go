package recovery

import (
	"time"

	"github.com/glebk/herb-bot/internal/domain"
)

const day = 24 * time.Hour

// Duration is a coarse elapsed time split into whole days and hours
type Duration struct {
	Days  int
	Hours int
}

func split(d time.Duration) Duration {
	if d < 0 {
		return Duration{}
	}
	return Duration{
		Days:  int(d / day),
		Hours: int((d % day) / time.Hour),
	}
}

// Milestone is a health benefit reached after a sober period
type Milestone struct {
	After    time.Duration
	Label    string
	Benefit  string
	Achieved bool
}

var milestones = []Milestone{
	{After: 20 * time.Minute, Label: "20 mins", Benefit: "Heart rate drops to normal"},
	{After: 24 * time.Hour, Label: "24 hours", Benefit: "Carbon monoxide cleared from blood"},
	{After: 48 * time.Hour, Label: "48 hours", Benefit: "Taste and smell improve"},
	{After: 72 * time.Hour, Label: "72 hours", Benefit: "Bronchial tubes relax, energy increases"},
	{After: 14 * day, Label: "2 weeks", Benefit: "Circulation improves significantly"},
	{After: 30 * day, Label: "1 month", Benefit: "Coughing and shortness of breath decrease"},
}

// Milestones returns the health timeline with achievement evaluated
// against the sober duration.
func Milestones(sober time.Duration) []Milestone {
	out := make([]Milestone, len(milestones))
	for i, m := range milestones {
		m.Achieved = sober >= m.After
		out[i] = m
	}
	return out
}

// Report holds the recovery metrics
type Report struct {
	LastSession      *time.Time
	SoberFor         time.Duration
	Sober            Duration
	LifetimeSpend    float64
	ProjectedSavings float64
	Milestones       []Milestone
}

// Compute derives the recovery report from all sessions
func Compute(sessions []domain.Session, rate float64, now time.Time) Report {
	var report Report

	if last, ok := Latest(sessions); ok {
		report.LastSession = &last
		if elapsed := now.Sub(last); elapsed > 0 {
			report.SoberFor = elapsed
		}
	}
	report.Sober = split(report.SoberFor)

	for _, s := range sessions {
		report.LifetimeSpend += s.CostAt(rate)
	}
	report.ProjectedSavings = projectAnnual(sessions, report.LifetimeSpend)
	report.Milestones = Milestones(report.SoberFor)

	return report
}

// Latest returns the most recent session timestamp
func Latest(sessions []domain.Session) (time.Time, bool) {
	if len(sessions) == 0 {
		return time.Time{}, false
	}
	latest := sessions[0].Timestamp
	for _, s := range sessions[1:] {
		if s.Timestamp.After(latest) {
			latest = s.Timestamp
		}
	}
	return latest, true
}

// SoberTime returns the whole days and hours since the last session, zero
// when nothing was logged.
func SoberTime(sessions []domain.Session, now time.Time) Duration {
	last, ok := Latest(sessions)
	if !ok {
		return Duration{}
	}
	return split(now.Sub(last))
}

// projectAnnual extrapolates yearly spend from the lifetime average. A single
// session is assumed to repeat weekly.
func projectAnnual(sessions []domain.Session, lifetime float64) float64 {
	switch len(sessions) {
	case 0:
		return 0
	case 1:
		return lifetime * 52
	}

	oldest, newest := sessions[0].Timestamp, sessions[0].Timestamp
	for _, s := range sessions[1:] {
		if s.Timestamp.Before(oldest) {
			oldest = s.Timestamp
		}
		if s.Timestamp.After(newest) {
			newest = s.Timestamp
		}
	}

	activeDays := max(1, float64(newest.Sub(oldest))/float64(day))
	return lifetime / activeDays * 365
}
