package view

import (
	"fmt"
	"time"

	"github.com/glebk/herb-bot/internal/domain"
	"github.com/glebk/herb-bot/internal/recovery"
)

// Mode is what governs the main screen
type Mode int

const (
	ModeTracking Mode = iota
	ModeToleranceBreak
	ModeQuitting
)

func (m Mode) String() string {
	switch m {
	case ModeQuitting:
		return "quitting"
	case ModeToleranceBreak:
		return "tolerance-break"
	default:
		return "tracking"
	}
}

// ResolveMode picks the presentation mode. Quitting takes precedence over
// an active tolerance break; a break whose target has passed is inactive.
func ResolveMode(prefs domain.Preferences, now time.Time) Mode {
	if prefs.Quitting {
		return ModeQuitting
	}
	if recovery.TimeLeft(prefs.TBreakTarget, now) != nil {
		return ModeToleranceBreak
	}
	return ModeTracking
}

var breakQuotes = []string{
	"Your tolerance is resetting...",
	"Think of the cash you're saving!",
	"Clear head, vivid dreams.",
	"You're doing great, friend.",
	"Stay strong, it's worth it.",
	"Resetting the system...",
}

var recoveryQuotes = []string{
	"One day at a time.",
	"Freedom feels good.",
	"You are stronger than the urge.",
	"Building a better life, daily.",
	"Proud of your progress.",
	"Keep going, you're doing amazing.",
}

// Home is the derived state of the main screen
type Home struct {
	Mode           Mode
	Title          string
	Subtitle       string
	ActiveGoal     int
	CurrentCount   int
	CountLabel     string
	LastSessionAgo string
	MascotLevel    int
	Message        string
	OverLimit      bool
	ShowUndo       bool
	ShowSlipUp     bool
	ButtonLabel    string
	Sober          *recovery.Duration
	TimeLeft       *recovery.Countdown
}

// BuildHome derives the main screen from the current state
func BuildHome(sessions []domain.Session, prefs domain.Preferences, now time.Time) Home {
	h := Home{
		Mode:       ResolveMode(prefs, now),
		ActiveGoal: prefs.ActiveGoal(),
		TimeLeft:   recovery.TimeLeft(prefs.TBreakTarget, now),
	}

	h.CurrentCount = PeriodCount(sessions, prefs.GoalPeriod, now)
	h.OverLimit = h.CurrentCount > h.ActiveGoal
	if prefs.GoalPeriod == domain.GoalPeriodWeek {
		h.CountLabel = "Sessions This Week"
	} else {
		h.CountLabel = "Sessions Today"
	}

	if last, ok := recovery.Latest(sessions); ok {
		mins := int(now.Sub(last) / time.Minute)
		if mins < 60 {
			h.LastSessionAgo = fmt.Sprintf("%dm ago", mins)
		} else {
			h.LastSessionAgo = fmt.Sprintf("%dh ago", mins/60)
		}
	}

	switch h.Mode {
	case ModeQuitting:
		h.Title = "Recovery Mode"
		h.Subtitle = "One Day at a Time"
		sober := recovery.SoberTime(sessions, now)
		h.Sober = &sober
		h.ShowSlipUp = true
	case ModeToleranceBreak:
		h.Title = "T-Break Active"
		h.Subtitle = "Stay Strong"
		h.ButtonLabel = "On Break"
	default:
		if prefs.GoalPeriod == domain.GoalPeriodWeek {
			h.Title = "Last 7 Days"
		} else {
			h.Title = now.Format("Monday, Jan 2")
		}
		h.Subtitle = "Hello, Friend"
		h.ButtonLabel = "Tap or Hold"
		h.ShowUndo = h.CurrentCount > 0
	}

	h.MascotLevel = mascotLevel(h)
	h.Message = coachMessage(h, prefs.GoalPeriod, now)

	return h
}

// PeriodCount counts sessions in the goal period: today, or the last seven
// calendar days including today.
func PeriodCount(sessions []domain.Session, period domain.GoalPeriod, now time.Time) int {
	loc := now.Location()
	count := 0
	if period == domain.GoalPeriodWeek {
		start := time.Date(now.Year(), now.Month(), now.Day()-6, 0, 0, 0, 0, loc)
		for _, s := range sessions {
			if !s.Timestamp.Before(start) {
				count++
			}
		}
		return count
	}

	y, m, d := now.Date()
	for _, s := range sessions {
		sy, sm, sd := s.Timestamp.In(loc).Date()
		if sy == y && sm == m && sd == d {
			count++
		}
	}
	return count
}

func mascotLevel(h Home) int {
	switch {
	case h.Mode != ModeTracking:
		return 1
	case h.CurrentCount == 0:
		return 1
	case h.CurrentCount > h.ActiveGoal:
		return 3
	default:
		return 2
	}
}

func coachMessage(h Home, period domain.GoalPeriod, now time.Time) string {
	switch h.Mode {
	case ModeQuitting:
		return recoveryQuotes[now.Hour()%len(recoveryQuotes)]
	case ModeToleranceBreak:
		return breakQuotes[now.Hour()%len(breakQuotes)]
	}

	switch {
	case h.CurrentCount == 0:
		return fmt.Sprintf("Ready to track this %s?", period)
	case h.CurrentCount < h.ActiveGoal:
		return "You're chilling"
	case h.CurrentCount == h.ActiveGoal:
		return "Limit reached. Take a breath of AIR?"
	default:
		return "Dude, I'm about to green out. STOP"
	}
}
