package domain

import "time"

// GoalPeriod represents the period a goal is counted over
type GoalPeriod string

const (
	GoalPeriodDay  GoalPeriod = "day"
	GoalPeriodWeek GoalPeriod = "week"
)

// Toggle returns the other period
func (p GoalPeriod) Toggle() GoalPeriod {
	if p == GoalPeriodWeek {
		return GoalPeriodDay
	}
	return GoalPeriodWeek
}

// GoalChoices are the goals offered during onboarding
var GoalChoices = []string{"Track usage", "Cut back", "Take a T-break", "Quit"}

// Preferences represents the single configuration record of a device
type Preferences struct {
	Onboarded    bool       `json:"hasOnboarded"`
	Premium      bool       `json:"hasPremium"`
	DailyGoal    int        `json:"dailyGoal"`
	WeeklyGoal   int        `json:"weeklyGoal"`
	GoalPeriod   GoalPeriod `json:"goalPeriod"`
	CostPerGram  float64    `json:"costPerGram"`
	SelectedGoal string     `json:"selectedGoal"`
	DarkMode     bool       `json:"isDarkMode"`
	TBreakTarget *time.Time `json:"tBreakTarget"`
	Quitting     bool       `json:"isQuitting"`
}

// DefaultPreferences returns the record used on first run
func DefaultPreferences() Preferences {
	return Preferences{
		DailyGoal:    3,
		WeeklyGoal:   15,
		GoalPeriod:   GoalPeriodDay,
		CostPerGram:  10,
		SelectedGoal: "Track usage",
	}
}

// ActiveGoal returns the goal for the current period
func (p Preferences) ActiveGoal() int {
	if p.GoalPeriod == GoalPeriodWeek {
		return p.WeeklyGoal
	}
	return p.DailyGoal
}

// PreferencesPatch is a partial update of Preferences. Nil fields are left
// untouched; ClearTBreakTarget removes the tolerance break target.
type PreferencesPatch struct {
	Onboarded         *bool
	Premium           *bool
	DailyGoal         *int
	WeeklyGoal        *int
	GoalPeriod        *GoalPeriod
	CostPerGram       *float64
	SelectedGoal      *string
	DarkMode          *bool
	TBreakTarget      *time.Time
	ClearTBreakTarget bool
	Quitting          *bool
}

// Apply merges the patch into a copy of the preferences
func (p Preferences) Apply(patch PreferencesPatch) Preferences {
	if patch.Onboarded != nil {
		p.Onboarded = *patch.Onboarded
	}
	if patch.Premium != nil {
		p.Premium = *patch.Premium
	}
	if patch.DailyGoal != nil {
		p.DailyGoal = *patch.DailyGoal
	}
	if patch.WeeklyGoal != nil {
		p.WeeklyGoal = *patch.WeeklyGoal
	}
	if patch.GoalPeriod != nil {
		p.GoalPeriod = *patch.GoalPeriod
	}
	if patch.CostPerGram != nil {
		p.CostPerGram = *patch.CostPerGram
	}
	if patch.SelectedGoal != nil {
		p.SelectedGoal = *patch.SelectedGoal
	}
	if patch.DarkMode != nil {
		p.DarkMode = *patch.DarkMode
	}
	if patch.ClearTBreakTarget {
		p.TBreakTarget = nil
	} else if patch.TBreakTarget != nil {
		target := *patch.TBreakTarget
		p.TBreakTarget = &target
	}
	if patch.Quitting != nil {
		p.Quitting = *patch.Quitting
	}
	return p
}

// Ptr returns a pointer to v, for building patches
func Ptr[T any](v T) *T {
	return &v
}

// PreferencesRepository defines the storage of the preferences document
type PreferencesRepository interface {
	Load(scope string) (Preferences, error)
	Save(scope string, patch PreferencesPatch) (Preferences, error)
}
