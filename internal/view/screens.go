package view

import (
	"fmt"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/glebk/herb-bot/internal/domain"
)

// Screen identifies what the rendering layer should show
type Screen string

const (
	ScreenOnboarding Screen = "onboarding"
	ScreenPaywall    Screen = "paywall"
	ScreenHome       Screen = "home"
	ScreenStats      Screen = "stats"
	ScreenRecovery   Screen = "recovery"
	ScreenSettings   Screen = "settings"
)

// Tab is a bottom navigation entry
type Tab string

const (
	TabHome     Tab = "home"
	TabStats    Tab = "stats"
	TabSettings Tab = "settings"
)

// Route resolves the screen for a tab. Onboarding gates everything, the
// paywall overlays the tabs, and the stats tab shows recovery while quitting.
func Route(prefs domain.Preferences, tab Tab, showPaywall bool) Screen {
	switch {
	case !prefs.Onboarded:
		if showPaywall {
			return ScreenPaywall
		}
		return ScreenOnboarding
	case showPaywall:
		return ScreenPaywall
	}

	switch tab {
	case TabStats:
		if prefs.Quitting {
			return ScreenRecovery
		}
		return ScreenStats
	case TabSettings:
		return ScreenSettings
	default:
		return ScreenHome
	}
}

// StatsTabLabel is the label of the second navigation entry
func StatsTabLabel(prefs domain.Preferences) string {
	if prefs.Quitting {
		return "❤️ Recovery"
	}
	return "📊 Stats"
}

// Setting keys identify settings rows
const (
	SettingPremium     = "premium"
	SettingQuitting    = "quit"
	SettingStartBreak  = "tbreak"
	SettingCancelBreak = "tbreak_cancel"
	SettingPeriod      = "period"
	SettingGoal        = "goal"
	SettingCost        = "cost"
	SettingDarkMode    = "dark"
	SettingExport      = "export"
	SettingReset       = "reset"
	SettingRestore     = "restore"
)

// SettingsRow is one row of the settings screen
type SettingsRow struct {
	Key      string
	Label    string
	Value    string
	Danger   bool
	Editable bool
}

// SettingsSection groups rows under a title
type SettingsSection struct {
	Title string
	Rows  []SettingsRow
}

// BuildSettings derives the settings screen. Tolerance break and tracking
// sections are hidden in quitting mode.
func BuildSettings(prefs domain.Preferences) []SettingsSection {
	sections := []SettingsSection{
		{Title: "Account", Rows: []SettingsRow{
			{Key: SettingPremium, Label: "Premium Status", Value: onOff(prefs.Premium, "Active", "Free")},
			{Key: SettingRestore, Label: "Restore Purchase"},
		}},
		{Title: "Goals", Rows: []SettingsRow{
			{Key: SettingQuitting, Label: "Recovery Mode (Quit)", Value: onOff(prefs.Quitting, "On", "Off")},
		}},
	}

	if !prefs.Quitting {
		var row SettingsRow
		if prefs.TBreakTarget == nil {
			row = SettingsRow{Key: SettingStartBreak, Label: "Start T-Break", Value: "Set Duration", Editable: true}
		} else {
			row = SettingsRow{Key: SettingCancelBreak, Label: "Cancel Active Break", Value: "End Now", Danger: true}
		}
		sections = append(sections, SettingsSection{Title: "Tolerance Break", Rows: []SettingsRow{row}})

		goalLabel := "Daily Goal"
		if prefs.GoalPeriod == domain.GoalPeriodWeek {
			goalLabel = "Weekly Goal"
		}
		sections = append(sections, SettingsSection{Title: "Tracking Preferences", Rows: []SettingsRow{
			{Key: SettingPeriod, Label: "Tracking Period", Value: onOff(prefs.GoalPeriod == domain.GoalPeriodWeek, "Weekly", "Daily")},
			{Key: SettingGoal, Label: goalLabel, Value: fmt.Sprintf("%d sessions", prefs.ActiveGoal()), Editable: true},
			{Key: SettingCost, Label: "Cost per Gram", Value: MoneyCents(prefs.CostPerGram), Editable: true},
		}})
	}

	sections = append(sections,
		SettingsSection{Title: "Appearance", Rows: []SettingsRow{
			{Key: SettingDarkMode, Label: "Dark Mode", Value: onOff(prefs.DarkMode, "On", "Off")},
		}},
		SettingsSection{Title: "Data", Rows: []SettingsRow{
			{Key: SettingExport, Label: "Export CSV"},
			{Key: SettingReset, Label: "Reset All Data", Danger: true},
		}},
	)

	return sections
}

func onOff(v bool, on, off string) string {
	if v {
		return on
	}
	return off
}

// Money formats a whole-dollar amount with thousands separators
func Money(v float64) string {
	return message.NewPrinter(language.English).Sprintf("$%.0f", v)
}

// MoneyCents formats an amount with cents
func MoneyCents(v float64) string {
	return message.NewPrinter(language.English).Sprintf("$%.2f", v)
}

// Duration formats a whole-days/hours span such as "3d 4h"
func Duration(days, hours int) string {
	return fmt.Sprintf("%dd %dh", days, hours)
}

// Clock formats a session time for lists
func Clock(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("Jan 2 15:04")
}
