package service

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/glebk/herb-bot/internal/clock"
	"github.com/glebk/herb-bot/internal/domain"
	"github.com/glebk/herb-bot/internal/recovery"
	"github.com/glebk/herb-bot/internal/stats"
	"github.com/glebk/herb-bot/internal/view"
)

// ErrNotConfirmed is returned by destructive operations called without confirmation
var ErrNotConfirmed = errors.New("operation requires confirmation")

// ErrRecoveryMode is returned by the logging operations while quitting mode is active
var ErrRecoveryMode = errors.New("logging disabled in recovery mode")

const (
	// maxGoal bounds goal edits
	maxGoal = math.MaxInt32
	// maxBreakDays bounds tolerance break length
	maxBreakDays = 5 * 365
)

// App is the in-memory state of one scope
type App struct {
	Sessions []domain.Session
	Prefs    domain.Preferences
}

// Detail describes a session logged through the detailed log
type Detail struct {
	Method domain.Method
	Amount string
	Strain string
}

// HerbService handles business logic for sessions and preferences
type HerbService struct {
	sessionRepo domain.SessionRepository
	prefsRepo   domain.PreferencesRepository
	clock       clock.Clock

	mu   sync.Mutex
	apps map[string]*App
}

// NewHerbService creates a new HerbService
func NewHerbService(sessionRepo domain.SessionRepository, prefsRepo domain.PreferencesRepository, clk clock.Clock) *HerbService {
	if clk == nil {
		clk = clock.System{}
	}
	return &HerbService{
		sessionRepo: sessionRepo,
		prefsRepo:   prefsRepo,
		clock:       clk,
		apps:        make(map[string]*App),
	}
}

// Now returns the service clock's current time
func (s *HerbService) Now() time.Time {
	return s.clock.Now()
}

// Open returns the state of a scope, loading it from storage on first use
func (s *HerbService) Open(scope string) (App, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, err := s.load(scope)
	if err != nil {
		return App{}, err
	}
	return *app, nil
}

// load returns the cached state; the caller holds mu
func (s *HerbService) load(scope string) (*App, error) {
	if app, ok := s.apps[scope]; ok {
		return app, nil
	}

	sessions, err := s.sessionRepo.Load(scope)
	if err != nil {
		return nil, fmt.Errorf("failed to load sessions: %w", err)
	}
	prefs, err := s.prefsRepo.Load(scope)
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}

	app := &App{Sessions: sessions, Prefs: prefs}
	s.apps[scope] = app
	return app, nil
}

// update is the single mutation path. fn persists the change and returns the
// new state; the cached state is replaced only when fn succeeds. On failure
// the cached state is dropped, since fn may have written part of the change,
// and the next read reloads it from storage.
func (s *HerbService) update(scope string, fn func(App) (App, error)) (App, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.load(scope)
	if err != nil {
		return App{}, err
	}

	next, err := fn(*current)
	if err != nil {
		delete(s.apps, scope)
		return *current, err
	}

	s.apps[scope] = &next
	return next, nil
}

func (s *HerbService) savePrefs(scope string, patch domain.PreferencesPatch) (domain.Preferences, error) {
	app, err := s.update(scope, func(app App) (App, error) {
		prefs, err := s.prefsRepo.Save(scope, patch)
		if err != nil {
			return app, fmt.Errorf("failed to save preferences: %w", err)
		}
		app.Prefs = prefs
		return app, nil
	})
	return app.Prefs, err
}

// prepend writes a new session. Unless guarded is false, it refuses to log
// while quitting mode is active.
func (s *HerbService) prepend(scope string, guarded bool, build func(prefs domain.Preferences) domain.Session) (domain.Session, error) {
	var session domain.Session
	_, err := s.update(scope, func(app App) (App, error) {
		if guarded && app.Prefs.Quitting {
			return app, ErrRecoveryMode
		}
		session = build(app.Prefs)
		sessions, err := s.sessionRepo.Prepend(scope, session)
		if err != nil {
			return app, fmt.Errorf("failed to save session: %w", err)
		}
		app.Sessions = sessions
		return app, nil
	})
	return session, err
}

// QuickLog records the fixed quick-log session. It returns ErrRecoveryMode
// while quitting.
func (s *HerbService) QuickLog(scope string) (domain.Session, error) {
	return s.prepend(scope, true, s.quickSession)
}

func (s *HerbService) quickSession(prefs domain.Preferences) domain.Session {
	cost := domain.DefaultGrams * prefs.CostPerGram
	return domain.NewSession(s.clock.Now(), domain.MethodJoint, domain.QuickLogAmount, domain.StrainQuickLog, &cost)
}

// LogSession records a session from the detailed log. Blank fields fall back
// to Joint, 1.0g and an unknown strain. It returns ErrRecoveryMode while quitting.
func (s *HerbService) LogSession(scope string, d Detail) (domain.Session, error) {
	if d.Method == "" {
		d.Method = domain.MethodJoint
	}
	if strings.TrimSpace(d.Amount) == "" {
		d.Amount = domain.DetailedLogAmount
	}
	d.Strain = strings.TrimSpace(d.Strain)
	if d.Strain == "" {
		d.Strain = domain.StrainUnknown
	}

	return s.prepend(scope, true, func(prefs domain.Preferences) domain.Session {
		session := domain.NewSession(s.clock.Now(), d.Method, d.Amount, d.Strain, nil)
		cost := session.Grams() * prefs.CostPerGram
		session.Cost = &cost
		return session
	})
}

// SlipUp records a lapse while quitting. It performs the quick-log write and
// is the only logging path open in recovery mode.
func (s *HerbService) SlipUp(scope string, confirmed bool) (domain.Session, error) {
	if !confirmed {
		return domain.Session{}, ErrNotConfirmed
	}
	return s.prepend(scope, false, s.quickSession)
}

// Undo removes the most recent session. It reports whether anything was removed.
func (s *HerbService) Undo(scope string) (bool, error) {
	removed := false
	_, err := s.update(scope, func(app App) (App, error) {
		if len(app.Sessions) == 0 {
			return app, nil
		}
		rest := make([]domain.Session, len(app.Sessions)-1)
		copy(rest, app.Sessions[1:])

		sessions, err := s.sessionRepo.Overwrite(scope, rest)
		if err != nil {
			return app, fmt.Errorf("failed to overwrite sessions: %w", err)
		}
		app.Sessions = sessions
		removed = true
		return app, nil
	})
	return removed, err
}

// Reset clears all sessions and restarts onboarding. Goals, cost and the
// quitting flag are kept.
func (s *HerbService) Reset(scope string, confirmed bool) error {
	if !confirmed {
		return ErrNotConfirmed
	}
	_, err := s.update(scope, func(app App) (App, error) {
		prefs, err := s.prefsRepo.Save(scope, domain.PreferencesPatch{Onboarded: domain.Ptr(false)})
		if err != nil {
			return app, fmt.Errorf("failed to save preferences: %w", err)
		}
		app.Prefs = prefs

		if err := s.sessionRepo.Clear(scope); err != nil {
			return app, fmt.Errorf("failed to clear sessions: %w", err)
		}
		app.Sessions = []domain.Session{}
		return app, nil
	})
	return err
}

// UpdatePreferences merges a patch into the stored preferences
func (s *HerbService) UpdatePreferences(scope string, patch domain.PreferencesPatch) (domain.Preferences, error) {
	return s.savePrefs(scope, patch)
}

// FinishOnboarding marks the scope onboarded with the chosen goal
func (s *HerbService) FinishOnboarding(scope, goal string) (domain.Preferences, error) {
	patch := domain.PreferencesPatch{Onboarded: domain.Ptr(true)}
	if goal = strings.TrimSpace(goal); goal != "" {
		patch.SelectedGoal = &goal
	}
	return s.savePrefs(scope, patch)
}

// parseEdit parses numeric user input. NaN and negative values are rejected.
func parseEdit(raw string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, false
	}
	return v, true
}

// EditGoal sets the goal of the active period. It reports false when the
// input was discarded.
func (s *HerbService) EditGoal(scope, raw string) (domain.Preferences, bool, error) {
	v, ok := parseEdit(raw)
	if !ok || math.Round(v) > maxGoal {
		app, err := s.Open(scope)
		return app.Prefs, false, err
	}
	goal := int(math.Round(v))

	var applied bool
	app, err := s.update(scope, func(app App) (App, error) {
		var patch domain.PreferencesPatch
		if app.Prefs.GoalPeriod == domain.GoalPeriodWeek {
			patch.WeeklyGoal = &goal
		} else {
			patch.DailyGoal = &goal
		}
		prefs, err := s.prefsRepo.Save(scope, patch)
		if err != nil {
			return app, fmt.Errorf("failed to save preferences: %w", err)
		}
		app.Prefs = prefs
		applied = true
		return app, nil
	})
	return app.Prefs, applied, err
}

// EditCost sets the cost per gram. It reports false when the input was discarded.
func (s *HerbService) EditCost(scope, raw string) (domain.Preferences, bool, error) {
	v, ok := parseEdit(raw)
	if !ok {
		app, err := s.Open(scope)
		return app.Prefs, false, err
	}
	prefs, err := s.savePrefs(scope, domain.PreferencesPatch{CostPerGram: &v})
	return prefs, err == nil, err
}

// StartToleranceBreak sets the break target the given number of days ahead.
// Zero or invalid input is discarded.
func (s *HerbService) StartToleranceBreak(scope, rawDays string) (domain.Preferences, bool, error) {
	v, ok := parseEdit(rawDays)
	if !ok || math.Round(v) > maxBreakDays {
		app, err := s.Open(scope)
		return app.Prefs, false, err
	}
	days := int(math.Round(v))
	if days <= 0 {
		app, err := s.Open(scope)
		return app.Prefs, false, err
	}
	target := s.clock.Now().AddDate(0, 0, days)
	prefs, err := s.savePrefs(scope, domain.PreferencesPatch{TBreakTarget: &target})
	return prefs, err == nil, err
}

// CancelToleranceBreak ends the active break
func (s *HerbService) CancelToleranceBreak(scope string, confirmed bool) (domain.Preferences, error) {
	if !confirmed {
		app, err := s.Open(scope)
		if err != nil {
			return domain.Preferences{}, err
		}
		return app.Prefs, ErrNotConfirmed
	}
	return s.savePrefs(scope, domain.PreferencesPatch{ClearTBreakTarget: true})
}

func (s *HerbService) toggle(scope string, patch func(domain.Preferences) domain.PreferencesPatch) (domain.Preferences, error) {
	app, err := s.update(scope, func(app App) (App, error) {
		prefs, err := s.prefsRepo.Save(scope, patch(app.Prefs))
		if err != nil {
			return app, fmt.Errorf("failed to save preferences: %w", err)
		}
		app.Prefs = prefs
		return app, nil
	})
	return app.Prefs, err
}

// TogglePeriod switches the goal period between day and week
func (s *HerbService) TogglePeriod(scope string) (domain.Preferences, error) {
	return s.toggle(scope, func(p domain.Preferences) domain.PreferencesPatch {
		return domain.PreferencesPatch{GoalPeriod: domain.Ptr(p.GoalPeriod.Toggle())}
	})
}

// ToggleQuitting switches recovery mode on or off
func (s *HerbService) ToggleQuitting(scope string) (domain.Preferences, error) {
	return s.toggle(scope, func(p domain.Preferences) domain.PreferencesPatch {
		return domain.PreferencesPatch{Quitting: domain.Ptr(!p.Quitting)}
	})
}

// ToggleDarkMode switches the dark palette on or off
func (s *HerbService) ToggleDarkMode(scope string) (domain.Preferences, error) {
	return s.toggle(scope, func(p domain.Preferences) domain.PreferencesPatch {
		return domain.PreferencesPatch{DarkMode: domain.Ptr(!p.DarkMode)}
	})
}

// Stats returns the statistics for a window
func (s *HerbService) Stats(scope string, window stats.Window) (stats.Summary, error) {
	app, err := s.Open(scope)
	if err != nil {
		return stats.Summary{}, err
	}
	return stats.Aggregate(app.Sessions, window, app.Prefs.CostPerGram, s.clock.Now()), nil
}

// Recovery returns the recovery report
func (s *HerbService) Recovery(scope string) (recovery.Report, error) {
	app, err := s.Open(scope)
	if err != nil {
		return recovery.Report{}, err
	}
	return recovery.Compute(app.Sessions, app.Prefs.CostPerGram, s.clock.Now()), nil
}

// Home returns the derived main screen
func (s *HerbService) Home(scope string) (view.Home, error) {
	app, err := s.Open(scope)
	if err != nil {
		return view.Home{}, err
	}
	return view.BuildHome(app.Sessions, app.Prefs, s.clock.Now()), nil
}

// Quitting reports whether recovery mode is active. Errors read as not quitting.
func (s *HerbService) Quitting(scope string) bool {
	app, err := s.Open(scope)
	return err == nil && app.Prefs.Quitting
}
