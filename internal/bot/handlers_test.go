package bot

import (
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/glebk/herb-bot/internal/clock"
	"github.com/glebk/herb-bot/internal/config"
	"github.com/glebk/herb-bot/internal/domain"
	"github.com/glebk/herb-bot/internal/repository/sqlite"
	"github.com/glebk/herb-bot/internal/service"
	"github.com/glebk/herb-bot/internal/view"
)

const testChat int64 = 42

// fakeAPI records outgoing calls instead of talking to Telegram
type fakeAPI struct {
	mu        sync.Mutex
	nextID    int
	messages  []string
	edits     []string
	callbacks []string
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch c := c.(type) {
	case tgbotapi.MessageConfig:
		f.messages = append(f.messages, c.Text)
	case tgbotapi.EditMessageTextConfig:
		f.edits = append(f.edits, c.Text)
	}
	f.nextID++
	return tgbotapi.Message{MessageID: f.nextID}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if cb, ok := c.(tgbotapi.CallbackConfig); ok {
		f.callbacks = append(f.callbacks, cb.Text)
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(chan tgbotapi.Update)
}

func (f *fakeAPI) StopReceivingUpdates() {}

func (f *fakeAPI) lastEdit() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.edits) == 0 {
		return ""
	}
	return f.edits[len(f.edits)-1]
}

func (f *fakeAPI) lastCallback() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.callbacks) == 0 {
		return ""
	}
	return f.callbacks[len(f.callbacks)-1]
}

func (f *fakeAPI) sentMessage(text string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages {
		if m == text {
			return true
		}
	}
	return false
}

func newTestBot(t *testing.T) (*Bot, *fakeAPI, *service.HerbService) {
	t.Helper()

	db, err := sqlite.New(filepath.Join(t.TempDir(), "herb.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	svc := service.NewHerbService(
		sqlite.NewSessionRepository(db),
		sqlite.NewPreferencesRepository(db),
		clock.Fixed(now),
	)
	cfg := &config.Config{
		HoldThreshold: time.Second,
		PuffDuration:  time.Hour,
		SendRate:      1000,
		SendBurst:     100,
	}
	api := &fakeAPI{}
	return newBot(api, svc, cfg), api, svc
}

func onboard(t *testing.T, svc *service.HerbService) {
	t.Helper()
	if _, err := svc.FinishOnboarding(scopeOf(testChat), "Track usage"); err != nil {
		t.Fatal(err)
	}
}

func callback(data string, messageID int) *tgbotapi.CallbackQuery {
	return &tgbotapi.CallbackQuery{
		ID:   "cb",
		Data: data,
		Message: &tgbotapi.Message{
			MessageID: messageID,
			Chat:      &tgbotapi.Chat{ID: testChat},
		},
	}
}

func chatSnapshot(b *Bot) chatState {
	var snap chatState
	b.withChat(testChat, func(st *chatState) { snap = *st })
	return snap
}

func openApp(t *testing.T, svc *service.HerbService) service.App {
	t.Helper()
	app, err := svc.Open(scopeOf(testChat))
	if err != nil {
		t.Fatal(err)
	}
	return app
}

func TestHandleConfirm(t *testing.T) {
	scope := scopeOf(testChat)

	tests := []struct {
		name         string
		setup        func(t *testing.T, b *Bot, svc *service.HerbService)
		data         string
		wantCallback string
		wantEdit     string
		check        func(t *testing.T, app service.App, st chatState)
	}{
		{
			name: "reset declined",
			setup: func(t *testing.T, _ *Bot, svc *service.HerbService) {
				if _, err := svc.QuickLog(scope); err != nil {
					t.Fatal(err)
				}
			},
			data:         "confirm:reset:no",
			wantCallback: "Cancelled",
			wantEdit:     "Nothing changed.",
			check: func(t *testing.T, app service.App, _ chatState) {
				if len(app.Sessions) != 1 || !app.Prefs.Onboarded {
					t.Errorf("declined reset changed state: %d sessions, onboarded=%v", len(app.Sessions), app.Prefs.Onboarded)
				}
			},
		},
		{
			name: "reset confirmed",
			setup: func(t *testing.T, b *Bot, svc *service.HerbService) {
				if _, err := svc.QuickLog(scope); err != nil {
					t.Fatal(err)
				}
				b.withChat(testChat, func(st *chatState) {
					st.draft = &draft{Method: domain.MethodBong, MessageID: 7}
					st.onboardingStep = 2
					st.goal = "Quit"
				})
			},
			data:         "confirm:reset:yes",
			wantCallback: "Done",
			wantEdit:     "Done.",
			check: func(t *testing.T, app service.App, st chatState) {
				if len(app.Sessions) != 0 || app.Prefs.Onboarded {
					t.Errorf("after reset: %d sessions, onboarded=%v", len(app.Sessions), app.Prefs.Onboarded)
				}
				if st.draft != nil || st.onboardingStep != 0 || st.goal != "" {
					t.Errorf("chat state not reset: %+v", st)
				}
			},
		},
		{
			name: "slip-up confirmed while quitting",
			setup: func(t *testing.T, _ *Bot, svc *service.HerbService) {
				if _, err := svc.ToggleQuitting(scope); err != nil {
					t.Fatal(err)
				}
			},
			data:         "confirm:slip:yes",
			wantCallback: "Done",
			wantEdit:     "Done.",
			check: func(t *testing.T, app service.App, _ chatState) {
				if len(app.Sessions) != 1 || app.Sessions[0].Strain != domain.StrainQuickLog {
					t.Errorf("slip-up not logged: %+v", app.Sessions)
				}
			},
		},
		{
			name: "slip-up declined",
			setup: func(t *testing.T, _ *Bot, svc *service.HerbService) {
				if _, err := svc.ToggleQuitting(scope); err != nil {
					t.Fatal(err)
				}
			},
			data:         "confirm:slip:no",
			wantCallback: "Cancelled",
			wantEdit:     "Nothing changed.",
			check: func(t *testing.T, app service.App, _ chatState) {
				if len(app.Sessions) != 0 {
					t.Errorf("declined slip-up logged %d sessions", len(app.Sessions))
				}
			},
		},
		{
			name: "tolerance break cancelled",
			setup: func(t *testing.T, _ *Bot, svc *service.HerbService) {
				if _, _, err := svc.StartToleranceBreak(scope, "3"); err != nil {
					t.Fatal(err)
				}
			},
			data:         "confirm:tbreak:yes",
			wantCallback: "Done",
			wantEdit:     "Done.",
			check: func(t *testing.T, app service.App, _ chatState) {
				if app.Prefs.TBreakTarget != nil {
					t.Error("break target still set")
				}
			},
		},
		{
			name: "malformed",
			setup: func(t *testing.T, _ *Bot, svc *service.HerbService) {
				if _, err := svc.QuickLog(scope); err != nil {
					t.Fatal(err)
				}
			},
			data:         "confirm:reset",
			wantCallback: "Invalid response",
			check: func(t *testing.T, app service.App, _ chatState) {
				if len(app.Sessions) != 1 {
					t.Error("malformed confirmation changed state")
				}
			},
		},
		{
			name:         "unknown action",
			data:         "confirm:launch:yes",
			wantCallback: "Unknown action",
			check:        func(*testing.T, service.App, chatState) {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, api, svc := newTestBot(t)
			onboard(t, svc)
			if tt.setup != nil {
				tt.setup(t, b, svc)
			}

			b.handleCallbackQuery(callback(tt.data, 3))

			if got := api.lastCallback(); got != tt.wantCallback {
				t.Errorf("callback answer = %q, want %q", got, tt.wantCallback)
			}
			if got := api.lastEdit(); got != tt.wantEdit {
				t.Errorf("edited text = %q, want %q", got, tt.wantEdit)
			}
			tt.check(t, openApp(t, svc), chatSnapshot(b))
		})
	}
}

func TestHandleDraft(t *testing.T) {
	const draftMsg = 7
	scope := scopeOf(testChat)

	tests := []struct {
		name         string
		setup        func(t *testing.T, b *Bot, svc *service.HerbService)
		data         string
		messageID    int
		wantCallback string
		wantEdit     string
		wantSessions int
		wantDraft    bool
		check        func(t *testing.T, app service.App, st chatState)
	}{
		{
			name:         "expired message",
			data:         "log:save",
			messageID:    draftMsg + 1,
			wantCallback: "This log has expired",
			wantDraft:    true,
		},
		{
			name:      "method change",
			data:      "log:method:Bong",
			messageID: draftMsg,
			wantDraft: true,
			check: func(t *testing.T, _ service.App, st chatState) {
				if st.draft.Method != domain.MethodBong {
					t.Errorf("method = %s", st.draft.Method)
				}
			},
		},
		{
			name:      "amount change",
			data:      "log:amount:2.0g",
			messageID: draftMsg,
			wantDraft: true,
			check: func(t *testing.T, _ service.App, st chatState) {
				if st.draft.Amount != "2.0g" {
					t.Errorf("amount = %s", st.draft.Amount)
				}
			},
		},
		{
			name:         "save",
			data:         "log:save",
			messageID:    draftMsg,
			wantEdit:     "Logged.",
			wantSessions: 1,
			check: func(t *testing.T, app service.App, _ chatState) {
				s := app.Sessions[0]
				if s.Method != domain.MethodVape || s.Amount != "1.5g" || s.Strain != "Haze" {
					t.Errorf("saved session = %+v", s)
				}
			},
		},
		{
			name:         "quick",
			data:         "log:quick",
			messageID:    draftMsg,
			wantEdit:     "Logged.",
			wantSessions: 1,
			check: func(t *testing.T, app service.App, _ chatState) {
				if app.Sessions[0].Strain != domain.StrainQuickLog {
					t.Errorf("quick session = %+v", app.Sessions[0])
				}
			},
		},
		{
			name:      "cancel",
			data:      "log:cancel",
			messageID: draftMsg,
			wantEdit:  "Log cancelled.",
		},
		{
			name: "draft dropped when quitting is switched on",
			setup: func(t *testing.T, b *Bot, _ *service.HerbService) {
				b.handleCallbackQuery(callback("set:"+view.SettingQuitting, 3))
			},
			data:         "log:save",
			messageID:    draftMsg,
			wantCallback: "This log has expired",
		},
		{
			name: "save refused in recovery mode",
			setup: func(t *testing.T, _ *Bot, svc *service.HerbService) {
				if _, err := svc.ToggleQuitting(scope); err != nil {
					t.Fatal(err)
				}
			},
			data:      "log:save",
			messageID: draftMsg,
			wantEdit:  recoveryModeText,
		},
		{
			name: "quick refused in recovery mode",
			setup: func(t *testing.T, _ *Bot, svc *service.HerbService) {
				if _, err := svc.ToggleQuitting(scope); err != nil {
					t.Fatal(err)
				}
			},
			data:      "log:quick",
			messageID: draftMsg,
			wantEdit:  recoveryModeText,
		},
		{
			name:         "missing action",
			data:         "log",
			messageID:    draftMsg,
			wantCallback: "Invalid response",
			wantDraft:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, api, svc := newTestBot(t)
			onboard(t, svc)
			b.withChat(testChat, func(st *chatState) {
				st.draft = &draft{Method: domain.MethodVape, Amount: "1.5g", Strain: "Haze", MessageID: draftMsg}
			})
			if tt.setup != nil {
				tt.setup(t, b, svc)
			}

			b.handleCallbackQuery(callback(tt.data, tt.messageID))

			if got := api.lastCallback(); got != tt.wantCallback {
				t.Errorf("callback answer = %q, want %q", got, tt.wantCallback)
			}
			if tt.wantEdit != "" && api.lastEdit() != tt.wantEdit {
				t.Errorf("edited text = %q, want %q", api.lastEdit(), tt.wantEdit)
			}

			app := openApp(t, svc)
			if len(app.Sessions) != tt.wantSessions {
				t.Fatalf("sessions = %d, want %d", len(app.Sessions), tt.wantSessions)
			}
			st := chatSnapshot(b)
			if (st.draft != nil) != tt.wantDraft {
				t.Fatalf("draft present = %v, want %v", st.draft != nil, tt.wantDraft)
			}
			if tt.check != nil {
				tt.check(t, app, st)
			}
		})
	}
}

func TestHandleText_StrainGoesToDraft(t *testing.T) {
	b, api, svc := newTestBot(t)
	onboard(t, svc)
	b.withChat(testChat, func(st *chatState) { st.draft = &draft{Method: domain.MethodJoint, MessageID: 7} })

	b.handleText(testChat, "  Blue Dream ")

	if st := chatSnapshot(b); st.draft.Strain != "Blue Dream" {
		t.Errorf("strain = %q", st.draft.Strain)
	}
	if !strings.Contains(api.lastEdit(), "Blue Dream") {
		t.Errorf("draft message not refreshed: %q", api.lastEdit())
	}
}

func TestOnboarding(t *testing.T) {
	tests := []struct {
		name     string
		steps    []string
		wantGoal string
	}{
		{"default goal", []string{"onb:next", "onb:next", "onb:finish"}, domain.GoalChoices[0]},
		{"picked goal", []string{"onb:next", "onb:goal:3", "onb:next", "onb:finish"}, "Quit"},
		{"last pick wins", []string{"onb:next", "onb:goal:1", "onb:goal:2", "onb:next", "onb:finish"}, "Take a T-break"},
		{"out of range pick ignored", []string{"onb:next", "onb:goal:9", "onb:goal:-1", "onb:next", "onb:finish"}, domain.GoalChoices[0]},
		{"next stops at last step", []string{"onb:next", "onb:next", "onb:next", "onb:next", "onb:finish"}, domain.GoalChoices[0]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, api, svc := newTestBot(t)

			b.handleStart(testChat)
			if !api.sentMessage(onboardingText(0, "")) {
				t.Fatal("onboarding was not shown to a new chat")
			}

			for _, data := range tt.steps {
				b.handleCallbackQuery(callback(data, 1))
			}

			app := openApp(t, svc)
			if !app.Prefs.Onboarded || app.Prefs.SelectedGoal != tt.wantGoal {
				t.Errorf("prefs = onboarded %v goal %q, want goal %q", app.Prefs.Onboarded, app.Prefs.SelectedGoal, tt.wantGoal)
			}
			st := chatSnapshot(b)
			if !st.paywall || st.onboardingStep != 0 {
				t.Errorf("chat state after finish = %+v", st)
			}
			if !api.sentMessage(paywallText) {
				t.Error("paywall not shown after onboarding")
			}

			b.handleCallbackQuery(callback("pay:close", 2))
			if chatSnapshot(b).paywall {
				t.Error("paywall still open after close")
			}
		})
	}
}

func TestOnboarding_GoalShownOnStep(t *testing.T) {
	b, api, _ := newTestBot(t)

	b.handleCallbackQuery(callback("onb:next", 1))
	if got := api.lastEdit(); got != onboardingText(1, "") {
		t.Errorf("step 1 text = %q", got)
	}
	b.handleCallbackQuery(callback("onb:goal:1", 1))
	if got := api.lastEdit(); !strings.Contains(got, "Selected: *Cut back*") {
		t.Errorf("selected goal not shown: %q", got)
	}
}

func TestUndo_OnlyWhileTracking(t *testing.T) {
	scope := scopeOf(testChat)

	tests := []struct {
		name         string
		enter        func(t *testing.T, svc *service.HerbService)
		wantSessions int
		wantRefused  bool
	}{
		{
			name:         "tracking",
			enter:        func(*testing.T, *service.HerbService) {},
			wantSessions: 0,
		},
		{
			name: "quitting",
			enter: func(t *testing.T, svc *service.HerbService) {
				if _, err := svc.ToggleQuitting(scope); err != nil {
					t.Fatal(err)
				}
			},
			wantSessions: 1,
			wantRefused:  true,
		},
		{
			name: "tolerance break",
			enter: func(t *testing.T, svc *service.HerbService) {
				if _, _, err := svc.StartToleranceBreak(scope, "2"); err != nil {
					t.Fatal(err)
				}
			},
			wantSessions: 1,
			wantRefused:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, api, svc := newTestBot(t)
			onboard(t, svc)
			if _, err := svc.QuickLog(scope); err != nil {
				t.Fatal(err)
			}
			tt.enter(t, svc)

			b.handleCallbackQuery(callback("home:undo", 5))

			if got := len(openApp(t, svc).Sessions); got != tt.wantSessions {
				t.Errorf("sessions = %d, want %d", got, tt.wantSessions)
			}
			if refused := api.sentMessage("Undo is only available while tracking."); refused != tt.wantRefused {
				t.Errorf("refused = %v, want %v", refused, tt.wantRefused)
			}
		})
	}
}

func TestQuickLog_RefusedInRecoveryMode(t *testing.T) {
	b, api, svc := newTestBot(t)
	onboard(t, svc)
	if _, err := svc.ToggleQuitting(scopeOf(testChat)); err != nil {
		t.Fatal(err)
	}

	b.quickLog(testChat)

	if !api.sentMessage(recoveryModeText) {
		t.Error("recovery mode notice not sent")
	}
	if len(openApp(t, svc).Sessions) != 0 {
		t.Error("session logged in recovery mode")
	}
}
