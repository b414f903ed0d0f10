package bot

import (
	"errors"
	"log"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/glebk/herb-bot/internal/domain"
	"github.com/glebk/herb-bot/internal/gesture"
	"github.com/glebk/herb-bot/internal/service"
	"github.com/glebk/herb-bot/internal/stats"
	"github.com/glebk/herb-bot/internal/view"
)

const recoveryModeText = "Logging is off in recovery mode. Use \"I slipped up\" if you had a session."

const helpText = `*Herb - Help*

*Commands:*
/start - Start or restart onboarding
/stats day|week|month|all - Show statistics
/recovery - Show recovery progress
/settings - Change goals, cost and modes
/undo - Remove the last session
/export - Download your sessions as CSV
/help - Show this help

*Logging:*
🌿 Tap logs a quick 0.5g session.
✋ Hold opens the detailed log.
In recovery mode logging is off; use "I slipped up" instead.`

// handleMessage handles incoming messages
func (b *Bot) handleMessage(message *tgbotapi.Message) {
	chatID := message.Chat.ID

	if message.IsCommand() {
		b.handleCommand(message)
		return
	}

	prefs, ok := b.prefs(chatID)
	if !ok {
		return
	}
	if !prefs.Onboarded {
		b.sendMessage(chatID, "Use /start to set up Herb first.")
		return
	}

	switch message.Text {
	case btnTap:
		b.handleTap(chatID)
	case btnHold:
		b.handleHold(chatID)
	case btnSlipUp:
		b.askConfirm(chatID, confirmSlipUp)
	case view.StatsTabLabel(prefs):
		b.showTab(chatID, view.TabStats)
	case btnSettings:
		b.showTab(chatID, view.TabSettings)
	default:
		b.handleText(chatID, message.Text)
	}
}

// handleCommand handles bot commands
func (b *Bot) handleCommand(message *tgbotapi.Message) {
	chatID := message.Chat.ID

	if message.Command() == "start" {
		b.handleStart(chatID)
		return
	}
	if message.Command() == "help" {
		b.sendMarkdownOrLog(chatID, helpText, nil)
		return
	}

	prefs, ok := b.prefs(chatID)
	if !ok {
		return
	}
	if !prefs.Onboarded {
		b.sendMessage(chatID, "Use /start to set up Herb first.")
		return
	}

	switch message.Command() {
	case "stats":
		window := stats.WindowWeek
		if arg := strings.TrimSpace(message.CommandArguments()); arg != "" {
			w, err := stats.ParseWindow(arg)
			if err != nil {
				b.sendMessage(chatID, "Unknown window. Use day, week, month or all.")
				return
			}
			window = w
		}
		b.showStats(chatID, window, 0)
	case "recovery":
		b.showRecovery(chatID)
	case "settings":
		b.showTab(chatID, view.TabSettings)
	case "undo":
		b.handleUndo(chatID)
	case "export":
		b.handleExport(chatID)
	default:
		b.sendMessage(chatID, "Unknown command. Use /help to learn more.")
	}
}

func (b *Bot) prefs(chatID int64) (domain.Preferences, bool) {
	app, err := b.service.Open(scopeOf(chatID))
	if err != nil {
		b.reportError(chatID, "loading state", err)
		return domain.Preferences{}, false
	}
	return app.Prefs, true
}

func (b *Bot) sendMarkdownOrLog(chatID int64, text string, markup interface{}) {
	if _, err := b.sendMarkdown(chatID, text, markup); err != nil {
		log.Printf("Error sending message: %v", err)
	}
}

// handleStart shows the home screen, or starts onboarding for new chats
func (b *Bot) handleStart(chatID int64) {
	prefs, ok := b.prefs(chatID)
	if !ok {
		return
	}

	var paywall bool
	b.withChat(chatID, func(st *chatState) {
		st.draft = nil
		st.editing = ""
		if !prefs.Onboarded {
			st.onboardingStep = 0
			st.goal = ""
		}
		paywall = st.paywall
	})

	switch view.Route(prefs, view.TabHome, paywall) {
	case view.ScreenOnboarding:
		b.sendMarkdownOrLog(chatID, onboardingText(0, ""), onboardingKeyboard(0))
	case view.ScreenPaywall:
		b.sendMarkdownOrLog(chatID, paywallText, paywallKeyboard())
	default:
		b.showHome(chatID)
	}
}

// showHome sends the main screen with the reply keyboard
func (b *Bot) showHome(chatID int64) {
	app, err := b.service.Open(scopeOf(chatID))
	if err != nil {
		b.reportError(chatID, "loading state", err)
		return
	}
	home, err := b.service.Home(scopeOf(chatID))
	if err != nil {
		b.reportError(chatID, "building home", err)
		return
	}

	b.sendMarkdownOrLog(chatID, homeText(home), mainKeyboard(app.Prefs))
	if kb := homeKeyboard(home); kb != nil {
		b.sendMarkdownOrLog(chatID, "Actions", kb)
	}
}

// showTab routes a navigation button to its screen
func (b *Bot) showTab(chatID int64, tab view.Tab) {
	prefs, ok := b.prefs(chatID)
	if !ok {
		return
	}
	var paywall bool
	b.withChat(chatID, func(st *chatState) { paywall = st.paywall })

	switch view.Route(prefs, tab, paywall) {
	case view.ScreenStats:
		b.showStats(chatID, stats.WindowWeek, 0)
	case view.ScreenRecovery:
		b.showRecovery(chatID)
	case view.ScreenSettings:
		b.showSettings(chatID, 0)
	case view.ScreenPaywall:
		b.sendMarkdownOrLog(chatID, paywallText, paywallKeyboard())
	case view.ScreenOnboarding:
		b.sendMessage(chatID, "Use /start to set up Herb first.")
	default:
		b.showHome(chatID)
	}
}

// showStats sends or, when messageID is set, edits the statistics screen
func (b *Bot) showStats(chatID int64, window stats.Window, messageID int) {
	summary, err := b.service.Stats(scopeOf(chatID), window)
	if err != nil {
		b.reportError(chatID, "computing stats", err)
		return
	}
	kb := statsKeyboard(window)
	if messageID != 0 {
		b.editMarkdown(chatID, messageID, statsText(summary), &kb)
		return
	}
	b.sendMarkdownOrLog(chatID, statsText(summary), kb)
}

func (b *Bot) showRecovery(chatID int64) {
	report, err := b.service.Recovery(scopeOf(chatID))
	if err != nil {
		b.reportError(chatID, "computing recovery", err)
		return
	}
	b.sendMarkdownOrLog(chatID, recoveryText(report), nil)
}

// showSettings sends or edits the settings screen
func (b *Bot) showSettings(chatID int64, messageID int) {
	prefs, ok := b.prefs(chatID)
	if !ok {
		return
	}
	sections := view.BuildSettings(prefs)
	kb := settingsKeyboard(sections)
	if messageID != 0 {
		b.editMarkdown(chatID, messageID, settingsText(sections), &kb)
		return
	}
	b.sendMarkdownOrLog(chatID, settingsText(sections), kb)
}

// handleTap drives a full press and release
func (b *Bot) handleTap(chatID int64) {
	m := b.chat(chatID).machine
	if err := m.Press(); err != nil {
		b.gestureRefused(chatID, err)
		return
	}
	m.Release()
}

// handleHold starts a press and lets the hold timer open the detailed log
func (b *Bot) handleHold(chatID int64) {
	if err := b.chat(chatID).machine.Press(); err != nil {
		b.gestureRefused(chatID, err)
	}
}

func (b *Bot) gestureRefused(chatID int64, err error) {
	if errors.Is(err, gesture.ErrDisabled) {
		b.sendMessage(chatID, recoveryModeText)
		return
	}
	log.Printf("Error pressing for chat %d: %v", chatID, err)
}

func (b *Bot) quickLog(chatID int64) {
	_, err := b.service.QuickLog(scopeOf(chatID))
	if errors.Is(err, service.ErrRecoveryMode) {
		b.sendMessage(chatID, recoveryModeText)
		return
	}
	if err != nil {
		b.reportError(chatID, "logging session", err)
		return
	}
	b.puff(chatID)
	b.showHome(chatID)
}

// openDetailedLog runs when the hold timer elapses
func (b *Bot) openDetailedLog(chatID int64) {
	st := b.chat(chatID)
	defer st.machine.Release()

	d := newDraft()
	sent, err := b.sendMarkdown(chatID, draftText(d), draftKeyboard(d))
	if err != nil {
		log.Printf("Error opening detailed log: %v", err)
		return
	}
	d.MessageID = sent.MessageID
	b.withChat(chatID, func(st *chatState) { st.draft = d })
}

// handleText handles free text: strain names and numeric settings edits
func (b *Bot) handleText(chatID int64, text string) {
	var d *draft
	var editing string
	b.withChat(chatID, func(st *chatState) {
		editing = st.editing
		st.editing = ""
		if editing == "" && st.draft != nil {
			st.draft.Strain = strings.TrimSpace(text)
			copied := *st.draft
			d = &copied
		}
	})

	if editing != "" {
		b.applyEdit(chatID, editing, text)
		return
	}
	if d != nil {
		kb := draftKeyboard(d)
		b.editMarkdown(chatID, d.MessageID, draftText(d), &kb)
		return
	}
	b.sendMessage(chatID, "Tap 🌿 to log a session or use /help.")
}

func (b *Bot) applyEdit(chatID int64, key, raw string) {
	scope := scopeOf(chatID)
	var applied bool
	var err error

	switch key {
	case view.SettingGoal:
		_, applied, err = b.service.EditGoal(scope, raw)
	case view.SettingCost:
		_, applied, err = b.service.EditCost(scope, raw)
	case view.SettingStartBreak:
		_, applied, err = b.service.StartToleranceBreak(scope, raw)
	}
	if err != nil {
		b.reportError(chatID, "saving setting", err)
		return
	}
	if !applied {
		b.sendMessage(chatID, "That doesn't look like a valid number, nothing changed.")
		return
	}
	b.showSettings(chatID, 0)
}

// handleUndo removes the last session. Undo belongs to the tracking home
// screen and is refused in the other modes.
func (b *Bot) handleUndo(chatID int64) {
	prefs, ok := b.prefs(chatID)
	if !ok {
		return
	}
	if view.ResolveMode(prefs, b.service.Now()) != view.ModeTracking {
		b.sendMessage(chatID, "Undo is only available while tracking.")
		return
	}

	removed, err := b.service.Undo(scopeOf(chatID))
	if err != nil {
		b.reportError(chatID, "undoing session", err)
		return
	}
	if !removed {
		b.sendMessage(chatID, "Nothing to undo.")
		return
	}
	b.showHome(chatID)
}

func (b *Bot) handleExport(chatID int64) {
	app, err := b.service.Open(scopeOf(chatID))
	if err != nil {
		b.reportError(chatID, "loading sessions", err)
		return
	}
	data, err := exportCSV(app.Sessions, app.Prefs.CostPerGram, b.config.Location())
	if err != nil {
		b.reportError(chatID, "exporting sessions", err)
		return
	}
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: "herb_sessions.csv", Bytes: data})
	if _, err := b.send(doc); err != nil {
		log.Printf("Error sending export: %v", err)
	}
}

func (b *Bot) askConfirm(chatID int64, action string) {
	b.sendMarkdownOrLog(chatID, confirmPrompts[action], confirmKeyboard(action))
}

// handleCallbackQuery handles button callbacks
func (b *Bot) handleCallbackQuery(query *tgbotapi.CallbackQuery) {
	if query.Message == nil {
		b.answerCallback(query.ID, "")
		return
	}
	chatID := query.Message.Chat.ID
	messageID := query.Message.MessageID

	parts := strings.SplitN(query.Data, ":", 3)
	arg := ""
	if len(parts) > 1 {
		arg = parts[1]
	}

	switch parts[0] {
	case "onb":
		b.handleOnboarding(query, parts)
	case "pay":
		b.withChat(chatID, func(st *chatState) { st.paywall = false })
		b.answerCallback(query.ID, "")
		b.showHome(chatID)
	case "stats":
		w, err := stats.ParseWindow(arg)
		if err != nil {
			b.answerCallback(query.ID, "Unknown window")
			return
		}
		b.answerCallback(query.ID, "")
		b.showStats(chatID, w, messageID)
	case "home":
		b.answerCallback(query.ID, "")
		switch arg {
		case "undo":
			b.handleUndo(chatID)
		case "slip":
			b.askConfirm(chatID, confirmSlipUp)
		}
	case "set":
		b.handleSetting(query, arg)
	case "confirm":
		b.handleConfirm(query, parts)
	case "log":
		b.handleDraft(query, parts)
	default:
		b.answerCallback(query.ID, "Unknown action")
	}
}

func (b *Bot) handleOnboarding(query *tgbotapi.CallbackQuery, parts []string) {
	chatID := query.Message.Chat.ID
	messageID := query.Message.MessageID

	if len(parts) > 1 && parts[1] == "finish" {
		var goal string
		b.withChat(chatID, func(st *chatState) { goal = st.goal })
		if goal == "" {
			goal = domain.GoalChoices[0]
		}
		prefs, err := b.service.FinishOnboarding(scopeOf(chatID), goal)
		if err != nil {
			b.answerCallback(query.ID, "")
			b.reportError(chatID, "finishing onboarding", err)
			return
		}
		b.withChat(chatID, func(st *chatState) {
			st.onboardingStep = 0
			st.paywall = true
		})
		b.answerCallback(query.ID, "")
		b.editMarkdown(chatID, messageID, onboardingText(2, goal), nil)
		b.sendMarkdownOrLog(chatID, "Welcome aboard!", mainKeyboard(prefs))
		b.sendMarkdownOrLog(chatID, paywallText, paywallKeyboard())
		return
	}

	var step int
	var goal string
	b.withChat(chatID, func(st *chatState) {
		if len(parts) > 2 && parts[1] == "goal" {
			if i, err := strconv.Atoi(parts[2]); err == nil && i >= 0 && i < len(domain.GoalChoices) {
				st.goal = domain.GoalChoices[i]
			}
		} else if st.onboardingStep < len(onboardingSteps)-1 {
			st.onboardingStep++
		}
		step, goal = st.onboardingStep, st.goal
	})

	b.answerCallback(query.ID, "")
	kb := onboardingKeyboard(step)
	b.editMarkdown(chatID, messageID, onboardingText(step, goal), &kb)
}

func (b *Bot) handleSetting(query *tgbotapi.CallbackQuery, key string) {
	chatID := query.Message.Chat.ID
	messageID := query.Message.MessageID
	scope := scopeOf(chatID)

	var err error
	switch key {
	case view.SettingGoal, view.SettingCost, view.SettingStartBreak:
		b.withChat(chatID, func(st *chatState) { st.editing = key })
		b.answerCallback(query.ID, "")
		b.sendMessage(chatID, editPrompts[key])
		return
	case view.SettingCancelBreak:
		b.answerCallback(query.ID, "")
		b.askConfirm(chatID, confirmCancelBreak)
		return
	case view.SettingReset:
		b.answerCallback(query.ID, "")
		b.askConfirm(chatID, confirmReset)
		return
	case view.SettingExport:
		b.answerCallback(query.ID, "")
		b.handleExport(chatID)
		return
	case view.SettingPremium:
		b.withChat(chatID, func(st *chatState) { st.paywall = true })
		b.answerCallback(query.ID, "")
		b.sendMarkdownOrLog(chatID, paywallText, paywallKeyboard())
		return
	case view.SettingRestore:
		b.answerCallback(query.ID, "No purchases to restore")
		return
	case view.SettingPeriod:
		_, err = b.service.TogglePeriod(scope)
	case view.SettingQuitting:
		var prefs domain.Preferences
		prefs, err = b.service.ToggleQuitting(scope)
		if err == nil {
			b.chat(chatID).machine.Reset()
			b.withChat(chatID, func(st *chatState) { st.draft = nil })
			b.sendMarkdownOrLog(chatID, "Mode updated.", mainKeyboard(prefs))
		}
	case view.SettingDarkMode:
		_, err = b.service.ToggleDarkMode(scope)
	default:
		b.answerCallback(query.ID, "Unknown setting")
		return
	}

	if err != nil {
		b.answerCallback(query.ID, "")
		b.reportError(chatID, "updating setting", err)
		return
	}
	b.answerCallback(query.ID, "Saved")
	b.showSettings(chatID, messageID)
}

func (b *Bot) handleConfirm(query *tgbotapi.CallbackQuery, parts []string) {
	chatID := query.Message.Chat.ID
	messageID := query.Message.MessageID
	scope := scopeOf(chatID)

	if len(parts) != 3 {
		b.answerCallback(query.ID, "Invalid response")
		return
	}
	action, confirmed := parts[1], parts[2] == "yes"

	var err error
	switch action {
	case confirmReset:
		err = b.service.Reset(scope, confirmed)
		if err == nil {
			b.withChat(chatID, func(st *chatState) {
				st.draft = nil
				st.onboardingStep = 0
				st.goal = ""
			})
		}
	case confirmCancelBreak:
		_, err = b.service.CancelToleranceBreak(scope, confirmed)
	case confirmSlipUp:
		_, err = b.service.SlipUp(scope, confirmed)
	default:
		b.answerCallback(query.ID, "Unknown action")
		return
	}

	if errors.Is(err, service.ErrNotConfirmed) {
		b.answerCallback(query.ID, "Cancelled")
		b.editMarkdown(chatID, messageID, "Nothing changed.", nil)
		return
	}
	if err != nil {
		b.answerCallback(query.ID, "")
		b.reportError(chatID, "confirming "+action, err)
		return
	}

	b.answerCallback(query.ID, "Done")
	b.editMarkdown(chatID, messageID, "Done.", nil)
	switch action {
	case confirmReset:
		b.sendMarkdownOrLog(chatID, onboardingText(0, ""), onboardingKeyboard(0))
	case confirmSlipUp:
		b.showHome(chatID)
	default:
		b.showSettings(chatID, 0)
	}
}

func (b *Bot) handleDraft(query *tgbotapi.CallbackQuery, parts []string) {
	chatID := query.Message.Chat.ID
	messageID := query.Message.MessageID

	if len(parts) < 2 {
		b.answerCallback(query.ID, "Invalid response")
		return
	}

	var d *draft
	b.withChat(chatID, func(st *chatState) {
		if st.draft == nil || st.draft.MessageID != messageID {
			return
		}
		if len(parts) > 2 {
			switch parts[1] {
			case "method":
				st.draft.Method = domain.Method(parts[2]).Normalize()
			case "amount":
				st.draft.Amount = parts[2]
			}
		}
		copied := *st.draft
		d = &copied
		if len(parts) == 2 {
			st.draft = nil
		}
	})

	if d == nil {
		b.answerCallback(query.ID, "This log has expired")
		return
	}
	b.answerCallback(query.ID, "")

	if len(parts) > 2 {
		kb := draftKeyboard(d)
		b.editMarkdown(chatID, messageID, draftText(d), &kb)
		return
	}

	scope := scopeOf(chatID)
	var err error
	switch parts[1] {
	case "save":
		_, err = b.service.LogSession(scope, service.Detail{Method: d.Method, Amount: d.Amount, Strain: d.Strain})
	case "quick":
		_, err = b.service.QuickLog(scope)
	default:
		b.editMarkdown(chatID, messageID, "Log cancelled.", nil)
		return
	}
	if errors.Is(err, service.ErrRecoveryMode) {
		b.editMarkdown(chatID, messageID, recoveryModeText, nil)
		return
	}
	if err != nil {
		b.reportError(chatID, "logging session", err)
		return
	}

	b.editMarkdown(chatID, messageID, "Logged.", nil)
	b.puff(chatID)
	b.showHome(chatID)
}
