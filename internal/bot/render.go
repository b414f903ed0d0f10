package bot

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/glebk/herb-bot/internal/domain"
	"github.com/glebk/herb-bot/internal/recovery"
	"github.com/glebk/herb-bot/internal/stats"
	"github.com/glebk/herb-bot/internal/view"
)

// Reply keyboard labels
const (
	btnTap      = "🌿 Tap"
	btnHold     = "✋ Hold"
	btnSlipUp   = "🫣 I slipped up"
	btnSettings = "⚙️ Settings"
)

const barWidth = 10

// mainKeyboard is the persistent reply keyboard. Recovery mode swaps the
// logging buttons for the slip-up action.
func mainKeyboard(prefs domain.Preferences) tgbotapi.ReplyKeyboardMarkup {
	first := tgbotapi.NewKeyboardButtonRow(
		tgbotapi.NewKeyboardButton(btnTap),
		tgbotapi.NewKeyboardButton(btnHold),
	)
	if prefs.Quitting {
		first = tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnSlipUp))
	}
	return tgbotapi.NewReplyKeyboard(
		first,
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(view.StatsTabLabel(prefs)),
			tgbotapi.NewKeyboardButton(btnSettings),
		),
	)
}

func mascot(level int) string {
	switch level {
	case 3:
		return "🥴"
	case 2:
		return "🙂"
	default:
		return "😌"
	}
}

// homeText renders the main screen
func homeText(h view.Home) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "*%s*\n_%s_\n\n", h.Title, h.Subtitle)

	switch h.Mode {
	case view.ModeQuitting:
		fmt.Fprintf(&sb, "🌱 Sober for *%s*\n", view.Duration(h.Sober.Days, h.Sober.Hours))
	case view.ModeToleranceBreak:
		fmt.Fprintf(&sb, "⏳ *%dd %dh %dm* left on your break\n", h.TimeLeft.Days, h.TimeLeft.Hours, h.TimeLeft.Mins)
	default:
		marker := ""
		if h.OverLimit {
			marker = " ⚠️"
		}
		fmt.Fprintf(&sb, "%s: *%d* / %d%s\n", h.CountLabel, h.CurrentCount, h.ActiveGoal, marker)
		if h.LastSessionAgo != "" {
			fmt.Fprintf(&sb, "Last session: %s\n", h.LastSessionAgo)
		}
	}

	fmt.Fprintf(&sb, "\n%s %s", mascot(h.MascotLevel), h.Message)
	if h.ButtonLabel != "" {
		fmt.Fprintf(&sb, "\n\n_%s_", h.ButtonLabel)
	}
	return sb.String()
}

// homeKeyboard holds the inline actions under the main screen, nil when there are none
func homeKeyboard(h view.Home) *tgbotapi.InlineKeyboardMarkup {
	var row []tgbotapi.InlineKeyboardButton
	if h.ShowUndo {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("↩️ Undo last", "home:undo"))
	}
	if h.ShowSlipUp {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(btnSlipUp, "home:slip"))
	}
	if len(row) == 0 {
		return nil
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(row)
	return &kb
}

func bar(count, peak int) string {
	if peak <= 0 {
		peak = 1
	}
	n := min(int(math.Round(float64(count)*barWidth/float64(peak))), barWidth)
	return strings.Repeat("█", n) + strings.Repeat("░", barWidth-n)
}

// statsText renders a statistics summary
func statsText(s stats.Summary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "*%s*\n```\n", s.Title)

	peak := s.MaxBucket()
	for _, b := range s.Buckets {
		fmt.Fprintf(&sb, "%-5s %s %d\n", b.Name, bar(b.Count, peak), b.Count)
	}
	sb.WriteString("```\n")

	fmt.Fprintf(&sb, "Sessions: *%d*  Avg/day: *%.1f*  Busiest day: *%d*\n", s.TotalSessions, s.AvgPerDay, s.BusiestDay)
	fmt.Fprintf(&sb, "Total: *%sg*  Spent: *%s*\n", strconv.FormatFloat(s.TotalGrams, 'f', -1, 64), view.Money(s.TotalCost))

	if len(s.Methods) > 0 {
		sb.WriteString("\n*Methods*\n")
		for _, g := range s.Methods {
			fmt.Fprintf(&sb, "%s %s: %d\n", domain.Method(g.Label).Emoji(), g.Label, g.Count)
		}
	}
	if len(s.Strains) > 0 {
		fmt.Fprintf(&sb, "\n*Strains* (%d unique)\n", s.UniqueStrains)
		for _, g := range s.Strains {
			fmt.Fprintf(&sb, "• %s: %d\n", tgbotapi.EscapeText(tgbotapi.ModeMarkdown, g.Label), g.Count)
		}
	}
	return sb.String()
}

// statsKeyboard is the window tab row; the active window is marked
func statsKeyboard(active stats.Window) tgbotapi.InlineKeyboardMarkup {
	var row []tgbotapi.InlineKeyboardButton
	for _, w := range stats.Windows {
		label := string(w)
		if w == active {
			label = "• " + label
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, "stats:"+string(w)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}

// recoveryText renders the recovery report
func recoveryText(r recovery.Report) string {
	var sb strings.Builder
	sb.WriteString("*Recovery*\n\n")
	if r.LastSession == nil {
		sb.WriteString("No sessions logged yet.\n")
	} else {
		fmt.Fprintf(&sb, "🌱 Sober for *%s*\n", view.Duration(r.Sober.Days, r.Sober.Hours))
	}
	fmt.Fprintf(&sb, "💸 Lifetime spend: *%s*\n", view.Money(r.LifetimeSpend))
	fmt.Fprintf(&sb, "📈 Projected yearly savings: *%s*\n\n*Health timeline*\n", view.Money(r.ProjectedSavings))

	for _, m := range r.Milestones {
		mark := "⬜"
		if m.Achieved {
			mark = "✅"
		}
		fmt.Fprintf(&sb, "%s %s: %s\n", mark, m.Label, m.Benefit)
	}
	return sb.String()
}

// settingsText lists every section with its current values
func settingsText(sections []view.SettingsSection) string {
	var sb strings.Builder
	sb.WriteString("*Settings*\n")
	for _, s := range sections {
		fmt.Fprintf(&sb, "\n*%s*\n", s.Title)
		for _, r := range s.Rows {
			if r.Value == "" {
				fmt.Fprintf(&sb, "• %s\n", r.Label)
				continue
			}
			fmt.Fprintf(&sb, "• %s: %s\n", r.Label, r.Value)
		}
	}
	return sb.String()
}

// settingsKeyboard has one button per row
func settingsKeyboard(sections []view.SettingsSection) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, s := range sections {
		for _, r := range s.Rows {
			label := r.Label
			if r.Danger {
				label = "⚠️ " + label
			}
			if r.Editable {
				label = "✏️ " + label
			}
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(label, "set:"+r.Key),
			))
		}
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// Actions that need confirmation
const (
	confirmReset       = "reset"
	confirmCancelBreak = "tbreak"
	confirmSlipUp      = "slip"
)

var confirmPrompts = map[string]string{
	confirmReset:       "Reset all data? Your sessions will be deleted and onboarding restarts.",
	confirmCancelBreak: "End your tolerance break early?",
	confirmSlipUp:      "Log a slip-up? Your sober timer will restart.",
}

func confirmKeyboard(action string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Yes", "confirm:"+action+":yes"),
		tgbotapi.NewInlineKeyboardButtonData("No", "confirm:"+action+":no"),
	))
}

// editPrompts ask for numeric settings input
var editPrompts = map[string]string{
	view.SettingGoal:       "Send your new goal (number of sessions).",
	view.SettingCost:       "Send your cost per gram.",
	view.SettingStartBreak: "How many days should your tolerance break last?",
}

// draft is the detailed log being composed
type draft struct {
	Method    domain.Method
	Amount    string
	Strain    string
	MessageID int
}

func newDraft() *draft {
	return &draft{Method: domain.MethodJoint, Amount: domain.DetailedLogAmount}
}

func draftText(d *draft) string {
	strain := d.Strain
	if strain == "" {
		strain = "type a name, or leave blank"
	}
	return fmt.Sprintf("*Log Session*\n\nMethod: %s %s\nAmount: %s\nStrain: %s",
		d.Method.Emoji(), d.Method, d.Amount, tgbotapi.EscapeText(tgbotapi.ModeMarkdown, strain))
}

func draftKeyboard(d *draft) tgbotapi.InlineKeyboardMarkup {
	var methods, amounts []tgbotapi.InlineKeyboardButton
	for _, m := range domain.Methods {
		label := m.Emoji()
		if m == d.Method {
			label += " •"
		}
		methods = append(methods, tgbotapi.NewInlineKeyboardButtonData(label, "log:method:"+string(m)))
	}
	for _, a := range domain.Amounts {
		label := a
		if a == d.Amount {
			label = "• " + a
		}
		amounts = append(amounts, tgbotapi.NewInlineKeyboardButtonData(label, "log:amount:"+a))
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		methods,
		amounts,
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("💾 Save", "log:save"),
			tgbotapi.NewInlineKeyboardButtonData("⚡ Quick", "log:quick"),
			tgbotapi.NewInlineKeyboardButtonData("✖️ Cancel", "log:cancel"),
		),
	)
}

var onboardingSteps = []string{
	"*Meet Herb*\n\nYour friendly guide to smarter, happier consumption habits.",
	"*What's your goal?*\n\nPick the one that fits you best. You can change your mind later.",
	"*You're all set*\n\nTap 🌿 to log a session, hold ✋ to add details.",
}

func onboardingText(step int, goal string) string {
	text := onboardingSteps[min(step, len(onboardingSteps)-1)]
	if step == 1 && goal != "" {
		text += "\n\nSelected: *" + goal + "*"
	}
	return text
}

func onboardingKeyboard(step int) tgbotapi.InlineKeyboardMarkup {
	switch step {
	case 0:
		return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Get Started", "onb:next"),
		))
	case 1:
		var rows [][]tgbotapi.InlineKeyboardButton
		for i, g := range domain.GoalChoices {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(g, "onb:goal:"+strconv.Itoa(i)),
			))
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Continue", "onb:next"),
		))
		return tgbotapi.NewInlineKeyboardMarkup(rows...)
	default:
		return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Let's Go", "onb:finish"),
		))
	}
}

const paywallText = "*Herb Premium*\n\n" +
	"• Unlimited history and exports\n" +
	"• Tolerance break coaching\n" +
	"• Recovery milestones\n\n" +
	"Try it free for 7 days."

func paywallKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Maybe later", "pay:close"),
	))
}

// exportCSV writes sessions as CSV, newest first
func exportCSV(sessions []domain.Session, rate float64, loc *time.Location) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"id", "timestamp", "method", "amount", "strain", "cost"}); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, s := range sessions {
		record := []string{
			s.ID,
			s.Timestamp.In(loc).Format(time.RFC3339),
			string(s.Method.Normalize()),
			s.Amount,
			stats.StrainLabel(s.Strain),
			strconv.FormatFloat(s.CostAt(rate), 'f', 2, 64),
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write csv record: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv: %w", err)
	}

	return buf.Bytes(), nil
}
