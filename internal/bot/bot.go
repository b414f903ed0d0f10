package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"github.com/glebk/herb-bot/internal/config"
	"github.com/glebk/herb-bot/internal/gesture"
	"github.com/glebk/herb-bot/internal/service"
)

// telegramAPI is the part of *tgbotapi.BotAPI the bot uses
type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot represents the Telegram bot
type Bot struct {
	api     telegramAPI
	service *service.HerbService
	config  *config.Config
	limiter *rate.Limiter
	ctx     context.Context

	mu    sync.Mutex
	chats map[int64]*chatState
}

// chatState is the per-chat interaction state that is not persisted
type chatState struct {
	machine        *gesture.Machine
	draft          *draft
	editing        string
	onboardingStep int
	goal           string
	paywall        bool
}

// New creates a new Bot instance
func New(svc *service.HerbService, cfg *config.Config) (*Bot, error) {
	if err := cfg.RequireToken(); err != nil {
		return nil, err
	}

	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	log.Printf("Authorized on account %s", api.Self.UserName)

	return newBot(api, svc, cfg), nil
}

func newBot(api telegramAPI, svc *service.HerbService, cfg *config.Config) *Bot {
	return &Bot{
		api:     api,
		service: svc,
		config:  cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.SendRate), cfg.SendBurst),
		ctx:     context.Background(),
		chats:   make(map[int64]*chatState),
	}
}

// Start starts the bot and blocks until ctx is done
func (b *Bot) Start(ctx context.Context) error {
	b.ctx = ctx

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message != nil {
				b.handleMessage(update.Message)
			} else if update.CallbackQuery != nil {
				b.handleCallbackQuery(update.CallbackQuery)
			}
		}
	}
}

func scopeOf(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}

// chat returns the state of a chat, creating its gesture machine on first use
func (b *Bot) chat(chatID int64) *chatState {
	b.mu.Lock()
	defer b.mu.Unlock()

	if st, ok := b.chats[chatID]; ok {
		return st
	}

	scope := scopeOf(chatID)
	st := &chatState{}
	st.machine = gesture.NewMachine(b.config.HoldThreshold,
		func() bool { return b.service.Quitting(scope) },
		gesture.Handlers{
			QuickLog:        func() { b.quickLog(chatID) },
			OpenDetailedLog: func() { b.openDetailedLog(chatID) },
		},
	)
	b.chats[chatID] = st
	return st
}

// withChat runs fn under the state lock
func (b *Bot) withChat(chatID int64, fn func(st *chatState)) {
	st := b.chat(chatID)
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(st)
}

// send passes every outgoing call through the rate limiter
func (b *Bot) send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if err := b.limiter.Wait(b.ctx); err != nil {
		return tgbotapi.Message{}, fmt.Errorf("failed to wait for send slot: %w", err)
	}
	return b.api.Send(c)
}

func (b *Bot) request(c tgbotapi.Chattable) error {
	if err := b.limiter.Wait(b.ctx); err != nil {
		return fmt.Errorf("failed to wait for send slot: %w", err)
	}
	_, err := b.api.Request(c)
	return err
}

// sendMessage sends a simple text message
func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.send(msg); err != nil {
		log.Printf("Error sending message: %v", err)
	}
}

// sendMarkdown sends a Markdown message with optional markup
func (b *Bot) sendMarkdown(chatID int64, text string, markup interface{}) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	return b.send(msg)
}

// editMarkdown replaces the text and inline keyboard of a message
func (b *Bot) editMarkdown(chatID int64, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup) {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeMarkdown
	edit.ReplyMarkup = markup
	if _, err := b.send(edit); err != nil {
		log.Printf("Error editing message: %v", err)
	}
}

// answerCallback answers a callback query
func (b *Bot) answerCallback(callbackID string, text string) {
	callback := tgbotapi.NewCallback(callbackID, text)
	if err := b.request(callback); err != nil {
		log.Printf("Error answering callback: %v", err)
	}
}

// puff shows a short-lived message after a successful log
func (b *Bot) puff(chatID int64) {
	sent, err := b.send(tgbotapi.NewMessage(chatID, "💨"))
	if err != nil {
		log.Printf("Error sending puff: %v", err)
		return
	}
	time.AfterFunc(b.config.PuffDuration, func() {
		if err := b.request(tgbotapi.NewDeleteMessage(chatID, sent.MessageID)); err != nil {
			log.Printf("Error deleting puff: %v", err)
		}
	})
}

// reportError logs err and tells the user something went wrong
func (b *Bot) reportError(chatID int64, action string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	log.Printf("Error %s for chat %d: %v", action, chatID, err)
	b.sendMessage(chatID, "❌ Something went wrong. Please try again.")
}
