package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/xaenox/justask-bot/internal/assistant"
	"github.com/xaenox/justask-bot/internal/conversation"
	"github.com/xaenox/justask-bot/internal/models"
	"github.com/xaenox/justask-bot/internal/prompt"
	"github.com/xaenox/justask-bot/internal/reminder"
	"github.com/xaenox/justask-bot/internal/search"
	"github.com/xaenox/justask-bot/internal/storage"
	"github.com/xaenox/justask-bot/internal/telegram"
	"go.uber.org/zap"
)

type Options struct {
	SearchEnabled bool
	SearchResults int
}

type Bot struct {
	api       *tgbotapi.BotAPI
	store     storage.Storage
	assistant *assistant.Client
	search    *search.Service
	scheduler *reminder.Scheduler
	contexts  *conversation.Tracker
	logger    *zap.Logger
	opts      Options

	mu        sync.Mutex
	userLocks map[int64]*sync.Mutex
	lastReply map[int64]lastReply
}

// lastReply keeps what is needed to regenerate a user's latest response.
type lastReply struct {
	responseID string
	title      string
	prompt     string
	chatID     int64
}

func New(token string, store storage.Storage, model *assistant.Client, searcher *search.Service,
	scheduler *reminder.Scheduler, contexts *conversation.Tracker, opts Options, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return &Bot{
		api:       api,
		store:     store,
		assistant: model,
		search:    searcher,
		scheduler: scheduler,
		contexts:  contexts,
		logger:    logger,
		opts:      opts,
		userLocks: make(map[int64]*sync.Mutex),
		lastReply: make(map[int64]lastReply),
	}, nil
}

func (b *Bot) Start() error {
	b.setCommandMenu()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for update := range updates {
		switch {
		case update.Message != nil:
			go b.handleMessage(update.Message)
		case update.CallbackQuery != nil:
			go b.handleCallback(update.CallbackQuery)
		}
	}

	return nil
}

// Stop ends the update loop; in-flight handlers finish on their own.
func (b *Bot) Stop() {
	b.api.StopReceivingUpdates()
}

func (b *Bot) setCommandMenu() {
	cfg := tgbotapi.NewSetMyCommands(
		tgbotapi.BotCommand{Command: "start", Description: "Start the bot"},
		tgbotapi.BotCommand{Command: "help", Description: "Show help information"},
		tgbotapi.BotCommand{Command: "translate", Description: "Translate text"},
		tgbotapi.BotCommand{Command: "summarize", Description: "Summarize text"},
		tgbotapi.BotCommand{Command: "generate", Description: "Generate creative content"},
		tgbotapi.BotCommand{Command: "reset", Description: "Reset conversation history"},
		tgbotapi.BotCommand{Command: "search", Description: "Search the web"},
		tgbotapi.BotCommand{Command: "ask", Description: "Ask a question"},
		tgbotapi.BotCommand{Command: "learn", Description: "Add to the knowledge base"},
		tgbotapi.BotCommand{Command: "preferences", Description: "View your preferences"},
		tgbotapi.BotCommand{Command: "setpreference", Description: "Set a preference"},
		tgbotapi.BotCommand{Command: "deletepreference", Description: "Delete a preference"},
		tgbotapi.BotCommand{Command: "remind", Description: "Set a reminder"},
		tgbotapi.BotCommand{Command: "reminders", Description: "View your reminders"},
		tgbotapi.BotCommand{Command: "cancelreminder", Description: "Cancel a reminder"},
		tgbotapi.BotCommand{Command: "feedback", Description: "Rate your experience"},
	)
	if _, err := b.api.Request(cfg); err != nil {
		b.logger.Warn("Failed to set command menu", zap.Error(err))
	}
}

func (b *Bot) handleMessage(message *tgbotapi.Message) {
	ctx := context.Background()

	if message.IsCommand() {
		b.handleCommand(ctx, message)
		return
	}

	if message.Text == "" {
		return
	}

	b.handleConverse(ctx, message)
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	args := message.CommandArguments()

	switch ParseCommand(message.Command()) {
	case CmdStart:
		b.handleStart(message)
	case CmdHelp:
		b.handleHelp(message)
	case CmdReset:
		b.handleReset(message)
	case CmdTranslate:
		b.handleTranslate(ctx, message, args)
	case CmdSummarize:
		b.handleSummarize(ctx, message, args)
	case CmdGenerate:
		b.handleGenerate(ctx, message, args)
	case CmdAsk:
		b.handleAsk(ctx, message, args)
	case CmdSearch:
		b.handleSearch(ctx, message, args)
	case CmdLearn:
		b.handleLearn(ctx, message, args)
	case CmdPreferences:
		b.handlePreferences(ctx, message)
	case CmdSetPreference:
		b.handleSetPreference(ctx, message, args)
	case CmdDeletePreference:
		b.handleDeletePreference(ctx, message, args)
	case CmdRemind:
		b.handleRemind(ctx, message, args)
	case CmdReminders:
		b.handleReminders(ctx, message)
	case CmdCancelReminder:
		b.handleCancelReminder(ctx, message, args)
	case CmdFeedback:
		b.handleFeedback(message)
	case CmdUnknown:
		b.sendMessage(message.Chat.ID, "Unknown command. Use /help to see available commands.")
	}
}

// handleConverse runs a free-form chat turn: recent context and stored
// preferences go into the prompt, and both sides of the exchange are appended
// to the context afterwards. Turns of one user are serialized so each append
// is visible to that user's next prompt build.
func (b *Bot) handleConverse(ctx context.Context, message *tgbotapi.Message) {
	userID := message.From.ID

	lock := b.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	b.sendTyping(message.Chat.ID)

	prefs := b.preferences(ctx, userID)
	history := b.contexts.Get(userID)

	built, err := prompt.Build(prompt.Input{
		Feature: prompt.FeatureConverse,
		Text:    message.Text,
		Now:     time.Now(),
	}, prefs, history)
	if err != nil {
		b.logger.Error("Failed to build prompt", zap.Error(err), zap.Int64("user_id", userID))
		b.sendErrorMessage(message.Chat.ID, "Sorry, I couldn't process that message.")
		return
	}

	output, ok := b.completeOrReport(ctx, message.Chat.ID, built)
	if !ok {
		return
	}

	b.contexts.Append(userID, models.RoleUser, message.Text)
	b.contexts.Append(userID, models.RoleAssistant, output)

	b.sendModelResponse(message.Chat.ID, userID, "", built, output)
}

// completeOrReport calls the model and converts failures into user-facing
// messages. Quota and availability errors are reported with a retry hint, as
// the dispatcher does not retry on its own.
func (b *Bot) completeOrReport(ctx context.Context, chatID int64, built string) (string, bool) {
	output, err := b.assistant.Complete(ctx, built)
	if err != nil {
		switch {
		case errors.Is(err, assistant.ErrModelQuotaExceeded):
			b.sendErrorMessage(chatID, "I'm handling too many requests right now. Please try again in a minute.")
		case errors.Is(err, assistant.ErrModelUnavailable):
			b.sendErrorMessage(chatID, "The language model is unavailable at the moment. Please try again later.")
		default:
			b.sendErrorMessage(chatID, "Something went wrong. Please try again later.")
		}
		return "", false
	}
	return output, true
}

// sendModelResponse formats a model reply for Telegram, splits it to the
// message limit and attaches the control row to the final chunk. The built
// prompt is remembered per user so the regenerate control can re-run it.
func (b *Bot) sendModelResponse(chatID, userID int64, title, builtPrompt, output string) {
	responseID := uuid.New().String()

	b.mu.Lock()
	b.lastReply[userID] = lastReply{
		responseID: responseID,
		title:      title,
		prompt:     builtPrompt,
		chatID:     chatID,
	}
	b.mu.Unlock()

	body := telegram.FormatForTransport(output)
	if title != "" {
		body = telegram.Bold(title) + "\n\n" + body
	}

	chunks := telegram.Split(body, telegram.MaxMessageLength)
	for i, chunk := range chunks {
		msg := tgbotapi.NewMessage(chatID, chunk)
		msg.ParseMode = tgbotapi.ModeHTML
		if i == len(chunks)-1 {
			msg.ReplyMarkup = telegram.AttachControls(responseID)
		}
		if _, err := b.api.Send(msg); err != nil {
			b.logger.Error("Failed to send response chunk",
				zap.Error(err),
				zap.Int64("chat_id", chatID),
				zap.Int("chunk", i))
			return
		}
	}
}

// DeliverReminder is the scheduler's notification callback.
func (b *Bot) DeliverReminder(r *models.Reminder) {
	text := fmt.Sprintf("⏰ %s\n\n%s", telegram.Bold("Reminder"), telegram.FormatForTransport(r.Text))

	msg := tgbotapi.NewMessage(r.UserID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to deliver reminder",
			zap.Error(err),
			zap.Int64("reminder_id", r.ID),
			zap.Int64("user_id", r.UserID))
	}
}

func (b *Bot) preferences(ctx context.Context, userID int64) map[string]string {
	prefs, err := b.store.GetPreferences(ctx, userID)
	if err != nil {
		b.logger.Error("Failed to load preferences",
			zap.Error(err),
			zap.Int64("user_id", userID))
		return map[string]string{}
	}
	return prefs
}

func (b *Bot) userLock(userID int64) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()

	lock, exists := b.userLocks[userID]
	if !exists {
		lock = &sync.Mutex{}
		b.userLocks[userID] = lock
	}
	return lock
}

func (b *Bot) sendTyping(chatID int64) {
	if _, err := b.api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		b.logger.Debug("Failed to send typing action", zap.Error(err))
	}
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendHTML(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendErrorMessage(chatID int64, text string) {
	b.sendMessage(chatID, "⚠️ "+text)
}
