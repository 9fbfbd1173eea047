package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/xaenox/justask-bot/internal/models"
	"github.com/xaenox/justask-bot/internal/prompt"
	"github.com/xaenox/justask-bot/internal/reminder"
	"github.com/xaenox/justask-bot/internal/search"
	"github.com/xaenox/justask-bot/internal/storage"
	"github.com/xaenox/justask-bot/internal/telegram"
	"go.uber.org/zap"
)

const knowledgeSearchLimit = 5

func (b *Bot) handleStart(message *tgbotapi.Message) {
	name := message.From.FirstName
	if name == "" {
		name = "there"
	}

	welcome := fmt.Sprintf(`👋 Hello, %s!

I'm Just Ask AI. I can help you with:
• Answering questions and having conversations
• Translating text between languages
• Summarizing long texts
• Generating creative content
• Searching the web for information
• Setting reminders and notifications
• Personalizing responses to your preferences

Just send me a message, or use /help to see all commands.`, name)

	b.sendMessage(message.Chat.ID, welcome)
}

func (b *Bot) handleHelp(message *tgbotapi.Message) {
	help := `Available commands:

Core
/start - Start the bot
/help - Show this help message
/reset - Reset conversation history

Language
/translate <text> to <language> - Translate text
/summarize <text> - Summarize text (or reply to a message)
/generate <poem|story|joke|code> <topic> - Generate creative content

Information
/ask <question> - Ask a factual question
/search <query> - Search the web
/learn <question> | <answer> - Add to the knowledge base

Personalization
/preferences - View your preferences
/setpreference <key> <value> - Set a preference
/deletepreference <key> - Delete a preference

Reminders
/remind <text> <when> - Set a reminder, e.g. /remind Call John in 30 minutes
/reminders - View your pending reminders
/cancelreminder <id> - Cancel a reminder

/feedback - Rate your experience

You can also just send me a message and I'll respond!`

	b.sendMessage(message.Chat.ID, help)
}

func (b *Bot) handleReset(message *tgbotapi.Message) {
	msg := tgbotapi.NewMessage(message.Chat.ID,
		"Are you sure you want to reset our conversation history? This clears all previous context.")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Yes, reset history", "reset:confirm"),
			tgbotapi.NewInlineKeyboardButtonData("No, keep history", "reset:cancel"),
		),
	)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send reset confirmation",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID))
	}
}

func (b *Bot) handleTranslate(ctx context.Context, message *tgbotapi.Message, args string) {
	text, target, found := cutLast(args, " to ")
	if args == "" || !found {
		b.sendMessage(message.Chat.ID,
			"Please provide text and a target language.\nExample: /translate Hello to Spanish")
		return
	}

	b.runFeature(ctx, message, "🌐 Translation to "+target, prompt.Input{
		Feature: prompt.FeatureTranslate,
		Text:    strings.TrimSpace(text),
		Target:  target,
	})
}

func (b *Bot) handleSummarize(ctx context.Context, message *tgbotapi.Message, args string) {
	text := args
	if text == "" && message.ReplyToMessage != nil {
		text = message.ReplyToMessage.Text
	}
	if text == "" {
		b.sendMessage(message.Chat.ID,
			"Please provide text to summarize, or reply to a message with /summarize.")
		return
	}

	b.runFeature(ctx, message, "📝 Summary", prompt.Input{
		Feature: prompt.FeatureSummarize,
		Text:    text,
	})
}

func (b *Bot) handleGenerate(ctx context.Context, message *tgbotapi.Message, args string) {
	kind, topic, _ := strings.Cut(args, " ")
	kind = strings.ToLower(kind)

	validKinds := map[string]bool{"poem": true, "story": true, "joke": true, "code": true}
	if topic == "" || !validKinds[kind] {
		b.sendMessage(message.Chat.ID,
			"Please specify what to generate.\nExample: /generate poem about nature\nContent types: poem, story, joke, code")
		return
	}

	b.runFeature(ctx, message, "✨ Generated "+kind, prompt.Input{
		Feature: prompt.FeatureGenerate,
		Text:    strings.TrimSpace(topic),
		Kind:    kind,
	})
}

func (b *Bot) handleAsk(ctx context.Context, message *tgbotapi.Message, args string) {
	if args == "" {
		b.sendMessage(message.Chat.ID,
			"Please provide a question.\nExample: /ask What is the capital of France?")
		return
	}

	b.sendTyping(message.Chat.ID)

	b.runFeature(ctx, message, "", prompt.Input{
		Feature: prompt.FeatureAsk,
		Text:    args,
		Extra:   b.gatherAskContext(ctx, args),
	})
}

// gatherAskContext collects grounding text for a factual question: knowledge
// base hits first, then scraped search results when search is enabled.
func (b *Bot) gatherAskContext(ctx context.Context, question string) string {
	var parts []string

	items, err := b.store.SearchKnowledge(ctx, question, knowledgeSearchLimit)
	if err != nil {
		b.logger.Error("Knowledge search failed", zap.Error(err))
	} else if len(items) > 0 {
		var kb strings.Builder
		kb.WriteString("Knowledge base information:\n\n")
		for _, item := range items {
			fmt.Fprintf(&kb, "Q: %s\nA: %s\n\n", item.Question, item.Answer)
		}
		parts = append(parts, kb.String())
	}

	if b.opts.SearchEnabled {
		results := b.search.Search(ctx, question, b.opts.SearchResults)
		if formatted := search.FormatForPrompt(results); formatted != "" {
			parts = append(parts, formatted)
		}
	}

	return strings.Join(parts, "\n")
}

func (b *Bot) handleSearch(ctx context.Context, message *tgbotapi.Message, args string) {
	if args == "" {
		b.sendMessage(message.Chat.ID,
			"Please provide a search query.\nExample: /search latest news about AI")
		return
	}

	b.sendTyping(message.Chat.ID)

	results := b.search.Search(ctx, args, b.opts.SearchResults)
	if len(results) == 0 {
		// No usable results; fall back to a model-only answer.
		b.runFeature(ctx, message, fmt.Sprintf("🔍 Search for %q", args), prompt.Input{
			Feature: prompt.FeatureAsk,
			Text:    args,
		})
		return
	}

	var body strings.Builder
	fmt.Fprintf(&body, "%s\n\n", telegram.Bold(fmt.Sprintf("🔍 Search results for %q", args)))
	for i, r := range results {
		snippet := r.Snippet
		if len(snippet) > 200 {
			snippet = snippet[:197] + "..."
		}
		fmt.Fprintf(&body, "%d. %s\n%s\n%s\n\n",
			i+1, telegram.Bold(r.Title), html.EscapeString(snippet), telegram.Link("🔗 Source", r.Link))
	}

	b.sendHTML(message.Chat.ID, strings.TrimSpace(body.String()))
}

func (b *Bot) handleLearn(ctx context.Context, message *tgbotapi.Message, args string) {
	question, answer, found := strings.Cut(args, "|")
	if args == "" || !found || strings.TrimSpace(answer) == "" {
		b.sendMessage(message.Chat.ID,
			"Please provide a question and answer separated by |.\nExample: /learn What is Just Ask AI? | A Telegram assistant bot.")
		return
	}

	item := &models.KnowledgeItem{
		Question: strings.TrimSpace(question),
		Answer:   strings.TrimSpace(answer),
	}
	if err := b.store.AddKnowledge(ctx, item); err != nil {
		b.logger.Error("Failed to add knowledge", zap.Error(err))
		b.sendErrorMessage(message.Chat.ID, "Failed to add to the knowledge base. Please try again later.")
		return
	}

	b.sendHTML(message.Chat.ID, fmt.Sprintf("✅ Added to the knowledge base.\n\nQ: %s\nA: %s",
		telegram.Bold(item.Question), html.EscapeString(item.Answer)))
}

func (b *Bot) handlePreferences(ctx context.Context, message *tgbotapi.Message) {
	prefs := b.preferences(ctx, message.From.ID)

	if len(prefs) == 0 {
		b.sendMessage(message.Chat.ID,
			"You don't have any preferences set yet.\nUse /setpreference <key> <value>, e.g. /setpreference language Spanish\nKeys: "+strings.Join(models.PreferenceKeys, ", "))
		return
	}

	var body strings.Builder
	body.WriteString(telegram.Bold("⚙️ Your preferences") + "\n\n")
	for _, key := range models.PreferenceKeys {
		if value, ok := prefs[key]; ok {
			fmt.Fprintf(&body, "• %s: %s\n", telegram.Bold(key), html.EscapeString(value))
		}
	}
	body.WriteString("\n" + telegram.Italic("Preferences personalize my responses. Change them with /setpreference or remove with /deletepreference."))

	b.sendHTML(message.Chat.ID, body.String())
}

func (b *Bot) handleSetPreference(ctx context.Context, message *tgbotapi.Message, args string) {
	key, value, found := strings.Cut(args, " ")
	key = strings.ToLower(strings.TrimSpace(key))
	value = strings.TrimSpace(value)

	if !found || value == "" {
		b.sendMessage(message.Chat.ID,
			"Please provide a key and a value.\nExample: /setpreference tone casual\nKeys: "+strings.Join(models.PreferenceKeys, ", "))
		return
	}

	err := b.store.SetPreference(ctx, message.From.ID, key, value)
	if errors.Is(err, storage.ErrInvalidPreferenceKey) {
		b.sendMessage(message.Chat.ID, fmt.Sprintf(
			"%q is not a valid preference key. Choose from: %s", key, strings.Join(models.PreferenceKeys, ", ")))
		return
	}
	if err != nil {
		b.reportStorageError(message.Chat.ID, err, "set preference")
		return
	}

	b.sendHTML(message.Chat.ID, fmt.Sprintf("✅ Your %s preference is now %q.",
		telegram.Bold(key), html.EscapeString(value)))
}

func (b *Bot) handleDeletePreference(ctx context.Context, message *tgbotapi.Message, args string) {
	key := strings.ToLower(strings.TrimSpace(args))
	if key == "" {
		b.sendMessage(message.Chat.ID,
			"Please provide the preference key to delete.\nExample: /deletepreference tone")
		return
	}

	if err := b.store.DeletePreference(ctx, message.From.ID, key); err != nil {
		b.reportStorageError(message.Chat.ID, err, "delete preference")
		return
	}

	b.sendHTML(message.Chat.ID, fmt.Sprintf("✅ Your %s preference has been deleted.", telegram.Bold(key)))
}

func (b *Bot) handleRemind(ctx context.Context, message *tgbotapi.Message, args string) {
	if args == "" {
		b.sendMessage(message.Chat.ID,
			"Please provide a reminder text and time.\nExamples:\n• /remind Call John in 30 minutes\n• /remind Buy milk tomorrow at 10am\n• /remind Meeting on Friday at 2pm")
		return
	}

	r, err := b.scheduler.Schedule(ctx, message.From.ID, args)
	switch {
	case errors.Is(err, reminder.ErrUnparseableTime):
		b.sendMessage(message.Chat.ID,
			"I couldn't understand when you want to be reminded. Try:\n• in 30 minutes\n• tomorrow at 10am\n• on Friday at 2pm")
		return
	case errors.Is(err, reminder.ErrTooManyReminders):
		b.sendMessage(message.Chat.ID,
			"You have reached the maximum number of pending reminders. Cancel one with /cancelreminder first.")
		return
	case err != nil:
		b.reportStorageError(message.Chat.ID, err, "set reminder")
		return
	}

	b.sendHTML(message.Chat.ID, fmt.Sprintf("✅ %s\n\nI'll remind you: %s\nOn: %s\nReminder ID: %d",
		telegram.Bold("Reminder set"),
		telegram.Bold(r.Text),
		r.FireAt.Format("Monday, January 2, 2006 at 3:04 PM"),
		r.ID))
}

func (b *Bot) handleReminders(ctx context.Context, message *tgbotapi.Message) {
	reminders, err := b.scheduler.List(ctx, message.From.ID)
	if err != nil {
		b.reportStorageError(message.Chat.ID, err, "list reminders")
		return
	}

	if len(reminders) == 0 {
		b.sendMessage(message.Chat.ID,
			"You don't have any pending reminders. Use /remind to set one.")
		return
	}

	var body strings.Builder
	body.WriteString(telegram.Bold("⏰ Your pending reminders") + "\n\n")
	for _, r := range reminders {
		fmt.Fprintf(&body, "• ID %d: %s on %s\n",
			r.ID, telegram.Bold(r.Text), r.FireAt.Format("Monday, January 2 at 3:04 PM"))
	}
	body.WriteString("\n" + telegram.Italic("Use /cancelreminder <id> to cancel a reminder."))

	b.sendHTML(message.Chat.ID, body.String())
}

func (b *Bot) handleCancelReminder(ctx context.Context, message *tgbotapi.Message, args string) {
	id, err := strconv.ParseInt(strings.TrimSpace(args), 10, 64)
	if args == "" || err != nil {
		b.sendMessage(message.Chat.ID,
			"Please provide a reminder ID to cancel.\nExample: /cancelreminder 123\nUse /reminders to see your pending reminders.")
		return
	}

	err = b.scheduler.Cancel(ctx, id, message.From.ID)
	switch {
	case errors.Is(err, reminder.ErrNotFound):
		b.sendMessage(message.Chat.ID, fmt.Sprintf("Reminder %d was not found among your pending reminders.", id))
	case err != nil:
		b.reportStorageError(message.Chat.ID, err, "cancel reminder")
	default:
		b.sendHTML(message.Chat.ID, fmt.Sprintf("✅ Reminder %d has been cancelled.", id))
	}
}

func (b *Bot) handleFeedback(message *tgbotapi.Message) {
	msg := tgbotapi.NewMessage(message.Chat.ID,
		"How is your experience with Just Ask AI? Your feedback helps improve the bot.")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("👍 Good", telegram.CallbackRateUp+"general"),
			tgbotapi.NewInlineKeyboardButtonData("👎 Not great", telegram.CallbackRateDown+"general"),
		),
	)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send feedback prompt",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID))
	}
}

// runFeature builds a feature prompt with the user's preferences, calls the
// model and replies with controls attached.
func (b *Bot) runFeature(ctx context.Context, message *tgbotapi.Message, title string, in prompt.Input) {
	b.sendTyping(message.Chat.ID)

	in.Now = time.Now()
	built, err := prompt.Build(in, b.preferences(ctx, message.From.ID), nil)
	if err != nil {
		b.logger.Error("Failed to build prompt",
			zap.Error(err),
			zap.String("feature", string(in.Feature)))
		b.sendErrorMessage(message.Chat.ID, "Sorry, I couldn't process that request.")
		return
	}

	output, ok := b.completeOrReport(ctx, message.Chat.ID, built)
	if !ok {
		return
	}

	b.sendModelResponse(message.Chat.ID, message.From.ID, title, built, output)
}

func (b *Bot) reportStorageError(chatID int64, err error, action string) {
	b.logger.Error("Storage operation failed", zap.Error(err), zap.String("action", action))
	if errors.Is(err, storage.ErrStorageUnavailable) {
		b.sendErrorMessage(chatID, "Storage is temporarily unavailable. Please try again in a moment.")
		return
	}
	b.sendErrorMessage(chatID, fmt.Sprintf("Sorry, I couldn't %s. Please try again later.", action))
}

// cutLast splits s around the final occurrence of sep.
func cutLast(s, sep string) (before, after string, found bool) {
	i := strings.LastIndex(s, sep)
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+len(sep):], true
}
