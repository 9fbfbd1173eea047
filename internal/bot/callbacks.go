package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/xaenox/justask-bot/internal/models"
	"github.com/xaenox/justask-bot/internal/telegram"
	"go.uber.org/zap"
)

func (b *Bot) handleCallback(callback *tgbotapi.CallbackQuery) {
	ctx := context.Background()
	data := callback.Data

	switch {
	case strings.HasPrefix(data, telegram.CallbackRateUp):
		b.recordFeedback(ctx, callback, strings.TrimPrefix(data, telegram.CallbackRateUp), 1)
	case strings.HasPrefix(data, telegram.CallbackRateDown):
		b.recordFeedback(ctx, callback, strings.TrimPrefix(data, telegram.CallbackRateDown), -1)
	case strings.HasPrefix(data, telegram.CallbackRegenerate):
		b.regenerate(ctx, callback, strings.TrimPrefix(data, telegram.CallbackRegenerate))
	case data == "reset:confirm":
		b.contexts.Reset(callback.From.ID)
		b.answerCallback(callback.ID, "History cleared")
		b.sendMessage(callback.Message.Chat.ID, "🔄 Conversation history has been reset. Let's start fresh!")
	case data == "reset:cancel":
		b.answerCallback(callback.ID, "Kept as is")
		b.sendMessage(callback.Message.Chat.ID, "Conversation history kept.")
	default:
		b.answerCallback(callback.ID, "")
	}
}

func (b *Bot) recordFeedback(ctx context.Context, callback *tgbotapi.CallbackQuery, responseID string, rating int) {
	record := &models.FeedbackRecord{
		UserID:     callback.From.ID,
		ResponseID: responseID,
		Rating:     rating,
	}
	if err := b.store.SaveFeedback(ctx, record); err != nil {
		b.logger.Error("Failed to save feedback",
			zap.Error(err),
			zap.Int64("user_id", callback.From.ID))
		b.answerCallback(callback.ID, "Couldn't save your feedback")
		return
	}

	if rating > 0 {
		b.answerCallback(callback.ID, "Thanks for the positive feedback! 😊")
	} else {
		b.answerCallback(callback.ID, "Thanks, I'll try to do better")
	}
}

// regenerate re-runs the stored prompt behind the user's latest response. Only
// the most recent response per user can be regenerated; older control rows get
// a polite refusal.
func (b *Bot) regenerate(ctx context.Context, callback *tgbotapi.CallbackQuery, responseID string) {
	userID := callback.From.ID

	b.mu.Lock()
	last, ok := b.lastReply[userID]
	b.mu.Unlock()

	if !ok || last.responseID != responseID {
		b.answerCallback(callback.ID, "Only the latest response can be regenerated")
		return
	}

	b.answerCallback(callback.ID, "Regenerating...")
	b.sendTyping(last.chatID)

	output, ok := b.completeOrReport(ctx, last.chatID, last.prompt)
	if !ok {
		return
	}

	b.sendModelResponse(last.chatID, userID, last.title, last.prompt, output)
}

func (b *Bot) answerCallback(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.logger.Debug("Failed to answer callback", zap.Error(err))
	}
}
