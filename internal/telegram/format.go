// Package telegram adapts raw model output to the Telegram message surface:
// markup conversion, length-limited splitting and inline reply controls.
package telegram

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// MaxMessageLength is Telegram's hard limit on message text.
const MaxMessageLength = 4096

// Callback data prefixes for the fixed control set.
const (
	CallbackRateUp     = "fb:up:"
	CallbackRateDown   = "fb:down:"
	CallbackRegenerate = "regen:"
)

var (
	boldPattern    = regexp.MustCompile(`\*\*(.+?)\*\*|\*([^*\n]+?)\*`)
	italicPattern  = regexp.MustCompile(`\b_([^_\n]+?)_\b`)
	codePattern    = regexp.MustCompile("`([^`\n]+?)`")
	bulletPattern  = regexp.MustCompile(`(?m)^\s*[*-] `)
	newlinePattern = regexp.MustCompile(`\n{3,}`)
)

// FormatForTransport converts the model's light markdown into Telegram HTML.
// Asterisk/underscore emphasis becomes <b>/<i>, backticks become <code>, and
// list markers become bullets.
func FormatForTransport(raw string) string {
	text := html.EscapeString(raw)

	text = bulletPattern.ReplaceAllString(text, "• ")
	text = boldPattern.ReplaceAllString(text, "<b>$1$2</b>")
	text = italicPattern.ReplaceAllString(text, "<i>$1</i>")
	text = codePattern.ReplaceAllString(text, "<code>$1</code>")
	text = newlinePattern.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text)
}

// Split cuts text into ordered chunks of at most limit runes. Split points
// are chosen at paragraph breaks first, then sentence ends, then word
// boundaries; a chunk never ends mid-word unless a single word exceeds the
// limit by itself.
func Split(text string, limit int) []string {
	if limit < 1 {
		limit = MaxMessageLength
	}
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var chunks []string
	rest := text
	for utf8.RuneCountInString(rest) > limit {
		window := string([]rune(rest)[:limit])

		cut := strings.LastIndex(window, "\n\n")
		if cut < limit/4 {
			if i := lastSentenceEnd(window); i > limit/4 {
				cut = i
			} else if i := strings.LastIndexAny(window, " \n"); i > 0 {
				cut = i
			} else {
				cut = len(window)
			}
		}

		chunks = append(chunks, strings.TrimSpace(rest[:cut]))
		rest = strings.TrimSpace(rest[cut:])
	}
	if rest != "" {
		chunks = append(chunks, rest)
	}
	return chunks
}

func lastSentenceEnd(s string) int {
	best := -1
	for _, sep := range []string{". ", "! ", "? ", ".\n", "!\n", "?\n"} {
		if i := strings.LastIndex(s, sep); i+1 > best {
			best = i + 1
		}
	}
	return best
}

// AttachControls builds the fixed set of interactive actions for a response:
// regenerate plus a thumbs up/down pair whose callbacks carry the response id
// for later correlation with feedback records.
func AttachControls(responseID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔄 Regenerate", CallbackRegenerate+responseID),
			tgbotapi.NewInlineKeyboardButtonData("👍", CallbackRateUp+responseID),
			tgbotapi.NewInlineKeyboardButtonData("👎", CallbackRateDown+responseID),
		),
	)
}

// Bold wraps text for HTML parse mode, escaping the content.
func Bold(text string) string {
	return fmt.Sprintf("<b>%s</b>", html.EscapeString(text))
}

// Italic wraps text for HTML parse mode, escaping the content.
func Italic(text string) string {
	return fmt.Sprintf("<i>%s</i>", html.EscapeString(text))
}

// Link renders an HTML anchor with escaped label and href.
func Link(label, url string) string {
	return fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(url), html.EscapeString(label))
}
