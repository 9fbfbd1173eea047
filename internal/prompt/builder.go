// Package prompt composes the single-turn request text sent to the model.
package prompt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xaenox/justask-bot/internal/models"
)

// ErrUnknownFeature is returned for a feature tag outside the enumerated set.
var ErrUnknownFeature = errors.New("unknown feature")

// Feature selects the instruction template used for a request.
type Feature string

const (
	FeatureTranslate Feature = "translate"
	FeatureSummarize Feature = "summarize"
	FeatureGenerate  Feature = "generate"
	FeatureAsk       Feature = "ask"
	FeatureConverse  Feature = "converse"
)

// Input carries everything a prompt is built from. Build is a pure function
// of this struct plus the preferences and history passed alongside it.
type Input struct {
	Feature Feature
	Text    string

	// Target is the translation target language.
	Target string
	// Length and Format shape summaries (short/medium/detailed,
	// paragraph/bullet_points/key_points).
	Length string
	Format string
	// Kind is the creative content type (poem, story, joke, code, ...).
	Kind string
	// Extra is pre-gathered grounding context (search results, knowledge
	// base hits) for factual answers.
	Extra string
	// Now stamps the prompt with the current date and time when non-zero.
	Now time.Time
}

// Build renders the feature template, the user input, a block of non-default
// preferences and the recent conversation into one request string.
func Build(in Input, prefs map[string]string, history []models.ContextEntry) (string, error) {
	body, err := featureBody(in)
	if err != nil {
		return "", err
	}

	var b strings.Builder

	if !in.Now.IsZero() {
		fmt.Fprintf(&b, "Current date and time: %s (%s)\n\n",
			in.Now.Format("Monday, January 2, 2006 3:04 PM"),
			in.Now.Format("2006-01-02 15:04:05 MST"))
	}

	if block := preferenceBlock(prefs); block != "" {
		b.WriteString(block)
		b.WriteString("\n")
	}

	if block := historyBlock(history); block != "" {
		b.WriteString(block)
		b.WriteString("\n")
	}

	b.WriteString(body)
	return b.String(), nil
}

func featureBody(in Input) (string, error) {
	switch in.Feature {
	case FeatureTranslate:
		target := in.Target
		if target == "" {
			target = "English"
		}
		return fmt.Sprintf("Translate the following text to %s. Reply with the translation only.\n\n%s", target, in.Text), nil

	case FeatureSummarize:
		length := in.Length
		if length == "" {
			length = "medium"
		}
		switch in.Format {
		case "bullet_points":
			return fmt.Sprintf("Summarize the following text as concise bullet points, %s length. Each bullet should be a complete thought and the most important points must be included.\n\nText to summarize:\n%s", length, in.Text), nil
		case "key_points":
			return fmt.Sprintf("Extract the key points from the following text as a numbered list in order of importance, %s length. Keep each point concise and self-contained.\n\nText to summarize:\n%s", length, in.Text), nil
		default:
			return fmt.Sprintf("Summarize the following text in well-structured paragraphs, %s length. Preserve the main points and keep a logical flow.\n\nText to summarize:\n%s", length, in.Text), nil
		}

	case FeatureGenerate:
		kind := in.Kind
		if kind == "" {
			kind = "piece of writing"
		}
		return fmt.Sprintf("Create an original %s about %s. Be creative, well-structured and appropriate for all audiences.", kind, in.Text), nil

	case FeatureAsk:
		if in.Extra != "" {
			return fmt.Sprintf("Answer the following question using the provided information. If it does not contain the answer, use your own knowledge but make that clear. Keep the response well formatted and easy to read on a phone.\n\nContext information:\n%s\nQuestion: %s", in.Extra, in.Text), nil
		}
		return fmt.Sprintf("Answer this question factually and concisely. If you don't know the answer, say so rather than making up information. Keep the response well formatted and easy to read on a phone.\n\nQuestion: %s", in.Text), nil

	case FeatureConverse:
		return fmt.Sprintf("User message: %s", in.Text), nil

	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFeature, in.Feature)
	}
}

// preferenceBlock renders preference instructions, skipping values that match
// the implied defaults so that prompts stay short.
func preferenceBlock(prefs map[string]string) string {
	var lines []string
	for _, key := range models.PreferenceKeys {
		value, ok := prefs[key]
		if !ok || value == "" {
			continue
		}
		if strings.EqualFold(value, models.DefaultPreferences[key]) {
			continue
		}
		lines = append(lines, preferenceLine(key, value))
	}
	if len(lines) == 0 {
		return ""
	}
	return "User preferences:\n" + strings.Join(lines, "\n") + "\n"
}

func preferenceLine(key, value string) string {
	switch key {
	case "language":
		return fmt.Sprintf("- Respond in %s when appropriate", value)
	case "tone":
		return fmt.Sprintf("- Use a %s tone", strings.ToLower(value))
	case "length":
		return fmt.Sprintf("- Keep the response %s in length", strings.ToLower(value))
	case "expertise":
		return fmt.Sprintf("- Pitch explanations at a %s level", strings.ToLower(value))
	case "interests":
		return fmt.Sprintf("- When relevant, relate the answer to the user's interests: %s", value)
	default:
		return fmt.Sprintf("- %s: %s", key, value)
	}
}

func historyBlock(history []models.ContextEntry) string {
	if len(history) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Conversation so far:\n")
	for _, entry := range history {
		label := "User"
		if entry.Role == models.RoleAssistant {
			label = "Assistant"
		}
		fmt.Fprintf(&b, "%s: %s\n", label, entry.Text)
	}
	return b.String()
}
