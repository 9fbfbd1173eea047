package bot

import "strings"

// Command enumerates the bot's command surface. Dispatch is an exhaustive
// switch rather than a string-keyed handler table.
type Command int

const (
	CmdUnknown Command = iota
	CmdStart
	CmdHelp
	CmdReset
	CmdTranslate
	CmdSummarize
	CmdGenerate
	CmdAsk
	CmdSearch
	CmdLearn
	CmdPreferences
	CmdSetPreference
	CmdDeletePreference
	CmdRemind
	CmdReminders
	CmdCancelReminder
	CmdFeedback
)

// ParseCommand maps a Telegram command name to its variant.
func ParseCommand(name string) Command {
	switch strings.ToLower(name) {
	case "start":
		return CmdStart
	case "help":
		return CmdHelp
	case "reset":
		return CmdReset
	case "translate":
		return CmdTranslate
	case "summarize":
		return CmdSummarize
	case "generate":
		return CmdGenerate
	case "ask":
		return CmdAsk
	case "search":
		return CmdSearch
	case "learn":
		return CmdLearn
	case "preferences":
		return CmdPreferences
	case "setpreference":
		return CmdSetPreference
	case "deletepreference":
		return CmdDeletePreference
	case "remind":
		return CmdRemind
	case "reminders":
		return CmdReminders
	case "cancelreminder":
		return CmdCancelReminder
	case "feedback":
		return CmdFeedback
	default:
		return CmdUnknown
	}
}
