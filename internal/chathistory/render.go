// Package chathistory converts a Slack thread into the chronological transcript
// handed to the responder.
package chathistory

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/quailyquaily/threadbot/internal/slackapi"
	"github.com/quailyquaily/threadbot/llm"
)

const DefaultHistoryLimit = 30

// Identity is the bot's own Slack identity as reported by auth.test.
type Identity struct {
	UserID string
	BotID  string
	AppID  string
}

// IsSelf reports whether m was posted by the bot.
func (id Identity) IsSelf(m slackapi.Message) bool {
	switch {
	case id.UserID != "" && m.User == id.UserID:
		return true
	case id.BotID != "" && m.BotID == id.BotID:
		return true
	case id.AppID != "" && m.AppID == id.AppID:
		return true
	}
	return false
}

var mentionPattern = regexp.MustCompile(`<@([A-Z0-9]+)(?:\|[^>]+)?>`)

// StripMention removes mentions of userID and tidies the remaining whitespace.
func StripMention(text, userID string) string {
	if userID != "" {
		text = mentionPattern.ReplaceAllStringFunc(text, func(m string) string {
			if sub := mentionPattern.FindStringSubmatch(m); len(sub) == 2 && sub[1] == userID {
				return ""
			}
			return m
		})
	}
	return strings.Join(strings.Fields(text), " ")
}

// BuildTranscript maps thread messages to user and assistant turns, oldest
// first, keeping at most limit of the most recent ones. The bot's own replies
// become assistant turns; other bots, system subtypes and empty messages are
// dropped.
func BuildTranscript(msgs []slackapi.Message, self Identity, limit int) []llm.Message {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	ordered := append([]slackapi.Message(nil), msgs...)
	sort.SliceStable(ordered, func(a, b int) bool { return tsValue(ordered[a].TS) < tsValue(ordered[b].TS) })

	out := make([]llm.Message, 0, len(ordered))
	for _, m := range ordered {
		if m.Subtype != "" && m.Subtype != "bot_message" && m.Subtype != "thread_broadcast" {
			continue
		}
		role := llm.RoleUser
		switch {
		case self.IsSelf(m):
			role = llm.RoleAssistant
		case m.BotID != "" || m.Subtype == "bot_message":
			continue
		}
		text := strings.TrimSpace(m.Text)
		if role == llm.RoleUser {
			text = StripMention(text, self.UserID)
		}
		if text == "" {
			continue
		}
		out = append(out, llm.Message{Role: role, Content: text})
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	// a transcript must not open with the assistant
	for len(out) > 0 && out[0].Role == llm.RoleAssistant {
		out = out[1:]
	}
	return out
}

func tsValue(ts string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(ts), 64)
	if err != nil {
		return 0
	}
	return v
}
