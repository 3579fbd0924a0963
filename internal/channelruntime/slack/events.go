// Package slack runs the assistant on Slack: it parses Socket Mode events,
// schedules one worker per thread, reports progress through the assistant
// status line and posts the chunked reply.
package slack

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type SocketEnvelope struct {
	EnvelopeID string          `json:"envelope_id,omitempty"`
	Type       string          `json:"type,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

type eventAuthorization struct {
	TeamID string `json:"team_id,omitempty"`
	UserID string `json:"user_id,omitempty"`
	IsBot  bool   `json:"is_bot,omitempty"`
}

type eventsAPIPayload struct {
	TeamID         string               `json:"team_id,omitempty"`
	EventID        string               `json:"event_id,omitempty"`
	EventTime      int64                `json:"event_time,omitempty"`
	Event          json.RawMessage      `json:"event,omitempty"`
	Authorizations []eventAuthorization `json:"authorizations,omitempty"`
}

type rawEvent struct {
	Type        string `json:"type,omitempty"`
	Subtype     string `json:"subtype,omitempty"`
	User        string `json:"user,omitempty"`
	Text        string `json:"text,omitempty"`
	Channel     string `json:"channel,omitempty"`
	ChannelType string `json:"channel_type,omitempty"`
	TS          string `json:"ts,omitempty"`
	ThreadTS    string `json:"thread_ts,omitempty"`
	BotID       string `json:"bot_id,omitempty"`
	Team        string `json:"team,omitempty"`
}

// Event is one inbound user message the assistant should answer.
type Event struct {
	TeamID       string
	ChannelID    string
	ChannelType  string
	MessageTS    string
	ThreadTS     string
	UserID       string
	Text         string
	EventID      string
	SentAt       time.Time
	IsAppMention bool
}

// ReplyThreadTS is the thread the reply belongs to: the existing thread, or a
// new one rooted at the message.
func (e Event) ReplyThreadTS() string {
	if e.ThreadTS != "" {
		return e.ThreadTS
	}
	return e.MessageTS
}

func (e Event) conversationKey() string {
	return e.TeamID + ":" + e.ChannelID + ":" + e.ReplyThreadTS()
}

// ParseEvent extracts an Event from a Socket Mode envelope. Envelopes that are
// not user messages addressed to the bot, including anything the bot itself
// posted, yield ok=false. App mentions are answered anywhere; plain messages
// only in direct messages, since channel mentions also arrive as app_mention.
func ParseEvent(envelope SocketEnvelope, botUserID string) (Event, bool, error) {
	if strings.TrimSpace(envelope.Type) != "events_api" || len(envelope.Payload) == 0 {
		return Event{}, false, nil
	}
	var payload eventsAPIPayload
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		return Event{}, false, err
	}
	var ev rawEvent
	if err := json.Unmarshal(payload.Event, &ev); err != nil {
		return Event{}, false, err
	}
	eventType := strings.TrimSpace(ev.Type)
	switch eventType {
	case "app_mention":
	case "message":
		if strings.TrimSpace(ev.ChannelType) != "im" {
			return Event{}, false, nil
		}
	default:
		return Event{}, false, nil
	}
	if strings.TrimSpace(ev.Subtype) != "" || strings.TrimSpace(ev.BotID) != "" {
		return Event{}, false, nil
	}
	userID := strings.TrimSpace(ev.User)
	if userID == "" || userID == strings.TrimSpace(botUserID) {
		return Event{}, false, nil
	}
	channelID := strings.TrimSpace(ev.Channel)
	messageTS := strings.TrimSpace(ev.TS)
	text := strings.TrimSpace(ev.Text)
	if channelID == "" || messageTS == "" || text == "" {
		return Event{}, false, nil
	}
	teamID := strings.TrimSpace(payload.TeamID)
	if teamID == "" {
		teamID = strings.TrimSpace(ev.Team)
	}
	if teamID == "" && len(payload.Authorizations) > 0 {
		teamID = strings.TrimSpace(payload.Authorizations[0].TeamID)
	}
	if teamID == "" {
		return Event{}, false, fmt.Errorf("missing team_id in slack event")
	}
	sentAt := time.Now().UTC()
	if payload.EventTime > 0 {
		sentAt = time.Unix(payload.EventTime, 0).UTC()
	}
	return Event{
		TeamID:       teamID,
		ChannelID:    channelID,
		ChannelType:  strings.TrimSpace(ev.ChannelType),
		MessageTS:    messageTS,
		ThreadTS:     strings.TrimSpace(ev.ThreadTS),
		UserID:       userID,
		Text:         text,
		EventID:      strings.TrimSpace(payload.EventID),
		SentAt:       sentAt,
		IsAppMention: eventType == "app_mention",
	}, true, nil
}
