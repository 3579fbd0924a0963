package slackapi

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

type PostMessage struct {
	Channel  string           `json:"channel"`
	Text     string           `json:"text"`
	ThreadTS string           `json:"thread_ts,omitempty"`
	Blocks   []map[string]any `json:"blocks,omitempty"`
}

// PostMessage sends msg and returns the new message's ts. Text is the
// notification fallback and is required even when Blocks are set.
func (c *Client) PostMessage(ctx context.Context, msg PostMessage) (string, error) {
	msg.Channel = strings.TrimSpace(msg.Channel)
	msg.ThreadTS = strings.TrimSpace(msg.ThreadTS)
	if msg.Channel == "" {
		return "", fmt.Errorf("channel_id is required")
	}
	if strings.TrimSpace(msg.Text) == "" {
		return "", fmt.Errorf("text is required")
	}
	var out struct {
		TS string `json:"ts"`
	}
	if err := c.call(ctx, c.botToken, "chat.postMessage", msg, nil, &out); err != nil {
		return "", err
	}
	return out.TS, nil
}

// SetThreadStatus updates the assistant status line shown under a thread. An
// empty status clears it.
func (c *Client) SetThreadStatus(ctx context.Context, channelID, threadTS, status string) error {
	channelID = strings.TrimSpace(channelID)
	threadTS = strings.TrimSpace(threadTS)
	if channelID == "" || threadTS == "" {
		return fmt.Errorf("channel_id and thread_ts are required")
	}
	return c.call(ctx, c.botToken, "assistant.threads.setStatus", map[string]string{
		"channel_id": channelID,
		"thread_ts":  threadTS,
		"status":     status,
	}, nil, nil)
}

type Message struct {
	Type     string `json:"type"`
	Subtype  string `json:"subtype,omitempty"`
	User     string `json:"user,omitempty"`
	BotID    string `json:"bot_id,omitempty"`
	AppID    string `json:"app_id,omitempty"`
	Text     string `json:"text"`
	TS       string `json:"ts"`
	ThreadTS string `json:"thread_ts,omitempty"`
}

// Replies returns up to limit messages of the thread rooted at ts, oldest first,
// following pagination cursors.
func (c *Client) Replies(ctx context.Context, channelID, ts string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []Message
	cursor := ""
	for len(out) < limit {
		q := url.Values{}
		q.Set("channel", strings.TrimSpace(channelID))
		q.Set("ts", strings.TrimSpace(ts))
		q.Set("limit", strconv.Itoa(min(limit-len(out), 200)))
		if cursor != "" {
			q.Set("cursor", cursor)
		}
		var page struct {
			Messages []Message `json:"messages"`
			HasMore  bool      `json:"has_more"`
			Meta     struct {
				NextCursor string `json:"next_cursor"`
			} `json:"response_metadata"`
		}
		if err := c.call(ctx, c.botToken, "conversations.replies", nil, q, &page); err != nil {
			return nil, err
		}
		out = append(out, page.Messages...)
		cursor = strings.TrimSpace(page.Meta.NextCursor)
		if !page.HasMore || cursor == "" {
			break
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
