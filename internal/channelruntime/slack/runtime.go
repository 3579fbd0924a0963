package slack

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/quailyquaily/threadbot/internal/chathistory"
	"github.com/quailyquaily/threadbot/internal/outputfmt"
	"github.com/quailyquaily/threadbot/internal/slackapi"
	"github.com/quailyquaily/threadbot/llm"
	"github.com/quailyquaily/threadbot/responder"
)

const (
	ApologyText = "Sorry, something went wrong while I was working on that. Please try again in a moment."

	maxThreadReplies = 1000
)

// API is the subset of the Slack Web API the runtime calls.
type API interface {
	PostMessage(ctx context.Context, msg slackapi.PostMessage) (string, error)
	SetThreadStatus(ctx context.Context, channelID, threadTS, status string) error
	Replies(ctx context.Context, channelID, ts string, limit int) ([]slackapi.Message, error)
}

type Responder interface {
	GenerateResponse(ctx context.Context, messages []llm.Message, opts responder.Options) (string, error)
}

type HandlerOptions struct {
	Self         chathistory.Identity
	HistoryLimit int
	MaxTotal     int
	MaxBlock     int
	StatusQueue  int
	Logger       *slog.Logger
}

// Handler answers one event end to end: thread history, responder, chunked
// reply, and an apology when the responder fails.
type Handler struct {
	api       API
	responder Responder
	opts      HandlerOptions
	log       *slog.Logger
}

func NewHandler(api API, r Responder, opts HandlerOptions) *Handler {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = chathistory.DefaultHistoryLimit
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Handler{api: api, responder: r, opts: opts, log: log}
}

func (h *Handler) Handle(ctx context.Context, ev Event) error {
	threadTS := ev.ReplyThreadTS()
	log := h.log.With("channel_id", ev.ChannelID, "thread_ts", threadTS, "message_ts", ev.MessageTS)
	started := time.Now()

	status := NewStatusReporter(h.api, ev.ChannelID, threadTS, log, h.opts.StatusQueue)
	transcript := h.transcript(ctx, log, ev)
	reply, err := h.responder.GenerateResponse(ctx, transcript, responder.Options{
		Status:    status,
		ChannelID: ev.ChannelID,
		ThreadTS:  threadTS,
		UserID:    ev.UserID,
	})
	status.Close()

	if err != nil {
		log.Error("slack_task_failed", "error", err.Error(), "duration_ms", time.Since(started).Milliseconds())
		if _, postErr := h.api.PostMessage(context.WithoutCancel(ctx), slackapi.PostMessage{
			Channel:  ev.ChannelID,
			ThreadTS: threadTS,
			Text:     ApologyText,
		}); postErr != nil {
			log.Warn("slack_apology_post_error", "error", postErr.Error())
		}
		return err
	}

	blocks := outputfmt.ChunkBlocks(reply, h.opts.MaxTotal, h.opts.MaxBlock)
	if _, err := h.api.PostMessage(ctx, slackapi.PostMessage{
		Channel:  ev.ChannelID,
		ThreadTS: threadTS,
		Text:     fallbackText(blocks),
		Blocks:   outputfmt.SlackSections(blocks),
	}); err != nil {
		log.Error("slack_post_error", "error", err.Error())
		return fmt.Errorf("post reply: %w", err)
	}
	log.Info("slack_task_done", "blocks", len(blocks), "chars", len([]rune(reply)), "duration_ms", time.Since(started).Milliseconds())
	return nil
}

// transcript prefers the thread history and falls back to the event text
// alone when the thread cannot be read.
func (h *Handler) transcript(ctx context.Context, log *slog.Logger, ev Event) []llm.Message {
	current := llm.Message{Role: llm.RoleUser, Content: chathistory.StripMention(ev.Text, h.opts.Self.UserID)}
	if ev.ThreadTS == "" {
		return []llm.Message{current}
	}
	msgs, err := h.api.Replies(ctx, ev.ChannelID, ev.ThreadTS, maxThreadReplies)
	if err != nil {
		log.Warn("slack_history_error", "error", err.Error())
		return []llm.Message{current}
	}
	if !containsTS(msgs, ev.MessageTS) {
		msgs = append(msgs, slackapi.Message{User: ev.UserID, Text: ev.Text, TS: ev.MessageTS})
	}
	out := chathistory.BuildTranscript(msgs, h.opts.Self, h.opts.HistoryLimit)
	if len(out) == 0 {
		return []llm.Message{current}
	}
	return out
}

func containsTS(msgs []slackapi.Message, ts string) bool {
	for _, m := range msgs {
		if m.TS == ts {
			return true
		}
	}
	return false
}

// fallbackText is the whole reply as posted in the blocks, used by clients that
// cannot render them.
func fallbackText(blocks []outputfmt.Block) string {
	var b strings.Builder
	for _, blk := range blocks {
		b.WriteString(blk.Text)
	}
	if text := strings.TrimSpace(b.String()); text != "" {
		return text
	}
	return " "
}
