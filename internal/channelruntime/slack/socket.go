package slack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const reconnectDelay = 2 * time.Second

type SocketConnector interface {
	ConnectSocket(ctx context.Context) (*websocket.Conn, error)
}

// ServeOptions filters events before they reach onEvent.
type ServeOptions struct {
	BotUserID       string
	AllowedTeams    map[string]bool
	AllowedChannels map[string]bool
	Logger          *slog.Logger
}

// Serve keeps a Socket Mode connection open until ctx is done, reconnecting on
// errors, and passes every accepted event to onEvent.
func Serve(ctx context.Context, api SocketConnector, opts ServeOptions, onEvent func(Event)) error {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	for {
		if ctx.Err() != nil {
			log.Info("slack_stop", "reason", "context_canceled")
			return nil
		}
		conn, err := api.ConnectSocket(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("slack_stop", "reason", "context_canceled")
				return nil
			}
			log.Warn("slack_socket_connect_error", "error", err.Error())
			if !sleep(ctx, reconnectDelay) {
				return nil
			}
			continue
		}
		log.Info("slack_socket_connected")
		stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
		readErr := consume(ctx, conn, func(env SocketEnvelope) error {
			ev, ok, err := ParseEvent(env, opts.BotUserID)
			if err != nil {
				log.Warn("slack_event_parse_error", "error", err.Error())
				return nil
			}
			if !ok {
				return nil
			}
			if len(opts.AllowedTeams) > 0 && !opts.AllowedTeams[ev.TeamID] {
				return nil
			}
			if len(opts.AllowedChannels) > 0 && !opts.AllowedChannels[ev.ChannelID] {
				log.Debug("slack_channel_not_allowed", "channel_id", ev.ChannelID)
				return nil
			}
			onEvent(ev)
			return nil
		})
		stop()
		_ = conn.Close()
		if readErr != nil && ctx.Err() == nil && !errors.Is(readErr, context.Canceled) {
			log.Warn("slack_socket_read_error", "error", readErr.Error())
		}
	}
}

// consume acknowledges every envelope before handing it on. A "disconnect"
// envelope ends the read so the caller reconnects.
func consume(ctx context.Context, conn *websocket.Conn, onEnvelope func(SocketEnvelope) error) error {
	if conn == nil {
		return fmt.Errorf("slack websocket connection is nil")
	}
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var env SocketEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue
		}
		if strings.TrimSpace(env.EnvelopeID) != "" {
			if err := conn.WriteJSON(map[string]string{"envelope_id": env.EnvelopeID}); err != nil {
				return err
			}
		}
		if env.Type == "disconnect" {
			return nil
		}
		if err := onEnvelope(env); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Allowlist turns configured ids into a lookup set, ignoring blanks.
func Allowlist(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out[it] = true
		}
	}
	return out
}
