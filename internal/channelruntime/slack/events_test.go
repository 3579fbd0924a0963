package slack

import (
	"encoding/json"
	"testing"
)

func envelope(t *testing.T, event map[string]any) SocketEnvelope {
	t.Helper()
	payload, err := json.Marshal(map[string]any{"team_id": "T1", "event_id": "Ev1", "event_time": 1700000000, "event": event})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return SocketEnvelope{EnvelopeID: "e1", Type: "events_api", Payload: payload}
}

func TestParseEvent(t *testing.T) {
	cases := []struct {
		name  string
		event map[string]any
		ok    bool
	}{
		{"app mention", map[string]any{"type": "app_mention", "user": "U1", "channel": "C1", "ts": "1.1", "text": "<@UBOT> hi"}, true},
		{"direct message", map[string]any{"type": "message", "channel_type": "im", "user": "U1", "channel": "D1", "ts": "1.1", "text": "hi"}, true},
		{"channel message", map[string]any{"type": "message", "channel_type": "channel", "user": "U1", "channel": "C1", "ts": "1.1", "text": "<@UBOT> hi"}, false},
		{"own message", map[string]any{"type": "message", "channel_type": "im", "user": "UBOT", "channel": "D1", "ts": "1.1", "text": "hello"}, false},
		{"bot message", map[string]any{"type": "app_mention", "bot_id": "B9", "user": "U9", "channel": "C1", "ts": "1.1", "text": "hi"}, false},
		{"edited", map[string]any{"type": "message", "subtype": "message_changed", "channel_type": "im", "channel": "D1", "ts": "1.1"}, false},
		{"empty text", map[string]any{"type": "app_mention", "user": "U1", "channel": "C1", "ts": "1.1", "text": " "}, false},
	}
	for _, tc := range cases {
		ev, ok, err := ParseEvent(envelope(t, tc.event), "UBOT")
		if err != nil {
			t.Fatalf("%s: error = %v", tc.name, err)
		}
		if ok != tc.ok {
			t.Fatalf("%s: ok = %v, want %v", tc.name, ok, tc.ok)
		}
		if ok && (ev.TeamID != "T1" || ev.EventID != "Ev1" || ev.ReplyThreadTS() != "1.1") {
			t.Fatalf("%s: event = %#v", tc.name, ev)
		}
	}
}

func TestParseEventIgnoresOtherEnvelopes(t *testing.T) {
	if _, ok, err := ParseEvent(SocketEnvelope{Type: "hello"}, "UBOT"); ok || err != nil {
		t.Fatalf("hello envelope: ok=%v err=%v", ok, err)
	}
}

func TestReplyThreadTSPrefersExistingThread(t *testing.T) {
	ev := Event{MessageTS: "2.0", ThreadTS: "1.0"}
	if ev.ReplyThreadTS() != "1.0" {
		t.Fatalf("ReplyThreadTS() = %s", ev.ReplyThreadTS())
	}
}
