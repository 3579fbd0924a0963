package chathistory

import (
	"testing"

	"github.com/quailyquaily/threadbot/internal/slackapi"
	"github.com/quailyquaily/threadbot/llm"
)

var self = Identity{UserID: "UBOT", BotID: "BBOT"}

func TestBuildTranscriptMapsRolesInOrder(t *testing.T) {
	msgs := []slackapi.Message{
		{User: "U1", Text: "<@UBOT> what's new in Go?", TS: "100.000001"},
		{User: "UBOT", BotID: "BBOT", Text: "Go 1.24 added generic type aliases.", TS: "100.000002"},
		{BotID: "BOTHER", Subtype: "bot_message", Text: "deploy finished", TS: "100.000003"},
		{User: "U2", Subtype: "channel_join", Text: "joined", TS: "100.000004"},
		{User: "U1", Text: "and <@U2> asked about <@UBOT|bot> iterators", TS: "100.000005"},
	}
	got := BuildTranscript(msgs, self, 10)
	want := []llm.Message{
		{Role: llm.RoleUser, Content: "what's new in Go?"},
		{Role: llm.RoleAssistant, Content: "Go 1.24 added generic type aliases."},
		{Role: llm.RoleUser, Content: "and <@U2> asked about iterators"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %#v", got)
	}
	for i := range want {
		if got[i].Role != want[i].Role || got[i].Content != want[i].Content {
			t.Fatalf("message %d = %#v, want %#v", i, got[i], want[i])
		}
	}
}

func TestBuildTranscriptKeepsMostRecentAndStartsWithUser(t *testing.T) {
	msgs := []slackapi.Message{
		{User: "U1", Text: "one", TS: "1.0"},
		{User: "UBOT", Text: "two", TS: "2.0"},
		{User: "U1", Text: "three", TS: "3.0"},
		{User: "UBOT", Text: "four", TS: "4.0"},
		{User: "U1", Text: "five", TS: "5.0"},
	}
	got := BuildTranscript(msgs, self, 4)
	if len(got) != 3 || got[0].Content != "three" || got[2].Content != "five" {
		t.Fatalf("got %#v", got)
	}
}

func TestBuildTranscriptSortsByTimestamp(t *testing.T) {
	msgs := []slackapi.Message{
		{User: "U1", Text: "later", TS: "20.5"},
		{User: "U1", Text: "earlier", TS: "3.25"},
	}
	got := BuildTranscript(msgs, self, 0)
	if got[0].Content != "earlier" || got[1].Content != "later" {
		t.Fatalf("got %#v", got)
	}
}
