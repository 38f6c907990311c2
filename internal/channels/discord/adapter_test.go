package discord

import (
	"context"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/pasky/muaddib-sub002/internal/channels"
)

type fakeSession struct {
	sent      []string
	openErr   error
	closeErr  error
	opened    bool
}

func (f *fakeSession) Open() error  { f.opened = true; return f.openErr }
func (f *fakeSession) Close() error { return f.closeErr }
func (f *fakeSession) ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.sent = append(f.sent, channelID+":"+content)
	return &discordgo.Message{ID: "m1"}, nil
}
func (f *fakeSession) AddHandler(handler interface{}) func() { return func() {} }

func TestNewAdapterRequiresToken(t *testing.T) {
	if _, err := NewAdapter(Config{}); err == nil {
		t.Fatal("expected an error for a missing token")
	}
}

func TestStartStopAndSend(t *testing.T) {
	a, err := NewAdapter(Config{Token: "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fs := &fakeSession{}
	a.session = fs

	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !fs.opened {
		t.Fatal("expected the session to be opened")
	}
	if !a.Status().Connected {
		t.Fatal("expected connected status")
	}

	if err := a.Send(context.Background(), channels.Outgoing{ChannelName: "c1", Text: "hi"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fs.sent) != 1 || fs.sent[0] != "c1:hi" {
		t.Fatalf("unexpected sent messages: %v", fs.sent)
	}

	if err := a.Stop(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Status().Connected {
		t.Fatal("expected disconnected status after Stop")
	}
}

func TestStartingTwiceFails(t *testing.T) {
	a, _ := NewAdapter(Config{Token: "x"})
	a.session = &fakeSession{}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := a.Start(context.Background()); err == nil {
		t.Fatal("expected an error starting an already-started adapter")
	}
}
