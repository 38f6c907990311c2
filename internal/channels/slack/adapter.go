// Package slack implements channels.Adapter over Slack's Socket Mode
// gateway using slack-go/slack (spec §1 "platform transports").
package slack

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/pasky/muaddib-sub002/internal/channels"
	"github.com/pasky/muaddib-sub002/internal/ratelimit"
	"github.com/pasky/muaddib-sub002/pkg/models"
)

// Config configures a Slack adapter. BotToken authenticates Web API
// calls; AppToken authenticates the Socket Mode connection.
type Config struct {
	BotToken  string
	AppToken  string
	RateLimit float64
	RateBurst int
	Logger    *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.RateLimit <= 0 {
		c.RateLimit = 3
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 5
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Adapter implements channels.Adapter for Slack.
type Adapter struct {
	cfg          Config
	client       *slack.Client
	socketClient *socketmode.Client

	mu       sync.RWMutex
	status   channels.Status
	messages chan *models.RoomMessage
	botID    string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	limiter *ratelimit.Registry
	logger  *slog.Logger
}

// NewAdapter validates cfg and constructs a Slack adapter.
func NewAdapter(cfg Config) (*Adapter, error) {
	if cfg.BotToken == "" || cfg.AppToken == "" {
		return nil, channels.NewConfigError("slack", "bot_token and app_token are required")
	}
	cfg.applyDefaults()

	client := slack.New(cfg.BotToken, slack.OptionAppLevelToken(cfg.AppToken))
	socketClient := socketmode.New(client)

	limiter := ratelimit.NewRegistry()
	limiter.Configure("slack:send", cfg.RateLimit, cfg.RateBurst)

	return &Adapter{
		cfg:          cfg,
		client:       client,
		socketClient: socketClient,
		messages:     make(chan *models.RoomMessage, 100),
		limiter:      limiter,
		logger:       cfg.Logger.With("adapter", "slack"),
	}, nil
}

func (a *Adapter) Name() string { return "slack" }

// Start authenticates, then runs the Socket Mode event loop and its
// handler goroutine until Stop is called.
func (a *Adapter) Start(ctx context.Context) error {
	auth, err := a.client.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack: authenticating: %w", err)
	}

	a.mu.Lock()
	a.botID = auth.UserID
	a.status = channels.Status{Connected: true}
	a.mu.Unlock()

	a.ctx, a.cancel = context.WithCancel(ctx)

	a.wg.Add(2)
	go a.handleEvents()
	go func() {
		defer a.wg.Done()
		if err := a.socketClient.RunContext(a.ctx); err != nil && a.ctx.Err() == nil {
			a.mu.Lock()
			a.status = channels.Status{Connected: false, Error: err.Error()}
			a.mu.Unlock()
			a.logger.Error("slack socket mode error", "error", err)
		}
	}()

	a.logger.Info("slack adapter started", "bot_user_id", auth.UserID)
	return nil
}

func (a *Adapter) handleEvents() {
	defer a.wg.Done()
	for evt := range a.socketClient.Events {
		switch evt.Type {
		case socketmode.EventTypeEventsAPI:
			a.socketClient.Ack(*evt.Request)
			eventsAPI, ok := evt.Data.(slackevents.EventsAPIEvent)
			if !ok {
				continue
			}
			a.dispatchEventsAPI(eventsAPI)
		}
	}
}

func (a *Adapter) dispatchEventsAPI(eventsAPI slackevents.EventsAPIEvent) {
	if eventsAPI.Type != slackevents.CallbackEvent {
		return
	}
	ev, ok := eventsAPI.InnerEvent.Data.(*slackevents.MessageEvent)
	if !ok {
		return
	}
	if ev.BotID != "" || ev.User == a.botID {
		return
	}

	msg := &models.RoomMessage{
		ServerTag:   "slack:" + eventsAPI.TeamID,
		ChannelName: ev.Channel,
		Nick:        ev.User,
		Mynick:      a.botID,
		Content:     strings.TrimSpace(ev.Text),
		PlatformID:  ev.TimeStamp,
		ThreadID:    ev.ThreadTimeStamp,
	}

	select {
	case a.messages <- msg:
	case <-a.ctx.Done():
	default:
		a.logger.Warn("slack messages channel full, dropping message", "channel", ev.Channel)
	}
}

// Stop cancels the Socket Mode connection and closes the inbound channel.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	connected := a.status.Connected
	a.mu.Unlock()
	if !connected {
		return nil
	}

	if a.cancel != nil {
		a.cancel()
	}
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.logger.Warn("slack stop timeout, forcing shutdown")
	}

	a.mu.Lock()
	a.status = channels.Status{Connected: false}
	a.mu.Unlock()
	close(a.messages)
	return nil
}

// Send posts a reply via the Web API, threading it when ThreadID is set.
func (a *Adapter) Send(ctx context.Context, out channels.Outgoing) error {
	if err := a.limiter.Wait(ctx, "slack:send"); err != nil {
		return fmt.Errorf("slack: rate limit wait: %w", err)
	}

	opts := []slack.MsgOption{slack.MsgOptionText(out.Text, false)}
	if out.ThreadID != "" {
		opts = append(opts, slack.MsgOptionTS(out.ThreadID))
	}
	if _, _, err := a.client.PostMessageContext(ctx, out.ChannelName, opts...); err != nil {
		return fmt.Errorf("slack: posting message: %w", err)
	}
	return nil
}

func (a *Adapter) Messages() <-chan *models.RoomMessage { return a.messages }

func (a *Adapter) Status() channels.Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}
