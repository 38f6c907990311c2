// Package discord implements channels.Adapter over the Discord gateway
// using bwmarrin/discordgo (spec §1 "platform transports", treated as an
// opaque event source/sender by the dispatch core).
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/pasky/muaddib-sub002/internal/channels"
	"github.com/pasky/muaddib-sub002/internal/ratelimit"
	"github.com/pasky/muaddib-sub002/pkg/models"
)

// session narrows discordgo.Session to what the adapter calls, so tests
// can substitute a fake.
type session interface {
	Open() error
	Close() error
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	AddHandler(handler interface{}) func()
}

// Config configures a Discord adapter.
type Config struct {
	Token                string
	MaxReconnectAttempts int
	ReconnectBackoff     time.Duration
	RateLimit            float64
	RateBurst            int
	Logger               *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = 5
	}
	if c.ReconnectBackoff <= 0 {
		c.ReconnectBackoff = 60 * time.Second
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 5
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 10
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Adapter implements channels.Adapter for Discord.
type Adapter struct {
	cfg     Config
	session session

	mu       sync.RWMutex
	status   channels.Status
	messages chan *models.RoomMessage

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	limiter *ratelimit.Registry
	logger  *slog.Logger
}

// NewAdapter validates cfg and constructs a Discord adapter.
func NewAdapter(cfg Config) (*Adapter, error) {
	if cfg.Token == "" {
		return nil, channels.NewConfigError("discord", "token is required")
	}
	cfg.applyDefaults()

	limiter := ratelimit.NewRegistry()
	limiter.Configure("discord:send", cfg.RateLimit, cfg.RateBurst)

	return &Adapter{
		cfg:      cfg,
		messages: make(chan *models.RoomMessage, 100),
		limiter:  limiter,
		logger:   cfg.Logger.With("adapter", "discord"),
	}, nil
}

func (a *Adapter) Name() string { return "discord" }

// Start opens the gateway connection, retrying with exponential backoff.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.status.Connected {
		return fmt.Errorf("discord: adapter already started")
	}

	if a.session == nil {
		dg, err := discordgo.New("Bot " + a.cfg.Token)
		if err != nil {
			return fmt.Errorf("discord: creating session: %w", err)
		}
		a.session = dg
	}
	a.session.AddHandler(a.handleMessageCreate)

	if err := a.connectWithRetry(ctx); err != nil {
		return fmt.Errorf("discord: %w", err)
	}

	a.ctx, a.cancel = context.WithCancel(ctx)
	a.status = channels.Status{Connected: true}
	a.logger.Info("discord adapter started")
	return nil
}

func (a *Adapter) connectWithRetry(ctx context.Context) error {
	var err error
	for attempt := 0; attempt < a.cfg.MaxReconnectAttempts; attempt++ {
		if err = a.session.Open(); err == nil {
			return nil
		}
		backoff := time.Duration(1<<uint(attempt)) * time.Second
		if backoff > a.cfg.ReconnectBackoff {
			backoff = a.cfg.ReconnectBackoff
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("connecting after %d attempts: %w", a.cfg.MaxReconnectAttempts, err)
}

// Stop closes the gateway connection and the inbound messages channel.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.status.Connected {
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
		a.logger.Warn("discord stop timeout, forcing shutdown")
	}

	if err := a.session.Close(); err != nil {
		return fmt.Errorf("discord: closing session: %w", err)
	}
	a.status = channels.Status{Connected: false}
	close(a.messages)
	return nil
}

// Send delivers a reply to a Discord channel, rate-limited per the
// configured send budget.
func (a *Adapter) Send(ctx context.Context, out channels.Outgoing) error {
	if err := a.limiter.Wait(ctx, "discord:send"); err != nil {
		return fmt.Errorf("discord: rate limit wait: %w", err)
	}
	if _, err := a.session.ChannelMessageSend(out.ChannelName, out.Text); err != nil {
		return fmt.Errorf("discord: sending message: %w", err)
	}
	return nil
}

func (a *Adapter) Messages() <-chan *models.RoomMessage { return a.messages }

func (a *Adapter) Status() channels.Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

func (a *Adapter) handleMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	msg := &models.RoomMessage{
		ServerTag:   "discord:" + m.GuildID,
		ChannelName: m.ChannelID,
		Nick:        m.Author.Username,
		Mynick:      s.State.User.Username,
		Content:     strings.TrimSpace(m.Content),
		PlatformID:  m.ID,
	}
	select {
	case a.messages <- msg:
	case <-a.ctx.Done():
	default:
		a.logger.Warn("discord messages channel full, dropping message", "channel", m.ChannelID)
	}
}
