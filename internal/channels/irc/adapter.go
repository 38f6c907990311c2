// Package irc implements channels.Adapter over IRC using lrstanley/girc.
// The teacher carries no IRC library; girc is the pack-sourced fit named
// in SPEC_FULL.md §11 for the IRC surface spec.md names.
package irc

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/lrstanley/girc"

	"github.com/pasky/muaddib-sub002/internal/channels"
	"github.com/pasky/muaddib-sub002/internal/ratelimit"
	"github.com/pasky/muaddib-sub002/pkg/models"
)

// Config configures an IRC adapter.
type Config struct {
	Server    string
	Port      int
	Nick      string
	User      string
	TLS       bool
	Channels  []string
	RateLimit float64
	RateBurst int
	Logger    *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 6667
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 1
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 2
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Adapter implements channels.Adapter for IRC.
type Adapter struct {
	cfg    Config
	client *girc.Client

	mu       sync.RWMutex
	status   channels.Status
	messages chan *models.RoomMessage

	cancel context.CancelFunc

	limiter *ratelimit.Registry
	logger  *slog.Logger
}

// NewAdapter validates cfg and constructs an IRC adapter.
func NewAdapter(cfg Config) (*Adapter, error) {
	if cfg.Server == "" || cfg.Nick == "" {
		return nil, channels.NewConfigError("irc", "server and nick are required")
	}
	cfg.applyDefaults()

	client := girc.New(girc.Config{
		Server: cfg.Server,
		Port:   cfg.Port,
		Nick:   cfg.Nick,
		User:   cfg.User,
		SSL:    cfg.TLS,
	})

	limiter := ratelimit.NewRegistry()
	limiter.Configure("irc:send", cfg.RateLimit, cfg.RateBurst)

	a := &Adapter{
		cfg:      cfg,
		client:   client,
		messages: make(chan *models.RoomMessage, 100),
		limiter:  limiter,
		logger:   cfg.Logger.With("adapter", "irc"),
	}

	client.Handlers.AddBg(girc.CONNECTED, a.handleConnected)
	client.Handlers.AddBg(girc.PRIVMSG, a.handlePrivmsg)
	client.Handlers.AddBg(girc.DISCONNECTED, a.handleDisconnected)

	return a, nil
}

func (a *Adapter) Name() string { return "irc" }

// Start connects to the server in a background goroutine; girc's
// Connect blocks for the lifetime of the connection, so it is not safe
// to call synchronously from Start.
func (a *Adapter) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	go func() {
		if err := a.client.Connect(); err != nil {
			a.mu.Lock()
			a.status = channels.Status{Connected: false, Error: err.Error()}
			a.mu.Unlock()
			a.logger.Error("irc connection ended", "error", err)
		}
	}()

	go func() {
		<-runCtx.Done()
		a.client.Close()
	}()

	return nil
}

func (a *Adapter) handleConnected(c *girc.Client, e girc.Event) {
	a.mu.Lock()
	a.status = channels.Status{Connected: true}
	a.mu.Unlock()
	for _, ch := range a.cfg.Channels {
		c.Cmd.Join(ch)
	}
	a.logger.Info("irc connected", "server", a.cfg.Server)
}

func (a *Adapter) handleDisconnected(c *girc.Client, e girc.Event) {
	a.mu.Lock()
	a.status = channels.Status{Connected: false}
	a.mu.Unlock()
}

func (a *Adapter) handlePrivmsg(c *girc.Client, e girc.Event) {
	if !e.IsFromChannel() {
		return
	}
	msg := &models.RoomMessage{
		ServerTag:   "irc:" + a.cfg.Server,
		ChannelName: e.Params[0],
		Nick:        e.Source.Name,
		Mynick:      c.GetNick(),
		Content:     strings.TrimSpace(e.Last()),
	}
	select {
	case a.messages <- msg:
	default:
		a.logger.Warn("irc messages channel full, dropping message", "channel", msg.ChannelName)
	}
}

// Stop disconnects from the server and closes the inbound channel.
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
	a.mu.Lock()
	a.status = channels.Status{Connected: false}
	a.mu.Unlock()
	close(a.messages)
	return nil
}

// Send delivers a reply via PRIVMSG, rate-limited per the configured
// send budget.
func (a *Adapter) Send(ctx context.Context, out channels.Outgoing) error {
	if err := a.limiter.Wait(ctx, "irc:send"); err != nil {
		return fmt.Errorf("irc: rate limit wait: %w", err)
	}
	a.client.Cmd.Message(out.ChannelName, out.Text)
	return nil
}

func (a *Adapter) Messages() <-chan *models.RoomMessage { return a.messages }

func (a *Adapter) Status() channels.Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}
