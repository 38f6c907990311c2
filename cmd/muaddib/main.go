// Package main provides the CLI entry point for Muaddib, a multi-room
// chat agent bridging IRC/Discord/Slack to LLM providers.
//
// Muaddib connects chat transports to the Anthropic Claude API, dispatching
// addressed messages through a per-room command resolver, a steering
// queue that serializes concurrent chatter into one session per arc, and
// a tool-using session runner.
//
// # Basic usage
//
// Start the gateway:
//
//	muaddib run --config muaddib.yaml
//
// Validate configuration without connecting to any transport:
//
//	muaddib doctor --config muaddib.yaml
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pasky/muaddib-sub002/internal/addressing"
	"github.com/pasky/muaddib-sub002/internal/agent"
	"github.com/pasky/muaddib-sub002/internal/agent/providers"
	"github.com/pasky/muaddib-sub002/internal/channels"
	"github.com/pasky/muaddib-sub002/internal/channels/discord"
	"github.com/pasky/muaddib-sub002/internal/channels/irc"
	"github.com/pasky/muaddib-sub002/internal/channels/slack"
	"github.com/pasky/muaddib-sub002/internal/chronicle"
	"github.com/pasky/muaddib-sub002/internal/classifier"
	"github.com/pasky/muaddib-sub002/internal/commands"
	"github.com/pasky/muaddib-sub002/internal/config"
	"github.com/pasky/muaddib-sub002/internal/contextreducer"
	"github.com/pasky/muaddib-sub002/internal/handler"
	"github.com/pasky/muaddib-sub002/internal/history"
	"github.com/pasky/muaddib-sub002/internal/ratelimit"
	"github.com/pasky/muaddib-sub002/internal/steering"
	"github.com/pasky/muaddib-sub002/internal/summary"
	"github.com/pasky/muaddib-sub002/internal/tools/artifacts"
	"github.com/pasky/muaddib-sub002/internal/tools/chronicletools"
	"github.com/pasky/muaddib-sub002/internal/tools/oracle"
	"github.com/pasky/muaddib-sub002/internal/tools/planning"
	"github.com/pasky/muaddib-sub002/internal/tools/quest"
	"github.com/pasky/muaddib-sub002/internal/tools/sandbox"
	"github.com/pasky/muaddib-sub002/internal/tools/webvisit"
	"github.com/pasky/muaddib-sub002/internal/tools/websearch"
	"github.com/pasky/muaddib-sub002/pkg/models"
)

// Build information, populated by ldflags during release builds.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var configPath string

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "muaddib",
		Short: "Muaddib - a multi-room chat bridge from IRC/Discord/Slack to an LLM",
		Long: `Muaddib bridges chat rooms across IRC, Discord, and Slack to an LLM agent.

Each room (an "arc") has its own command grammar, steering queue, and
history; a message addressed to the bot runs through the command
resolver, a session runner with tool access, and back out to the room.`,
		Version:      fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "muaddib.yaml", "path to YAML configuration file")
	root.AddCommand(buildRunCmd(), buildDoctorCmd())
	return root
}

func buildRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect configured transports and run the agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
}

func buildDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Validate configuration without connecting to any transport",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(configPath)
		},
	}
}

// runDoctor validates a config file the same way runServe's startup does,
// without ever constructing a transport adapter or calling out to a
// provider (spec SPEC_FULL.md §12 "doctor/health command").
func runDoctor(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("doctor: %w", err)
	}

	for _, w := range cfg.DeferredFeatureWarnings() {
		slog.Warn("doctor: " + w)
	}

	for arc, room := range cfg.Rooms {
		if _, _, err := commands.RegistryFromConfig(room.Command); err != nil {
			return fmt.Errorf("doctor: room %q: %w", arc, err)
		}
	}

	fmt.Printf("config OK: %d provider(s), %d server(s), %d room(s)\n",
		len(cfg.Providers), len(cfg.Servers), len(cfg.Rooms))
	return nil
}

// runServe wires every collaborator from configuration and runs until a
// shutdown signal arrives.
func runServe(ctx context.Context, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("run: loading config: %w", err)
	}
	for _, w := range cfg.DeferredFeatureWarnings() {
		slog.Warn("startup: " + w)
	}

	router, err := buildProviderRouter(cfg)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	histStore, err := history.Open(cfg.Storage.HistoryDatabasePath)
	if err != nil {
		return fmt.Errorf("run: opening history store: %w", err)
	}

	var chronStore *chronicle.SQLiteStore
	if boolOr(cfg.Chronicler.Enabled, false) {
		chronStore, err = chronicle.Open(cfg.Chronicler.DatabasePath)
		if err != nil {
			return fmt.Errorf("run: opening chronicle store: %w", err)
		}
	}

	resolvers, err := buildResolvers(cfg, router)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	steeringMgr := steering.NewManager()
	rateLimiter := ratelimit.NewRegistry()
	rateLimiter.Configure("web_search", 1, 1)

	artifactsEnabled := boolOr(cfg.Tools.Artifacts.Enabled, false)
	artifactStores := map[string]*artifacts.Store{}
	artifactsFor := func(arc string) *artifacts.Store {
		if !artifactsEnabled {
			return nil
		}
		if s, ok := artifactStores[arc]; ok {
			return s
		}
		s := artifacts.NewStore(cfg.Tools.Artifacts.BaseDir, cfg.Tools.Artifacts.BaseURL, arc)
		artifactStores[arc] = s
		return s
	}

	h := &handler.Handler{
		Resolver: func(arc string) (*commands.Resolver, bool) {
			r, ok := resolvers[arc]
			return r, ok
		},
		History:   histStore,
		Chronicle: chronicleStoreOrNil(chronStore),
		Steering:  steeringMgr,
		Models:    router,
		BuildTools: buildToolSetBuilder(cfg, router, chronStore, artifactsFor, rateLimiter),
		System: func(resolved *models.ResolvedCommand) string {
			return resolved.Runtime.SystemPrompt
		},
		Artifacts: artifactsFor,
		ResponseMaxBytes: func(arc string) int {
			if room, ok := cfg.Rooms[arc]; ok && room.Command.ResponseMaxBytes > 0 {
				return room.Command.ResponseMaxBytes
			}
			return 0
		},
		IgnoreUser: func(arc, nick string) bool {
			room, ok := cfg.Rooms[arc]
			if !ok {
				return false
			}
			for _, ignored := range room.Command.IgnoreUsers {
				if ignored == nick {
					return true
				}
			}
			return false
		},
		RefusalFallbackModel: cfg.Router.RefusalFallbackModel,
		Logger:               slog.Default(),
	}

	if boolOr(cfg.ContextReducer.Enabled, false) {
		red := contextreducer.NewReducer(router, cfg.ContextReducer.Model)
		h.Reducer = red.Reduce
	}
	if boolOr(cfg.Tools.Summary.Enabled, false) {
		gen := summary.NewGenerator(router, cfg.Tools.Summary.Model)
		h.Summary = gen.Generate
	}

	adapters, err := buildAdapters(cfg)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	for _, a := range adapters {
		if err := a.Start(ctx); err != nil {
			return fmt.Errorf("run: starting %s: %w", a.Name(), err)
		}
		go pumpMessages(ctx, a, h)
	}

	slog.Info("muaddib started", "servers", len(adapters), "rooms", len(cfg.Rooms))
	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	for _, a := range adapters {
		if err := a.Stop(shutdownCtx); err != nil {
			slog.Warn("error stopping adapter", "adapter", a.Name(), "error", err)
		}
	}
	return nil
}

// pumpMessages drains one adapter's inbound channel, decides addressing,
// and runs each message through the handler (spec §4.5, §6 "Transport ->
// core"). DM-style transports are out of scope for spec.md's room model,
// so every channel's addressing is decided the same way: an explicit
// "!trigger", a leading "mynick:" prefix, or an "@mynick" mention.
func pumpMessages(ctx context.Context, a channels.Adapter, h *handler.Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-a.Messages():
			if !ok {
				return
			}
			stripped, direct := addressing.Detect(msg.Content, msg.Mynick)
			msg.Content = stripped

			sendResponse := func(text string) error {
				return a.Send(ctx, channels.Outgoing{
					ChannelName:       msg.ChannelName,
					ThreadID:          msg.ThreadID,
					Text:              text,
					ReplyToPlatformID: msg.PlatformID,
				})
			}
			if _, err := h.HandleIncomingMessage(ctx, msg, direct, sendResponse); err != nil {
				slog.Error("handling message failed", "arc", msg.Arc(), "error", err)
			}
		}
	}
}

func chronicleStoreOrNil(s *chronicle.SQLiteStore) chronicle.Store {
	if s == nil {
		return nil
	}
	return s
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// buildProviderRouter constructs one AnthropicAdapter per configured
// provider and wraps them in a Router keyed the same way cfg.Providers is.
func buildProviderRouter(cfg *config.Config) (*providers.Router, error) {
	adapters := make(map[string]agent.ModelAdapter, len(cfg.Providers))
	for name, pc := range cfg.Providers {
		visionModels := make(map[string]bool, len(pc.VisionModels))
		for _, m := range pc.VisionModels {
			visionModels[m] = true
		}
		adapter, err := providers.NewAnthropicAdapter(providers.AnthropicConfig{
			APIKey:       pc.Key,
			BaseURL:      pc.BaseURL,
			DefaultModel: pc.DefaultModel,
			MaxRetries:   pc.MaxRetries,
			RetryDelay:   time.Duration(pc.RetryDelayMS) * time.Millisecond,
			VisionModels: visionModels,
		})
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", name, err)
		}
		adapters[name] = adapter
	}
	defaultProvider := cfg.Router.DefaultProvider
	if defaultProvider == "" {
		for name := range adapters {
			defaultProvider = name
			break
		}
	}
	return providers.NewRouter(defaultProvider, adapters), nil
}

// buildResolvers constructs one commands.Resolver per configured room,
// wiring a model classifier when the room's modeClassifier policy is
// enabled.
func buildResolvers(cfg *config.Config, router *providers.Router) (map[string]*commands.Resolver, error) {
	out := make(map[string]*commands.Resolver, len(cfg.Rooms))
	for arc, room := range cfg.Rooms {
		reg, policy, err := commands.RegistryFromConfig(room.Command)
		if err != nil {
			return nil, fmt.Errorf("room %q: %w", arc, err)
		}

		var cl commands.Classifier
		if policy.Kind == "classifier" || policy.Kind == "classifier_mode" {
			model := room.Command.ModeClassifier.Model
			if model == "" {
				model = reg.Defaults.Model
			}
			cl = classifier.NewModelClassifier(router, model)
		}

		out[arc] = commands.NewResolver(reg, policy, cl)
	}
	return out, nil
}

// buildToolSetBuilder returns the handler.ToolSetBuilder closure assembling
// every enabled baseline tool for one run, filtered to the resolved
// command's AllowedTools (spec §4.5 step 6, §4.4).
func buildToolSetBuilder(
	cfg *config.Config,
	router *providers.Router,
	chronStore *chronicle.SQLiteStore,
	artifactsFor func(string) *artifacts.Store,
	rateLimiter *ratelimit.Registry,
) handler.ToolSetBuilder {
	questState := quest.NewMemoryState()
	httpClient := &http.Client{Timeout: 30 * time.Second}

	return func(ctx context.Context, arc string, resolved *models.ResolvedCommand, parentContext []models.ContentBlock) (*agent.Registry, error) {
		registry := agent.NewRegistry()

		registry.Register(sandbox.New(cfg.Storage.SandboxBaseDir, arc))
		registry.Register(planning.NewProgressTool())
		registry.Register(planning.NewPlanTool())

		if boolOr(cfg.Quests.Enabled, false) {
			// spec.md:167 - which quest tools are live depends on the arc's
			// current quest state: no active quest exposes only
			// quest_start; an active top-level quest exposes
			// subquest_start and quest_snooze; an active subquest exposes
			// only quest_snooze.
			switch {
			case len(questState.ActiveSubquestIDs(arc)) > 0:
				registry.Register(quest.NewSnoozeTool(questState, arc))
			case len(questState.ActiveTopLevelQuestIDs(arc)) > 0:
				registry.Register(quest.NewSubquestTool(questState, arc))
				registry.Register(quest.NewSnoozeTool(questState, arc))
			default:
				registry.Register(quest.NewStartTool(questState, arc))
			}
		}

		if boolOr(cfg.Tools.Jina.Enabled, false) {
			backend := websearch.NewJinaBackend(cfg.Tools.Jina.APIKey, httpClient)
			registry.Register(websearch.New(backend, rateLimiter))

			var artifactReader webvisit.ArtifactReader
			if store := artifactsFor(arc); store != nil {
				artifactReader = artifacts.NewReaderAdapter(store)
			}
			registry.Register(webvisit.New(httpClient, webvisit.JinaAuthResolver{APIKey: cfg.Tools.Jina.APIKey}, artifactReader))
		}

		if store := artifactsFor(arc); store != nil {
			registry.Register(artifacts.NewShareTool(store))
			registry.Register(artifacts.NewEditTool(store))
		}

		if chronStore != nil {
			registry.Register(chronicletools.NewReadTool(chronStore, arc))
			registry.Register(chronicletools.NewAppendTool(chronStore, arc))
		}

		if boolOr(cfg.Tools.Oracle.Enabled, false) {
			newRunner := func(tools *agent.Registry) *agent.Runner {
				return agent.NewRunner(agent.RunnerConfig{
					Resolver: router,
					Tools:    tools,
					Logger:   slog.Default(),
				})
			}
			registry.Register(oracle.New(registry, parentContext, resolved.Runtime.SystemPrompt, cfg.Tools.Oracle.Model, newRunner))
		}

		return registry.Filtered(resolved.Runtime.AllowedTools), nil
	}
}

// buildAdapters constructs one channels.Adapter per configured server.
func buildAdapters(cfg *config.Config) ([]channels.Adapter, error) {
	var out []channels.Adapter
	for tag, srv := range cfg.Servers {
		switch srv.Transport {
		case "discord":
			a, err := discord.NewAdapter(discord.Config{
				Token:     srv.Token,
				RateLimit: srv.RateLimit,
				RateBurst: srv.RateBurst,
				Logger:    slog.Default(),
			})
			if err != nil {
				return nil, fmt.Errorf("server %q: %w", tag, err)
			}
			out = append(out, a)
		case "slack":
			a, err := slack.NewAdapter(slack.Config{
				BotToken:  srv.Token,
				AppToken:  srv.AppToken,
				RateLimit: srv.RateLimit,
				RateBurst: srv.RateBurst,
				Logger:    slog.Default(),
			})
			if err != nil {
				return nil, fmt.Errorf("server %q: %w", tag, err)
			}
			out = append(out, a)
		case "irc":
			a, err := irc.NewAdapter(irc.Config{
				Server:    srv.Host,
				Port:      srv.Port,
				Nick:      srv.Nick,
				User:      srv.User,
				TLS:       srv.TLS,
				Channels:  srv.Channels,
				RateLimit: srv.RateLimit,
				RateBurst: srv.RateBurst,
				Logger:    slog.Default(),
			})
			if err != nil {
				return nil, fmt.Errorf("server %q: %w", tag, err)
			}
			out = append(out, a)
		default:
			return nil, fmt.Errorf("server %q: unknown transport %q", tag, srv.Transport)
		}
	}
	return out, nil
}
