// Package main provides the bot entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/bwmarrin/discordgo"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	apidiscord "github.com/osa030/jukebot/internal/api/discord"
	"github.com/osa030/jukebot/internal/app/filter"
	"github.com/osa030/jukebot/internal/app/notification"
	"github.com/osa030/jukebot/internal/app/resolver"
	"github.com/osa030/jukebot/internal/app/session"
	"github.com/osa030/jukebot/internal/infra/config"
	"github.com/osa030/jukebot/internal/infra/logger"
	"github.com/osa030/jukebot/internal/infra/voice"
)

const shutdownTimeout = 15 * time.Second

var (
	app        = kingpin.New("jukebot", "Discord music bot")
	configPath = app.Flag("config", "Path to config file").Default("config/jukebot.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// list-filters command
	listFiltersCmd = app.Command("list-filters", "List available filters and exit")
)

func init() {
	// start command (default) - no need to store the command
	app.Command("start", "Start the bot (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	// Handle list-filters command
	if command == listFiltersCmd.FullCommand() {
		printFilters()
		return
	}

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config from %s: %v\n", *configPath, err)
		os.Exit(1)
	}

	// Initialize logger; command-line flags override the config file
	loggerConfig := logger.Config{
		Level: cfg.Log.Level,
		File:  cfg.Log.File,
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.File = *logfile
	}
	closer, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer closer.Close()
	zlog.Info().Msgf("Loaded config from %s", *configPath)

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Bot error: %v", err)
		closer.Close()
		os.Exit(1)
	}
}

// run executes the main bot logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx := context.Background()

	discordgo.Logger = logger.DiscordLogger
	dg, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return fmt.Errorf("failed to create discord session: %w", err)
	}
	dg.Identify.Intents = apidiscord.Intents
	dg.LogLevel = discordgo.LogWarning

	// Create resolver chain
	chain, err := resolver.NewProviderChainFromConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create resolver: %w", err)
	}
	zlog.Info().Msgf("Resolver providers: %s", strings.Join(chain.Names(), ", "))

	transport := apidiscord.NewTransport(dg)
	notifier := notification.NewManager(transport)
	defer notifier.Close()

	dialer := voice.NewDialer(dg, voice.Config{
		FFmpegPath:    cfg.Voice.FFmpegPath,
		BitrateKbps:   cfg.Voice.BitrateKbps,
		ReadyTimeout:  cfg.VoiceReadyTimeout(),
		TranscodeOpus: cfg.Voice.TranscodeOpus,
	})

	// Create session manager
	sessionMgr, err := session.NewManager(cfg, dialer, chain, notifier)
	if err != nil {
		return fmt.Errorf("failed to create session manager: %w", err)
	}

	handler := apidiscord.NewHandler(sessionMgr, cfg, transport, transport.VoiceChannel)
	dg.AddHandler(apidiscord.OnMessageCreate(handler))
	dg.AddHandler(apidiscord.OnGuildDelete(handler))
	dg.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		zlog.Info().Msgf("Connected to Discord: user=%s guilds=%d prefix=%s", r.User.Username, len(r.Guilds), cfg.Discord.Prefix)
	})

	if err := dg.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	zlog.Info().Msgf("Received shutdown signal: %s", sig)

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Close session manager first to leave voice channels
	if err := sessionMgr.Close(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to close sessions: %v", err)
	}
	if err := dg.Close(); err != nil {
		zlog.Error().Msgf("Failed to close discord session: %v", err)
	}

	zlog.Info().Msg("Bot stopped")
	return nil
}

// printFilters prints available filters.
func printFilters() {
	registry := filter.GetRegistered()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("Available Filters:")
	for _, name := range names {
		f := registry[name]()
		codes := strings.Join(f.ReturnCodes(), ", ")
		fmt.Printf("  %-30s - %s [codes: %s]\n", f.Name(), f.Description(), codes)
	}
}
