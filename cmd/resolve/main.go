// Package main provides a CLI that resolves a term the way the bot does,
// for checking yt-dlp and Spotify setup.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/jukebot/internal/app/resolver"
	"github.com/osa030/jukebot/internal/infra/config"
	"github.com/osa030/jukebot/internal/infra/logger"
)

var (
	app          = kingpin.New("resolve", "Resolve a search term or URL into a playable track")
	configPath   = app.Flag("config", "Path to config file (optional)").String()
	verbose      = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	format       = app.Flag("format", "yt-dlp format selector").String()
	clientID     = app.Flag("spotify-client-id", "Spotify client ID").Envar("SPOTIFY_CLIENT_ID").String()
	clientSecret = app.Flag("spotify-client-secret", "Spotify client secret").Envar("SPOTIFY_CLIENT_SECRET").String()
	terms        = app.Arg("term", "Search terms, URL or Spotify link").Required().Strings()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	level := "warn"
	if *verbose {
		level = "debug"
	}
	if _, err := logger.Init(logger.Config{Level: level}); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chain, err := resolver.NewProviderChainFromConfig(ctx, cfg)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	zlog.Debug().Msgf("resolver providers: %s", strings.Join(chain.Names(), ", "))

	t, err := chain.Resolve(ctx, strings.Join(*terms, " "))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Title:    %s\n", t.Title)
	fmt.Printf("Uploader: %s\n", t.Uploader)
	fmt.Printf("Page:     %s\n", t.PageURL)
	fmt.Printf("Codec:    %s\n", t.Codec)
	if t.IsLive() {
		fmt.Println("Duration: live")
	} else {
		fmt.Printf("Duration: %s\n", t.Duration)
	}
	fmt.Printf("Stream:   %s\n", t.StreamURL)
}

// loadConfig reads the config file when given, otherwise starts from
// defaults. Flags override either.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = &config.Config{}
		if err := defaults.Set(cfg); err != nil {
			return nil, err
		}
	}

	if *format != "" {
		cfg.Resolver.Format = *format
	}
	if *clientID != "" && *clientSecret != "" {
		cfg.Spotify.ClientID = *clientID
		cfg.Spotify.ClientSecret = *clientSecret
	}
	return cfg, nil
}
