package main

import (
	"bufio"
	"context"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/tossapol/jukebox-party/config"
	"github.com/tossapol/jukebox-party/identity"
	"github.com/tossapol/jukebox-party/metadata"
	"github.com/tossapol/jukebox-party/playback"
	"github.com/tossapol/jukebox-party/registry"
	"github.com/tossapol/jukebox-party/session"
	websocketServer "github.com/tossapol/jukebox-party/server/websocket"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	fs := pflag.NewFlagSet("host", pflag.ContinueOnError)
	var (
		listenAddr = fs.StringP("listen-addr", "a", cfg.ListenAddr, "guest channel listen address")
		hostID     = fs.StringP("host-id", "i", cfg.HostID, "stable host identifier")
		storePath  = fs.StringP("store", "s", cfg.StorePath, "identity store path")
		noembedURL = fs.String("noembed-url", cfg.NoembedURL, "metadata enrichment base url")
		logLevel   = fs.StringP("log-level", "l", cfg.LogLevel, "log level")
	)
	if err = fs.Parse(os.Args[1:]); err != nil {
		logger.Fatal().Err(err).Msg("failed to parse command line arguments")
	}

	lvl, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse loglevel")
	}
	logger = logger.Level(lvl)

	store, err := identity.NewStore(*storePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open identity store")
	}
	defer func() {
		_ = store.Close()
	}()

	loop := session.NewLoop(session.Config{
		Logger:   &logger,
		HostID:   *hostID,
		Registry: registry.New(&logger),
		Store:    store,
		Player:   playback.NewNoop(&logger),
		Resolver: metadata.NewResolver(metadata.Config{Logger: &logger, BaseURL: *noembedURL}),
	})
	wsSrv := websocketServer.NewServer(websocketServer.Config{
		Logger:     &logger,
		Session:    loop,
		ListenAddr: *listenAddr,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		wg   = &sync.WaitGroup{}
		errc = make(chan error, 1)
	)
	wg.Add(2)
	go loop.Run(ctx, wg)
	go wsSrv.Run(ctx, wg, errc)

	go adminConsole(ctx, loop, &logger)

	select {
	case err = <-errc:
		logger.Error().Err(err).Msg("unexpected server error, shutting down")
	case <-ctx.Done():
		logger.Warn().Msg("interrupted")
	}
	cancel()
	wg.Wait()
}

// adminConsole reads host-side administrative actions from stdin. Promotion
// is deliberately not part of the wire protocol.
func adminConsole(ctx context.Context, loop *session.Loop, logger *zerolog.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "promote":
			if len(fields) != 2 {
				logger.Warn().Msg("usage: promote <user-id>")
				continue
			}
			loop.Promote(fields[1])
		case "state":
			snap := loop.Snapshot()
			logger.Info().
				Int("queue", len(snap.Queue)).
				Int("users", len(snap.Users)).
				Any("currentId", snap.CurrentID).
				Any("masterId", snap.MasterID).
				Msg("session state")
		default:
			logger.Warn().Str("cmd", fields[0]).Msg("unknown admin command")
		}
	}
}
