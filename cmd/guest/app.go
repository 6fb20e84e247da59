package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/tossapol/jukebox-party/config"
	"github.com/tossapol/jukebox-party/guest"
	"github.com/tossapol/jukebox-party/identity"
	"github.com/tossapol/jukebox-party/model"
)

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	fs := pflag.NewFlagSet("guest", pflag.ContinueOnError)
	var (
		hostURL   = fs.StringP("host-url", "u", "ws://localhost:8844/channel", "host channel url")
		hostID    = fs.StringP("host-id", "i", cfg.HostID, "host identifier, namespaces the local identity")
		name      = fs.StringP("name", "n", "", "display name")
		storePath = fs.StringP("store", "s", "guest.db", "identity store path")
		logLevel  = fs.StringP("log-level", "l", cfg.LogLevel, "log level")
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

	// Same device, same host => same identity, so rejoining replaces the
	// old roster entry instead of duplicating it.
	self, err := store.GuestIdentityOrNew(*hostID, *name)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load identity")
	}
	logger.Info().Str("userID", self.ID).Str("name", self.Name).Msg("joining as")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client, err := guest.Dial(ctx, guest.Config{
		Logger:  &logger,
		HostURL: *hostURL,
		Self:    self,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect")
	}
	defer client.Close()

	go console(client, &logger)

	select {
	case <-ctx.Done():
		logger.Warn().Msg("interrupted")
	case <-client.Done():
		logger.Warn().Msg("disconnected from host")
	}
}

func console(client *guest.Client, logger *zerolog.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		var err error
		switch fields[0] {
		case "add":
			if len(fields) != 2 {
				logger.Warn().Msg("usage: add <youtube-url>")
				continue
			}
			err = client.AddSong(fields[1])
		case "play":
			err = client.Play()
		case "pause":
			err = client.Pause()
		case "stop":
			err = client.Stop()
		case "next":
			err = client.Next()
		case "state":
			err = client.RequestState()
		case "view":
			printView(client.View())
		default:
			logger.Warn().Str("cmd", fields[0]).Msg("unknown command")
		}
		if err != nil {
			logger.Error().Err(err).Msg("command failed")
		}
	}
}

func printView(v model.View) {
	if v.CurrentSong != nil {
		fmt.Printf("now playing: %s (from %s)\n", v.CurrentSong.Title, v.CurrentSong.Sender)
	} else {
		fmt.Println("nothing playing")
	}
	for i, s := range v.Queue {
		fmt.Printf("%2d. %s (from %s)\n", i+1, s.Title, s.Sender)
	}
	for _, u := range v.Users {
		crown := ""
		if u.IsMaster {
			crown = " [master]"
		}
		fmt.Printf("user: %s%s\n", u.Name, crown)
	}
	if v.IsMaster() {
		fmt.Println("you are the DJ master")
	}
}
