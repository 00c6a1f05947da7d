package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lexsuite/meet/internal/adapters/capture"
	"github.com/lexsuite/meet/internal/adapters/rtc"
	"github.com/lexsuite/meet/internal/adapters/signalws"
	"github.com/lexsuite/meet/internal/app/session"
	"github.com/lexsuite/meet/internal/config"
	"github.com/lexsuite/meet/internal/core"
	"github.com/lexsuite/meet/internal/domain"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	self, err := domain.NewParticipant(cfg.DisplayName)
	if err != nil {
		log.Fatal().Err(err).Msg("bad display name")
	}
	roomID := domain.RoomID(cfg.Room)

	dial := func(ctx context.Context) (core.SignalChannel, error) {
		return signalws.Dial(ctx, cfg.SignalURL, roomID, *self)
	}

	sess := session.New(*self, roomID, dial, rtc.NewProvider(cfg.STUNServers), capture.NewDevices(), session.Callbacks{
		OnChat: func(msg domain.ChatMessage) {
			log.Info().Str("from", msg.SenderName).Str("text", msg.Text).Msg("chat")
		},
		OnNotice: func(n session.Notice) {
			log.Warn().Str("peer", string(n.Peer)).Msg(n.Text)
		},
		OnRemoteTrack: func(peer domain.ParticipantID, track core.RemoteTrack) {
			log.Info().Str("peer", string(peer)).Str("kind", string(track.Kind())).Msg("remote track")
		},
		OnRecording: func(rs domain.RecordingState) {
			log.Info().Bool("active", rs.Active).Msg("recording")
		},
	})

	if err := sess.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("session start failed")
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("leaving room")
		sess.Leave()
		<-sess.Done()
	case <-sess.Done():
	}
	log.Info().Msg("session ended")
}
