package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/satindergrewal/beatgrid/internal/api"
	"github.com/satindergrewal/beatgrid/internal/stream"
	"github.com/satindergrewal/beatgrid/internal/transcribe"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sequencer with its REST API and live streams",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log.Println("beatgrid starting up...")
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}

	// Engine: mixer renders voices, broadcaster fans frames out to listeners
	go a.mixer.Run(ctx)
	broadcaster := stream.NewBroadcaster()
	go broadcaster.Run(ctx, a.mixer.Frames())
	go a.session.Run(ctx)

	var ice []string
	if a.cfg.STUNURL != "" {
		ice = append(ice, a.cfg.STUNURL)
	}
	webrtcHandler := stream.NewWebRTCHandler(broadcaster, ice...)
	defer webrtcHandler.Close()

	transcriber := transcribe.NewClient(transcribe.Endpoints{
		Transcribe: a.cfg.TranscribeURL,
		Icon:       a.cfg.IconURL,
		Fact:       a.cfg.FactURL,
	}, a.cfg.TranscribeAPIKey)
	if !transcriber.Configured() {
		log.Println("Transcription not configured (set BEATGRID_TRANSCRIBE_URL to enable)")
	}

	srv := api.New(api.Options{
		Session:     a.session,
		Dispatcher:  a.disp,
		Recordings:  a.recordings,
		Transcriber: transcriber,
		Broadcaster: broadcaster,
		Stream:      stream.NewHTTPHandler(broadcaster),
		Offer:       webrtcHandler,
	})

	server := &http.Server{Addr: a.cfg.Addr(), Handler: srv.Router()}
	go func() {
		<-ctx.Done()
		log.Println("Shutting down...")
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		server.Shutdown(shutdownCtx)
	}()

	log.Printf("beatgrid live on %s", a.cfg.Addr())
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
