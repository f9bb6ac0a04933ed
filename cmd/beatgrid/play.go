package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/satindergrewal/beatgrid/internal/speaker"
	"github.com/satindergrewal/beatgrid/internal/stream"
	"github.com/spf13/cobra"
)

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Play the saved grid on the local sound card",
	Args:  cobra.NoArgs,
	RunE:  runPlay,
}

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render the saved grid to a WAV file",
	Args:  cobra.NoArgs,
	RunE:  runRender,
}

func runPlay(cmd *cobra.Command, args []string) error {
	if bars < 1 {
		return fmt.Errorf("--bars must be at least 1")
	}
	ctx := cmd.Context()
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	length := barsDuration(bars, a.session.Tempo())

	engineCtx, stopEngine := context.WithCancel(ctx)
	defer stopEngine()
	broadcaster := stream.NewBroadcaster()
	listener := broadcaster.Subscribe("speaker")

	out, err := speaker.Open(listener.C, listener.Done())
	if err != nil {
		return err
	}
	defer out.Close()

	go a.mixer.Run(engineCtx)
	go broadcaster.Run(engineCtx, a.mixer.Frames())
	go a.session.Run(engineCtx)
	a.session.Play()

	log.Printf("Playing %d bars (%s) at %.0f BPM", bars, length.Round(time.Millisecond), a.session.Tempo())
	select {
	case <-time.After(length):
	case <-ctx.Done():
	}
	stopEngine()

	waitCtx, done := context.WithTimeout(ctx, time.Second)
	defer done()
	if err := out.Wait(waitCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runRender(cmd *cobra.Command, args []string) error {
	if bars < 1 {
		return fmt.Errorf("--bars must be at least 1")
	}
	ctx := cmd.Context()
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	length := barsDuration(bars, a.session.Tempo())

	buf, err := a.session.Bounce(ctx, a.mixer, length)
	if err != nil {
		return err
	}
	if err := writeWAVFile(renderOutput, buf); err != nil {
		return err
	}
	log.Printf("Rendered %d bars (%.2fs) to %s", bars, buf.Duration().Seconds(), renderOutput)
	return nil
}
