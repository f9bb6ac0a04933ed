// Command beatgrid runs the step sequencer server and its offline tools.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

var (
	configFile   string
	renderOutput string
	trimOutput   string
	midiOutput   string
	bars         int
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		cancel()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "beatgrid",
	Short: "A 32-step loop sequencer with recorded and transcribed tracks",
	Long: `beatgrid plays a looping grid of drum, synth and sample tracks and
serves it over HTTP, MP3 and WebRTC.

Examples:
  beatgrid serve
  beatgrid play --bars 8
  beatgrid render -o loop.wav
  beatgrid trim take.webm -o take.wav
  beatgrid export-midi -o loop.mid`,
	Version:      fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "beatgrid.yaml", "YAML config file; BEATGRID_* variables override it")

	renderCmd.Flags().StringVarP(&renderOutput, "output", "o", "beatgrid.wav", "output WAV file")
	renderCmd.Flags().IntVar(&bars, "bars", 4, "number of 4/4 bars to render")
	playCmd.Flags().IntVar(&bars, "bars", 4, "number of 4/4 bars to play")
	trimCmd.Flags().StringVarP(&trimOutput, "output", "o", "", "output WAV file (default: <input>.trimmed.wav)")
	exportMIDICmd.Flags().StringVarP(&midiOutput, "output", "o", "beatgrid.mid", "output MIDI file")

	rootCmd.AddCommand(serveCmd, playCmd, renderCmd, trimCmd, exportMIDICmd)
}
