package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/satindergrewal/beatgrid/internal/audio"
	"github.com/satindergrewal/beatgrid/internal/config"
	"github.com/satindergrewal/beatgrid/internal/midifile"
	"github.com/spf13/cobra"
)

var trimCmd = &cobra.Command{
	Use:   "trim <input>",
	Short: "Cut leading and trailing silence from an audio file",
	Long: `Decodes any audio FFmpeg understands (WAV is read directly), removes
silence before and after the signal keeping 50ms on each side, and writes a
16-bit WAV file.`,
	Args: cobra.ExactArgs(1),
	RunE: runTrim,
}

var exportMIDICmd = &cobra.Command{
	Use:   "export-midi",
	Short: "Write the saved grid's note tracks to a MIDI file",
	Args:  cobra.NoArgs,
	RunE:  runExportMIDI,
}

func runTrim(cmd *cobra.Command, args []string) error {
	in := args[0]
	out := trimOutput
	if out == "" {
		out = strings.TrimSuffix(in, filepath.Ext(in)) + ".trimmed.wav"
	}
	cfg, err := config.LoadFile(configFile)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	buf, err := audio.Decode(cmd.Context(), data)
	if err != nil {
		return fmt.Errorf("decode %s: %w", in, err)
	}
	trimmed := audio.Trim(buf, cfg.TrimThreshold)
	if err := writeWAVFile(out, trimmed); err != nil {
		return err
	}
	log.Printf("Trimmed %s: %.2fs -> %.2fs, wrote %s", in, buf.Duration().Seconds(), trimmed.Duration().Seconds(), out)
	return nil
}

func runExportMIDI(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	data, err := midifile.Export(midifile.FromTracks(a.session.Tracks()), a.session.Tempo())
	if err != nil {
		return err
	}
	if err := os.WriteFile(midiOutput, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", midiOutput, err)
	}
	log.Printf("Wrote %s", midiOutput)
	return nil
}
