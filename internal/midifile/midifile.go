// Package midifile converts note tracks to and from Standard MIDI Files.
package midifile

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/satindergrewal/beatgrid/internal/sequencer"
	"github.com/satindergrewal/beatgrid/internal/synth"
)

// TicksPerQuarter is the resolution of exported files.
const TicksPerQuarter = 480

const defaultTempo = 120.0

type event struct {
	tick uint32
	on   bool
	key  uint8
	vel  uint8
}

// Export writes one MIDI track per note track, after a conductor track that
// carries the tempo.
func Export(tracks []sequencer.MidiTrackData, tempo float64) ([]byte, error) {
	if len(tracks) == 0 {
		return nil, errors.New("no tracks to export")
	}
	if tempo <= 0 {
		tempo = defaultTempo
	}

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(TicksPerQuarter)

	var conductor smf.Track
	conductor.Add(0, smf.MetaTempo(tempo))
	conductor.Add(0, smf.Message([]byte{0xFF, 0x58, 0x04, 0x04, 0x02, 0x18, 0x08})) // 4/4
	conductor.Close(0)
	if err := s.Add(conductor); err != nil {
		return nil, fmt.Errorf("add conductor track: %w", err)
	}

	ticksPerSecond := tempo / 60 * TicksPerQuarter
	for i, td := range tracks {
		var track smf.Track
		name := td.Name
		if name == "" {
			name = fmt.Sprintf("Track %d", i+1)
		}
		track.Add(0, smf.MetaTrackSequenceName(name))
		if td.Instrument != "" {
			track.Add(0, smf.MetaInstrument(string(td.Instrument)))
		}

		channel := uint8(i % 16)
		var events []event
		for _, n := range td.Notes {
			if n.Midi < 0 || n.Midi > 127 {
				continue
			}
			start := uint32(math.Round(math.Max(0, n.Time) * ticksPerSecond))
			length := max(1, uint32(math.Round(n.Duration*ticksPerSecond)))
			vel := uint8(math.Round(min(1, max(0, n.Velocity)) * 127))
			if vel == 0 {
				vel = 1
			}
			events = append(events,
				event{tick: start, on: true, key: uint8(n.Midi), vel: vel},
				event{tick: start + length, key: uint8(n.Midi)},
			)
		}
		// Note-offs sort before note-ons on the same tick so repeated
		// notes retrigger.
		sort.SliceStable(events, func(a, b int) bool {
			if events[a].tick != events[b].tick {
				return events[a].tick < events[b].tick
			}
			return !events[a].on && events[b].on
		})

		var last uint32
		for _, ev := range events {
			delta := ev.tick - last
			if ev.on {
				track.Add(delta, midi.NoteOn(channel, ev.key, ev.vel))
			} else {
				track.Add(delta, midi.NoteOff(channel, ev.key))
			}
			last = ev.tick
		}
		track.Close(0)
		if err := s.Add(track); err != nil {
			return nil, fmt.Errorf("add track %q: %w", name, err)
		}
	}

	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write MIDI: %w", err)
	}
	return buf.Bytes(), nil
}

// Import reads the note tracks of a MIDI file. Tracks without notes are
// skipped. Instruments are guessed from track names.
func Import(data []byte) (tracks []sequencer.MidiTrackData, tempo float64, err error) {
	s, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("parse MIDI: %w", err)
	}
	resolution := float64(TicksPerQuarter)
	if mt, ok := s.TimeFormat.(smf.MetricTicks); ok {
		resolution = float64(mt.Resolution())
	}

	tempo = 0
	for _, tr := range s.Tracks {
		for _, ev := range tr {
			var bpm float64
			if tempo == 0 && ev.Message.GetMetaTempo(&bpm) && bpm > 0 {
				tempo = bpm
			}
		}
	}
	if tempo == 0 {
		tempo = defaultTempo
	}
	secondsPerTick := 60 / tempo / resolution

	for i, tr := range s.Tracks {
		td := readTrack(tr, secondsPerTick)
		if len(td.Notes) == 0 {
			continue
		}
		if td.Name == "" {
			td.Name = fmt.Sprintf("Track %d", i+1)
		}
		td.Instrument = GuessInstrument(td.Name)
		tracks = append(tracks, td)
	}
	return tracks, tempo, nil
}

func readTrack(tr smf.Track, secondsPerTick float64) sequencer.MidiTrackData {
	var td sequencer.MidiTrackData
	type held struct {
		tick int64
		vel  uint8
	}
	open := map[uint8][]held{}
	var tick int64

	for _, ev := range tr {
		tick += int64(ev.Delta)
		msg := ev.Message

		var name string
		if td.Name == "" && msg.GetMetaTrackName(&name) {
			td.Name = name
			continue
		}
		if len(msg) < 3 {
			continue
		}
		status, key, vel := msg[0], msg[1], msg[2]
		switch {
		case status >= 0x90 && status <= 0x9F && vel > 0:
			open[key] = append(open[key], held{tick: tick, vel: vel})
		case (status >= 0x80 && status <= 0x8F) || (status >= 0x90 && status <= 0x9F):
			stack := open[key]
			if len(stack) == 0 {
				continue
			}
			h := stack[0]
			open[key] = stack[1:]
			td.Notes = append(td.Notes, sequencer.MidiNote{
				Midi:     int(key),
				Name:     sequencer.MidiToNoteName(int(key)),
				Time:     float64(h.tick) * secondsPerTick,
				Duration: float64(tick-h.tick) * secondsPerTick,
				Velocity: float64(h.vel) / 127,
			})
		}
	}
	sort.SliceStable(td.Notes, func(a, b int) bool { return td.Notes[a].Time < td.Notes[b].Time })
	return td
}

// GuessInstrument picks an instrument from a track name.
func GuessInstrument(name string) synth.Instrument {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "piano"), strings.Contains(n, "juno"), strings.Contains(n, "lead"):
		return synth.SynthLead
	case strings.Contains(n, "guitar"), strings.Contains(n, "pluck"):
		return synth.PluckedString
	case strings.Contains(n, "bass"):
		return synth.SubBass
	case strings.Contains(n, "drum"), strings.Contains(n, "909"):
		return synth.DrumMachine
	}
	return synth.Trumpet
}

// FromTracks collects the grid tracks that carry notes, named by their
// labels. Legacy notes are converted to MIDI numbers.
func FromTracks(tracks []sequencer.Track) []sequencer.MidiTrackData {
	var out []sequencer.MidiTrackData
	for _, t := range tracks {
		switch n := t.Notes.(type) {
		case sequencer.Quantized:
			if len(n) > 0 {
				out = append(out, sequencer.MidiTrackData{Notes: n, Instrument: t.Instrument, Name: t.Label})
			}
		case sequencer.Unquantized:
			if len(n) > 0 {
				data := sequencer.NotesToMidi(n, t.Instrument)
				data.Name = t.Label
				out = append(out, data)
			}
		}
	}
	return out
}
