package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/satindergrewal/beatgrid/internal/audio"
	"github.com/satindergrewal/beatgrid/internal/sequencer"
)

var errNoLoader = errors.New("no sample loader configured")

func (d *Dispatcher) sampleFor(t sequencer.Track) (audio.Buffer, bool) {
	if t.SampleRef == "" {
		return audio.Buffer{}, false
	}
	return d.Sample(t.SampleRef)
}

// Sample returns the decoded buffer for ref if it has been loaded.
func (d *Dispatcher) Sample(ref string) (audio.Buffer, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf, ok := d.samples[ref]
	return buf, ok
}

// SetSample stores an already decoded buffer under ref.
func (d *Dispatcher) SetSample(ref string, buf audio.Buffer) {
	d.mu.Lock()
	d.samples[ref] = buf
	d.mu.Unlock()
}

// ForgetSample drops a cached buffer.
func (d *Dispatcher) ForgetSample(ref string) {
	d.mu.Lock()
	delete(d.samples, ref)
	d.mu.Unlock()
}

// LoadSample fetches and decodes ref unless it is already cached.
func (d *Dispatcher) LoadSample(ctx context.Context, ref string) error {
	if _, ok := d.Sample(ref); ok {
		return nil
	}
	if d.load == nil {
		return errNoLoader
	}
	buf, err := d.load(ctx, ref)
	if err != nil {
		return fmt.Errorf("load sample %s: %w", ref, err)
	}
	d.SetSample(ref, buf)
	log.Printf("Loaded sample %s (%.2fs)", ref, buf.Duration().Seconds())
	return nil
}

// Preload loads the samples of every sample track in the background. Steps
// that fire before a load finishes are dropped.
func (d *Dispatcher) Preload(ctx context.Context, tracks []sequencer.Track) {
	for _, t := range tracks {
		if t.SampleRef == "" {
			continue
		}
		if _, ok := d.Sample(t.SampleRef); ok {
			continue
		}
		go func(ref string) {
			if err := d.LoadSample(ctx, ref); err != nil {
				log.Printf("Sample preload failed: %v", err)
			}
		}(t.SampleRef)
	}
}
