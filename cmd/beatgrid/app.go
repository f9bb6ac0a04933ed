package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/satindergrewal/beatgrid/internal/audio"
	"github.com/satindergrewal/beatgrid/internal/config"
	"github.com/satindergrewal/beatgrid/internal/dispatch"
	"github.com/satindergrewal/beatgrid/internal/engine"
	"github.com/satindergrewal/beatgrid/internal/project"
	"github.com/satindergrewal/beatgrid/internal/recordings"
	"github.com/satindergrewal/beatgrid/internal/session"
	"github.com/satindergrewal/beatgrid/internal/storage"
	"github.com/satindergrewal/beatgrid/internal/transport"
)

// app is the engine shared by every command: storage, the saved grid, and a
// session playing into a mixer.
type app struct {
	cfg        config.Config
	projects   *project.Store
	recordings *recordings.Store
	mixer      *engine.Mixer
	disp       *dispatch.Dispatcher
	session    *session.Session
}

func openBlobs(cfg config.Config) (storage.Blobs, error) {
	if cfg.S3Bucket != "" {
		log.Printf("Storing data in s3://%s", cfg.S3Bucket)
		s3, err := storage.NewS3Store(storage.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			return nil, err
		}
		return s3, nil
	}
	log.Printf("Storing data in %s", cfg.DataDir)
	fs, err := storage.NewFileStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	return fs, nil
}

// newApp loads config and the saved project. With persist unset, grid edits
// are not written back.
func newApp(ctx context.Context, persist bool) (*app, error) {
	cfg, err := config.LoadFile(configFile)
	if err != nil {
		return nil, err
	}
	blobs, err := openBlobs(cfg)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	a := &app{
		cfg:        cfg,
		projects:   project.NewStore(blobs),
		recordings: recordings.NewStore(blobs, cfg.TrimThreshold),
		mixer:      engine.NewMixer(),
	}
	a.disp = dispatch.New(a.mixer, audio.SampleRate, cfg.ReleaseTail(), a.recordings.Buffer)

	st, err := a.projects.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	var store *project.Store
	if persist {
		store = a.projects
	}
	a.session, err = session.New(st, cfg.Tempo, cfg.FrameRate, a.disp, store)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// writeWAVFile writes buf to path as 16-bit PCM.
func writeWAVFile(path string, buf audio.Buffer) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := audio.WriteWAV(f, buf); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// barsDuration is the playing time of n 4/4 bars; a loop is four bars.
func barsDuration(n int, tempo float64) time.Duration {
	return transport.LoopDuration(tempo) / 4 * time.Duration(n)
}
