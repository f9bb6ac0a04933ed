package api

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/satindergrewal/beatgrid/internal/recordings"
	"github.com/satindergrewal/beatgrid/internal/sequencer"
	"github.com/satindergrewal/beatgrid/internal/synth"
	"github.com/satindergrewal/beatgrid/internal/transcribe"
)

func (s *Server) listRecordings(c *gin.Context) {
	recs, err := s.opts.Recordings.List(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recordings": recs})
}

func (s *Server) createRecording(c *gin.Context) {
	data, title, err := readUpload(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	rec, err := s.opts.Recordings.Create(c.Request.Context(), title, data)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (s *Server) getRecording(c *gin.Context) {
	rec, err := s.opts.Recordings.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) updateRecording(c *gin.Context) {
	var u recordings.Update
	if err := c.ShouldBindJSON(&u); err != nil {
		badRequest(c, fmt.Sprintf("Invalid update: %v", err))
		return
	}
	rec, err := s.opts.Recordings.Update(c.Request.Context(), c.Param("id"), u)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// deleteRecording also removes every track that plays the recording. The
// tracks go first so the grid never points at a missing recording.
func (s *Server) deleteRecording(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if _, err := s.opts.Recordings.Get(ctx, id); err != nil {
		fail(c, err)
		return
	}
	for _, t := range s.opts.Session.Tracks() {
		if t.SampleRef != id {
			continue
		}
		if err := s.opts.Session.RemoveTrack(ctx, t.ID); err != nil && !errors.Is(err, sequencer.ErrTrackNotFound) {
			fail(c, err)
			return
		}
	}
	s.opts.Dispatcher.ForgetSample(id)
	if err := s.opts.Recordings.Delete(ctx, id); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) recordingAudio(c *gin.Context) {
	data, err := s.opts.Recordings.Audio(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	contentType := http.DetectContentType(data)
	if bytes.HasPrefix(data, []byte("RIFF")) {
		contentType = "audio/wav"
	}
	c.Data(http.StatusOK, contentType, data)
}

type instrumentRequest struct {
	Instrument synth.Instrument `json:"instrument"`
	Label      string           `json:"label"`
}

// bindOptional decodes an optional JSON body; an empty body is fine.
func bindOptional(c *gin.Context, v any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(v); err != nil {
		badRequest(c, fmt.Sprintf("Invalid body: %v", err))
		return false
	}
	return true
}

// transcribeRecording sends the clip to the transcription service, stores the
// notes on the recording, and asks for an icon if it has none.
func (s *Server) transcribeRecording(c *gin.Context) {
	ctx := c.Request.Context()
	var req instrumentRequest
	if !bindOptional(c, &req) {
		return
	}
	if !s.opts.Transcriber.Configured() {
		fail(c, transcribe.ErrNotConfigured)
		return
	}

	rec, err := s.opts.Recordings.Get(ctx, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	clip, err := s.opts.Recordings.Audio(ctx, rec.ID)
	if err != nil {
		fail(c, err)
		return
	}

	inst := req.Instrument
	if inst == "" {
		inst = rec.Instrument
	}
	if inst == "" {
		inst = synth.Trumpet
	}

	notes, err := s.opts.Transcriber.Transcribe(ctx, clip, inst)
	if err != nil {
		log.Printf("Transcription of %s failed: %v", rec.ID, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	data := sequencer.MidiTrackData{Notes: notes, Instrument: inst, Name: string(inst) + " Track"}
	u := recordings.Update{MidiData: &data, Instrument: &inst}
	if rec.Icon == "" {
		icon, err := s.opts.Transcriber.GenerateIcon(ctx, rec.Title)
		switch {
		case err == nil:
			u.Icon = &icon
		case !errors.Is(err, transcribe.ErrNotConfigured):
			log.Printf("Icon for %s failed: %v", rec.ID, err)
		}
	}

	rec, err = s.opts.Recordings.Update(ctx, rec.ID, u)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// recordingToTrack adds a sample track that plays the recording. Transcribed
// notes are snapped to the grid at the current tempo and switch on their
// steps.
func (s *Server) recordingToTrack(c *gin.Context) {
	ctx := c.Request.Context()
	var req instrumentRequest
	if !bindOptional(c, &req) {
		return
	}
	rec, err := s.opts.Recordings.Get(ctx, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}

	t := sequencer.Track{
		ID:         uuid.NewString(),
		Label:      strings.TrimSpace(req.Label),
		Kind:       sequencer.KindSample,
		SampleRef:  rec.ID,
		Instrument: req.Instrument,
	}
	if t.Label == "" {
		t.Label = rec.Title
	}
	if t.Instrument == "" {
		t.Instrument = rec.Instrument
	}

	var initial []bool
	if rec.MidiData != nil && len(rec.MidiData.Notes) > 0 {
		if t.Instrument == "" {
			t.Instrument = rec.MidiData.Instrument
		}
		notes := sequencer.Quantize(rec.MidiData.Notes, s.opts.Session.Tempo())
		t.Notes = sequencer.Quantized(notes)
		initial = sequencer.InitialRow(notes)
	}

	if err := s.opts.Session.AddTrack(ctx, t, initial); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

// previewRecording plays the recording's transcribed notes once, as timed in
// the clip.
func (s *Server) previewRecording(c *gin.Context) {
	rec, err := s.opts.Recordings.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	if rec.MidiData == nil || len(rec.MidiData.Notes) == 0 {
		badRequest(c, "Recording has no notes; transcribe it first")
		return
	}
	inst := rec.Instrument
	if inst == "" {
		inst = rec.MidiData.Instrument
	}
	s.opts.Dispatcher.Preview(inst, rec.MidiData.Notes)
	c.JSON(http.StatusAccepted, gin.H{"notes": len(rec.MidiData.Notes)})
}

func (s *Server) musicFact(c *gin.Context) {
	fact, err := s.opts.Transcriber.MusicFact(c.Request.Context())
	switch {
	case errors.Is(err, transcribe.ErrNotConfigured):
		fail(c, err)
	case err != nil:
		log.Printf("Music fact failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, fact)
	}
}
