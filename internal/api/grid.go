package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/satindergrewal/beatgrid/internal/midifile"
	"github.com/satindergrewal/beatgrid/internal/sequencer"
)

// --- Grid ---

func (s *Server) getProject(c *gin.Context) {
	c.JSON(http.StatusOK, s.opts.Session.Project())
}

type trackRequest struct {
	Pattern []bool `json:"pattern"`
}

func (s *Server) createTrack(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		badRequest(c, "Failed to read body")
		return
	}
	var t sequencer.Track
	if err := json.Unmarshal(body, &t); err != nil {
		badRequest(c, fmt.Sprintf("Invalid track: %v", err))
		return
	}
	var req trackRequest
	json.Unmarshal(body, &req)

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if strings.TrimSpace(t.Label) == "" {
		t.Label = strings.ToUpper(string(t.Kind))
	}
	if t.Kind == sequencer.KindSample && t.SampleRef == "" {
		badRequest(c, "Sample tracks need a sampleRef")
		return
	}
	if req.Pattern == nil {
		if q, ok := t.Notes.(sequencer.Quantized); ok {
			req.Pattern = sequencer.InitialRow(q)
		}
	}

	if err := s.opts.Session.AddTrack(c.Request.Context(), t, req.Pattern); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (s *Server) updateTrack(c *gin.Context) {
	id := c.Param("id")
	old, ok := s.opts.Session.Track(id)
	if !ok {
		fail(c, fmt.Errorf("%w: %s", sequencer.ErrTrackNotFound, id))
		return
	}
	body, err := c.GetRawData()
	if err != nil {
		badRequest(c, "Failed to read body")
		return
	}
	var t sequencer.Track
	if err := json.Unmarshal(body, &t); err != nil {
		badRequest(c, fmt.Sprintf("Invalid track: %v", err))
		return
	}
	t.ID = id
	if t.Label == "" {
		t.Label = old.Label
	}
	if err := s.opts.Session.UpdateTrack(c.Request.Context(), t); err != nil {
		fail(c, err)
		return
	}
	if t.SampleRef != old.SampleRef && old.SampleRef != "" {
		s.opts.Dispatcher.ForgetSample(old.SampleRef)
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) deleteTrack(c *gin.Context) {
	if err := s.opts.Session.RemoveTrack(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type toggleRequest struct {
	Row *int `json:"row" binding:"required"`
	Col *int `json:"col" binding:"required"`
}

func (s *Server) toggleCell(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Expected {\"row\": n, \"col\": n}")
		return
	}
	ok, err := s.opts.Session.Toggle(c.Request.Context(), *req.Row, *req.Col)
	if err != nil {
		fail(c, err)
		return
	}
	if !ok {
		badRequest(c, fmt.Sprintf("Cell %d/%d is outside the grid", *req.Row, *req.Col))
		return
	}
	st := s.opts.Session.Project()
	resp := gin.H{"row": *req.Row, "col": *req.Col, "pattern": st.Pattern}
	if *req.Row < len(st.Pattern) {
		resp["active"] = st.Pattern[*req.Row][*req.Col]
	}
	c.JSON(http.StatusOK, resp)
}

// --- Transport ---

func (s *Server) getTransport(c *gin.Context) {
	c.JSON(http.StatusOK, s.opts.Session.Status())
}

func (s *Server) play(c *gin.Context) {
	c.JSON(http.StatusOK, s.opts.Session.Play())
}

func (s *Server) pause(c *gin.Context) {
	c.JSON(http.StatusOK, s.opts.Session.Pause())
}

func (s *Server) reset(c *gin.Context) {
	c.JSON(http.StatusOK, s.opts.Session.Reset())
}

type tempoRequest struct {
	Tempo *float64 `json:"tempo" binding:"required"`
}

func (s *Server) setTempo(c *gin.Context) {
	var req tempoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Expected {\"tempo\": bpm}")
		return
	}
	c.JSON(http.StatusOK, s.opts.Session.SetTempo(*req.Tempo))
}

// --- MIDI ---

func (s *Server) exportMIDI(c *gin.Context) {
	tracks := midifile.FromTracks(s.opts.Session.Tracks())
	if len(tracks) == 0 {
		badRequest(c, "No tracks with notes to export")
		return
	}
	data, err := midifile.Export(tracks, s.opts.Session.Tempo())
	if err != nil {
		fail(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename=beatgrid.mid")
	c.Data(http.StatusOK, "audio/midi", data)
}

func (s *Server) importMIDI(c *gin.Context) {
	data, _, err := readUpload(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	tracks, tempo, err := midifile.Import(data)
	if err != nil {
		badRequest(c, fmt.Sprintf("Invalid MIDI file: %v", err))
		return
	}

	bpm := s.opts.Session.Tempo()
	created := make([]sequencer.Track, 0, len(tracks))
	for i, data := range tracks {
		notes := sequencer.Quantize(data.Notes, bpm)
		t := sequencer.Track{
			ID:         uuid.NewString(),
			Label:      data.Name,
			Kind:       sequencer.KindSynth,
			Instrument: data.Instrument,
			Notes:      sequencer.Quantized(notes),
		}
		if t.Label == "" {
			t.Label = fmt.Sprintf("MIDI %d", i+1)
		}
		if err := s.opts.Session.AddTrack(c.Request.Context(), t, sequencer.InitialRow(notes)); err != nil {
			fail(c, err)
			return
		}
		created = append(created, t)
	}
	c.JSON(http.StatusCreated, gin.H{"tracks": created, "tempo": tempo})
}

// readUpload returns the uploaded bytes from a multipart "file" field or,
// for any other content type, the raw body. name is the form's "title" field
// or the title query parameter.
func readUpload(c *gin.Context) (data []byte, name string, err error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUpload)
	name = c.Query("title")

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("file")
		if err != nil {
			return nil, "", errors.New("no file uploaded")
		}
		f, err := fh.Open()
		if err != nil {
			return nil, "", errors.New("failed to read file")
		}
		defer f.Close()
		data, err = io.ReadAll(f)
		if err != nil {
			return nil, "", errors.New("failed to read file")
		}
		if t := c.PostForm("title"); t != "" {
			name = t
		}
		return data, name, nil
	}

	data, err = io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, "", errors.New("failed to read body")
	}
	return data, name, nil
}
