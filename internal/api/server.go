// Package api provides the REST API for beatgrid: the grid, the transport,
// recordings and the live streams.
package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/satindergrewal/beatgrid/internal/dispatch"
	"github.com/satindergrewal/beatgrid/internal/recordings"
	"github.com/satindergrewal/beatgrid/internal/sequencer"
	"github.com/satindergrewal/beatgrid/internal/session"
	"github.com/satindergrewal/beatgrid/internal/stream"
	"github.com/satindergrewal/beatgrid/internal/transcribe"
)

// maxUpload caps recording and MIDI uploads.
const maxUpload = 50 << 20

// Options wires the server to the running engine. Broadcaster, Stream and
// Offer may be nil when live output is disabled.
type Options struct {
	Session     *session.Session
	Dispatcher  *dispatch.Dispatcher
	Recordings  *recordings.Store
	Transcriber *transcribe.Client
	Broadcaster *stream.Broadcaster
	Stream      http.Handler
	Offer       http.Handler
}

// Server holds the handlers' dependencies.
type Server struct {
	opts Options
}

// New creates a server.
func New(opts Options) *Server {
	return &Server{opts: opts}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.Default()
	r.Use(corsMiddleware())

	r.GET("/health", s.healthCheck)
	if s.opts.Stream != nil {
		r.GET("/stream", gin.WrapH(s.opts.Stream))
	}
	if s.opts.Offer != nil {
		r.POST("/offer", gin.WrapH(s.opts.Offer))
	}

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", s.healthCheck)

		v1.GET("/project", s.getProject)
		v1.POST("/tracks", s.createTrack)
		v1.PATCH("/tracks/:id", s.updateTrack)
		v1.DELETE("/tracks/:id", s.deleteTrack)
		v1.POST("/pattern/toggle", s.toggleCell)

		v1.GET("/transport", s.getTransport)
		v1.POST("/transport/play", s.play)
		v1.POST("/transport/pause", s.pause)
		v1.POST("/transport/reset", s.reset)
		v1.POST("/transport/tempo", s.setTempo)

		v1.GET("/recordings", s.listRecordings)
		v1.POST("/recordings", s.createRecording)
		v1.GET("/recordings/:id", s.getRecording)
		v1.PATCH("/recordings/:id", s.updateRecording)
		v1.DELETE("/recordings/:id", s.deleteRecording)
		v1.GET("/recordings/:id/audio", s.recordingAudio)
		v1.POST("/recordings/:id/transcribe", s.transcribeRecording)
		v1.POST("/recordings/:id/track", s.recordingToTrack)
		v1.POST("/recordings/:id/preview", s.previewRecording)

		v1.GET("/export/midi", s.exportMIDI)
		v1.POST("/import/midi", s.importMIDI)

		v1.GET("/music-fact", s.musicFact)
	}
	return r
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	resp := gin.H{
		"status":  "healthy",
		"service": "beatgrid",
	}
	if s.opts.Broadcaster != nil {
		resp["listeners"] = s.opts.Broadcaster.Taps()
	}
	c.JSON(http.StatusOK, resp)
}

// fail writes err as a JSON error body with a status chosen from its kind.
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, recordings.ErrNotFound), errors.Is(err, sequencer.ErrTrackNotFound):
		status = http.StatusNotFound
	case errors.Is(err, recordings.ErrEmptyCapture):
		status = http.StatusBadRequest
	case errors.Is(err, sequencer.ErrDuplicateTrack):
		status = http.StatusConflict
	case errors.Is(err, transcribe.ErrNotConfigured):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		log.Printf("API %s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
