// Package api exposes the mixer to the browser UI: JSON command routes,
// a websocket of state snapshots and the master bus monitors.
package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/satindergrewal/diskjockey/internal/audio"
	"github.com/satindergrewal/diskjockey/internal/config"
	"github.com/satindergrewal/diskjockey/internal/mixer"
)

// Loader turns an uploaded file into a track. audio.Load in production.
type Loader func(path, name string, opts ...audio.LoadOption) (*audio.Track, error)

// Server routes UI commands to a mixer.Controller.
type Server struct {
	cfg      config.Config
	mixer    *mixer.Controller
	router   *gin.Engine
	upgrader websocket.Upgrader
	load     Loader

	monitor http.Handler // MP3 master stream
	offer   http.Handler // WebRTC negotiation

	tick time.Duration // snapshot refresh while a deck plays
}

// Option configures a Server.
type Option func(*Server)

// WithMonitors mounts the MP3 stream and the WebRTC offer handler.
func WithMonitors(mp3, offer http.Handler) Option {
	return func(s *Server) {
		s.monitor = mp3
		s.offer = offer
	}
}

// WithLoader replaces audio.Load.
func WithLoader(l Loader) Option {
	return func(s *Server) { s.load = l }
}

// WithTick sets how often the events socket refreshes positions while a
// deck is playing. Non-positive values keep the default.
func WithTick(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.tick = d
		}
	}
}

// New creates the HTTP server.
func New(cfg config.Config, mx *mixer.Controller, opts ...Option) *Server {
	s := &Server{
		cfg:   cfg,
		mixer: mx,
		load:  audio.Load,
		tick:  250 * time.Millisecond,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// the UI is served by anything on the local machine
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.router.MaxMultipartMemory = 32 << 20
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	s.router.GET("/healthz", s.health)

	api := s.router.Group("/api")
	{
		api.POST("/gesture", s.gesture)
		api.GET("/state", s.state)
		api.GET("/events", s.events)
		api.POST("/crossfader", s.setCrossfader)

		if s.monitor != nil {
			api.GET("/monitor.mp3", gin.WrapH(s.monitor))
		}
		if s.offer != nil {
			api.POST("/monitor/offer", gin.WrapH(s.offer))
		}

		decks := api.Group("/decks/:deck", s.deckParam)
		{
			decks.POST("/load", s.loadTrack)
			decks.POST("/play", s.togglePlay)
			decks.POST("/cue/tap", s.cueTap)
			decks.POST("/cue/hold", s.cueHold)
			decks.POST("/cue/release", s.cueRelease)
			decks.POST("/pitch", s.setPitch)
			decks.POST("/bend", s.bendStart)
			decks.POST("/bend/release", s.bendEnd)
			decks.POST("/level", s.setLevel)
		}
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Control API listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve %s: %w", addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}
